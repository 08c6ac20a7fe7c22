package sink

import (
	"bytes"
	"strings"
	"testing"
)

func TestXML_SimpleElementWithAttrAndText(t *testing.T) {
	var buf bytes.Buffer
	x := NewXML(&buf, false, true)

	if err := x.BeginRecord(); err != nil {
		t.Fatalf("BeginRecord: %v", err)
	}
	if err := x.BeginElement("Event"); err != nil {
		t.Fatalf("BeginElement: %v", err)
	}
	if err := x.Attribute("Id", "42"); err != nil {
		t.Fatalf("Attribute: %v", err)
	}
	if err := x.Text("hello"); err != nil {
		t.Fatalf("Text: %v", err)
	}
	if err := x.EndElement(); err != nil {
		t.Fatalf("EndElement: %v", err)
	}
	if err := x.EndRecord(); err != nil {
		t.Fatalf("EndRecord: %v", err)
	}

	want := `<Event Id="42">hello</Event>`
	if got := strings.TrimSpace(buf.String()); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestXML_EmptyElementUsesExplicitClosingTag(t *testing.T) {
	var buf bytes.Buffer
	x := NewXML(&buf, false, true)

	x.BeginRecord()
	x.BeginElement("Empty")
	x.EndElement()
	x.EndRecord()

	want := `<Empty></Empty>`
	if got := strings.TrimSpace(buf.String()); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestXML_NestedElementsIndented(t *testing.T) {
	var buf bytes.Buffer
	x := NewXML(&buf, true, true)

	x.BeginRecord()
	x.BeginElement("Event")
	x.BeginElement("System")
	x.Text("v")
	x.EndElement()
	x.EndElement()
	x.EndRecord()

	out := buf.String()
	if !strings.Contains(out, "<Event>\n  <System>v</System>\n</Event>") {
		t.Fatalf("unexpected indented output: %q", out)
	}
}

func TestXML_RootXMLNSByDefault(t *testing.T) {
	var buf bytes.Buffer
	x := NewXML(&buf, false, false)

	x.BeginRecord()
	x.BeginElement("Event")
	x.EndElement()
	x.EndRecord()

	got := strings.TrimSpace(buf.String())
	if !strings.Contains(got, `xmlns="`+eventRootXMLNS+`"`) {
		t.Fatalf("expected xmlns attribute, got %q", got)
	}
}

func TestXML_OmitRootAttrsSuppressesXMLNS(t *testing.T) {
	var buf bytes.Buffer
	x := NewXML(&buf, false, true)

	x.BeginRecord()
	x.BeginElement("Event")
	x.EndElement()
	x.EndRecord()

	got := strings.TrimSpace(buf.String())
	if strings.Contains(got, "xmlns=") {
		t.Fatalf("expected no xmlns attribute when omitRootAttrs is set, got %q", got)
	}
}

func TestXML_EscapesText(t *testing.T) {
	var buf bytes.Buffer
	x := NewXML(&buf, false, true)

	x.BeginRecord()
	x.BeginElement("Msg")
	x.Text(`<a> & "b"`)
	x.EndElement()
	x.EndRecord()

	want := `<Msg>&lt;a&gt; &amp; &quot;b&quot;</Msg>`
	if got := strings.TrimSpace(buf.String()); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestXML_MultipleSiblings(t *testing.T) {
	var buf bytes.Buffer
	x := NewXML(&buf, false, true)

	x.BeginRecord()
	x.BeginElement("Event")
	x.BeginElement("Data")
	x.Text("1")
	x.EndElement()
	x.BeginElement("Data")
	x.Text("2")
	x.EndElement()
	x.EndElement()
	x.EndRecord()

	want := `<Event><Data>1</Data><Data>2</Data></Event>`
	if got := strings.TrimSpace(buf.String()); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
