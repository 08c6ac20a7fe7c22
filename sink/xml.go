package sink

import (
	"fmt"
	"io"
	"strings"
)

// eventRootXMLNS is the well-known Events schema namespace attribute
// Windows stamps on every top-level <Event> element.
const eventRootXMLNS = "http://schemas.microsoft.com/win/2004/08/events/event"

// XML is an indenting XML 1.0 writer driven directly by the evaluator's
// element-tree walk. It is hand-rolled rather than built on encoding/xml:
// encoding/xml's struct-marshal model has no way to stream an
// ahead-of-time-unknown, dynamically-ordered element/attribute sequence
// with exact sibling ordering and repeated-child semantics preserved.
type XML struct {
	w      io.Writer
	indent bool
	depth  int

	// stack tracks open element names so EndElement (which the Sink
	// interface declares with no arguments) knows which closing tag to
	// emit.
	stack []string

	// pendingOpen is true between BeginElement and the first subsequent
	// call that needs the ">" closed (Attribute keeps it open, anything
	// else closes it first).
	pendingOpen bool
	// afterText is true when the last write inside the innermost open
	// element was text, so its closing tag stays on the same line.
	afterText bool
	// omitRoot suppresses the xmlns attribute this sink otherwise adds to
	// every outermost element, whether or not the rendered tree already
	// carries one (OmitRootAttrs toggle).
	omitRoot bool

	err error
}

// NewXML creates an XML sink writing to w. indent toggles 2-space
// indentation; omitRootAttrs suppresses the synthesized root xmlns
// attribute for callers that already embed one in the rendered tree.
func NewXML(w io.Writer, indent, omitRootAttrs bool) *XML {
	return &XML{w: w, indent: indent, omitRoot: omitRootAttrs}
}

func (x *XML) fail(err error) error {
	if x.err == nil {
		x.err = err
	}
	return x.err
}

func (x *XML) newline() {
	if !x.indent {
		return
	}
	fmt.Fprint(x.w, "\n")
	fmt.Fprint(x.w, strings.Repeat("  ", x.depth))
}

func (x *XML) BeginRecord() error { x.err = nil; x.depth = 0; x.stack = x.stack[:0]; return nil }
func (x *XML) EndRecord() error {
	if x.indent {
		fmt.Fprint(x.w, "\n")
	}
	return x.err
}

func (x *XML) BeginElement(name string) error {
	if x.err != nil {
		return x.err
	}
	if x.pendingOpen {
		fmt.Fprint(x.w, ">")
	}
	if len(x.stack) > 0 {
		x.newline()
	}
	if _, err := fmt.Fprintf(x.w, "<%s", escapeName(name)); err != nil {
		return x.fail(err)
	}
	if x.depth == 0 && !x.omitRoot {
		if _, err := fmt.Fprintf(x.w, " xmlns=%q", eventRootXMLNS); err != nil {
			return x.fail(err)
		}
	}
	x.stack = append(x.stack, name)
	x.pendingOpen = true
	x.afterText = false
	x.depth++
	return nil
}

func (x *XML) Attribute(name, value string) error {
	if x.err != nil {
		return x.err
	}
	_, err := fmt.Fprintf(x.w, " %s=%q", escapeName(name), escapeText(value))
	if err != nil {
		return x.fail(err)
	}
	return nil
}

func (x *XML) Text(value string) error {
	return x.WriteValue(value)
}

func (x *XML) WriteValue(value string) error {
	if x.err != nil {
		return x.err
	}
	if x.pendingOpen {
		fmt.Fprint(x.w, ">")
		x.pendingOpen = false
	}
	_, err := fmt.Fprint(x.w, escapeText(value))
	if err != nil {
		return x.fail(err)
	}
	x.afterText = true
	return nil
}

func (x *XML) EndElement() error {
	if x.err != nil {
		return x.err
	}
	name := x.stack[len(x.stack)-1]
	x.stack = x.stack[:len(x.stack)-1]
	x.depth--
	if x.pendingOpen {
		fmt.Fprint(x.w, ">")
		x.pendingOpen = false
	} else if !x.afterText {
		x.newline()
	}
	x.afterText = false
	if _, err := fmt.Fprintf(x.w, "</%s>", escapeName(name)); err != nil {
		return x.fail(err)
	}
	return nil
}

func escapeName(s string) string {
	return s
}

func escapeText(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
	)
	return r.Replace(s)
}
