package sink

import (
	"encoding/json"
	"fmt"
	"io"
)

// jsonNode is an intermediate document node built while walking the
// element tree; it collapses into plain Go values (map/slice/string) just
// before being marshaled, matching the interface's "arrays for repeated
// element names, scalars for single-value leaves, objects for nested
// elements" policy.
type jsonNode struct {
	attrs    map[string]string
	children map[string][]*jsonNode
	order    []string // first-seen child name order, for stable output
	text     string
	hasText  bool
}

func newJSONNode() *jsonNode {
	return &jsonNode{attrs: map[string]string{}, children: map[string][]*jsonNode{}}
}

func (n *jsonNode) addChild(name string, child *jsonNode) {
	if _, ok := n.children[name]; !ok {
		n.order = append(n.order, name)
	}
	n.children[name] = append(n.children[name], child)
}

// value collapses n into the plain value encoding/json should marshal: a
// bare string when n has text and no attrs/children, otherwise an object
// mixing attributes, "#text" for mixed content, and child elements (arrays
// when a name repeats). Attributes share the object's key namespace with
// child elements; a name cannot be both on the same node in practice, since
// BinXML attribute and element names are drawn from the same string cache
// but never collide within one element.
func (n *jsonNode) value() interface{} {
	if len(n.attrs) == 0 && len(n.children) == 0 {
		if n.hasText {
			return n.text
		}
		return ""
	}

	obj := make(map[string]interface{}, len(n.attrs)+len(n.children)+1)
	for k, v := range n.attrs {
		obj[k] = v
	}
	if n.hasText {
		obj["#text"] = n.text
	}
	for _, name := range n.order {
		kids := n.children[name]
		if len(kids) == 1 {
			obj[name] = kids[0].value()
			continue
		}
		arr := make([]interface{}, len(kids))
		for i, k := range kids {
			arr[i] = k.value()
		}
		obj[name] = arr
	}
	return obj
}

// JSON builds one JSON document per record directly from the sink
// callback stream (no intermediate binxml.Node dependency, so it works
// from any Sink-driven walk), matching the element tree's structure
// rather than routing through encoding/xml's type-driven marshaling.
type JSON struct {
	w      io.Writer
	indent bool

	root     *jsonNode
	rootName string
	stack    []*jsonNode

	err error
}

// NewJSON creates a JSON sink writing one document per record to w.
func NewJSON(w io.Writer, indent bool) *JSON {
	return &JSON{w: w, indent: indent}
}

func (j *JSON) fail(err error) error {
	if j.err == nil {
		j.err = err
	}
	return j.err
}

func (j *JSON) BeginRecord() error {
	j.err = nil
	j.root = nil
	j.rootName = ""
	j.stack = nil
	return nil
}

func (j *JSON) EndRecord() error {
	if j.err != nil {
		return j.err
	}
	if j.root == nil {
		return nil
	}
	doc := map[string]interface{}{j.rootName: j.root.value()}

	var b []byte
	var err error
	if j.indent {
		b, err = json.MarshalIndent(doc, "", "  ")
	} else {
		b, err = json.Marshal(doc)
	}
	if err != nil {
		return j.fail(err)
	}
	if _, err := fmt.Fprintln(j.w, string(b)); err != nil {
		return j.fail(err)
	}
	return nil
}

func (j *JSON) BeginElement(name string) error {
	if j.err != nil {
		return j.err
	}
	n := newJSONNode()
	if j.root == nil {
		j.root = n
		j.rootName = name
	} else {
		top := j.stack[len(j.stack)-1]
		top.addChild(name, n)
	}
	j.stack = append(j.stack, n)
	return nil
}

func (j *JSON) Attribute(name, value string) error {
	if j.err != nil {
		return j.err
	}
	j.stack[len(j.stack)-1].attrs[name] = value
	return nil
}

func (j *JSON) Text(value string) error {
	return j.WriteValue(value)
}

func (j *JSON) WriteValue(value string) error {
	if j.err != nil {
		return j.err
	}
	top := j.stack[len(j.stack)-1]
	top.text = value
	top.hasText = true
	return nil
}

func (j *JSON) EndElement() error {
	if j.err != nil {
		return j.err
	}
	j.stack = j.stack[:len(j.stack)-1]
	return nil
}
