package binxml

import "fmt"

// NameResolver looks up the UTF-16 name stored at a chunk-local byte offset,
// interning it on first reference. Implemented by
// evtx.StringCache; kept as an interface here so binxml has no dependency on
// chunk/file concepts.
type NameResolver interface {
	ResolveName(offset uint32) (string, error)
}

// TemplateResolver resolves a TemplateInstance token encountered mid-stream
// into its already-rendered top-level node(s), spliced in place by the
// evaluator. Implemented by evtx.TemplateCache, which owns the per-chunk
// template skeleton cache.
type TemplateResolver interface {
	ResolveTemplateInstance(tr *TokenReader, hdr TemplateInstanceHeader) ([]Node, error)
}

// NodeKind discriminates the union stored in Node.
type NodeKind uint8

const (
	KindElement NodeKind = iota
	KindText
	KindSubstitution
)

// Attr is an ordered (name, value) pair attached to an element. Value holds
// either a KindText or KindSubstitution node — never KindElement.
type Attr struct {
	Name  string
	Value Node
}

// Node is a transient element-tree node. The
// synthetic root returned by ParseFragment/ParseTemplateBody uses Kind
// KindElement with an empty Name and holds the real top-level node(s) as
// Children.
type Node struct {
	Kind NodeKind

	// KindElement
	Name     string
	Attrs    []Attr
	Children []Node

	// KindText
	Text string

	// KindSubstitution placeholder (only ever present in a cached
	// skeleton; render replaces it with real content)
	SubIndex int
	SubType  Type
	Optional bool
}

// PathStep is one step of a substitution path: either the index of a child
// element/text/substitution node, or the index of an attribute on the
// current element.
type PathStep struct {
	Attr  bool
	Index int
}

// Skeleton is a parsed, cacheable template body: its element tree (with
// KindSubstitution placeholders) plus the index -> path map recorded while
// defining_template mode was active.
type Skeleton struct {
	Root          Node
	Substitutions map[int][]PathStep
}

// evalFrame tracks one level of the element stack during parsing.
type evalFrame struct {
	node *Node
	path []PathStep
}

// Evaluator builds an element tree from a BinXML token stream. A single Evaluator is used for exactly one parse (record body,
// template definition, or nested fragment); it is not reused across chunks.
type Evaluator struct {
	names    NameResolver
	resolver TemplateResolver
	defining bool

	stack []evalFrame
	subs  map[int][]PathStep

	// attrFrame, when non-nil, means the next Value/Substitution token
	// populates this attribute's Value rather than appending a child.
	attrFrame *Attr
	attrPath  []PathStep
}

func newEvaluator(names NameResolver, resolver TemplateResolver, defining bool) *Evaluator {
	e := &Evaluator{names: names, resolver: resolver, defining: defining}
	if defining {
		e.subs = make(map[int][]PathStep)
	}
	return e
}

// ParseFragment reads a standalone BinXML fragment: the 3-byte fragment
// header followed by a token stream terminated by EndOfStream. It returns
// the top-level node(s) (usually exactly one element, e.g. <Event>).
func ParseFragment(tr *TokenReader, names NameResolver, resolver TemplateResolver) ([]Node, error) {
	if err := tr.ReadFragmentHeader(); err != nil {
		return nil, err
	}
	e := newEvaluator(names, resolver, false)
	if err := e.run(tr); err != nil {
		return nil, err
	}
	return e.stack[0].node.Children, nil
}

// ParseTemplateBody parses a template definition's token stream (no
// fragment header — the caller has already consumed
// definition_id|guid|data_size) in defining_template mode, returning the
// resulting Skeleton.
func ParseTemplateBody(tr *TokenReader, names NameResolver, resolver TemplateResolver) (*Skeleton, error) {
	e := newEvaluator(names, resolver, true)
	if err := e.run(tr); err != nil {
		return nil, err
	}
	return &Skeleton{Root: *e.stack[0].node, Substitutions: e.subs}, nil
}

func (e *Evaluator) run(tr *TokenReader) error {
	root := &Node{Kind: KindElement}
	e.stack = []evalFrame{{node: root, path: nil}}

	for {
		tok, err := tr.Next()
		if err != nil {
			return err
		}

		switch tok.Opcode {
		case OpEndOfStream:
			if len(e.stack) != 1 {
				return fmt.Errorf("%w: %d elements still open", ErrUnbalancedStream, len(e.stack)-1)
			}
			return nil

		case OpOpenStartElement:
			name, err := e.names.ResolveName(tok.NameOffset)
			if err != nil {
				return err
			}
			top := e.top()
			child := Node{Kind: KindElement, Name: name}
			top.node.Children = append(top.node.Children, child)
			idx := len(top.node.Children) - 1
			childPath := append(append([]PathStep{}, top.path...), PathStep{Index: idx})
			e.stack = append(e.stack, evalFrame{node: &top.node.Children[idx], path: childPath})

		case OpCloseStartElement:
			// No structural change; attributes are already attached.

		case OpCloseEmptyElement, OpEndElement:
			if len(e.stack) <= 1 {
				return fmt.Errorf("%w: close with no open element", ErrUnbalancedStream)
			}
			e.stack = e.stack[:len(e.stack)-1]

		case OpAttribute:
			name, err := e.names.ResolveName(tok.AttrNameOffset)
			if err != nil {
				return err
			}
			top := e.top()
			top.node.Attrs = append(top.node.Attrs, Attr{Name: name})
			idx := len(top.node.Attrs) - 1
			e.attrFrame = &top.node.Attrs[idx]
			e.attrPath = append(append([]PathStep{}, top.path...), PathStep{Attr: true, Index: idx})

		case OpValue:
			e.attach(Node{Kind: KindText, Text: tok.Value.String()})

		case OpNormalSubst, OpOptionalSubstOrFragmentHeader:
			optional := tok.Opcode == OpOptionalSubstOrFragmentHeader
			e.attach(Node{Kind: KindSubstitution, SubIndex: int(tok.SubIndex), SubType: tok.SubType, Optional: optional})

		case OpTemplateInstance:
			if e.resolver == nil {
				return fmt.Errorf("binxml: template instance with no resolver")
			}
			nodes, err := e.resolver.ResolveTemplateInstance(tr, tok.Template)
			if err != nil {
				return err
			}
			top := e.top()
			top.node.Children = append(top.node.Children, nodes...)

		default:
			return fmt.Errorf("%w: opcode 0x%02x", ErrUnknownToken, byte(tok.Opcode))
		}
	}
}

func (e *Evaluator) top() evalFrame {
	return e.stack[len(e.stack)-1]
}

// attach places a Value or Substitution node either into the pending
// attribute frame or as a new child of the current element, recording its
// substitution path when defining a template.
func (e *Evaluator) attach(n Node) {
	isSub := n.Kind == KindSubstitution

	if e.attrFrame != nil {
		e.attrFrame.Value = n
		if e.defining && isSub {
			e.subs[n.SubIndex] = e.attrPath
		}
		e.attrFrame = nil
		e.attrPath = nil
		return
	}

	top := e.top()
	top.node.Children = append(top.node.Children, n)
	idx := len(top.node.Children) - 1
	if e.defining && isSub {
		path := append(append([]PathStep{}, top.path...), PathStep{Index: idx})
		e.subs[n.SubIndex] = path
	}
}
