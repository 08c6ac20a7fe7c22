package binxml

import "fmt"

// Substitution is one decoded entry of a template instantiation's
// substitution array. Fragment holds the
// already-rendered node list for a slot whose instantiation-declared type is
// BinXmlFragment; otherwise Value carries the decoded scalar/array value.
type Substitution struct {
	Type     Type
	Value    Value
	Fragment []Node
}

// Render walks a cached Skeleton and produces the concrete element tree for
// one template instantiation, splicing each substitution's value (or, for
// fragment slots, its already-evaluated node list) at the path recorded
// during defining_template parsing. It never mutates skeleton.
func Render(skeleton *Skeleton, subs []Substitution) Node {
	return renderNode(skeleton.Root, skeleton.Substitutions, subs, nil)
}

// renderNode returns a rendered copy of n. path is n's own path from the
// skeleton root and is extended for each child and attribute during the
// walk; placeholders are resolved by their SubIndex, not by path.
func renderNode(n Node, subPaths map[int][]PathStep, subs []Substitution, path []PathStep) Node {
	out := n

	switch n.Kind {
	case KindSubstitution:
		// Leaf: renderNode is never called directly on a substitution
		// placeholder except through renderChildren/renderAttr below,
		// which resolve it to concrete content instead of recursing here.
		return out

	case KindText:
		return out
	}

	out.Children = renderChildren(n.Children, subPaths, subs, path)
	out.Attrs = make([]Attr, len(n.Attrs))
	for i, a := range n.Attrs {
		attrPath := append(append([]PathStep{}, path...), PathStep{Attr: true, Index: i})
		out.Attrs[i] = Attr{Name: a.Name, Value: renderLeaf(a.Value, subPaths, subs, attrPath)}
	}
	return out
}

// renderChildren renders an ordered child list, splicing fragment
// substitutions as zero-or-more nodes in place of their placeholder.
func renderChildren(children []Node, subPaths map[int][]PathStep, subs []Substitution, path []PathStep) []Node {
	out := make([]Node, 0, len(children))
	for i, c := range children {
		childPath := append(append([]PathStep{}, path...), PathStep{Index: i})
		if c.Kind == KindSubstitution {
			sub, ok := lookupSubstitution(subs, c.SubIndex)
			if !ok || (c.Optional && sub.Type == TypeNull) {
				if c.Optional {
					out = append(out, Node{Kind: KindText})
				}
				continue
			}
			if sub.Type == TypeBinXmlFragment {
				out = append(out, sub.Fragment...)
				continue
			}
			out = append(out, Node{Kind: KindText, Text: sub.Value.String()})
			continue
		}
		out = append(out, renderNode(c, subPaths, subs, childPath))
	}
	return out
}

// renderLeaf resolves a single attribute value node (always KindText or
// KindSubstitution, never KindElement).
func renderLeaf(n Node, subPaths map[int][]PathStep, subs []Substitution, path []PathStep) Node {
	if n.Kind != KindSubstitution {
		return n
	}
	sub, ok := lookupSubstitution(subs, n.SubIndex)
	if !ok || (n.Optional && sub.Type == TypeNull) {
		return Node{Kind: KindText}
	}
	if sub.Type == TypeBinXmlFragment {
		// A fragment substitution inside an attribute value has no
		// sensible splice target; render its text form instead.
		return Node{Kind: KindText, Text: fmt.Sprintf("%v", sub.Fragment)}
	}
	return Node{Kind: KindText, Text: sub.Value.String()}
}

// lookupSubstitution returns the substitution for index i, or false if the
// instantiation declared fewer slots than the placeholder's index.
func lookupSubstitution(subs []Substitution, i int) (Substitution, bool) {
	if i < 0 || i >= len(subs) {
		return Substitution{}, false
	}
	return subs[i], true
}
