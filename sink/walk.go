package sink

import "evtxlink/binxml"

// WriteRecord drives dst through one record's top-level node list (usually
// a single <Event> element), bracketing the walk with
// BeginRecord/EndRecord so serializing sinks can flush per record.
func WriteRecord(dst RecordSink, nodes []binxml.Node) error {
	if err := dst.BeginRecord(); err != nil {
		return err
	}
	for _, n := range nodes {
		if err := writeNode(dst, n); err != nil {
			return err
		}
	}
	return dst.EndRecord()
}

func writeNode(dst Sink, n binxml.Node) error {
	switch n.Kind {
	case binxml.KindText:
		return dst.Text(n.Text)

	case binxml.KindSubstitution:
		// A fully rendered tree (binxml.Render output) never leaves a
		// substitution placeholder in place; this case exists only as a
		// defensive fallback for an unrendered skeleton passed in by
		// mistake.
		return dst.WriteValue("")

	case binxml.KindElement:
		if err := dst.BeginElement(n.Name); err != nil {
			return err
		}
		for _, a := range n.Attrs {
			if err := dst.Attribute(a.Name, attrText(a.Value)); err != nil {
				return err
			}
		}
		for _, c := range n.Children {
			if err := writeNode(dst, c); err != nil {
				return err
			}
		}
		return dst.EndElement()
	}
	return nil
}

// attrText renders an attribute's value node (always KindText after
// rendering) as plain text.
func attrText(n binxml.Node) string {
	if n.Kind == binxml.KindText {
		return n.Text
	}
	return ""
}
