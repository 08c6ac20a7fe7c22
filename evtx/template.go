package evtx

import (
	"fmt"

	"evtxlink/binxml"
)

// Template is a cached, parsed template definition.
type Template struct {
	GUID     binxml.GUID
	Length   uint32
	Skeleton *binxml.Skeleton
}

// TemplateCache is the per-chunk template cache keyed by in-chunk
// definition offset. It implements binxml.TemplateResolver.
type TemplateCache struct {
	r     *binxml.Reader
	names binxml.NameResolver

	byOffset map[uint32]*Template
}

// NewTemplateCache creates an empty cache bound to r (the chunk buffer) and
// names (the chunk's string cache, used while parsing template bodies).
func NewTemplateCache(r *binxml.Reader, names binxml.NameResolver) *TemplateCache {
	return &TemplateCache{r: r, names: names, byOffset: make(map[uint32]*Template)}
}

// Len reports the number of distinct template definitions cached so far.
func (c *TemplateCache) Len() int { return len(c.byOffset) }

// ResolveTemplateInstance implements binxml.TemplateResolver. tr must be
// positioned immediately after the TemplateInstance token's fixed header
// (reserved|template_id|definition_offset|next_offset, already decoded into
// hdr). Whether a template body is physically present at this position is
// determined solely by cache presence, not by comparing offsets: the encoder only embeds the definition inline at a template's
// first occurrence in the chunk, and by the time a later instantiation is
// reached the earlier parse has already consumed and cached it, so a
// cache miss here always means "the reader is at the definition" and a hit
// always means "the stream goes straight to the substitution array".
func (c *TemplateCache) ResolveTemplateInstance(tr *binxml.TokenReader, hdr binxml.TemplateInstanceHeader) ([]binxml.Node, error) {
	tmpl, ok := c.byOffset[hdr.DefinitionOffset]
	if !ok {
		var err error
		tmpl, err = c.parseDefinition(tr)
		if err != nil {
			return nil, err
		}
		c.byOffset[hdr.DefinitionOffset] = tmpl
	}

	subs, err := c.readSubstitutionArray(tr)
	if err != nil {
		return nil, err
	}

	root := binxml.Render(tmpl.Skeleton, subs)
	return root.Children, nil
}

// parseDefinition reads the template definition header and body at the
// reader's current position: definition_id (4B, ignored) | guid (16B) |
// data_size (4B) | token stream in defining_template mode.
// It leaves the reader positioned immediately after the definition's
// EndOfStream, which is where the substitution-array header begins.
func (c *TemplateCache) parseDefinition(tr *binxml.TokenReader) (*Template, error) {
	r := tr.Reader()
	if _, err := r.ReadU32(); err != nil { // definition_id, ignored
		return nil, err
	}
	guid, err := r.ReadGUID()
	if err != nil {
		return nil, err
	}
	dataSize, err := r.ReadU32()
	if err != nil {
		return nil, err
	}

	skeleton, err := binxml.ParseTemplateBody(tr, c.names, c)
	if err != nil {
		return nil, err
	}

	return &Template{GUID: guid, Length: dataSize, Skeleton: skeleton}, nil
}

// readSubstitutionArray reads the substitution-array header (count (4B)
// then count descriptors of size (2B) | type (1B) | reserved (1B)) and
// decodes each payload in declaration order. A
// BinXmlFragment-typed slot is parsed as a nested fragment in the same
// chunk context rather than decoded as a scalar.
func (c *TemplateCache) readSubstitutionArray(tr *binxml.TokenReader) ([]binxml.Substitution, error) {
	r := tr.Reader()

	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}

	type descriptor struct {
		size uint16
		typ  binxml.Type
	}
	descs := make([]descriptor, count)
	for i := range descs {
		size, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		typ, err := r.ReadU8()
		if err != nil {
			return nil, err
		}
		if _, err := r.ReadU8(); err != nil { // reserved
			return nil, err
		}
		descs[i] = descriptor{size: size, typ: binxml.Type(typ)}
	}

	subs := make([]binxml.Substitution, count)
	for i, d := range descs {
		if d.typ.Scalar() == binxml.TypeBinXmlFragment {
			nodes, err := c.parseNestedFragment(r, int(d.size))
			if err != nil {
				return nil, err
			}
			subs[i] = binxml.Substitution{Type: d.typ, Fragment: nodes}
			continue
		}
		v, err := binxml.DecodeValue(r, d.typ, int(d.size))
		if err != nil {
			return nil, fmt.Errorf("substitution %d: %w", i, err)
		}
		subs[i] = binxml.Substitution{Type: d.typ, Value: v}
	}

	return subs, nil
}

// parseNestedFragment parses a BinXmlFragment-typed substitution payload
// (a standalone fragment header + token stream) confined to its declared
// byte length, then restores the reader to just past that length
// regardless of how much the nested parse actually consumed.
func (c *TemplateCache) parseNestedFragment(r *binxml.Reader, length int) ([]binxml.Node, error) {
	start := r.Position()
	sub, err := r.Sub(start, length)
	if err != nil {
		return nil, err
	}

	nestedTR := binxml.NewTokenReader(sub)
	nodes, err := binxml.ParseFragment(nestedTR, c.names, c)

	if seekErr := r.SeekAbs(start + length); seekErr != nil && err == nil {
		err = seekErr
	}
	return nodes, err
}
