package evtx

import "evtxlink/binxml"

// StringCache interns chunk-local names by byte offset. It
// implements binxml.NameResolver. Keying is address-based, not
// value-based: two identical strings at different offsets are distinct
// entries, matching the on-disk structure and avoiding a content-hash step
// on the hot path.
type StringCache struct {
	r       *binxml.Reader
	entries map[uint32]string
}

// NewStringCache creates an empty cache bound to r, the chunk's byte buffer.
func NewStringCache(r *binxml.Reader) *StringCache {
	return &StringCache{r: r, entries: make(map[uint32]string)}
}

// ResolveName returns the name at chunk-local offset, parsing and caching
// it on first reference. Layout at offset: next_offset (4B, hash-bucket
// chain link, ignored here) | hash (2B) | length_in_code_units (2B) |
// UTF-16 chars | null terminator (2B).
func (c *StringCache) ResolveName(offset uint32) (string, error) {
	if name, ok := c.entries[offset]; ok {
		return name, nil
	}

	save := c.r.Position()
	defer c.r.SeekAbs(save)

	if err := c.r.SeekAbs(int(offset)); err != nil {
		return "", err
	}
	if _, err := c.r.ReadU32(); err != nil { // next_offset, ignored
		return "", err
	}
	if _, err := c.r.ReadU16(); err != nil { // hash
		return "", err
	}
	n, err := c.r.ReadU16()
	if err != nil {
		return "", err
	}
	name, err := c.r.ReadUTF16(int(n))
	if err != nil {
		return "", err
	}
	if _, err := c.r.ReadU16(); err != nil { // null terminator
		return "", err
	}

	c.entries[offset] = name
	return name, nil
}

// Len reports the number of distinct names interned so far.
func (c *StringCache) Len() int { return len(c.entries) }
