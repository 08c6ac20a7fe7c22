package binxml

import (
	"errors"
	"fmt"
)

// Opcode is the low nibble of a BinXML token byte.
type Opcode byte

const (
	OpEndOfStream       Opcode = 0x00
	OpOpenStartElement  Opcode = 0x01
	OpCloseStartElement Opcode = 0x02
	OpCloseEmptyElement Opcode = 0x03
	OpEndElement        Opcode = 0x04
	OpValue             Opcode = 0x05
	OpAttribute         Opcode = 0x06
	OpCDataSection      Opcode = 0x07
	OpCharRef           Opcode = 0x08
	OpPITarget          Opcode = 0x0B
	OpPIData            Opcode = 0x0C
	OpTemplateInstance  Opcode = 0x0D
	OpNormalSubst       Opcode = 0x0E
	// OpOptionalSubstOrFragmentHeader is 0x0F in both roles; which one
	// applies depends on stream position.
	OpOptionalSubstOrFragmentHeader Opcode = 0x0F

	moreFlag = 0x40
)

// ErrUnimplementedToken is returned for tokens that are intentionally
// unimplemented (CDATA, entity refs, processing instructions).
var ErrUnimplementedToken = errors.New("binxml: unimplemented token")

// ErrUnknownToken is returned for an opcode byte outside the known set.
var ErrUnknownToken = errors.New("binxml: unknown token")

// ErrUnbalancedStream is returned when EndOfStream arrives with an open
// element still on the evaluator's stack.
var ErrUnbalancedStream = errors.New("binxml: unbalanced element stream")

// Token is a single decoded entry from the BinXML token stream. Only the
// fields relevant to Opcode are populated.
type Token struct {
	Opcode Opcode
	More   bool

	// OpenStartElement
	NameOffset   uint32
	AttrListSize uint32

	// Attribute
	AttrNameOffset uint32

	// Value
	Value Value

	// NormalSubstitution / OptionalSubstitution
	SubIndex uint16
	SubType  Type

	// TemplateInstance
	Template TemplateInstanceHeader
}

// TemplateInstanceHeader is the fixed header of a TemplateInstance token.
type TemplateInstanceHeader struct {
	TemplateID       uint32
	DefinitionOffset uint32
	NextOffset       uint32
}

// TokenReader decodes the flat BinXML token stream from a *Reader.
type TokenReader struct {
	r *Reader
}

// NewTokenReader wraps r for token-at-a-time decoding.
func NewTokenReader(r *Reader) *TokenReader {
	return &TokenReader{r: r}
}

// Reader exposes the underlying primitive reader, e.g. so a caller can
// read a template definition header or substitution array directly.
func (t *TokenReader) Reader() *Reader { return t.r }

// Next decodes and returns the next token. A Value token is decoded in full,
// payload included. An Attribute token carries only its name offset; the
// Value or Substitution token that follows it is returned by the next call.
func (t *TokenReader) Next() (Token, error) {
	b, err := t.r.ReadU8()
	if err != nil {
		return Token{}, err
	}
	opcode := Opcode(b &^ moreFlag)
	more := b&moreFlag != 0

	tok := Token{Opcode: opcode, More: more}

	switch opcode {
	case OpEndOfStream:
		return tok, nil

	case OpOpenStartElement:
		if _, err := t.r.ReadU16(); err != nil { // dependency id, ignored
			return tok, err
		}
		if _, err := t.r.ReadU32(); err != nil { // element size, ignored
			return tok, err
		}
		nameOff, err := t.r.ReadU32()
		if err != nil {
			return tok, err
		}
		tok.NameOffset = nameOff
		if more {
			attrListSize, err := t.r.ReadU32()
			if err != nil {
				return tok, err
			}
			tok.AttrListSize = attrListSize
		}
		return tok, nil

	case OpCloseStartElement, OpCloseEmptyElement, OpEndElement:
		return tok, nil

	case OpValue:
		typ, v, err := t.readValueToken()
		if err != nil {
			return tok, err
		}
		tok.SubType = typ
		tok.Value = v
		return tok, nil

	case OpAttribute:
		nameOff, err := t.r.ReadU32()
		if err != nil {
			return tok, err
		}
		tok.AttrNameOffset = nameOff
		return tok, nil

	case OpCDataSection, OpCharRef, OpPITarget, OpPIData:
		return tok, fmt.Errorf("%w: opcode 0x%02x", ErrUnimplementedToken, byte(opcode))

	case OpTemplateInstance:
		if _, err := t.r.ReadU8(); err != nil { // reserved
			return tok, err
		}
		id, err := t.r.ReadU32()
		if err != nil {
			return tok, err
		}
		defOff, err := t.r.ReadU32()
		if err != nil {
			return tok, err
		}
		nextOff, err := t.r.ReadU32()
		if err != nil {
			return tok, err
		}
		tok.Template = TemplateInstanceHeader{TemplateID: id, DefinitionOffset: defOff, NextOffset: nextOff}
		return tok, nil

	case OpNormalSubst, OpOptionalSubstOrFragmentHeader:
		idx, err := t.r.ReadU16()
		if err != nil {
			return tok, err
		}
		typ, err := t.r.ReadU8()
		if err != nil {
			return tok, err
		}
		tok.SubIndex = idx
		tok.SubType = Type(typ)
		return tok, nil

	default:
		return tok, fmt.Errorf("%w: opcode 0x%02x", ErrUnknownToken, byte(opcode))
	}
}

// readValueToken decodes the type byte and payload of a Value token: a
// one-byte type code, an explicit 2-byte byte-length for variable-size
// types, and the payload itself.
func (t *TokenReader) readValueToken() (Type, Value, error) {
	tb, err := t.r.ReadU8()
	if err != nil {
		return 0, Value{}, err
	}
	typ := Type(tb)

	length := 0
	switch typ {
	case TypeWideString, TypeAnsiString, TypeBinary, TypeBinXmlFragment:
		n, err := t.r.ReadU16()
		if err != nil {
			return typ, Value{}, err
		}
		length = int(n)
	}

	v, err := DecodeValue(t.r, typ, length)
	return typ, v, err
}

// ReadFragmentHeader consumes the 3 reserved bytes that begin every
// standalone BinXML fragment.
func (t *TokenReader) ReadFragmentHeader() error {
	_, err := t.r.ReadBytes(3)
	return err
}
