package binxml

import (
	"errors"
	"fmt"

	"golang.org/x/text/encoding/charmap"

	"evtxlink/logging"
)

// Type is a BinXML value type code. Array types carry the
// corresponding scalar code with bit 7 set.
type Type byte

const (
	TypeNull           Type = 0x00
	TypeWideString     Type = 0x01
	TypeAnsiString     Type = 0x02
	TypeInt8           Type = 0x03
	TypeUInt8          Type = 0x04
	TypeInt16          Type = 0x05
	TypeUInt16         Type = 0x06
	TypeInt32          Type = 0x07
	TypeUInt32         Type = 0x08
	TypeInt64          Type = 0x09
	TypeUInt64         Type = 0x0A
	TypeReal32         Type = 0x0B
	TypeReal64         Type = 0x0C
	TypeBool           Type = 0x0D
	TypeBinary         Type = 0x0E
	TypeGUID           Type = 0x0F
	TypeSize           Type = 0x10
	TypeFILETIME       Type = 0x11
	TypeSYSTEMTIME     Type = 0x12
	TypeSID            Type = 0x13
	TypeHexInt32       Type = 0x14
	TypeHexInt64       Type = 0x15
	TypeBinXmlFragment Type = 0x21

	typeArrayFlag Type = 0x80
)

// IsArray reports whether t has the array bit set.
func (t Type) IsArray() bool { return t&typeArrayFlag != 0 }

// Scalar strips the array bit, returning the element type.
func (t Type) Scalar() Type { return t &^ typeArrayFlag }

// ErrUnknownType marks a type code this decoder does not recognise. It is
// never returned to callers: decodeScalar/decodeArray recover from it
// internally by substituting a placeholder value, logging the occurrence,
// and letting the rest of the record parse normally.
var ErrUnknownType = errors.New("binxml: unknown value type")

// Value is a tagged union over the BinXML scalar/array value set. Exactly
// one of the typed fields is meaningful, selected by Type.
type Value struct {
	Type Type

	Str      string
	I64      int64
	U64      uint64
	F64      float64
	Bool     bool
	Bytes    []byte
	GUID     GUID
	FileTime FILETIME
	SysTime  SYSTEMTIME
	SID      SID

	// Fragment holds the unparsed byte range for TypeBinXmlFragment; it
	// MUST be evaluated by the caller, never interpreted here.
	Fragment []byte

	// Array holds per-element decoded values when Type.IsArray().
	Array []Value
}

// String renders the value the way it appears in rendered XML/JSON text.
func (v Value) String() string {
	switch v.Type.Scalar() {
	case TypeNull:
		return ""
	case TypeWideString, TypeAnsiString:
		return v.Str
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		return fmt.Sprintf("%d", v.I64)
	case TypeUInt8, TypeUInt16, TypeUInt32, TypeUInt64:
		return fmt.Sprintf("%d", v.U64)
	case TypeReal32, TypeReal64:
		return fmt.Sprintf("%g", v.F64)
	case TypeBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case TypeBinary:
		return fmt.Sprintf("%X", v.Bytes)
	case TypeGUID:
		return v.GUID.String()
	case TypeSize:
		return fmt.Sprintf("%d", v.U64)
	case TypeFILETIME:
		return v.FileTime.ISO8601()
	case TypeSYSTEMTIME:
		return v.SysTime.Time().Format("2006-01-02T15:04:05.000Z")
	case TypeSID:
		return v.SID.String()
	case TypeHexInt32:
		return fmt.Sprintf("0x%x", uint32(v.U64))
	case TypeHexInt64:
		return fmt.Sprintf("0x%x", v.U64)
	}
	// Unrecognised type code: Str carries the recovered placeholder text.
	return v.Str
}

// windows1252 decodes legacy narrow (AnsiString) text.
var windows1252 = charmap.Windows1252

// DecodeValue decodes length bytes (or, for fixed-width scalars, the
// type's native width) from r according to typ.
func DecodeValue(r *Reader, typ Type, length int) (Value, error) {
	if typ.IsArray() {
		return decodeArray(r, typ, length)
	}
	return decodeScalar(r, typ, length)
}

func decodeScalar(r *Reader, typ Type, length int) (Value, error) {
	v := Value{Type: typ}
	switch typ {
	case TypeNull:
		return v, nil
	case TypeWideString:
		n := length / 2
		s, err := r.ReadUTF16(n)
		if err != nil {
			return v, err
		}
		v.Str = s
		return v, nil
	case TypeAnsiString:
		raw, err := r.ReadBytes(length)
		if err != nil {
			return v, err
		}
		dec, derr := windows1252.NewDecoder().Bytes(raw)
		if derr != nil {
			v.Str = "(invalid)"
			return v, nil
		}
		v.Str = string(dec)
		return v, nil
	case TypeInt8:
		x, err := r.ReadI8()
		v.I64 = int64(x)
		return v, err
	case TypeUInt8:
		x, err := r.ReadU8()
		v.U64 = uint64(x)
		return v, err
	case TypeInt16:
		x, err := r.ReadI16()
		v.I64 = int64(x)
		return v, err
	case TypeUInt16:
		x, err := r.ReadU16()
		v.U64 = uint64(x)
		return v, err
	case TypeInt32:
		x, err := r.ReadI32()
		v.I64 = int64(x)
		return v, err
	case TypeUInt32:
		x, err := r.ReadU32()
		v.U64 = uint64(x)
		return v, err
	case TypeInt64:
		x, err := r.ReadI64()
		v.I64 = x
		return v, err
	case TypeUInt64:
		x, err := r.ReadU64()
		v.U64 = x
		return v, err
	case TypeReal32:
		x, err := r.ReadF32()
		v.F64 = float64(x)
		return v, err
	case TypeReal64:
		x, err := r.ReadF64()
		v.F64 = x
		return v, err
	case TypeBool:
		x, err := r.ReadI32()
		v.Bool = x != 0
		return v, err
	case TypeBinary:
		b, err := r.ReadBytes(length)
		v.Bytes = append([]byte(nil), b...)
		return v, err
	case TypeGUID:
		g, err := r.ReadGUID()
		v.GUID = g
		return v, err
	case TypeSize:
		// Size is platform word sized; EVTX payloads are 64-bit.
		if length == 4 {
			x, err := r.ReadU32()
			v.U64 = uint64(x)
			return v, err
		}
		x, err := r.ReadU64()
		v.U64 = x
		return v, err
	case TypeFILETIME:
		f, err := r.ReadFILETIME()
		v.FileTime = f
		return v, err
	case TypeSYSTEMTIME:
		s, err := r.ReadSYSTEMTIME()
		v.SysTime = s
		return v, err
	case TypeSID:
		s, err := r.ReadSID()
		v.SID = s
		return v, err
	case TypeHexInt32:
		x, err := r.ReadU32()
		v.U64 = uint64(x)
		return v, err
	case TypeHexInt64:
		x, err := r.ReadU64()
		v.U64 = x
		return v, err
	case TypeBinXmlFragment:
		b, err := r.ReadBytes(length)
		v.Fragment = b
		return v, err
	default:
		return recoverUnknownValue(r, typ, length)
	}
}

// recoverUnknownValue handles a type code decodeScalar does not recognise.
// It discards the declared payload length (so a caller that knows the exact
// on-disk size, e.g. a substitution descriptor, stays aligned for whatever
// follows) and substitutes a placeholder string rather than returning an
// error, matching the tolerant-decoding policy applied elsewhere in this
// package. Callers whose length is 0 (an OpValue token with no explicit
// length, the only other caller of decodeScalar) simply get the placeholder
// with nothing skipped.
func recoverUnknownValue(r *Reader, typ Type, length int) (Value, error) {
	if length > 0 {
		r.ReadBytes(length)
	}
	logging.Log("value", "unknown value type 0x%02x, substituting placeholder", byte(typ))
	return Value{Type: typ, Str: "(invalid)"}, nil
}

// elemSize returns the fixed on-disk width of one element of the array's
// scalar element type, used to compute the element count from a declared
// byte length.
func elemSize(scalar Type) (int, bool) {
	switch scalar {
	case TypeInt8, TypeUInt8:
		return 1, true
	case TypeInt16, TypeUInt16:
		return 2, true
	case TypeInt32, TypeUInt32, TypeReal32, TypeHexInt32, TypeBool:
		return 4, true
	case TypeInt64, TypeUInt64, TypeReal64, TypeFILETIME, TypeSize, TypeHexInt64:
		return 8, true
	case TypeGUID:
		return 16, true
	}
	return 0, false
}

func decodeArray(r *Reader, typ Type, length int) (Value, error) {
	scalar := typ.Scalar()
	v := Value{Type: typ}

	switch scalar {
	case TypeWideString, TypeAnsiString, TypeBinary, TypeSID, TypeBinXmlFragment:
		// Variable-width element types are not decodable as a packed
		// array without per-element length prefixes; EVTX does not use
		// the array-of-string form for these, so surface the declared
		// bytes as a single opaque element rather than guessing a split.
		sub, err := decodeScalar(r, scalar, length)
		if err != nil {
			return v, err
		}
		v.Array = []Value{sub}
		return v, nil
	}

	size, ok := elemSize(scalar)
	if !ok {
		placeholder, _ := recoverUnknownValue(r, scalar, length)
		v.Array = []Value{placeholder}
		return v, nil
	}
	count := length / size
	v.Array = make([]Value, 0, count)
	for i := 0; i < count; i++ {
		el, err := decodeScalar(r, scalar, size)
		if err != nil {
			return v, err
		}
		v.Array = append(v.Array, el)
	}
	return v, nil
}
