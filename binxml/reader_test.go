package binxml

import (
	"errors"
	"testing"
)

func TestReader_Integers(t *testing.T) {
	buf := []byte{
		0x01,                   // u8
		0x34, 0x12,             // u16 = 0x1234
		0x78, 0x56, 0x34, 0x12, // u32 = 0x12345678
		0xEF, 0xCD, 0xAB, 0x89, 0x67, 0x45, 0x23, 0x01, // u64
	}
	r := NewReader(buf)

	t.Run("u8", func(t *testing.T) {
		v, err := r.ReadU8()
		if err != nil || v != 0x01 {
			t.Fatalf("ReadU8() = %v, %v", v, err)
		}
	})
	t.Run("u16", func(t *testing.T) {
		v, err := r.ReadU16()
		if err != nil || v != 0x1234 {
			t.Fatalf("ReadU16() = %#x, %v", v, err)
		}
	})
	t.Run("u32", func(t *testing.T) {
		v, err := r.ReadU32()
		if err != nil || v != 0x12345678 {
			t.Fatalf("ReadU32() = %#x, %v", v, err)
		}
	})
	t.Run("u64", func(t *testing.T) {
		v, err := r.ReadU64()
		if err != nil || v != 0x0123456789ABCDEF {
			t.Fatalf("ReadU64() = %#x, %v", v, err)
		}
	})
}

func TestReader_OutOfBounds(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02})
	if _, err := r.ReadU32(); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
}

func TestReader_Seek(t *testing.T) {
	r := NewReader([]byte{0, 1, 2, 3, 4, 5})
	if err := r.SeekAbs(3); err != nil {
		t.Fatalf("SeekAbs: %v", err)
	}
	v, _ := r.ReadU8()
	if v != 3 {
		t.Fatalf("expected byte 3, got %d", v)
	}
	if err := r.SeekRel(-2); err != nil {
		t.Fatalf("SeekRel: %v", err)
	}
	v, _ = r.ReadU8()
	if v != 2 {
		t.Fatalf("expected byte 2, got %d", v)
	}
	if err := r.SeekAbs(-1); err == nil {
		t.Fatal("expected error seeking negative")
	}
	if err := r.SeekAbs(100); err == nil {
		t.Fatal("expected error seeking past end")
	}
}

func TestReader_UTF16(t *testing.T) {
	// "Hi" in UTF-16LE
	buf := []byte{'H', 0x00, 'i', 0x00}
	r := NewReader(buf)
	s, err := r.ReadUTF16(2)
	if err != nil {
		t.Fatalf("ReadUTF16: %v", err)
	}
	if s != "Hi" {
		t.Fatalf("expected %q, got %q", "Hi", s)
	}
}

func TestReader_GUID(t *testing.T) {
	// {01234567-89AB-CDEF-0123-456789ABCDEF}
	buf := []byte{
		0x67, 0x45, 0x23, 0x01, // D1 little-endian
		0xAB, 0x89, // W1
		0xEF, 0xCD, // W2
		0x01, 0x23, 0x45, 0x67, 0x89, 0xAB, 0xCD, 0xEF, // B1
	}
	r := NewReader(buf)
	g, err := r.ReadGUID()
	if err != nil {
		t.Fatalf("ReadGUID: %v", err)
	}
	want := "01234567-89AB-CDEF-0123-456789ABCDEF"
	if g.String() != want {
		t.Fatalf("GUID.String() = %q, want %q", g.String(), want)
	}
}

func TestReader_Sub(t *testing.T) {
	r := NewReader([]byte{0, 1, 2, 3, 4, 5})
	sub, err := r.Sub(2, 3)
	if err != nil {
		t.Fatalf("Sub: %v", err)
	}
	if sub.Len() != 3 {
		t.Fatalf("expected len 3, got %d", sub.Len())
	}
	v, _ := sub.ReadU8()
	if v != 2 {
		t.Fatalf("expected first byte 2, got %d", v)
	}
	if r.Position() != 0 {
		t.Fatalf("Sub must not move the parent reader, got position %d", r.Position())
	}
}

func TestReader_Floats(t *testing.T) {
	r := NewReader([]byte{0, 0, 0x80, 0x3F}) // 1.0f32
	f, err := r.ReadF32()
	if err != nil || f != 1.0 {
		t.Fatalf("ReadF32() = %v, %v", f, err)
	}
}
