package binxml

import (
	"fmt"
	"time"
)

// filetimeEpochDelta100ns is the number of 100-ns intervals between the
// FILETIME epoch (1601-01-01) and the Unix epoch (1970-01-01).
const filetimeEpochDelta100ns = 116444736000000000

// FILETIME is a 64-bit count of 100-nanosecond intervals since
// 1601-01-01T00:00:00Z.
type FILETIME uint64

// Time converts the FILETIME to a UTC time.Time.
func (f FILETIME) Time() time.Time {
	unix100ns := int64(f) - filetimeEpochDelta100ns
	sec := unix100ns / 10000000
	nsec := (unix100ns % 10000000) * 100
	return time.Unix(sec, nsec).UTC()
}

// ISO8601 formats the FILETIME as "2006-01-02T15:04:05.000000Z".
func (f FILETIME) ISO8601() string {
	return f.Time().Format("2006-01-02T15:04:05.000000Z")
}

// ReadFILETIME reads a 64-bit FILETIME.
func (r *Reader) ReadFILETIME() (FILETIME, error) {
	v, err := r.ReadU64()
	return FILETIME(v), err
}

// SYSTEMTIME is the 16-byte Windows SYSTEMTIME structure.
type SYSTEMTIME struct {
	Year         uint16
	Month        uint16
	DayOfWeek    uint16
	Day          uint16
	Hour         uint16
	Minute       uint16
	Second       uint16
	Milliseconds uint16
}

// Time converts the SYSTEMTIME to a UTC time.Time.
func (s SYSTEMTIME) Time() time.Time {
	return time.Date(int(s.Year), time.Month(s.Month), int(s.Day),
		int(s.Hour), int(s.Minute), int(s.Second), int(s.Milliseconds)*1e6, time.UTC)
}

// ReadSYSTEMTIME reads the fixed 16-byte SYSTEMTIME structure.
func (r *Reader) ReadSYSTEMTIME() (SYSTEMTIME, error) {
	var s SYSTEMTIME
	fields := []*uint16{&s.Year, &s.Month, &s.DayOfWeek, &s.Day, &s.Hour, &s.Minute, &s.Second, &s.Milliseconds}
	for _, f := range fields {
		v, err := r.ReadU16()
		if err != nil {
			return s, err
		}
		*f = v
	}
	return s, nil
}

// SID is a Windows security identifier.
type SID struct {
	Revision            byte
	IdentifierAuthority uint64 // 48-bit value, stored in the low 48 bits
	SubAuthorities      []uint32
}

// String renders the SID in canonical "S-R-A-S-S-..." form.
func (s SID) String() string {
	out := fmt.Sprintf("S-%d-%d", s.Revision, s.IdentifierAuthority)
	for _, sa := range s.SubAuthorities {
		out += fmt.Sprintf("-%d", sa)
	}
	return out
}

// ReadSID reads a SID: revision (1B), sub-authority count (1B), a 6-byte
// big-endian identifier authority, then count little-endian uint32
// sub-authorities.
func (r *Reader) ReadSID() (SID, error) {
	var s SID
	rev, err := r.ReadU8()
	if err != nil {
		return s, err
	}
	count, err := r.ReadU8()
	if err != nil {
		return s, err
	}
	authBytes, err := r.ReadBytes(6)
	if err != nil {
		return s, err
	}
	var auth uint64
	for _, b := range authBytes {
		auth = auth<<8 | uint64(b)
	}
	s.Revision = rev
	s.IdentifierAuthority = auth
	s.SubAuthorities = make([]uint32, count)
	for i := range s.SubAuthorities {
		v, err := r.ReadU32()
		if err != nil {
			return s, err
		}
		s.SubAuthorities[i] = v
	}
	return s, nil
}
