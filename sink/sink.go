// Package sink defines the output-side capability set consumed by a
// rendered record's element tree, and two implementations: an XML 1.0
// writer and a JSON document builder.
package sink

import "sync"

// Sink is the capability set the evaluator (via evtx, walking a rendered
// binxml.Node tree) drives to stream out one record. Calls for a single
// record always nest correctly: BeginElement/EndElement pairs balance,
// and Attribute/Text/WriteValue are only ever called on the innermost
// open element.
type Sink interface {
	BeginElement(name string) error
	Attribute(name, value string) error
	Text(value string) error
	EndElement() error
	WriteValue(value string) error
}

// RecordSink additionally brackets a whole record, so implementations can
// flush/finalize per record (e.g. close a JSON object, write a document
// separator).
type RecordSink interface {
	Sink
	BeginRecord() error
	EndRecord() error
}

// Mutex wraps any RecordSink with a mutex held for the full
// BeginRecord..EndRecord span, so concurrent chunk workers produce
// contiguous per-record output on a shared writer.
type Mutex struct {
	mu   sync.Mutex
	next RecordSink
}

// NewMutex wraps next.
func NewMutex(next RecordSink) *Mutex {
	return &Mutex{next: next}
}

func (m *Mutex) BeginRecord() error {
	m.mu.Lock()
	return m.next.BeginRecord()
}

func (m *Mutex) EndRecord() error {
	defer m.mu.Unlock()
	return m.next.EndRecord()
}

func (m *Mutex) BeginElement(name string) error     { return m.next.BeginElement(name) }
func (m *Mutex) Attribute(name, value string) error { return m.next.Attribute(name, value) }
func (m *Mutex) Text(value string) error            { return m.next.Text(value) }
func (m *Mutex) EndElement() error                  { return m.next.EndElement() }
func (m *Mutex) WriteValue(value string) error      { return m.next.WriteValue(value) }
