package domain

import "strings"

// Instrument is a case-insensitive symbol identifier such as "BTCUSDT".
type Instrument string

// NewInstrument normalises a raw symbol (trimmed, upper-cased).
func NewInstrument(s string) Instrument {
	return Instrument(strings.ToUpper(strings.TrimSpace(s)))
}

func (i Instrument) String() string { return string(i) }

// Equal reports case-insensitive identity.
func (i Instrument) Equal(o Instrument) bool {
	return strings.EqualFold(strings.TrimSpace(string(i)), strings.TrimSpace(string(o)))
}

// Key is the canonical map key for the instrument.
func (i Instrument) Key() string {
	return strings.ToUpper(strings.TrimSpace(string(i)))
}

func (i Instrument) IsZero() bool { return i.Key() == "" }

// InstrumentList is an ordered set of instruments with a current selection.
// The index is valid whenever the list is non-empty. Not safe for concurrent use.
type InstrumentList struct {
	items []Instrument
	index int
}

// NewInstrumentList dedups items (case-insensitive, first wins) and selects
// active if present, otherwise index 0.
func NewInstrumentList(items []Instrument, active Instrument) *InstrumentList {
	l := &InstrumentList{items: make([]Instrument, 0, len(items))}
	for _, it := range items {
		l.Add(it)
	}
	if !active.IsZero() {
		l.Select(active)
	}
	return l
}

func (l *InstrumentList) Len() int { return len(l.items) }

// Items returns a copy of the list in order.
func (l *InstrumentList) Items() []Instrument {
	out := make([]Instrument, len(l.items))
	copy(out, l.items)
	return out
}

func (l *InstrumentList) Index() int { return l.index }

// Current returns the selected instrument, false when the list is empty.
func (l *InstrumentList) Current() (Instrument, bool) {
	if len(l.items) == 0 {
		return "", false
	}
	return l.items[l.index], true
}

func (l *InstrumentList) IndexOf(inst Instrument) int {
	for i, it := range l.items {
		if it.Equal(inst) {
			return i
		}
	}
	return -1
}

func (l *InstrumentList) Contains(inst Instrument) bool { return l.IndexOf(inst) >= 0 }

// Add appends inst unless an equal instrument is already present.
func (l *InstrumentList) Add(inst Instrument) bool {
	inst = NewInstrument(inst.String())
	if inst.IsZero() || l.Contains(inst) {
		return false
	}
	l.items = append(l.items, inst)
	return true
}

// Remove deletes inst. When the selected instrument is removed the selection
// falls back to the element that took its place, wrapping to 0 at the end.
// wasActive reports whether the removed instrument was the selection.
func (l *InstrumentList) Remove(inst Instrument) (removed, wasActive bool) {
	i := l.IndexOf(inst)
	if i < 0 {
		return false, false
	}
	wasActive = i == l.index
	l.items = append(l.items[:i], l.items[i+1:]...)

	switch {
	case len(l.items) == 0:
		l.index = 0
	case i < l.index:
		l.index--
	case l.index >= len(l.items):
		l.index = 0
	}
	return true, wasActive
}

// Step moves the selection by delta, wrapping in either direction.
func (l *InstrumentList) Step(delta int) (Instrument, bool) {
	n := len(l.items)
	if n == 0 {
		return "", false
	}
	l.index = ((l.index+delta)%n + n) % n
	return l.items[l.index], true
}

// Select moves the selection to inst if it is in the list.
func (l *InstrumentList) Select(inst Instrument) bool {
	i := l.IndexOf(inst)
	if i < 0 {
		return false
	}
	l.index = i
	return true
}
