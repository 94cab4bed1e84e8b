package music

import (
	"math/rand/v2"
	"slices"
	"sort"
)

const NOTE_OFF_MARGIN = Pulse(3)

const EVENTS_PREALLOCATION = 128

// EventList holds the events of one pattern in (timestamp, rank) order.
// Bulk Append leaves the list unsorted until Sort is called. Not safe for
// concurrent use; Pattern serializes access.
type EventList struct {
	events        []*Event
	length        Pulse
	noteOffMargin Pulse
	modified      bool
	hasTempo      bool
	hasTimeSig    bool
	rnd           *rand.Rand
}

func NewEventList(length Pulse) *EventList {
	return &EventList{
		events:        make([]*Event, 0, EVENTS_PREALLOCATION),
		length:        length,
		noteOffMargin: NOTE_OFF_MARGIN,
		rnd:           rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// SetRand replaces the generator used by the randomize operations.
func (l *EventList) SetRand(r *rand.Rand) { l.rnd = r }

func (l *EventList) Length() Pulse         { return l.length }
func (l *EventList) SetLength(length Pulse) { l.length = length }

func (l *EventList) NoteOffMargin() Pulse     { return l.noteOffMargin }
func (l *EventList) SetNoteOffMargin(m Pulse) { l.noteOffMargin = m }

func (l *EventList) IsModified() bool       { return l.modified }
func (l *EventList) Unmodify()              { l.modified = false }
func (l *EventList) HasTempo() bool         { return l.hasTempo }
func (l *EventList) HasTimeSignature() bool { return l.hasTimeSig }

func (l *EventList) Count() int  { return len(l.events) }
func (l *EventList) Empty() bool { return len(l.events) == 0 }

// At returns the i-th event in the current order.
func (l *EventList) At(i int) *Event { return l.events[i] }

// Events exposes the backing slice; callers must not keep it across edits.
func (l *EventList) Events() []*Event { return l.events }

func (l *EventList) Clear() {
	if len(l.events) > 0 {
		l.modified = true
	}
	l.events = l.events[:0]
	l.hasTempo = false
	l.hasTimeSig = false
}

// Append inserts without sorting.
func (l *EventList) Append(e *Event) bool {
	l.events = append(l.events, e)
	l.modified = true
	if e.IsTempo() {
		l.hasTempo = true
	}
	if e.IsTimeSignature() {
		l.hasTimeSig = true
	}
	return true
}

// Add is Append followed by Sort.
func (l *EventList) Add(e *Event) bool {
	ok := l.Append(e)
	if ok {
		l.Sort()
	}
	return ok
}

func (l *EventList) Sort() {
	slices.SortStableFunc(l.events, compareEvents)
}

func (l *EventList) IsSorted() bool {
	return slices.IsSortedFunc(l.events, compareEvents)
}

// Merge copies the events of other into the list and sorts the result.
// Duplicates are kept.
func (l *EventList) Merge(other *EventList, presort bool) bool {
	if presort {
		other.Sort()
	}
	for _, e := range other.events {
		l.Append(e.Clone())
	}
	l.Sort()
	return true
}

func (l *EventList) GetMaxTimestamp() Pulse {
	if len(l.events) == 0 {
		return 0
	}
	return l.events[len(l.events)-1].Timestamp
}

// Range calls fn for each event with from <= t < to, in order, stopping
// early when fn returns false. The list must be sorted.
func (l *EventList) Range(from, to Pulse, fn func(*Event) bool) {
	i := sort.Search(len(l.events), func(i int) bool {
		return l.events[i].Timestamp >= from
	})
	for ; i < len(l.events); i++ {
		e := l.events[i]
		if e.Timestamp >= to {
			return
		}
		if !fn(e) {
			return
		}
	}
}

// ClearLinks unmarks and unlinks every event.
func (l *EventList) ClearLinks() {
	for _, e := range l.events {
		e.Unmark()
		e.Unlink()
	}
}

// LinkNew sorts, then pairs each unlinked note-on with the nearest
// following unlinked note-off of the same channel and note.
func (l *EventList) LinkNew() {
	l.Sort()
	for i, on := range l.events {
		if !on.onLinkable() {
			continue
		}
		for _, off := range l.events[i+1:] {
			if off.offLinkable() && off.Channel() == on.Channel() && off.Data1 == on.Data1 {
				on.LinkTo(off)
				off.LinkTo(on)
				break
			}
		}
	}
}

// LinkTempos links each tempo event to the next one, for drawing tempo
// lines. The last tempo stays unlinked.
func (l *EventList) LinkTempos() {
	var prev *Event
	for _, e := range l.events {
		if !e.IsTempo() {
			continue
		}
		if prev != nil {
			prev.LinkTo(e)
		}
		prev = e
	}
}

// VerifyAndLink relinks the whole list. With a positive length, events
// outside [0, length] are dropped along with their partners.
func (l *EventList) VerifyAndLink(length Pulse) {
	l.ClearLinks()
	l.LinkNew()
	if length > 0 {
		l.markOutOfRange(length)
		l.RemoveMarked()
	}
	l.LinkTempos()
}

func (l *EventList) markOutOfRange(length Pulse) {
	for _, e := range l.events {
		if e.Timestamp > length || e.Timestamp < 0 {
			e.Mark()
			if e.IsLinked() {
				e.Link().Mark()
			}
		}
	}
}

// RemoveMarked deletes marked events and returns whether any went away.
func (l *EventList) RemoveMarked() bool {
	before := len(l.events)
	l.events = slices.DeleteFunc(l.events, func(e *Event) bool {
		if e.IsMarked() {
			if e.IsLinked() && !e.Link().IsMarked() {
				e.Link().Unlink()
			}
			return true
		}
		return false
	})
	removed := len(l.events) != before
	if removed {
		l.modified = true
		l.refreshFlags()
	}
	return removed
}

func (l *EventList) refreshFlags() {
	l.hasTempo = false
	l.hasTimeSig = false
	for _, e := range l.events {
		if e.IsTempo() {
			l.hasTempo = true
		}
		if e.IsTimeSignature() {
			l.hasTimeSig = true
		}
	}
}

func (l *EventList) UnmarkAll() {
	for _, e := range l.events {
		e.Unmark()
	}
}

// MarkSelected marks the selected events so RemoveMarked can drop them.
func (l *EventList) MarkSelected() bool {
	result := false
	for _, e := range l.events {
		if e.IsSelected() {
			e.Mark()
			result = true
		}
	}
	return result
}

func (l *EventList) RemoveSelected() bool {
	if !l.MarkSelected() {
		return false
	}
	return l.RemoveMarked()
}

// RemoveEvent drops one event by identity.
func (l *EventList) RemoveEvent(e *Event) bool {
	i := slices.Index(l.events, e)
	if i < 0 {
		return false
	}
	if e.IsLinked() && e.Link().Link() == e {
		e.Link().Unlink()
	}
	l.events = slices.Delete(l.events, i, i+1)
	l.modified = true
	l.refreshFlags()
	return true
}

func (l *EventList) UnpaintAll() {
	for _, e := range l.events {
		e.Unpaint()
	}
}

func (l *EventList) NoteCount() int {
	n := 0
	for _, e := range l.events {
		if e.IsNoteOn() {
			n++
		}
	}
	return n
}

// DanglingCount counts note-ons that found no note-off at the last link.
func (l *EventList) DanglingCount() int {
	n := 0
	for _, e := range l.events {
		if e.IsDangling() {
			n++
		}
	}
	return n
}

// NoteLength is the duration of a linked note-on. A note whose off wraps
// past the loop end is measured across the wrap. Dangling notes report
// false.
func (l *EventList) NoteLength(on *Event) (Pulse, bool) {
	if !on.IsNoteOn() || !on.IsLinked() {
		return 0, false
	}
	d := on.Link().Timestamp - on.Timestamp
	if d < 0 {
		d += l.length
	}
	return d, true
}

// Rescale converts every timestamp and the length to a new PPQN.
func (l *EventList) Rescale(oldPPQN, newPPQN int) bool {
	if oldPPQN <= 0 || newPPQN <= 0 {
		return false
	}
	for _, e := range l.events {
		e.Timestamp = rescaleTick(e.Timestamp, oldPPQN, newPPQN)
	}
	l.length = rescaleTick(l.length, oldPPQN, newPPQN)
	l.modified = true
	return true
}

func rescaleTick(t Pulse, oldPPQN, newPPQN int) Pulse {
	return t * Pulse(newPPQN) / Pulse(oldPPQN)
}
