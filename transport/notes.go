package transport

import (
	"cmp"
	"slices"

	"github.com/JeanRibes/seqloop/music"
)

// Note is one sounding note, as sent on the wire.
type Note struct {
	Slot    int
	Bus     int
	Channel uint8
	Key     uint8
}

// NoteTracker counts the note-ons sent without their note-off, so that
// stopping can silence them.
type NoteTracker struct {
	on map[Note]int
}

func NewNoteTracker() *NoteTracker {
	return &NoteTracker{on: map[Note]int{}}
}

// Track follows one sent event. channel is the channel it went out on.
func (n *NoteTracker) Track(slot, bus int, channel uint8, ev *music.Event) {
	if !ev.IsNoteMsg() {
		return
	}
	if channel == music.FreeChannel {
		channel = ev.Channel()
	}
	key := Note{Slot: slot, Bus: bus, Channel: channel & 0x0F, Key: ev.Note()}
	switch {
	case ev.IsNoteOn():
		n.on[key]++
	case ev.IsNoteOff():
		if n.on[key] <= 1 {
			delete(n.on, key)
		} else {
			n.on[key]--
		}
	}
}

func (n *NoteTracker) Count() int { return len(n.on) }

// Sounding lists the held notes in a stable order.
func (n *NoteTracker) Sounding() []Note {
	res := make([]Note, 0, len(n.on))
	for k := range n.on {
		res = append(res, k)
	}
	slices.SortFunc(res, func(a, b Note) int {
		return cmp.Or(cmp.Compare(a.Bus, b.Bus), cmp.Compare(a.Channel, b.Channel),
			cmp.Compare(a.Key, b.Key), cmp.Compare(a.Slot, b.Slot))
	})
	return res
}

// Release forgets and returns the notes matching keep, or all of them
// when keep is nil.
func (n *NoteTracker) Release(keep func(Note) bool) []Note {
	var res []Note
	for _, k := range n.Sounding() {
		if keep == nil || keep(k) {
			res = append(res, k)
			delete(n.on, k)
		}
	}
	return res
}
