package music

// Editor is what the pattern editor and the file loaders get to touch.
// Bulk loaders Append then Sort and VerifyAndLink once.
type Editor interface {
	Append(e *Event) bool
	Add(e *Event) bool
	Sort()
	Clear()
	Merge(other *EventList, presort bool) bool
	VerifyAndLink(length Pulse)
	LinkNew()
	ClearLinks()
	RemoveEvent(e *Event) bool
	RemoveSelected() bool

	SelectEvents(from, to Pulse, status, cc byte, action Select) int
	SelectNoteEvents(from Pulse, noteH int, to Pulse, noteL int, action Select) int
	SelectAll()
	UnselectAll()

	QuantizeEvents(status, cc byte, snap, divide int, fixlink bool) bool
	RandomizeSelected(status byte, rng int) bool
	RandomizeSelectedNotes(jitter, rng int) bool
	MoveSelectedNotes(dtick Pulse, dnote int) bool
	StretchSelected(delta Pulse) bool
	GrowSelected(delta Pulse, snap int) bool
	TransposeNotes(tn int) bool
	CopySelected(clip *EventList) bool
	PasteSelected(clip *EventList, tick Pulse, note int) bool
	Rescale(oldPPQN, newPPQN int) bool

	SetLength(length Pulse)
}

// Player is the read-only view used by the transport.
type Player interface {
	Length() Pulse
	Count() int
	GetMaxTimestamp() Pulse
	Range(from, to Pulse, fn func(*Event) bool)
}

var (
	_ Editor = (*EventList)(nil)
	_ Player = (*EventList)(nil)
)
