package music

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// Pulse is the sequencer time unit, PPQN pulses per quarter note.
type Pulse int64

// status nibbles and system bytes
const (
	StatusNoteOff         byte = 0x80
	StatusNoteOn          byte = 0x90
	StatusAftertouch      byte = 0xA0
	StatusControlChange   byte = 0xB0
	StatusProgramChange   byte = 0xC0
	StatusChannelPressure byte = 0xD0
	StatusPitchWheel      byte = 0xE0
	StatusSysEx           byte = 0xF0
	StatusMeta            byte = 0xFF
)

const (
	MetaTrackName byte = 0x03
	MetaTempo     byte = 0x51
	MetaTimeSig   byte = 0x58
)

// FreeChannel asks the bus to keep the channel stored in the event.
const FreeChannel uint8 = 0x80

const MAX_DATA = 127

type Event struct {
	Timestamp Pulse
	Status    byte
	Data1     byte
	Data2     byte
	// Meta holds the raw SMF bytes of meta and sysex events.
	Meta []byte

	link     *Event
	selected bool
	marked   bool
	painted  bool
}

func NewNoteOn(ts Pulse, ch, note, vel uint8) *Event {
	return &Event{Timestamp: ts, Status: StatusNoteOn | (ch & 0x0F), Data1: note, Data2: vel}
}

func NewNoteOff(ts Pulse, ch, note, vel uint8) *Event {
	return &Event{Timestamp: ts, Status: StatusNoteOff | (ch & 0x0F), Data1: note, Data2: vel}
}

func NewControlChange(ts Pulse, ch, cc, value uint8) *Event {
	return &Event{Timestamp: ts, Status: StatusControlChange | (ch & 0x0F), Data1: cc, Data2: value}
}

func NewProgramChange(ts Pulse, ch, program uint8) *Event {
	return &Event{Timestamp: ts, Status: StatusProgramChange | (ch & 0x0F), Data1: program}
}

func NewTempo(ts Pulse, bpm float64) *Event {
	return &Event{Timestamp: ts, Status: StatusMeta, Meta: smf.MetaTempo(bpm)}
}

func NewTimeSignature(ts Pulse, num, denom uint8) *Event {
	return &Event{Timestamp: ts, Status: StatusMeta, Meta: smf.MetaMeter(num, denom)}
}

// FromMessage copies a wire message into a new event. Realtime and
// unknown messages are refused.
func FromMessage(ts Pulse, msg midi.Message) (*Event, bool) {
	b := msg.Bytes()
	if len(b) == 0 {
		return nil, false
	}
	ev := &Event{Timestamp: ts, Status: b[0]}
	switch {
	case b[0] == StatusSysEx:
		ev.Meta = append([]byte(nil), b...)
	case b[0] < StatusSysEx:
		if len(b) > 1 {
			ev.Data1 = b[1]
		}
		if len(b) > 2 {
			ev.Data2 = b[2]
		}
	default:
		return nil, false
	}
	return ev, true
}

// Type is the status without its channel nibble.
func (e *Event) Type() byte {
	if e.Status >= StatusSysEx {
		return e.Status
	}
	return e.Status & 0xF0
}

func (e *Event) Channel() uint8 {
	if !e.IsChannelMsg() {
		return 0
	}
	return e.Status & 0x0F
}

func (e *Event) SetChannel(ch uint8) {
	if e.IsChannelMsg() {
		e.Status = e.Type() | (ch & 0x0F)
	}
}

func (e *Event) IsChannelMsg() bool {
	return e.Status >= StatusNoteOff && e.Status < StatusSysEx
}

// IsTwoBytes reports program change and channel pressure, which carry a
// single data byte.
func (e *Event) IsTwoBytes() bool {
	t := e.Type()
	return t == StatusProgramChange || t == StatusChannelPressure
}

func (e *Event) IsNoteOn() bool {
	return e.Type() == StatusNoteOn && e.Data2 > 0
}

// IsNoteOff includes the running-status form, a note-on with velocity 0.
func (e *Event) IsNoteOff() bool {
	t := e.Type()
	return t == StatusNoteOff || (t == StatusNoteOn && e.Data2 == 0)
}

func (e *Event) IsNote() bool {
	t := e.Type()
	return t == StatusNoteOn || t == StatusNoteOff
}

func (e *Event) IsNoteMsg() bool {
	return e.IsNote() || e.Type() == StatusAftertouch
}

func (e *Event) IsMeta() bool  { return e.Status == StatusMeta }
func (e *Event) IsSysEx() bool { return e.Status == StatusSysEx }

func (e *Event) metaType() byte {
	if e.IsMeta() && len(e.Meta) > 1 {
		return e.Meta[1]
	}
	return 0
}

func (e *Event) IsTempo() bool         { return e.metaType() == MetaTempo }
func (e *Event) IsTimeSignature() bool { return e.metaType() == MetaTimeSig }

func (e *Event) Tempo() (bpm float64, ok bool) {
	if !e.IsTempo() {
		return 0, false
	}
	ok = smf.Message(e.Meta).GetMetaTempo(&bpm)
	return
}

func (e *Event) TimeSignature() (num, denom uint8, ok bool) {
	if !e.IsTimeSignature() {
		return 0, 0, false
	}
	ok = smf.Message(e.Meta).GetMetaMeter(&num, &denom)
	return
}

func (e *Event) Note() uint8     { return e.Data1 }
func (e *Event) Velocity() uint8 { return e.Data2 }

// Rank breaks ties between events sharing a timestamp: tempo and time
// signature first, then the rest of the meta events, note-offs, channel
// setup messages, and note-ons last.
func (e *Event) Rank() int {
	switch {
	case e.IsTempo():
		return 0
	case e.IsTimeSignature():
		return 1
	case e.IsMeta():
		return 2
	case e.IsSysEx():
		return 3
	case e.IsNoteOff():
		return 0x100 + int(e.Data1)
	case e.IsNoteOn():
		return 0x400 + int(e.Data1)
	}
	switch e.Type() {
	case StatusProgramChange:
		return 0x200
	case StatusControlChange:
		return 0x210
	case StatusAftertouch, StatusChannelPressure, StatusPitchWheel:
		return 0x220
	}
	return 0x300
}

// Less orders by timestamp, then rank.
func (e *Event) Less(o *Event) bool {
	if e.Timestamp != o.Timestamp {
		return e.Timestamp < o.Timestamp
	}
	return e.Rank() < o.Rank()
}

func compareEvents(a, b *Event) int {
	switch {
	case a.Timestamp < b.Timestamp:
		return -1
	case a.Timestamp > b.Timestamp:
		return 1
	}
	return a.Rank() - b.Rank()
}

func (e *Event) Link() *Event   { return e.link }
func (e *Event) IsLinked() bool { return e.link != nil }

func (e *Event) LinkTo(o *Event) { e.link = o }
func (e *Event) Unlink()         { e.link = nil }

// IsDangling marks a note-on that found no note-off while linking.
func (e *Event) IsDangling() bool {
	return e.IsNoteOn() && e.link == nil
}

func (e *Event) onLinkable() bool  { return e.IsNoteOn() && e.link == nil }
func (e *Event) offLinkable() bool { return e.IsNoteOff() && e.link == nil }

func (e *Event) Select()          { e.selected = true }
func (e *Event) Unselect()        { e.selected = false }
func (e *Event) IsSelected() bool { return e.selected }

func (e *Event) Mark()          { e.marked = true }
func (e *Event) Unmark()        { e.marked = false }
func (e *Event) IsMarked() bool { return e.marked }

func (e *Event) Paint()          { e.painted = true }
func (e *Event) Unpaint()        { e.painted = false }
func (e *Event) IsPainted() bool { return e.painted }

// TransposeNote shifts the note number, refusing results outside 0..127.
func (e *Event) TransposeNote(tn int) bool {
	n := int(e.Data1) + tn
	if n < 0 || n > MAX_DATA {
		return false
	}
	e.Data1 = byte(n)
	return true
}

// Bytes is the wire form with the stored channel.
func (e *Event) Bytes() []byte {
	switch {
	case e.IsMeta() || e.IsSysEx():
		return e.Meta
	case e.IsTwoBytes():
		return []byte{e.Status, e.Data1}
	}
	return []byte{e.Status, e.Data1, e.Data2}
}

// MessageOn renders the event for output, overriding the channel unless ch
// is FreeChannel. Meta events are not sent to ports and yield nil.
func (e *Event) MessageOn(ch uint8) midi.Message {
	if e.IsMeta() {
		return nil
	}
	b := append([]byte(nil), e.Bytes()...)
	if e.IsChannelMsg() && ch != FreeChannel {
		b[0] = e.Type() | (ch & 0x0F)
	}
	return midi.Message(b)
}

func (e *Event) Message() midi.Message {
	return e.MessageOn(FreeChannel)
}

// Clone copies the event without its link.
func (e *Event) Clone() *Event {
	c := *e
	c.link = nil
	if e.Meta != nil {
		c.Meta = append([]byte(nil), e.Meta...)
	}
	return &c
}

func (e *Event) String() string {
	if e.IsMeta() || e.IsSysEx() {
		return fmt.Sprintf("%6d 0x%02x meta %x", e.Timestamp, e.Status, e.Meta)
	}
	return fmt.Sprintf("%6d 0x%02x %3d %3d", e.Timestamp, e.Status, e.Data1, e.Data2)
}
