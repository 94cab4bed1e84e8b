package music

import (
	"sync"

	"github.com/JeanRibes/seqloop/shared"
)

const DEFAULT_PPQN = 192

// one 4/4 measure at the default resolution
const DEFAULT_LENGTH = Pulse(4 * DEFAULT_PPQN)

// Pattern is one loop slot. The embedded mutex is the coarse per-pattern
// lock: edits and playback reads both take it.
type Pattern struct {
	slot    int
	name    string
	bus     uint8
	channel uint8

	events *EventList

	playing bool
	queued  bool
	armed   bool // recording
	oneshot bool

	sync.Mutex
}

func NewPattern(slot int, length Pulse) *Pattern {
	return &Pattern{
		slot:    slot,
		channel: FreeChannel,
		events:  NewEventList(length),
	}
}

func (p *Pattern) Slot() int { return p.slot }

func (p *Pattern) Name() string {
	p.Lock()
	defer p.Unlock()
	if p.name == "" {
		return shared.SlotName(p.slot)
	}
	return p.name
}

func (p *Pattern) SetName(name string) {
	p.Lock()
	p.name = name
	p.Unlock()
}

// Bus is the nominal output bus.
func (p *Pattern) Bus() uint8 {
	p.Lock()
	defer p.Unlock()
	return p.bus
}

func (p *Pattern) SetBus(bus uint8) {
	p.Lock()
	p.bus = bus
	p.Unlock()
}

// Channel is FreeChannel when events keep their own channel.
func (p *Pattern) Channel() uint8 {
	p.Lock()
	defer p.Unlock()
	return p.channel
}

func (p *Pattern) SetChannel(ch uint8) {
	p.Lock()
	p.channel = ch
	p.Unlock()
}

func (p *Pattern) Length() Pulse {
	p.Lock()
	defer p.Unlock()
	return p.events.Length()
}

func (p *Pattern) SetLength(length Pulse) {
	p.Lock()
	p.events.SetLength(length)
	p.events.VerifyAndLink(length)
	p.Unlock()
}

func (p *Pattern) IsPlaying() bool {
	p.Lock()
	defer p.Unlock()
	return p.playing
}

func (p *Pattern) SetPlaying(on bool) {
	p.Lock()
	p.playing = on
	p.queued = false
	p.Unlock()
}

func (p *Pattern) TogglePlaying() bool {
	p.Lock()
	defer p.Unlock()
	p.playing = !p.playing
	p.queued = false
	return p.playing
}

func (p *Pattern) IsQueued() bool {
	p.Lock()
	defer p.Unlock()
	return p.queued
}

// ToggleQueued flips the play state at the next loop boundary.
func (p *Pattern) ToggleQueued() bool {
	p.Lock()
	defer p.Unlock()
	p.queued = !p.queued
	return p.queued
}

func (p *Pattern) IsArmed() bool {
	p.Lock()
	defer p.Unlock()
	return p.armed
}

func (p *Pattern) SetArmed(on bool) {
	p.Lock()
	p.armed = on
	p.Unlock()
}

// SetOneShot plays the pattern once from the next boundary, then mutes it.
func (p *Pattern) SetOneShot(on bool) {
	p.Lock()
	p.oneshot = on
	if on {
		p.queued = !p.playing
	}
	p.Unlock()
}

func (p *Pattern) IsOneShot() bool {
	p.Lock()
	defer p.Unlock()
	return p.oneshot
}

// Edit runs fn with the editing interface while holding the pattern lock.
func (p *Pattern) Edit(fn func(Editor)) {
	p.Lock()
	defer p.Unlock()
	fn(p.events)
}

// View runs fn with the read-only interface while holding the lock.
func (p *Pattern) View(fn func(Player)) {
	p.Lock()
	defer p.Unlock()
	fn(p.events)
}

// Play visits the events due in the absolute pulse range [from, to),
// folding it onto the loop. Events sitting exactly on the loop end go out
// with the segment that reaches it.
func (p *Pattern) Play(from, to Pulse, fn func(*Event)) {
	p.Lock()
	defer p.Unlock()
	length := p.events.Length()
	if length <= 0 || to <= from || from < 0 {
		return
	}
	for start := from; start < to; {
		loopStart := start - start%length
		loopEnd := loopStart + length
		end := min(to, loopEnd)
		upper := end - loopStart
		if end == loopEnd {
			upper++
		}
		p.events.Range(start-loopStart, upper, func(e *Event) bool {
			fn(e)
			return true
		})
		start = end
	}
}

// CrossesBoundary reports whether [from, to) reaches the start of a loop
// after from.
func (p *Pattern) CrossesBoundary(from, to Pulse) bool {
	length := p.Length()
	if length <= 0 {
		return false
	}
	return from/length != to/length
}

// ApplyQueue toggles a queued pattern; a finished one-shot mutes itself.
// The transport calls it at the pattern's loop boundary.
func (p *Pattern) ApplyQueue() (changed bool) {
	p.Lock()
	defer p.Unlock()
	if p.oneshot && p.playing && !p.queued {
		p.playing = false
		p.oneshot = false
		return true
	}
	if p.queued {
		p.playing = !p.playing
		p.queued = false
		return true
	}
	return false
}

// Record stores an incoming event at its loop position and links it.
func (p *Pattern) Record(tick Pulse, e *Event) bool {
	p.Lock()
	defer p.Unlock()
	if !p.armed {
		return false
	}
	length := p.events.Length()
	if length > 0 {
		tick %= length
		if tick < 0 {
			tick += length
		}
	} else if tick < 0 {
		tick = 0
	}
	e.Timestamp = tick
	p.events.Add(e)
	p.events.LinkNew()
	return true
}

type PatternStats struct {
	Slot     int
	Name     string
	Length   Pulse
	Events   int
	Notes    int
	Dangling int
	Playing  bool
	Queued   bool
	Armed    bool
}

func (p *Pattern) Stats() PatternStats {
	name := p.Name()
	p.Lock()
	defer p.Unlock()
	return PatternStats{
		Slot:     p.slot,
		Name:     name,
		Length:   p.events.Length(),
		Events:   p.events.Count(),
		Notes:    p.events.NoteCount(),
		Dangling: p.events.DanglingCount(),
		Playing:  p.playing,
		Queued:   p.queued,
		Armed:    p.armed,
	}
}
