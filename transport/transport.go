// Package transport runs the screenset against the master bus: the pulse
// clock, loop playback, queueing, recording and the control loop.
package transport

import (
	"math"
	"os"
	"sync"
	"time"

	"github.com/JeanRibes/seqloop/control"
	"github.com/JeanRibes/seqloop/music"
	"github.com/JeanRibes/seqloop/mutes"
	"github.com/JeanRibes/seqloop/shared"
	charmlog "github.com/charmbracelet/log"
)

// Bus is what the transport needs from the master bus.
type Bus interface {
	Play(bus int, ev *music.Event, channel uint8) bool
	Flush()
	AllNotesOff()
	InitClock(tick music.Pulse)
	Stop()
	ContinueFrom(tick music.Pulse)
	Clock(tick music.Pulse)
	PollForMIDI() int
	GetMIDIEvent(ev *music.Event) (int, bool)
}

type Transport struct {
	set    *music.Screenset
	bus    Bus
	groups *mutes.MuteGroups
	out    *control.Out
	in     *control.In
	notes  *NoteTracker
	logger *charmlog.Logger

	tick      music.Pulse
	frac      float64
	bpm       float64
	running   bool
	recording bool
	// Thru echoes recorded input to the armed patterns' busses.
	Thru bool

	sink chan shared.Message

	sync.Mutex
}

func New(set *music.Screenset, bus Bus, logger *charmlog.Logger) *Transport {
	if logger == nil {
		logger = charmlog.NewWithOptions(os.Stdout, charmlog.Options{
			Level:        charmlog.InfoLevel,
			ReportCaller: true,
		})
	}
	return &Transport{
		set:    set,
		bus:    bus,
		notes:  NewNoteTracker(),
		logger: logger.WithPrefix("transport"),
		bpm:    shared.DEFAULT_BPM,
		Thru:   true,
	}
}

// SetControl attaches the feedback tables and the input mapping; both may
// be nil.
func (t *Transport) SetControl(out *control.Out, in *control.In) {
	t.Lock()
	t.out, t.in = out, in
	t.Unlock()
}

func (t *Transport) SetMuteGroups(g *mutes.MuteGroups) {
	t.Lock()
	t.groups = g
	t.Unlock()
}

// SetSink makes state changes visible to a UI. Notifications never block.
func (t *Transport) SetSink(sink chan shared.Message) {
	t.Lock()
	t.sink = sink
	t.Unlock()
}

func (t *Transport) notify(msg shared.Message) {
	if t.sink == nil {
		return
	}
	select {
	case t.sink <- msg:
	default:
		t.logger.Debug("ui sink full", "type", msg.Type)
	}
}

func (t *Transport) Tick() music.Pulse {
	t.Lock()
	defer t.Unlock()
	return t.tick
}

func (t *Transport) IsRunning() bool {
	t.Lock()
	defer t.Unlock()
	return t.running
}

func (t *Transport) IsRecording() bool {
	t.Lock()
	defer t.Unlock()
	return t.recording
}

func (t *Transport) BPM() float64 {
	t.Lock()
	defer t.Unlock()
	return t.bpm
}

func (t *Transport) SetBPM(bpm float64) {
	t.Lock()
	t.bpm = shared.ClampBPM(bpm)
	t.notify(shared.Message{Type: shared.BPM, Number: int(math.Round(t.bpm))})
	t.Unlock()
}

// Sounding is the number of notes currently held.
func (t *Transport) Sounding() int {
	t.Lock()
	defer t.Unlock()
	return t.notes.Count()
}

func (t *Transport) Start() {
	t.Lock()
	defer t.Unlock()
	t.start()
}

func (t *Transport) start() {
	if t.running {
		return
	}
	if t.tick == 0 {
		t.bus.InitClock(0)
	} else {
		t.bus.ContinueFrom(t.tick)
	}
	t.running = true
	t.frac = 0
	t.feedback(control.UIPlay, true)
	t.notify(shared.Message{Type: shared.PlayPause, Boolean: true, Number: int(t.tick)})
	t.logger.Info("start", "tick", t.tick, "bpm", t.bpm)
}

// Stop halts playback, silences every output and rewinds.
func (t *Transport) Stop() {
	t.Lock()
	defer t.Unlock()
	t.halt()
	t.tick = 0
	t.feedback(control.UIStop, true)
	t.notify(shared.Message{Type: shared.Stop})
}

// Pause halts playback and silences every output, keeping the position.
func (t *Transport) Pause() {
	t.Lock()
	defer t.Unlock()
	t.halt()
	t.feedback(control.UIPause, true)
	t.notify(shared.Message{Type: shared.PlayPause, Boolean: false, Number: int(t.tick)})
}

// Continue restarts from the paused position.
func (t *Transport) Continue() {
	t.Lock()
	defer t.Unlock()
	t.start()
}

func (t *Transport) halt() {
	t.running = false
	t.silence(nil)
	t.bus.AllNotesOff()
	t.bus.Stop()
	t.logger.Info("stop", "tick", t.tick)
}

// Panic silences everything without stopping.
func (t *Transport) Panic() {
	t.Lock()
	defer t.Unlock()
	t.silence(nil)
	t.bus.AllNotesOff()
}

// silence sends a note-off for each tracked note matching keep.
func (t *Transport) silence(keep func(Note) bool) {
	notes := t.notes.Release(keep)
	for _, n := range notes {
		t.bus.Play(n.Bus, music.NewNoteOff(t.tick, n.Channel, n.Key, 0), music.FreeChannel)
	}
	if len(notes) > 0 {
		t.bus.Flush()
	}
}

func (t *Transport) silenceSlot(slot int) {
	t.silence(func(n Note) bool { return n.Slot == slot })
}

// Advance plays everything due up to tick, applies the queues of patterns
// reaching their loop start, clocks the busses and flushes once.
func (t *Transport) Advance(to music.Pulse) {
	t.Lock()
	defer t.Unlock()
	t.advance(to)
}

func (t *Transport) advance(to music.Pulse) {
	from := t.tick
	if !t.running || to <= from {
		return
	}
	for _, p := range t.set.Active() {
		if !p.CrossesBoundary(from, to) {
			if p.IsPlaying() {
				t.play(p, from, to)
			}
			continue
		}
		length := p.Length()
		boundary := (from/length + 1) * length
		if p.IsPlaying() {
			t.play(p, from, boundary)
		}
		if p.ApplyQueue() {
			t.patternChanged(p)
		}
		if p.IsPlaying() {
			t.play(p, boundary, to)
		}
	}
	t.bus.Clock(to)
	t.bus.Flush()
	t.tick = to
}

func (t *Transport) play(p *music.Pattern, from, to music.Pulse) {
	bus, ch, slot := int(p.Bus()), p.Channel(), p.Slot()
	p.Play(from, to, func(e *music.Event) {
		if t.bus.Play(bus, e, ch) {
			t.notes.Track(slot, bus, ch, e)
		}
	})
}

// patternChanged silences a pattern that stopped and reports its state.
func (t *Transport) patternChanged(p *music.Pattern) {
	playing := p.IsPlaying()
	if !playing {
		t.silenceSlot(p.Slot())
	}
	if t.out != nil {
		switch {
		case p.IsQueued():
			t.out.SendSeqEvent(p.Slot(), control.SeqQueue, true)
		case playing:
			t.out.SendSeqEvent(p.Slot(), control.SeqArm, true)
		default:
			t.out.SendSeqEvent(p.Slot(), control.SeqMute, true)
		}
	}
	t.notify(shared.Message{Type: shared.PatternChanged, Number: p.Slot(), Boolean: playing, Number2: int(p.Length())})
}

func (t *Transport) feedback(what control.UIAction, on bool) {
	if t.out != nil {
		t.out.SendEvent(what, on)
	}
}

// PulsesFor converts wall time to pulses at the given tempo.
func PulsesFor(d time.Duration, bpm float64, ppqn int) float64 {
	return d.Minutes() * bpm * float64(ppqn)
}

// elapse moves the transport by wall time, keeping the fraction of a pulse
// for the next call.
func (t *Transport) elapse(d time.Duration) {
	t.Lock()
	defer t.Unlock()
	if !t.running {
		return
	}
	t.frac += PulsesFor(d, t.bpm, t.set.PPQN)
	whole := math.Floor(t.frac)
	if whole < 1 {
		return
	}
	t.frac -= whole
	t.advance(t.tick + music.Pulse(whole))
}

// TogglePattern flips a slot at once.
func (t *Transport) TogglePattern(slot int) bool {
	t.Lock()
	defer t.Unlock()
	return t.setPattern(slot, nil)
}

// SetPattern forces a slot on or off.
func (t *Transport) SetPattern(slot int, on bool) bool {
	t.Lock()
	defer t.Unlock()
	return t.setPattern(slot, &on)
}

func (t *Transport) setPattern(slot int, on *bool) bool {
	p := t.set.Pattern(slot)
	if p == nil {
		return false
	}
	if on == nil {
		p.TogglePlaying()
	} else {
		p.SetPlaying(*on)
	}
	t.patternChanged(p)
	return true
}

func (t *Transport) QueuePattern(slot int) bool {
	t.Lock()
	defer t.Unlock()
	p := t.set.Pattern(slot)
	if p == nil {
		return false
	}
	p.ToggleQueued()
	t.patternChanged(p)
	return true
}

func (t *Transport) OneShot(slot int) bool {
	t.Lock()
	defer t.Unlock()
	p := t.set.Pattern(slot)
	if p == nil {
		return false
	}
	p.SetOneShot(true)
	t.patternChanged(p)
	return true
}

func (t *Transport) ArmPattern(slot int, on bool) bool {
	p := t.set.Pattern(slot)
	if p == nil {
		return false
	}
	p.SetArmed(on)
	t.Lock()
	t.notify(shared.Message{Type: shared.PatternArm, Number: slot, Boolean: on})
	t.Unlock()
	return true
}

// ClearPattern deletes the events of a slot.
func (t *Transport) ClearPattern(slot int) bool {
	t.Lock()
	defer t.Unlock()
	p := t.set.Pattern(slot)
	if p == nil {
		return false
	}
	t.silenceSlot(slot)
	p.Edit(func(e music.Editor) { e.Clear() })
	if t.out != nil {
		t.out.SendSeqEvent(slot, control.SeqDelete, true)
	}
	t.notify(shared.Message{Type: shared.PatternChanged, Number: slot, Number2: int(p.Length())})
	return true
}

// ToggleMuteGroup switches a mute group and applies it to the screenset.
func (t *Transport) ToggleMuteGroup(group int) bool {
	t.Lock()
	defer t.Unlock()
	if t.groups == nil {
		return false
	}
	bits, ok := t.groups.ToggleSlots(group, t.set.MuteBits())
	if !ok {
		return false
	}
	t.applyMutes(bits)
	on := t.groups.Selected() == group
	if t.out != nil {
		which := control.MuteOff
		if on {
			which = control.MuteOn
		}
		t.out.SendMutesEvent(group, which)
	}
	t.notify(shared.Message{Type: shared.MuteGroup, Number: group, Boolean: on})
	return true
}

func (t *Transport) applyMutes(bits []bool) {
	for _, slot := range t.set.ApplyMuteBits(bits) {
		t.patternChanged(t.set.Pattern(slot))
	}
}

func (t *Transport) SetRecording(on bool) {
	t.Lock()
	t.recording = on
	t.notify(shared.Message{Type: shared.Record, Boolean: on})
	t.Unlock()
}

// HandleInput drains the inbound queue: mapped events become actions, the
// others are recorded into the armed patterns while recording.
func (t *Transport) HandleInput() int {
	t.Lock()
	in := t.in
	t.Unlock()
	n := 0
	var ev music.Event
	for {
		bus, ok := t.bus.GetMIDIEvent(&ev)
		if !ok {
			return n
		}
		n++
		if in != nil {
			if a, ok := in.Lookup(&ev); ok {
				t.logger.Debug("control", "action", a, "bus", bus)
				t.Apply(a)
				continue
			}
		}
		t.record(&ev)
	}
}

func (t *Transport) record(ev *music.Event) {
	t.Lock()
	defer t.Unlock()
	if !t.running || !t.recording {
		return
	}
	// The window up to t.tick is already played; stamping inside it keeps
	// the echoed note from sounding twice.
	sent := false
	for _, p := range t.set.Active() {
		if !p.Record(t.tick-1, ev.Clone()) || !t.Thru {
			continue
		}
		if t.bus.Play(int(p.Bus()), ev, p.Channel()) {
			t.notes.Track(p.Slot(), int(p.Bus()), p.Channel(), ev)
			sent = true
		}
	}
	if sent {
		t.bus.Flush()
	}
}

// Apply runs an action of the input mapping.
func (t *Transport) Apply(a control.Action) {
	switch a.Category {
	case control.CategoryPattern:
		switch a.Operation {
		case control.OpToggle:
			t.TogglePattern(a.Index)
		case control.OpOn:
			t.SetPattern(a.Index, true)
		case control.OpOff:
			t.SetPattern(a.Index, false)
		}
	case control.CategoryMuteGroup:
		t.applyGroupAction(a)
	case control.CategoryAutomation:
		t.automation(a)
	}
}

func (t *Transport) applyGroupAction(a control.Action) {
	t.Lock()
	groups := t.groups
	t.Unlock()
	if groups == nil {
		return
	}
	active := groups.Selected() == a.Index
	if a.Operation == control.OpToggle || (a.Operation == control.OpOn) != active {
		t.ToggleMuteGroup(a.Index)
	}
}

func (t *Transport) automation(a control.Action) {
	switch a.Index {
	case control.AutoPlay:
		if t.IsRunning() {
			t.Pause()
		} else {
			t.Start()
		}
	case control.AutoStop:
		t.Stop()
	case control.AutoPause:
		if t.IsRunning() {
			t.Pause()
		} else {
			t.Continue()
		}
	case control.AutoRecord:
		t.SetRecording(!t.IsRecording())
	case control.AutoPanic:
		t.Panic()
	case control.AutoBPMUp:
		t.SetBPM(t.BPM() + 1)
	case control.AutoBPMDown:
		t.SetBPM(t.BPM() - 1)
	default:
		t.logger.Debug("automation not handled here", "action", a)
	}
}
