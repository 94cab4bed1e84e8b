package bus

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/JeanRibes/seqloop/music"
	charmlog "github.com/charmbracelet/log"
)

var quiet = charmlog.New(io.Discard)

func newBus(t *testing.T, f *FakeBackend, opts Options) *MasterBus {
	t.Helper()
	opts.Logger = quiet
	b := New(f, opts)
	if err := b.Activate(); err != nil {
		t.Fatal(err)
	}
	return b
}

func TestActivateErrors(t *testing.T) {
	if err := New(nil, Options{Logger: quiet}).Activate(); !errors.Is(err, ErrNoBackend) {
		t.Errorf("nil backend: %v", err)
	}
	f := NewFakeBackend(nil, []string{"a"})
	f.OpenErr = errors.New("no sequencer")
	if err := New(f, Options{Logger: quiet}).Activate(); !errors.Is(err, f.OpenErr) {
		t.Errorf("backend error not wrapped: %v", err)
	}
}

func TestFailedPortIsDisabled(t *testing.T) {
	f := NewFakeBackend([]string{"kbd"}, []string{"synth", "broken"})
	f.FailOpen["broken"] = true
	f.FailOpen["kbd"] = true
	b := newBus(t, f, Options{})

	if !b.IsEnabled(0) || b.IsEnabled(1) {
		t.Fatalf("enabled: %v %v", b.IsEnabled(0), b.IsEnabled(1))
	}
	if b.Play(1, music.NewNoteOn(0, 0, 60, 100), music.FreeChannel) {
		t.Errorf("play on disabled bus accepted")
	}
	if b.Play(9, music.NewNoteOn(0, 0, 60, 100), music.FreeChannel) {
		t.Errorf("play on unknown bus accepted")
	}
	outs, ins := b.Ports()
	if len(outs) != 2 || outs[1].Available || len(ins) != 1 || ins[0].Available {
		t.Errorf("ports: %+v %+v", outs, ins)
	}
}

func TestFlushOrder(t *testing.T) {
	f := NewFakeBackend(nil, []string{"a", "b"})
	b := newBus(t, f, Options{})

	b.Play(0, music.NewNoteOn(0, 0, 60, 100), music.FreeChannel)
	b.Play(1, music.NewNoteOn(0, 0, 62, 100), 5)
	b.Play(0, music.NewNoteOff(0, 0, 60, 0), music.FreeChannel)
	if len(f.Sent("a")) != 0 {
		t.Fatalf("sent before flush")
	}
	b.Flush()

	a := f.Sent("a")
	if len(a) != 2 || !bytes.Equal(a[0], []byte{0x90, 60, 100}) || !bytes.Equal(a[1], []byte{0x80, 60, 0}) {
		t.Errorf("bus 0: % x", a)
	}
	if s := f.Sent("b"); len(s) != 1 || s[0][0] != 0x95 {
		t.Errorf("bus 1 channel override: % x", s)
	}
	b.Flush()
	if len(f.Sent("a")) != 2 {
		t.Errorf("flush resent")
	}
}

func TestSendFailureDisablesBus(t *testing.T) {
	f := NewFakeBackend(nil, []string{"a", "b"})
	b := newBus(t, f, Options{})
	f.Break("a")
	b.Play(0, music.NewNoteOn(0, 0, 60, 100), music.FreeChannel)
	b.Play(1, music.NewNoteOn(0, 0, 60, 100), music.FreeChannel)
	b.Flush()
	if b.IsEnabled(0) || !b.IsEnabled(1) {
		t.Fatalf("enabled after failure: %v %v", b.IsEnabled(0), b.IsEnabled(1))
	}
	if len(f.Sent("b")) != 1 {
		t.Errorf("healthy bus not flushed")
	}
	if b.Play(0, music.NewNoteOn(0, 0, 61, 100), music.FreeChannel) {
		t.Errorf("disabled bus still accepts events")
	}
}

func TestBusResolutionAfterReorder(t *testing.T) {
	first := []string{"nanoKEY2:nanoKEY2 MIDI 1 20:0", "FLUID Synth (1234):Synth input port (1234:0) 128:0", "Midi Through:Midi Through Port-0 14:0"}
	f := NewFakeBackend(nil, first)
	b := newBus(t, f, Options{})
	pm := b.PortMap()
	pm.Active = true

	second := []string{first[2], "FLUID Synth (999):Synth input port (999:0) 130:0", "nanoKEY2:nanoKEY2 MIDI 1 24:0"}
	f2 := NewFakeBackend(nil, second)
	b2 := New(f2, Options{Logger: quiet})
	b2.SetPortMap(pm)
	if err := b2.Activate(); err != nil {
		t.Fatal(err)
	}
	for nominal, want := range []int{2, 1, 0} {
		if got := b2.TrueBus(nominal); got != want {
			t.Errorf("TrueBus(%d) = %d, want %d", nominal, got, want)
		}
		if back := b2.NominalBus(b2.TrueBus(nominal)); back != nominal {
			t.Errorf("NominalBus(TrueBus(%d)) = %d", nominal, back)
		}
	}
	b2.Play(0, music.NewNoteOn(0, 0, 60, 100), music.FreeChannel)
	b2.Flush()
	if len(f2.Sent(second[2])) != 1 || len(f2.Sent(second[0])) != 0 {
		t.Errorf("nominal bus 0 did not reach the nanoKEY2 port")
	}

	pm.Active = false
	b2.SetPortMap(pm)
	if b2.TrueBus(0) != 0 {
		t.Errorf("inactive map still resolves")
	}
}

func TestUnmappedNominalBus(t *testing.T) {
	pm := &PortMap{Active: true}
	pm.Outputs.Add(Entry{Name: "Gone", Nickname: "Gone"})
	f := NewFakeBackend(nil, []string{"x:Here 20:0"})
	b := New(f, Options{Logger: quiet})
	b.SetPortMap(pm)
	b.Activate()
	if b.TrueBus(0) != NullBus {
		t.Fatalf("missing port resolved to %d", b.TrueBus(0))
	}
	if b.Play(0, music.NewNoteOn(0, 0, 60, 1), music.FreeChannel) {
		t.Errorf("play reached an unmapped port")
	}
}

func TestHotPlug(t *testing.T) {
	f := NewFakeBackend([]string{"kbd"}, []string{"a"})
	b := newBus(t, f, Options{})
	w := NewWatcher(b)

	f.Plug("b", false)
	w.Scan()
	ev := <-w.Events()
	if !ev.Connected || ev.Name != "b" || ev.Bus != 1 || ev.Input {
		t.Fatalf("plug event %+v", ev)
	}

	f.Unplug("a", false)
	f.Unplug("kbd", true)
	w.Scan()
	if b.IsEnabled(0) || !b.IsEnabled(1) {
		t.Fatalf("unplugged bus still enabled")
	}
	outs, ins := b.Ports()
	if len(outs) != 2 || ins[0].Available {
		t.Fatalf("unplug deleted or kept: %+v %+v", outs, ins)
	}

	f.Plug("a", false)
	w.Scan()
	outs, _ = b.Ports()
	if len(outs) != 2 || !b.IsEnabled(0) {
		t.Fatalf("replug did not re-enable bus 0: %+v", outs)
	}
}

func TestPollTimeout(t *testing.T) {
	b := newBus(t, NewFakeBackend([]string{"kbd"}, nil), Options{})
	start := time.Now()
	if n := b.PollForMIDI(); n != 0 {
		t.Fatalf("poll = %d", n)
	}
	if d := time.Since(start); d < PollTimeout || d > time.Second {
		t.Errorf("poll took %v", d)
	}
}

func TestInput(t *testing.T) {
	f := NewFakeBackend([]string{"kbd", "pads"}, nil)
	b := newBus(t, f, Options{})

	f.Inject("pads", []byte{0xF8})
	f.Inject("pads", []byte{0x91, 64, 90})
	if n := b.PollForMIDI(); n != 2 {
		t.Fatalf("poll = %d", n)
	}
	var ev music.Event
	bus, ok := b.GetMIDIEvent(&ev)
	if !ok || bus != 1 || !ev.IsNoteOn() || ev.Note() != 64 || ev.Channel() != 1 {
		t.Fatalf("event %v from %d", ev.String(), bus)
	}
	if _, ok := b.GetMIDIEvent(&ev); ok {
		t.Errorf("queue not empty")
	}

	b.SetInput(0, false)
	f.Inject("kbd", []byte{0x90, 60, 90})
	if b.PollForMIDI() != 0 {
		t.Errorf("disabled input queued data")
	}
}

func TestClock(t *testing.T) {
	f := NewFakeBackend(nil, []string{"clocked", "plain"})
	b := newBus(t, f, Options{PPQN: 192})
	b.SetClock(0, ClockPos)

	b.Start()
	b.Clock(16)
	s := f.Sent("clocked")
	if len(s) != 4 || s[0][0] != 0xFA || s[1][0] != 0xF8 || s[3][0] != 0xF8 {
		t.Fatalf("start + 3 clocks: % x", s)
	}
	if len(f.Sent("plain")) != 0 {
		t.Errorf("clock sent to an Off bus")
	}

	f.Reset()
	b.ContinueFrom(100)
	b.Clock(150)
	s = f.Sent("clocked")
	if len(s) != 3 || !bytes.Equal(s[0], []byte{0xF2, 2, 0}) || s[1][0] != 0xFB || s[2][0] != 0xF8 {
		t.Fatalf("continue: % x", s)
	}

	f.Reset()
	b.Stop()
	if s = f.Sent("clocked"); len(s) != 1 || s[0][0] != 0xFC {
		t.Errorf("stop: % x", s)
	}
	if len(f.Sent("plain")) != 0 {
		t.Errorf("stop sent to an Off bus")
	}
}

func TestInitClockMod(t *testing.T) {
	f := NewFakeBackend(nil, []string{"m"})
	b := newBus(t, f, Options{PPQN: 192, ClockMod: 1})
	b.SetClock(0, ClockMod)
	b.InitClock(100)
	b.Clock(143)
	if s := f.Sent("m"); len(s) != 1 || s[0][0] != 0xFA {
		t.Fatalf("clocked before the boundary: % x", s)
	}
	b.Clock(144)
	if s := f.Sent("m"); len(s) != 2 || s[1][0] != 0xF8 {
		t.Fatalf("no clock at the boundary: % x", s)
	}
}

func TestAllNotesOff(t *testing.T) {
	f := NewFakeBackend(nil, []string{"a", "b"})
	f.FailOpen["b"] = true
	b := newBus(t, f, Options{})
	b.AllNotesOff()
	s := f.Sent("a")
	if len(s) != MIDI_CHANNELS {
		t.Fatalf("%d messages", len(s))
	}
	for ch, m := range s {
		if !bytes.Equal(m, []byte{0xB0 | byte(ch), CC_ALL_NOTES_OFF, 0}) {
			t.Errorf("channel %d: % x", ch, m)
		}
	}
}

func TestManualPorts(t *testing.T) {
	f := NewFakeBackend(nil, nil)
	b := newBus(t, f, Options{Manual: true, VirtualOutputs: 2, ClientName: "loop"})
	v := f.Virtual()
	if len(v) != 3 || v[0] != "loop out 0" || v[2] != "loop in 0" {
		t.Fatalf("virtual ports %v", v)
	}
	b.Play(1, music.NewNoteOn(0, 0, 60, 1), music.FreeChannel)
	b.Flush()
	if len(f.Sent("loop out 1")) != 1 {
		t.Errorf("virtual output not reached")
	}
}
