package control

import (
	"io"
	"sync"
	"testing"

	"github.com/JeanRibes/seqloop/music"
	charmlog "github.com/charmbracelet/log"
)

type recorder struct {
	played  []music.Event
	buses   []int
	flushes int
}

func (r *recorder) Play(bus int, ev *music.Event, channel uint8) bool {
	r.played = append(r.played, *ev)
	r.buses = append(r.buses, bus)
	return true
}

func (r *recorder) Flush() { r.flushes++ }

var (
	noteOn  = Template{Status: 0x90, Data1: 36, Data2: 127}
	noteOff = Template{Status: 0x80, Data1: 36, Data2: 0}
)

func newOut(r *recorder) *Out {
	var s Sender
	if r != nil {
		s = r
	}
	o := NewOut(s, charmlog.New(io.Discard))
	o.Initialize(32, 3)
	o.SetEnabled(true)
	o.SetSeqEvent(5, SeqArm, noteOn)
	o.SetEvent(UIPlay, true, noteOn, noteOff)
	o.SetMutesEvent(2, noteOn, noteOff, Template{})
	return o
}

func TestSendAllGatesOpen(t *testing.T) {
	r := &recorder{}
	o := newOut(r)
	if !o.SendSeqEvent(5, SeqArm, true) {
		t.Fatalf("seq event not sent")
	}
	if !o.SendEvent(UIPlay, false) || !o.SendMutesEvent(2, MuteOn) {
		t.Fatalf("ui or mute event not sent")
	}
	if len(r.played) != 3 || r.flushes != 3 {
		t.Fatalf("played %d flushed %d", len(r.played), r.flushes)
	}
	if r.played[1].Status != 0x80 || r.buses[0] != 3 {
		t.Errorf("wrong event or bus: %v bus %d", r.played[1].String(), r.buses[0])
	}
}

func TestGateContainerDisabled(t *testing.T) {
	r := &recorder{}
	o := newOut(r)
	o.SetEnabled(false)
	if o.SendSeqEvent(5, SeqArm, true) || o.SendEvent(UIPlay, true) || o.SendMutesEvent(2, MuteOn) {
		t.Errorf("disabled container sent")
	}
	o.ClearSequences(true)
	if len(r.played) != 0 || r.flushes != 0 {
		t.Errorf("played %d flushed %d", len(r.played), r.flushes)
	}
}

func TestGateCellDisabled(t *testing.T) {
	r := &recorder{}
	o := newOut(r)
	if o.SendSeqEvent(6, SeqArm, true) || o.SendSeqEvent(5, SeqMute, true) {
		t.Errorf("empty seq cell sent")
	}
	o.SetEvent(UIStop, true, noteOn, Template{})
	if o.EventIsActive(UIStop) || o.SendEvent(UIStop, true) {
		t.Errorf("half-zero pair is active")
	}
	o.SetEvent(UIPause, false, noteOn, noteOff)
	if o.SendEvent(UIPause, true) {
		t.Errorf("disabled pair sent")
	}
	o.SetMutesEvent(4, Template{}, noteOff, noteOff)
	if o.SendMutesEvent(4, MuteOff) {
		t.Errorf("mute group with zero on status sent")
	}
	if o.SendMutesEvent(2, MuteDelete) {
		t.Errorf("zero delete template sent")
	}
	if len(r.played) != 0 {
		t.Errorf("played %d", len(r.played))
	}
}

func TestGateNoBus(t *testing.T) {
	o := newOut(nil)
	if o.SendSeqEvent(5, SeqArm, true) || o.SendEvent(UIPlay, true) || o.SendMutesEvent(2, MuteOn) {
		t.Errorf("sent without a master bus")
	}
	o.ClearSequences(true)
}

func TestBusWhileReinitializing(t *testing.T) {
	o := newOut(nil)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			o.Initialize(32, i%2+3)
		}
	}()
	for i := 0; i < 100; i++ {
		if b := o.Bus(); b != 3 && b != 4 {
			t.Errorf("bus = %d", b)
		}
	}
	wg.Wait()
	if o.Bus() != 4 {
		t.Errorf("bus = %d after the last initialize, want 4", o.Bus())
	}
}

func TestClearSequences(t *testing.T) {
	r := &recorder{}
	o := newOut(r)
	o.SetSeqEvent(0, SeqDelete, noteOff)
	o.SetSeqEvent(7, SeqDelete, noteOff)
	o.ClearSequences(true)
	if len(r.played) != 2 || r.flushes != 1 {
		t.Errorf("played %d flushed %d", len(r.played), r.flushes)
	}
}

func TestStrings(t *testing.T) {
	o := newOut(&recorder{})
	if got := o.SeqEventString(5, SeqArm); got != "[ 0x90  36 127 ]" {
		t.Errorf("seq string %q", got)
	}
	if got := o.EventString(UIPlay, false); got != "[ 0x80  36   0 ]" {
		t.Errorf("event string %q", got)
	}
	if o.IsBlank() {
		t.Errorf("configured tables are blank")
	}
	o.Initialize(4, 0)
	if !o.IsBlank() {
		t.Errorf("Initialize kept cells")
	}
}

func TestParseTemplate(t *testing.T) {
	tpl, err := ParseTemplate("[ 0xb0 0x40 127 ]")
	if err != nil || tpl != (Template{0xB0, 0x40, 127}) {
		t.Fatalf("%v %v", tpl, err)
	}
	for _, bad := range []string{"0x90 1 2", "[ 0x90 1 ]", "[ 0x40 1 2 ]", "[ 0x90 1 300 ]"} {
		if _, err := ParseTemplate(bad); err == nil {
			t.Errorf("%q accepted", bad)
		}
	}
}

func TestInLookup(t *testing.T) {
	in := NewIn()
	if err := in.Add(Binding{Category: CategoryPattern, Index: 4, Operation: OpToggle, Status: 0x90, Data1: 36, Min: 1, Max: 127}); err != nil {
		t.Fatal(err)
	}
	if err := in.Add(Binding{Category: CategoryAutomation, Index: AutoPlay, Status: 0xB0, Data1: 20, Min: 64, Max: 127}); err != nil {
		t.Fatal(err)
	}
	if err := in.Add(Binding{Status: 0x90, Min: 10, Max: 5}); err == nil {
		t.Errorf("inverted range accepted")
	}

	a, ok := in.Lookup(music.NewNoteOn(0, 0, 36, 100))
	if !ok || a.Category != CategoryPattern || a.Index != 4 || a.Value != 100 {
		t.Fatalf("note lookup: %v %v", a, ok)
	}
	if _, ok := in.Lookup(music.NewNoteOn(0, 1, 36, 100)); ok {
		t.Errorf("other channel matched")
	}
	if _, ok := in.Lookup(music.NewControlChange(0, 0, 20, 10)); ok {
		t.Errorf("value below min matched")
	}
	a, ok = in.Lookup(music.NewControlChange(0, 0, 20, 127))
	if !ok || a.String() != "play toggle" {
		t.Errorf("cc lookup: %v %v", a, ok)
	}
	in.SetEnabled(false)
	if _, ok := in.Lookup(music.NewNoteOn(0, 0, 36, 100)); ok {
		t.Errorf("disabled input matched")
	}
}
