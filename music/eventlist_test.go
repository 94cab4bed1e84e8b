package music

import (
	"math/rand/v2"
	"testing"
)

func TestSortNoteOffBeforeNoteOn(t *testing.T) {
	l := NewEventList(100)
	on := NewNoteOn(0, 1, 60, 100)
	off := NewNoteOff(0, 1, 60, 0)
	late := NewNoteOn(10, 1, 60, 100)
	l.Add(on)
	l.Add(off)
	l.Add(late)
	l.VerifyAndLink(100)

	if l.At(0) != off || l.At(1) != on {
		t.Fatalf("expected off before on at t=0, got %v then %v", l.At(0), l.At(1))
	}
	if !late.IsDangling() {
		t.Errorf("t=10 note-on should be dangling")
	}
	if l.DanglingCount() != 2 {
		t.Errorf("dangling count = %d, want 2", l.DanglingCount())
	}
	if _, ok := l.NoteLength(late); ok {
		t.Errorf("dangling note must not report a length")
	}
}

func TestSortRankTable(t *testing.T) {
	l := NewEventList(0)
	noteOn := NewNoteOn(5, 0, 64, 90)
	cc := NewControlChange(5, 0, 7, 100)
	prog := NewProgramChange(5, 0, 3)
	noteOff := NewNoteOff(5, 0, 62, 0)
	zeroVel := NewNoteOn(5, 0, 61, 0)
	tempo := NewTempo(5, 120)
	sig := NewTimeSignature(5, 3, 4)
	for _, e := range []*Event{noteOn, cc, prog, noteOff, zeroVel, sig, tempo} {
		l.Append(e)
	}
	if l.IsSorted() {
		t.Fatalf("list unexpectedly sorted before Sort")
	}
	l.Sort()
	want := []*Event{tempo, sig, zeroVel, noteOff, prog, cc, noteOn}
	for i, e := range want {
		if l.At(i) != e {
			t.Errorf("position %d: got %v want %v", i, l.At(i), e)
		}
	}
	if !l.HasTempo() || !l.HasTimeSignature() {
		t.Errorf("tempo/time signature flags not set by Append")
	}
}

func TestSortIsStableForEqualKeys(t *testing.T) {
	l := NewEventList(0)
	a := NewNoteOn(0, 0, 60, 10)
	b := NewNoteOn(0, 0, 60, 20)
	l.Append(a)
	l.Append(b)
	l.Sort()
	if l.At(0) != a || l.At(1) != b {
		t.Fatalf("equal keys reordered")
	}
}

func TestLinkCompleteness(t *testing.T) {
	l := NewEventList(768)
	// two overlapping notes on the same key and one on another channel
	events := []*Event{
		NewNoteOn(0, 0, 60, 100),
		NewNoteOn(10, 0, 60, 100),
		NewNoteOff(20, 0, 60, 0),
		NewNoteOff(30, 0, 60, 0),
		NewNoteOn(40, 1, 60, 100),
		NewNoteOn(50, 1, 60, 0), // running-status off
	}
	for _, e := range events {
		l.Append(e)
	}
	l.VerifyAndLink(768)

	seen := map[*Event]int{}
	for _, e := range l.Events() {
		if !e.IsNoteOn() {
			continue
		}
		off := e.Link()
		if off == nil {
			t.Fatalf("note-on %v left dangling", e)
		}
		if off.Link() != e {
			t.Errorf("link not mutual for %v", e)
		}
		if off.Channel() != e.Channel() || off.Note() != e.Note() {
			t.Errorf("linked across channel/note: %v -> %v", e, off)
		}
		seen[off]++
	}
	for off, n := range seen {
		if n != 1 {
			t.Errorf("note-off %v linked %d times", off, n)
		}
	}
	if events[0].Link() != events[2] || events[1].Link() != events[3] {
		t.Errorf("nearest following off not chosen")
	}
}

func TestVerifyAndLinkDropsOutOfRange(t *testing.T) {
	l := NewEventList(100)
	on := NewNoteOn(90, 0, 60, 100)
	off := NewNoteOff(120, 0, 60, 0)
	keep := NewControlChange(100, 0, 1, 1)
	l.Append(on)
	l.Append(off)
	l.Append(keep)
	l.VerifyAndLink(100)
	if l.Count() != 1 || l.At(0) != keep {
		t.Fatalf("expected only the in-range event, got %d events", l.Count())
	}
}

func TestLinkTempos(t *testing.T) {
	l := NewEventList(0)
	t1 := NewTempo(0, 120)
	t2 := NewTempo(96, 90)
	l.Append(t2)
	l.Append(t1)
	l.VerifyAndLink(0)
	if t1.Link() != t2 || t2.IsLinked() {
		t.Fatalf("tempo chain wrong: %v %v", t1.Link(), t2.Link())
	}
	bpm, ok := t2.Tempo()
	if !ok || bpm < 89.9 || bpm > 90.1 {
		t.Errorf("tempo = %v %v", bpm, ok)
	}
}

func TestMergeKeepsDuplicates(t *testing.T) {
	a := NewEventList(0)
	b := NewEventList(0)
	a.Add(NewNoteOn(0, 0, 60, 100))
	b.Append(NewNoteOn(0, 0, 60, 100))
	b.Append(NewNoteOn(0, 0, 64, 100))
	a.Merge(b, true)
	if a.Count() != 3 {
		t.Fatalf("merge count = %d, want 3", a.Count())
	}
	if !a.IsSorted() {
		t.Errorf("merge result not sorted")
	}
	if b.Count() != 2 {
		t.Errorf("source list modified")
	}
}

func TestGetMaxTimestamp(t *testing.T) {
	l := NewEventList(0)
	if l.GetMaxTimestamp() != 0 {
		t.Fatalf("empty list max should be 0")
	}
	l.Add(NewNoteOn(300, 0, 60, 1))
	l.Add(NewNoteOn(20, 0, 60, 1))
	if got := l.GetMaxTimestamp(); got != 300 {
		t.Fatalf("max = %d", got)
	}
}

func TestQuantizeEvents(t *testing.T) {
	tests := []struct {
		name   string
		on     Pulse
		off    Pulse
		snap   int
		divide int
		wantOn Pulse
		wantOf Pulse
	}{
		{"round down", 50, 90, 48, 1, 48, 88},
		{"round up", 40, 90, 48, 1, 48, 98},
		{"half way", 45, 90, 48, 2, 46, 91},
		{"wrap near end", 760, 765, 48, 1, 0, 5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := NewEventList(768)
			on := NewNoteOn(tc.on, 0, 60, 100)
			off := NewNoteOff(tc.off, 0, 60, 0)
			l.Append(on)
			l.Append(off)
			l.VerifyAndLink(0)
			on.Select()
			if !l.QuantizeEvents(StatusNoteOn, 0, tc.snap, tc.divide, true) {
				t.Fatalf("nothing quantized")
			}
			if on.Timestamp != tc.wantOn || off.Timestamp != tc.wantOf {
				t.Errorf("got on=%d off=%d, want %d %d", on.Timestamp, off.Timestamp, tc.wantOn, tc.wantOf)
			}
		})
	}
}

func TestQuantizeSkipsOtherStatus(t *testing.T) {
	l := NewEventList(768)
	cc := NewControlChange(50, 0, 7, 1)
	other := NewControlChange(50, 0, 8, 1)
	l.Append(cc)
	l.Append(other)
	l.SelectAll()
	l.QuantizeEvents(StatusControlChange, 7, 48, 1, false)
	if cc.Timestamp != 48 || other.Timestamp != 50 {
		t.Fatalf("cc filter ignored: %d %d", cc.Timestamp, other.Timestamp)
	}
}

func TestMoveSelectedNotes(t *testing.T) {
	l := NewEventList(768)
	on := NewNoteOn(700, 0, 126, 100)
	off := NewNoteOff(760, 0, 126, 0)
	l.Append(on)
	l.Append(off)
	l.VerifyAndLink(0)
	l.SelectAll()

	if l.MoveSelectedNotes(0, 5) {
		t.Fatalf("note beyond 127 should not move")
	}
	if !l.MoveSelectedNotes(68, 1) {
		t.Fatalf("move refused")
	}
	if on.Note() != 127 || off.Note() != 127 {
		t.Errorf("notes = %d %d", on.Note(), off.Note())
	}
	if on.Timestamp != 0 {
		t.Errorf("note-on at the end should wrap to 0, got %d", on.Timestamp)
	}
	if off.Timestamp != 60 {
		t.Errorf("note-off = %d, want 60", off.Timestamp)
	}
}

func TestMoveNoteOffLandingOnZero(t *testing.T) {
	l := NewEventList(768)
	on := NewNoteOn(10, 0, 60, 100)
	off := NewNoteOff(60, 0, 60, 0)
	l.Append(on)
	l.Append(off)
	l.VerifyAndLink(0)
	off.Select()
	l.MoveSelectedNotes(-60, 0)
	if off.Timestamp != 768-NOTE_OFF_MARGIN {
		t.Fatalf("off at loop start should be pulled back, got %d", off.Timestamp)
	}
}

func TestMoveNoteOffOntoLoopEnd(t *testing.T) {
	l := NewEventList(768)
	on := NewNoteOn(100, 0, 60, 100)
	off := NewNoteOff(668, 0, 60, 0)
	l.Append(on)
	l.Append(off)
	l.VerifyAndLink(0)
	off.Select()
	l.MoveSelectedNotes(100, 0)
	if off.Timestamp != 768 {
		t.Errorf("off moved onto the loop end = %d, want 768", off.Timestamp)
	}
	if !on.IsLinked() || on.Link() != off {
		t.Errorf("off at the loop end lost its link")
	}
}

func TestStretchSelected(t *testing.T) {
	l := NewEventList(768)
	a := NewNoteOn(100, 0, 60, 100)
	b := NewNoteOff(200, 0, 60, 0)
	l.Append(a)
	l.Append(b)
	l.VerifyAndLink(0)
	l.SelectAll()
	if !l.StretchSelected(100) {
		t.Fatalf("stretch refused")
	}
	if a.Timestamp != 100 || b.Timestamp != 300 {
		t.Errorf("got %d %d", a.Timestamp, b.Timestamp)
	}
	if l.StretchSelected(-200) {
		t.Errorf("stretch to zero length should be refused")
	}
}

func TestGrowSelected(t *testing.T) {
	l := NewEventList(768)
	on := NewNoteOn(100, 0, 60, 100)
	off := NewNoteOff(200, 0, 60, 0)
	cc := NewControlChange(760, 0, 1, 1)
	l.Append(on)
	l.Append(off)
	l.Append(cc)
	l.VerifyAndLink(0)
	on.Select()
	cc.Select()
	l.GrowSelected(50, 48)
	if off.Timestamp != 250 {
		t.Errorf("off = %d, want 250", off.Timestamp)
	}
	if cc.Timestamp != 768-NOTE_OFF_MARGIN {
		t.Errorf("cc = %d, want clipped to end", cc.Timestamp)
	}
}

func TestTransposeNotes(t *testing.T) {
	l := NewEventList(768)
	low := NewNoteOn(0, 0, 1, 100)
	high := NewNoteOn(10, 0, 120, 100)
	l.Append(low)
	l.Append(high)
	l.SelectAll()
	l.TransposeNotes(-2)
	if low.Note() != 1 || high.Note() != 118 {
		t.Fatalf("got %d %d", low.Note(), high.Note())
	}
}

func TestRandomizeSelectedStaysInRange(t *testing.T) {
	l := NewEventList(768)
	l.SetRand(rand.New(rand.NewPCG(1, 2)))
	var notes []*Event
	for i := 0; i < 32; i++ {
		e := NewNoteOn(Pulse(i*10), 0, 60, 126)
		notes = append(notes, e)
		l.Append(e)
	}
	pc := NewProgramChange(5, 0, 0)
	l.Append(pc)
	l.Sort()
	l.SelectAll()
	l.RandomizeSelected(StatusNoteOn, 10)
	l.RandomizeSelected(StatusProgramChange, 10)
	for _, e := range notes {
		if e.Velocity() > 127 || e.Velocity() < 116 {
			t.Errorf("velocity %d outside jitter range", e.Velocity())
		}
	}
	if pc.Data1 > 10 {
		t.Errorf("program jitter out of range: %d", pc.Data1)
	}
	l.RandomizeSelectedNotes(20, 0)
	for _, e := range l.Events() {
		if e.Timestamp < 0 || e.Timestamp > 768 {
			t.Errorf("timestamp %d escaped the loop", e.Timestamp)
		}
	}
}

func TestSelectEventsActions(t *testing.T) {
	l := NewEventList(768)
	l.Append(NewControlChange(10, 0, 7, 1))
	l.Append(NewControlChange(20, 0, 7, 1))
	l.Append(NewControlChange(30, 0, 10, 1))
	l.Append(NewNoteOn(15, 0, 60, 1))
	l.Sort()

	if n := l.SelectEvents(0, 100, StatusControlChange, 7, WouldSelect); n != 1 {
		t.Fatalf("would_select = %d", n)
	}
	if n := l.SelectEvents(0, 100, StatusControlChange, 7, Selected); n != 0 {
		t.Fatalf("nothing selected yet, got %d", n)
	}
	if n := l.SelectEvents(0, 100, StatusControlChange, 7, Selecting); n != 2 {
		t.Fatalf("selecting = %d", n)
	}
	if got := l.CountSelectedEvents(StatusControlChange, 7); got != 2 {
		t.Fatalf("count selected = %d", got)
	}
	l.SelectEvents(0, 15, StatusControlChange, 7, Toggle)
	if got := l.CountSelectedEvents(StatusControlChange, 7); got != 1 {
		t.Fatalf("after toggle = %d", got)
	}
	l.SelectEvents(0, 100, StatusControlChange, 7, Remove)
	if l.Count() != 3 {
		t.Fatalf("remove should delete one event, count = %d", l.Count())
	}
}

func TestSelectNoteEventsPairs(t *testing.T) {
	l := NewEventList(768)
	on := NewNoteOn(10, 0, 60, 100)
	off := NewNoteOff(50, 0, 60, 0)
	other := NewNoteOn(10, 0, 72, 100)
	l.Append(on)
	l.Append(off)
	l.Append(other)
	l.VerifyAndLink(0)

	n := l.SelectNoteEvents(30, 65, 40, 55, Selecting)
	if n == 0 || !on.IsSelected() || !off.IsSelected() {
		t.Fatalf("overlapping note not selected as a pair")
	}
	if other.IsSelected() {
		t.Errorf("note outside the key range selected")
	}
	if l.CountSelectedNotes() != 1 || !l.AnySelectedNotes() {
		t.Errorf("selected note count wrong")
	}
	l.SelectNoteEvents(0, 127, 768, 0, Remove)
	if l.Count() != 1 {
		t.Errorf("remove should drop the linked pair, count = %d", l.Count())
	}
}

func TestCopyPaste(t *testing.T) {
	l := NewEventList(768)
	on := NewNoteOn(100, 0, 60, 100)
	off := NewNoteOff(148, 0, 60, 0)
	l.Append(on)
	l.Append(off)
	l.VerifyAndLink(0)
	l.SelectAll()

	clip := NewEventList(768)
	if !l.CopySelected(clip) {
		t.Fatalf("copy failed")
	}
	if clip.At(0).Timestamp != 0 {
		t.Errorf("clipboard not normalized")
	}
	l.PasteSelected(clip, 400, 64)
	if l.Count() != 4 {
		t.Fatalf("count after paste = %d", l.Count())
	}
	var found bool
	for _, e := range l.Events() {
		if e.IsNoteOn() && e.Timestamp == 400 && e.Note() == 64 {
			found = e.IsLinked()
		}
	}
	if !found {
		t.Errorf("pasted note missing or unlinked")
	}
	if clip.At(0).Timestamp != 0 {
		t.Errorf("paste modified the clipboard")
	}
}

func TestRescale(t *testing.T) {
	l := NewEventList(768)
	l.Add(NewNoteOn(96, 0, 60, 1))
	if !l.Rescale(192, 96) {
		t.Fatalf("rescale refused")
	}
	if l.At(0).Timestamp != 48 || l.Length() != 384 {
		t.Errorf("got ts=%d len=%d", l.At(0).Timestamp, l.Length())
	}
	if l.Rescale(0, 96) {
		t.Errorf("zero ppqn accepted")
	}
}

func TestRangeHalfOpen(t *testing.T) {
	l := NewEventList(768)
	for _, ts := range []Pulse{0, 10, 20, 30} {
		l.Append(NewNoteOn(ts, 0, 60, 1))
	}
	l.Sort()
	var got []Pulse
	l.Range(10, 30, func(e *Event) bool {
		got = append(got, e.Timestamp)
		return true
	})
	if len(got) != 2 || got[0] != 10 || got[1] != 20 {
		t.Fatalf("range = %v", got)
	}
}
