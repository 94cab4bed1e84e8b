package music

import (
	"path/filepath"
	"testing"
)

func TestPatternPlayWrapsLoop(t *testing.T) {
	p := NewPattern(0, 768)
	p.Edit(func(ed Editor) {
		ed.Append(NewNoteOn(0, 0, 60, 100))
		ed.Append(NewNoteOn(700, 0, 62, 100))
		ed.Append(NewNoteOff(768, 0, 62, 0))
		ed.VerifyAndLink(768)
	})
	var got []Pulse
	p.Play(700, 800, func(e *Event) {
		got = append(got, e.Timestamp)
	})
	want := []Pulse{700, 768, 0}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
	if !p.CrossesBoundary(700, 800) || p.CrossesBoundary(10, 700) {
		t.Errorf("boundary detection wrong")
	}
}

func TestPatternQueueAndOneShot(t *testing.T) {
	p := NewPattern(3, 768)
	p.ToggleQueued()
	if p.IsPlaying() {
		t.Fatalf("queue must not start immediately")
	}
	if !p.ApplyQueue() || !p.IsPlaying() || p.IsQueued() {
		t.Fatalf("queued pattern did not start at boundary")
	}
	if p.ApplyQueue() {
		t.Errorf("nothing queued, nothing should change")
	}

	shot := NewPattern(4, 768)
	shot.SetOneShot(true)
	shot.ApplyQueue()
	if !shot.IsPlaying() {
		t.Fatalf("one-shot did not start")
	}
	shot.ApplyQueue()
	if shot.IsPlaying() || shot.IsOneShot() {
		t.Errorf("one-shot should stop after one loop")
	}
}

func TestPatternRecordNeedsArm(t *testing.T) {
	p := NewPattern(0, 768)
	if p.Record(10, NewNoteOn(0, 0, 60, 100)) {
		t.Fatalf("recorded while disarmed")
	}
	p.SetArmed(true)
	p.Record(800, NewNoteOn(0, 0, 60, 100))
	p.Record(900, NewNoteOff(0, 0, 60, 0))
	st := p.Stats()
	if st.Events != 2 || st.Dangling != 0 {
		t.Fatalf("stats = %+v", st)
	}
	p.View(func(pl Player) {
		pl.Range(0, 768, func(e *Event) bool {
			if e.IsNoteOn() && e.Timestamp != 32 {
				t.Errorf("note-on at %d, want 32", e.Timestamp)
			}
			return true
		})
	})
}

func TestPatternRecordBeforeLoopStart(t *testing.T) {
	p := NewPattern(0, 768)
	p.SetArmed(true)
	p.Record(-1, NewNoteOn(0, 0, 60, 100))
	var ts Pulse = -1
	p.View(func(pl Player) {
		pl.Range(0, 768, func(e *Event) bool {
			ts = e.Timestamp
			return false
		})
	})
	if ts != 767 {
		t.Errorf("recorded at %d, want 767", ts)
	}
}

func TestPatternTrackUnsorted(t *testing.T) {
	p := NewPattern(0, 768)
	p.Edit(func(ed Editor) {
		ed.Append(NewNoteOff(300, 0, 60, 0))
		ed.Append(NewNoteOn(100, 0, 60, 100))
	})
	var abs uint32
	var stamps []uint32
	for _, ev := range p.Track() {
		if ev.Delta > 768 {
			t.Fatalf("delta %d past the loop", ev.Delta)
		}
		abs += ev.Delta
		if b := []byte(ev.Message); len(b) == 3 && b[0]&0xE0 == 0x80 {
			stamps = append(stamps, abs)
		}
	}
	if len(stamps) != 2 || stamps[0] != 100 || stamps[1] != 300 {
		t.Errorf("note times = %v, want [100 300]", stamps)
	}
	if abs != 768 {
		t.Errorf("track ends at %d, want 768", abs)
	}
}

func TestScreensetMuteBits(t *testing.T) {
	s := NewScreenset("set", 0)
	a, _ := s.New(0)
	b, _ := s.New(9)
	a.SetPlaying(true)
	bits := s.MuteBits()
	if !bits[0] || bits[9] {
		t.Fatalf("bits = %v", bits)
	}
	changed := s.ApplyMuteBits(make([]bool, SEQS_IN_SET))
	if len(changed) != 1 || changed[0] != 0 || a.IsPlaying() || b.IsPlaying() {
		t.Fatalf("changed = %v", changed)
	}
	if _, err := s.New(SEQS_IN_SET); err == nil {
		t.Errorf("slot out of range accepted")
	}
}

func TestScreensetSMFRoundTrip(t *testing.T) {
	s := NewScreenset("set", 192)
	p, _ := s.New(0)
	p.SetName("bass")
	p.Edit(func(ed Editor) {
		ed.Append(NewNoteOn(0, 2, 40, 100))
		ed.Append(NewNoteOff(96, 2, 40, 0))
		ed.Append(NewControlChange(192, 2, 7, 80))
		ed.VerifyAndLink(768)
	})
	path := filepath.Join(t.TempDir(), "set.mid")
	if err := s.SaveToFile(path, 120); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded := NewScreenset("loaded", 192)
	bpm, err := loaded.LoadFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if bpm < 119.9 || bpm > 120.1 {
		t.Errorf("bpm = %v", bpm)
	}
	lp := loaded.Pattern(0)
	if lp == nil {
		t.Fatalf("slot 0 empty after load")
	}
	st := lp.Stats()
	if st.Name != "bass" || st.Length != 768 || st.Notes != 1 || st.Dangling != 0 {
		t.Fatalf("stats = %+v", st)
	}
}
