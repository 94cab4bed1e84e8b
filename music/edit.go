package music

// Select is the action applied by the selection functions.
type Select int

const (
	Selecting Select = iota
	SelectOne
	Selected // counts as 1 if any hit is already selected
	WouldSelect
	Toggle
	Remove
	Deselect
)

func (s Select) String() string {
	switch s {
	case Selecting:
		return "selecting"
	case SelectOne:
		return "select_one"
	case Selected:
		return "selected"
	case WouldSelect:
		return "would_select"
	case Toggle:
		return "toggle"
	case Remove:
		return "remove"
	case Deselect:
		return "deselect"
	}
	return "unknown"
}

func isDesiredCC(status, cc byte, e *Event) bool {
	if status == StatusControlChange {
		return e.Data1 == cc
	}
	return true
}

func (l *EventList) eventInRange(e *Event, status byte, from, to Pulse) bool {
	if e.Timestamp < from || e.Timestamp > to {
		return false
	}
	if status == StatusMeta {
		return e.IsMeta()
	}
	return e.Type() == status
}

// SelectEvents applies action to events of the given type (and controller,
// for control changes) with from <= t <= to.
func (l *EventList) SelectEvents(from, to Pulse, status, cc byte, action Select) int {
	result := 0
	var removed []*Event
	for _, e := range l.events {
		if !l.eventInRange(e, status, from, to) {
			continue
		}
		if !e.IsTempo() && !isDesiredCC(status, cc, e) {
			continue
		}
		switch action {
		case Selecting:
			e.Select()
			result++
		case SelectOne:
			e.Select()
			return result + 1
		case Selected:
			if e.IsSelected() {
				return 1
			}
		case WouldSelect:
			return 1
		case Toggle:
			if e.IsSelected() {
				e.Unselect()
			} else {
				e.Select()
			}
		case Remove:
			removed = append(removed, e)
			result++
		case Deselect:
			e.Unselect()
		}
		if action == Remove {
			break
		}
	}
	for _, e := range removed {
		l.RemoveEvent(e)
	}
	return result
}

// SelectNoteEvents applies action to notes between noteL and noteH whose
// span overlaps [from, to]. Linked pairs are handled together.
func (l *EventList) SelectNoteEvents(from Pulse, noteH int, to Pulse, noteL int, action Select) int {
	result := 0
	for _, e := range l.events {
		if !e.IsNote() || int(e.Data1) > noteH || int(e.Data1) < noteL {
			continue
		}
		var start, finish Pulse
		partner := e.Link()
		if partner != nil {
			if e.IsNoteOff() {
				start, finish = partner.Timestamp, e.Timestamp
			} else {
				start, finish = e.Timestamp, partner.Timestamp
			}
			overlap := start <= to && finish >= from
			either := start <= to || finish >= from
			if !(overlap || (start > finish && either)) {
				continue
			}
		} else if e.Timestamp < from || e.Timestamp > to {
			continue
		}
		switch action {
		case Selecting:
			selectPair(e, true)
			result++
		case SelectOne:
			selectPair(e, true)
			return result + 1
		case Selected:
			if e.IsSelected() {
				return 1
			}
		case WouldSelect:
			return 1
		case Deselect:
			selectPair(e, false)
		case Toggle:
			if e.IsNoteOn() {
				selectPair(e, !e.IsSelected())
				result++
			}
		case Remove:
			l.RemoveEvent(e)
			if partner != nil {
				l.RemoveEvent(partner)
			}
			return result + 1
		}
	}
	return result
}

func selectPair(e *Event, on bool) {
	if on {
		e.Select()
	} else {
		e.Unselect()
	}
	if p := e.Link(); p != nil {
		if on {
			p.Select()
		} else {
			p.Unselect()
		}
	}
}

func (l *EventList) SelectAll() {
	for _, e := range l.events {
		e.Select()
	}
}

func (l *EventList) UnselectAll() {
	for _, e := range l.events {
		e.Unselect()
	}
}

func (l *EventList) CountSelectedNotes() int {
	n := 0
	for _, e := range l.events {
		if e.IsNoteOn() && e.IsSelected() {
			n++
		}
	}
	return n
}

func (l *EventList) AnySelectedNotes() bool {
	for _, e := range l.events {
		if e.IsNoteOn() && e.IsSelected() {
			return true
		}
	}
	return false
}

func (l *EventList) CountSelectedEvents(status, cc byte) int {
	n := 0
	for _, e := range l.events {
		if e.Type() == status && e.IsSelected() && isDesiredCC(status, cc, e) {
			n++
		}
	}
	return n
}

func (l *EventList) selectedInterval() (first, last Pulse, ok bool) {
	for _, e := range l.events {
		if !e.IsSelected() {
			continue
		}
		if !ok || e.Timestamp < first {
			first = e.Timestamp
		}
		if !ok || e.Timestamp >= last {
			last = e.Timestamp
		}
		ok = true
	}
	return
}

// adjustTimestamp wraps t into the loop. A note-off may sit on the loop
// end; one landing on 0 is pulled back to the end. A note-on landing on
// the end goes to 0.
func (l *EventList) adjustTimestamp(t Pulse, isNoteOff bool) Pulse {
	if l.length <= 0 {
		return t
	}
	if t > l.length {
		t %= l.length
	}
	if t < 0 {
		t = t%l.length + l.length
	}
	switch {
	case isNoteOff && t == 0:
		t = l.length - l.noteOffMargin
	case !isNoteOff && t == l.length:
		t = 0
	}
	return t
}

func (l *EventList) trimTimestamp(t Pulse) Pulse {
	if l.length <= 0 {
		return t
	}
	if t >= l.length {
		t -= l.length
	}
	if t < 0 {
		t += l.length
	}
	if t == 0 {
		t = l.length - l.noteOffMargin
	}
	return t
}

func (l *EventList) clipTimestamp(on, off Pulse, snap int) Pulse {
	if off <= on {
		off = on + Pulse(snap) - l.noteOffMargin
	}
	if l.length > 0 && off >= l.length {
		off = l.length - l.noteOffMargin
	}
	return off
}

// QuantizeEvents snaps selected events of the given type toward the
// nearest multiple of snap; divide > 1 moves only part of the way. With
// fixlink the note-off of a quantized note moves by the same amount.
func (l *EventList) QuantizeEvents(status, cc byte, snap, divide int, fixlink bool) bool {
	if snap <= 0 || divide <= 0 {
		return false
	}
	result := false
	s := Pulse(snap)
	for _, e := range l.events {
		if !e.IsSelected() || e.Type() != status || !isDesiredCC(status, cc, e) {
			continue
		}
		t := e.Timestamp
		rem := t % s
		var delta Pulse
		if rem < s/2 {
			delta = -(rem / Pulse(divide))
		} else {
			delta = (s - rem) / Pulse(divide)
		}
		if t+delta >= l.length {
			delta = -t
		}
		e.Timestamp = t + delta
		result = true
		if e.IsLinked() && fixlink {
			off := e.Link()
			ft := off.Timestamp + delta
			if ft < 0 {
				ft += l.length
			}
			if ft > l.length {
				ft -= l.length
			}
			if ft == l.length {
				ft -= l.noteOffMargin
			}
			off.Timestamp = ft
		}
	}
	if result {
		l.VerifyAndLink(0)
	}
	return result
}

// QuantizeNotes quantizes selected note-ons and drags their offs along.
func (l *EventList) QuantizeNotes(snap, divide int) bool {
	return l.QuantizeEvents(StatusNoteOn, 0, snap, divide, true)
}

func (l *EventList) jitter(r int) int {
	if r <= 0 {
		return 0
	}
	return l.rnd.IntN(2*r+1) - r
}

func clampData(v int) byte {
	if v < 0 {
		return 0
	}
	if v > MAX_DATA {
		return MAX_DATA
	}
	return byte(v)
}

// RandomizeSelected jitters the value byte of selected events of the given
// type: the second data byte, or the first for one-byte messages.
func (l *EventList) RandomizeSelected(status byte, rng int) bool {
	result := false
	for _, e := range l.events {
		if !e.IsSelected() || e.Type() != status {
			continue
		}
		r := l.jitter(rng)
		if r == 0 {
			continue
		}
		if e.IsTwoBytes() {
			e.Data1 = clampData(int(e.Data1) + r)
		} else {
			e.Data2 = clampData(int(e.Data2) + r)
		}
		result = true
	}
	if result {
		l.modified = true
	}
	return result
}

// RandomizeSelectedNotes jitters velocity by up to rng and timing by up to
// jitter pulses, clamping time to [0, length].
func (l *EventList) RandomizeSelectedNotes(jitter, rng int) bool {
	result := false
	for _, e := range l.events {
		if !e.IsSelected() || !e.IsNote() {
			continue
		}
		if r := l.jitter(rng); r != 0 {
			e.Data2 = clampData(int(e.Data2) + r)
			result = true
		}
		if r := l.jitter(jitter); r != 0 {
			t := e.Timestamp + Pulse(r)
			if t < 0 {
				t = 0
			} else if t > l.length {
				t = l.length
			}
			e.Timestamp = t
			result = true
		}
	}
	if result {
		l.modified = true
		l.VerifyAndLink(0)
	}
	return result
}

// MoveSelectedNotes shifts selected notes in time (wrapping in the loop)
// and pitch. Notes that would leave 0..127 stay put.
func (l *EventList) MoveSelectedNotes(dtick Pulse, dnote int) bool {
	result := false
	for _, e := range l.events {
		if !e.IsSelected() || !e.IsNote() {
			continue
		}
		n := int(e.Data1) + dnote
		if n < 0 || n > MAX_DATA {
			continue
		}
		e.Timestamp = l.adjustTimestamp(e.Timestamp+dtick, e.IsNoteOff())
		e.Data1 = byte(n)
		result = true
	}
	if result {
		l.modified = true
		l.VerifyAndLink(0)
	}
	return result
}

// StretchSelected scales the selected span so its length changes by delta.
func (l *EventList) StretchSelected(delta Pulse) bool {
	first, last, ok := l.selectedInterval()
	if !ok {
		return false
	}
	oldLen := last - first
	newLen := oldLen + delta
	if newLen <= 1 || oldLen <= 0 {
		return false
	}
	ratio := float64(newLen) / float64(oldLen)
	result := false
	for _, e := range l.events {
		if e.IsSelected() {
			e.Timestamp = Pulse(ratio*float64(e.Timestamp-first)) + first
			result = true
		}
	}
	if result {
		l.modified = true
		l.VerifyAndLink(0)
	}
	return result
}

// GrowSelected lengthens selected notes by moving their note-offs; other
// selected events move by delta, clipped to the loop.
func (l *EventList) GrowSelected(delta Pulse, snap int) bool {
	result := false
	for _, e := range l.events {
		if !e.IsSelected() {
			continue
		}
		if e.IsNote() {
			if e.IsNoteOn() && e.IsLinked() {
				off := e.Link()
				off.Timestamp = l.trimTimestamp(off.Timestamp + delta)
				result = true
			}
			continue
		}
		e.Timestamp = l.clipTimestamp(e.Timestamp, e.Timestamp+delta, snap)
		result = true
	}
	if result {
		l.modified = true
		l.VerifyAndLink(0)
	}
	return result
}

// TransposeNotes moves selected notes, and aftertouch riding on them, by
// tn semitones. Events that would leave the MIDI range are skipped.
func (l *EventList) TransposeNotes(tn int) bool {
	if tn == 0 {
		return false
	}
	result := false
	for _, e := range l.events {
		if e.IsSelected() && e.IsNoteMsg() {
			if e.TransposeNote(tn) {
				result = true
			}
		}
	}
	if result {
		l.modified = true
		l.VerifyAndLink(0)
	}
	return result
}

// CopySelected fills clip with copies of the selected events, shifted so
// the first one sits at 0.
func (l *EventList) CopySelected(clip *EventList) bool {
	first, _, ok := l.selectedInterval()
	if !ok {
		return false
	}
	clip.Clear()
	for _, e := range l.events {
		if e.IsSelected() {
			c := e.Clone()
			c.Timestamp -= first
			clip.Append(c)
		}
	}
	clip.Sort()
	return true
}

// PasteSelected merges the clipboard at tick, transposed so its highest
// note lands on note. The clipboard is left untouched.
func (l *EventList) PasteSelected(clip *EventList, tick Pulse, note int) bool {
	if clip.Empty() {
		return false
	}
	highest := 0
	for _, e := range clip.events {
		if e.IsNoteMsg() && int(e.Data1) > highest {
			highest = int(e.Data1)
		}
	}
	dnote := note - highest
	tmp := NewEventList(clip.length)
	for _, e := range clip.events {
		c := e.Clone()
		c.Timestamp += tick
		if c.IsNoteMsg() {
			c.Data1 = clampData(int(c.Data1) + dnote)
		}
		tmp.Append(c)
	}
	l.Merge(tmp, true)
	l.VerifyAndLink(0)
	return true
}
