package music

import (
	"bytes"
	"errors"
	"fmt"

	"gitlab.com/gomidi/midi/v2/smf"
	"gitlab.com/gomidi/quantizer/lib/quantizer"
)

const metaEndOfTrack = 0x2F

// Track renders the pattern as an SMF track: name first, then the events
// as deltas, closed at the loop end.
func (p *Pattern) Track() smf.Track {
	name := p.Name()
	p.Lock()
	defer p.Unlock()
	if !p.events.IsSorted() {
		p.events.Sort()
	}
	tr := smf.Track{}
	tr.Add(0, smf.MetaTrackSequenceName(name))
	var last Pulse
	for _, e := range p.events.Events() {
		b := e.Bytes()
		if len(b) == 0 {
			continue
		}
		tr.Add(uint32(e.Timestamp-last), b)
		last = e.Timestamp
	}
	end := p.events.Length() - last
	if end < 0 {
		end = 0
	}
	tr.Close(uint32(end))
	return tr
}

// LoadTrack replaces the pattern contents with an SMF track recorded at
// filePPQN, rescaled to ppqn. The length is rounded up to whole measures.
func (p *Pattern) LoadTrack(tr smf.Track, filePPQN, ppqn int) {
	var abs Pulse
	var name string
	list := NewEventList(0)
	for _, ev := range tr {
		abs += Pulse(ev.Delta)
		b := []byte(ev.Message)
		if len(b) == 0 {
			continue
		}
		if b[0] == StatusMeta {
			if len(b) > 1 && b[1] == metaEndOfTrack {
				continue
			}
			var text string
			if ev.Message.GetMetaTrackName(&text) {
				name = text
				continue
			}
		}
		e := &Event{Timestamp: abs, Status: b[0]}
		switch {
		case b[0] >= StatusSysEx:
			e.Meta = append([]byte(nil), b...)
		default:
			if len(b) > 1 {
				e.Data1 = b[1]
			}
			if len(b) > 2 {
				e.Data2 = b[2]
			}
		}
		list.Append(e)
	}
	if filePPQN != ppqn {
		list.Rescale(filePPQN, ppqn)
		abs = rescaleTick(abs, filePPQN, ppqn)
	}
	measure := Pulse(4 * ppqn)
	length := max(abs, list.GetMaxTimestamp())
	if measure > 0 {
		length = ((length + measure - 1) / measure) * measure
	}
	if length == 0 {
		length = measure
	}
	list.SetLength(length)
	list.VerifyAndLink(length)
	list.Unmodify()

	p.Lock()
	list.rnd = p.events.rnd
	list.noteOffMargin = p.events.noteOffMargin
	p.events = list
	if name != "" {
		p.name = name
	}
	p.Unlock()
}

// SaveToFile writes one track per installed pattern, with the tempo in
// the first one.
func (s *Screenset) SaveToFile(filepath string, bpm float64) (errs error) {
	f := smf.New()
	f.TimeFormat = smf.MetricTicks(s.PPQN)
	for i, p := range s.Active() {
		tr := p.Track()
		if i == 0 {
			tr = append(smf.Track{{Delta: 0, Message: smf.MetaTempo(bpm)}}, tr...)
		}
		if err := f.Add(tr); err != nil {
			errs = errors.Join(errs, fmt.Errorf("pattern %d: %w", p.Slot(), err))
		}
	}
	if err := f.WriteFile(filepath); err != nil {
		errs = errors.Join(errs, err)
	}
	return errs
}

// LoadFromFile installs track i of an SMF file into slot i and returns
// the file tempo, or 0 when it has none.
func (s *Screenset) LoadFromFile(filepath string) (bpm float64, err error) {
	f, err := smf.ReadFile(filepath)
	if err != nil {
		return 0, err
	}
	if f.NumTracks() < 1 {
		return 0, errors.New("no tracks in file")
	}
	filePPQN := s.PPQN
	if mt, ok := f.TimeFormat.(smf.MetricTicks); ok {
		filePPQN = int(mt)
	}
	for i, tr := range f.Tracks {
		if i >= SEQS_IN_SET {
			break
		}
		for _, ev := range tr {
			if bpm == 0 {
				ev.Message.GetMetaTempo(&bpm)
			}
		}
		p := NewPattern(i, 0)
		p.LoadTrack(tr, filePPQN, s.PPQN)
		if err := s.Install(p); err != nil {
			return bpm, err
		}
	}
	return bpm, nil
}

// QuantizeSMF runs the pattern through the SMF quantizer at the given
// tempo and reloads the result.
func (p *Pattern) QuantizeSMF(bpm float64, ppqn int) error {
	var in, out bytes.Buffer
	f := smf.New()
	f.TimeFormat = smf.MetricTicks(ppqn)
	tr := append(smf.Track{{Delta: 0, Message: smf.MetaTempo(bpm)}}, p.Track()...)
	if err := f.Add(tr); err != nil {
		return err
	}
	if _, err := f.WriteTo(&in); err != nil {
		return err
	}
	if err := quantizer.Quantize(&in, &out); err != nil {
		return err
	}
	q, err := smf.ReadFrom(&out)
	if err != nil {
		return err
	}
	if q.NumTracks() < 1 {
		return errors.New("quantizer returned no track")
	}
	filePPQN := ppqn
	if mt, ok := q.TimeFormat.(smf.MetricTicks); ok {
		filePPQN = int(mt)
	}
	length := p.Length()
	p.LoadTrack(q.Tracks[0], filePPQN, ppqn)
	p.SetLength(length)
	return nil
}
