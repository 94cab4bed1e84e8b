package music

import (
	"errors"
	"sync"
)

// SEQS_IN_SET is the slot count of a screenset, 4 rows of 8 columns.
const (
	SET_ROWS    = 4
	SET_COLUMNS = 8
	SEQS_IN_SET = SET_ROWS * SET_COLUMNS
)

// Screenset is the bank of patterns active together.
type Screenset struct {
	Name     string
	Patterns [SEQS_IN_SET]*Pattern
	PPQN     int
	sync.Mutex
}

func NewScreenset(name string, ppqn int) *Screenset {
	if ppqn <= 0 {
		ppqn = DEFAULT_PPQN
	}
	return &Screenset{Name: name, PPQN: ppqn}
}

// Install puts a pattern in its slot, replacing whatever was there.
func (s *Screenset) Install(p *Pattern) error {
	if p.Slot() < 0 || p.Slot() >= SEQS_IN_SET {
		return errors.New("pattern slot out of range")
	}
	s.Lock()
	s.Patterns[p.Slot()] = p
	s.Unlock()
	return nil
}

// New creates an empty one-measure pattern in slot.
func (s *Screenset) New(slot int) (*Pattern, error) {
	p := NewPattern(slot, Pulse(4*s.PPQN))
	if err := s.Install(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Screenset) Pattern(slot int) *Pattern {
	if slot < 0 || slot >= SEQS_IN_SET {
		return nil
	}
	s.Lock()
	defer s.Unlock()
	return s.Patterns[slot]
}

func (s *Screenset) Clear(slot int) {
	if slot < 0 || slot >= SEQS_IN_SET {
		return
	}
	s.Lock()
	s.Patterns[slot] = nil
	s.Unlock()
}

// Active returns the installed patterns in slot order.
func (s *Screenset) Active() []*Pattern {
	s.Lock()
	defer s.Unlock()
	res := make([]*Pattern, 0, SEQS_IN_SET)
	for _, p := range s.Patterns {
		if p != nil {
			res = append(res, p)
		}
	}
	return res
}

func (s *Screenset) Stats() (res []PatternStats) {
	for _, p := range s.Active() {
		res = append(res, p.Stats())
	}
	return
}

// MuteBits reports the play state of every slot.
func (s *Screenset) MuteBits() []bool {
	bits := make([]bool, SEQS_IN_SET)
	for _, p := range s.Active() {
		bits[p.Slot()] = p.IsPlaying()
	}
	return bits
}

// ApplyMuteBits sets the play state of each installed pattern from bits and
// returns the slots that changed.
func (s *Screenset) ApplyMuteBits(bits []bool) (changed []int) {
	for _, p := range s.Active() {
		on := p.Slot() < len(bits) && bits[p.Slot()]
		if p.IsPlaying() != on {
			p.SetPlaying(on)
			changed = append(changed, p.Slot())
		}
	}
	return
}
