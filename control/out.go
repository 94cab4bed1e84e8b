package control

import (
	"fmt"
	"os"
	"sync"

	"github.com/JeanRibes/seqloop/music"
	charmlog "github.com/charmbracelet/log"
)

type SeqAction int

const (
	SeqArm SeqAction = iota
	SeqMute
	SeqQueue
	SeqDelete
	SEQ_ACTIONS
)

var seqActionNames = [SEQ_ACTIONS]string{"arm", "mute", "queue", "delete"}

func (a SeqAction) String() string {
	if a < 0 || a >= SEQ_ACTIONS {
		return fmt.Sprintf("SeqAction(%d)", int(a))
	}
	return seqActionNames[a]
}

type UIAction int

const (
	UIPlay UIAction = iota
	UIStop
	UIPause
	UIQueue
	UIOneShot
	UIReplace
	UISnap1
	UISnap2
	UILearn
	UI_ACTIONS
)

var uiActionNames = [UI_ACTIONS]string{"play", "stop", "pause", "queue", "oneshot", "replace", "snap1", "snap2", "learn"}

func (a UIAction) String() string {
	if a < 0 || a >= UI_ACTIONS {
		return fmt.Sprintf("UIAction(%d)", int(a))
	}
	return uiActionNames[a]
}

func ParseUIAction(s string) (UIAction, error) {
	for i, n := range uiActionNames {
		if n == s {
			return UIAction(i), nil
		}
	}
	return 0, fmt.Errorf("unknown ui action %q", s)
}

func ParseSeqAction(s string) (SeqAction, error) {
	for i, n := range seqActionNames {
		if n == s {
			return SeqAction(i), nil
		}
	}
	return 0, fmt.Errorf("unknown pattern action %q", s)
}

type MuteAction int

const (
	MuteOn MuteAction = iota
	MuteOff
	MuteDelete
)

const DEFAULT_MUTE_GROUPS = 32

// Sender is the part of the master bus that feedback needs.
type Sender interface {
	Play(bus int, ev *music.Event, channel uint8) bool
	Flush()
}

type seqCell struct {
	enabled bool
	event   Template
}

type pairCell struct {
	enabled bool
	on, off Template
	del     Template
}

// active requires both halves of the pair.
func (c *pairCell) active() bool {
	return c.enabled && !c.on.IsZero() && !c.off.IsZero()
}

// Out holds the feedback tables: per pattern slot and action, per UI
// action, and per mute group.
type Out struct {
	sender  Sender
	bus     int
	enabled bool
	seqs    [][SEQ_ACTIONS]seqCell
	ui      [UI_ACTIONS]pairCell
	mutes   []pairCell
	logger  *charmlog.Logger

	sync.Mutex
}

// NewOut builds disabled tables. sender may be nil until the master bus
// exists; nothing is sent while it is.
func NewOut(sender Sender, logger *charmlog.Logger) *Out {
	if logger == nil {
		logger = charmlog.NewWithOptions(os.Stdout, charmlog.Options{Level: charmlog.InfoLevel})
	}
	return &Out{
		sender: sender,
		mutes:  make([]pairCell, DEFAULT_MUTE_GROUPS),
		logger: logger.WithPrefix("ctrl"),
	}
}

// Initialize sizes the pattern table to count slots, clears every cell and
// binds the output bus.
func (o *Out) Initialize(count, bus int) {
	o.Lock()
	defer o.Unlock()
	o.bus = bus
	o.seqs = make([][SEQ_ACTIONS]seqCell, count)
	o.ui = [UI_ACTIONS]pairCell{}
	o.mutes = make([]pairCell, DEFAULT_MUTE_GROUPS)
}

func (o *Out) SetSender(s Sender) {
	o.Lock()
	o.sender = s
	o.Unlock()
}

func (o *Out) Bus() int {
	o.Lock()
	defer o.Unlock()
	return o.bus
}

func (o *Out) SetEnabled(on bool) {
	o.Lock()
	o.enabled = on
	o.Unlock()
}

func (o *Out) IsEnabled() bool {
	o.Lock()
	defer o.Unlock()
	return o.enabled
}

// IsBlank is true while no cell is enabled.
func (o *Out) IsBlank() bool {
	o.Lock()
	defer o.Unlock()
	for _, cells := range o.seqs {
		for _, c := range cells {
			if c.enabled {
				return false
			}
		}
	}
	for _, c := range o.ui {
		if c.enabled {
			return false
		}
	}
	for _, c := range o.mutes {
		if c.enabled {
			return false
		}
	}
	return true
}

func (o *Out) seqCell(index int, what SeqAction) *seqCell {
	if index < 0 || index >= len(o.seqs) || what < 0 || what >= SEQ_ACTIONS {
		return nil
	}
	return &o.seqs[index][what]
}

// SetSeqEvent stores the template for a pattern slot. A zero status
// disables the cell.
func (o *Out) SetSeqEvent(index int, what SeqAction, t Template) bool {
	o.Lock()
	defer o.Unlock()
	c := o.seqCell(index, what)
	if c == nil {
		return false
	}
	c.event = t
	c.enabled = !t.IsZero()
	return true
}

func (o *Out) SeqEventIsActive(index int, what SeqAction) bool {
	o.Lock()
	defer o.Unlock()
	c := o.seqCell(index, what)
	return c != nil && c.enabled
}

// SendSeqEvent sends the feedback of one pattern slot.
func (o *Out) SendSeqEvent(index int, what SeqAction, flush bool) bool {
	o.Lock()
	defer o.Unlock()
	return o.sendSeq(index, what, flush)
}

func (o *Out) sendSeq(index int, what SeqAction, flush bool) bool {
	c := o.seqCell(index, what)
	if !o.enabled || c == nil || !c.enabled || o.sender == nil {
		return false
	}
	o.sender.Play(o.bus, c.event.Event(), music.FreeChannel)
	if flush {
		o.sender.Flush()
	}
	return true
}

// ClearSequences sends the delete feedback of every slot.
func (o *Out) ClearSequences(flush bool) {
	o.Lock()
	defer o.Unlock()
	if !o.enabled {
		return
	}
	for i := range o.seqs {
		o.sendSeq(i, SeqDelete, false)
	}
	if flush && o.sender != nil {
		o.sender.Flush()
	}
}

// SetEvent stores the on and off templates of a UI action.
func (o *Out) SetEvent(what UIAction, enabled bool, on, off Template) bool {
	if what < 0 || what >= UI_ACTIONS {
		return false
	}
	o.Lock()
	defer o.Unlock()
	o.ui[what] = pairCell{enabled: enabled, on: on, off: off}
	if enabled && !o.ui[what].active() {
		o.logger.Warn("ui action needs both events, disabled", "action", what, "on", on, "off", off)
	}
	return true
}

// EventIsActive reports a usable UI cell: enabled with both statuses set.
func (o *Out) EventIsActive(what UIAction) bool {
	if what < 0 || what >= UI_ACTIONS {
		return false
	}
	o.Lock()
	defer o.Unlock()
	return o.ui[what].active()
}

// SendEvent sends the on or off feedback of a UI action and flushes.
func (o *Out) SendEvent(what UIAction, on bool) bool {
	if what < 0 || what >= UI_ACTIONS {
		return false
	}
	o.Lock()
	defer o.Unlock()
	c := &o.ui[what]
	if !o.enabled || !c.active() || o.sender == nil {
		return false
	}
	t := c.off
	if on {
		t = c.on
	}
	o.sender.Play(o.bus, t.Event(), music.FreeChannel)
	o.sender.Flush()
	return true
}

func (o *Out) SendLearnComplete() bool { return o.SendEvent(UILearn, false) }

// SetMutesEvent stores a mute group's templates; the group is enabled when
// the on status is set.
func (o *Out) SetMutesEvent(group int, on, off, del Template) bool {
	if group < 0 {
		return false
	}
	o.Lock()
	defer o.Unlock()
	for group >= len(o.mutes) {
		o.mutes = append(o.mutes, pairCell{})
	}
	o.mutes[group] = pairCell{enabled: !on.IsZero(), on: on, off: off, del: del}
	return true
}

func (o *Out) MutesEventIsActive(group int) bool {
	o.Lock()
	defer o.Unlock()
	return group >= 0 && group < len(o.mutes) && o.mutes[group].active()
}

// SendMutesEvent sends one of a group's events and flushes.
func (o *Out) SendMutesEvent(group int, which MuteAction) bool {
	o.Lock()
	defer o.Unlock()
	if !o.enabled || group < 0 || group >= len(o.mutes) || o.sender == nil {
		return false
	}
	c := &o.mutes[group]
	if !c.active() {
		return false
	}
	var t Template
	switch which {
	case MuteOn:
		t = c.on
	case MuteOff:
		t = c.off
	case MuteDelete:
		t = c.del
	}
	if t.IsZero() {
		return false
	}
	o.sender.Play(o.bus, t.Event(), music.FreeChannel)
	o.sender.Flush()
	return true
}

func (o *Out) SeqEventString(index int, what SeqAction) string {
	o.Lock()
	defer o.Unlock()
	if c := o.seqCell(index, what); c != nil {
		return c.event.String()
	}
	return Template{}.String()
}

func (o *Out) EventString(what UIAction, on bool) string {
	if what < 0 || what >= UI_ACTIONS {
		return Template{}.String()
	}
	o.Lock()
	defer o.Unlock()
	if on {
		return o.ui[what].on.String()
	}
	return o.ui[what].off.String()
}
