package control

import (
	"fmt"
	"strings"
	"sync"

	"github.com/JeanRibes/seqloop/music"
)

type Category int

const (
	CategoryPattern Category = iota
	CategoryMuteGroup
	CategoryAutomation
)

var categoryNames = []string{"pattern", "mute-group", "automation"}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryNames[c]
}

func (c Category) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Category) UnmarshalText(b []byte) error {
	for i, n := range categoryNames {
		if n == strings.ToLower(string(b)) {
			*c = Category(i)
			return nil
		}
	}
	return fmt.Errorf("unknown control category %q", b)
}

type Operation int

const (
	OpToggle Operation = iota
	OpOn
	OpOff
)

var operationNames = []string{"toggle", "on", "off"}

func (op Operation) String() string {
	if op < 0 || int(op) >= len(operationNames) {
		return fmt.Sprintf("Operation(%d)", int(op))
	}
	return operationNames[op]
}

func (op Operation) MarshalText() ([]byte, error) { return []byte(op.String()), nil }

func (op *Operation) UnmarshalText(b []byte) error {
	for i, n := range operationNames {
		if n == strings.ToLower(string(b)) {
			*op = Operation(i)
			return nil
		}
	}
	return fmt.Errorf("unknown control operation %q", b)
}

// Automation indexes of the automation category.
const (
	AutoPlay = iota
	AutoStop
	AutoPause
	AutoRecord
	AutoQueue
	AutoOneShot
	AutoReplace
	AutoSnapshot
	AutoLearn
	AutoBPMUp
	AutoBPMDown
	AutoPanic
	AUTOMATIONS
)

var automationNames = [AUTOMATIONS]string{
	"play", "stop", "pause", "record", "queue", "oneshot", "replace",
	"snapshot", "learn", "bpm-up", "bpm-down", "panic",
}

func AutomationName(i int) string {
	if i < 0 || i >= AUTOMATIONS {
		return fmt.Sprintf("automation %d", i)
	}
	return automationNames[i]
}

func ParseAutomation(s string) (int, error) {
	for i, n := range automationNames {
		if n == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown automation %q", s)
}

// Binding ties an incoming (status, data1) pair with data2 in [Min, Max]
// to an action.
type Binding struct {
	Category  Category  `yaml:"category"`
	Index     int       `yaml:"index"`
	Operation Operation `yaml:"op"`
	Status    byte      `yaml:"status"`
	Data1     byte      `yaml:"d0"`
	Min       byte      `yaml:"min"`
	Max       byte      `yaml:"max"`
}

func (b Binding) String() string {
	return fmt.Sprintf("%s %d %s [ 0x%02x %3d %3d %3d ]", b.Category, b.Index, b.Operation, b.Status, b.Data1, b.Min, b.Max)
}

func (b Binding) matches(ev *music.Event) bool {
	return ev.Status == b.Status && ev.Data1 == b.Data1 && ev.Data2 >= b.Min && ev.Data2 <= b.Max
}

// Action is what a matched event asks for.
type Action struct {
	Category  Category
	Index     int
	Operation Operation
	Value     byte
}

func (a Action) String() string {
	if a.Category == CategoryAutomation {
		return fmt.Sprintf("%s %s", AutomationName(a.Index), a.Operation)
	}
	return fmt.Sprintf("%s %d %s", a.Category, a.Index, a.Operation)
}

// In is the input mapping. The first binding that matches wins.
type In struct {
	bindings []Binding
	enabled  bool
	sync.Mutex
}

func NewIn() *In { return &In{enabled: true} }

func (in *In) SetEnabled(on bool) {
	in.Lock()
	in.enabled = on
	in.Unlock()
}

func (in *In) Count() int {
	in.Lock()
	defer in.Unlock()
	return len(in.bindings)
}

func (in *In) Add(b Binding) error {
	if b.Status < 0x80 || b.Status >= 0xF0 {
		return fmt.Errorf("binding %v: status must be a channel message", b)
	}
	if b.Min > b.Max {
		return fmt.Errorf("binding %v: min above max", b)
	}
	if b.Category == CategoryAutomation && (b.Index < 0 || b.Index >= AUTOMATIONS) {
		return fmt.Errorf("binding %v: unknown automation", b)
	}
	in.Lock()
	in.bindings = append(in.bindings, b)
	in.Unlock()
	return nil
}

func (in *In) Clear() {
	in.Lock()
	in.bindings = nil
	in.Unlock()
}

func (in *In) Lookup(ev *music.Event) (Action, bool) {
	in.Lock()
	defer in.Unlock()
	if !in.enabled {
		return Action{}, false
	}
	for _, b := range in.bindings {
		if b.matches(ev) {
			return Action{Category: b.Category, Index: b.Index, Operation: b.Operation, Value: ev.Data2}, true
		}
	}
	return Action{}, false
}
