package shared

import "fmt"

type Event int

const (
	Quit Event = iota
	Record
	PlayPause
	Stop
	Panic
	Quantize
	StateImport
	StateExport
	Error
	BPM
	PatternToggle
	PatternQueue
	PatternOneShot
	PatternArm
	PatternClear
	PatternChanged
	MuteGroup
	Transport
	PortChanged
)

var eventNames = []string{
	"quit", "record", "play/pause", "stop", "panic", "quantize",
	"import", "export", "error", "bpm", "pattern toggle", "pattern queue",
	"pattern one-shot", "pattern arm", "pattern clear", "pattern changed",
	"mute group", "transport", "port changed",
}

func (e Event) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return fmt.Sprintf("Event(%d)", int(e))
	}
	return eventNames[e]
}

// Message travels between the UI and the control loop in both directions.
type Message struct {
	Type    Event
	Number  int
	Boolean bool
	String  string
	Number2 int
}

const DEFAULT_BPM = float64(120)

const (
	MIN_BPM = 20
	MAX_BPM = 300
)

func ClampBPM(bpm float64) float64 {
	return max(MIN_BPM, min(MAX_BPM, bpm))
}

// SlotName is the default name of a pattern slot.
func SlotName(slot int) string {
	return fmt.Sprintf("pattern %d", slot)
}
