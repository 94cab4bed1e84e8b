// Package control maps sequencer state to MIDI feedback for control
// surfaces and incoming MIDI to sequencer actions.
package control

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JeanRibes/seqloop/music"
)

// Template is the event a control cell sends, written "[ 0x90  60 127 ]".
// A zero status means no event.
type Template struct {
	Status byte
	Data1  byte
	Data2  byte
}

func (t Template) IsZero() bool { return t.Status == 0 }

func (t Template) Event() *music.Event {
	return &music.Event{Status: t.Status, Data1: t.Data1, Data2: t.Data2}
}

func (t Template) String() string {
	return fmt.Sprintf("[ 0x%02x %3d %3d ]", t.Status, t.Data1, t.Data2)
}

// ParseTemplate reads the bracketed form; numbers may be decimal or 0x hex.
func ParseTemplate(s string) (Template, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return Template{}, fmt.Errorf("template %q: want [ status d0 d1 ]", s)
	}
	fields := strings.Fields(s[1 : len(s)-1])
	if len(fields) != 3 {
		return Template{}, fmt.Errorf("template %q: want 3 numbers", s)
	}
	var v [3]byte
	for i, f := range fields {
		n, err := strconv.ParseUint(f, 0, 8)
		if err != nil {
			return Template{}, fmt.Errorf("template %q: %w", s, err)
		}
		v[i] = byte(n)
	}
	if v[0] != 0 && v[0] < 0x80 {
		return Template{}, fmt.Errorf("template %q: 0x%02x is not a status byte", s, v[0])
	}
	return Template{Status: v[0], Data1: v[1], Data2: v[2]}, nil
}

func (t Template) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Template) UnmarshalText(b []byte) error {
	v, err := ParseTemplate(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
