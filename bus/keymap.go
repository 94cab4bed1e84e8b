package bus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gitlab.com/gomidi/midi/v2"
)

// Keymap maps the key codes of a serial key matrix to notes. A negative
// value -n makes the key a toggle for controller n.
type Keymap map[int]int

// LoadKeymap reads one "keycode:note" pair per line.
func LoadKeymap(filename string) (Keymap, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ParseKeymap(file)
}

func ParseKeymap(r io.Reader) (Keymap, error) {
	keymap := Keymap{}
	var errs []error
	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		s := strings.Split(line, ":")
		if len(s) != 2 {
			errs = append(errs, fmt.Errorf("keymap line %d: %q", n, line))
			continue
		}
		key, err1 := strconv.Atoi(strings.TrimSpace(s[0]))
		val, err2 := strconv.Atoi(strings.TrimSpace(s[1]))
		if err := errors.Join(err1, err2); err != nil {
			errs = append(errs, fmt.Errorf("keymap line %d: %w", n, err))
			continue
		}
		if val > 127 || val < -127 {
			errs = append(errs, fmt.Errorf("keymap line %d: value %d out of range", n, val))
			continue
		}
		keymap[key] = val
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, err)
	}
	return keymap, errors.Join(errs...)
}

// keyboard turns key matrix frames into MIDI messages. A frame is a status
// byte, whose high bit is clear on press, and a key code.
type keyboard struct {
	keymap     Keymap
	channel    uint8
	state      [256]bool
	controller [256]bool
}

func (k *keyboard) translate(status, code byte) midi.Message {
	noteOn := (status >> 7) == 0
	if k.state[code] && noteOn {
		return nil
	}
	k.state[code] = noteOn

	note, ok := k.keymap[int(code)]
	if !ok {
		return nil
	}
	if note < 0 {
		if !noteOn {
			return nil
		}
		value := uint8(64)
		if k.controller[code] {
			value = 0
		}
		k.controller[code] = !k.controller[code]
		return midi.ControlChange(k.channel, uint8(-note), value)
	}
	if noteOn {
		return midi.NoteOn(k.channel, uint8(note), 64)
	}
	return midi.NoteOff(k.channel, uint8(note))
}
