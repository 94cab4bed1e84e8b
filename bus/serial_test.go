package bus

import (
	"bytes"
	"strings"
	"testing"
)

func TestStreamParser(t *testing.T) {
	in := []byte{
		0x90, 60, 100, // note on
		62, 100, // running status
		0xF8,      // realtime in between
		64, 0xFE, 0, // realtime inside a message
		0xC1, 5, // program change
		0xF0, 0x7E, 0x01, 0xF7, // sysex
		0x40, // data without status after sysex
	}
	var got [][]byte
	var p streamParser
	for _, c := range in {
		p.feed(c, func(msg []byte) { got = append(got, append([]byte(nil), msg...)) })
	}
	want := [][]byte{
		{0x90, 60, 100},
		{0x90, 62, 100},
		{0xF8},
		{0xFE},
		{0x90, 64, 0},
		{0xC1, 5},
		{0xF0, 0x7E, 0x01, 0xF7},
	}
	if len(got) != len(want) {
		t.Fatalf("got % x", got)
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("message %d: % x, want % x", i, got[i], want[i])
		}
	}
}

func TestParseKeymap(t *testing.T) {
	km, err := ParseKeymap(strings.NewReader("# piano\n12:60\n13:-64\nbad\n14:300\n"))
	if err == nil {
		t.Errorf("bad lines accepted")
	}
	if km[12] != 60 || km[13] != -64 || len(km) != 2 {
		t.Fatalf("keymap %v", km)
	}
}

func TestKeyboard(t *testing.T) {
	kb := &keyboard{keymap: Keymap{12: 60, 13: -64}, channel: 2}
	if m := kb.translate(0x00, 12); !bytes.Equal(m.Bytes(), []byte{0x92, 60, 64}) {
		t.Errorf("press: % x", m)
	}
	if m := kb.translate(0x00, 12); m != nil {
		t.Errorf("repeat press: % x", m)
	}
	if m := kb.translate(0x80, 12); !bytes.Equal(m.Bytes(), []byte{0x82, 60, 0}) {
		t.Errorf("release: % x", m)
	}
	if m := kb.translate(0x00, 13); !bytes.Equal(m.Bytes(), []byte{0xB2, 64, 64}) {
		t.Errorf("controller on: % x", m)
	}
	kb.translate(0x80, 13)
	if m := kb.translate(0x00, 13); !bytes.Equal(m.Bytes(), []byte{0xB2, 64, 0}) {
		t.Errorf("controller off: % x", m)
	}
	if m := kb.translate(0x00, 99); m != nil {
		t.Errorf("unmapped key: % x", m)
	}
}
