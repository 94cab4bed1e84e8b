package config

import (
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JeanRibes/seqloop/bus"
	"github.com/JeanRibes/seqloop/control"
	"github.com/JeanRibes/seqloop/music"
	"github.com/JeanRibes/seqloop/mutes"
	charmlog "github.com/charmbracelet/log"
)

const sample = `
backend: fake
client_name: looper
ppqn: 96
bpm: 140
log_level: debug
clocks:
  "Launchpad": pos
  "TB-3": off
inputs:
  "Launchpad": false
control_out:
  enabled: true
  bus: 1
  sequences:
    - slot: 3
      action: arm
      event: "[ 0x90 3 127 ]"
  ui:
    - action: play
      enabled: true
      on: "[ 0xb0 20 127 ]"
      off: "[ 0xb0 20 0 ]"
control_in:
  enabled: true
  bindings:
    - category: pattern
      index: 3
      op: toggle
      status: 0x90
      d0: 3
      min: 1
      max: 127
mutes:
  rows: 4
  columns: 8
  hex: true
`

func TestRead(t *testing.T) {
	c := Default()
	if err := c.Read(strings.NewReader(sample)); err != nil {
		t.Fatal(err)
	}
	if c.Backend != BACKEND_FAKE || c.PPQN != 96 || c.BPM != 140 || c.ClientName != "looper" {
		t.Errorf("scalars: %+v", c)
	}
	if c.Clocks["Launchpad"] != bus.ClockPos || c.Clocks["TB-3"] != bus.ClockOff {
		t.Errorf("clocks: %v", c.Clocks)
	}
	if c.Serial.BaudRate != bus.DEFAULT_BAUDRATE {
		t.Errorf("default lost: %d", c.Serial.BaudRate)
	}
	if got := c.ControlOut.Sequences[0].Template; got != (control.Template{Status: 0x90, Data1: 3, Data2: 127}) {
		t.Errorf("template %v", got)
	}
	if b := c.ControlIn.Bindings[0]; b.Category != control.CategoryPattern || b.Status != 0x90 || b.Max != 127 {
		t.Errorf("binding %v", b)
	}
}

func TestValidate(t *testing.T) {
	c := Default()
	err := c.Read(strings.NewReader("backend: jack\nbpm: 900\ncontrol_out:\n  ui:\n    - action: dance\n"))
	if err == nil {
		t.Fatal("bad config accepted")
	}
	for _, want := range []string{"jack", "900", "dance"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("%q not reported in %v", want, err)
		}
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seqloop.yaml")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("missing file: %v", err)
	}
	c.BPM = 90
	c.Clocks = map[string]bus.Clock{"synth": bus.ClockMod}
	if err := c.Save(path); err != nil {
		t.Fatal(err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if back.BPM != 90 || back.Clocks["synth"] != bus.ClockMod {
		t.Errorf("round trip: %+v", back)
	}
}

func TestApply(t *testing.T) {
	c := Default()
	if err := c.Read(strings.NewReader(sample)); err != nil {
		t.Fatal(err)
	}

	pm := &bus.PortMap{}
	pm.Clocks.AddPort(bus.ClockMod, "TB-3")
	c.ApplyPorts(pm)
	if pm.Clocks.Count() != 2 || pm.Clocks.Get(pm.Clocks.Lookup("TB-3")) != bus.ClockMod {
		t.Errorf("saved clock overridden: %v", pm.Clocks.Lines())
	}
	if pm.Ins.Get(pm.Ins.Lookup("Launchpad")) {
		t.Errorf("input setting not applied")
	}

	out := control.NewOut(nil, charmlog.New(io.Discard))
	in := control.NewIn()
	if err := c.ApplyControl(out, in); err != nil {
		t.Fatal(err)
	}
	if !out.IsEnabled() || out.Bus() != 1 || !out.SeqEventIsActive(3, control.SeqArm) || !out.EventIsActive(control.UIPlay) {
		t.Errorf("control out not loaded")
	}
	if _, ok := in.Lookup(music.NewNoteOn(0, 0, 3, 64)); !ok {
		t.Errorf("binding not loaded")
	}

	g := mutes.New(2, 2)
	c.ApplyMutes(g)
	if g.GroupSize() != 32 || !g.UseHex {
		t.Errorf("mutes flags: size %d hex %v", g.GroupSize(), g.UseHex)
	}
}
