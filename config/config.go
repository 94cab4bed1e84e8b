// Package config is the YAML application configuration. The mute groups
// and the port map keep their own text files; this file points at them.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/JeanRibes/seqloop/bus"
	"github.com/JeanRibes/seqloop/control"
	"github.com/JeanRibes/seqloop/music"
	"github.com/JeanRibes/seqloop/mutes"
	"github.com/JeanRibes/seqloop/shared"
	"gopkg.in/yaml.v3"
)

const (
	BACKEND_RTMIDI = "rtmidi"
	BACKEND_SERIAL = "serial"
	BACKEND_FAKE   = "fake"
)

type Serial struct {
	BaudRate int    `yaml:"baudrate"`
	Keymap   string `yaml:"keymap,omitempty"`
	Channel  uint8  `yaml:"channel"`
}

type SeqFeedback struct {
	Slot     int              `yaml:"slot"`
	Action   string           `yaml:"action"`
	Template control.Template `yaml:"event"`
}

type UIFeedback struct {
	Action  string           `yaml:"action"`
	Enabled bool             `yaml:"enabled"`
	On      control.Template `yaml:"on"`
	Off     control.Template `yaml:"off"`
}

type MuteFeedback struct {
	Group  int              `yaml:"group"`
	On     control.Template `yaml:"on"`
	Off    control.Template `yaml:"off"`
	Delete control.Template `yaml:"delete,omitempty"`
}

type ControlOut struct {
	Enabled   bool           `yaml:"enabled"`
	Bus       int            `yaml:"bus"`
	Sequences []SeqFeedback  `yaml:"sequences,omitempty"`
	UI        []UIFeedback   `yaml:"ui,omitempty"`
	Mutes     []MuteFeedback `yaml:"mutes,omitempty"`
}

type ControlIn struct {
	Enabled  bool              `yaml:"enabled"`
	Bindings []control.Binding `yaml:"bindings,omitempty"`
}

type Mutes struct {
	File             string `yaml:"file,omitempty"`
	Rows             int    `yaml:"rows"`
	Columns          int    `yaml:"columns"`
	Hex              bool   `yaml:"hex"`
	ToggleActiveOnly bool   `yaml:"toggle_active_only"`
}

type Config struct {
	Backend        string  `yaml:"backend"`
	ClientName     string  `yaml:"client_name"`
	Manual         bool    `yaml:"manual_ports"`
	VirtualOutputs int     `yaml:"virtual_outputs,omitempty"`
	VirtualInputs  int     `yaml:"virtual_inputs,omitempty"`
	PPQN           int     `yaml:"ppqn"`
	BPM            float64 `yaml:"bpm"`
	ClockMod       int     `yaml:"clock_mod"`
	LogLevel       string  `yaml:"log_level"`

	// Clocks and Inputs are keyed by port nickname. The port map file,
	// when present, wins.
	Clocks map[string]bus.Clock `yaml:"clocks,omitempty"`
	Inputs map[string]bool      `yaml:"inputs,omitempty"`

	Serial     Serial     `yaml:"serial"`
	ControlOut ControlOut `yaml:"control_out"`
	ControlIn  ControlIn  `yaml:"control_in"`
	Mutes      Mutes      `yaml:"mutes"`

	PortMapFile string `yaml:"port_map_file,omitempty"`
	StateFile   string `yaml:"state_file,omitempty"`
}

func Default() *Config {
	return &Config{
		Backend:    BACKEND_RTMIDI,
		ClientName: bus.DEFAULT_CLIENT,
		PPQN:       music.DEFAULT_PPQN,
		BPM:        shared.DEFAULT_BPM,
		ClockMod:   bus.DEFAULT_CLOCK_MOD,
		LogLevel:   "info",
		Serial: Serial{
			BaudRate: bus.DEFAULT_BAUDRATE,
		},
		ControlIn: ControlIn{Enabled: true},
		Mutes: Mutes{
			Rows:    mutes.DEFAULT_ROWS,
			Columns: mutes.DEFAULT_COLUMNS,
		},
	}
}

// Load reads a config file over the defaults. A missing file is not an
// error.
func Load(filename string) (*Config, error) {
	c := Default()
	file, err := os.Open(filename)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := c.Read(file); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return c, nil
}

func (c *Config) Read(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return err
	}
	return c.Validate()
}

func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o644)
}

// Validate checks every field and reports all the problems at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BACKEND_RTMIDI, BACKEND_SERIAL, BACKEND_FAKE:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if c.PPQN < 0 {
		errs = append(errs, fmt.Errorf("ppqn %d is negative", c.PPQN))
	}
	if c.BPM != 0 && shared.ClampBPM(c.BPM) != c.BPM {
		errs = append(errs, fmt.Errorf("bpm %v outside %d-%d", c.BPM, shared.MIN_BPM, shared.MAX_BPM))
	}
	if c.Serial.Channel > 15 {
		errs = append(errs, fmt.Errorf("serial channel %d above 15", c.Serial.Channel))
	}
	for _, f := range c.ControlOut.Sequences {
		if _, err := control.ParseSeqAction(f.Action); err != nil {
			errs = append(errs, err)
		}
	}
	for _, f := range c.ControlOut.UI {
		if _, err := control.ParseUIAction(f.Action); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ApplyPorts adds the configured clock and input settings to pm for the
// ports it does not know yet.
func (c *Config) ApplyPorts(pm *bus.PortMap) {
	for _, nick := range sortedKeys(c.Clocks) {
		if pm.Clocks.Lookup(nick) == bus.NullBus {
			pm.Clocks.AddPort(c.Clocks[nick], nick)
		}
	}
	for _, nick := range sortedKeys(c.Inputs) {
		if pm.Ins.Lookup(nick) == bus.NullBus {
			pm.Ins.AddPort(c.Inputs[nick], nick)
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// ApplyControl loads the feedback tables and the input mapping.
func (c *Config) ApplyControl(out *control.Out, in *control.In) error {
	var errs []error
	out.Initialize(music.SEQS_IN_SET, c.ControlOut.Bus)
	for _, f := range c.ControlOut.Sequences {
		what, err := control.ParseSeqAction(f.Action)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !out.SetSeqEvent(f.Slot, what, f.Template) {
			errs = append(errs, fmt.Errorf("control out: no slot %d", f.Slot))
		}
	}
	for _, f := range c.ControlOut.UI {
		what, err := control.ParseUIAction(f.Action)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out.SetEvent(what, f.Enabled, f.On, f.Off)
	}
	for _, f := range c.ControlOut.Mutes {
		if !out.SetMutesEvent(f.Group, f.On, f.Off, f.Delete) {
			errs = append(errs, fmt.Errorf("control out: no mute group %d", f.Group))
		}
	}
	out.SetEnabled(c.ControlOut.Enabled)

	in.Clear()
	for _, b := range c.ControlIn.Bindings {
		if err := in.Add(b); err != nil {
			errs = append(errs, err)
		}
	}
	in.SetEnabled(c.ControlIn.Enabled)
	return errors.Join(errs...)
}

// ApplyMutes copies the flags kept in the YAML file onto g.
func (c *Config) ApplyMutes(g *mutes.MuteGroups) {
	g.Resize(c.Mutes.Rows, c.Mutes.Columns)
	g.UseHex = c.Mutes.Hex
	g.ToggleActiveOnly = c.Mutes.ToggleActiveOnly
}
