package bus

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/JeanRibes/seqloop/cfgfile"
	charmlog "github.com/charmbracelet/log"
)

const (
	CLOCK_MAP_SECTION = "midi-clock-map"
	INPUT_MAP_SECTION = "midi-input-map"
	CLOCK_SECTION     = "midi-clock"
	INPUT_SECTION     = "midi-input"
)

// PortMap is the saved port setup: the nominal output and input maps,
// stored by nickname, and the clock and input settings of the last seen
// system ports.
type PortMap struct {
	Active  bool
	Outputs ClocksList
	Inputs  InputsList
	Clocks  ClocksList
	Ins     InputsList
}

// SetPortMap installs a saved map. The settings apply to ports opened
// after the call, so it belongs before Activate.
func (b *MasterBus) SetPortMap(pm *PortMap) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outMap = ClocksList{pm.Outputs.clone()}
	b.inMap = InputsList{pm.Inputs.clone()}
	b.outMap.Activate(pm.Active)
	b.inMap.Activate(pm.Active)
	b.savedClocks = ClocksList{pm.Clocks.clone()}
	b.savedInputs = InputsList{pm.Ins.clone()}
}

// PortMap returns the map in use, or one built from the current system
// ports when none was set.
func (b *MasterBus) PortMap() *PortMap {
	b.mu.Lock()
	defer b.mu.Unlock()
	pm := &PortMap{
		Active: b.outMap.Active(),
		Clocks: ClocksList{b.clocks.clone()},
		Ins:    InputsList{b.inputs.clone()},
	}
	if b.outMap.Count() > 0 {
		pm.Outputs = ClocksList{b.outMap.clone()}
	} else {
		pm.Outputs = ClocksList{b.clocks.clone()}
	}
	if b.inMap.Count() > 0 {
		pm.Inputs = InputsList{b.inMap.clone()}
	} else {
		pm.Inputs = InputsList{b.inputs.clone()}
	}
	return pm
}

// portAlias reads the "# 'alias'" comment written by IOLine.
func portAlias(line string) string {
	_, comment, ok := strings.Cut(line, "# '")
	if !ok {
		return ""
	}
	alias, _, _ := strings.Cut(comment, "'")
	return alias
}

type portLine struct {
	status int
	name   string
	alias  string
}

func readPortSection(f *cfgfile.File, name string) (lines []portLine, active bool, found bool, errs []error) {
	s, ok := f.Section(name)
	if !ok {
		return nil, false, false, nil
	}
	active = s.Bool("map-active", false)
	// Port numbers follow the line position, so a rejected line does not
	// shift the ones after it.
	for pos, l := range s.Data() {
		number, status, pname, err := ParsePortLine(l.Text)
		if err != nil {
			errs = append(errs, l.Errorf(name, "%v", err))
			continue
		}
		if number != pos {
			errs = append(errs, l.Errorf(name, "port %d out of sequence", number))
			continue
		}
		lines = append(lines, portLine{status: status, name: pname, alias: portAlias(l.Text)})
	}
	return lines, active, true, errs
}

// ReadPortMap parses the four port sections. Rejected lines are reported
// in the joined error and the rest is kept.
func ReadPortMap(r io.Reader) (*PortMap, error) {
	f, err := cfgfile.Read(r)
	if err != nil {
		return nil, err
	}
	pm := &PortMap{}
	var errs []error

	lines, active, found, e := readPortSection(f, CLOCK_MAP_SECTION)
	errs = append(errs, e...)
	pm.Active = found && active
	for _, pl := range lines {
		clock := Clock(pl.status)
		if clock < ClockDisabled || clock > ClockMod {
			clock = ClockOff
		}
		pm.Outputs.Add(Entry{Available: true, Clock: clock, Name: pl.name, Nickname: pl.name, Alias: pl.alias})
	}
	lines, _, _, e = readPortSection(f, INPUT_MAP_SECTION)
	errs = append(errs, e...)
	for _, pl := range lines {
		pm.Inputs.Add(Entry{Available: true, Enabled: pl.status != 0, Name: pl.name, Nickname: pl.name, Alias: pl.alias})
	}
	lines, _, _, e = readPortSection(f, CLOCK_SECTION)
	errs = append(errs, e...)
	for _, pl := range lines {
		bus := pm.Clocks.AddPort(Clock(pl.status), pl.name)
		pm.Clocks.SetAlias(bus, pl.alias)
	}
	lines, _, _, e = readPortSection(f, INPUT_SECTION)
	errs = append(errs, e...)
	for _, pl := range lines {
		bus := pm.Ins.AddPort(pl.status != 0, pl.name)
		pm.Ins.SetAlias(bus, pl.alias)
	}
	return pm, errors.Join(errs...)
}

func WritePortMap(w io.Writer, pm *PortMap) error {
	cw := cfgfile.NewWriter(w)
	cw.Comment("seqloop port map\n\nmaps: nominal bus, status and port nickname\nclock: -1 disabled, 0 off, 1 pos, 2 mod\ninput: 0 off, 1 on")

	cw.Section(CLOCK_MAP_SECTION)
	cw.KeyValue("map-active", pm.Active)
	for i, e := range pm.Outputs.entries {
		cw.Line(IOLine(i, int(e.Clock), e.Nickname, e.Alias))
	}
	cw.Section(INPUT_MAP_SECTION)
	cw.KeyValue("map-active", pm.Active)
	for i, e := range pm.Inputs.entries {
		status := 0
		if e.Enabled {
			status = 1
		}
		cw.Line(IOLine(i, status, e.Nickname, e.Alias))
	}
	cw.Section(CLOCK_SECTION)
	for _, l := range pm.Clocks.Lines() {
		cw.Line(l)
	}
	cw.Section(INPUT_SECTION)
	for _, l := range pm.Ins.Lines() {
		cw.Line(l)
	}
	return cw.Flush()
}

func LoadPortMap(ctx context.Context, path string) (*PortMap, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	pm, err := ReadPortMap(file)
	if err != nil {
		charmlog.FromContext(ctx).Warn("port map", "file", path, "err", err)
	}
	return pm, err
}

func SavePortMap(ctx context.Context, path string, pm *PortMap) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WritePortMap(file, pm); err != nil {
		file.Close()
		return err
	}
	charmlog.FromContext(ctx).Info("port map saved", "file", path)
	return file.Close()
}
