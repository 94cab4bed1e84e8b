package bus

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"
)

// NullBus marks an unresolved bus.
const NullBus = -1

// Clock is the MIDI clock policy of an output bus.
type Clock int

const (
	ClockDisabled Clock = iota - 1 // port missing or unusable
	ClockOff
	ClockPos // song position then continue
	ClockMod // start at the next ClockMod boundary
)

func (c Clock) String() string {
	switch c {
	case ClockDisabled:
		return "Disabled"
	case ClockOff:
		return "Off"
	case ClockPos:
		return "Pos"
	case ClockMod:
		return "Mod"
	}
	return fmt.Sprintf("Clock(%d)", int(c))
}

// Enabled is true for the policies that emit clock pulses.
func (c Clock) Enabled() bool { return c == ClockPos || c == ClockMod }

// ParseClock accepts the names, "on" as Pos, and the numeric forms -1..2.
func ParseClock(s string) (Clock, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled", "-1":
		return ClockDisabled, nil
	case "off", "0":
		return ClockOff, nil
	case "pos", "on", "1":
		return ClockPos, nil
	case "mod", "2":
		return ClockMod, nil
	}
	return ClockOff, fmt.Errorf("unknown clock %q", s)
}

func (c Clock) MarshalText() ([]byte, error) { return []byte(strings.ToLower(c.String())), nil }

func (c *Clock) UnmarshalText(b []byte) error {
	v, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Entry is one system or saved port.
type Entry struct {
	Available bool
	Enabled   bool  // inputs
	Clock     Clock // outputs
	Name      string
	Nickname  string
	Alias     string
}

// PortsList is an ordered port table; the index is the bus number.
type PortsList struct {
	entries []Entry
	active  bool
}

func (l *PortsList) Count() int { return len(l.entries) }

func (l *PortsList) Clear() {
	l.entries = l.entries[:0]
}

// Active is set for a saved port map that should drive bus resolution.
func (l *PortsList) Active() bool      { return l.active && len(l.entries) > 0 }
func (l *PortsList) Activate(on bool) { l.active = on }

// Add appends an entry, deriving the nickname when none is given, and
// returns its bus number.
func (l *PortsList) Add(e Entry) int {
	if e.Nickname == "" {
		e.Nickname = ExtractNickname(e.Name)
	}
	l.entries = append(l.entries, e)
	return len(l.entries) - 1
}

// Entries returns a copy of the table.
func (l *PortsList) Entries() []Entry { return slices.Clone(l.entries) }

func (l *PortsList) clone() PortsList {
	return PortsList{entries: slices.Clone(l.entries), active: l.active}
}

func (l *PortsList) entry(bus int) *Entry {
	if bus < 0 || bus >= len(l.entries) {
		return nil
	}
	return &l.entries[bus]
}

func (l *PortsList) Get(bus int) (Entry, bool) {
	if e := l.entry(bus); e != nil {
		return *e, true
	}
	return Entry{}, false
}

func (l *PortsList) Name(bus int) string {
	if e := l.entry(bus); e != nil {
		return e.Name
	}
	return ""
}

func (l *PortsList) Nickname(bus int) string {
	if e := l.entry(bus); e != nil {
		return e.Nickname
	}
	return ""
}

func (l *PortsList) Alias(bus int) string {
	if e := l.entry(bus); e != nil {
		return e.Alias
	}
	return ""
}

func (l *PortsList) SetName(bus int, name string) {
	if e := l.entry(bus); e != nil {
		e.Name = name
		e.Nickname = ExtractNickname(name)
	}
}

func (l *PortsList) SetAlias(bus int, alias string) {
	if e := l.entry(bus); e != nil {
		e.Alias = alias
	}
}

func (l *PortsList) IsAvailable(bus int) bool {
	if e := l.entry(bus); e != nil {
		return e.Available
	}
	return false
}

func (l *PortsList) SetAvailable(bus int, on bool) {
	if e := l.entry(bus); e != nil {
		e.Available = on
	}
}

func (l *PortsList) BusFromNickname(nick string) int {
	for i, e := range l.entries {
		if e.Nickname == nick {
			return i
		}
	}
	return NullBus
}

func (l *PortsList) BusFromName(name string) int {
	for i, e := range l.entries {
		if e.Name == name {
			return i
		}
	}
	return NullBus
}

func (l *PortsList) BusFromAlias(alias string) int {
	if alias == "" {
		return NullBus
	}
	for i, e := range l.entries {
		if e.Alias == alias {
			return i
		}
	}
	return NullBus
}

// Lookup finds a port by nickname, then by alias.
func (l *PortsList) Lookup(nick string) int {
	if bus := l.BusFromNickname(nick); bus != NullBus {
		return bus
	}
	return l.BusFromAlias(nick)
}

// MatchUp copies the clock and input settings of source into the entries
// with the same nickname.
func (l *PortsList) MatchUp(source *PortsList) {
	for i := range l.entries {
		if bus := source.Lookup(l.entries[i].Nickname); bus != NullBus {
			l.entries[i].Clock = source.entries[bus].Clock
			l.entries[i].Enabled = source.entries[bus].Enabled
		}
	}
}

// IOLine renders a port line: number, status and quoted name, with the
// alias as a trailing comment.
func IOLine(number, status int, name, alias string) string {
	if alias == "" {
		return fmt.Sprintf("%2d %2d   %q", number, status, name)
	}
	return fmt.Sprintf("%2d %2d   %-40q  # '%s'", number, status, name, alias)
}

// ParsePortLine reads a line written by IOLine. A non-numeric status
// reads as 0.
func ParsePortLine(line string) (number, status int, name string, err error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, 0, "", fmt.Errorf("port line %q: too short", line)
	}
	number, err = strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, "", fmt.Errorf("port line %q: %w", line, err)
	}
	if unicode.IsDigit(rune(fields[1][0])) || fields[1][0] == '-' {
		status, _ = strconv.Atoi(fields[1])
	}
	q := strings.IndexByte(line, '"')
	if q < 0 {
		return 0, 0, "", fmt.Errorf("port line %q: no quoted name", line)
	}
	end := strings.IndexByte(line[q+1:], '"')
	if end <= 0 {
		return 0, 0, "", fmt.Errorf("port line %q: no quoted name", line)
	}
	return number, status, line[q+1 : q+1+end], nil
}

var shortNames = map[string]bool{
	"in": true, "out": true, "input": true, "output": true,
	"midi in": true, "midi out": true, "midi input": true, "midi output": true,
	"port": true, "midi": true,
}

// ExtractNickname shortens a system port name to the part that survives
// renumbering: the text after the last ':', without a leading port number,
// an ALSA "client:port" address or a "(...)" suffix. Generic names such as
// "midi out" keep the client name in front.
func ExtractNickname(name string) string {
	base := stripAddress(strings.TrimSpace(name))
	nick := base
	if c := lastColon(base); c >= 0 {
		nick = strings.TrimSpace(base[c+1:])
	}
	if f := strings.Fields(nick); len(f) > 1 && isNumber(f[0]) {
		nick = strings.Join(f[1:], " ")
	}
	if p := strings.IndexByte(nick, '('); p > 1 {
		nick = strings.TrimSpace(nick[:p])
	}
	if shortNames[strings.ToLower(nick)] {
		if c := lastColon(base); c > 0 {
			client := strings.TrimSpace(base[:c])
			if i := lastColon(client); i >= 0 {
				client = strings.TrimSpace(client[i+1:])
			}
			nick = client + ":" + nick
		}
	}
	if nick == "" {
		return name
	}
	return nick
}

// stripAddress drops a trailing " 20:0" address as printed by rtmidi.
func stripAddress(name string) string {
	i := strings.LastIndexByte(name, ' ')
	if i < 0 {
		return name
	}
	a, b, ok := strings.Cut(name[i+1:], ":")
	if ok && isNumber(a) && isNumber(b) {
		return strings.TrimSpace(name[:i])
	}
	return name
}

// lastColon ignores colons inside parentheses, as in "port (1234:0)".
func lastColon(s string) int {
	depth := 0
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case ')':
			depth++
		case '(':
			if depth > 0 {
				depth--
			}
		case ':':
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// ClocksList holds the output ports and their clock policies.
type ClocksList struct{ PortsList }

func (l *ClocksList) AddPort(clock Clock, name string) int {
	return l.Add(Entry{Available: clock != ClockDisabled, Clock: clock, Name: name})
}

func (l *ClocksList) Set(bus int, clock Clock) bool {
	e := l.entry(bus)
	if e == nil {
		return false
	}
	e.Clock = clock
	return true
}

// Get returns ClockOff for unknown busses.
func (l *ClocksList) Get(bus int) Clock {
	if e := l.entry(bus); e != nil {
		return e.Clock
	}
	return ClockOff
}

func (l *ClocksList) Lines() []string {
	res := make([]string, 0, len(l.entries))
	for i, e := range l.entries {
		res = append(res, IOLine(i, int(e.Clock), e.Name, e.Alias))
	}
	return res
}

// InputsList holds the input ports and their enable flags.
type InputsList struct{ PortsList }

func (l *InputsList) AddPort(enabled bool, name string) int {
	return l.Add(Entry{Available: true, Enabled: enabled, Name: name})
}

func (l *InputsList) Set(bus int, on bool) bool {
	e := l.entry(bus)
	if e == nil {
		return false
	}
	e.Enabled = on
	return true
}

// Get returns false for unknown busses.
func (l *InputsList) Get(bus int) bool {
	if e := l.entry(bus); e != nil {
		return e.Enabled
	}
	return false
}

func (l *InputsList) Lines() []string {
	res := make([]string, 0, len(l.entries))
	for i, e := range l.entries {
		status := 0
		if e.Enabled {
			status = 1
		}
		res = append(res, IOLine(i, status, e.Name, e.Alias))
	}
	return res
}
