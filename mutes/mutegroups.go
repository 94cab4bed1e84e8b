package mutes

import (
	"fmt"
	"strings"
	"sync"
)

const (
	DEFAULT_GROUPS  = 32
	DEFAULT_ROWS    = 4
	DEFAULT_COLUMNS = 8

	NoGroupSelected = -1
)

// SaveTo selects where mute groups get stored.
type SaveTo int

const (
	SaveToMutes SaveTo = iota
	SaveToMIDI
	SaveToBoth
)

func (s SaveTo) String() string {
	switch s {
	case SaveToMIDI:
		return "midi"
	case SaveToBoth:
		return "both"
	}
	return "mutes"
}

func ParseSaveTo(s string) (SaveTo, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mutes":
		return SaveToMutes, nil
	case "midi":
		return SaveToMIDI, nil
	case "both":
		return SaveToBoth, nil
	}
	return SaveToMutes, fmt.Errorf("unknown save-mutes-to value %q", s)
}

// MuteGroups is the mute-group context of one session. The session owns
// it and hands it to the loaders, the transport and the UI.
type MuteGroups struct {
	rows     int
	columns  int
	groups   []*MuteGroup
	selected int

	LoadMuteGroups   bool
	SaveTo           SaveTo
	UseHex           bool
	ToggleActiveOnly bool

	sync.Mutex
}

func New(rows, columns int) *MuteGroups {
	if rows <= 0 {
		rows = DEFAULT_ROWS
	}
	if columns <= 0 {
		columns = DEFAULT_COLUMNS
	}
	g := &MuteGroups{
		rows:           rows,
		columns:        columns,
		selected:       NoGroupSelected,
		LoadMuteGroups: true,
	}
	g.reset()
	return g
}

func (g *MuteGroups) reset() {
	g.groups = make([]*MuteGroup, DEFAULT_GROUPS)
	for i := range g.groups {
		g.groups[i] = NewMuteGroup(i, g.rows, g.columns)
	}
	g.selected = NoGroupSelected
}

// Reset drops every group back to empty with the current grid size.
func (g *MuteGroups) Reset() {
	g.Lock()
	g.reset()
	g.Unlock()
}

// Resize changes the grid and clears the groups when it differs.
func (g *MuteGroups) Resize(rows, columns int) bool {
	if rows <= 0 || columns <= 0 {
		return false
	}
	g.Lock()
	defer g.Unlock()
	if rows != g.rows || columns != g.columns {
		g.rows, g.columns = rows, columns
		g.reset()
	}
	return true
}

func (g *MuteGroups) Rows() int    { return g.rows }
func (g *MuteGroups) Columns() int { return g.columns }
func (g *MuteGroups) Count() int   { return len(g.groups) }

// GroupSize is the number of slots covered by each group.
func (g *MuteGroups) GroupSize() int { return g.rows * g.columns }

func (g *MuteGroups) Group(i int) *MuteGroup {
	if i < 0 || i >= len(g.groups) {
		return nil
	}
	return g.groups[i]
}

func (g *MuteGroups) Selected() int {
	g.Lock()
	defer g.Unlock()
	return g.selected
}

func (g *MuteGroups) SetSelected(i int) {
	g.Lock()
	if i < 0 || i >= len(g.groups) {
		i = NoGroupSelected
	}
	g.selected = i
	g.Unlock()
}

// Load stores the bits of one group, refusing masks of the wrong size.
func (g *MuteGroups) Load(group int, bits []bool) bool {
	g.Lock()
	defer g.Unlock()
	mg := g.Group(group)
	if mg == nil {
		return false
	}
	return mg.Set(bits)
}

func (g *MuteGroups) Get(group int) []bool {
	g.Lock()
	defer g.Unlock()
	if mg := g.Group(group); mg != nil {
		return mg.Get()
	}
	return nil
}

// Any reports whether any group arms at least one slot.
func (g *MuteGroups) Any() bool {
	g.Lock()
	defer g.Unlock()
	for _, mg := range g.groups {
		if mg.Any() {
			return true
		}
	}
	return false
}

func (g *MuteGroups) ArmedCount(group int) int {
	g.Lock()
	defer g.Unlock()
	if mg := g.Group(group); mg != nil {
		return mg.Count()
	}
	return 0
}

// Apply makes group the active one and returns its mask.
func (g *MuteGroups) Apply(group int) ([]bool, bool) {
	g.Lock()
	defer g.Unlock()
	mg := g.Group(group)
	if mg == nil {
		return nil, false
	}
	if g.selected != group {
		if old := g.Group(g.selected); old != nil {
			old.setActive(false)
		}
	}
	mg.setActive(true)
	g.selected = group
	return mg.Get(), true
}

// Unapply deactivates group and returns an all-off mask.
func (g *MuteGroups) Unapply(group int) ([]bool, bool) {
	g.Lock()
	defer g.Unlock()
	mg := g.Group(group)
	if mg == nil {
		return nil, false
	}
	mg.setActive(false)
	g.selected = NoGroupSelected
	return mg.Zeroes(), true
}

// Toggle flips a group and returns its mask when switched on or zeroes
// when switched off.
func (g *MuteGroups) Toggle(group int) ([]bool, bool) {
	g.Lock()
	defer g.Unlock()
	mg := g.Group(group)
	if mg == nil {
		return nil, false
	}
	on := !mg.IsActive()
	if on {
		if old := g.Group(g.selected); old != nil && old != mg {
			old.setActive(false)
		}
	}
	mg.setActive(on)
	if on {
		g.selected = group
		return mg.Get(), true
	}
	g.selected = NoGroupSelected
	return mg.Zeroes(), true
}

// ToggleSlots toggles group and computes the new play state of every slot
// from the current one. With ToggleActiveOnly, slots outside the group keep
// their state.
func (g *MuteGroups) ToggleSlots(group int, current []bool) ([]bool, bool) {
	g.Lock()
	mg := g.Group(group)
	g.Unlock()
	if mg == nil {
		return nil, false
	}
	members := mg.Get()
	bits, _ := g.Toggle(group)
	on := g.Selected() == group
	res := make([]bool, len(current))
	for i := range res {
		member := i < len(members) && members[i]
		switch {
		case !g.ToggleActiveOnly:
			res[i] = i < len(bits) && bits[i]
		case on:
			res[i] = current[i] || member
		default:
			res[i] = current[i] && !member
		}
	}
	return res, true
}
