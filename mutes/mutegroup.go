package mutes

import "fmt"

// MuteGroup is a saved on/off mask over the pattern slots of a screenset,
// stored in slot order.
type MuteGroup struct {
	group   int
	rows    int
	columns int
	bits    []bool
	name    string
	active  bool
}

func NewMuteGroup(group, rows, columns int) *MuteGroup {
	return &MuteGroup{
		group:   group,
		rows:    rows,
		columns: columns,
		bits:    make([]bool, rows*columns),
	}
}

func (m *MuteGroup) Group() int { return m.group }
func (m *MuteGroup) Size() int  { return len(m.bits) }

func (m *MuteGroup) Name() string {
	if m.name == "" {
		return m.defaultName()
	}
	return m.name
}

func (m *MuteGroup) defaultName() string { return fmt.Sprintf("Group %d", m.group) }

// HasCustomName is false while the name is the generated "Group N".
func (m *MuteGroup) HasCustomName() bool {
	return m.name != "" && m.name != m.defaultName()
}

func (m *MuteGroup) SetName(name string) { m.name = name }

// Set copies bits in; a mask of the wrong size is refused.
func (m *MuteGroup) Set(bits []bool) bool {
	if len(bits) != len(m.bits) {
		return false
	}
	copy(m.bits, bits)
	return true
}

func (m *MuteGroup) Get() []bool {
	return append([]bool(nil), m.bits...)
}

func (m *MuteGroup) Zeroes() []bool {
	return make([]bool, len(m.bits))
}

func (m *MuteGroup) Mute(index int) bool {
	if index < 0 || index >= len(m.bits) {
		return false
	}
	return m.bits[index]
}

func (m *MuteGroup) SetMute(index int, on bool) bool {
	if index < 0 || index >= len(m.bits) {
		return false
	}
	m.bits[index] = on
	return true
}

func (m *MuteGroup) Clear() {
	for i := range m.bits {
		m.bits[i] = false
	}
}

func (m *MuteGroup) Any() bool {
	for _, b := range m.bits {
		if b {
			return true
		}
	}
	return false
}

// Count is the number of armed slots.
func (m *MuteGroup) Count() int {
	n := 0
	for _, b := range m.bits {
		if b {
			n++
		}
	}
	return n
}

// GridToMute maps a grid cell to a slot index; slots run down the rows
// first.
func (m *MuteGroup) GridToMute(row, column int) int {
	if row < 0 || row >= m.rows || column < 0 || column >= m.columns {
		return -1
	}
	return row + m.rows*column
}

func (m *MuteGroup) MuteToGrid(index int) (row, column int, ok bool) {
	if index < 0 || index >= len(m.bits) || m.rows == 0 {
		return 0, 0, false
	}
	return index % m.rows, index / m.rows, true
}

func (m *MuteGroup) IsActive() bool      { return m.active }
func (m *MuteGroup) setActive(on bool) { m.active = on }
