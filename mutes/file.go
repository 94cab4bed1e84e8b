package mutes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/JeanRibes/seqloop/cfgfile"
	charmlog "github.com/charmbracelet/log"
)

const (
	FLAGS_SECTION  = "mute-group-flags"
	GROUPS_SECTION = "mute-groups"
)

var ErrBadStanza = errors.New("bad mute-group stanza")

// ParseStanza reads "<group> [ b b b b b b b b ] [ ... ]" or the hex form
// "<group> [ 0xHH 0xHH ]" followed by an optional quoted group name.
func ParseStanza(line string) (group int, bits []bool, name string, err error) {
	if q := strings.IndexByte(line, '"'); q >= 0 {
		name = strings.TrimSuffix(line[q+1:], `"`)
		line = line[:q]
	}
	left := strings.IndexByte(line, '[')
	if left < 0 {
		return 0, nil, "", fmt.Errorf("%w: no '['", ErrBadStanza)
	}
	group, err = strconv.Atoi(strings.TrimSpace(line[:left]))
	if err != nil {
		return 0, nil, "", fmt.Errorf("%w: group number: %v", ErrBadStanza, err)
	}
	body := line[left:]
	hex := strings.ContainsAny(body, "xX")
	body = strings.NewReplacer("[", " ", "]", " ").Replace(body)
	for _, tok := range strings.Fields(body) {
		if hex {
			v, err := strconv.ParseUint(tok, 0, 8)
			if err != nil {
				return 0, nil, "", fmt.Errorf("%w: %q", ErrBadStanza, tok)
			}
			bits = push8Bits(bits, byte(v))
			continue
		}
		v, err := strconv.Atoi(tok)
		if err != nil {
			return 0, nil, "", fmt.Errorf("%w: %q", ErrBadStanza, tok)
		}
		bits = append(bits, v != 0)
	}
	if len(bits) == 0 {
		return 0, nil, "", fmt.Errorf("%w: no bits", ErrBadStanza)
	}
	return group, bits, name, nil
}

// push8Bits appends the bits of v, most significant first.
func push8Bits(bits []bool, v byte) []bool {
	for mask := byte(0x80); mask != 0; mask >>= 1 {
		bits = append(bits, v&mask != 0)
	}
	return bits
}

// WriteStanza renders bits in brackets of eight, or as one bracket of hex
// bytes when usehex is set.
func WriteStanza(bits []bool, usehex bool) string {
	var sb strings.Builder
	sb.WriteString("[ ")
	if usehex {
		for i := 0; i < len(bits); i += 8 {
			var v byte
			for j := 0; j < 8; j++ {
				v <<= 1
				if i+j < len(bits) && bits[i+j] {
					v |= 1
				}
			}
			fmt.Fprintf(&sb, "0x%02x ", v)
		}
	} else {
		for i, b := range bits {
			if b {
				sb.WriteString("1 ")
			} else {
				sb.WriteString("0 ")
			}
			if (i+1)%8 == 0 && i+1 < len(bits) {
				sb.WriteString("] [ ")
			}
		}
	}
	sb.WriteString("]")
	return sb.String()
}

// FormatLine is one line of the [mute-groups] section.
func FormatLine(mg *MuteGroup, usehex bool) string {
	line := fmt.Sprintf("%d %s", mg.Group(), WriteStanza(mg.Get(), usehex))
	if mg.HasCustomName() {
		line += fmt.Sprintf(" %q", mg.Name())
	}
	return line
}

// Parse loads the flags and groups sections into g. Every rejected line is
// reported in the joined error; the others are still applied.
func Parse(r io.Reader, g *MuteGroups) error {
	f, err := cfgfile.Read(r)
	if err != nil {
		return err
	}
	var errs []error
	if flags, ok := f.Section(FLAGS_SECTION); ok {
		g.Resize(flags.Int("mute-group-rows", g.Rows()), flags.Int("mute-group-columns", g.Columns()))
		g.LoadMuteGroups = flags.Bool("load-mute-groups", g.LoadMuteGroups)
		if v, ok := flags.Value("save-mutes-to"); ok {
			s, err := ParseSaveTo(v)
			if err != nil {
				errs = append(errs, err)
			}
			g.SaveTo = s
		}
		switch strings.ToLower(flags.String("groups-format", "binary")) {
		case "hex":
			g.UseHex = true
		case "binary":
			g.UseHex = false
		default:
			errs = append(errs, errors.New("groups-format must be 'hex' or 'binary'"))
		}
		g.ToggleActiveOnly = flags.Bool("toggle-active-only", g.ToggleActiveOnly)
		defer g.SetSelected(flags.Int("mute-group-selected", NoGroupSelected))
	}
	groups, ok := f.Section(GROUPS_SECTION)
	if !ok {
		return errors.Join(append(errs, fmt.Errorf("missing [%s] section", GROUPS_SECTION))...)
	}
	for _, line := range groups.Data() {
		group, bits, name, err := ParseStanza(line.Text)
		if err != nil {
			errs = append(errs, line.Errorf(GROUPS_SECTION, "%v", err))
			continue
		}
		if !g.Load(group, bits) {
			errs = append(errs, line.Errorf(GROUPS_SECTION, "group %d: want %d bits, got %d", group, g.GroupSize(), len(bits)))
			continue
		}
		if name != "" {
			g.Group(group).SetName(name)
		}
	}
	return errors.Join(errs...)
}

// Write emits both sections.
func Write(w io.Writer, g *MuteGroups) error {
	cw := cfgfile.NewWriter(w)
	cw.Comment("seqloop mute-groups\n\nsave-mutes-to: mutes, midi or both\ngroups-format: binary or hex")
	cw.Section(FLAGS_SECTION)
	cw.KeyValue("load-mute-groups", g.LoadMuteGroups)
	cw.KeyValue("save-mutes-to", g.SaveTo)
	cw.KeyValue("mute-group-rows", g.Rows())
	cw.KeyValue("mute-group-columns", g.Columns())
	cw.KeyValue("mute-group-selected", g.Selected())
	if g.UseHex {
		cw.KeyValue("groups-format", "hex")
	} else {
		cw.KeyValue("groups-format", "binary")
	}
	cw.KeyValue("toggle-active-only", g.ToggleActiveOnly)
	cw.Section(GROUPS_SECTION)
	g.Lock()
	for _, mg := range g.groups {
		cw.Line(FormatLine(mg, g.UseHex))
	}
	g.Unlock()
	return cw.Flush()
}

// Load parses a mutes file, logging each rejected line.
func Load(ctx context.Context, path string, g *MuteGroups) error {
	logger := charmlog.FromContext(ctx)
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	err = Parse(file, g)
	var lerr *cfgfile.LineError
	if errors.As(err, &lerr) {
		for _, e := range unjoin(err) {
			logger.Warn("mutes", "file", path, "err", e)
		}
	}
	logger.Debug("mute groups loaded", "file", path, "any", g.Any(), "ok", err == nil)
	return err
}

func Save(ctx context.Context, path string, g *MuteGroups) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(file, g); err != nil {
		file.Close()
		return err
	}
	charmlog.FromContext(ctx).Info("mute groups saved", "file", path)
	return file.Close()
}

func unjoin(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
