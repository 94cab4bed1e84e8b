// Package cfgfile reads and writes the line-oriented, section-tagged text
// format used for mute groups and port maps:
//
//	# comment
//	[section-name]
//	key = value
//	positional data line
package cfgfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var ErrBadLine = errors.New("bad line")

// LineError locates a rejected line.
type LineError struct {
	Section string
	Number  int
	Text    string
	Err     error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("[%s] line %d %q: %v", e.Section, e.Number, e.Text, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

func (l Line) Errorf(section string, format string, args ...any) error {
	return &LineError{
		Section: section,
		Number:  l.Number,
		Text:    l.Text,
		Err:     fmt.Errorf("%w: %s", ErrBadLine, fmt.Sprintf(format, args...)),
	}
}

type Line struct {
	Number int
	Text   string
}

// KeyValue splits a "key = value" line.
func (l Line) KeyValue() (key, value string, ok bool) {
	key, value, ok = strings.Cut(l.Text, "=")
	if !ok {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	return key, value, key != "" && !strings.ContainsAny(key, " \t[")
}

type Section struct {
	Name  string
	Lines []Line
}

// Value returns the last value given for key.
func (s *Section) Value(key string) (string, bool) {
	var res string
	found := false
	for _, l := range s.Lines {
		if k, v, ok := l.KeyValue(); ok && k == key {
			res, found = v, true
		}
	}
	return res, found
}

func (s *Section) Bool(key string, def bool) bool {
	v, ok := s.Value(key)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return def
}

func (s *Section) Int(key string, def int) int {
	v, ok := s.Value(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// String returns a value with surrounding double quotes removed.
func (s *Section) String(key string, def string) string {
	v, ok := s.Value(key)
	if !ok {
		return def
	}
	return Unquote(v)
}

// Data returns the lines that are not key/value pairs.
func (s *Section) Data() []Line {
	var res []Line
	for _, l := range s.Lines {
		if _, _, ok := l.KeyValue(); !ok {
			res = append(res, l)
		}
	}
	return res
}

type File struct {
	Sections []*Section
}

func (f *File) Section(name string) (*Section, bool) {
	for _, s := range f.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// IsTag reports a "[name]" section header. Stanza data such as
// "[ 0x01 ]" has inner spaces and is not a tag.
func IsTag(text string) (string, bool) {
	if len(text) < 3 || text[0] != '[' || text[len(text)-1] != ']' {
		return "", false
	}
	name := text[1 : len(text)-1]
	if strings.ContainsAny(name, " \t[]") {
		return "", false
	}
	return name, true
}

// Read splits r into sections. Blank lines, comments and lines before the
// first tag are dropped.
func Read(r io.Reader) (*File, error) {
	f := &File{}
	var cur *Section
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if name, ok := IsTag(text); ok {
			cur = &Section{Name: name}
			f.Sections = append(f.Sections, cur)
			continue
		}
		if cur == nil {
			continue
		}
		cur.Lines = append(cur.Lines, Line{Number: n, Text: text})
	}
	return f, sc.Err()
}

func Unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// Writer emits the format; the first error sticks and is returned by Flush.
type Writer struct {
	w   *bufio.Writer
	err error
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (w *Writer) printf(format string, args ...any) {
	if w.err != nil {
		return
	}
	_, w.err = fmt.Fprintf(w.w, format, args...)
}

func (w *Writer) Comment(text string) {
	for _, l := range strings.Split(text, "\n") {
		w.printf("# %s\n", l)
	}
}

func (w *Writer) Section(name string) { w.printf("\n[%s]\n\n", name) }

func (w *Writer) KeyValue(key string, value any) { w.printf("%s = %v\n", key, value) }

func (w *Writer) Line(text string) { w.printf("%s\n", text) }

func (w *Writer) Blank() { w.printf("\n") }

func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	return w.w.Flush()
}
