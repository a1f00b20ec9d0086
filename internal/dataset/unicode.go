package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// UnicodeMapping translates between codepoints ("U+3042"), characters and
// dense class indices. Indices follow row order in unicode_translation.csv.
type UnicodeMapping struct {
	unicodes []string
	chars    map[string]string
	index    map[string]int
}

// LoadUnicodeMapping reads the translation table at path.
func LoadUnicodeMapping(path string) (*UnicodeMapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open unicode table: %w", err)
	}
	defer f.Close()
	return readUnicodeMapping(f)
}

func readUnicodeMapping(r io.Reader) (*UnicodeMapping, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2

	if _, err := cr.Read(); err != nil {
		return nil, fmt.Errorf("failed to read unicode table header: %w", err)
	}

	m := &UnicodeMapping{
		chars: make(map[string]string),
		index: make(map[string]int),
	}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("unicode table: %w", err)
		}
		uni := rec[0]
		if _, dup := m.index[uni]; dup {
			return nil, fmt.Errorf("unicode table: duplicate codepoint %s", uni)
		}
		m.index[uni] = len(m.unicodes)
		m.unicodes = append(m.unicodes, uni)
		m.chars[uni] = rec[1]
	}
	return m, nil
}

// Len returns the number of known codepoints.
func (m *UnicodeMapping) Len() int { return len(m.unicodes) }

// Char returns the character for a codepoint.
func (m *UnicodeMapping) Char(unicode string) (string, bool) {
	c, ok := m.chars[unicode]
	return c, ok
}

// Index returns the class index of a codepoint.
func (m *UnicodeMapping) Index(unicode string) (int, bool) {
	i, ok := m.index[unicode]
	return i, ok
}

// Unicode returns the codepoint of a class index.
func (m *UnicodeMapping) Unicode(index int) (string, bool) {
	if index < 0 || index >= len(m.unicodes) {
		return "", false
	}
	return m.unicodes[index], true
}
