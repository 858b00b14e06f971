/*
Package metadata implements the small key=value text file written alongside
an exported texture. It carries the container fields that have no equivalent
in a generic image so that the texture can be rebuilt byte for byte.

The file holds one key=value pair per line. Lines starting with '#' are
comments and the first blank line ends the record.
*/
package metadata

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Extension is the file extension used when writing metadata next to an
// exported image.
const Extension = ".meta"

var (
	errSyntax = errors.New("metadata: syntax error")
	lineRE    = regexp.MustCompile(`^(\w+)\s*=\s*(.+)$`)
)

// Metadata is a set of unique keys mapped to scalar values. It implements
// the encoding.TextMarshaler and encoding.TextUnmarshaler interfaces.
type Metadata struct {
	fields map[string]string
}

// New returns an empty metadata set
func New() *Metadata {
	return &Metadata{
		fields: make(map[string]string),
	}
}

// Len returns the number of keys
func (m *Metadata) Len() int {
	return len(m.fields)
}

// Keys returns every key in sorted order
func (m *Metadata) Keys() []string {
	keys := make([]string, 0, len(m.fields))
	for k := range m.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set stores the string form of value under key, replacing any existing
// value.
func (m *Metadata) Set(key string, value interface{}) {
	m.fields[key] = fmt.Sprint(value)
}

// Get returns the raw value for key
func (m *Metadata) Get(key string) (string, bool) {
	v, ok := m.fields[key]
	return v, ok
}

// Has reports whether key is present
func (m *Metadata) Has(key string) bool {
	_, ok := m.fields[key]
	return ok
}

// Uint parses the value stored under key as an unsigned integer no wider
// than bitSize. The boolean is false when the key is absent.
func (m *Metadata) Uint(key string, bitSize int) (uint64, bool, error) {
	v, ok := m.fields[key]
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.ParseUint(v, 10, bitSize)
	if err != nil {
		return 0, true, fmt.Errorf("metadata: field %q: %w", key, err)
	}
	return n, true, nil
}

// MarshalText encodes the metadata as sorted key=value lines
func (m *Metadata) MarshalText() ([]byte, error) {
	b := new(bytes.Buffer)
	for _, k := range m.Keys() {
		if _, err := fmt.Fprintf(b, "%s=%s\n", k, m.fields[k]); err != nil {
			return nil, err
		}
	}
	return b.Bytes(), nil
}

// UnmarshalText decodes key=value lines, stopping at the first blank line.
// Any other line that is neither a comment nor a pair is an error.
func (m *Metadata) UnmarshalText(b []byte) error {
	m.fields = make(map[string]string)

	s := bufio.NewScanner(bytes.NewReader(b))
	for n := 1; s.Scan(); n++ {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			break
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		match := lineRE.FindStringSubmatch(line)
		if match == nil {
			return fmt.Errorf("%w on line %d: %q", errSyntax, n, line)
		}
		m.fields[match[1]] = match[2]
	}
	return s.Err()
}

// ReadFrom replaces the contents of m with the record read from r
func (m *Metadata) ReadFrom(r io.Reader) (int64, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return int64(len(b)), err
	}
	return int64(len(b)), m.UnmarshalText(b)
}

// WriteTo writes the text form of m to w
func (m *Metadata) WriteTo(w io.Writer) (int64, error) {
	b, err := m.MarshalText()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	return int64(n), err
}

// Open reads a metadata file from disk
func Open(file string) (*Metadata, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m := New()
	if _, err := m.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return m, nil
}

// Save writes m to file, truncating anything already there
func (m *Metadata) Save(file string) error {
	f, err := os.Create(file)
	if err != nil {
		return err
	}

	if _, err := m.WriteTo(f); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
