// Package defines keeps the DEFINE specifications attached to a server class.
//
// A specification list looks like
//
//	(=_SQLMX_SMD_LOCATION, CLASS DEFAULTS, VOLUME $MYVOL.ZSD0),(=_MX_CMP_PROG_FILE_NAME, CLASS MAP, FILE $MYVOL.MYSUBVOL.MXCMP)
//
// The parentheses are optional when the list holds a single entry.
package defines

import (
	"regexp"
	"sort"
	"strings"
)

// NamePrefix is the first character of every DEFINE name
const NamePrefix = '='

var listDelimiter = regexp.MustCompile(`\s*((\()|(\)(\s*,)?))\s*`)

// Entry is one DEFINE: its name and the full "name, attribute, ..." text
type Entry struct {
	Name string
	Spec string
}

// Registry maps DEFINE names to specifications. A later entry with the same
// name replaces the earlier one.
type Registry struct {
	entries map[string]string
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]string)}
}

// AddRaw registers every valid entry of a specification list. Invalid entries
// are ignored.
func (r *Registry) AddRaw(spec string) {
	r.AddRawReport(spec)
}

// AddRawReport works like AddRaw and returns the entries it dropped
func (r *Registry) AddRawReport(spec string) []string {
	var dropped []string
	for _, entry := range splitList(spec) {
		if !r.Add(entry) {
			dropped = append(dropped, entry)
		}
	}
	return dropped
}

// Add registers a single "name, attributes" entry and reports whether it was valid
func (r *Registry) Add(entry string) bool {
	name, _, ok := strings.Cut(entry, ",")
	if !ok || name == "" || name[0] != NamePrefix {
		return false
	}
	r.entries[name] = entry
	return true
}

func (r *Registry) Get(name string) (string, bool) {
	spec, ok := r.entries[name]
	return spec, ok
}

func (r *Registry) Len() int {
	return len(r.entries)
}

// Names returns the registered names in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entries returns the registered entries sorted by name
func (r *Registry) Entries() []Entry {
	names := r.Names()
	entries := make([]Entry, len(names))
	for i, name := range names {
		entries[i] = Entry{Name: name, Spec: r.entries[name]}
	}
	return entries
}

// Merge copies all entries of other into r, overwriting on conflict
func (r *Registry) Merge(other *Registry) {
	if other == nil {
		return
	}
	for name, spec := range other.entries {
		r.entries[name] = spec
	}
}

func splitList(spec string) []string {
	if strings.TrimSpace(spec) == "" {
		return nil
	}

	tokens := listDelimiter.Split(spec, -1)
	// Trailing empty tokens do not count, a wrapped list always ends with ")"
	for len(tokens) > 0 && tokens[len(tokens)-1] == "" {
		tokens = tokens[:len(tokens)-1]
	}

	switch len(tokens) {
	case 0:
		return nil
	case 1:
		return []string{strings.TrimSpace(tokens[0])}
	}

	// A wrapped list splits into "", entry, "", entry, ...
	var entries []string
	for i := 1; i < len(tokens); i += 2 {
		entries = append(entries, tokens[i])
	}
	return entries
}
