package watch

import (
	"path/filepath"
	"slices"
	"strings"
)

type Kind int

const (
	Other Kind = iota
	Modified
	Created
)

func (k Kind) String() string {
	switch k {
	case Modified:
		return "modified"
	case Created:
		return "created"
	}
	return "other"
}

type Event struct {
	Kind  Kind
	Paths []string
}

var (
	CompileExts = []string{"tex", "bib", "sty", "cls", "png", "jpg", "jpeg", "pdf"}
	VerifyExts  = []string{"tex"}
)

// Filter decides which events may trigger a build. Exts are compared
// without the leading dot and case-insensitively.
type Filter struct {
	Exts   []string
	Output string
}

func (f Filter) Relevant(ev Event) bool {
	if ev.Kind != Modified && ev.Kind != Created {
		return false
	}
	for _, p := range ev.Paths {
		if f.Output != "" && filepath.Base(p) == f.Output {
			continue
		}
		if slices.Contains(f.Exts, Ext(p)) {
			return true
		}
	}
	return false
}

// Ext returns the lowercased extension of path without the dot.
func Ext(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}
