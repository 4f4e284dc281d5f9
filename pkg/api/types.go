package api

import (
	"fmt"
	"strings"
)

type CompileOut struct {
	CompileTime   string
	FilesReceived string
	PDF           []byte
}

type Finding struct {
	Line    *int   `json:"line,omitempty"`
	Message string `json:"message"`
}

func (f Finding) String() string {
	line := "?"
	if f.Line != nil {
		line = fmt.Sprintf("%d", *f.Line)
	}
	return fmt.Sprintf("[Line %s] %s", line, f.Message)
}

type ValidateOut struct {
	Errors   []Finding `json:"errors"`
	Valid    bool      `json:"valid"`
	Warnings []string  `json:"warnings"`
}

// Summary renders the findings one per line.
func (v ValidateOut) Summary() string {
	lines := make([]string, 0, len(v.Errors))
	for _, f := range v.Errors {
		lines = append(lines, f.String())
	}
	return strings.Join(lines, "\n")
}
