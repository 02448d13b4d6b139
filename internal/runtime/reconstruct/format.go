package reconstruct

import (
	"fmt"
	"strings"
)

// Format selects the output flavour of an artifact. It decides the file
// extension and whether the provenance header carries the security
// disclaimer.
type Format int

const (
	// FormatText produces a plain-text artifact.
	FormatText Format = iota
	// FormatScript produces an executable-format artifact.
	FormatScript
)

func (f Format) String() string {
	if f == FormatScript {
		return "script"
	}
	return "text"
}

// Executable reports whether the sink should treat the artifact as runnable.
func (f Format) Executable() bool { return f == FormatScript }

// Extension returns the file extension, including the dot.
func (f Format) Extension() string {
	if f == FormatScript {
		return ".ps1"
	}
	return ".txt"
}

// ParseFormat accepts "text", "txt", "script" or "ps1". Empty means script.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "script", "ps1":
		return FormatScript, nil
	case "text", "txt":
		return FormatText, nil
	default:
		return FormatText, fmt.Errorf("unknown output format %q", s)
	}
}
