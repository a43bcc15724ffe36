package domain

import "fmt"

// Breakpoint names a device width class. Each node keeps one property bag per breakpoint.
type Breakpoint string

const (
	BreakpointDesktop Breakpoint = "desktop"
	BreakpointTablet  Breakpoint = "tablet"
	BreakpointMobile  Breakpoint = "mobile"
)

// Breakpoints lists every breakpoint from widest to narrowest. Property
// resolution cascades in this order.
var Breakpoints = []Breakpoint{BreakpointDesktop, BreakpointTablet, BreakpointMobile}

// Valid reports whether b is one of the known breakpoints.
func (b Breakpoint) Valid() bool {
	return b.Rank() >= 0
}

// Rank is the cascade position of b (0 = desktop), or -1 when unknown.
func (b Breakpoint) Rank() int {
	for i, bp := range Breakpoints {
		if bp == b {
			return i
		}
	}
	return -1
}

// ParseBreakpoint validates a breakpoint name coming from outside the core.
func ParseBreakpoint(s string) (Breakpoint, error) {
	b := Breakpoint(s)
	if !b.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownBreakpoint, s)
	}
	return b, nil
}

// Mode is the editor presentation mode.
type Mode string

const (
	ModeEdit      Mode = "edit"
	ModePreview   Mode = "preview"
	ModeStructure Mode = "structure"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeEdit, ModePreview, ModeStructure:
		return true
	}
	return false
}
