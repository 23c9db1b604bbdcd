// Package clipboard copies record prompts to the system clipboard, falling back to an
// OSC 52 terminal escape when no clipboard utility is available.
package clipboard

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/aymanbagabas/go-osc52/v2"
)

// Method reports how the text reached the clipboard.
type Method string

const (
	MethodSystem Method = "system"
	MethodOSC52  Method = "osc52"
)

// Error wraps every failed copy attempt.
type Error struct {
	System error
	OSC52  error
}

func (e *Error) Error() string {
	var parts []string
	if e.System != nil {
		parts = append(parts, "system: "+e.System.Error())
	}
	if e.OSC52 != nil {
		parts = append(parts, "osc52: "+e.OSC52.Error())
	}
	return "copy to clipboard failed (" + strings.Join(parts, "; ") + ")"
}

// Copier writes text to the clipboard.
type Copier struct {
	// WriteSystem defaults to clipboard.WriteAll.
	WriteSystem func(string) error
	// Terminal receives the OSC 52 sequence. Nil disables the fallback.
	Terminal io.Writer
	// Tmux wraps the sequence for tmux passthrough.
	Tmux bool
}

// New returns a Copier that falls back to stderr. TMUX in the environment enables
// the tmux wrapping.
func New() *Copier {
	return &Copier{
		WriteSystem: clipboard.WriteAll,
		Terminal:    os.Stderr,
		Tmux:        os.Getenv("TMUX") != "",
	}
}

func (c *Copier) Copy(text string) (Method, error) {
	write := c.WriteSystem
	if write == nil {
		write = clipboard.WriteAll
	}

	sysErr := write(text)
	if sysErr == nil {
		return MethodSystem, nil
	}
	if c.Terminal == nil {
		return "", &Error{System: sysErr}
	}

	seq := osc52.New(text)
	if c.Tmux {
		seq = seq.Tmux()
	}
	if _, err := seq.WriteTo(c.Terminal); err != nil {
		return "", &Error{System: sysErr, OSC52: fmt.Errorf("write sequence: %w", err)}
	}
	return MethodOSC52, nil
}
