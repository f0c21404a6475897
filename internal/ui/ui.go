// Package ui renders command output, coloring it only for terminals.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

type UI struct {
	out   io.Writer
	color bool
}

// New writes to stdout, coloring when stdout is a terminal and noColor is false.
func New(noColor bool) *UI {
	tty := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	return &UI{
		out:   colorable.NewColorableStdout(),
		color: tty && !noColor,
	}
}

// NewWriter never colors; used for tests and pipes.
func NewWriter(w io.Writer) *UI {
	return &UI{out: colorable.NewNonColorable(w)}
}

func (u *UI) Printf(format string, args ...any) {
	fmt.Fprintf(u.out, format, args...)
}

// Colorf prints in c when coloring is enabled.
func (u *UI) Colorf(c Color, format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if u.color {
		text = c.Wrap(text)
	}
	fmt.Fprint(u.out, text)
}
