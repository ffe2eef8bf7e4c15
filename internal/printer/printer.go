// Package printer formats CLI status messages with color.
package printer

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// Printer writes results to out and status messages to errOut
type Printer struct {
	out    io.Writer
	errOut io.Writer
}

// New creates a printer. Color is disabled when NO_COLOR is set.
func New(out, errOut io.Writer) *Printer {
	if os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}
	return &Printer{out: out, errOut: errOut}
}

// Out returns the result writer
func (p *Printer) Out() io.Writer {
	return p.out
}

// Success prints a green message with a checkmark prefix
func (p *Printer) Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		msg = "✓ " + msg
	}
	green.Fprint(p.errOut, msg)
}

// Info prints an uncolored message to the result writer
func (p *Printer) Info(format string, a ...any) {
	fmt.Fprintf(p.out, format, a...)
}

// Warning prints a yellow message with a warning prefix
func (p *Printer) Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		msg = "⚠️  " + msg
	}
	yellow.Fprint(p.errOut, msg)
}

// Step prints a cyan progress message
func (p *Printer) Step(format string, a ...any) {
	cyan.Fprintf(p.errOut, "→ %s", fmt.Sprintf(format, a...))
}

// Error prints a titled error with details and suggestions, and returns a
// plain error for cobra, which is configured not to print it again.
func (p *Printer) Error(title, explanation string, details []string, suggestions []string) error {
	red.Fprintf(p.errOut, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(p.errOut, "%s\n", explanation)
	}

	if len(details) > 0 {
		fmt.Fprintf(p.errOut, "\n")
		for _, d := range details {
			fmt.Fprintf(p.errOut, "  - %s\n", d)
		}
	}

	if len(suggestions) > 0 {
		fmt.Fprintf(p.errOut, "\n")
		if len(suggestions) == 1 {
			fmt.Fprintf(p.errOut, "%s\n", suggestions[0])
		} else {
			fmt.Fprintf(p.errOut, "Either:\n")
			for i, s := range suggestions {
				fmt.Fprintf(p.errOut, "  %d. %s\n", i+1, s)
			}
		}
	}

	return fmt.Errorf("%s", title)
}
