// Package jlog is the ambient trace logger: host-error paths and the GC's
// collection-cycle boundaries emit single-line records through it. It is a
// thin wrapper around the standard library's log.Logger — library code
// (pkg/gc, pkg/classloader, pkg/interp) only ever calls the plain Logger
// methods below. The lipgloss-styled rendering in Styled is for
// cmd/tinyjvm's human-readable summaries only; no other library package
// imports lipgloss.
package jlog

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Logger is the trace sink of a run: cmd/tinyjvm wires it into pkg/gc.Heap
// as its CycleLogger and writes its own error lines through the same
// *Logger, so a run's trace lines interleave in timestamp order on one
// writer.
type Logger struct {
	*log.Logger
	verbose bool
}

// New wraps w in a Logger; verbose gates GCCycle/ClassLoad's chattier
// per-cycle/per-class lines (jvmconfig.Config.GCVerbose), while Error
// always prints.
func New(w io.Writer, verbose bool) *Logger {
	return &Logger{Logger: log.New(w, "tinyjvm: ", log.LstdFlags), verbose: verbose}
}

// Default is a Logger over os.Stderr with verbose tracing off — the
// zero-configuration logger used by tests and library code exercised
// without a cmd/tinyjvm-wired instance.
func Default() *Logger { return New(os.Stderr, false) }

// Error logs a host-error trace line unconditionally: a failed class load,
// a failed allocation, an uncaught guest exception reaching the top frame.
func (l *Logger) Error(format string, args ...any) {
	l.Printf("error: "+format, args...)
}

// GCCycle logs one collection cycle's summary (index, objects reclaimed,
// bytes freed) when verbose tracing is enabled.
func (l *Logger) GCCycle(index uint64, reclaimed int, freedBytes uint64) {
	if !l.verbose {
		return
	}
	l.Printf("gc: cycle %d reclaimed %d objects (%d bytes)", index, reclaimed, freedBytes)
}

// ClassLoad logs a class-load/link event when verbose tracing is enabled.
func (l *Logger) ClassLoad(name string) {
	if !l.verbose {
		return
	}
	l.Printf("load: %s", name)
}

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4682B4"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#228B22")).Bold(true)
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#CC3333")).Bold(true)
)

// Styled renders cmd/tinyjvm's end-of-run summaries: a heading and a set of
// label/value rows, colored by whether the run succeeded.
type Styled struct {
	Heading string
	Rows    [][2]string // [label, value]
	Ok      bool
}

func (s Styled) String() string {
	out := headingStyle.Render(s.Heading) + "\n"
	for _, row := range s.Rows {
		out += fmt.Sprintf("  %s %s\n", labelStyle.Render(row[0]+":"), row[1])
	}
	status := okStyle.Render("ok")
	if !s.Ok {
		status = failStyle.Render("failed")
	}
	return out + labelStyle.Render("status:") + " " + status
}
