package suite

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/texerai/maveric2/pkg/trace"
	"github.com/texerai/maveric2/pkg/verify"
)

// ReportNote heads a new report file
const ReportNote = "NOTE: ILLEGAL INSTRUCTION REFERS TO INSTRUCTIONS THAT ARE NOT (YET) IMPLEMENTED IN THE DUT.\n" +
	"THE DUT REPORTS THOSE INSTRUCTIONS AS ILLEGAL.\n"

// ReportWriter appends verdict lines to the report file and prints them,
// colored, on the console
type ReportWriter struct {
	file    afero.File
	console io.Writer

	pass, fail, notApplicable *color.Color
	highlight                 *trace.Highlighter
}

// NewReportWriter opens the report file at path. A fresh report truncates
// the file and writes the header note, otherwise lines are appended.
func NewReportWriter(fs afero.Fs, path string, fresh bool, console io.Writer, colorize bool) (*ReportWriter, error) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if fresh {
		flags |= os.O_TRUNC
	}

	file, err := fs.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open report %s", path)
	}

	if fresh {
		if _, err := file.WriteString(ReportNote); err != nil {
			file.Close()
			return nil, errors.Wrapf(err, "error writing to file %s", path)
		}
	}

	w := NewConsoleReport(console, colorize)
	w.file = file
	return w, nil
}

// NewConsoleReport returns a writer that only prints on the console
func NewConsoleReport(console io.Writer, colorize bool) *ReportWriter {
	w := &ReportWriter{
		console:       console,
		pass:          color.New(color.FgGreen),
		fail:          color.New(color.FgRed, color.Bold),
		notApplicable: color.New(color.FgYellow),
		highlight:     trace.NewHighlighter(colorize),
	}

	for _, c := range []*color.Color{w.pass, w.fail, w.notApplicable} {
		if colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	return w
}

// Write implements Sink
func (w *ReportWriter) Write(v verify.Verdict) error {
	line := v.ReportLine()
	if w.file != nil {
		if _, err := w.file.WriteString(line + "\n"); err != nil {
			return errors.Wrapf(err, "error writing to file %s", w.file.Name())
		}
	}

	if w.console == nil {
		return nil
	}

	if _, err := fmt.Fprintln(w.console, w.colorFor(v.Status).Sprint(line)); err != nil {
		return err
	}

	for _, d := range v.Diff {
		fmt.Fprintln(w.console, "  "+w.highlight.Highlight(d))
	}

	return nil
}

// Summary prints the totals of a report on the console
func (w *ReportWriter) Summary(report *Report) {
	if w.console == nil {
		return
	}

	counts := make(map[verify.Status]int)
	for _, v := range report.Verdicts {
		counts[v.Status]++
	}

	fmt.Fprintf(w.console, "\n%s %d, %s %d, %s %d, %s %d\n",
		w.pass.Sprint("PASS"), counts[verify.StatusPass],
		w.fail.Sprint("FAIL"), counts[verify.StatusFail],
		w.notApplicable.Sprint("Not Applicable"), counts[verify.StatusNotApplicable],
		w.fail.Sprint("INDETERMINATE"), counts[verify.StatusIndeterminate])

	if report.Halted != nil {
		fmt.Fprintf(w.console, "stopped at %s, %d tests not run: %s\n",
			report.Halted.Test, len(report.Skipped), strings.Join(report.Skipped, ", "))
	}
}

// Close closes the report file
func (w *ReportWriter) Close() error {
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}

func (w *ReportWriter) colorFor(s verify.Status) *color.Color {
	switch s {
	case verify.StatusPass:
		return w.pass
	case verify.StatusNotApplicable:
		return w.notApplicable
	default:
		return w.fail
	}
}
