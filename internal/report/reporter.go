package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/deixis/lsdiff/internal/compare"
	"github.com/deixis/lsdiff/internal/matrix"
)

// Reporter writes human-readable discrepancies to W. Passing cases produce
// no output. It implements matrix.Sink.
type Reporter struct {
	W io.Writer
	// Context also prints the lines both outputs agree on in Strict mode.
	Context bool
}

// Report writes the discrepancy for r, if any. A write error is returned
// unchanged; the driver treats it as fatal.
func (rp *Reporter) Report(r matrix.CaseResult) error {
	if !r.Status.Failed() {
		return nil
	}
	var errText string
	if r.Err != nil {
		errText = r.Err.Error()
	}
	var b strings.Builder
	writeCase(&b, r.Case.Name(), r.Status, errText, r.Outcome, rp.Context)
	_, err := io.WriteString(rp.W, b.String())
	return err
}

// Summary writes a one-line tally when at least one case failed.
func (rp *Reporter) Summary(s *matrix.RunSummary) error {
	failed := s.Failed()
	if failed == 0 {
		return nil
	}
	_, err := fmt.Fprintf(rp.W, "FAIL: %d of %d cases failed (run %s)\n", failed, len(s.Results), s.ID)
	return err
}

// Fatal writes a run-level error that stopped the run, one "error:" line
// per line of err.
func (rp *Reporter) Fatal(err error) error {
	var b strings.Builder
	for _, line := range strings.Split(err.Error(), "\n") {
		fmt.Fprintf(&b, "error: %s\n", line)
	}
	_, werr := io.WriteString(rp.W, b.String())
	return werr
}

// RenderCase writes a stored case record. Unlike Report, a passing case
// is acknowledged so that inspecting it is never silent.
func RenderCase(w io.Writer, rec *CaseRecord, context bool) error {
	var b strings.Builder
	if !rec.Status.Failed() {
		fmt.Fprintf(&b, "%s %s\n", rec.Name, rec.Status)
	} else {
		writeCase(&b, rec.Name, rec.Status, rec.Error, rec.Outcome, context)
	}
	if len(rec.Argv) > 0 {
		fmt.Fprintf(&b, "argv: %s\n", strings.Join(rec.Argv, " "))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// RenderRun writes a one-line overview of a stored run.
func RenderRun(w io.Writer, r *RunResult) error {
	verdict := "ok"
	if !r.OK() {
		verdict = "FAIL"
	}
	_, err := fmt.Fprintf(w, "%s  %s  %-4s  %d passed, %d failed  %s\n",
		r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), verdict, r.Passed, r.Failed, r.Artifact)
	return err
}

// WriteJSON encodes the run record as indented JSON.
func WriteJSON(w io.Writer, r *RunResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func writeCase(b *strings.Builder, name string, status matrix.Status, errText string, o *compare.Outcome, context bool) {
	if status != matrix.StatusMismatch || o == nil {
		if errText == "" {
			errText = string(status)
		}
		// Joined errors from both sides get one line each.
		for _, line := range strings.Split(errText, "\n") {
			fmt.Fprintf(b, "%s error: %s\n", name, line)
		}
		return
	}

	fmt.Fprintf(b, "%s differs:\n", name)
	lines := o.Lines
	if !context || o.Mode == compare.LineTrimmed {
		lines = o.Changes()
	}
	for _, l := range lines {
		if o.Mode == compare.LineTrimmed {
			fmt.Fprintf(b, "%s [%d] %s\n", l.Tag, l.Index, l.Line)
			continue
		}
		fmt.Fprintf(b, "%s %s\n", l.Tag, l.Line)
		if l.NoNewline {
			b.WriteString("\\ No newline at end of file\n")
		}
	}
	if o.CountMismatch {
		fmt.Fprintf(b, "line count: tool %d, reference %d\n", o.ToolLines, o.RefLines)
	}
}

// WriteJSONError encodes a run-level error as {"error": "..."}.
func WriteJSONError(w io.Writer, err error) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Error string `json:"error"`
	}{err.Error()})
}
