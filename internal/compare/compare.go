// Package compare decides whether two captured outputs agree and, when
// they do not, pinpoints the lines that diverge.
//
// Two modes exist. Strict requires byte-for-byte equality and explains a
// mismatch with a line diff. LineTrimmed compares lines by position after
// stripping edge whitespace from each one, so column padding at the start
// or end of a line is tolerated but every other byte must agree.
package compare

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Mode selects the comparison semantics for a case.
type Mode string

const (
	// Strict requires byte-identical output.
	Strict Mode = "strict"
	// LineTrimmed compares edge-trimmed lines by position.
	LineTrimmed Mode = "line-trimmed"
)

// ParseMode converts a mode name into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case Strict, LineTrimmed:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown comparison mode %q", s)
}

// Tag classifies a diff line.
type Tag string

const (
	Keep   Tag = " " // present in both outputs
	Remove Tag = "-" // present only in the tool output
	Add    Tag = "+" // present only in the reference output
)

// DiffLine is one tagged line of a comparison.
type DiffLine struct {
	Tag Tag `json:"tag"`
	// Index is the 0-based line number in the output the line came from:
	// the tool output for Keep and Remove, the reference output for Add.
	Index     int    `json:"index"`
	Line      string `json:"line"`
	NoNewline bool   `json:"no_newline,omitempty"` // last line lacked a terminator
}

// Outcome is the result of comparing one pair of outputs.
type Outcome struct {
	Mode    Mode       `json:"mode"`
	Matched bool       `json:"matched"`
	Lines   []DiffLine `json:"lines,omitempty"`

	// CountMismatch is set in LineTrimmed mode when the outputs have a
	// different number of lines. It always implies Matched == false.
	CountMismatch bool `json:"count_mismatch,omitempty"`
	ToolLines     int  `json:"tool_lines"`
	RefLines      int  `json:"ref_lines"`
}

// Changes returns the lines tagged Remove or Add, in order.
func (o *Outcome) Changes() []DiffLine {
	var out []DiffLine
	for _, l := range o.Lines {
		if l.Tag != Keep {
			out = append(out, l)
		}
	}
	return out
}

// Options tune the comparison.
type Options struct {
	// CollapseSpace additionally collapses runs of internal whitespace to
	// a single space in LineTrimmed mode. Off by default: internal column
	// padding differences are mismatches unless explicitly tolerated.
	CollapseSpace bool
}

// Compare compares the tool output against the reference output.
func Compare(tool, ref []byte, mode Mode, opts Options) *Outcome {
	switch mode {
	case LineTrimmed:
		return compareTrimmed(tool, ref, opts)
	default:
		return compareStrict(tool, ref)
	}
}

func compareStrict(tool, ref []byte) *Outcome {
	a := splitKeepEOL(string(tool))
	b := splitKeepEOL(string(ref))
	o := &Outcome{
		Mode:      Strict,
		Matched:   bytes.Equal(tool, ref),
		ToolLines: len(a),
		RefLines:  len(b),
	}
	if o.Matched {
		return o
	}

	m := difflib.NewMatcherWithJunk(a, b, false, nil)
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'e':
			for i := op.I1; i < op.I2; i++ {
				o.Lines = append(o.Lines, newDiffLine(Keep, i, a[i]))
			}
		case 'd':
			for i := op.I1; i < op.I2; i++ {
				o.Lines = append(o.Lines, newDiffLine(Remove, i, a[i]))
			}
		case 'i':
			for j := op.J1; j < op.J2; j++ {
				o.Lines = append(o.Lines, newDiffLine(Add, j, b[j]))
			}
		case 'r':
			for i := op.I1; i < op.I2; i++ {
				o.Lines = append(o.Lines, newDiffLine(Remove, i, a[i]))
			}
			for j := op.J1; j < op.J2; j++ {
				o.Lines = append(o.Lines, newDiffLine(Add, j, b[j]))
			}
		}
	}
	return o
}

func compareTrimmed(tool, ref []byte, opts Options) *Outcome {
	a := splitLines(string(tool))
	b := splitLines(string(ref))
	o := &Outcome{
		Mode:          LineTrimmed,
		ToolLines:     len(a),
		RefLines:      len(b),
		CountMismatch: len(a) != len(b),
	}

	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if normalize(a[i], opts) == normalize(b[i], opts) {
			continue
		}
		o.Lines = append(o.Lines,
			DiffLine{Tag: Remove, Index: i, Line: a[i]},
			DiffLine{Tag: Add, Index: i, Line: b[i]},
		)
	}
	for i := n; i < len(a); i++ {
		o.Lines = append(o.Lines, DiffLine{Tag: Remove, Index: i, Line: a[i]})
	}
	for i := n; i < len(b); i++ {
		o.Lines = append(o.Lines, DiffLine{Tag: Add, Index: i, Line: b[i]})
	}

	o.Matched = !o.CountMismatch && len(o.Lines) == 0
	return o
}

func normalize(line string, opts Options) string {
	if opts.CollapseSpace {
		return strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(line)
}

// splitKeepEOL splits s into lines that retain their "\n" terminator, so
// that joining the result reproduces s exactly.
func splitKeepEOL(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// splitLines splits s on "\n". A single trailing newline does not produce
// an extra empty line.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

func newDiffLine(tag Tag, idx int, raw string) DiffLine {
	line, ok := strings.CutSuffix(raw, "\n")
	return DiffLine{Tag: tag, Index: idx, Line: line, NoNewline: !ok}
}
