// Package matrix enumerates the switch combinations under test and drives
// the tool under test and the reference through each of them.
package matrix

import (
	"strings"

	"github.com/deixis/lsdiff/internal/compare"
	"github.com/deixis/lsdiff/internal/config"
)

// Context selects the directory a case lists.
type Context string

const (
	// CurrentDir lists the harness's working directory; no directory
	// argument is passed.
	CurrentDir Context = "current-dir"
	// FixedExternalDir passes the configured target directory explicitly.
	FixedExternalDir Context = "external-dir"
)

// Family names the group a case belongs to.
type Family string

const (
	SortFamily Family = "sort"
	LongFamily Family = "long"
)

// FlagCase is one switch combination together with the comparison
// semantics it requires.
type FlagCase struct {
	Family   Family       `json:"family"`
	Baseline []string     `json:"baseline,omitempty"`
	Switches []string     `json:"switches"`
	Mode     compare.Mode `json:"mode"`
	Context  Context      `json:"context"`
}

// Name identifies the case by its switch tokens, e.g. "-rt".
func (c FlagCase) Name() string {
	return strings.Join(c.Switches, " ")
}

// Args builds the argument vector shared by both executables:
// baseline, then the directory argument (if any), then the switches.
func (c FlagCase) Args(target string) []string {
	args := make([]string, 0, len(c.Baseline)+1+len(c.Switches))
	args = append(args, c.Baseline...)
	if c.Context == FixedExternalDir {
		args = append(args, target)
	}
	return append(args, c.Switches...)
}

// Build returns the sort-order family followed by the long-format family.
func Build(cfg *config.Config) []FlagCase {
	var cases []FlagCase
	for _, s := range cfg.SortSwitches() {
		cases = append(cases, FlagCase{
			Family:   SortFamily,
			Switches: strings.Fields(s),
			Mode:     compare.Strict,
			Context:  CurrentDir,
		})
	}
	baseline := cfg.LongBaseline()
	for _, s := range cfg.LongSwitches() {
		cases = append(cases, FlagCase{
			Family:   LongFamily,
			Baseline: append([]string(nil), baseline...),
			Switches: strings.Fields(s),
			Mode:     compare.LineTrimmed,
			Context:  FixedExternalDir,
		})
	}
	return cases
}

// Filter keeps the cases whose name contains substr. An empty substr
// keeps everything.
func Filter(cases []FlagCase, substr string) []FlagCase {
	if substr == "" {
		return cases
	}
	var out []FlagCase
	for _, c := range cases {
		if strings.Contains(c.Name(), substr) {
			out = append(out, c)
		}
	}
	return out
}

// Find returns the first case whose name equals name.
func Find(cases []FlagCase, name string) (FlagCase, bool) {
	for _, c := range cases {
		if c.Name() == name {
			return c, true
		}
	}
	return FlagCase{}, false
}
