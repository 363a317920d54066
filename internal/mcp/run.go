package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/lsdiff/internal/locate"
	"github.com/deixis/lsdiff/internal/report"
	"github.com/deixis/lsdiff/internal/workflow"
)

type runParams struct {
	Filter   string `json:"filter,omitempty" jsonschema:"only run cases whose switches contain this substring (e.g. r or -l). Defaults to all cases."`
	Artifact string `json:"artifact,omitempty" jsonschema:"path of an already built executable; skips the build step"`
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params runParams) (*mcp.CallToolResult, any, error) {
	var discrepancies strings.Builder
	out, err := h.engine.Run(ctx, workflow.RunOptions{
		Artifact: params.Artifact,
		Filter:   params.Filter,
		Sink:     &report.Reporter{W: &discrepancies},
	})
	if out == nil {
		return errorResult(formatRunError(err))
	}
	if err != nil {
		// The run was recorded but did not complete.
		return errorResult(fmt.Sprintf("run %s aborted: %v", out.Summary.ID, err))
	}
	return textResult(formatRun(out, discrepancies.String()))
}

func formatRunError(err error) string {
	var buildErr *locate.BuildError
	switch {
	case errors.As(err, &buildErr):
		return fmt.Sprintf("Build failed, no case was run.\n\n%v\n\nAction: fix the build and re-run lsdiff_run.", err)
	case errors.Is(err, locate.ErrBuildOutputTruncated):
		return fmt.Sprintf("%v\n\nAction: raise build.max_output in .lsdiff, or pass artifact explicitly.", err)
	case errors.Is(err, locate.ErrArtifactNotFound):
		return fmt.Sprintf("%v\n\nAction: check that the build produces a binary, or pass artifact explicitly.", err)
	case errors.Is(err, workflow.ErrNoCases):
		return fmt.Sprintf("%v. Use lsdiff_matrix to list the configured cases.", err)
	}
	return fmt.Sprintf("run failed: %v", err)
}

func formatRun(out *workflow.RunOutcome, discrepancies string) string {
	var b strings.Builder
	rr := out.Record

	if rr.OK() {
		fmt.Fprintln(&b, "Status: PASS")
	} else {
		fmt.Fprintln(&b, "Status: FAIL")
	}
	fmt.Fprintf(&b, "Run: %s\n", rr.ID)
	fmt.Fprintf(&b, "Artifact: %s\n", rr.Artifact)
	fmt.Fprintf(&b, "Reference: %s\n", rr.Reference)
	fmt.Fprintf(&b, "Cases: %d passed, %d failed\n", rr.Passed, rr.Failed)
	fmt.Fprintln(&b)

	if rr.OK() {
		fmt.Fprintln(&b, "Every case matched the reference.")
		return b.String()
	}

	fmt.Fprintln(&b, "Discrepancies:")
	fmt.Fprint(&b, discrepancies)
	fmt.Fprintln(&b)
	first := report.Failures(rr)[0].Name
	fmt.Fprintf(&b, "Inspect with lsdiff_inspect(run_id=%q, case=%q).\n", rr.ID, first)
	return b.String()
}
