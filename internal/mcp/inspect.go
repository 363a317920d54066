package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/lsdiff/internal/report"
)

type inspectParams struct {
	RunID string `json:"run_id" jsonschema:"the run ID from an lsdiff_run result"`
	Case  string `json:"case" jsonschema:"the case's switches as reported, e.g. -rt or -l"`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}
	if params.Case == "" {
		return errorResult("case is required")
	}

	result, err := h.store.Load(params.RunID)
	if err != nil {
		if errors.Is(err, report.ErrNotFound) {
			return errorResult(fmt.Sprintf("Unknown run %s. Runs are kept until pruned from history.", params.RunID))
		}
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}

	rec, err := report.ByCase(result, params.Case)
	if err != nil {
		var names []string
		for _, c := range result.Cases {
			names = append(names, c.Name)
		}
		return errorResult(fmt.Sprintf("%v. Cases in this run: %s", err, strings.Join(names, ", ")))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s\n", result.ID)
	fmt.Fprintf(&b, "Case: %s (%s, %s)\n", rec.Name, rec.Family, rec.Mode)
	fmt.Fprintln(&b)
	if err := report.RenderCase(&b, rec, true); err != nil {
		return errorResult(err.Error())
	}
	return textResult(b.String())
}
