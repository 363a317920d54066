package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type matrixParams struct {
	Filter string `json:"filter,omitempty" jsonschema:"only list cases whose switches contain this substring"`
}

func (h *handler) matrixHandler(ctx context.Context, req *mcp.CallToolRequest, params matrixParams) (*mcp.CallToolResult, any, error) {
	cases := h.engine.Cases(params.Filter)
	if len(cases) == 0 {
		return textResult(fmt.Sprintf("No cases match %q.", params.Filter))
	}

	cfg := h.engine.Config
	var b strings.Builder
	fmt.Fprintf(&b, "Reference: %s\n", cfg.Reference())
	fmt.Fprintf(&b, "Cases (%d):\n", len(cases))
	for _, c := range cases {
		fmt.Fprintf(&b, "  %-5s %-12s %s\n", c.Family, c.Mode, strings.Join(c.Args(cfg.LongTarget()), " "))
	}
	return textResult(b.String())
}
