package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	lsdiffmcp "github.com/deixis/lsdiff/internal/mcp"
	"github.com/deixis/lsdiff/internal/report"
)

func newMCPCommand(rootOpts *rootOptions) *cobra.Command {
	var (
		httpAddr     string
		instructions bool
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server",
		Long: `Start an MCP server exposing lsdiff_run, lsdiff_inspect and lsdiff_matrix.
The server speaks over stdio unless --http is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if instructions {
				fmt.Fprint(cmd.OutOrStdout(), lsdiffmcp.Instructions)
				return nil
			}

			e, err := loadEnv(cmd, rootOpts, nil)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()

			history, err := e.openHistory()
			if err != nil {
				return err
			}
			store := report.NewLRUStore(5, history)
			defer store.Close()

			server := lsdiffmcp.NewServer(e.cfg, e.runner, store, e.root, e.workDir, e.logger)
			if httpAddr != "" {
				return serveHTTP(ctx, server, httpAddr, e.logger)
			}
			if err := server.Run(ctx, &mcpsdk.StdioTransport{}); err != nil && ctx.Err() == nil {
				return wrapExitError(exitFatal, "mcp server", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "start HTTP server on address (e.g. :9090)")
	cmd.Flags().BoolVar(&instructions, "instructions", false, "print model instructions and exit")
	return cmd
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string, logger *slog.Logger) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	logger.Info("listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return wrapExitError(exitFatal, "http server", err)
	}
	return nil
}
