package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/szaher/cppmcp/internal/job"
	"github.com/szaher/cppmcp/internal/mcp"
)

func newProbeCmd() *cobra.Command {
	var (
		urls    []string
		command []string
		tool    string
		file    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Exercise a running cppmcp server",
		Long: `Connect to one or more servers, list their tools and call one tool
with a sample program (or --file). Servers are given by --url for HTTP or
--command for a stdio child process. Each server's report is printed as JSON.`,
		Example: `  cppmcp probe --url http://localhost:8080/mcp
  cppmcp probe --command "cppmcp stdio" --tool get_ast`,
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := probeTargets(urls, command)
			if err != nil {
				return err
			}
			var source string
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read source: %w", err)
				}
				source = string(data)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			pool := mcp.NewPool(version)
			defer pool.Close()

			reports := make([]*mcp.Report, len(targets))
			g, gctx := errgroup.WithContext(ctx)
			for i, target := range targets {
				g.Go(func() error {
					c, err := pool.Connect(gctx, target)
					if err != nil {
						return err
					}
					reports[i], err = mcp.Probe(gctx, c, tool, source)
					return err
				})
			}
			probeErr := g.Wait()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			for _, r := range reports {
				if r == nil {
					continue
				}
				if err := enc.Encode(r); err != nil {
					return err
				}
			}
			return probeErr
		},
	}

	cmd.Flags().StringSliceVar(&urls, "url", nil, "HTTP endpoint of a server (repeatable)")
	cmd.Flags().StringArrayVar(&command, "command", nil, "Command line that starts a stdio server (repeatable)")
	cmd.Flags().StringVar(&tool, "tool", job.ToolCompile, "Tool to call")
	cmd.Flags().StringVar(&file, "file", "", "C++ source file to send instead of the sample program")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall probe timeout")

	return cmd
}

func probeTargets(urls, commands []string) ([]mcp.ServerConfig, error) {
	var targets []mcp.ServerConfig
	for _, u := range urls {
		targets = append(targets, mcp.ServerConfig{Name: u, Transport: mcp.TransportHTTP, URL: u})
	}
	for _, line := range commands {
		fields := job.SplitOptions(line)
		if len(fields) == 0 {
			return nil, errors.New("--command must not be empty")
		}
		targets = append(targets, mcp.ServerConfig{
			Name:      line,
			Transport: mcp.TransportStdio,
			Command:   fields[0],
			Args:      fields[1:],
		})
	}
	if len(targets) == 0 {
		return nil, errors.New("at least one --url or --command is required")
	}
	return targets, nil
}
