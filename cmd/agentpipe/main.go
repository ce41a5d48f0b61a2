// Command agentpipe runs user requests through the task pipeline.
//
// Usage:
//
//	agentpipe [-config agentpipe.yaml] run [-task ID] [-tool-call JSON] <input>
//	agentpipe [-config agentpipe.yaml] replay [-input TEXT]
//	agentpipe [-config agentpipe.yaml] serve
//	agentpipe tools
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dshills/agentpipe/config"
	"github.com/dshills/agentpipe/graph"
	"github.com/dshills/agentpipe/graph/controller"
	"github.com/dshills/agentpipe/graph/tool"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("agentpipe", flag.ContinueOnError)
	global.SetOutput(stderr)
	configPath := global.String("config", os.Getenv("AGENTPIPE_CONFIG"), "path to a YAML settings file")
	if err := global.Parse(args); err != nil {
		return 2
	}
	rest := global.Args()
	if len(rest) == 0 {
		fmt.Fprintln(stderr, "usage: agentpipe [-config FILE] run|replay|serve|tools [args]")
		return 2
	}

	cmd, cmdArgs := rest[0], rest[1:]
	if cmd == "tools" {
		return runTools(stdout, stderr)
	}

	settings, err := config.Load(*configPath, nil)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}

	switch cmd {
	case "run":
		return runOnce(ctx, settings, cmdArgs, stdout, stderr)
	case "replay":
		return runReplay(ctx, settings, cmdArgs, stdout, stderr)
	case "serve":
		return runServe(ctx, settings, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		return 2
	}
}

func runOnce(ctx context.Context, settings *config.Settings, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	taskID := fs.String("task", "", "continue an existing task")
	goal := fs.String("goal", "", "goal recorded on a new task")
	toolCall := fs.String("tool-call", "", "tool request as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	input := strings.Join(fs.Args(), " ")
	if input == "" {
		fmt.Fprintln(stderr, "run: input is required")
		return 2
	}

	req := controller.RunRequest{UserInput: input, TaskID: *taskID, Goal: *goal}
	if *toolCall != "" {
		req.ToolCall = &graph.ToolCallRequest{}
		if err := json.Unmarshal([]byte(*toolCall), req.ToolCall); err != nil {
			fmt.Fprintf(stderr, "run: invalid -tool-call: %v\n", err)
			return 2
		}
	}

	a, err := newApp(ctx, settings, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}
	defer a.Close(context.Background())

	res := a.ctrl.Run(ctx, req)
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}
	if !res.Archived {
		return 1
	}
	return 0
}

func runReplay(ctx context.Context, settings *config.Settings, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	input := fs.String("input", controller.ReplayInput, "request replayed twice")
	tolerance := fs.Float64("tolerance", settings.Replay.LatencyToleranceRatio, "allowed latency ratio, 0 to skip")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	a, err := newApp(ctx, settings, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "replay: %v\n", err)
		return 1
	}
	defer a.Close(context.Background())

	report, err := controller.ReplayBaseline(ctx, a.ctrl, a.store, *input, *tolerance)
	if err != nil {
		fmt.Fprintf(stderr, "replay: %v\n", err)
		return 1
	}
	fmt.Fprint(stdout, report.String())
	if !report.Passed {
		return 1
	}
	return 0
}

func runServe(ctx context.Context, settings *config.Settings, stderr io.Writer) int {
	a, err := newApp(ctx, settings, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "serve: %v\n", err)
		return 1
	}
	defer a.Close(context.Background())

	if err := a.Serve(ctx, fmt.Sprintf(":%d", settings.BackendPort)); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("server stopped", "error", err)
		return 1
	}
	return 0
}

func runTools(stdout, stderr io.Writer) int {
	reg := tool.NewRegistry()
	if err := tool.RegisterFileTools(reg); err != nil {
		fmt.Fprintf(stderr, "tools: %v\n", err)
		return 1
	}
	schemas, err := reg.ExportAll()
	if err != nil {
		fmt.Fprintf(stderr, "tools: %v\n", err)
		return 1
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(schemas); err != nil {
		fmt.Fprintf(stderr, "tools: %v\n", err)
		return 1
	}
	return 0
}
