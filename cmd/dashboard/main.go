// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Command dashboard charts relay telemetry in the terminal.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Azure/iot-telemetry-relay/dashboard"
	"github.com/Azure/iot-telemetry-relay/dashboard/tui"
	"github.com/Azure/iot-telemetry-relay/internal/log"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"
)

type options struct {
	url      string
	logLevel string
	logFile  string
	plain    bool
}

func main() {
	var opts options
	flags := pflag.NewFlagSet("dashboard", pflag.ExitOnError)
	flags.StringVar(&opts.url, "url", "ws://localhost:4000/",
		"relay WebSocket URL")
	flags.StringVar(&opts.logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFile, "log-file", "",
		"write logs to this file while the terminal UI is active")
	flags.BoolVar(&opts.plain, "plain", false,
		"print one line per update instead of the terminal UI")
	_ = flags.Parse(os.Args[1:])

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if err := run(ctx, &opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}

	out, closeLog, err := logOutput(opts)
	if err != nil {
		return err
	}
	defer closeLog()
	logger := slog.New(tint.NewHandler(out, &tint.Options{
		Level:   level,
		NoColor: out != os.Stderr,
	}))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var program *tea.Program
	renderer := tui.Renderer(func() *tea.Program { return program })
	if opts.plain {
		renderer = dashboard.RendererFunc(func(v dashboard.View) {
			fmt.Println(tui.Line(v))
		})
	}
	session := dashboard.NewSession(renderer, logger)

	frames := make(chan []byte, 64)
	client := &dashboard.Client{URL: opts.url, Logger: logger}
	go func() {
		if err := client.Run(ctx, frames); err != nil && ctx.Err() == nil {
			l := log.Wrap(logger)
			l.Err(ctx, err)
		}
	}()

	if opts.plain {
		err := session.Run(ctx, frames)
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	program = tea.NewProgram(
		tui.New(session, opts.url),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	go func() { _ = session.Run(ctx, frames) }()

	_, err = program.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// The terminal UI owns the screen, so logs go to --log-file or nowhere.
func logOutput(opts *options) (io.Writer, func(), error) {
	switch {
	case opts.plain:
		return os.Stderr, func() {}, nil
	case opts.logFile == "":
		return io.Discard, func() {}, nil
	}

	f, err := os.OpenFile(opts.logFile,
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}
