package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		stop()
		os.Exit(1)
	}
}

// setupLogging configures the global zerolog logger
func setupLogging(level, format string, w io.Writer) error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		return fmt.Errorf("invalid log level %q", level)
	}
	zerolog.SetGlobalLevel(lvl)

	format = strings.ToLower(format)
	if format == "auto" {
		format = "json"
		if isTerminal(w) {
			format = "console"
		}
	}

	switch format {
	case "json":
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	case "console":
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	default:
		return fmt.Errorf("invalid log format %q, must be auto, json or console", format)
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
