package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/shpitdev/movement-enricher/internal/version"
	"github.com/shpitdev/movement-enricher/pkg/pipeline/redact"
)

// Exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitInterrupted = 130
)

// usageError marks errors caused by bad flags or configuration.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// interruptedError reports a run stopped by a signal after its final flush.
type interruptedError struct{ err error }

func (e interruptedError) Error() string { return e.err.Error() }
func (e interruptedError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func execute(ctx context.Context, args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	msg := redact.Secrets(err.Error())
	var ue usageError
	var ie interruptedError
	switch {
	case errors.As(err, &ie):
		_, _ = color.New(color.FgYellow).Fprintf(os.Stderr, "interrupted: %s\n", msg)
		return exitInterrupted
	case errors.As(err, &ue), strings.HasPrefix(err.Error(), "unknown command"):
		_, _ = fmt.Fprintf(os.Stderr, "usage error: %s\n", msg)
		return exitUsage
	default:
		_, _ = color.New(color.FgRed).Fprintf(os.Stderr, "run failed: %s\n", msg)
		return exitFailure
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "enricher",
		Short:         "Adds the latest financial movement date to a TransfereGov agreement workbook",
		Long:          color.CyanString("enricher drives an already logged-in Chrome through the TransfereGov agreement search\nand records the most recent financial movement date of every agreement in the workbook."),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})
	root.AddCommand(newRunCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Current)
		},
	}
}
