package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/causelog"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	TraceOut string // optional JSON-lines file receiving the CLI's own actions
	TaskIDs  string // task id scheme for the CLI's own actions

	log      *slog.Logger
	trace    causelog.Logger
	exec     *causelog.ExecutionContext
	closeOut func() error
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the causelog CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "causelog",
		Short: "causelog - causal structured log tools",
		Long: `Tools for JSON-lines trace files written by causelog.

Messages sharing a task_uuid form one task; their task_level paths
place every action and message in the task's tree.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.setup(cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return opts.teardown()
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.TraceOut, "trace-out", "", "write the CLI's own actions as JSON lines to this file")
	cmd.PersistentFlags().StringVar(&opts.TaskIDs, "task-ids", "random", "task id scheme for --trace-out (random|time)")

	cmd.AddCommand(NewTreeCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

// setup configures diagnostics: slog on stderr, the ExecutionContext the
// CLI's own actions run in, and a causelog logger for them when --trace-out
// is given.
func (o *RootOptions) setup(stderr io.Writer) error {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	o.log = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	ids, err := causelog.ParseTaskIDScheme(o.TaskIDs)
	if err != nil {
		return err
	}
	o.exec = causelog.NewExecutionContext(causelog.WithTaskIDs(ids))

	if o.TraceOut == "" {
		return nil
	}
	f, err := os.OpenFile(o.TraceOut, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open trace output", err)
	}
	dests := causelog.NewDestinations()
	if _, err := dests.Add(causelog.NewWriterDestination(f)); err != nil {
		f.Close()
		return WrapExitError(ExitCommandError, "failed to open trace output", err)
	}
	o.trace = causelog.NewOutputLogger(dests, causelog.WithSideChannel(o.log))
	o.closeOut = f.Close
	return nil
}

func (o *RootOptions) teardown() error {
	if o.closeOut == nil {
		return nil
	}
	err := o.closeOut()
	o.closeOut = nil
	return err
}

// Log returns the diagnostic logger. Commands run without the root command
// (as in tests) get one that discards everything.
func (o *RootOptions) Log() *slog.Logger {
	if o.log == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.log
}

// Exec returns the ExecutionContext of the CLI's own actions. It is private
// to the CLI so its actions never adopt a parent from library callers.
func (o *RootOptions) Exec() *causelog.ExecutionContext {
	if o.exec == nil {
		o.exec = causelog.NewExecutionContext()
	}
	return o.exec
}

// Trace returns the causelog logger for the CLI's own actions. Without
// --trace-out messages are dropped.
func (o *RootOptions) Trace() causelog.Logger {
	if o.trace == nil {
		return discardLogger{}
	}
	return o.trace
}

type discardLogger struct{}

func (discardLogger) Write(causelog.Fields, *causelog.MessageSerializer) {}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
