package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/causelog"
	"github.com/roach88/causelog/internal/tree"
)

// TreeOptions holds flags for the tree command.
type TreeOptions struct {
	*RootOptions
	Task       string // optional - only this task_uuid
	Incomplete bool   // only tasks with unfinished actions
}

// TreeResult holds the complete tree output.
type TreeResult struct {
	Tasks []*tree.Task `json:"tasks"`
	Stats TreeStats    `json:"stats"`
}

// TreeStats holds summary statistics for the rendered tasks.
type TreeStats struct {
	Tasks      int `json:"tasks"`
	Actions    int `json:"actions"`
	Messages   int `json:"messages"`
	Incomplete int `json:"incomplete"`
}

// framingFields are shown through the tree structure instead of as fields.
var framingFields = map[string]bool{
	causelog.TaskUUIDField:     true,
	causelog.TaskLevelField:    true,
	causelog.TimestampField:    true,
	causelog.MessageTypeField:  true,
	causelog.ActionTypeField:   true,
	causelog.ActionStatusField: true,
}

// NewTreeCommand creates the tree command.
func NewTreeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TreeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tree <file>...",
		Short: "Render task trees from trace files",
		Long: `Rebuild and print the task trees recorded in JSON-lines trace files.

Messages are grouped by task_uuid and ordered by task_level, so files
from several processes can be combined. Actions without an end
message are flagged as incomplete.

Use "-" to read from stdin.

Examples:
  causelog tree app.log
  causelog tree --task 3f2c... app.log worker.log
  causelog tree --incomplete --format json app.log`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTree(opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.Task, "task", "", "only show the task with this task_uuid")
	cmd.Flags().BoolVar(&opts.Incomplete, "incomplete", false, "only show tasks with unfinished actions")

	return cmd
}

func runTree(opts *TreeOptions, cmd *cobra.Command, paths []string) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	msgs, err := loadMessages(opts.RootOptions, cmd.InOrStdin(), paths)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeReadFailed, "failed to read trace", err)
	}

	tasks, err := tree.Build(msgs)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeBadTrace, "malformed trace", err)
	}

	tasks = filterTasks(tasks, opts.Task, opts.Incomplete)
	result := TreeResult{Tasks: tasks, Stats: treeStats(tasks)}
	if result.Tasks == nil {
		result.Tasks = []*tree.Task{}
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	w := cmd.OutOrStdout()
	if len(tasks) == 0 {
		if opts.Task != "" {
			fmt.Fprintf(w, "No messages found for task: %s\n", opts.Task)
		} else {
			fmt.Fprintln(w, "No tasks found")
		}
		return nil
	}
	return outputTreeText(w, result, opts.Verbose)
}

func filterTasks(tasks []*tree.Task, uuid string, incompleteOnly bool) []*tree.Task {
	var out []*tree.Task
	for _, t := range tasks {
		if uuid != "" && t.UUID != uuid {
			continue
		}
		if incompleteOnly && len(t.Incomplete()) == 0 {
			continue
		}
		out = append(out, t)
	}
	return out
}

func treeStats(tasks []*tree.Task) TreeStats {
	stats := TreeStats{Tasks: len(tasks)}
	var walk func([]*tree.Node)
	walk = func(nodes []*tree.Node) {
		for _, n := range nodes {
			if n.Kind == tree.KindAction {
				stats.Actions++
				if n.Incomplete() {
					stats.Incomplete++
				}
			} else {
				stats.Messages++
			}
			walk(n.Children)
		}
	}
	for _, t := range tasks {
		walk(t.Roots)
	}
	return stats
}

// outputTreeText outputs the tree result as text.
func outputTreeText(w io.Writer, result TreeResult, verbose bool) error {
	for i, t := range result.Tasks {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "Task: %s\n", t.UUID)
		for _, n := range t.Roots {
			formatNode(w, n, 1, verbose)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Tasks:      %d\n", result.Stats.Tasks)
	fmt.Fprintf(w, "  Actions:    %d\n", result.Stats.Actions)
	fmt.Fprintf(w, "  Messages:   %d\n", result.Stats.Messages)
	fmt.Fprintf(w, "  Incomplete: %d\n", result.Stats.Incomplete)
	return nil
}

// formatNode formats a node and its children for text output.
func formatNode(w io.Writer, n *tree.Node, depth int, verbose bool) {
	indent := strings.Repeat("  ", depth)

	if n.Kind == tree.KindMessage {
		name := n.Type
		if name == "" {
			name = "(untyped)"
		}
		fmt.Fprintf(w, "%sMSG %s %s %s\n", indent, name, n.Level, formatArgs(visibleFields(n.Fields, verbose)))
		return
	}

	status := n.Status
	if n.Incomplete() {
		status += " (incomplete)"
	}
	fmt.Fprintf(w, "%sACTION %s %s %s\n", indent, n.Type, n.Level, status)
	if start := visibleFields(n.Start, verbose); len(start) > 0 {
		fmt.Fprintf(w, "%s  start: %s\n", indent, formatArgs(start))
	}
	for _, child := range n.Children {
		formatNode(w, child, depth+1, verbose)
	}
	if end := visibleFields(n.End, verbose); len(end) > 0 {
		fmt.Fprintf(w, "%s  end:   %s\n", indent, formatArgs(end))
	}
}

// visibleFields drops framing fields. Verbose output keeps timestamps.
func visibleFields(fields causelog.Fields, verbose bool) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if framingFields[k] && !(verbose && k == causelog.TimestampField) {
			continue
		}
		out[k] = v
	}
	return out
}

// formatArgs formats a map of fields for display.
// Uses sorted keys to ensure deterministic output.
func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, formatValue(args[k])))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// formatValue formats a single value for display, handling nested structures deterministically.
func formatValue(v any) string {
	switch val := v.(type) {
	case map[string]any:
		return formatArgs(val)
	case causelog.Fields:
		return formatArgs(val)
	case []any:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = formatValue(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case string:
		return val
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v", v)
	}
}
