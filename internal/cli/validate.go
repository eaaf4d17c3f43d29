package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/causelog"
	"github.com/roach88/causelog/internal/schemaspec"
	"github.com/roach88/causelog/internal/tree"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Schemas      []string
	Strict       bool     // undeclared types are errors
	GlobalFields []string // keys added by Destinations.AddGlobalFields
}

// ValidationIssue is one message that failed validation.
type ValidationIssue struct {
	Index    int    `json:"index"`
	TaskUUID string `json:"task_uuid,omitempty"`
	Level    string `json:"task_level,omitempty"`
	Type     string `json:"type,omitempty"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool              `json:"valid"`
	Checked int               `json:"checked"`
	Unknown int               `json:"unknown"`
	Issues  []ValidationIssue `json:"issues,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate --schemas <catalog>... <file>...",
		Short: "Check trace messages against declared schemas",
		Long: `Validate every message of JSON-lines trace files against a catalog
of message and action types declared in CUE or YAML.

Messages of types the catalog does not declare are counted and
skipped unless --strict is given.

Global fields are merged into messages after serialization, so a
schema never declares them. Name them with --global-fields to have
them ignored instead of reported as unexpected.

Examples:
  causelog validate --schemas types.cue app.log
  causelog validate --schemas a.yaml --schemas b.cue --strict app.log
  causelog validate --schemas types.cue --global-fields host,pid app.log`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd, args)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Schemas, "schemas", nil, "catalog files (.cue, .yaml, .yml) (required)")
	_ = cmd.MarkFlagRequired("schemas")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "treat undeclared message and action types as errors")
	cmd.Flags().StringSliceVar(&opts.GlobalFields, "global-fields", nil, "field names added as global fields, ignored by schema checks")

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command, paths []string) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	catalog, err := schemaspec.LoadCatalog(opts.Schemas...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeCatalog, "failed to load catalog", err)
	}
	opts.Log().Debug("loaded catalog",
		"messages", len(catalog.MessageTypes()),
		"actions", len(catalog.ActionTypes()))

	var result ValidationResult
	run := validateAction.StartIn(opts.Exec(), opts.Trace(), causelog.Fields{"catalogs": opts.Schemas})
	err = causelog.WithActionIn(opts.Exec(), run, func(a *causelog.Action) error {
		msgs, err := loadMessages(opts.RootOptions, cmd.InOrStdin(), paths)
		if err != nil {
			return err
		}
		result = checkMessages(catalog, msgs, opts.Strict, opts.GlobalFields)
		a.AddSuccessFields(causelog.Fields{"checked": result.Checked, "invalid": len(result.Issues)})
		return nil
	})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeReadFailed, "failed to read trace", err)
	}

	if result.Valid {
		return outputValidateSuccess(formatter, result)
	}
	return outputValidationErrors(formatter, result)
}

// checkMessages validates framing and schema of every message. Undeclared
// keys listed in globals are not reported.
func checkMessages(catalog *schemaspec.Catalog, msgs []causelog.Fields, strict bool, globals []string) ValidationResult {
	result := ValidationResult{Checked: len(msgs)}
	for i, msg := range msgs {
		issue := ValidationIssue{Index: i, Type: typeName(msg)}
		issue.TaskUUID, _ = msg[causelog.TaskUUIDField].(string)

		level, err := tree.LevelOf(msg[causelog.TaskLevelField])
		switch {
		case issue.TaskUUID == "":
			issue.Code, issue.Message = ErrCodeBadTrace, "missing task_uuid"
		case err != nil:
			issue.Code, issue.Message = ErrCodeBadTrace, err.Error()
		case level.IsRoot():
			issue.Code, issue.Message = ErrCodeBadTrace, "task_level must not be empty"
		}
		if err == nil {
			issue.Level = level.String()
		}
		if issue.Code != "" {
			result.Issues = append(result.Issues, issue)
			continue
		}

		err = catalog.ValidateIgnoring(msg, globals)
		switch {
		case err == nil:
			continue
		case errors.Is(err, schemaspec.ErrUnknownType) && !strict:
			result.Unknown++
			continue
		case errors.Is(err, schemaspec.ErrUnknownType):
			issue.Code = ErrCodeUnknownType
		default:
			issue.Code = ErrCodeInvalid
		}
		issue.Message = err.Error()
		result.Issues = append(result.Issues, issue)
	}
	result.Valid = len(result.Issues) == 0
	return result
}

func typeName(msg causelog.Fields) string {
	if name, ok := msg[causelog.MessageTypeField].(string); ok {
		return name
	}
	if name, ok := msg[causelog.ActionTypeField].(string); ok {
		if status, ok := msg[causelog.ActionStatusField].(string); ok {
			return name + "/" + status
		}
		return name
	}
	return ""
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ %d message(s) valid", result.Checked-result.Unknown)
	if result.Unknown > 0 {
		fmt.Fprintf(formatter.Writer, " (%d of undeclared types skipped)", result.Unknown)
	}
	fmt.Fprintln(formatter.Writer)
	return nil
}

// outputValidationErrors outputs every validation issue.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Issues)))

	if formatter.Format == "json" {
		first := result.Issues[0]
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: first.Code, Message: first.Message},
		}); err != nil {
			return err
		}
		return exitErr
	}

	w := formatter.Writer
	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	for _, issue := range result.Issues {
		writeIssue(w, issue)
	}
	return exitErr
}

func writeIssue(w io.Writer, issue ValidationIssue) {
	fmt.Fprintf(w, "message %d", issue.Index)
	if issue.Type != "" {
		fmt.Fprintf(w, " (%s)", issue.Type)
	}
	if issue.TaskUUID != "" {
		fmt.Fprintf(w, " task %s", issue.TaskUUID)
	}
	if issue.Level != "" {
		fmt.Fprintf(w, " %s", issue.Level)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s: %s\n\n", issue.Code, issue.Message)
}
