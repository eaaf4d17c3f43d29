package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/roach88/causelog"
	"github.com/roach88/causelog/internal/tree"
)

// Actions the CLI logs about its own work (see --trace-out).
var (
	loadFileAction = causelog.NewActionType("causelog:cli:load_file",
		[]causelog.BoundField{causelog.Typed("path", causelog.KindString)},
		[]causelog.BoundField{causelog.Typed("messages", causelog.KindNumber)},
		"Reads one JSON-lines trace file.")

	validateAction = causelog.NewActionType("causelog:cli:validate",
		[]causelog.BoundField{causelog.Typed("catalogs", causelog.KindArray)},
		[]causelog.BoundField{
			causelog.Typed("checked", causelog.KindNumber),
			causelog.Typed("invalid", causelog.KindNumber),
		},
		"Checks trace messages against a schema catalog.")
)

// loadMessages reads every file in paths, in order. "-" reads stdin.
func loadMessages(opts *RootOptions, stdin io.Reader, paths []string) ([]causelog.Fields, error) {
	var all []causelog.Fields
	for _, path := range paths {
		msgs, err := causelog.WithActionResultIn(opts.Exec(),
			loadFileAction.StartIn(opts.Exec(), opts.Trace(), causelog.Fields{"path": path}),
			func(a *causelog.Action) ([]causelog.Fields, error) {
				msgs, err := readTraceFile(stdin, path)
				if err != nil {
					return nil, err
				}
				a.AddSuccessFields(causelog.Fields{"messages": len(msgs)})
				return msgs, nil
			})
		if err != nil {
			return nil, err
		}
		opts.Log().Debug("loaded trace file", "path", path, "messages", len(msgs))
		all = append(all, msgs...)
	}
	return all, nil
}

func readTraceFile(stdin io.Reader, path string) ([]causelog.Fields, error) {
	if path == "-" {
		msgs, err := tree.ReadJSONLines(stdin)
		if err != nil {
			return nil, fmt.Errorf("stdin: %w", err)
		}
		return msgs, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	msgs, err := tree.ReadJSONLines(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return msgs, nil
}
