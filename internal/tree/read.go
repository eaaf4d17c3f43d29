package tree

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/roach88/causelog"
)

const maxLineSize = 4 << 20

// LineError reports a line of input that is not a JSON object.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// ReadJSONLines decodes one message per line, as written by
// causelog.WriterDestination. Blank lines are skipped. Numbers decode as
// json.Number so integers keep their exact value.
func ReadJSONLines(r io.Reader) ([]causelog.Fields, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var out []causelog.Fields
	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var msg causelog.Fields
		if err := dec.Decode(&msg); err != nil {
			return nil, &LineError{Line: line, Err: err}
		}
		if msg == nil {
			return nil, &LineError{Line: line, Err: fmt.Errorf("expected a JSON object")}
		}
		out = append(out, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, &LineError{Line: line + 1, Err: err}
	}
	return out, nil
}
