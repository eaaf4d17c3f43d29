package causelog

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// TaskIDGenerator produces task_uuid values for new tasks.
type TaskIDGenerator interface {
	Generate() string
}

// TaskIDFunc adapts a plain function to TaskIDGenerator.
type TaskIDFunc func() string

// Generate calls f.
func (f TaskIDFunc) Generate() string { return f() }

// Built-in task id schemes.
var (
	// RandomTaskIDs yields version 4 UUIDs. This is the default.
	RandomTaskIDs TaskIDGenerator = TaskIDFunc(uuid.NewString)

	// TimeOrderedTaskIDs yields version 7 UUIDs. Their leading bits hold the
	// creation time, so tasks sort by start time in trace files.
	TimeOrderedTaskIDs TaskIDGenerator = TaskIDFunc(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})
)

// TaskIDSchemes lists the names accepted by ParseTaskIDScheme.
var TaskIDSchemes = []string{"random", "time"}

// ParseTaskIDScheme returns the generator for a scheme name: "random" for
// RandomTaskIDs, "time" for TimeOrderedTaskIDs.
func ParseTaskIDScheme(name string) (TaskIDGenerator, error) {
	switch name {
	case "random":
		return RandomTaskIDs, nil
	case "time":
		return TimeOrderedTaskIDs, nil
	}
	return nil, fmt.Errorf("unknown task id scheme %q: must be one of %v", name, TaskIDSchemes)
}

// SequenceGenerator yields "<prefix>-1", "<prefix>-2", ... for tests that
// need predictable task ids.
//
// Thread-safety: safe for concurrent use.
type SequenceGenerator struct {
	prefix string
	n      atomic.Uint64
}

// NewSequenceGenerator creates a generator numbering ids from 1.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next id of the sequence.
func (g *SequenceGenerator) Generate() string {
	return g.prefix + "-" + strconv.FormatUint(g.n.Add(1), 10)
}
