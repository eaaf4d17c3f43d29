package causelog

import (
	"io"
	"log/slog"
	"testing"

	"github.com/zoobzio/clockz"
)

// isolate gives the test a fresh execution context, deterministic task ids
// ("task-1", "task-2", ...) and a fake clock that only moves when advanced.
func isolate(t *testing.T) *clockz.FakeClock {
	t.Helper()

	clock := clockz.NewFakeClock()

	restoreCtx := SwapExecutionContext(NewExecutionContext())
	restoreIDs := SwapTaskIDGenerator(NewSequenceGenerator("task"))
	restoreClock := SwapClock(clock)
	t.Cleanup(func() {
		restoreClock()
		restoreIDs()
		restoreCtx()
	})
	return clock
}

// recorder is a destination that keeps everything it receives.
type recorder struct {
	messages []Fields
}

func (r *recorder) Send(msg Fields) error {
	r.messages = append(r.messages, msg)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
