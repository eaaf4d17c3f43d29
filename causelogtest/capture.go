// Package causelogtest helps tests assert on what code under test logged.
package causelogtest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/causelog"
)

// Capture installs a fresh MemoryLogger as the default logger and a fresh
// ExecutionContext for the rest of the test.
//
// When the test ends the previous defaults are restored, every captured
// message is validated against its serializer, and any traceback not
// claimed with FlushTracebacks fails the test.
//
// Capture swaps process-wide defaults; do not use it from parallel tests.
func Capture(t testing.TB) *causelog.MemoryLogger {
	t.Helper()

	logger := causelog.NewMemoryLogger()
	restoreLogger := causelog.SwapDefaultLogger(logger)
	restoreCtx := causelog.SwapExecutionContext(causelog.NewExecutionContext())

	t.Cleanup(func() {
		restoreCtx()
		restoreLogger()

		assert.NoError(t, logger.Validate(), "logged messages must satisfy their serializers")
		for _, tb := range logger.Tracebacks() {
			t.Errorf("unflushed traceback: %v", tb[causelog.ReasonField])
		}
	})
	return logger
}

// MessagesOfType returns the captured messages whose message_type or
// action_type is name, in write order.
func MessagesOfType(logger *causelog.MemoryLogger, name string) []causelog.Fields {
	var out []causelog.Fields
	for _, msg := range logger.Messages() {
		if msg[causelog.MessageTypeField] == name || msg[causelog.ActionTypeField] == name {
			out = append(out, msg)
		}
	}
	return out
}
