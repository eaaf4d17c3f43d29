package causelogtest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/causelog"
)

var fetch = causelog.NewActionType("test:fetch",
	[]causelog.BoundField{causelog.Typed("url", causelog.KindString)},
	[]causelog.BoundField{causelog.Typed("bytes", causelog.KindNumber)},
	"")

func fetchPage(url string) error {
	return causelog.WithAction(fetch.Start(nil, causelog.Fields{"url": url}), func(a *causelog.Action) error {
		causelog.LogMessage(nil, causelog.Fields{causelog.MessageTypeField: "test:progress"})
		a.AddSuccessFields(causelog.Fields{"bytes": 512})
		return nil
	})
}

func TestCapture(t *testing.T) {
	logger := Capture(t)

	require.NoError(t, fetchPage("https://example.com"))

	actions := MessagesOfType(logger, "test:fetch")
	require.Len(t, actions, 2)
	assert.Equal(t, "https://example.com", actions[0]["url"])
	assert.Equal(t, 512, actions[1]["bytes"])

	progress := MessagesOfType(logger, "test:progress")
	require.Len(t, progress, 1)
	assert.Equal(t, actions[0][causelog.TaskUUIDField], progress[0][causelog.TaskUUIDField])
	assert.Equal(t, []int{2}, progress[0][causelog.TaskLevelField])
}

func TestCapture_FlushedTracebacksPass(t *testing.T) {
	logger := Capture(t)
	missing := errors.New("missing")

	causelog.WriteTraceback(nil, missing)

	flushed := logger.FlushTracebacks(causelog.MatchIs(missing))
	assert.Len(t, flushed, 1)
}

func TestCapture_RestoresDefaults(t *testing.T) {
	before := causelog.DefaultLogger()

	t.Run("inner", func(t *testing.T) {
		logger := Capture(t)
		assert.Same(t, logger, causelog.DefaultLogger())
	})

	assert.Equal(t, before, causelog.DefaultLogger())
}
