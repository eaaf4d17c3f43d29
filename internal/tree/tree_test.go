package tree

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/causelog"
)

// record runs f against a fresh execution context and returns what it logged.
func record(t *testing.T, f func(logger causelog.Logger)) []causelog.Fields {
	t.Helper()
	t.Cleanup(causelog.SwapExecutionContext(causelog.NewExecutionContext()))
	t.Cleanup(causelog.SwapTaskIDGenerator(causelog.NewSequenceGenerator("task")))

	logger := causelog.NewMemoryLogger()
	f(logger)
	return logger.Messages()
}

func TestBuild_NestsActionsAndMessages(t *testing.T) {
	msgs := record(t, func(logger causelog.Logger) {
		outer := causelog.StartTask(logger, "app:outer", nil, nil)
		_ = causelog.WithAction(outer, func(*causelog.Action) error {
			causelog.LogMessage(nil, causelog.Fields{causelog.MessageTypeField: "app:note"})
			inner := causelog.StartAction(nil, "app:inner", nil, nil)
			inner.Finish(errors.New("nope"))
			return nil
		})
	})

	tasks, err := Build(msgs)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "task-1", tasks[0].UUID)

	roots := tasks[0].Roots
	require.Len(t, roots, 1)
	outer := roots[0]
	assert.Equal(t, KindAction, outer.Kind)
	assert.Equal(t, "app:outer", outer.Type)
	assert.True(t, outer.Level.IsRoot())
	assert.Equal(t, causelog.StatusSucceeded, outer.Status)
	assert.NotNil(t, outer.Start)
	assert.NotNil(t, outer.End)

	require.Len(t, outer.Children, 2)
	note, inner := outer.Children[0], outer.Children[1]
	assert.Equal(t, KindMessage, note.Kind)
	assert.Equal(t, "app:note", note.Type)
	assert.Equal(t, []int{2}, note.Level.Level())

	assert.Equal(t, "app:inner", inner.Type)
	assert.Equal(t, []int{3}, inner.Level.Level())
	assert.Equal(t, causelog.StatusFailed, inner.Status)
	assert.Equal(t, "nope", inner.End[causelog.ReasonField])

	assert.Empty(t, tasks[0].Incomplete())
}

func TestBuild_OrderIndependent(t *testing.T) {
	msgs := record(t, func(logger causelog.Logger) {
		a := causelog.StartTask(logger, "app:a", nil, nil)
		causelog.NewMessage(causelog.Fields{causelog.MessageTypeField: "app:m"}, nil).Write(nil, a)
		a.Finish(nil)
	})

	reversed := make([]causelog.Fields, len(msgs))
	for i, m := range msgs {
		reversed[len(msgs)-1-i] = m
	}

	forward, err := Build(msgs)
	require.NoError(t, err)
	backward, err := Build(reversed)
	require.NoError(t, err)
	assert.Equal(t, forward, backward)
}

func TestBuild_IncompleteActions(t *testing.T) {
	msgs := record(t, func(logger causelog.Logger) {
		a := causelog.StartTask(logger, "app:hung", nil, nil)
		a.Child(nil, "app:child", nil)
		causelog.NewMessage(causelog.Fields{}, nil).Write(nil, a)
	})

	tasks, err := Build(msgs)
	require.NoError(t, err)
	incomplete := tasks[0].Incomplete()
	require.Len(t, incomplete, 1)
	assert.Equal(t, "app:hung", incomplete[0].Type)
}

func TestBuild_SeparateTasks(t *testing.T) {
	msgs := record(t, func(logger causelog.Logger) {
		causelog.LogMessage(logger, causelog.Fields{causelog.MessageTypeField: "app:one"})
		causelog.LogMessage(logger, causelog.Fields{causelog.MessageTypeField: "app:two"})
	})

	tasks, err := Build(msgs)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "task-1", tasks[0].UUID)
	assert.Equal(t, "task-2", tasks[1].UUID)
	assert.Equal(t, "app:two", tasks[1].Roots[0].Type)
}

func TestBuild_ContinuedTaskWithoutParent(t *testing.T) {
	msgs := record(t, func(logger causelog.Logger) {
		a := causelog.NewAction(logger, "remote", causelog.NewTaskLevel(3, 4), "app:sender", nil)
		cont, err := causelog.ContinueTask(logger, a.SerializeTaskID())
		require.NoError(t, err)
		cont.Finish(nil)
	})

	tasks, err := Build(msgs)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Len(t, tasks[0].Roots, 1)
	root := tasks[0].Roots[0]
	assert.Equal(t, causelog.RemoteTaskType, root.Type)
	assert.Equal(t, []int{3, 4, 1}, root.Level.Level())
	assert.False(t, root.Incomplete())
}

func TestBuild_RejectsBadMessages(t *testing.T) {
	tests := []struct {
		name string
		msg  causelog.Fields
		want string
	}{
		{"no uuid", causelog.Fields{causelog.TaskLevelField: []int{1}}, "missing task_uuid"},
		{"no level", causelog.Fields{causelog.TaskUUIDField: "u"}, "missing task_level"},
		{"empty level", causelog.Fields{causelog.TaskUUIDField: "u", causelog.TaskLevelField: []int{}}, "must not be empty"},
		{"zero level", causelog.Fields{causelog.TaskUUIDField: "u", causelog.TaskLevelField: []int{0}}, "positive"},
		{"string level", causelog.Fields{causelog.TaskUUIDField: "u", causelog.TaskLevelField: "/1"}, "must be an array"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build([]causelog.Fields{tt.msg})
			require.Error(t, err)
			var me *MessageError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, 0, me.Index)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLevelOf(t *testing.T) {
	l, err := LevelOf([]any{json.Number("3"), float64(4), 1})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 1}, l.Level())

	_, err = LevelOf([]any{1.5})
	assert.Error(t, err)
	_, err = LevelOf([]any{"1"})
	assert.Error(t, err)
}

func TestReadJSONLines(t *testing.T) {
	input := strings.Join([]string{
		`{"task_uuid":"u","task_level":[1],"action_type":"app:a","action_status":"started","n":12345678901234}`,
		``,
		`{"task_uuid":"u","task_level":[2],"action_type":"app:a","action_status":"succeeded"}`,
	}, "\n")

	msgs, err := ReadJSONLines(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, json.Number("12345678901234"), msgs[0]["n"])

	tasks, err := Build(msgs)
	require.NoError(t, err)
	require.Len(t, tasks[0].Roots, 1)
	assert.False(t, tasks[0].Roots[0].Incomplete())
}

func TestReadJSONLines_BadLine(t *testing.T) {
	_, err := ReadJSONLines(strings.NewReader("{}\nnot json\n"))
	require.Error(t, err)
	var le *LineError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 2, le.Line)

	_, err = ReadJSONLines(strings.NewReader("null\n"))
	assert.Error(t, err)
}
