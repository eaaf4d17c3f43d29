package causelog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskLevel_StringRoundTrip(t *testing.T) {
	levels := [][]int{{1}, {2, 3}, {1, 1, 1}, {10, 200, 3000}}
	for _, l := range levels {
		level := NewTaskLevel(l...)
		parsed, err := ParseTaskLevel(level.String())
		require.NoError(t, err)
		assert.True(t, parsed.Equal(level), "round trip of %v", l)
	}
}

func TestTaskLevel_String(t *testing.T) {
	assert.Equal(t, "/", TaskLevel{}.String())
	assert.Equal(t, "/1", NewTaskLevel(1).String())
	assert.Equal(t, "/3/4/1", NewTaskLevel(3, 4, 1).String())
}

func TestTaskLevel_ParseIgnoresEmptyComponents(t *testing.T) {
	level, err := ParseTaskLevel("//1//2/")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, level.Level())

	root, err := ParseTaskLevel("/")
	require.NoError(t, err)
	assert.True(t, root.IsRoot())
}

func TestTaskLevel_ParseRejectsGarbage(t *testing.T) {
	_, err := ParseTaskLevel("/1/x")
	assert.Error(t, err)

	_, err = ParseTaskLevel("/1/0")
	assert.Error(t, err)
}

func TestTaskLevel_ChildAndParent(t *testing.T) {
	for _, l := range []TaskLevel{{}, NewTaskLevel(1), NewTaskLevel(4, 2)} {
		parent, ok := l.Child().Parent()
		require.True(t, ok)
		assert.True(t, parent.Equal(l), "child of %s", l)
	}
	assert.Equal(t, []int{1}, TaskLevel{}.Child().Level())
	assert.Equal(t, []int{4, 2, 1}, NewTaskLevel(4, 2).Child().Level())
}

func TestTaskLevel_NextSibling(t *testing.T) {
	l := NewTaskLevel(3, 4)
	next := l.NextSibling()
	assert.Equal(t, []int{3, 5}, next.Level())

	p1, _ := l.Parent()
	p2, _ := next.Parent()
	assert.True(t, p1.Equal(p2))
	assert.True(t, l.IsSiblingOf(next))

	// Original is untouched.
	assert.Equal(t, []int{3, 4}, l.Level())
}

func TestTaskLevel_RootHasNoParent(t *testing.T) {
	_, ok := TaskLevel{}.Parent()
	assert.False(t, ok)

	assert.True(t, TaskLevel{}.IsSiblingOf(TaskLevel{}))
	assert.True(t, NewTaskLevel(1).IsSiblingOf(NewTaskLevel(7)))
	assert.False(t, NewTaskLevel(1).IsSiblingOf(TaskLevel{}))
	assert.False(t, NewTaskLevel(1, 1).IsSiblingOf(NewTaskLevel(2, 1)))
}

func TestTaskLevel_Immutable(t *testing.T) {
	src := []int{1, 2}
	l := NewTaskLevel(src...)
	src[0] = 99
	assert.Equal(t, []int{1, 2}, l.Level())

	out := l.Level()
	out[1] = 99
	assert.Equal(t, []int{1, 2}, l.Level())
}

func TestTaskLevel_Compare(t *testing.T) {
	assert.Negative(t, NewTaskLevel(1).Compare(NewTaskLevel(2)))
	assert.Negative(t, NewTaskLevel(2).Compare(NewTaskLevel(2, 1)))
	assert.Positive(t, NewTaskLevel(2, 1).Compare(NewTaskLevel(1, 5)))
	assert.Zero(t, NewTaskLevel(3, 3).Compare(NewTaskLevel(3, 3)))
}

func TestTaskLevel_JSON(t *testing.T) {
	data, err := json.Marshal(NewTaskLevel(1, 2))
	require.NoError(t, err)
	assert.Equal(t, "[1,2]", string(data))

	data, err = json.Marshal(TaskLevel{})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	var l TaskLevel
	require.NoError(t, json.Unmarshal([]byte("[3,4,1]"), &l))
	assert.Equal(t, []int{3, 4, 1}, l.Level())

	assert.Error(t, json.Unmarshal([]byte("[0]"), &l))
}
