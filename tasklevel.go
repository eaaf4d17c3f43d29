package causelog

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// TaskLevel is the position of a message within its task's tree.
//
// The zero value is the root level (the empty path). Levels are immutable:
// every operation returns a new value and never aliases the receiver's
// storage.
type TaskLevel struct {
	level []int
}

// NewTaskLevel creates a level from path components. Components must be
// positive.
func NewTaskLevel(level ...int) TaskLevel {
	return TaskLevel{level: slices.Clone(level)}
}

// ParseTaskLevel parses the "/1/2/3" form produced by String. Empty components
// from leading, trailing or repeated separators are ignored.
func ParseTaskLevel(s string) (TaskLevel, error) {
	var level []int
	for _, part := range strings.Split(s, "/") {
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return TaskLevel{}, fmt.Errorf("invalid task level %q: %w", s, err)
		}
		if n < 1 {
			return TaskLevel{}, fmt.Errorf("invalid task level %q: component %d is not positive", s, n)
		}
		level = append(level, n)
	}
	return TaskLevel{level: level}, nil
}

// Level returns a copy of the path components.
func (l TaskLevel) Level() []int {
	return slices.Clone(l.level)
}

// Len returns the depth of the level. The root level has length 0.
func (l TaskLevel) Len() int {
	return len(l.level)
}

// IsRoot reports whether l is the empty level.
func (l TaskLevel) IsRoot() bool {
	return len(l.level) == 0
}

// Child returns the first child of l.
func (l TaskLevel) Child() TaskLevel {
	out := make([]int, len(l.level)+1)
	copy(out, l.level)
	out[len(l.level)] = 1
	return TaskLevel{level: out}
}

// NextSibling returns the level following l under the same parent.
// The root level has no siblings; its NextSibling is itself.
func (l TaskLevel) NextSibling() TaskLevel {
	if len(l.level) == 0 {
		return l
	}
	out := slices.Clone(l.level)
	out[len(out)-1]++
	return TaskLevel{level: out}
}

// Parent returns the parent of l. The root level has no parent.
func (l TaskLevel) Parent() (TaskLevel, bool) {
	if len(l.level) == 0 {
		return TaskLevel{}, false
	}
	return TaskLevel{level: slices.Clone(l.level[:len(l.level)-1])}, true
}

// IsSiblingOf reports whether l and other share a parent. Two root levels are
// siblings, both having no parent.
func (l TaskLevel) IsSiblingOf(other TaskLevel) bool {
	p1, ok1 := l.Parent()
	p2, ok2 := other.Parent()
	if ok1 != ok2 {
		return false
	}
	return p1.Equal(p2)
}

// Equal reports whether l and other are the same path.
func (l TaskLevel) Equal(other TaskLevel) bool {
	return slices.Equal(l.level, other.level)
}

// Compare orders levels the way their messages were emitted: component by
// component, with a parent sorting before its children.
func (l TaskLevel) Compare(other TaskLevel) int {
	return slices.Compare(l.level, other.level)
}

// String renders l as "/" followed by its components joined with "/".
func (l TaskLevel) String() string {
	var b strings.Builder
	if len(l.level) == 0 {
		return "/"
	}
	for _, n := range l.level {
		b.WriteByte('/')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

// MarshalJSON encodes l as an array of integers.
func (l TaskLevel) MarshalJSON() ([]byte, error) {
	if l.level == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.level)
}

// UnmarshalJSON decodes an array of positive integers.
func (l *TaskLevel) UnmarshalJSON(data []byte) error {
	var level []int
	if err := json.Unmarshal(data, &level); err != nil {
		return err
	}
	for _, n := range level {
		if n < 1 {
			return fmt.Errorf("invalid task level %v: component %d is not positive", level, n)
		}
	}
	l.level = level
	return nil
}
