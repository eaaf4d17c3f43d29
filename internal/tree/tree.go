package tree

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"

	"github.com/roach88/causelog"
)

// Node kinds.
const (
	KindAction  = "action"
	KindMessage = "message"
)

// Node is an action or a plain message within a task.
type Node struct {
	Kind string `json:"kind"`

	// Type is the action_type of an action or the message_type of a message.
	Type string `json:"type"`

	// Level is the action's own level, or the message's level.
	Level causelog.TaskLevel `json:"level"`

	// Status is the last action_status seen for an action.
	Status string `json:"status,omitempty"`

	Start    causelog.Fields `json:"start,omitempty"`
	End      causelog.Fields `json:"end,omitempty"`
	Fields   causelog.Fields `json:"fields,omitempty"`
	Children []*Node         `json:"children,omitempty"`
}

// Incomplete reports whether n is an action with no end message.
func (n *Node) Incomplete() bool {
	return n.Kind == KindAction && n.End == nil
}

// Task is every node of one task_uuid.
type Task struct {
	UUID  string  `json:"task_uuid"`
	Roots []*Node `json:"roots"`
}

// Incomplete returns the actions of t that never finished, in tree order.
func (t *Task) Incomplete() []*Node {
	var out []*Node
	var walk func([]*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			if n.Incomplete() {
				out = append(out, n)
			}
			walk(n.Children)
		}
	}
	walk(t.Roots)
	return out
}

// MessageError reports a message that cannot be placed in a tree.
type MessageError struct {
	Index   int
	Message string
}

func (e *MessageError) Error() string {
	return fmt.Sprintf("message %d: %s", e.Index, e.Message)
}

type entry struct {
	level causelog.TaskLevel
	msg   causelog.Fields
}

// Build groups msgs into tasks, ordered by first appearance.
func Build(msgs []causelog.Fields) ([]*Task, error) {
	var order []string
	byTask := make(map[string][]entry)

	for i, msg := range msgs {
		uuid, ok := msg[causelog.TaskUUIDField].(string)
		if !ok || uuid == "" {
			return nil, &MessageError{Index: i, Message: "missing task_uuid"}
		}
		level, err := LevelOf(msg[causelog.TaskLevelField])
		if err != nil {
			return nil, &MessageError{Index: i, Message: err.Error()}
		}
		if level.IsRoot() {
			return nil, &MessageError{Index: i, Message: "task_level must not be empty"}
		}
		if _, seen := byTask[uuid]; !seen {
			order = append(order, uuid)
		}
		byTask[uuid] = append(byTask[uuid], entry{level: level, msg: msg})
	}

	tasks := make([]*Task, 0, len(order))
	for _, uuid := range order {
		tasks = append(tasks, buildTask(uuid, byTask[uuid]))
	}
	return tasks, nil
}

func buildTask(uuid string, entries []entry) *Task {
	slices.SortStableFunc(entries, func(a, b entry) int {
		return a.level.Compare(b.level)
	})

	task := &Task{UUID: uuid}
	actions := make(map[string]*Node)

	attach := func(parent causelog.TaskLevel, hasParent bool, n *Node) {
		if hasParent {
			if owner, ok := actions[parent.String()]; ok {
				owner.Children = append(owner.Children, n)
				return
			}
		}
		task.Roots = append(task.Roots, n)
	}

	for _, e := range entries {
		parent, _ := e.level.Parent()
		actionType, isAction := e.msg[causelog.ActionTypeField].(string)
		status, _ := e.msg[causelog.ActionStatusField].(string)

		if !isAction || status == "" {
			msgType, _ := e.msg[causelog.MessageTypeField].(string)
			attach(parent, true, &Node{Kind: KindMessage, Type: msgType, Level: e.level, Fields: e.msg})
			continue
		}

		node, ok := actions[parent.String()]
		if !ok {
			node = &Node{Kind: KindAction, Type: actionType, Level: parent}
			actions[parent.String()] = node
			grandparent, hasGrandparent := parent.Parent()
			attach(grandparent, hasGrandparent, node)
		}
		node.Status = status
		if status == causelog.StatusStarted {
			node.Start = e.msg
		} else {
			node.End = e.msg
		}
	}
	return task
}

// LevelOf decodes a task_level value as found in frozen messages ([]int) or
// decoded JSON ([]any of float64 or json.Number).
func LevelOf(v any) (causelog.TaskLevel, error) {
	switch l := v.(type) {
	case causelog.TaskLevel:
		return l, nil
	case []int:
		return checked(l)
	case []any:
		out := make([]int, len(l))
		for i, c := range l {
			n, err := component(c)
			if err != nil {
				return causelog.TaskLevel{}, fmt.Errorf("task_level[%d]: %w", i, err)
			}
			out[i] = n
		}
		return checked(out)
	case nil:
		return causelog.TaskLevel{}, fmt.Errorf("missing task_level")
	}
	return causelog.TaskLevel{}, fmt.Errorf("task_level must be an array, got %T", v)
}

func component(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("%s is not an integer", n)
		}
		return int(i), nil
	}
	return 0, fmt.Errorf("%v is not a number", v)
}

func checked(level []int) (causelog.TaskLevel, error) {
	for _, c := range level {
		if c < 1 {
			return causelog.TaskLevel{}, fmt.Errorf("task_level components must be positive, got %v", level)
		}
	}
	return causelog.NewTaskLevel(level...), nil
}
