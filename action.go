package causelog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// RemoteTaskType is the action type of actions created by ContinueTask.
const RemoteTaskType = "causelog:remote_task"

type actionState int

const (
	statePending actionState = iota
	stateStarted
	stateSucceeded
	stateFailed
)

func (s actionState) terminal() bool {
	return s == stateSucceeded || s == stateFailed
}

// Action is one unit of work in a task's tree.
//
// An action owns a task level and hands out the levels of everything logged
// beneath it (its start message, direct messages, child actions and its end
// message) from a single counter, so they sort in the order they happened.
//
// Thread-safety: Action is safe for concurrent use.
type Action struct {
	logger      Logger
	taskUUID    string
	actionType  string
	taskLevel   TaskLevel
	serializers *ActionSerializers

	mu            sync.Mutex
	lastChild     TaskLevel
	hasChild      bool
	state         actionState
	successFields Fields
}

// NewAction creates an action that has not been started. Most code uses
// StartAction, StartTask or an ActionType instead.
func NewAction(logger Logger, taskUUID string, level TaskLevel, actionType string, serializers *ActionSerializers) *Action {
	return &Action{
		logger:        logger,
		taskUUID:      taskUUID,
		actionType:    actionType,
		taskLevel:     level,
		serializers:   serializers,
		successFields: Fields{},
	}
}

// TaskUUID returns the id of the task this action belongs to.
func (a *Action) TaskUUID() string {
	return a.taskUUID
}

// ActionType returns the action's type name.
func (a *Action) ActionType() string {
	return a.actionType
}

// TaskLevel returns the action's own level. Its start message is written at
// the first child of this level.
func (a *Action) TaskLevel() TaskLevel {
	return a.taskLevel
}

// Logger returns the logger the action writes to.
func (a *Action) Logger() Logger {
	return resolveLogger(a.logger)
}

// Finished reports whether a terminal message has been recorded.
func (a *Action) Finished() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.terminal()
}

func (a *Action) identification() Fields {
	return Fields{TaskUUIDField: a.taskUUID, ActionTypeField: a.actionType}
}

// nextTaskLevel allocates the next level beneath the action.
func (a *Action) nextTaskLevel() TaskLevel {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.hasChild {
		a.lastChild = a.taskLevel.Child()
		a.hasChild = true
	} else {
		a.lastChild = a.lastChild.NextSibling()
	}
	return a.lastChild
}

// SerializeTaskID returns a "uuid@/level/path" token another process can pass
// to ContinueTask. The call consumes a level slot, so the remote work cannot
// collide with anything logged locally.
func (a *Action) SerializeTaskID() string {
	return a.taskUUID + "@" + a.nextTaskLevel().String()
}

// ContinueTask starts an action continuing the task identified by taskID,
// as produced by SerializeTaskID.
func ContinueTask(logger Logger, taskID string) (*Action, error) {
	taskUUID, levelStr, ok := strings.Cut(taskID, "@")
	if !ok || taskUUID == "" {
		return nil, fmt.Errorf("invalid task id %q: expected uuid@/level", taskID)
	}
	level, err := ParseTaskLevel(levelStr)
	if err != nil {
		return nil, fmt.Errorf("invalid task id %q: %w", taskID, err)
	}
	a := NewAction(logger, taskUUID, level, RemoteTaskType, nil)
	a.start(Fields{})
	return a, nil
}

func (a *Action) start(fields Fields) {
	a.mu.Lock()
	if a.state == statePending {
		a.state = stateStarted
	}
	a.mu.Unlock()

	msg := fields.Copy()
	msg[ActionStatusField] = StatusStarted
	for k, v := range a.identification() {
		msg[k] = v
	}

	var serializer *MessageSerializer
	if a.serializers != nil {
		serializer = a.serializers.Start
	}
	NewMessage(msg, serializer).Write(a.logger, a)
}

// Finish records the action's end: success when err is nil, failure
// otherwise. Only the first call has any effect.
func (a *Action) Finish(err error) {
	a.mu.Lock()
	if a.state.terminal() {
		a.mu.Unlock()
		return
	}

	var (
		fields     Fields
		serializer *MessageSerializer
	)
	if err == nil {
		a.state = stateSucceeded
		fields = a.successFields.Copy()
		fields[ActionStatusField] = StatusSucceeded
		if a.serializers != nil {
			serializer = a.serializers.Success
		}
	} else {
		a.state = stateFailed
		fields = fieldsForError(err)
		fields[ExceptionField] = ErrorKind(err)
		fields[ReasonField] = err.Error()
		fields[ActionStatusField] = StatusFailed
		if a.serializers != nil {
			serializer = a.serializers.Failure
		}
	}
	a.mu.Unlock()

	for k, v := range a.identification() {
		fields[k] = v
	}
	NewMessage(fields, serializer).Write(a.logger, a)
}

// AddSuccessFields merges fields into the success message. Has no effect
// once the action has finished.
func (a *Action) AddSuccessFields(fields Fields) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.terminal() {
		return
	}
	for k, v := range fields {
		a.successFields[k] = v
	}
}

// Child creates an unstarted action in the same task, at the next level
// beneath a. A nil logger inherits a's logger.
func (a *Action) Child(logger Logger, actionType string, serializers *ActionSerializers) *Action {
	if logger == nil {
		logger = a.logger
	}
	return NewAction(logger, a.taskUUID, a.nextTaskLevel(), actionType, serializers)
}

// Run makes a the current action of the process-wide ExecutionContext while f
// runs. See ExecutionContext.Run.
func (a *Action) Run(f func() error) error {
	return DefaultExecutionContext().Run(a, f)
}

// Context returns a copy of ctx carrying a.
func (a *Action) Context(ctx context.Context) context.Context {
	return NewContext(ctx, a)
}

// StartTask starts a new top-level action with a fresh task_uuid, ignoring
// any running action.
func StartTask(logger Logger, actionType string, fields Fields, serializers *ActionSerializers) *Action {
	a := NewAction(logger, newTaskID(), TaskLevel{}, actionType, serializers)
	a.start(fields)
	return a
}

// StartAction starts a child of the current action, or a new task if no
// action is running.
func StartAction(logger Logger, actionType string, fields Fields, serializers *ActionSerializers) *Action {
	return DefaultExecutionContext().StartAction(logger, actionType, fields, serializers)
}

// StartActionContext is StartAction for code that carries its parent in a
// context.Context. The parent is the action in ctx, else the current action
// of ExecutionContextOf(ctx). The returned context carries the new action.
func StartActionContext(ctx context.Context, logger Logger, actionType string, fields Fields, serializers *ActionSerializers) (context.Context, *Action) {
	var a *Action
	if parent := FromContext(ctx); parent != nil {
		a = parent.Child(logger, actionType, serializers)
		a.start(fields)
	} else {
		a = ExecutionContextOf(ctx).StartAction(logger, actionType, fields, serializers)
	}
	return NewContext(ctx, a), a
}

// ErrGoexit is the failure recorded for an action whose function ended the
// goroutine with runtime.Goexit, as t.FailNow does.
var ErrGoexit = errors.New("goroutine exited before the action finished")

// WithAction runs f under a and finishes a exactly once: with success when f
// returns nil, with failure when f returns an error or panics. The error is
// returned unchanged and panics are re-raised after the failure is recorded.
// A runtime.Goexit inside f records ErrGoexit and lets the goroutine exit.
//
// a is the current action of the process-wide ExecutionContext while f runs.
// Goroutines with their own ExecutionContext use WithActionIn.
func WithAction(a *Action, f func(*Action) error) error {
	return WithActionIn(DefaultExecutionContext(), a, f)
}

// WithActionIn is WithAction with a the current action of c instead of the
// process-wide ExecutionContext.
func WithActionIn(c *ExecutionContext, a *Action, f func(*Action) error) error {
	_, err := WithActionResultIn(c, a, discardResult(f))
	return err
}

// WithActionContext is WithAction for context-carrying code. f runs under the
// ExecutionContext of ctx and receives a copy of ctx carrying a.
func WithActionContext(ctx context.Context, a *Action, f func(context.Context, *Action) error) error {
	actx := NewContext(ctx, a)
	_, err := WithActionResultIn(ExecutionContextOf(ctx), a, discardResult(func(a *Action) error {
		return f(actx, a)
	}))
	return err
}

// WithActionResult is WithAction for functions returning a value.
func WithActionResult[T any](a *Action, f func(*Action) (T, error)) (T, error) {
	return WithActionResultIn(DefaultExecutionContext(), a, f)
}

func discardResult(f func(*Action) error) func(*Action) (struct{}, error) {
	return func(a *Action) (struct{}, error) {
		return struct{}{}, f(a)
	}
}

// WithActionResultIn is WithActionResult with a the current action of c.
func WithActionResultIn[T any](c *ExecutionContext, a *Action, f func(*Action) (T, error)) (T, error) {
	var result T
	returned := false
	defer func() {
		if returned {
			return
		}
		r := recover()
		if r == nil {
			// runtime.Goexit: nothing to re-raise.
			a.Finish(ErrGoexit)
			return
		}
		a.Finish(&PanicError{Value: r})
		panic(r)
	}()

	err := c.Run(a, func() error {
		var ferr error
		result, ferr = f(a)
		return ferr
	})
	returned = true

	a.Finish(err)
	return result, err
}
