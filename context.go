package causelog

import (
	"context"
	"sync"
)

// ExecutionContext is a stack of running actions. The top of the stack is
// the implicit parent for actions and messages created without one.
//
// The stack models a single logical call stack. Goroutines doing independent
// work own an ExecutionContext each, used through its methods, WithActionIn,
// Message.WriteIn or a context built with WithExecutionContext.
type ExecutionContext struct {
	mu      sync.Mutex
	stack   []*Action
	taskIDs TaskIDGenerator
}

// ExecutionContextOption configures an ExecutionContext.
type ExecutionContextOption func(*ExecutionContext)

// WithTaskIDs sets the generator for tasks started through the context when
// no action is running. Default: the process-wide generator.
func WithTaskIDs(g TaskIDGenerator) ExecutionContextOption {
	return func(c *ExecutionContext) {
		c.taskIDs = g
	}
}

// NewExecutionContext creates an empty ExecutionContext.
func NewExecutionContext(opts ...ExecutionContextOption) *ExecutionContext {
	c := &ExecutionContext{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ExecutionContext) newTaskID() string {
	if c.taskIDs != nil {
		return c.taskIDs.Generate()
	}
	return newTaskID()
}

// Push makes a the current action.
func (c *ExecutionContext) Push(a *Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stack = append(c.stack, a)
}

// Pop removes and returns the most recently pushed action, or nil if the
// stack is empty. Callers pair every Push with one Pop, normally through
// Action.Run.
func (c *ExecutionContext) Pop() *Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.stack) == 0 {
		return nil
	}
	top := c.stack[len(c.stack)-1]
	c.stack[len(c.stack)-1] = nil
	c.stack = c.stack[:len(c.stack)-1]
	return top
}

// Current returns the top of the stack, or nil.
func (c *ExecutionContext) Current() *Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.stack) == 0 {
		return nil
	}
	return c.stack[len(c.stack)-1]
}

// Depth returns the number of actions on the stack.
func (c *ExecutionContext) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stack)
}

// Run makes a the current action of c while f runs. The action is popped on
// every exit path, panics included.
func (c *ExecutionContext) Run(a *Action, f func() error) error {
	c.Push(a)
	defer c.Pop()
	return f()
}

// StartAction starts a child of c's current action, or a new task if c has
// no running action.
func (c *ExecutionContext) StartAction(logger Logger, actionType string, fields Fields, serializers *ActionSerializers) *Action {
	var a *Action
	if parent := c.Current(); parent != nil {
		a = parent.Child(logger, actionType, serializers)
	} else {
		a = NewAction(logger, c.newTaskID(), TaskLevel{}, actionType, serializers)
	}
	a.start(fields)
	return a
}

// CurrentAction returns the current action of the process-wide
// ExecutionContext, or nil.
func CurrentAction() *Action {
	return DefaultExecutionContext().Current()
}

type execCtxKeyType struct{}

var execCtxKey execCtxKeyType

// WithExecutionContext returns a copy of ctx carrying c. Code handed the
// returned context resolves implicit parents from c instead of the
// process-wide ExecutionContext.
func WithExecutionContext(ctx context.Context, c *ExecutionContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, execCtxKey, c)
}

// ExecutionContextOf returns the ExecutionContext carried by ctx, or the
// process-wide one.
func ExecutionContextOf(ctx context.Context) *ExecutionContext {
	if ctx != nil {
		if c, ok := ctx.Value(execCtxKey).(*ExecutionContext); ok && c != nil {
			return c
		}
	}
	return DefaultExecutionContext()
}

// actionKeyType is a private type for context keys to avoid collisions.
type actionKeyType struct{}

var actionKey actionKeyType

// NewContext returns a copy of ctx carrying a. Actions and messages created
// with the returned context attach to a.
func NewContext(ctx context.Context, a *Action) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actionKey, a)
}

// FromContext extracts the action stored by NewContext, or nil.
func FromContext(ctx context.Context) *Action {
	if ctx == nil {
		return nil
	}
	a, _ := ctx.Value(actionKey).(*Action)
	return a
}
