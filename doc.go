// Package causelog records causal, tree-shaped traces of program execution.
//
// Application code logs nested actions (units of work with a start and a
// success or failure end) and standalone messages. Every written item carries
// a task_uuid shared by the whole tree and a task_level path that encodes its
// position in the tree and its order among siblings, so a flat stream of
// messages can be sorted back into the tree that produced it.
//
// Core components:
//   - TaskLevel: immutable tree path such as /2/1/3.
//   - ExecutionContext: stack of running actions, used to find implicit parents.
//   - Message: immutable field bag, framed with identity fields when written.
//   - Field, BoundField, MessageSerializer: schema validation and serialization.
//   - Action: a node in the tree with a started/succeeded/failed lifecycle.
//   - MessageType, ActionType: factories binding a schema to a kind of item.
//   - Destinations, OutputLogger: fan-out to sinks with per-sink failure isolation.
//   - MemoryLogger: recording logger used to validate logged messages in tests.
//
// Basic usage:
//
//	var doThing = causelog.NewActionType("app:do",
//		[]causelog.BoundField{causelog.Typed("key", causelog.KindNumber)},
//		[]causelog.BoundField{causelog.Typed("result", causelog.KindString)},
//		"Does the thing.")
//
//	err := causelog.WithAction(doThing.Start(nil, causelog.Fields{"key": 123}),
//		func(a *causelog.Action) error {
//			a.AddSuccessFields(causelog.Fields{"result": "ok"})
//			return nil
//		})
//
// Concurrency:
//
// The process-wide ExecutionContext models a single logical call stack.
// Concurrent workers each own an ExecutionContext: either used directly
// (ExecutionContext.StartAction, WithActionIn, Message.WriteIn) or carried in
// a context.Context built with WithExecutionContext and consumed by
// StartActionContext, WithActionContext and Message.WriteContext. Action,
// Destinations and the loggers are safe for concurrent use.
//
// Failure handling:
//
// Writing through an OutputLogger never returns an error to business code.
// Serialization failures produce a traceback message plus a fallback message
// holding the raw JSON payload; destination failures produce
// destination_failure messages routed back through the same destinations.
package causelog
