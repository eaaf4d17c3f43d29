// Package tree rebuilds task trees from frozen log messages.
//
// Every message carries a task_uuid and a task_level. Messages sharing a
// task_uuid belong to one task; sorting them by task level recovers the order
// in which they happened. A message whose action_status is "started" opens an
// action node at the parent of its level, and the matching "succeeded" or
// "failed" message closes it. Every other message is a leaf under the action
// that owns its parent level.
//
// Messages may come from several processes (see causelog.ContinueTask), so a
// node whose parent action is absent from the input becomes a root of its
// task instead of an error.
package tree
