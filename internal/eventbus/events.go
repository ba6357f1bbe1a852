package eventbus

import "time"

// Event types published by the task runners.
const (
	TaskScheduled = "task.scheduled"
	TaskFired     = "task.fired"
	TaskFailed    = "task.failed"
	PinUnpinned   = "pin.unpinned"
	PinPinned     = "pin.pinned"
	TaskHalted    = "task.halted"
)

// TaskEvent is the Data of every runner event. Fields that do not apply to a
// given type are left zero.
type TaskEvent struct {
	Task    string
	Channel string
	RunID   string

	// Next is set on task.scheduled.
	Next time.Time

	MessageID string
	ThreadID  string

	// OK reports the outcome of pin operations.
	OK  bool
	Err string
}
