// Package events defines the synchronous observer contracts for the
// Sender and Receiver engines described in spec.md section 6. The Java
// original used an interface-per-engine listener
// (SenderEventListener/ReceiverEventListener); design note in spec.md
// section 9 asks for typed event variants delivered synchronously instead,
// so each sink is a struct with one typed callback field per event rather
// than a fat interface every caller must fully implement.
package events

import "cliptransfer/internal/task"

// SenderSink receives Sender Engine events. Any field left nil is simply
// not called; handlers must not block, since delivery happens inline on
// the sender's worker goroutine.
type SenderSink struct {
	OnTaskStarted   func(t *task.Task)
	OnProgress      func(t *task.Task, completed, total int)
	OnTaskCompleted func(t *task.Task)
	OnTaskFailed    func(t *task.Task, err error)
	OnTaskPaused    func(t *task.Task)
	OnTaskResumed   func(t *task.Task)
	OnTaskCancelled func(t *task.Task)
	OnError         func(msg string)
}

func (s SenderSink) TaskStarted(t *task.Task) {
	if s.OnTaskStarted != nil {
		s.OnTaskStarted(t)
	}
}

func (s SenderSink) Progress(t *task.Task, completed, total int) {
	if s.OnProgress != nil {
		s.OnProgress(t, completed, total)
	}
}

func (s SenderSink) TaskCompleted(t *task.Task) {
	if s.OnTaskCompleted != nil {
		s.OnTaskCompleted(t)
	}
}

func (s SenderSink) TaskFailed(t *task.Task, err error) {
	if s.OnTaskFailed != nil {
		s.OnTaskFailed(t, err)
	}
}

func (s SenderSink) TaskPaused(t *task.Task) {
	if s.OnTaskPaused != nil {
		s.OnTaskPaused(t)
	}
}

func (s SenderSink) TaskResumed(t *task.Task) {
	if s.OnTaskResumed != nil {
		s.OnTaskResumed(t)
	}
}

func (s SenderSink) TaskCancelled(t *task.Task) {
	if s.OnTaskCancelled != nil {
		s.OnTaskCancelled(t)
	}
}

func (s SenderSink) ErrorMsg(msg string) {
	if s.OnError != nil {
		s.OnError(msg)
	}
}

// ReceiverSink receives Receiver Engine events.
type ReceiverSink struct {
	OnListeningStarted func()
	OnListeningStopped func()
	OnTaskStarted      func(t *task.Task)
	OnProgress         func(t *task.Task, completed, total int)
	OnTaskCompleted    func(t *task.Task, outputPath string)
	OnTaskFailed       func(t *task.Task, err error)
	OnTaskIncomplete   func(t *task.Task, missingIndices []int)
	OnError            func(msg string)
}

func (r ReceiverSink) ListeningStarted() {
	if r.OnListeningStarted != nil {
		r.OnListeningStarted()
	}
}

func (r ReceiverSink) ListeningStopped() {
	if r.OnListeningStopped != nil {
		r.OnListeningStopped()
	}
}

func (r ReceiverSink) TaskStarted(t *task.Task) {
	if r.OnTaskStarted != nil {
		r.OnTaskStarted(t)
	}
}

func (r ReceiverSink) Progress(t *task.Task, completed, total int) {
	if r.OnProgress != nil {
		r.OnProgress(t, completed, total)
	}
}

func (r ReceiverSink) TaskCompleted(t *task.Task, outputPath string) {
	if r.OnTaskCompleted != nil {
		r.OnTaskCompleted(t, outputPath)
	}
}

func (r ReceiverSink) TaskFailed(t *task.Task, err error) {
	if r.OnTaskFailed != nil {
		r.OnTaskFailed(t, err)
	}
}

func (r ReceiverSink) TaskIncomplete(t *task.Task, missingIndices []int) {
	if r.OnTaskIncomplete != nil {
		r.OnTaskIncomplete(t, missingIndices)
	}
}

func (r ReceiverSink) ErrorMsg(msg string) {
	if r.OnError != nil {
		r.OnError(msg)
	}
}
