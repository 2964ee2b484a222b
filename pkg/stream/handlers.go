package stream

import "github.com/khushibohraAcc/smartscript-builder/pkg/api"

// Handlers adapts the event channel to a callback shape for consumers that
// prefer it. Nil fields are skipped.
type Handlers struct {
	OnStatusChange func(Status)
	OnStep         func(api.StepUpdate)
	OnComplete     func(api.ExecutionResult)
	OnError        func(message string)
}

// Dispatch drains the event channel into the handlers, returning when the
// channel closes. Run it on its own goroutine to mirror callback-style APIs.
func Dispatch(events <-chan Event, h Handlers) {
	for evt := range events {
		switch e := evt.(type) {
		case StatusEvent:
			if h.OnStatusChange != nil {
				h.OnStatusChange(e.Status)
			}
		case StepEvent:
			if h.OnStep != nil {
				h.OnStep(e.Step)
			}
		case CompletedEvent:
			if h.OnComplete != nil {
				h.OnComplete(e.Result)
			}
		case ErrorEvent:
			if h.OnError != nil {
				h.OnError(e.Message)
			}
		}
	}
}
