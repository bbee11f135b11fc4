package bridge

import "fmt"

// CallState is the lifecycle state of one correlated call.
type CallState string

const (
	StateIssued    CallState = "issued"
	StatePending   CallState = "pending"
	StateMatched   CallState = "matched"
	StateExpired   CallState = "expired"
	StateCancelled CallState = "cancelled"
	StateFailed    CallState = "failed"
)

type callEvent string

const (
	eventSent       callEvent = "sent"
	eventResponse   callEvent = "response"
	eventTimeout    callEvent = "timeout"
	eventCancel     callEvent = "cancel"
	eventSendFailed callEvent = "send_failed"
)

// Terminal reports whether no further transition is possible.
func (s CallState) Terminal() bool {
	switch s {
	case StateMatched, StateExpired, StateCancelled, StateFailed:
		return true
	}
	return false
}

func transition(current CallState, event callEvent) (CallState, error) {
	switch current {
	case StateIssued:
		switch event {
		case eventSent:
			return StatePending, nil
		case eventSendFailed:
			return StateFailed, nil
		}
	case StatePending:
		switch event {
		case eventResponse:
			return StateMatched, nil
		case eventTimeout:
			return StateExpired, nil
		case eventCancel:
			return StateCancelled, nil
		case eventSendFailed:
			return StateFailed, nil
		}
	}
	return current, fmt.Errorf("invalid transition: %s --(%s)--> ?", current, event)
}
