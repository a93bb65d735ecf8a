package types

import "time"

// CallStatus represents the lifecycle state of a call
type CallStatus string

const (
	CallStatusInitiating CallStatus = "initiating" // Placed by the user, not yet signalled
	CallStatusRinging    CallStatus = "ringing"    // Remote side is ringing
	CallStatusConnecting CallStatus = "connecting" // Media path being (re)established
	CallStatusConnected  CallStatus = "connected"  // Live two-way call
	CallStatusOnHold     CallStatus = "on_hold"    // Connected but placed on hold
	CallStatusEnded      CallStatus = "ended"      // Completed normally
	CallStatusFailed     CallStatus = "failed"     // Could not connect or dropped with error
	CallStatusBusy       CallStatus = "busy"       // Remote side busy
	CallStatusNoAnswer   CallStatus = "no_answer"  // Rang out without pickup
)

// IsTerminal reports whether no further status transitions are possible
// without a session reset.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusEnded, CallStatusFailed, CallStatusBusy, CallStatusNoAnswer:
		return true
	}
	return false
}

// statusTransitions lists the allowed edges of the call state machine.
var statusTransitions = map[CallStatus][]CallStatus{
	CallStatusInitiating: {CallStatusRinging, CallStatusConnecting, CallStatusConnected, CallStatusFailed, CallStatusBusy, CallStatusNoAnswer, CallStatusEnded},
	CallStatusRinging:    {CallStatusConnecting, CallStatusConnected, CallStatusFailed, CallStatusBusy, CallStatusNoAnswer, CallStatusEnded},
	CallStatusConnecting: {CallStatusConnected, CallStatusFailed, CallStatusBusy, CallStatusNoAnswer, CallStatusEnded},
	CallStatusConnected:  {CallStatusOnHold, CallStatusConnecting, CallStatusEnded, CallStatusFailed},
	CallStatusOnHold:     {CallStatusConnected, CallStatusConnecting, CallStatusEnded, CallStatusFailed},
}

// CanTransition reports whether the state machine allows moving from s to next.
// An empty current status accepts only "initiating".
func (s CallStatus) CanTransition(next CallStatus) bool {
	if s == "" {
		return next == CallStatusInitiating
	}
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CallDirection indicates who originated the call
type CallDirection string

const (
	DirectionOutbound CallDirection = "outbound"
	DirectionInbound  CallDirection = "inbound"
)

// Call represents the single active call modeled by a session
type Call struct {
	CallID         string        `json:"callId"`
	Direction      CallDirection `json:"direction"`
	Status         CallStatus    `json:"status"`
	PhoneNumber    string        `json:"phoneNumber"`
	ContactID      string        `json:"contactId,omitempty"`
	ContactName    string        `json:"contactName,omitempty"`
	ProviderCallID string        `json:"providerCallId,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	StartedAt      *time.Time    `json:"startedAt,omitempty"`
	EndedAt        *time.Time    `json:"endedAt,omitempty"`
}

// CallControls holds the ephemeral in-call control flags. Flags are only
// flipped after the telephony adapter confirmed the corresponding action.
type CallControls struct {
	IsMuted     bool `json:"isMuted"`
	IsSpeakerOn bool `json:"isSpeakerOn"`
	IsOnHold    bool `json:"isOnHold"`
	IsRecording bool `json:"isRecording"`
}
