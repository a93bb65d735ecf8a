package telephony

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SimOutcome scripts how a simulated call resolves
type SimOutcome string

const (
	SimOutcomeAnswered SimOutcome = "answered"
	SimOutcomeBusy     SimOutcome = "busy"
	SimOutcomeNoAnswer SimOutcome = "no_answer"
	SimOutcomeFailed   SimOutcome = "failed"
)

// SimScript describes the deterministic behavior of the simulated engine
type SimScript struct {
	Outcome     SimOutcome
	RingDelay   time.Duration // delay before the ringing event
	AnswerDelay time.Duration // delay between ringing and the outcome
}

// DefaultSimScript answers quickly, suitable for local development
func DefaultSimScript() SimScript {
	return SimScript{
		Outcome:     SimOutcomeAnswered,
		RingDelay:   500 * time.Millisecond,
		AnswerDelay: 1500 * time.Millisecond,
	}
}

// SimulatedAdapter implements the Adapter contract without any network or
// hardware dependency. Selected by configuration at startup; business logic
// never branches on simulation mode.
type SimulatedAdapter struct {
	listeners listenerSet
	logger    zerolog.Logger

	mu          sync.Mutex
	initialized bool
	script      SimScript
	activeSID   string
	cancelCall  chan struct{}
}

// NewSimulatedAdapter creates a simulated adapter with the given script
func NewSimulatedAdapter(script SimScript, logger zerolog.Logger) *SimulatedAdapter {
	return &SimulatedAdapter{
		script: script,
		logger: logger.With().Str("component", "simulated_adapter").Logger(),
	}
}

// Initialize accepts any non-empty credential
func (a *SimulatedAdapter) Initialize(ctx context.Context, cred Credential) error {
	if cred.AccountSID == "" {
		return &InitError{Err: errors.New("missing account SID")}
	}
	a.mu.Lock()
	a.initialized = true
	a.mu.Unlock()
	a.logger.Info().Msg("simulated adapter initialized")
	return nil
}

// PlaceCall schedules the scripted event sequence for one call
func (a *SimulatedAdapter) PlaceCall(ctx context.Context, number string, metadata map[string]string) error {
	a.mu.Lock()
	if !a.initialized {
		a.mu.Unlock()
		return &InitError{Err: errors.New("adapter not initialized")}
	}
	if a.activeSID != "" {
		a.mu.Unlock()
		return fmt.Errorf("call already in progress")
	}
	sid := "SIM" + uuid.New().String()
	cancel := make(chan struct{})
	a.activeSID = sid
	a.cancelCall = cancel
	script := a.script
	a.mu.Unlock()

	a.logger.Debug().Str("call_sid", sid).Str("to", number).Str("outcome", string(script.Outcome)).Msg("simulated call placed")

	go a.runScript(sid, script, cancel)
	return nil
}

func (a *SimulatedAdapter) runScript(sid string, script SimScript, cancel <-chan struct{}) {
	select {
	case <-cancel:
		return
	case <-time.After(script.RingDelay):
	}
	a.listeners.fireRinging()

	select {
	case <-cancel:
		return
	case <-time.After(script.AnswerDelay):
	}

	switch script.Outcome {
	case SimOutcomeAnswered:
		a.listeners.fireConnected(sid)
	case SimOutcomeBusy:
		a.clearActive(sid)
		a.listeners.fireConnectFailure(ErrBusy)
	case SimOutcomeNoAnswer:
		a.clearActive(sid)
		a.listeners.fireConnectFailure(ErrNoAnswer)
	default:
		a.clearActive(sid)
		a.listeners.fireConnectFailure(fmt.Errorf("simulated connect failure"))
	}
}

// Disconnect ends the active simulated call and fires the disconnect event
func (a *SimulatedAdapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	sid := a.activeSID
	cancel := a.cancelCall
	a.activeSID = ""
	a.cancelCall = nil
	a.mu.Unlock()

	if sid == "" {
		return &ControlUnavailableError{Op: "disconnect", Err: errors.New("no active call")}
	}
	if cancel != nil {
		close(cancel)
	}
	a.listeners.fireDisconnected(sid, nil)
	return nil
}

// SetMute succeeds while a call is active
func (a *SimulatedAdapter) SetMute(ctx context.Context, on bool) error {
	return a.requireActive("mute")
}

// SetSpeaker succeeds while a call is active
func (a *SimulatedAdapter) SetSpeaker(ctx context.Context, on bool) error {
	return a.requireActive("speaker")
}

// SetHold succeeds while a call is active
func (a *SimulatedAdapter) SetHold(ctx context.Context, on bool) error {
	return a.requireActive("hold")
}

// RegisterListeners installs the handler set
func (a *SimulatedAdapter) RegisterListeners(handlers EventHandlers) (*ListenerHandle, error) {
	return a.listeners.register(handlers)
}

// SimulateDrop fires a reconnecting/reconnected cycle on the active call,
// with the given gap between the two events. Used to exercise reconnect
// handling in development.
func (a *SimulatedAdapter) SimulateDrop(gap time.Duration) error {
	if err := a.requireActive("drop"); err != nil {
		return err
	}
	a.listeners.fireReconnecting()
	go func() {
		time.Sleep(gap)
		if a.requireActive("drop") == nil {
			a.listeners.fireReconnected()
		}
	}()
	return nil
}

func (a *SimulatedAdapter) requireActive(op string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeSID == "" {
		return &ControlUnavailableError{Op: op, Err: errors.New("no active call")}
	}
	return nil
}

func (a *SimulatedAdapter) clearActive(sid string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeSID == sid {
		a.activeSID = ""
		a.cancelCall = nil
	}
}
