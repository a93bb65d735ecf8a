package telephony

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Sentinel outcomes carried on connect-failure and disconnect events so the
// orchestrator can map them to terminal call statuses.
var (
	ErrBusy     = errors.New("remote side busy")
	ErrNoAnswer = errors.New("no answer")
)

// ErrListenersRegistered is returned when RegisterListeners is called while
// a previous handle has not been unregistered. Double registration would
// double-fire every event, so it is treated as a programming error.
var ErrListenersRegistered = errors.New("event listeners already registered")

// InitError indicates the voice engine could not start or the credential
// was rejected. Fatal for in-app calling in this session.
type InitError struct {
	Err error
}

func (e *InitError) Error() string { return fmt.Sprintf("adapter init failed: %v", e.Err) }
func (e *InitError) Unwrap() error { return e.Err }

// ControlUnavailableError indicates a call control (mute, speaker, hold,
// disconnect) could not be applied, either because no call is active or the
// underlying engine does not support it. Non-fatal: callers surface it as a
// dismissable session error.
type ControlUnavailableError struct {
	Op  string
	Err error
}

func (e *ControlUnavailableError) Error() string {
	return fmt.Sprintf("call control %q unavailable: %v", e.Op, e.Err)
}
func (e *ControlUnavailableError) Unwrap() error { return e.Err }

// Credential authenticates the adapter against its voice provider
type Credential struct {
	AccountSID string
	AuthToken  string
	CallerID   string // E.164 number calls are placed from
}

// EventHandlers receives asynchronous call events from the adapter. All
// callbacks are optional; nil handlers are skipped.
type EventHandlers struct {
	OnConnected      func(providerCallID string)
	OnDisconnected   func(providerCallID string, err error)
	OnRinging        func()
	OnConnectFailure func(err error)
	OnReconnecting   func()
	OnReconnected    func()
}

// Adapter wraps a third-party voice engine. PlaceCall is side-effecting and
// returns before the call outcome is known; outcomes arrive through the
// registered event handlers.
type Adapter interface {
	Initialize(ctx context.Context, cred Credential) error
	PlaceCall(ctx context.Context, number string, metadata map[string]string) error
	Disconnect(ctx context.Context) error
	SetMute(ctx context.Context, on bool) error
	SetSpeaker(ctx context.Context, on bool) error
	SetHold(ctx context.Context, on bool) error

	// RegisterListeners installs the handler set and returns its handle.
	// Exactly one registration may be live at a time; callers must
	// unregister the previous handle first.
	RegisterListeners(handlers EventHandlers) (*ListenerHandle, error)
}

// ListenerHandle is the single-owner handle for a listener registration.
// Unregister is idempotent; the handle cannot be re-armed.
type ListenerHandle struct {
	once    sync.Once
	release func()
}

// Unregister removes the registration. Safe to call more than once.
func (h *ListenerHandle) Unregister() {
	h.once.Do(func() {
		if h.release != nil {
			h.release()
		}
	})
}

// listenerSet holds the one live handler registration for an adapter.
// Shared by the Twilio and simulated implementations.
type listenerSet struct {
	mu       sync.Mutex
	handlers *EventHandlers
}

func (l *listenerSet) register(handlers EventHandlers) (*ListenerHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.handlers != nil {
		return nil, ErrListenersRegistered
	}
	l.handlers = &handlers

	return &ListenerHandle{release: func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.handlers = nil
	}}, nil
}

func (l *listenerSet) current() *EventHandlers {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handlers
}

func (l *listenerSet) fireConnected(providerCallID string) {
	if h := l.current(); h != nil && h.OnConnected != nil {
		h.OnConnected(providerCallID)
	}
}

func (l *listenerSet) fireDisconnected(providerCallID string, err error) {
	if h := l.current(); h != nil && h.OnDisconnected != nil {
		h.OnDisconnected(providerCallID, err)
	}
}

func (l *listenerSet) fireRinging() {
	if h := l.current(); h != nil && h.OnRinging != nil {
		h.OnRinging()
	}
}

func (l *listenerSet) fireConnectFailure(err error) {
	if h := l.current(); h != nil && h.OnConnectFailure != nil {
		h.OnConnectFailure(err)
	}
}

func (l *listenerSet) fireReconnecting() {
	if h := l.current(); h != nil && h.OnReconnecting != nil {
		h.OnReconnecting()
	}
}

func (l *listenerSet) fireReconnected() {
	if h := l.current(); h != nil && h.OnReconnected != nil {
		h.OnReconnected()
	}
}
