package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/leadwire/callcoach/internal/metrics"
	"github.com/leadwire/callcoach/internal/session"
	"github.com/leadwire/callcoach/internal/telephony"
	"github.com/leadwire/callcoach/internal/types"
	"github.com/rs/zerolog"
)

// ErrCallInProgress is returned when StartCall is invoked while another
// call is active. Concurrent calls are rejected, not queued or replaced.
var ErrCallInProgress = errors.New("a call is already active")

// ErrAdapterUnavailable is returned when in-app calling cannot be used in
// this session (failed initialization or disabled capability tier).
var ErrAdapterUnavailable = errors.New("telephony adapter unavailable")

// InvalidPhoneNumberError fails a StartCall before the adapter is touched
type InvalidPhoneNumberError struct {
	Number string
}

func (e *InvalidPhoneNumberError) Error() string {
	return fmt.Sprintf("invalid phone number %q", e.Number)
}

// e164 is the strict E.164 shape calls are validated against
var e164 = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// Recorder is the persistence subset the orchestrator needs. Saves are
// fire-and-forget with logging; they never block or fail the call flow.
type Recorder interface {
	SaveCallRecord(record types.CallRecord) error
}

// TranscriptRecorder is implemented by recorders that can also persist the
// full transcript of a completed call
type TranscriptRecorder interface {
	SaveTranscript(record types.TranscriptRecord) error
}

// StartResult is the outcome of StartCall. When Handoff is set the call was
// not placed in-app; the client should open the platform dialer instead.
type StartResult struct {
	Call      *types.Call
	Handoff   bool
	DialerURI string
}

// Orchestrator binds telephony adapter events to session store mutations
// and coordinates best-effort persistence. It owns the 1 Hz duration ticker
// that runs strictly while the call is connected.
type Orchestrator struct {
	store    *session.Store
	adapter  telephony.Adapter
	recorder Recorder
	cred     telephony.Credential
	logger   zerolog.Logger

	// allowInApp gates the in-app calling capability; when false every
	// StartCall resolves to a dialer hand-off.
	allowInApp bool

	// tickInterval is one second in production; tests shrink it.
	tickInterval time.Duration

	// callMu serializes the lifecycle operations (start/end/reset) so the
	// one-active-call guard is atomic with the session mutation. The HTTP
	// surface delivers these concurrently.
	callMu sync.Mutex

	mu          sync.Mutex
	handle      *telephony.ListenerHandle
	tickerStop  context.CancelFunc
	initialized bool
}

// New creates an orchestrator. Call Start before placing calls and Close on
// teardown.
func New(store *session.Store, adapter telephony.Adapter, recorder Recorder, cred telephony.Credential, allowInApp bool, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:        store,
		adapter:      adapter,
		recorder:     recorder,
		cred:         cred,
		allowInApp:   allowInApp,
		tickInterval: time.Second,
		logger:       logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Start initializes the adapter and registers the event listeners. An
// initialization failure is not fatal to the process: the session falls
// back to dialer hand-offs until restart.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.adapter.Initialize(ctx, o.cred); err != nil {
		o.logger.Error().Err(err).Msg("adapter initialization failed, falling back to dialer hand-off")
		return fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}

	handle, err := o.adapter.RegisterListeners(o.eventHandlers())
	if err != nil {
		return fmt.Errorf("failed to register event listeners: %w", err)
	}

	o.mu.Lock()
	o.handle = handle
	o.initialized = true
	o.mu.Unlock()

	o.logger.Info().Msg("orchestrator started")
	return nil
}

// Close stops the duration ticker and unregisters the event listeners so no
// events are delivered after teardown
func (o *Orchestrator) Close() {
	o.stopTicker()

	o.mu.Lock()
	handle := o.handle
	o.handle = nil
	o.initialized = false
	o.mu.Unlock()

	if handle != nil {
		handle.Unregister()
	}
	o.logger.Info().Msg("orchestrator closed")
}

func (o *Orchestrator) ready() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.initialized
}

// StartCall validates and places an outbound call. The phone number is
// checked before the adapter is touched; a call already being active is
// rejected. Creation of the backing record is best-effort: its failure is
// logged and the call proceeds.
func (o *Orchestrator) StartCall(ctx context.Context, number, contactID, contactName string) (StartResult, error) {
	if !e164.MatchString(number) {
		return StartResult{}, &InvalidPhoneNumberError{Number: number}
	}

	// Capability branch, not an error: hand the number to the platform
	// dialer when in-app calling is unavailable for this session.
	if !o.allowInApp || !o.ready() {
		o.logger.Info().Str("number", number).Msg("in-app calling unavailable, handing off to dialer")
		return StartResult{Handoff: true, DialerURI: "tel:" + number}, nil
	}

	o.callMu.Lock()
	defer o.callMu.Unlock()

	if o.store.HasActiveCall() {
		return StartResult{}, ErrCallInProgress
	}

	call := o.store.InitiateCall(number, contactID, contactName)
	metrics.Get().RecordCallStarted()
	o.persistSnapshot("call_initiated")

	if err := o.adapter.PlaceCall(ctx, number, map[string]string{
		"callId":    call.CallID,
		"contactId": contactID,
	}); err != nil {
		o.logger.Error().Err(err).Str("call_id", call.CallID).Msg("failed to place call")
		o.applyStatus(types.CallStatusFailed)
		o.store.SetError("could not place call")
		o.persistSnapshot("place_failed")
		return StartResult{}, fmt.Errorf("failed to place call: %w", err)
	}

	o.logger.Info().
		Str("call_id", call.CallID).
		Str("number", number).
		Str("contact_id", contactID).
		Msg("call started")

	return StartResult{Call: call}, nil
}

// EndCall hangs up the active call. The store is marked ended immediately
// for a responsive UI; the adapter's later disconnect event is treated as
// idempotent confirmation. A disconnect failure is downgraded to a session
// error because the call is over from the user's perspective either way.
func (o *Orchestrator) EndCall(ctx context.Context) error {
	o.callMu.Lock()
	defer o.callMu.Unlock()

	if !o.store.HasActiveCall() {
		return nil
	}

	if err := o.adapter.Disconnect(ctx); err != nil {
		var ctrlErr *telephony.ControlUnavailableError
		if errors.As(err, &ctrlErr) {
			o.store.SetError(ctrlErr.Error())
			o.logger.Warn().Err(err).Msg("disconnect unavailable, ending session state anyway")
		} else {
			o.logger.Error().Err(err).Msg("disconnect failed, ending session state anyway")
		}
	}

	o.stopTicker()
	o.store.EndCall()
	metrics.Get().RecordCallEnded()
	o.persistSnapshot("call_ended")
	o.persistTranscript()
	return nil
}

// ToggleMute asks the adapter to flip mute and updates the store flag only
// when the adapter accepted the change
func (o *Orchestrator) ToggleMute(ctx context.Context) error {
	target := !o.store.Controls().IsMuted
	if err := o.adapter.SetMute(ctx, target); err != nil {
		o.store.SetError(err.Error())
		return err
	}
	o.store.ToggleMute()
	return nil
}

// ToggleSpeaker mirrors ToggleMute for the speaker route
func (o *Orchestrator) ToggleSpeaker(ctx context.Context) error {
	target := !o.store.Controls().IsSpeakerOn
	if err := o.adapter.SetSpeaker(ctx, target); err != nil {
		o.store.SetError(err.Error())
		return err
	}
	o.store.ToggleSpeaker()
	return nil
}

// ToggleHold flips hold at the adapter, then the store flag and the
// on_hold/connected status. Duration stops accumulating while on hold.
// Hold only exists on an established call, so toggles outside the
// connected/on_hold pair are rejected before the adapter is touched.
func (o *Orchestrator) ToggleHold(ctx context.Context) error {
	if status := o.store.Status(); status != types.CallStatusConnected && status != types.CallStatusOnHold {
		return &telephony.ControlUnavailableError{Op: "hold", Err: errors.New("call is not connected")}
	}

	target := !o.store.Controls().IsOnHold
	if err := o.adapter.SetHold(ctx, target); err != nil {
		o.store.SetError(err.Error())
		return err
	}
	o.store.ToggleHold()
	if target {
		o.applyStatus(types.CallStatusOnHold)
	} else {
		o.applyStatus(types.CallStatusConnected)
	}
	return nil
}

// DismissSuggestion removes a coaching suggestion from the active set
func (o *Orchestrator) DismissSuggestion(id string) {
	o.store.DismissSuggestion(id)
}

// Reset discards the post-call session state
func (o *Orchestrator) Reset() {
	o.callMu.Lock()
	defer o.callMu.Unlock()

	o.stopTicker()
	o.store.Reset()
}

// eventHandlers maps adapter events onto store transitions
func (o *Orchestrator) eventHandlers() telephony.EventHandlers {
	return telephony.EventHandlers{
		OnRinging: func() {
			metrics.Get().RecordAdapterEvent()
			o.applyStatus(types.CallStatusRinging)
		},
		OnConnected: func(providerCallID string) {
			metrics.Get().RecordAdapterEvent()
			o.store.SetProviderCallID(providerCallID)
			o.applyStatus(types.CallStatusConnected)
			o.persistSnapshot("connected")
		},
		OnDisconnected: func(providerCallID string, err error) {
			metrics.Get().RecordAdapterEvent()
			o.stopTicker()

			// EndCall already moved the session to a terminal status;
			// the event is confirmation, not a second transition.
			if o.store.Status().IsTerminal() {
				o.logger.Debug().Str("provider_call_id", providerCallID).Msg("disconnect event after terminal status")
				return
			}

			if err != nil {
				o.applyStatus(types.CallStatusFailed)
				o.store.SetError(err.Error())
				metrics.Get().RecordCallFailed()
			} else {
				o.store.EndCall()
				metrics.Get().RecordCallEnded()
			}
			o.persistSnapshot("disconnected")
		},
		OnConnectFailure: func(err error) {
			metrics.Get().RecordAdapterEvent()
			o.stopTicker()

			switch {
			case errors.Is(err, telephony.ErrBusy):
				o.applyStatus(types.CallStatusBusy)
			case errors.Is(err, telephony.ErrNoAnswer):
				o.applyStatus(types.CallStatusNoAnswer)
			default:
				o.applyStatus(types.CallStatusFailed)
			}
			if err != nil {
				o.store.SetError(err.Error())
			}
			metrics.Get().RecordCallFailed()
			o.persistSnapshot("connect_failure")
		},
		OnReconnecting: func() {
			metrics.Get().RecordAdapterEvent()
			o.applyStatus(types.CallStatusConnecting)
		},
		OnReconnected: func() {
			metrics.Get().RecordAdapterEvent()
			o.applyStatus(types.CallStatusConnected)
		},
	}
}

// applyStatus transitions the store status and keeps the duration ticker in
// step: running exactly while connected, stopped otherwise. Rejected
// transitions (late or out-of-order events) are logged and dropped.
func (o *Orchestrator) applyStatus(next types.CallStatus) {
	if err := o.store.UpdateStatus(next); err != nil {
		o.logger.Debug().Err(err).Str("next", string(next)).Msg("dropped status transition")
		return
	}

	if next == types.CallStatusConnected {
		o.startTicker()
	} else {
		o.stopTicker()
	}
}

// startTicker begins the 1 Hz duration counter. Idempotent: an already
// running ticker is left alone so reconnect cycles never double-count.
func (o *Orchestrator) startTicker() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.tickerStop != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	o.tickerStop = cancel

	interval := o.tickInterval

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if o.store.Status() == types.CallStatusConnected {
					o.store.IncrementDuration()
				}
			}
		}
	}()
}

func (o *Orchestrator) stopTicker() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.tickerStop != nil {
		o.tickerStop()
		o.tickerStop = nil
	}
}

// persistSnapshot saves the current call asynchronously. Failures are
// logged and counted, never surfaced to the call flow.
func (o *Orchestrator) persistSnapshot(reason string) {
	if o.recorder == nil {
		return
	}
	call := o.store.ActiveCall()
	if call == nil {
		return
	}
	record := recordFromCall(call, o.store.Duration(), len(o.store.Transcript()), len(o.store.Suggestions()))

	go func() {
		if err := o.recorder.SaveCallRecord(record); err != nil {
			metrics.Get().RecordPersistenceError()
			o.logger.Error().Err(err).
				Str("call_id", record.CallID).
				Str("reason", reason).
				Msg("failed to save call record")
		}
	}()
}

// persistTranscript saves the full transcript of the just-ended call when
// the recorder supports it. Like persistSnapshot this is best-effort.
func (o *Orchestrator) persistTranscript() {
	recorder, ok := o.recorder.(TranscriptRecorder)
	if !ok {
		return
	}
	call := o.store.ActiveCall()
	segments := o.store.Transcript()
	if call == nil || len(segments) == 0 {
		return
	}

	record := types.TranscriptRecord{
		CallID:   call.CallID,
		DateKey:  call.CreatedAt.Format("2006-01-02"),
		Segments: segments,
	}

	go func() {
		if err := recorder.SaveTranscript(record); err != nil {
			metrics.Get().RecordPersistenceError()
			o.logger.Error().Err(err).
				Str("call_id", record.CallID).
				Msg("failed to save transcript")
		}
	}()
}

// recordFromCall converts the live call into its persistence shape
func recordFromCall(call *types.Call, durationSecs, segments, suggestions int) types.CallRecord {
	record := types.CallRecord{
		DateKey:         call.CreatedAt.Format("2006-01-02"),
		CallID:          call.CallID,
		Direction:       string(call.Direction),
		PhoneNumber:     call.PhoneNumber,
		ContactID:       call.ContactID,
		ContactName:     call.ContactName,
		ProviderCallID:  call.ProviderCallID,
		Status:          string(call.Status),
		CreatedAt:       call.CreatedAt.Format(time.RFC3339),
		DurationSecs:    float64(durationSecs),
		SegmentCount:    segments,
		SuggestionCount: suggestions,
	}
	if call.StartedAt != nil {
		record.StartedAt = call.StartedAt.Format(time.RFC3339)
	}
	if call.EndedAt != nil {
		record.EndedAt = call.EndedAt.Format(time.RFC3339)
	}
	return record
}
