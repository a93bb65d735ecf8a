package telephony

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioAdapter places and controls calls through the Twilio REST API.
// Call progress arrives through Twilio status callbacks, which the server
// routes into StatusCallbackHandler; the handler translates them into the
// registered event handlers.
type TwilioAdapter struct {
	listeners listenerSet
	logger    zerolog.Logger

	// CallbackURL is the publicly reachable status-callback endpoint
	// handed to Twilio on call creation.
	callbackURL string
	voiceURL    string // TwiML endpoint that answers the outbound leg

	mu            sync.Mutex
	client        *twilio.RestClient
	callerID      string
	activeCallSID string
}

// NewTwilioAdapter creates an uninitialized Twilio adapter
func NewTwilioAdapter(callbackURL, voiceURL string, logger zerolog.Logger) *TwilioAdapter {
	return &TwilioAdapter{
		callbackURL: callbackURL,
		voiceURL:    voiceURL,
		logger:      logger.With().Str("component", "twilio_adapter").Logger(),
	}
}

// Initialize validates the credential by fetching the account resource
func (a *TwilioAdapter) Initialize(ctx context.Context, cred Credential) error {
	if cred.AccountSID == "" || cred.AuthToken == "" {
		return &InitError{Err: errors.New("missing account SID or auth token")}
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cred.AccountSID,
		Password: cred.AuthToken,
	})

	// A failed account fetch means the credential is bad or Twilio is
	// unreachable; either way in-app calling cannot start.
	if _, err := client.Api.FetchAccount(cred.AccountSID); err != nil {
		return &InitError{Err: err}
	}

	a.mu.Lock()
	a.client = client
	a.callerID = cred.CallerID
	a.mu.Unlock()

	a.logger.Info().Str("caller_id", cred.CallerID).Msg("twilio adapter initialized")
	return nil
}

// PlaceCall creates the outbound call leg. The outcome arrives later via
// status callbacks.
func (a *TwilioAdapter) PlaceCall(ctx context.Context, number string, metadata map[string]string) error {
	a.mu.Lock()
	client := a.client
	callerID := a.callerID
	a.mu.Unlock()

	if client == nil {
		return &InitError{Err: errors.New("adapter not initialized")}
	}

	params := &api.CreateCallParams{}
	params.SetTo(number)
	params.SetFrom(callerID)
	params.SetUrl(a.voiceURL)
	params.SetStatusCallback(a.callbackURL)
	params.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})
	params.SetStatusCallbackMethod(http.MethodPost)

	resp, err := client.Api.CreateCall(params)
	if err != nil {
		return fmt.Errorf("failed to create call: %w", err)
	}

	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}

	a.mu.Lock()
	a.activeCallSID = sid
	a.mu.Unlock()

	a.logger.Info().Str("call_sid", sid).Str("to", number).Msg("outbound call created")
	return nil
}

// Disconnect completes the active call leg
func (a *TwilioAdapter) Disconnect(ctx context.Context) error {
	client, sid, err := a.activeLeg("disconnect")
	if err != nil {
		return err
	}

	params := &api.UpdateCallParams{}
	params.SetStatus("completed")
	if _, err := client.Api.UpdateCall(sid, params); err != nil {
		return &ControlUnavailableError{Op: "disconnect", Err: err}
	}
	return nil
}

// SetMute is not supported on a plain REST call leg; muting happens on the
// client media path. Surfaced as a control-unavailable error so the caller
// can show a non-fatal message.
func (a *TwilioAdapter) SetMute(ctx context.Context, on bool) error {
	return &ControlUnavailableError{Op: "mute", Err: errors.New("not supported by the REST call leg")}
}

// SetSpeaker is a device-side control with no server equivalent
func (a *TwilioAdapter) SetSpeaker(ctx context.Context, on bool) error {
	return &ControlUnavailableError{Op: "speaker", Err: errors.New("not supported by the REST call leg")}
}

// SetHold redirects the active leg to hold music, or back to the voice URL
func (a *TwilioAdapter) SetHold(ctx context.Context, on bool) error {
	client, sid, err := a.activeLeg("hold")
	if err != nil {
		return err
	}

	params := &api.UpdateCallParams{}
	if on {
		params.SetTwiml(`<Response><Play loop="0">http://com.twilio.music.classical.s3.amazonaws.com/BusyStrings.mp3</Play></Response>`)
	} else {
		params.SetUrl(a.voiceURL)
		params.SetMethod(http.MethodPost)
	}
	if _, err := client.Api.UpdateCall(sid, params); err != nil {
		return &ControlUnavailableError{Op: "hold", Err: err}
	}
	return nil
}

// RegisterListeners installs the handler set
func (a *TwilioAdapter) RegisterListeners(handlers EventHandlers) (*ListenerHandle, error) {
	return a.listeners.register(handlers)
}

func (a *TwilioAdapter) activeLeg(op string) (*twilio.RestClient, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client == nil {
		return nil, "", &ControlUnavailableError{Op: op, Err: errors.New("adapter not initialized")}
	}
	if a.activeCallSID == "" {
		return nil, "", &ControlUnavailableError{Op: op, Err: errors.New("no active call")}
	}
	return a.client, a.activeCallSID, nil
}

// StatusCallbackHandler translates Twilio status callbacks into adapter
// events. Mounted by the server on an internal route.
func (a *TwilioAdapter) StatusCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}

		callSID := r.PostFormValue("CallSid")
		status := r.PostFormValue("CallStatus")

		a.logger.Debug().Str("call_sid", callSID).Str("status", status).Msg("status callback")

		switch status {
		case "ringing":
			a.listeners.fireRinging()
		case "in-progress", "answered":
			a.listeners.fireConnected(callSID)
		case "completed":
			a.clearActive(callSID)
			a.listeners.fireDisconnected(callSID, nil)
		case "busy":
			a.clearActive(callSID)
			a.listeners.fireConnectFailure(ErrBusy)
		case "no-answer":
			a.clearActive(callSID)
			a.listeners.fireConnectFailure(ErrNoAnswer)
		case "failed", "canceled":
			a.clearActive(callSID)
			a.listeners.fireConnectFailure(fmt.Errorf("call %s: %s", callSID, status))
		}

		w.WriteHeader(http.StatusOK)
	}
}

func (a *TwilioAdapter) clearActive(callSID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeCallSID == callSID {
		a.activeCallSID = ""
	}
}
