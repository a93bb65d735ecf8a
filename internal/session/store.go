package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leadwire/callcoach/internal/types"
)

// ErrInvalidTransition is returned when a status update would leave the
// edges of the call state machine.
var ErrInvalidTransition = errors.New("invalid call status transition")

// Store is the single source of truth for one call session. It performs no
// I/O; the orchestrator and the feeds write into it and the broadcast loop
// reads snapshots out of it. All mutations are guarded by one mutex, so
// writes from adapter events, push feeds and the duration ticker may
// interleave in any order without corrupting state.
//
// One Store instance is owned by the application's call-session module and
// injected into its collaborators; tests create isolated instances.
type Store struct {
	mu sync.RWMutex

	activeCall  *types.Call
	controls    types.CallControls
	transcript  []types.TranscriptSegment
	suggestions []types.AISuggestion
	duration    int // seconds spent connected
	lastError   string
}

// NewStore creates an empty call session store
func NewStore() *Store {
	return &Store{}
}

// InitiateCall installs a provisional outbound call record with status
// "initiating" and clears transcript, suggestions, duration and error.
// Enforcing the one-active-call rule is the orchestrator's job; the store
// itself overwrites whatever was there.
func (s *Store) InitiateCall(phoneNumber, contactID, contactName string) *types.Call {
	s.mu.Lock()
	defer s.mu.Unlock()

	call := &types.Call{
		CallID:      uuid.New().String(),
		Direction:   types.DirectionOutbound,
		Status:      types.CallStatusInitiating,
		PhoneNumber: phoneNumber,
		ContactID:   contactID,
		ContactName: contactName,
		CreatedAt:   time.Now(),
	}

	s.activeCall = call
	s.controls = types.CallControls{}
	s.transcript = nil
	s.suggestions = nil
	s.duration = 0
	s.lastError = ""

	copied := *call
	return &copied
}

// SetActiveCall replaces the provisional call with a persisted one. The
// current status is preserved so an adapter event that already arrived is
// not rolled back.
func (s *Store) SetActiveCall(call types.Call) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeCall != nil {
		call.Status = s.activeCall.Status
		if call.ProviderCallID == "" {
			call.ProviderCallID = s.activeCall.ProviderCallID
		}
	}
	s.activeCall = &call
}

// SetProviderCallID records the provider's identifier for the active call
func (s *Store) SetProviderCallID(providerCallID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeCall != nil {
		s.activeCall.ProviderCallID = providerCallID
	}
}

// UpdateStatus transitions the call status along the state machine.
// Transitions out of a terminal status (and any edge the machine does not
// define) are rejected with ErrInvalidTransition.
func (s *Store) UpdateStatus(next types.CallStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeCall == nil {
		return fmt.Errorf("%w: no active call", ErrInvalidTransition)
	}

	current := s.activeCall.Status
	if !current.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
	}

	now := time.Now()
	s.activeCall.Status = next

	if next == types.CallStatusConnected && s.activeCall.StartedAt == nil {
		s.activeCall.StartedAt = &now
	}
	if next.IsTerminal() && s.activeCall.EndedAt == nil {
		s.activeCall.EndedAt = &now
	}
	return nil
}

// Status returns the current call status, or "" when no call is active
func (s *Store) Status() types.CallStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.activeCall == nil {
		return ""
	}
	return s.activeCall.Status
}

// HasActiveCall reports whether a call exists in a non-terminal status
func (s *Store) HasActiveCall() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.activeCall != nil && !s.activeCall.Status.IsTerminal()
}

// ActiveCall returns a copy of the current call, or nil
func (s *Store) ActiveCall() *types.Call {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.activeCall == nil {
		return nil
	}
	copied := *s.activeCall
	return &copied
}

// ToggleMute flips the mute flag and returns the new value. Call it only
// after the adapter accepted the change.
func (s *Store) ToggleMute() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controls.IsMuted = !s.controls.IsMuted
	return s.controls.IsMuted
}

// ToggleSpeaker flips the speaker flag and returns the new value
func (s *Store) ToggleSpeaker() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controls.IsSpeakerOn = !s.controls.IsSpeakerOn
	return s.controls.IsSpeakerOn
}

// ToggleHold flips the hold flag and returns the new value
func (s *Store) ToggleHold() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controls.IsOnHold = !s.controls.IsOnHold
	return s.controls.IsOnHold
}

// SetRecording sets the recording flag
func (s *Store) SetRecording(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controls.IsRecording = on
}

// Controls returns the current control flags
func (s *Store) Controls() types.CallControls {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.controls
}

// AddTranscriptSegment appends a segment to the transcript log in arrival
// order. The store never reorders or deduplicates; at-least-once delivery
// is handled at the feed boundary.
func (s *Store) AddTranscriptSegment(segment types.TranscriptSegment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, segment)
}

// Transcript returns a copy of the transcript log
func (s *Store) Transcript() []types.TranscriptSegment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.TranscriptSegment, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// AddSuggestion appends a coaching suggestion to the active set
func (s *Store) AddSuggestion(suggestion types.AISuggestion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suggestions = append(s.suggestions, suggestion)
}

// DismissSuggestion removes a suggestion by id. Dismissing an unknown id is
// a no-op; the return value reports whether anything was removed.
func (s *Store) DismissSuggestion(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sg := range s.suggestions {
		if sg.SuggestionID == id {
			s.suggestions = append(s.suggestions[:i], s.suggestions[i+1:]...)
			return true
		}
	}
	return false
}

// Suggestions returns a copy of the active suggestion set
func (s *Store) Suggestions() []types.AISuggestion {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.AISuggestion, len(s.suggestions))
	copy(out, s.suggestions)
	return out
}

// IncrementDuration adds one second to the connected duration and returns
// the new value. Driven by the orchestrator's 1 Hz ticker while connected.
func (s *Store) IncrementDuration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.duration++
	return s.duration
}

// Duration returns the seconds spent connected so far
func (s *Store) Duration() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.duration
}

// SetError records a non-fatal, user-dismissable error message
func (s *Store) SetError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = msg
}

// ClearError clears the error message
func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = ""
}

// LastError returns the current error message, or ""
func (s *Store) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// EndCall marks the active call ended. Transcript and suggestions stay in
// place for the post-call summary. Calling it with no active call, or after
// the call already reached a terminal status, is a no-op.
func (s *Store) EndCall() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeCall == nil || s.activeCall.Status.IsTerminal() {
		return
	}
	now := time.Now()
	s.activeCall.Status = types.CallStatusEnded
	s.activeCall.EndedAt = &now
}

// Reset clears all session state back to initial values. Idempotent.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activeCall = nil
	s.controls = types.CallControls{}
	s.transcript = nil
	s.suggestions = nil
	s.duration = 0
	s.lastError = ""
}

// Snapshot returns a consistent copy of the full session state for
// broadcasting and API reads
func (s *Store) Snapshot() types.SessionUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	update := types.SessionUpdate{
		Type:        types.PushTypeSession,
		Timestamp:   time.Now(),
		Controls:    s.controls,
		Duration:    s.duration,
		Transcript:  make([]types.TranscriptSegment, len(s.transcript)),
		Suggestions: make([]types.AISuggestion, len(s.suggestions)),
		Error:       s.lastError,
	}
	copy(update.Transcript, s.transcript)
	copy(update.Suggestions, s.suggestions)

	if s.activeCall != nil {
		copied := *s.activeCall
		update.ActiveCall = &copied
		update.Status = copied.Status
	}
	return update
}
