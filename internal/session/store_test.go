package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/leadwire/callcoach/internal/types"
)

func TestInitiateCallClearsPriorState(t *testing.T) {
	s := NewStore()

	s.InitiateCall("+15125550001", "", "")
	s.AddTranscriptSegment(types.TranscriptSegment{SegmentID: "seg-1", Text: "hello"})
	s.AddSuggestion(types.AISuggestion{SuggestionID: "sug-1", Type: types.SuggestionInfo})
	s.IncrementDuration()
	s.SetError("something broke")

	call := s.InitiateCall("+15125550002", "contact-1", "Dana")

	if call.Status != types.CallStatusInitiating {
		t.Errorf("expected status initiating, got %s", call.Status)
	}
	if call.PhoneNumber != "+15125550002" {
		t.Errorf("expected new phone number, got %s", call.PhoneNumber)
	}
	if len(s.Transcript()) != 0 {
		t.Error("expected transcript to be cleared")
	}
	if len(s.Suggestions()) != 0 {
		t.Error("expected suggestions to be cleared")
	}
	if s.Duration() != 0 {
		t.Errorf("expected duration 0, got %d", s.Duration())
	}
	if s.LastError() != "" {
		t.Errorf("expected error cleared, got %q", s.LastError())
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		path    []types.CallStatus
		wantErr bool
	}{
		{
			name: "happy path outbound",
			path: []types.CallStatus{types.CallStatusRinging, types.CallStatusConnected, types.CallStatusEnded},
		},
		{
			name: "hold and resume",
			path: []types.CallStatus{types.CallStatusRinging, types.CallStatusConnected, types.CallStatusOnHold, types.CallStatusConnected, types.CallStatusEnded},
		},
		{
			name: "reconnect cycle",
			path: []types.CallStatus{types.CallStatusConnected, types.CallStatusConnecting, types.CallStatusConnected, types.CallStatusEnded},
		},
		{
			name: "ringing to no answer",
			path: []types.CallStatus{types.CallStatusRinging, types.CallStatusNoAnswer},
		},
		{
			name: "connecting to busy",
			path: []types.CallStatus{types.CallStatusConnecting, types.CallStatusBusy},
		},
		{
			name:    "hold without being connected",
			path:    []types.CallStatus{types.CallStatusRinging, types.CallStatusOnHold},
			wantErr: true,
		},
		{
			name:    "resurrect ended call",
			path:    []types.CallStatus{types.CallStatusConnected, types.CallStatusEnded, types.CallStatusConnected},
			wantErr: true,
		},
		{
			name:    "resurrect failed call",
			path:    []types.CallStatus{types.CallStatusRinging, types.CallStatusFailed, types.CallStatusRinging},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			s.InitiateCall("+15125550001", "", "")

			var lastErr error
			for _, status := range tt.path {
				lastErr = s.UpdateStatus(status)
				if lastErr != nil {
					break
				}
			}

			if tt.wantErr {
				if lastErr == nil {
					t.Fatal("expected a rejected transition")
				}
				if !errors.Is(lastErr, ErrInvalidTransition) {
					t.Errorf("expected ErrInvalidTransition, got %v", lastErr)
				}
				return
			}
			if lastErr != nil {
				t.Fatalf("unexpected error: %v", lastErr)
			}
			if got := s.Status(); got != tt.path[len(tt.path)-1] {
				t.Errorf("expected final status %s, got %s", tt.path[len(tt.path)-1], got)
			}
		})
	}
}

func TestUpdateStatusWithoutActiveCall(t *testing.T) {
	s := NewStore()
	if err := s.UpdateStatus(types.CallStatusConnected); err == nil {
		t.Error("expected error updating status with no active call")
	}
}

func TestTerminalStatusRequiresReset(t *testing.T) {
	s := NewStore()
	s.InitiateCall("+15125550001", "", "")

	if err := s.UpdateStatus(types.CallStatusFailed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, next := range []types.CallStatus{
		types.CallStatusRinging,
		types.CallStatusConnected,
		types.CallStatusEnded,
		types.CallStatusInitiating,
	} {
		if err := s.UpdateStatus(next); err == nil {
			t.Errorf("expected transition failed -> %s to be rejected", next)
		}
	}

	// After a reset a new call can start again
	s.Reset()
	call := s.InitiateCall("+15125550002", "", "")
	if call.Status != types.CallStatusInitiating {
		t.Errorf("expected initiating after reset, got %s", call.Status)
	}
}

func TestTranscriptAppendOnlyOrder(t *testing.T) {
	s := NewStore()
	s.InitiateCall("+15125550001", "", "")

	// Interleave segment appends with status and suggestion writes
	s.AddTranscriptSegment(types.TranscriptSegment{SegmentID: "seg-1", Speaker: types.SpeakerUser, Text: "Hi"})
	if err := s.UpdateStatus(types.CallStatusConnected); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.AddSuggestion(types.AISuggestion{SuggestionID: "sug-1", Type: types.SuggestionInfo})
	s.AddTranscriptSegment(types.TranscriptSegment{SegmentID: "seg-2", Speaker: types.SpeakerContact, Text: "Hello"})

	transcript := s.Transcript()
	if len(transcript) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(transcript))
	}
	if transcript[0].Text != "Hi" || transcript[1].Text != "Hello" {
		t.Errorf("expected arrival order [Hi, Hello], got [%s, %s]", transcript[0].Text, transcript[1].Text)
	}
}

func TestDismissSuggestion(t *testing.T) {
	s := NewStore()
	s.InitiateCall("+15125550001", "", "")
	s.AddSuggestion(types.AISuggestion{SuggestionID: "sug-1", Type: types.SuggestionResponse})
	s.AddSuggestion(types.AISuggestion{SuggestionID: "sug-2", Type: types.SuggestionQuestion})

	if !s.DismissSuggestion("sug-1") {
		t.Error("expected sug-1 to be dismissed")
	}
	if len(s.Suggestions()) != 1 {
		t.Fatalf("expected 1 suggestion left, got %d", len(s.Suggestions()))
	}
	if s.Suggestions()[0].SuggestionID != "sug-2" {
		t.Errorf("expected sug-2 to remain, got %s", s.Suggestions()[0].SuggestionID)
	}

	// Unknown id is a no-op
	if s.DismissSuggestion("sug-unknown") {
		t.Error("expected dismissing unknown id to be a no-op")
	}
	if len(s.Suggestions()) != 1 {
		t.Errorf("expected suggestion set unchanged, got %d", len(s.Suggestions()))
	}
}

func TestEndCallIdempotentAndKeepsTranscript(t *testing.T) {
	s := NewStore()
	s.InitiateCall("+15125550001", "", "")
	if err := s.UpdateStatus(types.CallStatusConnected); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.AddTranscriptSegment(types.TranscriptSegment{SegmentID: "seg-1", Text: "bye"})

	s.EndCall()
	firstEnd := s.ActiveCall().EndedAt

	// Second EndCall (e.g. the late disconnect event) must not re-transition
	s.EndCall()

	if s.Status() != types.CallStatusEnded {
		t.Errorf("expected status ended, got %s", s.Status())
	}
	if !s.ActiveCall().EndedAt.Equal(*firstEnd) {
		t.Error("expected end time unchanged on repeated EndCall")
	}
	if len(s.Transcript()) != 1 {
		t.Error("expected transcript preserved for post-call summary")
	}
}

func TestEndCallWithoutActiveCall(t *testing.T) {
	s := NewStore()
	s.EndCall() // must not panic
	if s.ActiveCall() != nil {
		t.Error("expected no active call")
	}
}

func TestResetIdempotent(t *testing.T) {
	s := NewStore()
	s.InitiateCall("+15125550001", "", "")
	s.AddTranscriptSegment(types.TranscriptSegment{SegmentID: "seg-1"})
	s.IncrementDuration()

	s.Reset()
	s.Reset()

	if s.ActiveCall() != nil {
		t.Error("expected no active call after reset")
	}
	if s.Duration() != 0 || len(s.Transcript()) != 0 || len(s.Suggestions()) != 0 {
		t.Error("expected empty session after reset")
	}
	if s.HasActiveCall() {
		t.Error("expected HasActiveCall false after reset")
	}
}

func TestSetActiveCallPreservesStatus(t *testing.T) {
	s := NewStore()
	provisional := s.InitiateCall("+15125550001", "", "")

	// Adapter event lands before the persisted record comes back
	if err := s.UpdateStatus(types.CallStatusRinging); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.SetProviderCallID("CA123")

	persisted := types.Call{
		CallID:      "db-" + provisional.CallID,
		Direction:   types.DirectionOutbound,
		Status:      types.CallStatusInitiating,
		PhoneNumber: provisional.PhoneNumber,
		CreatedAt:   provisional.CreatedAt,
	}
	s.SetActiveCall(persisted)

	got := s.ActiveCall()
	if got.CallID != persisted.CallID {
		t.Errorf("expected persisted call id, got %s", got.CallID)
	}
	if got.Status != types.CallStatusRinging {
		t.Errorf("expected status ringing to survive record swap, got %s", got.Status)
	}
	if got.ProviderCallID != "CA123" {
		t.Errorf("expected provider call id to survive record swap, got %s", got.ProviderCallID)
	}
}

func TestControlsToggle(t *testing.T) {
	s := NewStore()
	s.InitiateCall("+15125550001", "", "")

	if !s.ToggleMute() {
		t.Error("expected mute on after first toggle")
	}
	if s.ToggleMute() {
		t.Error("expected mute off after second toggle")
	}
	if !s.ToggleSpeaker() {
		t.Error("expected speaker on")
	}
	if !s.ToggleHold() {
		t.Error("expected hold on")
	}

	controls := s.Controls()
	if controls.IsMuted || !controls.IsSpeakerOn || !controls.IsOnHold {
		t.Errorf("unexpected controls state: %+v", controls)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore()
	s.InitiateCall("+15125550001", "", "")
	s.AddTranscriptSegment(types.TranscriptSegment{SegmentID: "seg-1", Text: "one"})

	snap := s.Snapshot()
	snap.Transcript[0].Text = "mutated"
	snap.ActiveCall.PhoneNumber = "mutated"

	if s.Transcript()[0].Text != "one" {
		t.Error("snapshot mutation leaked into the store transcript")
	}
	if s.ActiveCall().PhoneNumber != "+15125550001" {
		t.Error("snapshot mutation leaked into the store call")
	}
}

func TestConcurrentWritersDoNotCorruptState(t *testing.T) {
	s := NewStore()
	s.InitiateCall("+15125550001", "", "")
	if err := s.UpdateStatus(types.CallStatusConnected); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			s.AddTranscriptSegment(types.TranscriptSegment{SegmentID: fmt.Sprintf("seg-%d", i)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			s.AddSuggestion(types.AISuggestion{SuggestionID: fmt.Sprintf("sug-%d", i)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			s.IncrementDuration()
		}
	}()

	wg.Wait()

	if len(s.Transcript()) != n {
		t.Errorf("expected %d segments, got %d", n, len(s.Transcript()))
	}
	if len(s.Suggestions()) != n {
		t.Errorf("expected %d suggestions, got %d", n, len(s.Suggestions()))
	}
	if s.Duration() != n {
		t.Errorf("expected duration %d, got %d", n, s.Duration())
	}
}
