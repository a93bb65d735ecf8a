package types

import "time"

// Push message type tags used on the UI WebSocket.
const (
	PushTypeSession    = "session_update"
	PushTypeTranscript = "transcript_segment"
	PushTypeSuggestion = "ai_suggestion"
)

// SessionUpdate is the periodic session snapshot pushed to UI clients
type SessionUpdate struct {
	Type        string              `json:"type"` // "session_update"
	Timestamp   time.Time           `json:"timestamp"`
	ActiveCall  *Call               `json:"activeCall"`
	Controls    CallControls        `json:"controls"`
	Status      CallStatus          `json:"status,omitempty"`
	Duration    int                 `json:"duration"` // seconds connected
	Transcript  []TranscriptSegment `json:"transcript"`
	Suggestions []AISuggestion      `json:"suggestions"`
	Error       string              `json:"error,omitempty"`
}

// TranscriptPush wraps a single transcript segment pushed to UI clients
type TranscriptPush struct {
	Type    string            `json:"type"` // "transcript_segment"
	Segment TranscriptSegment `json:"segment"`
}

// SuggestionPush wraps a single coaching suggestion pushed to UI clients
type SuggestionPush struct {
	Type       string       `json:"type"` // "ai_suggestion"
	Suggestion AISuggestion `json:"suggestion"`
}
