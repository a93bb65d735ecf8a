package types

// Speaker identifies which side of the call produced a transcript segment
type Speaker string

const (
	SpeakerUser    Speaker = "user"
	SpeakerContact Speaker = "contact"
)

// TranscriptSegment is one append-only entry in the live transcript log
type TranscriptSegment struct {
	SegmentID  string  `json:"segmentId"`
	CallID     string  `json:"callId"`
	Speaker    Speaker `json:"speaker"`
	Text       string  `json:"text"`
	Timestamp  int64   `json:"timestamp"` // monotonic ms within the call
	Confidence float64 `json:"confidence,omitempty"`
}

// SuggestionType classifies an AI coaching suggestion card
type SuggestionType string

const (
	SuggestionResponse SuggestionType = "response"
	SuggestionQuestion SuggestionType = "question"
	SuggestionAction   SuggestionType = "action"
	SuggestionInfo     SuggestionType = "info"
)

// Valid reports whether t is a known suggestion type.
func (t SuggestionType) Valid() bool {
	switch t {
	case SuggestionResponse, SuggestionQuestion, SuggestionAction, SuggestionInfo:
		return true
	}
	return false
}

// AISuggestion is a coaching card produced server-side during a call.
// Suggestions are never mutated, only appended and removed.
type AISuggestion struct {
	SuggestionID string         `json:"suggestionId"`
	CallID       string         `json:"callId"`
	Type         SuggestionType `json:"type"`
	Text         string         `json:"text"`
	Confidence   float64        `json:"confidence"` // 0-1
	Context      string         `json:"context,omitempty"`
	Timestamp    int64          `json:"timestamp"` // ms
}
