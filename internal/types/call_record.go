package types

// CallRecord represents a call for DynamoDB persistence
type CallRecord struct {
	DateKey        string  `json:"dateKey" dynamodbav:"DateKey"` // YYYY-MM-DD (partition key)
	CallID         string  `json:"callId" dynamodbav:"CallID"`   // sort key
	Direction      string  `json:"direction" dynamodbav:"Direction"`
	PhoneNumber    string  `json:"phoneNumber" dynamodbav:"PhoneNumber"`
	ContactID      string  `json:"contactId" dynamodbav:"ContactID"`
	ContactName    string  `json:"contactName" dynamodbav:"ContactName"`
	ProviderCallID string  `json:"providerCallId" dynamodbav:"ProviderCallID"`
	Status         string  `json:"status" dynamodbav:"Status"`
	CreatedAt      string  `json:"createdAt" dynamodbav:"CreatedAt"` // RFC3339
	StartedAt      string  `json:"startedAt" dynamodbav:"StartedAt"` // RFC3339
	EndedAt        string  `json:"endedAt" dynamodbav:"EndedAt"`     // RFC3339
	DurationSecs   float64 `json:"durationSecs" dynamodbav:"DurationSecs"`
	SegmentCount   int     `json:"segmentCount" dynamodbav:"SegmentCount"`
	SuggestionCount int    `json:"suggestionCount" dynamodbav:"SuggestionCount"`
}

// TranscriptRecord persists the full transcript of a completed call
type TranscriptRecord struct {
	CallID    string              `json:"callId" dynamodbav:"CallID"` // partition key
	DateKey   string              `json:"dateKey" dynamodbav:"DateKey"`
	Segments  []TranscriptSegment `json:"segments" dynamodbav:"Segments"`
	ExpiresAt int64               `json:"-" dynamodbav:"ExpiresAt"` // unix seconds, TTL attribute
}
