package storage

import "github.com/leadwire/callcoach/internal/types"

// Store defines the storage interface
type Store interface {
	SaveCallRecord(record types.CallRecord) error
	SaveTranscript(record types.TranscriptRecord) error
	GetCallRecords(dateKey string) ([]types.CallRecord, error)
	GetTranscript(callID string) (*types.TranscriptRecord, error)
	TruncateAll() error
}

// NoopStore is a no-op implementation when DynamoDB is disabled
type NoopStore struct{}

func NewNoopStore() *NoopStore { return &NoopStore{} }

func (s *NoopStore) SaveCallRecord(_ types.CallRecord) error                  { return nil }
func (s *NoopStore) SaveTranscript(_ types.TranscriptRecord) error            { return nil }
func (s *NoopStore) GetCallRecords(_ string) ([]types.CallRecord, error)      { return nil, nil }
func (s *NoopStore) GetTranscript(_ string) (*types.TranscriptRecord, error)  { return nil, nil }
func (s *NoopStore) TruncateAll() error                                       { return nil }
