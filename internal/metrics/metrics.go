package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Metrics holds all application metrics
type Metrics struct {
	mu sync.RWMutex

	// Call metrics
	CallsStartedTotal int64
	CallsEndedTotal   int64
	CallsFailedTotal  int64
	AdapterEventsTotal int64

	// Feed metrics
	TranscriptSegmentsTotal int64
	SuggestionsTotal        int64
	FeedDroppedTotal        int64 // duplicate rows dropped at the feed boundary
	FeedErrorsTotal         int64

	// Ingest metrics
	IngestReceivedTotal int64
	IngestErrorsTotal   int64

	// Persistence metrics
	PersistenceErrorsTotal int64

	// WebSocket metrics
	WebSocketConnectionsTotal    int64
	WebSocketDisconnectionsTotal int64
	WebSocketMessagesTotal       int64
	activeConnections            int64

	// Broadcast metrics
	BroadcastCyclesTotal int64

	startTime time.Time
}

// Global metrics instance
var instance *Metrics
var once sync.Once

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{startTime: time.Now()}
	})
	return instance
}

// RecordCallStarted increments the started-call counter
func (m *Metrics) RecordCallStarted() {
	m.mu.Lock()
	m.CallsStartedTotal++
	m.mu.Unlock()
}

// RecordCallEnded increments the ended-call counter
func (m *Metrics) RecordCallEnded() {
	m.mu.Lock()
	m.CallsEndedTotal++
	m.mu.Unlock()
}

// RecordCallFailed increments the failed-call counter
func (m *Metrics) RecordCallFailed() {
	m.mu.Lock()
	m.CallsFailedTotal++
	m.mu.Unlock()
}

// RecordAdapterEvent increments the adapter event counter
func (m *Metrics) RecordAdapterEvent() {
	m.mu.Lock()
	m.AdapterEventsTotal++
	m.mu.Unlock()
}

// RecordTranscriptSegment increments the transcript segment counter
func (m *Metrics) RecordTranscriptSegment() {
	m.mu.Lock()
	m.TranscriptSegmentsTotal++
	m.mu.Unlock()
}

// RecordSuggestion increments the coaching suggestion counter
func (m *Metrics) RecordSuggestion() {
	m.mu.Lock()
	m.SuggestionsTotal++
	m.mu.Unlock()
}

// RecordFeedDropped counts a duplicate feed row dropped before the store
func (m *Metrics) RecordFeedDropped() {
	m.mu.Lock()
	m.FeedDroppedTotal++
	m.mu.Unlock()
}

// RecordFeedError increments the feed error counter
func (m *Metrics) RecordFeedError() {
	m.mu.Lock()
	m.FeedErrorsTotal++
	m.mu.Unlock()
}

// RecordIngestReceived increments the ingest counter
func (m *Metrics) RecordIngestReceived() {
	m.mu.Lock()
	m.IngestReceivedTotal++
	m.mu.Unlock()
}

// RecordIngestError increments the ingest error counter
func (m *Metrics) RecordIngestError() {
	m.mu.Lock()
	m.IngestErrorsTotal++
	m.mu.Unlock()
}

// RecordPersistenceError increments the persistence error counter
func (m *Metrics) RecordPersistenceError() {
	m.mu.Lock()
	m.PersistenceErrorsTotal++
	m.mu.Unlock()
}

// RecordWebSocketConnect increments connection counters
func (m *Metrics) RecordWebSocketConnect() {
	m.mu.Lock()
	m.WebSocketConnectionsTotal++
	m.activeConnections++
	m.mu.Unlock()
}

// RecordWebSocketDisconnect increments disconnection counter
func (m *Metrics) RecordWebSocketDisconnect() {
	m.mu.Lock()
	m.WebSocketDisconnectionsTotal++
	m.activeConnections--
	m.mu.Unlock()
}

// RecordWebSocketMessage increments message counter
func (m *Metrics) RecordWebSocketMessage() {
	m.mu.Lock()
	m.WebSocketMessagesTotal++
	m.mu.Unlock()
}

// RecordBroadcastCycle records one session broadcast cycle
func (m *Metrics) RecordBroadcastCycle() {
	m.mu.Lock()
	m.BroadcastCyclesTotal++
	m.mu.Unlock()
}

// GetActiveConnections returns current WebSocket connections
func (m *Metrics) GetActiveConnections() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeConnections
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		write := func(name string, value int64) {
			w.Write([]byte(name + " " + strconv.FormatInt(value, 10) + "\n"))
		}

		w.Write([]byte("callcoach_uptime_seconds " + strconv.FormatFloat(time.Since(m.startTime).Seconds(), 'f', 6, 64) + "\n"))

		write("callcoach_calls_started_total", m.CallsStartedTotal)
		write("callcoach_calls_ended_total", m.CallsEndedTotal)
		write("callcoach_calls_failed_total", m.CallsFailedTotal)
		write("callcoach_adapter_events_total", m.AdapterEventsTotal)

		write("callcoach_transcript_segments_total", m.TranscriptSegmentsTotal)
		write("callcoach_suggestions_total", m.SuggestionsTotal)
		write("callcoach_feed_dropped_total", m.FeedDroppedTotal)
		write("callcoach_feed_errors_total", m.FeedErrorsTotal)

		write("callcoach_ingest_received_total", m.IngestReceivedTotal)
		write("callcoach_ingest_errors_total", m.IngestErrorsTotal)
		write("callcoach_persistence_errors_total", m.PersistenceErrorsTotal)

		write("callcoach_websocket_connections_total", m.WebSocketConnectionsTotal)
		write("callcoach_websocket_disconnections_total", m.WebSocketDisconnectionsTotal)
		write("callcoach_websocket_active_connections", m.activeConnections)
		write("callcoach_websocket_messages_total", m.WebSocketMessagesTotal)

		write("callcoach_broadcast_cycles_total", m.BroadcastCyclesTotal)
	}
}
