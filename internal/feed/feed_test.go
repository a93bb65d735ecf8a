package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/leadwire/callcoach/internal/session"
	"github.com/leadwire/callcoach/internal/types"
)

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func publishSegment(t *testing.T, src Source, callID string, seg types.TranscriptSegment) {
	t.Helper()
	payload, err := json.Marshal(seg)
	if err != nil {
		t.Fatalf("marshal segment: %v", err)
	}
	if err := src.Publish(context.Background(), TranscriptChannel(callID), payload); err != nil {
		t.Fatalf("publish segment: %v", err)
	}
}

func publishSuggestion(t *testing.T, src Source, callID string, sg types.AISuggestion) {
	t.Helper()
	payload, err := json.Marshal(sg)
	if err != nil {
		t.Fatalf("marshal suggestion: %v", err)
	}
	if err := src.Publish(context.Background(), SuggestionChannel(callID), payload); err != nil {
		t.Fatalf("publish suggestion: %v", err)
	}
}

func TestTranscriptionFeedAppendsInOrder(t *testing.T) {
	store := session.NewStore()
	src := NewMemorySource()
	f := NewTranscriptionFeed(store, src, zerolog.Nop(), nil)
	defer f.Close()

	call := store.InitiateCall("+14155550100", "c1", "Dana Scott")
	if err := f.SetCall(call.CallID); err != nil {
		t.Fatalf("SetCall failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		publishSegment(t, src, call.CallID, types.TranscriptSegment{
			SegmentID: fmt.Sprintf("seg-%d", i),
			CallID:    call.CallID,
			Speaker:   types.SpeakerContact,
			Text:      fmt.Sprintf("line %d", i),
			Timestamp: int64(i * 1000),
		})
	}

	waitFor(t, func() bool { return len(store.Transcript()) == 5 }, "5 segments")

	got := store.Transcript()
	for i, seg := range got {
		if want := fmt.Sprintf("seg-%d", i); seg.SegmentID != want {
			t.Errorf("segment %d: got id %s, want %s", i, seg.SegmentID, want)
		}
	}
}

func TestTranscriptionFeedDeduplicatesBySegmentID(t *testing.T) {
	store := session.NewStore()
	src := NewMemorySource()
	f := NewTranscriptionFeed(store, src, zerolog.Nop(), nil)
	defer f.Close()

	call := store.InitiateCall("+14155550100", "", "")
	if err := f.SetCall(call.CallID); err != nil {
		t.Fatalf("SetCall failed: %v", err)
	}

	seg := types.TranscriptSegment{SegmentID: "seg-1", CallID: call.CallID, Speaker: types.SpeakerUser, Text: "hello"}
	publishSegment(t, src, call.CallID, seg)
	publishSegment(t, src, call.CallID, seg)
	publishSegment(t, src, call.CallID, types.TranscriptSegment{SegmentID: "seg-2", CallID: call.CallID, Speaker: types.SpeakerUser, Text: "again"})

	waitFor(t, func() bool { return len(store.Transcript()) == 2 }, "2 unique segments")

	// give the duplicate a chance to land if dedup were broken
	time.Sleep(20 * time.Millisecond)
	if got := len(store.Transcript()); got != 2 {
		t.Errorf("expected 2 segments after duplicate delivery, got %d", got)
	}
}

func TestTranscriptionFeedDropsMalformedRows(t *testing.T) {
	store := session.NewStore()
	src := NewMemorySource()
	f := NewTranscriptionFeed(store, src, zerolog.Nop(), nil)
	defer f.Close()

	call := store.InitiateCall("+14155550100", "", "")
	if err := f.SetCall(call.CallID); err != nil {
		t.Fatalf("SetCall failed: %v", err)
	}

	if err := src.Publish(context.Background(), TranscriptChannel(call.CallID), []byte("{not json")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	publishSegment(t, src, call.CallID, types.TranscriptSegment{SegmentID: "seg-1", CallID: call.CallID, Speaker: types.SpeakerUser, Text: "ok"})

	waitFor(t, func() bool { return len(store.Transcript()) == 1 }, "valid segment after malformed row")
}

func TestTranscriptionFeedRetargetStopsOldChannel(t *testing.T) {
	store := session.NewStore()
	src := NewMemorySource()
	f := NewTranscriptionFeed(store, src, zerolog.Nop(), nil)
	defer f.Close()

	first := store.InitiateCall("+14155550100", "", "")
	if err := f.SetCall(first.CallID); err != nil {
		t.Fatalf("SetCall failed: %v", err)
	}
	oldID := first.CallID

	second := store.InitiateCall("+14155550101", "", "")
	if err := f.SetCall(second.CallID); err != nil {
		t.Fatalf("retarget failed: %v", err)
	}

	// rows for the old call must not reach the store anymore
	publishSegment(t, src, oldID, types.TranscriptSegment{SegmentID: "stale-1", CallID: oldID, Speaker: types.SpeakerUser, Text: "stale"})
	publishSegment(t, src, second.CallID, types.TranscriptSegment{SegmentID: "fresh-1", CallID: second.CallID, Speaker: types.SpeakerUser, Text: "fresh"})

	waitFor(t, func() bool { return len(store.Transcript()) == 1 }, "fresh segment")
	if got := store.Transcript()[0].SegmentID; got != "fresh-1" {
		t.Errorf("expected fresh-1, got %s", got)
	}
}

func TestTranscriptionFeedDropsRowsForOtherCall(t *testing.T) {
	store := session.NewStore()
	src := NewMemorySource()
	f := NewTranscriptionFeed(store, src, zerolog.Nop(), nil)
	defer f.Close()

	call := store.InitiateCall("+14155550100", "", "")
	if err := f.SetCall(call.CallID); err != nil {
		t.Fatalf("SetCall failed: %v", err)
	}

	// misrouted row carries a different call id on the right channel
	publishSegment(t, src, call.CallID, types.TranscriptSegment{SegmentID: "x-1", CallID: "someone-else", Speaker: types.SpeakerUser, Text: "wrong call"})
	publishSegment(t, src, call.CallID, types.TranscriptSegment{SegmentID: "x-2", CallID: call.CallID, Speaker: types.SpeakerUser, Text: "right call"})

	waitFor(t, func() bool { return len(store.Transcript()) == 1 }, "only matching row")
	if got := store.Transcript()[0].SegmentID; got != "x-2" {
		t.Errorf("expected x-2, got %s", got)
	}
}

func TestTranscriptionFeedNotifies(t *testing.T) {
	store := session.NewStore()
	src := NewMemorySource()

	var mu sync.Mutex
	var pushed []types.TranscriptPush
	notify := func(p types.TranscriptPush) {
		mu.Lock()
		pushed = append(pushed, p)
		mu.Unlock()
	}

	f := NewTranscriptionFeed(store, src, zerolog.Nop(), notify)
	defer f.Close()

	call := store.InitiateCall("+14155550100", "", "")
	if err := f.SetCall(call.CallID); err != nil {
		t.Fatalf("SetCall failed: %v", err)
	}

	publishSegment(t, src, call.CallID, types.TranscriptSegment{SegmentID: "seg-1", CallID: call.CallID, Speaker: types.SpeakerContact, Text: "hi"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(pushed) == 1
	}, "notify callback")

	mu.Lock()
	defer mu.Unlock()
	if pushed[0].Type != types.PushTypeTranscript {
		t.Errorf("expected push type %s, got %s", types.PushTypeTranscript, pushed[0].Type)
	}
	if pushed[0].Segment.Text != "hi" {
		t.Errorf("unexpected segment text %q", pushed[0].Segment.Text)
	}
}

func TestCoachingFeedAppendsAndValidatesType(t *testing.T) {
	store := session.NewStore()
	src := NewMemorySource()
	f := NewCoachingFeed(store, src, zerolog.Nop(), nil)
	defer f.Close()

	call := store.InitiateCall("+14155550100", "", "")
	if err := f.SetCall(call.CallID); err != nil {
		t.Fatalf("SetCall failed: %v", err)
	}

	publishSuggestion(t, src, call.CallID, types.AISuggestion{SuggestionID: "sg-1", CallID: call.CallID, Type: types.SuggestionQuestion, Text: "ask about budget", Confidence: 0.9})
	publishSuggestion(t, src, call.CallID, types.AISuggestion{SuggestionID: "sg-2", CallID: call.CallID, Type: "bogus", Text: "dropped"})
	publishSuggestion(t, src, call.CallID, types.AISuggestion{SuggestionID: "sg-3", CallID: call.CallID, Type: types.SuggestionAction, Text: "schedule viewing", Confidence: 0.7})

	waitFor(t, func() bool { return len(store.Suggestions()) == 2 }, "2 valid suggestions")

	got := store.Suggestions()
	if got[0].SuggestionID != "sg-1" || got[1].SuggestionID != "sg-3" {
		t.Errorf("unexpected suggestion order: %s, %s", got[0].SuggestionID, got[1].SuggestionID)
	}
}

func TestCoachingFeedDeduplicates(t *testing.T) {
	store := session.NewStore()
	src := NewMemorySource()
	f := NewCoachingFeed(store, src, zerolog.Nop(), nil)
	defer f.Close()

	call := store.InitiateCall("+14155550100", "", "")
	if err := f.SetCall(call.CallID); err != nil {
		t.Fatalf("SetCall failed: %v", err)
	}

	sg := types.AISuggestion{SuggestionID: "sg-1", CallID: call.CallID, Type: types.SuggestionInfo, Text: "listing is off-market"}
	publishSuggestion(t, src, call.CallID, sg)
	publishSuggestion(t, src, call.CallID, sg)

	waitFor(t, func() bool { return len(store.Suggestions()) == 1 }, "1 suggestion")
	time.Sleep(20 * time.Millisecond)
	if got := len(store.Suggestions()); got != 1 {
		t.Errorf("expected 1 suggestion after duplicate delivery, got %d", got)
	}
}

func TestFeedsAreIndependentFailureDomains(t *testing.T) {
	store := session.NewStore()
	src := NewMemorySource()

	tf := NewTranscriptionFeed(store, src, zerolog.Nop(), nil)
	defer tf.Close()
	cf := NewCoachingFeed(store, src, zerolog.Nop(), nil)
	defer cf.Close()

	call := store.InitiateCall("+14155550100", "", "")
	if err := tf.SetCall(call.CallID); err != nil {
		t.Fatalf("transcript SetCall failed: %v", err)
	}
	if err := cf.SetCall(call.CallID); err != nil {
		t.Fatalf("coaching SetCall failed: %v", err)
	}

	// kill the coaching feed; transcripts must keep flowing
	cf.Close()

	publishSuggestion(t, src, call.CallID, types.AISuggestion{SuggestionID: "sg-1", CallID: call.CallID, Type: types.SuggestionInfo, Text: "unreachable"})
	publishSegment(t, src, call.CallID, types.TranscriptSegment{SegmentID: "seg-1", CallID: call.CallID, Speaker: types.SpeakerUser, Text: "still here"})

	waitFor(t, func() bool { return len(store.Transcript()) == 1 }, "transcript after coaching close")
	if got := len(store.Suggestions()); got != 0 {
		t.Errorf("expected no suggestions after close, got %d", got)
	}
}

func TestSetCallEmptyUnsubscribes(t *testing.T) {
	store := session.NewStore()
	src := NewMemorySource()
	f := NewTranscriptionFeed(store, src, zerolog.Nop(), nil)
	defer f.Close()

	call := store.InitiateCall("+14155550100", "", "")
	if err := f.SetCall(call.CallID); err != nil {
		t.Fatalf("SetCall failed: %v", err)
	}
	if err := f.SetCall(""); err != nil {
		t.Fatalf("SetCall(\"\") failed: %v", err)
	}

	publishSegment(t, src, call.CallID, types.TranscriptSegment{SegmentID: "seg-1", CallID: call.CallID, Speaker: types.SpeakerUser, Text: "dropped"})

	time.Sleep(30 * time.Millisecond)
	if got := len(store.Transcript()); got != 0 {
		t.Errorf("expected no segments after detach, got %d", got)
	}
}

func TestMemorySourceContextCancellation(t *testing.T) {
	src := NewMemorySource()
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := src.Subscribe(ctx, "ch")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	cancel()

	// channel closes once cancellation propagates
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.C:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription channel not closed after context cancel")
		}
	}
}

func TestSubscriptionUnsubscribeIdempotent(t *testing.T) {
	src := NewMemorySource()
	sub, err := src.Subscribe(context.Background(), "ch")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	sub.Unsubscribe()
	sub.Unsubscribe() // must not panic or double-close
}
