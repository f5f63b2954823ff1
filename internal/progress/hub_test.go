package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestHubBatchBySize verifies the hub flushes immediately once the batch size limit is reached.
func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		Buffer:        8,
		Batch:         2,
		FlushInterval: time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	evt := sampleEvent(StageRunStart)
	hub.Emit(evt)
	hub.Emit(evt)
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1 && len(sink.Batches()[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

// TestHubFlushByInterval verifies the periodic flush kicks in when the batch is small.
func TestHubFlushByInterval(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		Buffer:        4,
		Batch:         10,
		FlushInterval: 25 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageRunStart))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

// TestHubEmitNonBlockingWhenFull asserts Emit never blocks callers even with a full buffer.
func TestHubEmitNonBlockingWhenFull(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		cfg:    Config{},
		events: make(chan Event),
		logger: zap.NewNop(),
	}
	start := time.Now()
	hub.Emit(sampleEvent(StageRunStart))
	require.Less(t, time.Since(start), 50*time.Millisecond)
	require.Equal(t, int64(1), hub.dropped.Load())
}

// TestHubFlushOnClose ensures Close drains any buffered events before returning.
func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		Buffer:        4,
		Batch:         100,
		FlushInterval: time.Minute,
	}, sink)

	hub.Emit(sampleEvent(StageItem))

	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Len(t, sink.Batches()[0], 1)
}

// TestHubDiscardsInvalidEvents ensures events failing validation never reach sinks.
func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		Buffer:        4,
		Batch:         1,
		FlushInterval: time.Minute,
	}, sink)

	hub.Emit(Event{Stage: StageRunStart}) // no job id, no timestamp

	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.Batches())
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	base := sampleEvent(StageRunStart)
	cases := []struct {
		name    string
		mutate  func(*Event)
		wantErr string
	}{
		{name: "valid run start", mutate: func(*Event) {}},
		{
			name:    "missing job id",
			mutate:  func(e *Event) { e.JobID = "" },
			wantErr: "job id",
		},
		{
			name:    "listing requires locale",
			mutate:  func(e *Event) { e.Stage = StageListing; e.Locale = "" },
			wantErr: "locale",
		},
		{
			name:    "item requires outcome",
			mutate:  func(e *Event) { e.Stage = StageItem; e.Locale = "global" },
			wantErr: "outcome",
		},
		{
			name:    "unknown stage",
			mutate:  func(e *Event) { e.Stage = "SOMETHING_ELSE" },
			wantErr: "unknown stage",
		},
		{
			name:    "negative duration",
			mutate:  func(e *Event) { e.Dur = -time.Second },
			wantErr: "duration",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			evt := base
			tc.mutate(&evt)
			err := evt.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
}

func newStubSink() *stubSink {
	return &stubSink{batches: [][]Event{}}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyBatch := append([]Event(nil), batch...)
	s.batches = append(s.batches, copyBatch)
	return nil
}

func (s *stubSink) Close(context.Context) error {
	return nil
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

func sampleEvent(stage Stage) Event {
	evt := Event{
		JobID: "0198f2a6-2b1c-7d2e-9f10-6a5b4c3d2e1f",
		TS:    time.Now(),
		Stage: stage,
	}
	switch stage {
	case StageListing:
		evt.Locale = "global"
		evt.URL = "https://ucmeyewear.earth/category/all/87/?page=1"
	case StageItem:
		evt.Locale = "global"
		evt.Outcome = OutcomeCreated
	case StageImage:
		evt.Outcome = OutcomeStored
	}
	return evt
}
