package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ParcMagScene/Exo/internal/reasoning"
	"github.com/ParcMagScene/Exo/internal/session"
	"github.com/ParcMagScene/Exo/internal/transcription"
)

type fakeSource struct {
	ch chan *session.PendingUtterance
}

func (s *fakeSource) Next(ctx context.Context) (*session.PendingUtterance, error) {
	select {
	case u := <-s.ch:
		return u, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type fakeTranscriber struct {
	text       string
	confidence float64
	err        error

	mu    sync.Mutex
	calls []*transcription.Request
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, req *transcription.Request) (*transcription.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &transcription.Response{Text: f.text, Confidence: f.confidence}, nil
}

type fakeReasoner struct {
	reply   string
	actions []reasoning.Action
	err     error

	mu    sync.Mutex
	calls []*reasoning.Request
}

func (f *fakeReasoner) Reason(ctx context.Context, req *reasoning.Request) (*reasoning.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &reasoning.Response{Reply: f.reply, Actions: f.actions}, nil
}

func (f *fakeReasoner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSynthesizer struct {
	pcm []byte
	err error

	mu    sync.Mutex
	texts []string
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.pcm, nil
}

type fakeExecutor struct {
	mu      sync.Mutex
	rooms   []string
	actions [][]reasoning.Action
}

func (f *fakeExecutor) Execute(ctx context.Context, roomID string, actions []reasoning.Action) {
	f.mu.Lock()
	f.rooms = append(f.rooms, roomID)
	f.actions = append(f.actions, actions)
	f.mu.Unlock()
}

type dispatched struct {
	roomID    string
	sessionID string
	pcm       []byte
}

type fakeDispatcher struct {
	err error

	mu    sync.Mutex
	sends []dispatched
}

func (f *fakeDispatcher) Send(roomID, sessionID string, pcm []byte) error {
	f.mu.Lock()
	f.sends = append(f.sends, dispatched{roomID: roomID, sessionID: sessionID, pcm: pcm})
	f.mu.Unlock()
	return f.err
}

type fixture struct {
	source        *fakeSource
	transcriber   *fakeTranscriber
	reasoner      *fakeReasoner
	synthesizer   *fakeSynthesizer
	executor      *fakeExecutor
	dispatcher    *fakeDispatcher
	minConfidence float64
}

func newFixture() *fixture {
	return &fixture{
		source:      &fakeSource{ch: make(chan *session.PendingUtterance, 8)},
		transcriber: &fakeTranscriber{text: "allume la lumière"},
		reasoner:    &fakeReasoner{reply: "c'est fait"},
		synthesizer: &fakeSynthesizer{pcm: []byte{0x01, 0x02, 0x03, 0x04}},
		executor:    &fakeExecutor{},
		dispatcher:  &fakeDispatcher{},
	}
}

func (f *fixture) orchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	o, err := New(Deps{
		Source:        f.source,
		Transcriber:   f.transcriber,
		Reasoner:      f.reasoner,
		Synthesizer:   f.synthesizer,
		Executor:      f.executor,
		Dispatcher:    f.dispatcher,
		MinConfidence: f.minConfidence,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return o
}

func testUtterance(roomID, sessionID string) *session.PendingUtterance {
	// 40 chunks of 25ms at 16 kHz, one second of audio in total.
	return &session.PendingUtterance{
		RoomID:     roomID,
		SessionID:  sessionID,
		PCM:        make([]byte, 40*800),
		SampleRate: 16000,
		Frames:     40,
		ReceivedAt: time.Now(),
	}
}

func TestProcessFullCycle(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(t)

	o.process(context.Background(), testUtterance("cuisine", "cuisine-7"))

	if len(f.transcriber.calls) != 1 {
		t.Fatalf("Expected 1 transcription call, got %d", len(f.transcriber.calls))
	}
	req := f.transcriber.calls[0]
	if req.RoomID != "cuisine" || req.SessionID != "cuisine-7" {
		t.Errorf("Transcription request identity mismatch: %+v", req)
	}
	if len(req.PCM) != 40*800 {
		t.Errorf("Expected full utterance audio, got %d bytes", len(req.PCM))
	}

	if f.reasoner.callCount() != 1 {
		t.Fatalf("Expected 1 reasoning call, got %d", f.reasoner.callCount())
	}
	if got := f.reasoner.calls[0].Transcript; got != "allume la lumière" {
		t.Errorf("Expected transcript forwarded, got '%s'", got)
	}

	if len(f.synthesizer.texts) != 1 || f.synthesizer.texts[0] != "c'est fait" {
		t.Errorf("Expected reply synthesized, got %v", f.synthesizer.texts)
	}

	if len(f.dispatcher.sends) != 1 {
		t.Fatalf("Expected 1 dispatch, got %d", len(f.dispatcher.sends))
	}
	send := f.dispatcher.sends[0]
	if send.roomID != "cuisine" || send.sessionID != "cuisine-7" {
		t.Errorf("Response routed to wrong target: %+v", send)
	}

	if o.State() != StateIdle {
		t.Errorf("Expected idle state after cycle, got %s", o.State())
	}
	if stats := o.GetStats(); stats.CyclesCompleted != 1 || stats.CyclesFailed != 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestProcessTranscriptionFailureStaysSilent(t *testing.T) {
	f := newFixture()
	f.transcriber.err = errors.New("backend down")
	o := f.orchestrator(t)

	o.process(context.Background(), testUtterance("salon", "salon-1"))

	if f.reasoner.callCount() != 0 {
		t.Error("Expected no reasoning call after transcription failure")
	}
	if len(f.dispatcher.sends) != 0 {
		t.Error("Expected no dispatch after transcription failure")
	}
	if stats := o.GetStats(); stats.CyclesFailed != 1 {
		t.Errorf("Expected 1 failed cycle, got %+v", stats)
	}
	if o.State() != StateIdle {
		t.Errorf("Expected idle state, got %s", o.State())
	}
}

func TestProcessEmptyTranscriptSkipsCycle(t *testing.T) {
	f := newFixture()
	f.transcriber.text = "   "
	o := f.orchestrator(t)

	o.process(context.Background(), testUtterance("salon", "salon-1"))

	if f.reasoner.callCount() != 0 {
		t.Error("Expected no reasoning call for empty transcript")
	}
	if len(f.dispatcher.sends) != 0 {
		t.Error("Expected no dispatch for empty transcript")
	}
	if stats := o.GetStats(); stats.CyclesCompleted != 1 || stats.CyclesFailed != 0 {
		t.Errorf("Empty transcript is not a failure: %+v", stats)
	}
}

func TestProcessLowConfidenceTranscriptSkipsCycle(t *testing.T) {
	f := newFixture()
	f.transcriber.confidence = 0.2
	f.minConfidence = 0.5
	o := f.orchestrator(t)

	o.process(context.Background(), testUtterance("salon", "salon-1"))

	if f.reasoner.callCount() != 0 {
		t.Error("Expected no reasoning call for low-confidence transcript")
	}
	if len(f.dispatcher.sends) != 0 {
		t.Error("Expected no dispatch for low-confidence transcript")
	}
	if stats := o.GetStats(); stats.CyclesCompleted != 1 || stats.CyclesFailed != 0 {
		t.Errorf("Low-confidence transcript is not a failure: %+v", stats)
	}
}

func TestProcessUnreportedConfidenceIsTrusted(t *testing.T) {
	f := newFixture()
	f.transcriber.confidence = 0
	f.minConfidence = 0.5
	o := f.orchestrator(t)

	o.process(context.Background(), testUtterance("salon", "salon-1"))

	if f.reasoner.callCount() != 1 {
		t.Errorf("Expected a reasoning call when no confidence is reported, got %d", f.reasoner.callCount())
	}
	if len(f.dispatcher.sends) != 1 {
		t.Errorf("Expected a dispatched response, got %d sends", len(f.dispatcher.sends))
	}
}

func TestProcessLatencyCountedFromCaptureEnd(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(t)

	u := testUtterance("salon", "salon-1")
	u.ReceivedAt = time.Now().Add(-2 * time.Second)
	o.process(context.Background(), u)

	if got := o.GetStats().LastCycleLatency; got < 2*time.Second {
		t.Errorf("Expected latency to include queueing delay, got %v", got)
	}
}

func TestProcessReasoningFailureSpeaksApology(t *testing.T) {
	f := newFixture()
	f.reasoner.err = errors.New("model overloaded")
	o := f.orchestrator(t)

	o.process(context.Background(), testUtterance("salon", "salon-1"))

	if len(f.synthesizer.texts) != 1 || f.synthesizer.texts[0] != ApologyText {
		t.Errorf("Expected apology synthesized, got %v", f.synthesizer.texts)
	}
	if len(f.dispatcher.sends) != 1 {
		t.Fatalf("Expected apology dispatched, got %d sends", len(f.dispatcher.sends))
	}
	if stats := o.GetStats(); stats.CyclesCompleted != 1 {
		t.Errorf("Apology path still completes the cycle: %+v", stats)
	}
}

func TestProcessSynthesisFailureDropsResponse(t *testing.T) {
	f := newFixture()
	f.synthesizer.err = errors.New("voice unavailable")
	o := f.orchestrator(t)

	o.process(context.Background(), testUtterance("salon", "salon-1"))

	if len(f.dispatcher.sends) != 0 {
		t.Error("Expected no dispatch after synthesis failure")
	}
	if stats := o.GetStats(); stats.CyclesFailed != 1 {
		t.Errorf("Expected 1 failed cycle, got %+v", stats)
	}
}

func TestProcessDispatchFailureCountsAsFailed(t *testing.T) {
	f := newFixture()
	f.dispatcher.err = errors.New("room not connected")
	o := f.orchestrator(t)

	o.process(context.Background(), testUtterance("salon", "salon-1"))

	if stats := o.GetStats(); stats.CyclesFailed != 1 {
		t.Errorf("Expected 1 failed cycle, got %+v", stats)
	}
	if o.State() != StateIdle {
		t.Errorf("Expected idle state, got %s", o.State())
	}
}

func TestProcessExecutesActions(t *testing.T) {
	f := newFixture()
	f.reasoner.actions = []reasoning.Action{
		{Name: "home.light_on", Args: map[string]string{"entity": "salon_plafond"}},
	}
	o := f.orchestrator(t)

	o.process(context.Background(), testUtterance("salon", "salon-1"))

	if len(f.executor.rooms) != 1 || f.executor.rooms[0] != "salon" {
		t.Errorf("Expected actions executed for salon, got %v", f.executor.rooms)
	}
	if len(f.executor.actions[0]) != 1 || f.executor.actions[0][0].Name != "home.light_on" {
		t.Errorf("Expected home.light_on executed, got %+v", f.executor.actions)
	}
}

func TestProcessActionOnlyReplySkipsSynthesis(t *testing.T) {
	f := newFixture()
	f.reasoner.reply = ""
	f.reasoner.actions = []reasoning.Action{{Name: "music.pause"}}
	o := f.orchestrator(t)

	o.process(context.Background(), testUtterance("salon", "salon-1"))

	if len(f.executor.rooms) != 1 {
		t.Error("Expected actions executed")
	}
	if len(f.synthesizer.texts) != 0 {
		t.Error("Expected no synthesis for empty reply")
	}
	if len(f.dispatcher.sends) != 0 {
		t.Error("Expected no dispatch for empty reply")
	}
}

func TestRunProcessesQueueAndStopsOnCancel(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	f.source.ch <- testUtterance("salon", "salon-1")
	f.source.ch <- testUtterance("chambre", "chambre-1")

	deadline := time.After(2 * time.Second)
	for {
		f.dispatcher.mu.Lock()
		n := len(f.dispatcher.sends)
		f.dispatcher.mu.Unlock()
		if n == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("Timed out waiting for dispatches, got %d", n)
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
