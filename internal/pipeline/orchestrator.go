package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ParcMagScene/Exo/internal/metrics"
	"github.com/ParcMagScene/Exo/internal/reasoning"
	"github.com/ParcMagScene/Exo/internal/session"
	"github.com/ParcMagScene/Exo/internal/transcription"
)

// ApologyText is spoken when the reasoning backend is unreachable, so the
// assistant never goes silent after hearing a full utterance.
const ApologyText = "Désolé, je n'ai pas pu traiter votre demande."

// State describes what the orchestrator is currently doing.
type State int

const (
	// StateIdle means no utterance is being processed.
	StateIdle State = iota
	// StateListening means no utterance is in flight but at least one room
	// is still capturing audio. The orchestrator itself never enters this
	// state; observers derive it from the session registry.
	StateListening
	// StateProcessing means an utterance is in transcription or reasoning.
	StateProcessing
	// StateResponding means reply audio is being synthesized and dispatched.
	StateResponding
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateResponding:
		return "responding"
	default:
		return "unknown"
	}
}

// Transcriber converts captured audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, req *transcription.Request) (*transcription.Response, error)
}

// Reasoner turns a transcript into a reply and actions.
type Reasoner interface {
	Reason(ctx context.Context, req *reasoning.Request) (*reasoning.Response, error)
}

// Synthesizer renders reply text as PCM16 audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// ActionExecutor runs the structured actions attached to a reply.
type ActionExecutor interface {
	Execute(ctx context.Context, roomID string, actions []reasoning.Action)
}

// Dispatcher delivers response audio back to a room.
type Dispatcher interface {
	Send(roomID, sessionID string, pcm []byte) error
}

// Source yields utterances in processing order.
type Source interface {
	Next(ctx context.Context) (*session.PendingUtterance, error)
}

// Timeouts bounds each collaborator call within a cycle.
type Timeouts struct {
	Transcription time.Duration
	Reasoning     time.Duration
	Synthesis     time.Duration
	Actions       time.Duration
}

// Orchestrator runs the utterance processing loop: transcribe, reason,
// synthesize, dispatch. Exactly one utterance is in flight at a time.
type Orchestrator struct {
	source      Source
	transcriber Transcriber
	reasoner    Reasoner
	synthesizer Synthesizer
	executor    ActionExecutor
	dispatcher  Dispatcher
	timeouts    Timeouts

	minConfidence float64

	logger  *slog.Logger
	metrics *metrics.Metrics

	mu    sync.RWMutex
	state State

	cyclesCompleted uint64
	cyclesFailed    uint64
	lastLatency     time.Duration
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Source      Source
	Transcriber Transcriber
	Reasoner    Reasoner
	Synthesizer Synthesizer
	Executor    ActionExecutor
	Dispatcher  Dispatcher
	Timeouts    Timeouts

	// MinConfidence drops transcripts whose reported confidence falls
	// below it. Zero disables the check.
	MinConfidence float64

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// New creates an orchestrator from its dependencies.
func New(deps Deps) (*Orchestrator, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if deps.Transcriber == nil || deps.Reasoner == nil || deps.Synthesizer == nil {
		return nil, fmt.Errorf("transcriber, reasoner and synthesizer are required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	t := deps.Timeouts
	if t.Transcription <= 0 {
		t.Transcription = 30 * time.Second
	}
	if t.Reasoning <= 0 {
		t.Reasoning = 60 * time.Second
	}
	if t.Synthesis <= 0 {
		t.Synthesis = 30 * time.Second
	}
	if t.Actions <= 0 {
		t.Actions = 10 * time.Second
	}

	return &Orchestrator{
		source:        deps.Source,
		transcriber:   deps.Transcriber,
		reasoner:      deps.Reasoner,
		synthesizer:   deps.Synthesizer,
		executor:      deps.Executor,
		dispatcher:    deps.Dispatcher,
		timeouts:      t,
		minConfidence: deps.MinConfidence,
		logger:        deps.Logger,
		metrics:       deps.Metrics,
	}, nil
}

// State returns the orchestrator's current state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Stats reports processing counters.
type Stats struct {
	State            string        `json:"state"`
	CyclesCompleted  uint64        `json:"cycles_completed"`
	CyclesFailed     uint64        `json:"cycles_failed"`
	LastCycleLatency time.Duration `json:"last_cycle_latency"`
}

// GetStats returns current orchestrator statistics
func (o *Orchestrator) GetStats() Stats {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Stats{
		State:            o.state.String(),
		CyclesCompleted:  o.cyclesCompleted,
		CyclesFailed:     o.cyclesFailed,
		LastCycleLatency: o.lastLatency,
	}
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) recordCycle(failed bool, latency time.Duration) {
	o.mu.Lock()
	if failed {
		o.cyclesFailed++
	} else {
		o.cyclesCompleted++
	}
	o.lastLatency = latency
	o.mu.Unlock()
}

// Run processes utterances until ctx is done. It always returns to the
// idle state after each cycle, whatever the outcome.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("Pipeline orchestrator started")

	for {
		utterance, err := o.source.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				o.logger.Info("Pipeline orchestrator stopped")
				return nil
			}
			return fmt.Errorf("failed to fetch next utterance: %w", err)
		}

		o.process(ctx, utterance)
	}
}

// process runs one full utterance cycle. Latency is counted from the
// moment the capture ended, not from dequeue, so queueing delay shows up
// in the numbers.
func (o *Orchestrator) process(ctx context.Context, u *session.PendingUtterance) {
	received := u.ReceivedAt
	if received.IsZero() {
		received = time.Now()
	}
	failed := false

	o.setState(StateProcessing)
	defer func() {
		o.setState(StateIdle)
		latency := time.Since(received)
		o.recordCycle(failed, latency)
		o.metrics.RecordCycleLatency(latency.Seconds())
	}()

	logger := o.logger.With(
		slog.String("room_id", u.RoomID),
		slog.String("session_id", u.SessionID),
	)

	transcript, confidence, ok := o.transcribe(ctx, logger, u)
	if !ok {
		failed = true
		return
	}
	if transcript == "" {
		o.metrics.RecordEmptyTranscript()
		logger.Info("Empty transcript, nothing to answer")
		return
	}
	if o.minConfidence > 0 && confidence > 0 && confidence < o.minConfidence {
		o.metrics.RecordEmptyTranscript()
		logger.Info("Transcript below confidence threshold, nothing to answer",
			slog.Float64("confidence", confidence),
			slog.String("transcript", transcript),
		)
		return
	}

	reply, actions, apologetic := o.reason(ctx, logger, u, transcript)

	if o.executor != nil && len(actions) > 0 {
		actionCtx, cancel := context.WithTimeout(ctx, o.timeouts.Actions)
		o.executor.Execute(actionCtx, u.RoomID, actions)
		cancel()
	}

	if reply == "" {
		logger.Info("Reply has no spoken text, cycle complete",
			slog.Int("actions", len(actions)),
		)
		return
	}

	o.setState(StateResponding)

	pcm, ok := o.synthesize(ctx, logger, reply)
	if !ok {
		failed = true
		return
	}

	if err := o.dispatcher.Send(u.RoomID, u.SessionID, pcm); err != nil {
		o.metrics.RecordResponseDropped()
		logger.Warn("Failed to dispatch response",
			slog.String("error", err.Error()),
		)
		failed = true
		return
	}

	o.metrics.RecordResponseDispatched()
	logger.Info("Utterance cycle complete",
		slog.String("transcript", transcript),
		slog.Int("actions", len(actions)),
		slog.Bool("apology", apologetic),
		slog.Duration("latency", time.Since(received)),
	)
}

// transcribe runs the speech-to-text call. A failure here ends the cycle
// silently: without a transcript there is nothing meaningful to say back.
func (o *Orchestrator) transcribe(ctx context.Context, logger *slog.Logger, u *session.PendingUtterance) (string, float64, bool) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeouts.Transcription)
	defer cancel()

	start := time.Now()
	resp, err := o.transcriber.Transcribe(callCtx, &transcription.Request{
		SessionID:  u.SessionID,
		RoomID:     u.RoomID,
		PCM:        u.PCM,
		SampleRate: u.SampleRate,
	})
	o.metrics.RecordTranscription(time.Since(start).Seconds(), err != nil)

	if err != nil {
		logger.Error("Transcription failed",
			slog.String("error", err.Error()),
		)
		return "", 0, false
	}

	return strings.TrimSpace(resp.Text), resp.Confidence, true
}

// reason runs the language-model call. When the backend is unreachable the
// assistant falls back to a spoken apology instead of staying silent.
func (o *Orchestrator) reason(ctx context.Context, logger *slog.Logger, u *session.PendingUtterance, transcript string) (string, []reasoning.Action, bool) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeouts.Reasoning)
	defer cancel()

	start := time.Now()
	resp, err := o.reasoner.Reason(callCtx, &reasoning.Request{
		Transcript: transcript,
		RoomID:     u.RoomID,
		RoomLabel:  u.RoomLabel,
		SessionID:  u.SessionID,
	})
	o.metrics.RecordReasoning(time.Since(start).Seconds(), err != nil)

	if err != nil {
		logger.Error("Reasoning failed, falling back to apology",
			slog.String("error", err.Error()),
		)
		return ApologyText, nil, true
	}

	return strings.TrimSpace(resp.Reply), resp.Actions, false
}

// synthesize renders the reply text.
func (o *Orchestrator) synthesize(ctx context.Context, logger *slog.Logger, text string) ([]byte, bool) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeouts.Synthesis)
	defer cancel()

	start := time.Now()
	pcm, err := o.synthesizer.Synthesize(callCtx, text)
	o.metrics.RecordSynthesis(time.Since(start).Seconds(), err != nil)

	if err != nil {
		logger.Error("Synthesis failed",
			slog.String("error", err.Error()),
		)
		return nil, false
	}

	return pcm, true
}
