package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"custody_go/internal/domain"
	"custody_go/internal/event"
	"custody_go/internal/infra"

	"github.com/google/uuid"
)

// Journal is the write-ahead log and checkpoint sink of the sequencer.
type Journal interface {
	AppendCommand(ctx context.Context, cmd Command) error
	SaveCheckpoint(ctx context.Context, snap Snapshot) error
}

// Options tunes a Sequencer. Zero values select defaults.
type Options struct {
	InboxSize          int
	CheckpointInterval uint64 // commands between checkpoints, 0 disables
	Metrics            *infra.Metrics
}

type request struct {
	ctx   context.Context
	cmd   Command
	reply chan reply
}

type reply struct {
	res Result
	err error
}

// Sequencer is the single ordering point for every state change. Commands
// are numbered in arrival order, journaled, then applied one at a time.
type Sequencer struct {
	inbox   chan request
	state   *State
	nextSeq uint64
	store   Journal
	metrics *infra.Metrics

	checkpointEvery uint64
	sinceCheckpoint uint64

	// Boundary: committed events go out through the outbox, never under mu
	onEvent  func(event.Event)
	outMu    sync.Mutex
	outbox   []event.Event
	outReady chan struct{}

	mu sync.RWMutex // held for writing while a command applies
}

// NewSequencer creates a sequencer over state. store and onEvent may be nil.
func NewSequencer(state *State, store Journal, onEvent func(event.Event), opts Options) *Sequencer {
	if opts.InboxSize <= 0 {
		opts.InboxSize = 1024
	}
	if opts.Metrics == nil {
		opts.Metrics = infra.GlobalMetrics
	}
	return &Sequencer{
		inbox:           make(chan request, opts.InboxSize),
		state:           state,
		nextSeq:         1,
		store:           store,
		metrics:         opts.Metrics,
		checkpointEvery: opts.CheckpointInterval,
		onEvent:         onEvent,
		outReady:        make(chan struct{}, 1),
	}
}

// Submit enqueues cmd and waits for its outcome. Once enqueued the command
// runs to completion even if ctx ends first; only the wait is abandoned.
func (s *Sequencer) Submit(ctx context.Context, cmd Command) (Result, error) {
	req := request{ctx: ctx, cmd: cmd, reply: make(chan reply, 1)}
	select {
	case s.inbox <- req:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.res, r.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Run starts the main loop. This MUST be run in a single goroutine.
func (s *Sequencer) Run(ctx context.Context) {
	slog.Info("Sequencer started", slog.Uint64("next_seq", s.NextSeq()))

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.DumpState("panic_dump.json")
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	go s.publishLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sequencer stopping...")
			return
		case req := <-s.inbox:
			res, err := s.Apply(req.ctx, req.cmd)
			req.reply <- reply{res: res, err: err}
		}
	}
}

// Apply sequences and executes cmd synchronously. Run uses it for every
// inbox request; tests may call it directly.
func (s *Sequencer) Apply(ctx context.Context, cmd Command) (Result, error) {
	start := time.Now()

	s.mu.Lock()
	cmd.Seq = s.nextSeq
	if cmd.RequestID == "" {
		cmd.RequestID = uuid.NewString()
	}

	// 1. WAL-first: a command that cannot be journaled is never applied
	if s.store != nil {
		if err := s.store.AppendCommand(context.WithoutCancel(ctx), cmd); err != nil {
			s.mu.Unlock()
			s.metrics.RecordError()
			slog.Error("Journal append failed", slog.Uint64("seq", cmd.Seq), slog.Any("error", err))
			return Result{}, &domain.OpError{Op: string(cmd.Op), Err: fmt.Errorf("journal: %w", err)}
		}
	}

	// 2. Apply
	res, evs, err := s.state.Apply(cmd, start.UnixMicro())
	s.nextSeq++
	s.sinceCheckpoint++

	// 3. Checkpoint
	if s.store != nil && s.checkpointEvery > 0 && s.sinceCheckpoint >= s.checkpointEvery {
		s.checkpoint(ctx, cmd.Seq)
	}
	s.mu.Unlock()

	s.metrics.RecordCommand(time.Since(start).Nanoseconds())
	if err != nil {
		s.metrics.RecordRejected()
		slog.Debug("Command rejected",
			slog.Uint64("seq", cmd.Seq),
			slog.String("op", string(cmd.Op)),
			slog.String("caller", string(cmd.Caller)),
			slog.Any("error", err))
		return Result{}, err
	}

	s.publish(evs)
	return res, nil
}

// must hold mu
func (s *Sequencer) checkpoint(ctx context.Context, seq uint64) {
	snap := s.state.Snapshot(seq)
	if err := s.store.SaveCheckpoint(context.WithoutCancel(ctx), snap); err != nil {
		// the journal still holds every command, so recovery stays possible
		slog.Error("Checkpoint failed", slog.Uint64("seq", seq), slog.Any("error", err))
		return
	}
	s.sinceCheckpoint = 0
	slog.Debug("Checkpoint saved", slog.Uint64("seq", seq))
}

func (s *Sequencer) publish(evs []event.Event) {
	if s.onEvent == nil || len(evs) == 0 {
		return
	}
	s.outMu.Lock()
	s.outbox = append(s.outbox, evs...)
	s.outMu.Unlock()

	select {
	case s.outReady <- struct{}{}:
	default:
	}
}

// publishLoop hands events to onEvent outside the apply path, so a handler
// may Submit new commands without deadlocking the loop.
func (s *Sequencer) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.outReady:
		}

		s.outMu.Lock()
		batch := s.outbox
		s.outbox = nil
		s.outMu.Unlock()

		for _, ev := range batch {
			s.onEvent(ev)
			s.metrics.RecordPublished()
		}
	}
}

// ReplayCommand applies a journaled command without journaling it again.
// Replay must respect sequence order.
func (s *Sequencer) ReplayCommand(cmd Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cmd.Seq != s.nextSeq {
		return fmt.Errorf("%w: expected %d, got %d", domain.ErrSequenceGap, s.nextSeq, cmd.Seq)
	}
	// the outcome was already returned to the original caller
	_, _, _ = s.state.Apply(cmd, 0)
	s.nextSeq++
	return nil
}

// NextSeq returns the sequence number the next command will receive.
func (s *Sequencer) NextSeq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextSeq
}

// View runs fn with read access to the state. fn must not retain it.
func (s *Sequencer) View(fn func(*State)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.state)
}

// Snapshot returns a copy of the state at the last applied sequence number.
func (s *Sequencer) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Snapshot(s.nextSeq - 1)
}

// DumpState writes the entire internal state to a file (for post-mortem).
// Called from the panic path, so it must not take mu.
func (s *Sequencer) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	b, err := json.MarshalIndent(s.state.Snapshot(s.nextSeq-1), "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	err = os.WriteFile(filename, b, 0644)
	if err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
