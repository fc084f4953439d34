package engine

import (
	"context"
	"fmt"
	"log/slog"
)

// Source is where recovery reads persisted state from.
type Source interface {
	LoadCheckpoint(ctx context.Context) (Snapshot, bool, error)
	LoadCommands(ctx context.Context, afterSeq uint64) ([]Command, error)
}

// Recover rebuilds state from the last checkpoint plus every journaled
// command after it. It must run before Run. Returns the number of replayed
// commands.
func (s *Sequencer) Recover(ctx context.Context, src Source) (int, error) {
	snap, ok, err := src.LoadCheckpoint(ctx)
	if err != nil {
		return 0, fmt.Errorf("load checkpoint: %w", err)
	}
	if ok {
		s.mu.Lock()
		err := s.state.Restore(snap)
		if err == nil {
			s.nextSeq = snap.Seq + 1
			s.sinceCheckpoint = 0
		}
		s.mu.Unlock()
		if err != nil {
			return 0, fmt.Errorf("restore checkpoint %d: %w", snap.Seq, err)
		}
		slog.Info("Checkpoint restored", slog.Uint64("seq", snap.Seq))
	}

	cmds, err := src.LoadCommands(ctx, snap.Seq)
	if err != nil {
		return 0, fmt.Errorf("load journal: %w", err)
	}
	for i, cmd := range cmds {
		if err := s.ReplayCommand(cmd); err != nil {
			return i, err
		}
	}
	if len(cmds) > 0 {
		slog.Info("Journal replayed", slog.Int("commands", len(cmds)), slog.Uint64("next_seq", s.NextSeq()))
	}
	return len(cmds), nil
}
