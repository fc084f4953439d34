package engine

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"custody_go/internal/domain"
	"custody_go/internal/infra"
)

// memJournal is an in-memory Journal and Source.
type memJournal struct {
	cmds       []Command
	checkpoint *Snapshot
	failAppend bool
}

func (m *memJournal) AppendCommand(_ context.Context, cmd Command) error {
	if m.failAppend {
		return errors.New("disk full")
	}
	m.cmds = append(m.cmds, cmd)
	return nil
}

func (m *memJournal) SaveCheckpoint(_ context.Context, snap Snapshot) error {
	m.checkpoint = &snap
	return nil
}

func (m *memJournal) LoadCheckpoint(context.Context) (Snapshot, bool, error) {
	if m.checkpoint == nil {
		return Snapshot{}, false, nil
	}
	return *m.checkpoint, true, nil
}

func (m *memJournal) LoadCommands(_ context.Context, afterSeq uint64) ([]Command, error) {
	var out []Command
	for _, c := range m.cmds {
		if c.Seq > afterSeq {
			out = append(out, c)
		}
	}
	return out, nil
}

var workload = []Command{
	{Op: OpMint, Caller: admin, To: "B", Amount: 1000},
	{Op: OpMint, Caller: admin, To: "D", Amount: 300},
	{Op: OpMintAsset, Caller: admin, To: "A"},
	{Op: OpMintAsset, Caller: admin, To: "A"},
	{Op: OpCreateListing, Caller: "A", AssetID: 1, Amount: 250},
	{Op: OpBuy, Caller: "B", AssetID: 1},
	{Op: OpBuy, Caller: "B", AssetID: 1}, // rejected: NotListed
	{Op: OpTransferAsset, Caller: "A", AssetID: 2, To: "C"},
	{Op: OpCreateListing, Caller: "C", AssetID: 2, Amount: 5000},
	{Op: OpBuy, Caller: "B", AssetID: 2}, // rejected: InsufficientBalance
	{Op: OpEscrowOpen, Caller: "D", To: "C"},
	{Op: OpEscrowDeposit, Caller: "D", EscrowID: 1, Amount: 100},
	{Op: OpEscrowApprove, Caller: "D", EscrowID: 1},
	{Op: OpEscrowApprove, Caller: "C", EscrowID: 1},
	{Op: OpEscrowRelease, Caller: "C", EscrowID: 1},
	{Op: OpTransfer, Caller: "B", To: "D", Amount: 50},
	{Op: OpBurn, Caller: "D", Amount: 10},
}

func TestRecover_JournalOnly(t *testing.T) {
	j := &memJournal{}
	live := NewSequencer(NewState(admin), j, nil, Options{Metrics: &infra.Metrics{}})
	for _, cmd := range workload {
		_, _ = live.Apply(context.Background(), cmd)
	}
	if len(j.cmds) != len(workload) {
		t.Fatalf("journaled %d commands, want %d (rejections included)", len(j.cmds), len(workload))
	}

	replayed := NewSequencer(NewState(admin), nil, nil, Options{Metrics: &infra.Metrics{}})
	n, err := replayed.Recover(context.Background(), j)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(workload) {
		t.Errorf("replayed %d, want %d", n, len(workload))
	}
	if !reflect.DeepEqual(live.Snapshot(), replayed.Snapshot()) {
		t.Errorf("replayed state differs:\n live   %+v\n replay %+v", live.Snapshot(), replayed.Snapshot())
	}
}

func TestRecover_FromCheckpoint(t *testing.T) {
	j := &memJournal{}
	live := NewSequencer(NewState(admin), j, nil, Options{CheckpointInterval: 5, Metrics: &infra.Metrics{}})
	for _, cmd := range workload {
		_, _ = live.Apply(context.Background(), cmd)
	}
	if j.checkpoint == nil || j.checkpoint.Seq != 15 {
		t.Fatalf("checkpoint = %+v, want seq 15", j.checkpoint)
	}

	replayed := NewSequencer(NewState(admin), nil, nil, Options{Metrics: &infra.Metrics{}})
	n, err := replayed.Recover(context.Background(), j)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("replayed %d, want 2", n)
	}
	if !reflect.DeepEqual(live.Snapshot(), replayed.Snapshot()) {
		t.Error("state rebuilt from checkpoint differs from live state")
	}
}

func TestReplayCommand_Gap(t *testing.T) {
	seq := newTestSequencer(nil, nil)

	if err := seq.ReplayCommand(Command{Seq: 1, Op: OpMint, Caller: admin, To: "A", Amount: 1}); err != nil {
		t.Fatal(err)
	}
	err := seq.ReplayCommand(Command{Seq: 3, Op: OpMint, Caller: admin, To: "A", Amount: 1})
	if !errors.Is(err, domain.ErrSequenceGap) {
		t.Fatalf("expected ErrSequenceGap, got %v", err)
	}
	if seq.NextSeq() != 2 {
		t.Errorf("NextSeq moved past the gap: %d", seq.NextSeq())
	}
}

func TestApply_JournalFailure(t *testing.T) {
	j := &memJournal{failAppend: true}
	seq := NewSequencer(NewState(admin), j, nil, Options{Metrics: &infra.Metrics{}})

	_, err := seq.Apply(context.Background(), Command{Op: OpMint, Caller: admin, To: "A", Amount: 5})
	if err == nil {
		t.Fatal("expected journal failure to reject the command")
	}
	seq.View(func(s *State) {
		if s.Ledger.Supply() != 0 {
			t.Error("unjournaled command was applied")
		}
	})
	if seq.NextSeq() != 1 {
		t.Errorf("NextSeq = %d, want 1", seq.NextSeq())
	}
}
