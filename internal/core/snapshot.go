package core

import (
	"time"

	"FolioLedger/internal/fund"
)

// Snapshot is the full in-memory core state at a sequence boundary.
// On warm restart the core loads the latest snapshot and replays the
// event log from Sequence+1.
type Snapshot struct {
	Sequence        int64            `json:"sequence"`
	StateHash       []byte           `json:"state_hash"`
	Funds           []*fund.Snapshot `json:"funds"`
	SequenceState   map[string]int64 `json:"sequence_state"`
	IdempotencyKeys []string         `json:"idempotency_keys"`
	CreatedAt       time.Time        `json:"created_at"`
}

// snapshotWarmKeys bounds how many recent dedup keys ride a snapshot.
const snapshotWarmKeys = 100_000

// StateHash returns the hash of the last applied command.
func (c *FolioCore) StateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

// Snapshot captures the current core state.
func (c *FolioCore) Snapshot() *Snapshot {
	hash := c.hasher.GetPrevHash()
	snap := &Snapshot{
		Sequence:        c.sequence,
		StateHash:       hash[:],
		SequenceState:   c.sequenceValidator.AllExpectedSequences(),
		IdempotencyKeys: c.idempotency.RecentKeys(snapshotWarmKeys),
		CreatedAt:       time.Now(),
	}
	for _, f := range c.funds {
		snap.Funds = append(snap.Funds, f.Snapshot())
	}
	return snap
}

// RestoreFromSnapshot rebuilds core state. The caller replays the event
// log from snap.Sequence+1 afterwards.
func (c *FolioCore) RestoreFromSnapshot(snap *Snapshot) error {
	c.sequence = snap.Sequence
	if len(snap.StateHash) == 32 {
		var hash [32]byte
		copy(hash[:], snap.StateHash)
		c.hasher.SetPrevHash(hash)
	}

	c.funds = make(map[string]*fund.Fund, len(snap.Funds))
	for _, fs := range snap.Funds {
		f, err := fund.Restore(fs)
		if err != nil {
			return err
		}
		c.funds[f.ID] = f
	}

	for partition, seq := range snap.SequenceState {
		c.sequenceValidator.SetExpectedSequence(partition, seq)
	}
	c.idempotency.WarmFromKeys(snap.IdempotencyKeys)
	return nil
}
