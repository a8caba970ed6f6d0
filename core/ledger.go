// SPDX-License-Identifier: Apache-2.0
package core

// ChainState is the ledger's externally-observable tip summary (§3 Data
// Model), shared under a reader-writer lock: the block-apply writer takes
// the exclusive lock, the miner/validator/RPC readers share it. Grounded on
// _examples/original_source/botho/src/consensus/validation.rs's
// TransactionValidator (which reads chain_state under an Arc<RwLock<...>>)
// and the teacher's locking style in consensus.go.

import (
	"errors"
	"sync"
)

var ErrChainStateUnavailable = errors.New("ledger: chain state unavailable")

// ChainState is the single-writer/multi-reader snapshot every validator and
// the miner consult.
type ChainState struct {
	Height           uint64
	TipHash          [32]byte
	TipTimestamp     uint64
	Difficulty       uint64
	TotalMined       uint64
	TotalFeesBurned  uint64
}

// Ledger owns ChainState plus the UTXO and spent-key-image sets behind a
// single reader-writer lock, per §5's concurrency model.
type Ledger struct {
	mu    sync.RWMutex
	state ChainState

	utxos       map[[32]byte]*UTXO
	keyImages   map[[32]byte]bool
}

// NewLedger starts a ledger at genesis (height 0, zero tip).
func NewLedger(genesisDifficulty uint64) *Ledger {
	return &Ledger{
		state: ChainState{
			Height:     0,
			Difficulty: genesisDifficulty,
		},
		utxos:     make(map[[32]byte]*UTXO),
		keyImages: make(map[[32]byte]bool),
	}
}

// Snapshot returns a copy of the current chain state under a shared lock.
func (l *Ledger) Snapshot() ChainState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// UTXO is a TxOut plus its provenance, per §3's data model.
type UTXO struct {
	Out              TxOut
	CreationHeight   uint64
	OutputIndex      uint32
	TxHash           [32]byte
	SubaddressIndex  uint32
	Bridged          bool
}

func utxoKey(txHash [32]byte, outputIndex uint32) [32]byte {
	var out [32]byte
	copy(out[:], txHash[:28])
	out[28] = byte(outputIndex)
	out[29] = byte(outputIndex >> 8)
	out[30] = byte(outputIndex >> 16)
	out[31] = byte(outputIndex >> 24)
	return out
}

// HasUTXO reports whether an output is present and unspent.
func (l *Ledger) HasUTXO(txHash [32]byte, outputIndex uint32) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.utxos[utxoKey(txHash, outputIndex)]
	return ok
}

// LookupUTXO fetches a UTXO by its creating tx hash and output index.
func (l *Ledger) LookupUTXO(txHash [32]byte, outputIndex uint32) (*UTXO, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	u, ok := l.utxos[utxoKey(txHash, outputIndex)]
	return u, ok
}

// IsKeyImageSpent checks the double-spend set.
func (l *Ledger) IsKeyImageSpent(keyImage *Point) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var k [32]byte
	copy(k[:], keyImage.Bytes())
	return l.keyImages[k]
}

// SpentInput names one consumed output (by its originating tx hash and
// output index) alongside the key image that proves the spend.
type SpentInput struct {
	TxHash      [32]byte
	OutputIndex uint32
	KeyImage    *Point
}

// ApplyBlock atomically inserts new outputs, removes spent UTXOs and marks
// their key images, and advances chain state. Callers take no other lock:
// the ledger is the sole writer of chain state (§3 Ownership rules), so
// "exactly-once block application" reduces to one critical section.
func (l *Ledger) ApplyBlock(newUTXOs []*UTXO, spent []SpentInput, newTip ChainState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, u := range newUTXOs {
		l.utxos[utxoKey(u.TxHash, u.OutputIndex)] = u
	}
	for _, s := range spent {
		delete(l.utxos, utxoKey(s.TxHash, s.OutputIndex))
		var k [32]byte
		copy(k[:], s.KeyImage.Bytes())
		l.keyImages[k] = true
	}
	l.state = newTip
}
