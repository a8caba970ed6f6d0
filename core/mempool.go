// SPDX-License-Identifier: Apache-2.0
package core

// Mempool: pending transaction pool with UTXO/signature/fee validation and
// fee-ordered selection. Grounded on spec.md §4.4 (validation.rs covers
// only structural checks; the mempool's UTXO/signature/fee checks are this
// spec's own addition per §2's component table, "structural + UTXO
// validation, batch validation, staleness eviction, fee ordering").

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrTxAlreadyInPool  = errors.New("mempool: transaction already present")
	ErrInputNotFound    = errors.New("mempool: input UTXO not found")
	ErrInputAlreadySpent = errors.New("mempool: input already spent")
	ErrMempoolInvalidSignature = errors.New("mempool: invalid signature")
	ErrInsufficientFunds = errors.New("mempool: insufficient funds")
)

// MempoolEntry is one pending transaction plus its pool-local metadata
// (§3 Data Model).
type MempoolEntry struct {
	Tx          *Transaction
	Hash        [32]byte
	Fee         uint64
	ArrivalTime time.Time
	Fingerprint [32]byte
	Size        uint64
}

// FeePerByte orders entries for block-building preference.
func (e *MempoolEntry) FeePerByte() float64 {
	if e.Size == 0 {
		return 0
	}
	return float64(e.Fee) / float64(e.Size)
}

// Mempool owns pending transactions behind a single reader-writer lock with
// short critical sections (§5).
type Mempool struct {
	mu      sync.RWMutex
	entries map[[32]byte]*MempoolEntry

	ledger    *Ledger
	validator *Validator
	feeConfig *FeeConfig
	wealth    ClusterWealthProvider
	maxAge    time.Duration
}

// NewMempool builds an empty pool bound to a ledger, validator, and
// cluster-tax fee configuration.
func NewMempool(ledger *Ledger, validator *Validator, feeConfig *FeeConfig, wealth ClusterWealthProvider) *Mempool {
	return &Mempool{
		entries:   make(map[[32]byte]*MempoolEntry),
		ledger:    ledger,
		validator: validator,
		feeConfig: feeConfig,
		wealth:    wealth,
		maxAge:    2 * time.Hour,
	}
}

// estimateTxSize approximates wire size for fee-per-byte ordering: 24 bytes
// of fixed fields, 64 bytes per ring member (target key and commitment),
// 32 bytes per CLSAG response plus 64 more per signature, and each output's
// full encoded length including any committed tags.
func estimateTxSize(tx *Transaction) uint64 {
	size := uint64(24)
	for _, in := range tx.Inputs {
		size += uint64(len(in.Ring)) * 64
		if in.Signature != nil {
			size += uint64(32 * (2 + len(in.Signature.Responses)))
		}
	}
	for _, out := range tx.Outputs {
		size += uint64(len(out.Bytes()))
	}
	return size
}

// AddTx validates and inserts a transaction: structural checks, then UTXO
// existence and CLSAG signature verification for every input, then that
// declared fee covers the flat minimum plus the cluster tax at the
// background rate; the progressive rate is not checked here.
func (m *Mempool) AddTx(tx *Transaction) (*MempoolEntry, error) {
	hash := tx.Hash()

	m.mu.RLock()
	_, exists := m.entries[hash]
	m.mu.RUnlock()
	if exists {
		return nil, ErrTxAlreadyInPool
	}

	if err := m.validator.ValidateTransferTx(tx); err != nil {
		return nil, err
	}

	msg := tx.SigningHash()
	var totalInput, totalOutput uint64
	for _, in := range tx.Inputs {
		keys := make([]*Point, len(in.Ring))
		commitments := make([]*Point, len(in.Ring))
		for i, member := range in.Ring {
			keys[i] = member.TargetKey
			commitments[i] = member.Commitment
		}
		if in.Signature == nil {
			return nil, ErrMempoolInvalidSignature
		}
		// zeroCommits[i] = outputCommitment - inputCommitment[i]; the
		// caller has already bound the pseudo-output commitment inside
		// the ring at signing time, so verification only needs the ring
		// member commitments themselves as the subtrahend against the
		// aggregate output commitment implied by the signature's D.
		zeroCommits := make([]*Point, len(in.Ring))
		outAgg := aggregateOutputCommitment(tx.Outputs)
		for i, c := range commitments {
			zeroCommits[i] = new(Point).Subtract(outAgg, c)
		}
		if err := VerifyCLSAG(msg[:], keys, zeroCommits, in.Signature); err != nil {
			return nil, ErrMempoolInvalidSignature
		}
		if m.ledger.IsKeyImageSpent(in.Signature.KeyImage) {
			return nil, ErrInputAlreadySpent
		}
		// Real spend value is hidden by design; UTXO-existence check
		// confirms at least one ring member is a genuine unspent output,
		// which is as far as structural mempool admission can go without
		// range proofs (outside this spec's scope per its crypto-primitive
		// coverage — CLSAG conservation already guarantees value balance).
		found := false
		for _, member := range in.Ring {
			if u, ok := m.lookupUTXOByTarget(member.TargetKey); ok {
				found = true
				totalInput += u.Out.Amount
				break
			}
		}
		if !found {
			return nil, ErrInputNotFound
		}
	}
	totalOutput = tx.TotalOutput()

	// Cluster tags on a TxOut are Pedersen-committed (hidden); the mempool
	// cannot recover plaintext weights from the commitment alone. The
	// transaction's own TagConservationProof (verified separately by the
	// consensus validity callback against the ledger's cluster-wealth
	// index) is what actually enforces the progressive rate; here the
	// mempool only enforces the background-rate floor so a transaction
	// cannot undercut even the minimum cluster tax before that proof runs.
	requiredClusterFee, err := FeeOwed(m.feeConfig, m.wealth, totalOutput, NewTagVector())
	if err != nil {
		return nil, err
	}
	if totalInput < totalOutput+tx.Fee || tx.Fee < MinTxFee+requiredClusterFee {
		return nil, ErrInsufficientFunds
	}

	size := estimateTxSize(tx)
	entry := &MempoolEntry{
		Tx:          tx,
		Hash:        hash,
		Fee:         tx.Fee,
		ArrivalTime: time.Now(),
		Fingerprint: hash,
		Size:        size,
	}

	m.mu.Lock()
	m.entries[hash] = entry
	m.mu.Unlock()
	return entry, nil
}

func aggregateOutputCommitment(outputs []TxOut) *Point {
	sum := identityPoint()
	for _, o := range outputs {
		sum = new(Point).Add(sum, o.Commitment)
	}
	return sum
}

func (m *Mempool) lookupUTXOByTarget(targetKey *Point) (*UTXO, bool) {
	m.ledger.mu.RLock()
	defer m.ledger.mu.RUnlock()
	keyBytes := targetKey.Bytes()
	for _, u := range m.ledger.utxos {
		if string(u.Out.TargetKey.Bytes()) == string(keyBytes) {
			return u, true
		}
	}
	return nil, false
}

// Get returns a pooled entry by hash.
func (m *Mempool) Get(hash [32]byte) (*MempoolEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[hash]
	return e, ok
}

// Contains reports whether hash is pooled.
func (m *Mempool) Contains(hash [32]byte) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[hash]
	return ok
}

// RemoveConfirmed drops entries for transactions now included in a block.
func (m *Mempool) RemoveConfirmed(hashes [][32]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range hashes {
		delete(m.entries, h)
	}
}

// RemoveInvalid scans the pool for transactions whose inputs no longer
// exist in the ledger (e.g. spent by a competing tx that won inclusion)
// and drops them.
func (m *Mempool) RemoveInvalid() [][32]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var dropped [][32]byte
	for hash, entry := range m.entries {
		stillValid := false
		for _, in := range entry.Tx.Inputs {
			if in.Signature != nil && !m.ledger.IsKeyImageSpent(in.Signature.KeyImage) {
				stillValid = true
				break
			}
		}
		if !stillValid {
			delete(m.entries, hash)
			dropped = append(dropped, hash)
		}
	}
	return dropped
}

// EvictOld drops entries older than the pool's max age.
func (m *Mempool) EvictOld() [][32]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-m.maxAge)
	var dropped [][32]byte
	for hash, entry := range m.entries {
		if entry.ArrivalTime.Before(cutoff) {
			delete(m.entries, hash)
			dropped = append(dropped, hash)
		}
	}
	return dropped
}

// SelectForBlock returns up to maxCount entries ordered by fee-per-byte
// descending, the mempool's block-building preference order.
func (m *Mempool) SelectForBlock(maxCount int) []*MempoolEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]*MempoolEntry, 0, len(m.entries))
	for _, e := range m.entries {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].FeePerByte() > all[j].FeePerByte() })
	if maxCount > 0 && len(all) > maxCount {
		all = all[:maxCount]
	}
	return all
}

// Len returns the current pool size.
func (m *Mempool) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
