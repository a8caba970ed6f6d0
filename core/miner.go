// SPDX-License-Identifier: Apache-2.0
package core

// PoW miner: a fixed pool of OS threads hashing candidate mining
// transactions against a shared "current work" pointer, delivering found
// transactions over a bounded channel (§5 Concurrency & Resource Model).
// Grounded on the mining-loop shape in
// _examples/original_source/botho/src/consensus/validation.rs's PoW target
// check; the thread-pool-plus-atomic-pointer structure is this project's
// own rendition of §5's explicit design note, since no Rust source file in
// the retrieval pack was included for the miner itself.

import (
	"encoding/binary"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// MinerWork is one unit of candidate work: a partially-filled MintingTx
// (nonce not yet set) plus its PoW priority, which downstream consensus
// submission uses as the tie-breaker among candidate mining txs.
type MinerWork struct {
	Template *MintingTx
	Priority uint64
}

// workHolder lets goroutines swap in new work via an atomic pointer instead
// of holding a lock while hashing (§5: "lock acquisition does not
// suspend", and hashing itself must never block on a lock).
type workHolder struct {
	ptr atomic.Pointer[MinerWork]
}

// Miner runs a configurable pool of hashing threads against the current
// work pointer, emitting any mining tx whose nonce clears the PoW target.
type Miner struct {
	threads int
	work    workHolder
	found   chan *MintingTx
	stop    chan struct{}
	wg      sync.WaitGroup
	log     *logrus.Entry
}

// NewMiner builds a miner with the given thread count (0 = number of CPU
// cores, matching the "default = core count" design note) and a bounded
// output channel.
func NewMiner(threads int, log *logrus.Entry) *Miner {
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Miner{
		threads: threads,
		found:   make(chan *MintingTx, 8),
		stop:    make(chan struct{}),
		log:     log.WithField("component", "miner"),
	}
}

// SetWork publishes new candidate work for every hashing thread to pick up
// on its next iteration. Safe to call concurrently with Start.
func (m *Miner) SetWork(w MinerWork) {
	m.work.ptr.Store(&w)
}

// ClearWork stops threads from hashing (e.g. quorum lost): they spin
// without a target until SetWork republishes one.
func (m *Miner) ClearWork() {
	m.work.ptr.Store(nil)
}

// Start launches the hashing thread pool. Each thread loops: read the
// current work pointer, try a nonce, check PoW, repeat. Threads never
// suspend; they only stop on Stop().
func (m *Miner) Start() {
	for i := 0; i < m.threads; i++ {
		m.wg.Add(1)
		seed := uint64(i) << 48
		go m.hashLoop(seed)
	}
}

func (m *Miner) hashLoop(nonceOffset uint64) {
	defer m.wg.Done()
	var nonce uint64
	for {
		select {
		case <-m.stop:
			return
		default:
		}

		w := m.work.ptr.Load()
		if w == nil {
			continue
		}
		candidate := *w.Template
		candidate.Nonce = nonceOffset + nonce
		nonce++

		if candidate.VerifyPoW() {
			select {
			case m.found <- &candidate:
			case <-m.stop:
				return
			}
			m.work.ptr.Store(nil) // this work unit is spent
		}
	}
}

// Found returns the channel mining results are delivered on.
func (m *Miner) Found() <-chan *MintingTx { return m.found }

// Stop signals every hashing thread to exit and waits for them.
func (m *Miner) Stop() {
	close(m.stop)
	m.wg.Wait()
}

// miningPriority derives a candidate's consensus priority from its PoW
// hash: smaller hash (under a fixed difficulty) means the leading 8 bytes,
// read big-endian and inverted, sorts harder work higher.
func miningPriority(tx *MintingTx) uint64 {
	hash := tx.Hash()
	leading := binary.BigEndian.Uint64(hash[:8])
	return ^leading
}
