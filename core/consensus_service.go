// SPDX-License-Identifier: Apache-2.0
package core

// Consensus service: drives one SCP slot per block, dynamic block timing,
// solo-mode bypass, and the tx cache backing the validity/combine
// callbacks. Grounded on
// _examples/original_source/botho/src/consensus/service.rs; style
// (logrus.Entry fields, sync.RWMutex-guarded shared state) grounded on the
// teacher's consensus.go.

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Dynamic block timing constants (§4.3). original_source's
// block::dynamic_timing module (referenced by service.rs) was not present
// in the retrieval pack; the threshold table below is this project's own,
// respecting spec.md's explicit bounds (MinBlockTimeSecs=3, descending
// threshold table).
const (
	MinBlockTimeSecs = 3
	MaxBlockTimeSecs = 20
	SmoothingWindow  = 20
)

// blockTimeLevel pairs a tx-rate threshold (tx/sec) with the block time to
// use once throughput reaches or exceeds it. Must stay sorted descending by
// Rate so CurrentSlotDuration's linear scan finds the first satisfied tier.
type blockTimeLevel struct {
	Rate      float64
	BlockTime uint64
}

var blockTimeLevels = []blockTimeLevel{
	{Rate: 50, BlockTime: MinBlockTimeSecs},
	{Rate: 20, BlockTime: 5},
	{Rate: 10, BlockTime: 8},
	{Rate: 5, BlockTime: 12},
	{Rate: 1, BlockTime: 15},
	{Rate: 0, BlockTime: MaxBlockTimeSecs},
}

// ConsensusConfig configures slot timing and batching.
type ConsensusConfig struct {
	SlotDuration         time.Duration
	MaxTxsPerSlot        int
	RebroadcastInterval  time.Duration
	DynamicTiming        bool
}

// DefaultConsensusConfig matches service.rs's defaults.
func DefaultConsensusConfig() ConsensusConfig {
	return ConsensusConfig{
		SlotDuration:        20 * time.Second,
		MaxTxsPerSlot:       100,
		RebroadcastInterval: 5 * time.Second,
		DynamicTiming:       true,
	}
}

// FixedTimingConfig disables dynamic timing at the given fixed duration.
func FixedTimingConfig(secs uint64) ConsensusConfig {
	cfg := DefaultConsensusConfig()
	cfg.SlotDuration = time.Duration(secs) * time.Second
	cfg.DynamicTiming = false
	return cfg
}

// IsAtMinBlockTime reports whether duration is pinned at the network
// minimum, the signal the fee engine cascades into EMA-driven adjustment.
func (c ConsensusConfig) IsAtMinBlockTime(d time.Duration) bool {
	return d.Seconds() <= float64(MinBlockTimeSecs)
}

// ConsensusEventKind discriminates the union emitted from NextEvent.
type ConsensusEventKind int

const (
	EventSlotExternalized ConsensusEventKind = iota
	EventBroadcastMessage
)

// ConsensusEvent is the outbound union: either a finalized slot or an SCP
// message the orchestrator must gossip.
type ConsensusEvent struct {
	Kind      ConsensusEventKind
	SlotIndex uint64
	Values    []ConsensusValue
	Message   *ScpMsg
}

// txCacheEntry caches the structured transaction rather than a serialized
// byte blob: this project has no committed wire codec for Transaction/
// MintingTx (spec.md's Non-goals explicitly leave block-serialization byte
// layout unspecified), and the mempool already keys entries by the *Transaction
// struct itself (see MempoolEntry), so the validity callback reuses that
// same in-memory representation instead of inventing a round-trip codec
// nothing else in this module needs.
type txCacheEntry struct {
	Tx          *Transaction
	Mining      *MintingTx
	IsMintingTx bool
}

type recentBlockInfo struct {
	Timestamp uint64
	TxCount   int
}

// sharedValidationState backs the validity callback: tx cache, the chain
// state snapshot it validates against, and the timing window.
type sharedValidationState struct {
	mu           sync.RWMutex
	txCache      map[[32]byte]txCacheEntry
	chainState   ChainState
	recentBlocks []recentBlockInfo
}

// ConsensusService owns the SCP node and the slot lifecycle around it.
type ConsensusService struct {
	mu sync.Mutex

	nodeID    NodeID
	quorum    QuorumSet
	scpNode   *ScpNode
	config    ConsensusConfig
	validator *Validator

	pending  map[ConsensusValue]struct{}
	proposed map[ConsensusValue]struct{}

	shared *sharedValidationState

	events          []ConsensusEvent
	lastSlotAttempt time.Time
	externalized    []ConsensusValue

	log *logrus.Entry
}

// NewConsensusService builds a service starting consensus at the next
// block height above the supplied chain state.
func NewConsensusService(nodeID NodeID, quorum QuorumSet, config ConsensusConfig, ledger *Ledger, emission EmissionScheduleFunc, log *logrus.Entry) *ConsensusService {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	initial := ledger.Snapshot()
	shared := &sharedValidationState{
		txCache:    make(map[[32]byte]txCacheEntry),
		chainState: initial,
	}
	validator := NewValidator(ledger, emission)

	svc := &ConsensusService{
		nodeID:          nodeID,
		quorum:          quorum,
		config:          config,
		validator:       validator,
		pending:         make(map[ConsensusValue]struct{}),
		proposed:        make(map[ConsensusValue]struct{}),
		shared:          shared,
		lastSlotAttempt: time.Now(),
		log:             log.WithField("component", "consensus"),
	}

	validity := func(v ConsensusValue) error {
		shared.mu.RLock()
		entry, ok := shared.txCache[v.TxHash]
		shared.mu.RUnlock()
		if !ok {
			return ErrNoInputs // not-in-cache: treated as a structural rejection
		}
		if entry.IsMintingTx {
			return validator.ValidateMintingTx(entry.Mining)
		}
		return validator.ValidateTransferTx(entry.Tx)
	}

	initialSlot := initial.Height + 1
	svc.scpNode = NewScpNode(nodeID, quorum, initialSlot, validity, combineValues)
	svc.log.WithField("slot", initialSlot).Debug("starting consensus at slot")
	return svc
}

// UpdateChainState swaps in a fresh chain-state snapshot, called whenever
// the ledger's tip changes.
func (s *ConsensusService) UpdateChainState(cs ChainState) {
	s.shared.mu.Lock()
	s.shared.chainState = cs
	s.shared.mu.Unlock()
}

// RecordBlock appends one finalized block's timing sample, trimming to
// SmoothingWindow entries.
func (s *ConsensusService) RecordBlock(timestamp uint64, txCount int) {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	s.shared.recentBlocks = append(s.shared.recentBlocks, recentBlockInfo{Timestamp: timestamp, TxCount: txCount})
	if len(s.shared.recentBlocks) > SmoothingWindow {
		s.shared.recentBlocks = s.shared.recentBlocks[len(s.shared.recentBlocks)-SmoothingWindow:]
	}
}

// CurrentSlotDuration computes the dynamic block time from recent
// throughput, or the fixed configured duration if dynamic timing is off.
func (s *ConsensusService) CurrentSlotDuration() time.Duration {
	if !s.config.DynamicTiming {
		return s.config.SlotDuration
	}
	s.shared.mu.RLock()
	blocks := s.shared.recentBlocks
	s.shared.mu.RUnlock()

	if len(blocks) < 2 {
		return s.config.SlotDuration
	}
	first, last := blocks[0], blocks[len(blocks)-1]
	windowTime := last.Timestamp - first.Timestamp
	if windowTime == 0 {
		return s.config.SlotDuration
	}
	total := 0
	for _, b := range blocks {
		total += b.TxCount
	}
	rate := float64(total) / float64(windowTime)

	blockTime := uint64(MaxBlockTimeSecs)
	for _, lvl := range blockTimeLevels {
		if rate >= lvl.Rate {
			blockTime = lvl.BlockTime
			break
		}
	}
	if blockTime < MinBlockTimeSecs {
		blockTime = MinBlockTimeSecs
	}
	return time.Duration(blockTime) * time.Second
}

// NodeID returns this service's consensus identity.
func (s *ConsensusService) NodeID() NodeID { return s.nodeID }

// CurrentSlot returns the slot index currently being closed.
func (s *ConsensusService) CurrentSlot() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scpNode.CurrentSlotIndex()
}

// SubmitTransaction caches a transfer tx and marks it pending.
func (s *ConsensusService) SubmitTransaction(txHash [32]byte, priority uint64, tx *Transaction) {
	value := ConsensusValueFromTransaction(txHash, priority)
	s.shared.mu.Lock()
	s.shared.txCache[txHash] = txCacheEntry{Tx: tx, IsMintingTx: false}
	s.shared.mu.Unlock()

	s.mu.Lock()
	s.pending[value] = struct{}{}
	s.mu.Unlock()
	s.log.WithField("tx_hash", txHash).Debug("transaction submitted for consensus")
}

// SubmitMiningTx caches a mining tx and marks it pending.
func (s *ConsensusService) SubmitMiningTx(txHash [32]byte, powPriority uint64, tx *MintingTx) {
	value := ConsensusValueFromMintingTx(txHash, powPriority)
	s.shared.mu.Lock()
	s.shared.txCache[txHash] = txCacheEntry{Mining: tx, IsMintingTx: true}
	s.shared.mu.Unlock()

	s.mu.Lock()
	s.pending[value] = struct{}{}
	s.mu.Unlock()
	s.log.WithField("tx_hash", txHash).Info("mining transaction submitted for consensus")
}

// HandleMessage dispatches an incoming SCP message, queuing a broadcast of
// our response (if any), then checks for externalization.
func (s *ConsensusService) HandleMessage(msg *ScpMsg) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, err := s.scpNode.HandleMessage(msg)
	if err != nil {
		s.log.WithError(err).Warn("scp message rejected")
		return err
	}
	if resp != nil {
		s.queueBroadcast(resp)
	}
	s.checkExternalizedLocked()
	return nil
}

// Tick drives periodic work: proposing pending values once the (possibly
// dynamic) slot duration has elapsed, and checking for externalization.
func (s *ConsensusService) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	duration := s.CurrentSlotDuration()
	if len(s.pending) > 0 && time.Since(s.lastSlotAttempt) >= duration {
		s.proposePendingLocked()
		s.lastSlotAttempt = time.Now()
	}
	s.checkExternalizedLocked()
}

func (s *ConsensusService) isSoloMode() bool {
	return s.quorum.IsSolo(s.nodeID)
}

func (s *ConsensusService) proposePendingLocked() {
	if len(s.pending) == 0 {
		return
	}
	candidates := make([]ConsensusValue, 0, len(s.pending))
	for v := range s.pending {
		candidates = append(candidates, v)
		if len(candidates) >= s.config.MaxTxsPerSlot {
			break
		}
	}
	toPropose := sortConsensusValues(candidates)

	allProposed := true
	for _, v := range toPropose {
		if _, ok := s.proposed[v]; !ok {
			allProposed = false
			break
		}
	}
	if allProposed {
		return
	}

	slot := s.scpNode.CurrentSlotIndex()
	s.log.WithFields(logrus.Fields{"slot": slot, "count": len(toPropose)}).Info("proposing values to SCP")

	if s.isSoloMode() {
		combined := combineValues(toPropose)
		for _, v := range combined {
			delete(s.pending, v)
		}
		s.externalized = combined
		s.events = append(s.events, ConsensusEvent{Kind: EventSlotExternalized, SlotIndex: slot, Values: combined})
		s.log.WithFields(logrus.Fields{"slot": slot, "count": len(combined)}).Info("solo mode: directly externalizing values")
		return
	}

	msg, err := s.scpNode.ProposeValues(toPropose)
	if err != nil {
		s.log.WithError(err).Warn("failed to propose values")
		return
	}
	for _, v := range toPropose {
		s.proposed[v] = struct{}{}
	}
	if msg != nil {
		s.queueBroadcast(msg)
	}
}

func (s *ConsensusService) checkExternalizedLocked() {
	slot := s.scpNode.CurrentSlotIndex()
	values, ok := s.scpNode.GetExternalizedValues(slot)
	if !ok || s.externalized != nil {
		return
	}
	for _, v := range values {
		delete(s.pending, v)
		delete(s.proposed, v)
	}
	s.externalized = values
	s.events = append(s.events, ConsensusEvent{Kind: EventSlotExternalized, SlotIndex: slot, Values: values})
	s.log.WithFields(logrus.Fields{"slot": slot, "count": len(values)}).Info("slot externalized")
}

func (s *ConsensusService) queueBroadcast(msg *ScpMsg) {
	s.events = append(s.events, ConsensusEvent{Kind: EventBroadcastMessage, SlotIndex: msg.SlotIndex, Message: msg})
}

// NextEvent pops the oldest pending event, if any.
func (s *ConsensusService) NextEvent() (ConsensusEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return ConsensusEvent{}, false
	}
	e := s.events[0]
	s.events = s.events[1:]
	return e, true
}

// GetExternalized returns the externalized value set for slot, if any,
// including a set externalized through the solo-mode bypass.
func (s *ConsensusService) GetExternalized(slot uint64) ([]ConsensusValue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.externalized != nil && slot == s.scpNode.CurrentSlotIndex() {
		return s.externalized, true
	}
	return s.scpNode.GetExternalizedValues(slot)
}

// GetTxEntry returns a cached transaction (transfer or mining) plus its
// minting flag.
func (s *ConsensusService) GetTxEntry(txHash [32]byte) (entry txCacheEntry, ok bool) {
	s.shared.mu.RLock()
	defer s.shared.mu.RUnlock()
	e, ok := s.shared.txCache[txHash]
	return e, ok
}

// AdvanceSlot clears externalized bookkeeping and, in solo mode, bumps the
// SCP node's slot index explicitly since the bypass path never goes
// through normal externalization.
func (s *ConsensusService) AdvanceSlot() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.externalized != nil {
		s.shared.mu.Lock()
		for _, v := range s.externalized {
			delete(s.shared.txCache, v.TxHash)
		}
		s.shared.mu.Unlock()
	}
	s.externalized = nil
	s.proposed = make(map[ConsensusValue]struct{})

	if s.isSoloMode() {
		next := s.scpNode.CurrentSlotIndex() + 1
		s.scpNode.ResetSlotIndex(next)
		s.log.WithField("slot", next).Info("advanced to next slot (solo mode)")
	}
}

// PendingCount returns the number of values awaiting proposal.
func (s *ConsensusService) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
