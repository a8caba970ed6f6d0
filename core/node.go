// SPDX-License-Identifier: Apache-2.0
package core

// Node orchestrator: wires discovery, consensus, mempool, miner, and RPC
// behind one event loop (§4.9). The libp2p transport substrate itself is
// out of scope (§1 Non-goals/Out-of-scope); this package depends on it only
// through the small Broadcaster/PeerSet seams below, grounded on the
// event-loop shape of
// _examples/original_source/cadence/src/node/mod.rs and
// _examples/original_source/botho/src/commands/run.rs.

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// QuorumMode selects how mining eligibility is gated (§4.9).
type QuorumMode int

const (
	// QuorumExplicit requires at least Threshold configured quorum members
	// connected.
	QuorumExplicit QuorumMode = iota
	// QuorumRecommended requires at least MinPeers connections, independent
	// of the consensus quorum set's membership.
	QuorumRecommended
)

// NodeConfig bundles the orchestrator's tunables; most fields mirror
// pkg/config.Config's Network/Consensus sections one level down.
type NodeConfig struct {
	QuorumMode      QuorumMode
	QuorumThreshold int
	QuorumMembers   []NodeID
	MinPeers        int

	ConsensusTick time.Duration
	StatusTick    time.Duration

	MinerThreads int
	MaxTxsPerBlock int
}

// DefaultNodeConfig matches §4.9's literal tick intervals.
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		QuorumMode:     QuorumRecommended,
		MinPeers:       1,
		ConsensusTick:  500 * time.Millisecond,
		StatusTick:     10 * time.Second,
		MaxTxsPerBlock: 100,
	}
}

// Broadcaster abstracts the gossip plane's publish side; the node
// orchestrator never touches libp2p directly.
type Broadcaster interface {
	BroadcastTransaction(tx *Transaction)
	BroadcastBlock(mining *MintingTx, transfers []*Transaction)
	BroadcastConsensus(msg *ScpMsg)
}

// PeerSet abstracts the swarm's connected-peer bookkeeping, just enough for
// quorum gating (§4.9) and onion circuit candidate selection.
type PeerSet interface {
	ConnectedCount() int
	ConnectedMembers(members []NodeID) int
	Candidates() []RelayPeerInfo
}

// QuorumStatus reports mining eligibility and a human-readable reason,
// matching the CLI/RPC-facing error text in spec.md §8 scenario 3.
type QuorumStatus struct {
	CanMine bool
	Reason  string
}

// CheckQuorum evaluates mining eligibility per §4.9's two modes.
func CheckQuorum(cfg NodeConfig, peers PeerSet) QuorumStatus {
	switch cfg.QuorumMode {
	case QuorumExplicit:
		have := peers.ConnectedMembers(cfg.QuorumMembers)
		if have < cfg.QuorumThreshold {
			return QuorumStatus{
				CanMine: false,
				Reason:  fmt.Sprintf("Quorum not satisfied (explicit mode): have %d, need %d nodes", have, cfg.QuorumThreshold),
			}
		}
		return QuorumStatus{CanMine: true, Reason: "quorum satisfied (explicit mode)"}
	default:
		have := peers.ConnectedCount()
		if have < cfg.MinPeers {
			return QuorumStatus{
				CanMine: false,
				Reason:  fmt.Sprintf("Quorum not satisfied (recommended mode): have %d, need %d peers", have, cfg.MinPeers),
			}
		}
		return QuorumStatus{CanMine: true, Reason: "quorum satisfied (recommended mode)"}
	}
}

// Node composes every subsystem this spec covers and drives the event
// loop. It owns no network transport; Broadcaster/PeerSet callers supply
// that.
type Node struct {
	cfg NodeConfig

	Ledger     *Ledger
	Mempool    *Mempool
	Consensus  *ConsensusService
	Miner      *Miner
	FeeBase    *DynamicFeeBase
	Router     *PrivacyRouter
	RateLimits *PeerRateLimiter
	Relay      *RelayHandler

	broadcaster Broadcaster
	peers       PeerSet

	mu        sync.RWMutex
	canMine   bool
	mining    bool
	quorumMsg string

	log *logrus.Entry
}

// NewNode wires every subsystem; callers still need to call Run to start
// the event loop.
func NewNode(cfg NodeConfig, ledger *Ledger, mempool *Mempool, consensus *ConsensusService, broadcaster Broadcaster, peers PeerSet, router *PrivacyRouter, rateLimits *PeerRateLimiter, relay *RelayHandler, log *logrus.Entry) *Node {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Node{
		cfg:         cfg,
		Ledger:      ledger,
		Mempool:     mempool,
		Consensus:   consensus,
		Miner:       NewMiner(cfg.MinerThreads, log),
		FeeBase:     DefaultDynamicFeeBase(),
		Router:      router,
		RateLimits:  rateLimits,
		Relay:       relay,
		broadcaster: broadcaster,
		peers:       peers,
		log:         log.WithField("component", "node"),
	}
}

// CanMine reports the last-evaluated quorum status.
func (n *Node) CanMine() (bool, string) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.canMine, n.quorumMsg
}

// refreshQuorum re-evaluates mining eligibility and starts/stops the miner
// on a transition, per spec.md §8 scenario 3 ("losing quorum stops mining;
// regaining it resumes").
func (n *Node) refreshQuorum() {
	status := CheckQuorum(n.cfg, n.peers)

	n.mu.Lock()
	wasMining := n.mining
	n.canMine = status.CanMine
	n.quorumMsg = status.Reason
	n.mu.Unlock()

	if status.CanMine && !wasMining {
		n.mu.Lock()
		n.mining = true
		n.mu.Unlock()
		n.log.Info("quorum satisfied, starting miner")
		n.refreshMiningWork()
	} else if !status.CanMine && wasMining {
		n.mu.Lock()
		n.mining = false
		n.mu.Unlock()
		n.log.WithField("reason", status.Reason).Info("quorum lost, stopping miner")
		n.Miner.ClearWork()
	}
}

// refreshMiningWork publishes a fresh mining-tx template to the miner
// built from the current chain tip.
func (n *Node) refreshMiningWork(minerKeys ...*Point) {
	cs := n.Ledger.Snapshot()
	var viewKey, spendKey *Point
	if len(minerKeys) == 2 {
		viewKey, spendKey = minerKeys[0], minerKeys[1]
	}
	template := &MintingTx{
		PrevBlockHash: cs.TipHash,
		BlockHeight:   cs.Height + 1,
		Difficulty:    cs.Difficulty,
		Timestamp:     uint64(time.Now().Unix()),
		MinerViewKey:  viewKey,
		MinerSpendKey: spendKey,
	}
	n.Miner.SetWork(MinerWork{Template: template})
}

// drainMinerOutput funnels found mining txs, plus the mempool's top-fee
// transfer txs, into the consensus service (§4.9's mining-output poll).
func (n *Node) drainMinerOutput() {
	select {
	case mined := <-n.Miner.Found():
		hash := mined.Hash()
		priority := miningPriority(mined)
		n.Consensus.SubmitMiningTx(hash, priority, mined)
		n.log.WithField("tx_hash", hash).Info("mined block candidate submitted to consensus")
		if n.broadcaster != nil {
			n.broadcaster.BroadcastBlock(mined, nil)
		}
		n.refreshMiningWork()
	default:
	}

	for _, entry := range n.Mempool.SelectForBlock(n.cfg.MaxTxsPerBlock) {
		n.Consensus.SubmitTransaction(entry.Hash, uint64(entry.FeePerByte()*1000), entry.Tx)
	}
}

// drainConsensusEvents applies externalized slots to the ledger/mempool/fee
// engine and rebroadcasts outgoing SCP messages.
func (n *Node) drainConsensusEvents() {
	for {
		event, ok := n.Consensus.NextEvent()
		if !ok {
			return
		}
		switch event.Kind {
		case EventBroadcastMessage:
			if n.broadcaster != nil && event.Message != nil {
				n.broadcaster.BroadcastConsensus(event.Message)
			}
		case EventSlotExternalized:
			n.applyExternalizedSlot(event)
		}
	}
}

func (n *Node) applyExternalizedSlot(event ConsensusEvent) {
	var mining *MintingTx
	var transferHashes [][32]byte
	txCount := 0
	for _, v := range event.Values {
		entry, ok := n.Consensus.GetTxEntry(v.TxHash)
		if !ok {
			continue
		}
		if entry.IsMintingTx {
			mining = entry.Mining
		} else {
			transferHashes = append(transferHashes, v.TxHash)
			txCount++
		}
	}

	n.Mempool.RemoveConfirmed(transferHashes)

	newDifficulty := n.Ledger.Snapshot().Difficulty
	newTip := ChainState{
		Height:       event.SlotIndex,
		TipTimestamp: uint64(time.Now().Unix()),
		Difficulty:   newDifficulty,
	}
	if mining != nil {
		newTip.TipHash = mining.Hash()
		newTip.TotalMined = n.Ledger.Snapshot().TotalMined + mining.Reward
	} else {
		newTip = n.Ledger.Snapshot()
		newTip.Height = event.SlotIndex
	}
	n.Ledger.ApplyBlock(nil, nil, newTip)

	n.Consensus.UpdateChainState(newTip)
	n.Consensus.RecordBlock(newTip.TipTimestamp, txCount)
	atMin := n.Consensus.CurrentSlotDuration().Seconds() <= float64(MinBlockTimeSecs)
	n.FeeBase.Update(txCount, n.cfg.MaxTxsPerBlock, atMin)

	n.Consensus.AdvanceSlot()
	n.log.WithFields(logrus.Fields{"height": newTip.Height, "tx_count": txCount}).Info("block finalized")
}

// Run drives the event loop until ctx is cancelled, per §5's cancellation
// contract: a shutdown flag (here, ctx.Done) checked every iteration.
func (n *Node) Run(ctx context.Context) {
	n.Miner.Start()
	defer n.Miner.Stop()

	consensusTicker := time.NewTicker(n.cfg.ConsensusTick)
	defer consensusTicker.Stop()
	statusTicker := time.NewTicker(n.cfg.StatusTick)
	defer statusTicker.Stop()

	n.refreshQuorum()

	for {
		select {
		case <-ctx.Done():
			n.log.Info("shutdown requested, draining")
			return
		case <-consensusTicker.C:
			n.refreshQuorum()
			n.Consensus.Tick()
			n.drainMinerOutput()
			n.drainConsensusEvents()
		case <-statusTicker.C:
			n.logStatus()
		}
	}
}

func (n *Node) logStatus() {
	cs := n.Ledger.Snapshot()
	canMine, reason := n.CanMine()
	n.log.WithFields(logrus.Fields{
		"height":  cs.Height,
		"pending": n.Consensus.PendingCount(),
		"mempool": n.Mempool.Len(),
		"can_mine": canMine,
		"reason":   reason,
	}).Info("status")
}

// SubmitTransaction validates and enqueues a wallet-submitted transaction,
// returning its hash on success (mempool_submit's RPC behavior, §6).
func (n *Node) SubmitTransaction(tx *Transaction) ([32]byte, error) {
	entry, err := n.Mempool.AddTx(tx)
	if err != nil {
		return [32]byte{}, err
	}
	if n.broadcaster != nil {
		n.broadcaster.BroadcastTransaction(tx)
	}
	return entry.Hash, nil
}

// NullClusterWealthProvider reports zero wealth for every cluster: a
// minimal ClusterWealthProvider for single-node/test deployments that
// haven't wired a cluster-wealth index yet. Every transfer is then charged
// BackgroundRateBps, which is the correct answer when no wealth is tracked.
type NullClusterWealthProvider struct{}

// ClusterWealth always returns zero.
func (NullClusterWealthProvider) ClusterWealth(ClusterId) (uint64, error) { return 0, nil }

// StaticPeerSet is a fixed-membership PeerSet for single-node deployments
// (solo mining) and tests: every named member is always "connected".
type StaticPeerSet struct {
	Members []NodeID
}

// ConnectedCount reports the static membership size.
func (s StaticPeerSet) ConnectedCount() int { return len(s.Members) }

// ConnectedMembers reports how many of the requested members are present
// in this static set.
func (s StaticPeerSet) ConnectedMembers(members []NodeID) int {
	set := make(map[NodeID]struct{}, len(s.Members))
	for _, m := range s.Members {
		set[m] = struct{}{}
	}
	count := 0
	for _, m := range members {
		if _, ok := set[m]; ok {
			count++
		}
	}
	return count
}

// Candidates returns no relay candidates: a static peer set carries no
// bandwidth/NAT/subnet metadata for onion circuit selection.
func (s StaticPeerSet) Candidates() []RelayPeerInfo { return nil }
