// SPDX-License-Identifier: Apache-2.0
package core

// ConsensusValue and ordering, split out of consensus_service.go for
// call-site clarity. Grounded on
// _examples/original_source/botho/src/consensus/value.rs's ConsensusValue
// (is_minting_tx/priority/tx_hash total order).

import "bytes"

// ConsensusValue is one candidate for slot externalization: either the
// single mining tx a proposer wants included, or a transfer tx, ordered per
// §3's total order (mining tx first, then priority desc, then hash).
type ConsensusValue struct {
	TxHash      [32]byte
	IsMintingTx bool
	Priority    uint64
}

// ConsensusValueFromTransaction builds a non-minting consensus value, priority set to the
// transfer's fee-per-byte-derived priority by the caller.
func ConsensusValueFromTransaction(txHash [32]byte, priority uint64) ConsensusValue {
	return ConsensusValue{TxHash: txHash, Priority: priority}
}

// ConsensusValueFromMintingTx builds a minting consensus value carrying its PoW priority.
func ConsensusValueFromMintingTx(txHash [32]byte, powPriority uint64) ConsensusValue {
	return ConsensusValue{TxHash: txHash, IsMintingTx: true, Priority: powPriority}
}

// Less implements the total order: minting txs first, then priority
// descending, then hash ascending as the final tie-break.
func (v ConsensusValue) Less(o ConsensusValue) bool {
	if v.IsMintingTx != o.IsMintingTx {
		return v.IsMintingTx
	}
	if v.Priority != o.Priority {
		return v.Priority > o.Priority
	}
	return bytes.Compare(v.TxHash[:], o.TxHash[:]) < 0
}

// sortConsensusValues orders values by Less: minting txs first, then
// transfer txs by priority desc, hash asc. It keeps every minting value;
// combineValues is what cuts them down to one.
func sortConsensusValues(values []ConsensusValue) []ConsensusValue {
	out := make([]ConsensusValue, len(values))
	copy(out, values)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Less(out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// combineValues implements the SCP combine callback: keep exactly one
// mining tx (the highest-priority one, hash tie-break), then all transfer
// txs sorted by priority desc then hash.
func combineValues(values []ConsensusValue) []ConsensusValue {
	var mining []ConsensusValue
	var transfers []ConsensusValue
	for _, v := range values {
		if v.IsMintingTx {
			mining = append(mining, v)
		} else {
			transfers = append(transfers, v)
		}
	}
	mining = sortConsensusValues(mining)
	if len(mining) > 1 {
		mining = mining[:1]
	}
	transfers = sortConsensusValues(transfers)
	combined := make([]ConsensusValue, 0, len(mining)+len(transfers))
	combined = append(combined, mining...)
	combined = append(combined, transfers...)
	return combined
}
