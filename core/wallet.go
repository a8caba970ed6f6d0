// SPDX-License-Identifier: Apache-2.0
package core

// Wallet account and stealth-address scanner. Grounded on
// _examples/original_source/botho-wallet/src/transaction.rs's WalletScanner
// (check_ownership against default/change subaddresses) and AccountKey,
// reimplemented over this package's StealthKeys/RecoverPublicSubaddressSpendKey
// rather than transliterated from MobileCoin-style RistrettoPublic wrappers.

import (
	"sync"
)

// Account bundles a wallet's stealth keys and tracks the last height it has
// scanned, so repeated scans only cover new blocks.
type Account struct {
	Keys           *StealthKeys
	mu             sync.Mutex
	LastSyncHeight uint64
}

// NewAccount wraps a freshly-derived (or restored) stealth key set.
func NewAccount(keys *StealthKeys) *Account {
	return &Account{Keys: keys}
}

// OwnedUTXO is a UTXO recognized as belonging to this account, with the
// subaddress index recorded so the one-time private key can be recovered
// later without re-deriving it (§4.5 Scanner).
type OwnedUTXO struct {
	UTXO
	DerivationScalar *Scalar
}

// BlockOutputRef is one output as returned by chain_getOutputs (§6),
// carrying the identity the scanner needs without requiring the caller to
// fetch the whole block.
type BlockOutputRef struct {
	Height      uint64
	TxHash      [32]byte
	OutputIndex uint32
	Out         TxOut
}

// Scanner recovers a wallet's owned outputs from a stream of block outputs
// using stealth-address detection against the account's view key.
type Scanner struct {
	Account *Account
}

// NewScanner binds a scanner to an account's keys.
func NewScanner(account *Account) *Scanner {
	return &Scanner{Account: account}
}

// ScanOutputs attempts recovery against every known subaddress (default=0,
// change=1) for each candidate output, returning every match.
func (s *Scanner) ScanOutputs(refs []BlockOutputRef) []OwnedUTXO {
	var owned []OwnedUTXO
	for _, ref := range refs {
		matched, derivation, subIndex := s.checkOwnership(ref.Out.TargetKey, ref.Out.PublicKey)
		if !matched {
			continue
		}
		owned = append(owned, OwnedUTXO{
			UTXO: UTXO{
				Out:             ref.Out,
				CreationHeight:  ref.Height,
				OutputIndex:     ref.OutputIndex,
				TxHash:          ref.TxHash,
				SubaddressIndex: subIndex,
			},
			DerivationScalar: derivation,
		})
	}
	return owned
}

// checkOwnership tries the default then change subaddress, returning the
// derivation scalar needed later to recover the one-time spend key.
func (s *Scanner) checkOwnership(targetKey, publicKey *Point) (bool, *Scalar, uint32) {
	keys := s.Account.Keys
	if ok, scalar, _ := RecoverPublicSubaddressSpendKey(keys.ViewPrivate, targetKey, publicKey, SubaddressDefault, keys.SpendPublic); ok {
		return true, scalar, SubaddressDefault
	}
	if ok, scalar, _ := RecoverPublicSubaddressSpendKey(keys.ViewPrivate, targetKey, publicKey, SubaddressChange, keys.SpendPublic); ok {
		return true, scalar, SubaddressChange
	}
	return false, nil, 0
}

// RecoverSpendKey recovers the one-time private key for a matched output,
// the final step before it can be spent.
func (u *OwnedUTXO) RecoverSpendKey(account *Account) *Scalar {
	return RecoverOneTimePrivateKey(account.Keys.SpendPrivate, u.DerivationScalar)
}

// Balance sums a set of owned UTXOs.
func Balance(utxos []OwnedUTXO) uint64 {
	var total uint64
	for _, u := range utxos {
		total += u.Out.Amount
	}
	return total
}

// AdvanceSyncHeight records the new scan watermark under the account's
// lock, so concurrent scans and reads never observe a torn update.
func (a *Account) AdvanceSyncHeight(height uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if height > a.LastSyncHeight {
		a.LastSyncHeight = height
	}
}

// SyncHeight reads the current scan watermark.
func (a *Account) SyncHeight() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.LastSyncHeight
}
