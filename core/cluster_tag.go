// SPDX-License-Identifier: Apache-2.0
package core

// Plaintext cluster-tag algebra: sparse wealth-attribution vectors that
// propagate through the UTXO graph. Grounded on
// _examples/original_source/cluster-tax/src/tag.rs, kept as ordered pairs
// rather than a map per spec.md's Design Notes (deterministic serialization,
// fast small-N iteration).

import "sort"

// ClusterId identifies a wealth-attribution bucket.
type ClusterId uint64

// TagWeight is parts-per-million; TagWeightScale (1_000_000) is 100%.
type TagWeight uint32

const (
	TagWeightScale   TagWeight = 1_000_000
	TagPruneThreshold TagWeight = 100
	TagMaxClusters   = 32
)

type tagEntry struct {
	Cluster ClusterId
	Weight  TagWeight
}

// TagVector is a sparse, ordered cluster-attribution vector. At most
// TagMaxClusters are tracked; the unattributed remainder is "background".
type TagVector struct {
	entries []tagEntry
}

// NewTagVector returns an empty (fully-background) vector.
func NewTagVector() *TagVector {
	return &TagVector{}
}

// SingleCluster returns a vector 100% attributed to one cluster.
func SingleCluster(cluster ClusterId) *TagVector {
	tv := NewTagVector()
	tv.Set(cluster, TagWeightScale)
	return tv
}

func (tv *TagVector) indexOf(cluster ClusterId) int {
	for i, e := range tv.entries {
		if e.Cluster == cluster {
			return i
		}
	}
	return -1
}

// Get returns the weight attributed to cluster, or 0 if untracked.
func (tv *TagVector) Get(cluster ClusterId) TagWeight {
	if i := tv.indexOf(cluster); i >= 0 {
		return tv.entries[i].Weight
	}
	return 0
}

// Set assigns a weight, pruning below TagPruneThreshold. Adding a cluster
// beyond TagMaxClusters drops the lightest tracked entry.
func (tv *TagVector) Set(cluster ClusterId, weight TagWeight) {
	i := tv.indexOf(cluster)
	if weight < TagPruneThreshold {
		if i >= 0 {
			tv.entries = append(tv.entries[:i], tv.entries[i+1:]...)
		}
		return
	}
	if i >= 0 {
		tv.entries[i].Weight = weight
		return
	}
	tv.entries = append(tv.entries, tagEntry{Cluster: cluster, Weight: weight})
	if len(tv.entries) > TagMaxClusters {
		tv.prune()
	}
}

// TotalAttributed sums all tracked weights, capped at TagWeightScale.
func (tv *TagVector) TotalAttributed() TagWeight {
	var sum uint64
	for _, e := range tv.entries {
		sum += uint64(e.Weight)
	}
	if sum > uint64(TagWeightScale) {
		return TagWeightScale
	}
	return TagWeight(sum)
}

// Background is the unattributed remainder.
func (tv *TagVector) Background() TagWeight {
	return TagWeightScale - tv.TotalAttributed()
}

// Len is the number of tracked clusters.
func (tv *TagVector) Len() int { return len(tv.entries) }

// IsEmpty reports whether the vector is fully background.
func (tv *TagVector) IsEmpty() bool { return len(tv.entries) == 0 }

// Entries returns tracked (cluster, weight) pairs sorted by cluster id.
func (tv *TagVector) Entries() []tagEntry {
	out := make([]tagEntry, len(tv.entries))
	copy(out, tv.entries)
	sort.Slice(out, func(i, j int) bool { return out[i].Cluster < out[j].Cluster })
	return out
}

// ApplyDecay shrinks every tracked weight by decayRate parts-per-million,
// moving the decayed mass into background.
func (tv *TagVector) ApplyDecay(decayRate TagWeight) {
	if decayRate == 0 {
		return
	}
	if decayRate > TagWeightScale {
		decayRate = TagWeightScale
	}
	for i := range tv.entries {
		w := tv.entries[i].Weight
		decayAmount := TagWeight(uint64(w) * uint64(decayRate) / uint64(TagWeightScale))
		if decayAmount > w {
			decayAmount = w
		}
		tv.entries[i].Weight = w - decayAmount
	}
	tv.prune()
}

// Scale multiplies every tracked weight by factor parts-per-million, used
// when splitting an output's value (and thus its tag mass) across outputs.
func (tv *TagVector) Scale(factor TagWeight) {
	for i := range tv.entries {
		w := tv.entries[i].Weight
		tv.entries[i].Weight = TagWeight(uint64(w) * uint64(factor) / uint64(TagWeightScale))
	}
	tv.prune()
}

// Mix blends incoming tags into this vector, value-weighted: the receiver's
// post-mix attribution is the weighted average of its current holdings and
// the incoming coins. This is how tag vectors propagate when coins merge.
func (tv *TagVector) Mix(selfValue uint64, incoming *TagVector, incomingValue uint64) {
	totalValue := selfValue + incomingValue
	if totalValue == 0 {
		return
	}
	seen := map[ClusterId]bool{}
	clusters := make([]ClusterId, 0, len(tv.entries)+len(incoming.entries))
	for _, e := range tv.entries {
		if !seen[e.Cluster] {
			seen[e.Cluster] = true
			clusters = append(clusters, e.Cluster)
		}
	}
	for _, e := range incoming.entries {
		if !seen[e.Cluster] {
			seen[e.Cluster] = true
			clusters = append(clusters, e.Cluster)
		}
	}
	for _, cluster := range clusters {
		selfWeight := uint64(tv.Get(cluster))
		incomingWeight := uint64(incoming.Get(cluster))
		numerator := selfValue*selfWeight + incomingValue*incomingWeight
		tv.Set(cluster, TagWeight(numerator/totalValue))
	}
	tv.prune()
}

// prune drops below-threshold tags and, if still over TagMaxClusters, keeps
// only the heaviest entries.
func (tv *TagVector) prune() {
	kept := tv.entries[:0]
	for _, e := range tv.entries {
		if e.Weight >= TagPruneThreshold {
			kept = append(kept, e)
		}
	}
	tv.entries = kept
	if len(tv.entries) <= TagMaxClusters {
		return
	}
	sort.Slice(tv.entries, func(i, j int) bool { return tv.entries[i].Weight > tv.entries[j].Weight })
	tv.entries = append([]tagEntry{}, tv.entries[:TagMaxClusters]...)
}
