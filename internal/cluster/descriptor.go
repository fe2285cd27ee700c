// Package cluster implements the peer-to-peer handshake: every node probes
// its peers' view of which databases are clustered with which addresses, and
// refuses to come up if any two views disagree.
package cluster

import (
	"fmt"
	"sort"
)

// Descriptor maps a database name to the set of peer addresses (host:port)
// that replicate it, as loaded from cluster.conf. A database absent from
// the descriptor, or present with a single-entry peer list, is not
// clustered.
type Descriptor map[string][]string

// Clustered returns the subset of d whose databases have more than one
// peer — the only entries CLUSTER_INFO reports and the handshake compares.
// Single-node databases are not subject to the handshake.
func (d Descriptor) Clustered() Descriptor {
	out := make(Descriptor)
	for db, peers := range d {
		if len(peers) > 1 {
			out[db] = peers
		}
	}
	return out
}

// Equal reports whether two descriptors name the same databases, each with
// the same multiset of peers — order-insensitive, and a peer list that
// names the same address more than once never matches, on either side.
// Peers are never silently de-duplicated.
func (d Descriptor) Equal(other Descriptor) bool {
	if len(d) != len(other) {
		return false
	}
	for db, peers := range d {
		otherPeers, ok := other[db]
		if !ok {
			return false
		}
		if !sameMultiset(peers, otherPeers) {
			return false
		}
	}
	return true
}

func sameMultiset(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
		if i > 0 && sa[i] == sa[i-1] {
			return false
		}
	}
	return true
}

// AllPeers returns the union of every peer address named anywhere in d,
// excluding self, for the handshake to dial.
func (d Descriptor) AllPeers(self string) []string {
	seen := make(map[string]bool)
	var peers []string
	for _, list := range d {
		for _, p := range list {
			if p == self || seen[p] {
				continue
			}
			seen[p] = true
			peers = append(peers, p)
		}
	}
	sort.Strings(peers)
	return peers
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%v", map[string][]string(d))
}
