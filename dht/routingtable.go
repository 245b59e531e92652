// Copyright (c) 2025 Shell Reserve developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package dht

import (
	"crypto/rand"
	"net"
	"sync"
	"time"
)

// NodeIDSize is the width, in bytes, of a routing-table node identifier:
// 160 bits, matching mainline-DHT-style Kademlia overlays.
const NodeIDSize = 20

// BucketSize is the maximum number of nodes a single k-bucket holds (k).
const BucketSize = 8

// NodeID identifies a peer in the routing table's 160-bit ID space.
type NodeID [NodeIDSize]byte

// RandomNodeID returns a cryptographically random NodeID, used for
// ephemeral user-node identities (§4.3 "Bootstrap identity").
func RandomNodeID() NodeID {
	var id NodeID
	_, _ = rand.Read(id[:])
	return id
}

func xorDistance(a, b NodeID) NodeID {
	var d NodeID
	for i := range a {
		d[i] = a[i] ^ b[i]
	}
	return d
}

func leadingZeroBits(id NodeID) int {
	bits := 0
	for _, b := range id {
		if b == 0 {
			bits += 8
			continue
		}
		for mask := byte(0x80); mask > 0; mask >>= 1 {
			if b&mask != 0 {
				return bits
			}
			bits++
		}
	}
	return bits
}

// Node is a peer known to this node's routing table.
type Node struct {
	ID          NodeID
	Addr        net.Addr
	IsIPv6      bool
	LastSeen    time.Time
	LastFailure time.Time
	Failures    int
}

// Good reports whether a node is considered healthy: seen recently and not
// repeatedly unreachable.
func (n *Node) Good(now time.Time, staleAfter time.Duration) bool {
	if n.Failures >= 3 {
		return false
	}
	return now.Sub(n.LastSeen) < staleAfter
}

// bucket holds up to BucketSize nodes whose distance from the local ID
// falls in the same leading-zero-bit range.
type bucket struct {
	nodes []*Node
}

// RoutingTable is a Kademlia k-bucket table keyed by XOR distance from a
// local NodeID.
type RoutingTable struct {
	mu      sync.RWMutex
	localID NodeID
	buckets [NodeIDSize*8 + 1]*bucket
}

// NewRoutingTable returns an empty RoutingTable rooted at localID.
func NewRoutingTable(localID NodeID) *RoutingTable {
	return &RoutingTable{localID: localID}
}

func (rt *RoutingTable) bucketFor(id NodeID) *bucket {
	idx := leadingZeroBits(xorDistance(rt.localID, id))
	if rt.buckets[idx] == nil {
		rt.buckets[idx] = &bucket{}
	}
	return rt.buckets[idx]
}

// Add inserts or refreshes a node. If its bucket is full and the new node
// is not already present, the least-recently-seen entry is evicted only
// when it is no longer good; otherwise the new node is dropped and Add
// returns false.
func (rt *RoutingTable) Add(n *Node) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	b := rt.bucketFor(n.ID)
	for _, existing := range b.nodes {
		if existing.ID == n.ID {
			existing.Addr = n.Addr
			existing.LastSeen = n.LastSeen
			existing.Failures = 0
			return true
		}
	}
	if len(b.nodes) < BucketSize {
		b.nodes = append(b.nodes, n)
		return true
	}
	// Bucket full: evict the stalest entry if it looks dead.
	oldestIdx := -1
	var oldest time.Time
	for i, existing := range b.nodes {
		if oldestIdx == -1 || existing.LastSeen.Before(oldest) {
			oldestIdx = i
			oldest = existing.LastSeen
		}
	}
	if oldestIdx >= 0 && !b.nodes[oldestIdx].Good(time.Now(), 15*time.Minute) {
		b.nodes[oldestIdx] = n
		return true
	}
	return false
}

// Remove drops a node by ID from the table.
func (rt *RoutingTable) Remove(id NodeID) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	b := rt.bucketFor(id)
	for i, existing := range b.nodes {
		if existing.ID == id {
			b.nodes = append(b.nodes[:i], b.nodes[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveStale evicts nodes not seen within staleAfter, returning the count
// removed.
func (rt *RoutingTable) RemoveStale(staleAfter time.Duration) int {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	now := time.Now()
	removed := 0
	for _, b := range rt.buckets {
		if b == nil {
			continue
		}
		kept := b.nodes[:0]
		for _, n := range b.nodes {
			if n.Good(now, staleAfter) {
				kept = append(kept, n)
			} else {
				removed++
			}
		}
		b.nodes = kept
	}
	return removed
}

// GetClosest returns up to k nodes with the smallest XOR distance to
// target.
func (rt *RoutingTable) GetClosest(target NodeID, k int) []*Node {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	all := rt.allLocked()
	// Simple insertion sort by distance; routing tables here are small
	// (BucketSize * 161 buckets at most), so an O(n^2) sort is cheap
	// and keeps this code straightforward.
	for i := 1; i < len(all); i++ {
		j := i
		for j > 0 && less(xorDistance(target, all[j].ID), xorDistance(target, all[j-1].ID)) {
			all[j], all[j-1] = all[j-1], all[j]
			j--
		}
	}
	if k > len(all) {
		k = len(all)
	}
	return all[:k]
}

func less(a, b NodeID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func (rt *RoutingTable) allLocked() []*Node {
	var all []*Node
	for _, b := range rt.buckets {
		if b == nil {
			continue
		}
		all = append(all, b.nodes...)
	}
	return all
}

// GetAllNodes returns every node currently in the table.
func (rt *RoutingTable) GetAllNodes() []*Node {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.allLocked()
}

// Size returns the total number of nodes across all buckets.
func (rt *RoutingTable) Size() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return len(rt.allLocked())
}

// CountGood returns (ipv4Good, ipv6Good) counts among nodes considered
// healthy, feeding ReadyState's computation.
func (rt *RoutingTable) CountGood(staleAfter time.Duration) (ipv4, ipv6 int) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	now := time.Now()
	for _, n := range rt.allLocked() {
		if !n.Good(now, staleAfter) {
			continue
		}
		if n.IsIPv6 {
			ipv6++
		} else {
			ipv4++
		}
	}
	return ipv4, ipv6
}
