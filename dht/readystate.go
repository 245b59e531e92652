// Copyright (c) 2025 Shell Reserve developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package dht

import "time"

// StaleAfter is the window after which a routing-table node is no longer
// counted as "good" for readiness purposes.
const StaleAfter = 15 * time.Minute

// ReadyState reports the two-node-info split (IPv4/IPv6) required by §6:
// the substrate is considered ready once it has at least one good node on
// either address family.
type ReadyState struct {
	rt *RoutingTable
}

// NewReadyState binds a ReadyState to a routing table.
func NewReadyState(rt *RoutingTable) *ReadyState { return &ReadyState{rt: rt} }

// GoodCounts returns the current good IPv4/IPv6 node counts.
func (r *ReadyState) GoodCounts() (ipv4, ipv6 int) {
	return r.rt.CountGood(StaleAfter)
}

// Ready reports whether good_nodes_ipv4 + good_nodes_ipv6 >= 1.
func (r *ReadyState) Ready() bool {
	ipv4, ipv6 := r.GoodCounts()
	return ipv4+ipv6 >= 1
}
