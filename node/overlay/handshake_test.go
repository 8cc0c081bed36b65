// Copyright 2026 The P2P Authors
// This file is part of the P2P library.
//
// The P2P library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The P2P library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the P2P library. If not, see <http://www.gnu.org/licenses/>.

package overlay

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BinaryBand/P2P/common"
)

func containsAddress(addrs []common.Address, want common.Address) bool {
	for _, a := range addrs {
		if a == want {
			return true
		}
	}
	return false
}

func TestAdmissionOnConnect(t *testing.T) {
	net := newMemNetwork()
	a := newTestNode(t, net, "adm-a", testConfig())
	b := newTestNode(t, net, "adm-b", testConfig())

	net.connect(a.tr, b.tr)

	assert.Eventually(t, func() bool {
		return containsAddress(a.hs.Peers(), b.tr.self) && containsAddress(b.hs.Peers(), a.tr.self)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAdmissionWrongPassphrase(t *testing.T) {
	net := newMemNetwork()

	cfgA := testConfig()
	cfgA.Passphrase = "correct horse"
	cfgB := testConfig()
	cfgB.Passphrase = "battery staple"

	a := newTestNode(t, net, "wp-a", cfgA)
	b := newTestNode(t, net, "wp-b", cfgB)

	net.connect(a.tr, b.tr)

	// The stamped handshake never verifies, so neither side admits the other.
	time.Sleep(700 * time.Millisecond)
	assert.Empty(t, a.hs.Peers())
	assert.Empty(t, b.hs.Peers())
}

func TestDisconnectEvictsPeer(t *testing.T) {
	net := newMemNetwork()
	a := newTestNode(t, net, "dc-a", testConfig())
	b := newTestNode(t, net, "dc-b", testConfig())

	net.connect(a.tr, b.tr)
	require.Eventually(t, func() bool {
		return containsAddress(a.hs.Peers(), b.tr.self)
	}, 2*time.Second, 10*time.Millisecond)

	a.tr.fireDisconnected(b.tr.self)
	assert.Eventually(t, func() bool {
		return !containsAddress(a.hs.Peers(), b.tr.self)
	}, time.Second, 10*time.Millisecond)
}

func TestPulseRefreshesAndEvicts(t *testing.T) {
	net := newMemNetwork()
	a := newTestNode(t, net, "pl-a", testConfig())
	b := newTestNode(t, net, "pl-b", testConfig())
	admitAll(a, b)

	// A live peer answers the pulse and stays.
	require.NoError(t, a.hs.pulse(context.Background(), b.tr.self))
	assert.True(t, containsAddress(a.hs.Peers(), b.tr.self))

	// A dead peer fails it and leaves the table.
	b.tr.setDown(true)
	require.Error(t, a.hs.pulse(context.Background(), b.tr.self))
	assert.False(t, containsAddress(a.hs.Peers(), b.tr.self))
}

func TestStaleRequiresPulseBeforeRequest(t *testing.T) {
	net := newMemNetwork()
	a := newTestNode(t, net, "fr-a", testConfig())
	b := newTestNode(t, net, "fr-b", testConfig())

	// beta is entirely absent from alpha's table: the outbound request must
	// be preceded by a successful pulse, which also admits beta.
	require.False(t, containsAddress(a.hs.Peers(), b.tr.self))

	_, err := a.hs.SendRequest(context.Background(), b.tr.self,
		&Request{Type: NearestPeersRequestMsg, N: 1, Hash: "probe"})
	require.NoError(t, err)
	assert.True(t, containsAddress(a.hs.Peers(), b.tr.self))
}

func TestRequestToDeadPeerFailsFast(t *testing.T) {
	net := newMemNetwork()
	a := newTestNode(t, net, "dead-a", testConfig())
	b := newTestNode(t, net, "dead-b", testConfig())
	b.tr.setDown(true)

	_, err := a.hs.SendRequest(context.Background(), b.tr.self,
		&Request{Type: StoreRequestMsg, Data: "x"})
	require.Error(t, err)
	assert.False(t, containsAddress(a.hs.Peers(), b.tr.self))
}

func TestPulseLoopEvictsSilentPeer(t *testing.T) {
	net := newMemNetwork()

	cfg := testConfig()
	cfg.PulseInterval = 30 * time.Millisecond
	cfg.PulseFreshness = 10 * time.Millisecond

	a := buildTestNode(t, net, "loop-a", cfg)
	a.hs.jitterMax = time.Millisecond
	a.start(t)

	b := newTestNode(t, net, "loop-b", testConfig())
	a.hs.peers.Register(b.tr.self)
	b.tr.setDown(true)

	assert.Eventually(t, func() bool {
		return !containsAddress(a.hs.Peers(), b.tr.self)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPulseLoopKeepsLivePeerFresh(t *testing.T) {
	net := newMemNetwork()

	cfg := testConfig()
	cfg.PulseInterval = 30 * time.Millisecond
	cfg.PulseFreshness = 10 * time.Millisecond

	a := buildTestNode(t, net, "keep-a", cfg)
	a.hs.jitterMax = time.Millisecond
	a.start(t)

	b := newTestNode(t, net, "keep-b", testConfig())
	a.hs.peers.Register(b.tr.self)

	time.Sleep(300 * time.Millisecond)
	rec, ok := a.hs.peers.Get(b.tr.self)
	require.True(t, ok, "live peer must survive the pulse audit")
	assert.WithinDuration(t, time.Now(), rec.LastSeen, 200*time.Millisecond)
}

func TestTamperedStampTimesOut(t *testing.T) {
	net := newMemNetwork()
	a := newTestNode(t, net, "ts-a", testConfig())
	b := newTestNode(t, net, "ts-b", testConfig())
	admitAll(a, b)

	// Bypass the handshake layer's stamping and send a bad stamp directly.
	req := &Request{Type: NearestPeersRequestMsg, N: 3, Hash: "anything", Stamp: "dGFtcGVyZWQ="}
	_, err := a.base.SendRequest(context.Background(), b.tr.self, req)
	require.Error(t, err)
	assert.Equal(t, fmt.Sprintf("Timeout while waiting for response from: %s", b.tr.self), err.Error())
}

func TestInboundParcelRefreshesLastSeen(t *testing.T) {
	net := newMemNetwork()
	a := newTestNode(t, net, "touch-a", testConfig())
	b := newTestNode(t, net, "touch-b", testConfig())
	admitAll(a, b)

	rec, ok := b.hs.peers.Get(a.tr.self)
	require.True(t, ok)
	before := rec.LastSeen

	time.Sleep(30 * time.Millisecond)
	_, err := a.hs.SendRequest(context.Background(), b.tr.self, &Request{Type: RequestPulseMsg})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		rec, ok := b.hs.peers.Get(a.tr.self)
		return ok && rec.LastSeen.After(before)
	}, time.Second, 10*time.Millisecond)
}
