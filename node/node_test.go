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

package node

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BinaryBand/P2P/crypto"
)

// startCluster launches count loopback nodes and waits until they have all
// admitted each other.
func startCluster(t *testing.T, count int) []*Node {
	t.Helper()

	nodes := make([]*Node, count)
	for i := range nodes {
		cfg := DefaultConfig()
		cfg.ListenAddrs = []string{"/ip4/127.0.0.1/tcp/0"}
		cfg.TimeoutMs = 5000
		n, err := New(cfg)
		require.NoError(t, err)
		require.NoError(t, n.Start())
		t.Cleanup(func() { n.Stop() })
		nodes[i] = n
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	for i := 1; i < count; i++ {
		host := nodes[0].Server().Host()
		target := host.Addrs()[0].String() + "/p2p/" + host.ID().String()
		require.NoError(t, nodes[i].Server().Dial(ctx, target))
	}
	// Complete the mesh: every other node also dials the rest directly.
	for i := 1; i < count; i++ {
		for j := 1; j < count; j++ {
			if i == j {
				continue
			}
			host := nodes[j].Server().Host()
			target := host.Addrs()[0].String() + "/p2p/" + host.ID().String()
			_ = nodes[i].Server().Dial(ctx, target)
		}
	}

	require.Eventually(t, func() bool {
		for _, n := range nodes {
			if len(n.Peers()) < count-1 {
				return false
			}
		}
		return true
	}, 30*time.Second, 50*time.Millisecond, "cluster never fully admitted")
	return nodes
}

func TestStoreFetchOverLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("loopback cluster test")
	}
	nodes := startCluster(t, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hash, err := nodes[0].Store(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, crypto.Blake2b([]byte("hello")), hash)

	data, err := nodes[1].Fetch(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, "hello", data)
}

func TestMessagingOverLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("loopback cluster test")
	}
	nodes := startCluster(t, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	recipient := nodes[2].Address()
	require.NoError(t, nodes[0].SendMessage(ctx, recipient, "hi"))

	inbox, err := nodes[2].GetInbox(ctx, recipient)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "hi", inbox[0].Text)
}

func TestNodeKeyFileGivesStableAddress(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "nodekey")

	mk := func() *Node {
		cfg := DefaultConfig()
		cfg.ListenAddrs = []string{"/ip4/127.0.0.1/tcp/0"}
		cfg.NodeKeyFile = keyFile
		n, err := New(cfg)
		require.NoError(t, err)
		return n
	}

	first := mk()
	addr := first.Address()
	require.NoError(t, first.Server().Close())

	second := mk()
	defer second.Server().Close()
	assert.Equal(t, addr, second.Address())
}
