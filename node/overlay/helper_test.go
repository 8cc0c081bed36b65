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
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/BinaryBand/P2P/common"
	"github.com/BinaryBand/P2P/networks/p2p"
	"github.com/BinaryBand/P2P/storage"
)

// memNetwork wires memTransports together in-process so protocol tests run
// without sockets, the same trick the discovery table plays with its
// transport interface.
type memNetwork struct {
	mu    sync.Mutex
	nodes map[common.Address]*memTransport
}

func newMemNetwork() *memNetwork {
	return &memNetwork{nodes: make(map[common.Address]*memTransport)}
}

// join creates a transport whose address derives from name.
func (n *memNetwork) join(name string) *memTransport {
	tr := &memTransport{
		net:      n,
		self:     common.BytesToAddress([]byte(name)),
		handlers: make(map[string]p2p.StreamHandler),
	}
	n.mu.Lock()
	n.nodes[tr.self] = tr
	n.mu.Unlock()
	return tr
}

func (n *memNetwork) lookup(addr common.Address) *memTransport {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nodes[addr]
}

// connect fires the peer-identified event on both ends.
func (n *memNetwork) connect(a, b *memTransport) {
	a.fireConnected(b.self)
	b.fireConnected(a.self)
}

type memTransport struct {
	net  *memNetwork
	self common.Address

	mu           sync.Mutex
	handlers     map[string]p2p.StreamHandler
	connected    func(common.Address)
	disconnected func(common.Address)
	down         bool
}

func (t *memTransport) SelfAddress() common.Address { return t.self }

func (t *memTransport) OpenStream(_ context.Context, peer common.Address, protocolID string) (p2p.Stream, error) {
	remote := t.net.lookup(peer)
	if remote == nil {
		return nil, errors.Errorf("unknown peer %s", peer)
	}
	remote.mu.Lock()
	dead := remote.down
	handler := remote.handlers[protocolID]
	remote.mu.Unlock()
	if dead {
		return nil, errors.Errorf("peer %s unreachable", peer)
	}

	callerRead, remoteWrite := io.Pipe()
	remoteRead, callerWrite := io.Pipe()
	caller := &memStream{r: callerRead, w: callerWrite}
	served := &memStream{r: remoteRead, w: remoteWrite}

	go func() {
		if handler == nil {
			// Listening but deaf: swallow the parcel so the caller times out.
			io.Copy(io.Discard, served)
			served.Close()
			return
		}
		handler(served, t.self)
	}()
	return caller, nil
}

func (t *memTransport) RegisterHandler(protocolID string, handler p2p.StreamHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[protocolID] = handler
}

func (t *memTransport) UnregisterHandler(protocolID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.handlers, protocolID)
}

func (t *memTransport) Notify(connected, disconnected func(common.Address)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected, t.disconnected = connected, disconnected
}

func (t *memTransport) Close() error {
	t.setDown(true)
	return nil
}

func (t *memTransport) setDown(down bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.down = down
}

func (t *memTransport) fireConnected(addr common.Address) {
	t.mu.Lock()
	cb := t.connected
	t.mu.Unlock()
	if cb != nil {
		go cb(addr)
	}
}

func (t *memTransport) fireDisconnected(addr common.Address) {
	t.mu.Lock()
	cb := t.disconnected
	t.mu.Unlock()
	if cb != nil {
		go cb(addr)
	}
}

type memStream struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (s *memStream) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s *memStream) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s *memStream) CloseWrite() error           { return s.w.Close() }

func (s *memStream) Close() error {
	s.w.Close()
	return s.r.Close()
}

// testNode is one fully-stacked in-memory overlay node.
type testNode struct {
	tr       *memTransport
	base     *BaseProto
	hs       *HandshakeProto
	swarm    *SwarmProto
	msg      *MessageProto
	store    *storage.Store
	metadata *storage.Metadata
}

// testConfig keeps timers out of the way and deadlines short.
func testConfig() Config {
	return Config{
		Timeout:              400 * time.Millisecond,
		PulseInterval:        time.Hour,
		StorageAuditInterval: time.Hour,
	}
}

// buildTestNode assembles the full stack without starting it, so tests may
// shorten timers first.
func buildTestNode(t *testing.T, net *memNetwork, name string, cfg Config) *testNode {
	t.Helper()

	tr := net.join(name)
	base, err := NewBaseProto(tr, cfg.Timeout)
	require.NoError(t, err)
	hs, err := NewHandshakeProto(base, cfg)
	require.NoError(t, err)

	store, err := storage.NewStore(256)
	require.NoError(t, err)
	metadata, err := storage.NewMetadata(256)
	require.NoError(t, err)

	swarm := NewSwarmProto(hs, store, cfg)
	msg := NewMessageProto(swarm, metadata, cfg)

	return &testNode{tr: tr, base: base, hs: hs, swarm: swarm, msg: msg, store: store, metadata: metadata}
}

func (tn *testNode) start(t *testing.T) *testNode {
	t.Helper()
	tn.msg.Start()
	t.Cleanup(tn.msg.Stop)
	return tn
}

func newTestNode(t *testing.T, net *memNetwork, name string, cfg Config) *testNode {
	t.Helper()
	return buildTestNode(t, net, name, cfg).start(t)
}

// admitAll registers every node in every other node's peer table, bypassing
// the wire handshake, so topology-sensitive tests are deterministic.
func admitAll(nodes ...*testNode) {
	for _, a := range nodes {
		for _, b := range nodes {
			if a != b {
				a.hs.peers.Register(b.tr.self)
			}
		}
	}
}
