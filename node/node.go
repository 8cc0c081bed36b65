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
	"sync"

	"github.com/pkg/errors"
	metrics "github.com/rcrowley/go-metrics"

	"github.com/BinaryBand/P2P/common"
	"github.com/BinaryBand/P2P/log"
	"github.com/BinaryBand/P2P/networks/p2p"
	"github.com/BinaryBand/P2P/node/overlay"
	"github.com/BinaryBand/P2P/storage"
)

var logger = log.NewModuleLogger(log.Node)

var (
	ErrAlreadyRunning = errors.New("node already running")
	ErrNotRunning     = errors.New("node not running")
)

// Node bundles the transport, the four protocol layers and the caches.
type Node struct {
	config *Config

	server   *p2p.Server
	proto    *overlay.MessageProto
	store    *storage.Store
	metadata *storage.Metadata

	mu       sync.Mutex
	running  bool
	quitMain chan struct{}
}

// New constructs a stopped node from config.
func New(config *Config) (*Node, error) {
	if config == nil {
		config = DefaultConfig()
	}
	config = config.sanitized()
	log.SetVerbosity(config.Verbosity)

	serverCfg := p2p.Config{ListenAddrs: config.ListenAddrs}
	if config.NodeKeyFile != "" {
		key, err := p2p.LoadOrGenerateKey(config.NodeKeyFile)
		if err != nil {
			return nil, err
		}
		serverCfg.PrivKey = key
	}
	server, err := p2p.NewServer(serverCfg)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStore(config.StorageCacheCap)
	if err != nil {
		return nil, err
	}
	metadata, err := storage.NewMetadata(config.MetadataCacheCap)
	if err != nil {
		return nil, err
	}

	overlayCfg := config.overlayConfig()
	base, err := overlay.NewBaseProto(server, overlayCfg.Timeout)
	if err != nil {
		return nil, err
	}
	handshake, err := overlay.NewHandshakeProto(base, overlayCfg)
	if err != nil {
		return nil, err
	}
	swarm := overlay.NewSwarmProto(handshake, store, overlayCfg)
	proto := overlay.NewMessageProto(swarm, metadata, overlayCfg)

	return &Node{
		config:   config,
		server:   server,
		proto:    proto,
		store:    store,
		metadata: metadata,
	}, nil
}

// Start registers the stream handler, launches both audit timers and dials
// the configured bootstrap peers.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return ErrAlreadyRunning
	}

	n.proto.Start()
	n.running = true
	n.quitMain = make(chan struct{})
	if n.config.MetricsEnabled {
		go n.reportMetricsLoop(n.quitMain)
	}
	logger.Info("node started", "self", n.Address())

	for _, target := range n.config.BootstrapNodes {
		go func(target string) {
			ctx, cancel := context.WithTimeout(context.Background(), n.proto.Timeout())
			defer cancel()
			if err := n.server.Dial(ctx, target); err != nil {
				logger.Warn("bootstrap dial failed", "target", target, "err", err)
			}
		}(target)
	}
	return nil
}

// Stop unwinds the protocol stack, drains outstanding calls as rejections,
// clears every cache and closes the transport.
func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.running {
		return ErrNotRunning
	}

	close(n.quitMain)
	n.proto.Stop()
	n.running = false
	err := n.server.Close()
	logger.Info("node stopped", "self", n.Address())
	return err
}

// Address returns this node's own overlay address.
func (n *Node) Address() common.Address {
	return n.server.SelfAddress()
}

// Peers snapshots the admitted peer addresses.
func (n *Node) Peers() []common.Address {
	return n.proto.Peers()
}

// Store replicates data into its swarm and returns its digest.
func (n *Node) Store(ctx context.Context, data string) (common.Hash, error) {
	return n.proto.Store(ctx, data)
}

// Fetch retrieves the fragment stored under hash.
func (n *Node) Fetch(ctx context.Context, hash common.Hash) (string, error) {
	return n.proto.Fetch(ctx, hash)
}

// SendMessage delivers one message to the recipient's metadata swarm.
func (n *Node) SendMessage(ctx context.Context, to common.Address, text string) error {
	return n.proto.SendMessage(ctx, to, text)
}

// SendMessages delivers several messages in one metadata announcement.
func (n *Node) SendMessages(ctx context.Context, to common.Address, texts []string) error {
	return n.proto.SendMessages(ctx, to, texts)
}

// GetInbox reconstructs the messages addressed to owner.
func (n *Node) GetInbox(ctx context.Context, owner common.Address) ([]overlay.Envelope, error) {
	return n.proto.GetInbox(ctx, owner)
}

// Protocol exposes the protocol stack for embedding setups.
func (n *Node) Protocol() *overlay.MessageProto {
	return n.proto
}

// Server exposes the underlying transport.
func (n *Node) Server() *p2p.Server {
	return n.server
}

// MetricsRegistry returns the registry the protocol meters feed.
func (n *Node) MetricsRegistry() metrics.Registry {
	return metrics.DefaultRegistry
}
