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

package p2p

import (
	"context"
	"sync"

	"github.com/libp2p/go-libp2p"
	lcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/pkg/errors"
	metrics "github.com/rcrowley/go-metrics"

	"github.com/BinaryBand/P2P/common"
	"github.com/BinaryBand/P2P/log"
)

var logger = log.NewModuleLogger(log.NetworksP2P)

var (
	dialMeter    = metrics.NewRegisteredMeter("p2p/dials", nil)
	acceptMeter  = metrics.NewRegisteredMeter("p2p/accepts", nil)
	connectGauge = metrics.NewRegisteredGauge("p2p/peers", nil)
)

// Config configures the libp2p-backed transport.
type Config struct {
	// ListenAddrs are multiaddrs to listen on, e.g. "/ip4/0.0.0.0/tcp/9000".
	ListenAddrs []string

	// PrivKey is the long-term identity key. Generated fresh when nil.
	PrivKey lcrypto.PrivKey
}

// Server implements Transport over a libp2p host.
type Server struct {
	host host.Host
	self common.Address

	mu           sync.Mutex
	connected    func(common.Address)
	disconnected func(common.Address)
	conns        map[peer.ID]int
}

// NewServer constructs and starts listening.
func NewServer(cfg Config) (*Server, error) {
	listen := make([]ma.Multiaddr, 0, len(cfg.ListenAddrs))
	for _, s := range cfg.ListenAddrs {
		addr, err := ma.NewMultiaddr(s)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid listen address %q", s)
		}
		listen = append(listen, addr)
	}

	opts := []libp2p.Option{libp2p.ListenAddrs(listen...)}
	if cfg.PrivKey != nil {
		opts = append(opts, libp2p.Identity(cfg.PrivKey))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "libp2p host")
	}

	srv := &Server{
		host:  h,
		self:  AddressFromID(h.ID()),
		conns: make(map[peer.ID]int),
	}
	h.Network().Notify(&notifee{srv})
	logger.Info("transport listening", "self", srv.self, "addrs", h.Addrs())
	return srv, nil
}

// AddressFromID derives the overlay address of a libp2p peer identity.
func AddressFromID(id peer.ID) common.Address {
	return common.BytesToAddress([]byte(id))
}

// IDFromAddress recovers the libp2p peer identity out of an overlay address.
func IDFromAddress(addr common.Address) (peer.ID, error) {
	raw, err := addr.Bytes()
	if err != nil {
		return "", err
	}
	return peer.IDFromBytes(raw)
}

func (s *Server) SelfAddress() common.Address {
	return s.self
}

func (s *Server) OpenStream(ctx context.Context, addr common.Address, protocolID string) (Stream, error) {
	id, err := IDFromAddress(addr)
	if err != nil {
		return nil, err
	}
	dialMeter.Mark(1)
	stream, err := s.host.NewStream(ctx, id, protocol.ID(protocolID))
	if err != nil {
		return nil, errors.Wrapf(err, "open stream to %s", addr)
	}
	return stream, nil
}

func (s *Server) RegisterHandler(protocolID string, handler StreamHandler) {
	s.host.SetStreamHandler(protocol.ID(protocolID), func(stream network.Stream) {
		acceptMeter.Mark(1)
		remote := AddressFromID(stream.Conn().RemotePeer())
		defer func() {
			if r := recover(); r != nil {
				logger.Error("stream handler panic", "remote", remote, "recovered", r)
				stream.Reset()
			}
		}()
		handler(stream, remote)
	})
}

func (s *Server) UnregisterHandler(protocolID string) {
	s.host.RemoveStreamHandler(protocol.ID(protocolID))
}

func (s *Server) Notify(connected, disconnected func(common.Address)) {
	s.mu.Lock()
	s.connected, s.disconnected = connected, disconnected
	s.mu.Unlock()
}

// Dial connects to a bootstrap peer given its full multiaddr
// (…/p2p/<peer-id>). The admission handshake rides on the connected event.
func (s *Server) Dial(ctx context.Context, target string) error {
	addr, err := ma.NewMultiaddr(target)
	if err != nil {
		return errors.Wrapf(err, "invalid bootstrap address %q", target)
	}
	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return errors.Wrap(err, "bootstrap address lacks a peer identity")
	}
	return s.host.Connect(ctx, *info)
}

// Host exposes the underlying libp2p host for embedding setups.
func (s *Server) Host() host.Host {
	return s.host
}

func (s *Server) Close() error {
	return s.host.Close()
}

// notifee translates connection events into per-peer lifecycle callbacks,
// firing connected on the first open connection and disconnected after the
// last one is gone.
type notifee struct {
	srv *Server
}

func (n *notifee) Connected(_ network.Network, conn network.Conn) {
	s := n.srv
	id := conn.RemotePeer()

	s.mu.Lock()
	s.conns[id]++
	first := s.conns[id] == 1
	cb := s.connected
	connectGauge.Update(int64(len(s.conns)))
	s.mu.Unlock()

	if first && cb != nil {
		go cb(AddressFromID(id))
	}
}

func (n *notifee) Disconnected(_ network.Network, conn network.Conn) {
	s := n.srv
	id := conn.RemotePeer()

	s.mu.Lock()
	s.conns[id]--
	last := s.conns[id] <= 0
	if last {
		delete(s.conns, id)
	}
	cb := s.disconnected
	connectGauge.Update(int64(len(s.conns)))
	s.mu.Unlock()

	if last && cb != nil {
		go cb(AddressFromID(id))
	}
}

func (n *notifee) Listen(network.Network, ma.Multiaddr)      {}
func (n *notifee) ListenClose(network.Network, ma.Multiaddr) {}
