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
	"math/rand"
	"sync"
	"time"

	metrics "github.com/rcrowley/go-metrics"

	"github.com/BinaryBand/P2P/common"
	"github.com/BinaryBand/P2P/crypto"
	"github.com/BinaryBand/P2P/log"
	"github.com/BinaryBand/P2P/params"
)

var hsLogger = log.NewModuleLogger(log.OverlayHandshake)

var (
	admissionMeter = metrics.NewRegisteredMeter("overlay/handshake/admissions", nil)
	pulseMeter     = metrics.NewRegisteredMeter("overlay/handshake/pulses", nil)
	evictionMeter  = metrics.NewRegisteredMeter("overlay/handshake/evictions", nil)
	stampFailMeter = metrics.NewRegisteredMeter("overlay/handshake/stamp-failures", nil)
)

// HandshakeProto layers shared-secret admission over BaseProto. Every
// outbound request is stamped with the rotating TOTP key and every inbound
// request handler re-verifies the stamp. A background pulse audit keeps the
// peer table fresh.
type HandshakeProto struct {
	*BaseProto

	stamper *crypto.Stamper
	peers   *peerSet

	pulseInterval time.Duration
	freshness     time.Duration
	jitterMax     time.Duration

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewHandshakeProto wires the admission layer.
func NewHandshakeProto(base *BaseProto, cfg Config) (*HandshakeProto, error) {
	cfg = cfg.withDefaults()
	peers, err := newPeerSet(params.PeerTableCap)
	if err != nil {
		return nil, err
	}
	return &HandshakeProto{
		BaseProto:     base,
		stamper:       crypto.NewStamper(cfg.Passphrase),
		peers:         peers,
		pulseInterval: cfg.PulseInterval,
		freshness:     cfg.PulseFreshness,
		jitterMax:     params.PulseJitterMax,
	}, nil
}

// Start begins serving: base framing, admission handlers, peer lifecycle
// subscription and the pulse audit loop.
func (h *HandshakeProto) Start() {
	h.BaseProto.Start()

	h.RegisterRequestHandler(SecretHandshakeMsg, h.Authenticated(h.handleSecretHandshake))
	h.RegisterRequestHandler(RequestPulseMsg, h.Authenticated(h.handleRequestPulse))

	h.onValidParcel.Store(func(addr common.Address) { h.peers.Touch(addr) })
	h.transport.Notify(h.onPeerConnected, h.onPeerDisconnected)

	h.quit = make(chan struct{})
	h.wg.Add(1)
	go h.pulseLoop()
}

// Stop halts the pulse audit and the base layer, then clears the peer table.
func (h *HandshakeProto) Stop() {
	close(h.quit)
	h.wg.Wait()
	h.BaseProto.Stop()
	h.peers.Purge()
}

// Peers snapshots the admitted peer addresses.
func (h *HandshakeProto) Peers() []common.Address {
	return h.peers.Addresses()
}

// SendRequest stamps req and transmits it, after making sure the target peer
// is live: an absent or stale peer must answer a pulse before the request
// may proceed.
func (h *HandshakeProto) SendRequest(ctx context.Context, peer common.Address, req *Request) (*Response, error) {
	if err := h.ensureFresh(ctx, peer); err != nil {
		return nil, err
	}
	return h.sendStamped(ctx, peer, req)
}

// sendStamped stamps req and hands it to the base layer, with no freshness
// precondition. The admission and pulse requests themselves go through here.
func (h *HandshakeProto) sendStamped(ctx context.Context, peer common.Address, req *Request) (*Response, error) {
	body, err := req.StampBody()
	if err != nil {
		return nil, err
	}
	req.Stamp, err = h.stamper.Stamp(body)
	if err != nil {
		return nil, err
	}
	return h.BaseProto.SendRequest(ctx, peer, req)
}

// ensureFresh pulses peer when it is absent from the table or stale.
func (h *HandshakeProto) ensureFresh(ctx context.Context, peer common.Address) error {
	if h.peers.Fresh(peer, h.freshness) {
		return nil
	}
	return h.pulse(ctx, peer)
}

// pulse sends a RequestPulse. Success refreshes the peer record, failure
// evicts it.
func (h *HandshakeProto) pulse(ctx context.Context, peer common.Address) error {
	pulseMeter.Mark(1)
	_, err := h.sendStamped(ctx, peer, &Request{Type: RequestPulseMsg})
	if err != nil {
		evictionMeter.Mark(1)
		h.peers.Unregister(peer)
		hsLogger.Debug("pulse failed, evicting peer", "peer", peer, "err", err)
		return err
	}
	if !h.peers.Touch(peer) {
		h.peers.Register(peer)
	}
	return nil
}

// onPeerConnected runs the admission flow against a newly identified peer.
func (h *HandshakeProto) onPeerConnected(addr common.Address) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	_, err := h.sendStamped(ctx, addr, &Request{Type: SecretHandshakeMsg})
	if err != nil {
		hsLogger.Debug("admission handshake failed", "peer", addr, "err", err)
		return
	}
	admissionMeter.Mark(1)
	h.peers.Register(addr)
	hsLogger.Info("peer admitted", "peer", addr)
}

func (h *HandshakeProto) onPeerDisconnected(addr common.Address) {
	h.peers.Unregister(addr)
	hsLogger.Debug("peer disconnected", "peer", addr)
}

// pulseLoop periodically re-pulses stale peers, with jitter so neighboring
// nodes do not audit in lockstep.
func (h *HandshakeProto) pulseLoop() {
	defer h.wg.Done()
	for {
		delay := h.pulseInterval + time.Duration(rand.Int63n(int64(h.jitterMax)))
		timer := time.NewTimer(delay)
		select {
		case <-h.quit:
			timer.Stop()
			return
		case <-timer.C:
		}

		for _, addr := range h.peers.Stale(h.freshness) {
			ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
			err := h.pulse(ctx, addr)
			cancel()
			if err != nil {
				hsLogger.Info("stale peer evicted", "peer", addr)
			}
		}
	}
}

// Authenticated wraps a handler with stamp verification. A request whose
// stamp does not re-verify is dropped without a response; the remote caller
// times out.
func (h *HandshakeProto) Authenticated(inner HandlerFunc) HandlerFunc {
	return func(sender common.Address, req *Request) (*Response, error) {
		body, err := req.StampBody()
		if err != nil {
			return nil, errDropParcel
		}
		if req.Stamp == "" || !h.stamper.Verify(body, req.Stamp) {
			stampFailMeter.Mark(1)
			hsLogger.Warn("stamp verification failed", "sender", sender, "type", req.Type)
			return nil, errDropParcel
		}
		return inner(sender, req)
	}
}

func (h *HandshakeProto) handleSecretHandshake(sender common.Address, _ *Request) (*Response, error) {
	h.peers.Register(sender)
	hsLogger.Debug("admitted requesting peer", "peer", sender)
	return EmptyResponse(), nil
}

func (h *HandshakeProto) handleRequestPulse(sender common.Address, _ *Request) (*Response, error) {
	if !h.peers.Touch(sender) {
		h.peers.Register(sender)
	}
	return EmptyResponse(), nil
}
