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
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	metrics "github.com/rcrowley/go-metrics"

	"github.com/BinaryBand/P2P/common"
	"github.com/BinaryBand/P2P/crypto"
	"github.com/BinaryBand/P2P/log"
	"github.com/BinaryBand/P2P/networks/p2p"
	"github.com/BinaryBand/P2P/params"
)

var baseLogger = log.NewModuleLogger(log.OverlayBase)

var (
	inboundParcelMeter  = metrics.NewRegisteredMeter("overlay/base/inbound", nil)
	outboundCallMeter   = metrics.NewRegisteredMeter("overlay/base/outbound", nil)
	rateDropMeter       = metrics.NewRegisteredMeter("overlay/base/drops/rate", nil)
	dupDropMeter        = metrics.NewRegisteredMeter("overlay/base/drops/duplicate", nil)
	invalidDropMeter    = metrics.NewRegisteredMeter("overlay/base/drops/invalid", nil)
	mismatchDropMeter   = metrics.NewRegisteredMeter("overlay/base/drops/sender", nil)
	timeoutMeter        = metrics.NewRegisteredMeter("overlay/base/timeouts", nil)
	handlerErrMeter     = metrics.NewRegisteredMeter("overlay/base/handler/errors", nil)
	callbackMissMeter   = metrics.NewRegisteredMeter("overlay/base/callback/miss", nil)
	callbackEvictMeter  = metrics.NewRegisteredMeter("overlay/base/callback/evictions", nil)
)

// errDropParcel makes a handler drop an inbound request without sending any
// response, leaving the remote caller to time out. Validation failures use
// this; genuine handler errors travel back as rejection parcels.
var errDropParcel = errors.New("parcel dropped")

// HandlerFunc serves one inbound request from an identified sender.
type HandlerFunc func(sender common.Address, req *Request) (*Response, error)

type outstandingCall struct {
	id         string
	ch         chan *Return
	registered time.Time
}

// BaseProto owns wire framing, callback correlation, the per-peer rate
// window and the duplicate window. Upper layers register typed request
// handlers and send correlated requests through it.
type BaseProto struct {
	transport p2p.Transport
	self      common.Address
	timeout   time.Duration

	handlersMu sync.RWMutex
	handlers   map[string]HandlerFunc

	callsMu sync.Mutex
	calls   map[string]*outstandingCall

	limiter common.Cache // peer address -> *atomic.Int64, expiring window
	dupes   common.Cache // parcel fingerprint -> *atomic.Int64, expiring window

	// onValidParcel fires for every accepted inbound parcel; the handshake
	// layer hooks peer liveness on it.
	onValidParcel atomic.Value // func(common.Address)
}

// NewBaseProto wires the framing layer over a transport.
func NewBaseProto(transport p2p.Transport, timeout time.Duration) (*BaseProto, error) {
	if timeout <= 0 {
		timeout = params.RequestTimeout
	}
	limiter, err := common.NewCache(common.ExpirableConfig{CacheSize: params.LimiterCacheCap, TTL: timeout})
	if err != nil {
		return nil, err
	}
	dupes, err := common.NewCache(common.ExpirableConfig{CacheSize: params.LimiterCacheCap, TTL: timeout})
	if err != nil {
		return nil, err
	}
	return &BaseProto{
		transport: transport,
		self:      transport.SelfAddress(),
		timeout:   timeout,
		handlers:  make(map[string]HandlerFunc),
		calls:     make(map[string]*outstandingCall),
		limiter:   limiter,
		dupes:     dupes,
	}, nil
}

// Self returns this node's own address.
func (b *BaseProto) Self() common.Address {
	return b.self
}

// Timeout returns the per-request deadline.
func (b *BaseProto) Timeout() time.Duration {
	return b.timeout
}

// Start registers the inbound stream handler.
func (b *BaseProto) Start() {
	b.transport.RegisterHandler(params.ProtocolID, b.handleStream)
}

// Stop unregisters the stream handler and drains every outstanding call as a
// rejection.
func (b *BaseProto) Stop() {
	b.transport.UnregisterHandler(params.ProtocolID)
	b.drain("node shutting down")
	b.limiter.Purge()
	b.dupes.Purge()
}

// RegisterRequestHandler routes inbound requests of the given type.
func (b *BaseProto) RegisterRequestHandler(requestType string, handler HandlerFunc) {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	b.handlers[requestType] = handler
}

// SendRequest transmits req to peer and awaits its Return. A rejection
// Return surfaces as an error carrying the remote message; a missing
// response surfaces as a timeout error once the deadline elapses.
func (b *BaseProto) SendRequest(ctx context.Context, peer common.Address, req *Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "encode request")
	}
	parcel := &Parcel{
		CallbackID: common.NewUUID(),
		Sender:     b.self,
		Payload:    payload,
	}

	call := b.registerCall(parcel.CallbackID)
	outboundCallMeter.Mark(1)

	if err := b.writeParcel(ctx, peer, parcel); err != nil {
		b.removeCall(call.id)
		return nil, err
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case ret := <-call.ch:
		if ret == nil || !ret.Success {
			msg := "request rejected"
			if ret != nil && ret.Message != "" {
				msg = ret.Message
			}
			return nil, errors.New(msg)
		}
		return ret.Data, nil
	case <-timer.C:
		b.removeCall(call.id)
		timeoutMeter.Mark(1)
		return nil, fmt.Errorf("Timeout while waiting for response from: %s", peer)
	case <-ctx.Done():
		b.removeCall(call.id)
		return nil, ctx.Err()
	}
}

// registerCall tracks a fresh callback id. When the table is at capacity the
// oldest entry is evicted and its waiter receives a synthetic rejection.
func (b *BaseProto) registerCall(id string) *outstandingCall {
	b.callsMu.Lock()
	defer b.callsMu.Unlock()

	if len(b.calls) >= params.CallbackTableCap {
		var oldest *outstandingCall
		for _, c := range b.calls {
			if oldest == nil || c.registered.Before(oldest.registered) {
				oldest = c
			}
		}
		if oldest != nil {
			delete(b.calls, oldest.id)
			callbackEvictMeter.Mark(1)
			oldest.ch <- &Return{Success: false, Message: "evicted from callback table"}
		}
	}

	call := &outstandingCall{id: id, ch: make(chan *Return, 1), registered: time.Now()}
	b.calls[id] = call
	return call
}

func (b *BaseProto) removeCall(id string) *outstandingCall {
	b.callsMu.Lock()
	defer b.callsMu.Unlock()
	call, ok := b.calls[id]
	if !ok {
		return nil
	}
	delete(b.calls, id)
	return call
}

func (b *BaseProto) drain(reason string) {
	b.callsMu.Lock()
	calls := b.calls
	b.calls = make(map[string]*outstandingCall)
	b.callsMu.Unlock()

	for _, call := range calls {
		call.ch <- &Return{Success: false, Message: reason}
	}
}

// writeParcel opens a fresh stream, transmits the parcel and half-closes.
func (b *BaseProto) writeParcel(ctx context.Context, peer common.Address, parcel *Parcel) error {
	raw, err := json.Marshal(parcel)
	if err != nil {
		return errors.Wrap(err, "encode parcel")
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	stream, err := b.transport.OpenStream(ctx, peer, params.ProtocolID)
	if err != nil {
		return err
	}
	defer stream.Close()

	if _, err := stream.Write(raw); err != nil {
		return errors.Wrapf(err, "write parcel to %s", peer)
	}
	return stream.CloseWrite()
}

// bumpWindow increments the expiring counter behind key and returns the new
// count within the window.
func bumpWindow(cache common.Cache, key string) int64 {
	if v, ok := cache.Get(key); ok {
		return v.(*atomic.Int64).Add(1)
	}
	ctr := new(atomic.Int64)
	cache.Add(key, ctr)
	return ctr.Add(1)
}

// handleStream consumes one inbound stream end to end: read, limit, decode,
// authenticate the sender binding, then correlate or dispatch.
func (b *BaseProto) handleStream(stream p2p.Stream, remote common.Address) {
	raw, err := io.ReadAll(stream)
	stream.Close()
	if err != nil {
		baseLogger.Debug("inbound stream read failed", "remote", remote, "err", err)
		return
	}
	inboundParcelMeter.Mark(1)

	if n := bumpWindow(b.limiter, string(remote)); n > params.RateLimit {
		rateDropMeter.Mark(1)
		baseLogger.Warn("rate limit exceeded, dropping parcel", "remote", remote, "count", n)
		return
	}

	fingerprint := crypto.Blake2b(raw).String()
	if n := bumpWindow(b.dupes, fingerprint); n > 1 {
		dupDropMeter.Mark(1)
		if n > params.DuplicateWarning {
			baseLogger.Warn("excessive duplicates", "remote", remote, "count", n)
		} else {
			baseLogger.Debug("dropping duplicate parcel", "remote", remote)
		}
		return
	}

	parcel, callbackID, err := decodeParcel(raw)
	if err != nil {
		invalidDropMeter.Mark(1)
		baseLogger.Warn("dropping malformed parcel", "remote", remote, "err", err)
		return
	}

	if parcel.Sender != remote {
		mismatchDropMeter.Mark(1)
		baseLogger.Warn("parcel sender does not match stream identity",
			"claimed", parcel.Sender, "actual", remote)
		return
	}

	req, ret, err := decodePayload(parcel.Payload)
	if err != nil {
		if errors.Is(err, errUnknownType) {
			baseLogger.Debug("dropping unknown request type", "remote", remote, "err", err)
		} else {
			invalidDropMeter.Mark(1)
			baseLogger.Warn("dropping malformed payload", "remote", remote, "err", err)
		}
		return
	}

	if cb := b.onValidParcel.Load(); cb != nil {
		cb.(func(common.Address))(remote)
	}

	if ret != nil {
		if call := b.removeCall(callbackID); call != nil {
			call.ch <- ret
		} else {
			callbackMissMeter.Mark(1)
			baseLogger.Debug("return without outstanding call", "remote", remote, "callbackId", callbackID)
		}
		return
	}

	b.dispatch(remote, callbackID, req)
}

// dispatch runs the registered handler for req and sends its Return back as
// a parcel re-using the inbound callback id. A handler that panics is
// answered with a rejection Return.
func (b *BaseProto) dispatch(remote common.Address, callbackID string, req *Request) {
	b.handlersMu.RLock()
	handler, ok := b.handlers[req.Type]
	b.handlersMu.RUnlock()
	if !ok {
		baseLogger.Debug("no handler registered", "type", req.Type)
		return
	}

	resp, err := func() (resp *Response, err error) {
		defer func() {
			if r := recover(); r != nil {
				baseLogger.Error("request handler panic", "type", req.Type, "remote", remote, "recovered", r)
				err = fmt.Errorf("handler panic: %v", r)
			}
		}()
		return handler(remote, req)
	}()
	if errors.Is(err, errDropParcel) {
		return
	}

	ret := &Return{Success: true, Data: resp}
	if err != nil {
		handlerErrMeter.Mark(1)
		ret = &Return{Success: false, Message: err.Error()}
	}

	payload, err := json.Marshal(ret)
	if err != nil {
		baseLogger.Error("encode return failed", "err", err)
		return
	}
	reply := &Parcel{CallbackID: callbackID, Sender: b.self, Payload: payload}
	if err := b.writeParcel(context.Background(), remote, reply); err != nil {
		baseLogger.Debug("response delivery failed", "remote", remote, "err", err)
	}
}
