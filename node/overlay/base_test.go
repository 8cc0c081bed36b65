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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BinaryBand/P2P/common"
	"github.com/BinaryBand/P2P/params"
)

// newBasePair builds two started base-layer nodes on a shared in-memory
// network.
func newBasePair(t *testing.T) (*BaseProto, *BaseProto, *memNetwork) {
	t.Helper()
	net := newMemNetwork()

	a, err := NewBaseProto(net.join("alpha"), 400*time.Millisecond)
	require.NoError(t, err)
	b, err := NewBaseProto(net.join("beta"), 400*time.Millisecond)
	require.NoError(t, err)

	a.Start()
	b.Start()
	t.Cleanup(a.Stop)
	t.Cleanup(b.Stop)
	return a, b, net
}

// rawSend writes one pre-built parcel from sender's transport to the target.
func rawSend(t *testing.T, net *memNetwork, from, to common.Address, parcel *Parcel) {
	t.Helper()
	raw, err := json.Marshal(parcel)
	require.NoError(t, err)

	stream, err := net.lookup(from).OpenStream(context.Background(), to, params.ProtocolID)
	require.NoError(t, err)
	_, err = stream.Write(raw)
	require.NoError(t, err)
	require.NoError(t, stream.CloseWrite())
}

func TestSendRequestRoundTrip(t *testing.T) {
	a, b, _ := newBasePair(t)

	b.RegisterRequestHandler(StoreRequestMsg, func(sender common.Address, req *Request) (*Response, error) {
		assert.Equal(t, a.Self(), sender)
		assert.Equal(t, "ping", req.Data)
		return EmptyResponse(), nil
	})

	resp, err := a.SendRequest(context.Background(), b.Self(), &Request{Type: StoreRequestMsg, Data: "ping"})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, EmptyResponseMsg, resp.Type)
}

func TestHandlerErrorBecomesRejection(t *testing.T) {
	a, b, _ := newBasePair(t)

	b.RegisterRequestHandler(FetchRequestMsg, func(common.Address, *Request) (*Response, error) {
		return nil, errors.New("no such fragment")
	})

	_, err := a.SendRequest(context.Background(), b.Self(), &Request{Type: FetchRequestMsg, Hash: "base64,AA=="})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such fragment")
}

func TestTimeoutWhenPeerSilent(t *testing.T) {
	a, b, _ := newBasePair(t)

	// beta never answers this type; alpha must synthesize a timeout.
	start := time.Now()
	_, err := a.SendRequest(context.Background(), b.Self(), &Request{Type: GetMetadataRequestMsg})
	require.Error(t, err)
	assert.Equal(t, fmt.Sprintf("Timeout while waiting for response from: %s", b.Self()), err.Error())
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
}

func TestExactlyOneCompletionPerCall(t *testing.T) {
	a, b, _ := newBasePair(t)

	b.RegisterRequestHandler(StoreRequestMsg, func(common.Address, *Request) (*Response, error) {
		return EmptyResponse(), nil
	})

	var wg sync.WaitGroup
	var completions atomic.Int64
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := a.SendRequest(context.Background(), b.Self(),
				&Request{Type: StoreRequestMsg, Data: fmt.Sprintf("item-%d", i)})
			if err == nil {
				completions.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.EqualValues(t, 8, completions.Load())
	a.callsMu.Lock()
	assert.Empty(t, a.calls)
	a.callsMu.Unlock()
}

func TestRateLimitWindow(t *testing.T) {
	a, b, net := newBasePair(t)

	var served atomic.Int64
	b.RegisterRequestHandler(StoreRequestMsg, func(common.Address, *Request) (*Response, error) {
		served.Add(1)
		return nil, errDropParcel // no replies: keep alpha's window out of the picture
	})

	for i := 0; i < params.RateLimit+8; i++ {
		rawSend(t, net, a.Self(), b.Self(), &Parcel{
			CallbackID: common.NewUUID(),
			Sender:     a.Self(),
			Payload:    mustJSON(t, &Request{Type: StoreRequestMsg, Data: fmt.Sprintf("parcel-%d", i)}),
		})
	}

	assert.Eventually(t, func() bool { return served.Load() == int64(params.RateLimit) },
		2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, params.RateLimit, served.Load(), "the 33rd parcel in the window must be dropped")
}

func TestDuplicateParcelDropped(t *testing.T) {
	a, b, net := newBasePair(t)

	var served atomic.Int64
	b.RegisterRequestHandler(StoreRequestMsg, func(common.Address, *Request) (*Response, error) {
		served.Add(1)
		return nil, errDropParcel
	})

	parcel := &Parcel{
		CallbackID: common.NewUUID(),
		Sender:     a.Self(),
		Payload:    mustJSON(t, &Request{Type: StoreRequestMsg, Data: "same"}),
	}
	for i := 0; i < 3; i++ {
		rawSend(t, net, a.Self(), b.Self(), parcel)
	}

	assert.Eventually(t, func() bool { return served.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, served.Load(), "only the first identical parcel is delivered")
}

func TestSenderMismatchDropped(t *testing.T) {
	a, b, net := newBasePair(t)

	var served atomic.Int64
	b.RegisterRequestHandler(StoreRequestMsg, func(common.Address, *Request) (*Response, error) {
		served.Add(1)
		return nil, errDropParcel
	})

	// Parcel claims to be from an unrelated identity but rides alpha's stream.
	rawSend(t, net, a.Self(), b.Self(), &Parcel{
		CallbackID: common.NewUUID(),
		Sender:     common.BytesToAddress([]byte("impostor")),
		Payload:    mustJSON(t, &Request{Type: StoreRequestMsg, Data: "spoof"}),
	})

	time.Sleep(150 * time.Millisecond)
	assert.EqualValues(t, 0, served.Load())
}

func TestUnknownRequestTypeDropped(t *testing.T) {
	a, b, net := newBasePair(t)

	rawSend(t, net, a.Self(), b.Self(), &Parcel{
		CallbackID: common.NewUUID(),
		Sender:     a.Self(),
		Payload:    []byte(`{"type":"swarm:drop-table-request"}`),
	})
	time.Sleep(100 * time.Millisecond)
	// Nothing to observe but the absence of a crash and of a response.
}

func TestCallbackTableEviction(t *testing.T) {
	a, b, _ := newBasePair(t)

	// beta stays silent; the table fills to capacity and the next call
	// evicts the oldest waiter with a synthetic rejection.
	var evicted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i <= params.CallbackTableCap; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := a.SendRequest(context.Background(), b.Self(),
				&Request{Type: GetMetadataRequestMsg, Address: common.BytesToAddress([]byte(fmt.Sprintf("o%d", i)))})
			if err != nil && err.Error() == "evicted from callback table" {
				evicted.Add(1)
			}
		}(i)
		time.Sleep(2 * time.Millisecond) // keep registration order roughly sequential
	}
	wg.Wait()
	assert.EqualValues(t, 1, evicted.Load())
}

func TestStopDrainsOutstandingCalls(t *testing.T) {
	net := newMemNetwork()
	a, err := NewBaseProto(net.join("drain-a"), 10*time.Second)
	require.NoError(t, err)
	b, err := NewBaseProto(net.join("drain-b"), 10*time.Second)
	require.NoError(t, err)
	a.Start()
	b.Start()
	t.Cleanup(b.Stop)

	done := make(chan error, 1)
	go func() {
		_, err := a.SendRequest(context.Background(), b.Self(), &Request{Type: RequestPulseMsg})
		done <- err
	}()

	require.Eventually(t, func() bool {
		a.callsMu.Lock()
		defer a.callsMu.Unlock()
		return len(a.calls) == 1
	}, time.Second, 5*time.Millisecond)

	a.Stop()
	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "shutting down")
	case <-time.After(time.Second):
		t.Fatal("outstanding call was not drained on stop")
	}
}
