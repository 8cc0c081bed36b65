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
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	metrics "github.com/rcrowley/go-metrics"
	"golang.org/x/sync/errgroup"

	"github.com/BinaryBand/P2P/common"
	"github.com/BinaryBand/P2P/crypto"
	"github.com/BinaryBand/P2P/log"
	"github.com/BinaryBand/P2P/params"
	"github.com/BinaryBand/P2P/storage"
)

var swarmLogger = log.NewModuleLogger(log.OverlaySwarm)

var (
	lookupMeter     = metrics.NewRegisteredMeter("overlay/swarm/lookups", nil)
	storeMeter      = metrics.NewRegisteredMeter("overlay/swarm/stores", nil)
	fetchMeter      = metrics.NewRegisteredMeter("overlay/swarm/fetches", nil)
	repairMeter     = metrics.NewRegisteredMeter("overlay/swarm/repairs", nil)
	auditCycleMeter = metrics.NewRegisteredMeter("overlay/swarm/audit-cycles", nil)
)

// ErrNotFound reports that no valid fragment could be retrieved for a hash.
var ErrNotFound = errors.New("fragment not found")

// SwarmProto layers content-addressed replication over the admission layer:
// an iterative XOR-proximity lookup, store and fetch against the swarm of a
// hash, and a background audit that re-replicates what this node holds.
type SwarmProto struct {
	*HandshakeProto

	store *storage.Store

	swarmSize        int
	maxDepth         int
	redundancyMargin int
	auditInterval    time.Duration
	freshness        time.Duration
	jitterMax        time.Duration

	quitAudit chan struct{}
	auditWg   sync.WaitGroup
}

// NewSwarmProto wires the replication layer.
func NewSwarmProto(handshake *HandshakeProto, store *storage.Store, cfg Config) *SwarmProto {
	cfg = cfg.withDefaults()
	return &SwarmProto{
		HandshakeProto:   handshake,
		store:            store,
		swarmSize:        cfg.SwarmSize,
		maxDepth:         cfg.MaxLookupDepth,
		redundancyMargin: cfg.RedundancyMargin,
		auditInterval:    cfg.StorageAuditInterval,
		freshness:        cfg.StorageFreshness,
		jitterMax:        params.StorageAuditJitterMax,
	}
}

// Start begins serving the swarm handlers and the storage audit loop.
func (s *SwarmProto) Start() {
	s.HandshakeProto.Start()

	s.RegisterRequestHandler(NearestPeersRequestMsg, s.Authenticated(s.handleNearestPeers))
	s.RegisterRequestHandler(StoreRequestMsg, s.Authenticated(s.handleStore))
	s.RegisterRequestHandler(FetchRequestMsg, s.Authenticated(s.handleFetch))

	s.quitAudit = make(chan struct{})
	s.auditWg.Add(1)
	go s.auditLoop()
}

// Stop halts the audit loop, the lower layers, and clears local storage.
func (s *SwarmProto) Stop() {
	close(s.quitAudit)
	s.auditWg.Wait()
	s.HandshakeProto.Stop()
	s.store.Purge()
}

// Store saves data into the swarm of its digest and returns that digest.
// Single-peer failures degrade replication without failing the call.
func (s *SwarmProto) Store(ctx context.Context, data string) (common.Hash, error) {
	storeMeter.Mark(1)
	hash := crypto.Blake2b([]byte(data))

	holders := s.NearestPeers(ctx, hash.String(), s.swarmSize)
	if len(holders) == 0 {
		return common.Hash{}, errors.New("no peers available to store to")
	}

	var g errgroup.Group
	for _, holder := range holders {
		holder := holder
		g.Go(func() error {
			if holder == s.Self() {
				s.store.Put(data)
				return nil
			}
			_, err := s.SendRequest(ctx, holder, &Request{Type: StoreRequestMsg, Data: data})
			if err != nil {
				swarmLogger.Debug("store replica failed", "holder", holder, "err", err)
			}
			return nil
		})
	}
	g.Wait()
	return hash, nil
}

// Fetch retrieves the fragment stored under hash from its locally-known
// swarm. Every returned fragment is re-hashed; the first valid one wins.
func (s *SwarmProto) Fetch(ctx context.Context, hash common.Hash) (string, error) {
	fetchMeter.Mark(1)

	holders := s.localNearest(hash.String(), s.swarmSize)
	results := make(chan string, len(holders))

	var g errgroup.Group
	for _, holder := range holders {
		holder := holder
		g.Go(func() error {
			if data, ok := s.fetchFrom(ctx, holder, hash); ok {
				results <- data
			}
			return nil
		})
	}
	g.Wait()
	close(results)

	if data, ok := <-results; ok {
		return data, nil
	}
	return "", ErrNotFound
}

// fetchFrom retrieves and verifies one replica. Self reads local storage
// without a network round-trip.
func (s *SwarmProto) fetchFrom(ctx context.Context, holder common.Address, hash common.Hash) (string, bool) {
	if holder == s.Self() {
		return s.store.Get(hash)
	}

	resp, err := s.SendRequest(ctx, holder, &Request{Type: FetchRequestMsg, Hash: hash.String()})
	if err != nil {
		swarmLogger.Debug("fetch replica failed", "holder", holder, "err", err)
		return "", false
	}
	if resp == nil || resp.Fragment == nil {
		return "", false
	}
	if crypto.Blake2b([]byte(*resp.Fragment)) != hash {
		swarmLogger.Warn("discarding fragment with wrong digest", "holder", holder, "hash", hash.String())
		return "", false
	}
	return *resp.Fragment, true
}

// NearestPeers runs the iterative proximity lookup: seed with the locally
// nearest candidates, ask each round's candidates for their own nearest,
// re-rank, and stop when the best distance no longer improves or maxDepth
// rounds have run.
func (s *SwarmProto) NearestPeers(ctx context.Context, query string, n int) []common.Address {
	lookupMeter.Mark(1)
	target := crypto.Blake2b([]byte(query))

	current := s.localNearest(query, n)
	if len(current) == 0 {
		return nil
	}
	bestDistance := common.Distance(target, crypto.PositionOf(current[0]))

	seen := make(map[common.Address]bool, len(current))
	for _, addr := range current {
		seen[addr] = true
	}

	for depth := 0; depth < s.maxDepth; depth++ {
		var mu sync.Mutex
		merged := append([]common.Address(nil), current...)

		var g errgroup.Group
		for _, candidate := range current {
			candidate := candidate
			g.Go(func() error {
				returned := s.nearestFrom(ctx, candidate, query, n)
				mu.Lock()
				for _, addr := range returned {
					if addr.Valid() && !seen[addr] {
						seen[addr] = true
						merged = append(merged, addr)
					}
				}
				mu.Unlock()
				return nil
			})
		}
		g.Wait()

		common.SortByDistance(target, merged, crypto.PositionOf)
		if len(merged) > n {
			merged = merged[:n]
		}

		newBest := common.Distance(target, crypto.PositionOf(merged[0]))
		if newBest >= bestDistance {
			current = merged
			break
		}
		bestDistance = newBest
		current = merged
	}

	if len(current) > n {
		current = current[:n]
	}
	return current
}

// nearestFrom asks one candidate for its locally-nearest peers. Self is
// answered by direct local dispatch.
func (s *SwarmProto) nearestFrom(ctx context.Context, candidate common.Address, query string, n int) []common.Address {
	if candidate == s.Self() {
		return s.localNearest(query, n)
	}
	resp, err := s.SendRequest(ctx, candidate, &Request{Type: NearestPeersRequestMsg, N: n, Hash: query})
	if err != nil {
		swarmLogger.Debug("nearest-peers query failed", "peer", candidate, "err", err)
		return nil
	}
	return resp.Peers
}

// localNearest ranks this node's own view (admitted peers plus self) by
// distance to the query and returns the closest n.
func (s *SwarmProto) localNearest(query string, n int) []common.Address {
	target := crypto.Blake2b([]byte(query))

	candidates := append(s.peers.Addresses(), s.Self())
	common.SortByDistance(target, candidates, crypto.PositionOf)
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

// auditLoop periodically re-replicates held items, with jitter.
func (s *SwarmProto) auditLoop() {
	defer s.auditWg.Done()
	for {
		delay := s.auditInterval + time.Duration(rand.Int63n(int64(s.jitterMax)))
		timer := time.NewTimer(delay)
		select {
		case <-s.quitAudit:
			timer.Stop()
			return
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		s.auditOnce(ctx)
		cancel()
	}
}

// auditOnce selects the audit set of the cycle and repairs each item's
// swarm: every stale item, plus up to redundancy-margin fresh items this
// node is most responsible for, i.e. those nearest to it by self-distance.
func (s *SwarmProto) auditOnce(ctx context.Context) {
	auditCycleMeter.Mark(1)
	selfPosition := crypto.PositionOf(s.Self())
	cutoff := time.Now().Add(-s.freshness)

	var stale, fresh []*storage.Item
	for _, item := range s.store.Items() {
		if item.CreatedAt.Before(cutoff) {
			stale = append(stale, item)
		} else {
			fresh = append(fresh, item)
		}
	}

	sort.SliceStable(fresh, func(i, j int) bool {
		di := common.Distance(selfPosition, crypto.Blake2b([]byte(fresh[i].Hash.String())))
		dj := common.Distance(selfPosition, crypto.Blake2b([]byte(fresh[j].Hash.String())))
		return di < dj
	})
	if len(fresh) > s.redundancyMargin {
		fresh = fresh[:s.redundancyMargin]
	}

	for _, item := range append(stale, fresh...) {
		s.auditItem(ctx, item)
	}
}

// auditItem verifies each member of the item's current swarm and pushes the
// data to every member that cannot produce it.
func (s *SwarmProto) auditItem(ctx context.Context, item *storage.Item) {
	var g errgroup.Group
	for _, holder := range s.localNearest(item.Hash.String(), s.swarmSize) {
		holder := holder
		g.Go(func() error {
			if _, ok := s.fetchFrom(ctx, holder, item.Hash); ok {
				return nil
			}
			repairMeter.Mark(1)
			swarmLogger.Debug("repairing replica", "holder", holder, "hash", item.Hash.String())
			if holder == s.Self() {
				s.store.Put(item.Data)
				return nil
			}
			if _, err := s.SendRequest(ctx, holder, &Request{Type: StoreRequestMsg, Data: item.Data}); err != nil {
				swarmLogger.Debug("repair failed", "holder", holder, "err", err)
			}
			return nil
		})
	}
	g.Wait()
}

func (s *SwarmProto) handleNearestPeers(_ common.Address, req *Request) (*Response, error) {
	n := req.N
	if n < 1 {
		return nil, errors.New("n must be positive")
	}
	if n > params.PeerTableCap {
		n = params.PeerTableCap
	}
	return &Response{
		Type:  NearestPeersResponseMsg,
		Peers: s.localNearest(req.Hash, n),
	}, nil
}

func (s *SwarmProto) handleStore(sender common.Address, req *Request) (*Response, error) {
	if req.Data == "" {
		return nil, errors.New("empty store payload")
	}
	hash := s.store.Put(req.Data)
	swarmLogger.Debug("stored fragment on behalf of peer", "sender", sender, "hash", hash.String())
	return EmptyResponse(), nil
}

func (s *SwarmProto) handleFetch(_ common.Address, req *Request) (*Response, error) {
	hash, err := common.ParseHash(req.Hash)
	if err != nil {
		return nil, errors.New("malformed fetch hash")
	}
	resp := &Response{Type: FetchResponseMsg}
	if data, ok := s.store.Get(hash); ok {
		resp.Fragment = &data
	}
	return resp, nil
}
