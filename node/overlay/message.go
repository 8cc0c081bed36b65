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
	"encoding/base64"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/pkg/errors"
	metrics "github.com/rcrowley/go-metrics"
	"golang.org/x/sync/errgroup"

	"github.com/BinaryBand/P2P/common"
	"github.com/BinaryBand/P2P/crypto"
	"github.com/BinaryBand/P2P/log"
	"github.com/BinaryBand/P2P/storage"
)

var msgLogger = log.NewModuleLogger(log.OverlayMessage)

var (
	sendMeter        = metrics.NewRegisteredMeter("overlay/message/sends", nil)
	inboxMeter       = metrics.NewRegisteredMeter("overlay/message/inbox-reads", nil)
	reconstructMeter = metrics.NewRegisteredMeter("overlay/message/reconstructions", nil)
	incompleteMeter  = metrics.NewRegisteredMeter("overlay/message/incomplete-groups", nil)
)

// Envelope is the cleartext message payload carried inside the Shamir
// shares.
type Envelope struct {
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// Fragment is one stored Shamir share, bound to its message group.
type Fragment struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// MessageProto layers recipient-anonymized asynchronous messaging over the
// swarm: each message splits into Shamir shares stored as swarm objects,
// while the share hashes land in a metadata bucket replicated around the
// Blake3 position of the recipient's address.
type MessageProto struct {
	*SwarmProto

	metadata *storage.Metadata

	shares        int
	threshold     int
	metaSwarmSize int
}

// NewMessageProto wires the messaging layer.
func NewMessageProto(swarm *SwarmProto, metadata *storage.Metadata, cfg Config) *MessageProto {
	cfg = cfg.withDefaults()
	return &MessageProto{
		SwarmProto:    swarm,
		metadata:      metadata,
		shares:        cfg.ShamirShares,
		threshold:     cfg.ShamirThreshold,
		metaSwarmSize: cfg.MetadataSwarmSize,
	}
}

// Start begins serving the metadata handlers on top of the swarm layers.
func (m *MessageProto) Start() {
	m.SwarmProto.Start()
	m.RegisterRequestHandler(StoreMetadataRequestMsg, m.Authenticated(m.handleStoreMetadata))
	m.RegisterRequestHandler(GetMetadataRequestMsg, m.Authenticated(m.handleGetMetadata))
}

// Stop halts the lower layers and clears the metadata buckets.
func (m *MessageProto) Stop() {
	m.SwarmProto.Stop()
	m.metadata.Purge()
}

// SendMessage delivers one message to the recipient.
func (m *MessageProto) SendMessage(ctx context.Context, to common.Address, text string) error {
	return m.SendMessages(ctx, to, []string{text})
}

// SendMessages splits every message into Shamir shares, stores each share as
// a swarm object, and announces all resulting hashes to the recipient's
// metadata swarm in one request per holder.
func (m *MessageProto) SendMessages(ctx context.Context, to common.Address, texts []string) error {
	if !to.Valid() {
		return errors.Wrap(common.ErrBadAddress, string(to))
	}
	sendMeter.Mark(int64(len(texts)))

	var hashes []string
	for _, text := range texts {
		groupHashes, err := m.storeShares(ctx, text)
		if err != nil {
			return err
		}
		hashes = append(hashes, groupHashes...)
	}

	ownerQuery := crypto.Blake3([]byte(to)).String()
	holders := m.NearestPeers(ctx, ownerQuery, m.metaSwarmSize)
	if len(holders) == 0 {
		return errors.New("no metadata holders reachable")
	}

	var g errgroup.Group
	var okCount int64
	var mu sync.Mutex
	for _, holder := range holders {
		holder := holder
		g.Go(func() error {
			if holder == m.Self() {
				m.metadata.Union(to, hashes)
				mu.Lock()
				okCount++
				mu.Unlock()
				return nil
			}
			req := &Request{Type: StoreMetadataRequestMsg, Owner: to, Metadata: hashes}
			if _, err := m.SendRequest(ctx, holder, req); err != nil {
				msgLogger.Debug("metadata announce failed", "holder", holder, "err", err)
				return nil
			}
			mu.Lock()
			okCount++
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	if okCount == 0 {
		return errors.New("metadata announce reached no holder")
	}
	return nil
}

// storeShares splits one message and stores its fragments, returning their
// content hashes.
func (m *MessageProto) storeShares(ctx context.Context, text string) ([]string, error) {
	envelope, err := json.Marshal(&Envelope{Text: text, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		return nil, err
	}
	shares, err := crypto.SplitSecret(envelope, m.shares, m.threshold)
	if err != nil {
		return nil, err
	}

	groupID := common.NewUUID()
	hashes := make([]string, 0, len(shares))
	for _, share := range shares {
		fragment, err := json.Marshal(&Fragment{
			ID:      groupID,
			Content: common.TagBase64 + base64.StdEncoding.EncodeToString(share),
		})
		if err != nil {
			return nil, err
		}
		hash, err := m.Store(ctx, string(fragment))
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, hash.String())
	}
	return hashes, nil
}

// GetInbox assembles the messages addressed to owner: union the metadata
// buckets of the owner's swarm, fetch every referenced fragment, group the
// shares, and reconstruct every group that crosses the threshold. Groups
// below threshold are silently dropped.
func (m *MessageProto) GetInbox(ctx context.Context, owner common.Address) ([]Envelope, error) {
	if !owner.Valid() {
		return nil, errors.Wrap(common.ErrBadAddress, string(owner))
	}
	inboxMeter.Mark(1)

	ownerQuery := crypto.Blake3([]byte(owner)).String()
	holders := m.NearestPeers(ctx, ownerQuery, m.metaSwarmSize)

	union := mapset.NewSet()
	var g errgroup.Group
	var mu sync.Mutex
	for _, holder := range holders {
		holder := holder
		g.Go(func() error {
			var found []string
			if holder == m.Self() {
				found = m.metadata.Get(owner)
			} else {
				resp, err := m.SendRequest(ctx, holder, &Request{Type: GetMetadataRequestMsg, Address: owner})
				if err != nil {
					msgLogger.Debug("metadata read failed", "holder", holder, "err", err)
					return nil
				}
				found = resp.Metadata
			}
			mu.Lock()
			for _, h := range found {
				union.Add(h)
			}
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	groups := m.collectFragments(ctx, union)
	return m.reconstruct(groups), nil
}

// collectFragments fetches every referenced fragment and groups the decoded
// shares by message group.
func (m *MessageProto) collectFragments(ctx context.Context, hashes mapset.Set) map[string][][]byte {
	groups := make(map[string][][]byte)
	var g errgroup.Group
	var mu sync.Mutex

	for _, raw := range hashes.ToSlice() {
		rawHash := raw.(string)
		g.Go(func() error {
			hash, err := common.ParseHash(rawHash)
			if err != nil {
				msgLogger.Debug("skipping malformed metadata hash", "hash", rawHash)
				return nil
			}
			data, err := m.Fetch(ctx, hash)
			if err != nil {
				return nil
			}
			var fragment Fragment
			if err := json.Unmarshal([]byte(data), &fragment); err != nil {
				msgLogger.Debug("skipping undecodable fragment", "hash", rawHash)
				return nil
			}
			if _, err := common.ParseUUID(fragment.ID); err != nil {
				return nil
			}
			share, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(fragment.Content, common.TagBase64))
			if err != nil || len(share) == 0 {
				return nil
			}
			mu.Lock()
			groups[fragment.ID] = append(groups[fragment.ID], share)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return groups
}

// reconstruct combines every group holding at least threshold distinct
// shares into its envelope, dropping the rest.
func (m *MessageProto) reconstruct(groups map[string][][]byte) []Envelope {
	var inbox []Envelope
	for groupID, shares := range groups {
		shares = dedupeShares(shares)
		if len(shares) < m.threshold {
			incompleteMeter.Mark(1)
			msgLogger.Debug("dropping group below threshold", "group", groupID, "shares", len(shares))
			continue
		}
		secret, err := crypto.CombineShares(shares[:m.threshold])
		if err != nil {
			msgLogger.Warn("share combination failed", "group", groupID, "err", err)
			continue
		}
		var envelope Envelope
		if err := json.Unmarshal(secret, &envelope); err != nil {
			msgLogger.Warn("reconstructed bytes are not an envelope", "group", groupID)
			continue
		}
		reconstructMeter.Mark(1)
		inbox = append(inbox, envelope)
	}

	sort.SliceStable(inbox, func(i, j int) bool {
		return inbox[i].Timestamp < inbox[j].Timestamp
	})
	return inbox
}

// dedupeShares drops byte-identical shares so redundant replicas cannot
// stand in for distinct interpolation points.
func dedupeShares(shares [][]byte) [][]byte {
	seen := make(map[string]bool, len(shares))
	out := shares[:0]
	for _, share := range shares {
		key := string(share)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, share)
	}
	return out
}

func (m *MessageProto) handleStoreMetadata(sender common.Address, req *Request) (*Response, error) {
	if !req.Owner.Valid() {
		return nil, errors.New("malformed metadata owner")
	}
	valid := make([]string, 0, len(req.Metadata))
	for _, h := range req.Metadata {
		if _, err := common.ParseHash(h); err == nil {
			valid = append(valid, h)
		}
	}
	if len(valid) == 0 {
		return nil, errors.New("no valid metadata hashes")
	}
	m.metadata.Union(req.Owner, valid)
	msgLogger.Debug("metadata bucket updated", "owner", req.Owner, "hashes", len(valid), "sender", sender)
	return EmptyResponse(), nil
}

func (m *MessageProto) handleGetMetadata(_ common.Address, req *Request) (*Response, error) {
	if !req.Address.Valid() {
		return nil, errors.New("malformed metadata address")
	}
	return &Response{
		Type:     GetMetadataResponseMsg,
		Metadata: m.metadata.Get(req.Address),
	}, nil
}
