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

// Package overlay implements the four stacked request/response protocols of
// the secret-handshake network: base framing and correlation, shared-secret
// admission, proximity storage, and Shamir-split messaging.
package overlay

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/BinaryBand/P2P/common"
)

// Request type discriminators.
const (
	SecretHandshakeMsg      = "handshake:secret-handshake"
	RequestPulseMsg         = "handshake:request-pulse"
	NearestPeersRequestMsg  = "swarm:nearest-peers-request"
	StoreRequestMsg         = "swarm:store-request"
	FetchRequestMsg         = "swarm:fetch-request"
	StoreMetadataRequestMsg = "message:store-metadata-request"
	GetMetadataRequestMsg   = "message:get-metadata-request"
)

// Response type discriminators.
const (
	EmptyResponseMsg        = "base:empty-response"
	NearestPeersResponseMsg = "swarm:nearest-peers-response"
	FetchResponseMsg        = "swarm:fetch-response"
	GetMetadataResponseMsg  = "message:get-metadata-response"
)

var knownRequests = map[string]bool{
	SecretHandshakeMsg:      true,
	RequestPulseMsg:         true,
	NearestPeersRequestMsg:  true,
	StoreRequestMsg:         true,
	FetchRequestMsg:         true,
	StoreMetadataRequestMsg: true,
	GetMetadataRequestMsg:   true,
}

// Request is the on-wire request union. Variants populate the fields their
// discriminator calls for and leave the rest at their zero value, which
// omitempty keeps off the wire.
type Request struct {
	Type     string         `json:"type"`
	N        int            `json:"n,omitempty"`
	Hash     string         `json:"hash,omitempty"`
	Data     string         `json:"data,omitempty"`
	Owner    common.Address `json:"owner,omitempty"`
	Metadata []string       `json:"metadata,omitempty"`
	Address  common.Address `json:"address,omitempty"`
	Stamp    string         `json:"stamp,omitempty"`
}

// StampBody returns the canonical serialization the stamp covers: the
// request with its stamp field unset.
func (r *Request) StampBody() ([]byte, error) {
	clone := *r
	clone.Stamp = ""
	return json.Marshal(&clone)
}

// Response is the on-wire response union. Fragment stays un-omitted so a
// not-found fetch serializes as an explicit null.
type Response struct {
	Type     string           `json:"type"`
	Peers    []common.Address `json:"peers,omitempty"`
	Fragment *string          `json:"fragment"`
	Metadata []string         `json:"metadata,omitempty"`
}

// EmptyResponse is the acknowledgement payload of the handshake, store and
// metadata writes.
func EmptyResponse() *Response {
	return &Response{Type: EmptyResponseMsg}
}

// Return closes a request: either data or a failure message.
type Return struct {
	Success bool      `json:"success"`
	Data    *Response `json:"data,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Parcel is one wire message: correlation metadata plus a Request or Return
// payload, JSON-encoded as the entire content of one stream.
type Parcel struct {
	CallbackID string          `json:"callbackId"`
	Sender     common.Address  `json:"sender"`
	Payload    json.RawMessage `json:"payload"`
}

var (
	errBadParcel   = errors.New("malformed parcel")
	errBadPayload  = errors.New("payload is neither a request nor a return")
	errUnknownType = errors.New("unknown request type")
)

// decodeParcel parses and structurally validates one wire message. The
// returned callback id is in canonical bare form.
func decodeParcel(raw []byte) (*Parcel, string, error) {
	var parcel Parcel
	if err := json.Unmarshal(raw, &parcel); err != nil {
		return nil, "", errors.Wrap(errBadParcel, err.Error())
	}
	callbackID, err := common.ParseUUID(parcel.CallbackID)
	if err != nil {
		return nil, "", errors.Wrap(errBadParcel, "callbackId")
	}
	if !parcel.Sender.Valid() {
		return nil, "", errors.Wrap(errBadParcel, "sender")
	}
	if len(parcel.Payload) == 0 || string(parcel.Payload) == "null" {
		return nil, "", errors.Wrap(errBadParcel, "empty payload")
	}
	return &parcel, callbackID, nil
}

// decodePayload splits the payload union. Exactly one of the results is
// non-nil on success.
func decodePayload(raw json.RawMessage) (*Request, *Return, error) {
	var probe struct {
		Success *bool  `json:"success"`
		Type    string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, nil, errors.Wrap(errBadPayload, err.Error())
	}

	if probe.Success != nil {
		var ret Return
		if err := json.Unmarshal(raw, &ret); err != nil {
			return nil, nil, errors.Wrap(errBadPayload, err.Error())
		}
		return nil, &ret, nil
	}

	if !knownRequests[probe.Type] {
		return nil, nil, errors.Wrap(errUnknownType, probe.Type)
	}
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, nil, errors.Wrap(errBadPayload, err.Error())
	}
	return &req, nil, nil
}
