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

// Package p2p wraps the connection multiplexer behind the small transport
// contract the overlay protocols are written against. The production
// implementation is Server, backed by a libp2p host; tests substitute an
// in-memory transport.
package p2p

import (
	"context"
	"io"

	"github.com/BinaryBand/P2P/common"
)

// Stream is one bidirectional ordered byte stream to a remote peer. The
// overlay writes one full parcel per stream and half-closes; the receiving
// side reads until EOF. Responses travel back on a separate stream.
type Stream interface {
	io.Reader
	io.Writer

	// CloseWrite half-closes the stream so the remote reader sees EOF.
	CloseWrite() error
	Close() error
}

// StreamHandler consumes one inbound stream. remote is the verified identity
// of the peer that opened it.
type StreamHandler func(stream Stream, remote common.Address)

// Transport is the contract the overlay requires from the connection layer.
type Transport interface {
	// SelfAddress returns this node's own durable address.
	SelfAddress() common.Address

	// OpenStream opens a fresh outbound stream speaking protocolID.
	OpenStream(ctx context.Context, peer common.Address, protocolID string) (Stream, error)

	// RegisterHandler routes inbound streams of protocolID to handler.
	RegisterHandler(protocolID string, handler StreamHandler)

	// UnregisterHandler removes the route for protocolID.
	UnregisterHandler(protocolID string)

	// Notify installs the peer lifecycle callbacks. connected fires once a
	// remote identity is verified, disconnected once its last connection is
	// gone. Either may be nil.
	Notify(connected, disconnected func(common.Address))

	// Close tears the transport down.
	Close() error
}
