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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BinaryBand/P2P/common"
)

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestDecodeParcelAcceptsTaggedUUID(t *testing.T) {
	sender := common.BytesToAddress([]byte("sender"))
	id := common.NewUUID()

	for _, wireID := range []string{id, common.TagUUID + id} {
		raw := mustJSON(t, &Parcel{
			CallbackID: wireID,
			Sender:     sender,
			Payload:    mustJSON(t, &Request{Type: RequestPulseMsg}),
		})
		_, callbackID, err := decodeParcel(raw)
		require.NoError(t, err)
		assert.Equal(t, id, callbackID)
	}
}

func TestDecodeParcelRejects(t *testing.T) {
	sender := common.BytesToAddress([]byte("sender"))
	payload := mustJSON(t, &Request{Type: RequestPulseMsg})

	cases := map[string][]byte{
		"garbage":     []byte("{not json"),
		"bad uuid":    mustJSON(t, &Parcel{CallbackID: "nope", Sender: sender, Payload: payload}),
		"bad sender":  mustJSON(t, &Parcel{CallbackID: common.NewUUID(), Sender: "bogus", Payload: payload}),
		"no payload":  mustJSON(t, &Parcel{CallbackID: common.NewUUID(), Sender: sender}),
	}
	for name, raw := range cases {
		_, _, err := decodeParcel(raw)
		assert.Error(t, err, name)
	}
}

func TestDecodePayloadUnion(t *testing.T) {
	req, ret, err := decodePayload(mustJSON(t, &Request{Type: StoreRequestMsg, Data: "x"}))
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Nil(t, ret)
	assert.Equal(t, "x", req.Data)

	req, ret, err = decodePayload(mustJSON(t, &Return{Success: false, Message: "denied"}))
	require.NoError(t, err)
	require.NotNil(t, ret)
	assert.Nil(t, req)
	assert.Equal(t, "denied", ret.Message)

	_, _, err = decodePayload(mustJSON(t, &Request{Type: "bogus:request"}))
	assert.ErrorIs(t, err, errUnknownType)
}

func TestStampBodyExcludesStamp(t *testing.T) {
	req := &Request{Type: FetchRequestMsg, Hash: "base64,AA=="}

	unstamped, err := req.StampBody()
	require.NoError(t, err)

	req.Stamp = "c3RhbXA="
	stamped, err := req.StampBody()
	require.NoError(t, err)

	assert.Equal(t, unstamped, stamped)
	assert.NotContains(t, string(stamped), "c3RhbXA=")
}

func TestRequestOmitsEmptyFields(t *testing.T) {
	raw := mustJSON(t, &Request{Type: RequestPulseMsg, Stamp: "eA=="})
	assert.JSONEq(t, `{"type":"handshake:request-pulse","stamp":"eA=="}`, string(raw))
}
