// OpenTag3D Core
// Copyright (c) 2026 The OpenTag3D Core Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of OpenTag3D Core.
//
// OpenTag3D Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// OpenTag3D Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with OpenTag3D Core.  If not, see <http://www.gnu.org/licenses/>.

package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/OpenTag3D/opentag3d-core/pkg/api/models"
	"github.com/OpenTag3D/opentag3d-core/pkg/config"
	"github.com/OpenTag3D/opentag3d-core/pkg/database"
	"github.com/OpenTag3D/opentag3d-core/pkg/opentag3d"
	"github.com/OpenTag3D/opentag3d-core/pkg/service/tagstate"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistory struct {
	entries []database.HistoryEntry
	err     error
}

func (f *fakeHistory) Add(e *database.HistoryEntry) error {
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeHistory) Recent(limit int) ([]database.HistoryEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.entries) {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

func (*fakeHistory) Cleanup(int) (int64, error) { return 0, nil }

func (*fakeHistory) ExportCSV(w io.Writer) error {
	_, err := io.WriteString(w, "time,source\n")
	return err
}

func (*fakeHistory) Close() error { return nil }

type staticReaders []models.ReaderParams

func (s staticReaders) Readers() []models.ReaderParams { return s }

func testPayload() string {
	raw := make([]byte, opentag3d.CoreLength)
	copy(raw, "OT")
	copy(raw[0x14:], "PLA")
	raw[0x4E] = 42
	raw[0x4F] = 12
	return hex.EncodeToString(raw)
}

func newTestServer(t *testing.T, history database.HistoryDBI) (*Server, chan models.Notification) {
	t.Helper()
	ns := make(chan models.Notification, 10)
	session := tagstate.NewSession(clockwork.NewFakeClock(), ns)
	rl := staticReaders{{ID: "file:/tmp/tag", Driver: "file", Capabilities: []string{"refresh"}}}
	s := NewServer(&config.Instance{}, session, history, rl, ns, clockwork.NewFakeClock())
	return s, ns
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http")+"/api", nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type rpcResponse struct {
	Result json.RawMessage     `json:"result"`
	Error  *models.ErrorObject `json:"error"`
	ID     uuid.UUID           `json:"id"`
}

func call(t *testing.T, conn *websocket.Conn, method string, params any) rpcResponse {
	t.Helper()
	id := uuid.New()
	req := map[string]any{"jsonrpc": "2.0", "id": id, "method": method}
	if params != nil {
		req["params"] = params
	}
	require.NoError(t, conn.WriteJSON(req))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var resp rpcResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, id, resp.ID)
	return resp
}

func TestWebSocket_TagSetAndGet(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()
	conn := dial(t, ts.URL)

	resp := call(t, conn, models.MethodTagSet, map[string]any{
		"payload": testPayload(),
		"fields":  map[string]any{"REMAINING": 750, "COLOR": "#FF0000"},
	})
	require.Nil(t, resp.Error)

	var tag models.TagResponse
	require.NoError(t, json.Unmarshal(resp.Result, &tag))
	assert.Equal(t, "OT", tag.TagFormat)
	assert.Equal(t, "PLA", tag.FilamentMaterial)
	assert.InDelta(t, 210.0, tag.RecommendedNozzleTemp, 0.001)
	assert.InDelta(t, 60.0, tag.RecommendedBedTemp, 0.001)
	assert.InDelta(t, 750.0, tag.RemainingFilament, 0.001)
	assert.Equal(t, "#FF0000", tag.FilamentColor)
	assert.Equal(t, "api", tag.Source)
	require.NotNil(t, tag.UpdatedAt)

	resp = call(t, conn, models.MethodTag, nil)
	require.Nil(t, resp.Error)
	var again models.TagResponse
	require.NoError(t, json.Unmarshal(resp.Result, &again))
	assert.Equal(t, tag.State, again.State)
}

func TestWebSocket_Errors(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()
	conn := dial(t, ts.URL)

	tests := []struct {
		params  any
		name    string
		method  string
		message string
		code    int
	}{
		{name: "unknown method", method: "media.launch", code: -32601},
		{
			name:    "bad payload",
			method:  models.MethodTagSet,
			params:  map[string]any{"payload": "ABC"},
			code:    -32602,
			message: "payload",
		},
		{
			name:    "bad color",
			method:  models.MethodTagSet,
			params:  map[string]any{"fields": map[string]any{"COLOR_1_RGBA": "#12"}},
			code:    -32602,
			message: "color",
		},
		{
			name:    "nothing to set",
			method:  models.MethodTagSet,
			params:  map[string]any{"fields": map[string]any{"UNKNOWN": 1}},
			code:    -32602,
			message: "payload or fields required",
		},
		{
			name:    "wrong format surfaced verbatim",
			method:  models.MethodTagSet,
			params:  map[string]any{"payload": "5858" + strings.Repeat("00", opentag3d.CoreLength-2)},
			code:    -32000,
			message: "XX",
		},
		{name: "missing params", method: models.MethodTagDecode, code: -32602},
		{name: "refresh without reader", method: models.MethodTagRefresh, code: -32000, message: "not supported"},
		{
			name:    "negative remaining",
			method:  models.MethodTagRemaining,
			params:  map[string]any{"remaining": -1},
			code:    -32602,
		},
		{name: "history disabled", method: models.MethodTagHistory, code: -32000, message: "disabled"},
	}

	for _, tt := range tests {
		resp := call(t, conn, tt.method, tt.params)
		require.NotNil(t, resp.Error, tt.name)
		assert.Equal(t, tt.code, resp.Error.Code, tt.name)
		assert.Contains(t, resp.Error.Message, tt.message, tt.name)
	}
}

func TestWebSocket_DecodeVersionReaders(t *testing.T) {
	t.Parallel()

	s, ns := newTestServer(t, nil)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()
	conn := dial(t, ts.URL)

	resp := call(t, conn, models.MethodTagDecode, map[string]any{"payload": testPayload()})
	require.Nil(t, resp.Error)
	var decoded models.DecodeResponse
	require.NoError(t, json.Unmarshal(resp.Result, &decoded))
	assert.True(t, decoded.Valid)
	require.NotNil(t, decoded.Record)
	assert.Equal(t, "PLA", decoded.Record.BaseMaterial)
	assert.Empty(t, ns, "decode doesn't touch the session")

	resp = call(t, conn, models.MethodVersion, nil)
	require.Nil(t, resp.Error)
	var version models.VersionResponse
	require.NoError(t, json.Unmarshal(resp.Result, &version))
	assert.Equal(t, config.AppVersion, version.Version)

	resp = call(t, conn, models.MethodReaders, nil)
	require.Nil(t, resp.Error)
	var rs models.ReadersResponse
	require.NoError(t, json.Unmarshal(resp.Result, &rs))
	require.Len(t, rs.Readers, 1)
	assert.Equal(t, "file", rs.Readers[0].Driver)
}

func TestWebSocket_History(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{entries: []database.HistoryEntry{
		{Source: "file:/tmp/a", Material: "PLA", Success: true},
		{Source: "api", Error: "bad", Success: false},
	}}
	s, _ := newTestServer(t, history)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()
	conn := dial(t, ts.URL)

	resp := call(t, conn, models.MethodTagHistory, map[string]any{"limit": 1})
	require.Nil(t, resp.Error)
	var hr models.HistoryResponse
	require.NoError(t, json.Unmarshal(resp.Result, &hr))
	require.Len(t, hr.Entries, 1)
	assert.Equal(t, "PLA", hr.Entries[0].Material)

	resp = call(t, conn, models.MethodTagHistory, map[string]any{"limit": 0})
	require.NotNil(t, resp.Error)

	history.err = errors.New("db locked")
	resp = call(t, conn, models.MethodTagHistory, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "error getting history", resp.Error.Message)
}

func TestWebSocket_PingAndMalformed(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()
	conn := dial(t, ts.URL)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "pong", string(msg))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	var resp rpcResponse
	require.NoError(t, conn.ReadJSON(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, JSONRPCErrorParseError.Code, resp.Error.Code)

	require.NoError(t, conn.WriteJSON(map[string]any{"jsonrpc": "1.0", "method": "tag", "id": uuid.New()}))
	require.NoError(t, conn.ReadJSON(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, JSONRPCErrorInvalidRequest.Code, resp.Error.Code)
}

func TestStatusAndHistoryCSV(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &fakeHistory{})
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	var tag models.TagResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&tag))
	assert.Nil(t, tag.UpdatedAt)

	csvRes, err := http.Get(ts.URL + "/history.csv")
	require.NoError(t, err)
	defer csvRes.Body.Close()
	body, err := io.ReadAll(csvRes.Body)
	require.NoError(t, err)
	assert.Equal(t, "time,source\n", string(body))

	noHistory, _ := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	noHistory.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history.csv", http.NoBody))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeListener_BroadcastsNotifications(t *testing.T) {
	t.Parallel()

	s, ns := newTestServer(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.ServeListener(ctx, ln) }()

	conn := dial(t, "http://"+ln.Addr().String())
	require.Eventually(t, func() bool { return s.melody.Len() == 1 }, time.Second, 5*time.Millisecond)

	ns <- models.Notification{Method: models.NotificationReadersRemoved, Params: json.RawMessage(`"file:/x"`)}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var notif models.RequestObject
	require.NoError(t, conn.ReadJSON(&notif))
	assert.Equal(t, models.NotificationReadersRemoved, notif.Method)
	assert.Nil(t, notif.ID)
	assert.JSONEq(t, `"file:/x"`, string(notif.Params))

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
