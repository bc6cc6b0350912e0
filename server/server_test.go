package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/hblackburnRedev/SmartMeter/billing"
	"github.com/hblackburnRedev/SmartMeter/config"
	"github.com/hblackburnRedev/SmartMeter/directory"
	"github.com/hblackburnRedev/SmartMeter/protocol"
	"github.com/hblackburnRedev/SmartMeter/testutil"
)

type serverFixture struct {
	srv      *Server
	ts       *httptest.Server
	registry *Registry
	dir      *directory.Directory
	engine   *billing.Engine
	cancel   context.CancelFunc
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	logger := testutil.NewTestLogger()
	root := t.TempDir()
	rates := billing.NewRateCache(logger, testutil.WriteRateTable(t))
	engine := billing.NewEngine(logger, rates, billing.NewLedgerStore(logger, root))
	dir := directory.New(logger, root)
	registry := NewRegistry()

	cfg := config.DefaultServerConfig()
	cfg.APIKey = testutil.TestAPIKey
	cfg.ReadingsDir = root

	srv := New(logger, &cfg, registry, engine, dir)
	ctx, cancel := context.WithCancel(context.Background())
	srv.connCtx = ctx

	ts := httptest.NewServer(http.HandlerFunc(srv.handleConnect))
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})

	return &serverFixture{
		srv:      srv,
		ts:       ts,
		registry: registry,
		dir:      dir,
		engine:   engine,
		cancel:   cancel,
	}
}

func (f *serverFixture) wsURL(query string) string {
	u := "ws" + strings.TrimPrefix(f.ts.URL, "http")
	if query != "" {
		u += "?" + query
	}
	return u
}

func (f *serverFixture) dial(t *testing.T, clientID string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(
		f.wsURL("clientId="+clientID+"&apiKey="+testutil.TestAPIKey), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// expectClose reads until the peer's close frame and returns it.
func expectClose(t *testing.T, conn *websocket.Conn) *websocket.CloseError {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			require.ErrorAs(t, err, &closeErr, "expected a close frame, got %v", err)
			return closeErr
		}
	}
}

func TestRejectsNonWebSocketRequest(t *testing.T) {
	f := newServerFixture(t)

	resp, err := http.Get(f.ts.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "This server only supports WebSocket connections.", strings.TrimSpace(string(body)))
}

func TestRejectsMissingCredentials(t *testing.T) {
	f := newServerFixture(t)

	tests := []struct {
		name  string
		query string
	}{
		{name: "no credentials", query: ""},
		{name: "missing api key", query: "clientId=" + testutil.TestClientID},
		{name: "missing client id", query: "apiKey=" + testutil.TestAPIKey},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			conn, resp, err := websocket.DefaultDialer.Dial(f.wsURL(tc.query), nil)
			require.Error(t, err)
			require.Nil(t, conn)
			require.NotNil(t, resp)
			defer func() { _ = resp.Body.Close() }()

			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			require.Equal(t, "Unauthorized: invalid credentials.", strings.TrimSpace(string(body)))
		})
	}
}

func TestRejectsInvalidAPIKey(t *testing.T) {
	f := newServerFixture(t)

	conn, resp, err := websocket.DefaultDialer.Dial(
		f.wsURL("clientId="+testutil.TestClientID+"&apiKey=wrong"), nil)
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, resp)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "Unauthorized: invalid API key.", strings.TrimSpace(string(body)))
}

func TestAcceptsHeaderCredentials(t *testing.T) {
	f := newServerFixture(t)
	_, err := f.dir.Create(testutil.TestClientID, "Meter One", "1 High St")
	require.NoError(t, err)

	header := http.Header{}
	header.Set("ClientId", testutil.TestClientID)
	header.Set("ApiKey", testutil.TestAPIKey)

	conn, resp, err := websocket.DefaultDialer.Dial(f.wsURL(""), header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	// The session is live: a reading round-trips.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"region":"London","usage":4}`)))
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.JSONEq(t, `{"region":"London","usage":4,"total":1}`, string(data))
}

func TestQueryParametersWinOverHeaders(t *testing.T) {
	f := newServerFixture(t)
	_, err := f.dir.Create(testutil.TestClientID, "Meter One", "1 High St")
	require.NoError(t, err)

	// Headers carry a bad key; query parameters take precedence.
	header := http.Header{}
	header.Set("ClientId", "someone-else")
	header.Set("ApiKey", "wrong")

	conn, resp, err := websocket.DefaultDialer.Dial(
		f.wsURL("clientId="+testutil.TestClientID+"&apiKey="+testutil.TestAPIKey), header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	_ = conn.Close()
}

func TestNewClientRegistrationFlow(t *testing.T) {
	f := newServerFixture(t)
	conn := f.dial(t, testutil.TestClientID)

	// First message from an unknown client must be a registration.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"name":"Meter One","address":"1 High St"}`)))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var profile directory.Profile
	require.NoError(t, json.Unmarshal(data, &profile))
	require.Equal(t, testutil.TestClientID, profile.ClientID)
	require.Equal(t, "Meter One", profile.Name)

	// Once registered, readings are accepted on the same connection.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"region":"London","usage":100}`)))
	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	require.JSONEq(t, `{"region":"London","usage":100,"total":25}`, string(data))
}

func TestInvalidFirstMessageClosesConnection(t *testing.T) {
	f := newServerFixture(t)
	conn := f.dial(t, testutil.TestClientID)

	// A reading from an unregistered client is not a registration payload.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"region":"London","usage":100}`)))

	closeErr := expectClose(t, conn)
	require.Equal(t, CloseInvalidPayload, closeErr.Code)
	require.Equal(t, closeReasonInvalidPayload, closeErr.Text)

	// The session is gone and nothing was billed.
	require.Eventually(t, func() bool { return f.registry.Len() == 0 },
		2*time.Second, 10*time.Millisecond)
	entries, err := f.engine.GetClientReadingsForDate(testutil.TestClientID, time.Now().UTC())
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestSteadyReadingSequence(t *testing.T) {
	f := newServerFixture(t)
	_, err := f.dir.Create(testutil.TestClientID, "Meter One", "1 High St")
	require.NoError(t, err)

	conn := f.dial(t, testutil.TestClientID)
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	// Ten readings over one open connection, responses in order.
	for i := 1; i <= 10; i++ {
		req, err := json.Marshal(protocol.ReadingRequest{Region: "Yorkshire", Usage: float64(i * 10)})
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, req))

		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var resp protocol.ReadingResponse
		require.NoError(t, json.Unmarshal(data, &resp))
		require.Equal(t, "Yorkshire", resp.Region)
		require.Equal(t, float64(i*10), resp.Usage)
		require.InDelta(t, float64(i*10)*0.15, resp.Total, 1e-9)
	}

	entries, err := f.engine.GetClientReadingsForDate(testutil.TestClientID, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, entries, 10)
}

func TestUnknownRegionClosesWithInvalidPayload(t *testing.T) {
	f := newServerFixture(t)
	_, err := f.dir.Create(testutil.TestClientID, "Meter One", "1 High St")
	require.NoError(t, err)

	conn := f.dial(t, testutil.TestClientID)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"region":"Atlantis","usage":1}`)))

	closeErr := expectClose(t, conn)
	require.Equal(t, CloseInvalidPayload, closeErr.Code)
}

func TestPeerCloseRemovesSession(t *testing.T) {
	f := newServerFixture(t)
	_, err := f.dir.Create(testutil.TestClientID, "Meter One", "1 High St")
	require.NoError(t, err)

	conn := f.dial(t, testutil.TestClientID)
	require.Eventually(t, func() bool { return f.registry.Len() == 1 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	require.Eventually(t, func() bool { return f.registry.Len() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestAbruptDisconnectRecordedAsAbnormal(t *testing.T) {
	f := newServerFixture(t)
	_, err := f.dir.Create(testutil.TestClientID, "Meter One", "1 High St")
	require.NoError(t, err)

	before := promtestutil.ToFloat64(sessionsClosed.WithLabelValues(closeCodeName(CloseAbnormalClosure)))

	conn := f.dial(t, testutil.TestClientID)
	require.Eventually(t, func() bool { return f.registry.Len() == 1 },
		2*time.Second, 10*time.Millisecond)

	// Tear the transport down without a close handshake.
	require.NoError(t, conn.UnderlyingConn().Close())

	require.Eventually(t, func() bool { return f.registry.Len() == 0 },
		2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		after := promtestutil.ToFloat64(sessionsClosed.WithLabelValues(closeCodeName(CloseAbnormalClosure)))
		return after == before+1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestShutdownClosesSessionsWithEndpointUnavailable(t *testing.T) {
	f := newServerFixture(t)
	_, err := f.dir.Create(testutil.TestClientID, "Meter One", "1 High St")
	require.NoError(t, err)

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = f.dial(t, testutil.TestClientID)
	}
	require.Eventually(t, func() bool { return f.registry.Len() == 3 },
		2*time.Second, 10*time.Millisecond)

	// Cooperative shutdown signal.
	f.cancel()

	for _, conn := range conns {
		closeErr := expectClose(t, conn)
		require.Equal(t, CloseGoingAway, closeErr.Code)
		require.Equal(t, closeReasonUnavailable, closeErr.Text)
	}

	require.Eventually(t, func() bool { return f.registry.Len() == 0 },
		2*time.Second, 10*time.Millisecond)
}
