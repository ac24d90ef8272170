package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/connectus-realtime/internal/auth"
	"github.com/vovakirdan/connectus-realtime/internal/config"
	"github.com/vovakirdan/connectus-realtime/internal/core"
	"github.com/vovakirdan/connectus-realtime/internal/proto"
	"github.com/vovakirdan/connectus-realtime/internal/service/calls"
	"github.com/vovakirdan/connectus-realtime/internal/store/sqlite"
)

const testGroupID = 1

var disabledTestLogger = zerolog.New(nil)

type testEnv struct {
	ts    *httptest.Server
	store *sqlite.SQLiteStore
	auth  *auth.Service
	hub   *core.Hub

	alice, bob, carol int64
}

// newTestEnv starts a full server over an in-memory store. alice and bob
// share group testGroupID; carol belongs to nothing.
func newTestEnv(t *testing.T, tweak ...func(*config.Config)) *testEnv {
	t.Helper()
	ctx := context.Background()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	env := &testEnv{store: st}
	for name, id := range map[string]*int64{"alice": &env.alice, "bob": &env.bob, "carol": &env.carol} {
		u, err := st.CreateUser(ctx, name, strings.ToUpper(name[:1])+name[1:], "")
		require.NoError(t, err)
		*id = u.ID
	}
	require.NoError(t, st.AddGroupMember(ctx, testGroupID, env.alice))
	require.NoError(t, st.AddGroupMember(ctx, testGroupID, env.bob))

	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	cfg.CommandsPerMinute = 0
	cfg.Presence.PersistMode = "sync"
	for _, fn := range tweak {
		fn(&cfg)
	}

	env.auth = auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})
	env.hub = core.NewHub(core.Deps{
		Authenticator: env.auth,
		Presence:      st,
		Users:         st,
		Memberships:   st,
		Messages:      st,
		Policy: core.PresencePolicy{
			Mode:            core.PersistSync,
			Timeout:         time.Second,
			CloseSuperseded: cfg.CloseSuperseded,
		},
		Logger: &disabledTestLogger,
	})
	callsService := calls.New(st, st, env.hub.Signaling(), &disabledTestLogger)

	server := NewServer(env.hub, env.auth, callsService, st, &cfg, &disabledTestLogger)
	env.ts = httptest.NewServer(server.Handler)
	t.Cleanup(env.ts.Close)

	return env
}

func (e *testEnv) token(t *testing.T, userID int64) string {
	t.Helper()
	token, err := e.auth.IssueToken(userID, "")
	require.NoError(t, err)
	return token
}

func (e *testEnv) dial(ctx context.Context, t *testing.T, userID int64) *websocket.Conn {
	t.Helper()
	wsURL := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws?access_token=" + e.token(t, userID)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

// do sends an authenticated JSON request as userID.
func (e *testEnv) do(t *testing.T, method, path string, userID int64, body any) (*http.Response, []byte) {
	t.Helper()
	var token string
	if userID > 0 {
		token = e.token(t, userID)
	}
	return e.request(t, method, path, token, body)
}

// doService sends a JSON request with a backend service token.
func (e *testEnv) doService(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	token, err := e.auth.IssueServiceToken("crud")
	require.NoError(t, err)
	return e.request(t, method, path, token, body)
}

func (e *testEnv) request(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

type frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func send(ctx context.Context, t *testing.T, conn *websocket.Conn, typ string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: raw}))
}

// readUntil skips frames until match accepts one.
func readUntil(ctx context.Context, t *testing.T, conn *websocket.Conn, match func(frame) bool) frame {
	t.Helper()
	for {
		var f frame
		require.NoError(t, wsjson.Read(ctx, conn, &f))
		if match(f) {
			return f
		}
	}
}

// readEvent returns the next event frame with the given name, decoded into out.
func readEvent(ctx context.Context, t *testing.T, conn *websocket.Conn, name string, out any) {
	t.Helper()
	f := readUntil(ctx, t, conn, func(f frame) bool {
		return f.Type == proto.OutboundTypeEvent && f.Event == name
	})
	if out != nil {
		require.NoError(t, json.Unmarshal(f.Data, out))
	}
}

func readError(ctx context.Context, t *testing.T, conn *websocket.Conn) *proto.Error {
	t.Helper()
	f := readUntil(ctx, t, conn, func(f frame) bool { return f.Type == proto.OutboundTypeError })
	require.NotNil(t, f.Error)
	return f.Error
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
