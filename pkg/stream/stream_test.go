package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sahoo999/meeting-ai/pkg/realtime"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(Options{APIKey: "key_123", APISecret: "secret_abc", BaseURL: baseURL})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(Options{APISecret: "s"})
	assert.Error(t, err)
	_, err = New(Options{APIKey: "k"})
	assert.Error(t, err)
}

func TestVerifyWebhook(t *testing.T) {
	c := newTestClient(t, "")
	body := []byte(`{"type":"call.session_started","call":{"custom":{"meetingId":"m1"}}}`)
	sig := c.Sign(body)

	assert.True(t, c.VerifyWebhook(body, sig))
	assert.True(t, c.VerifyWebhook(body, " "+sig+" "))
	assert.False(t, c.VerifyWebhook(body, ""))
	assert.False(t, c.VerifyWebhook(body, "not-hex"))

	// Re-serialized bodies must not verify against the original signature.
	reencoded := []byte(`{"call":{"custom":{"meetingId":"m1"}},"type":"call.session_started"}`)
	assert.False(t, c.VerifyWebhook(reencoded, sig))

	other, err := New(Options{APIKey: "key_123", APISecret: "other"})
	require.NoError(t, err)
	assert.False(t, other.VerifyWebhook(body, sig))
}

func TestUserToken_Claims(t *testing.T) {
	c := newTestClient(t, "")
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	raw, err := c.UserToken("agent_1", time.Minute)
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	_, err = jwt.NewParser(jwt.WithoutClaimsValidation()).ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte("secret_abc"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "agent_1", claims["user_id"])
	assert.EqualValues(t, fixed.Add(time.Minute).Unix(), claims["exp"])

	_, err = c.UserToken(" ", time.Minute)
	assert.Error(t, err)
}

func TestCallEnd_PostsMarkEnded(t *testing.T) {
	var gotPath, gotAuth, gotAuthType, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotAuthType = r.Header.Get("Stream-Auth-Type")
		gotKey = r.URL.Query().Get("api_key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"duration":"1ms"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	call := c.Call("", "m123")
	assert.Equal(t, "default:m123", call.CID())

	require.NoError(t, call.End(context.Background()))
	assert.Equal(t, "/api/v2/video/call/default/m123/mark_ended", gotPath)
	assert.Equal(t, "jwt", gotAuthType)
	assert.Equal(t, "key_123", gotKey)

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(gotAuth, claims, func(*jwt.Token) (any, error) { return []byte("secret_abc"), nil })
	require.NoError(t, err)
	assert.Equal(t, true, claims["server"])
}

func TestCallEnd_SurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":16,"message":"call not found","StatusCode":404}`))
	}))
	defer srv.Close()

	err := newTestClient(t, srv.URL).Call("default", "gone").End(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "call not found", apiErr.Message)
}

func TestConnectOpenAI_DialsAgentEndpoint(t *testing.T) {
	type seen struct {
		path, callType, callID, apiKey, model, auth, protocol string
	}
	seenCh := make(chan seen, 1)
	received := make(chan []byte, 1)

	upgrader := websocket.Upgrader{
		CheckOrigin:  func(*http.Request) bool { return true },
		Subprotocols: []string{"realtime"},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		seenCh <- seen{
			path:     r.URL.Path,
			callType: q.Get("call_type"),
			callID:   q.Get("call_id"),
			apiKey:   q.Get("api_key"),
			model:    q.Get("model"),
			auth:     r.Header.Get("Authorization"),
			protocol: r.Header.Get("Sec-WebSocket-Protocol"),
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- data
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	sess, err := c.Call("default", "m9").ConnectOpenAI(context.Background(), ConnectOpenAIOptions{
		OpenAIAPIKey: "sk-live",
		AgentUserID:  "agent_7",
	})
	require.NoError(t, err)
	defer sess.Close()

	got := <-seenCh
	assert.Equal(t, "/video/connect_agent", got.path)
	assert.Equal(t, "default", got.callType)
	assert.Equal(t, "m9", got.callID)
	assert.Equal(t, "key_123", got.apiKey)
	assert.Equal(t, DefaultModel, got.model)
	assert.NotEmpty(t, got.auth)
	assert.Contains(t, got.protocol, "openai-insecure-api-key.sk-live")

	require.NoError(t, sess.UpdateSession(context.Background(), realtime.SessionUpdate{Instructions: "be brief"}))
	select {
	case data := <-received:
		var ev map[string]any
		require.NoError(t, json.Unmarshal(data, &ev))
		assert.Equal(t, "session.update", ev["type"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session.update")
	}
}

func TestConnectOpenAI_RequiresKey(t *testing.T) {
	c := newTestClient(t, "")
	_, err := c.Call("default", "m1").ConnectOpenAI(context.Background(), ConnectOpenAIOptions{AgentUserID: "a"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "openai api key"))
}

func TestParseCID(t *testing.T) {
	cases := []struct {
		cid, typ, id string
	}{
		{"default:m123", "default", "m123"},
		{"m123", "m123", ""},
		{"default:", "default", ""},
		{"", "", ""},
		{"default:a:b", "default", "a"},
	}
	for _, tc := range cases {
		typ, id := ParseCID(tc.cid)
		assert.Equal(t, tc.typ, typ, tc.cid)
		assert.Equal(t, tc.id, id, tc.cid)
	}
}

func TestEventMeetingIDs(t *testing.T) {
	var started CallSessionStartedEvent
	require.NoError(t, json.Unmarshal([]byte(`{"type":"call.session_started","call":{"custom":{"meetingId":"m1"}}}`), &started))
	assert.Equal(t, "m1", started.MeetingID())

	started = CallSessionStartedEvent{}
	require.NoError(t, json.Unmarshal([]byte(`{"type":"call.session_started","call":{"custom":{"meetingId":42}}}`), &started))
	assert.Equal(t, "", started.MeetingID())

	var left CallSessionParticipantLeftEvent
	require.NoError(t, json.Unmarshal([]byte(`{"type":"call.session_participant_left","call_cid":"default:m2"}`), &left))
	assert.Equal(t, "m2", left.MeetingID())
}

func TestDecodeEventType(t *testing.T) {
	typ, ok := DecodeEventType([]byte(`{"type":"call.created"}`))
	assert.True(t, ok)
	assert.Equal(t, "call.created", typ)

	_, ok = DecodeEventType([]byte(`{not json`))
	assert.False(t, ok)

	typ, ok = DecodeEventType([]byte(`[1,2]`))
	assert.True(t, ok)
	assert.Equal(t, "", typ)
}
