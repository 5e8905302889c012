package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Aaditya4007/AI-interviewer/internal/media"
	"github.com/Aaditya4007/AI-interviewer/internal/media/mediatest"
	"github.com/Aaditya4007/AI-interviewer/internal/provision"
	"github.com/Aaditya4007/AI-interviewer/internal/records"
	"github.com/Aaditya4007/AI-interviewer/internal/tokens"
)

const testOrigin = "http://localhost:3000"

type testEnv struct {
	handler  http.Handler
	provider *mediatest.Provider
	store    *records.MemoryStore
	signer   *tokens.Signer
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	logger := log.New(os.Stdout, "httpapi-test ", 0)
	signer, err := tokens.NewSigner("devkey", "devsecret")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	provider := mediatest.New()
	store := records.NewMemoryStore()
	engine, err := provision.NewEngine(provision.Options{Provider: provider, Store: store, Logger: logger})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	handler := NewHandler(Deps{
		Logger:            logger,
		Provisioner:       engine,
		Tokens:            tokens.NewIssuer(signer, "", 0),
		Rooms:             provider,
		AllowedOrigin:     testOrigin,
		RoomsPollInterval: 20 * time.Millisecond,
	})
	return testEnv{handler: handler, provider: provider, store: store, signer: signer}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not json: %q", rr.Body.String())
	}
	if body["error"] == "" {
		t.Fatalf("expected error field, got %q", rr.Body.String())
	}
	return body["error"]
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rr := doJSON(t, env.handler, http.MethodGet, "/healthz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	rr = doJSON(t, env.handler, http.MethodPost, "/healthz", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
	decodeError(t, rr)
}

func TestCreateRoomEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	rr := doJSON(t, env.handler, http.MethodPost, "/create-room", map[string]string{
		"roomName":      "cand1_123",
		"adminIdentity": "jane",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp createRoomResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RoomName != "cand1_123" || resp.SessionSID == "" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.AdminToken == "" || resp.AgentToken == "" || resp.AdminToken == resp.AgentToken {
		t.Fatalf("expected two distinct tokens, got %+v", resp)
	}

	admin, err := env.signer.Parse(resp.AdminToken)
	if err != nil {
		t.Fatalf("parse admin token: %v", err)
	}
	if admin.Identity() != "jane" || !admin.Video.RoomAdmin || admin.Video.Room != "cand1_123" {
		t.Fatalf("unexpected admin claims %+v video=%+v", admin, admin.Video)
	}

	agent, err := env.signer.Parse(resp.AgentToken)
	if err != nil {
		t.Fatalf("parse agent token: %v", err)
	}
	if agent.Identity() != tokens.DefaultAgentIdentity || agent.Video.RoomAdmin {
		t.Fatalf("agent token must be the reserved identity without admin, got %+v video=%+v", agent, agent.Video)
	}
	if agent.Kind != tokens.KindAgent || !agent.Video.Agent {
		t.Fatalf("agent token must be marked as agent, got kind=%q video=%+v", agent.Kind, agent.Video)
	}
	if env.store.Sessions() != 1 {
		t.Fatalf("expected one session record, got %d", env.store.Sessions())
	}
}

func TestCreateRoomLegacyPrefix(t *testing.T) {
	env := newTestEnv(t)
	rr := doJSON(t, env.handler, http.MethodPost, LegacyPrefix+"/create-room", map[string]string{
		"roomName":      "cand2_1",
		"adminIdentity": "admin",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCreateRoomValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []any{
		map[string]string{"roomName": "cand_1"},
		map[string]string{"adminIdentity": "jane"},
		map[string]string{"roomName": " ", "adminIdentity": "jane"},
		map[string]any{"roomName": "cand_1", "adminIdentity": "jane", "extra": true},
	}
	for _, body := range cases {
		rr := doJSON(t, env.handler, http.MethodPost, "/create-room", body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %v: expected 400, got %d", body, rr.Code)
		}
		decodeError(t, rr)
	}
	if env.provider.EnsureCalls() != 0 {
		t.Fatalf("invalid requests must not reach the provider")
	}

	req := httptest.NewRequest(http.MethodPost, "/create-room", strings.NewReader(`{"roomName":"a","adminIdentity":"b"} {}`))
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for trailing content, got %d", rr.Code)
	}
}

func TestCreateRoomProviderFailure(t *testing.T) {
	env := newTestEnv(t)
	env.provider.EnsureErr = errors.New("media server down")

	rr := doJSON(t, env.handler, http.MethodPost, "/create-room", map[string]string{
		"roomName":      "cand3_1",
		"adminIdentity": "jane",
	})
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if msg := decodeError(t, rr); strings.Contains(msg, "media server down") {
		t.Fatalf("internal error details must not leak: %q", msg)
	}
}

func TestGenerateToken(t *testing.T) {
	env := newTestEnv(t)
	rr := doJSON(t, env.handler, http.MethodPost, "/generate-token", map[string]any{
		"roomName":            "cand1_1",
		"participantIdentity": "bob",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp generateTokenResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	claims, err := env.signer.Parse(resp.Token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if resp.Identity != "bob" || claims.Identity() != "bob" || claims.Video.RoomAdmin {
		t.Fatalf("unexpected participant token %+v", claims.Video)
	}
}

func TestGenerateTokenReservedIdentity(t *testing.T) {
	env := newTestEnv(t)
	rr := doJSON(t, env.handler, http.MethodPost, LegacyPrefix+"/generate-token", map[string]any{
		"roomName":            "cand1_1",
		"participantIdentity": tokens.DefaultAgentIdentity,
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	decodeError(t, rr)

	rr = doJSON(t, env.handler, http.MethodPost, "/generate-token", map[string]any{
		"roomName":            "cand1_1",
		"participantIdentity": tokens.DefaultAgentIdentity,
		"isAdmin":             true,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected admin to receive reserved identity, got %d", rr.Code)
	}
}

func TestGenerateTokenMissingFields(t *testing.T) {
	env := newTestEnv(t)
	rr := doJSON(t, env.handler, http.MethodPost, "/generate-token", map[string]any{"roomName": "x"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	rr = doJSON(t, env.handler, http.MethodGet, "/generate-token", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestListRooms(t *testing.T) {
	env := newTestEnv(t)
	rr := doJSON(t, env.handler, http.MethodGet, "/rooms", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body := strings.TrimSpace(rr.Body.String()); body != "[]" {
		t.Fatalf("expected empty array, got %q", body)
	}

	env.provider.AddRoom(media.Room{SID: "RM_1", Name: "cand1_1", NumParticipants: 3, CreationTime: time.Unix(1700000000, 0)})
	rr = doJSON(t, env.handler, http.MethodGet, LegacyPrefix+"/rooms", nil)
	var rooms []roomView
	if err := json.Unmarshal(rr.Body.Bytes(), &rooms); err != nil {
		t.Fatalf("decode rooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].NumParticipants != 3 || rooms[0].CreationTime != 1700000000 {
		t.Fatalf("unexpected rooms %+v", rooms)
	}
}

type failingLister struct{}

func (failingLister) ListRooms(context.Context) ([]media.Room, error) {
	return nil, errors.New("boom")
}

func TestListRoomsFailure(t *testing.T) {
	h := NewHandler(Deps{Rooms: failingLister{}})
	rr := doJSON(t, h, http.MethodGet, "/rooms", nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	decodeError(t, rr)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/create-room", nil)
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != testOrigin {
		t.Fatalf("expected allowed origin header, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/rooms", nil)
	req.Header.Set("Origin", "http://evil.example")
	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow-origin for foreign origin: %q", got)
	}
}

func TestCORSWithoutConfiguredOriginAllowsNone(t *testing.T) {
	handler := NewHandler(Deps{Rooms: failingLister{}})
	req := httptest.NewRequest(http.MethodOptions, "/create-room", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allowed origin without configuration, got %q", got)
	}
}

func TestRoomsWSStreamsSnapshots(t *testing.T) {
	env := newTestEnv(t)
	env.provider.AddRoom(media.Room{SID: "RM_1", Name: "cand1_1", NumParticipants: 1})
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/rooms/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first roomsSnapshot
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first snapshot: %v", err)
	}
	if len(first.Rooms) != 1 || first.Rooms[0].SID != "RM_1" {
		t.Fatalf("unexpected first snapshot %+v", first)
	}

	env.provider.AddRoom(media.Room{SID: "RM_2", Name: "cand2_1"})
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var next roomsSnapshot
		if err := conn.ReadJSON(&next); err != nil {
			t.Fatalf("read snapshot: %v", err)
		}
		if len(next.Rooms) == 2 {
			return
		}
	}
	t.Fatalf("did not observe the new room")
}

func TestRoomsWSRejectsCrossOrigin(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + LegacyPrefix + "/rooms/ws"
	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatalf("expected cross-origin dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 response, got %+v", resp)
	}

	header.Set("Origin", testOrigin)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("expected frontend origin to be accepted: %v", err)
	}
	_ = conn.Close()
}
