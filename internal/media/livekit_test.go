package media

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Aaditya4007/AI-interviewer/internal/tokens"
)

type recordedCall struct {
	path  string
	body  map[string]any
	grant *tokens.VideoGrant
}

type twirpStub struct {
	t      *testing.T
	signer *tokens.Signer

	mu        sync.Mutex
	calls     []recordedCall
	responses map[string]func(w http.ResponseWriter)
}

func newTwirpStub(t *testing.T, signer *tokens.Signer) (*twirpStub, *httptest.Server) {
	stub := &twirpStub{t: t, signer: signer, responses: make(map[string]func(http.ResponseWriter))}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	return stub, srv
}

func (s *twirpStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)

	call := recordedCall{path: r.URL.Path, body: body}
	bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if claims, err := s.signer.Parse(bearer); err == nil {
		call.grant = claims.Video
	}
	s.mu.Lock()
	s.calls = append(s.calls, call)
	respond := s.responses[r.URL.Path]
	s.mu.Unlock()

	if respond == nil {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"bad_route","msg":"no handler"}`))
		return
	}
	respond(w)
}

func (s *twirpStub) on(path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[path] = func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func (s *twirpStub) lastCall() recordedCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		s.t.Fatalf("no calls recorded")
	}
	return s.calls[len(s.calls)-1]
}

func newTestClient(t *testing.T) (*LiveKitClient, *twirpStub) {
	t.Helper()
	signer, err := tokens.NewSigner("devkey", "devsecret")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	stub, srv := newTwirpStub(t, signer)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := NewLiveKitClient(wsURL, signer)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, stub
}

func TestHTTPBaseURL(t *testing.T) {
	cases := map[string]string{
		"wss://demo.livekit.cloud":  "https://demo.livekit.cloud",
		"ws://127.0.0.1:7880/":      "http://127.0.0.1:7880",
		"https://media.example.com": "https://media.example.com",
	}
	for in, want := range cases {
		got, err := HTTPBaseURL(in)
		if err != nil {
			t.Fatalf("HTTPBaseURL(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("HTTPBaseURL(%q) = %q, want %q", in, got, want)
		}
	}
	for _, bad := range []string{"", "ftp://x", "ws://"} {
		if _, err := HTTPBaseURL(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestEnsureRoomSendsConfigAndDecodesRoom(t *testing.T) {
	client, stub := newTestClient(t)
	stub.on(roomServicePrefix+"CreateRoom", http.StatusOK,
		`{"sid":"RM_abc","name":"cand1_1","empty_timeout":600,"max_participants":10,"creation_time":"1700000000","num_participants":0}`)

	room, err := client.EnsureRoom(context.Background(), " cand1_1 ", DefaultRoomConfig())
	if err != nil {
		t.Fatalf("ensure room: %v", err)
	}
	if room.SID != "RM_abc" || room.Name != "cand1_1" {
		t.Fatalf("unexpected room: %+v", room)
	}
	if room.EmptyTimeout != 10*time.Minute || room.MaxParticipants != 10 {
		t.Fatalf("unexpected room config: %+v", room)
	}
	if !room.CreationTime.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("unexpected creation time %s", room.CreationTime)
	}

	call := stub.lastCall()
	if call.body["name"] != "cand1_1" || call.body["empty_timeout"] != float64(600) || call.body["max_participants"] != float64(10) {
		t.Fatalf("unexpected create body: %+v", call.body)
	}
	if call.grant == nil || !call.grant.RoomCreate || call.grant.RoomList {
		t.Fatalf("expected roomCreate-only service grant, got %+v", call.grant)
	}
}

func TestEnsureRoomMapsAlreadyExists(t *testing.T) {
	client, stub := newTestClient(t)
	stub.on(roomServicePrefix+"CreateRoom", http.StatusConflict, `{"code":"already_exists","msg":"room exists"}`)

	_, err := client.EnsureRoom(context.Background(), "cand1_1", DefaultRoomConfig())
	if !errors.Is(err, ErrRoomExists) {
		t.Fatalf("expected ErrRoomExists, got %v", err)
	}
	var twerr *TwirpError
	if !errors.As(err, &twerr) || twerr.Status != http.StatusConflict {
		t.Fatalf("expected TwirpError with status, got %v", err)
	}
}

func TestEnsureRoomNonTwirpFailure(t *testing.T) {
	client, stub := newTestClient(t)
	stub.on(roomServicePrefix+"CreateRoom", http.StatusBadGateway, `<html>bad gateway</html>`)

	_, err := client.EnsureRoom(context.Background(), "cand1_1", DefaultRoomConfig())
	if err == nil || errors.Is(err, ErrRoomExists) {
		t.Fatalf("expected plain failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status in error, got %v", err)
	}
}

func TestListRoomsAndGetRoom(t *testing.T) {
	client, stub := newTestClient(t)
	stub.on(roomServicePrefix+"ListRooms", http.StatusOK,
		`{"rooms":[{"sid":"RM_1","name":"a_1","num_participants":2,"creation_time":1700000000},{"sid":"RM_2","name":"b_2","num_participants":"1"}]}`)

	rooms, err := client.ListRooms(context.Background())
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	if len(rooms) != 2 || rooms[0].NumParticipants != 2 || rooms[1].NumParticipants != 1 {
		t.Fatalf("unexpected rooms: %+v", rooms)
	}
	if _, ok := stub.lastCall().body["names"]; ok {
		t.Fatalf("list all must not send a names filter")
	}
	if g := stub.lastCall().grant; g == nil || !g.RoomList {
		t.Fatalf("expected roomList grant, got %+v", g)
	}

	room, err := client.GetRoom(context.Background(), "b_2")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if room.SID != "RM_2" {
		t.Fatalf("unexpected room %+v", room)
	}
	names, _ := stub.lastCall().body["names"].([]any)
	if len(names) != 1 || names[0] != "b_2" {
		t.Fatalf("expected names filter, got %+v", stub.lastCall().body)
	}

	if _, err := client.GetRoom(context.Background(), "missing_1"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestListRoomsEmpty(t *testing.T) {
	client, stub := newTestClient(t)
	stub.on(roomServicePrefix+"ListRooms", http.StatusOK, `{}`)

	rooms, err := client.ListRooms(context.Background())
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	if rooms == nil || len(rooms) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", rooms)
	}
}

func TestStartCompositeRecording(t *testing.T) {
	client, stub := newTestClient(t)
	stub.on(egressPrefix+"StartRoomCompositeEgress", http.StatusOK, `{"egress_id":"EG_1","status":"EGRESS_STARTING"}`)

	info, err := client.StartCompositeRecording(context.Background(), CompositeRecordingRequest{
		RoomName: "cand1_1",
		Layout:   "speaker-dark",
		Preset:   "H264_720P_30FPS_3_LAYERS",
		FileType: "MP4",
		Filepath: "cand1_1_RM_1/interview_session.mp4",
		Upload:   GCPUpload{Credentials: `{"project_id":"p"}`, Bucket: "bucket"},
	})
	if err != nil {
		t.Fatalf("start recording: %v", err)
	}
	if info.EgressID != "EG_1" || info.Status != "EGRESS_STARTING" {
		t.Fatalf("unexpected info %+v", info)
	}

	call := stub.lastCall()
	if call.grant == nil || !call.grant.RoomRecord {
		t.Fatalf("expected roomRecord grant, got %+v", call.grant)
	}
	outputs, _ := call.body["file_outputs"].([]any)
	if len(outputs) != 1 {
		t.Fatalf("expected one file output, got %+v", call.body)
	}
	output := outputs[0].(map[string]any)
	if output["filepath"] != "cand1_1_RM_1/interview_session.mp4" || output["file_type"] != "MP4" {
		t.Fatalf("unexpected output %+v", output)
	}
	gcp := output["gcp"].(map[string]any)
	if gcp["bucket"] != "bucket" {
		t.Fatalf("unexpected gcp upload %+v", gcp)
	}
}

func TestFlexInt64(t *testing.T) {
	cases := map[string]int64{`12`: 12, `"34"`: 34, `null`: 0, `""`: 0}
	for in, want := range cases {
		var v flexInt64
		if err := json.Unmarshal([]byte(in), &v); err != nil {
			t.Fatalf("unmarshal %s: %v", in, err)
		}
		if int64(v) != want {
			t.Fatalf("unmarshal %s = %d, want %d", in, v, want)
		}
	}
	var v flexInt64
	if err := json.Unmarshal([]byte(`"x"`), &v); err == nil {
		t.Fatalf("expected error for non-numeric string")
	}
}
