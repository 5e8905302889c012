package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"

	"github.com/Aaditya4007/AI-interviewer/internal/media"
	"github.com/Aaditya4007/AI-interviewer/internal/provision"
	"github.com/Aaditya4007/AI-interviewer/internal/tokens"
)

// LegacyPrefix is the path prefix the browser client has always used.
const LegacyPrefix = "/api/livekit"

const (
	maxRequestBytes          = 64 << 10
	defaultRoomsPollInterval = 5 * time.Second
)

type Provisioner interface {
	ProvisionSession(ctx context.Context, requestedName, requestingIdentity string) (provision.Outcome, error)
}

type TokenIssuer interface {
	Issue(room, identity string, role tokens.Role) (string, error)
	IssueAgent(room string) (string, error)
}

type RoomLister interface {
	ListRooms(ctx context.Context) ([]media.Room, error)
}

// Deps is built once at startup and shared read-only by every request.
type Deps struct {
	Logger            *log.Logger
	Provisioner       Provisioner
	Tokens            TokenIssuer
	Rooms             RoomLister
	AllowedOrigin     string
	RoomsPollInterval time.Duration
}

type server struct {
	deps Deps
}

func NewServer(addr string, deps Deps) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewHandler(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard, "", 0)
	}
	if deps.RoomsPollInterval <= 0 {
		deps.RoomsPollInterval = defaultRoomsPollInterval
	}
	s := &server{deps: deps}

	mux := http.NewServeMux()
	mux.Handle("/healthz", gzhttp.GzipHandler(http.HandlerFunc(s.handleHealth)))
	for _, prefix := range []string{"", LegacyPrefix} {
		mux.Handle(prefix+"/create-room", gzhttp.GzipHandler(http.HandlerFunc(s.handleCreateRoom)))
		mux.Handle(prefix+"/generate-token", gzhttp.GzipHandler(http.HandlerFunc(s.handleGenerateToken)))
		mux.Handle(prefix+"/rooms", gzhttp.GzipHandler(http.HandlerFunc(s.handleRooms)))
		mux.HandleFunc(prefix+"/rooms/ws", s.handleRoomsWS)
	}

	opts := cors.Options{
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}
	// rs/cors treats an empty origin list as "*"; no configured origin means none allowed.
	if origin := strings.TrimRight(strings.TrimSpace(deps.AllowedOrigin), "/"); origin != "" {
		opts.AllowedOrigins = []string{origin}
	} else {
		opts.AllowOriginFunc = func(string) bool { return false }
	}
	return cors.New(opts).Handler(mux)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type createRoomRequest struct {
	RoomName      string `json:"roomName"`
	AdminIdentity string `json:"adminIdentity"`
}

type createRoomResponse struct {
	RoomName   string `json:"roomName"`
	SessionSID string `json:"sessionSid"`
	AdminToken string `json:"adminToken"`
	AgentToken string `json:"agentToken"`
}

func (s *server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req createRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.RoomName = strings.TrimSpace(req.RoomName)
	req.AdminIdentity = strings.TrimSpace(req.AdminIdentity)
	if req.RoomName == "" || req.AdminIdentity == "" {
		writeError(w, http.StatusBadRequest, "missing required fields: roomName and adminIdentity")
		return
	}

	outcome, err := s.deps.Provisioner.ProvisionSession(r.Context(), req.RoomName, req.AdminIdentity)
	if err != nil {
		if errors.Is(err, provision.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.deps.Logger.Printf("create-room failed room=%q admin=%q err=%v", req.RoomName, req.AdminIdentity, err)
		writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	for _, warning := range outcome.Warnings {
		s.deps.Logger.Printf("create-room warning step=%s room=%q sid=%s msg=%q", warning.Step, warning.RoomName, warning.RoomSID, warning.Message)
	}

	name := outcome.Session.Name
	adminToken, err := s.deps.Tokens.Issue(name, req.AdminIdentity, tokens.RoleAdmin)
	if err != nil {
		s.deps.Logger.Printf("create-room admin token failed room=%q err=%v", name, err)
		writeError(w, http.StatusInternalServerError, "failed to sign admin token")
		return
	}
	agentToken, err := s.deps.Tokens.IssueAgent(name)
	if err != nil {
		s.deps.Logger.Printf("create-room agent token failed room=%q err=%v", name, err)
		writeError(w, http.StatusInternalServerError, "failed to sign agent token")
		return
	}

	writeJSON(w, http.StatusOK, createRoomResponse{
		RoomName:   name,
		SessionSID: outcome.Session.SID,
		AdminToken: adminToken,
		AgentToken: agentToken,
	})
}

type generateTokenRequest struct {
	RoomName            string `json:"roomName"`
	ParticipantIdentity string `json:"participantIdentity"`
	IsAdmin             bool   `json:"isAdmin,omitempty"`
}

type generateTokenResponse struct {
	Identity string `json:"identity"`
	Token    string `json:"token"`
}

func (s *server) handleGenerateToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req generateTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.RoomName = strings.TrimSpace(req.RoomName)
	req.ParticipantIdentity = strings.TrimSpace(req.ParticipantIdentity)
	if req.RoomName == "" || req.ParticipantIdentity == "" {
		writeError(w, http.StatusBadRequest, "missing required fields: roomName and participantIdentity")
		return
	}

	token, err := s.deps.Tokens.Issue(req.RoomName, req.ParticipantIdentity, tokens.RoleFor(req.IsAdmin))
	if err != nil {
		switch {
		case errors.Is(err, tokens.ErrReservedIdentity):
			s.deps.Logger.Printf("generate-token rejected reserved identity room=%q identity=%q", req.RoomName, req.ParticipantIdentity)
			writeError(w, http.StatusForbidden, "identity is reserved")
		case errors.Is(err, tokens.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.deps.Logger.Printf("generate-token failed room=%q identity=%q err=%v", req.RoomName, req.ParticipantIdentity, err)
			writeError(w, http.StatusInternalServerError, "failed to sign token")
		}
		return
	}
	writeJSON(w, http.StatusOK, generateTokenResponse{Identity: req.ParticipantIdentity, Token: token})
}

type roomView struct {
	Name            string `json:"name"`
	SID             string `json:"sid"`
	NumParticipants int    `json:"numParticipants"`
	NumPublishers   int    `json:"numPublishers"`
	MaxParticipants int    `json:"maxParticipants"`
	EmptyTimeout    int64  `json:"emptyTimeout"`
	CreationTime    int64  `json:"creationTime"`
	ActiveRecording bool   `json:"activeRecording"`
	Metadata        string `json:"metadata,omitempty"`
}

func toRoomViews(rooms []media.Room) []roomView {
	out := make([]roomView, 0, len(rooms))
	for _, room := range rooms {
		view := roomView{
			Name:            room.Name,
			SID:             room.SID,
			NumParticipants: room.NumParticipants,
			NumPublishers:   room.NumPublishers,
			MaxParticipants: room.MaxParticipants,
			EmptyTimeout:    int64(room.EmptyTimeout / time.Second),
			ActiveRecording: room.ActiveRecording,
			Metadata:        room.Metadata,
		}
		if !room.CreationTime.IsZero() {
			view.CreationTime = room.CreationTime.Unix()
		}
		out = append(out, view)
	}
	return out
}

func (s *server) handleRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rooms, err := s.deps.Rooms.ListRooms(r.Context())
	if err != nil {
		s.deps.Logger.Printf("list rooms failed err=%v", err)
		writeError(w, http.StatusInternalServerError, "failed to list rooms")
		return
	}
	writeJSON(w, http.StatusOK, toRoomViews(rooms))
}

func decodeJSON(r *http.Request, out any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid json: %v", err)
	}
	if dec.More() {
		return errors.New("invalid json: trailing content")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
