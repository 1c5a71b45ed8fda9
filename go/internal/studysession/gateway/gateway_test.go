package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/studysprint/go/internal/models"
	apperrors "github.com/mcdev12/studysprint/go/internal/platform/errors"
	"github.com/mcdev12/studysprint/go/internal/studysession/events"
)

// tokenIsUser treats the token itself as the user id.
type tokenIsUser struct{}

func (tokenIsUser) UserFromRequest(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		return "", apperrors.New(apperrors.CodeUnauthenticated, "token is required")
	}
	return token, nil
}

type fakeSessions struct {
	id      uuid.UUID
	members map[string]bool
}

func (f *fakeSessions) CanJoin(_ context.Context, sessionID uuid.UUID, userID string) error {
	if sessionID != f.id {
		return apperrors.New(apperrors.CodeSessionNotFound, "session not found")
	}
	if !f.members[userID] {
		return apperrors.New(apperrors.CodeNotMember, "not a member")
	}
	return nil
}

func (f *fakeSessions) Snapshot(_ context.Context, sessionID uuid.UUID) (*models.SessionSnapshot, error) {
	return &models.SessionSnapshot{Session: models.Session{ID: sessionID, Status: models.SessionStatusActive, Version: 4}}, nil
}

func (f *fakeSessions) ListSharedCards(_ context.Context, sessionID uuid.UUID) ([]models.SharedCard, error) {
	return []models.SharedCard{{ID: uuid.New(), SessionID: sessionID, CreatedBy: "alice", Content: "note"}}, nil
}

type harness struct {
	server   *httptest.Server
	cm       *ConnectionManager
	sessions *fakeSessions
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sessions := &fakeSessions{id: uuid.New(), members: map[string]bool{"alice": true, "bob": true}}
	cfg := DefaultConnectionConfig()
	cm := NewConnectionManager(cfg, sessions)
	ctx, cancel := context.WithCancel(context.Background())
	go cm.Start(ctx)

	router := mux.NewRouter()
	NewWebSocketHandler(cm, tokenIsUser{}, sessions).RegisterRoutes(router)
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return &harness{server: server, cm: cm, sessions: sessions}
}

func (h *harness) dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws/sessions?token=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ events.ClientMessageType, sessionID string) {
	t.Helper()
	if err := conn.WriteJSON(events.ClientMessage{Type: typ, SessionID: sessionID}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) *events.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev events.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return &ev
}

func expectType(t *testing.T, conn *websocket.Conn, want events.Type) *events.Event {
	t.Helper()
	ev := readEvent(t, conn)
	if ev.Type != want {
		t.Fatalf("event type = %s want %s", ev.Type, want)
	}
	return ev
}

func (h *harness) join(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	conn := h.dial(t, user)
	send(t, conn, events.ClientJoinSession, h.sessions.id.String())
	expectType(t, conn, events.TypeSessionJoined)
	return conn
}

func TestJoinBroadcastsPresence(t *testing.T) {
	h := newHarness(t)
	alice := h.join(t, "alice")
	expectType(t, alice, events.TypeUserJoined)

	bob := h.join(t, "bob")
	ev := expectType(t, alice, events.TypeUserJoined)
	payload, err := events.ParsePayload(ev)
	if err != nil {
		t.Fatalf("ParsePayload() error = %v", err)
	}
	if p := payload.(events.PresencePayload); p.UserID != "bob" {
		t.Fatalf("joined user = %q want bob", p.UserID)
	}
	expectType(t, bob, events.TypeUserJoined)

	send(t, bob, events.ClientLeaveSession, h.sessions.id.String())
	ev = expectType(t, alice, events.TypeUserLeft)
	if p, _ := events.ParsePayload(ev); p.(events.PresencePayload).UserID != "bob" {
		t.Fatalf("left payload = %+v", p)
	}
}

func TestBroadcastOrderAcrossConnections(t *testing.T) {
	h := newHarness(t)
	alice := h.join(t, "alice")
	expectType(t, alice, events.TypeUserJoined)
	bob := h.join(t, "bob")
	expectType(t, alice, events.TypeUserJoined)
	expectType(t, bob, events.TypeUserJoined)

	for v := int64(1); v <= 20; v++ {
		ev, err := events.New(h.sessions.id, events.TypeVoteSubmitted, v, time.Now(), events.SubmissionPayload{RoundIndex: 1, UserID: "alice", Vote: "A"})
		if err != nil {
			t.Fatalf("events.New() error = %v", err)
		}
		if err := h.cm.Publish(t.Context(), ev); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	for _, conn := range []*websocket.Conn{alice, bob} {
		for v := int64(1); v <= 20; v++ {
			ev := readEvent(t, conn)
			if ev.Version != v {
				t.Fatalf("version = %d want %d", ev.Version, v)
			}
		}
	}
}

func TestEventsOnlyReachTheirRoom(t *testing.T) {
	h := newHarness(t)
	alice := h.join(t, "alice")
	expectType(t, alice, events.TypeUserJoined)

	other, err := events.New(uuid.New(), events.TypeRoundAdvanced, 1, time.Now(), events.RoundPayload{})
	if err != nil {
		t.Fatalf("events.New() error = %v", err)
	}
	mine, err := events.New(h.sessions.id, events.TypeRoundAdvanced, 2, time.Now(), events.RoundPayload{})
	if err != nil {
		t.Fatalf("events.New() error = %v", err)
	}
	if err := h.cm.Publish(t.Context(), other); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := h.cm.Publish(t.Context(), mine); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if ev := readEvent(t, alice); ev.ID != mine.ID {
		t.Fatalf("received %s from another session", ev.SessionID)
	}
}

func TestJoinRejectedForNonMember(t *testing.T) {
	h := newHarness(t)
	mallory := h.dial(t, "mallory")
	send(t, mallory, events.ClientJoinSession, h.sessions.id.String())

	ev := expectType(t, mallory, events.TypeError)
	payload, err := events.ParsePayload(ev)
	if err != nil {
		t.Fatalf("ParsePayload() error = %v", err)
	}
	if p := payload.(events.ErrorPayload); p.Code != string(apperrors.CodeNotMember) {
		t.Fatalf("error code = %q", p.Code)
	}
	if stats := h.cm.GetConnectionStats(); stats.ActiveSessions != 0 {
		t.Fatalf("rejected join created a room: %+v", stats)
	}
}

func TestMalformedMessageGetsError(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "alice")
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{nope")); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	expectType(t, conn, events.TypeError)
}

func TestDisconnectAnnouncesUserLeft(t *testing.T) {
	h := newHarness(t)
	alice := h.join(t, "alice")
	expectType(t, alice, events.TypeUserJoined)
	bob := h.join(t, "bob")
	expectType(t, alice, events.TypeUserJoined)

	bob.Close()
	ev := expectType(t, alice, events.TypeUserLeft)
	if p, _ := events.ParsePayload(ev); p.(events.PresencePayload).UserID != "bob" {
		t.Fatalf("left payload = %+v", p)
	}
}

func TestRESTRoutes(t *testing.T) {
	h := newHarness(t)
	base := h.server.URL + "/api/sessions/" + h.sessions.id.String()

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"snapshot", base + "/snapshot", "alice", http.StatusOK},
		{"cards", base + "/cards", "bob", http.StatusOK},
		{"no token", base + "/snapshot", "", http.StatusUnauthorized},
		{"non member", base + "/snapshot", "mallory", http.StatusForbidden},
		{"bad id", h.server.URL + "/api/sessions/nope/snapshot", "alice", http.StatusBadRequest},
		{"unknown session", h.server.URL + "/api/sessions/" + uuid.NewString() + "/snapshot", "alice", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, tt.path, nil)
			if err != nil {
				t.Fatalf("NewRequest() error = %v", err)
			}
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("Do() error = %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestSnapshotBody(t *testing.T) {
	h := newHarness(t)
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet,
		h.server.URL+"/api/sessions/"+h.sessions.id.String()+"/snapshot", nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Authorization", "Bearer alice")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()

	var snap models.SessionSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if snap.Version() != 4 || snap.Session.ID != h.sessions.id {
		t.Fatalf("snapshot = %+v", snap.Session)
	}
}

func TestStatusFor(t *testing.T) {
	tests := map[apperrors.Kind]int{
		apperrors.KindValidation:    http.StatusBadRequest,
		apperrors.KindAuthorization: http.StatusForbidden,
		apperrors.KindConflict:      http.StatusConflict,
		apperrors.KindNotFound:      http.StatusNotFound,
		apperrors.KindConnectivity:  http.StatusServiceUnavailable,
		apperrors.KindInternal:      http.StatusInternalServerError,
	}
	for kind, want := range tests {
		if got := statusFor(kind); got != want {
			t.Errorf("statusFor(%s) = %d want %d", kind, got, want)
		}
	}
}
