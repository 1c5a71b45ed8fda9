package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/studysprint/go/internal/models"
	apperrors "github.com/mcdev12/studysprint/go/internal/platform/errors"
	"github.com/mcdev12/studysprint/go/internal/studysession/events"
	"github.com/rs/zerolog/log"
)

// SessionAPI is the slice of the session RPC client the manager needs.
type SessionAPI interface {
	GetSessionSnapshot(ctx context.Context, sessionID uuid.UUID) (*models.SessionSnapshot, error)
	AdvanceRound(ctx context.Context, sessionID uuid.UUID, roundIndex int, expected, to models.RoundStatus) (models.Round, error)
}

// Config holds configuration for a ConnectionManager
type Config struct {
	// URL is the websocket endpoint, e.g. ws://localhost:8080/ws/sessions
	URL       string
	SessionID uuid.UUID
	UserID    string
	// Token returns the bearer token sent on every dial.
	Token func() string

	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxAttempts     uint
	JoinTimeout     time.Duration
	EventBuffer     int
	Dialer          *websocket.Dialer
}

// DefaultConfig returns default reconnection settings
func DefaultConfig() Config {
	return Config{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxAttempts:     10,
		JoinTimeout:     10 * time.Second,
		EventBuffer:     256,
		Dialer:          websocket.DefaultDialer,
	}
}

// ConnectionManager owns one realtime channel to one session. Run keeps
// it connected and the SessionView resynced; mutating actions go through
// the manager so they are refused while the view is stale.
type ConnectionManager struct {
	cfg  Config
	api  SessionAPI
	view *SessionView

	mu      sync.RWMutex
	state   ConnectionState
	changes chan struct{}
}

// NewConnectionManager creates a manager. Nothing is dialed until Run.
func NewConnectionManager(cfg Config, api SessionAPI) *ConnectionManager {
	def := DefaultConfig()
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = def.JoinTimeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = def.EventBuffer
	}
	if cfg.Dialer == nil {
		cfg.Dialer = def.Dialer
	}
	if cfg.Token == nil {
		cfg.Token = func() string { return "" }
	}
	return &ConnectionManager{
		cfg:  cfg,
		api:  api,
		view: NewSessionView(cfg.UserID),
		state: ConnectionState{
			SessionID: cfg.SessionID,
			Status:    StatusDisconnected,
		},
		changes: make(chan struct{}, 1),
	}
}

// View returns the session view the manager keeps in sync.
func (m *ConnectionManager) View() *SessionView {
	return m.view
}

// State returns the current connection state.
func (m *ConnectionManager) State() ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Changes signals after any state change or applied event. Signals are
// coalesced; read State and View for the details.
func (m *ConnectionManager) Changes() <-chan struct{} {
	return m.changes
}

func (m *ConnectionManager) notify() {
	select {
	case m.changes <- struct{}{}:
	default:
	}
}

func (m *ConnectionManager) setStatus(status ConnectionStatus) {
	m.mu.Lock()
	m.state.Status = status
	if status == StatusConnected {
		m.state.ReconnectAttempts = 0
	}
	m.mu.Unlock()
	m.notify()
}

// Run connects and keeps the view in sync until ctx is done or a fatal
// error occurs. A dropped channel is redialed with exponential backoff;
// after each (re)join the view is replaced from a fresh snapshot. Run
// returns ctx.Err() on cancellation, a connectivity error once the retry
// budget is spent or a snapshot cannot be fetched, and join rejections
// such as NOT_A_MEMBER as is.
func (m *ConnectionManager) Run(ctx context.Context) error {
	defer m.setStatus(StatusDisconnected)

	for {
		ch, err := m.connect(ctx)
		if err != nil {
			return err
		}

		err = m.serve(ctx, ch)
		ch.close()
		m.view.Invalidate()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if apperrors.CodeOf(err) == apperrors.CodeSnapshotUnavailable {
			return err
		}

		log.Warn().
			Err(err).
			Str("session_id", m.cfg.SessionID.String()).
			Msg("realtime channel dropped, reconnecting")
		m.setStatus(StatusReconnecting)
	}
}

// connect dials until the session is joined and the view is resynced.
func (m *ConnectionManager) connect(ctx context.Context) (*channel, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.InitialInterval
	b.MaxInterval = m.cfg.MaxInterval

	ch, err := backoff.Retry(ctx, func() (*channel, error) {
		m.mu.Lock()
		if m.state.Status == StatusReconnecting {
			m.state.ReconnectAttempts++
		}
		m.mu.Unlock()
		m.notify()
		return m.dialAndJoin(ctx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(m.cfg.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Debug().
				Err(err).
				Str("session_id", m.cfg.SessionID.String()).
				Dur("retry_in", next).
				Msg("dial failed")
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if _, ok := apperrors.As(err); ok {
			return nil, err
		}
		return nil, apperrors.Wrap(apperrors.CodeRealtimeUnavailable, "could not reach the realtime gateway", err)
	}

	if err := m.resync(ctx); err != nil {
		ch.close()
		return nil, err
	}
	m.setStatus(StatusConnected)
	log.Info().
		Str("session_id", m.cfg.SessionID.String()).
		Int64("version", m.view.Version()).
		Msg("session synced")
	return ch, nil
}

// dialAndJoin opens the websocket, sends joinSession and waits for the
// join ack. Events ahead of the ack are dropped; the snapshot taken after
// it covers them.
func (m *ConnectionManager) dialAndJoin(ctx context.Context) (*channel, error) {
	header := http.Header{}
	if token := m.cfg.Token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := m.cfg.Dialer.DialContext(ctx, m.cfg.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, backoff.Permanent(apperrors.New(apperrors.CodeUnauthenticated,
				fmt.Sprintf("gateway refused the connection: %s", resp.Status)))
		}
		return nil, fmt.Errorf("dial %s: %w", m.cfg.URL, err)
	}

	ch := newChannel(conn, m.cfg.EventBuffer)
	join := events.ClientMessage{Type: events.ClientJoinSession, SessionID: m.cfg.SessionID.String()}
	if err := conn.WriteJSON(join); err != nil {
		ch.close()
		return nil, fmt.Errorf("send joinSession: %w", err)
	}

	timer := time.NewTimer(m.cfg.JoinTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			ch.close()
			return nil, backoff.Permanent(ctx.Err())
		case <-timer.C:
			ch.close()
			return nil, errors.New("timed out waiting for join ack")
		case err := <-ch.errs:
			ch.close()
			return nil, fmt.Errorf("read join ack: %w", err)
		case e := <-ch.events:
			if e.SessionID != m.cfg.SessionID.String() {
				continue
			}
			switch e.Type {
			case events.TypeSessionJoined:
				return ch, nil
			case events.TypeError:
				ch.close()
				return nil, backoff.Permanent(joinRejection(e))
			}
		}
	}
}

// serve applies events until the channel fails. A version gap resyncs in
// place.
func (m *ConnectionManager) serve(ctx context.Context, ch *channel) error {
	for {
		select {
		case <-ctx.Done():
			ch.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return ctx.Err()
		case err := <-ch.errs:
			return err
		case e := <-ch.events:
			if e.SessionID != m.cfg.SessionID.String() {
				continue
			}
			changed, err := m.view.Apply(e)
			var gap *GapError
			switch {
			case errors.As(err, &gap):
				log.Info().
					Str("session_id", e.SessionID).
					Int64("have", gap.Have).
					Int64("got", gap.Got).
					Msg("version gap, resyncing")
				if err := m.resync(ctx); err != nil {
					return err
				}
				changed = true
			case err != nil:
				log.Warn().Err(err).Str("event_type", string(e.Type)).Msg("failed to apply event")
			}
			if changed {
				m.notify()
			}
		}
	}
}

// resync replaces the view with a fresh snapshot. Any failure is fatal.
func (m *ConnectionManager) resync(ctx context.Context) error {
	snapshot, err := m.api.GetSessionSnapshot(ctx, m.cfg.SessionID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperrors.Wrap(apperrors.CodeSnapshotUnavailable, "could not fetch session snapshot", err)
	}
	m.view.Replace(snapshot)
	return nil
}

// AdvanceRound optimistically moves a round and asks the server to commit
// it, expecting the status the view showed. A refusal drops the proposal
// and is returned as is; a conflict carries the server's round.
func (m *ConnectionManager) AdvanceRound(ctx context.Context, roundIndex int, to models.RoundStatus) (models.Round, error) {
	if !m.view.CanMutate() {
		return models.Round{}, apperrors.New(apperrors.CodeRealtimeUnavailable, "session is offline or not yet resynced")
	}
	p, err := m.view.Propose(roundIndex, to)
	if err != nil {
		return models.Round{}, err
	}
	m.notify()

	r, err := m.api.AdvanceRound(ctx, m.cfg.SessionID, roundIndex, p.From, p.To)
	if err != nil {
		m.view.Reject(p)
		m.notify()
		return models.Round{}, err
	}
	return r, nil
}

func joinRejection(e *events.Event) error {
	payload, err := events.ParsePayload(e)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeUnknown, "join rejected", err)
	}
	p, _ := payload.(events.ErrorPayload)
	return apperrors.New(apperrors.Code(p.Code), p.Message)
}

// channel pumps decoded events off one websocket.
type channel struct {
	conn   *websocket.Conn
	events chan *events.Event
	errs   chan error
	done   chan struct{}
	once   sync.Once
}

func newChannel(conn *websocket.Conn, buffer int) *channel {
	ch := &channel{
		conn:   conn,
		events: make(chan *events.Event, buffer),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go ch.read()
	return ch
}

func (ch *channel) read() {
	for {
		_, data, err := ch.conn.ReadMessage()
		if err != nil {
			ch.errs <- err
			return
		}
		var e events.Event
		if err := json.Unmarshal(data, &e); err != nil {
			log.Warn().Err(err).Msg("dropping malformed realtime message")
			continue
		}
		select {
		case ch.events <- &e:
		case <-ch.done:
			return
		}
	}
}

func (ch *channel) close() {
	ch.once.Do(func() {
		close(ch.done)
		ch.conn.Close()
	})
}
