// Package coordinator serializes every mutation of a session through a
// per-session actor and publishes committed changes in commit order.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/studysprint/go/internal/models"
	apperrors "github.com/mcdev12/studysprint/go/internal/platform/errors"
	"github.com/mcdev12/studysprint/go/internal/studysession/events"
	"github.com/mcdev12/studysprint/go/internal/studysession/guard"
	"github.com/mcdev12/studysprint/go/internal/studysession/repository"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/mcdev12/studysprint/go/internal/studysession/coordinator"

// ErrClosed is returned for commands submitted after Close.
var ErrClosed = errors.New("coordinator closed")

// Publisher receives committed events. Publish must preserve call order
// per session.
type Publisher interface {
	Publish(ctx context.Context, event *events.Event) error
}

// Config tunes the actor pool.
type Config struct {
	IdleTimeout time.Duration // how long an actor with no work stays alive
	MailboxSize int           // queued commands per session
}

func (c Config) withDefaults() Config {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = 64
	}
	return c
}

// Coordinator owns the session actors.
type Coordinator struct {
	store     repository.Store
	guard     *guard.Guard
	publisher Publisher
	clock     clockwork.Clock
	cfg       Config
	tracer    trace.Tracer

	mu     sync.Mutex
	actors map[uuid.UUID]*actor
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

type actor struct {
	sessionID uuid.UUID
	mailbox   chan command
	pending   int // guarded by Coordinator.mu
}

type command struct {
	ctx   context.Context
	run   func(ctx context.Context) error
	reply chan error
}

// New creates a coordinator. A nil clock means the real clock.
func New(store repository.Store, g *guard.Guard, publisher Publisher, clock clockwork.Clock, cfg Config) *Coordinator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Coordinator{
		store:     store,
		guard:     g,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg.withDefaults(),
		tracer:    otel.Tracer(tracerName),
		actors:    make(map[uuid.UUID]*actor),
		stop:      make(chan struct{}),
	}
}

// Close stops every actor. Queued commands fail with ErrClosed.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.stop)
	c.mu.Unlock()
	c.wg.Wait()
}

// acquire returns the session's actor, spawning it if needed, and marks one
// command as pending so the actor is not reaped before it runs.
func (c *Coordinator) acquire(sessionID uuid.UUID) (*actor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	a, ok := c.actors[sessionID]
	if !ok {
		a = &actor{
			sessionID: sessionID,
			mailbox:   make(chan command, c.cfg.MailboxSize),
		}
		c.actors[sessionID] = a
		c.wg.Add(1)
		go c.run(a)
		log.Debug().Str("session_id", sessionID.String()).Msg("session actor started")
	}
	a.pending++
	return a, nil
}

func (c *Coordinator) release(a *actor) {
	c.mu.Lock()
	a.pending--
	c.mu.Unlock()
}

func (c *Coordinator) run(a *actor) {
	defer c.wg.Done()
	idle := c.clock.NewTimer(c.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case cmd := <-a.mailbox:
			err := cmd.ctx.Err()
			if err == nil {
				err = cmd.run(cmd.ctx)
			}
			c.release(a)
			cmd.reply <- err
			idle.Reset(c.cfg.IdleTimeout)

		case <-idle.Chan():
			c.mu.Lock()
			if a.pending == 0 {
				delete(c.actors, a.sessionID)
				c.mu.Unlock()
				log.Debug().Str("session_id", a.sessionID.String()).Msg("idle session actor reaped")
				return
			}
			c.mu.Unlock()
			idle.Reset(c.cfg.IdleTimeout)

		case <-c.stop:
			for {
				select {
				case cmd := <-a.mailbox:
					c.release(a)
					cmd.reply <- ErrClosed
				default:
					return
				}
			}
		}
	}
}

// do runs fn on the session's actor and waits for its result.
func (c *Coordinator) do(ctx context.Context, op string, sessionID uuid.UUID, fn func(ctx context.Context) error) error {
	ctx, span := c.tracer.Start(ctx, "coordinator."+op,
		trace.WithAttributes(attribute.String("session.id", sessionID.String())))
	defer span.End()

	err := c.dispatch(ctx, sessionID, fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("error.code", string(apperrors.CodeOf(err))))
	}
	return err
}

func (c *Coordinator) dispatch(ctx context.Context, sessionID uuid.UUID, fn func(ctx context.Context) error) error {
	a, err := c.acquire(sessionID)
	if err != nil {
		return err
	}
	cmd := command{ctx: ctx, run: fn, reply: make(chan error, 1)}
	select {
	case a.mailbox <- cmd:
	case <-ctx.Done():
		c.release(a)
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// activeActors reports how many session actors are alive.
func (c *Coordinator) activeActors() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.actors)
}

// publish emits a committed event. A publish failure does not undo the
// commit; clients recover through their version gap check.
func (c *Coordinator) publish(ctx context.Context, sessionID uuid.UUID, typ events.Type, version int64, payload any) {
	event, err := events.New(sessionID, typ, version, c.clock.Now(), payload)
	if err == nil {
		err = c.publisher.Publish(ctx, event)
	}
	if err != nil {
		log.Error().Err(err).
			Str("session_id", sessionID.String()).
			Str("event_type", string(typ)).
			Int64("version", version).
			Msg("failed to publish event")
		return
	}
	log.Debug().
		Str("session_id", sessionID.String()).
		Str("event_type", string(typ)).
		Int64("version", version).
		Msg("event published")
}

// load reads the session and indexes its members.
func (c *Coordinator) load(ctx context.Context, sessionID uuid.UUID) (*models.Session, models.MemberIndex, error) {
	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, storeErr(err)
	}
	return session, models.IndexMembers(session.Members), nil
}

// storeErr passes domain errors through and reports anything else as the
// store being unavailable.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperrors.Wrap(apperrors.CodeStoreUnavailable, "session store unavailable", err)
}

func requireMember(members models.MemberIndex, userID string) (*models.Member, error) {
	m := members.Lookup(userID)
	if m == nil {
		return nil, apperrors.WithMetadata(apperrors.CodeNotMember,
			fmt.Sprintf("user %s is not a member of this session", userID),
			map[string]string{"user_id": userID})
	}
	return m, nil
}

func requireActive(session *models.Session) error {
	switch session.Status {
	case models.SessionStatusActive:
		return nil
	case models.SessionStatusEnded:
		return apperrors.New(apperrors.CodeSessionEnded, "session has ended")
	default:
		return apperrors.New(apperrors.CodeSessionNotActive, "session has not started")
	}
}

func requireRound(session *models.Session, roundIndex int) (*models.Round, error) {
	r, ok := session.Round(roundIndex)
	if !ok {
		return nil, repository.RoundNotFound(session.ID, roundIndex)
	}
	return r, nil
}
