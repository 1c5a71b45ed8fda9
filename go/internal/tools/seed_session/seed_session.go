package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/studysprint/go/internal/auth"
	"github.com/mcdev12/studysprint/go/internal/dbconfig"
	"github.com/mcdev12/studysprint/go/internal/models"
	"github.com/mcdev12/studysprint/go/internal/studysession/coordinator"
	"github.com/mcdev12/studysprint/go/internal/studysession/events"
	"github.com/mcdev12/studysprint/go/internal/studysession/guard"
	"github.com/mcdev12/studysprint/go/internal/studysession/repository/postgres"
)

// SeedSession is the layout of the seed file
type SeedSession struct {
	GroupID   string          `json:"group_id"`
	ContentID string          `json:"content_id"`
	CreatedBy string          `json:"created_by"`
	Prompts   []string        `json:"prompts"`
	Members   []models.Member `json:"members"`
}

// nopPublisher drops events; nothing is listening while seeding.
type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, *events.Event) error { return nil }

func main() {
	file := flag.String("file", "go/internal/assets/session.json", "seed file")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the printed member tokens")
	flag.Parse()

	ctx := context.Background()

	// 1) Load the seed file
	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", *file, err)
		os.Exit(1)
	}
	var seeds []SeedSession
	if err := json.Unmarshal(data, &seeds); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal sessions: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect to DB
	cfg, err := dbconfig.NewConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "db config: %v\n", err)
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect error: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := postgres.New(pool)
	if err := store.Migrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	// 3) Seed sessions through the coordinator so the usual validation applies
	coord := coordinator.New(store, guard.New(store, nil, guard.DefaultDurations()), nopPublisher{}, nil, coordinator.Config{})
	defer coord.Close()

	var verifier *auth.Verifier
	if secret := os.Getenv("STUDYSPRINT_JWT_SECRET"); secret != "" {
		verifier, err = auth.NewVerifier(auth.Config{
			Secret: []byte(secret),
			Issuer: envOr("STUDYSPRINT_JWT_ISSUER", "studysprint"),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "token verifier: %v\n", err)
			os.Exit(1)
		}
	}

	total, inserted, errs := len(seeds), 0, 0
	for _, seed := range seeds {
		session, err := coord.CreateSession(ctx, seed.CreatedBy, coordinator.CreateSessionParams{
			GroupID:   seed.GroupID,
			ContentID: seed.ContentID,
			Prompts:   seed.Prompts,
			Members:   seed.Members,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "session for group %s: %v\n", seed.GroupID, err)
			errs++
			continue
		}
		inserted++
		fmt.Printf("session %s group=%s rounds=%d\n", session.ID, session.GroupID, len(session.Rounds))

		// 4) Print member tokens for local clients
		if verifier == nil {
			continue
		}
		for _, m := range seed.Members {
			token, err := verifier.Issue(m.UserID, *tokenTTL)
			if err != nil {
				fmt.Fprintf(os.Stderr, "token for %s: %v\n", m.UserID, err)
				continue
			}
			fmt.Printf("  %s (%s): %s\n", m.UserID, m.AssignedRole, token)
		}
	}
	fmt.Printf("Sessions seed: total=%d inserted=%d errors=%d\n", total, inserted, errs)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
