package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/studysprint/go/internal/auth"
	"github.com/mcdev12/studysprint/go/internal/models"
	"github.com/mcdev12/studysprint/go/internal/studysession/client"
	"github.com/mcdev12/studysprint/go/internal/studysession/roundtimer"
	"github.com/mcdev12/studysprint/go/internal/studysession/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type config struct {
	ServerURL string    `env:"STUDYCLIENT_SERVER_URL" envDefault:"http://localhost:8080"`
	SessionID uuid.UUID `env:"STUDYCLIENT_SESSION_ID,required"`
	UserID    string    `env:"STUDYCLIENT_USER_ID,required,notEmpty"`
	Token     string    `env:"STUDYCLIENT_TOKEN,required,notEmpty"`

	TickInterval time.Duration `env:"STUDYCLIENT_TICK_INTERVAL" envDefault:"5s"`
}

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to parse configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	token := func() string { return cfg.Token }
	api := service.NewSessionClient(&http.Client{Timeout: 30 * time.Second}, cfg.ServerURL,
		connect.WithInterceptors(auth.NewClientInterceptor(token)))

	managerConfig := client.DefaultConfig()
	managerConfig.URL = websocketURL(cfg.ServerURL)
	managerConfig.SessionID = cfg.SessionID
	managerConfig.UserID = cfg.UserID
	managerConfig.Token = token
	manager := client.NewConnectionManager(managerConfig, api)

	runErr := make(chan error, 1)
	go func() { runErr <- manager.Run(ctx) }()

	lines := make(chan string)
	go readCommands(lines)

	clock := clockwork.NewRealClock()
	var (
		ticks       <-chan roundtimer.Tick
		stopTicks   context.CancelFunc = func() {}
		watched     models.Round
		watchedTick *time.Time
	)
	defer func() { stopTicks() }()
	done := ctx.Done()

	log.Info().
		Str("session_id", cfg.SessionID.String()).
		Str("user_id", cfg.UserID).
		Msg("joining session, commands: advance <round> <STATUS>")

	for {
		select {
		case err := <-runErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Fatal().Err(err).Msg("session connection failed")
			}
			log.Info().Msg("left session")
			return

		case <-manager.Changes():
			state := manager.State()
			session := manager.View().Session()
			if session == nil {
				log.Info().Str("status", string(state.Status)).Int("attempts", state.ReconnectAttempts).Msg("waiting for snapshot")
				continue
			}
			current, ok := currentRound(session)
			log.Info().
				Str("status", string(state.Status)).
				Str("session", string(session.Status)).
				Int64("version", session.Version).
				Int("round", current.RoundIndex).
				Str("phase", string(current.Status)).
				Strs("online", manager.View().Online()).
				Msg("session updated")

			if ok && (current.RoundIndex != watched.RoundIndex || !sameTime(current.DeadlineAt, watchedTick)) {
				stopTicks()
				var tickCtx context.Context
				tickCtx, stopTicks = context.WithCancel(ctx)
				ticks = roundtimer.Countdown(tickCtx, clock, current, cfg.TickInterval)
				watched, watchedTick = current, current.DeadlineAt
			}

		case tick, ok := <-ticks:
			if !ok {
				ticks = nil
				continue
			}
			if tick.Expired {
				log.Warn().Int("round", watched.RoundIndex).Str("phase", string(watched.Status)).Msg("time is up")
				continue
			}
			log.Info().Int("round", watched.RoundIndex).Dur("remaining", tick.Remaining.Round(time.Second)).Msg("countdown")

		case line := <-lines:
			if err := handleCommand(ctx, manager, line); err != nil {
				log.Error().Err(err).Str("command", line).Msg("command failed")
			}

		case <-done:
			// Run returns once it has closed the channel
			done = nil
		}
	}
}

func readCommands(lines chan<- string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines <- line
		}
	}
}

func handleCommand(ctx context.Context, manager *client.ConnectionManager, line string) error {
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != "advance" {
		return fmt.Errorf("unknown command %q", line)
	}
	index, err := strconv.Atoi(fields[1])
	if err != nil {
		return fmt.Errorf("round index: %w", err)
	}
	to := models.RoundStatus(strings.ToUpper(fields[2]))
	r, err := manager.AdvanceRound(ctx, index, to)
	if err != nil {
		return err
	}
	log.Info().Int("round", r.RoundIndex).Str("phase", string(r.Status)).Msg("round advanced")
	return nil
}

// currentRound is the latest round that has left CREATED.
func currentRound(session *models.Session) (models.Round, bool) {
	var current models.Round
	found := false
	for _, r := range session.Rounds {
		if r.Status != models.RoundStatusCreated {
			current, found = r, true
		}
	}
	return current, found
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func websocketURL(serverURL string) string {
	u := strings.TrimSuffix(serverURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws/sessions"
}
