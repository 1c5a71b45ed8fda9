package main

import (
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/studysprint/go/internal/auth"
	"github.com/mcdev12/studysprint/go/internal/config"
	"github.com/mcdev12/studysprint/go/internal/studysession/coordinator"
	"github.com/mcdev12/studysprint/go/internal/studysession/eventbus"
	"github.com/mcdev12/studysprint/go/internal/studysession/gateway"
	"github.com/mcdev12/studysprint/go/internal/studysession/guard"
	"github.com/mcdev12/studysprint/go/internal/studysession/repository"
	"github.com/mcdev12/studysprint/go/internal/studysession/service"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Verifier    *auth.Verifier
	Coordinator *coordinator.Coordinator
	Sessions    *service.Service
	Gateway     *gateway.Service
	closers     []func()
}

// Close releases everything setupServices opened, newest first.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func setupServices(cfg config.Config, store repository.Store) (*Services, error) {
	// Wire up dependency injection chain
	// Store → Guard → Coordinator → RPC service, Coordinator → Gateway
	verifier, err := auth.NewVerifier(auth.Config{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token verifier: %w", err)
	}

	s := &Services{Verifier: verifier}
	clock := clockwork.NewRealClock()
	gatewayConfig := gateway.DefaultConfig()
	connections := gateway.NewConnectionManager(gatewayConfig.ConnectionConfig, nil)

	var publisher coordinator.Publisher = connections
	if cfg.NATSURL != "" {
		busConfig := eventbus.DefaultConfig()
		busConfig.URL = cfg.NATSURL
		jsPublisher, err := eventbus.NewJetStreamPublisher(busConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream publisher: %w", err)
		}
		s.closers = append(s.closers, func() {
			if err := jsPublisher.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close JetStream publisher")
			}
		})
		publisher = jsPublisher
		gatewayConfig.UseJetStream = true
		gatewayConfig.JetStreamConfig.Bus = busConfig
		log.Info().Str("url", cfg.NATSURL).Msg("publishing session events through JetStream")
	}

	g := guard.New(store, clock, cfg.Durations)
	s.Coordinator = coordinator.New(store, g, publisher, clock, coordinator.Config{
		IdleTimeout: cfg.ActorIdleTimeout,
		MailboxSize: cfg.ActorMailbox,
	})
	s.closers = append(s.closers, s.Coordinator.Close)

	s.Sessions = service.NewService(s.Coordinator)

	s.Gateway, err = gateway.NewService(gatewayConfig, connections, verifier, s.Coordinator)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}
	s.closers = append(s.closers, func() {
		if err := s.Gateway.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop gateway")
		}
	})

	return s, nil
}
