package gateway

import (
	"context"
	"fmt"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// Service is the realtime gateway: WebSocket rooms, ordered fan-out and the
// snapshot REST reads, optionally fed by JetStream.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	JetStreamConfig  JetStreamConsumerConfig
	// UseJetStream feeds the dispatcher from JetStream instead of local
	// Publish calls, for running several instances.
	UseJetStream bool
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
	}
}

// NewService creates a new gateway service around connectionManager, or a
// fresh one when it is nil. The manager is usually built first so the
// coordinator can publish to it before the gateway that reads from the
// coordinator exists. sessions becomes its join authorizer.
func NewService(config Config, connectionManager *ConnectionManager, verifier TokenVerifier, sessions SessionReader) (*Service, error) {
	if connectionManager == nil {
		connectionManager = NewConnectionManager(config.ConnectionConfig, nil)
	}
	if connectionManager.authorizer == nil {
		connectionManager.authorizer = sessions
	}
	wsHandler := NewWebSocketHandler(connectionManager, verifier, sessions)

	s := &Service{
		connectionManager: connectionManager,
		wsHandler:         wsHandler,
	}

	if config.UseJetStream {
		eventConsumer, err := NewEventConsumer(connectionManager, config.JetStreamConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create event consumer: %w", err)
		}
		s.eventConsumer = eventConsumer
	}

	return s, nil
}

// Start runs the dispatcher and, if configured, the JetStream consumer
// until ctx is done.
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting gateway service")

	go s.connectionManager.Start(ctx)

	if s.eventConsumer != nil {
		go func() {
			if err := s.eventConsumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer failed")
			}
		}()
	}
}

// Stop gracefully shuts down the gateway service
func (s *Service) Stop() error {
	log.Info().Msg("stopping gateway service")

	if s.eventConsumer != nil {
		if err := s.eventConsumer.Stop(); err != nil {
			return fmt.Errorf("failed to stop event consumer: %w", err)
		}
	}
	return nil
}

// RegisterRoutes registers the gateway's HTTP routes
func (s *Service) RegisterRoutes(router *mux.Router) {
	s.wsHandler.RegisterRoutes(router)
}

// ConnectionManager returns the connection manager. It is the local event
// publisher when JetStream is not used.
func (s *Service) ConnectionManager() *ConnectionManager {
	return s.connectionManager
}
