package main

import (
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/gorilla/mux"
	"github.com/mcdev12/studysprint/go/internal/auth"
	"github.com/mcdev12/studysprint/go/internal/config"
	"github.com/mcdev12/studysprint/go/internal/studysession/service"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(cfg config.Config, services *Services) *http.Server {
	router := mux.NewRouter()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	// Register services
	registerServices(router, services)

	// Add health check endpoint
	setupHealthCheck(router)

	// Wrap with CORS
	handler := c.Handler(router)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func registerServices(router *mux.Router, services *Services) {
	// Register session RPC service
	sessionServicePath, sessionServiceHandler := service.NewHandler(services.Sessions,
		connect.WithInterceptors(auth.NewServerInterceptor(services.Verifier)))
	router.PathPrefix(sessionServicePath).Handler(sessionServiceHandler)

	// Register realtime gateway and snapshot routes
	services.Gateway.RegisterRoutes(router)
}

func setupHealthCheck(router *mux.Router) {
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
