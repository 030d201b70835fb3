// Package server is the HTTP transport for the approval flow, consumed by
// the web client: it creates sessions, polls their status and receives the
// issued token on approval.
package server

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/dreamlog/go-approval-server/approval"
	"github.com/dreamlog/go-approval-server/internal/config"
	"github.com/dreamlog/go-approval-server/telegram"
)

type Server struct {
	env       string // Environment (e.g., "DEV", "PROD")
	mux       *http.ServeMux
	routes    []string
	config    config.Config
	approvals *approval.Service
	webApp    *telegram.Validator // nil disables init-data authentication (dev mode)
}

// New wires the HTTP transport. webApp may be nil, in which case session
// actions trust the user identity in the request body; that mode exists for
// local development only.
func New(config config.Config, approvals *approval.Service, webApp *telegram.Validator) (*Server, error) {
	if approvals == nil {
		return nil, fmt.Errorf("[Server New] approval service is required")
	}

	s := &Server{
		mux:       http.NewServeMux(),
		config:    config,
		approvals: approvals,
		webApp:    webApp,
	}
	s.env = config.GetEnv()

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		log.Info().Str("route", route).Msg("registered")
	}
}
