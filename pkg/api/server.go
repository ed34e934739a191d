// OpenTag3D Core
// Copyright (c) 2026 The OpenTag3D Core Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of OpenTag3D Core.
//
// OpenTag3D Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// OpenTag3D Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with OpenTag3D Core.  If not, see <http://www.gnu.org/licenses/>.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/OpenTag3D/opentag3d-core/pkg/api/methods"
	"github.com/OpenTag3D/opentag3d-core/pkg/api/middleware"
	"github.com/OpenTag3D/opentag3d-core/pkg/api/models"
	"github.com/OpenTag3D/opentag3d-core/pkg/api/models/requests"
	"github.com/OpenTag3D/opentag3d-core/pkg/config"
	"github.com/OpenTag3D/opentag3d-core/pkg/database"
	"github.com/OpenTag3D/opentag3d-core/pkg/service/tagstate"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/olahol/melody"
	"github.com/rs/zerolog/log"
)

var (
	JSONRPCErrorParseError = models.ErrorObject{
		Code:    -32700,
		Message: "Parse error",
	}
	JSONRPCErrorInvalidRequest = models.ErrorObject{
		Code:    -32600,
		Message: "Invalid Request",
	}
	JSONRPCErrorMethodNotFound = models.ErrorObject{
		Code:    -32601,
		Message: "Method not found",
	}
	JSONRPCErrorInvalidParams = models.ErrorObject{
		Code:    -32602,
		Message: "Invalid params",
	}
	JSONRPCErrorServerError = models.ErrorObject{
		Code:    -32000,
		Message: "Server error",
	}
)

const shutdownTimeout = 5 * time.Second

var methodMap = map[string]func(requests.RequestEnv) (any, error){
	// tag
	models.MethodTag:          methods.HandleTag,
	models.MethodTagSet:       methods.HandleTagSet,
	models.MethodTagDecode:    methods.HandleTagDecode,
	models.MethodTagRefresh:   methods.HandleTagRefresh,
	models.MethodTagRemaining: methods.HandleTagRemaining,
	models.MethodTagHistory:   methods.HandleTagHistory,
	// utils
	models.MethodReaders: methods.HandleReaders,
	models.MethodVersion: methods.HandleVersion,
}

var errUnknownMethod = errors.New("unknown method")

// Server serves the JSON-RPC websocket API and the REST endpoints.
type Server struct {
	cfg           *config.Instance
	session       *tagstate.Session
	history       database.HistoryDBI
	readers       requests.ReaderLister
	notifications <-chan models.Notification
	limiter       *middleware.IPRateLimiter
	melody        *melody.Melody
}

// NewServer builds the API. history may be nil when history is disabled.
func NewServer(
	cfg *config.Instance,
	session *tagstate.Session,
	history database.HistoryDBI,
	rl requests.ReaderLister,
	notifications <-chan models.Notification,
	clock clockwork.Clock,
) *Server {
	s := &Server{
		cfg:           cfg,
		session:       session,
		history:       history,
		readers:       rl,
		notifications: notifications,
		limiter:       middleware.NewIPRateLimiter(clock),
		melody:        melody.New(),
	}
	s.melody.Upgrader.CheckOrigin = func(_ *http.Request) bool { return true }
	s.melody.HandleMessage(middleware.WebSocketRateLimitHandler(s.limiter, s.handleWSMessage))
	return s
}

func handleRequest(env requests.RequestEnv, req models.RequestObject) (any, error) {
	log.Debug().Str("method", req.Method).Msg("received request")

	fn, ok := methodMap[strings.ToLower(req.Method)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownMethod, req.Method)
	}

	env.ID = *req.ID
	env.Params = req.Params
	return fn(env)
}

func errorObject(err error) models.ErrorObject {
	switch {
	case errors.Is(err, errUnknownMethod):
		return JSONRPCErrorMethodNotFound
	case methods.IsParamsError(err):
		return models.ErrorObject{Code: JSONRPCErrorInvalidParams.Code, Message: err.Error()}
	default:
		return models.ErrorObject{Code: JSONRPCErrorServerError.Code, Message: err.Error()}
	}
}

func sendResponse(session *melody.Session, id uuid.UUID, result any) error {
	data, err := json.Marshal(models.ResponseObject{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	})
	if err != nil {
		return fmt.Errorf("error marshalling response: %w", err)
	}
	if err := session.Write(data); err != nil {
		return fmt.Errorf("error writing response: %w", err)
	}
	return nil
}

func sendError(session *melody.Session, id uuid.UUID, errObj models.ErrorObject) error {
	log.Debug().Int("code", errObj.Code).Str("message", errObj.Message).Msg("sending error")

	data, err := json.Marshal(models.ResponseErrorObject{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &errObj,
	})
	if err != nil {
		return fmt.Errorf("error marshalling error response: %w", err)
	}
	if err := session.Write(data); err != nil {
		return fmt.Errorf("error writing error response: %w", err)
	}
	return nil
}

func (s *Server) env(ctx context.Context, remoteAddr string) requests.RequestEnv {
	return requests.RequestEnv{
		Context: ctx,
		Config:  s.cfg,
		Session: s.session,
		History: s.history,
		Readers: s.readers,
		IsLocal: middleware.IsLoopbackAddr(remoteAddr),
	}
}

func (s *Server) handleWSMessage(session *melody.Session, msg []byte) {
	// heartbeat
	if bytes.Equal(msg, []byte("ping")) {
		if err := session.Write([]byte("pong")); err != nil {
			log.Error().Err(err).Msg("sending pong")
		}
		return
	}

	if !json.Valid(msg) {
		log.Warn().Msg("data not valid json")
		if err := sendError(session, uuid.Nil, JSONRPCErrorParseError); err != nil {
			log.Error().Err(err).Msg("error sending error response")
		}
		return
	}

	var req models.RequestObject
	if err := json.Unmarshal(msg, &req); err != nil || req.JSONRPC != "2.0" || req.Method == "" {
		id := uuid.Nil
		if req.ID != nil {
			id = *req.ID
		}
		if err := sendError(session, id, JSONRPCErrorInvalidRequest); err != nil {
			log.Error().Err(err).Msg("error sending error response")
		}
		return
	}

	if req.ID == nil {
		log.Debug().Str("method", req.Method).Msg("received notification, ignoring")
		return
	}

	resp, err := handleRequest(s.env(session.Request.Context(), session.Request.RemoteAddr), req)
	if err != nil {
		log.Warn().Err(err).Str("method", req.Method).Msg("request failed")
		if err := sendError(session, *req.ID, errorObject(err)); err != nil {
			log.Error().Err(err).Msg("error sending error response")
		}
		return
	}

	if err := sendResponse(session, *req.ID, resp); err != nil {
		log.Error().Err(err).Msg("error sending response")
	}
}

// broadcastNotifications relays notifications to every websocket client
// as JSON-RPC notifications until ctx is done or the channel closes.
func (s *Server) broadcastNotifications(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case notif, ok := <-s.notifications:
			if !ok {
				return
			}
			data, err := json.Marshal(models.RequestObject{
				JSONRPC: "2.0",
				Method:  notif.Method,
				Params:  notif.Params,
			})
			if err != nil {
				log.Error().Err(err).Msg("marshalling notification request")
				continue
			}
			if err := s.melody.Broadcast(data); err != nil {
				log.Error().Err(err).Msg("broadcasting notification")
			}
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.session.Response()); err != nil {
		log.Error().Err(err).Msg("error writing status")
	}
}

func (s *Server) handleHistoryCSV(w http.ResponseWriter, _ *http.Request) {
	if s.history == nil {
		http.Error(w, methods.ErrHistoryDisabled.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="history.csv"`)
	if err := s.history.ExportCSV(w); err != nil {
		log.Error().Err(err).Msg("error exporting history")
	}
}

// Router returns the HTTP handler for the whole API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.NoCache)
	r.Use(middleware.HTTPIPFilterMiddleware(middleware.NewIPFilter(s.cfg.AllowedIPs())))
	r.Use(middleware.HTTPRateLimitMiddleware(s.limiter))

	origins := s.cfg.AllowedOrigins()
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet},
		AllowedHeaders: []string{"Accept"},
	}))

	r.Get("/api", func(w http.ResponseWriter, r *http.Request) {
		if err := s.melody.HandleRequest(w, r); err != nil {
			log.Error().Err(err).Msg("handling websocket request")
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.APIRequestTimeout))
		r.Get("/status", s.handleStatus)
		r.Get("/history.csv", s.handleHistoryCSV)
	})

	return r
}

func (s *Server) listenAddr() string {
	return net.JoinHostPort(s.cfg.APIListen(), strconv.Itoa(s.cfg.APIPort()))
}

// Serve listens on the configured address until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listenAddr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.listenAddr(), err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on an existing listener until ctx is done, then
// closes websocket sessions and shuts the server down.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.limiter.StartCleanup(ctx)
	go s.broadcastNotifications(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("API listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	if err := s.melody.Close(); err != nil {
		log.Debug().Err(err).Msg("error closing websocket sessions")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
