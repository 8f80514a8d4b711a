/* Copyright (c) 2014-2015 Jason Ish
 * All rights reserved.
 *
 * Redistribution and use in source and binary forms, with or without
 * modification, are permitted provided that the following conditions
 * are met:
 *
 * 1. Redistributions of source code must retain the above copyright
 *    notice, this list of conditions and the following disclaimer.
 * 2. Redistributions in binary form must reproduce the above copyright
 *    notice, this list of conditions and the following disclaimer in the
 *    documentation and/or other materials provided with the distribution.
 *
 * THIS SOFTWARE IS PROVIDED ``AS IS'' AND ANY EXPRESS OR IMPLIED
 * WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
 * DISCLAIMED. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY DIRECT,
 * INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES
 * (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
 * SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION)
 * HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT,
 * STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING
 * IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
 * POSSIBILITY OF SUCH DAMAGE.
 */

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/jasonish/evecore/log"
	"github.com/jasonish/evecore/metrics"
	"github.com/jasonish/evecore/server/api"
	"github.com/jasonish/evecore/server/auth"
	"github.com/jasonish/evecore/server/router"
	"github.com/jasonish/evecore/server/sessions"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	sessionReapInterval = time.Minute
	shutdownTimeout     = 5 * time.Second
)

// Service is a long running task started with the server. It must
// return when the context is cancelled.
type Service func(ctx context.Context) error

type namedService struct {
	name string
	run  Service
}

type Server struct {
	address      string
	router       *router.Router
	handler      http.Handler
	sessionStore *sessions.SessionStore
	services     []namedService
}

type Options struct {
	Address        string
	RequestLogging bool
}

// NewServer sets up the routes: /api with authentication, except for the
// login endpoint, and /metrics without.
func NewServer(options Options, apiContext *api.ApiContext,
	sessionStore *sessions.SessionStore, authenticator auth.Authenticator) *Server {

	r := router.NewRouter()
	r.Handle("/metrics", metrics.Handler())

	apiRouter := r.Subrouter("/api")
	apiRouter.Use(auth.Middleware(authenticator, "/api/login"))
	apiContext.InitRoutes(apiRouter)

	// Request logging wraps ProxyHeaders so the forwarded client address
	// is the one logged.
	handler := handlers.CompressHandler(r.Router)
	handler = handlers.ProxyHeaders(handler)
	if options.RequestLogging {
		handler = handlers.CombinedLoggingHandler(log.Writer(), handler)
	}

	return &Server{
		address:      options.Address,
		router:       r,
		handler:      handler,
		sessionStore: sessionStore,
	}
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// AddService registers a task to run alongside the HTTP server.
func (s *Server) AddService(name string, service Service) {
	s.services = append(s.services, namedService{name: name, run: service})
}

func (s *Server) reapSessions(ctx context.Context) error {
	ticker := time.NewTicker(sessionReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sessionStore.Reap()
		}
	}
}

// Run serves HTTP and runs the registered services until the context is
// cancelled or one of them fails, in which case the others are stopped
// and the error returned.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	httpServer := &http.Server{
		Addr:              s.address,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info("Listening on %s", s.address)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "http server failed")
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return s.reapSessions(ctx)
	})

	for _, service := range s.services {
		service := service
		g.Go(func() error {
			log.Debug("Starting %s", service.name)
			if err := service.run(ctx); err != nil {
				return errors.Wrapf(err, "%s failed", service.name)
			}
			return nil
		})
	}

	return g.Wait()
}
