/* Copyright (c) 2013-2015 Jason Ish
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

package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/jasonish/evecore/server/sessions"
	"github.com/pkg/errors"
)

var (
	ErrNoUsername = errors.New("no username provided")
	ErrNoPassword = errors.New("no password provided")
	ErrBadLogin   = errors.New("bad username or password")
)

type AuthenticationRequiredResponse struct {
	Types []string `json:"types"`
}

type Authenticator interface {
	// Login creates a session from the credentials in the request.
	Login(r *http.Request) (*sessions.Session, error)

	// Authenticate returns the session for a request. If nil is
	// returned the authenticator has written the response.
	Authenticate(w http.ResponseWriter, r *http.Request) *sessions.Session
}

func writeStatusUnauthorized(w http.ResponseWriter, authType string, loginMessage string) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)

	response := map[string]interface{}{
		"error": "authentication required",
		"authentication": AuthenticationRequiredResponse{
			Types: []string{authType},
		},
	}
	if loginMessage != "" {
		response["login_message"] = loginMessage
	}

	json.NewEncoder(w).Encode(response)
}

type contextKey int

const sessionContextKey contextKey = 0

func WithSession(ctx context.Context, session *sessions.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}

// SessionFromContext returns the session attached by Middleware.
func SessionFromContext(ctx context.Context) *sessions.Session {
	session, _ := ctx.Value(sessionContextKey).(*sessions.Session)
	return session
}

// Middleware authenticates each request, attaching the session to the
// request context. Paths in skip are passed through without a session.
func Middleware(authenticator Authenticator, skip ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, path := range skip {
				if r.URL.Path == path {
					next.ServeHTTP(w, r)
					return
				}
			}
			session := authenticator.Authenticate(w, r)
			if session == nil {
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}
