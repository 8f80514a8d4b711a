/* Copyright (c) 2017 Jason Ish
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
	"net/http"

	"github.com/jasonish/evecore/core"
	"github.com/jasonish/evecore/log"
	"github.com/jasonish/evecore/metrics"
	"github.com/jasonish/evecore/server/sessions"
)

// UsernamePasswordAuthenticator checks credentials against a user store,
// either posted to the login endpoint or sent as HTTP basic auth with
// each request.
type UsernamePasswordAuthenticator struct {
	sessionStore *sessions.SessionStore
	userStore    core.UserStore
	LoginMessage string
}

func NewUsernamePasswordAuthenticator(sessionStore *sessions.SessionStore,
	userStore core.UserStore) *UsernamePasswordAuthenticator {
	return &UsernamePasswordAuthenticator{
		sessionStore: sessionStore,
		userStore:    userStore,
	}
}

func (a *UsernamePasswordAuthenticator) WriteStatusUnauthorized(w http.ResponseWriter) {
	writeStatusUnauthorized(w, "usernamepassword", a.LoginMessage)
}

// verify looks up the user for a username and password, counting the
// result.
func (a *UsernamePasswordAuthenticator) verify(r *http.Request, username string,
	password string) (*sessions.Session, error) {
	user, err := a.userStore.FindByUsernamePassword(username, password)
	if err != nil {
		metrics.Logins.WithLabelValues("failed").Inc()
		log.Warning("Failed login for user %s from %s: %v", username,
			r.RemoteAddr, err)
		return nil, ErrBadLogin
	}
	metrics.Logins.WithLabelValues("ok").Inc()
	return a.sessionStore.Start(user, r.RemoteAddr), nil
}

func (a *UsernamePasswordAuthenticator) Login(r *http.Request) (*sessions.Session, error) {
	username := r.FormValue("username")
	if username == "" {
		return nil, ErrNoUsername
	}
	password := r.FormValue("password")
	if password == "" {
		return nil, ErrNoPassword
	}

	session, err := a.verify(r, username, password)
	if err != nil {
		return nil, err
	}
	log.Info("User %s logged in from %s", username, r.RemoteAddr)
	return session, nil
}

func (a *UsernamePasswordAuthenticator) Authenticate(w http.ResponseWriter, r *http.Request) *sessions.Session {
	if session := a.sessionStore.FindSession(r); session != nil {
		if session.User.IsValid() {
			return session
		}
		log.Warning("Dropping session %s with invalid user", session.Id)
		a.sessionStore.Delete(session)
	}

	username, password, ok := r.BasicAuth()
	if !ok || username == "" || password == "" {
		a.WriteStatusUnauthorized(w)
		return nil
	}

	log.Debug("Authenticating user [%s] with basic auth", username)
	session, err := a.verify(r, username, password)
	if err != nil {
		a.WriteStatusUnauthorized(w)
		return nil
	}
	w.Header().Set(sessions.SessionKey, session.Id)
	return session
}
