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
	"github.com/jasonish/evecore/server/sessions"
)

const anonymousUsername = "anonymous"

// AnonymousAuthenticator gives every request a session without a login.
// A username posted to the login endpoint is used for history entries
// but never checked.
type AnonymousAuthenticator struct {
	sessionStore *sessions.SessionStore
}

func NewAnonymousAuthenticator(sessionStore *sessions.SessionStore) *AnonymousAuthenticator {
	return &AnonymousAuthenticator{
		sessionStore: sessionStore,
	}
}

func (a *AnonymousAuthenticator) Login(r *http.Request) (*sessions.Session, error) {
	username := r.FormValue("username")
	if username == "" {
		username = anonymousUsername
	}
	log.Debug("Starting anonymous session for %s from %v", username, r.RemoteAddr)
	return a.sessionStore.Start(core.NewAnonymousUser(username), r.RemoteAddr), nil
}

func (a *AnonymousAuthenticator) Authenticate(w http.ResponseWriter, r *http.Request) *sessions.Session {
	if session := a.sessionStore.FindSession(r); session != nil {
		return session
	}

	session, _ := a.Login(r)
	w.Header().Set(sessions.SessionKey, session.Id)
	http.SetCookie(w, a.sessionStore.Cookie(session))
	return session
}
