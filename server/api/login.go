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

package api

import (
	"net/http"

	"github.com/jasonish/evecore/log"
	"github.com/jasonish/evecore/server/auth"
	"github.com/jasonish/evecore/server/sessions"
	"github.com/pkg/errors"
)

func (c *ApiContext) LoginHandler(w *ResponseWriter, r *http.Request) error {
	session, err := c.authenticator.Login(r)
	if err != nil {
		switch err {
		case auth.ErrNoUsername, auth.ErrNoPassword:
			return newHttpErrorResponse(http.StatusBadRequest, err)
		case auth.ErrBadLogin:
			return newHttpErrorResponse(http.StatusUnauthorized, err)
		}
		return errors.WithStack(err)
	}

	w.Header().Set(sessions.SessionKey, session.Id)
	http.SetCookie(w, c.sessionStore.Cookie(session))

	return w.OkJSON(map[string]interface{}{
		"session_id": session.Id,
		"username":   session.Username(),
	})
}

func (c *ApiContext) LogoutHandler(w *ResponseWriter, r *http.Request) error {
	session := auth.SessionFromContext(r.Context())
	if session == nil {
		log.Error("Logout request has no session")
		return newHttpErrorResponse(http.StatusBadRequest,
			errors.New("no session"))
	}

	log.Info("Logging out user %s", session.Username())
	c.sessionStore.Delete(session)
	http.SetCookie(w, sessions.ExpiredCookie())

	return w.Ok()
}

func (c *ApiContext) SessionHandler(w *ResponseWriter, r *http.Request) error {
	session := auth.SessionFromContext(r.Context())
	if session == nil {
		return newHttpErrorResponse(http.StatusUnauthorized,
			errors.New("no session"))
	}
	return w.OkJSON(map[string]interface{}{
		"session_id": session.Id,
		"username":   session.Username(),
		"user":       session.User,
	})
}
