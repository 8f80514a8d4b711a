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

package sessions

import (
	"encoding/base64"
	"net/http"
	"sync"
	"time"

	"github.com/jasonish/evecore/core"
	"github.com/jasonish/evecore/log"
	"github.com/satori/go.uuid"
)

// Header and cookie name holding the session ID.
const SessionKey = "x-evebox-session-id"

const DefaultTimeout = time.Hour

// SessionStore is a process local map of session ID to session. Sessions
// expire after the timeout unless used, each Get pushes the expiry out.
type SessionStore struct {
	timeout time.Duration
	now     func() time.Time

	lock     sync.Mutex
	sessions map[string]*Session
}

func NewSessionStore(timeout time.Duration) *SessionStore {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &SessionStore{
		timeout:  timeout,
		now:      time.Now,
		sessions: map[string]*Session{},
	}
}

func (s *SessionStore) Timeout() time.Duration {
	return s.timeout
}

// Reap will remove expired sessions.
func (s *SessionStore) Reap() {
	now := s.now()
	s.lock.Lock()
	defer s.lock.Unlock()
	for id, session := range s.sessions {
		if session.expired(now) {
			log.Info("Expiring session for user %s from %s",
				session.Username(), session.RemoteAddr)
			delete(s.sessions, id)
		}
	}
}

// Get returns the session with the ID, or nil if it doesn't exist or has
// expired.
func (s *SessionStore) Get(id string) *Session {
	now := s.now()
	s.lock.Lock()
	defer s.lock.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil
	}
	if session.expired(now) {
		delete(s.sessions, id)
		return nil
	}
	session.UpdateExpires(now.Add(s.timeout))
	return session
}

func (s *SessionStore) Put(session *Session) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.sessions[session.Id] = session
}

func (s *SessionStore) Delete(session *Session) {
	s.DeleteById(session.Id)
}

func (s *SessionStore) DeleteById(id string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.sessions, id)
}

func (s *SessionStore) Len() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.sessions)
}

// GenerateID returns a new random session ID.
func (s *SessionStore) GenerateID() string {
	bytes := append(uuid.NewV4().Bytes(), uuid.NewV4().Bytes()...)
	return base64.RawURLEncoding.EncodeToString(bytes)
}

// NewSession creates a new session with a session ID. It DOES NOT add the
// session to the session store.
func (s *SessionStore) NewSession() *Session {
	now := s.now()
	session := &Session{
		Id:      s.GenerateID(),
		Created: now,
	}
	session.UpdateExpires(now.Add(s.timeout))
	return session
}

// Start creates a session for user and adds it to the store.
func (s *SessionStore) Start(user core.User, remoteAddr string) *Session {
	session := s.NewSession()
	session.User = user
	session.RemoteAddr = remoteAddr
	s.Put(session)
	return session
}

// FindSession looks up the session for a request from the session header,
// falling back to the session cookie.
func (s *SessionStore) FindSession(r *http.Request) *Session {
	sessionId := r.Header.Get(SessionKey)

	if sessionId == "" {
		cookie, err := r.Cookie(SessionKey)
		if err == nil && cookie.Value != "" {
			sessionId = cookie.Value
		}
	}

	if sessionId != "" {
		return s.Get(sessionId)
	}
	return nil
}

// Cookie returns the cookie to set for a session.
func (s *SessionStore) Cookie(session *Session) *http.Cookie {
	return &http.Cookie{
		Name:     SessionKey,
		Value:    session.Id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(s.timeout / time.Second),
	}
}

// ExpiredCookie returns a cookie that clears the session cookie.
func ExpiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     SessionKey,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	}
}
