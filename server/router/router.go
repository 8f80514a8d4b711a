/* Copyright (c) 2016 Jason Ish
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

// Package router is a thin layer over gorilla/mux for registering
// handlers by method.
package router

import (
	"net/http"

	"github.com/gorilla/mux"
)

type Router struct {
	Router *mux.Router
}

func NewRouter() *Router {
	return &Router{
		Router: mux.NewRouter(),
	}
}

func (r *Router) method(method string, path string, handler http.Handler) *mux.Route {
	return r.Router.Handle(path, handler).Methods(method)
}

// Handle registers a handler for all methods.
func (r *Router) Handle(path string, handler http.Handler) *mux.Route {
	return r.Router.Handle(path, handler)
}

func (r *Router) GET(path string, handler http.Handler) *mux.Route {
	return r.method(http.MethodGet, path, handler)
}

func (r *Router) POST(path string, handler http.Handler) *mux.Route {
	return r.method(http.MethodPost, path, handler)
}

func (r *Router) DELETE(path string, handler http.Handler) *mux.Route {
	return r.method(http.MethodDelete, path, handler)
}

// Use adds middleware run for every route registered on this router,
// and only those routes.
func (r *Router) Use(middleware ...func(http.Handler) http.Handler) {
	for _, m := range middleware {
		r.Router.Use(mux.MiddlewareFunc(m))
	}
}

// Subrouter returns a router for routes under prefix. Paths registered on
// the returned router are relative to the prefix.
func (r *Router) Subrouter(prefix string) *Router {
	return &Router{r.Router.PathPrefix(prefix).Subrouter()}
}
