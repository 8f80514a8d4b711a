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

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jasonish/evecore/core"
	"github.com/jasonish/evecore/eve"
	"github.com/jasonish/evecore/log"
	"github.com/jasonish/evecore/querystring"
	"github.com/jasonish/evecore/server/auth"
	"github.com/jasonish/evecore/server/router"
	"github.com/pkg/errors"
)

type httpErrorResponse struct {
	error
	status int
}

func (r *httpErrorResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"error": r.Error(),
	})
}

func newHttpErrorResponse(status int, err error) *httpErrorResponse {
	return &httpErrorResponse{
		error:  err,
		status: status,
	}
}

type apiHandlerFunc func(w *ResponseWriter, r *http.Request) error

// apiFuncWrapper converts an error returned from a handler into a JSON
// error response, with the status code chosen from the error type.
func apiFuncWrapper(handler apiHandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := NewResponseWriter(w)
		err := handler(rw, r)
		if err == nil {
			return
		}

		response, ok := errors.Cause(err).(*httpErrorResponse)
		if !ok {
			response = newHttpErrorResponse(core.HttpStatus(err), err)
		}
		if response.status >= http.StatusInternalServerError {
			log.Error("%s %s: %v", r.Method, r.URL.Path, err)
		}

		rw.WriteJSON(response.status, response)
	})
}

// apiRouter wraps the provided router with some helper functions for
// registering API handlers of type apiHandlerFunc.
type apiRouter struct {
	router *router.Router
}

func (r *apiRouter) GET(path string, handler apiHandlerFunc) {
	r.router.GET(path, apiFuncWrapper(handler))
}

func (r *apiRouter) POST(path string, handler apiHandlerFunc) {
	r.router.POST(path, apiFuncWrapper(handler))
}

func (r *apiRouter) DELETE(path string, handler apiHandlerFunc) {
	r.router.DELETE(path, apiFuncWrapper(handler))
}

// DecodeRequestBody is a helper function to decode request bodies into a
// particular interface.
func DecodeRequestBody(r *http.Request, value interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	if err := decoder.Decode(value); err != nil {
		if core.IsBadRequest(err) {
			return err
		}
		return core.NewBadRequestError("invalid request body: %v", err)
	}
	return nil
}

// username returns the username of the session making the request.
func username(r *http.Request) string {
	if session := auth.SessionFromContext(r.Context()); session != nil {
		return session.Username()
	}
	return ""
}

// formValue returns the first non-empty value of the given parameter
// names.
func formValue(r *http.Request, names ...string) string {
	for _, name := range names {
		if value := r.FormValue(name); value != "" {
			return value
		}
	}
	return ""
}

func (c *ApiContext) parseQueryString(r *http.Request, names ...string) ([]querystring.Element, error) {
	if len(names) == 0 {
		names = []string{"query_string"}
	}
	location, err := querystring.ParseOffset(r.FormValue("tz_offset"))
	if err != nil {
		return nil, core.NewBadRequestError("invalid tz_offset: %v", err)
	}
	return querystring.ParseWithOptions(formValue(r, names...), querystring.Options{
		Location: location,
		Now:      c.now,
	})
}

// parseTimeRange returns now minus the time_range parameter, or the
// zero time if not set.
func (c *ApiContext) parseTimeRange(r *http.Request) (time.Time, error) {
	value := r.FormValue("time_range")
	if value == "" {
		return time.Time{}, nil
	}
	d, err := parseDuration(value)
	if err != nil {
		return time.Time{}, core.NewBadRequestError("invalid time_range: %s", value)
	}
	return c.now().Add(-d), nil
}

// parseDuration accepts durations like "24h" and "7d", or a plain number
// of seconds.
func parseDuration(value string) (time.Duration, error) {
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	if d, err := querystring.ParseDuration(value); err == nil {
		return d, nil
	}
	return time.ParseDuration(value)
}

func (c *ApiContext) parseTimestampParam(r *http.Request, names ...string) (time.Time, error) {
	value := formValue(r, names...)
	if value == "" {
		return time.Time{}, nil
	}
	location, err := querystring.ParseOffset(r.FormValue("tz_offset"))
	if err != nil {
		return time.Time{}, core.NewBadRequestError("invalid tz_offset: %v", err)
	}
	if ts, err := eve.ParseTimestamp(value); err == nil {
		return ts, nil
	}
	ts, err := querystring.ParseTimestamp(value, location, c.now())
	if err != nil {
		return time.Time{}, core.NewBadRequestError("invalid %s: %s", names[0], value)
	}
	return ts, nil
}

func parseSize(r *http.Request) (int64, error) {
	value := r.FormValue("size")
	if value == "" {
		return 0, nil
	}
	size, err := strconv.ParseInt(value, 10, 64)
	if err != nil || size < 0 {
		return 0, core.NewBadRequestError("invalid size: %s", value)
	}
	return size, nil
}

func parseOrder(r *http.Request) (string, error) {
	order := strings.ToLower(r.FormValue("order"))
	switch order {
	case "", "asc", "desc":
		return order, nil
	}
	return "", core.NewBadRequestError("invalid order: %s", order)
}

func sensorParam(r *http.Request) string {
	return formValue(r, "sensor", "sensor_name")
}
