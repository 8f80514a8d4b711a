/* Copyright (c) 2016-2017 Jason Ish
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
	"strconv"
	"strings"
	"time"

	"github.com/jasonish/evecore/core"
	"github.com/jasonish/evecore/log"
	"github.com/pkg/errors"
)

// AlertsHandler returns alert groups. Parameters:
//   - query_string: the user query
//   - tags: comma separated tags, prefix with - for tags that must not
//     be present
//   - time_range: only alerts newer than now minus this duration
//   - sensor: limit to a sensor
//   - timeout: soft timeout, in milliseconds or as a duration
func (c *ApiContext) AlertsHandler(w *ResponseWriter, r *http.Request) error {
	options := core.AlertQueryOptions{
		Sensor:  sensorParam(r),
		Timeout: c.AlertTimeout,
	}

	query, err := c.parseQueryString(r)
	if err != nil {
		return err
	}
	options.Query = query

	if tags := r.FormValue("tags"); tags != "" {
		options.Tags = strings.Split(tags, ",")
	}

	if options.TimestampGte, err = c.parseTimeRange(r); err != nil {
		return err
	}

	if value := r.FormValue("timeout"); value != "" {
		timeout, err := parseTimeout(value)
		if err != nil {
			return err
		}
		options.Timeout = timeout
	}

	result, err := c.dataStore.Alerts(r.Context(), options)
	if err != nil {
		return err
	}
	if result.TimedOut {
		log.Info("Alert query timed out after %dms with %d groups",
			result.Took, len(result.Events))
	}
	return w.OkJSON(result)
}

// parseTimeout accepts a number of milliseconds or a duration.
func parseTimeout(value string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil && ms >= 0 {
		return time.Duration(ms) * time.Millisecond, nil
	}
	timeout, err := time.ParseDuration(value)
	if err != nil || timeout < 0 {
		return 0, core.NewBadRequestError("invalid timeout: %s", value)
	}
	return timeout, nil
}

func decodeAlertGroupSpec(r *http.Request) (core.AlertGroupSpec, error) {
	var spec core.AlertGroupSpec
	if err := DecodeRequestBody(r, &spec); err != nil {
		return spec, err
	}
	return spec, nil
}

// /api/alert-group/archive
func (c *ApiContext) AlertGroupArchiveHandler(w *ResponseWriter, r *http.Request) error {
	spec, err := decodeAlertGroupSpec(r)
	if err != nil {
		return err
	}
	if err := c.dataStore.ArchiveAlertGroup(r.Context(), spec, username(r)); err != nil {
		return errors.WithStack(err)
	}
	return w.Ok()
}

func (c *ApiContext) EscalateAlertGroupHandler(w *ResponseWriter, r *http.Request) error {
	spec, err := decodeAlertGroupSpec(r)
	if err != nil {
		return err
	}
	if err := c.dataStore.EscalateAlertGroup(r.Context(), spec, username(r)); err != nil {
		return errors.WithStack(err)
	}
	return w.Ok()
}

func (c *ApiContext) DeEscalateAlertGroupHandler(w *ResponseWriter, r *http.Request) error {
	spec, err := decodeAlertGroupSpec(r)
	if err != nil {
		return err
	}
	if err := c.dataStore.DeEscalateAlertGroup(r.Context(), spec, username(r)); err != nil {
		return errors.WithStack(err)
	}
	return w.Ok()
}
