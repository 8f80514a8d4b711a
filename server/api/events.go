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
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jasonish/evecore/core"
	"github.com/pkg/errors"
)

func (c *ApiContext) GetEventByIdHandler(w *ResponseWriter, r *http.Request) error {
	eventId := mux.Vars(r)["id"]
	event, err := c.dataStore.GetEventById(r.Context(), eventId)
	if err != nil {
		return err
	}
	if event == nil {
		return core.NewEventNotFoundError(eventId)
	}
	return w.OkJSON(event)
}

// Archive a single event.
func (c *ApiContext) ArchiveEventHandler(w *ResponseWriter, r *http.Request) error {
	eventId := mux.Vars(r)["id"]
	if err := c.dataStore.ArchiveEvent(r.Context(), eventId, username(r)); err != nil {
		return errors.WithStack(err)
	}
	return w.Ok()
}

func (c *ApiContext) EscalateEventHandler(w *ResponseWriter, r *http.Request) error {
	eventId := mux.Vars(r)["id"]
	if err := c.dataStore.EscalateEvent(r.Context(), eventId, username(r)); err != nil {
		return errors.WithStack(err)
	}
	return w.Ok()
}

func (c *ApiContext) DeEscalateEventHandler(w *ResponseWriter, r *http.Request) error {
	eventId := mux.Vars(r)["id"]
	if err := c.dataStore.DeEscalateEvent(r.Context(), eventId, username(r)); err != nil {
		return errors.WithStack(err)
	}
	return w.Ok()
}

// EventsHandler returns raw events. Flows are queried with
// event_type=flow and sort_by set to a flow field.
func (c *ApiContext) EventsHandler(w *ResponseWriter, r *http.Request) error {
	var options core.EventQueryOptions
	var err error

	if options.Query, err = c.parseQueryString(r); err != nil {
		return err
	}
	if options.MinTimestamp, err = c.parseTimestampParam(r, "min_timestamp", "min_ts"); err != nil {
		return err
	}
	if options.MaxTimestamp, err = c.parseTimestampParam(r, "max_timestamp", "max_ts"); err != nil {
		return err
	}
	if options.MinTimestamp.IsZero() {
		if options.MinTimestamp, err = c.parseTimeRange(r); err != nil {
			return err
		}
	}
	if options.Size, err = parseSize(r); err != nil {
		return err
	}
	if options.Order, err = parseOrder(r); err != nil {
		return err
	}
	options.EventType = r.FormValue("event_type")
	options.SortBy = r.FormValue("sort_by")
	options.Sensor = sensorParam(r)

	events, err := c.dataStore.Events(r.Context(), options)
	if err != nil {
		return err
	}
	if events == nil {
		events = []core.Event{}
	}
	return w.OkJSON(map[string]interface{}{
		"events": events,
	})
}
