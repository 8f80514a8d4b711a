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

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jasonish/evecore/core"
	"github.com/jasonish/evecore/eve"
	"github.com/jasonish/evecore/stats"
)

const sensorCacheKey = "sensors"

func (c *ApiContext) HistogramTimeHandler(w *ResponseWriter, r *http.Request) error {
	var options core.HistogramOptions
	var err error

	if options.Query, err = c.parseQueryString(r); err != nil {
		return err
	}
	if options.MinTimestamp, err = c.parseTimeRange(r); err != nil {
		return err
	}
	if value := r.FormValue("interval"); value != "" {
		if options.Interval, err = parseDuration(value); err != nil || options.Interval <= 0 {
			return core.NewBadRequestError("invalid interval: %s", value)
		}
	}
	options.EventType = r.FormValue("event_type")
	options.Sensor = sensorParam(r)

	buckets, err := c.dataStore.HistogramTime(r.Context(), options)
	if err != nil {
		return err
	}
	return w.OkJSON(map[string]interface{}{
		"data": buckets,
	})
}

func (c *ApiContext) AggHandler(w *ResponseWriter, r *http.Request) error {
	var options core.GroupByOptions
	var err error

	options.Field = r.FormValue("field")
	if options.Field == "" {
		return core.NewBadRequestError("field is required")
	}
	if options.Query, err = c.parseQueryString(r, "q", "query_string"); err != nil {
		return err
	}
	if options.Size, err = parseSize(r); err != nil {
		return err
	}
	if options.Order, err = parseOrder(r); err != nil {
		return err
	}
	if options.MinTimestamp, err = c.parseTimeRange(r); err != nil {
		return err
	}
	options.EventType = r.FormValue("event_type")
	options.Sensor = sensorParam(r)

	results, err := c.dataStore.GroupBy(r.Context(), options)
	if err != nil {
		return err
	}
	if results == nil {
		results = []core.GroupByResult{}
	}
	return w.OkJSON(map[string]interface{}{
		"data": results,
	})
}

func (c *ApiContext) statsAggOptions(r *http.Request) (stats.AggOptions, error) {
	options := stats.AggOptions{
		Field:  r.FormValue("field"),
		Sensor: sensorParam(r),
	}
	start, err := c.parseTimeRange(r)
	if err != nil {
		return options, err
	}
	if start.IsZero() {
		start = c.now().Add(-core.DefaultHistogramRange)
	}
	options.StartTime = start
	return options, nil
}

func (c *ApiContext) statsAgg(w *ResponseWriter, r *http.Request, diff bool) error {
	options, err := c.statsAggOptions(r)
	if err != nil {
		return err
	}
	points, err := c.dataStore.StatsAgg(r.Context(), options)
	if err != nil {
		return err
	}
	if diff {
		points = stats.Diff(points)
	}
	if points == nil {
		points = []stats.Point{}
	}
	return w.OkJSON(map[string]interface{}{
		"data": points,
	})
}

func (c *ApiContext) statsAggBySensor(w *ResponseWriter, r *http.Request, diff bool) error {
	options, err := c.statsAggOptions(r)
	if err != nil {
		return err
	}
	points, err := c.dataStore.StatsAggBySensor(r.Context(), options)
	if err != nil {
		return err
	}
	if diff {
		points = stats.DiffBySensor(points)
	}
	if points == nil {
		points = map[string][]stats.Point{}
	}
	return w.OkJSON(map[string]interface{}{
		"data": points,
	})
}

func (c *ApiContext) StatsAggHandler(w *ResponseWriter, r *http.Request) error {
	return c.statsAgg(w, r, false)
}

func (c *ApiContext) StatsAggDiffHandler(w *ResponseWriter, r *http.Request) error {
	return c.statsAgg(w, r, true)
}

func (c *ApiContext) StatsAggBySensorHandler(w *ResponseWriter, r *http.Request) error {
	return c.statsAggBySensor(w, r, false)
}

func (c *ApiContext) StatsAggDiffBySensorHandler(w *ResponseWriter, r *http.Request) error {
	return c.statsAggBySensor(w, r, true)
}

func (c *ApiContext) dhcp(w *ResponseWriter, r *http.Request, dhcpType string) error {
	options := core.DhcpOptions{
		DhcpType: dhcpType,
		Sensor:   sensorParam(r),
	}
	var err error
	if options.Earliest, err = c.parseTimeRange(r); err != nil {
		return err
	}
	events, err := c.dataStore.Dhcp(r.Context(), options)
	if err != nil {
		return err
	}
	if events == nil {
		events = []eve.EveEvent{}
	}
	return w.OkJSON(map[string]interface{}{
		"events": events,
	})
}

func (c *ApiContext) DhcpAckHandler(w *ResponseWriter, r *http.Request) error {
	return c.dhcp(w, r, "ack")
}

func (c *ApiContext) DhcpRequestHandler(w *ResponseWriter, r *http.Request) error {
	return c.dhcp(w, r, "request")
}

// SensorsHandler returns the known sensor names. The list is cached for
// a short time as it requires a scan of the events.
func (c *ApiContext) SensorsHandler(w *ResponseWriter, r *http.Request) error {
	sensors, ok := c.sensorCache.Get(sensorCacheKey)
	if !ok {
		var err error
		sensors, err = c.dataStore.GetSensors(r.Context())
		if err != nil {
			return err
		}
		if sensors == nil {
			sensors = []string{}
		}
		c.sensorCache.Add(sensorCacheKey, sensors)
	}
	return w.OkJSON(map[string]interface{}{
		"data": sensors,
	})
}

// DnsReverseLookupHandler returns the hostnames that resolved to an
// address in the hour before the given timestamp.
func (c *ApiContext) DnsReverseLookupHandler(w *ResponseWriter, r *http.Request) error {
	options := core.DnsReverseLookupOptions{
		Sensor: sensorParam(r),
		SrcIp:  r.FormValue("src_ip"),
		DestIp: r.FormValue("dest_ip"),
	}
	if options.SrcIp == "" && options.DestIp == "" {
		return core.NewBadRequestError("src_ip or dest_ip is required")
	}
	var err error
	if options.Before, err = c.parseTimestampParam(r, "before", "timestamp"); err != nil {
		return err
	}

	// Requests without a timestamp are relative to now, they share a
	// cache entry per minute.
	before := options.Before
	if before.IsZero() {
		before = c.now()
	}
	key := fmt.Sprintf("%s|%s|%s|%d", options.Sensor, options.SrcIp,
		options.DestIp, before.Truncate(time.Minute).Unix())

	hostnames, ok := c.dnsCache.Get(key)
	if !ok {
		hostnames, err = c.dataStore.DnsReverseLookup(r.Context(), options)
		if err != nil {
			return err
		}
		if hostnames == nil {
			hostnames = []string{}
		}
		c.dnsCache.Add(key, hostnames)
	}
	return w.OkJSON(map[string]interface{}{
		"data": hostnames,
	})
}
