/* Copyright (c) 2024 Jason Ish
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

// Package metrics holds the Prometheus collectors for ingest, alert
// queries and retention.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "evebox"

var (
	EventsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_received_total",
		Help:      "Total number of events received for ingest",
	})
	EventsCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_committed_total",
		Help:      "Total number of events acknowledged by the datastore",
	})
	EventsInvalid = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_invalid_total",
		Help:      "Total number of malformed events dropped during ingest",
	})
	EventsAutoArchived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_auto_archived_total",
		Help:      "Total number of events archived by an auto-archive rule",
	})
	CommitErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commit_errors_total",
		Help:      "Total number of failed datastore commits",
	})

	AlertQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "alert_query_duration_seconds",
		Help:      "Duration of alert group queries",
		Buckets:   prometheus.DefBuckets,
	}, []string{"datastore"})
	AlertQueryTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alert_query_timeouts_total",
		Help:      "Total number of alert group queries that hit their soft timeout",
	}, []string{"datastore"})

	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts by result",
	}, []string{"result"})

	RetentionDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retention_deleted_total",
		Help:      "Total number of units or events deleted by retention",
	})
)

// AlertQueryTimer records the duration of one alert query.
type AlertQueryTimer struct {
	datastore string
	start     time.Time
}

func NewAlertQueryTimer(datastore string) *AlertQueryTimer {
	return &AlertQueryTimer{
		datastore: datastore,
		start:     time.Now(),
	}
}

func (t *AlertQueryTimer) Done(timedOut bool) {
	AlertQueryDuration.WithLabelValues(t.datastore).Observe(time.Since(t.start).Seconds())
	if timedOut {
		AlertQueryTimeouts.WithLabelValues(t.datastore).Inc()
	}
}

// Handler returns the HTTP handler serving the metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
