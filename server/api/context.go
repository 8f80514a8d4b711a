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
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jasonish/evecore/autoarchive"
	"github.com/jasonish/evecore/core"
	"github.com/jasonish/evecore/ingest"
	"github.com/jasonish/evecore/server/auth"
	"github.com/jasonish/evecore/server/router"
	"github.com/jasonish/evecore/server/sessions"
)

const (
	sensorCacheTTL = time.Minute
	dnsCacheTTL    = 5 * time.Minute
	dnsCacheSize   = 4096
)

type ApiContext struct {
	dataStore     core.Datastore
	pipeline      *ingest.Pipeline
	sessionStore  *sessions.SessionStore
	authenticator auth.Authenticator

	autoArchive          *autoarchive.Store
	autoArchiveProcessor *autoarchive.Processor

	// Soft timeout for alert queries that don't provide one.
	AlertTimeout time.Duration

	// Extra information returned by the config endpoint.
	Features map[string]interface{}

	sensorCache *expirable.LRU[string, []string]
	dnsCache    *expirable.LRU[string, []string]

	now func() time.Time
}

func NewApiContext(dataStore core.Datastore, pipeline *ingest.Pipeline,
	sessionStore *sessions.SessionStore, authenticator auth.Authenticator) *ApiContext {
	return &ApiContext{
		dataStore:     dataStore,
		pipeline:      pipeline,
		sessionStore:  sessionStore,
		authenticator: authenticator,
		Features:      map[string]interface{}{},
		sensorCache:   expirable.NewLRU[string, []string](1, nil, sensorCacheTTL),
		dnsCache:      expirable.NewLRU[string, []string](dnsCacheSize, nil, dnsCacheTTL),
		now:           time.Now,
	}
}

// SetAutoArchive enables the auto-archive endpoints. New rules are sent
// to the processor to archive matching alerts already stored.
func (c *ApiContext) SetAutoArchive(store *autoarchive.Store, processor *autoarchive.Processor) {
	c.autoArchive = store
	c.autoArchiveProcessor = processor
}

func (c *ApiContext) InitRoutes(router *router.Router) {
	r := apiRouter{router}

	r.POST("/login", c.LoginHandler)
	r.POST("/logout", c.LogoutHandler)
	r.GET("/session", c.SessionHandler)

	r.GET("/version", c.VersionHandler)
	r.GET("/config", c.ConfigHandler)

	r.GET("/alerts", c.AlertsHandler)
	r.POST("/alert-group/archive", c.AlertGroupArchiveHandler)
	r.POST("/alert-group/star", c.EscalateAlertGroupHandler)
	r.POST("/alert-group/unstar", c.DeEscalateAlertGroupHandler)
	r.POST("/alert-group/comment", c.CommentOnAlertGroupHandler)

	r.GET("/events", c.EventsHandler)
	r.GET("/event/{id}", c.GetEventByIdHandler)
	r.POST("/event/{id}/archive", c.ArchiveEventHandler)
	r.POST("/event/{id}/escalate", c.EscalateEventHandler)
	r.POST("/event/{id}/deescalate", c.DeEscalateEventHandler)
	r.POST("/event/{id}/de-escalate", c.DeEscalateEventHandler)
	r.POST("/event/{id}/comment", c.CommentOnEventHandler)

	r.GET("/histogram/time", c.HistogramTimeHandler)
	r.GET("/agg", c.AggHandler)
	r.GET("/stats/agg", c.StatsAggHandler)
	r.GET("/stats/agg/diff", c.StatsAggDiffHandler)
	r.GET("/stats/agg/by-sensor", c.StatsAggBySensorHandler)
	r.GET("/stats/agg/diff/by-sensor", c.StatsAggDiffBySensorHandler)
	r.GET("/dhcp/ack", c.DhcpAckHandler)
	r.GET("/dhcp/request", c.DhcpRequestHandler)
	r.GET("/sensors", c.SensorsHandler)
	r.GET("/dns/reverse", c.DnsReverseLookupHandler)

	r.POST("/submit", c.SubmitHandler)

	r.GET("/auto-archive", c.ListAutoArchiveHandler)
	r.POST("/auto-archive", c.AddAutoArchiveHandler)
	r.DELETE("/auto-archive", c.DeleteAutoArchiveHandler)
}
