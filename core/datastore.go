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

package core

import (
	"context"

	"github.com/jasonish/evecore/eve"
	"github.com/jasonish/evecore/log"
	"github.com/jasonish/evecore/stats"
)

// Datastore is the interface to an event store. Elasticsearch, SQLite and
// PostgreSQL implementations exist.
type Datastore interface {
	GetEveEventSink() EveEventSink

	GetEventById(ctx context.Context, id string) (*Event, error)

	ArchiveEvent(ctx context.Context, id string, username string) error
	EscalateEvent(ctx context.Context, id string, username string) error
	DeEscalateEvent(ctx context.Context, id string, username string) error
	CommentOnEvent(ctx context.Context, id string, comment string, username string) error

	ArchiveAlertGroup(ctx context.Context, p AlertGroupSpec, username string) error
	EscalateAlertGroup(ctx context.Context, p AlertGroupSpec, username string) error
	DeEscalateAlertGroup(ctx context.Context, p AlertGroupSpec, username string) error
	CommentOnAlertGroup(ctx context.Context, p AlertGroupSpec, comment string, username string) error

	Alerts(ctx context.Context, options AlertQueryOptions) (*AlertsResult, error)
	Events(ctx context.Context, options EventQueryOptions) ([]Event, error)

	GroupBy(ctx context.Context, options GroupByOptions) ([]GroupByResult, error)
	HistogramTime(ctx context.Context, options HistogramOptions) ([]HistogramBucket, error)

	StatsAgg(ctx context.Context, options stats.AggOptions) ([]stats.Point, error)
	StatsAggBySensor(ctx context.Context, options stats.AggOptions) (map[string][]stats.Point, error)

	Dhcp(ctx context.Context, options DhcpOptions) ([]eve.EveEvent, error)
	GetSensors(ctx context.Context) ([]string, error)
	DnsReverseLookup(ctx context.Context, options DnsReverseLookupOptions) ([]string, error)
}

// UnimplementedDatastore can be embedded by a datastore to satisfy the
// parts of the Datastore interface it doesn't implement.
type UnimplementedDatastore struct {
}

func unimplemented(operation string) error {
	log.Warning("%s not implemented by this datastore", operation)
	return Unimplemented(operation)
}

func (d *UnimplementedDatastore) GetEveEventSink() EveEventSink {
	log.Warning("GetEveEventSink not implemented by this datastore")
	return nil
}

func (d *UnimplementedDatastore) GetEventById(ctx context.Context, id string) (*Event, error) {
	return nil, unimplemented("GetEventById")
}

func (d *UnimplementedDatastore) ArchiveEvent(ctx context.Context, id string, username string) error {
	return unimplemented("ArchiveEvent")
}

func (d *UnimplementedDatastore) EscalateEvent(ctx context.Context, id string, username string) error {
	return unimplemented("EscalateEvent")
}

func (d *UnimplementedDatastore) DeEscalateEvent(ctx context.Context, id string, username string) error {
	return unimplemented("DeEscalateEvent")
}

func (d *UnimplementedDatastore) CommentOnEvent(ctx context.Context, id string, comment string, username string) error {
	return unimplemented("CommentOnEvent")
}

func (d *UnimplementedDatastore) ArchiveAlertGroup(ctx context.Context, p AlertGroupSpec, username string) error {
	return unimplemented("ArchiveAlertGroup")
}

func (d *UnimplementedDatastore) EscalateAlertGroup(ctx context.Context, p AlertGroupSpec, username string) error {
	return unimplemented("EscalateAlertGroup")
}

func (d *UnimplementedDatastore) DeEscalateAlertGroup(ctx context.Context, p AlertGroupSpec, username string) error {
	return unimplemented("DeEscalateAlertGroup")
}

func (d *UnimplementedDatastore) CommentOnAlertGroup(ctx context.Context, p AlertGroupSpec, comment string, username string) error {
	return unimplemented("CommentOnAlertGroup")
}

func (d *UnimplementedDatastore) Alerts(ctx context.Context, options AlertQueryOptions) (*AlertsResult, error) {
	return nil, unimplemented("Alerts")
}

func (d *UnimplementedDatastore) Events(ctx context.Context, options EventQueryOptions) ([]Event, error) {
	return nil, unimplemented("Events")
}

func (d *UnimplementedDatastore) GroupBy(ctx context.Context, options GroupByOptions) ([]GroupByResult, error) {
	return nil, unimplemented("GroupBy")
}

func (d *UnimplementedDatastore) HistogramTime(ctx context.Context, options HistogramOptions) ([]HistogramBucket, error) {
	return nil, unimplemented("HistogramTime")
}

func (d *UnimplementedDatastore) StatsAgg(ctx context.Context, options stats.AggOptions) ([]stats.Point, error) {
	return nil, unimplemented("StatsAgg")
}

func (d *UnimplementedDatastore) StatsAggBySensor(ctx context.Context, options stats.AggOptions) (map[string][]stats.Point, error) {
	return nil, unimplemented("StatsAggBySensor")
}

func (d *UnimplementedDatastore) Dhcp(ctx context.Context, options DhcpOptions) ([]eve.EveEvent, error) {
	return nil, unimplemented("Dhcp")
}

func (d *UnimplementedDatastore) GetSensors(ctx context.Context) ([]string, error) {
	return nil, unimplemented("GetSensors")
}

func (d *UnimplementedDatastore) DnsReverseLookup(ctx context.Context, options DnsReverseLookupOptions) ([]string, error) {
	return nil, unimplemented("DnsReverseLookup")
}
