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

package elasticsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/jasonish/evecore/eve"
	"github.com/jasonish/evecore/httputil"
	"github.com/jasonish/evecore/log"
	"github.com/jasonish/evecore/util"
	"github.com/oklog/ulid"
	"github.com/pkg/errors"
)

const AtTimestampFormat = "2006-01-02T15:04:05.999Z"

const IndexDateLayout = "2006.01.02"

func FormatTimestamp(ts time.Time) string {
	return ts.UTC().Format(AtTimestampFormat)
}

// IndexName returns the daily index for an event timestamp.
func (es *ElasticSearch) IndexName(timestamp time.Time) string {
	return fmt.Sprintf("%s-%s", es.EventBaseIndex, timestamp.UTC().Format(IndexDateLayout))
}

// BulkEveIndexer is the event sink for Elasticsearch, events are queued
// by Submit and sent in a single _bulk request by Commit.
type BulkEveIndexer struct {
	es      *ElasticSearch
	queued  uint64
	buf     []byte
	entropy io.Reader
	lock    sync.Mutex
}

func NewIndexer(es *ElasticSearch) *BulkEveIndexer {
	return &BulkEveIndexer{
		es:      es,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (i *BulkEveIndexer) Submit(event eve.EveEvent) error {
	timestamp := event.Timestamp()
	if timestamp.IsZero() {
		return errors.New("event has no timestamp")
	}
	event["@timestamp"] = FormatTimestamp(timestamp)

	i.lock.Lock()
	defer i.lock.Unlock()

	id, err := ulid.New(ulid.Timestamp(timestamp), i.entropy)
	if err != nil {
		return errors.Wrap(err, "failed to generate event id")
	}

	header := BulkCreateHeader{}
	header.Create.Index = i.es.IndexName(timestamp)
	header.Create.Id = id.String()

	rheader, err := json.Marshal(header)
	if err != nil {
		return errors.WithStack(err)
	}
	revent, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to encode event")
	}

	i.buf = append(i.buf, rheader...)
	i.buf = append(i.buf, '\n')
	i.buf = append(i.buf, revent...)
	i.buf = append(i.buf, '\n')
	i.queued++

	return nil
}

// Commit sends the queued events. If any event is rejected an error is
// returned along with the number of events that were accepted.
func (i *BulkEveIndexer) Commit() (uint64, error) {
	i.lock.Lock()
	buf := i.buf
	queued := i.queued
	i.buf = nil
	i.queued = 0
	i.lock.Unlock()

	if len(buf) == 0 {
		return 0, nil
	}

	response, err := i.es.HttpClient.PostBytes(context.Background(), "_bulk",
		"application/x-ndjson", buf)
	if err != nil {
		return 0, err
	}
	if response.StatusCode != http.StatusOK {
		return 0, NewElasticSearchError(response)
	}

	var bulkResponse BulkResponse
	if err := httputil.DecodeResponse(response, &bulkResponse); err != nil {
		return 0, err
	}

	if !bulkResponse.Errors {
		log.Debug("Committed %d events in %dms", queued, bulkResponse.Took)
		return queued, nil
	}

	var accepted uint64
	var firstError string
	for _, item := range bulkResponse.Items {
		result := item["create"]
		if result.Get("error") == nil {
			accepted++
		} else if firstError == "" {
			firstError = util.ToJson(result.Get("error"))
		}
	}
	log.Warning("Elasticsearch rejected %d of %d events: %s",
		queued-accepted, queued, firstError)
	return accepted, errors.Errorf("%d of %d events rejected: %s",
		queued-accepted, queued, firstError)
}
