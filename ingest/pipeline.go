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

// Package ingest takes EVE records from the submit API, the NATS input or
// the importer, runs them through the filter chain and the auto-archive
// rules, then hands them to the datastore.
package ingest

import (
	"io"

	"github.com/jasonish/evecore/autoarchive"
	"github.com/jasonish/evecore/core"
	"github.com/jasonish/evecore/eve"
	"github.com/jasonish/evecore/log"
	"github.com/jasonish/evecore/metrics"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Events are committed in batches of this size when reading a stream.
const BatchSize = 1000

type Pipeline struct {
	datastore   core.Datastore
	filters     []eve.EveFilter
	autoArchive *autoarchive.Filters
}

func NewPipeline(datastore core.Datastore, autoArchive *autoarchive.Filters) *Pipeline {
	return &Pipeline{
		datastore:   datastore,
		filters:     []eve.EveFilter{&eve.TagsFilter{}},
		autoArchive: autoArchive,
	}
}

// AddFilter adds a filter to the chain. Filters run in the order added
// and before auto-archive matching.
func (p *Pipeline) AddFilter(filter eve.EveFilter) {
	p.filters = append(p.filters, filter)
}

// Process applies the filter chain and auto-archive rules to an event.
func (p *Pipeline) Process(event eve.EveEvent) {
	for _, filter := range p.filters {
		filter.Filter(event)
	}
	if p.autoArchive != nil && p.autoArchive.Apply(event) {
		metrics.EventsAutoArchived.Inc()
	}
}

// Submission is a batch of events destined for one datastore sink.
type Submission struct {
	pipeline  *Pipeline
	sink      core.EveEventSink
	pending   uint64
	committed uint64
}

func (p *Pipeline) NewSubmission() (*Submission, error) {
	sink := p.datastore.GetEveEventSink()
	if sink == nil {
		return nil, core.Unimplemented("GetEveEventSink")
	}
	return &Submission{
		pipeline: p,
		sink:     sink,
	}, nil
}

func (s *Submission) Submit(event eve.EveEvent) error {
	metrics.EventsReceived.Inc()
	s.pipeline.Process(event)
	if err := s.sink.Submit(event); err != nil {
		return errors.Wrap(err, "failed to submit event")
	}
	s.pending++
	return nil
}

// Pending returns the number of events submitted but not yet committed.
func (s *Submission) Pending() uint64 {
	return s.pending
}

// Commit commits the pending events, returning the number the datastore
// acknowledged.
func (s *Submission) Commit() (uint64, error) {
	if s.pending == 0 {
		return 0, nil
	}
	count, err := s.sink.Commit()
	s.pending = 0
	s.committed += count
	metrics.EventsCommitted.Add(float64(count))
	if err != nil {
		metrics.CommitErrors.Inc()
		return count, errors.Wrap(err, "failed to commit events")
	}
	return count, nil
}

// Committed returns the total number of events acknowledged by the
// datastore over the life of the submission.
func (s *Submission) Committed() uint64 {
	return s.committed
}

// SubmitReader submits all the newline delimited events read from r,
// committing every BatchSize events. Invalid lines are skipped. The number
// of events acknowledged by the datastore is returned, which may be
// non-zero along with an error if a later batch failed.
func (p *Pipeline) SubmitReader(r io.Reader) (uint64, error) {
	submission, err := p.NewSubmission()
	if err != nil {
		return 0, err
	}
	reader := NewReader(r)
	for {
		event, err := reader.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return submission.Committed(), errors.Wrap(err, "read error")
		}
		if err := submission.Submit(event); err != nil {
			return submission.Committed(), err
		}
		if submission.Pending() >= BatchSize {
			if _, err := submission.Commit(); err != nil {
				return submission.Committed(), err
			}
		}
	}
	if _, err := submission.Commit(); err != nil {
		return submission.Committed(), err
	}
	log.Logger().Debug("Committed events",
		zap.Uint64("count", submission.Committed()),
		zap.Uint64("invalid", reader.Invalid()))
	return submission.Committed(), nil
}
