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

package autoarchive

import (
	"context"
	"strconv"
	"sync"

	"github.com/jasonish/evecore/core"
	"github.com/jasonish/evecore/eve"
	"github.com/jasonish/evecore/log"
	"github.com/jasonish/evecore/querystring"
)

// Username recorded in the history of alerts archived by the processor.
const ProcessorUsername = "auto-archive"

// Processor archives the already stored alerts matching newly added
// rules. Rules are queued without limit, so Submit never blocks the
// caller; they are processed one at a time in the order received.
type Processor struct {
	datastore core.Datastore

	lock   sync.Mutex
	queue  []FilterEntry
	notify chan struct{}
}

func NewProcessor(datastore core.Datastore) *Processor {
	return &Processor{
		datastore: datastore,
		notify:    make(chan struct{}, 1),
	}
}

func (p *Processor) Submit(entry FilterEntry) {
	p.lock.Lock()
	p.queue = append(p.queue, entry.Normalize())
	p.lock.Unlock()
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *Processor) Pending() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return len(p.queue)
}

func (p *Processor) next() (FilterEntry, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if len(p.queue) == 0 {
		return FilterEntry{}, false
	}
	entry := p.queue[0]
	p.queue = p.queue[1:]
	return entry, true
}

// Run processes queued rules until the context is cancelled.
func (p *Processor) Run(ctx context.Context) {
	for {
		for {
			entry, ok := p.next()
			if !ok {
				break
			}
			if err := p.Process(ctx, entry); err != nil {
				log.Error("Failed to auto-archive alerts for rule %s: %v",
					entry.Key(), err)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-p.notify:
		}
	}
}

// Process archives all non-archived alert groups matching the rule. A
// failure to archive one group is logged and the remaining groups are
// still archived; an error is only returned if the alerts could not be
// queried.
func (p *Processor) Process(ctx context.Context, entry FilterEntry) error {
	entry = entry.Normalize()
	options := core.AlertQueryOptions{
		Query: []querystring.Element{
			querystring.NewKeyValue("alert.signature_id",
				strconv.FormatUint(entry.SignatureId, 10)),
		},
		Tags: []string{"-" + eve.TagArchived},
	}
	if entry.SensorName != Wildcard {
		options.Sensor = entry.SensorName
	}

	result, err := p.datastore.Alerts(ctx, options)
	if err != nil {
		return err
	}

	archived := 0
	for _, group := range result.Events {
		if !entry.Matches(group.Source.Host(), group.Source.SrcIp(),
			group.Source.DestIp(), entry.SignatureId) {
			continue
		}
		spec := core.AlertGroupSpec{
			SignatureID:  entry.SignatureId,
			SrcIP:        group.Source.SrcIp(),
			DestIP:       group.Source.DestIp(),
			MinTimestamp: group.Metadata.MinTimestamp,
			MaxTimestamp: group.Metadata.MaxTimestamp,
		}
		// Groups span sensors, the update must not.
		if entry.SensorName != Wildcard {
			spec.Sensor = entry.SensorName
		}
		if err := p.datastore.ArchiveAlertGroup(ctx, spec, ProcessorUsername); err != nil {
			log.Warning("Failed to auto-archive alert group %d %s -> %s: %v",
				spec.SignatureID, spec.SrcIP, spec.DestIP, err)
			continue
		}
		archived++
	}
	if archived > 0 {
		log.Info("Auto-archived %d alert groups for rule %s", archived, entry.Key())
	}
	return nil
}
