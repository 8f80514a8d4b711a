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

package api

import (
	"net/http"

	"github.com/jasonish/evecore/autoarchive"
	"github.com/jasonish/evecore/core"
	"github.com/jasonish/evecore/log"
)

func (c *ApiContext) ListAutoArchiveHandler(w *ResponseWriter, r *http.Request) error {
	if c.autoArchive == nil {
		return core.Unimplemented("AutoArchive")
	}
	return w.OkJSON(map[string]interface{}{
		"data": c.autoArchive.Filters.List(),
	})
}

func (c *ApiContext) decodeFilterEntry(r *http.Request) (autoarchive.FilterEntry, error) {
	var entry autoarchive.FilterEntry
	if c.autoArchive == nil {
		return entry, core.Unimplemented("AutoArchive")
	}
	if err := DecodeRequestBody(r, &entry); err != nil {
		return entry, err
	}
	entry = entry.Normalize()
	if err := entry.Validate(); err != nil {
		return entry, err
	}
	return entry, nil
}

// AddAutoArchiveHandler adds a rule, and queues it for archiving of the
// matching alerts already stored.
func (c *ApiContext) AddAutoArchiveHandler(w *ResponseWriter, r *http.Request) error {
	entry, err := c.decodeFilterEntry(r)
	if err != nil {
		return err
	}
	added, err := c.autoArchive.Add(entry)
	if err != nil {
		return err
	}
	log.Info("Auto-archive rule %s added by %s", entry.Key(), username(r))
	if c.autoArchiveProcessor != nil {
		c.autoArchiveProcessor.Submit(entry)
	}
	return w.OkJSON(map[string]interface{}{
		"added": added,
		"key":   entry.Key(),
	})
}

func (c *ApiContext) DeleteAutoArchiveHandler(w *ResponseWriter, r *http.Request) error {
	entry, err := c.decodeFilterEntry(r)
	if err != nil {
		return err
	}
	removed, err := c.autoArchive.Remove(entry)
	if err != nil {
		return err
	}
	log.Info("Auto-archive rule %s removed by %s", entry.Key(), username(r))
	return w.OkJSON(map[string]interface{}{
		"removed": removed,
		"key":     entry.Key(),
	})
}
