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
	"fmt"
	"net/http"
	"net/url"

	"github.com/jasonish/evecore/retention"
	"github.com/pkg/errors"
)

// IndexPattern matches the daily event indices.
func (es *ElasticSearch) IndexPattern() *retention.UnitPattern {
	return retention.NewUnitPattern(es.EventBaseIndex+"-", IndexDateLayout)
}

// IndexStore lists and deletes the daily event indices.
type IndexStore struct {
	es *ElasticSearch
}

func NewIndexStore(es *ElasticSearch) *IndexStore {
	return &IndexStore{es: es}
}

func (s *IndexStore) ListUnits(ctx context.Context) ([]string, error) {
	var indices []CatIndex
	path := fmt.Sprintf("_cat/indices/%s?format=json&h=index",
		url.PathEscape(s.es.EventSearchIndex()))
	if err := s.es.do(ctx, http.MethodGet, path, nil, &indices); err != nil {
		return nil, errors.Wrap(err, "failed to list indices")
	}
	names := make([]string, 0, len(indices))
	for _, index := range indices {
		names = append(names, index.Index)
	}
	return names, nil
}

func (s *IndexStore) DeleteUnit(ctx context.Context, name string) error {
	if _, ok := s.es.IndexPattern().Date(name); !ok {
		return errors.Errorf("not an event index: %s", name)
	}
	return s.es.do(ctx, http.MethodDelete, url.PathEscape(name), nil, nil)
}
