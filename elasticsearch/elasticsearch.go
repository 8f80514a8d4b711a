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
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/jasonish/evecore/httputil"
	"github.com/jasonish/evecore/log"
	"github.com/jasonish/evecore/util"
	"github.com/pkg/errors"
)

const DefaultEventBaseIndex = "logstash"

const DefaultKeyword = "keyword"

type ElasticSearch struct {
	HttpClient *httputil.HttpClient

	// Events are stored in daily indices named EventBaseIndex-YYYY.MM.DD.
	EventBaseIndex string

	// Suffix of the not analyzed sub-field of a text field.
	keyword string

	majorVersion int64

	// Field type cache for aggregations.
	fieldTypes     map[string]string
	fieldTypesLock sync.Mutex
}

func New(url string) *ElasticSearch {
	httpClient := httputil.NewHttpClient()
	httpClient.SetBaseUrl(url)
	return &ElasticSearch{
		HttpClient:     httpClient,
		EventBaseIndex: DefaultEventBaseIndex,
		keyword:        DefaultKeyword,
		fieldTypes:     map[string]string{},
	}
}

func (es *ElasticSearch) SetEventBaseIndex(index string) {
	if index != "" {
		es.EventBaseIndex = index
	}
}

func (es *ElasticSearch) SetKeyword(keyword string) {
	es.keyword = keyword
}

// EventSearchIndex returns the index pattern matching all event indices.
func (es *ElasticSearch) EventSearchIndex() string {
	return es.EventBaseIndex + "-*"
}

// FormatKeyword returns the name of the keyword sub-field of a text
// field.
func (es *ElasticSearch) FormatKeyword(field string) string {
	if es.keyword == "" {
		return field
	}
	return fmt.Sprintf("%s.%s", field, es.keyword)
}

// Ping checks the connection to Elasticsearch, recording the version.
func (es *ElasticSearch) Ping(ctx context.Context) (*PingResponse, error) {
	response, err := es.HttpClient.Get(ctx, "")
	if err != nil {
		return nil, err
	}
	if response.StatusCode != http.StatusOK {
		return nil, NewElasticSearchError(response)
	}

	var body PingResponse
	if err := httputil.DecodeResponse(response, &body); err != nil {
		return nil, err
	}
	es.majorVersion = body.MajorVersion()
	return &body, nil
}

// Connect pings Elasticsearch and installs the index template for the
// event indices.
func (es *ElasticSearch) Connect(ctx context.Context) error {
	ping, err := es.Ping(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to ping elasticsearch")
	}
	log.Info("Connected to Elasticsearch version %s (cluster %s)",
		ping.Version.Number, ping.ClusterName)
	if ping.MajorVersion() < 7 {
		return errors.Errorf("elasticsearch version %s is not supported", ping.Version.Number)
	}
	return es.LoadTemplate(ctx)
}

// do sends a JSON request, decoding a JSON response into result if not
// nil. Non 2xx responses are returned as an ElasticSearchError.
func (es *ElasticSearch) do(ctx context.Context, method string, path string, body interface{}, result interface{}) error {
	var response *http.Response
	var err error
	if body != nil {
		response, err = es.HttpClient.RequestJson(ctx, method, path, body)
	} else {
		response, err = es.HttpClient.Request(ctx, method, path, "", nil)
	}
	if err != nil {
		return err
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return NewElasticSearchError(response)
	}
	if result == nil {
		es.HttpClient.DiscardResponse(response)
		return nil
	}
	return httputil.DecodeResponse(response, result)
}

// Search runs a query over the event indices.
func (es *ElasticSearch) Search(ctx context.Context, query interface{}) (*SearchResponse, error) {
	if log.IsDebug() {
		log.Debug("Search: %s", util.ToJson(query))
	}
	var response SearchResponse
	path := fmt.Sprintf("%s/_search", es.EventSearchIndex())
	if err := es.do(ctx, http.MethodPost, path, query, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// UpdateByQuery runs a painless script over every event matching the
// query, refreshing the indices so the changes are visible to the next
// search.
func (es *ElasticSearch) UpdateByQuery(ctx context.Context, query interface{}) (*UpdateByQueryResponse, error) {
	if log.IsDebug() {
		log.Debug("Update by query: %s", util.ToJson(query))
	}
	var response UpdateByQueryResponse
	path := fmt.Sprintf("%s/_update_by_query?refresh=true&conflicts=proceed",
		es.EventSearchIndex())
	if err := es.do(ctx, http.MethodPost, path, query, &response); err != nil {
		return nil, err
	}
	if len(response.Failures) > 0 {
		return &response, errors.Errorf("update by query failed: %s", util.ToJson(response.Failures[0]))
	}
	return &response, nil
}

// FieldType returns the mapped type of a field across the event indices,
// an empty string if unmapped. Types are cached once found.
func (es *ElasticSearch) FieldType(ctx context.Context, field string) (string, error) {
	es.fieldTypesLock.Lock()
	fieldType, ok := es.fieldTypes[field]
	es.fieldTypesLock.Unlock()
	if ok {
		return fieldType, nil
	}

	var response FieldCapsResponse
	path := fmt.Sprintf("%s/_field_caps?fields=%s", es.EventSearchIndex(),
		url.QueryEscape(field))
	if err := es.do(ctx, http.MethodGet, path, nil, &response); err != nil {
		return "", err
	}
	types := response.Fields[field]
	if _, ok := types["text"]; ok {
		// Text in any index, aggregate on the keyword.
		fieldType = "text"
	} else {
		for name := range types {
			fieldType = name
		}
	}
	if fieldType != "" {
		es.fieldTypesLock.Lock()
		es.fieldTypes[field] = fieldType
		es.fieldTypesLock.Unlock()
	}
	return fieldType, nil
}

// AggField returns the field to aggregate on for field, the keyword
// sub-field for text fields.
func (es *ElasticSearch) AggField(ctx context.Context, field string) (string, error) {
	fieldType, err := es.FieldType(ctx, field)
	if err != nil {
		return "", err
	}
	if fieldType == "text" {
		return es.FormatKeyword(field), nil
	}
	return field, nil
}

type ElasticSearchError struct {
	StatusCode int

	// The raw error body as returned from the server.
	Raw string
}

func (e *ElasticSearchError) Error() string {
	return fmt.Sprintf("elasticsearch returned status %d: %s", e.StatusCode, e.Raw)
}

func NewElasticSearchError(response *http.Response) *ElasticSearchError {
	defer response.Body.Close()
	err := &ElasticSearchError{
		StatusCode: response.StatusCode,
	}
	raw, _ := io.ReadAll(io.LimitReader(response.Body, 64*1024))
	err.Raw = strings.TrimSpace(string(raw))
	return err
}
