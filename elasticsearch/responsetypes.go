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
	"encoding/json"
	"strconv"
	"strings"

	"github.com/jasonish/evecore/util"
)

// PingResponse represents the response to an Elasticsearch ping (GET /).
type PingResponse struct {
	Name        string `json:"name"`
	ClusterName string `json:"cluster_name"`
	Version     struct {
		Number string `json:"number"`
	} `json:"version"`
	Tagline string `json:"tagline"`
}

// MajorVersion returns the major version of Elasticsearch as found
// in the PingResponse.
func (p PingResponse) MajorVersion() int64 {
	parts := strings.Split(p.Version.Number, ".")
	major, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return -1
	}
	return major
}

// BulkCreateHeader represents the JSON used to prefix a document to be indexed
// in the bulk request.
type BulkCreateHeader struct {
	Create struct {
		Index string `json:"_index"`
		Id    string `json:"_id"`
	} `json:"create"`
}

// Struct representing a response to a _bulk request.
type BulkResponse struct {
	Took   uint64                   `json:"took"`
	Errors bool                     `json:"errors"`
	Items  []map[string]util.JsonMap `json:"items"`
}

// Hits.Total is an object since Elasticsearch 7.
type HitsTotal struct {
	Value    uint64 `json:"value"`
	Relation string `json:"relation"`
}

type Hits struct {
	Total HitsTotal      `json:"total"`
	Hits  []util.JsonMap `json:"hits"`
}

type SearchResponse struct {
	Took         uint64       `json:"took"`
	TimedOut     bool         `json:"timed_out"`
	Hits         Hits         `json:"hits"`
	Aggregations util.JsonMap `json:"aggregations"`
}

type UpdateByQueryResponse struct {
	Took     uint64            `json:"took"`
	TimedOut bool              `json:"timed_out"`
	Total    uint64            `json:"total"`
	Updated  uint64            `json:"updated"`
	Noops    uint64            `json:"noops"`
	Failures []json.RawMessage `json:"failures"`
}

// FieldCapsResponse maps field names to the types they are mapped as.
type FieldCapsResponse struct {
	Fields map[string]map[string]util.JsonMap `json:"fields"`
}

// CatIndex is one entry of a _cat/indices?format=json response.
type CatIndex struct {
	Index string `json:"index"`
}
