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
	_ "embed"
	"fmt"
	"net/http"

	"github.com/jasonish/evecore/log"
	"github.com/jasonish/evecore/util"
	"github.com/pkg/errors"
)

//go:embed template.json
var templateJson []byte

// TemplateExists checks if an index template exists on the server.
func (es *ElasticSearch) TemplateExists(ctx context.Context, name string) (bool, error) {
	response, err := es.HttpClient.Head(ctx, fmt.Sprintf("_index_template/%s", name))
	if err != nil {
		return false, err
	}
	es.HttpClient.DiscardResponse(response)
	return response.StatusCode == http.StatusOK, nil
}

// Template returns the index template for the event indices.
func (es *ElasticSearch) Template() (util.JsonMap, error) {
	var template util.JsonMap
	if err := util.DecodeJson(templateJson, &template); err != nil {
		return nil, errors.Wrap(err, "failed to decode template")
	}
	template["index_patterns"] = []string{es.EventSearchIndex()}
	return template, nil
}

// LoadTemplate installs the index template for the event indices if one
// doesn't already exist.
func (es *ElasticSearch) LoadTemplate(ctx context.Context) error {
	exists, err := es.TemplateExists(ctx, es.EventBaseIndex)
	if err != nil {
		return err
	}
	if exists {
		log.Debug("Template %s already exists", es.EventBaseIndex)
		return nil
	}

	template, err := es.Template()
	if err != nil {
		return err
	}

	log.Info("Loading template for index %s", es.EventSearchIndex())
	return es.do(ctx, http.MethodPut,
		fmt.Sprintf("_index_template/%s", es.EventBaseIndex), template, nil)
}
