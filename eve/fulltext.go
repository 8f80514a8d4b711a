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

package eve

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Fields never indexed for full text search, these hold base64 or
// binary data.
var fullTextSkipFields = map[string]bool{
	"packet":                  true,
	"payload":                 true,
	"rule":                    true,
	"http.http_response_body": true,
}

// Fields that contain mostly unprintable data where only the word-like
// runs are indexed.
var fullTextPrintableFields = map[string]bool{
	"payload_printable":                 true,
	"http.http_response_body_printable": true,
}

var printableWordPattern = regexp.MustCompile(`[A-Za-z0-9]{2,}`)

// FullText flattens an event into a whitespace separated string of its
// leaf values for the full text index.
func FullText(event EveEvent) string {
	tokens := []string{}
	walkFullText("", map[string]interface{}(event), &tokens)
	return strings.Join(tokens, " ")
}

func walkFullText(path string, value interface{}, tokens *[]string) {
	switch v := value.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for key := range v {
			if strings.HasPrefix(key, "__") {
				continue
			}
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			child := key
			if path != "" {
				child = path + "." + key
			}
			if fullTextSkipFields[child] || fullTextSkipFields[key] {
				continue
			}
			walkFullText(child, v[key], tokens)
		}
	case EveEvent:
		walkFullText(path, map[string]interface{}(v), tokens)
	case []interface{}:
		for _, item := range v {
			walkFullText(path, item, tokens)
		}
	case string:
		if v == "" {
			return
		}
		if fullTextPrintableFields[path] {
			*tokens = append(*tokens, printableWordPattern.FindAllString(v, -1)...)
			return
		}
		*tokens = append(*tokens, v)
	case json.Number:
		*tokens = append(*tokens, v.String())
	case float64:
		*tokens = append(*tokens, strconv.FormatFloat(v, 'f', -1, 64))
	case int64:
		*tokens = append(*tokens, strconv.FormatInt(v, 10))
	case int:
		*tokens = append(*tokens, strconv.Itoa(v))
	}
}
