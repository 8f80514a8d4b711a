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

package querystring

import (
	"strings"
	"time"
)

var timestampKeyNames = map[ElementType]string{
	From:              "@from",
	EarliestTimestamp: "@earliest",
	To:                "@to",
	LatestTimestamp:   "@latest",
	After:             "@after",
	Before:            "@before",
}

// Format renders elements back into query string form. Parsing the
// result yields the same elements.
func Format(elements []Element) string {
	parts := make([]string, 0, len(elements))
	for _, e := range elements {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, " ")
}

func (e Element) String() string {
	var sb strings.Builder
	if e.Negated {
		sb.WriteString("-")
	}
	switch e.Type {
	case String:
		sb.WriteString(quote(e.Value, true))
	case KeyValue:
		sb.WriteString(quote(e.Key, true))
		sb.WriteString(":")
		sb.WriteString(quote(e.Value, false))
	case Ip:
		sb.WriteString("@ip:")
		sb.WriteString(quote(e.Value, false))
	default:
		sb.WriteString(timestampKeyNames[e.Type])
		sb.WriteString(":")
		sb.WriteString(e.Time.UTC().Format(time.RFC3339Nano))
	}
	return sb.String()
}

// quote returns value in a form the parser reads back unchanged. Colons
// are escaped in keys and plain strings, in values they are literal.
func quote(value string, escapeColon bool) string {
	if value == "" || strings.ContainsAny(value, " \t\r\n\"") ||
		strings.HasPrefix(value, "-") {
		escaped := strings.Replace(value, `\`, `\\`, -1)
		escaped = strings.Replace(escaped, `"`, `\"`, -1)
		return `"` + escaped + `"`
	}
	escaped := strings.Replace(value, `\`, `\\`, -1)
	if escapeColon {
		escaped = strings.Replace(escaped, ":", `\:`, -1)
	}
	return escaped
}
