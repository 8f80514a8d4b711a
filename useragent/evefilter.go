/* Copyright (c) 2017 Jason Ish
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

// Package useragent parses HTTP user agent strings into their browser,
// OS and device components.
package useragent

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jasonish/evecore/eve"
	"github.com/ua-parser/uap-go/uaparser"
)

const cacheSize = 4096

var (
	parserOnce sync.Once
	parser     *uaparser.Parser
)

func getParser() *uaparser.Parser {
	parserOnce.Do(func() {
		parser = uaparser.NewFromSaved()
	})
	return parser
}

// EveUserAgentFilter adds http.user_agent to HTTP events. Parsed user
// agents are cached as the same few agents make up most traffic.
type EveUserAgentFilter struct {
	cache *lru.Cache[string, map[string]string]
}

func NewEveUserAgentFilter() *EveUserAgentFilter {
	cache, _ := lru.New[string, map[string]string](cacheSize)
	return &EveUserAgentFilter{
		cache: cache,
	}
}

func setValue(ua map[string]string, name string, value string) {
	switch value {
	case "", "Other":
		return
	default:
		ua[name] = value
	}
}

// Parse returns the user agent fields, omitting those that are unknown.
func Parse(userAgent string) map[string]string {
	parsed := getParser().Parse(userAgent)

	ua := map[string]string{}

	setValue(ua, "name", parsed.UserAgent.Family)
	setValue(ua, "major", parsed.UserAgent.Major)
	setValue(ua, "minor", parsed.UserAgent.Minor)
	setValue(ua, "patch", parsed.UserAgent.Patch)

	setValue(ua, "os", parsed.Os.ToString())
	setValue(ua, "os_name", parsed.Os.Family)
	setValue(ua, "os_major", parsed.Os.Major)
	setValue(ua, "os_minor", parsed.Os.Minor)

	setValue(ua, "device", parsed.Device.ToString())

	return ua
}

func (f *EveUserAgentFilter) Filter(event eve.EveEvent) {
	if event.EventType() != "http" {
		return
	}

	http := event.GetMap("http")
	userAgent := http.GetString("http_user_agent")
	if userAgent == "" {
		return
	}

	ua, ok := f.cache.Get(userAgent)
	if !ok {
		ua = Parse(userAgent)
		f.cache.Add(userAgent, ua)
	}

	if len(ua) > 0 {
		http["user_agent"] = ua
	}
}
