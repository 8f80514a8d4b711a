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
	"github.com/jasonish/evecore/util"
)

// DnsRrnamesForRdata returns the rrnames of the answers in a DNS event
// whose rdata is the given address. Both the "answers" array style of
// EVE version 2 and later, and the one answer per record style of
// version 1 are handled.
func DnsRrnamesForRdata(event EveEvent, rdata string) []string {
	dns := event.GetMap("dns")
	if dns == nil {
		return nil
	}

	rrnames := []string{}

	answers := dns.GetMapList("answers")
	for _, answer := range answers {
		if answer.GetString("rdata") != rdata {
			continue
		}
		rrname := answer.GetString("rrname")
		if rrname == "" {
			rrname = queryRrname(dns)
		}
		if rrname != "" {
			rrnames = append(rrnames, rrname)
		}
	}

	if len(answers) == 0 && dns.GetString("rdata") == rdata {
		if rrname := dns.GetString("rrname"); rrname != "" {
			rrnames = append(rrnames, rrname)
		}
	}

	return rrnames
}

func queryRrname(dns util.JsonMap) string {
	if rrname := dns.GetString("rrname"); rrname != "" {
		return rrname
	}
	for _, query := range dns.GetMapList("queries") {
		if rrname := query.GetString("rrname"); rrname != "" {
			return rrname
		}
	}
	return ""
}

// IsDnsResponse returns true if the event is a DNS answer record.
func IsDnsResponse(event EveEvent) bool {
	dnsType := event.GetMap("dns").GetString("type")
	return dnsType == "answer" || dnsType == "response"
}
