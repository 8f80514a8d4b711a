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

package geoip

import (
	"net"

	"github.com/jasonish/evecore/eve"
	"github.com/jasonish/evecore/log"
)

var privateNetworks []*net.IPNet

func init() {
	for _, network := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"fc00::/7",
		"fe80::/10",
		"::1/128",
	} {
		_, ipnet, err := net.ParseCIDR(network)
		if err == nil {
			privateNetworks = append(privateNetworks, ipnet)
		}
	}
}

func IsPrivate(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, ipnet := range privateNetworks {
		if ipnet.Contains(ip) {
			return true
		}
	}
	return false
}

// Filter adds a geoip object to events for the first public address of
// the source and destination. Events that already have geoip data are
// left alone.
type Filter struct {
	db Lookup
}

func NewFilter(db Lookup) *Filter {
	return &Filter{
		db: db,
	}
}

func (f *Filter) lookup(addr string) *GeoIp {
	if addr == "" || IsPrivate(addr) {
		return nil
	}
	gip, err := f.db.LookupString(addr)
	if err != nil {
		log.Debug("Failed to lookup geoip for %s: %v", addr, err)
		return nil
	}
	return gip
}

func (f *Filter) Filter(event eve.EveEvent) {
	if f.db == nil || event["geoip"] != nil {
		return
	}
	for _, addr := range []string{event.SrcIp(), event.DestIp()} {
		if gip := f.lookup(addr); gip != nil {
			event["geoip"] = gip
			return
		}
	}
}
