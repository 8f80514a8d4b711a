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
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var relativePattern = regexp.MustCompile(`^(\d+)([smhdw])$`)

// Layouts with an offset, tried in order.
var offsetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
}

// Layouts without an offset, the default location is applied.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02T15",
	"2006-01-02",
	"2006-01",
	"2006",
}

// ParseDuration parses a relative duration such as "30s", "5m", "1h",
// "7d" or "2w".
func ParseDuration(value string) (time.Duration, error) {
	m := relativePattern.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return 0, fmt.Errorf("invalid duration: %q", value)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %q", value)
	}
	unit := time.Second
	switch m[2] {
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	case "w":
		unit = 7 * 24 * time.Hour
	}
	return time.Duration(n) * unit, nil
}

// ParseTimestamp parses an absolute or relative timestamp. Relative
// durations are subtracted from now. Timestamps without an offset are
// interpreted in location.
func ParseTimestamp(value string, location *time.Location, now time.Time) (time.Time, error) {
	if location == nil {
		location = time.UTC
	}

	if d, err := ParseDuration(value); err == nil {
		return now.Add(-d).UTC(), nil
	}

	for _, layout := range offsetLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}

	for _, layout := range localLayouts {
		if ts, err := time.ParseInLocation(layout, value, location); err == nil {
			return ts.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid timestamp: %q", value)
}

// ParseOffset converts a time zone offset such as "-0600", "+05:30" or
// "-6" to a fixed location. An empty offset is UTC.
func ParseOffset(offset string) (*time.Location, error) {
	offset = strings.TrimSpace(offset)
	if offset == "" || offset == "Z" || offset == "UTC" {
		return time.UTC, nil
	}

	sign := 1
	switch offset[0] {
	case '+', ' ':
		offset = offset[1:]
	case '-':
		sign = -1
		offset = offset[1:]
	}

	offset = strings.Replace(offset, ":", "", 1)

	var hours, minutes int
	var err error
	switch len(offset) {
	case 1, 2:
		hours, err = strconv.Atoi(offset)
	case 4:
		hours, err = strconv.Atoi(offset[0:2])
		if err == nil {
			minutes, err = strconv.Atoi(offset[2:])
		}
	default:
		return nil, fmt.Errorf("invalid time zone offset: %q", offset)
	}
	if err != nil || hours > 14 || minutes > 59 {
		return nil, fmt.Errorf("invalid time zone offset: %q", offset)
	}

	seconds := sign * (hours*3600 + minutes*60)
	return time.FixedZone("", seconds), nil
}
