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
	"time"
)

// The Eve timestamp format - a slightly modified RFC3339Nano format.
const EveTimestampFormat = "2006-01-02T15:04:05.999999999Z0700"

// Tags managed by EveBox itself.
const (
	TagArchived             = "evebox.archived"
	TagEscalated            = "evebox.escalated"
	TagAutoArchived         = "evebox.auto-archived"
	TagAutoArchivedByServer = "evebox.auto-archived-by-server"
)

// AutoArchiveTags are added to an event matching an auto-archive rule.
var AutoArchiveTags = []string{
	TagArchived,
	TagAutoArchived,
	TagAutoArchivedByServer,
}

func ParseTimestamp(timestamp string) (time.Time, error) {
	ts, err := time.Parse(EveTimestampFormat, timestamp)
	if err == nil {
		return ts, nil
	}
	// Also accept the standard form with a colon in the offset.
	if ts, err2 := time.Parse(time.RFC3339Nano, timestamp); err2 == nil {
		return ts, nil
	}
	return ts, err
}

func FormatTimestamp(timestamp time.Time) string {
	return timestamp.Format("2006-01-02T15:04:05.000000-0700")
}

func FormatTimestampUTC(timestamp time.Time) string {
	return timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
}
