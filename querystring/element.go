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
	"time"
)

type ElementType int

const (
	String ElementType = iota
	KeyValue
	From
	To
	After
	Before
	Ip
	EarliestTimestamp
	LatestTimestamp
)

func (t ElementType) String() string {
	switch t {
	case String:
		return "string"
	case KeyValue:
		return "keyvalue"
	case From:
		return "from"
	case To:
		return "to"
	case After:
		return "after"
	case Before:
		return "before"
	case Ip:
		return "ip"
	case EarliestTimestamp:
		return "earliest"
	case LatestTimestamp:
		return "latest"
	}
	return "unknown"
}

// Element is one parsed item of a query string.
//
// Key is only set for KeyValue elements. Value holds the text of String,
// KeyValue and Ip elements. Time holds the timestamp of the timestamp
// elements (From, To, After, Before, EarliestTimestamp, LatestTimestamp)
// and is always in UTC.
type Element struct {
	Negated bool
	Type    ElementType
	Key     string
	Value   string
	Time    time.Time
}

func NewString(value string) Element {
	return Element{Type: String, Value: value}
}

func NewKeyValue(key string, value string) Element {
	return Element{Type: KeyValue, Key: key, Value: value}
}

func NewIp(ip string) Element {
	return Element{Type: Ip, Value: ip}
}

func NewTimestamp(t ElementType, ts time.Time) Element {
	return Element{Type: t, Time: ts.UTC()}
}

func NewFrom(ts time.Time) Element {
	return NewTimestamp(From, ts)
}

func NewTo(ts time.Time) Element {
	return NewTimestamp(To, ts)
}

func NewAfter(ts time.Time) Element {
	return NewTimestamp(After, ts)
}

func NewBefore(ts time.Time) Element {
	return NewTimestamp(Before, ts)
}

// Negate returns a copy of the element with the negated flag set.
func (e Element) Negate() Element {
	e.Negated = true
	return e
}

func (e Element) IsTimestamp() bool {
	switch e.Type {
	case From, To, After, Before, EarliestTimestamp, LatestTimestamp:
		return true
	}
	return false
}

// IsLowerBound returns true for elements that bound the earliest time
// of the results.
func (e Element) IsLowerBound() bool {
	switch e.Type {
	case From, After, EarliestTimestamp:
		return !e.Negated
	}
	return false
}

// IsUpperBound returns true for elements that bound the latest time of
// the results.
func (e Element) IsUpperBound() bool {
	switch e.Type {
	case To, Before, LatestTimestamp:
		return !e.Negated
	}
	return false
}

// HasLowerBound returns true if any of the elements put a lower bound on
// the event timestamp.
func HasLowerBound(elements []Element) bool {
	for _, e := range elements {
		if e.IsLowerBound() {
			return true
		}
	}
	return false
}

// LowerBound returns the latest of the lower bounds in elements, and
// false if there is none.
func LowerBound(elements []Element) (time.Time, bool) {
	var bound time.Time
	found := false
	for _, e := range elements {
		if e.IsLowerBound() && (!found || e.Time.After(bound)) {
			bound = e.Time
			found = true
		}
	}
	return bound, found
}

// UpperBound returns the earliest of the upper bounds in elements, and
// false if there is none.
func UpperBound(elements []Element) (time.Time, bool) {
	var bound time.Time
	found := false
	for _, e := range elements {
		if e.IsUpperBound() && (!found || e.Time.Before(bound)) {
			bound = e.Time
			found = true
		}
	}
	return bound, found
}
