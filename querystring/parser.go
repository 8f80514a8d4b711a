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
	"strings"
	"time"
	"unicode/utf8"
)

// ParseError is returned for a query string that can not be parsed. Pos
// is the byte offset into Input where the problem was found.
type ParseError struct {
	Input string
	Pos   int
	Msg   string
}

func (e *ParseError) Error() string {
	near := e.Input
	if e.Pos >= 0 && e.Pos <= len(e.Input) {
		near = e.Input[e.Pos:]
	}
	return fmt.Sprintf("query string error at position %d: %s: %q",
		e.Pos, e.Msg, near)
}

// Aliases for commonly used keys.
var keyAliases = map[string]string{
	"@sid": "alert.signature_id",
	"@sig": "alert.signature",
}

var timestampKeys = map[string]ElementType{
	"@from":     From,
	"@earliest": EarliestTimestamp,
	"@to":       To,
	"@latest":   LatestTimestamp,
	"@after":    After,
	"@before":   Before,
}

type Options struct {
	// Location to use for timestamps without an offset. Defaults to UTC.
	Location *time.Location

	// Now is used to resolve relative times like "5m". Defaults to
	// time.Now.
	Now func() time.Time
}

type Parser struct {
	input   string
	pos     int
	options Options
}

// Parse parses a query string using the default options.
func Parse(input string) ([]Element, error) {
	return ParseWithOptions(input, Options{})
}

// ParseWithOffset parses a query string applying the time zone offset
// (eg. "-0600", "+05:30") to timestamps that don't carry an offset.
func ParseWithOffset(input string, offset string) ([]Element, error) {
	location, err := ParseOffset(offset)
	if err != nil {
		return nil, &ParseError{Input: offset, Pos: 0, Msg: err.Error()}
	}
	return ParseWithOptions(input, Options{Location: location})
}

func ParseWithOptions(input string, options Options) ([]Element, error) {
	if options.Location == nil {
		options.Location = time.UTC
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	p := &Parser{
		input:   input,
		options: options,
	}
	return p.parse()
}

func (p *Parser) parse() ([]Element, error) {
	elements := []Element{}
	for {
		p.skipWhitespace()
		if p.eof() {
			break
		}
		element, err := p.parseToken()
		if err != nil {
			return nil, err
		}
		elements = append(elements, element)
	}
	return elements, nil
}

func (p *Parser) parseToken() (Element, error) {
	start := p.pos
	negated := false

	if p.peek() == '-' {
		next := p.pos + 1
		if next < len(p.input) && !isWhitespace(rune(p.input[next])) {
			negated = true
			p.pos++
		}
	}

	first, err := p.parseWord(false)
	if err != nil {
		return Element{}, err
	}

	if p.eof() || p.peek() != ':' {
		element := NewString(first)
		element.Negated = negated
		return element, nil
	}

	// Consume the ":".
	p.pos++
	valuePos := p.pos
	if p.eof() || isWhitespace(p.peek()) {
		return Element{}, p.errorAt(valuePos, "missing value for key")
	}
	value, err := p.parseWord(true)
	if err != nil {
		return Element{}, err
	}

	element, err := p.keyValueElement(first, value, start, valuePos)
	if err != nil {
		return Element{}, err
	}
	element.Negated = negated
	return element, nil
}

func (p *Parser) keyValueElement(key string, value string, keyPos int, valuePos int) (Element, error) {
	if !strings.HasPrefix(key, "@") {
		return NewKeyValue(key, value), nil
	}
	if alias, ok := keyAliases[key]; ok {
		return NewKeyValue(alias, value), nil
	}
	if key == "@ip" {
		return NewIp(value), nil
	}
	if elementType, ok := timestampKeys[key]; ok {
		ts, err := ParseTimestamp(value, p.options.Location, p.options.Now())
		if err != nil {
			return Element{}, p.errorAt(valuePos,
				fmt.Sprintf("bad timestamp %q", value))
		}
		return NewTimestamp(elementType, ts), nil
	}
	return Element{}, p.errorAt(keyPos, fmt.Sprintf("unknown key %s", key))
}

// parseWord parses a quoted string or a bare word. When inValue is true
// a bare word may contain un-escaped colons, as timestamps and IPv6
// addresses do.
func (p *Parser) parseWord(inValue bool) (string, error) {
	if p.peek() == '"' {
		return p.parseQuoted()
	}

	var sb strings.Builder
	for !p.eof() {
		r, size := utf8.DecodeRuneInString(p.input[p.pos:])
		if isWhitespace(r) {
			break
		}
		if r == ':' && !inValue {
			break
		}
		if r == '\\' {
			escaped, err := p.parseEscape()
			if err != nil {
				return "", err
			}
			sb.WriteRune(escaped)
			continue
		}
		sb.WriteRune(r)
		p.pos += size
	}
	return sb.String(), nil
}

func (p *Parser) parseQuoted() (string, error) {
	start := p.pos

	// Consume the opening quote.
	p.pos++

	var sb strings.Builder
	for {
		if p.eof() {
			return "", p.errorAt(start, "missing closing quote")
		}
		r, size := utf8.DecodeRuneInString(p.input[p.pos:])
		switch r {
		case '"':
			p.pos += size
			return sb.String(), nil
		case '\\':
			escaped, err := p.parseEscape()
			if err != nil {
				return "", err
			}
			sb.WriteRune(escaped)
		default:
			sb.WriteRune(r)
			p.pos += size
		}
	}
}

func (p *Parser) parseEscape() (rune, error) {
	start := p.pos
	// Consume the backslash.
	p.pos++
	if p.eof() {
		return 0, p.errorAt(start, "incomplete escape sequence")
	}
	r, size := utf8.DecodeRuneInString(p.input[p.pos:])
	switch r {
	case '"', '\\', ':':
		p.pos += size
		return r, nil
	}
	return 0, p.errorAt(start, fmt.Sprintf("unknown escape sequence \\%c", r))
}

func (p *Parser) skipWhitespace() {
	for !p.eof() && isWhitespace(p.peek()) {
		p.pos++
	}
}

func (p *Parser) eof() bool {
	return p.pos >= len(p.input)
}

func (p *Parser) peek() rune {
	if p.eof() {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(p.input[p.pos:])
	return r
}

func (p *Parser) errorAt(pos int, msg string) *ParseError {
	return &ParseError{Input: p.input, Pos: pos, Msg: msg}
}

func isWhitespace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
