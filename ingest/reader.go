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

package ingest

import (
	"bufio"
	"bytes"
	"io"

	"github.com/jasonish/evecore/core"
	"github.com/jasonish/evecore/eve"
	"github.com/jasonish/evecore/log"
	"github.com/jasonish/evecore/metrics"
)

// Reader reads newline delimited EVE records. Lines that fail to parse
// are logged and skipped.
type Reader struct {
	reader  *bufio.Reader
	line    uint64
	invalid uint64
}

func NewReader(r io.Reader) *Reader {
	return &Reader{
		reader: bufio.NewReader(r),
	}
}

// Next returns the next event, or io.EOF when the input is exhausted. A
// final line without a trailing newline is still returned.
func (r *Reader) Next() (eve.EveEvent, error) {
	for {
		line, err := r.reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		eof := err == io.EOF

		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			r.line++
			event, perr := eve.NewEveEventFromBytes(line)
			if perr == nil {
				return event, nil
			}
			r.invalid++
			metrics.EventsInvalid.Inc()
			log.Warning("Skipping event: %v", &core.ParseError{Line: int(r.line), Err: perr})
		}

		if eof {
			return nil, io.EOF
		}
	}
}

// Invalid returns the number of lines skipped as they failed to parse.
func (r *Reader) Invalid() uint64 {
	return r.invalid
}
