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
	"bytes"
	"context"
	"time"

	"github.com/jasonish/evecore/log"
	"github.com/jasonish/evecore/util"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const DefaultNatsSubject = "evebox.eve"

// NatsInput subscribes to a NATS subject where each message holds one or
// more newline delimited EVE records. If a message has a reply subject
// the number of committed events is sent back as {"Count": N}.
type NatsInput struct {
	url      string
	subject  string
	pipeline *Pipeline
	logger   *zap.Logger
}

func NewNatsInput(url string, subject string, pipeline *Pipeline) *NatsInput {
	if subject == "" {
		subject = DefaultNatsSubject
	}
	return &NatsInput{
		url:      url,
		subject:  subject,
		pipeline: pipeline,
		logger:   log.Logger().With(zap.String("input", "nats"), zap.String("subject", subject)),
	}
}

type natsReply struct {
	Count uint64
	Error string `json:",omitempty"`
}

// Handle submits the records in one message.
func (n *NatsInput) Handle(data []byte) ([]byte, error) {
	count, err := n.pipeline.SubmitReader(bytes.NewReader(data))
	reply := natsReply{Count: count}
	if err != nil {
		reply.Error = err.Error()
	}
	return []byte(util.ToJson(reply)), err
}

// Run consumes messages until the context is cancelled. Messages are
// handled one at a time so a slow datastore slows the subscription.
func (n *NatsInput) Run(ctx context.Context) error {
	conn, err := nats.Connect(n.url,
		nats.Name("evebox"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			n.logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			n.logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to connect to NATS at %s", n.url)
	}
	defer conn.Close()

	messages := make(chan *nats.Msg, 64)
	subscription, err := conn.ChanSubscribe(n.subject, messages)
	if err != nil {
		return errors.Wrapf(err, "failed to subscribe to %s", n.subject)
	}
	defer subscription.Unsubscribe()

	n.logger.Info("Subscribed to NATS", zap.String("url", n.url))

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-messages:
			reply, err := n.Handle(msg.Data)
			if err != nil {
				n.logger.Error("Failed to submit events", zap.Error(err))
			}
			if msg.Reply != "" {
				if err := msg.Respond(reply); err != nil {
					n.logger.Warn("Failed to respond", zap.Error(err))
				}
			}
		}
	}
}
