// Package natsrpc serves predictions as NATS request/reply.
package natsrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"churnguard/api"
)

// Reply is the payload sent back on the message's reply subject. Status uses
// HTTP codes so both transports report failures the same way.
type Reply struct {
	Status int `json:"status"`
	*api.PredictResponse
	*api.ErrorBody
}

// Responder answers prediction requests from a queue subscription.
type Responder struct {
	service *api.Service
	subject string
	queue   string
	timeout time.Duration
	logger  *zap.Logger
	sub     *nats.Subscription
}

func NewResponder(service *api.Service, subject, queue string, timeout time.Duration, logger *zap.Logger) *Responder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Responder{
		service: service,
		subject: subject,
		queue:   queue,
		timeout: timeout,
		logger:  logger,
	}
}

// Start joins the queue group on conn. Messages without a reply subject are
// scored but their result is dropped.
func (r *Responder) Start(ctx context.Context, conn *nats.Conn) error {
	sub, err := conn.QueueSubscribe(r.subject, r.queue, func(msg *nats.Msg) {
		reply := r.Handle(ctx, msg.Data)
		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(reply); err != nil {
			r.logger.Error("failed to respond to prediction request", zap.String("subject", msg.Subject), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.subject, err)
	}
	r.sub = sub
	r.logger.Info("nats responder started", zap.String("subject", r.subject), zap.String("queue", r.queue))
	return nil
}

// Stop drains the subscription.
func (r *Responder) Stop() error {
	if r.sub == nil {
		return nil
	}
	return r.sub.Drain()
}

// Handle scores one request payload and returns the encoded reply.
func (r *Responder) Handle(ctx context.Context, data []byte) []byte {
	requestID := api.NewRequestID()
	ctx = api.WithRequestID(ctx, requestID)
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req, err := api.DecodePredictRequest(bytes.NewReader(data))
	if err == nil {
		var resp *api.PredictResponse
		resp, err = r.service.Predict(ctx, req)
		if err == nil {
			return r.encode(Reply{Status: http.StatusOK, PredictResponse: resp})
		}
	}

	status, body := api.StatusFor(err)
	if status >= http.StatusInternalServerError {
		r.logger.Error("nats prediction failed", zap.String("request_id", requestID), zap.Error(err))
	}
	return r.encode(Reply{Status: status, ErrorBody: &body})
}

func (r *Responder) encode(reply Reply) []byte {
	data, err := json.Marshal(reply)
	if err != nil {
		r.logger.Error("encode nats reply", zap.Error(err))
		return []byte(`{"status":500,"error":"internal server error","kind":"internal_error"}`)
	}
	return data
}

// Connect dials url with reconnect logging.
func Connect(url string, logger *zap.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("churnguard"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}
