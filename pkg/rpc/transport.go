// Copyright 2023 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/twitchtv/twirp"

	"github.com/substream/substream-control/pkg/auth"
	"github.com/substream/substream-control/pkg/config"
	"github.com/substream/substream-control/pkg/logger"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
	contentType         = "application/json"

	maxResponseBytes = 4 << 20
)

// Observer is notified once per call. statusCode is 0 when no response was
// received.
type Observer interface {
	OnCall(procedure string, statusCode int, code twirp.ErrorCode, duration time.Duration)
}

type Option func(*Transport)

func WithNamespace(ns string) Option {
	return func(t *Transport) {
		t.namespace = strings.Trim(ns, "/")
	}
}

func WithTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.timeout = d
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) {
		t.client = c
	}
}

func WithObserver(o Observer) Option {
	return func(t *Transport) {
		t.observer = o
	}
}

func WithLogger(l logger.Logger) Option {
	return func(t *Transport) {
		t.logger = l
	}
}

// Transport performs authenticated Twirp JSON calls. It has no knowledge of
// individual procedures.
type Transport struct {
	baseURL   string
	namespace string
	timeout   time.Duration
	client    *http.Client
	observer  Observer
	logger    logger.Logger
}

func NewTransport(baseURL string, opts ...Option) (*Transport, error) {
	u, err := config.NormalizeURL(baseURL)
	if err != nil {
		return nil, err
	}
	t := &Transport{
		baseURL:   u,
		namespace: config.DefaultServiceNamespace,
		timeout:   config.DefaultRPCTimeout,
		client:    http.DefaultClient,
		logger:    logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.WithName("rpc")
	return t, nil
}

func (t *Transport) BaseURL() string {
	return t.baseURL
}

// URL returns the endpoint for a "Service/Method" procedure.
func (t *Transport) URL(procedure string) string {
	return t.baseURL + "/" + t.namespace + "." + procedure
}

// Call POSTs req as JSON to procedure and decodes a 2xx body into resp.
// resp may be nil when the result is not needed.
func (t *Transport) Call(ctx context.Context, procedure string, cred *auth.Credential, req, resp any) error {
	if cred == nil {
		return ErrMissingCredential
	}
	if parts := strings.Split(procedure, "/"); len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ErrInvalidProcedure
	}

	body := []byte("{}")
	if req != nil {
		var err error
		if body, err = json.Marshal(req); err != nil {
			return fmt.Errorf("encode %s request: %w", procedure, err)
		}
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL(procedure), bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set(authorizationHeader, bearerPrefix+cred.Token())
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", contentType)

	start := time.Now()
	statusCode, respBody, err := t.do(httpReq)
	if err != nil {
		rpcErr := transportError(ctx, err)
		t.finish(procedure, rpcErr.StatusCode, rpcErr.Code, start, rpcErr)
		return rpcErr
	}

	if statusCode < 200 || statusCode > 299 {
		rpcErr := responseError(statusCode, respBody)
		t.finish(procedure, statusCode, rpcErr.Code, start, rpcErr)
		return rpcErr
	}

	t.finish(procedure, statusCode, "", start, nil)
	if resp == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err = json.Unmarshal(respBody, resp); err != nil {
		return fmt.Errorf("decode %s response: %w", procedure, err)
	}
	return nil
}

func (t *Transport) do(req *http.Request) (int, []byte, error) {
	res, err := t.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		_ = res.Body.Close()
	}()

	b, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, err
	}
	return res.StatusCode, b, nil
}

func (t *Transport) finish(procedure string, statusCode int, code twirp.ErrorCode, start time.Time, err error) {
	duration := time.Since(start)
	if t.observer != nil {
		t.observer.OnCall(procedure, statusCode, code, duration)
	}
	if err != nil {
		t.logger.Debugw("call failed", "procedure", procedure, "status", statusCode, "code", code, "duration", duration, "error", err)
		return
	}
	t.logger.Debugw("call", "procedure", procedure, "status", statusCode, "duration", duration)
}

func transportError(ctx context.Context, err error) *Error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &Error{Code: twirp.DeadlineExceeded, Msg: MsgTimeout, cause: ctx.Err()}
	case errors.Is(ctx.Err(), context.Canceled):
		return &Error{Code: twirp.Canceled, Msg: MsgCanceled, cause: ctx.Err()}
	case isTimeout(err):
		// http.Client.Timeout or a dialer deadline
		return &Error{Code: twirp.DeadlineExceeded, Msg: MsgTimeout, cause: err}
	default:
		return &Error{Code: twirp.Unavailable, Msg: err.Error(), cause: err}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func responseError(statusCode int, body []byte) *Error {
	rpcErr := &Error{StatusCode: statusCode}
	var te twirpError
	if json.Unmarshal(body, &te) == nil {
		rpcErr.Code = te.Code
		rpcErr.Msg = te.Msg
		rpcErr.Meta = te.Meta
	}
	if rpcErr.Code == "" {
		rpcErr.Code = codeFromStatus(statusCode)
	}
	if rpcErr.Msg == "" {
		rpcErr.Msg = http.StatusText(statusCode)
	}
	return rpcErr
}
