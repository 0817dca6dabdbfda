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

package devserver

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/twitchtv/twirp"
	"github.com/twitchtv/twirp/ctxsetters"

	"github.com/substream/substream-control/pkg/logger"
	"github.com/substream/substream-control/pkg/telemetry/prometheus"
)

const maxRequestBody = 1 << 20

type procedureFunc func(ctx context.Context, body []byte) (any, error)

// jsonProcedure adapts a typed handler to the JSON wire format.
func jsonProcedure[Req, Resp any](fn func(context.Context, *Req) (*Resp, error)) procedureFunc {
	return func(ctx context.Context, body []byte) (any, error) {
		req := new(Req)
		if len(body) > 0 {
			if err := json.Unmarshal(body, req); err != nil {
				return nil, twirp.NewError(twirp.Malformed, "the json request could not be decoded").WithMeta("cause", err.Error())
			}
		}
		return fn(ctx, req)
	}
}

// twirpServer routes JSON Twirp requests under one package prefix, running
// server hooks the same way generated servers do.
type twirpServer struct {
	pkg        string
	prefix     string
	procedures map[string]procedureFunc
	hooks      *twirp.ServerHooks
}

// newTwirpServer serves /{namespace}.{Service}/{Method}, namespace being e.g.
// "twirp/livekit".
func newTwirpServer(namespace string, hooks ...*twirp.ServerHooks) *twirpServer {
	namespace = strings.Trim(namespace, "/")
	pkg := namespace
	if idx := strings.LastIndex(namespace, "/"); idx >= 0 {
		pkg = namespace[idx+1:]
	}
	chained := twirp.ChainHooks(hooks...)
	if chained == nil {
		chained = &twirp.ServerHooks{}
	}
	return &twirpServer{
		pkg:        pkg,
		prefix:     "/" + namespace + ".",
		procedures: make(map[string]procedureFunc),
		hooks:      chained,
	}
}

// PathPrefixes lists one mux subtree per registered service.
func (s *twirpServer) PathPrefixes() []string {
	var prefixes []string
	for procedure := range s.procedures {
		service, _, _ := strings.Cut(procedure, "/")
		prefix := s.prefix + service + "/"
		if !slices.Contains(prefixes, prefix) {
			prefixes = append(prefixes, prefix)
		}
	}
	slices.Sort(prefixes)
	return prefixes
}

func (s *twirpServer) register(procedure string, fn procedureFunc) {
	s.procedures[procedure] = fn
}

func (s *twirpServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx = ctxsetters.WithPackageName(ctx, s.pkg)
	ctx = ctxsetters.WithResponseWriter(ctx, w)

	procedure := strings.TrimPrefix(r.URL.Path, s.prefix)
	service, method, _ := strings.Cut(procedure, "/")
	ctx = ctxsetters.WithServiceName(ctx, service)

	var err error
	if ctx, err = s.requestReceived(ctx); err != nil {
		s.writeError(ctx, w, err)
		return
	}

	if r.Method != http.MethodPost {
		s.writeError(ctx, w, twirp.NewError(twirp.BadRoute, "unsupported method "+r.Method+" (only POST is allowed)"))
		return
	}
	fn, ok := s.procedures[procedure]
	if !ok {
		s.writeError(ctx, w, twirp.NewError(twirp.BadRoute, "no handler for path "+r.URL.Path))
		return
	}

	ctx = ctxsetters.WithMethodName(ctx, method)
	if ctx, err = s.requestRouted(ctx); err != nil {
		s.writeError(ctx, w, err)
		return
	}

	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType != "application/json" {
		s.writeError(ctx, w, twirp.NewError(twirp.BadRoute, "unexpected Content-Type: "+r.Header.Get("Content-Type")))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		s.writeError(ctx, w, twirp.NewError(twirp.Malformed, "failed to read request body"))
		return
	}

	resp, err := fn(ctx, body)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}

	respBytes, err := json.Marshal(resp)
	if err != nil {
		s.writeError(ctx, w, twirp.InternalErrorWith(err))
		return
	}

	ctx = ctxsetters.WithStatusCode(ctx, http.StatusOK)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(respBytes)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(respBytes)
	s.responseSent(ctx)
}

func (s *twirpServer) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	twerr, ok := err.(twirp.Error)
	if !ok {
		twerr = twirp.InternalErrorWith(err)
	}
	if s.hooks.Error != nil {
		ctx = s.hooks.Error(ctx, twerr)
	}
	ctx = ctxsetters.WithStatusCode(ctx, twirp.ServerHTTPStatusFromErrorCode(twerr.Code()))
	_ = twirp.WriteError(w, twerr)
	s.responseSent(ctx)
}

func (s *twirpServer) requestReceived(ctx context.Context) (context.Context, error) {
	if s.hooks.RequestReceived == nil {
		return ctx, nil
	}
	return s.hooks.RequestReceived(ctx)
}

func (s *twirpServer) requestRouted(ctx context.Context) (context.Context, error) {
	if s.hooks.RequestRouted == nil {
		return ctx, nil
	}
	return s.hooks.RequestRouted(ctx)
}

func (s *twirpServer) responseSent(ctx context.Context) {
	if s.hooks.ResponseSent != nil {
		s.hooks.ResponseSent(ctx)
	}
}

// --------------------------------------------------------------------------

type twirpRequestFields struct {
	service string
	method  string
	error   twirp.Error
}

type twirpLoggerKey struct{}

// logging handling inspired by https://github.com/bakins/twirpzap
// License: Apache-2.0
func TwirpLogger(l logger.Logger) *twirp.ServerHooks {
	loggerPool := &sync.Pool{
		New: func() interface{} {
			return &twirpLogger{
				fieldsOrig: make([]interface{}, 0, 30),
			}
		},
	}
	return &twirp.ServerHooks{
		RequestReceived: func(ctx context.Context) (context.Context, error) {
			return loggerRequestReceived(ctx, loggerPool)
		},
		RequestRouted: loggerRequestRouted,
		Error:         loggerErrorReceived,
		ResponseSent: func(ctx context.Context) {
			loggerResponseSent(ctx, l, loggerPool)
		},
	}
}

type twirpLogger struct {
	twirpRequestFields

	fieldsOrig []interface{}
	fields     []interface{}
	startedAt  time.Time
}

// AppendLogFields adds fields to the request's access log line.
func AppendLogFields(ctx context.Context, fields ...interface{}) {
	r, ok := ctx.Value(twirpLoggerKey{}).(*twirpLogger)
	if !ok || r == nil {
		return
	}

	r.fields = append(r.fields, fields...)
}

func loggerRequestReceived(ctx context.Context, twirpLoggerPool *sync.Pool) (context.Context, error) {
	r := twirpLoggerPool.Get().(*twirpLogger)
	r.startedAt = time.Now()
	r.fields = r.fieldsOrig
	r.error = nil
	r.method = ""

	if svc, ok := twirp.ServiceName(ctx); ok {
		r.service = svc
		r.fields = append(r.fields, "service", svc)
	}

	return context.WithValue(ctx, twirpLoggerKey{}, r), nil
}

func loggerRequestRouted(ctx context.Context) (context.Context, error) {
	if meth, ok := twirp.MethodName(ctx); ok {
		l, ok := ctx.Value(twirpLoggerKey{}).(*twirpLogger)
		if !ok || l == nil {
			return ctx, nil
		}
		l.method = meth
		l.fields = append(l.fields, "method", meth)
	}

	return ctx, nil
}

func loggerResponseSent(ctx context.Context, l logger.Logger, twirpLoggerPool *sync.Pool) {
	r, ok := ctx.Value(twirpLoggerKey{}).(*twirpLogger)
	if !ok || r == nil {
		return
	}

	r.fields = append(r.fields, "duration", time.Since(r.startedAt))

	if status, ok := twirp.StatusCode(ctx); ok {
		r.fields = append(r.fields, "status", status)
	}
	if r.error != nil {
		r.fields = append(r.fields, "error", r.error.Msg())
		r.fields = append(r.fields, "code", r.error.Code())
	}

	l.Infow("API "+r.service+"."+r.method, r.fields...)

	r.fields = r.fieldsOrig
	r.error = nil

	twirpLoggerPool.Put(r)
}

func loggerErrorReceived(ctx context.Context, e twirp.Error) context.Context {
	r, ok := ctx.Value(twirpLoggerKey{}).(*twirpLogger)
	if !ok || r == nil {
		return ctx
	}

	r.error = e
	return ctx
}

// --------------------------------------------------------------------------

type statusReporterKey struct{}

func TwirpRequestStatusReporter(metrics *prometheus.ServerMetrics) *twirp.ServerHooks {
	return &twirp.ServerHooks{
		RequestReceived: statusReporterRequestReceived,
		RequestRouted:   statusReporterRequestRouted,
		Error:           statusReporterErrorReceived,
		ResponseSent: func(ctx context.Context) {
			statusReporterResponseSent(ctx, metrics)
		},
	}
}

func statusReporterRequestReceived(ctx context.Context) (context.Context, error) {
	r := &twirpRequestFields{}

	if svc, ok := twirp.ServiceName(ctx); ok {
		r.service = svc
	}

	return context.WithValue(ctx, statusReporterKey{}, r), nil
}

func statusReporterRequestRouted(ctx context.Context) (context.Context, error) {
	if meth, ok := twirp.MethodName(ctx); ok {
		l, ok := ctx.Value(statusReporterKey{}).(*twirpRequestFields)
		if !ok || l == nil {
			return ctx, nil
		}
		l.method = meth
	}

	return ctx, nil
}

func statusReporterResponseSent(ctx context.Context, metrics *prometheus.ServerMetrics) {
	r, ok := ctx.Value(statusReporterKey{}).(*twirpRequestFields)
	if !ok || r == nil {
		return
	}

	var status int
	if statusCode, ok := twirp.StatusCode(ctx); ok {
		status, _ = strconv.Atoi(statusCode)
	}

	var code twirp.ErrorCode
	if r.error != nil {
		code = r.error.Code()
	}

	metrics.RecordTwirpRequestStatus(r.service, r.method, status, code)
}

func statusReporterErrorReceived(ctx context.Context, e twirp.Error) context.Context {
	r, ok := ctx.Value(statusReporterKey{}).(*twirpRequestFields)
	if !ok || r == nil {
		return ctx
	}

	r.error = e
	return ctx
}
