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
	"errors"
	"maps"
	"net"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/frostbyte73/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/urfave/negroni/v3"
	"go.uber.org/atomic"

	"github.com/substream/substream-control/pkg/auth"
	"github.com/substream/substream-control/pkg/config"
	"github.com/substream/substream-control/pkg/livekit"
	"github.com/substream/substream-control/pkg/logger"
	"github.com/substream/substream-control/pkg/telemetry/prometheus"
	"github.com/substream/substream-control/pkg/utils"
)

const defaultViewerRoom = "parentconnect-demo"

// Server is an in-memory stand-in for the platform's control plane. It
// serves the ingress and room procedures, WHIP publishes, a viewer token
// endpoint and /metrics.
type Server struct {
	conf       *config.DevServerConfig
	keys       map[string]string
	store      *LocalStore
	metrics    *prometheus.ServerMetrics
	handler    http.Handler
	httpServer *http.Server
	running    atomic.Bool
	shutdown   core.Fuse
}

func NewServer(conf *config.Config) (*Server, error) {
	keys, err := conf.DevServer.LoadKeys()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, &config.ConfigurationError{Field: "dev_server.keys", Reason: "no keys configured"}
	}
	namespace := conf.ServiceNamespace
	if namespace == "" {
		namespace = config.DefaultServiceNamespace
	}

	registry := prom.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics, err := prometheus.NewServerMetrics(registry)
	if err != nil {
		return nil, err
	}

	s := &Server{
		conf:    &conf.DevServer,
		keys:    keys,
		store:   NewLocalStore(),
		metrics: metrics,
	}

	l := logger.GetLogger().WithName("devserver")
	twirpServer := newTwirpServer(namespace, TwirpLogger(l), TwirpRequestStatusReporter(metrics))
	ingress := NewIngressService(s.conf, s.store, metrics)
	rooms := NewRoomService(s.store)
	twirpServer.register("Ingress/CreateIngress", jsonProcedure(ingress.CreateIngress))
	twirpServer.register("Ingress/ListIngress", jsonProcedure(ingress.ListIngress))
	twirpServer.register("Ingress/DeleteIngress", jsonProcedure(ingress.DeleteIngress))
	twirpServer.register("RoomService/ListRooms", jsonProcedure(rooms.ListRooms))
	twirpServer.register("RoomService/ListParticipants", jsonProcedure(rooms.ListParticipants))

	mux := http.NewServeMux()
	for _, prefix := range twirpServer.PathPrefixes() {
		mux.Handle(prefix, twirpServer)
	}
	NewWHIPService(s.store, metrics).register(mux)
	mux.HandleFunc("GET /token", s.viewerToken)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	middlewares := []negroni.Handler{
		// always the first
		negroni.NewRecovery(),
		cors.New(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowedHeaders: []string{"*"},
			ExposedHeaders: []string{"Location"},
		}),
		negroni.HandlerFunc(requestHostMiddleware),
		NewAPIKeyAuthMiddleware(auth.NewKeyProviderFromMap(keys), NewKeyRateLimiter(conf.DevServer.RateLimit, conf.DevServer.RateBurst)),
	}
	s.handler = configureMiddlewares(mux, middlewares...)
	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(conf.DevServer.BindAddress, strconv.Itoa(int(conf.DevServer.Port))),
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Handler serves the full route set, e.g. behind httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Store() *LocalStore {
	return s.store
}

func (s *Server) IsRunning() bool {
	return s.running.Load()
}

// Start listens and blocks until Stop is called.
func (s *Server) Start() error {
	if s.running.Load() {
		return errors.New("already running")
	}

	// ensure we could listen
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.running.Store(true)

	go func() {
		logger.Infow("starting dev server", "address", s.httpServer.Addr, "keys", len(s.keys))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("dev server stopped", err)
		}
	}()

	<-s.shutdown.Watch()

	// wait for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Stop() {
	if s.running.CompareAndSwap(true, false) {
		s.shutdown.Break()
	}
}

// AddParticipant joins a participant to a room, creating the room if needed.
func (s *Server) AddParticipant(room string, p *livekit.ParticipantInfo) {
	if p.Sid == "" {
		p.Sid = utils.NewGuid(utils.ParticipantPrefix)
	}
	if p.JoinedAt == 0 {
		p.JoinedAt = livekit.Int64(time.Now().Unix())
	}
	s.store.StoreParticipant(room, p)
	s.metrics.SetRooms(s.store.NumRooms())
}

type viewerTokenResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// viewerToken issues a subscribe-only join token, signed with the first
// configured key.
func (s *Server) viewerToken(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	if room == "" {
		room = defaultViewerRoom
	}
	identity := r.URL.Query().Get("identity")
	if identity == "" {
		identity = utils.NewGuid("viewer-")
	}

	apiKey := slices.Sorted(maps.Keys(s.keys))[0]
	cred, err := auth.NewIssuer(apiKey, s.keys[apiKey]).Issue(identity, &auth.ClaimGrants{
		Video: auth.ViewerGrant(room),
	}, auth.ParticipantTokenTTL)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(&viewerTokenResponse{
		Token: cred.Token(),
		URL:   "ws://" + r.Host,
	})
}

func requestHostMiddleware(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestHostKey{}, r.Host)))
}

func configureMiddlewares(handler http.Handler, middlewares ...negroni.Handler) *negroni.Negroni {
	n := negroni.New()
	for _, m := range middlewares {
		n.Use(m)
	}
	n.UseHandler(handler)
	return n
}
