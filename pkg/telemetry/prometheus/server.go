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

package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/twitchtv/twirp"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

// ServerMetrics backs the dev server's /metrics endpoint.
type ServerMetrics struct {
	ingressCurrent atomic.Int32
	roomCurrent    atomic.Int32

	twirpRequestStatus *prometheus.CounterVec
	ingressCreated     *prometheus.CounterVec
}

func NewServerMetrics(reg prometheus.Registerer) (*ServerMetrics, error) {
	m := &ServerMetrics{
		twirpRequestStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: substreamNamespace,
			Subsystem: "twirp",
			Name:      "request_status",
		}, []string{"service", "method", "status", "code"}),
		ingressCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: substreamNamespace,
			Subsystem: "ingress",
			Name:      "created_total",
		}, []string{"input_type", "result"}),
	}

	ingressGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: substreamNamespace,
		Subsystem: "ingress",
		Name:      "total",
	}, func() float64 {
		return float64(m.ingressCurrent.Load())
	})
	roomGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: substreamNamespace,
		Subsystem: "room",
		Name:      "total",
	}, func() float64 {
		return float64(m.roomCurrent.Load())
	})

	if reg != nil {
		err := multierr.Combine(
			reg.Register(m.twirpRequestStatus),
			reg.Register(m.ingressCreated),
			reg.Register(ingressGauge),
			reg.Register(roomGauge),
		)
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *ServerMetrics) RecordTwirpRequestStatus(service, method string, statusCode int, code twirp.ErrorCode) {
	m.twirpRequestStatus.WithLabelValues(service, method, StatusFamily(statusCode), string(code)).Inc()
}

func (m *ServerMetrics) IngressCreated(inputType string, ok bool) {
	result := "success"
	if !ok {
		result = "rejected"
	}
	m.ingressCreated.WithLabelValues(inputType, result).Inc()
	if ok {
		m.ingressCurrent.Inc()
	}
}

func (m *ServerMetrics) IngressDeleted() {
	m.ingressCurrent.Dec()
}

func (m *ServerMetrics) SetRooms(n int) {
	m.roomCurrent.Store(int32(n))
}

func (m *ServerMetrics) IngressCount() int32 {
	return m.ingressCurrent.Load()
}
