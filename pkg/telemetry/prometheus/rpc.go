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
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/twitchtv/twirp"
	"go.uber.org/multierr"
)

const (
	substreamNamespace string = "substream"
)

// RPCMetrics records client side control-plane calls. It satisfies the
// transport's Observer.
type RPCMetrics struct {
	requestTime  *prometheus.HistogramVec
	requestTotal *prometheus.CounterVec
}

func NewRPCMetrics(reg prometheus.Registerer) (*RPCMetrics, error) {
	m := &RPCMetrics{
		requestTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: substreamNamespace,
			Subsystem: "rpc",
			Name:      "request_time_ms",
			Buckets:   []float64{10, 50, 100, 300, 500, 1000, 1500, 2000, 5000, 10000},
		}, []string{"service", "method"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: substreamNamespace,
			Subsystem: "rpc",
			Name:      "request_total",
		}, []string{"service", "method", "status", "code"}),
	}

	if reg != nil {
		err := multierr.Combine(
			reg.Register(m.requestTime),
			reg.Register(m.requestTotal),
		)
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *RPCMetrics) OnCall(procedure string, statusCode int, code twirp.ErrorCode, duration time.Duration) {
	service, method := splitProcedure(procedure)
	m.requestTotal.WithLabelValues(service, method, StatusFamily(statusCode), string(code)).Inc()
	if statusCode != 0 {
		m.requestTime.WithLabelValues(service, method).Observe(float64(duration.Milliseconds()))
	}
}

// StatusFamily buckets an HTTP status, 0 meaning no response.
func StatusFamily(statusCode int) string {
	switch {
	case statusCode == 0:
		return "none"
	case statusCode >= 200 && statusCode <= 299:
		return "2xx"
	case statusCode >= 400 && statusCode <= 499:
		return "4xx"
	case statusCode >= 500 && statusCode <= 599:
		return "5xx"
	default:
		return strconv.Itoa(statusCode)
	}
}

func splitProcedure(procedure string) (string, string) {
	service, method, _ := strings.Cut(procedure, "/")
	return service, method
}
