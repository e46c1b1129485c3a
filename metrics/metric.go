// Copyright 2023 The FeatDB Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var Registry = prometheus.NewRegistry()

var (
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "featdb",
			Subsystem: "server",
			Name:      "request_duration_seconds",
			Help:      "request latency by api and http status",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
		},
		[]string{"api", "status"},
	)
	rowsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "featdb",
			Subsystem: "server",
			Name:      "rows_written_total",
			Help:      "feature rows accepted by the write path",
		},
		[]string{"push_source"},
	)
	rowsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "featdb",
			Subsystem: "server",
			Name:      "rows_failed_total",
			Help:      "feature rows rejected row-level by the write path",
		},
		[]string{"push_source"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		requestDuration,
		rowsWritten,
		rowsFailed,
	)
}

func ObserveRequest(api string, status int, elapsed time.Duration) {
	requestDuration.WithLabelValues(api, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func AddRowsWritten(pushSource string, n int) {
	rowsWritten.WithLabelValues(pushSource).Add(float64(n))
}

func AddRowsFailed(pushSource string, n int) {
	rowsFailed.WithLabelValues(pushSource).Add(float64(n))
}

// Handler serves the registry in the prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
