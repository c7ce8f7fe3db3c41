// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exports link engine activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Thermoquad/caddx/pkg/caddx"
	"github.com/Thermoquad/caddx/pkg/engine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "caddx"

// Recorder implements engine.Recorder on top of Prometheus collectors.
type Recorder struct {
	framesReceived    *prometheus.CounterVec
	framingErrors     *prometheus.CounterVec
	messagesDiscarded *prometheus.CounterVec
	acks              prometheus.Counter
	naks              prometheus.Counter
	commandsSent      *prometheus.CounterVec
	commandDuration   *prometheus.HistogramVec
	commandsDropped   *prometheus.CounterVec
	queueDepth        prometheus.Gauge
	negotiated        prometheus.Gauge
}

var _ engine.Recorder = (*Recorder)(nil)

// New creates a Recorder and registers its collectors with reg.
func New(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		framesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "link",
				Name:      "frames_received_total",
				Help:      "Valid frames received from the panel.",
			},
			[]string{"type"},
		),
		framingErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "link",
				Name:      "framing_errors_total",
				Help:      "Inbound frames rejected by the decoder.",
			},
			[]string{"kind"},
		),
		messagesDiscarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "link",
				Name:      "messages_discarded_total",
				Help:      "Well framed messages dropped before dispatch.",
			},
			[]string{"reason"},
		),
		acks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "acks_sent_total",
			Help:      "ACK frames sent to the panel.",
		}),
		naks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "naks_sent_total",
			Help:      "NACK frames sent to the panel.",
		}),
		commandsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "commands",
				Name:      "sent_total",
				Help:      "Command transmissions, including retries.",
			},
			[]string{"type", "attempt"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "commands",
				Name:      "duration_seconds",
				Help:      "Time from first transmission to the panel's response.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		commandsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "commands",
				Name:      "dropped_total",
				Help:      "Commands abandoned without a valid response.",
			},
			[]string{"type", "reason"},
		),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "queue_depth",
			Help:      "Commands waiting to be sent.",
		}),
		negotiated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "negotiated",
			Help:      "1 when the panel configuration has been accepted.",
		}),
	}

	for _, c := range r.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		r.framesReceived,
		r.framingErrors,
		r.messagesDiscarded,
		r.acks,
		r.naks,
		r.commandsSent,
		r.commandDuration,
		r.commandsDropped,
		r.queueDepth,
		r.negotiated,
	}
}

func (r *Recorder) FrameReceived(t caddx.MessageType) {
	r.framesReceived.WithLabelValues(t.String()).Inc()
}

func (r *Recorder) FramingError(kind caddx.FramingErrorKind) {
	r.framingErrors.WithLabelValues(kind.String()).Inc()
}

func (r *Recorder) MessageDiscarded(reason string) {
	r.messagesDiscarded.WithLabelValues(reason).Inc()
}

func (r *Recorder) AckSent() { r.acks.Inc() }

func (r *Recorder) NakSent() { r.naks.Inc() }

func (r *Recorder) CommandSent(t caddx.MessageType, attempt int) {
	r.commandsSent.WithLabelValues(t.String(), strconv.Itoa(attempt)).Inc()
}

func (r *Recorder) CommandCompleted(t caddx.MessageType, elapsed time.Duration) {
	r.commandDuration.WithLabelValues(t.String()).Observe(elapsed.Seconds())
}

func (r *Recorder) CommandDropped(t caddx.MessageType, reason string) {
	r.commandsDropped.WithLabelValues(t.String(), reason).Inc()
}

func (r *Recorder) QueueDepth(n int) { r.queueDepth.Set(float64(n)) }

func (r *Recorder) Negotiated(ok bool) {
	if ok {
		r.negotiated.Set(1)
		return
	}
	r.negotiated.Set(0)
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
