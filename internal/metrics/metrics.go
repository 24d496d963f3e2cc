// Package metrics holds the Prometheus collectors for encode and reverse
// operations.
package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/LiEnby/eCDP-Serial-Code/internal/ecdp"
)

// Result labels.
const (
	ResultOK        = "ok"
	ResultInvalid   = "invalid"
	ResultError     = "error"
	ResultNoMatch   = "no_match"
	ResultCancelled = "cancelled"
)

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	EncodeTotal     *prometheus.CounterVec
	ReverseTotal    *prometheus.CounterVec
	ReverseMatches  prometheus.Counter
	ReverseChecked  prometheus.Counter
	ReverseDuration *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EncodeTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ecdp_encode_total",
			Help: "Total encode requests by result",
		}, []string{"result"}),
		ReverseTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ecdp_reverse_total",
			Help: "Total reverse searches by result",
		}, []string{"result"}),
		ReverseMatches: f.NewCounter(prometheus.CounterOpts{
			Name: "ecdp_reverse_matches_total",
			Help: "Total matches emitted by reverse searches",
		}),
		ReverseChecked: f.NewCounter(prometheus.CounterOpts{
			Name: "ecdp_reverse_candidates_checked_total",
			Help: "Total chunk checksum tests done by reverse searches",
		}),
		ReverseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ecdp_reverse_duration_seconds",
			Help:    "Reverse search duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}, []string{"tables"}),
	}
}

// ObserveEncode counts one encode.
func (m *Metrics) ObserveEncode(err error) {
	m.EncodeTotal.WithLabelValues(resultFor(err, 1)).Inc()
}

// ObserveReverse records one finished search.
func (m *Metrics) ObserveReverse(res ecdp.Result, err error) {
	m.ReverseTotal.WithLabelValues(resultFor(err, res.Found)).Inc()
	m.ReverseMatches.Add(float64(res.Found))
	m.ReverseChecked.Add(float64(res.Stats.Checked))
	if res.Elapsed > 0 {
		tables := "all"
		if len(res.Tables) == 1 {
			tables = "one"
		}
		m.ReverseDuration.WithLabelValues(tables).Observe(res.Elapsed.Seconds())
	}
}

func resultFor(err error, found int64) string {
	switch {
	case err == nil && found == 0:
		return ResultNoMatch
	case err == nil:
		return ResultOK
	case ecdp.IsInvalidInput(err):
		return ResultInvalid
	case isCancel(err):
		return ResultCancelled
	default:
		return ResultError
	}
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
