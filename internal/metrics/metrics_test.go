package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LiEnby/eCDP-Serial-Code/internal/ecdp"
)

func TestObserveEncode(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveEncode(nil)
	m.ObserveEncode(nil)
	m.ObserveEncode(&ecdp.InvalidInputError{Field: "store number"})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EncodeTotal.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EncodeTotal.WithLabelValues(ResultInvalid)))
}

func TestObserveReverse(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveReverse(ecdp.Result{Found: 3, Tables: []int{2}, Stats: ecdp.Stats{Checked: 100}, Elapsed: time.Millisecond}, nil)
	m.ObserveReverse(ecdp.Result{Tables: []int{0, 1}, Stats: ecdp.Stats{Checked: 50}, Elapsed: time.Millisecond}, nil)
	m.ObserveReverse(ecdp.Result{Found: 1}, fmt.Errorf("wrapped: %w", context.DeadlineExceeded))
	m.ObserveReverse(ecdp.Result{}, errors.New("disk full"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReverseTotal.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReverseTotal.WithLabelValues(ResultNoMatch)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReverseTotal.WithLabelValues(ResultCancelled)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReverseTotal.WithLabelValues(ResultError)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ReverseMatches))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.ReverseChecked))
	assert.Equal(t, 2, testutil.CollectAndCount(m.ReverseDuration))
}

func TestNew_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	require.Panics(t, func() { New(reg) })
}
