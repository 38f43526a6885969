package report

import (
	"bytes"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motion.report/internal/motion"
	"github.com/banshee-data/motion.report/internal/timeutil"
)

func eval(seq uint64, state motion.State, variance float64) motion.Evaluation {
	return motion.Evaluation{
		Seq:         seq,
		State:       state,
		WindowStats: motion.WindowStats{Samples: 10, Mean: 1, Variance: variance},
	}
}

func seqs(records []Record) []uint64 {
	out := make([]uint64, len(records))
	for i, r := range records {
		out[i] = r.Seq
	}
	return out
}

func TestRecorderRing(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	r := NewRecorder(3, clock)
	assert.NotEqual(t, uuid.Nil, r.Session())
	assert.Equal(t, clock.Now(), r.Started())

	_, ok := r.Latest()
	assert.False(t, ok)
	assert.Empty(t, r.History(0))

	for i := uint64(1); i <= 2; i++ {
		clock.Advance(time.Second)
		r.OnStateEvaluated(eval(i, motion.Stopped, 0))
	}
	assert.Equal(t, []uint64{1, 2}, seqs(r.History(0)))

	for i := uint64(3); i <= 5; i++ {
		clock.Advance(time.Second)
		r.OnStateEvaluated(eval(i, motion.SlowWalking, 0.02))
	}
	assert.Equal(t, []uint64{3, 4, 5}, seqs(r.History(0)))
	assert.Equal(t, []uint64{4, 5}, seqs(r.History(2)))
	assert.Equal(t, []uint64{3, 4, 5}, seqs(r.History(10)))

	latest, ok := r.Latest()
	require.True(t, ok)
	assert.EqualValues(t, 5, latest.Seq)
	assert.Equal(t, clock.Now(), latest.At)

	assert.Equal(t, Counts{motion.Stopped: 2, motion.SlowWalking: 3}, r.Counts())
	assert.Equal(t, map[string]uint64{"stopped": 2, "slow_walking": 3}, r.Counts().ByName())
	assert.EqualValues(t, 5, r.Total())
}

func TestRecorderMinimumSize(t *testing.T) {
	r := NewRecorder(0, nil)
	r.OnStateEvaluated(eval(1, motion.Stopped, 0))
	r.OnStateEvaluated(eval(2, motion.FastWalking, 0.2))
	assert.Equal(t, []uint64{2}, seqs(r.History(0)))
}

func TestRecorderConcurrentReaders(t *testing.T) {
	r := NewRecorder(16, nil)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint64(1); i <= 200; i++ {
			r.OnStateEvaluated(eval(i, motion.Stopped, 0))
		}
	}()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = r.History(5)
				_, _ = r.Latest()
				_ = r.Counts()
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 200, r.Total())
	assert.Len(t, r.History(0), 16)
}

func TestRenderVarianceChart(t *testing.T) {
	r := NewRecorder(10, nil)
	r.OnStateEvaluated(eval(1, motion.Stopped, 0.004))
	r.OnStateEvaluated(eval(2, motion.FastWalking, 0.081))

	var buf bytes.Buffer
	err := RenderVarianceChart(&buf, r.History(0), ChartOptions{
		Title:               "Pedometer",
		StationaryThreshold: 0.013,
		SlowWalkThreshold:   0.05,
	})
	require.NoError(t, err)

	html := buf.String()
	assert.Contains(t, html, "<title>Pedometer</title>")
	assert.Contains(t, html, "0.081")
	assert.Contains(t, html, "slow walk")
	assert.Contains(t, html, "Fast Walking")
}

func TestRenderVarianceChartEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderVarianceChart(&buf, nil, ChartOptions{}))
	assert.Contains(t, buf.String(), "Motion variance")
}

func TestRenderVarianceChartNonFinite(t *testing.T) {
	r := NewRecorder(4, nil)
	r.OnStateEvaluated(eval(1, motion.Unknown, math.NaN()))

	var buf bytes.Buffer
	require.NoError(t, RenderVarianceChart(&buf, r.History(0), ChartOptions{}))
	assert.Contains(t, buf.String(), `"-"`)
}
