package xreport

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/omeyang/xflow/pkg/flowcontrol/xflowstat"
	"github.com/omeyang/xflow/pkg/observability/xlog"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// minute 整分钟时间戳
const minute = int64(1_700_000_040_000)

func newEngine(t *testing.T, nowMs int64) *xflowstat.Engine {
	t.Helper()
	e, err := xflowstat.New(xflowstat.WithClock(func() time.Time { return time.UnixMilli(nowMs) }))
	require.NoError(t, err)
	return e
}

func hit(e *xflowstat.Engine, id string, ts int64, n int) {
	for range n {
		adm := e.Admit([]xflowstat.Level{{ResourceID: id}}, ts)
		e.Complete(adm, ts, 10, true)
	}
}

func TestNew_Validation(t *testing.T) {
	e := newEngine(t, minute)
	_, err := New(e, WithTop(0))
	assert.ErrorIs(t, err, ErrInvalidTop)
	_, err = New(e, WithSpec("not a spec"))
	assert.Error(t, err)
}

func TestReporter_Report(t *testing.T) {
	e := newEngine(t, minute+65_000)
	hit(e, "a", minute+1_000, 3)
	hit(e, "b", minute+30_000, 5)
	hit(e, "c", minute+59_000, 1)
	hit(e, "d", minute+61_000, 9) // 当前分钟，不计入
	hit(e, "e", minute-1_000, 9)  // 更早的分钟

	var buf bytes.Buffer
	logger, _, err := xlog.New().SetOutput(&buf).SetFormat("json").Build()
	require.NoError(t, err)
	r, err := New(e, WithTop(2), WithLogger(logger))
	require.NoError(t, err)

	lines := r.Report(context.Background())
	require.Len(t, lines, 2)
	assert.Equal(t, "b", lines[0].ResourceID)
	assert.EqualValues(t, 5, lines[0].Stat.Total)
	assert.Equal(t, "a", lines[1].ResourceID)
	assert.Equal(t, 2, strings.Count(buf.String(), "flow report"))
}

func TestReporter_Run(t *testing.T) {
	e := newEngine(t, minute)
	r, err := New(e, WithSpec("@every 1h"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()
	require.NoError(t, <-done)
}
