package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	errs    []error
	tags    []map[string]string
	panics  []any
	flushes int
}

func (r *recorder) CaptureException(err error, tags map[string]string) {
	r.errs = append(r.errs, err)
	r.tags = append(r.tags, tags)
}
func (r *recorder) CapturePanic(v any)  { r.panics = append(r.panics, v) }
func (r *recorder) Flush(time.Duration) { r.flushes++ }

func install(t *testing.T) *recorder {
	t.Helper()
	rec := &recorder{}
	Init(rec)
	t.Cleanup(func() { Init(NopMonitor{}) })
	return rec
}

func TestCaptureException(t *testing.T) {
	rec := install(t)
	CaptureException(errors.New("infeasible"), map[string]string{"run_id": "r1"})
	require.Len(t, rec.errs, 1)
	assert.Equal(t, "r1", rec.tags[0]["run_id"])
}

func TestInitIgnoresNil(t *testing.T) {
	rec := install(t)
	Init(nil)
	CaptureException(errors.New("x"), nil)
	assert.Len(t, rec.errs, 1)
}

func TestRecoverReportsAndRepanics(t *testing.T) {
	rec := install(t)
	assert.PanicsWithValue(t, "boom", func() {
		defer Recover()
		panic("boom")
	})
	assert.Equal(t, []any{"boom"}, rec.panics)
	assert.Equal(t, 1, rec.flushes)
}
