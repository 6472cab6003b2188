package telemetry

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/queryable/query"
)

func TestRecorderCountsTranslations(t *testing.T) {
	r := NewRecorder()
	r.RecordTranslation(false, 4*time.Millisecond, nil)
	r.RecordTranslation(true, 0, nil)
	r.RecordTranslation(false, 2*time.Millisecond, query.Errorf("where", query.ErrNotSupported, "x"))
	r.RecordTranslation(false, 0, errors.New("boom"))
	r.RecordExecution(time.Millisecond, nil)

	s := r.Snapshot()
	assert.Equal(t, int64(4), s.Translations)
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(3), s.CacheMisses)
	assert.Equal(t, int64(1), s.Executions)
	assert.Equal(t, map[string]int64{"not_supported": 1, "other": 1}, s.Failures)
	assert.Equal(t, 2*time.Millisecond, s.AverageCompile())

	r.Reset()
	assert.Zero(t, r.Snapshot().Translations)
}

func TestNilRecorderIsInert(t *testing.T) {
	var r *Recorder
	r.RecordTranslation(true, 0, nil)
	r.RecordExecution(0, nil)
	r.StartExport(time.Millisecond, WriterSink{W: &bytes.Buffer{}})
	r.Stop()
	assert.Equal(t, Snapshot{}, r.Snapshot())
}

func TestSnapshotIsACopy(t *testing.T) {
	r := NewRecorder()
	r.RecordTranslation(false, 0, errors.New("x"))
	s := r.Snapshot()
	s.Failures["other"] = 100
	assert.Equal(t, int64(1), r.Snapshot().Failures["other"])
}

func TestWriterSinkWritesJSONLines(t *testing.T) {
	r := NewRecorder()
	r.RecordTranslation(true, 0, nil)
	var buf bytes.Buffer
	require.NoError(t, WriterSink{W: &buf}.Export(context.Background(), r.Snapshot()))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.EqualValues(t, 1, got["cache_hits"])
	assert.True(t, bytes.HasSuffix(buf.Bytes(), []byte("\n")))
}

func TestHTTPSinkPostsSnapshot(t *testing.T) {
	var body map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := HTTPSink{Endpoint: srv.URL, Version: "test"}.Export(context.Background(), NewRecorder().Snapshot())
	require.NoError(t, err)
	assert.Contains(t, body, "snapshot")
}

func TestStartExportFlushesOnStop(t *testing.T) {
	t.Setenv("QUERYABLE_TELEMETRY", "1")
	r := NewRecorder()
	var buf bytes.Buffer
	r.StartExport(time.Hour, WriterSink{W: &buf})
	r.RecordTranslation(false, 0, nil)
	r.Stop()
	assert.Contains(t, buf.String(), `"translations":1`)
}

func TestDisabledByEnvironment(t *testing.T) {
	t.Setenv("QUERYABLE_TELEMETRY", "0")
	assert.True(t, Disabled())

	r := NewRecorder()
	var buf bytes.Buffer
	r.StartExport(time.Millisecond, WriterSink{W: &buf})
	r.Stop()
	assert.Empty(t, buf.String())
}
