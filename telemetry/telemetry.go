// Package telemetry provides in-process translation metrics with an opt-in
// periodic JSON export.
package telemetry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/satishbabariya/queryable/query"
)

// Snapshot is a point-in-time copy of the recorded metrics.
type Snapshot struct {
	Translations int64            `json:"translations"`
	CacheHits    int64            `json:"cache_hits"`
	CacheMisses  int64            `json:"cache_misses"`
	Executions   int64            `json:"executions"`
	Failures     map[string]int64 `json:"failures,omitempty"`
	CompileTime  time.Duration    `json:"compile_time_ns"`
	ExecuteTime  time.Duration    `json:"execute_time_ns"`
	Timestamp    time.Time        `json:"timestamp"`
	OS           string           `json:"os"`
	Architecture string           `json:"architecture"`
}

// AverageCompile is the mean time spent compiling a cache miss.
func (s Snapshot) AverageCompile() time.Duration {
	if s.CacheMisses == 0 {
		return 0
	}
	return s.CompileTime / time.Duration(s.CacheMisses)
}

// Recorder collects translation metrics. The zero value is not usable; a nil
// *Recorder ignores every call.
type Recorder struct {
	mu    sync.Mutex
	snap  Snapshot
	now   func() time.Time
	stop  chan struct{}
	wg    sync.WaitGroup
	start sync.Once
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		snap: Snapshot{Failures: make(map[string]int64)},
		now:  time.Now,
		stop: make(chan struct{}),
	}
}

// RecordTranslation records the lookup of one query in the compiled-query
// cache. elapsed is the compile time on a miss.
func (r *Recorder) RecordTranslation(hit bool, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.snap.Translations++
	if hit {
		r.snap.CacheHits++
	} else {
		r.snap.CacheMisses++
		r.snap.CompileTime += elapsed
	}
	if err != nil {
		r.snap.Failures[failureKind(err)]++
	}
}

// RecordExecution records one command execution.
func (r *Recorder) RecordExecution(elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.snap.Executions++
	r.snap.ExecuteTime += elapsed
	if err != nil {
		r.snap.Failures["execution"]++
	}
}

// Snapshot returns a copy of the current metrics.
func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.snap
	s.Failures = make(map[string]int64, len(r.snap.Failures))
	for k, v := range r.snap.Failures {
		s.Failures[k] = v
	}
	s.Timestamp = r.now()
	s.OS = runtime.GOOS
	s.Architecture = runtime.GOARCH
	return s
}

// Reset clears the metrics.
func (r *Recorder) Reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap = Snapshot{Failures: make(map[string]int64)}
}

var kinds = []struct {
	err  error
	name string
}{
	{query.ErrNotSupported, "not_supported"},
	{query.ErrInvalidArgument, "invalid_argument"},
	{query.ErrNilArgument, "nil_argument"},
	{query.ErrOutOfRange, "out_of_range"},
	{query.ErrFieldNotFound, "field_not_found"},
	{query.ErrTypeMismatch, "type_mismatch"},
	{query.ErrFeatureNotSupported, "feature_not_supported"},
}

func failureKind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "other"
}

// Sink receives exported snapshots.
type Sink interface {
	Export(ctx context.Context, s Snapshot) error
}

// WriterSink writes each snapshot as one JSON line.
type WriterSink struct {
	W io.Writer
}

func (w WriterSink) Export(_ context.Context, s Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	_, err = w.W.Write(append(data, '\n'))
	return err
}

// HTTPSink posts each snapshot to an endpoint.
type HTTPSink struct {
	Endpoint string
	Client   *http.Client
	Version  string
}

func (h HTTPSink) Export(ctx context.Context, s Snapshot) error {
	data, err := json.Marshal(map[string]any{"snapshot": s})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", fmt.Sprintf("queryable/%s", h.Version))

	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("telemetry endpoint returned %s", resp.Status)
	}
	return nil
}

// StartExport exports a snapshot every interval until Stop is called. It
// does nothing when telemetry is disabled through the environment. Export
// errors are dropped: telemetry never fails a query.
func (r *Recorder) StartExport(interval time.Duration, sink Sink) {
	if r == nil || Disabled() {
		return
	}
	r.start.Do(func() {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					_ = sink.Export(context.Background(), r.Snapshot())
				case <-r.stop:
					// final flush
					_ = sink.Export(context.Background(), r.Snapshot())
					return
				}
			}
		}()
	})
}

// Stop ends a running export after one last flush.
func (r *Recorder) Stop() {
	if r == nil {
		return
	}
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
	r.wg.Wait()
}

// Disabled reports whether export is turned off by QUERYABLE_TELEMETRY=0 or
// the --no-telemetry flag.
func Disabled() bool {
	switch os.Getenv("QUERYABLE_TELEMETRY") {
	case "0", "false", "off":
		return true
	}
	for _, arg := range os.Args {
		if arg == "--no-telemetry" {
			return true
		}
	}
	return false
}

// Endpoint returns the export endpoint configured by QUERYABLE_TELEMETRY_ENDPOINT.
func Endpoint() string {
	return os.Getenv("QUERYABLE_TELEMETRY_ENDPOINT")
}
