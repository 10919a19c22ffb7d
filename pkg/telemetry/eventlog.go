package telemetry

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/34j/so-vits-svc-go/pkg/storage"
)

// Record is one serialized telemetry event. Records are msgpack-encoded
// back to back in the event-log file; decode with a msgpack decoder in a
// loop until EOF.
type Record struct {
	// RunID identifies the training run that produced the record.
	RunID string `msgpack:"run_id"`

	// Step is the global training step.
	Step int64 `msgpack:"step"`

	// UnixNano is the wall-clock write time.
	UnixNano int64 `msgpack:"ts"`

	Summary Summary `msgpack:"summary"`
}

// EventLog is a Sink that appends records to one file per training run
// on a [storage.FileStore]. The file stays open for the lifetime of the
// sink; storage backends that only support whole-object writes (S3)
// receive the full log when the sink is closed.
type EventLog struct {
	runID string

	mu sync.Mutex
	wc io.WriteCloser
	e  *msgpack.Encoder
}

// NewEventLog creates the event-log file events/<runID>.tlog and returns
// the sink. A fresh random run id is generated when runID is empty.
func NewEventLog(ctx context.Context, files storage.FileStore, runID string) (*EventLog, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	wc, err := files.Write(ctx, "events/"+runID+".tlog")
	if err != nil {
		return nil, fmt.Errorf("telemetry: create event log: %w", err)
	}
	return &EventLog{runID: runID, wc: wc, e: msgpack.NewEncoder(wc)}, nil
}

// RunID returns the run identifier records are tagged with.
func (l *EventLog) RunID() string { return l.runID }

// Write appends one record to the log.
func (l *EventLog) Write(_ context.Context, step int64, s Summary) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.wc == nil {
		return fmt.Errorf("telemetry: event log %s is closed", l.runID)
	}
	rec := Record{RunID: l.runID, Step: step, UnixNano: time.Now().UnixNano(), Summary: s}
	if err := l.e.Encode(rec); err != nil {
		return fmt.Errorf("telemetry: append step %d: %w", step, err)
	}
	return nil
}

// Close flushes and closes the log file.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.wc == nil {
		return nil
	}
	err := l.wc.Close()
	l.wc = nil
	return err
}

// ReadLog decodes every record from an event-log file, in write order.
func ReadLog(ctx context.Context, files storage.FileStore, runID string) ([]Record, error) {
	rc, err := files.Read(ctx, "events/"+runID+".tlog")
	if err != nil {
		return nil, fmt.Errorf("telemetry: open event log %s: %w", runID, err)
	}
	defer rc.Close()
	dec := msgpack.NewDecoder(rc)
	var out []Record
	for {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return nil, fmt.Errorf("telemetry: decode event log %s: %w", runID, err)
		}
		out = append(out, rec)
	}
}
