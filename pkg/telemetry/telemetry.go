// Package telemetry records training progress: scalar metrics, value
// histograms, rendered spectrogram images and audio samples, all keyed
// by name and tagged with the global training step.
//
// Sinks are external collaborators of the data pipeline; the training
// loop calls [Sink.Write] at its logging intervals. The event-log sink
// appends msgpack records to a per-run file, the WebSocket sink streams
// the same records to connected dashboards.
package telemetry

import (
	"context"
	"errors"
)

// Image is an RGB image in HWC layout (row-major, 3 bytes per pixel),
// the format spectrogram renderings are emitted in.
type Image struct {
	Width  int    `msgpack:"w"`
	Height int    `msgpack:"h"`
	Pix    []byte `msgpack:"pix"`
}

// AudioClip is a mono waveform with its sample rate.
type AudioClip struct {
	Samples    []float32 `msgpack:"samples"`
	SampleRate int       `msgpack:"sample_rate"`
}

// Summary is one training step's worth of telemetry. The four namespaces
// are independent; any of them may be empty.
type Summary struct {
	Scalars    map[string]float64   `msgpack:"scalars,omitempty"`
	Histograms map[string][]float64 `msgpack:"histograms,omitempty"`
	Images     map[string]Image     `msgpack:"images,omitempty"`
	Audios     map[string]AudioClip `msgpack:"audios,omitempty"`
}

// Sink accepts per-step telemetry payloads.
type Sink interface {
	// Write records the summary for the given global step.
	Write(ctx context.Context, step int64, s Summary) error

	// Close flushes and releases the sink.
	Close() error
}

// MultiSink fans every write out to all child sinks, continuing past
// per-sink failures and returning them joined.
type MultiSink []Sink

// Write sends the summary to every child sink.
func (m MultiSink) Write(ctx context.Context, step int64, s Summary) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Write(ctx, step, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every child sink.
func (m MultiSink) Close() error {
	var errs []error
	for _, sink := range m {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
