// Package bundle defines the per-utterance feature bundle produced by the
// preprocessing stage and consumed by the training dataset, together with
// the stores that persist bundles.
//
// A bundle holds every modality the model trains on. All frame-rate
// modalities share one frame count; the raw waveform is hop-aligned to
// that frame grid. Bundles are msgpack-encoded on disk.
package bundle

import (
	"errors"
	"fmt"

	"github.com/34j/so-vits-svc-go/pkg/tensor"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when no bundle exists for an utterance id.
	ErrNotFound = errors.New("bundle: not found")
)

// Suffix is appended to a manifest entry's path to obtain the stored
// bundle location.
const Suffix = ".data.mp"

// FeatureBundle is the serialized set of precomputed feature tensors for
// one utterance. It is written once by preprocessing and read-only for
// the lifetime of a training run.
type FeatureBundle struct {
	// Content is the content-embedding matrix, shape [featureDim, T].
	// Preprocessing aligns it to the mel frame grid.
	Content tensor.Tensor `msgpack:"content"`

	// F0 is the pitch curve in Hz, shape [T].
	F0 tensor.Tensor `msgpack:"f0"`

	// Spec is the linear spectrogram, shape [freqBins, T].
	Spec tensor.Tensor `msgpack:"spec"`

	// MelSpec is the mel spectrogram, shape [melBins, T]. Its frame count
	// is the canonical length reference for the bundle.
	MelSpec tensor.Tensor `msgpack:"mel_spec"`

	// Audio is the raw waveform, shape [1, T*hopLength] (up to truncation).
	Audio tensor.Tensor `msgpack:"audio"`

	// Speaker is the scalar speaker id. It has no time axis and is never
	// cropped or padded.
	Speaker int64 `msgpack:"spk"`

	// UV is the per-frame voiced/unvoiced flag sequence, shape [T].
	UV tensor.Tensor `msgpack:"uv"`
}

// Frames returns the bundle's canonical frame count (the mel spectrogram
// time dimension).
func (b *FeatureBundle) Frames() int { return b.MelSpec.Frames() }

// Validate checks the cross-modality alignment invariants: every
// frame-rate modality must have exactly Frames() frames, and the
// waveform must not exceed Frames()*hopLength samples (shorter is allowed
// since preprocessing truncates to whole frames).
func (b *FeatureBundle) Validate(hopLength int) error {
	frames := b.Frames()
	for _, m := range []struct {
		name string
		t    tensor.Tensor
	}{
		{"f0", b.F0},
		{"spec", b.Spec},
		{"uv", b.UV},
		{"content", b.Content},
	} {
		if m.t.Frames() != frames {
			return fmt.Errorf("bundle: %s has %d frames, mel_spec has %d", m.name, m.t.Frames(), frames)
		}
	}
	if hopLength > 0 {
		want := frames * hopLength
		got := b.Audio.Frames()
		if got > want || got < want-hopLength {
			return fmt.Errorf("bundle: audio has %d samples, want %d±%d for %d frames",
				got, want, hopLength, frames)
		}
	}
	return nil
}
