package dataset

import (
	"errors"
	"fmt"
	"sort"

	"github.com/34j/so-vits-svc-go/pkg/bundle"
	"github.com/34j/so-vits-svc-go/pkg/tensor"
)

// ErrEmptyBatch is returned by Collate when, after dropping nil entries,
// no samples remain.
var ErrEmptyBatch = errors.New("dataset: empty batch")

// Batch is one collated training step input. Field order is the wire
// contract with the training loop: content, f0, spec, mel_spec, audio,
// spk, lengths, uv.
//
// Samples inside every tensor are ordered by descending original mel
// frame count. Lengths is the exception: it holds each sample's original
// mel frame count in the order the samples were passed to Collate, NOT
// in the sorted tensor order. The consuming model relies on this exact
// decoupling for loss masking; do not "fix" it by reordering.
type Batch struct {
	// Content is [N, featureDim, maxT].
	Content tensor.Tensor

	// F0 is [N, maxT].
	F0 tensor.Tensor

	// Spec is [N, freqBins, maxT].
	Spec tensor.Tensor

	// MelSpec is [N, melBins, maxT].
	MelSpec tensor.Tensor

	// Audio is [N, 1, maxSamples]. Its trailing dimension is computed
	// from the waveform lengths, independently of the frame-rate
	// modalities.
	Audio tensor.Tensor

	// Speakers is [N][1]: each sample's scalar speaker id wrapped in a
	// single-element row. Never cropped or padded.
	Speakers [][]int64

	// Lengths[i] is the original mel frame count of input sample i, in
	// pre-sort input order.
	Lengths []int64

	// UV is [N, maxT].
	UV tensor.Tensor
}

// Len returns the number of samples in the batch.
func (b *Batch) Len() int { return len(b.Speakers) }

// Collate reduces a list of bundles into one Batch.
//
// Nil entries (skip markers from upstream loaders) are dropped first.
// Each modality is right-padded with zeros to its own per-batch maximum
// trailing length and stacked along a new leading batch axis, in order
// of descending original mel frame count (stable for ties).
//
// Returns ErrEmptyBatch if no samples remain after filtering, and
// tensor.ErrShapeMismatch if samples disagree on a non-time dimension
// (feature dim, spectrogram bins, ...), which is fatal: stacking cannot
// proceed.
func Collate(samples []*bundle.FeatureBundle) (*Batch, error) {
	kept := make([]*bundle.FeatureBundle, 0, len(samples))
	for _, s := range samples {
		if s != nil {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return nil, ErrEmptyBatch
	}

	// Lengths are captured before sorting and keep the input order.
	lengths := make([]int64, len(kept))
	for i, s := range kept {
		lengths[i] = int64(s.Frames())
	}

	sorted := append([]*bundle.FeatureBundle(nil), kept...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Frames() > sorted[j].Frames()
	})

	var (
		batch = &Batch{Lengths: lengths}
		err   error
	)
	for _, m := range []struct {
		name string
		dst  *tensor.Tensor
		get  func(*bundle.FeatureBundle) tensor.Tensor
	}{
		{"content", &batch.Content, func(b *bundle.FeatureBundle) tensor.Tensor { return b.Content }},
		{"f0", &batch.F0, func(b *bundle.FeatureBundle) tensor.Tensor { return b.F0 }},
		{"spec", &batch.Spec, func(b *bundle.FeatureBundle) tensor.Tensor { return b.Spec }},
		{"mel_spec", &batch.MelSpec, func(b *bundle.FeatureBundle) tensor.Tensor { return b.MelSpec }},
		{"audio", &batch.Audio, func(b *bundle.FeatureBundle) tensor.Tensor { return b.Audio }},
		{"uv", &batch.UV, func(b *bundle.FeatureBundle) tensor.Tensor { return b.UV }},
	} {
		ts := make([]tensor.Tensor, len(sorted))
		for i, s := range sorted {
			ts[i] = m.get(s)
		}
		*m.dst, err = tensor.PadStack(ts)
		if err != nil {
			return nil, fmt.Errorf("dataset: collate %s: %w", m.name, err)
		}
	}

	batch.Speakers = make([][]int64, len(sorted))
	for i, s := range sorted {
		batch.Speakers[i] = []int64{s.Speaker}
	}
	return batch, nil
}
