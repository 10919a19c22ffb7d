// Package dataset presents a preprocessed corpus as an index-addressable
// sequence of feature bundles and collates bundles into padded,
// length-sorted mini-batches for the training loop.
package dataset

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"

	"github.com/34j/so-vits-svc-go/pkg/bundle"
)

// Sentinel errors.
var (
	// ErrIndexOutOfRange is returned by Get for indices outside [0, Len()).
	ErrIndexOutOfRange = errors.New("dataset: index out of range")
)

const (
	// MaxFrames is the longest mel frame count returned unmodified.
	// Longer utterances are cropped to a random window.
	MaxFrames = 800

	// cropMargin is subtracted from the crop window end. Inherited from
	// the reference training recipe: a cropped sample is always exactly
	// MaxFrames-cropMargin frames long.
	cropMargin = 10
)

// Config configures a Dataset.
type Config struct {
	// HopLength is the number of waveform samples per spectrogram frame.
	// Required; it maps frame crops onto the waveform.
	HopLength int

	// Seed drives the one-time shuffle of the manifest order and, unless
	// Rand is set, the random crop positions.
	Seed int64

	// Rand, if non-nil, supplies crop positions instead of the dataset's
	// own seeded generator. Inject a fixed-seed generator for
	// deterministic tests. The generator is shared by all Get calls
	// (access is serialized), so crop positions depend on the order in
	// which concurrent workers happen to call Get and are not
	// reproducible across runs with parallel loading.
	Rand *rand.Rand
}

// Dataset is a fixed-length, index-addressable view of a corpus.
//
// The enumeration order is a deterministic permutation of the manifest
// order, seeded by Config.Seed, fixed at construction. There is no
// reshuffle between epochs: epoch N and epoch N+1 visit utterances in
// the same order (randomness across epochs comes from cropping only).
type Dataset struct {
	ids   []string
	store bundle.Store
	hop   int
	rngMu sync.Mutex
	rng   *rand.Rand
}

// New builds a Dataset from a manifest read from r: UTF-8 text, one
// utterance path per line, blank lines ignored. The bundle store resolves
// each path to its stored features.
func New(r io.Reader, store bundle.Store, cfg Config) (*Dataset, error) {
	if cfg.HopLength <= 0 {
		return nil, fmt.Errorf("dataset: hop length must be positive, got %d", cfg.HopLength)
	}
	var ids []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		ids = append(ids, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("dataset: read manifest: %w", err)
	}

	shuffler := rand.New(rand.NewSource(cfg.Seed))
	shuffler.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})

	rng := cfg.Rand
	if rng == nil {
		rng = shuffler
	}
	return &Dataset{ids: ids, store: store, hop: cfg.HopLength, rng: rng}, nil
}

// Len returns the number of utterances in the dataset. Fixed after
// construction.
func (d *Dataset) Len() int { return len(d.ids) }

// ID returns the utterance id at the given (shuffled) index.
func (d *Dataset) ID(index int) string { return d.ids[index] }

// Get loads the bundle at the given index and applies length-bounded
// random cropping.
//
// Bundles with at most MaxFrames mel frames are returned unmodified.
// Longer bundles are cropped to a random window of exactly
// MaxFrames-10 frames: frame-rate modalities are sliced to
// [start, start+790) and the waveform to the hop-aligned sample range.
// The speaker id has no time axis and is never touched.
//
// A missing bundle file is fatal for this call; retry or skip policy
// belongs to the caller.
func (d *Dataset) Get(ctx context.Context, index int) (*bundle.FeatureBundle, error) {
	if index < 0 || index >= len(d.ids) {
		return nil, fmt.Errorf("%w: %d (length %d)", ErrIndexOutOfRange, index, len(d.ids))
	}
	b, err := d.store.Load(ctx, d.ids[index])
	if err != nil {
		return nil, err
	}

	specLen := b.Frames()
	if specLen <= MaxFrames {
		return b, nil
	}

	d.rngMu.Lock()
	start := d.rng.Intn(specLen - MaxFrames + 1)
	d.rngMu.Unlock()
	end := start + MaxFrames - cropMargin

	cropped := &bundle.FeatureBundle{
		Content: b.Content.CropTime(start, end),
		F0:      b.F0.CropTime(start, end),
		Spec:    b.Spec.CropTime(start, end),
		MelSpec: b.MelSpec.CropTime(start, end),
		Audio:   b.Audio.CropTime(start*d.hop, end*d.hop),
		Speaker: b.Speaker,
		UV:      b.UV.CropTime(start, end),
	}
	return cropped, nil
}
