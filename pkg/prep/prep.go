// Package prep turns a directory of raw speaker recordings into the
// feature bundles the training dataset consumes.
//
// The corpus layout follows the usual convention: one subdirectory per
// speaker, WAV files inside. Each file is decoded, resampled for the
// content encoder, run through the pluggable encoders and written as a
// single bundle keyed by its relative path. Files whose bundle already
// exists are skipped, so an interrupted run resumes where it stopped.
package prep

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/34j/so-vits-svc-go/pkg/bundle"
	"github.com/34j/so-vits-svc-go/pkg/tensor"
)

// ContentEncoder produces the content embedding for a waveform. The
// input is mono audio at [EncoderSampleRate]; the output is a
// [featureDim, frames] matrix at the encoder's own frame rate.
//
// The reference model behind this interface is an external pretrained
// network (see the pretrained package for its weights), so prep does
// not ship an implementation.
type ContentEncoder interface {
	Encode(ctx context.Context, wav16k []float32) (tensor.Tensor, error)
}

// PitchEncoder estimates per-frame fundamental frequency. The returned
// f0 holds interpolated pitch values and uv flags voiced frames with 1,
// unvoiced with 0; both are length-frames vectors on the hop grid of
// the given sample rate.
type PitchEncoder interface {
	Pitch(ctx context.Context, wav []float32, sampleRate, hopLength int) (f0, uv tensor.Tensor, err error)
}

// SpectrogramEncoder computes the linear and mel spectrograms of a
// waveform at the corpus sample rate. Both outputs share the frame
// axis: spec is [bins, frames], mel is [melChannels, frames].
type SpectrogramEncoder interface {
	Spectrograms(ctx context.Context, wav []float32) (spec, mel tensor.Tensor, err error)
}

// Config carries everything Run needs besides the corpus root.
type Config struct {
	// Store receives the finished bundles.
	Store bundle.Store

	// Content, Pitch and Spec are the feature extractors. All three are
	// required.
	Content ContentEncoder
	Pitch   PitchEncoder
	Spec    SpectrogramEncoder

	// Speakers maps a speaker directory name to its integer id.
	// Directories without an entry are skipped with a warning.
	Speakers map[string]int64

	// SampleRate is the corpus rate. Files at a different native rate
	// are resampled before feature extraction.
	SampleRate int

	// HopLength is the frame hop in samples at SampleRate.
	HopLength int

	// Workers bounds the parallel extraction goroutines. Zero means
	// [runtime.NumCPU].
	Workers int

	// Logger receives per-file progress. Nil means [slog.Default].
	Logger *slog.Logger
}

func (c *Config) validate() error {
	if c.Store == nil {
		return errors.New("prep: Config.Store is required")
	}
	if c.Content == nil || c.Pitch == nil || c.Spec == nil {
		return errors.New("prep: all three encoders are required")
	}
	if c.SampleRate <= 0 || c.HopLength <= 0 {
		return fmt.Errorf("prep: bad sample rate %d / hop length %d", c.SampleRate, c.HopLength)
	}
	return nil
}

// Run walks root for WAV files and writes one feature bundle per file.
// Files fan out to a worker pool; the walk order is shuffled so long
// files spread across workers instead of clustering by speaker. Already
// stored bundles are skipped. Run stops at the first error, after
// in-flight files finish.
func Run(ctx context.Context, root string, cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	files, err := listWAVs(root)
	if err != nil {
		return err
	}
	rand.Shuffle(len(files), func(i, j int) {
		files[i], files[j] = files[j], files[i]
	})

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(files) {
		workers = len(files)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan string)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				if err := prepareFile(ctx, root, path, cfg, log); err != nil {
					fail(err)
					return
				}
			}
		}()
	}

	for _, path := range files {
		select {
		case jobs <- path:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// listWAVs returns the .wav files under root, as paths relative to it.
func listWAVs(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".wav") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("prep: walk %s: %w", root, err)
	}
	return files, nil
}

// bundleID is the store key for a corpus file: the relative path with
// the .wav extension dropped and forward slashes regardless of OS.
func bundleID(rel string) string {
	return filepath.ToSlash(strings.TrimSuffix(rel, filepath.Ext(rel)))
}

func prepareFile(ctx context.Context, root, rel string, cfg Config, log *slog.Logger) error {
	speaker := filepath.ToSlash(rel)
	if i := strings.IndexByte(speaker, '/'); i >= 0 {
		speaker = speaker[:i]
	}
	spk, ok := cfg.Speakers[speaker]
	if !ok {
		log.Warn("skipping file of unknown speaker", "file", rel, "speaker", speaker)
		return nil
	}

	id := bundleID(rel)
	switch ok, err := cfg.Store.Exists(ctx, id); {
	case err != nil:
		return fmt.Errorf("prep: check %s: %w", id, err)
	case ok:
		log.Debug("bundle exists, skipping", "id", id)
		return nil
	}

	clip, err := ReadWAVFile(filepath.Join(root, rel))
	if err != nil {
		return fmt.Errorf("prep: %s: %w", rel, err)
	}
	clip, err = ResampleTo(clip, cfg.SampleRate)
	if err != nil {
		return fmt.Errorf("prep: %s: %w", rel, err)
	}
	enc, err := ResampleTo(clip, EncoderSampleRate)
	if err != nil {
		return fmt.Errorf("prep: %s: %w", rel, err)
	}

	spec, mel, err := cfg.Spec.Spectrograms(ctx, clip.Samples)
	if err != nil {
		return fmt.Errorf("prep: %s: spectrograms: %w", rel, err)
	}
	f0, uv, err := cfg.Pitch.Pitch(ctx, clip.Samples, cfg.SampleRate, cfg.HopLength)
	if err != nil {
		return fmt.Errorf("prep: %s: pitch: %w", rel, err)
	}
	content, err := cfg.Content.Encode(ctx, enc.Samples)
	if err != nil {
		return fmt.Errorf("prep: %s: content: %w", rel, err)
	}
	content = AlignFrames(content, mel.Frames())

	audio := tensor.New(1, len(clip.Samples))
	copy(audio.Data, clip.Samples)

	b := &bundle.FeatureBundle{
		Content: content,
		F0:      f0,
		Spec:    spec,
		MelSpec: mel,
		Audio:   audio,
		Speaker: spk,
		UV:      uv,
	}
	if err := b.Validate(cfg.HopLength); err != nil {
		return fmt.Errorf("prep: %s: %w", rel, err)
	}
	if err := cfg.Store.Save(ctx, id, b); err != nil {
		return fmt.Errorf("prep: save %s: %w", id, err)
	}
	log.Info("prepared", "id", id, "frames", mel.Frames())
	return nil
}
