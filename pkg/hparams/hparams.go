// Package hparams loads the training configuration consumed by the data
// pipeline. The on-disk format is the recipe's config.json; YAML is
// accepted as well for hand-written configs.
package hparams

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// Train holds optimization-loop settings. The data layer only consumes
// Seed and BatchSize; the rest is carried for the training loop and for
// checkpoint bookkeeping.
type Train struct {
	Seed         int64   `json:"seed" yaml:"seed"`
	Epochs       int     `json:"epochs" yaml:"epochs"`
	BatchSize    int     `json:"batch_size" yaml:"batch_size"`
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate"`
	LogInterval  int     `json:"log_interval" yaml:"log_interval"`
	EvalInterval int     `json:"eval_interval" yaml:"eval_interval"`
	KeepCkpts    int     `json:"keep_ckpts" yaml:"keep_ckpts"`
}

// Data holds corpus and signal-analysis settings.
type Data struct {
	// TrainingFiles is the manifest path: one utterance path per line.
	TrainingFiles string `json:"training_files" yaml:"training_files"`

	// ValidationFiles is the validation manifest path.
	ValidationFiles string `json:"validation_files" yaml:"validation_files"`

	SampleRate int `json:"sampling_rate" yaml:"sampling_rate"`

	// HopLength is the number of waveform samples per spectrogram frame.
	HopLength int `json:"hop_length" yaml:"hop_length"`

	FilterLength  int     `json:"filter_length" yaml:"filter_length"`
	WinLength     int     `json:"win_length" yaml:"win_length"`
	MelChannels   int     `json:"n_mel_channels" yaml:"n_mel_channels"`
	MelFmin       float64 `json:"mel_fmin" yaml:"mel_fmin"`
	MelFmax       float64 `json:"mel_fmax" yaml:"mel_fmax"`
}

// HParams is the full configuration record.
type HParams struct {
	Train Train `json:"train" yaml:"train"`
	Data  Data  `json:"data" yaml:"data"`

	// Speakers maps speaker names to their integer ids.
	Speakers map[string]int64 `json:"spk" yaml:"spk"`

	// ModelDir is the run directory for checkpoints and telemetry.
	// Set by InitRunDir, not part of the serialized config.
	ModelDir string `json:"-" yaml:"-"`
}

// Load reads a configuration file, decoding JSON or YAML by file
// extension (.json, .yaml, .yml).
func Load(path string) (*HParams, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("hparams: open %s: %w", path, err)
	}
	defer f.Close()
	h, err := decode(f, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("hparams: decode %s: %w", path, err)
	}
	return h, nil
}

func decode(r io.Reader, ext string) (*HParams, error) {
	var h HParams
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(r).Decode(&h); err != nil {
			return nil, err
		}
	case ".json", "":
		if err := json.NewDecoder(r).Decode(&h); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported config extension %q", ext)
	}
	if err := h.validate(); err != nil {
		return nil, err
	}
	return &h, nil
}

func (h *HParams) validate() error {
	if h.Data.HopLength <= 0 {
		return fmt.Errorf("data.hop_length must be positive, got %d", h.Data.HopLength)
	}
	if h.Data.SampleRate <= 0 {
		return fmt.Errorf("data.sampling_rate must be positive, got %d", h.Data.SampleRate)
	}
	return nil
}

// InitRunDir prepares a training run directory: it creates modelDir,
// copies the config file into it (as config.json or config.yaml,
// matching the source extension) so the run is self-describing, and
// returns the loaded configuration with ModelDir set. When init is
// false the previously copied config is loaded instead, resuming the
// run with the exact settings it started with.
func InitRunDir(configPath, modelDir string, init bool) (*HParams, error) {
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return nil, fmt.Errorf("hparams: mkdir %s: %w", modelDir, err)
	}
	saved := filepath.Join(modelDir, "config"+strings.ToLower(filepath.Ext(configPath)))
	if init {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("hparams: read %s: %w", configPath, err)
		}
		if err := os.WriteFile(saved, data, 0o644); err != nil {
			return nil, fmt.Errorf("hparams: write %s: %w", saved, err)
		}
	}
	h, err := Load(saved)
	if err != nil {
		return nil, err
	}
	h.ModelDir = modelDir
	return h, nil
}
