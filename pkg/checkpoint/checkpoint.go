// Package checkpoint manages training state on disk: atomic saves,
// shape-checked partial loads, retention of recent checkpoints and
// lookup of the latest one.
//
// A checkpoint is a msgpack file with four top-level keys: model
// (parameter tensors by name), optimizer (optimizer state tensors by
// name), learning_rate and iteration. File names follow the
// {role}_{iteration}{Ext} convention, e.g. G_12000.ckpt for the
// generator and D_12000.ckpt for the discriminator.
package checkpoint

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/34j/so-vits-svc-go/pkg/tensor"
)

// Ext is the checkpoint file extension.
const Ext = ".ckpt"

// ErrNotFound is returned when a checkpoint file does not exist.
var ErrNotFound = errors.New("checkpoint: not found")

// State is the full serialized training state.
type State struct {
	// Model maps parameter names to their tensors.
	Model map[string]tensor.Tensor `msgpack:"model"`

	// Optimizer maps optimizer state entries to their tensors. May be
	// empty when the optimizer state is not persisted.
	Optimizer map[string]tensor.Tensor `msgpack:"optimizer"`

	// LearningRate is the learning rate at save time.
	LearningRate float64 `msgpack:"learning_rate"`

	// Iteration is the global training step at save time.
	Iteration int64 `msgpack:"iteration"`
}

// Save writes the state to path atomically: the full encoding goes to a
// temporary file in the same directory, which is renamed over the target
// only after a successful write. A crash mid-save never leaves a partial
// checkpoint behind.
func Save(path string, s *State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("checkpoint: mkdir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("checkpoint: create %s: %w", tmp, err)
	}
	if err := msgpack.NewEncoder(f).Encode(s); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("checkpoint: encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("checkpoint: close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("checkpoint: rename %s: %w", path, err)
	}
	return nil
}

// Load reads and decodes the checkpoint at path.
// Returns an error wrapping ErrNotFound if the file does not exist.
func Load(path string) (*State, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("checkpoint: open %s: %w", path, err)
	}
	defer f.Close()
	var s State
	if err := msgpack.NewDecoder(f).Decode(&s); err != nil {
		return nil, fmt.Errorf("checkpoint: decode %s: %w", path, err)
	}
	return &s, nil
}

// KeyStatus describes what happened to one model parameter during a
// partial load.
type KeyStatus int

const (
	// Loaded means the checkpoint value replaced the live value.
	Loaded KeyStatus = iota

	// ShapeMismatch means the stored shape disagreed with the live
	// parameter; the live value was kept.
	ShapeMismatch

	// MissingInCheckpoint means the checkpoint has no entry for the
	// parameter; the live value was kept.
	MissingInCheckpoint
)

// String returns the status name for logs and reports.
func (s KeyStatus) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case ShapeMismatch:
		return "shape_mismatch"
	case MissingInCheckpoint:
		return "missing_in_checkpoint"
	default:
		return fmt.Sprintf("KeyStatus(%d)", int(s))
	}
}

// Report aggregates the per-parameter outcome of LoadInto.
type Report struct {
	// Keys maps each live parameter name to its load outcome.
	Keys map[string]KeyStatus
}

// Clean reports whether every parameter was loaded from the checkpoint.
func (r Report) Clean() bool {
	for _, st := range r.Keys {
		if st != Loaded {
			return false
		}
	}
	return true
}

// Skipped returns the names of parameters that kept their live value,
// sorted order not guaranteed.
func (r Report) Skipped() []string {
	var out []string
	for k, st := range r.Keys {
		if st != Loaded {
			out = append(out, k)
		}
	}
	return out
}

// LoadInto copies checkpoint parameters into the live model map,
// parameter by parameter. A parameter whose stored shape differs from
// the live shape, or which is absent from the checkpoint, keeps its live
// (initialized) value; the condition is logged at warning level and
// recorded in the report instead of aborting the load. Partial
// compatibility across architecture revisions is an expected operating
// scenario, so this is the one place with built-in local recovery.
func LoadInto(s *State, model map[string]tensor.Tensor) Report {
	report := Report{Keys: make(map[string]KeyStatus, len(model))}
	for name, live := range model {
		stored, ok := s.Model[name]
		if !ok {
			slog.Warn("checkpoint: parameter missing, keeping initialized value",
				"key", name, "shape", live.Shape)
			report.Keys[name] = MissingInCheckpoint
			continue
		}
		if !shapesEqual(stored.Shape, live.Shape) {
			slog.Warn("checkpoint: parameter shape mismatch, keeping initialized value",
				"key", name, "stored_shape", stored.Shape, "live_shape", live.Shape)
			report.Keys[name] = ShapeMismatch
			continue
		}
		model[name] = stored.Clone()
		report.Keys[name] = Loaded
	}
	return report
}

func shapesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i, d := range a {
		if b[i] != d {
			return false
		}
	}
	return true
}
