package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/34j/so-vits-svc-go/pkg/bundle"
	"github.com/34j/so-vits-svc-go/pkg/checkpoint"
	"github.com/34j/so-vits-svc-go/pkg/storage"
	"github.com/34j/so-vits-svc-go/pkg/tensor"
)

const testHop = 512

func writeConfig(t *testing.T, dir, manifest string) string {
	t.Helper()
	cfg := fmt.Sprintf(`{
  "train": {"seed": 1234, "batch_size": 4, "learning_rate": 0.0001, "keep_ckpts": 3},
  "data": {"training_files": %q, "sampling_rate": 44100, "hop_length": %d},
  "spk": {"speaker0": 0}
}`, manifest, testHop)
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeBundle(t *testing.T, dir, id string, frames int) {
	t.Helper()
	local, err := storage.NewLocal(dir)
	if err != nil {
		t.Fatal(err)
	}
	b := &bundle.FeatureBundle{
		Content: tensor.New(4, frames),
		F0:      tensor.New(frames),
		Spec:    tensor.New(6, frames),
		MelSpec: tensor.New(8, frames),
		Audio:   tensor.New(1, frames*testHop),
		Speaker: 0,
		UV:      tensor.New(frames),
	}
	if err := bundle.NewFileStore(local).Save(context.Background(), id, b); err != nil {
		t.Fatal(err)
	}
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestDatasetVerify(t *testing.T) {
	dir := t.TempDir()
	writeBundle(t, dir, "speaker0/a", 20)
	writeBundle(t, dir, "speaker0/b", 900)
	manifest := filepath.Join(dir, "train.txt")
	if err := os.WriteFile(manifest, []byte("speaker0/a\nspeaker0/b\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := writeConfig(t, dir, manifest)

	if err := run(t, "dataset", "verify", "-c", cfg, "--data-dir", dir); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestDatasetVerifyReportsMissing(t *testing.T) {
	dir := t.TempDir()
	writeBundle(t, dir, "speaker0/a", 20)
	manifest := filepath.Join(dir, "train.txt")
	if err := os.WriteFile(manifest, []byte("speaker0/a\nspeaker0/gone\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := writeConfig(t, dir, manifest)

	err := run(t, "dataset", "verify", "-c", cfg, "--data-dir", dir)
	if err == nil || !strings.Contains(err.Error(), "1 of 2") {
		t.Fatalf("err = %v, want one failing bundle", err)
	}
}

func TestDatasetStats(t *testing.T) {
	dir := t.TempDir()
	writeBundle(t, dir, "speaker0/a", 150)
	writeBundle(t, dir, "speaker0/b", 900)
	manifest := filepath.Join(dir, "train.txt")
	if err := os.WriteFile(manifest, []byte("speaker0/a\nspeaker0/b\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := writeConfig(t, dir, manifest)

	if err := run(t, "dataset", "stats", "-c", cfg, "--data-dir", dir); err != nil {
		t.Fatalf("stats: %v", err)
	}
}

func TestCheckpointShow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "G_800"+checkpoint.Ext)
	state := &checkpoint.State{
		Model:        map[string]tensor.Tensor{"w": tensor.New(2, 3)},
		LearningRate: 1e-4,
		Iteration:    800,
	}
	if err := checkpoint.Save(path, state); err != nil {
		t.Fatal(err)
	}

	if err := run(t, "checkpoint", "show", path, "-o", "json"); err != nil {
		t.Fatalf("show: %v", err)
	}
}

func TestCheckpointLatestAndClean(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"G_0", "G_400", "G_800"} {
		path := filepath.Join(dir, name+checkpoint.Ext)
		if err := checkpoint.Save(path, &checkpoint.State{Iteration: 1}); err != nil {
			t.Fatal(err)
		}
	}

	if err := run(t, "checkpoint", "latest", "--dir", dir, "--role", "G"); err != nil {
		t.Fatalf("latest: %v", err)
	}
	if err := run(t, "checkpoint", "clean", "--dir", dir, "--keep", "1", "--by-number"); err != nil {
		t.Fatalf("clean: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "G_0"+checkpoint.Ext)); err != nil {
		t.Error("init checkpoint must survive clean")
	}
	if _, err := os.Stat(filepath.Join(dir, "G_400"+checkpoint.Ext)); !os.IsNotExist(err) {
		t.Error("G_400 should have been cleaned")
	}
}

func TestManifestIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.txt")
	if err := os.WriteFile(path, []byte("a\n\n  b  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ids, err := manifestIDs(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("ids = %v", ids)
	}
}
