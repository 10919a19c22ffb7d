package bundle_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/34j/so-vits-svc-go/pkg/bundle"
	"github.com/34j/so-vits-svc-go/pkg/storage"
	"github.com/34j/so-vits-svc-go/pkg/tensor"
)

const hop = 512

func testBundle(frames int) *bundle.FeatureBundle {
	b := &bundle.FeatureBundle{
		Content: tensor.New(256, frames),
		F0:      tensor.New(frames),
		Spec:    tensor.New(513, frames),
		MelSpec: tensor.New(80, frames),
		Audio:   tensor.New(1, frames*hop),
		Speaker: 2,
		UV:      tensor.New(frames),
	}
	for i := range b.F0.Data {
		b.F0.Data[i] = 100 + float32(i)
	}
	b.MelSpec.Set(-3.5, 7, 1)
	return b
}

func TestValidate(t *testing.T) {
	b := testBundle(12)
	if err := b.Validate(hop); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	// Truncated audio within one hop is allowed.
	b.Audio = tensor.New(1, 12*hop-hop/2)
	if err := b.Validate(hop); err != nil {
		t.Fatalf("Validate with truncated audio: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*bundle.FeatureBundle)
	}{
		{"f0 misaligned", func(b *bundle.FeatureBundle) { b.F0 = tensor.New(11) }},
		{"uv misaligned", func(b *bundle.FeatureBundle) { b.UV = tensor.New(13) }},
		{"content misaligned", func(b *bundle.FeatureBundle) { b.Content = tensor.New(256, 24) }},
		{"audio too long", func(b *bundle.FeatureBundle) { b.Audio = tensor.New(1, 13*hop) }},
		{"audio too short", func(b *bundle.FeatureBundle) { b.Audio = tensor.New(1, 10*hop) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testBundle(12)
			tt.mutate(b)
			if err := b.Validate(hop); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestFrames(t *testing.T) {
	if got := testBundle(34).Frames(); got != 34 {
		t.Fatalf("Frames = %d, want 34", got)
	}
}

func newFileStore(t *testing.T) *bundle.FileStore {
	t.Helper()
	files, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return bundle.NewFileStore(files)
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newFileStore(t)

	want := testBundle(9)
	if err := s.Save(ctx, "spk0/utt1.wav", want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	ok, err := s.Exists(ctx, "spk0/utt1.wav")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v; want true", ok, err)
	}

	got, err := s.Load(ctx, "spk0/utt1.wav")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertBundleEqual(t, got, want)
}

func TestFileStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := newFileStore(t)
	_, err := s.Load(ctx, "missing.wav")
	if !errors.Is(err, bundle.ErrNotFound) {
		t.Fatalf("Load = %v, want ErrNotFound", err)
	}
	if !strings.Contains(err.Error(), "missing.wav") {
		t.Fatalf("error should name the utterance: %v", err)
	}
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := bundle.NewBadgerStore(bundle.BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	if _, err := s.Load(ctx, "nope"); !errors.Is(err, bundle.ErrNotFound) {
		t.Fatalf("Load missing = %v, want ErrNotFound", err)
	}

	want := testBundle(21)
	if err := s.Save(ctx, "utt", want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	ok, err := s.Exists(ctx, "utt")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v; want true", ok, err)
	}
	got, err := s.Load(ctx, "utt")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertBundleEqual(t, got, want)
}

func assertBundleEqual(t *testing.T, got, want *bundle.FeatureBundle) {
	t.Helper()
	for _, m := range []struct {
		name string
		a, b tensor.Tensor
	}{
		{"content", got.Content, want.Content},
		{"f0", got.F0, want.F0},
		{"spec", got.Spec, want.Spec},
		{"mel_spec", got.MelSpec, want.MelSpec},
		{"audio", got.Audio, want.Audio},
		{"uv", got.UV, want.UV},
	} {
		if !m.a.Equal(m.b) {
			t.Errorf("%s did not round-trip", m.name)
		}
	}
	if got.Speaker != want.Speaker {
		t.Errorf("speaker = %d, want %d", got.Speaker, want.Speaker)
	}
}
