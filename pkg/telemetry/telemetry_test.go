package telemetry_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/34j/so-vits-svc-go/pkg/storage"
	"github.com/34j/so-vits-svc-go/pkg/telemetry"
	"github.com/34j/so-vits-svc-go/pkg/tensor"
)

func testSummary(loss float64) telemetry.Summary {
	return telemetry.Summary{
		Scalars:    map[string]float64{"loss/g/total": loss},
		Histograms: map[string][]float64{"grad/norm": {0.1, 0.2, 0.3}},
		Audios: map[string]telemetry.AudioClip{
			"gen/audio": {Samples: []float32{0, 0.5, -0.5}, SampleRate: 44100},
		},
	}
}

func TestEventLogRoundTrip(t *testing.T) {
	ctx := context.Background()
	files, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	log, err := telemetry.NewEventLog(ctx, files, "")
	if err != nil {
		t.Fatal(err)
	}
	if log.RunID() == "" {
		t.Fatal("expected generated run id")
	}

	for step := int64(0); step < 3; step++ {
		if err := log.Write(ctx, step*200, testSummary(float64(step))); err != nil {
			t.Fatalf("Write step %d: %v", step, err)
		}
	}
	if err := log.Close(); err != nil {
		t.Fatal(err)
	}

	recs, err := telemetry.ReadLog(ctx, files, log.RunID())
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	if recs[1].Step != 200 || recs[1].Summary.Scalars["loss/g/total"] != 1 {
		t.Fatalf("record 1 = %+v", recs[1])
	}
	if recs[2].Summary.Audios["gen/audio"].SampleRate != 44100 {
		t.Fatal("audio clip sample rate lost")
	}
}

func TestEventLogWriteAfterClose(t *testing.T) {
	ctx := context.Background()
	files, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	log, err := telemetry.NewEventLog(ctx, files, "run1")
	if err != nil {
		t.Fatal(err)
	}
	log.Close()
	if err := log.Write(ctx, 0, telemetry.Summary{}); err == nil {
		t.Fatal("expected error writing to closed log")
	} else if !strings.Contains(err.Error(), "closed") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWebSocketSinkBroadcast(t *testing.T) {
	sink := telemetry.NewWebSocketSink()
	t.Cleanup(func() { sink.Close() })

	srv := httptest.NewServer(sink)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(5 * time.Second)
	for sink.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	ctx := context.Background()
	if err := sink.Write(ctx, 400, testSummary(0.25)); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var rec telemetry.Record
	if err := msgpack.Unmarshal(msg, &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Step != 400 || rec.Summary.Scalars["loss/g/total"] != 0.25 {
		t.Fatalf("record = %+v", rec)
	}
}

func TestSpectrogramImage(t *testing.T) {
	mel := tensor.New(4, 6)
	mel.Set(1, 0, 0)  // hottest cell, bin 0 → bottom row
	mel.Set(-1, 3, 5) // coldest cell, top bin → top row

	img := telemetry.SpectrogramImage(mel)
	if img.Width != 6 || img.Height != 4 {
		t.Fatalf("image %dx%d, want 6x4", img.Width, img.Height)
	}
	if len(img.Pix) != 6*4*3 {
		t.Fatalf("pix len = %d", len(img.Pix))
	}

	// Bottom-left pixel (bin 0, frame 0) is the maximum: red+green high.
	bottomLeft := ((img.Height-1)*img.Width + 0) * 3
	if img.Pix[bottomLeft] != 0xff || img.Pix[bottomLeft+1] != 0xff {
		t.Errorf("max cell color = %v, want bright", img.Pix[bottomLeft:bottomLeft+3])
	}
	// Top-right pixel is the minimum: red channel dark.
	topRight := (0*img.Width + 5) * 3
	if img.Pix[topRight] != 0 {
		t.Errorf("min cell red = %d, want 0", img.Pix[topRight])
	}
}

func TestCurveImage(t *testing.T) {
	f0 := make([]float32, 100)
	pred := make([]float32, 100)
	for i := range f0 {
		f0[i] = float32(100 + i)
		pred[i] = float32(120 + i)
	}
	img := telemetry.CurveImage(f0, pred)
	if img.Width != 1000 || img.Height != 200 {
		t.Fatalf("image %dx%d, want 1000x200", img.Width, img.Height)
	}
	// Something must be drawn: not every pixel can still be white.
	allWhite := true
	for _, p := range img.Pix {
		if p != 0xff {
			allWhite = false
			break
		}
	}
	if allWhite {
		t.Fatal("curve image is blank")
	}
}

func TestMultiSink(t *testing.T) {
	ctx := context.Background()
	files, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	a, err := telemetry.NewEventLog(ctx, files, "a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := telemetry.NewEventLog(ctx, files, "b")
	if err != nil {
		t.Fatal(err)
	}

	multi := telemetry.MultiSink{a, b}
	if err := multi.Write(ctx, 1, testSummary(1)); err != nil {
		t.Fatal(err)
	}
	if err := multi.Close(); err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"a", "b"} {
		recs, err := telemetry.ReadLog(ctx, files, id)
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != 1 {
			t.Fatalf("run %s has %d records, want 1", id, len(recs))
		}
	}
}
