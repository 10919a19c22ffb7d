package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// apiError implements smithy.APIError for test assertions.
type apiError struct {
	code string
	msg  string
}

func (e *apiError) Error() string                 { return e.msg }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.msg }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

var (
	errNoSuchKey = &apiError{code: "NoSuchKey", msg: "no such key"}
	errNotFound  = &apiError{code: "NotFound", msg: "not found"}
)

// mockS3 is a thread-safe in-memory S3 backend with error-injection
// hooks.
type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte

	getErr    error
	putErr    error
	deleteErr error
	headErr   error
}

func newMockS3() *mockS3 {
	return &mockS3{objects: make(map[string][]byte)}
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*in.Key]
	if !ok {
		return nil, errNoSuchKey
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if m.headErr != nil {
		return nil, m.headErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[*in.Key]; !ok {
		return nil, errNotFound
	}
	return &s3.HeadObjectOutput{}, nil
}

func newTestS3(t *testing.T) (*S3Store, *mockS3) {
	t.Helper()
	mock := newMockS3()
	return NewS3(mock, "corpus-bucket", ""), mock
}

func TestS3WriteAndRead(t *testing.T) {
	store, _ := newTestS3(t)
	ctx := context.Background()

	const data = "bundle bytes"
	w, err := store.Write(ctx, "speaker0/utt1.data.mp")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(w, data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := store.Read(ctx, "speaker0/utt1.data.mp")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != data {
		t.Fatalf("got %q, want %q", got, data)
	}
}

func TestS3ReadNotExist(t *testing.T) {
	store, _ := newTestS3(t)
	_, err := store.Read(context.Background(), "missing")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}

func TestS3ReadOtherError(t *testing.T) {
	mock := newMockS3()
	mock.getErr = errors.New("network timeout")
	store := NewS3(mock, "bucket", "runs")

	_, err := store.Read(context.Background(), "x")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, os.ErrNotExist) {
		t.Fatal("generic errors must not map to ErrNotExist")
	}
}

func TestS3Exists(t *testing.T) {
	store, mock := newTestS3(t)
	ctx := context.Background()

	ok, err := store.Exists(ctx, "missing")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected false for missing key")
	}

	mock.mu.Lock()
	mock.objects["events/run1.tlog"] = []byte("data")
	mock.mu.Unlock()

	ok, err = store.Exists(ctx, "events/run1.tlog")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected true for existing key")
	}
}

func TestS3ExistsOtherError(t *testing.T) {
	mock := newMockS3()
	mock.headErr = errors.New("network failure")
	store := NewS3(mock, "bucket", "")
	if _, err := store.Exists(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestS3DeleteIdempotent(t *testing.T) {
	store, mock := newTestS3(t)
	ctx := context.Background()

	if err := store.Delete(ctx, "ghost"); err != nil {
		t.Fatalf("delete of missing key must be a no-op (S3 semantics), got %v", err)
	}

	mock.mu.Lock()
	mock.objects["tmp"] = []byte("x")
	mock.mu.Unlock()

	if err := store.Delete(ctx, "tmp"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := store.Exists(ctx, "tmp"); ok {
		t.Fatal("key should be gone after delete")
	}
}

func TestS3DeleteError(t *testing.T) {
	mock := newMockS3()
	mock.deleteErr = errors.New("access denied")
	store := NewS3(mock, "bucket", "")
	if err := store.Delete(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestS3WriteUploadError(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("upload failed")
	store := NewS3(mock, "bucket", "")

	w, err := store.Write(context.Background(), "obj")
	if err != nil {
		t.Fatal(err)
	}
	// The pipe may or may not accept data before the upload goroutine
	// fails; only Close's error is contractual.
	io.WriteString(w, "data")
	if err := w.Close(); err == nil {
		t.Fatal("Close must surface the upload error")
	}
}

func TestS3KeyPrefix(t *testing.T) {
	mock := newMockS3()
	store := NewS3(mock, "bucket", "runs/44k")

	w, err := store.Write(context.Background(), "events/run1.tlog")
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(w, "content")
	w.Close()

	mock.mu.Lock()
	_, ok := mock.objects["runs/44k/events/run1.tlog"]
	mock.mu.Unlock()
	if !ok {
		t.Fatal("expected object under the prefixed key")
	}

	if got := NewS3(mock, "bucket", "").key("a/b"); got != "a/b" {
		t.Fatalf("unprefixed key = %q, want %q", got, "a/b")
	}
}

func TestS3WriteTruncates(t *testing.T) {
	store, _ := newTestS3(t)
	ctx := context.Background()

	for _, content := range []string{"first, longer log", "second"} {
		w, err := store.Write(ctx, "f")
		if err != nil {
			t.Fatal(err)
		}
		io.WriteString(w, content)
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
	}

	r, err := store.Read(ctx, "f")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Fatalf("got %q, want %q", got, "second")
	}
}

func TestIsS3NotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"NoSuchKey", errNoSuchKey, true},
		{"NotFound", errNotFound, true},
		{"other api error", &apiError{code: "AccessDenied", msg: "denied"}, false},
		{"plain error", errors.New("timeout"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isS3NotFound(tt.err); got != tt.want {
				t.Fatalf("isS3NotFound(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
