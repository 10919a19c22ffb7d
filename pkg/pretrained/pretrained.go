// Package pretrained provisions pretrained model assets (init
// checkpoints and the content-encoder weights) before training starts.
//
// Provisioning is an explicit step with an inspectable per-asset result,
// not a lazy download hidden inside model construction: callers run
// [Ensure] once, check the results, and only then build the components
// that need the files.
package pretrained

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// ErrExists is returned by Download when the destination file is already
// present.
var ErrExists = errors.New("pretrained: file already exists")

// downloadSuffix marks in-flight downloads; a crash leaves the suffix in
// place so a partial file is never mistaken for a complete asset.
const downloadSuffix = ".download"

// Progress receives byte counts while a download runs. Total is 0 when
// the server does not report a content length.
type Progress func(written, total int64)

// Download fetches url into path. The body streams to path+".download"
// and is renamed onto path only after the full body arrived. Download
// refuses to overwrite an existing destination with ErrExists.
func Download(ctx context.Context, url, path string, progress Progress) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("pretrained: mkdir: %w", err)
	}
	tmp := path + downloadSuffix
	os.Remove(tmp)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("pretrained: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("pretrained: get %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pretrained: get %s: unexpected status %s", url, resp.Status)
	}

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("pretrained: create %s: %w", tmp, err)
	}
	written, err := copyWithProgress(f, resp.Body, resp.ContentLength, progress)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("pretrained: download %s: %w", url, err)
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		os.Remove(tmp)
		return fmt.Errorf("pretrained: download %s: got %d bytes, want %d", url, written, resp.ContentLength)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("pretrained: rename: %w", err)
	}
	return nil
}

func copyWithProgress(dst io.Writer, src io.Reader, total int64, progress Progress) (int64, error) {
	if progress == nil {
		return io.Copy(dst, src)
	}
	var written int64
	buf := make([]byte, 32*1024)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)
			progress(written, total)
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

// Asset is one downloadable pretrained file.
type Asset struct {
	// URL is the download source.
	URL string

	// Path is the local destination.
	Path string
}

// Status is the outcome of provisioning one asset.
type Status int

const (
	// AlreadyPresent means the destination existed; nothing was fetched.
	AlreadyPresent Status = iota

	// Downloaded means the asset was fetched successfully.
	Downloaded

	// DownloadFailed means the fetch failed; Result.Err holds the cause.
	DownloadFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case AlreadyPresent:
		return "already_present"
	case Downloaded:
		return "downloaded"
	case DownloadFailed:
		return "download_failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result is the outcome of provisioning one asset.
type Result struct {
	Asset  Asset
	Status Status
	Err    error
}

// Ensure provisions every asset that is not already present. It keeps
// going after individual failures so one unreachable mirror does not
// block the remaining assets; inspect the results for DownloadFailed
// entries.
func Ensure(ctx context.Context, assets []Asset, progress Progress) []Result {
	results := make([]Result, 0, len(assets))
	for _, a := range assets {
		if _, err := os.Stat(a.Path); err == nil {
			results = append(results, Result{Asset: a, Status: AlreadyPresent})
			continue
		}
		if err := Download(ctx, a.URL, a.Path, progress); err != nil {
			results = append(results, Result{Asset: a, Status: DownloadFailed, Err: err})
			continue
		}
		results = append(results, Result{Asset: a, Status: Downloaded})
	}
	return results
}

// InitCheckpoints returns the generator/discriminator init checkpoint
// assets for a run directory.
func InitCheckpoints(dir string) []Asset {
	const base = "https://huggingface.co/therealvul/so-vits-svc-4.0-init/resolve/main/"
	return []Asset{
		{URL: base + "G_0.pth", Path: filepath.Join(dir, "G_0.pth")},
		{URL: base + "D_0.pth", Path: filepath.Join(dir, "D_0.pth")},
	}
}

// ContentEncoder returns the pretrained content-encoder weights asset.
func ContentEncoder(dir string) Asset {
	const url = "https://huggingface.co/therealvul/so-vits-svc-4.0-init/resolve/main/checkpoint_best_legacy_500.pt"
	return Asset{URL: url, Path: filepath.Join(dir, "checkpoint_best_legacy_500.pt")}
}
