package checkpoint

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// fileRe matches {role}_{number}{Ext} file names, capturing role and number.
var fileRe = regexp.MustCompile(`^([A-Za-z]+)_(\d+)\` + Ext + `$`)

// ckptFile is one on-disk checkpoint discovered by scanning a directory.
type ckptFile struct {
	path   string
	role   string
	number int64
	mtime  int64
}

// scan lists checkpoint files in dir.
func scan(dir string) ([]ckptFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read dir %s: %w", dir, err)
	}
	var out []ckptFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := fileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		out = append(out, ckptFile{
			path:   filepath.Join(dir, e.Name()),
			role:   m[1],
			number: n,
			mtime:  info.ModTime().UnixNano(),
		})
	}
	return out, nil
}

// Clean deletes old checkpoints in dir, keeping the `keep` most recent
// per role. Recency is by embedded number when byNumber is true,
// otherwise by file modification time. Checkpoints numbered 0 are always
// kept. Returns the deleted paths.
func Clean(dir string, keep int, byNumber bool) ([]string, error) {
	files, err := scan(dir)
	if err != nil {
		return nil, err
	}

	byRole := make(map[string][]ckptFile)
	for _, f := range files {
		// Number 0 marks a pretrained init checkpoint; never delete it.
		if f.number == 0 {
			continue
		}
		byRole[f.role] = append(byRole[f.role], f)
	}

	var deleted []string
	for _, group := range byRole {
		sort.Slice(group, func(i, j int) bool {
			if byNumber {
				return group[i].number < group[j].number
			}
			return group[i].mtime < group[j].mtime
		})
		if len(group) <= keep {
			continue
		}
		for _, f := range group[:len(group)-keep] {
			if err := os.Remove(f.path); err != nil {
				return deleted, fmt.Errorf("checkpoint: remove %s: %w", f.path, err)
			}
			slog.Info("checkpoint: removed old checkpoint", "path", f.path)
			deleted = append(deleted, f.path)
		}
	}
	return deleted, nil
}

// LatestPath returns the path of the highest-numbered checkpoint for the
// given role in dir (the number-0 init counts when nothing newer exists).
// Returns an error wrapping ErrNotFound when the role has no checkpoints.
func LatestPath(dir, role string) (string, error) {
	files, err := scan(dir)
	if err != nil {
		return "", err
	}
	best := ckptFile{number: -1}
	for _, f := range files {
		if f.role == role && f.number > best.number {
			best = f
		}
	}
	if best.number < 0 {
		return "", fmt.Errorf("%w: no %s_*%s in %s", ErrNotFound, role, Ext, dir)
	}
	return best.path, nil
}
