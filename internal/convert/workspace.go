package convert

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// workspace はジョブ1件分の一時ディレクトリです。入力と出力を1つずつ置きます。
type workspace struct {
	jobID      string
	dir        string
	inputPath  string
	outputPath string
}

func (w *workspace) release() error {
	if w == nil || w.dir == "" {
		return nil
	}
	return os.RemoveAll(w.dir)
}

// workspaces は作業ディレクトリのルートを管理します。
// 優先ルートが使えない場合はジョブごとに一度だけ退避先を試します。
type workspaces struct {
	primary  string
	fallback string
	logger   zerolog.Logger
	now      func() time.Time
}

func (w *workspaces) acquire(jobID string) (*workspace, error) {
	ws, err := w.acquireIn(w.primary, jobID)
	if err == nil {
		return ws, nil
	}
	if w.fallback == "" || filepath.Clean(w.fallback) == filepath.Clean(w.primary) {
		return nil, newError(CodeWorkspaceUnavailable, "Temporary storage is unavailable.", err)
	}

	w.logger.Warn().Err(err).
		Str("job_id", jobID).
		Str("dir", w.primary).
		Str("fallback", w.fallback).
		Msg("workspace root unusable, falling back")

	ws, fallbackErr := w.acquireIn(w.fallback, jobID)
	if fallbackErr != nil {
		return nil, newError(CodeWorkspaceUnavailable, "Temporary storage is unavailable.", fallbackErr)
	}
	return ws, nil
}

func (w *workspaces) acquireIn(root, jobID string) (*workspace, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("workspace root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}
	if err := checkWritable(root); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(root, "job-"+dirSafe(jobID)+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create job directory: %w", err)
	}

	token := strconv.FormatInt(w.now().UnixNano(), 10)
	return &workspace{
		jobID:      jobID,
		dir:        dir,
		inputPath:  filepath.Join(dir, "input-"+token+sourceExt),
		outputPath: filepath.Join(dir, "output-"+token+targetExt),
	}, nil
}

func checkWritable(root string) error {
	f, err := os.CreateTemp(root, ".write-check-")
	if err != nil {
		return fmt.Errorf("workspace root is not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func dirSafe(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "anon"
	}
	return b.String()
}
