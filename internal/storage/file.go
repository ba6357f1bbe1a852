package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	logx "threadsched/pkg/logx"
)

const pinExt = ".pin"

// fileStore keeps one file per task: <dir>/<task>.pin holding the message id.
// Tasks never share a file, so no lock is needed across tasks.
type fileStore struct {
	log logx.Logger
	dir string
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	log.Debug("pin ledger opened", logx.String("dir", dir))
	return &fileStore{log: log, dir: dir}, nil
}

func (s *fileStore) path(task string) string {
	return filepath.Join(s.dir, FileName(task))
}

func (s *fileStore) LoadPin(ctx context.Context, task string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	b, err := os.ReadFile(s.path(task))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	id := strings.TrimSpace(string(b))
	if id == "" {
		return "", false, nil
	}
	return id, true, nil
}

// StorePin writes through a temp file and rename so a crash never leaves a
// truncated record.
func (s *fileStore) StorePin(ctx context.Context, task, messageID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := s.path(task)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, []byte(strings.TrimSpace(messageID)), 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", p, err)
	}
	return nil
}

func (s *fileStore) Close() error { return nil }

// FileName maps a task identity to its ledger file name. Bytes outside
// [A-Za-z0-9._-] become '_', so the name can never escape the ledger directory.
// Distinct ids may share a file ("a/b" and "a_b"); config validation rejects such pairs.
func FileName(task string) string {
	var b strings.Builder
	b.Grow(len(task) + len(pinExt))
	for i := 0; i < len(task); i++ {
		c := task[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '-', c == '_':
			b.WriteByte(c)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		b.WriteByte('_')
	}
	b.WriteString(pinExt)
	return b.String()
}
