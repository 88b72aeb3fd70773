// Package media stores uploaded files and generates image thumbnails.
package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d60-Lab/marketplace/pkg/logger"
)

// Store 文件存储接口；路径均为相对 root 的 slash 路径
type Store interface {
	Save(dir, ext string, r io.Reader) (string, error)
	Delete(paths ...string)
	URL(p string) string
}

// LocalStore keeps files under a root directory on the local filesystem.
type LocalStore struct {
	root    string
	baseURL string
}

func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}
	return &LocalStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalStore) Root() string { return s.root }

// Save 以随机文件名写入 dir 目录，返回相对路径
func (s *LocalStore) Save(dir, ext string, r io.Reader) (string, error) {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	rel := path.Join(dir, uuid.NewString()+strings.ToLower(ext))
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(full)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(full)
		return "", err
	}
	return rel, nil
}

// Delete removes files best-effort.
func (s *LocalStore) Delete(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		full := filepath.Join(s.root, filepath.FromSlash(path.Clean("/"+p)))
		if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("remove media file failed", zap.String("path", p), zap.Error(err))
		}
	}
}

func (s *LocalStore) URL(p string) string {
	if p == "" {
		return ""
	}
	return s.baseURL + "/" + strings.TrimLeft(p, "/")
}
