package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const uploadTargetTTL = 15 * time.Minute

var (
	errUnknownUpload = errors.New("unknown or expired upload key")
	errInvalidKey    = errors.New("invalid file key")
)

type pendingUpload struct {
	contentType string
	expiresAt   time.Time
}

// uploadStore 本機附件儲存：先發放一次性的上傳 key，再接受 PUT 內容
type uploadStore struct {
	dir     string
	baseURL string
	clock   clockwork.Clock

	mu      sync.Mutex
	pending map[string]pendingUpload
}

func newUploadStore(dir, baseURL string, clock clockwork.Clock) (*uploadStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &uploadStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		clock:   clock,
		pending: make(map[string]pendingUpload),
	}, nil
}

// issue 產生上傳位置，key 保留原始副檔名
func (s *uploadStore) issue(filename, contentType string) (key, uploadURL, fileURL string) {
	key = uuid.NewString() + strings.ToLower(filepath.Ext(filename))
	now := s.clock.Now()

	s.mu.Lock()
	for k, p := range s.pending {
		if now.After(p.expiresAt) {
			delete(s.pending, k)
		}
	}
	s.pending[key] = pendingUpload{contentType: contentType, expiresAt: now.Add(uploadTargetTTL)}
	s.mu.Unlock()

	return key, s.baseURL + "/uploads/" + key, s.baseURL + "/files/" + key
}

// accept 寫入一次性 key 對應的內容，寫入失敗時 key 仍可重試
func (s *uploadStore) accept(key string, body io.Reader) (int64, error) {
	if !validKey(key) {
		return 0, errInvalidKey
	}

	s.mu.Lock()
	p, ok := s.pending[key]
	if ok && s.clock.Now().After(p.expiresAt) {
		delete(s.pending, key)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return 0, errUnknownUpload
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, key)); err != nil {
		return 0, err
	}

	s.mu.Lock()
	delete(s.pending, key)
	s.mu.Unlock()
	return n, nil
}

// path 回傳已上傳檔案的路徑與 MIME 類型
func (s *uploadStore) path(key string) (string, string, error) {
	if !validKey(key) {
		return "", "", errInvalidKey
	}
	p := filepath.Join(s.dir, key)
	if _, err := os.Stat(p); err != nil {
		return "", "", err
	}
	contentType := mime.TypeByExtension(filepath.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return p, contentType, nil
}

func validKey(key string) bool {
	id, _, _ := strings.Cut(key, ".")
	if _, err := uuid.Parse(id); err != nil {
		return false
	}
	return key == filepath.Base(key) && !strings.ContainsAny(key, `/\`)
}
