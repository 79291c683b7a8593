package policystore

// ============================================================================
// 職責說明：
// 1. 每個版本一個 JSON 檔：<dir>/<tenant>/<key>_v<version>.json
// 2. 原子性寫入（temp file + rename）防止損壞
// 3. 載入時驗證 schema 版本與 checksum
// 4. 過期的文件視為不存在
// ============================================================================

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ChuLiYu/decision-engine/pkg/types"
)

// JSONStore keeps policies as JSON files under a base directory.
type JSONStore struct {
	dir  string
	opts options
	mu   sync.Mutex // 保護檔案操作
}

var _ Store = (*JSONStore)(nil)

// NewJSONStore creates the base directory if needed.
func NewJSONStore(dir string, opts ...Option) (*JSONStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("%w: directory is required", ErrInvalidArgument)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create policy directory %s: %w", dir, err)
	}
	return &JSONStore{dir: dir, opts: buildOptions(opts)}, nil
}

// Dir returns the base directory.
func (s *JSONStore) Dir() string { return s.dir }

func (s *JSONStore) path(ref Ref) string {
	return filepath.Join(s.dir, ref.TenantID, fmt.Sprintf("%s_v%d.json", ref.Key, ref.Version))
}

// Save 原子性寫入一個版本
func (s *JSONStore) Save(ctx context.Context, ref Ref, policy types.Policy, ttl time.Duration) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	if err := validateSave(ref, policy); err != nil {
		return err
	}

	doc := newDocument(ref, policy, ttl, s.opts.now())
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal policy %s: %w", ref, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(ref)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create tenant directory: %w", err)
	}

	// 1. 寫入臨時檔案
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp policy %s: %w", ref, err)
	}
	// 2. 原子性重新命名
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename policy %s: %w", ref, err)
	}

	s.opts.logger.Debug("policy saved", "store", "json", "ref", ref.String(), "path", path, "actions", len(policy))
	return nil
}

// Load reads one version, or the latest live version when ref.Version is 0.
func (s *JSONStore) Load(ctx context.Context, ref Ref) (types.Policy, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := validateLoadRef(ref); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ref.Version > 0 {
		doc, err := s.read(ref)
		if err != nil {
			return nil, err
		}
		return types.Policy(doc.Actions), nil
	}

	versions, err := s.scan(ref.TenantID, ref.Key)
	if err != nil {
		return nil, err
	}
	for i := len(versions) - 1; i >= 0; i-- {
		candidate := Ref{TenantID: ref.TenantID, Key: ref.Key, Version: versions[i]}
		doc, err := s.read(candidate)
		if errors.Is(err, ErrPolicyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return types.Policy(doc.Actions), nil
	}
	return nil, notFound(ref)
}

// Versions lists live versions in ascending order.
func (s *JSONStore) Versions(ctx context.Context, tenantID, key string) ([]int, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := validateLoadRef(Ref{TenantID: tenantID, Key: key}); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	versions, err := s.scan(tenantID, key)
	if err != nil {
		return nil, err
	}
	live := versions[:0]
	for _, v := range versions {
		_, err := s.read(Ref{TenantID: tenantID, Key: key, Version: v})
		if errors.Is(err, ErrPolicyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		live = append(live, v)
	}
	return live, nil
}

func (s *JSONStore) Close() error { return nil }

// read 讀取並驗證單一版本；呼叫者須持有 mu
func (s *JSONStore) read(ref Ref) (document, error) {
	data, err := os.ReadFile(s.path(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return document{}, notFound(ref)
		}
		return document{}, fmt.Errorf("read policy %s: %w", ref, err)
	}

	doc, err := decodeDocument(data, ref)
	if err != nil {
		return document{}, err
	}
	if doc.expired(s.opts.now()) {
		return document{}, notFound(ref)
	}
	return doc, nil
}

// scan 列出 tenant 目錄下 key 的所有版本（含已過期），由小到大
func (s *JSONStore) scan(tenantID, key string) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, tenantID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list policies for %s: %w", tenantID, err)
	}

	prefix := key + "_v"
	var versions []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".json"))
		if err != nil || v < 1 {
			continue
		}
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return versions, nil
}
