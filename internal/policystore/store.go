// Package policystore persists learned policies per tenant, key and version.
//
// Two backends are provided: JSONStore keeps one file per version on local
// disk, BadgerStore keeps one document per version in an embedded BadgerDB.
// Both treat Version 0 on Load as "latest non-expired version".
package policystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"strconv"
	"strings"
	"time"

	"github.com/ChuLiYu/decision-engine/pkg/types"
)

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	ErrInvalidArgument = errors.New("policystore: invalid argument")
	ErrPolicyNotFound  = errors.New("policystore: policy not found")
	ErrCorruptedPolicy = errors.New("policystore: policy document is corrupted")
)

// Store saves and loads stationary policies.
type Store interface {
	// Save writes policy under ref. ttl <= 0 means the policy never expires.
	// Saving an existing version replaces it.
	Save(ctx context.Context, ref Ref, policy types.Policy, ttl time.Duration) error
	// Load returns the policy for ref, or the latest version when ref.Version is 0.
	Load(ctx context.Context, ref Ref) (types.Policy, error)
	// Versions lists the live versions of tenant/key in ascending order.
	Versions(ctx context.Context, tenantID, key string) ([]int, error)
	Close() error
}

// Ref addresses one policy version.
type Ref struct {
	TenantID string `json:"tenant_id" yaml:"tenant_id"`
	Key      string `json:"key" yaml:"key"`
	Version  int    `json:"version" yaml:"version"`
}

func (r Ref) String() string {
	v := "latest"
	if r.Version > 0 {
		v = "v" + strconv.Itoa(r.Version)
	}
	return r.TenantID + "/" + r.Key + "@" + v
}

// validateName rejects empty names and names that would escape a directory or key prefix.
func validateName(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidArgument, field)
	}
	if strings.ContainsAny(value, `/\`) || value == "." || value == ".." {
		return fmt.Errorf("%w: %s %q contains a path separator", ErrInvalidArgument, field, value)
	}
	return nil
}

func validateLoadRef(ref Ref) error {
	if err := validateName("tenant id", ref.TenantID); err != nil {
		return err
	}
	if err := validateName("policy key", ref.Key); err != nil {
		return err
	}
	if ref.Version < 0 {
		return fmt.Errorf("%w: version %d is negative", ErrInvalidArgument, ref.Version)
	}
	return nil
}

func validateSave(ref Ref, policy types.Policy) error {
	if err := validateLoadRef(ref); err != nil {
		return err
	}
	if ref.Version < 1 {
		return fmt.Errorf("%w: version must be at least 1 to save, got %d", ErrInvalidArgument, ref.Version)
	}
	if len(policy) == 0 {
		return fmt.Errorf("%w: policy cannot be empty", ErrInvalidArgument)
	}
	return nil
}

// ============================================================================
// 文件格式
// ============================================================================

const schemaVersion = 1

// document is the stored form of one policy version.
type document struct {
	SchemaVer int        `json:"schema_ver"`
	TenantID  string     `json:"tenant_id"`
	Key       string     `json:"key"`
	Version   int        `json:"version"`
	Actions   []int      `json:"actions"`
	Checksum  uint32     `json:"checksum"`
	CreatedAt time.Time  `json:"created_at"`
	ExpireAt  *time.Time `json:"expire_at,omitempty"`
}

func newDocument(ref Ref, policy types.Policy, ttl time.Duration, now time.Time) document {
	doc := document{
		SchemaVer: schemaVersion,
		TenantID:  ref.TenantID,
		Key:       ref.Key,
		Version:   ref.Version,
		Actions:   policy.Clone(),
		CreatedAt: now.UTC(),
	}
	if ttl > 0 {
		expire := now.Add(ttl).UTC()
		doc.ExpireAt = &expire
	}
	doc.Checksum = checksum(doc)
	return doc
}

// checksum 計算 CRC32-IEEE，涵蓋 ref 與 actions，不含時間欄位
func checksum(doc document) uint32 {
	var b strings.Builder
	b.WriteString(doc.TenantID)
	b.WriteByte(0)
	b.WriteString(doc.Key)
	b.WriteByte(0)
	b.WriteString(strconv.Itoa(doc.Version))
	for _, a := range doc.Actions {
		b.WriteByte(0)
		b.WriteString(strconv.Itoa(a))
	}
	return crc32.ChecksumIEEE([]byte(b.String()))
}

func (d document) expired(now time.Time) bool {
	return d.ExpireAt != nil && !now.Before(*d.ExpireAt)
}

// decodeDocument parses and verifies a stored document against the ref it was read for.
func decodeDocument(data []byte, ref Ref) (document, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("%w: %s: %v", ErrCorruptedPolicy, ref, err)
	}
	if doc.SchemaVer != schemaVersion {
		return document{}, fmt.Errorf("%w: %s: schema version %d, want %d", ErrCorruptedPolicy, ref, doc.SchemaVer, schemaVersion)
	}
	if doc.TenantID != ref.TenantID || doc.Key != ref.Key || doc.Version != ref.Version {
		return document{}, fmt.Errorf("%w: %s: document is for %s/%s@v%d", ErrCorruptedPolicy, ref, doc.TenantID, doc.Key, doc.Version)
	}
	if len(doc.Actions) == 0 {
		return document{}, fmt.Errorf("%w: %s: no actions", ErrCorruptedPolicy, ref)
	}
	if doc.Checksum != checksum(doc) {
		return document{}, fmt.Errorf("%w: %s: checksum mismatch", ErrCorruptedPolicy, ref)
	}
	return doc, nil
}

func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("policystore: %w", err)
	}
	return nil
}

func notFound(ref Ref) error {
	return fmt.Errorf("%w: %s", ErrPolicyNotFound, ref)
}
