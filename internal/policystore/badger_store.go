package policystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/ChuLiYu/decision-engine/pkg/types"
)

const keyPrefix = "policy/"

// BadgerConfig configures the embedded document store.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string
	// InMemory keeps everything in RAM. Used by tests and the demo.
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// Logger receives BadgerDB's internal logs. Nil disables them.
	Logger *slog.Logger
}

// BadgerStore keeps one JSON document per policy version in BadgerDB.
// Expiry is enforced twice: entries carry a Badger TTL so they are dropped by
// compaction, and documents carry expire_at so reads honor the store clock.
type BadgerStore struct {
	db   *badger.DB
	opts options
}

var _ Store = (*BadgerStore)(nil)

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// OpenBadgerStore opens (or creates) the database described by cfg.
func OpenBadgerStore(cfg BadgerConfig, opts ...Option) (*BadgerStore, error) {
	if !cfg.InMemory && strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("%w: badger path is required for a persistent store", ErrInvalidArgument)
	}

	var bopts badger.Options
	if cfg.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		bopts = badger.DefaultOptions(cfg.Path)
	}
	bopts = bopts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		bopts = bopts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db, opts: buildOptions(opts)}, nil
}

func policyPrefix(tenantID, key string) []byte {
	return []byte(keyPrefix + tenantID + "/" + key + "/")
}

func policyKey(ref Ref) []byte {
	return []byte(fmt.Sprintf("%s%s/%s/%010d", keyPrefix, ref.TenantID, ref.Key, ref.Version))
}

func versionFromKey(prefix, key []byte) (int, bool) {
	v, err := strconv.Atoi(string(key[len(prefix):]))
	if err != nil || v < 1 {
		return 0, false
	}
	return v, true
}

func (s *BadgerStore) Save(ctx context.Context, ref Ref, policy types.Policy, ttl time.Duration) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	if err := validateSave(ref, policy); err != nil {
		return err
	}

	doc := newDocument(ref, policy, ttl, s.opts.now())
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal policy %s: %w", ref, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(policyKey(ref), data)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("save policy %s: %w", ref, err)
	}

	s.opts.logger.Debug("policy saved", "store", "badger", "ref", ref.String(), "actions", len(policy))
	return nil
}

func (s *BadgerStore) Load(ctx context.Context, ref Ref) (types.Policy, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := validateLoadRef(ref); err != nil {
		return nil, err
	}

	var doc document
	err := s.db.View(func(txn *badger.Txn) error {
		if ref.Version > 0 {
			item, err := txn.Get(policyKey(ref))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return notFound(ref)
			}
			if err != nil {
				return err
			}
			doc, err = s.decodeItem(item, ref)
			return err
		}
		return s.latest(txn, ref, &doc)
	})
	if err != nil {
		if errors.Is(err, ErrPolicyNotFound) || errors.Is(err, ErrCorruptedPolicy) {
			return nil, err
		}
		return nil, fmt.Errorf("load policy %s: %w", ref, err)
	}
	return types.Policy(doc.Actions), nil
}

// latest walks the key's versions from newest to oldest and stops at the first live one.
func (s *BadgerStore) latest(txn *badger.Txn, ref Ref, out *document) error {
	prefix := policyPrefix(ref.TenantID, ref.Key)
	iopts := badger.DefaultIteratorOptions
	iopts.Reverse = true
	iopts.Prefix = prefix

	it := txn.NewIterator(iopts)
	defer it.Close()

	seek := append(append([]byte{}, prefix...), 0xFF)
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		version, ok := versionFromKey(prefix, item.Key())
		if !ok {
			continue
		}
		doc, err := s.decodeItem(item, Ref{TenantID: ref.TenantID, Key: ref.Key, Version: version})
		if errors.Is(err, ErrPolicyNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		*out = doc
		return nil
	}
	return notFound(ref)
}

func (s *BadgerStore) Versions(ctx context.Context, tenantID, key string) ([]int, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := validateLoadRef(Ref{TenantID: tenantID, Key: key}); err != nil {
		return nil, err
	}

	var versions []int
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := policyPrefix(tenantID, key)
		iopts := badger.DefaultIteratorOptions
		iopts.Prefix = prefix
		it := txn.NewIterator(iopts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			version, ok := versionFromKey(prefix, item.Key())
			if !ok {
				continue
			}
			_, err := s.decodeItem(item, Ref{TenantID: tenantID, Key: key, Version: version})
			if errors.Is(err, ErrPolicyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			versions = append(versions, version)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return versions, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) decodeItem(item *badger.Item, ref Ref) (document, error) {
	data, err := item.ValueCopy(nil)
	if err != nil {
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
