package cache

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"github.com/ethpandaops/crashpull/pkg/dataset"
	"github.com/sirupsen/logrus"
)

const (
	tmpSuffix  = ".tmp"
	prevSuffix = ".prev"

	dirMode  = 0o755
	dataMode = 0o644
	metaMode = 0o644
)

// Store reads and writes the cache file pair.
//
// Writes use a two-phase protocol. Both files are first written to *.tmp siblings and synced.
// The current record file is then moved aside to *.prev, the new record renamed into place and
// finally the metadata renamed into place; that last rename is the commit point. Until it
// happens the metadata temp file exists, and its presence tells the recovery pass to roll the
// record file back. Recovery runs before every read and write, so an interrupted write leaves
// the previous pair (or nothing, on a first write) and never a mismatched pair.
//
// Calls on one Store are serialized. Separate processes sharing a directory are last writer wins.
type Store struct {
	mu     sync.Mutex
	log    logrus.FieldLogger
	cfg    *Config
	parser dataset.Parser

	// rename performs the commit-phase renames
	rename func(oldpath, newpath string) error
}

// NewStore creates a store for the configured file pair
func NewStore(log logrus.FieldLogger, cfg *Config, parser dataset.Parser) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache config: %w", err)
	}

	return &Store{
		log:    log.WithField("component", "cache.store"),
		cfg:    cfg,
		parser: parser,
		rename: os.Rename,
	}, nil
}

// DataPath returns the record file path
func (s *Store) DataPath() string {
	return s.cfg.DataPath()
}

// MetaPath returns the metadata file path
func (s *Store) MetaPath() string {
	return s.cfg.MetaPath()
}

// Read loads the persisted dataset and metadata. It returns ErrCacheMiss when neither file
// exists and ErrCacheCorrupt when the pair exists but cannot be used.
func (s *Store) Read(ctx context.Context) (*dataset.ParseResult, *Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.recover(); err != nil {
		return nil, nil, fmt.Errorf("%w: recovery failed: %w", ErrCacheCorrupt, err)
	}

	meta, err := s.readMetadata()
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(s.DataPath())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to open %s: %w", ErrCacheCorrupt, s.DataPath(), err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			s.log.WithError(closeErr).Debug("Failed to close cache file")
		}
	}()

	result, err := s.parser.Parse(f)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to parse %s: %w", ErrCacheCorrupt, s.DataPath(), err)
	}

	s.log.WithFields(logrus.Fields{
		"rows":      result.Dataset.Len(),
		"skipped":   result.Skipped,
		"timestamp": meta.CacheTimestamp,
	}).Debug("Read cached dataset")

	return result, meta, nil
}

// ReadMetadata loads only the metadata record, applying the same miss and corruption rules
// as Read for the pair's presence.
func (s *Store) ReadMetadata(ctx context.Context) (*Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.recover(); err != nil {
		return nil, fmt.Errorf("%w: recovery failed: %w", ErrCacheCorrupt, err)
	}

	return s.readMetadata()
}

func (s *Store) readMetadata() (*Metadata, error) {
	dataExists, err := exists(s.DataPath())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCacheCorrupt, err)
	}

	raw, err := os.ReadFile(s.MetaPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if !dataExists {
				return nil, ErrCacheMiss
			}

			return nil, fmt.Errorf("%w: %s exists without %s", ErrCacheCorrupt, s.DataPath(), s.MetaPath())
		}

		return nil, fmt.Errorf("%w: failed to read %s: %w", ErrCacheCorrupt, s.MetaPath(), err)
	}

	if !dataExists {
		return nil, fmt.Errorf("%w: %s exists without %s", ErrCacheCorrupt, s.MetaPath(), s.DataPath())
	}

	meta, err := decodeMetadata(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid metadata in %s: %w", ErrCacheCorrupt, s.MetaPath(), err)
	}

	return meta, nil
}

// Write replaces the persisted pair with ds and meta
func (s *Store) Write(ctx context.Context, ds *dataset.Dataset, meta *Metadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.recover(); err != nil {
		return fmt.Errorf("failed to recover cache before write: %w", err)
	}

	metaBytes, err := encodeMetadata(meta)
	if err != nil {
		return fmt.Errorf("invalid metadata: %w", err)
	}

	if err := os.MkdirAll(s.cfg.Dir, dirMode); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	// Prepare
	if err := writeSynced(s.DataPath()+tmpSuffix, dataMode, func(w io.Writer) error {
		return dataset.WriteCSV(w, ds)
	}); err != nil {
		s.discardTemps()
		return fmt.Errorf("failed to write %s: %w", s.DataPath()+tmpSuffix, err)
	}

	if err := writeSynced(s.MetaPath()+tmpSuffix, metaMode, func(w io.Writer) error {
		_, werr := w.Write(metaBytes)
		return werr
	}); err != nil {
		s.discardTemps()
		return fmt.Errorf("failed to write %s: %w", s.MetaPath()+tmpSuffix, err)
	}

	// Commit
	if err := s.commit(); err != nil {
		if rbErr := s.rollback(); rbErr != nil {
			s.log.WithError(rbErr).Error("Failed to roll back cache write")
		}

		return fmt.Errorf("failed to commit cache write: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"rows":   ds.Len(),
		"source": meta.Source,
		"path":   s.DataPath(),
	}).Info("Cache updated")

	return nil
}

func (s *Store) commit() error {
	dataPath := s.DataPath()

	hasCurrent, err := exists(dataPath)
	if err != nil {
		return err
	}

	if hasCurrent {
		if err := s.rename(dataPath, dataPath+prevSuffix); err != nil {
			return err
		}
	}

	if err := s.rename(dataPath+tmpSuffix, dataPath); err != nil {
		return err
	}

	if err := s.rename(s.MetaPath()+tmpSuffix, s.MetaPath()); err != nil {
		return err
	}

	syncDir(s.cfg.Dir)

	if err := removeIfExists(dataPath + prevSuffix); err != nil {
		s.log.WithError(err).Warn("Failed to remove previous cache record")
	}

	return nil
}

// recover finishes the cleanup of any interrupted write
func (s *Store) recover() error {
	pending, err := exists(s.MetaPath() + tmpSuffix)
	if err != nil {
		return err
	}

	if pending {
		s.log.Warn("Found interrupted cache write, restoring previous cache")
		return s.rollback()
	}

	if err := removeIfExists(s.DataPath() + tmpSuffix); err != nil {
		return err
	}

	return removeIfExists(s.DataPath() + prevSuffix)
}

// rollback undoes a commit that did not reach the metadata rename
func (s *Store) rollback() error {
	dataPath := s.DataPath()

	hasPrev, err := exists(dataPath + prevSuffix)
	if err != nil {
		return err
	}

	tmpPresent, err := exists(dataPath + tmpSuffix)
	if err != nil {
		return err
	}

	switch {
	case hasPrev:
		if err := os.Rename(dataPath+prevSuffix, dataPath); err != nil {
			return err
		}
	case !tmpPresent:
		// First write: the new record was already renamed into place
		if err := removeIfExists(dataPath); err != nil {
			return err
		}
	}

	s.discardTemps()

	return nil
}

func (s *Store) discardTemps() {
	for _, p := range []string{s.DataPath() + tmpSuffix, s.MetaPath() + tmpSuffix} {
		if err := removeIfExists(p); err != nil {
			s.log.WithError(err).WithField("path", p).Warn("Failed to remove temporary cache file")
		}
	}
}

func writeSynced(path string, mode os.FileMode, fill func(io.Writer) error) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode) //nolint:gosec // Path derived from config
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(f)
	if err := fill(bw); err != nil {
		_ = f.Close()
		return err
	}

	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

func syncDir(dir string) {
	d, err := os.Open(dir) //nolint:gosec // Path derived from config
	if err != nil {
		return
	}

	_ = d.Sync()
	_ = d.Close()
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}

	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	return false, err
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return nil
}
