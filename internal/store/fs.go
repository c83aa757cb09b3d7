package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/google/uuid"

	"github.com/roach88/humam/internal/fault"
	"github.com/roach88/humam/internal/logging"
	"github.com/roach88/humam/internal/param"
)

// Default lock timing.
const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultStaleAfter   = 24 * time.Hour
)

// FS stores artifacts in a directory tree.
type FS struct {
	root   string
	logger *slog.Logger

	// PollInterval is how often a waiter re-checks a held lock.
	PollInterval time.Duration

	// StaleAfter is the age after which a lock file is considered abandoned.
	StaleAfter time.Duration
}

// OpenFS opens (creating if needed) a filesystem store rooted at root.
func OpenFS(root string, logger *slog.Logger) (*FS, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve store root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &FS{
		root:         abs,
		logger:       logger,
		PollInterval: DefaultPollInterval,
		StaleAfter:   DefaultStaleAfter,
	}, nil
}

// Root returns the absolute store directory.
func (s *FS) Root() string {
	return s.root
}

// Path implements Store.
func (s *FS) Path(key Key) string {
	return filepath.Join(append([]string{s.root}, key.Segments()...)...)
}

// Exists implements Store.
func (s *FS) Exists(_ context.Context, key Key) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	info, err := os.Stat(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	if !info.IsDir() {
		return false, fault.Integrityf("store.Exists", "%s is not a directory", s.Path(key))
	}
	return true, nil
}

// Write implements Store.
func (s *FS) Write(ctx context.Context, key Key, files Files) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	if err := files.Validate(); err != nil {
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	dir := s.Path(key)
	if ok, err := s.Exists(ctx, key); err != nil {
		return "", err
	} else if ok {
		s.logger.Debug("artifact already stored", "key", key.String(), "path", dir)
		return dir, nil
	}

	parent := filepath.Dir(dir)
	if _, err := os.Stat(parent); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fault.New(fault.NotFound, "store.Write", "parent artifact of %s is not stored", key)
		}
		return "", fmt.Errorf("stat parent of %s: %w", key, err)
	}

	tmp := filepath.Join(parent, "."+string(key.Hash())+".tmp-"+uuid.NewString())
	if err := os.Mkdir(tmp, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	if err := writeFiles(ctx, tmp, files); err != nil {
		os.RemoveAll(tmp)
		return "", fmt.Errorf("write %s: %w", key, err)
	}

	if err := os.Rename(tmp, dir); err != nil {
		os.RemoveAll(tmp)
		if ok, _ := s.Exists(ctx, key); ok {
			// Lost the race to a concurrent writer of the same content.
			return dir, nil
		}
		return "", fmt.Errorf("commit %s: %w", key, err)
	}

	s.logger.Debug("artifact stored",
		"key", key.String(),
		"files", len(files),
		"size", datasize.ByteSize(files.Size()).HumanReadable())
	return dir, nil
}

func writeFiles(ctx context.Context, dir string, files Files) error {
	for _, name := range files.Names() {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := writeSynced(path, files[name]); err != nil {
			return err
		}
	}
	return nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Read implements Store.
func (s *FS) Read(ctx context.Context, key Key) (Files, error) {
	ok, err := s.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fault.New(fault.NotFound, "store.Read", "no artifact %s", key)
	}

	dir := s.Path(key)
	files := make(Files)
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if filepath.Dir(rel) == "." && (name[0] == '.' || hashName.MatchString(name)) {
			// Child artifacts and bookkeeping files.
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[name] = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return files, nil
}

// Lock implements Store.
func (s *FS) Lock(ctx context.Context, key Key) (func() error, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	path := filepath.Join(filepath.Dir(s.Path(key)), "."+string(key.Hash())+".lock")

	for {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			s.logger.Debug("lock acquired", "key", key.String())
			stop := s.heartbeat(path)
			var once sync.Once
			return func() error {
				var err error
				once.Do(func() {
					stop()
					if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
						err = fmt.Errorf("release lock %s: %w", key, rmErr)
					}
				})
				return err
			}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fault.New(fault.NotFound, "store.Lock", "parent artifact of %s is not stored", key)
			}
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}

		if ok, err := s.Exists(ctx, key); err != nil {
			return nil, err
		} else if ok {
			return func() error { return nil }, nil
		}
		if s.breakStale(path) {
			continue
		}

		s.logger.Debug("waiting for lock", "key", key.String(), "holder", lockHolder(path))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.PollInterval):
		}
	}
}

// heartbeat touches the lock file at path every quarter of StaleAfter so
// that a long computation never looks abandoned. The returned function
// stops it and waits for the last touch to finish.
func (s *FS) heartbeat(path string) func() {
	every := s.StaleAfter / 4
	if every <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-t.C:
				if err := os.Chtimes(path, now, now); err != nil {
					s.logger.Warn("refresh lock", "path", path, "err", err)
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// breakStale removes the lock file at path if it is older than StaleAfter.
func (s *FS) breakStale(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		// Released between the open and the stat.
		return errors.Is(err, fs.ErrNotExist)
	}
	if time.Since(info.ModTime()) < s.StaleAfter {
		return false
	}
	s.logger.Warn("breaking stale lock", "path", path, "age", time.Since(info.ModTime()).Round(time.Second))
	return os.Remove(path) == nil
}

func lockHolder(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, _ := strconv.Atoi(string(bytes.TrimSpace(data)))
	return pid
}

// Find implements Store.
func (s *FS) Find(_ context.Context, stage Stage, hash param.Identifier) (Key, error) {
	if _, err := param.ParseIdentifier(string(hash)); err != nil {
		return Key{}, err
	}
	depth := stage.Depth()
	if depth == 0 {
		return Key{}, fmt.Errorf("unknown stage %q", stage)
	}

	pattern := []string{s.root}
	for range depth - 1 {
		pattern = append(pattern, "*")
	}
	pattern = append(pattern, string(hash))
	matches, err := filepath.Glob(filepath.Join(pattern...))
	if err != nil {
		return Key{}, err
	}
	slices.Sort(matches)
	for _, m := range matches {
		rel, err := filepath.Rel(s.root, m)
		if err != nil {
			continue
		}
		key, ok := keyFromSegments(strings.Split(filepath.ToSlash(rel), "/"))
		if !ok {
			continue
		}
		if info, err := os.Stat(m); err == nil && info.IsDir() {
			return key, nil
		}
	}
	return Key{}, fault.New(fault.NotFound, "store.Find", "no %s artifact %s", stage, hash.Short())
}

func keyFromSegments(segs []string) (Key, bool) {
	var k Key
	for i, s := range segs {
		id, err := param.ParseIdentifier(s)
		if err != nil {
			return Key{}, false
		}
		switch i {
		case 0:
			k.Network = id
		case 1:
			k.Simulation = id
		case 2:
			k.Analysis = id
		default:
			return Key{}, false
		}
	}
	return k, len(segs) > 0
}
