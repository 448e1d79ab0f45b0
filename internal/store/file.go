package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	recordExt = ".json"
	tmpPrefix = ".tmp-"
)

// FileRecords stores each record as a JSON file named after the hex SHA-256
// of its id, so every valid id maps to a fixed-length file name. The id itself
// lives inside the record. Writes go to a temp file in the same directory which is fsynced and
// renamed over the target.
type FileRecords struct {
	dir    string
	logger *slog.Logger
}

// OpenFileRecords opens (creating if needed) a record directory and removes
// temp files left behind by an interrupted write.
func OpenFileRecords(dir string) (*FileRecords, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("record directory is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating record dir: %w", err)
	}

	r := &FileRecords{dir: dir, logger: slog.With("component", "store", "backend", "file")}

	stale, _ := filepath.Glob(filepath.Join(dir, tmpPrefix+"*"))
	for _, path := range stale {
		r.logger.Warn("removing interrupted write", "path", path)
		os.Remove(path)
	}
	return r, nil
}

func recordName(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:]) + recordExt
}

func (r *FileRecords) path(id string) string {
	return filepath.Join(r.dir, recordName(id))
}

func (r *FileRecords) Load(ctx context.Context, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(r.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("reading record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: corrupt record for %s: %v", ErrAuthenticationFailure, id, err)
	}
	if rec.ID != id {
		return nil, fmt.Errorf("%w: record for %s claims id %q", ErrAuthenticationFailure, id, rec.ID)
	}
	return &rec, nil
}

func (r *FileRecords) Save(rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(r.dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("creating temp record: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("writing temp record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("syncing temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp record: %w", err)
	}
	if err := os.Rename(tmpPath, r.path(rec.ID)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("installing record: %w", err)
	}
	return r.syncDir()
}

func (r *FileRecords) Remove(id string) error {
	if err := os.Remove(r.path(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("removing record: %w", err)
	}
	return r.syncDir()
}

func (r *FileRecords) IDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("reading record dir: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, tmpPrefix) || !strings.HasSuffix(name, recordExt) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id, err := r.readID(name)
		if err != nil {
			r.logger.Warn("ignoring unreadable file in record dir", "name", name, "error", err)
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// readID returns the id stored in the named record file. A record whose id
// does not hash to its file name is rejected.
func (r *FileRecords) readID(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, name))
	if err != nil {
		return "", err
	}
	var rec struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", err
	}
	if recordName(rec.ID) != name {
		return "", fmt.Errorf("record id %q does not match file name", rec.ID)
	}
	return rec.ID, nil
}

// syncDir flushes the directory entry so a rename or unlink survives a crash.
func (r *FileRecords) syncDir() error {
	d, err := os.Open(r.dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		r.logger.Debug("directory sync failed", "error", err)
	}
	return nil
}

func (r *FileRecords) Close() error {
	return nil
}

var _ Records = (*FileRecords)(nil)
