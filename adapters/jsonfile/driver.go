// Package jsonfile stores each bucket as a JSON array in <dir>/<bucket>.json.
//
// The whole file is rewritten on every insert (write to a temp file, then
// rename), so the driver asks mailbus.Store to serialize writes per bucket.
// A missing or empty file reads as an empty collection.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/coregx/mailbus"
	"github.com/coregx/mailbus/model"
)

// Driver is a file-backed mailbus.Driver.
type Driver struct {
	dir string
}

var _ mailbus.Driver = (*Driver)(nil)

// NewDriver creates a driver rooted at dir. The directory is created on
// first use.
func NewDriver(dir string) (*Driver, error) {
	if dir == "" {
		return nil, mailbus.NewError(mailbus.ErrCodeConfiguration, "storage directory is required")
	}
	return &Driver{dir: dir}, nil
}

// Name implements mailbus.Driver.
func (d *Driver) Name() string {
	return "file"
}

// SerializedWrites implements mailbus.Driver.
func (d *Driver) SerializedWrites() bool {
	return true
}

// Path returns the file backing bucket.
func (d *Driver) Path(bucket string) string {
	return filepath.Join(d.dir, bucket+".json")
}

// Open makes sure the storage directory exists.
func (d *Driver) Open(_ context.Context, bucket string) (mailbus.Conn, error) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &conn{path: d.Path(bucket)}, nil
}

type conn struct {
	path string
}

// Init creates the file with an empty array if it does not exist.
func (c *conn) Init(_ context.Context) error {
	_, err := os.Stat(c.path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", c.path, err)
	}
	return c.save(nil)
}

func (c *conn) Insert(_ context.Context, rec model.StoredRecord) error {
	records, err := c.load()
	if err != nil {
		return err
	}
	return c.save(append(records, rec))
}

// List returns records newest first; records with equal timestamps keep
// reverse file order.
func (c *conn) List(_ context.Context) ([]model.StoredRecord, error) {
	records, err := c.load()
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].PersistedAt.After(records[j].PersistedAt)
	})
	return records, nil
}

func (c *conn) DeleteAll(_ context.Context) (int, error) {
	records, err := c.load()
	if err != nil {
		return 0, err
	}
	if err := c.save(nil); err != nil {
		return 0, err
	}
	return len(records), nil
}

func (c *conn) Close() error {
	return nil
}

func (c *conn) load() ([]model.StoredRecord, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var records []model.StoredRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.path, err)
	}
	return records, nil
}

func (c *conn) save(records []model.StoredRecord) error {
	if records == nil {
		records = []model.StoredRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("replace %s: %w", c.path, err)
	}
	return nil
}
