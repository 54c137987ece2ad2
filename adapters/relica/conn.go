package relica

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/coregx/mailbus"
	"github.com/coregx/mailbus/model"
	"github.com/coregx/relica"
)

// conn is a per-operation handle on one bucket database.
type conn struct {
	sqlDB      *sql.DB
	db         *relica.DB
	driverName string
}

func (c *conn) tableName() string {
	return model.StoredRecord{}.TableName()
}

// Init creates the emails table and its indexes.
func (c *conn) Init(ctx context.Context) error {
	stmts, err := mailbus.SchemaStatements(c.driverName)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := c.sqlDB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Insert appends one record. The record's ID is assigned by the database.
func (c *conn) Insert(ctx context.Context, rec model.StoredRecord) error {
	rec.ID = 0
	if err := c.db.WithContext(ctx).Model(&rec).Table(c.tableName()).Insert(); err != nil {
		return fmt.Errorf("insert into %s: %w", c.tableName(), err)
	}
	return nil
}

// List returns all records, newest first. Rows with equal timestamps are
// ordered by descending ID so insertion order is preserved.
func (c *conn) List(ctx context.Context) ([]model.StoredRecord, error) {
	var records []model.StoredRecord
	err := c.db.WithContext(ctx).Select("*").
		From(c.tableName()).
		OrderBy("created_at DESC").
		All(&records)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", c.tableName(), err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].PersistedAt.Equal(records[j].PersistedAt) {
			return records[i].PersistedAt.After(records[j].PersistedAt)
		}
		return records[i].ID > records[j].ID
	})
	return records, nil
}

// DeleteAll removes every record.
func (c *conn) DeleteAll(ctx context.Context) (int, error) {
	res, err := c.sqlDB.ExecContext(ctx, "DELETE FROM "+c.tableName())
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", c.tableName(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// Close closes the database handle.
func (c *conn) Close() error {
	return c.sqlDB.Close()
}
