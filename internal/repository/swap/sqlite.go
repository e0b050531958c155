package swap

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/jaennil/guide_helper/backend/tilestore/internal/tile"
	"github.com/jaennil/guide_helper/backend/tilestore/pkg/logger"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its settings in package globals.
var migrateMu sync.Mutex

type SQLiteDriver struct {
	db     *sql.DB
	path   string
	logger logger.Logger
}

var _ Driver = (*SQLiteDriver)(nil)

func NewSQLiteDriver(path string, l logger.Logger) (*SQLiteDriver, error) {
	l = logger.OrNop(l)

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, err
	}

	d := &SQLiteDriver{
		db:     db,
		path:   path,
		logger: l,
	}

	err = d.runMigrations()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate swap database: %w", err)
	}

	l.Debug("sqlite swap initialized", "path", path)

	return d, nil
}

func (d *SQLiteDriver) runMigrations() error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	err := goose.SetDialect("sqlite3")
	if err != nil {
		return err
	}

	return goose.Up(d.db, "migrations")
}

func (d *SQLiteDriver) Get(k tile.Coord) ([]byte, bool, error) {
	query := `SELECT tile_data
	FROM swap_tiles
	WHERE x = ? AND y = ? AND z = ?`

	var tileData []byte
	err := d.db.QueryRow(query, k.X, k.Y, k.Z).Scan(&tileData)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		d.logger.Error("sqlite swap get failed", "z", k.Z, "x", k.X, "y", k.Y, "error", err)
		return nil, false, err
	}

	return tileData, true, nil
}

func (d *SQLiteDriver) Set(k tile.Coord, v []byte) error {
	query := `INSERT INTO swap_tiles (x, y, z, tile_data)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(x, y, z) DO UPDATE SET tile_data = excluded.tile_data`

	_, err := d.db.Exec(query, k.X, k.Y, k.Z, v)
	if err != nil {
		d.logger.Error("sqlite swap set failed", "z", k.Z, "x", k.X, "y", k.Y, "error", err)
		return err
	}

	return nil
}

func (d *SQLiteDriver) Delete(k tile.Coord) error {
	_, err := d.db.Exec(`DELETE FROM swap_tiles WHERE x = ? AND y = ? AND z = ?`, k.X, k.Y, k.Z)
	return err
}

func (d *SQLiteDriver) Close() error {
	if err := d.db.Close(); err != nil {
		return err
	}
	if err := os.Remove(d.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
