package swap

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jaennil/guide_helper/backend/tilestore/internal/tile"
)

// TileDirDriver stores one file per tile under root/z/x/y.
type TileDirDriver struct {
	root string
}

var _ Driver = (*TileDirDriver)(nil)

func NewTileDirDriver(root string) (*TileDirDriver, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create tile dir: %w", err)
	}
	return &TileDirDriver{root: root}, nil
}

func (d *TileDirDriver) Get(c tile.Coord) ([]byte, bool, error) {
	content, err := os.ReadFile(d.keyToPath(c))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return content, true, nil
}

func (d *TileDirDriver) Set(c tile.Coord, v []byte) error {
	path := d.keyToPath(c)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, v, 0o600)
}

func (d *TileDirDriver) Delete(c tile.Coord) error {
	err := os.Remove(d.keyToPath(c))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (d *TileDirDriver) Close() error {
	return os.RemoveAll(d.root)
}

func (d *TileDirDriver) keyToPath(c tile.Coord) string {
	return filepath.Join(d.root, strconv.Itoa(c.Z), strconv.Itoa(c.X), strconv.Itoa(c.Y))
}
