package datastore

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/guianderson/terrama2/internal/conf"
)

const sqliteMemory = ":memory:"

func sqliteDialector(cfg *conf.SQLiteSettings) (gorm.Dialector, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite output path is empty")
	}
	if cfg.Path != sqliteMemory {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	return sqlite.Open(cfg.Path), nil
}
