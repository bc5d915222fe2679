package datastore

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/guianderson/terrama2/internal/conf"
)

func mysqlDialector(cfg *conf.MySQLSettings) (gorm.Dialector, error) {
	if cfg.Host == "" || cfg.Database == "" {
		return nil, fmt.Errorf("mysql output needs host and database")
	}
	port := cfg.Port
	if port == "" {
		port = "3306"
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.Username, cfg.Password, cfg.Host, port, cfg.Database)
	return mysql.Open(dsn), nil
}
