// Package migrations embeds the goose SQL files for the master tenant
// registry and for every tenant database.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed master/sqlite/*.sql master/mysql/*.sql tenant/*.sql
var files embed.FS

// Tenant returns the migrations applied to each tenant SQLite file.
func Tenant() fs.FS {
	sub, _ := fs.Sub(files, "tenant")
	return sub
}

// Master returns the registry migrations and goose dialect for driver.
func Master(driver string) (fs.FS, goose.Dialect, error) {
	switch driver {
	case "sqlite":
		sub, err := fs.Sub(files, "master/sqlite")
		return sub, goose.DialectSQLite3, err
	case "mysql":
		sub, err := fs.Sub(files, "master/mysql")
		return sub, goose.DialectMySQL, err
	}
	return nil, "", fmt.Errorf("migrations: no master schema for driver %q", driver)
}
