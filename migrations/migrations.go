package migrations

import (
	"embed"
)

//go:embed sqlite/*.sql postgres/*.sql
var embedMigrations embed.FS

func GetMigrations() embed.FS {
	return embedMigrations
}
