package migrate

import (
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rotisserie/eris"
)

// Run applies all pending migrations in db/migrations using goose.
// It opens and closes its own DB handle so it is independent of the app store.
func Run(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return eris.Wrap(err, "migrate: open db")
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return eris.Wrap(err, "migrate: set dialect")
	}

	migrationsDir := "db/migrations"
	if err := goose.Up(db, migrationsDir); err != nil {
		return eris.Wrap(err, "migrate: goose up")
	}

	return nil
}
