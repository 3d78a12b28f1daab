package db

import (
	"github.com/pkg/errors"

	"github.com/kindredapp/kindred/internal/profile"
	"github.com/kindredapp/kindred/store"
	"github.com/kindredapp/kindred/store/db/postgres"
	"github.com/kindredapp/kindred/store/db/sqlite"
)

// NewDBDriver creates a new database driver based on the profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	switch profile.Driver {
	case "sqlite":
		return sqlite.NewDB(profile)
	case "postgres":
		return postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unsupported driver: %s", profile.Driver)
	}
}
