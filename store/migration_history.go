package store

// MigrationHistory records every service version that has migrated the
// database, newest version guarding against accidental downgrades.
type MigrationHistory struct {
	Version   string
	CreatedTs int64
}

type FindMigrationHistory struct {
}

type UpsertMigrationHistory struct {
	Version string
}
