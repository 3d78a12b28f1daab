package postgres

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/kindredapp/kindred/store"
)

func (d *DB) ListCoreValues(ctx context.Context, find *store.FindCoreValue) ([]*store.CoreValue, error) {
	query := `SELECT id, owner_id, name, description FROM core_value WHERE owner_id = ` + placeholder(1) + ` ORDER BY id ASC`
	rows, err := d.db.QueryContext(ctx, query, find.OwnerID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list core values")
	}
	defer rows.Close()

	list := []*store.CoreValue{}
	for rows.Next() {
		v := &store.CoreValue{}
		if err := rows.Scan(&v.ID, &v.OwnerID, &v.Name, &v.Description); err != nil {
			return nil, errors.Wrap(err, "failed to scan core value")
		}
		list = append(list, v)
	}
	return list, rows.Err()
}

func (d *DB) ListFocusAreas(ctx context.Context, find *store.FindFocusArea) ([]*store.FocusArea, error) {
	query := `SELECT id, owner_id, name, progress, active FROM focus_area WHERE owner_id = ` + placeholder(1)
	if find.ActiveOnly {
		query += ` AND active = TRUE`
	}
	query += ` ORDER BY id ASC`

	rows, err := d.db.QueryContext(ctx, query, find.OwnerID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list focus areas")
	}
	defer rows.Close()

	list := []*store.FocusArea{}
	for rows.Next() {
		f := &store.FocusArea{}
		if err := rows.Scan(&f.ID, &f.OwnerID, &f.Name, &f.Progress, &f.Active); err != nil {
			return nil, errors.Wrap(err, "failed to scan focus area")
		}
		list = append(list, f)
	}
	return list, rows.Err()
}

func (d *DB) ListMentors(ctx context.Context, find *store.FindMentor) ([]*store.Mentor, error) {
	query := `SELECT id, owner_id, name, expertise FROM mentor WHERE owner_id = ` + placeholder(1) + ` ORDER BY id ASC`
	rows, err := d.db.QueryContext(ctx, query, find.OwnerID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list mentors")
	}
	defer rows.Close()

	list := []*store.Mentor{}
	for rows.Next() {
		m := &store.Mentor{}
		if err := rows.Scan(&m.ID, &m.OwnerID, &m.Name, &m.Expertise); err != nil {
			return nil, errors.Wrap(err, "failed to scan mentor")
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func (d *DB) ListInteractions(ctx context.Context, find *store.FindInteraction) ([]*store.Interaction, error) {
	where, args := []string{"owner_id = " + placeholder(1)}, []any{find.OwnerID}
	if find.Since > 0 {
		where, args = append(where, "created_ts >= "+placeholder(len(args)+1)), append(args, find.Since)
	}

	query := `SELECT id, owner_id, summary, outcome, created_ts FROM interaction WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY created_ts DESC`
	if find.Limit > 0 {
		args = append(args, find.Limit)
		query += ` LIMIT ` + placeholder(len(args))
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list interactions")
	}
	defer rows.Close()

	list := []*store.Interaction{}
	for rows.Next() {
		i := &store.Interaction{}
		if err := rows.Scan(&i.ID, &i.OwnerID, &i.Summary, &i.Outcome, &i.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan interaction")
		}
		list = append(list, i)
	}
	return list, rows.Err()
}
