package marketdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// EntityProvider supplies the reference set of valid entity identifiers.
// The set is loaded once per process lifetime and cached by the filter;
// a refreshed set requires a process restart.
type EntityProvider interface {
	ValidEntities(ctx context.Context) (map[string]bool, error)
}

// StaticEntityProvider serves a fixed entity set, mainly for tests and tools.
type StaticEntityProvider struct {
	entities map[string]bool
}

// NewStaticEntityProvider copies the given ids into a provider.
func NewStaticEntityProvider(ids ...string) *StaticEntityProvider {
	entities := make(map[string]bool, len(ids))
	for _, id := range ids {
		entities[id] = true
	}
	return &StaticEntityProvider{entities: entities}
}

// ValidEntities returns a copy of the fixed set.
func (p *StaticEntityProvider) ValidEntities(ctx context.Context) (map[string]bool, error) {
	_ = ctx
	out := make(map[string]bool, len(p.entities))
	for id := range p.entities {
		out[id] = true
	}
	return out, nil
}

const defaultEntityTable = "valid_entities"

// PostgresEntityProvider loads the reference entity set from a table.
type PostgresEntityProvider struct {
	db    *sql.DB
	table string
}

// NewPostgresEntityProvider constructs a provider over the default table.
func NewPostgresEntityProvider(db *sql.DB) *PostgresEntityProvider {
	return &PostgresEntityProvider{db: db, table: defaultEntityTable}
}

// ValidEntities loads every entity id currently marked valid.
func (p *PostgresEntityProvider) ValidEntities(ctx context.Context) (map[string]bool, error) {
	query := fmt.Sprintf(`SELECT entity_id FROM %s WHERE is_valid`, p.table)
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entities := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		entities[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, errors.New("marketdata: empty valid entity set")
	}
	return entities, nil
}
