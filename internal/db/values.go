package db

import (
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"cropwatch/internal/models"
)

// collectMaps reads every row into a column map with driver-specific values
// flattened to plain Go types.
func collectMaps(rows pgx.Rows) ([]map[string]any, error) {
	out, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	for _, m := range out {
		flatten(m)
	}
	return out, nil
}

func flatten(m map[string]any) {
	for k, v := range m {
		m[k] = plainValue(v)
	}
}

func plainValue(v any) any {
	switch t := v.(type) {
	case pgtype.Numeric:
		f, err := t.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(t).String()
	case time.Time:
		return t.UTC()
	}
	return v
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// TableIdent returns a quoted identifier for a history table name, falling
// back to the default table when the name is not a plain identifier.
func TableIdent(name string) string {
	if !identifierPattern.MatchString(name) {
		name = models.DefaultHistoryTable
	}
	return pgx.Identifier{name}.Sanitize()
}
