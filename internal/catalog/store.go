package catalog

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides database operations for the SKU catalog.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const skuColumns = `name, cpu_cores, ram_gb, list_monthly_usd, created_at, updated_at`

func scanSKU(row pgx.Row) (*SKUSpec, error) {
	var s SKUSpec
	err := row.Scan(
		&s.Name,
		&s.CPUCores,
		&s.RAMGB,
		&s.ListMonthly,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Upsert inserts a SKU spec or replaces its capacity and price by name.
func (s *Store) Upsert(ctx context.Context, input UpsertSKUInput) (*SKUSpec, error) {
	query := fmt.Sprintf(`INSERT INTO sku_specs (name, cpu_cores, ram_gb, list_monthly_usd)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			cpu_cores = EXCLUDED.cpu_cores,
			ram_gb = EXCLUDED.ram_gb,
			list_monthly_usd = EXCLUDED.list_monthly_usd,
			updated_at = now()
		RETURNING %s`, skuColumns)

	row := s.pool.QueryRow(ctx, query,
		input.Name,
		input.CPUCores,
		input.RAMGB,
		input.ListMonthly,
	)
	return scanSKU(row)
}

// GetByName retrieves a SKU spec by its name.
func (s *Store) GetByName(ctx context.Context, name string) (*SKUSpec, error) {
	query := fmt.Sprintf(`SELECT %s FROM sku_specs WHERE name = $1`, skuColumns)
	return scanSKU(s.pool.QueryRow(ctx, query, name))
}

// Index returns every SKU spec keyed by name.
func (s *Store) Index(ctx context.Context) (map[string]SKUSpec, error) {
	query := fmt.Sprintf(`SELECT %s FROM sku_specs`, skuColumns)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("loading sku catalog: %w", err)
	}
	defer rows.Close()

	index := make(map[string]SKUSpec)
	for rows.Next() {
		spec, err := scanSKU(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sku spec: %w", err)
		}
		index[spec.Name] = *spec
	}
	return index, rows.Err()
}

// List returns a page of SKU specs ordered by created_at DESC, name DESC
// with cursor-based pagination.
func (s *Store) List(ctx context.Context, params ListParams) ([]*SKUSpec, string, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}

	args := []any{}
	where := ""
	if params.Cursor != "" {
		cursorTime, cursorName, err := decodeCursor(params.Cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", err)
		}
		where = "WHERE (created_at, name) < ($1, $2)"
		args = append(args, cursorTime, cursorName)
	}

	query := fmt.Sprintf(`SELECT %s FROM sku_specs %s ORDER BY created_at DESC, name DESC LIMIT $%d`,
		skuColumns, where, len(args)+1)
	args = append(args, limit+1) // fetch one extra to determine next cursor

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("listing sku specs: %w", err)
	}
	defer rows.Close()

	var specs []*SKUSpec
	for rows.Next() {
		spec, err := scanSKU(rows)
		if err != nil {
			return nil, "", fmt.Errorf("scanning sku spec: %w", err)
		}
		specs = append(specs, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterating sku specs: %w", err)
	}

	var nextCursor string
	if len(specs) > limit {
		last := specs[limit-1]
		nextCursor = encodeCursor(last.CreatedAt, last.Name)
		specs = specs[:limit]
	}

	return specs, nextCursor, nil
}

// Delete removes a SKU spec by name.
func (s *Store) Delete(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sku_specs WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("deleting sku spec: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func encodeCursor(createdAt time.Time, name string) string {
	raw := fmt.Sprintf("%s|%s", createdAt.Format(time.RFC3339Nano), name)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, string, error) {
	data, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("decoding cursor: %w", err)
	}
	parts := strings.SplitN(string(data), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", fmt.Errorf("invalid cursor format")
	}
	t, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("parsing cursor timestamp: %w", err)
	}
	return t, parts[1], nil
}
