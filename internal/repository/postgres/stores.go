package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"audit-planner/internal/common/database"
	"audit-planner/internal/models"
	"audit-planner/internal/repository"
)

const storeColumns = `store_id, name, address, location_lat, location_lon, store_status`

type StoreRepository struct {
	db database.DBTX
}

func scanStore(row rowScanner) (models.Store, error) {
	var s models.Store
	err := row.Scan(&s.ID, &s.Name, &s.Address, &s.LocationLat, &s.LocationLon, &s.StoreStatus)
	return s, err
}

func (r *StoreRepository) Create(ctx context.Context, s *models.Store) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO store (name, address, location_lat, location_lon, store_status)
		 VALUES ($1, $2, $3, $4, $5) RETURNING store_id`,
		s.Name, s.Address, s.LocationLat, s.LocationLon, s.StoreStatus,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("insert store: %w", err)
	}
	return nil
}

func (r *StoreRepository) GetByID(ctx context.Context, id int64) (*models.Store, error) {
	s, err := scanStore(r.db.QueryRowContext(ctx, `SELECT `+storeColumns+` FROM store WHERE store_id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get store %d: %w", id, err)
	}
	return &s, nil
}

func (r *StoreRepository) query(ctx context.Context, query string, args ...any) ([]models.Store, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stores: %w", err)
	}
	defer rows.Close()

	out := []models.Store{}
	for rows.Next() {
		s, err := scanStore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *StoreRepository) List(ctx context.Context) ([]models.Store, error) {
	return r.query(ctx, `SELECT `+storeColumns+` FROM store ORDER BY store_id`)
}

func (r *StoreRepository) ListByStatus(ctx context.Context, status models.StoreStatus) ([]models.Store, error) {
	return r.query(ctx, `SELECT `+storeColumns+` FROM store WHERE store_status = $1 ORDER BY store_id`, status)
}

func (r *StoreRepository) ListOpenUnplanned(ctx context.Context) ([]models.Store, error) {
	return r.query(ctx, `SELECT `+storeColumns+` FROM store s
		WHERE s.store_status = $1
		  AND NOT EXISTS (SELECT 1 FROM audit_plan p WHERE p.store_id = s.store_id)
		ORDER BY s.store_id`, models.StoreOpen)
}

func (r *StoreRepository) UpdateStatus(ctx context.Context, id int64, status models.StoreStatus) error {
	return execOne(ctx, r.db, `UPDATE store SET store_status = $2 WHERE store_id = $1`, id, status)
}
