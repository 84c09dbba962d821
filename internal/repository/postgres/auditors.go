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

const auditorColumns = `auditor_id, name, home_lat, home_lon, workload_capacity_hours, current_assigned_hours, availability_status`

type AuditorRepository struct {
	db database.DBTX
}

func scanAuditor(row rowScanner) (models.Auditor, error) {
	var a models.Auditor
	err := row.Scan(&a.ID, &a.Name, &a.HomeLat, &a.HomeLon, &a.WorkloadCapacityHours, &a.CurrentAssignedHours, &a.AvailabilityStatus)
	return a, err
}

func (r *AuditorRepository) Create(ctx context.Context, a *models.Auditor) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO auditors (name, home_lat, home_lon, workload_capacity_hours, current_assigned_hours, availability_status)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING auditor_id`,
		a.Name, a.HomeLat, a.HomeLon, a.WorkloadCapacityHours, a.CurrentAssignedHours, a.AvailabilityStatus,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert auditor: %w", err)
	}
	return nil
}

func (r *AuditorRepository) GetByID(ctx context.Context, id int64) (*models.Auditor, error) {
	a, err := scanAuditor(r.db.QueryRowContext(ctx,
		`SELECT `+auditorColumns+` FROM auditors WHERE auditor_id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get auditor %d: %w", id, err)
	}
	return &a, nil
}

func (r *AuditorRepository) query(ctx context.Context, query string, args ...any) ([]models.Auditor, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query auditors: %w", err)
	}
	defer rows.Close()

	out := []models.Auditor{}
	for rows.Next() {
		a, err := scanAuditor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan auditor: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AuditorRepository) List(ctx context.Context) ([]models.Auditor, error) {
	return r.query(ctx, `SELECT `+auditorColumns+` FROM auditors ORDER BY auditor_id`)
}

func (r *AuditorRepository) ListByStatus(ctx context.Context, status models.AvailabilityStatus) ([]models.Auditor, error) {
	return r.query(ctx, `SELECT `+auditorColumns+` FROM auditors WHERE availability_status = $1 ORDER BY auditor_id`, status)
}

func (r *AuditorRepository) ListAvailableUnplanned(ctx context.Context) ([]models.Auditor, error) {
	return r.query(ctx, `SELECT `+auditorColumns+` FROM auditors a
		WHERE a.availability_status = $1
		  AND NOT EXISTS (SELECT 1 FROM audit_plan p WHERE p.auditor_id = a.auditor_id)
		ORDER BY a.auditor_id`, models.AvailabilityAvailable)
}

func (r *AuditorRepository) ListAvailableExcept(ctx context.Context, id int64) ([]models.Auditor, error) {
	return r.query(ctx, `SELECT `+auditorColumns+` FROM auditors
		WHERE availability_status = $1 AND auditor_id <> $2
		ORDER BY auditor_id`, models.AvailabilityAvailable, id)
}

func (r *AuditorRepository) UpdateStatus(ctx context.Context, id int64, status models.AvailabilityStatus) error {
	return execOne(ctx, r.db, `UPDATE auditors SET availability_status = $2 WHERE auditor_id = $1`, id, status)
}

func (r *AuditorRepository) UpdateAssignedHours(ctx context.Context, id int64, hours float64) error {
	return execOne(ctx, r.db, `UPDATE auditors SET current_assigned_hours = $2 WHERE auditor_id = $1`, id, hours)
}

// execOne runs a single-row write and maps zero affected rows to ErrNotFound.
func execOne(ctx context.Context, db database.DBTX, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
