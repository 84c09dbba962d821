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

const planColumns = `audit_id, auditor_id, store_id, audit_priority, audit_status`

const planViewSelect = `SELECT p.audit_id, p.audit_status, p.audit_priority, a.auditor_id, a.name, s.store_id, s.name
	FROM audit_plan p
	JOIN auditors a ON a.auditor_id = p.auditor_id
	JOIN store s ON s.store_id = p.store_id`

type AuditPlanRepository struct {
	db database.DBTX
}

func scanPlan(row rowScanner) (models.AuditPlan, error) {
	var p models.AuditPlan
	err := row.Scan(&p.ID, &p.AuditorID, &p.StoreID, &p.Priority, &p.Status)
	return p, err
}

func scanPlanView(row rowScanner) (models.AuditPlanView, error) {
	var v models.AuditPlanView
	err := row.Scan(&v.AuditID, &v.AuditStatus, &v.AuditPriority, &v.AuditorID, &v.AuditorName, &v.StoreID, &v.StoreName)
	return v, err
}

func (r *AuditPlanRepository) Create(ctx context.Context, p *models.AuditPlan) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO audit_plan (auditor_id, store_id, audit_priority, audit_status)
		 VALUES ($1, $2, $3, $4) RETURNING audit_id`,
		p.AuditorID, p.StoreID, p.Priority, p.Status,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert audit plan: %w", err)
	}
	return nil
}

func (r *AuditPlanRepository) one(ctx context.Context, query string, args ...any) (*models.AuditPlan, error) {
	p, err := scanPlan(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get audit plan: %w", err)
	}
	return &p, nil
}

func (r *AuditPlanRepository) GetByID(ctx context.Context, id int64) (*models.AuditPlan, error) {
	return r.one(ctx, `SELECT `+planColumns+` FROM audit_plan WHERE audit_id = $1`, id)
}

func (r *AuditPlanRepository) GetByStore(ctx context.Context, storeID int64) (*models.AuditPlan, error) {
	return r.one(ctx, `SELECT `+planColumns+` FROM audit_plan WHERE store_id = $1 ORDER BY audit_id LIMIT 1`, storeID)
}

func (r *AuditPlanRepository) list(ctx context.Context, query string, args ...any) ([]models.AuditPlan, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit plans: %w", err)
	}
	defer rows.Close()

	out := []models.AuditPlan{}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit plan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *AuditPlanRepository) ListByAuditor(ctx context.Context, auditorID int64) ([]models.AuditPlan, error) {
	return r.list(ctx, `SELECT `+planColumns+` FROM audit_plan WHERE auditor_id = $1 ORDER BY audit_id`, auditorID)
}

func (r *AuditPlanRepository) List(ctx context.Context) ([]models.AuditPlan, error) {
	return r.list(ctx, `SELECT `+planColumns+` FROM audit_plan ORDER BY audit_id`)
}

func (r *AuditPlanRepository) ExistsForAuditor(ctx context.Context, auditorID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM audit_plan WHERE auditor_id = $1)`, auditorID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check auditor plans: %w", err)
	}
	return exists, nil
}

func (r *AuditPlanRepository) GetView(ctx context.Context, id int64) (*models.AuditPlanView, error) {
	v, err := scanPlanView(r.db.QueryRowContext(ctx, planViewSelect+` WHERE p.audit_id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get audit plan view %d: %w", id, err)
	}
	return &v, nil
}

func (r *AuditPlanRepository) ListViews(ctx context.Context) ([]models.AuditPlanView, error) {
	rows, err := r.db.QueryContext(ctx, planViewSelect+` ORDER BY p.audit_id`)
	if err != nil {
		return nil, fmt.Errorf("query audit plan views: %w", err)
	}
	defer rows.Close()

	out := []models.AuditPlanView{}
	for rows.Next() {
		v, err := scanPlanView(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit plan view: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *AuditPlanRepository) Update(ctx context.Context, p *models.AuditPlan) error {
	return execOne(ctx, r.db,
		`UPDATE audit_plan SET auditor_id = $2, store_id = $3, audit_priority = $4, audit_status = $5 WHERE audit_id = $1`,
		p.ID, p.AuditorID, p.StoreID, p.Priority, p.Status)
}

func (r *AuditPlanRepository) Delete(ctx context.Context, id int64) error {
	return execOne(ctx, r.db, `DELETE FROM audit_plan WHERE audit_id = $1`, id)
}
