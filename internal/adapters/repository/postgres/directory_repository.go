package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ogurasousui/site-access/internal/core/directory"
	pgdb "github.com/ogurasousui/site-access/internal/platform/db/postgres"
)

const employeeColumns = `
               e.id::text,
               e.identifier,
               e.version,
               e.vendor_id::text,
               e.name,
               e.status,
               e.bypass_concurrent_limit,
               e.allowed_dates,
               ARRAY(SELECT eg.gate_id::text FROM employee_gates eg WHERE eg.employee_id = e.id ORDER BY eg.gate_id),
               ARRAY(SELECT ez.zone_id::text FROM employee_zones ez WHERE ez.employee_id = e.id ORDER BY ez.zone_id),
               e.deleted_at,
               e.created_at,
               e.updated_at`

// DirectoryRepository は PostgreSQL 上の名簿を読み取ります。名簿の更新は外部の管理画面が行います。
type DirectoryRepository struct {
	pool pgdb.Queryer
}

// NewDirectoryRepository は DirectoryRepository を生成します。
func NewDirectoryRepository(pool pgdb.Queryer) *DirectoryRepository {
	return &DirectoryRepository{pool: pool}
}

// FindEmployeeByIdentifier は有効な従業員を識別子で取得します。
func (r *DirectoryRepository) FindEmployeeByIdentifier(ctx context.Context, identifier string) (*directory.Employee, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT`+employeeColumns+`
          FROM employees e
         WHERE e.identifier = $1
           AND e.deleted_at IS NULL
         LIMIT 1
    `, identifier)

	return scanEmployee(row)
}

// FindEmployeeByID は有効な従業員を ID で取得します。
func (r *DirectoryRepository) FindEmployeeByID(ctx context.Context, id string) (*directory.Employee, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, directory.ErrEmployeeNotFound
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT`+employeeColumns+`
          FROM employees e
         WHERE e.id = $1
           AND e.deleted_at IS NULL
         LIMIT 1
    `, id)

	return scanEmployee(row)
}

// FindVendorByID は業者を ID で取得します。
func (r *DirectoryRepository) FindVendorByID(ctx context.Context, id string) (*directory.Vendor, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, directory.ErrVendorNotFound
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT v.id::text,
               v.name,
               v.allowed_staff_count,
               v.allowed_in_count,
               ARRAY(SELECT vg.gate_id::text FROM vendor_gates vg WHERE vg.vendor_id = v.id ORDER BY vg.gate_id),
               ARRAY(SELECT vz.zone_id::text FROM vendor_zones vz WHERE vz.vendor_id = v.id ORDER BY vz.zone_id)
          FROM vendors v
         WHERE v.id = $1
    `, id)

	var v directory.Vendor
	if err := row.Scan(&v.ID, &v.Name, &v.AllowedStaffCount, &v.AllowedInCount, &v.GateIDs, &v.ZoneIDs); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, directory.ErrVendorNotFound
		}
		return nil, err
	}
	return &v, nil
}

// FindGateByID はゲートを ID で取得します。
func (r *DirectoryRepository) FindGateByID(ctx context.Context, id string) (*directory.Gate, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, directory.ErrGateNotFound
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `SELECT id::text, name FROM gates WHERE id = $1`, id)

	var g directory.Gate
	if err := row.Scan(&g.ID, &g.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, directory.ErrGateNotFound
		}
		return nil, err
	}
	return &g, nil
}

func scanEmployee(row pgx.Row) (*directory.Employee, error) {
	var (
		e         directory.Employee
		status    string
		deletedAt sql.NullTime
	)

	if err := row.Scan(
		&e.ID,
		&e.Identifier,
		&e.Version,
		&e.VendorID,
		&e.Name,
		&status,
		&e.BypassConcurrentLimit,
		&e.AllowedDates,
		&e.GateIDs,
		&e.ZoneIDs,
		&deletedAt,
		&e.CreatedAt,
		&e.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, directory.ErrEmployeeNotFound
		}
		return nil, err
	}

	e.Status = directory.Status(status)
	for i, d := range e.AllowedDates {
		e.AllowedDates[i] = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		e.DeletedAt = &t
	}
	return &e, nil
}
