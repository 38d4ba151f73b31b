package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ogurasousui/site-access/internal/core/directory"
	"github.com/ogurasousui/site-access/internal/core/ledger"
	pgdb "github.com/ogurasousui/site-access/internal/platform/db/postgres"
)

const (
	foreignKeyViolationCode = "23503"
	checkViolationCode      = "23514"

	sweepLockKey = "ledger-sweep"
)

const activityColumns = `id::text, employee_id::text, gate_id::text, scanner_id, type, status, denial_reason, scanned_at`

// ActivityRepository は追記専用台帳の PostgreSQL 実装です。UPDATE と DELETE は発行しません。
type ActivityRepository struct {
	pool pgdb.Queryer
}

// NewActivityRepository は ActivityRepository を生成します。
func NewActivityRepository(pool pgdb.Queryer) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

// Append は記録を追記します。ID が空なら採番します。
func (r *ActivityRepository) Append(ctx context.Context, a *ledger.Activity) (*ledger.Activity, error) {
	if _, err := uuid.Parse(a.EmployeeID); err != nil {
		return nil, directory.ErrEmployeeNotFound
	}
	if _, err := uuid.Parse(a.GateID); err != nil {
		return nil, directory.ErrGateNotFound
	}

	id := a.ID
	if id == "" {
		id = uuid.NewString()
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        INSERT INTO activities (id, employee_id, gate_id, scanner_id, type, status, denial_reason, scanned_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING `+activityColumns,
		id,
		a.EmployeeID,
		a.GateID,
		a.ScannerID,
		string(a.Type),
		string(a.Status),
		a.DenialReason,
		a.ScannedAt,
	)

	created, err := scanActivity(row)
	if err != nil {
		return nil, translateActivityPgError(err)
	}
	return created, nil
}

// Latest は従業員の最新記録を返します。
func (r *ActivityRepository) Latest(ctx context.Context, employeeID string) (*ledger.Activity, error) {
	if _, err := uuid.Parse(employeeID); err != nil {
		return nil, ledger.ErrNoActivity
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT `+activityColumns+`
          FROM activities
         WHERE employee_id = $1
         ORDER BY scanned_at DESC, seq DESC
         LIMIT 1
    `, employeeID)

	latest, err := scanActivity(row)
	if err != nil {
		return nil, translateActivityPgError(err)
	}
	return latest, nil
}

// RecentByEmployee は従業員の記録を新しい順に最大 limit 件返します。
func (r *ActivityRepository) RecentByEmployee(ctx context.Context, employeeID string, limit int) ([]*ledger.Activity, error) {
	if _, err := uuid.Parse(employeeID); err != nil {
		return []*ledger.Activity{}, nil
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, `
        SELECT `+activityColumns+`
          FROM activities
         WHERE employee_id = $1
         ORDER BY scanned_at DESC, seq DESC
         LIMIT $2
    `, employeeID, limit)
	if err != nil {
		return nil, translateActivityPgError(err)
	}
	return collectActivities(rows, limit)
}

// List は条件に合う記録を新しい順に返します。
func (r *ActivityRepository) List(ctx context.Context, filter ledger.Filter) ([]*ledger.Activity, error) {
	args := make([]any, 0, 6)
	conditions := make([]string, 0, 5)

	placeholder := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.GateID != "" {
		if _, err := uuid.Parse(filter.GateID); err != nil {
			return []*ledger.Activity{}, nil
		}
		conditions = append(conditions, "gate_id = "+placeholder(filter.GateID))
	}
	if filter.ScannerID != "" {
		conditions = append(conditions, "scanner_id = "+placeholder(filter.ScannerID))
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = "+placeholder(string(*filter.Status)))
	}
	if filter.Type != nil {
		conditions = append(conditions, "type = "+placeholder(string(*filter.Type)))
	}
	if filter.Since != nil {
		conditions = append(conditions, "scanned_at >= "+placeholder(*filter.Since))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}
	limitPlaceholder := placeholder(filter.Limit)

	query := `
        SELECT ` + activityColumns + `
          FROM activities` + whereClause + `
         ORDER BY scanned_at DESC, seq DESC
         LIMIT ` + limitPlaceholder + `
    `

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, query, args...)
	if err != nil {
		return nil, translateActivityPgError(err)
	}
	return collectActivities(rows, filter.Limit)
}

// CountOnSite は業者の在場人数を返します。論理削除済みと上限対象外の従業員は数えません。
func (r *ActivityRepository) CountOnSite(ctx context.Context, vendorID string) (int, error) {
	if _, err := uuid.Parse(vendorID); err != nil {
		return 0, nil
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT COUNT(*)
          FROM employees e
         CROSS JOIN LATERAL (
                SELECT a.type, a.status
                  FROM activities a
                 WHERE a.employee_id = e.id
                 ORDER BY a.scanned_at DESC, a.seq DESC
                 LIMIT 1
               ) latest
         WHERE e.vendor_id = $1
           AND e.deleted_at IS NULL
           AND e.bypass_concurrent_limit = FALSE
           AND latest.type = 'ENTRY'
           AND latest.status = 'GRANTED'
    `, vendorID)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// CloseStaleEntries は最新記録が in.Before より前の ENTRY/GRANTED である従業員ごとに、
// 同じゲートの EXIT/GRANTED を 1 件ずつ追記します。
func (r *ActivityRepository) CloseStaleEntries(ctx context.Context, in ledger.CloseStaleInput) (int, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	tag, err := exec.Exec(ctx, `
        INSERT INTO activities (employee_id, gate_id, scanner_id, type, status, scanned_at)
        SELECT latest.employee_id, latest.gate_id, $3::text, 'EXIT', 'GRANTED', $2::timestamptz
          FROM (
                SELECT DISTINCT ON (a.employee_id) a.employee_id, a.gate_id, a.type, a.status, a.scanned_at
                  FROM activities a
                 ORDER BY a.employee_id, a.scanned_at DESC, a.seq DESC
               ) latest
         WHERE latest.type = 'ENTRY'
           AND latest.status = 'GRANTED'
           AND latest.scanned_at < $1
    `, in.Before, in.At, in.ScannerID)
	if err != nil {
		return 0, translateActivityPgError(err)
	}
	return int(tag.RowsAffected()), nil
}

// LockVendor は業者単位の入場判定をトランザクション終了まで直列化します。
func (r *ActivityRepository) LockVendor(ctx context.Context, vendorID string) error {
	return pgdb.AdvisoryXactLock(ctx, pgdb.LockNamespaceVendorAdmission, vendorID)
}

// LockSweep は一括退場をトランザクション終了まで直列化します。
func (r *ActivityRepository) LockSweep(ctx context.Context) error {
	return pgdb.AdvisoryXactLock(ctx, pgdb.LockNamespaceLedgerSweep, sweepLockKey)
}

func collectActivities(rows pgx.Rows, capacity int) ([]*ledger.Activity, error) {
	defer rows.Close()

	activities := make([]*ledger.Activity, 0, capacity)
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, translateActivityPgError(err)
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, translateActivityPgError(err)
	}
	return activities, nil
}

func scanActivity(row pgx.Row) (*ledger.Activity, error) {
	var (
		a            ledger.Activity
		scannerID    sql.NullString
		typ          string
		status       string
		denialReason sql.NullString
	)

	if err := row.Scan(
		&a.ID,
		&a.EmployeeID,
		&a.GateID,
		&scannerID,
		&typ,
		&status,
		&denialReason,
		&a.ScannedAt,
	); err != nil {
		return nil, err
	}

	a.Type = ledger.Type(typ)
	a.Status = ledger.Status(status)
	if scannerID.Valid {
		v := scannerID.String
		a.ScannerID = &v
	}
	if denialReason.Valid {
		v := denialReason.String
		a.DenialReason = &v
	}
	return &a, nil
}

func translateActivityPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.ErrNoActivity
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case foreignKeyViolationCode:
			switch pgErr.ConstraintName {
			case "activities_employee_id_fkey":
				return directory.ErrEmployeeNotFound
			case "activities_gate_id_fkey":
				return directory.ErrGateNotFound
			}
		case checkViolationCode:
			switch pgErr.ConstraintName {
			case "activities_type_check":
				return ledger.ErrInvalidType
			case "activities_status_check":
				return ledger.ErrInvalidStatus
			}
		}
	}

	return err
}
