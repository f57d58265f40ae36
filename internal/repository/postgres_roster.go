package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"iuran-data/internal/domain"

	"github.com/lib/pq"
)

// PostgresRosterStore 名册Repository实现（lib/pq）
type PostgresRosterStore struct {
	db *sql.DB
}

// NewPostgresRosterStore 创建名册Repository
func NewPostgresRosterStore(db *sql.DB) *PostgresRosterStore {
	return &PostgresRosterStore{db: db}
}

const rosterColumns = `
	r.id::text,
	r.nik,
	r.full_name,
	r.role,
	r.rt_rw,
	r.housing_complex_id::text,
	r.access_token,
	r.is_claimed,
	r.claimed_at,
	r.created_at,
	hc.name`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoster(s rowScanner) (*domain.RosterEntry, error) {
	var (
		e         domain.RosterEntry
		role      string
		rtRw      sql.NullString
		complexID sql.NullString
		claimedAt sql.NullTime
		name      sql.NullString
	)
	if err := s.Scan(
		&e.ID,
		&e.NIK,
		&e.FullName,
		&role,
		&rtRw,
		&complexID,
		&e.AccessToken,
		&e.IsClaimed,
		&claimedAt,
		&e.CreatedAt,
		&name,
	); err != nil {
		return nil, err
	}
	e.Role = domain.Role(role)
	e.RTRW = nullStringPtr(rtRw)
	e.HousingComplexID = nullStringPtr(complexID)
	e.HousingComplexName = nullStringPtr(name)
	if claimedAt.Valid {
		t := claimedAt.Time
		e.ClaimedAt = &t
	}
	return &e, nil
}

// ListRoster 查询名册（JOIN housing_complexes 获取名称）
func (r *PostgresRosterStore) ListRoster(ctx context.Context, q RosterQuery) ([]*domain.RosterEntry, error) {
	args := []any{}
	argN := 1

	whereClause := ""
	if q.HousingComplexID != nil {
		whereClause = fmt.Sprintf("WHERE r.housing_complex_id = $%d", argN)
		args = append(args, *q.HousingComplexID)
		argN++
	}

	orderClause := "ORDER BY r.created_at DESC"
	if q.Order == OrderNameAsc {
		orderClause = "ORDER BY r.full_name ASC"
	}

	limitClause := ""
	if !q.Unbounded() {
		limitClause = fmt.Sprintf("LIMIT $%d OFFSET $%d", argN, argN+1)
		args = append(args, q.Limit(), q.From)
	}

	query := `
		SELECT` + rosterColumns + `
		FROM roster_entries r
		LEFT JOIN housing_complexes hc ON hc.id = r.housing_complex_id
		` + whereClause + `
		` + orderClause + `
		` + limitClause

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapPQError(err)
	}
	defer rows.Close()

	out := []*domain.RosterEntry{}
	for rows.Next() {
		e, err := scanRoster(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetRoster 查询单条名册
func (r *PostgresRosterStore) GetRoster(ctx context.Context, id string) (*domain.RosterEntry, error) {
	query := `
		SELECT` + rosterColumns + `
		FROM roster_entries r
		LEFT JOIN housing_complexes hc ON hc.id = r.housing_complex_id
		WHERE r.id = $1`

	e, err := scanRoster(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("roster_entries", id)
		}
		return nil, mapPQError(err)
	}
	return e, nil
}

// ListAvatars 按 NIK 批量查询头像
func (r *PostgresRosterStore) ListAvatars(ctx context.Context, niks []string) ([]*domain.ProfileAvatar, error) {
	if len(niks) == 0 {
		return []*domain.ProfileAvatar{}, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT nik, avatar_url FROM profiles WHERE nik = ANY($1)`,
		pq.Array(niks),
	)
	if err != nil {
		return nil, mapPQError(err)
	}
	defer rows.Close()

	out := []*domain.ProfileAvatar{}
	for rows.Next() {
		var (
			a   domain.ProfileAvatar
			url sql.NullString
		)
		if err := rows.Scan(&a.NIK, &url); err != nil {
			return nil, err
		}
		a.AvatarURL = nullStringPtr(url)
		out = append(out, &a)
	}
	return out, rows.Err()
}

// ListHousingComplexes 查询全部住宅区
func (r *PostgresRosterStore) ListHousingComplexes(ctx context.Context) ([]*domain.HousingComplex, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id::text, name FROM housing_complexes ORDER BY name`)
	if err != nil {
		return nil, mapPQError(err)
	}
	defer rows.Close()

	out := []*domain.HousingComplex{}
	for rows.Next() {
		var h domain.HousingComplex
		if err := rows.Scan(&h.ID, &h.Name); err != nil {
			return nil, err
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

// CountRoster 只计数，不取行
func (r *PostgresRosterStore) CountRoster(ctx context.Context, f CountFilter) (int, error) {
	where := []string{}
	args := []any{}
	argN := 1
	if f.Role != nil {
		where = append(where, fmt.Sprintf("role = $%d", argN))
		args = append(args, string(*f.Role))
		argN++
	}
	if f.IsClaimed != nil {
		where = append(where, fmt.Sprintf("is_claimed = $%d", argN))
		args = append(args, *f.IsClaimed)
		argN++
	}

	query := `SELECT COUNT(*) FROM roster_entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, mapPQError(err)
	}
	return total, nil
}

// InsertRoster 新增名册；access_token/is_claimed/created_at 由数据库生成
func (r *PostgresRosterStore) InsertRoster(ctx context.Context, fields domain.RosterFields) (*domain.RosterEntry, error) {
	query := `
		WITH r AS (
			INSERT INTO roster_entries (nik, full_name, role, rt_rw, housing_complex_id, is_claimed)
			VALUES ($1, $2, $3, $4, $5, FALSE)
			RETURNING *
		)
		SELECT` + rosterColumns + `
		FROM r
		LEFT JOIN housing_complexes hc ON hc.id = r.housing_complex_id`

	e, err := scanRoster(r.db.QueryRowContext(ctx, query,
		fields.NIK,
		fields.FullName,
		string(fields.Role),
		nullableString(fields.RTRW),
		nullableString(fields.HousingComplexID),
	))
	if err != nil {
		return nil, mapPQError(err)
	}
	return e, nil
}

// UpdateRoster 部分更新可变字段
func (r *PostgresRosterStore) UpdateRoster(ctx context.Context, id string, patch domain.RosterPatch) (*domain.RosterEntry, error) {
	if patch.Empty() {
		return r.GetRoster(ctx, id)
	}

	setParts := []string{}
	args := []any{}
	argN := 1

	if patch.NIK != nil {
		setParts = append(setParts, fmt.Sprintf("nik = $%d", argN))
		args = append(args, *patch.NIK)
		argN++
	}
	if patch.FullName != nil {
		setParts = append(setParts, fmt.Sprintf("full_name = $%d", argN))
		args = append(args, *patch.FullName)
		argN++
	}
	if patch.Role != nil {
		setParts = append(setParts, fmt.Sprintf("role = $%d", argN))
		args = append(args, string(*patch.Role))
		argN++
	}
	if patch.RTRW != nil {
		setParts = append(setParts, fmt.Sprintf("rt_rw = $%d", argN))
		args = append(args, nullableString(patch.RTRW))
		argN++
	}
	if patch.HousingComplexID != nil {
		setParts = append(setParts, fmt.Sprintf("housing_complex_id = $%d", argN))
		args = append(args, nullableString(patch.HousingComplexID))
		argN++
	}

	query := fmt.Sprintf(`
		WITH r AS (
			UPDATE roster_entries
			SET %s
			WHERE id = $%d
			RETURNING *
		)
		SELECT`+rosterColumns+`
		FROM r
		LEFT JOIN housing_complexes hc ON hc.id = r.housing_complex_id`,
		strings.Join(setParts, ", "), argN)
	args = append(args, id)

	e, err := scanRoster(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("roster_entries", id)
		}
		return nil, mapPQError(err)
	}
	return e, nil
}

// DeleteRoster 物理删除；不存在的 id 不报错
func (r *PostgresRosterStore) DeleteRoster(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM roster_entries WHERE id = $1`, id); err != nil {
		return mapPQError(err)
	}
	return nil
}

// mapPQError 保留 SQLSTATE，便于上层区分唯一约束冲突
func mapPQError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &StoreError{Code: string(pqErr.Code), Message: pqErr.Message, Err: err}
	}
	return err
}

func nullStringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// nullableString 空字符串写入 NULL
func nullableString(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}
