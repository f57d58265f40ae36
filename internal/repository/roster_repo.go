package repository

import (
	"context"
	"errors"
	"fmt"

	"iuran-data/internal/domain"
)

// RosterStore 名册数据访问接口（远端表存储能力）
// 使用强类型领域模型；唯一约束、排序由存储端保证
type RosterStore interface {
	// 查询
	ListRoster(ctx context.Context, q RosterQuery) ([]*domain.RosterEntry, error)
	GetRoster(ctx context.Context, id string) (*domain.RosterEntry, error)
	ListAvatars(ctx context.Context, niks []string) ([]*domain.ProfileAvatar, error)
	ListHousingComplexes(ctx context.Context) ([]*domain.HousingComplex, error)
	CountRoster(ctx context.Context, f CountFilter) (int, error)

	// 写入
	InsertRoster(ctx context.Context, fields domain.RosterFields) (*domain.RosterEntry, error)
	UpdateRoster(ctx context.Context, id string, patch domain.RosterPatch) (*domain.RosterEntry, error)
	DeleteRoster(ctx context.Context, id string) error
}

// RosterOrder 排序方式
type RosterOrder int

const (
	OrderCreatedDesc RosterOrder = iota // created_at DESC
	OrderNameAsc                        // full_name ASC
)

// RosterQuery 名册查询条件
// From/To 为闭区间行号（从 0 开始）；To < 0 表示不分页
type RosterQuery struct {
	HousingComplexID *string
	Order            RosterOrder
	From             int
	To               int
}

// Unbounded reports whether the query has no range.
func (q RosterQuery) Unbounded() bool { return q.To < 0 }

// Limit is the row count covered by [From, To].
func (q RosterQuery) Limit() int { return q.To - q.From + 1 }

// CountFilter 计数过滤；nil 字段不参与过滤
type CountFilter struct {
	Role      *domain.Role
	IsClaimed *bool
}

// Well-known store error codes.
const (
	CodeUniqueViolation = "23505"    // PostgreSQL unique_violation
	CodeNotFound        = "PGRST116" // no rows where exactly one was expected
)

var (
	ErrConflict = errors.New("unique constraint violation")
	ErrNotFound = errors.New("row not found")
)

// StoreError carries the code and message reported by the table store.
type StoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("store error %s", e.Code)
	}
	return fmt.Sprintf("store error %s: %s", e.Code, e.Message)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrConflict) and errors.Is(err, ErrNotFound) work on store codes.
func (e *StoreError) Is(target error) bool {
	switch target {
	case ErrConflict:
		return e.Code == CodeUniqueViolation
	case ErrNotFound:
		return e.Code == CodeNotFound
	}
	return false
}

func notFound(table, id string) error {
	return &StoreError{Code: CodeNotFound, Message: fmt.Sprintf("%s not found: id=%s", table, id)}
}
