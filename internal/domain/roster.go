package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role 名册角色
type Role string

const (
	RoleResident Role = "resident"
	RoleSecurity Role = "security"
)

// ParseRole accepts only the two known roles.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleResident:
		return RoleResident, nil
	case RoleSecurity:
		return RoleSecurity, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// RosterEntry 已核验住户名册（对应 roster_entries 表）
type RosterEntry struct {
	ID       string `db:"id"`  // UUID, server-assigned
	NIK      string `db:"nik"` // UNIQUE
	FullName string `db:"full_name"`
	Role     Role   `db:"role"`

	RTRW             *string `db:"rt_rw"`
	HousingComplexID *string `db:"housing_complex_id"`

	// 由服务端生成，客户端不可写
	AccessToken string     `db:"access_token"`
	IsClaimed   bool       `db:"is_claimed"`
	ClaimedAt   *time.Time `db:"claimed_at"`
	CreatedAt   time.Time  `db:"created_at"`

	// 查询时 JOIN housing_complexes 获取，不存储
	HousingComplexName *string `db:"housing_complex_name"`
}

// ToJSON 转换为JSON格式（用于HTTP响应）
func (r *RosterEntry) ToJSON() map[string]any {
	m := map[string]any{
		"id":           r.ID,
		"nik":          r.NIK,
		"full_name":    r.FullName,
		"role":         string(r.Role),
		"access_token": r.AccessToken,
		"is_claimed":   r.IsClaimed,
		"created_at":   r.CreatedAt.Format(time.RFC3339),
	}
	if r.RTRW != nil {
		m["rt_rw"] = *r.RTRW
	}
	if r.HousingComplexID != nil {
		m["housing_complex_id"] = *r.HousingComplexID
	}
	if r.ClaimedAt != nil {
		m["claimed_at"] = r.ClaimedAt.Format(time.RFC3339)
	}
	if r.HousingComplexName != nil {
		m["housing_complex_name"] = *r.HousingComplexName
	}
	return m
}

// EnrichedRosterEntry is a RosterEntry with the profile avatar resolved by NIK.
// It is request scoped and never persisted.
type EnrichedRosterEntry struct {
	*RosterEntry
	AvatarURL *string
}

func (e *EnrichedRosterEntry) ToJSON() map[string]any {
	m := e.RosterEntry.ToJSON()
	if e.AvatarURL != nil {
		m["avatar_url"] = *e.AvatarURL
	} else {
		m["avatar_url"] = nil
	}
	return m
}

// RosterFields 创建名册时客户端可写字段
type RosterFields struct {
	NIK              string
	FullName         string
	Role             Role
	RTRW             *string
	HousingComplexID *string
}

// RosterPatch 部分更新；nil 表示不修改
type RosterPatch struct {
	NIK              *string
	FullName         *string
	Role             *Role
	RTRW             *string
	HousingComplexID *string
}

// Empty reports whether the patch touches no column.
func (p RosterPatch) Empty() bool {
	return p.NIK == nil && p.FullName == nil && p.Role == nil && p.RTRW == nil && p.HousingComplexID == nil
}

// HousingComplex 住宅区/楼栋（只读）
type HousingComplex struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}

func (h *HousingComplex) ToJSON() map[string]any {
	return map[string]any{"id": h.ID, "name": h.Name}
}

// ProfileAvatar 账号资料中的头像，按 NIK 关联
type ProfileAvatar struct {
	NIK       string  `db:"nik"`
	AvatarURL *string `db:"avatar_url"`
}

// StrPtr returns a pointer to a trimmed copy of s, or nil when s is blank.
func StrPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
