package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"iuran-data/internal/config"
	"iuran-data/internal/domain"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	rosterTable  = "/roster_entries"
	profileTable = "/profiles"
	complexTable = "/housing_complexes"

	rosterSelect = "*,housing_complexes(name)"

	// 416: Range 起点超出结果集
	codeRangeNotSatisfiable = "PGRST103"
)

// PostgRESTRosterStore 托管数据库服务（PostgREST 查询接口）的名册实现
type PostgRESTRosterStore struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewPostgRESTRosterStore 创建客户端；APIKey 同时作为 apikey 头和 Bearer token
func NewPostgRESTRosterStore(cfg *config.PostgRESTConfig, logger *zap.Logger) *PostgRESTRosterStore {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("apikey", cfg.APIKey).SetAuthToken(cfg.APIKey)
	}
	return &PostgRESTRosterStore{httpClient: client, logger: logger}
}

// postgrestError PostgREST 错误体
type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// postgrestRosterRow roster_entries 行；housing_complexes 嵌入可能是对象、数组或 null
type postgrestRosterRow struct {
	ID               string          `json:"id"`
	NIK              string          `json:"nik"`
	FullName         string          `json:"full_name"`
	Role             string          `json:"role"`
	RTRW             *string         `json:"rt_rw"`
	HousingComplexID *string         `json:"housing_complex_id"`
	AccessToken      string          `json:"access_token"`
	IsClaimed        bool            `json:"is_claimed"`
	ClaimedAt        *time.Time      `json:"claimed_at"`
	CreatedAt        time.Time       `json:"created_at"`
	HousingComplex   json.RawMessage `json:"housing_complexes"`
}

type embeddedComplex struct {
	Name *string `json:"name"`
}

func (row *postgrestRosterRow) toDomain() *domain.RosterEntry {
	return &domain.RosterEntry{
		ID:                 row.ID,
		NIK:                row.NIK,
		FullName:           row.FullName,
		Role:               domain.Role(row.Role),
		RTRW:               row.RTRW,
		HousingComplexID:   row.HousingComplexID,
		AccessToken:        row.AccessToken,
		IsClaimed:          row.IsClaimed,
		ClaimedAt:          row.ClaimedAt,
		CreatedAt:          row.CreatedAt,
		HousingComplexName: complexName(row.HousingComplex),
	}
}

// complexName 把对象/数组/null 三种嵌入形态统一成 *string
func complexName(raw json.RawMessage) *string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var list []embeddedComplex
		if err := json.Unmarshal(raw, &list); err != nil || len(list) == 0 {
			return nil
		}
		return list[0].Name
	}
	var obj embeddedComplex
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return obj.Name
}

func (c *PostgRESTRosterStore) check(resp *resty.Response, err error, pgErr *postgrestError) error {
	if err != nil {
		return fmt.Errorf("postgrest request failed: %w", err)
	}
	if !resp.IsError() {
		return nil
	}
	code := pgErr.Code
	if code == "" {
		code = "HTTP" + strconv.Itoa(resp.StatusCode())
	}
	msg := pgErr.Message
	if msg == "" {
		msg = resp.Status()
	}
	c.logger.Debug("postgrest returned error",
		zap.String("url", resp.Request.URL),
		zap.Int("status_code", resp.StatusCode()),
		zap.String("code", code),
		zap.String("details", pgErr.Details),
	)
	return &StoreError{Code: code, Message: msg}
}

// ListRoster GET /roster_entries，分页使用 Range 头
func (c *PostgRESTRosterStore) ListRoster(ctx context.Context, q RosterQuery) ([]*domain.RosterEntry, error) {
	req := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("select", rosterSelect)

	if q.Order == OrderNameAsc {
		req.SetQueryParam("order", "full_name.asc")
	} else {
		req.SetQueryParam("order", "created_at.desc")
	}
	if q.HousingComplexID != nil {
		req.SetQueryParam("housing_complex_id", "eq."+*q.HousingComplexID)
	}
	if !q.Unbounded() {
		req.SetHeader("Range-Unit", "items").
			SetHeader("Range", fmt.Sprintf("%d-%d", q.From, q.To))
	}

	var rows []postgrestRosterRow
	var pgErr postgrestError
	resp, err := req.SetResult(&rows).SetError(&pgErr).Get(rosterTable)
	if err == nil && resp.StatusCode() == http.StatusRequestedRangeNotSatisfiable && pgErr.Code == codeRangeNotSatisfiable {
		// 页码越界与其他后端一致：空页
		return []*domain.RosterEntry{}, nil
	}
	if err := c.check(resp, err, &pgErr); err != nil {
		return nil, err
	}
	return toDomainRows(rows), nil
}

// GetRoster 按 id 查询
func (c *PostgRESTRosterStore) GetRoster(ctx context.Context, id string) (*domain.RosterEntry, error) {
	var rows []postgrestRosterRow
	var pgErr postgrestError
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("select", rosterSelect).
		SetQueryParam("id", "eq."+id).
		SetResult(&rows).
		SetError(&pgErr).
		Get(rosterTable)
	if err := c.check(resp, err, &pgErr); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, notFound("roster_entries", id)
	}
	return rows[0].toDomain(), nil
}

// ListAvatars GET /profiles?nik=in.(...)
func (c *PostgRESTRosterStore) ListAvatars(ctx context.Context, niks []string) ([]*domain.ProfileAvatar, error) {
	if len(niks) == 0 {
		return []*domain.ProfileAvatar{}, nil
	}
	var rows []struct {
		NIK       string  `json:"nik"`
		AvatarURL *string `json:"avatar_url"`
	}
	var pgErr postgrestError
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("select", "nik,avatar_url").
		SetQueryParam("nik", "in."+inList(niks)).
		SetResult(&rows).
		SetError(&pgErr).
		Get(profileTable)
	if err := c.check(resp, err, &pgErr); err != nil {
		return nil, err
	}
	out := make([]*domain.ProfileAvatar, 0, len(rows))
	for _, r := range rows {
		out = append(out, &domain.ProfileAvatar{NIK: r.NIK, AvatarURL: r.AvatarURL})
	}
	return out, nil
}

// ListHousingComplexes GET /housing_complexes
func (c *PostgRESTRosterStore) ListHousingComplexes(ctx context.Context) ([]*domain.HousingComplex, error) {
	var rows []*domain.HousingComplex
	var pgErr postgrestError
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("select", "id,name").
		SetQueryParam("order", "name.asc").
		SetResult(&rows).
		SetError(&pgErr).
		Get(complexTable)
	if err := c.check(resp, err, &pgErr); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []*domain.HousingComplex{}
	}
	return rows, nil
}

// CountRoster HEAD + Prefer: count=exact，总数从 Content-Range 读取
func (c *PostgRESTRosterStore) CountRoster(ctx context.Context, f CountFilter) (int, error) {
	req := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Prefer", "count=exact").
		SetQueryParam("select", "id")
	if f.Role != nil {
		req.SetQueryParam("role", "eq."+string(*f.Role))
	}
	if f.IsClaimed != nil {
		req.SetQueryParam("is_claimed", "eq."+strconv.FormatBool(*f.IsClaimed))
	}

	var pgErr postgrestError
	resp, err := req.SetError(&pgErr).Head(rosterTable)
	if err := c.check(resp, err, &pgErr); err != nil {
		return 0, err
	}
	return parseContentRangeTotal(resp.Header().Get("Content-Range"))
}

// InsertRoster POST /roster_entries，返回带服务端字段的完整行
func (c *PostgRESTRosterStore) InsertRoster(ctx context.Context, fields domain.RosterFields) (*domain.RosterEntry, error) {
	body := map[string]any{
		"nik":                fields.NIK,
		"full_name":          fields.FullName,
		"role":               string(fields.Role),
		"rt_rw":              nullableString(fields.RTRW),
		"housing_complex_id": nullableString(fields.HousingComplexID),
		"is_claimed":         false,
	}

	var rows []postgrestRosterRow
	var pgErr postgrestError
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=representation").
		SetQueryParam("select", rosterSelect).
		SetBody(body).
		SetResult(&rows).
		SetError(&pgErr).
		Post(rosterTable)
	if err := c.check(resp, err, &pgErr); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert returned no representation")
	}
	return rows[0].toDomain(), nil
}

// UpdateRoster PATCH /roster_entries?id=eq.<id>；空结果视为不存在
func (c *PostgRESTRosterStore) UpdateRoster(ctx context.Context, id string, patch domain.RosterPatch) (*domain.RosterEntry, error) {
	if patch.Empty() {
		return c.GetRoster(ctx, id)
	}

	body := map[string]any{}
	if patch.NIK != nil {
		body["nik"] = *patch.NIK
	}
	if patch.FullName != nil {
		body["full_name"] = *patch.FullName
	}
	if patch.Role != nil {
		body["role"] = string(*patch.Role)
	}
	if patch.RTRW != nil {
		body["rt_rw"] = nullableString(patch.RTRW)
	}
	if patch.HousingComplexID != nil {
		body["housing_complex_id"] = nullableString(patch.HousingComplexID)
	}

	var rows []postgrestRosterRow
	var pgErr postgrestError
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=representation").
		SetQueryParam("select", rosterSelect).
		SetQueryParam("id", "eq."+id).
		SetBody(body).
		SetResult(&rows).
		SetError(&pgErr).
		Patch(rosterTable)
	if err := c.check(resp, err, &pgErr); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, notFound("roster_entries", id)
	}
	return rows[0].toDomain(), nil
}

// DeleteRoster DELETE /roster_entries?id=eq.<id>
func (c *PostgRESTRosterStore) DeleteRoster(ctx context.Context, id string) error {
	var pgErr postgrestError
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("id", "eq."+id).
		SetError(&pgErr).
		Delete(rosterTable)
	return c.check(resp, err, &pgErr)
}

func toDomainRows(rows []postgrestRosterRow) []*domain.RosterEntry {
	out := make([]*domain.RosterEntry, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out
}

// inList formats values for the in.(...) operator, quoting each one.
func inList(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ReplaceAll(v, `\`, `\\`)
		v = strings.ReplaceAll(v, `"`, `\"`)
		quoted = append(quoted, `"`+v+`"`)
	}
	return "(" + strings.Join(quoted, ",") + ")"
}

// parseContentRangeTotal reads the total from "0-24/3573" or "*/3573".
func parseContentRangeTotal(h string) (int, error) {
	idx := strings.LastIndex(h, "/")
	if idx < 0 {
		return 0, fmt.Errorf("invalid Content-Range %q", h)
	}
	total, err := strconv.Atoi(h[idx+1:])
	if err != nil {
		return 0, fmt.Errorf("invalid Content-Range total %q: %w", h, err)
	}
	return total, nil
}
