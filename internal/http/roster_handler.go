package httpapi

import (
	"net/http"
	"strings"

	"iuran-data/internal/domain"
	"iuran-data/internal/service"

	"go.uber.org/zap"
)

const (
	rosterPath        = "/admin/api/v1/roster"
	rosterItemPrefix  = rosterPath + "/"
	defaultPageSize   = 20
	maxPageSize       = 200
	maxJSONBodyBytes  = 1 << 20
	maxUploadBodySize = 10 << 20 // 10MB
)

// RosterHandler 住户名册 Handler
type RosterHandler struct {
	roster service.RosterService
	logger *zap.Logger
}

func NewRosterHandler(roster service.RosterService, logger *zap.Logger) *RosterHandler {
	return &RosterHandler{roster: roster, logger: logger}
}

// ServeHTTP 实现 http.Handler 接口
func (h *RosterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == rosterPath && r.Method == http.MethodGet:
		h.ListRoster(w, r)
	case path == rosterPath && r.Method == http.MethodPost:
		h.CreateRosterEntry(w, r)
	// 固定子路径必须在 {id} 之前
	case path == rosterItemPrefix+"export" && r.Method == http.MethodGet:
		h.ExportRoster(w, r)
	case path == rosterItemPrefix+"import" && r.Method == http.MethodPost:
		h.ImportRoster(w, r)
	case path == rosterItemPrefix+"import-template" && r.Method == http.MethodGet:
		h.GetImportTemplate(w, r)
	case strings.HasPrefix(path, rosterItemPrefix):
		id := strings.TrimPrefix(path, rosterItemPrefix)
		if id == "" || strings.Contains(id, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodGet:
			h.GetRosterEntry(w, r, id)
		case http.MethodPut:
			h.UpdateRosterEntry(w, r, id)
		case http.MethodDelete:
			h.DeleteRosterEntry(w, r, id)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case path == rosterPath:
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// ListRoster GET /admin/api/v1/roster?page=0&size=20（page 从 0 开始）
func (h *RosterHandler) ListRoster(w http.ResponseWriter, r *http.Request) {
	page := parseInt(r.URL.Query().Get("page"), 0)
	size := parseInt(r.URL.Query().Get("size"), defaultPageSize)
	if size > maxPageSize {
		size = maxPageSize
	}

	entries, err := h.roster.ListRoster(r.Context(), page, size)
	if err != nil {
		writeFail(w, h.logger, "list roster", err)
		return
	}
	items := make([]any, 0, len(entries))
	for _, e := range entries {
		items = append(items, e.ToJSON())
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": items,
		"page":  page,
		"size":  size,
	}))
}

func (h *RosterHandler) GetRosterEntry(w http.ResponseWriter, r *http.Request, id string) {
	e, err := h.roster.GetRosterEntry(r.Context(), id)
	if err != nil {
		writeFail(w, h.logger, "get roster entry", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(e.ToJSON()))
}

// rosterPayload 创建/更新请求体；缺省字段为 nil
type rosterPayload struct {
	NIK              *string `json:"nik"`
	FullName         *string `json:"full_name"`
	Role             *string `json:"role"`
	RTRW             *string `json:"rt_rw"`
	HousingComplexID *string `json:"housing_complex_id"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func (p rosterPayload) fields() domain.RosterFields {
	return domain.RosterFields{
		NIK:              deref(p.NIK),
		FullName:         deref(p.FullName),
		Role:             domain.Role(strings.ToLower(deref(p.Role))),
		RTRW:             domain.StrPtr(deref(p.RTRW)),
		HousingComplexID: domain.StrPtr(deref(p.HousingComplexID)),
	}
}

func (p rosterPayload) patch() domain.RosterPatch {
	var patch domain.RosterPatch
	if p.NIK != nil {
		v := deref(p.NIK)
		patch.NIK = &v
	}
	if p.FullName != nil {
		v := deref(p.FullName)
		patch.FullName = &v
	}
	if p.Role != nil {
		role := domain.Role(strings.ToLower(deref(p.Role)))
		patch.Role = &role
	}
	if p.RTRW != nil {
		v := deref(p.RTRW)
		patch.RTRW = &v
	}
	if p.HousingComplexID != nil {
		v := deref(p.HousingComplexID)
		patch.HousingComplexID = &v
	}
	return patch
}

// CreateRosterEntry POST /admin/api/v1/roster
func (h *RosterHandler) CreateRosterEntry(w http.ResponseWriter, r *http.Request) {
	var payload rosterPayload
	if err := readBodyJSON(r, maxJSONBodyBytes, &payload); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}
	fields := payload.fields()
	if err := service.ValidateRosterFields(fields); err != nil {
		writeFail(w, h.logger, "create roster entry", err)
		return
	}

	e, err := h.roster.CreateRosterEntry(r.Context(), fields)
	if err != nil {
		writeFail(w, h.logger, "create roster entry", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(e.ToJSON()))
}

// UpdateRosterEntry PUT /admin/api/v1/roster/{id}
func (h *RosterHandler) UpdateRosterEntry(w http.ResponseWriter, r *http.Request, id string) {
	var payload rosterPayload
	if err := readBodyJSON(r, maxJSONBodyBytes, &payload); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}
	patch := payload.patch()
	if patch.Empty() {
		writeJSON(w, http.StatusOK, Fail("no fields to update"))
		return
	}
	if (patch.NIK != nil && *patch.NIK == "") || (patch.FullName != nil && *patch.FullName == "") {
		writeJSON(w, http.StatusOK, Fail("NIK dan Nama Lengkap tidak boleh kosong"))
		return
	}

	e, err := h.roster.UpdateRosterEntry(r.Context(), id, patch)
	if err != nil {
		writeFail(w, h.logger, "update roster entry", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(e.ToJSON()))
}

// DeleteRosterEntry DELETE /admin/api/v1/roster/{id}
func (h *RosterHandler) DeleteRosterEntry(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.roster.DeleteRosterEntry(r.Context(), id); err != nil {
		writeFail(w, h.logger, "delete roster entry", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}

func (h *RosterHandler) ListHousingComplexes(w http.ResponseWriter, r *http.Request) {
	list, err := h.roster.ListHousingComplexes(r.Context())
	if err != nil {
		writeFail(w, h.logger, "list housing complexes", err)
		return
	}
	items := make([]any, 0, len(list))
	for _, c := range list {
		items = append(items, c.ToJSON())
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": items}))
}
