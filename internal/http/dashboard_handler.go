package httpapi

import (
	"net/http"

	"iuran-data/internal/service"

	"go.uber.org/zap"
)

// DashboardHandler 仪表盘统计
type DashboardHandler struct {
	stats  service.StatsService
	logger *zap.Logger
}

func NewDashboardHandler(stats service.StatsService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{stats: stats, logger: logger}
}

// GetStats GET /admin/api/v1/dashboard/stats
func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.GetStats(r.Context())
	if err != nil {
		writeFail(w, h.logger, "get dashboard stats", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(stats))
}
