package service

import (
	"context"
	"strings"
	"time"

	"iuran-data/internal/domain"
	"iuran-data/internal/events"
	"iuran-data/internal/repository"
	"iuran-data/internal/sheet"

	"go.uber.org/zap"
)

// RosterService 住户名册服务接口
type RosterService interface {
	// 查询
	ListRoster(ctx context.Context, page, pageSize int) ([]*domain.EnrichedRosterEntry, error)
	GetRosterEntry(ctx context.Context, id string) (*domain.RosterEntry, error)
	ListHousingComplexes(ctx context.Context) ([]*domain.HousingComplex, error)

	// 写入
	CreateRosterEntry(ctx context.Context, fields domain.RosterFields) (*domain.RosterEntry, error)
	UpdateRosterEntry(ctx context.Context, id string, patch domain.RosterPatch) (*domain.RosterEntry, error)
	DeleteRosterEntry(ctx context.Context, id string) error

	// 导入导出
	ExportRoster(ctx context.Context, complexID *string, format sheet.Format) (*ExportFile, error)
	ShareRoster(ctx context.Context, sharer Sharer, complexID *string, format sheet.Format) (*ExportFile, error)
	ImportRoster(ctx context.Context, picker FilePicker, role domain.Role, complexID *string) (*ImportResult, error)
	ImportTemplate(format sheet.Format) (*ExportFile, error)
}

type rosterService struct {
	store     repository.RosterStore
	codec     sheet.Codec
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewRosterService 创建 RosterService；publisher 可为 nil
func NewRosterService(store repository.RosterStore, codec sheet.Codec, publisher events.Publisher, logger *zap.Logger) RosterService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &rosterService{
		store:     store,
		codec:     codec,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// ValidateRosterFields checks what callers must check before CreateRosterEntry.
func ValidateRosterFields(fields domain.RosterFields) error {
	if strings.TrimSpace(fields.NIK) == "" {
		return invalid("nik", "NIK wajib diisi")
	}
	if strings.TrimSpace(fields.FullName) == "" {
		return invalid("full_name", "Nama lengkap wajib diisi")
	}
	if _, err := domain.ParseRole(string(fields.Role)); err != nil {
		return invalid("role", err.Error())
	}
	return nil
}

// ListRoster 分页查询名册并按 NIK 合并头像
// 头像查询失败不影响结果，avatar_url 置空
func (s *rosterService) ListRoster(ctx context.Context, page, pageSize int) ([]*domain.EnrichedRosterEntry, error) {
	if page < 0 {
		return nil, invalid("page", "must be >= 0")
	}
	if pageSize <= 0 {
		return nil, invalid("page_size", "must be > 0")
	}

	from := page * pageSize
	rows, err := s.store.ListRoster(ctx, repository.RosterQuery{
		Order: repository.OrderCreatedDesc,
		From:  from,
		To:    from + pageSize - 1,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []*domain.EnrichedRosterEntry{}, nil
	}

	avatars := map[string]*string{}
	if niks := distinctNIKs(rows); len(niks) > 0 {
		list, err := s.store.ListAvatars(ctx, niks)
		if err != nil {
			s.logger.Warn("avatar lookup failed, continuing without avatars",
				zap.Int("nik_count", len(niks)),
				zap.Error(err),
			)
		} else {
			for _, a := range list {
				avatars[a.NIK] = a.AvatarURL
			}
		}
	}

	out := make([]*domain.EnrichedRosterEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, &domain.EnrichedRosterEntry{RosterEntry: r, AvatarURL: avatars[r.NIK]})
	}
	return out, nil
}

func distinctNIKs(rows []*domain.RosterEntry) []string {
	seen := make(map[string]struct{}, len(rows))
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.NIK == "" {
			continue
		}
		if _, ok := seen[r.NIK]; ok {
			continue
		}
		seen[r.NIK] = struct{}{}
		out = append(out, r.NIK)
	}
	return out
}

func (s *rosterService) GetRosterEntry(ctx context.Context, id string) (*domain.RosterEntry, error) {
	return s.store.GetRoster(ctx, id)
}

func (s *rosterService) ListHousingComplexes(ctx context.Context) ([]*domain.HousingComplex, error) {
	return s.store.ListHousingComplexes(ctx)
}

// CreateRosterEntry 单条新增；不重复校验，唯一约束冲突原样返回（errors.Is ErrConflict）
func (s *rosterService) CreateRosterEntry(ctx context.Context, fields domain.RosterFields) (*domain.RosterEntry, error) {
	e, err := s.store.InsertRoster(ctx, fields)
	if err != nil {
		return nil, err
	}
	s.logger.Info("roster entry created", zap.String("roster_id", e.ID))
	s.publish(ctx, events.RosterEvent{Action: events.ActionCreated, RosterID: e.ID, NIK: e.NIK})
	return e, nil
}

func (s *rosterService) UpdateRosterEntry(ctx context.Context, id string, patch domain.RosterPatch) (*domain.RosterEntry, error) {
	if patch.Role != nil {
		if _, err := domain.ParseRole(string(*patch.Role)); err != nil {
			return nil, invalid("role", err.Error())
		}
	}
	e, err := s.store.UpdateRoster(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.logger.Info("roster entry updated", zap.String("roster_id", id))
	s.publish(ctx, events.RosterEvent{Action: events.ActionUpdated, RosterID: e.ID, NIK: e.NIK})
	return e, nil
}

// DeleteRosterEntry 物理删除，不返回"是否存在"
func (s *rosterService) DeleteRosterEntry(ctx context.Context, id string) error {
	if err := s.store.DeleteRoster(ctx, id); err != nil {
		return err
	}
	s.logger.Info("roster entry deleted", zap.String("roster_id", id))
	s.publish(ctx, events.RosterEvent{Action: events.ActionDeleted, RosterID: id})
	return nil
}

func (s *rosterService) publish(ctx context.Context, ev events.RosterEvent) {
	ev.At = s.now()
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish roster event",
			zap.String("action", ev.Action),
			zap.Error(err),
		)
	}
}
