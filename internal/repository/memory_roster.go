package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"iuran-data/internal/domain"

	"github.com/google/uuid"
)

// MemoryRosterStore: 用于 DB 未就绪时的联测
// - nik 唯一约束与数据库一致（23505）
// - IDs / access_token 使用 uuid
type MemoryRosterStore struct {
	mu sync.RWMutex

	entries   map[string]*memoryEntry // id -> entry
	byNIK     map[string]string       // nik -> id
	avatars   map[string]*string      // nik -> avatar_url
	complexes map[string]string       // id -> name

	seq int64
	now func() time.Time
}

type memoryEntry struct {
	entry domain.RosterEntry
	seq   int64
}

func NewMemoryRosterStore() *MemoryRosterStore {
	return &MemoryRosterStore{
		entries:   map[string]*memoryEntry{},
		byNIK:     map[string]string{},
		avatars:   map[string]*string{},
		complexes: map[string]string{},
		now:       time.Now,
	}
}

// ---- seeding helpers (dev bootstrap / tests) ----

// AddHousingComplex registers a complex and returns its id.
func (r *MemoryRosterStore) AddHousingComplex(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.NewString()
	r.complexes[id] = name
	return id
}

// SetAvatar stores the profile avatar for a NIK.
func (r *MemoryRosterStore) SetAvatar(nik string, avatarURL *string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.avatars[nik] = avatarURL
}

// ---- RosterStore ----

func (r *MemoryRosterStore) ListRoster(_ context.Context, q RosterQuery) ([]*domain.RosterEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*memoryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if q.HousingComplexID != nil && (e.entry.HousingComplexID == nil || *e.entry.HousingComplexID != *q.HousingComplexID) {
			continue
		}
		all = append(all, e)
	}

	if q.Order == OrderNameAsc {
		sort.SliceStable(all, func(i, j int) bool {
			if all[i].entry.FullName != all[j].entry.FullName {
				return all[i].entry.FullName < all[j].entry.FullName
			}
			return all[i].seq < all[j].seq
		})
	} else {
		sort.SliceStable(all, func(i, j int) bool {
			if !all[i].entry.CreatedAt.Equal(all[j].entry.CreatedAt) {
				return all[i].entry.CreatedAt.After(all[j].entry.CreatedAt)
			}
			return all[i].seq > all[j].seq
		})
	}

	from, to := 0, len(all)-1
	if !q.Unbounded() {
		from = q.From
		if q.To < to {
			to = q.To
		}
	}

	out := []*domain.RosterEntry{}
	for i := from; i >= 0 && i <= to && i < len(all); i++ {
		out = append(out, r.project(all[i]))
	}
	return out, nil
}

func (r *MemoryRosterStore) GetRoster(_ context.Context, id string) (*domain.RosterEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, notFound("roster_entries", id)
	}
	return r.project(e), nil
}

func (r *MemoryRosterStore) ListAvatars(_ context.Context, niks []string) ([]*domain.ProfileAvatar, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*domain.ProfileAvatar{}
	for _, nik := range niks {
		if url, ok := r.avatars[nik]; ok {
			out = append(out, &domain.ProfileAvatar{NIK: nik, AvatarURL: copyStr(url)})
		}
	}
	return out, nil
}

func (r *MemoryRosterStore) ListHousingComplexes(_ context.Context) ([]*domain.HousingComplex, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.HousingComplex, 0, len(r.complexes))
	for id, name := range r.complexes {
		out = append(out, &domain.HousingComplex{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRosterStore) CountRoster(_ context.Context, f CountFilter) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		if f.Role != nil && e.entry.Role != *f.Role {
			continue
		}
		if f.IsClaimed != nil && e.entry.IsClaimed != *f.IsClaimed {
			continue
		}
		n++
	}
	return n, nil
}

func (r *MemoryRosterStore) InsertRoster(_ context.Context, fields domain.RosterFields) (*domain.RosterEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byNIK[fields.NIK]; exists {
		return nil, &StoreError{
			Code:    CodeUniqueViolation,
			Message: `duplicate key value violates unique constraint "roster_entries_nik_key"`,
		}
	}

	r.seq++
	id := uuid.NewString()
	e := &memoryEntry{
		seq: r.seq,
		entry: domain.RosterEntry{
			ID:               id,
			NIK:              fields.NIK,
			FullName:         fields.FullName,
			Role:             fields.Role,
			RTRW:             copyStr(fields.RTRW),
			HousingComplexID: copyStr(fields.HousingComplexID),
			AccessToken:      strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8]),
			CreatedAt:        r.now(),
		},
	}
	r.entries[id] = e
	r.byNIK[fields.NIK] = id
	return r.project(e), nil
}

func (r *MemoryRosterStore) UpdateRoster(_ context.Context, id string, patch domain.RosterPatch) (*domain.RosterEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, notFound("roster_entries", id)
	}
	if patch.NIK != nil && *patch.NIK != e.entry.NIK {
		if _, exists := r.byNIK[*patch.NIK]; exists {
			return nil, &StoreError{
				Code:    CodeUniqueViolation,
				Message: `duplicate key value violates unique constraint "roster_entries_nik_key"`,
			}
		}
		delete(r.byNIK, e.entry.NIK)
		r.byNIK[*patch.NIK] = id
		e.entry.NIK = *patch.NIK
	}
	if patch.FullName != nil {
		e.entry.FullName = *patch.FullName
	}
	if patch.Role != nil {
		e.entry.Role = *patch.Role
	}
	if patch.RTRW != nil {
		e.entry.RTRW = domain.StrPtr(*patch.RTRW)
	}
	if patch.HousingComplexID != nil {
		e.entry.HousingComplexID = domain.StrPtr(*patch.HousingComplexID)
	}
	return r.project(e), nil
}

func (r *MemoryRosterStore) DeleteRoster(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		delete(r.byNIK, e.entry.NIK)
		delete(r.entries, id)
	}
	return nil
}

// project returns a detached copy joined with the complex name. Caller holds the lock.
func (r *MemoryRosterStore) project(e *memoryEntry) *domain.RosterEntry {
	out := e.entry
	out.RTRW = copyStr(e.entry.RTRW)
	out.HousingComplexID = copyStr(e.entry.HousingComplexID)
	out.HousingComplexName = nil
	if out.HousingComplexID != nil {
		if name, ok := r.complexes[*out.HousingComplexID]; ok {
			out.HousingComplexName = &name
		}
	}
	return &out
}

func copyStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
