package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"iuran-data/internal/domain"
	"iuran-data/internal/events"
	"iuran-data/internal/repository"
	"iuran-data/internal/store"
)

// countingStore 内存仓库 + 调用计数/故障注入
type countingStore struct {
	*repository.MemoryRosterStore

	mu          sync.Mutex
	avatarCalls int
	avatarKeys  []string
	avatarErr   error

	countCalls  int32
	securityErr error

	insertErrs map[string]error // 按 NIK 注入写入故障
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryRosterStore: repository.NewMemoryRosterStore()}
}

func (s *countingStore) ListAvatars(ctx context.Context, niks []string) ([]*domain.ProfileAvatar, error) {
	s.mu.Lock()
	s.avatarCalls++
	s.avatarKeys = append([]string(nil), niks...)
	err := s.avatarErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.MemoryRosterStore.ListAvatars(ctx, niks)
}

func (s *countingStore) InsertRoster(ctx context.Context, fields domain.RosterFields) (*domain.RosterEntry, error) {
	s.mu.Lock()
	err := s.insertErrs[fields.NIK]
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.MemoryRosterStore.InsertRoster(ctx, fields)
}

func (s *countingStore) CountRoster(ctx context.Context, f repository.CountFilter) (int, error) {
	atomic.AddInt32(&s.countCalls, 1)
	if s.securityErr != nil && f.Role != nil && *f.Role == domain.RoleSecurity {
		return 0, s.securityErr
	}
	return s.MemoryRosterStore.CountRoster(ctx, f)
}

// fakeKVStore 内存 KV，无 TTL
type fakeKVStore struct {
	mu     sync.Mutex
	data   map[string]string
	getErr error
	sets   int
}

func newFakeKVStore() *fakeKVStore {
	return &fakeKVStore{data: make(map[string]string)}
}

func (f *fakeKVStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", f.getErr
	}
	v, ok := f.data[key]
	if !ok {
		return "", store.ErrMiss
	}
	return v, nil
}

func (f *fakeKVStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	f.data[key] = value
	return nil
}

func (f *fakeKVStore) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.RosterEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.RosterEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Action)
	}
	return out
}

// staticPicker 返回固定文件
type staticPicker struct {
	picked  PickedFile
	data    []byte
	pickErr error
	readErr error
}

func (p *staticPicker) Pick(context.Context) (PickedFile, error) {
	return p.picked, p.pickErr
}

func (p *staticPicker) ReadFile(_ context.Context, uri string) ([]byte, error) {
	if p.readErr != nil {
		return nil, p.readErr
	}
	if uri != p.picked.URI {
		return nil, errors.New("unknown uri " + uri)
	}
	return p.data, nil
}

type captureSharer struct {
	got *ExportFile
	err error
}

func (c *captureSharer) Share(_ context.Context, f *ExportFile) error {
	c.got = f
	return c.err
}
