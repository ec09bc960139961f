package usecase

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/TrueFaces/CNN-FineTuning/internal/model"
	"github.com/TrueFaces/CNN-FineTuning/internal/repository"
)

type stubClassifier struct {
	score  float32
	err    error
	calls  int
	shapes [][]int
}

func (s *stubClassifier) Predict(ctx context.Context, input model.Tensor) (float32, error) {
	s.calls++
	s.shapes = append(s.shapes, input.Shape)
	if s.err != nil {
		return 0, s.err
	}
	return s.score, nil
}

// identifiedClassifier is a stubClassifier that names its model.
type identifiedClassifier struct {
	*stubClassifier
	id string
}

func (c identifiedClassifier) ModelID() string { return c.id }

type stubCache struct {
	setErrs   []error
	getErrs   []error
	getValues []string
	setKeys   []string
	getKeys   []string
}

func (s *stubCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	s.setKeys = append(s.setKeys, key)
	if len(s.setErrs) == 0 {
		return nil
	}
	err := s.setErrs[0]
	s.setErrs = s.setErrs[1:]
	return err
}

func (s *stubCache) Get(ctx context.Context, key string) (string, error) {
	s.getKeys = append(s.getKeys, key)
	var value string
	if len(s.getValues) > 0 {
		value = s.getValues[0]
		s.getValues = s.getValues[1:]
	}
	var err error = redis.Nil
	if len(s.getErrs) > 0 {
		err = s.getErrs[0]
		s.getErrs = s.getErrs[1:]
	} else if value != "" {
		err = nil
	}
	return value, err
}

// memoryCache behaves like redis for a single process.
type memoryCache struct {
	mu     sync.Mutex
	values map[string]string
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = map[string]string{}
	}
	m.values[key] = value.(string)
	return nil
}

func (m *memoryCache) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.values[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

type stubUserRepository struct {
	nextID uint
	users  map[uint]*repository.User
}

func newStubUserRepository() *stubUserRepository {
	return &stubUserRepository{users: map[uint]*repository.User{}}
}

func (s *stubUserRepository) Create(ctx context.Context, user *repository.User) error {
	for _, existing := range s.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	s.nextID++
	user.ID = s.nextID
	clone := *user
	s.users[user.ID] = &clone
	return nil
}

func (s *stubUserRepository) FindByID(ctx context.Context, id uint) (*repository.User, error) {
	if user, ok := s.users[id]; ok {
		clone := *user
		return &clone, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubUserRepository) FindByUsername(ctx context.Context, username string) (*repository.User, error) {
	for _, user := range s.users {
		if user.Username == username {
			clone := *user
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubUserRepository) List(ctx context.Context, limit, offset int) ([]*repository.User, error) {
	ids := make([]int, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	var out []*repository.User
	for i, id := range ids {
		if i < offset || len(out) >= limit {
			continue
		}
		clone := *s.users[uint(id)]
		out = append(out, &clone)
	}
	return out, nil
}

func (s *stubUserRepository) Update(ctx context.Context, user *repository.User) error {
	if _, ok := s.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	clone := *user
	s.users[user.ID] = &clone
	return nil
}

func (s *stubUserRepository) Delete(ctx context.Context, id uint) error {
	if _, ok := s.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

type stubImageRepository struct {
	nextID    uint
	records   map[uint]*repository.ImageRecord
	createErr error
}

func newStubImageRepository() *stubImageRepository {
	return &stubImageRepository{records: map[uint]*repository.ImageRecord{}}
}

func (s *stubImageRepository) Create(ctx context.Context, record *repository.ImageRecord) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.nextID++
	record.ID = s.nextID
	clone := *record
	s.records[record.ID] = &clone
	return nil
}

func (s *stubImageRepository) FindByPublicIDAndOwner(ctx context.Context, publicID string, ownerID uint) (*repository.ImageRecord, error) {
	for _, rec := range s.records {
		if rec.PublicID == publicID && rec.OwnerID == ownerID {
			clone := *rec
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubImageRepository) ListByOwner(ctx context.Context, ownerID uint, limit, offset int) ([]*repository.ImageRecord, error) {
	var out []*repository.ImageRecord
	for _, rec := range s.records {
		if rec.OwnerID == ownerID {
			clone := *rec
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *stubImageRepository) UpdateFilename(ctx context.Context, record *repository.ImageRecord) error {
	rec, ok := s.records[record.ID]
	if !ok {
		return repository.ErrNotFound
	}
	rec.Filename = record.Filename
	return nil
}

func (s *stubImageRepository) Delete(ctx context.Context, id uint) error {
	if _, ok := s.records[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *stubImageRepository) AggregateStats(ctx context.Context, ownerID uint) (*repository.ImageAggregation, error) {
	agg := &repository.ImageAggregation{}
	var sum float64
	for _, rec := range s.records {
		if rec.OwnerID != ownerID {
			continue
		}
		agg.TotalCount++
		if rec.IsFace {
			agg.FaceCount++
		}
		sum += float64(rec.Score)
	}
	if agg.TotalCount > 0 {
		agg.AverageScore = sum / float64(agg.TotalCount)
	}
	return agg, nil
}

type stubBlobStore struct {
	objects map[string][]byte
	putErr  error
	deleted []string
}

func newStubBlobStore() *stubBlobStore {
	return &stubBlobStore{objects: map[string][]byte{}}
}

func (s *stubBlobStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if s.putErr != nil {
		return s.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.objects[key] = data
	return nil
}

func (s *stubBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *stubBlobStore) Delete(ctx context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	delete(s.objects, key)
	return nil
}

func testPNG(t *testing.T, width, height int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}
