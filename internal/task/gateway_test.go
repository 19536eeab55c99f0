package task

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeStream struct {
	changes chan struct{}
	closed  bool
}

func (s *fakeStream) Next(ctx context.Context) bool {
	select {
	case _, ok := <-s.changes:
		return ok
	case <-ctx.Done():
		return false
	}
}

func (s *fakeStream) Err() error { return nil }

func (s *fakeStream) Close(ctx context.Context) error {
	s.closed = true
	return nil
}

type fakeRepo struct {
	mu        sync.Mutex
	tasks     []Task
	stream    *fakeStream
	findErr   error
	insertErr error
	inserted  []Task
	updates   map[string]map[string]interface{}
	deleted   []string
}

func newFakeRepo(tasks ...Task) *fakeRepo {
	return &fakeRepo{
		tasks:   tasks,
		stream:  &fakeStream{changes: make(chan struct{})},
		updates: map[string]map[string]interface{}{},
	}
}

func (r *fakeRepo) Find(ctx context.Context, c Criteria) ([]Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	out := make([]Task, len(r.tasks))
	copy(out, r.tasks)
	return out, nil
}

func (r *fakeRepo) Insert(ctx context.Context, t Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	r.inserted = append(r.inserted, t)
	return nil
}

func (r *fakeRepo) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates[id] = fields
	return nil
}

func (r *fakeRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *fakeRepo) Watch(ctx context.Context) (ChangeStream, error) {
	return r.stream, nil
}

type fakePhotos struct {
	mu     sync.Mutex
	putErr error
	keys   []string
}

func (p *fakePhotos) Put(ctx context.Context, objectKey string, photo Photo) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.putErr != nil {
		return "", p.putErr
	}
	p.keys = append(p.keys, objectKey)
	return "https://blobs.example/" + objectKey, nil
}

func newTestStore(repo *fakeRepo, photos *fakePhotos) Store {
	return NewStore(StoreConfig{
		Repository:   repo,
		Photos:       photos,
		OpTimeout:    time.Second,
		MaxPhotoSize: 1 << 20,
	})
}

func goodPhoto() Photo {
	return Photo{Filename: "foto.jpg", ContentType: "image/jpeg", Data: []byte{0xff}}
}

func TestSubscribeEmitsInitialAndPerChange(t *testing.T) {
	repo := newFakeRepo(Task{ID: "a", State: StatusPending})
	store := newTestStore(repo, &fakePhotos{})

	sub, err := store.Subscribe(context.Background(), NewCriteria(StatusPending))
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Cancel()

	first := <-sub.Updates()
	if first.Err != nil || len(first.Tasks) != 1 {
		t.Fatalf("unexpected initial emission: %+v", first)
	}

	repo.mu.Lock()
	repo.tasks = append(repo.tasks, Task{ID: "b", State: StatusPending})
	repo.mu.Unlock()
	repo.stream.changes <- struct{}{}

	second := <-sub.Updates()
	if second.Err != nil || len(second.Tasks) != 2 {
		t.Fatalf("unexpected emission after change: %+v", second)
	}
}

func TestSubscribeCancelSilences(t *testing.T) {
	repo := newFakeRepo(Task{ID: "a", State: StatusPending})
	store := newTestStore(repo, &fakePhotos{})

	sub, err := store.Subscribe(context.Background(), NewCriteria(StatusPending))
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	<-sub.Updates()
	sub.Cancel()

	// The feed may have a change in flight; no emission may be delivered.
	select {
	case repo.stream.changes <- struct{}{}:
	default:
	}

	select {
	case e, open := <-sub.Updates():
		if open {
			t.Fatalf("emission after cancel: %+v", e)
		}
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSubscribeRejectsInvalidCriteria(t *testing.T) {
	store := newTestStore(newFakeRepo(), &fakePhotos{})

	from := time.Now()
	to := from.Add(-time.Hour)
	c := NewCriteria(StatusPending)
	c.DateFrom, c.DateTo = &from, &to

	_, err := store.Subscribe(context.Background(), c)
	if !errors.Is(err, ErrInvalidDateRange) {
		t.Fatalf("expected ErrInvalidDateRange, got %v", err)
	}
}

func TestCreateUploadsThenInserts(t *testing.T) {
	repo := newFakeRepo()
	photos := &fakePhotos{}
	store := newTestStore(repo, photos)

	created, err := store.Create(context.Background(), Task{
		Description: "Baño sucio",
		Location:    "Baño hombres",
		Floor:       "Piso 3",
		CreatedBy:   "crear_tarea",
	}, goodPhoto())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if created.ID == "" {
		t.Fatal("created task must carry a non-empty id")
	}
	if !created.State.Equals(StatusPending) {
		t.Fatalf("new task must start pending, got %q", created.State)
	}
	if created.CreatedAt.IsZero() || created.CompletedAt != nil {
		t.Fatalf("unexpected timestamps: %+v", created)
	}
	if !strings.Contains(created.PhotoBeforeURL, created.ID) {
		t.Fatalf("photo url not keyed by task id: %q", created.PhotoBeforeURL)
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("expected one insert, got %d", len(repo.inserted))
	}
}

func TestCreateFailedUploadWritesNothing(t *testing.T) {
	repo := newFakeRepo()
	photos := &fakePhotos{putErr: errors.New("minio down")}
	store := newTestStore(repo, photos)

	_, err := store.Create(context.Background(), Task{Description: "x"}, goodPhoto())
	if err == nil {
		t.Fatal("expected upload error")
	}
	if KindOf(err) != KindUpload {
		t.Fatalf("expected upload kind, got %v", KindOf(err))
	}
	if len(repo.inserted) != 0 {
		t.Fatal("document written despite failed upload")
	}
}

func TestCreateFailedInsertKeepsBlob(t *testing.T) {
	repo := newFakeRepo()
	repo.insertErr = errors.New("mongo down")
	photos := &fakePhotos{}
	store := newTestStore(repo, photos)

	_, err := store.Create(context.Background(), Task{Description: "x"}, goodPhoto())
	if KindOf(err) != KindRemoteWrite {
		t.Fatalf("expected remote write kind, got %v (%v)", KindOf(err), err)
	}
	// The orphaned blob stays; no compensating delete is attempted.
	if len(photos.keys) != 1 {
		t.Fatalf("expected the uploaded blob to remain recorded, got %v", photos.keys)
	}
}

func TestCompleteSetsStateAndTimestamps(t *testing.T) {
	repo := newFakeRepo(Task{ID: "a", State: StatusPending})
	store := newTestStore(repo, &fakePhotos{})

	if err := store.Complete(context.Background(), "a", goodPhoto(), "quedó limpio"); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	fields := repo.updates["a"]
	if fields == nil {
		t.Fatal("no update issued")
	}
	if fields["state"] != StatusCompleted {
		t.Fatalf("state not set: %v", fields)
	}
	if _, ok := fields["completedAt"].(time.Time); !ok {
		t.Fatalf("completedAt not set: %v", fields)
	}
	if fields["comment"] != "quedó limpio" {
		t.Fatalf("comment not set: %v", fields)
	}
	if url, ok := fields["photoAfterUrl"].(string); !ok || !strings.Contains(url, "despues") {
		t.Fatalf("response photo url not set: %v", fields)
	}
}

func TestAssignSetsAssignedState(t *testing.T) {
	repo := newFakeRepo(Task{ID: "a", State: StatusPending})
	store := newTestStore(repo, &fakePhotos{})

	if err := store.Assign(context.Background(), "a", "maria"); err != nil {
		t.Fatalf("assign failed: %v", err)
	}

	fields := repo.updates["a"]
	if fields["state"] != StatusAssigned || fields["assignedTo"] != "maria" {
		t.Fatalf("assignment fields wrong: %v", fields)
	}
}

func TestMutationsRejectEmptyID(t *testing.T) {
	store := newTestStore(newFakeRepo(), &fakePhotos{})
	ctx := context.Background()

	if err := store.Delete(ctx, ""); !errors.Is(err, ErrEmptyTaskID) {
		t.Fatalf("delete: expected ErrEmptyTaskID, got %v", err)
	}
	if err := store.Assign(ctx, "", "maria"); !errors.Is(err, ErrEmptyTaskID) {
		t.Fatalf("assign: expected ErrEmptyTaskID, got %v", err)
	}
	if err := store.Complete(ctx, "", goodPhoto(), ""); !errors.Is(err, ErrEmptyTaskID) {
		t.Fatalf("complete: expected ErrEmptyTaskID, got %v", err)
	}
	if err := store.UpdateFields(ctx, "", EditFields{}); !errors.Is(err, ErrEmptyTaskID) {
		t.Fatalf("update: expected ErrEmptyTaskID, got %v", err)
	}
}
