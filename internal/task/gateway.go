package task

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Emission is one push from a live subscription: either a full task list or
// a failure. A failed emission does not terminate the subscription.
type Emission struct {
	Tasks []Task
	Err   error
}

// Subscription is a live, continuously updated query result. After Cancel
// returns no further emission is delivered, even if one is in flight.
type Subscription interface {
	Updates() <-chan Emission
	Cancel()
}

// EditFields are the mutable free-text fields of a task. Nil means leave
// unchanged.
type EditFields struct {
	Description *string
	Location    *string
	Floor       *string
}

// Store translates domain operations into document-collection and blob-store
// calls. All failures come back classified; nothing panics past this
// boundary.
type Store interface {
	Subscribe(ctx context.Context, c Criteria) (Subscription, error)
	Create(ctx context.Context, t Task, photo Photo) (Task, error)
	UpdateFields(ctx context.Context, id string, fields EditFields) error
	Delete(ctx context.Context, id string) error
	Assign(ctx context.Context, id, supervisor string) error
	Complete(ctx context.Context, id string, photo Photo, comment string) error
}

type store struct {
	repo         Repository
	photos       PhotoStorage
	events       EventProducer
	opTimeout    time.Duration
	maxPhotoSize int64
	logger       *log.Logger
}

// StoreConfig wires the store gateway. Events may be nil when no broker is
// configured.
type StoreConfig struct {
	Repository   Repository
	Photos       PhotoStorage
	Events       EventProducer
	OpTimeout    time.Duration
	MaxPhotoSize int64
	Logger       *log.Logger
}

func NewStore(cfg StoreConfig) Store {
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &store{
		repo:         cfg.Repository,
		photos:       cfg.Photos,
		events:       cfg.Events,
		opTimeout:    cfg.OpTimeout,
		maxPhotoSize: cfg.MaxPhotoSize,
		logger:       cfg.Logger,
	}
}

func (s *store) Subscribe(ctx context.Context, c Criteria) (Subscription, error) {
	if err := c.Validate(); err != nil {
		return nil, storeErr("subscribe", KindValidation, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	stream, err := s.repo.Watch(subCtx)
	if err != nil {
		cancel()
		return nil, storeErr("subscribe", KindRemoteRead, err)
	}

	sub := &liveSubscription{
		ch:     make(chan Emission),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go sub.run(subCtx, s, stream, c)
	return sub, nil
}

type liveSubscription struct {
	ch     chan Emission
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
}

func (l *liveSubscription) Updates() <-chan Emission {
	return l.ch
}

func (l *liveSubscription) Cancel() {
	l.once.Do(func() {
		l.cancel()
		close(l.done)
	})
}

func (l *liveSubscription) run(ctx context.Context, s *store, stream ChangeStream, c Criteria) {
	defer close(l.ch)
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		_ = stream.Close(closeCtx)
	}()

	// Initial snapshot, then one full re-query per collection change.
	l.emit(s.query(ctx, c))
	for stream.Next(ctx) {
		if !l.emit(s.query(ctx, c)) {
			return
		}
	}
	if ctx.Err() != nil {
		return
	}
	if err := stream.Err(); err != nil {
		l.emit(Emission{Err: storeErr("subscribe", KindRemoteRead, err)})
	}
}

// emit delivers e unless the subscription was cancelled. The unbuffered send
// racing against done is what guarantees silence after Cancel.
func (l *liveSubscription) emit(e Emission) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.ch <- e:
		return true
	case <-l.done:
		return false
	}
}

func (s *store) query(ctx context.Context, c Criteria) Emission {
	findCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	tasks, err := s.repo.Find(findCtx, c)
	if err != nil {
		return Emission{Err: storeErr("list", KindRemoteRead, err)}
	}
	return Emission{Tasks: tasks}
}

// Create uploads the before photo, then persists the document. A failed
// upload writes nothing; a failed insert after a successful upload leaves
// the orphaned blob in place and surfaces the error.
func (s *store) Create(ctx context.Context, t Task, photo Photo) (Task, error) {
	if err := ValidatePhoto(photo, s.maxPhotoSize); err != nil {
		return Task{}, storeErr("create", KindValidation, err)
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.State = StatusPending
	t.CreatedAt = time.Now().UTC()
	t.CompletedAt = nil

	putCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	url, err := s.photos.Put(putCtx, photoBeforeKey(t.ID, photo), photo)
	if err != nil {
		return Task{}, storeErr("create", KindUpload, err)
	}
	t.PhotoBeforeURL = url

	insertCtx, cancelInsert := context.WithTimeout(ctx, s.opTimeout)
	defer cancelInsert()
	if err := s.repo.Insert(insertCtx, t); err != nil {
		return Task{}, storeErr("create", KindRemoteWrite, err)
	}

	s.emitEvent(TaskEvent{TaskID: t.ID, Type: EventCreated, Actor: t.CreatedBy, State: t.State})
	return t, nil
}

func (s *store) UpdateFields(ctx context.Context, id string, fields EditFields) error {
	if id == "" {
		return storeErr("update", KindValidation, ErrEmptyTaskID)
	}

	set := map[string]interface{}{}
	if fields.Description != nil {
		set["description"] = *fields.Description
	}
	if fields.Location != nil {
		set["location"] = *fields.Location
	}
	if fields.Floor != nil {
		set["floor"] = *fields.Floor
	}
	if len(set) == 0 {
		return nil
	}

	updateCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.repo.UpdateFields(updateCtx, id, set); err != nil {
		return storeErr("update", KindRemoteWrite, err)
	}

	s.emitEvent(TaskEvent{TaskID: id, Type: EventEdited})
	return nil
}

func (s *store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return storeErr("delete", KindValidation, ErrEmptyTaskID)
	}

	deleteCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.repo.Delete(deleteCtx, id); err != nil {
		return storeErr("delete", KindRemoteWrite, err)
	}

	s.emitEvent(TaskEvent{TaskID: id, Type: EventDeleted})
	return nil
}

func (s *store) Assign(ctx context.Context, id, supervisor string) error {
	if id == "" {
		return storeErr("assign", KindValidation, ErrEmptyTaskID)
	}
	if supervisor == "" {
		return storeErr("assign", KindValidation, ErrUnknownSupervisor)
	}

	updateCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	set := map[string]interface{}{
		"state":      StatusAssigned,
		"assignedTo": supervisor,
	}
	if err := s.repo.UpdateFields(updateCtx, id, set); err != nil {
		return storeErr("assign", KindRemoteWrite, err)
	}

	s.emitEvent(TaskEvent{TaskID: id, Type: EventAssigned, State: StatusAssigned, Recipient: supervisor})
	return nil
}

// Complete uploads the response photo, then flips the document to Completed
// in one logical update.
func (s *store) Complete(ctx context.Context, id string, photo Photo, comment string) error {
	if id == "" {
		return storeErr("complete", KindValidation, ErrEmptyTaskID)
	}
	if err := ValidatePhoto(photo, s.maxPhotoSize); err != nil {
		return storeErr("complete", KindValidation, err)
	}

	putCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	url, err := s.photos.Put(putCtx, photoAfterKey(id, photo), photo)
	if err != nil {
		return storeErr("complete", KindUpload, err)
	}

	now := time.Now().UTC()
	set := map[string]interface{}{
		"state":         StatusCompleted,
		"completedAt":   now,
		"photoAfterUrl": url,
	}
	if comment != "" {
		set["comment"] = comment
	}

	updateCtx, cancelUpdate := context.WithTimeout(ctx, s.opTimeout)
	defer cancelUpdate()
	if err := s.repo.UpdateFields(updateCtx, id, set); err != nil {
		return storeErr("complete", KindRemoteWrite, err)
	}

	s.emitEvent(TaskEvent{TaskID: id, Type: EventCompleted, State: StatusCompleted})
	return nil
}

func (s *store) emitEvent(event TaskEvent) {
	if s.events == nil {
		return
	}
	event.Timestamp = time.Now().UTC()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
		defer cancel()
		if err := s.events.SendTaskEvent(ctx, event); err != nil {
			s.logger.Printf("task event %s for %s not sent: %v", event.Type, event.TaskID, err)
		}
	}()
}
