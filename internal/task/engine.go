package task

import (
	"context"
	"fmt"
	"log"
	"time"
)

// UiState is the immutable snapshot published to the rendering layer after
// every transition. Tasks is the locally filtered view of the latest raw
// snapshot. The last good list is kept alongside Error.
type UiState struct {
	Criteria Criteria `json:"criteria"`
	Tasks    []Task   `json:"tasks"`
	Loading  bool     `json:"loading"`
	Error    string   `json:"error,omitempty"`
}

// Advisor receives the messages the mobile UI would show as a toast, e.g.
// when the role policy rejects an action.
type Advisor interface {
	Advise(message string)
}

type EngineConfig struct {
	Store       Store
	Mode        Status
	Supervisors []string
	Advisor     Advisor
	Logger      *log.Logger
}

// Engine owns the filter state and the task list lifecycle. Every transition
// runs on a single goroutine fed by a command channel; store callbacks and
// subscription emissions re-enter through the same channel, so no state is
// ever touched by two writers.
type Engine struct {
	store   Store
	advisor Advisor
	roster  map[string]bool
	logger  *log.Logger

	cmds    chan command
	stopped chan struct{}

	// Owned by the loop goroutine.
	criteria    Criteria
	raw         []Task
	ui          UiState
	sub         Subscription
	subToken    uint64
	watchers    map[uint64]chan UiState
	nextWatcher uint64
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Mode == "" {
		cfg.Mode = StatusPending
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	roster := make(map[string]bool, len(cfg.Supervisors))
	for _, s := range cfg.Supervisors {
		roster[s] = true
	}
	return &Engine{
		store:    cfg.Store,
		advisor:  cfg.Advisor,
		roster:   roster,
		logger:   cfg.Logger,
		cmds:     make(chan command),
		stopped:  make(chan struct{}),
		criteria: NewCriteria(cfg.Mode),
		watchers: make(map[uint64]chan UiState),
	}
}

type command interface{}

type (
	cmdSetMode       struct{ mode Status }
	cmdSetFloor      struct{ floor string }
	cmdSetFreeText   struct{ text string }
	cmdSetSupervisor struct{ supervisor string }
	cmdSetDateRange  struct{ from, to *time.Time }
	cmdReset         struct{}

	cmdEmission struct {
		token uint64
		e     Emission
	}
	cmdRemoveTask struct{ id string }

	cmdMutate struct {
		kind       mutationKind
		role       Role
		id         string
		supervisor string
		fields     EditFields
		photo      Photo
		comment    string
		reply      chan error
	}

	cmdState   struct{ reply chan UiState }
	cmdWatch   struct{ reply chan watchReg }
	cmdUnwatch struct{ id uint64 }
)

type mutationKind int

const (
	mutateDelete mutationKind = iota + 1
	mutateComplete
	mutateAssign
	mutateEdit
)

type watchReg struct {
	id uint64
	ch chan UiState
}

// Start launches the engine loop and opens the initial subscription. The
// engine stops when ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	go e.loop(ctx)
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.stopped)
	defer func() {
		if e.sub != nil {
			e.sub.Cancel()
		}
	}()

	e.resubscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-e.cmds:
			e.handle(ctx, c)
		}
	}
}

func (e *Engine) send(ctx context.Context, c command) bool {
	select {
	case e.cmds <- c:
		return true
	case <-e.stopped:
		return false
	case <-ctx.Done():
		return false
	}
}

// SetMode switches the top-level state filter; this always replaces the
// subscription.
func (e *Engine) SetMode(mode Status) {
	e.send(context.Background(), cmdSetMode{mode: mode})
}

// SetFloor narrows the list locally; no new subscription is opened.
func (e *Engine) SetFloor(floor string) {
	e.send(context.Background(), cmdSetFloor{floor: floor})
}

// SetFreeText narrows the list locally; no new subscription is opened.
func (e *Engine) SetFreeText(text string) {
	e.send(context.Background(), cmdSetFreeText{text: text})
}

func (e *Engine) SetSupervisor(supervisor string) {
	e.send(context.Background(), cmdSetSupervisor{supervisor: supervisor})
}

// SetDateRange validates the bounds before anything else happens: an
// inverted range is rejected here and the subscription stays untouched.
func (e *Engine) SetDateRange(from, to *time.Time) error {
	if from != nil && to != nil && from.After(*to) {
		return ErrInvalidDateRange
	}
	e.send(context.Background(), cmdSetDateRange{from: from, to: to})
	return nil
}

// ResetFilters clears floor, free text, supervisor and the date range while
// keeping the mode, then forces a fresh subscription.
func (e *Engine) ResetFilters() {
	e.send(context.Background(), cmdReset{})
}

// State returns the latest published snapshot.
func (e *Engine) State() UiState {
	reply := make(chan UiState, 1)
	if !e.send(context.Background(), cmdState{reply: reply}) {
		return UiState{}
	}
	return <-reply
}

// Watch registers an observer for UiState snapshots. Slow observers miss
// intermediate snapshots rather than blocking the loop. The returned func
// detaches the observer.
func (e *Engine) Watch() (<-chan UiState, func()) {
	reply := make(chan watchReg, 1)
	if !e.send(context.Background(), cmdWatch{reply: reply}) {
		ch := make(chan UiState)
		close(ch)
		return ch, func() {}
	}
	reg := <-reply
	return reg.ch, func() {
		e.send(context.Background(), cmdUnwatch{id: reg.id})
	}
}

// Delete removes a task after a role-policy check. On success the task is
// dropped from the published list immediately, ahead of the next remote push.
func (e *Engine) Delete(ctx context.Context, role Role, id string) error {
	return e.mutate(ctx, cmdMutate{kind: mutateDelete, role: role, id: id})
}

// Complete uploads the response photo and closes the task; the local list is
// trimmed optimistically on success.
func (e *Engine) Complete(ctx context.Context, role Role, id string, photo Photo, comment string) error {
	return e.mutate(ctx, cmdMutate{kind: mutateComplete, role: role, id: id, photo: photo, comment: comment})
}

// Assign hands a pending task to a supervisor from the configured roster.
func (e *Engine) Assign(ctx context.Context, role Role, id, supervisor string) error {
	return e.mutate(ctx, cmdMutate{kind: mutateAssign, role: role, id: id, supervisor: supervisor})
}

// Edit updates the free-text fields of a task.
func (e *Engine) Edit(ctx context.Context, role Role, id string, fields EditFields) error {
	return e.mutate(ctx, cmdMutate{kind: mutateEdit, role: role, id: id, fields: fields})
}

func (e *Engine) mutate(ctx context.Context, c cmdMutate) error {
	c.reply = make(chan error, 1)
	if !e.send(ctx, c) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrEngineStopped
	}
	select {
	case err := <-c.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) handle(ctx context.Context, c command) {
	switch c := c.(type) {
	case cmdSetMode:
		if !c.mode.Valid() || c.mode.Equals(e.criteria.Mode) {
			return
		}
		e.criteria.Mode = c.mode
		e.resubscribe(ctx)
	case cmdSetFloor:
		if c.floor == e.criteria.Floor {
			return
		}
		e.criteria.Floor = c.floor
		e.publishReady()
	case cmdSetFreeText:
		if c.text == e.criteria.FreeText {
			return
		}
		e.criteria.FreeText = c.text
		e.publishReady()
	case cmdSetSupervisor:
		if c.supervisor == e.criteria.Supervisor {
			return
		}
		e.criteria.Supervisor = c.supervisor
		e.resubscribe(ctx)
	case cmdSetDateRange:
		next := e.criteria
		next.DateFrom, next.DateTo = c.from, c.to
		if !next.RequiresResubscribe(e.criteria) {
			return
		}
		e.criteria = next
		e.resubscribe(ctx)
	case cmdReset:
		e.criteria = e.criteria.WithoutFilters()
		e.resubscribe(ctx)
	case cmdEmission:
		if c.token != e.subToken {
			// Late push from a cancelled subscription.
			return
		}
		if c.e.Err != nil {
			e.ui = UiState{Criteria: e.criteria, Tasks: e.ui.Tasks, Error: c.e.Err.Error()}
			e.publish()
			return
		}
		e.raw = c.e.Tasks
		e.publishReady()
	case cmdRemoveTask:
		e.removeLocally(c.id)
	case cmdMutate:
		e.handleMutation(ctx, c)
	case cmdState:
		c.reply <- e.ui
	case cmdWatch:
		e.nextWatcher++
		ch := make(chan UiState, 8)
		e.watchers[e.nextWatcher] = ch
		ch <- e.ui
		c.reply <- watchReg{id: e.nextWatcher, ch: ch}
	case cmdUnwatch:
		if ch, ok := e.watchers[c.id]; ok {
			delete(e.watchers, c.id)
			close(ch)
		}
	}
}

// resubscribe cancels the current subscription before opening the next one;
// at most one is ever live. Emissions carry the token of the subscription
// that produced them so leftovers from a cancelled one are dropped.
func (e *Engine) resubscribe(ctx context.Context) {
	if e.sub != nil {
		e.sub.Cancel()
		e.sub = nil
	}
	e.subToken++
	token := e.subToken

	e.ui = UiState{Criteria: e.criteria, Tasks: e.ui.Tasks, Loading: true}
	e.publish()

	sub, err := e.store.Subscribe(ctx, e.criteria)
	if err != nil {
		e.logger.Printf("subscription for mode %q failed: %v", e.criteria.Mode, err)
		e.ui = UiState{Criteria: e.criteria, Tasks: e.ui.Tasks, Error: err.Error()}
		e.publish()
		return
	}
	e.sub = sub

	go func() {
		for em := range sub.Updates() {
			if !e.send(ctx, cmdEmission{token: token, e: em}) {
				return
			}
		}
	}()
}

func (e *Engine) handleMutation(ctx context.Context, c cmdMutate) {
	if c.id == "" {
		c.reply <- storeErr(mutationName(c.kind), KindValidation, ErrEmptyTaskID)
		return
	}
	t, ok := e.findRaw(c.id)
	if !ok {
		c.reply <- storeErr(mutationName(c.kind), KindValidation, ErrNotFound)
		return
	}

	if !AllowedActions(c.role, t).Has(requiredAction(c.kind)) {
		e.advise(fmt.Sprintf("accion %s no permitida para la tarea %s", mutationName(c.kind), c.id))
		c.reply <- ErrPermissionDenied
		return
	}
	if c.kind == mutateAssign && !e.roster[c.supervisor] {
		c.reply <- storeErr("assign", KindValidation, ErrUnknownSupervisor)
		return
	}

	// The store call runs off the loop; its result re-enters as a command,
	// so the optimistic removal is still applied by the single writer.
	go func() {
		var err error
		switch c.kind {
		case mutateDelete:
			err = e.store.Delete(ctx, c.id)
		case mutateComplete:
			err = e.store.Complete(ctx, c.id, c.photo, c.comment)
		case mutateAssign:
			err = e.store.Assign(ctx, c.id, c.supervisor)
		case mutateEdit:
			err = e.store.UpdateFields(ctx, c.id, c.fields)
		}
		if err == nil && (c.kind == mutateDelete || c.kind == mutateComplete) {
			e.send(ctx, cmdRemoveTask{id: c.id})
		}
		c.reply <- err
	}()
}

// removeLocally drops a confirmed-gone task from the raw snapshot and
// republishes without waiting for the next remote push.
func (e *Engine) removeLocally(id string) {
	kept := make([]Task, 0, len(e.raw))
	removed := false
	for _, t := range e.raw {
		if t.ID == id {
			removed = true
			continue
		}
		kept = append(kept, t)
	}
	if !removed {
		return
	}
	e.raw = kept
	e.publishReady()
}

func (e *Engine) publishReady() {
	e.ui = UiState{Criteria: e.criteria, Tasks: FilterLocal(e.raw, e.criteria)}
	e.publish()
}

func (e *Engine) publish() {
	for _, ch := range e.watchers {
		select {
		case ch <- e.ui:
		default:
			// Observer is behind; it will catch the next snapshot.
		}
	}
}

func (e *Engine) findRaw(id string) (Task, bool) {
	for _, t := range e.raw {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

func (e *Engine) advise(message string) {
	if e.advisor == nil {
		return
	}
	e.advisor.Advise(message)
}

func requiredAction(k mutationKind) ActionSet {
	switch k {
	case mutateDelete:
		return ActionDelete
	case mutateComplete:
		return ActionRespond
	case mutateAssign:
		return ActionAssign
	case mutateEdit:
		return ActionEdit
	}
	return 0
}

func mutationName(k mutationKind) string {
	switch k {
	case mutateDelete:
		return "delete"
	case mutateComplete:
		return "complete"
	case mutateAssign:
		return "assign"
	case mutateEdit:
		return "edit"
	}
	return "unknown"
}
