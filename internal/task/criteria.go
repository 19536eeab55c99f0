package task

import "time"

// FloorAll disables floor filtering.
const FloorAll = "Todos"

// Criteria is the composed set of active filters. Mode, Supervisor and the
// date range are applied server-side by the subscription query; Floor and
// FreeText are applied locally over the raw snapshot.
type Criteria struct {
	Mode       Status
	Floor      string
	FreeText   string
	Supervisor string
	DateFrom   *time.Time
	DateTo     *time.Time
}

func NewCriteria(mode Status) Criteria {
	return Criteria{Mode: mode, Floor: FloorAll}
}

// WithoutFilters returns the criteria with every filter cleared except Mode.
func (c Criteria) WithoutFilters() Criteria {
	return Criteria{Mode: c.Mode, Floor: FloorAll}
}

// Validate rejects an inverted date range before it reaches the store.
func (c Criteria) Validate() error {
	if c.DateFrom != nil && c.DateTo != nil && c.DateFrom.After(*c.DateTo) {
		return ErrInvalidDateRange
	}
	return nil
}

// RequiresResubscribe reports whether moving from prev to c changes any field
// the subscription query depends on. Floor and FreeText changes never do.
func (c Criteria) RequiresResubscribe(prev Criteria) bool {
	return !c.Mode.Equals(prev.Mode) ||
		c.Supervisor != prev.Supervisor ||
		!equalTime(c.DateFrom, prev.DateFrom) ||
		!equalTime(c.DateTo, prev.DateTo)
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
