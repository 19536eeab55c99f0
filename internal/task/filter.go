package task

import "strings"

// FilterLocal runs the local filter pass over a raw snapshot: free-text
// substring match on description or location, and exact floor match unless
// the floor filter is "Todos". Both matches are case-insensitive. Supervisor
// and date filtering belong to the subscription query and are never repeated
// here. Order is preserved.
func FilterLocal(tasks []Task, c Criteria) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if matchesText(t, c.FreeText) && matchesFloor(t, c.Floor) {
			out = append(out, t)
		}
	}
	return out
}

func matchesText(t Task, query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(t.Description), q) ||
		strings.Contains(strings.ToLower(t.Location), q)
}

func matchesFloor(t Task, floor string) bool {
	if floor == "" || floor == FloorAll {
		return true
	}
	return strings.EqualFold(t.Floor, floor)
}
