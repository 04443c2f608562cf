package lists

import (
	"time"

	"github.com/GoCodeAlone/todomagic/clock"
	"github.com/GoCodeAlone/todomagic/task"
)

// Eligible returns the completed items old enough to clear: due at least
// days days before today, or without a readable due. all reports whether
// every completed item qualified, in which case a bulk removal is equivalent.
func Eligible(items []task.Item, days int, today time.Time) (eligible []task.Item, all bool) {
	cutoff := clock.Midnight(today).AddDate(0, 0, -days)
	completed := 0
	for _, it := range items {
		if !it.Completed() {
			continue
		}
		completed++
		if it.Due == "" {
			eligible = append(eligible, it)
			continue
		}
		d, err := task.ParseDue(it.Due, today.Location())
		if err != nil || !clock.Midnight(d.At).After(cutoff) {
			eligible = append(eligible, it)
		}
	}
	return eligible, completed > 0 && len(eligible) == completed
}
