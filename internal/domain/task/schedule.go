package task

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/study-planner/planner-core/internal/domain/shared"
)

// SpacingPolicy decides how many days after a completion the next cycle of
// a task is planned.
type SpacingPolicy interface {
	// IntervalDays returns the interval before the task of the given type
	// reaches cycle. cycle is the successor's cycle and is always >= 1.
	IntervalDays(taskType TaskType, cycle int) int
}

// NextPlannedDate applies policy to a completion date.
func NextPlannedDate(policy SpacingPolicy, completedOn shared.CalendarDate, taskType TaskType, cycle int) shared.CalendarDate {
	return completedOn.AddDays(policy.IntervalDays(taskType, cycle))
}

// DefaultIntervals is the fallback spacing used for task types the table
// does not list. It is a placeholder for deployments that have not
// configured SCHEDULE_INTERVALS.
var DefaultIntervals = []int{1, 3, 7, 14, 30}

// IntervalTable is a SpacingPolicy backed by per-type interval lists.
// Entry i is the interval before cycle i+1; cycles past the end of a list
// reuse its last entry.
type IntervalTable struct {
	byType   map[TaskType][]int
	fallback []int
}

// NewIntervalTable builds a table. Lists must be non-empty and contain only
// positive day counts. A nil fallback means DefaultIntervals.
func NewIntervalTable(byType map[TaskType][]int, fallback []int) (*IntervalTable, error) {
	if fallback == nil {
		fallback = DefaultIntervals
	}
	if err := validateIntervals("default", fallback); err != nil {
		return nil, err
	}

	table := &IntervalTable{
		byType:   make(map[TaskType][]int, len(byType)),
		fallback: append([]int(nil), fallback...),
	}
	for t, days := range byType {
		if !t.IsValid() {
			return nil, invalid("NewIntervalTable", fmt.Sprintf("unknown task type %q", t), ErrInvalidTaskType)
		}
		if err := validateIntervals(string(t), days); err != nil {
			return nil, err
		}
		table.byType[t] = append([]int(nil), days...)
	}
	return table, nil
}

// DefaultIntervalTable returns a table that uses DefaultIntervals for every type.
func DefaultIntervalTable() *IntervalTable {
	table, _ := NewIntervalTable(nil, nil)
	return table
}

// ParseIntervalTable parses the SCHEDULE_INTERVALS format:
//
//	study:1,7,30;review:2,5,14;default:1,3,7
//
// An empty string yields DefaultIntervalTable.
func ParseIntervalTable(s string) (*IntervalTable, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultIntervalTable(), nil
	}

	byType := make(map[TaskType][]int)
	var fallback []int

	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, list, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, invalid("ParseIntervalTable", fmt.Sprintf("entry %q must look like type:d1,d2", entry), ErrInvalidSchedule)
		}

		days, err := parseDays(list)
		if err != nil {
			return nil, invalid("ParseIntervalTable", fmt.Sprintf("entry %q: %v", entry, err), ErrInvalidSchedule)
		}

		name = strings.TrimSpace(name)
		if name == "default" {
			fallback = days
			continue
		}
		t, err := ParseTaskType(name)
		if err != nil {
			return nil, err
		}
		byType[t] = days
	}

	return NewIntervalTable(byType, fallback)
}

// IntervalDays implements SpacingPolicy.
func (t *IntervalTable) IntervalDays(taskType TaskType, cycle int) int {
	days, ok := t.byType[taskType]
	if !ok {
		days = t.fallback
	}
	i := cycle - 1
	if i < 0 {
		i = 0
	}
	if i >= len(days) {
		i = len(days) - 1
	}
	return days[i]
}

// String renders the table in the SCHEDULE_INTERVALS format.
func (t *IntervalTable) String() string {
	types := make([]string, 0, len(t.byType))
	for tt := range t.byType {
		types = append(types, string(tt))
	}
	sort.Strings(types)

	parts := make([]string, 0, len(types)+1)
	for _, name := range types {
		parts = append(parts, name+":"+joinDays(t.byType[TaskType(name)]))
	}
	parts = append(parts, "default:"+joinDays(t.fallback))
	return strings.Join(parts, ";")
}

func parseDays(list string) ([]int, error) {
	var days []int
	for _, raw := range strings.Split(list, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		d, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid day count %q", raw)
		}
		days = append(days, d)
	}
	return days, nil
}

func validateIntervals(name string, days []int) error {
	if len(days) == 0 {
		return invalid("NewIntervalTable", fmt.Sprintf("%s: interval list is empty", name), ErrInvalidSchedule)
	}
	for _, d := range days {
		if d <= 0 {
			return invalid("NewIntervalTable", fmt.Sprintf("%s: intervals must be positive, got %d", name, d), ErrInvalidSchedule)
		}
	}
	return nil
}

func joinDays(days []int) string {
	s := make([]string, len(days))
	for i, d := range days {
		s[i] = strconv.Itoa(d)
	}
	return strings.Join(s, ",")
}
