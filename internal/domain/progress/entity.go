// Package progress holds the per-user, per-day study analytics derived from
// task lifecycle events.
package progress

import (
	"sort"
	"time"

	"github.com/study-planner/planner-core/internal/domain/shared"
)

const domainName = "progress"

// UserDailyProgress represents a student's progress for one calendar day.
// It is created on the first event for the (user, date) pair and updated
// incrementally; every update is idempotent under event replay.
type UserDailyProgress struct {
	UserID shared.ID
	Date   shared.CalendarDate

	// CompletedTasks maps each completed task to the seconds credited for it.
	CompletedTasks map[shared.ID]int

	// StudyTimeSeconds is the sum of CompletedTasks.
	StudyTimeSeconds int

	// SubjectsStudied are the distinct topics of the completed tasks, in
	// first-seen order.
	SubjectsStudied []shared.ID

	Performance []SubjectPerformance

	TotalTasksCompleted int
	TotalCorrect        int
	TotalIncorrect      int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SubjectPerformance is the answer tally of one task within a topic.
// LastCorrect and LastIncorrect are the absolute counts the tally was last
// brought up to, used to compute the next delta. LastNoteAt is when the
// newest applied registration happened.
type SubjectPerformance struct {
	TopicID         shared.ID
	TaskID          shared.ID
	CorrectAmount   int
	IncorrectAmount int
	LastCorrect     int
	LastIncorrect   int
	LastNoteAt      time.Time
}

// NoteCounts is the answer-count part of a note registration. Nil counts
// were not part of the registration and leave the tally unchanged.
type NoteCounts struct {
	TopicID           shared.ID
	TaskID            shared.ID
	Correct           *int
	Incorrect         *int
	PreviousCorrect   *int
	PreviousIncorrect *int

	// RegisteredAt orders registrations of the same task. Zero skips the
	// ordering check.
	RegisteredAt time.Time
}

// New creates an empty record for (userID, date).
func New(userID shared.ID, date shared.CalendarDate) *UserDailyProgress {
	now := time.Now().UTC()
	return &UserDailyProgress{
		UserID:         userID,
		Date:           date,
		CompletedTasks: make(map[shared.ID]int),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ApplyCompletion credits a completed task. A task already credited for the
// day is ignored, so replays change nothing. Returns whether the record changed.
func (p *UserDailyProgress) ApplyCompletion(taskID, topicID shared.ID, elapsedSeconds int) bool {
	if p.CompletedTasks == nil {
		p.CompletedTasks = make(map[shared.ID]int)
	}
	if _, done := p.CompletedTasks[taskID]; done {
		return false
	}

	p.CompletedTasks[taskID] = elapsedSeconds
	p.StudyTimeSeconds += elapsedSeconds
	p.TotalTasksCompleted = len(p.CompletedTasks)
	p.addSubject(topicID)
	p.UpdatedAt = time.Now().UTC()
	return true
}

// ApplyNote moves the tally of (topic, task) by the difference between the
// new counts and the last counts applied to it. For a tally the day has not
// seen yet the baseline is the previous counts from the registration.
// A registration older than the newest one applied is ignored, so a late
// redelivery cannot roll the tally back. Returns the deltas applied.
func (p *UserDailyProgress) ApplyNote(n NoteCounts) (correctDelta, incorrectDelta int) {
	i := p.findPerformance(n.TopicID, n.TaskID)
	if i >= 0 && !n.RegisteredAt.IsZero() && n.RegisteredAt.Before(p.Performance[i].LastNoteAt) {
		return 0, 0
	}
	if i < 0 {
		p.Performance = append(p.Performance, SubjectPerformance{
			TopicID:       n.TopicID,
			TaskID:        n.TaskID,
			LastCorrect:   valueOrZero(n.PreviousCorrect),
			LastIncorrect: valueOrZero(n.PreviousIncorrect),
		})
		i = len(p.Performance) - 1
	}
	entry := &p.Performance[i]

	if n.Correct != nil {
		correctDelta = *n.Correct - entry.LastCorrect
		entry.LastCorrect = *n.Correct
		entry.CorrectAmount += correctDelta
	}
	if n.Incorrect != nil {
		incorrectDelta = *n.Incorrect - entry.LastIncorrect
		entry.LastIncorrect = *n.Incorrect
		entry.IncorrectAmount += incorrectDelta
	}
	if n.RegisteredAt.After(entry.LastNoteAt) {
		entry.LastNoteAt = n.RegisteredAt
	}

	p.TotalCorrect += correctDelta
	p.TotalIncorrect += incorrectDelta
	if correctDelta != 0 || incorrectDelta != 0 {
		p.UpdatedAt = time.Now().UTC()
	}
	return correctDelta, incorrectDelta
}

// HasCompleted reports whether the task has been credited for the day.
func (p *UserDailyProgress) HasCompleted(taskID shared.ID) bool {
	_, ok := p.CompletedTasks[taskID]
	return ok
}

// CompletedTaskIDs returns the credited task ids in a stable order.
func (p *UserDailyProgress) CompletedTaskIDs() []shared.ID {
	ids := make([]shared.ID, 0, len(p.CompletedTasks))
	for id := range p.CompletedTasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// TopicTally sums the performance entries of one topic.
func (p *UserDailyProgress) TopicTally(topicID shared.ID) (correct, incorrect int) {
	for _, e := range p.Performance {
		if e.TopicID == topicID {
			correct += e.CorrectAmount
			incorrect += e.IncorrectAmount
		}
	}
	return correct, incorrect
}

// Accuracy returns the share of correct answers for the day, 0 when none.
func (p *UserDailyProgress) Accuracy() float64 {
	total := p.TotalCorrect + p.TotalIncorrect
	if total <= 0 {
		return 0
	}
	return float64(p.TotalCorrect) / float64(total)
}

// Clone returns a deep copy.
func (p *UserDailyProgress) Clone() *UserDailyProgress {
	c := *p
	c.CompletedTasks = make(map[shared.ID]int, len(p.CompletedTasks))
	for id, secs := range p.CompletedTasks {
		c.CompletedTasks[id] = secs
	}
	c.SubjectsStudied = append([]shared.ID(nil), p.SubjectsStudied...)
	c.Performance = append([]SubjectPerformance(nil), p.Performance...)
	return &c
}

func (p *UserDailyProgress) addSubject(topicID shared.ID) {
	for _, s := range p.SubjectsStudied {
		if s == topicID {
			return
		}
	}
	p.SubjectsStudied = append(p.SubjectsStudied, topicID)
}

func (p *UserDailyProgress) findPerformance(topicID, taskID shared.ID) int {
	for i, e := range p.Performance {
		if e.TopicID == topicID && e.TaskID == taskID {
			return i
		}
	}
	return -1
}

func valueOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
