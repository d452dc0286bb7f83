package task

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/study-planner/planner-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// TaskType is the kind of work a task represents.
type TaskType string

const (
	TypeStudy    TaskType = "study"
	TypeLawStudy TaskType = "lawStudy"
	TypeExercise TaskType = "exercise"
	TypeReview   TaskType = "review"
)

// AllTaskTypes lists every valid TaskType.
var AllTaskTypes = []TaskType{TypeStudy, TypeLawStudy, TypeExercise, TypeReview}

// IsValid reports whether t is one of the known task types.
func (t TaskType) IsValid() bool {
	switch t {
	case TypeStudy, TypeLawStudy, TypeExercise, TypeReview:
		return true
	default:
		return false
	}
}

// String returns the wire form of the type.
func (t TaskType) String() string {
	return string(t)
}

// ParseTaskType validates s as a TaskType.
func ParseTaskType(s string) (TaskType, error) {
	t := TaskType(strings.TrimSpace(s))
	if !t.IsValid() {
		return "", shared.WrapError(domainName, "ParseTaskType", shared.ErrValidation,
			fmt.Sprintf("unknown task type %q", s), ErrInvalidTaskType)
	}
	return t, nil
}

// ElapsedTimeInSeconds is the positive time a student spent on a task.
type ElapsedTimeInSeconds int

// NewElapsedTimeInSeconds rejects zero and negative values.
func NewElapsedTimeInSeconds(v int) (ElapsedTimeInSeconds, error) {
	if v <= 0 {
		return 0, shared.WrapError(domainName, "NewElapsedTimeInSeconds", shared.ErrValidation,
			"elapsed time must be a positive number of seconds", ErrInvalidElapsedTime)
	}
	return ElapsedTimeInSeconds(v), nil
}

// IsValid reports whether the value is positive.
func (e ElapsedTimeInSeconds) IsValid() bool {
	return e > 0
}

// Int returns the value in seconds.
func (e ElapsedTimeInSeconds) Int() int {
	return int(e)
}

// QuestionResultNote is a non-negative count of correct or incorrect answers.
type QuestionResultNote int

// NewQuestionResultNote rejects negative counts.
func NewQuestionResultNote(v int) (QuestionResultNote, error) {
	if v < 0 {
		return 0, shared.WrapError(domainName, "NewQuestionResultNote", shared.ErrValidation,
			"answer count must not be negative", ErrInvalidQuestionResult)
	}
	return QuestionResultNote(v), nil
}

// Int returns the count.
func (q QuestionResultNote) Int() int {
	return int(q)
}

// MaxCommentLength is the maximum number of characters in a CommentNote.
const MaxCommentLength = 1000

// CommentNote is a free-form comment the student attaches to a task.
type CommentNote string

// NewCommentNote trims s and checks it is non-empty and within MaxCommentLength.
func NewCommentNote(s string) (CommentNote, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > MaxCommentLength {
		return "", shared.WrapError(domainName, "NewCommentNote", shared.ErrValidation,
			fmt.Sprintf("comment must be 1-%d characters", MaxCommentLength), ErrInvalidComment)
	}
	return CommentNote(trimmed), nil
}

// String returns the comment text.
func (c CommentNote) String() string {
	return string(c)
}
