// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"fmt"
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UUID validation regex (simple version).
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// UserID represents a unique platform user identifier (UUID format).
// Users are owned by the enrollment/auth systems; the engine only references them.
type UserID string

// IsValid checks if the user ID is a valid UUID.
func (u UserID) IsValid() bool {
	return uuidRegex.MatchString(string(u))
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// IsEmpty checks if the ID is empty.
func (u UserID) IsEmpty() bool {
	return u == ""
}

// NewUserID creates a new UserID with validation.
func NewUserID(id string) (UserID, error) {
	uid := UserID(strings.ToLower(strings.TrimSpace(id)))
	if !uid.IsValid() {
		return "", ErrInvalidUserID
	}
	return uid, nil
}

// CourseID represents a unique course identifier (UUID format).
type CourseID string

// IsValid checks if the course ID is a valid UUID.
func (c CourseID) IsValid() bool {
	return uuidRegex.MatchString(string(c))
}

// String returns the string representation.
func (c CourseID) String() string {
	return string(c)
}

// IsEmpty checks if the ID is empty.
func (c CourseID) IsEmpty() bool {
	return c == ""
}

// NewCourseID creates a new CourseID with validation.
func NewCourseID(id string) (CourseID, error) {
	cid := CourseID(strings.ToLower(strings.TrimSpace(id)))
	if !cid.IsValid() {
		return "", ErrInvalidCourseID
	}
	return cid, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Lesson Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// LessonNumber is the 1-based position of a lesson inside a course.
// Together with (UserID, CourseID) it forms the idempotency key for completions.
type LessonNumber int

// IsValid checks that the lesson number is positive.
func (n LessonNumber) IsValid() bool {
	return n > 0
}

// Int returns the underlying int value.
func (n LessonNumber) Int() int {
	return int(n)
}

// NewLessonNumber creates a LessonNumber with validation.
func NewLessonNumber(n int) (LessonNumber, error) {
	if n <= 0 {
		return 0, ErrInvalidLessonNumber
	}
	return LessonNumber(n), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Points Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// Points represents engagement points. Ledger entries are always positive;
// totals are non-negative.
type Points int

// IsValid checks that the points value is non-negative.
func (p Points) IsValid() bool {
	return p >= 0
}

// Add sums two point values.
func (p Points) Add(delta Points) Points {
	return p + delta
}

// Int returns the underlying int value.
func (p Points) Int() int {
	return int(p)
}

// String returns the string representation.
func (p Points) String() string {
	return fmt.Sprintf("%d", int(p))
}
