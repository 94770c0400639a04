// Package bot interprets free-text course-room messages: it picks a command
// intent, resolves which course and which members the text refers to, and
// formats the answer.
//
// The package never talks to the network itself. Course, member, assignment
// and grade data come from the provider interfaces in providers.go, which are
// implemented by the portal package.
package bot

import (
	"strings"
	"time"
)

// Course is a snapshot of a course visible to the current user.
type Course struct {
	ID       string
	Name     string
	Category string
	// Active is true when the course is currently open/visible rather than
	// archived.
	Active bool
	URL    string
}

// Role is the role a member holds in a course.
type Role string

const (
	RoleStudent    Role = "student"
	RoleSupervisor Role = "supervisor"
)

// Title returns the capitalized role name used in chat replies.
func (r Role) Title() string {
	switch r {
	case RoleStudent:
		return "Student"
	case RoleSupervisor:
		return "Supervisor"
	default:
		return "Member"
	}
}

// Member is a course participant. Alias is the short handle (e-mail local
// part) and is unique within one course listing.
type Member struct {
	Name  string
	Alias string
	Role  Role
}

// AssignmentStatus is the submission state of an assignment.
type AssignmentStatus string

const (
	StatusPending     AssignmentStatus = "pending"
	StatusMarking     AssignmentStatus = "marking"
	StatusResubmit    AssignmentStatus = "resubmit"
	StatusResubmitted AssignmentStatus = "resubmitted"
	StatusCompleted   AssignmentStatus = "completed"
)

// AwaitsSubmission reports whether the student still has to hand something
// in, in which case the deadline is more interesting than the status.
func (s AssignmentStatus) AwaitsSubmission() bool {
	return s == StatusPending || s == StatusResubmit
}

// Title returns the status with its first letter upper-cased.
func (s AssignmentStatus) Title() string {
	if s == "" {
		return "Unknown"
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// Assignment is a submission slot in a course.
type Assignment struct {
	ID   int
	Name string
	URL  string
	// Group is the group label, empty when no group is set.
	Group    string
	Status   AssignmentStatus
	Deadline *time.Time
}

// GradeRecord is one line of the student's grade history.
type GradeRecord struct {
	Code    string
	Name    string
	Credits float64
	// Grade is empty while the course has not been graded.
	Grade string
}

// Room is the chat context a message was sent in. A room with a CourseID is
// bound to that course.
type Room struct {
	ID         string
	CourseID   string
	CourseName string
}

// Bound reports whether the room pins course resolution to a course.
func (r *Room) Bound() bool {
	return r != nil && r.CourseID != ""
}
