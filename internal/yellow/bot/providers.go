package bot

import "context"

// CourseProvider lists the courses visible to the current user.
type CourseProvider interface {
	Courses(ctx context.Context) ([]Course, error)
}

// MemberProvider lists the members of a course holding the given role.
type MemberProvider interface {
	Members(ctx context.Context, courseID string, role Role) ([]Member, error)
}

// AssignmentProvider lists the assignments of a course.
type AssignmentProvider interface {
	Assignments(ctx context.Context, courseID string) ([]Assignment, error)
}

// GradeProvider returns the whole grade history of the current user.
type GradeProvider interface {
	Grades(ctx context.Context) ([]GradeRecord, error)
}

// Providers is the fixed set of data sources a Request may use.
type Providers struct {
	Courses     CourseProvider
	Members     MemberProvider
	Assignments AssignmentProvider
	Grades      GradeProvider
}

func (p Providers) validate() error {
	switch {
	case p.Courses == nil:
		return missingProvider("courses")
	case p.Members == nil:
		return missingProvider("members")
	case p.Assignments == nil:
		return missingProvider("assignments")
	case p.Grades == nil:
		return missingProvider("grades")
	}
	return nil
}
