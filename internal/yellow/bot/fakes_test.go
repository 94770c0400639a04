package bot_test

import (
	"context"

	"github.com/bdobrica/yellow/internal/yellow/bot"
)

// fakePortal implements every provider over in-memory fixtures and counts
// course list fetches.
type fakePortal struct {
	courses     []bot.Course
	coursesErr  error
	courseCalls int

	members     map[string]map[bot.Role][]bot.Member
	assignments map[string][]bot.Assignment
	grades      []bot.GradeRecord
	gradesErr   error
}

func (f *fakePortal) Courses(ctx context.Context) ([]bot.Course, error) {
	f.courseCalls++
	if f.coursesErr != nil {
		return nil, f.coursesErr
	}
	return f.courses, nil
}

func (f *fakePortal) Members(ctx context.Context, courseID string, role bot.Role) ([]bot.Member, error) {
	return f.members[courseID][role], nil
}

func (f *fakePortal) Assignments(ctx context.Context, courseID string) ([]bot.Assignment, error) {
	return f.assignments[courseID], nil
}

func (f *fakePortal) Grades(ctx context.Context) ([]bot.GradeRecord, error) {
	if f.gradesErr != nil {
		return nil, f.gradesErr
	}
	return f.grades, nil
}

func (f *fakePortal) providers() bot.Providers {
	return bot.Providers{Courses: f, Members: f, Assignments: f, Grades: f}
}
