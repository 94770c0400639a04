package bot

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// DefaultCommands returns the command set in priority order. Plural keywords
// come before their singular forms so "grades" is not taken for "grade".
func DefaultCommands() []Command {
	return []Command{
		SupervisorListCommand{},
		FindCourseCommand{},
		FindUserCommand{},
		GradeListCommand{},
		CourseGradeCommand{},
		CourseAssignmentListCommand{},
		HelpCommand{},
	}
}

// chatDomain is appended to aliases so chat clients render them as mentions.
const chatDomain = "yellow"

// deadlineLayout is how assignment deadlines are shown.
const deadlineLayout = "2006-01-02 15:04"

var (
	courseTermPattern = regexp.MustCompile(`course (.*)$`)
	findTermPatterns  = []*regexp.Regexp{
		regexp.MustCompile(`find (.*) in`),
		regexp.MustCompile(`find (.*) limit`),
		regexp.MustCompile(`find (.*)`),
	}
	limitPattern = regexp.MustCompile(`limit ([0-9]+)`)
)

// single returns the first capture group of re in text when re matches
// exactly once.
func single(re *regexp.Regexp, text string) (string, bool) {
	m := re.FindAllStringSubmatch(text, -1)
	if len(m) != 1 {
		return "", false
	}
	return m[0][1], true
}

func mention(m Member) string {
	return fmt.Sprintf("%s <%s@%s>", m.Name, m.Alias, chatDomain)
}

func credits(c float64) string {
	return strconv.FormatFloat(c, 'f', -1, 64)
}

// --- supervisors -----------------------------------------------------------

// SupervisorListCommand lists the supervisors of a course.
type SupervisorListCommand struct{}

func (SupervisorListCommand) Name() string { return "supervisors" }

func (SupervisorListCommand) Matches(text string) bool {
	return strings.Contains(text, "supervisors")
}

func (SupervisorListCommand) Handle(ctx context.Context, req *Request) (Outcome, error) {
	course, err := req.Course(ctx)
	if err != nil {
		return Decline(), err
	}
	if course == nil {
		return Decline(), nil
	}

	supervisors, err := req.Providers().Members.Members(ctx, course.ID, RoleSupervisor)
	if err != nil {
		return Decline(), err
	}
	sorted := append([]Member(nil), supervisors...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	lines := []string{fmt.Sprintf("Supervisors for %s:", course.Name)}
	for _, s := range sorted {
		lines = append(lines, mention(s))
	}
	return Reply(lines...), nil
}

// --- course search ---------------------------------------------------------

// FindCourseCommand searches course names for a term.
type FindCourseCommand struct{}

func (FindCourseCommand) Name() string { return "find-course" }

func (FindCourseCommand) Matches(text string) bool {
	return courseTermPattern.MatchString(text)
}

func (FindCourseCommand) Handle(ctx context.Context, req *Request) (Outcome, error) {
	// A bound room already says which course is meant.
	if req.Room.Bound() {
		return Decline(), nil
	}
	term, ok := single(courseTermPattern, req.Text)
	if !ok || term == "" {
		return Decline(), nil
	}

	courses, err := req.Providers().Courses.Courses(ctx)
	if err != nil {
		return Decline(), err
	}

	needle := strings.ToLower(term)
	lines := []string{fmt.Sprintf("Courses containing '%s':", term)}
	for _, c := range courses {
		if strings.Contains(strings.ToLower(c.Name), needle) {
			lines = append(lines, c.Name)
		}
	}
	if len(lines) == 1 {
		return Reply("No courses found."), nil
	}
	return Reply(lines...), nil
}

// --- member search ---------------------------------------------------------

// FindUserCommand searches the members of a course by alias or name.
type FindUserCommand struct{}

func (FindUserCommand) Name() string { return "find-user" }

func (FindUserCommand) Matches(text string) bool {
	return strings.Contains(text, "find ")
}

// ExtractFindTerm returns the search term of a "find ..." message.
func ExtractFindTerm(text string) (string, bool) {
	for _, re := range findTermPatterns {
		if term, ok := single(re, text); ok {
			return term, true
		}
	}
	return "", false
}

// ExtractLimit returns the "limit N" value of text, DefaultMemberLimit when
// absent, and false when the value is not a positive integer.
func ExtractLimit(text string) (int, bool) {
	raw, ok := single(limitPattern, text)
	if !ok {
		return DefaultMemberLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (FindUserCommand) Handle(ctx context.Context, req *Request) (Outcome, error) {
	term, ok := ExtractFindTerm(req.Text)
	if !ok || term == "" {
		return Decline(), nil
	}
	limit, ok := ExtractLimit(req.Text)
	if !ok {
		return Decline(), nil
	}

	course, err := req.Course(ctx)
	if err != nil {
		return Decline(), err
	}
	if course == nil {
		return Decline(), nil
	}

	var members []Member
	for _, role := range []Role{RoleStudent, RoleSupervisor} {
		ms, err := req.Providers().Members.Members(ctx, course.ID, role)
		if err != nil {
			return Decline(), err
		}
		members = append(members, ms...)
	}

	match := ResolveMember(term, limit, members)
	switch match.Kind {
	case MatchExactAlias:
		m := match.Members[0]
		return Reply(fmt.Sprintf("Found alias %s %s.", m.Role.Title(), mention(m))), nil
	case MatchRanked:
		lines := []string{fmt.Sprintf("Users in %s similar to '%s':", course.Name, term)}
		for _, m := range match.Members {
			lines = append(lines, m.Role.Title()+" "+mention(m))
		}
		return Reply(lines...), nil
	default:
		return Reply("Could not find anybody."), nil
	}
}

// --- grades ----------------------------------------------------------------

// GradeListCommand lists the whole grade history.
type GradeListCommand struct{}

func (GradeListCommand) Name() string { return "grades" }

func (GradeListCommand) Matches(text string) bool {
	return strings.Contains(text, "grades")
}

func (GradeListCommand) Handle(ctx context.Context, req *Request) (Outcome, error) {
	records, err := req.Providers().Grades.Grades(ctx)
	if err != nil {
		return Decline(), err
	}

	lines := []string{"Grades:"}
	for _, r := range records {
		grade := r.Grade
		if grade == "" {
			grade = "Not graded"
		}
		lines = append(lines, fmt.Sprintf("%s: %s (%s credits)", r.Name, grade, credits(r.Credits)))
	}
	return Reply(lines...), nil
}

// CourseGradeCommand reports the grade of one course.
type CourseGradeCommand struct{}

func (CourseGradeCommand) Name() string { return "grade" }

func (CourseGradeCommand) Matches(text string) bool {
	return strings.Contains(text, "grade")
}

func (CourseGradeCommand) Handle(ctx context.Context, req *Request) (Outcome, error) {
	course, err := req.Course(ctx)
	if err != nil {
		return Decline(), err
	}
	if course == nil {
		return Decline(), nil
	}
	code, ok := ExtractCode(course.Name)
	if !ok {
		return Decline(), nil
	}

	records, err := req.Providers().Grades.Grades(ctx)
	if err != nil {
		return Decline(), err
	}
	for _, r := range records {
		if strings.ToLower(r.Code) != code {
			continue
		}
		if r.Grade != "" {
			return Reply(fmt.Sprintf("You got %s for %s (%s credits)", r.Grade, r.Name, credits(r.Credits))), nil
		}
		return Reply(fmt.Sprintf("%s (%s credits) has not been graded yet.", r.Name, credits(r.Credits))), nil
	}
	return Reply(fmt.Sprintf("Course %s not found.", code)), nil
}

// --- assignments -----------------------------------------------------------

// CourseAssignmentListCommand lists the assignments of a course.
type CourseAssignmentListCommand struct{}

func (CourseAssignmentListCommand) Name() string { return "assignments" }

func (CourseAssignmentListCommand) Matches(text string) bool {
	return strings.Contains(text, "assignments")
}

func (CourseAssignmentListCommand) Handle(ctx context.Context, req *Request) (Outcome, error) {
	course, err := req.Course(ctx)
	if err != nil {
		return Decline(), err
	}
	if course == nil {
		return Decline(), nil
	}

	assignments, err := req.Providers().Assignments.Assignments(ctx, course.ID)
	if err != nil {
		return Decline(), err
	}
	sorted := append([]Assignment(nil), assignments...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	lines := []string{fmt.Sprintf("Assignments for %s:", course.Name)}
	for _, a := range sorted {
		lines = append(lines, "\n"+formatAssignment(a))
	}
	return Reply(lines...), nil
}

func formatAssignment(a Assignment) string {
	group := a.Group
	if group == "" {
		group = "Not set"
	}

	state := a.Status.Title()
	if a.Status.AwaitsSubmission() {
		due := "Not set"
		if a.Deadline != nil {
			due = a.Deadline.Format(deadlineLayout)
		}
		state = "Due " + due
	}

	return fmt.Sprintf("%s %s\nGroup: %s\n%s", a.Name, a.URL, group, state)
}

// --- help ------------------------------------------------------------------

// HelpCommand explains what the bot understands.
type HelpCommand struct{}

func (HelpCommand) Name() string { return "help" }

func (HelpCommand) Matches(text string) bool {
	return strings.Contains(text, "help")
}

func (HelpCommand) Handle(_ context.Context, req *Request) (Outcome, error) {
	if req.Room.Bound() {
		return Reply(
			"Course room help:",
			"find {user}",
			"supervisors",
			"assignments",
		), nil
	}
	return Reply(
		"General help:",
		"find course {course}",
		"find {user} in {course} [limit {limit}]",
		"supervisors for {course}",
		"grade for {course}",
		"assignments for {course}",
		"grades",
	), nil
}
