package portal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/bdobrica/yellow/internal/yellow/bot"
)

var idPattern = regexp.MustCompile(`id=([0-9]+)`)

// relativeDeadline matches "today 23:59" and the like.
var relativeDeadline = regexp.MustCompile(`(\S*) ([0-9]+:[0-9]+)`)

// GUL scrapes courses, participants and assignments from the course portal.
type GUL struct {
	fetch *fetcher
	loc   *time.Location
	now   func() time.Time
}

// Courses lists the courses on the user's start page. Support activities are
// not courses and are skipped.
func (g *GUL) Courses(ctx context.Context) ([]bot.Course, error) {
	doc, err := g.fetch.document(ctx, "/listCourses.do")
	if err != nil {
		return nil, fmt.Errorf("gul: courses: %w", err)
	}

	var courses []bot.Course
	doc.Find("#myCourses .data-row").Each(func(_ int, row *goquery.Selection) {
		td := row.Find("td")
		if td.Length() < 5 {
			return
		}
		link := td.Eq(1).Find("a").First()
		href, _ := link.Attr("href")
		id, ok := linkID(href)
		if !ok {
			return
		}

		category := strings.TrimSpace(td.Eq(2).Find("span").First().Text())
		if strings.EqualFold(category, "supportaktiviteter") {
			return
		}
		state := strings.ToLower(strings.TrimSpace(td.Eq(4).Text()))

		courseURL, err := g.fetch.resolve(href)
		if err != nil {
			return
		}
		courses = append(courses, bot.Course{
			ID:       id,
			Name:     strings.TrimSpace(link.Text()),
			Category: category,
			Active:   state == "visible" || state == "synlig",
			URL:      courseURL,
		})
	})
	return courses, nil
}

// listTypes maps member roles to the portal's participant list types.
var listTypes = map[bot.Role]string{
	bot.RoleStudent:    "participant",
	bot.RoleSupervisor: "teacher",
}

// Members lists the first hundred members of a course holding role.
func (g *GUL) Members(ctx context.Context, courseID string, role bot.Role) ([]bot.Member, error) {
	listType, ok := listTypes[role]
	if !ok {
		return nil, fmt.Errorf("gul: unknown member role %q", role)
	}
	query := url.Values{
		"tableCurrentPageparticipantList": {"0"},
		"listType":                        {listType},
		"tablePageSizeparticipantList":    {"100"},
	}
	ref := "/courseId/" + url.PathEscape(courseID) + "/courseParticipants.do?" + query.Encode()

	doc, err := g.fetch.document(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("gul: members of %s: %w", courseID, err)
	}

	var members []bot.Member
	doc.Find("#participantList .data-row").Each(func(_ int, row *goquery.Selection) {
		td := row.Find("td")
		if td.Length() < 4 {
			return
		}
		email := strings.TrimSpace(td.Eq(3).Text())
		alias, _, _ := strings.Cut(email, "@")
		members = append(members, bot.Member{
			Name:  strings.TrimSpace(td.Eq(1).Text()) + " " + strings.TrimSpace(td.Eq(2).Text()),
			Alias: alias,
			Role:  role,
		})
	})
	return members, nil
}

// Assignments lists the hand-in assignments of a course. Content nodes
// without a submission box are not assignments and are skipped.
func (g *GUL) Assignments(ctx context.Context, courseID string) ([]bot.Assignment, error) {
	doc, err := g.fetch.document(ctx, "/courseId/"+url.PathEscape(courseID)+"/contentStart.do")
	if err != nil {
		return nil, fmt.Errorf("gul: contents of %s: %w", courseID, err)
	}

	type node struct {
		id   int
		name string
		href string
	}
	var nodes []node
	doc.Find("#courseMainBox .treeNodeText").Each(func(_ int, s *goquery.Selection) {
		link := s.Find("a").First()
		href, _ := link.Attr("href")
		raw, ok := linkID(href)
		if !ok {
			return
		}
		id, err := strconv.Atoi(raw)
		if err != nil {
			return
		}
		nodes = append(nodes, node{id: id, name: strings.TrimSpace(link.Text()), href: href})
	})

	var assignments []bot.Assignment
	for _, n := range nodes {
		ref := fmt.Sprintf("/pp/courses/course%s/published/0/resourceId/0/content/contentFrame.do?id=%d", url.PathEscape(courseID), n.id)
		frame, err := g.fetch.document(ctx, ref)
		if errors.Is(err, ErrUnexpectedStatus) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("gul: assignment %d: %w", n.id, err)
		}

		submission := frame.Find("#ppReportSubmission").First()
		if submission.Length() == 0 {
			continue
		}
		assignmentURL, err := g.fetch.resolve(n.href)
		if err != nil {
			continue
		}

		a := bot.Assignment{ID: n.id, Name: n.name, URL: assignmentURL}
		group := strings.TrimSpace(submission.Find("h2").First().Text())
		if lower := strings.ToLower(group); strings.Contains(lower, "group") || strings.Contains(lower, "grupp") {
			a.Group = group
		}
		g.readReport(submission.Find(".rsBox").First(), &a)
		assignments = append(assignments, a)
	}
	return assignments, nil
}

// readReport fills status and deadline from the "<strong>Label:</strong>
// value<br/>" lines of a submission box.
func (g *GUL) readReport(box *goquery.Selection, a *bot.Assignment) {
	box.Find("strong").Each(func(_ int, s *goquery.Selection) {
		label := strings.ToLower(strings.TrimSpace(s.Text()))
		label = strings.TrimSpace(strings.TrimSuffix(label, ":"))
		value := strings.ToLower(strings.TrimSpace(textUntilBreak(s.Nodes[0].NextSibling)))

		switch label {
		case "status":
			a.Status = parseStatus(value)
		case "submission deadline", "sista tidpunkt för inlämning":
			a.Deadline = parseDeadline(value, g.loc, g.now())
		}
	})
}

// textUntilBreak concatenates the text of n and its following siblings up to
// the next <br>.
func textUntilBreak(n *html.Node) string {
	var b strings.Builder
	for ; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode && n.Data == "br" {
			break
		}
		writeText(&b, n)
	}
	return b.String()
}

func writeText(b *strings.Builder, n *html.Node) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
}

var statusLabels = map[string]bot.AssignmentStatus{
	"not yet submitted":      bot.StatusPending,
	"ej inlämnad":            bot.StatusPending,
	"to be marked":           bot.StatusMarking,
	"ogranskad":              bot.StatusMarking,
	"revision required":      bot.StatusResubmit,
	"kompletteras":           bot.StatusResubmit,
	"revision submitted":     bot.StatusResubmitted,
	"komplettering inlämnad": bot.StatusResubmitted,
	"completed":              bot.StatusCompleted,
	"färdig":                 bot.StatusCompleted,
}

// parseStatus maps an English or Swedish status label; unknown labels give
// the empty status.
func parseStatus(label string) bot.AssignmentStatus {
	return statusLabels[label]
}

var swedishMonths = strings.NewReplacer(
	"januari", "january",
	"februari", "february",
	"mars", "march",
	"maj", "may",
	"juni", "june",
	"juli", "july",
	"augusti", "august",
	"oktober", "october",
)

// Month names in values are matched case-insensitively.
var deadlineLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02",
	"2 January 2006 15:04",
	"2 January 2006",
	"January 2 2006 15:04",
	"January 2 2006",
}

// parseDeadline reads an absolute or relative ("today 12:00", "igår 08:15")
// deadline in loc. The part after a comma is dropped. It returns nil when the
// text is not understood.
func parseDeadline(text string, loc *time.Location, now time.Time) *time.Time {
	text, _, _ = strings.Cut(text, ",")
	text = strings.Join(strings.Fields(swedishMonths.Replace(text)), " ")

	for _, layout := range deadlineLayouts {
		if t, err := time.ParseInLocation(layout, text, loc); err == nil {
			return &t
		}
	}

	m := relativeDeadline.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	clock, err := time.Parse("15:04", m[2])
	if err != nil {
		return nil
	}
	day := now.In(loc)
	switch m[1] {
	case "today", "idag":
	case "yesterday", "igår":
		day = day.AddDate(0, 0, -1)
	default:
		return nil
	}
	t := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
	return &t
}

// linkID extracts the numeric id query value from a portal link.
func linkID(href string) (string, bool) {
	m := idPattern.FindStringSubmatch(href)
	if m == nil {
		return "", false
	}
	return m[1], true
}
