package bot

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"
)

// codePattern matches a course code such as "dit123" or "dit-123".
var codePattern = regexp.MustCompile(`[a-z]{3}-?[0-9]{3}`)

// roomCourseName is the display name of the course synthesized from a bound
// room; the transport already knows the real name.
const roomCourseName = "this course"

// ExtractCode returns the single course code found in text, without its
// hyphen. It reports false when text holds no code or more than one.
func ExtractCode(text string) (string, bool) {
	matches := codePattern.FindAllString(strings.ToLower(text), -1)
	if len(matches) != 1 {
		return "", false
	}
	return strings.ReplaceAll(matches[0], "-", ""), true
}

// ResolveCourse picks the course text refers to. In order: a single course
// code contained in a course name, the course a bound room is pinned to, and
// finally the best ranked course by name similarity. It returns nil when the
// provider lists no courses.
//
// The provider is only called when a strategy needs the course list.
func ResolveCourse(ctx context.Context, text string, room *Room, provider CourseProvider) (*Course, error) {
	var (
		courses []Course
		fetched bool
	)
	list := func() ([]Course, error) {
		if fetched {
			return courses, nil
		}
		cs, err := provider.Courses(ctx)
		if err != nil {
			return nil, err
		}
		courses, fetched = cs, true
		return courses, nil
	}

	if code, ok := ExtractCode(text); ok {
		cs, err := list()
		if err != nil {
			return nil, err
		}
		for i := range cs {
			if strings.Contains(strings.ToLower(cs[i].Name), code) {
				c := cs[i]
				return &c, nil
			}
		}
	}

	if room.Bound() {
		return &Course{ID: room.CourseID, Name: roomCourseName}, nil
	}

	cs, err := list()
	if err != nil {
		return nil, err
	}
	return rankCourses(text, cs), nil
}

// rankCourses returns the course with the lowest rank key, preferring the
// earliest one on ties.
func rankCourses(text string, courses []Course) *Course {
	if len(courses) == 0 {
		return nil
	}

	text = strings.ToLower(text)
	words := make([]string, 0)
	for _, w := range strings.Fields(text) {
		if utf8.RuneCountInString(w) >= 3 {
			words = append(words, w)
		}
	}

	type ranked struct {
		index int
		key   int
	}
	keys := make([]ranked, len(courses))
	for i, c := range courses {
		keys[i] = ranked{index: i, key: rankKey(text, words, c)}
	}
	sort.SliceStable(keys, func(i, j int) bool { return keys[i].key < keys[j].key })

	best := courses[keys[0].index]
	return &best
}

// rankKey is zero for an active course sharing at least two significant words
// with the text, and the edit distance otherwise, doubled for inactive
// courses.
func rankKey(text string, words []string, c Course) int {
	name := strings.ToLower(c.Name)
	if c.Active {
		hits := 0
		for _, w := range words {
			if strings.Contains(name, w) {
				hits++
			}
		}
		if hits >= 2 {
			return 0
		}
	}

	// Distance counts characters, so å, ä and ö cost one edit each.
	distance := edlib.LevenshteinDistance(text, name)
	if !c.Active {
		distance *= 2
	}
	return distance
}
