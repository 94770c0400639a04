package bot_test

import (
	"context"
	"errors"
	"testing"

	"github.com/bdobrica/yellow/internal/yellow/bot"
)

func TestExtractCode(t *testing.T) {
	tests := []struct {
		text   string
		want   string
		wantOK bool
	}{
		{"grade for dit-123", "dit123", true},
		{"grade for dit123", "dit123", true},
		{"GRADE FOR DIT-123", "dit123", true},
		{"dit123 or tda456", "", false},
		{"dit123 dit123", "", false},
		{"no code here", "", false},
		{"", "", false},
		{"di-123", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := bot.ExtractCode(tt.text)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ExtractCode(%q) = (%q, %v), want (%q, %v)", tt.text, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestResolveCourse_CodeMatchIgnoresActiveFlag(t *testing.T) {
	p := &fakePortal{courses: []bot.Course{
		{ID: "1", Name: "TDA111 Algorithms", Active: true},
		{ID: "2", Name: "DIT123 Programming", Active: false},
	}}

	got, err := bot.ResolveCourse(context.Background(), "supervisors dit-123", nil, p)
	if err != nil {
		t.Fatalf("ResolveCourse: %v", err)
	}
	if got == nil || got.ID != "2" {
		t.Fatalf("got %+v, want course 2", got)
	}
}

func TestResolveCourse_CodeBeatsRoom(t *testing.T) {
	p := &fakePortal{courses: []bot.Course{{ID: "1", Name: "DIT123 Programming", Active: true}}}
	room := &bot.Room{ID: "!r:example.org", CourseID: "99"}

	got, err := bot.ResolveCourse(context.Background(), "assignments dit123", room, p)
	if err != nil {
		t.Fatalf("ResolveCourse: %v", err)
	}
	if got.ID != "1" {
		t.Errorf("got course %q, want 1", got.ID)
	}
}

func TestResolveCourse_AmbiguousCodesFallToRoom(t *testing.T) {
	p := &fakePortal{courses: []bot.Course{
		{ID: "1", Name: "DIT123 Programming", Active: true},
		{ID: "2", Name: "TDA456 Databases", Active: true},
	}}
	room := &bot.Room{ID: "!r:example.org", CourseID: "99"}

	got, err := bot.ResolveCourse(context.Background(), "dit123 or tda456", room, p)
	if err != nil {
		t.Fatalf("ResolveCourse: %v", err)
	}
	if got.ID != "99" || got.Name != "this course" {
		t.Errorf("got %+v, want room course", got)
	}
}

func TestResolveCourse_UnknownCodeFallsToRoom(t *testing.T) {
	p := &fakePortal{courses: []bot.Course{{ID: "1", Name: "DIT123 Programming", Active: true}}}
	room := &bot.Room{ID: "!r:example.org", CourseID: "42"}

	got, err := bot.ResolveCourse(context.Background(), "xyz999", room, p)
	if err != nil {
		t.Fatalf("ResolveCourse: %v", err)
	}
	if got.ID != "42" {
		t.Errorf("got %q, want 42", got.ID)
	}
}

func TestResolveCourse_RoomSkipsCourseFetch(t *testing.T) {
	p := &fakePortal{coursesErr: errors.New("should not be called")}
	room := &bot.Room{ID: "!r:example.org", CourseID: "7"}

	got, err := bot.ResolveCourse(context.Background(), "supervisors", room, p)
	if err != nil {
		t.Fatalf("ResolveCourse: %v", err)
	}
	if got.ID != "7" {
		t.Errorf("got %q, want 7", got.ID)
	}
	if p.courseCalls != 0 {
		t.Errorf("course provider called %d times", p.courseCalls)
	}
}

func TestResolveCourse_UnboundRoomIgnored(t *testing.T) {
	p := &fakePortal{courses: []bot.Course{{ID: "1", Name: "Databases", Active: true}}}

	got, err := bot.ResolveCourse(context.Background(), "databases", &bot.Room{ID: "!general:example.org"}, p)
	if err != nil {
		t.Fatalf("ResolveCourse: %v", err)
	}
	if got.ID != "1" {
		t.Errorf("got %q, want 1", got.ID)
	}
}

func TestResolveCourse_WordOverlapRanksFirst(t *testing.T) {
	p := &fakePortal{courses: []bot.Course{
		{ID: "1", Name: "Databases", Active: true},
		{ID: "2", Name: "Programming Languages", Active: true},
	}}

	got, err := bot.ResolveCourse(context.Background(), "supervisors for programming languages", nil, p)
	if err != nil {
		t.Fatalf("ResolveCourse: %v", err)
	}
	if got.ID != "2" {
		t.Errorf("got %q, want 2", got.ID)
	}
}

func TestResolveCourse_InactiveNeverRanksZero(t *testing.T) {
	// The inactive course shares both words and is closer by edit distance
	// (4), but its doubled distance (8) loses to the active one (5).
	p := &fakePortal{courses: []bot.Course{
		{ID: "old", Name: "Programming Languages Old", Active: false},
		{ID: "new", Name: "Programming Lang", Active: true},
	}}

	got, err := bot.ResolveCourse(context.Background(), "programming languages", nil, p)
	if err != nil {
		t.Fatalf("ResolveCourse: %v", err)
	}
	if got.ID != "new" {
		t.Errorf("got %q, want new", got.ID)
	}
}

func TestResolveCourse_InactiveDistanceDoubled(t *testing.T) {
	// distance("databas", "databases") = 2, doubled to 4 for the inactive
	// course; distance("databas", "databasics") = 3 for the active one.
	p := &fakePortal{courses: []bot.Course{
		{ID: "1", Name: "Databases", Active: false},
		{ID: "2", Name: "Databasics", Active: true},
	}}

	got, err := bot.ResolveCourse(context.Background(), "databas", nil, p)
	if err != nil {
		t.Fatalf("ResolveCourse: %v", err)
	}
	if got.ID != "2" {
		t.Errorf("got %q, want 2", got.ID)
	}
}

func TestResolveCourse_NoActiveCourses(t *testing.T) {
	p := &fakePortal{courses: []bot.Course{
		{ID: "1", Name: "Compilers", Active: false},
		{ID: "2", Name: "Databases", Active: false},
	}}

	got, err := bot.ResolveCourse(context.Background(), "databases", nil, p)
	if err != nil {
		t.Fatalf("ResolveCourse: %v", err)
	}
	if got.ID != "2" {
		t.Errorf("got %q, want 2", got.ID)
	}
}

func TestResolveCourse_TiesKeepProviderOrder(t *testing.T) {
	p := &fakePortal{courses: []bot.Course{
		{ID: "first", Name: "abc", Active: true},
		{ID: "second", Name: "abd", Active: true},
	}}

	got, err := bot.ResolveCourse(context.Background(), "abx", nil, p)
	if err != nil {
		t.Fatalf("ResolveCourse: %v", err)
	}
	if got.ID != "first" {
		t.Errorf("got %q, want first", got.ID)
	}
}

func TestResolveCourse_SwedishDistanceCountsCharacters(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		courses []bot.Course
		want    string
	}{
		{
			name: "single letter",
			text: "ö",
			courses: []bot.Course{
				{ID: "1", Name: "ab", Active: true},
				{ID: "2", Name: "o", Active: true},
			},
			want: "2",
		},
		{
			name: "one substitution beats two edits",
			text: "kär",
			courses: []bot.Course{
				{ID: "1", Name: "kxxr", Active: true},
				{ID: "2", Name: "kar", Active: true},
			},
			want: "2",
		},
		{
			name: "exact swedish name",
			text: "språk",
			courses: []bot.Course{
				{ID: "1", Name: "Sprak", Active: true},
				{ID: "2", Name: "Språk", Active: true},
			},
			want: "2",
		},
		{
			name: "inactive doubling still applies",
			text: "får",
			courses: []bot.Course{
				{ID: "1", Name: "Får", Active: false},
				{ID: "2", Name: "Fxyr", Active: true},
			},
			// 0*2 for the inactive exact match beats 2 for the active one.
			want: "1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePortal{courses: tt.courses}
			got, err := bot.ResolveCourse(context.Background(), tt.text, nil, p)
			if err != nil {
				t.Fatalf("ResolveCourse: %v", err)
			}
			if got == nil || got.ID != tt.want {
				t.Errorf("got %+v, want course %s", got, tt.want)
			}
		})
	}
}

func TestResolveCourse_EmptyList(t *testing.T) {
	got, err := bot.ResolveCourse(context.Background(), "", nil, &fakePortal{})
	if err != nil {
		t.Fatalf("ResolveCourse: %v", err)
	}
	if got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}

func TestResolveCourse_ProviderFailurePropagates(t *testing.T) {
	boom := errors.New("portal down")
	_, err := bot.ResolveCourse(context.Background(), "dit123", nil, &fakePortal{coursesErr: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestResolveCourse_FetchesOnce(t *testing.T) {
	p := &fakePortal{courses: []bot.Course{{ID: "1", Name: "Compilers", Active: true}}}

	// The code is not in any name, so the similarity step reuses the list.
	if _, err := bot.ResolveCourse(context.Background(), "xyz123", nil, p); err != nil {
		t.Fatalf("ResolveCourse: %v", err)
	}
	if p.courseCalls != 1 {
		t.Errorf("course provider called %d times, want 1", p.courseCalls)
	}
}
