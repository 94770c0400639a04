package app_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/bdobrica/yellow/internal/yellow/app"
	"github.com/bdobrica/yellow/internal/yellow/bot"
	"github.com/bdobrica/yellow/internal/yellow/identity"
	"github.com/bdobrica/yellow/internal/yellow/portal"
	"github.com/bdobrica/yellow/internal/yellow/store"
)

const (
	annAlias   = "@ann:example.org"
	courseRoom = "!dit123:example.org"
)

// fakePortal serves fixed course data for every session.
type fakePortal struct {
	gradesErr error
}

func (f *fakePortal) Courses(context.Context) ([]bot.Course, error) {
	return []bot.Course{
		{ID: "101", Name: "DIT123 Programming", Active: true},
		{ID: "102", Name: "TDA456 Databases", Active: true},
	}, nil
}

func (f *fakePortal) Members(_ context.Context, courseID string, role bot.Role) ([]bot.Member, error) {
	if courseID == "101" && role == bot.RoleSupervisor {
		return []bot.Member{{Name: "Carl Carlsson", Alias: "caca", Role: bot.RoleSupervisor}}, nil
	}
	return nil, nil
}

func (f *fakePortal) Assignments(context.Context, string) ([]bot.Assignment, error) {
	return nil, nil
}

func (f *fakePortal) Grades(context.Context) ([]bot.GradeRecord, error) {
	if f.gradesErr != nil {
		return nil, f.gradesErr
	}
	return []bot.GradeRecord{{Code: "DIT123", Name: "Programming", Credits: 7.5, Grade: "VG"}}, nil
}

type fixture struct {
	db         *store.Store
	identities *identity.Store
	engine     *app.Engine
	portal     *fakePortal
	token      string
}

var errFactory = errors.New("session expired")

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f, err := os.CreateTemp(t.TempDir(), "yellow-app-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db file: %v", err)
	}
	f.Close()
	db, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := db.UpsertRoom(ctx, &store.Room{ID: courseRoom, Kind: store.RoomMatrix, CourseID: "101", CourseName: "DIT123 Programming"}); err != nil {
		t.Fatalf("UpsertRoom: %v", err)
	}

	key := make([]byte, identity.KeySize)
	ids, err := identity.NewStore(db, key)
	if err != nil {
		t.Fatalf("identity.NewStore: %v", err)
	}
	token, err := ids.Import(ctx, annAlias, portal.Session{
		portal.ServiceGUL:   {},
		portal.ServiceLadok: {},
	})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	fp := &fakePortal{}
	factory := func(sess portal.Session) (bot.Providers, error) {
		if _, ok := sess[portal.ServiceGUL]; !ok {
			return bot.Providers{}, errFactory
		}
		return bot.Providers{Courses: fp, Members: fp, Assignments: fp, Grades: fp}, nil
	}
	engine := app.NewEngine(bot.NewDispatcher(bot.DefaultCommands()...), db, factory)

	return &fixture{db: db, identities: ids, engine: engine, portal: fp, token: token}
}

// sentMessage is one message recorded by recordingChat.
type sentMessage struct {
	kind    string // "reply" or "notice"
	roomID  string
	eventID string
	html    string
	plain   string
}

type recordingChat struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (c *recordingChat) Reply(_ context.Context, roomID, eventID, html, plain string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{kind: "reply", roomID: roomID, eventID: eventID, html: html, plain: plain})
	return nil
}

func (c *recordingChat) SendNotice(_ context.Context, roomID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{kind: "notice", roomID: roomID, plain: text})
	return nil
}
