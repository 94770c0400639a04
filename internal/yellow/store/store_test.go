package store_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/bdobrica/yellow/internal/yellow/bot"
	"github.com/bdobrica/yellow/internal/yellow/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "yellow-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db file: %v", err)
	}
	f.Close()

	s, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew_AppliesMigrationsOnce(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/yellow.db"

	s, err := store.New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Close()

	// Reopening must not re-run the initial migration.
	s, err = store.New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	v, err := s.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != 1 {
		t.Errorf("schema version = %d, want 1", v)
	}
}

// --- rooms ---

func TestUpsertAndGetRoom(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	room := &store.Room{ID: "!dit123:example.org", Kind: store.RoomMatrix, CourseID: "101", CourseName: "DIT123 Programming"}
	if err := s.UpsertRoom(ctx, room); err != nil {
		t.Fatalf("UpsertRoom: %v", err)
	}

	room.CourseID = "102"
	room.CourseName = "TDA456 Databases"
	if err := s.UpsertRoom(ctx, room); err != nil {
		t.Fatalf("UpsertRoom (rebind): %v", err)
	}

	got, err := s.GetRoom(ctx, "!dit123:example.org")
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	if got.Kind != store.RoomMatrix || got.CourseID != "102" || got.CourseName != "TDA456 Databases" {
		t.Errorf("room = %+v", got)
	}

	br := got.BotRoom()
	if !br.Bound() || br.CourseID != "102" {
		t.Errorf("BotRoom = %+v", br)
	}
}

func TestGetRoom_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetRoom(context.Background(), "!missing:example.org")
	if !errors.Is(err, store.ErrRoomNotFound) {
		t.Fatalf("err = %v, want ErrRoomNotFound", err)
	}
}

func TestDeleteRoom(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertRoom(ctx, &store.Room{ID: "!r:example.org", Kind: store.RoomMatrix}); err != nil {
		t.Fatalf("UpsertRoom: %v", err)
	}
	if err := s.DeleteRoom(ctx, "!r:example.org"); err != nil {
		t.Fatalf("DeleteRoom: %v", err)
	}
	if _, err := s.GetRoom(ctx, "!r:example.org"); !errors.Is(err, store.ErrRoomNotFound) {
		t.Errorf("room still stored: %v", err)
	}
	if err := s.DeleteRoom(ctx, "!r:example.org"); !errors.Is(err, store.ErrRoomNotFound) {
		t.Errorf("second delete err = %v, want ErrRoomNotFound", err)
	}
}

func TestBotRoom_Nil(t *testing.T) {
	var r *store.Room
	if r.BotRoom() != nil {
		t.Error("nil room should convert to nil")
	}
}

func TestEnsureCourseRooms_CreatesOncePerCourse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	courses := []bot.Course{
		{ID: "101", Name: "DIT123 Programming"},
		{ID: "102", Name: "TDA456 Databases"},
	}
	first, err := s.EnsureCourseRooms(ctx, courses)
	if err != nil {
		t.Fatalf("EnsureCourseRooms: %v", err)
	}
	if len(first) != 2 || first[0].CourseID != "101" || first[1].CourseID != "102" {
		t.Fatalf("rooms = %+v", first)
	}

	courses[0].Name = "DIT123 Programming (2024)"
	second, err := s.EnsureCourseRooms(ctx, courses)
	if err != nil {
		t.Fatalf("EnsureCourseRooms (again): %v", err)
	}
	if second[0].ID != first[0].ID || second[1].ID != first[1].ID {
		t.Error("web room IDs changed on second call")
	}
	if second[0].CourseName != "DIT123 Programming (2024)" {
		t.Errorf("course name not refreshed: %q", second[0].CourseName)
	}

	web, err := s.ListRooms(ctx, store.RoomWeb)
	if err != nil {
		t.Fatalf("ListRooms: %v", err)
	}
	if len(web) != 2 {
		t.Errorf("web rooms = %d, want 2", len(web))
	}
}

func TestRoomsForCourses_KeepsRequestOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.EnsureCourseRooms(ctx, []bot.Course{{ID: "1"}, {ID: "2"}, {ID: "3"}}); err != nil {
		t.Fatalf("EnsureCourseRooms: %v", err)
	}
	rooms, err := s.RoomsForCourses(ctx, []string{"3", "missing", "1"})
	if err != nil {
		t.Fatalf("RoomsForCourses: %v", err)
	}
	if len(rooms) != 2 || rooms[0].CourseID != "3" || rooms[1].CourseID != "1" {
		t.Errorf("rooms = %+v", rooms)
	}
}

func TestCountRooms(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertRoom(ctx, &store.Room{ID: "!a:example.org", Kind: store.RoomMatrix}); err != nil {
		t.Fatalf("UpsertRoom: %v", err)
	}
	if _, err := s.EnsureCourseRooms(ctx, []bot.Course{{ID: "1"}, {ID: "2"}}); err != nil {
		t.Fatalf("EnsureCourseRooms: %v", err)
	}

	counts, err := s.CountRooms(ctx)
	if err != nil {
		t.Fatalf("CountRooms: %v", err)
	}
	if counts[store.RoomMatrix] != 1 || counts[store.RoomWeb] != 2 {
		t.Errorf("counts = %v", counts)
	}
}

// --- identities ---

func TestIdentityLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &store.IdentityRecord{Alias: "@ann:example.org", Token: "tok1", Session: []byte{1, 2, 3}}
	if err := s.UpsertIdentity(ctx, rec); err != nil {
		t.Fatalf("UpsertIdentity: %v", err)
	}

	byAlias, err := s.IdentityByAlias(ctx, "@ann:example.org")
	if err != nil {
		t.Fatalf("IdentityByAlias: %v", err)
	}
	if byAlias.Token != "tok1" || string(byAlias.Session) != "\x01\x02\x03" {
		t.Errorf("identity = %+v", byAlias)
	}

	// Re-importing rotates the token.
	rec2 := &store.IdentityRecord{Alias: "@ann:example.org", Token: "tok2", Session: []byte{4}}
	if err := s.UpsertIdentity(ctx, rec2); err != nil {
		t.Fatalf("UpsertIdentity (again): %v", err)
	}
	if _, err := s.IdentityByToken(ctx, "tok1"); !errors.Is(err, store.ErrIdentityNotFound) {
		t.Errorf("old token still valid: %v", err)
	}
	byToken, err := s.IdentityByToken(ctx, "tok2")
	if err != nil {
		t.Fatalf("IdentityByToken: %v", err)
	}
	if byToken.Alias != "@ann:example.org" {
		t.Errorf("alias = %q", byToken.Alias)
	}

	n, err := s.CountIdentities(ctx)
	if err != nil {
		t.Fatalf("CountIdentities: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}

	if err := s.DeleteIdentity(ctx, "@ann:example.org"); err != nil {
		t.Fatalf("DeleteIdentity: %v", err)
	}
	if err := s.DeleteIdentity(ctx, "@ann:example.org"); !errors.Is(err, store.ErrIdentityNotFound) {
		t.Errorf("second delete: err = %v, want ErrIdentityNotFound", err)
	}
}

// --- sync state ---

func TestSyncValues(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.LoadSyncValue(ctx, "@yellow:example.org", "next_batch")
	if err != nil || got != "" {
		t.Fatalf("empty load = (%q, %v)", got, err)
	}

	for _, v := range []string{"s1", "s2"} {
		if err := s.SaveSyncValue(ctx, "@yellow:example.org", "next_batch", v); err != nil {
			t.Fatalf("SaveSyncValue: %v", err)
		}
	}
	got, err = s.LoadSyncValue(ctx, "@yellow:example.org", "next_batch")
	if err != nil {
		t.Fatalf("LoadSyncValue: %v", err)
	}
	if got != "s2" {
		t.Errorf("next_batch = %q, want s2", got)
	}
}
