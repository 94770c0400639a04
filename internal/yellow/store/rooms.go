package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/yellow/internal/yellow/bot"
)

// ErrRoomNotFound is returned when no room has the requested ID.
var ErrRoomNotFound = errors.New("room not found")

// RoomKind tells which transport a room belongs to.
type RoomKind string

const (
	RoomMatrix RoomKind = "matrix"
	RoomWeb    RoomKind = "web"
)

// Room is a stored chat room. CourseID is empty for rooms not bound to a
// course.
type Room struct {
	ID         string
	Kind       RoomKind
	CourseID   string
	CourseName string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// BotRoom converts r to the view the dispatcher works with. A nil room stays
// nil.
func (r *Room) BotRoom() *bot.Room {
	if r == nil {
		return nil
	}
	return &bot.Room{ID: r.ID, CourseID: r.CourseID, CourseName: r.CourseName}
}

const roomColumns = `room_id, kind, course_id, course_name, created_at, updated_at`

func scanRoom(row interface{ Scan(...any) error }) (*Room, error) {
	r := &Room{}
	var kind string
	if err := row.Scan(&r.ID, &kind, &r.CourseID, &r.CourseName, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Kind = RoomKind(kind)
	return r, nil
}

// UpsertRoom creates room or updates its binding.
func (s *Store) UpsertRoom(ctx context.Context, room *Room) error {
	now := time.Now().UTC()
	room.UpdatedAt = now
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (`+roomColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(room_id) DO UPDATE SET
			kind = excluded.kind,
			course_id = excluded.course_id,
			course_name = excluded.course_name,
			updated_at = excluded.updated_at
	`, room.ID, string(room.Kind), room.CourseID, room.CourseName, room.CreatedAt, room.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert room %s: %w", room.ID, err)
	}
	return nil
}

// GetRoom returns the room with the given ID.
func (s *Store) GetRoom(ctx context.Context, id string) (*Room, error) {
	r, err := scanRoom(s.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE room_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return r, nil
}

// ListRooms returns the rooms of one kind ordered by ID.
func (s *Store) ListRooms(ctx context.Context, kind RoomKind) ([]*Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE kind = ? ORDER BY room_id`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// DeleteRoom removes a room.
func (s *Store) DeleteRoom(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE room_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	return nil
}

// EnsureCourseRooms makes sure each course has a web room, refreshes the
// stored course names, and returns the rooms in course order.
func (s *Store) EnsureCourseRooms(ctx context.Context, courses []bot.Course) ([]*Room, error) {
	if len(courses) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for _, c := range courses {
		// The partial unique index turns a second web room for the course
		// into a no-op.
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO rooms (`+roomColumns+`)
			VALUES (?, 'web', ?, ?, ?, ?)
		`, uuid.NewString(), c.ID, c.Name, now, now); err != nil {
			return nil, fmt.Errorf("failed to create web room for course %s: %w", c.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE rooms SET course_name = ?, updated_at = ?
			WHERE kind = 'web' AND course_id = ? AND course_name <> ?
		`, c.Name, now, c.ID, c.Name); err != nil {
			return nil, fmt.Errorf("failed to rename web room for course %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit web rooms: %w", err)
	}

	ids := make([]string, len(courses))
	for i, c := range courses {
		ids[i] = c.ID
	}
	return s.RoomsForCourses(ctx, ids)
}

// RoomsForCourses returns the web rooms of the given courses, in the order of
// courseIDs. Courses without a web room are left out.
func (s *Store) RoomsForCourses(ctx context.Context, courseIDs []string) ([]*Room, error) {
	if len(courseIDs) == 0 {
		return nil, nil
	}

	args := make([]any, len(courseIDs))
	for i, id := range courseIDs {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(courseIDs)), ",")

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE kind = 'web' AND course_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query course rooms: %w", err)
	}
	defer rows.Close()

	byCourse := make(map[string]*Room, len(courseIDs))
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		byCourse[r.CourseID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rooms := make([]*Room, 0, len(byCourse))
	for _, id := range courseIDs {
		if r, ok := byCourse[id]; ok {
			rooms = append(rooms, r)
		}
	}
	return rooms, nil
}

// CountRooms returns the number of stored rooms per kind.
func (s *Store) CountRooms(ctx context.Context) (map[RoomKind]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM rooms GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to count rooms: %w", err)
	}
	defer rows.Close()

	counts := map[RoomKind]int{RoomMatrix: 0, RoomWeb: 0}
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan room count: %w", err)
		}
		counts[RoomKind(kind)] = n
	}
	return counts, rows.Err()
}
