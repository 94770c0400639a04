// Package rooms loads the file that tells the bot which Matrix rooms to join
// and which course each room is about.
//
// Example:
//
//	rooms:
//	  - room: "!dit123:example.org"
//	    course_id: "101"
//	    course_name: "DIT123 Programming"
//	  - room: "!lobby:example.org"
package rooms

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/bdobrica/yellow/internal/yellow/store"
)

//go:embed bindings.schema.json
var schemaJSON []byte

const schemaURL = "bindings.schema.json"

var schema = jsonschema.MustCompileString(schemaURL, string(schemaJSON))

// Binding ties one Matrix room to a course. A binding without CourseID makes
// the bot answer in the room without pinning a course.
type Binding struct {
	Room       string `yaml:"room" json:"room"`
	CourseID   string `yaml:"course_id,omitempty" json:"course_id,omitempty"`
	CourseName string `yaml:"course_name,omitempty" json:"course_name,omitempty"`
}

// Bindings is the whole bindings file.
type Bindings struct {
	Rooms []Binding `yaml:"rooms" json:"rooms"`
}

// Parse decodes and validates a bindings document.
func Parse(data []byte) (*Bindings, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("rooms: parse: %w", err)
	}
	// Round-trip through JSON so the validator sees JSON types only.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("rooms: parse: %w", err)
	}
	var instance any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&instance); err != nil {
		return nil, fmt.Errorf("rooms: parse: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return nil, fmt.Errorf("rooms: invalid bindings: %w", err)
	}

	var b Bindings
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("rooms: parse: %w", err)
	}

	seen := make(map[string]struct{}, len(b.Rooms))
	for i, r := range b.Rooms {
		if _, dup := seen[r.Room]; dup {
			return nil, fmt.Errorf("rooms[%d]: duplicate room %q", i, r.Room)
		}
		seen[r.Room] = struct{}{}
	}
	return &b, nil
}

// Load reads and parses the bindings file at path.
func Load(path string) (*Bindings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rooms: %w", err)
	}
	return Parse(data)
}

// RoomIDs returns the bound room IDs in file order.
func (b *Bindings) RoomIDs() []string {
	ids := make([]string, len(b.Rooms))
	for i, r := range b.Rooms {
		ids[i] = r.Room
	}
	return ids
}

// RoomWriter persists rooms.
type RoomWriter interface {
	UpsertRoom(ctx context.Context, room *store.Room) error
	ListRooms(ctx context.Context, kind store.RoomKind) ([]*store.Room, error)
	DeleteRoom(ctx context.Context, id string) error
}

// Apply stores every binding as a Matrix room and deletes stored Matrix
// rooms the file no longer lists. Web rooms are left alone.
func (b *Bindings) Apply(ctx context.Context, w RoomWriter) error {
	for _, r := range b.Rooms {
		room := &store.Room{ID: r.Room, Kind: store.RoomMatrix, CourseID: r.CourseID, CourseName: r.CourseName}
		if err := w.UpsertRoom(ctx, room); err != nil {
			return fmt.Errorf("rooms: apply %s: %w", r.Room, err)
		}
	}

	stored, err := w.ListRooms(ctx, store.RoomMatrix)
	if err != nil {
		return fmt.Errorf("rooms: list stored rooms: %w", err)
	}
	listed := make(map[string]bool, len(b.Rooms))
	for _, r := range b.Rooms {
		listed[r.Room] = true
	}
	for _, room := range stored {
		if listed[room.ID] {
			continue
		}
		if err := w.DeleteRoom(ctx, room.ID); err != nil && !errors.Is(err, store.ErrRoomNotFound) {
			return fmt.Errorf("rooms: remove %s: %w", room.ID, err)
		}
		slog.Info("room binding removed", "room", room.ID, "course_id", room.CourseID)
	}
	return nil
}
