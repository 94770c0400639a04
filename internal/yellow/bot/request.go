package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrMissingProvider is returned by NewRequest when one of the providers is
// nil.
var ErrMissingProvider = errors.New("missing provider")

func missingProvider(name string) error {
	return fmt.Errorf("%w: %s", ErrMissingProvider, name)
}

// Request is one incoming message. It is not safe for concurrent use; each
// message gets its own Request.
type Request struct {
	// Text is the message body, already lowercased by the transport.
	Text string
	// Room is the chat context, nil when the message was sent outside any
	// known room.
	Room *Room

	providers Providers

	courseResolved bool
	course         *Course
	courseErr      error
}

// NewRequest builds a Request after checking that every provider is set.
func NewRequest(text string, room *Room, providers Providers) (*Request, error) {
	if err := providers.validate(); err != nil {
		return nil, err
	}
	return &Request{Text: text, Room: room, providers: providers}, nil
}

// Providers returns the data sources attached to the request.
func (r *Request) Providers() Providers {
	return r.providers
}

// Course resolves the course the message refers to. The first call runs the
// course resolver; later calls return the same result, including a nil
// course or a provider error.
func (r *Request) Course(ctx context.Context) (*Course, error) {
	if !r.courseResolved {
		r.course, r.courseErr = ResolveCourse(ctx, r.Text, r.Room, r.providers.Courses)
		r.courseResolved = true
	}
	return r.course, r.courseErr
}

// Response is the reply to a Request.
type Response struct {
	Text string
}

// NewResponse joins lines with newlines.
func NewResponse(lines ...string) Response {
	return Response{Text: strings.Join(lines, "\n")}
}
