package bot

import (
	"context"

	"github.com/bdobrica/yellow/internal/yellow/observability"
)

// FallbackText is the reply when no command handles a message.
const FallbackText = "I have no idea what to do."

// Command is one intent the bot understands.
type Command interface {
	// Name identifies the command in logs.
	Name() string
	// Matches is a cheap keyword gate over the lowercased text.
	Matches(text string) bool
	// Handle answers the request or declines it. Errors are provider
	// failures and abort dispatch.
	Handle(ctx context.Context, req *Request) (Outcome, error)
}

// Outcome is either a reply or a decline.
type Outcome struct {
	handled  bool
	response Response
}

// Reply returns an Outcome carrying a response made of lines.
func Reply(lines ...string) Outcome {
	return Outcome{handled: true, response: NewResponse(lines...)}
}

// Decline returns an Outcome telling the dispatcher to try the next command.
func Decline() Outcome {
	return Outcome{}
}

// Response returns the reply and whether the command handled the request.
func (o Outcome) Response() (Response, bool) {
	return o.response, o.handled
}

// Dispatcher tries commands in order and returns the first reply.
type Dispatcher struct {
	commands []Command
}

// NewDispatcher creates a dispatcher over a copy of commands; the order is
// the priority order.
func NewDispatcher(commands ...Command) *Dispatcher {
	return &Dispatcher{commands: append([]Command(nil), commands...)}
}

// Commands returns a copy of the command list.
func (d *Dispatcher) Commands() []Command {
	return append([]Command(nil), d.commands...)
}

// Dispatch runs req through the commands. When every command declines the
// fallback response is returned. A provider error from a command is returned
// as is.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (Response, error) {
	log := observability.WithTrace(ctx)
	for _, cmd := range d.commands {
		if !cmd.Matches(req.Text) {
			continue
		}
		outcome, err := cmd.Handle(ctx, req)
		if err != nil {
			log.Warn("command failed", "command", cmd.Name(), "err", err)
			return Response{}, err
		}
		if resp, ok := outcome.Response(); ok {
			log.Debug("command handled message", "command", cmd.Name())
			return resp, nil
		}
		log.Debug("command declined", "command", cmd.Name())
	}
	return NewResponse(FallbackText), nil
}
