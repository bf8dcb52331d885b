package terminal

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/citas/internal/booking"
	"github.com/wolfman30/citas/internal/citas"
	"github.com/wolfman30/citas/pkg/logging"
)

type fakeDispatcher struct {
	cmds    []booking.Command
	resumed []string
	err     error
}

func (f *fakeDispatcher) Do(_ context.Context, cmd booking.Command) (booking.View, error) {
	f.cmds = append(f.cmds, cmd)
	return booking.View{User: &citas.User{Name: "Ana", Document: "1001"}}, f.err
}

func (f *fakeDispatcher) Resume(_ context.Context, id string) (booking.View, error) {
	f.resumed = append(f.resumed, id)
	return booking.View{Notice: "Session resumed"}, nil
}

func runREPL(t *testing.T, input string, d *fakeDispatcher) string {
	t.Helper()
	var out bytes.Buffer
	repl := NewREPL(strings.NewReader(input), NewRenderer(&out), d, logging.Discard())
	require.NoError(t, repl.Run(context.Background()))
	return out.String()
}

func TestREPL_DispatchesParsedCommands(t *testing.T) {
	d := &fakeDispatcher{}
	out := runREPL(t, "login 1001 1990-05-04\n\ndoctor 7\nslot 9\n", d)

	require.Len(t, d.cmds, 3)
	assert.Equal(t, booking.Login{Document: "1001", BirthDate: "1990-05-04"}, d.cmds[0])
	assert.Equal(t, booking.SelectSlot{Hour: 9}, d.cmds[2])
	assert.Contains(t, out, "patient: Ana (1001)")
	assert.Contains(t, out, "citas> ")
}

func TestREPL_QuitStopsReading(t *testing.T) {
	d := &fakeDispatcher{}
	runREPL(t, "logout\nquit\nlogout\n", d)
	assert.Len(t, d.cmds, 1)
}

func TestREPL_HelpUsageAndResume(t *testing.T) {
	d := &fakeDispatcher{}
	out := runREPL(t, "help\nslot\nfly\nresume abc\n", d)

	assert.Contains(t, out, "login <document> <birth date>")
	assert.Contains(t, out, "usage: slot <H|HH:00>")
	assert.Contains(t, out, `unknown command "fly"`)
	assert.Equal(t, []string{"abc"}, d.resumed)
	assert.Contains(t, out, "Session resumed")
	assert.Empty(t, d.cmds)
}

func TestREPL_InFlightMessage(t *testing.T) {
	d := &fakeDispatcher{err: booking.ErrInFlight}
	out := runREPL(t, "book\n", d)
	assert.Contains(t, out, "busy: book already running")
}
