// Package terminal is the line-oriented front end of the booking flow: it
// parses typed commands, runs them through a booking dispatcher and prints
// the resulting view.
package terminal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/citas/internal/booking"
	"github.com/wolfman30/citas/internal/citas"
	"github.com/wolfman30/citas/internal/slots"
)

// ErrEmpty is returned for blank input.
var ErrEmpty = errors.New("terminal: empty command")

// UsageError reports a known command typed with the wrong arguments, or an
// unknown command.
type UsageError struct {
	Command string
	Usage   string
}

func (e *UsageError) Error() string {
	if e.Usage == "" {
		return fmt.Sprintf("unknown command %q, type help", e.Command)
	}
	return "usage: " + e.Usage
}

// Help lists the commands Parse understands plus the REPL built-ins.
const Help = `commands:
  login <document> <birth date>   birth date as YYYY-MM-DD or DD/MM/YYYY
  logout
  specialties                     reload specialties
  specialty <name>                choose a specialty
  doctor <id>                     choose a doctor
  date <YYYY-MM-DD>               choose a date
  slot <H|HH:00>                  choose an hour
  book [reason]                   book the chosen hour
  cancel <appointment id>
  appointments                    reload your appointments
  resume <session id>
  help
  quit`

var usages = map[string]string{
	"login":     "login <document> <birth date>",
	"doctor":    "doctor <id>",
	"date":      "date <YYYY-MM-DD>",
	"slot":      "slot <H|HH:00>",
	"cancel":    "cancel <appointment id>",
	"specialty": "specialty <name>",
}

// Parse turns one input line into a booking command.
func Parse(line string) (booking.Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, ErrEmpty
	}
	name, args := strings.ToLower(fields[0]), fields[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))

	switch name {
	case "login":
		if len(args) != 2 {
			return nil, &UsageError{Command: name, Usage: usages["login"]}
		}
		return booking.Login{Document: args[0], BirthDate: args[1]}, nil
	case "logout":
		return booking.Logout{}, nil
	case "specialties":
		return booking.LoadSpecialties{}, nil
	case "specialty":
		if rest == "" {
			return nil, &UsageError{Command: name, Usage: usages["specialty"]}
		}
		return booking.SelectSpecialty{Specialty: rest}, nil
	case "doctor":
		if len(args) != 1 {
			return nil, &UsageError{Command: name, Usage: usages["doctor"]}
		}
		return booking.SelectDoctor{DoctorID: citas.ID(args[0])}, nil
	case "date":
		if len(args) != 1 {
			return nil, &UsageError{Command: name, Usage: usages["date"]}
		}
		return booking.SelectDate{Date: args[0]}, nil
	case "slot":
		if len(args) != 1 {
			return nil, &UsageError{Command: name, Usage: usages["slot"]}
		}
		h, err := slots.ParseHour(args[0])
		if err != nil {
			return nil, &UsageError{Command: name, Usage: usages["slot"]}
		}
		return booking.SelectSlot{Hour: h}, nil
	case "book":
		return booking.Book{Reason: rest}, nil
	case "cancel":
		if len(args) != 1 {
			return nil, &UsageError{Command: name, Usage: usages["cancel"]}
		}
		return booking.Cancel{AppointmentID: citas.ID(args[0])}, nil
	case "appointments":
		return booking.RefreshAppointments{}, nil
	default:
		return nil, &UsageError{Command: name}
	}
}
