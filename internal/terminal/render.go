package terminal

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/wolfman30/citas/internal/booking"
)

// Renderer prints views as plain text. It is safe for concurrent use.
type Renderer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewRenderer writes to out.
func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{out: out}
}

// Render prints v. err is only shown when the view carries no alert.
func (r *Renderer) Render(v booking.View, err error) {
	var b strings.Builder
	if v.Alert != "" {
		fmt.Fprintf(&b, "! %s\n", v.Alert)
	} else if err != nil {
		fmt.Fprintf(&b, "! %v\n", err)
	}
	if v.Notice != "" {
		fmt.Fprintf(&b, "%s\n", v.Notice)
	}
	writeView(&b, v)

	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = io.WriteString(r.out, b.String())
}

// Printf writes a free-form line.
func (r *Renderer) Printf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

func writeView(b *strings.Builder, v booking.View) {
	if v.User == nil {
		b.WriteString("not logged in\n")
		return
	}
	fmt.Fprintf(b, "patient: %s (%s)\n", v.User.Name, v.User.Document)

	if len(v.Specialties) > 0 {
		names := make([]string, len(v.Specialties))
		for i, s := range v.Specialties {
			names[i] = marked(s, s == v.Specialty)
		}
		fmt.Fprintf(b, "specialties: %s\n", strings.Join(names, ", "))
	}

	if v.Specialty != "" {
		if len(v.Doctors) == 0 {
			b.WriteString("doctors: none\n")
		}
		for _, d := range v.Doctors {
			selected := v.Doctor != nil && v.Doctor.ID == d.ID
			fmt.Fprintf(b, "  %s\n", marked(fmt.Sprintf("[%s] %s", d.ID, d.Name), selected))
		}
	}

	if v.Doctor != nil {
		if len(v.EnabledDates) == 0 {
			b.WriteString("dates: none\n")
		} else {
			dates := make([]string, len(v.EnabledDates))
			for i, d := range v.EnabledDates {
				dates[i] = marked(d, d == v.Date)
			}
			fmt.Fprintf(b, "dates: %s\n", strings.Join(dates, " "))
		}
	}

	if v.Date != "" {
		if len(v.Slots) == 0 {
			fmt.Fprintf(b, "%s: no hours available\n", v.Date)
		} else {
			cells := make([]string, len(v.Slots))
			for i, s := range v.Slots {
				if s.Occupied {
					cells[i] = fmt.Sprintf("(%s taken)", s.Label())
					continue
				}
				selected := v.SelectedHour != nil && *v.SelectedHour == s.Hour
				cells[i] = marked("["+s.Label()+"]", selected)
			}
			fmt.Fprintf(b, "%s: %s\n", v.Date, strings.Join(cells, " "))
		}
	}

	if len(v.Appointments) == 0 {
		b.WriteString("appointments: none\n")
	} else {
		b.WriteString("appointments:\n")
		for _, a := range v.Appointments {
			fmt.Fprintf(b, "  #%s doctor %s %s %s %s", a.ID, a.DoctorID, a.Date, a.Hour, a.Status)
			if a.Reason != "" {
				fmt.Fprintf(b, " (%s)", a.Reason)
			}
			b.WriteString("\n")
		}
	}

	if len(v.Disabled) > 0 {
		busy := make([]string, len(v.Disabled))
		for i, c := range v.Disabled {
			busy[i] = string(c)
		}
		fmt.Fprintf(b, "busy: %s\n", strings.Join(busy, ", "))
	}
}

func marked(s string, selected bool) string {
	if selected {
		return "*" + s
	}
	return s
}
