package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/citas/internal/citas"
	"github.com/wolfman30/citas/internal/forms"
	"github.com/wolfman30/citas/internal/observability/metrics"
	"github.com/wolfman30/citas/internal/session"
	"github.com/wolfman30/citas/pkg/logging"
)

const (
	defaultCommandTimeout = 30 * time.Second
	defaultCalendarDays   = 60
	defaultQueueSize      = 16
	storeTimeout          = 5 * time.Second
)

// ErrStopped is returned when the dispatcher loop is not running.
var ErrStopped = errors.New("booking: dispatcher stopped")

// API is the subset of the booking API the dispatcher calls.
type API interface {
	Login(ctx context.Context, req citas.LoginRequest) (*citas.User, error)
	ListSpecialties(ctx context.Context) ([]string, error)
	ListDoctors(ctx context.Context, specialty string) ([]citas.Doctor, error)
	ListAvailability(ctx context.Context, doctorID citas.ID) ([]citas.AvailabilityWindow, error)
	ListAppointments(ctx context.Context, filter citas.AppointmentFilter) ([]citas.Appointment, error)
	CreateAppointment(ctx context.Context, req citas.CreateAppointmentRequest) (*citas.CreatedAppointment, error)
	DeleteAppointment(ctx context.Context, id citas.ID, user string) (string, error)
}

// Renderer receives the view produced by every submitted command.
type Renderer interface {
	Render(v View, err error)
}

// Config wires a Dispatcher.
type Config struct {
	Store          session.Store
	Renderer       Renderer
	Logger         *logging.Logger
	Metrics        *metrics.ClientMetrics
	CommandTimeout time.Duration
	CalendarDays   int
	QueueSize      int
	Now            func() time.Time
}

type request struct {
	ctx   context.Context
	cmd   Command
	reply chan result
}

type result struct {
	view View
	err  error
}

// Dispatcher applies commands to one session from a single loop.
type Dispatcher struct {
	api      API
	store    session.Store
	renderer Renderer
	logger   *logging.Logger
	metrics  *metrics.ClientMetrics
	tracer   trace.Tracer
	timeout  time.Duration
	days     int
	now      func() time.Time

	guard *guard
	queue chan request
	done  chan struct{}

	mu   sync.RWMutex
	last View

	// owned by the loop
	sess   *session.Session
	notice string
	alert  string
}

// NewDispatcher builds a dispatcher with a fresh session.
func NewDispatcher(api API, cfg Config) *Dispatcher {
	if api == nil {
		panic("booking: api cannot be nil")
	}
	if cfg.Store == nil {
		cfg.Store = session.NewMemoryStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	if cfg.CalendarDays <= 0 {
		cfg.CalendarDays = defaultCalendarDays
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	d := &Dispatcher{
		api:      api,
		store:    cfg.Store,
		renderer: cfg.Renderer,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		tracer:   otel.Tracer("citas.internal.booking"),
		timeout:  cfg.CommandTimeout,
		days:     cfg.CalendarDays,
		now:      cfg.Now,
		guard:    newGuard(),
		queue:    make(chan request, cfg.QueueSize),
		done:     make(chan struct{}),
		sess:     session.New(),
	}
	d.last = d.buildView()
	return d
}

// Run processes commands until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("booking loop started", "session_id", d.sess.ID)
	for {
		select {
		case <-ctx.Done():
			close(d.done)
			d.drain()
			d.logger.Info("booking loop stopped", "session_id", d.sess.ID)
			return ctx.Err()
		case req := <-d.queue:
			if req.ctx == nil {
				req.ctx = ctx
			}
			d.process(req)
		}
	}
}

// Do enqueues cmd and waits for its view.
func (d *Dispatcher) Do(ctx context.Context, cmd Command) (View, error) {
	reply := make(chan result, 1)
	if err := d.enqueue(ctx, request{ctx: ctx, cmd: cmd, reply: reply}); err != nil {
		return d.Snapshot(), err
	}
	select {
	case res := <-reply:
		return res.view, res.err
	case <-ctx.Done():
		return d.Snapshot(), ctx.Err()
	case <-d.done:
		return d.Snapshot(), ErrStopped
	}
}

// Submit enqueues cmd without waiting; the view goes to the Renderer.
func (d *Dispatcher) Submit(cmd Command) error {
	return d.enqueue(context.Background(), request{cmd: cmd})
}

// Resume replaces the current session with a stored one.
func (d *Dispatcher) Resume(ctx context.Context, id string) (View, error) {
	return d.Do(ctx, resume{id: id})
}

// Snapshot returns the most recent view.
func (d *Dispatcher) Snapshot() View {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v := d.last
	v.Disabled = d.guard.disabled()
	return v
}

func (d *Dispatcher) enqueue(ctx context.Context, req request) error {
	ctl := req.cmd.Control()
	if !d.guard.acquire(ctl) {
		d.metrics.ObserveCommand(string(ctl), "rejected")
		return ErrInFlight
	}
	select {
	case <-d.done:
		d.guard.release(ctl)
		return ErrStopped
	default:
	}
	select {
	case d.queue <- req:
		// The loop may have stopped between the check above and the send.
		select {
		case <-d.done:
			d.drain()
		default:
		}
		return nil
	case <-ctx.Done():
		d.guard.release(ctl)
		return ctx.Err()
	case <-d.done:
		d.guard.release(ctl)
		return ErrStopped
	}
}

// drain answers queued requests with ErrStopped and releases their
// controls. It runs after done is closed and is safe to call concurrently.
func (d *Dispatcher) drain() {
	for {
		select {
		case req := <-d.queue:
			d.guard.release(req.cmd.Control())
			if req.reply != nil {
				req.reply <- result{view: d.Snapshot(), err: ErrStopped}
			}
		default:
			return
		}
	}
}

func (d *Dispatcher) process(req request) {
	err := d.execute(req)

	view := d.buildView()
	d.mu.Lock()
	d.last = view
	d.mu.Unlock()

	if req.reply != nil {
		req.reply <- result{view: view, err: err}
		return
	}
	if d.renderer != nil {
		d.renderer.Render(view, err)
	}
}

// execute runs one command and persists the session. The command's control
// is released before the view is built.
func (d *Dispatcher) execute(req request) error {
	ctl := req.cmd.Control()
	defer d.guard.release(ctl)

	ctx, cancel := context.WithTimeout(req.ctx, d.timeout)
	defer cancel()
	ctx, span := d.tracer.Start(ctx, "booking."+string(ctl))
	defer span.End()
	span.SetAttributes(attribute.String("session.id", d.sess.ID))

	d.notice, d.alert = "", ""
	err := d.safeHandle(ctx, req.cmd)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if forms.IsValidation(err) {
			outcome = "invalid"
		}
		if d.alert == "" {
			d.alert = err.Error()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Warn("booking command failed", "command", ctl, "session_id", d.sess.ID, "error", err)
	}
	d.metrics.ObserveCommand(string(ctl), outcome)

	if _, ok := req.cmd.(Logout); !ok {
		d.sess.UpdatedAt = d.now().UTC()
		saveCtx, cancelSave := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
		serr := d.store.Save(saveCtx, d.sess)
		cancelSave()
		if serr != nil {
			d.logger.Warn("session save failed", "session_id", d.sess.ID, "error", serr)
		}
	}
	return err
}

func (d *Dispatcher) safeHandle(ctx context.Context, cmd Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("booking command panicked", "command", cmd.Control(), "panic", r)
			err = fmt.Errorf("booking: %s: internal error", cmd.Control())
		}
	}()
	return d.handle(ctx, cmd)
}

func (d *Dispatcher) buildView() View {
	s := d.sess.Clone()
	v := View{
		SessionID:    s.ID,
		User:         s.User,
		Specialties:  s.Specialties,
		Specialty:    s.Specialty,
		Doctors:      s.Doctors,
		Date:         s.Date,
		Slots:        s.Slots(),
		SelectedHour: s.SelectedHour,
		Appointments: s.MyAppointments,
		Notice:       d.notice,
		Alert:        d.alert,
		Disabled:     d.guard.disabled(),
	}
	if doc, ok := s.Doctor(); ok {
		v.Doctor = &doc
		v.EnabledDates = s.Calendar(d.now(), d.days).Enabled
	}
	return v
}
