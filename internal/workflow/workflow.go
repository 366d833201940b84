package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mmynk/holocron/internal/bookform"
	"github.com/mmynk/holocron/internal/bookstore"
	"github.com/mmynk/holocron/internal/isbn"
	"github.com/mmynk/holocron/internal/models"
)

// DefaultCommandTimeout bounds each call to the book store.
const DefaultCommandTimeout = 15 * time.Second

// Identity supplies the signed-in user.
type Identity interface {
	// UserID returns the current user, or "" when nobody is signed in.
	UserID() string
	// Token returns a bearer token for the current user.
	Token(ctx context.Context) (string, error)
}

// Scanner is the part of a scan session the workflow controls.
type Scanner interface {
	Enable()
	Disable()
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithScanner lets the workflow pause scanning while a result is held.
func WithScanner(s Scanner) Option {
	return func(w *Workflow) { w.scanner = s }
}

// WithClock replaces the clock that decides what "today" is.
func WithClock(c clockwork.Clock) Option {
	return func(w *Workflow) { w.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) { w.logger = l }
}

func WithCommandTimeout(d time.Duration) Option {
	return func(w *Workflow) { w.timeout = d }
}

// OnChange registers an observer called after every state change.
func OnChange(fn func(State)) Option {
	return func(w *Workflow) { w.onChange = fn }
}

// Workflow runs the lending state machine for one kiosk or screen.
// Store calls run in the background; at most one borrow or return is in
// flight at a time. All methods are safe for concurrent use.
type Workflow struct {
	store    bookstore.Store
	identity Identity
	scanner  Scanner
	clock    clockwork.Clock
	logger   *slog.Logger
	timeout  time.Duration
	onChange func(State)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	state State
	cache map[isbn.ISBN]*models.Book
}

// New creates an idle workflow.
func New(store bookstore.Store, identity Identity, opts ...Option) *Workflow {
	w := &Workflow{
		store:    store,
		identity: identity,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
		timeout:  DefaultCommandTimeout,
		cache:    make(map[isbn.ISBN]*models.Book),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())
	return w
}

// State returns the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// OnScanned handles a code accepted by the scanner.
func (w *Workflow) OnScanned(raw string) error {
	viewer, err := w.viewer()
	if err != nil {
		return err
	}
	return w.dispatch(Scanned{Raw: raw, Viewer: viewer})
}

// BeginBorrow opens due date selection with the default due date.
func (w *Workflow) BeginBorrow() error {
	if _, err := w.viewer(); err != nil {
		return err
	}
	return w.dispatch(BeginBorrow{Today: w.clock.Now()})
}

// ConfirmBorrow borrows the found book until dueDate.
func (w *Workflow) ConfirmBorrow(dueDate time.Time) error {
	if _, err := w.viewer(); err != nil {
		return err
	}
	return w.dispatch(ConfirmBorrow{DueDate: dueDate, Today: w.clock.Now()})
}

func (w *Workflow) CancelBorrow() error {
	return w.dispatch(CancelBorrow{})
}

// ReturnBook returns the found book, for its borrower or on their behalf.
func (w *Workflow) ReturnBook() error {
	if _, err := w.viewer(); err != nil {
		return err
	}
	return w.dispatch(ReturnBook{})
}

// Reset clears the result and resumes scanning.
func (w *Workflow) Reset() error {
	return w.dispatch(Reset{})
}

// Register validates form and adds the book to the store.
// Validation failures are returned as *bookform.ValidationError.
func (w *Workflow) Register(ctx context.Context, form bookform.Form) (*models.Book, error) {
	if _, err := w.viewer(); err != nil {
		return nil, err
	}
	draft, err := bookform.Parse(form)
	if err != nil {
		return nil, err
	}

	token, err := w.identity.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	book, err := w.store.Register(ctx, draft, token)
	if err != nil {
		w.logger.Error("Failed to register book", "title", draft.Title, "error", err)
		return nil, err
	}
	w.logger.Info("Registered book", "book_id", book.ID, "title", book.Title)

	if book.Code != nil {
		if code, ok := isbn.Parse(*book.Code); ok {
			w.mu.Lock()
			delete(w.cache, code)
			w.mu.Unlock()
		}
	}
	return book, nil
}

// Wait blocks until no store call is in flight.
func (w *Workflow) Wait() {
	w.wg.Wait()
}

// Close cancels in-flight store calls and waits for them to finish.
func (w *Workflow) Close() {
	w.cancel()
	w.wg.Wait()
}

func (w *Workflow) viewer() (string, error) {
	id := w.identity.UserID()
	if id == "" {
		return "", ErrUnauthenticated
	}
	return id, nil
}

func (w *Workflow) dispatch(ev Event) error {
	w.mu.Lock()
	prev := w.state
	next, cmds, err := Reduce(prev, ev)
	if err != nil {
		w.mu.Unlock()
		w.logger.Debug("Workflow event rejected", "event", fmt.Sprintf("%T", ev), "error", err)
		return err
	}
	w.state = next
	w.mu.Unlock()

	if next != prev {
		w.logger.Debug("Workflow state changed", "from", prev.String(), "to", next.String())
		if w.onChange != nil {
			w.onChange(next)
		}
	}
	for _, cmd := range cmds {
		w.run(cmd)
	}
	return nil
}

// run executes one command. Store calls run on their own goroutine and
// report back through dispatch.
func (w *Workflow) run(cmd Command) {
	switch cmd := cmd.(type) {
	case SetScanning:
		if w.scanner == nil {
			return
		}
		if cmd.Enabled {
			w.scanner.Enable()
		} else {
			w.scanner.Disable()
		}

	case Invalidate:
		w.mu.Lock()
		delete(w.cache, cmd.Code)
		w.mu.Unlock()

	case Lookup:
		w.async(func(ctx context.Context) {
			book, err := w.lookup(ctx, cmd.Code, true)
			if err != nil {
				w.logger.Warn("Lookup failed", "code", cmd.Code.String(), "error", err)
				w.dispatch(LookupFailed{Code: cmd.Code, Err: err})
				return
			}
			w.dispatch(LookupSucceeded{Code: cmd.Code, Book: book})
		})

	case Refresh:
		w.async(func(ctx context.Context) {
			book, err := w.lookup(ctx, cmd.Code, false)
			if err != nil {
				// The pre-command snapshot stays visible until the next scan.
				w.logger.Warn("Refresh failed", "code", cmd.Code.String(), "error", err)
				return
			}
			w.dispatch(Refreshed{Code: cmd.Code, Book: book})
		})

	case Borrow:
		w.async(func(ctx context.Context) {
			w.complete(ctx, OpBorrow, cmd.BookID, func(token string) error {
				return w.store.Borrow(ctx, cmd.BookID, cmd.DueDays, token)
			})
		})

	case Return:
		w.async(func(ctx context.Context) {
			w.complete(ctx, OpReturn, cmd.BookID, func(token string) error {
				return w.store.Return(ctx, cmd.BookID, token)
			})
		})
	}
}

func (w *Workflow) complete(ctx context.Context, op Operation, bookID string, call func(token string) error) {
	token, err := w.identity.Token(ctx)
	if err == nil {
		err = call(token)
	}
	if err != nil {
		w.logger.Error("Lending command failed", "op", string(op), "book_id", bookID,
			"kind", bookstore.KindOf(err).String(), "error", err)
		w.dispatch(CommandFailed{Op: op, Err: err})
		return
	}
	w.logger.Info("Lending command succeeded", "op", string(op), "book_id", bookID)
	w.dispatch(CommandSucceeded{Op: op})
}

func (w *Workflow) async(fn func(ctx context.Context)) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ctx, cancel := context.WithTimeout(w.ctx, w.timeout)
		defer cancel()
		fn(ctx)
	}()
}

// lookup reads a book by code, serving from the cache when allowed.
// Only found books are cached.
func (w *Workflow) lookup(ctx context.Context, code isbn.ISBN, useCache bool) (*models.Book, error) {
	if useCache {
		w.mu.Lock()
		book, ok := w.cache[code]
		w.mu.Unlock()
		if ok {
			return book, nil
		}
	}

	book, err := w.store.LookupByCode(ctx, code.String())
	if err != nil {
		return nil, err
	}
	if book != nil {
		w.mu.Lock()
		w.cache[code] = book
		w.mu.Unlock()
	}
	return book, nil
}
