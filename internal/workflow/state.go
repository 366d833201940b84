// Package workflow drives borrowing and returning a scanned book.
//
// The decisions live in Reduce, a pure function from a state and an event to
// the next state plus the commands to run. Workflow executes those commands
// against the book store, the identity provider and the scanner.
package workflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/mmynk/holocron/internal/bookstore"
	"github.com/mmynk/holocron/internal/isbn"
	"github.com/mmynk/holocron/internal/lending"
	"github.com/mmynk/holocron/internal/models"
)

var (
	// ErrRejected is returned for an operation the current state does not allow.
	// A rejected operation changes nothing and sends nothing.
	ErrRejected = errors.New("operation not allowed in the current state")

	// ErrUnauthenticated is returned when no user is signed in.
	ErrUnauthenticated = errors.New("no signed-in user")
)

// User-facing messages.
const (
	MsgInvalidCode    = "not a valid ISBN"
	MsgBorrowConflict = "This book is already borrowed by someone else."
	MsgReturnConflict = "This book is not currently borrowed."
	MsgNotFound       = "This book could not be found."
	MsgInvalidDueDate = "The selected due date is not allowed."
	MsgTransport      = "Could not reach the library server. Please try again."
)

// ResultPhase is the state of the current scan result.
type ResultPhase int

const (
	ResultIdle ResultPhase = iota
	ResultSearching
	ResultFound
	ResultNotFound
	ResultError
)

func (p ResultPhase) String() string {
	switch p {
	case ResultIdle:
		return "idle"
	case ResultSearching:
		return "searching"
	case ResultFound:
		return "found"
	case ResultNotFound:
		return "not_found"
	case ResultError:
		return "error"
	default:
		return fmt.Sprintf("ResultPhase(%d)", int(p))
	}
}

// ActionPhase is the state of the borrow/return action on a found book.
type ActionPhase int

const (
	ActionIdle ActionPhase = iota
	ActionSelectingDueDate
	ActionLoading
	ActionError
)

func (p ActionPhase) String() string {
	switch p {
	case ActionIdle:
		return "idle"
	case ActionSelectingDueDate:
		return "selecting_due_date"
	case ActionLoading:
		return "loading"
	case ActionError:
		return "error"
	default:
		return fmt.Sprintf("ActionPhase(%d)", int(p))
	}
}

// Operation names the command an ActionLoading state waits for.
type Operation string

const (
	OpBorrow Operation = "borrow"
	OpReturn Operation = "return"
)

// State is a snapshot of both state machines.
type State struct {
	Result ResultPhase
	// Code is the validated code of the current result, if any.
	Code isbn.ISBN
	// Book and Status are set while Result is ResultFound.
	Book          *models.Book
	Status        lending.Status
	ResultMessage string

	// Viewer is the user the classification is relative to.
	Viewer string

	Action ActionPhase
	// Op is set while Action is ActionLoading.
	Op Operation
	// DueDate is the prefilled date while Action is ActionSelectingDueDate.
	DueDate       time.Time
	ActionMessage string
}

func (s State) String() string {
	result := s.Result.String()
	switch s.Result {
	case ResultFound:
		result = fmt.Sprintf("found(%s)", s.Status)
	case ResultError:
		result = fmt.Sprintf("error(%s)", s.ResultMessage)
	}
	action := s.Action.String()
	switch s.Action {
	case ActionLoading:
		action = fmt.Sprintf("loading(%s)", s.Op)
	case ActionError:
		action = fmt.Sprintf("error(%s)", s.ActionMessage)
	}
	return result + "/" + action
}

// Event is an input to Reduce.
type Event interface{ isEvent() }

// Scanned reports a decoded code from the scanner.
type Scanned struct {
	Raw    string
	Viewer string
}

// LookupSucceeded reports a lookup result. A nil Book means not found.
type LookupSucceeded struct {
	Code isbn.ISBN
	Book *models.Book
}

type LookupFailed struct {
	Code isbn.ISBN
	Err  error
}

// BeginBorrow opens due date selection. Today is used for the default date.
type BeginBorrow struct{ Today time.Time }

type ConfirmBorrow struct {
	DueDate time.Time
	Today   time.Time
}

type CancelBorrow struct{}

type ReturnBook struct{}

// CommandSucceeded and CommandFailed complete the in-flight Op.
type CommandSucceeded struct{ Op Operation }

type CommandFailed struct {
	Op  Operation
	Err error
}

// Refreshed carries the stored book after a successful command.
type Refreshed struct {
	Code isbn.ISBN
	Book *models.Book
}

type Reset struct{}

func (Scanned) isEvent()          {}
func (LookupSucceeded) isEvent()  {}
func (LookupFailed) isEvent()     {}
func (BeginBorrow) isEvent()      {}
func (ConfirmBorrow) isEvent()    {}
func (CancelBorrow) isEvent()     {}
func (ReturnBook) isEvent()       {}
func (CommandSucceeded) isEvent() {}
func (CommandFailed) isEvent()    {}
func (Refreshed) isEvent()        {}
func (Reset) isEvent()            {}

// Command is a side effect requested by Reduce.
type Command interface{ isCommand() }

type Lookup struct{ Code isbn.ISBN }

type Borrow struct {
	BookID  string
	DueDays int
}

type Return struct{ BookID string }

// Invalidate drops any cached lookup for Code.
type Invalidate struct{ Code isbn.ISBN }

// Refresh reads the book for Code from the store, bypassing the cache.
type Refresh struct{ Code isbn.ISBN }

type SetScanning struct{ Enabled bool }

func (Lookup) isCommand()      {}
func (Borrow) isCommand()      {}
func (Return) isCommand()      {}
func (Invalidate) isCommand()  {}
func (Refresh) isCommand()     {}
func (SetScanning) isCommand() {}

// Reduce returns the state after ev and the commands to run.
//
// Operations the state does not allow return ErrRejected with s unchanged.
// Completions that no longer match the state (a stale lookup, a refresh for
// another code) are dropped silently.
func Reduce(s State, ev Event) (State, []Command, error) {
	switch ev := ev.(type) {
	case Scanned:
		if s.Result != ResultIdle {
			return s, nil, rejected("scan", s)
		}
		next := State{Viewer: ev.Viewer}
		code, ok := isbn.Parse(ev.Raw)
		if !ok {
			next.Result = ResultError
			next.ResultMessage = MsgInvalidCode
			return next, []Command{SetScanning{Enabled: false}}, nil
		}
		next.Result = ResultSearching
		next.Code = code
		return next, []Command{SetScanning{Enabled: false}, Lookup{Code: code}}, nil

	case LookupSucceeded:
		if s.Result != ResultSearching || s.Code != ev.Code {
			return s, nil, nil
		}
		if ev.Book == nil {
			s.Result = ResultNotFound
			return s, nil, nil
		}
		s.Result = ResultFound
		s.Book = ev.Book
		s.Status = lending.Classify(ev.Book, s.Viewer)
		return s, nil, nil

	case LookupFailed:
		if s.Result != ResultSearching || s.Code != ev.Code {
			return s, nil, nil
		}
		s.Result = ResultError
		s.ResultMessage = lookupMessage(ev.Err)
		return s, nil, nil

	case BeginBorrow:
		if s.Result != ResultFound || !lending.CanBorrow(s.Status) || !actionable(s.Action) {
			return s, nil, rejected("begin borrow", s)
		}
		s.Action = ActionSelectingDueDate
		s.DueDate = lending.DefaultDueDate(ev.Today)
		s.ActionMessage = ""
		return s, nil, nil

	case ConfirmBorrow:
		if s.Action != ActionSelectingDueDate || s.Result != ResultFound || !lending.CanBorrow(s.Status) {
			return s, nil, rejected("confirm borrow", s)
		}
		s.Action = ActionLoading
		s.Op = OpBorrow
		s.DueDate = ev.DueDate
		return s, []Command{Borrow{BookID: s.Book.ID, DueDays: lending.DueDays(ev.Today, ev.DueDate)}}, nil

	case CancelBorrow:
		if s.Action != ActionSelectingDueDate {
			return s, nil, rejected("cancel borrow", s)
		}
		s.Action = ActionIdle
		s.DueDate = time.Time{}
		return s, nil, nil

	case ReturnBook:
		if s.Result != ResultFound || !lending.CanReturn(s.Status) || !actionable(s.Action) {
			return s, nil, rejected("return", s)
		}
		s.Action = ActionLoading
		s.Op = OpReturn
		s.ActionMessage = ""
		return s, []Command{Return{BookID: s.Book.ID}}, nil

	case CommandSucceeded:
		if s.Action != ActionLoading || s.Op != ev.Op {
			return s, nil, nil
		}
		s.Action = ActionIdle
		s.Op = ""
		s.DueDate = time.Time{}
		return s, []Command{Invalidate{Code: s.Code}, Refresh{Code: s.Code}}, nil

	case CommandFailed:
		if s.Action != ActionLoading || s.Op != ev.Op {
			return s, nil, nil
		}
		s.Action = ActionError
		s.ActionMessage = commandMessage(ev.Op, ev.Err)
		s.Op = ""
		return s, nil, nil

	case Refreshed:
		if s.Result != ResultFound || s.Code != ev.Code {
			return s, nil, nil
		}
		if ev.Book == nil {
			s.Result = ResultNotFound
			s.Book = nil
			s.Status = ""
		} else {
			s.Book = ev.Book
			s.Status = lending.Classify(ev.Book, s.Viewer)
		}
		// A due date picked against the old snapshot no longer applies.
		if s.Action == ActionSelectingDueDate && (s.Result != ResultFound || !lending.CanBorrow(s.Status)) {
			s.Action = ActionIdle
			s.DueDate = time.Time{}
		}
		return s, nil, nil

	case Reset:
		if s.Result == ResultSearching || s.Action == ActionLoading {
			return s, nil, rejected("reset", s)
		}
		return State{}, []Command{SetScanning{Enabled: true}}, nil

	default:
		return s, nil, fmt.Errorf("unknown event %T", ev)
	}
}

// actionable reports whether a new borrow or return may start from p.
// A failed action can be retried directly.
func actionable(p ActionPhase) bool {
	return p == ActionIdle || p == ActionError
}

func rejected(op string, s State) error {
	return fmt.Errorf("%w: %s while %s", ErrRejected, op, s)
}

func lookupMessage(err error) string {
	switch bookstore.KindOf(err) {
	case bookstore.KindNotFound:
		return MsgNotFound
	case bookstore.KindValidation:
		return MsgInvalidCode
	default:
		return MsgTransport
	}
}

func commandMessage(op Operation, err error) string {
	switch bookstore.KindOf(err) {
	case bookstore.KindConflict:
		if op == OpReturn {
			return MsgReturnConflict
		}
		return MsgBorrowConflict
	case bookstore.KindNotFound:
		return MsgNotFound
	case bookstore.KindValidation:
		return MsgInvalidDueDate
	default:
		return MsgTransport
	}
}
