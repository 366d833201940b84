package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mmynk/holocron/internal/lending"
	"github.com/mmynk/holocron/internal/models"
	"github.com/mmynk/holocron/internal/workflow"
)

// Console commands. Any other input line is treated as a scanned code.
const (
	cmdBorrow  = "borrow"
	cmdConfirm = "confirm"
	cmdCancel  = "cancel"
	cmdReturn  = "return"
	cmdReset   = "reset"
	cmdState   = "state"
	cmdHelp    = "help"
	cmdQuit    = "quit"
)

var errBadDueDate = errors.New("due date must be YYYY-MM-DD or +N days")

const helpText = `Scan a barcode, or type a code and press Enter.
  borrow              start borrowing the scanned book
  confirm [DATE|+N]   borrow until DATE (YYYY-MM-DD) or for N days
  cancel              cancel borrowing
  return              return the scanned book
  reset               clear the result and scan again
  state               show the current state
  quit                leave the kiosk`

type command struct {
	name string
	arg  string
}

// parseCommand reports whether line is a console command.
func parseCommand(line string) (command, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, false
	}
	name := strings.ToLower(fields[0])
	switch name {
	case cmdBorrow, cmdConfirm, cmdCancel, cmdReturn, cmdReset, cmdState, cmdHelp, cmdQuit:
	default:
		return command{}, false
	}
	if len(fields) > 2 || (len(fields) == 2 && name != cmdConfirm) {
		return command{}, false
	}
	c := command{name: name}
	if len(fields) == 2 {
		c.arg = fields[1]
	}
	return c, true
}

// parseDueDate reads "YYYY-MM-DD" or "+N" relative to today. Empty means def.
func parseDueDate(arg string, today, def time.Time) (time.Time, error) {
	if arg == "" {
		return def, nil
	}
	if strings.HasPrefix(arg, "+") {
		n, err := strconv.Atoi(arg[1:])
		if err != nil {
			return time.Time{}, errBadDueDate
		}
		y, m, d := today.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n), nil
	}
	due, err := time.Parse(time.DateOnly, arg)
	if err != nil {
		return time.Time{}, errBadDueDate
	}
	return due, nil
}

// console turns input lines into workflow operations. Lines that are not
// commands are forwarded to codes, which feeds the scan session.
type console struct {
	out   io.Writer
	wf    *workflow.Workflow
	codes io.Writer
	clock clockwork.Clock
}

// handle processes one input line and reports whether the kiosk should quit.
func (c *console) handle(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	cmd, ok := parseCommand(line)
	if !ok {
		if _, err := io.WriteString(c.codes, line+"\n"); err != nil {
			fmt.Fprintf(c.out, "scanner closed: %v\n", err)
		}
		return false
	}

	var err error
	switch cmd.name {
	case cmdBorrow:
		if err = c.wf.BeginBorrow(); err == nil {
			fmt.Fprintf(c.out, "Due date %s. Type confirm, confirm YYYY-MM-DD, confirm +N or cancel.\n",
				c.wf.State().DueDate.Format(time.DateOnly))
		}
	case cmdConfirm:
		var due time.Time
		due, err = parseDueDate(cmd.arg, c.clock.Now(), c.wf.State().DueDate)
		if err == nil {
			err = c.wf.ConfirmBorrow(due)
		}
	case cmdCancel:
		err = c.wf.CancelBorrow()
	case cmdReturn:
		err = c.wf.ReturnBook()
	case cmdReset:
		err = c.wf.Reset()
	case cmdState:
		fmt.Fprintln(c.out, describe(c.wf.State()))
	case cmdHelp:
		fmt.Fprintln(c.out, helpText)
	case cmdQuit:
		return true
	}

	if err != nil {
		fmt.Fprintf(c.out, "%s\n", friendly(err))
	}
	return false
}

func friendly(err error) string {
	switch {
	case errors.Is(err, workflow.ErrRejected):
		return "Not possible right now."
	case errors.Is(err, workflow.ErrUnauthenticated):
		return "Please sign in first."
	default:
		return err.Error()
	}
}

// describe renders a workflow state for the terminal.
func describe(s workflow.State) string {
	var b strings.Builder
	switch s.Result {
	case workflow.ResultIdle:
		b.WriteString("Ready to scan.")
	case workflow.ResultSearching:
		fmt.Fprintf(&b, "Looking up %s...", s.Code)
	case workflow.ResultNotFound:
		fmt.Fprintf(&b, "No book with code %s. Use the register command to add it.", s.Code)
	case workflow.ResultError:
		b.WriteString(s.ResultMessage)
	case workflow.ResultFound:
		fmt.Fprintf(&b, "%s by %s: ", s.Book.Title, strings.Join(s.Book.Authors, ", "))
		switch s.Status {
		case lending.StatusAvailable:
			b.WriteString("available. Type borrow.")
		case lending.StatusBorrowedByMe:
			fmt.Fprintf(&b, "borrowed by you%s. Type return.", dueSuffix(s.Book.Borrower))
		case lending.StatusBorrowedByOther:
			name := "someone else"
			if s.Book.Borrower != nil {
				name = s.Book.Borrower.Name
			}
			fmt.Fprintf(&b, "borrowed by %s%s. Type return to return it for them.", name, dueSuffix(s.Book.Borrower))
		}
	}

	switch s.Action {
	case workflow.ActionLoading:
		fmt.Fprintf(&b, " (%s in progress)", s.Op)
	case workflow.ActionError:
		fmt.Fprintf(&b, " %s", s.ActionMessage)
	}
	return b.String()
}

// dueSuffix is ", due YYYY-MM-DD", or empty when the borrower is unknown.
func dueSuffix(b *models.Borrower) string {
	if b == nil {
		return ""
	}
	return ", due " + b.DueDate.Format(time.DateOnly)
}
