package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mmynk/holocron/internal/auth"
	"github.com/mmynk/holocron/internal/bookform"
	"github.com/mmynk/holocron/internal/bookstore"
	"github.com/mmynk/holocron/internal/scan"
	"github.com/mmynk/holocron/internal/workflow"
	"github.com/mmynk/holocron/pkg/logging"
)

type options struct {
	server   string
	email    string
	logLevel string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "kiosk",
		Short:        "Borrow and return books from the shared shelf",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(logging.New(cmd.ErrOrStderr(), logging.ParseLevel(opts.logLevel)))
		},
	}
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("HOLOCRON_SERVER", "http://localhost:8080"), "library server URL")
	root.PersistentFlags().StringVar(&opts.email, "email", os.Getenv("HOLOCRON_EMAIL"), "account email")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "debug, info, warn or error")

	root.AddCommand(
		newScanCmd(opts),
		newRegisterCmd(opts),
		newBooksCmd(opts),
		newMineCmd(opts),
		newUpdateCmd(opts),
		newDeleteCmd(opts),
	)
	return root
}

func newScanCmd(opts *options) *cobra.Command {
	var (
		mount    string
		cooldown time.Duration
		settle   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Read barcodes from a keyboard-wedge scanner and lend books",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := signIn(cmd, opts)
			if err != nil {
				return err
			}
			return runScan(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), opts.server, session, mount, cooldown, settle)
		},
	}
	cmd.Flags().StringVar(&mount, "mount", "stdin", "scanner mount point")
	cmd.Flags().DurationVar(&cooldown, "cooldown", scan.DefaultCooldown, "quiet period after each accepted code")
	cmd.Flags().DurationVar(&settle, "settle", scan.DefaultSettleDelay, "delay before the scanner starts")
	return cmd
}

func runScan(ctx context.Context, in io.Reader, out io.Writer, server string, id workflow.Identity, mount string, cooldown, settle time.Duration) error {
	clock := clockwork.NewRealClock()
	logger := slog.Default()

	pr, pw := io.Pipe()
	defer pw.Close()

	var wf *workflow.Workflow
	session := scan.NewSession(scan.NewLineDecoder(pr),
		scan.WithClock(clock),
		scan.WithCooldown(cooldown),
		scan.WithSettleDelay(settle),
		scan.WithDecoderConfig(scan.DecoderConfig{Mount: mount}),
		scan.WithLogger(logger),
		scan.OnDecoded(func(text string) {
			if err := wf.OnScanned(text); err != nil {
				fmt.Fprintln(out, friendly(err))
			}
		}),
		scan.OnStateChange(func(s scan.State) {
			if s.Phase == scan.PhaseError {
				fmt.Fprintf(out, "Scanner error: %s\n", s.Message)
			}
		}),
	)
	wf = workflow.New(bookstore.NewHTTPStore(server, nil), id,
		workflow.WithScanner(session),
		workflow.WithClock(clock),
		workflow.WithLogger(logger),
		workflow.OnChange(func(s workflow.State) { fmt.Fprintln(out, describe(s)) }),
	)
	defer wf.Close()

	session.Enable()
	defer session.Disable()

	c := &console{out: out, wf: wf, codes: pw, clock: clock}
	fmt.Fprintln(out, helpText)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok || c.handle(line) {
				return nil
			}
		}
	}
}

func newRegisterCmd(opts *options) *cobra.Command {
	var form struct {
		code, title, publisher, published, thumbnail string
		authors                                      []string
		lookup                                       bool
	}
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Add a book to the shelf, by hand or from catalogue data for --code",
		RunE: func(cmd *cobra.Command, args []string) error {
			if form.lookup && form.code == "" {
				return fmt.Errorf("--lookup needs --code")
			}
			session, err := signIn(cmd, opts)
			if err != nil {
				return err
			}
			if form.lookup {
				token, err := session.Token(cmd.Context())
				if err != nil {
					return err
				}
				book, err := bookstore.NewHTTPStore(opts.server, nil).RegisterByCode(cmd.Context(), form.code, token)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered %s\n", formatBook(book))
				return nil
			}

			wf := workflow.New(bookstore.NewHTTPStore(opts.server, nil), session)
			defer wf.Close()

			book, err := wf.Register(cmd.Context(), bookform.Form{
				Code:          form.code,
				Title:         form.title,
				Authors:       bookform.AuthorsFrom(form.authors),
				Publisher:     form.publisher,
				PublishedDate: form.published,
				ThumbnailURL:  form.thumbnail,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %q (%s)\n", book.Title, book.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&form.code, "code", "", "ISBN-10 or ISBN-13")
	f.StringVar(&form.title, "title", "", "book title")
	f.StringArrayVar(&form.authors, "author", nil, "author name, repeat for several authors")
	f.StringVar(&form.publisher, "publisher", "", "publisher")
	f.StringVar(&form.published, "published", "", "publication date, YYYY-MM-DD")
	f.StringVar(&form.thumbnail, "thumbnail", "", "cover image URL")
	f.BoolVar(&form.lookup, "lookup", false, "fill in the details from Google Books or openBD")
	return cmd
}

// signIn logs in with --email and a password from HOLOCRON_PASSWORD or the terminal.
func signIn(cmd *cobra.Command, opts *options) (*auth.Session, error) {
	if opts.email == "" {
		return nil, fmt.Errorf("--email is required")
	}
	password := os.Getenv("HOLOCRON_PASSWORD")
	if password == "" {
		var err error
		if password, err = readPassword(cmd.ErrOrStderr(), "Password: "); err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()
	session, err := auth.Login(ctx, nil, opts.server, opts.email, password)
	if err != nil {
		return nil, err
	}
	slog.Info("Signed in", "user_id", session.UserID(), "server", opts.server)
	return session, nil
}

// readPassword reads a password without echo.
func readPassword(w io.Writer, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal; set HOLOCRON_PASSWORD")
	}
	fmt.Fprint(w, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
