package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmynk/holocron/internal/bookform"
	"github.com/mmynk/holocron/internal/bookstore"
	"github.com/mmynk/holocron/internal/catalog"
	"github.com/mmynk/holocron/internal/models"
)

func newBooksCmd(opts *options) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "books [keyword]",
		Short: "Search the shelf by title or author",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var keyword string
			if len(args) == 1 {
				keyword = args[0]
			}
			page, err := bookstore.NewHTTPStore(opts.server, nil).Search(cmd.Context(), keyword, limit, offset)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printBooks(out, page.Books)
			if len(page.Books) > 0 {
				fmt.Fprintf(out, "Showing %d-%d of %d\n", page.Offset+1, page.Offset+len(page.Books), page.Total)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", catalog.DefaultLimit, "books per page")
	cmd.Flags().IntVar(&offset, "offset", 0, "books to skip")
	return cmd
}

func newMineCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mine",
		Short: "List the books you have borrowed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := signIn(cmd, opts)
			if err != nil {
				return err
			}
			token, err := session.Token(cmd.Context())
			if err != nil {
				return err
			}
			books, err := bookstore.NewHTTPStore(opts.server, nil).Borrowings(cmd.Context(), token)
			if err != nil {
				return err
			}
			printBooks(cmd.OutOrStdout(), books)
			return nil
		},
	}
}

func newUpdateCmd(opts *options) *cobra.Command {
	var (
		values  map[string]*string
		authors []string
	)
	cmd := &cobra.Command{
		Use:   "update BOOK_ID",
		Short: "Correct the details of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			form := bookform.PatchForm{}
			changed := func(name string) *string {
				if !cmd.Flags().Changed(name) {
					return nil
				}
				return values[name]
			}
			form.Code = changed("code")
			form.Title = changed("title")
			form.Publisher = changed("publisher")
			form.PublishedDate = changed("published")
			form.ThumbnailURL = changed("thumbnail")
			if cmd.Flags().Changed("author") {
				form.Authors = bookform.AuthorsFrom(authors)
			}

			patch, err := bookform.ParsePatch(form)
			if err != nil {
				return err
			}
			session, err := signIn(cmd, opts)
			if err != nil {
				return err
			}
			token, err := session.Token(cmd.Context())
			if err != nil {
				return err
			}
			book, err := bookstore.NewHTTPStore(opts.server, nil).Update(cmd.Context(), args[0], patch, token)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", formatBook(book))
			return nil
		},
	}
	f := cmd.Flags()
	values = map[string]*string{}
	for _, fl := range []struct{ name, usage string }{
		{"code", "ISBN-10 or ISBN-13, empty to clear"},
		{"title", "book title"},
		{"publisher", "publisher, empty to clear"},
		{"published", "publication date YYYY-MM-DD, empty to clear"},
		{"thumbnail", "cover image URL, empty to clear"},
	} {
		values[fl.name] = f.String(fl.name, "", fl.usage)
	}
	f.StringArrayVar(&authors, "author", nil, "author name, repeat to replace the author list")
	return cmd
}

func newDeleteCmd(opts *options) *cobra.Command {
	var reason, memo string
	cmd := &cobra.Command{
		Use:   "delete BOOK_ID",
		Short: "Take a book off the shelf",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := catalog.ParseDeleteReason(reason)
			if err != nil {
				return err
			}
			session, err := signIn(cmd, opts)
			if err != nil {
				return err
			}
			token, err := session.Token(cmd.Context())
			if err != nil {
				return err
			}
			var m *string
			if memo != "" {
				m = &memo
			}
			if err := bookstore.NewHTTPStore(opts.server, nil).Delete(cmd.Context(), args[0], r, m, token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s (%s)\n", args[0], r)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "transfer, disposal, lost or other")
	cmd.Flags().StringVar(&memo, "memo", "", "optional note")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func printBooks(w io.Writer, books []*models.Book) {
	if len(books) == 0 {
		fmt.Fprintln(w, "No books.")
		return
	}
	for _, b := range books {
		fmt.Fprintln(w, formatBook(b))
	}
}

// formatBook renders one line per book: title, authors, loan status and ID.
func formatBook(b *models.Book) string {
	status := "available"
	if b.Status == models.BookBorrowed {
		status = "borrowed"
		if b.Borrower != nil {
			status = fmt.Sprintf("borrowed by %s until %s", b.Borrower.Name, b.Borrower.DueDate.Format(time.DateOnly))
		}
	}
	return fmt.Sprintf("%s by %s [%s] %s", b.Title, strings.Join(b.Authors, ", "), status, b.ID)
}
