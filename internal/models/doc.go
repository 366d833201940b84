// Package models defines the core domain records for Holocron.
//
// # Records
//
//   - Book: a physical book in the shared shelf, with its lending state
//   - Borrower: who currently holds a borrowed book
//   - BookDraft: a validated registration form, not yet persisted
//   - Lending: one borrow period of a book, open until the book is returned
//   - User: a registered account that can borrow and return books
//
// # Invariants
//
// A Book with Status BookBorrowed always carries a Borrower, and a Book with
// Status BookAvailable never does. Stores enforce this when they build a Book
// from persisted rows; the lending classifier relies on it.
//
// Relationships use ID strings rather than pointers, so records can be copied
// freely between the store, the workflow and the presentation layer.
package models
