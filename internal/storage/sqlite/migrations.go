package sqlite

import "database/sql"

// schema contains the SQL statements to set up the database schema.
// These run on startup to ensure tables exist.
// A book is borrowed exactly when it has a lending with no returned_at;
// the partial unique index allows at most one such lending per book.
// Deleted books keep their row and lending history; only books on the shelf
// need a unique code.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS books (
    id TEXT PRIMARY KEY,
    code TEXT,
    title TEXT NOT NULL,
    publisher TEXT,
    published_date TEXT,
    thumbnail_url TEXT,
    created_at INTEGER NOT NULL,
    deleted_at INTEGER,
    delete_reason TEXT,
    delete_memo TEXT
);

CREATE TABLE IF NOT EXISTS book_authors (
    book_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    PRIMARY KEY (book_id, position),
    FOREIGN KEY (book_id) REFERENCES books(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS lendings (
    id TEXT PRIMARY KEY,
    book_id TEXT NOT NULL,
    borrower_id TEXT NOT NULL,
    borrowed_at INTEGER NOT NULL,
    due_date INTEGER NOT NULL,
    returned_at INTEGER,
    FOREIGN KEY (book_id) REFERENCES books(id) ON DELETE CASCADE,
    FOREIGN KEY (borrower_id) REFERENCES users(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_books_code ON books(code) WHERE deleted_at IS NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_lendings_open_book ON lendings(book_id) WHERE returned_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_lendings_borrower_id ON lendings(borrower_id);
CREATE INDEX IF NOT EXISTS idx_book_authors_book_id ON book_authors(book_id);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
