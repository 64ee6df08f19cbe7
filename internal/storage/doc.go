// Package storage persists the content bank and the notice pipeline state.
//
// Two backends implement Storage:
//
//   - SQLiteStorage, the default, a single file with WAL enabled. The driver
//     is chosen by build tag: modernc.org/sqlite (pure Go) normally, or
//     mattn/go-sqlite3 with the sqlite_vec tag, which moves cosine ranking
//     into SQL. Schema changes are applied by ApplyMigrations in semver order.
//   - PostgresStorage, backed by a pgx pool and pgvector. Embeddings live in
//     a vector(N) column with an HNSW cosine index.
//
// Open picks a backend from Config.
//
// # Idempotence
//
// Contents are keyed by their source key. InsertContent is an
// insert-or-ignore: when two runs race past ContentExists, the unique
// constraint makes the later insert a no-op and it reports false.
// UpsertDiscipline is create-if-absent on slug and always returns the
// stored row.
//
// # Notice state
//
// TransitionNotice is a compare-and-set on the current status and doubles
// as a per-notice lease: of two workers trying QUEUED to PARSING, one wins
// and the other gets ErrConflict. UpdateJobProgress keeps the stored
// progress at max(stored, new) so reported progress never goes backwards.
//
// # Vectors
//
// SQLite stores embeddings as little-endian float32 blobs. Postgres receives
// the "[a,b,...]" literal from embedder.FormatVector cast to vector.
package storage
