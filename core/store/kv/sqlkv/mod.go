// Package sqlkv implements the key/value database abstraction on top of
// SQLite. Buckets are rows of a table and every entry is keyed by the pair
// (bucket, key). The database runs in WAL mode with a single connection so that
// write transactions are serialized like with bbolt.
package sqlkv

import (
	"bytes"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.dedis.ch/crush/core/store/kv"
	"golang.org/x/xerrors"
)

const schema = `
CREATE TABLE IF NOT EXISTS buckets (
	name BLOB PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS entries (
	bucket BLOB NOT NULL,
	key    BLOB NOT NULL,
	value  BLOB NOT NULL,
	PRIMARY KEY (bucket, key)
);
`

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
}

// SQLDB is an adapter of the KV store using SQLite.
//
// - implements kv.DB
type sqlDB struct {
	db *sql.DB
}

// New opens or creates the SQLite database at the given path and applies the
// schema.
func New(path string) (kv.DB, error) {
	if path == "" {
		return nil, xerrors.New("failed to open db: path is empty")
	}

	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, xerrors.Errorf("failed to open db: %v", err)
	}

	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, xerrors.Errorf("failed to connect: %v", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range pragmas {
		_, err = db.Exec(pragma)
		if err != nil {
			db.Close()
			return nil, xerrors.Errorf("failed to execute %q: %v", pragma, err)
		}
	}

	_, err = db.Exec(schema)
	if err != nil {
		db.Close()
		return nil, xerrors.Errorf("failed to apply schema: %v", err)
	}

	return sqlDB{db: db}, nil
}

// View implements kv.DB. It executes the read-only transaction. The SQL
// transaction is always rolled back.
func (db sqlDB) View(fn func(kv.ReadableTx) error) error {
	txn, err := db.db.Begin()
	if err != nil {
		return xerrors.Errorf("failed to begin: %v", err)
	}

	defer txn.Rollback()

	tx := &sqlTx{txn: txn}

	err = fn(tx)
	if err != nil {
		return err
	}

	if tx.err != nil {
		return xerrors.Errorf("read failed: %v", tx.err)
	}

	return nil
}

// Update implements kv.DB. It executes the writable transaction and commits it
// if the function and every operation succeeded, otherwise nothing is written.
func (db sqlDB) Update(fn func(kv.WritableTx) error) error {
	txn, err := db.db.Begin()
	if err != nil {
		return xerrors.Errorf("failed to begin: %v", err)
	}

	tx := &sqlTx{txn: txn}

	err = fn(tx)
	if err != nil {
		txn.Rollback()
		return err
	}

	if tx.err != nil {
		txn.Rollback()
		return xerrors.Errorf("read failed: %v", tx.err)
	}

	err = txn.Commit()
	if err != nil {
		return xerrors.Errorf("failed to commit: %v", err)
	}

	for _, cb := range tx.callbacks {
		cb()
	}

	return nil
}

// Close implements kv.DB. It closes the connection to the database.
func (db sqlDB) Close() error {
	return db.db.Close()
}

// SQLTx is a transaction on the SQLite database. Reads cannot fail through the
// bucket interface, so the first read error is kept and returned when the
// transaction ends.
//
// - implements kv.ReadableTx
// - implements kv.WritableTx
type sqlTx struct {
	txn       *sql.Tx
	err       error
	callbacks []func()
}

// GetBucket implements kv.ReadableTx. It returns the bucket if it exists,
// otherwise nil.
func (tx *sqlTx) GetBucket(name []byte) kv.Bucket {
	var one int

	err := tx.txn.QueryRow("SELECT 1 FROM buckets WHERE name = ?", nonNil(name)).Scan(&one)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		tx.fail(err)
		return nil
	}

	return sqlBucket{tx: tx, name: name}
}

// GetBucketOrCreate implements kv.WritableTx. It creates the bucket if it does
// not exist and returns it.
func (tx *sqlTx) GetBucketOrCreate(name []byte) (kv.Bucket, error) {
	if len(name) == 0 {
		return nil, xerrors.New("failed to create bucket: bucket name required")
	}

	_, err := tx.txn.Exec("INSERT OR IGNORE INTO buckets (name) VALUES (?)", name)
	if err != nil {
		return nil, xerrors.Errorf("failed to create bucket: %v", err)
	}

	return sqlBucket{tx: tx, name: name}, nil
}

// OnCommit implements store.Transaction. The callbacks are run after the
// transaction is committed.
func (tx *sqlTx) OnCommit(fn func()) {
	tx.callbacks = append(tx.callbacks, fn)
}

func (tx *sqlTx) fail(err error) {
	if tx.err == nil {
		tx.err = err
	}
}

// SQLBucket is a view of the entries of a bucket.
//
// - implements kv.Bucket
type sqlBucket struct {
	tx   *sqlTx
	name []byte
}

// Get implements kv.Bucket. It returns the value stored at the key, or nil.
func (b sqlBucket) Get(key []byte) []byte {
	var value []byte

	err := b.tx.txn.QueryRow("SELECT value FROM entries WHERE bucket = ? AND key = ?",
		b.name, nonNil(key)).Scan(&value)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		b.tx.fail(err)
		return nil
	}

	if value == nil {
		value = []byte{}
	}

	return value
}

// Set implements kv.Bucket. It stores the value at the key.
func (b sqlBucket) Set(key, value []byte) error {
	if len(key) == 0 {
		return xerrors.New("key required")
	}

	_, err := b.tx.txn.Exec("INSERT OR REPLACE INTO entries (bucket, key, value) VALUES (?, ?, ?)",
		b.name, key, nonNil(value))
	if err != nil {
		return xerrors.Errorf("failed to set: %v", err)
	}

	return nil
}

// Delete implements kv.Bucket. It removes the key from the bucket.
func (b sqlBucket) Delete(key []byte) error {
	_, err := b.tx.txn.Exec("DELETE FROM entries WHERE bucket = ? AND key = ?", b.name, nonNil(key))
	if err != nil {
		return xerrors.Errorf("failed to delete: %v", err)
	}

	return nil
}

// ForEach implements kv.Bucket. It iterates over the entries ordered by key.
func (b sqlBucket) ForEach(fn func(k, v []byte) error) error {
	pairs, err := b.load(nil)
	if err != nil {
		return err
	}

	for _, pair := range pairs {
		err = fn(pair[0], pair[1])
		if err != nil {
			return err
		}
	}

	return nil
}

// Scan implements kv.Bucket. It iterates over the keys that start with the
// prefix in ascending order.
func (b sqlBucket) Scan(prefix []byte, fn func(k, v []byte) error) error {
	pairs, err := b.load(prefix)
	if err != nil {
		return err
	}

	for _, pair := range pairs {
		err = fn(pair[0], pair[1])
		if err != nil {
			return xerrors.Errorf("callback failed: %v", err)
		}
	}

	return nil
}

// load reads the matching entries before the callbacks are called so that
// they are free to write in the bucket.
func (b sqlBucket) load(prefix []byte) ([][2][]byte, error) {
	rows, err := b.tx.txn.Query("SELECT key, value FROM entries WHERE bucket = ? AND key >= ? ORDER BY key",
		b.name, nonNil(prefix))
	if err != nil {
		return nil, xerrors.Errorf("failed to query: %v", err)
	}

	defer rows.Close()

	var pairs [][2][]byte

	for rows.Next() {
		var key, value []byte

		err = rows.Scan(&key, &value)
		if err != nil {
			return nil, xerrors.Errorf("failed to scan: %v", err)
		}

		if !bytes.HasPrefix(key, prefix) {
			break
		}

		pairs = append(pairs, [2][]byte{key, value})
	}

	err = rows.Err()
	if err != nil {
		return nil, xerrors.Errorf("failed to iterate: %v", err)
	}

	return pairs, nil
}

func nonNil(data []byte) []byte {
	if data == nil {
		return []byte{}
	}

	return data
}
