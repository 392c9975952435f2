// Package datarecording stores flat Go structs as rows of database tables and
// reads them back.
package datarecording

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/fatih/structs"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// DataRecorder is a backend that can record and store data
type DataRecorder interface {
	// CreateTable creates a new table whose columns are the fields of
	// sampleEntry.
	CreateTable(tableName string, sampleEntry any)

	// InsertData buffers an entry for a table that already exists.
	InsertData(tableName string, entry any)

	// ListTables returns the names of all tables created by the recorder.
	ListTables() []string

	// Flush writes all the buffered entries into the database.
	Flush()

	// Close flushes and releases the database.
	Close() error
}

// ErrUnsupportedField is returned for entries with fields that cannot be
// stored in a single column.
var ErrUnsupportedField = errors.New("datarecording: unsupported field type")

// Config selects and configures a recorder backend.
type Config struct {
	// Backend is "sqlite" (default) or "clickhouse".
	Backend string

	// Path is the SQLite database file, without the .sqlite3 suffix. An
	// empty path selects a unique name.
	Path string

	// DSN is the ClickHouse connection string, for example
	// clickhouse://localhost:9000/wifictl?username=default.
	DSN string

	// BatchSize is the number of buffered entries that triggers a flush.
	BatchSize int
}

// NewWithConfig creates a recorder for the configured backend.
func NewWithConfig(cfg Config) (DataRecorder, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "sqlite", "sqlite3":
		w, err := newSQLiteWriter(cfg.Path, cfg.BatchSize)
		if err != nil {
			return nil, err
		}

		return w, nil
	case "clickhouse":
		r, err := NewClickHouseRecorder(cfg.DSN, cfg.BatchSize)
		if err != nil {
			return nil, err
		}

		return r, nil
	default:
		return nil, fmt.Errorf("datarecording: unknown backend %q", cfg.Backend)
	}
}

// New creates a SQLite recorder writing to path + ".sqlite3". It panics if the
// database cannot be created.
func New(path string) DataRecorder {
	w, err := newSQLiteWriter(path, 0)
	if err != nil {
		panic(err)
	}

	return w
}

const defaultBatchSize = 100000

type table struct {
	structType reflect.Type
	entries    []any
}

// sqliteWriter is the writer that writes data into SQLite database
type sqliteWriter struct {
	*sql.DB

	dbName     string
	tables     map[string]*table
	tableOrder []string
	batchSize  int
	entryCount int
	closed     bool
}

func newSQLiteWriter(path string, batchSize int) (*sqliteWriter, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	w := &sqliteWriter{
		dbName:    path,
		batchSize: batchSize,
		tables:    make(map[string]*table),
	}

	if err := w.init(); err != nil {
		return nil, err
	}

	atexit.Register(func() { w.Flush() })

	return w, nil
}

// init establishes a connection to the database.
func (t *sqliteWriter) init() error {
	if t.dbName == "" {
		t.dbName = "wifictl_recording_" + xid.New().String()
	}

	filename := t.dbName + ".sqlite3"

	_, err := os.Stat(filename)
	if err == nil {
		return fmt.Errorf("file %s already exists", filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return err
	}

	t.DB = db

	return nil
}

func isAllowedKind(kind reflect.Kind) bool {
	switch kind {
	case
		reflect.Bool,
		reflect.Int,
		reflect.Int8,
		reflect.Int16,
		reflect.Int32,
		reflect.Int64,
		reflect.Uint,
		reflect.Uint8,
		reflect.Uint16,
		reflect.Uint32,
		reflect.Uint64,
		reflect.Float32,
		reflect.Float64,
		reflect.String:
		return true
	default:
		return false
	}
}

func checkStructFields(entry any) error {
	types := reflect.TypeOf(entry)
	if types == nil || types.Kind() != reflect.Struct {
		return fmt.Errorf("%w: %T is not a struct", ErrUnsupportedField, entry)
	}

	for i := 0; i < types.NumField(); i++ {
		field := types.Field(i)

		if !field.IsExported() || !isAllowedKind(field.Type.Kind()) {
			return fmt.Errorf("%w: %s.%s", ErrUnsupportedField,
				types.Name(), field.Name)
		}
	}

	return nil
}

func fieldValues(entry any) []any {
	v := reflect.ValueOf(entry)
	values := make([]any, 0, v.NumField())

	for i := 0; i < v.NumField(); i++ {
		values = append(values, v.Field(i).Interface())
	}

	return values
}

func (t *sqliteWriter) CreateTable(tableName string, sampleEntry any) {
	err := checkStructFields(sampleEntry)
	if err != nil {
		panic(err)
	}

	n := structs.Names(sampleEntry)
	fields := strings.Join(n, ", \n\t")

	createTableSQL := `CREATE TABLE ` + tableName +
		` (` + "\n\t" + fields + "\n" + `);`
	t.mustExecute(createTableSQL)

	t.tables[tableName] = &table{
		structType: reflect.TypeOf(sampleEntry),
	}
	t.tableOrder = append(t.tableOrder, tableName)
}

func (t *sqliteWriter) InsertData(tableName string, entry any) {
	table, exists := t.tables[tableName]
	if !exists {
		panic(fmt.Sprintf("table %s does not exist", tableName))
	}

	if reflect.TypeOf(entry) != table.structType {
		panic(fmt.Sprintf("table %s stores %s, got %T",
			tableName, table.structType, entry))
	}

	table.entries = append(table.entries, entry)

	t.entryCount++
	if t.entryCount >= t.batchSize {
		t.Flush()
	}
}

func (t *sqliteWriter) ListTables() []string {
	tables := make([]string, len(t.tableOrder))
	copy(tables, t.tableOrder)

	return tables
}

func (t *sqliteWriter) Flush() {
	if t.entryCount == 0 || t.closed {
		return
	}

	t.mustExecute("BEGIN TRANSACTION")
	defer t.mustExecute("COMMIT TRANSACTION")

	for _, tableName := range t.tableOrder {
		table := t.tables[tableName]
		if len(table.entries) == 0 {
			continue
		}

		stmt := t.prepareStatement(tableName, table.entries[0])

		for _, entry := range table.entries {
			_, err := stmt.Exec(fieldValues(entry)...)
			if err != nil {
				panic(err)
			}
		}

		table.entries = nil

		stmt.Close()
	}

	t.entryCount = 0
}

func (t *sqliteWriter) Close() error {
	if t.closed {
		return nil
	}

	t.Flush()
	t.closed = true

	return t.DB.Close()
}

func (t *sqliteWriter) mustExecute(query string) sql.Result {
	res, err := t.Exec(query)
	if err != nil {
		panic(fmt.Errorf("failed to execute %q: %w", query, err))
	}

	return res
}

func (t *sqliteWriter) prepareStatement(table string, entry any) *sql.Stmt {
	n := structs.Names(entry)
	for i := 0; i < len(n); i++ {
		n[i] = "?"
	}

	entryToFill := "(" + strings.Join(n, ", ") + ")"
	sqlStr := "INSERT INTO " + table + " VALUES " + entryToFill

	stmt, err := t.Prepare(sqlStr)
	if err != nil {
		panic(err)
	}

	return stmt
}
