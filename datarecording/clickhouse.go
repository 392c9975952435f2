package datarecording

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/fatih/structs"
	"github.com/tebeka/atexit"
)

// ClickHouseRecorder is a DataRecorder that writes into a ClickHouse server
// with batched inserts.
type ClickHouseRecorder struct {
	conn      clickhouse.Conn
	mu        sync.Mutex
	batchSize int

	tables     map[string]*table
	tableOrder []string
	entryCount int
}

// NewClickHouseRecorder connects to the server described by dsn.
func NewClickHouseRecorder(dsn string, batchSize int) (*ClickHouseRecorder, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing ClickHouse DSN: %w", err)
	}

	if opts.DialTimeout == 0 {
		opts.DialTimeout = 30 * time.Second
	}
	opts.ConnOpenStrategy = clickhouse.ConnOpenInOrder

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	r := &ClickHouseRecorder{
		conn:      conn,
		batchSize: batchSize,
		tables:    make(map[string]*table),
	}

	atexit.Register(func() { r.Flush() })

	return r, nil
}

func clickHouseType(kind reflect.Kind) string {
	switch kind {
	case reflect.Bool:
		return "Bool"
	case reflect.Int8:
		return "Int8"
	case reflect.Int16:
		return "Int16"
	case reflect.Int32:
		return "Int32"
	case reflect.Int, reflect.Int64:
		return "Int64"
	case reflect.Uint8:
		return "UInt8"
	case reflect.Uint16:
		return "UInt16"
	case reflect.Uint32:
		return "UInt32"
	case reflect.Uint, reflect.Uint64:
		return "UInt64"
	case reflect.Float32:
		return "Float32"
	case reflect.Float64:
		return "Float64"
	default:
		return "String"
	}
}

func clickHouseCreateSQL(tableName string, sampleEntry any) string {
	st := reflect.TypeOf(sampleEntry)
	names := structs.Names(sampleEntry)

	columns := make([]string, 0, len(names))
	for i, name := range names {
		columns = append(columns,
			fmt.Sprintf("%s %s", name, clickHouseType(st.Field(i).Type.Kind())))
	}

	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n\t%s\n) ENGINE = MergeTree()\nORDER BY tuple()",
		tableName, strings.Join(columns, ",\n\t"))
}

// clickHouseValues widens platform-sized integers to the fixed-width types of
// their columns.
func clickHouseValues(entry any) []any {
	values := fieldValues(entry)
	for i, v := range values {
		switch x := v.(type) {
		case int:
			values[i] = int64(x)
		case uint:
			values[i] = uint64(x)
		}
	}

	return values
}

// CreateTable creates a MergeTree table whose columns follow the fields of
// sampleEntry.
func (r *ClickHouseRecorder) CreateTable(tableName string, sampleEntry any) {
	if err := checkStructFields(sampleEntry); err != nil {
		panic(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.conn.Exec(context.Background(),
		clickHouseCreateSQL(tableName, sampleEntry))
	if err != nil {
		panic(fmt.Errorf("failed to create table %s: %w", tableName, err))
	}

	r.tables[tableName] = &table{structType: reflect.TypeOf(sampleEntry)}
	r.tableOrder = append(r.tableOrder, tableName)
}

// InsertData buffers an entry.
func (r *ClickHouseRecorder) InsertData(tableName string, entry any) {
	r.mu.Lock()

	t, ok := r.tables[tableName]
	if !ok {
		r.mu.Unlock()
		panic(fmt.Sprintf("table %s does not exist", tableName))
	}

	t.entries = append(t.entries, entry)
	r.entryCount++
	full := r.entryCount >= r.batchSize

	r.mu.Unlock()

	if full {
		r.Flush()
	}
}

// ListTables returns the tables created by the recorder.
func (r *ClickHouseRecorder) ListTables() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	tables := make([]string, len(r.tableOrder))
	copy(tables, r.tableOrder)

	return tables
}

// Flush sends one batch per table.
func (r *ClickHouseRecorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entryCount == 0 {
		return
	}

	ctx := context.Background()
	for _, name := range r.tableOrder {
		t := r.tables[name]
		if len(t.entries) == 0 {
			continue
		}

		batch, err := r.conn.PrepareBatch(ctx, "INSERT INTO "+name)
		if err != nil {
			panic(fmt.Errorf("failed to prepare batch for %s: %w", name, err))
		}

		for _, entry := range t.entries {
			if err := batch.Append(clickHouseValues(entry)...); err != nil {
				panic(fmt.Errorf("failed to append to batch: %w", err))
			}
		}

		if err := batch.Send(); err != nil {
			panic(fmt.Errorf("failed to send batch: %w", err))
		}

		t.entries = nil
	}

	r.entryCount = 0
}

// Close flushes remaining data and closes the connection.
func (r *ClickHouseRecorder) Close() error {
	r.Flush()

	if err := r.conn.Close(); err != nil {
		return fmt.Errorf("failed to close ClickHouse connection: %w", err)
	}

	return nil
}
