package datarecording

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/fatih/structs"
	"github.com/tebeka/atexit"
)

// ClickHouseWriter is the DataRecorder that writes data into a ClickHouse
// server. Tables use the MergeTree engine and rows are sent in batches.
type ClickHouseWriter struct {
	conn clickhouse.Conn

	tables     map[string]*table
	tableNames []string
	batchSize  int
	entryCount int
}

// NewClickHouse connects to the server described by dsn, for example
// clickhouse://localhost:9000/trapsim?username=default.
func NewClickHouse(ctx context.Context, dsn string) (*ClickHouseWriter, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing ClickHouse DSN: %w", err)
	}

	if opts.Settings == nil {
		opts.Settings = clickhouse.Settings{}
	}
	opts.Settings["max_execution_time"] = 60
	opts.DialTimeout = 30 * time.Second
	opts.MaxOpenConns = 5
	opts.MaxIdleConns = 5
	opts.ConnMaxLifetime = time.Hour
	opts.ConnOpenStrategy = clickhouse.ConnOpenInOrder

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("pinging ClickHouse: %w", err)
	}

	w := &ClickHouseWriter{
		conn:      conn,
		batchSize: 100000,
		tables:    make(map[string]*table),
	}

	atexit.Register(func() { _ = w.Flush() })

	return w, nil
}

// WithBatchSize sets the number of buffered entries that triggers a flush.
func (w *ClickHouseWriter) WithBatchSize(n int) *ClickHouseWriter {
	w.batchSize = n
	return w
}

func clickHouseType(kind reflect.Kind) string {
	switch kind {
	case reflect.Bool:
		return "Bool"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "Int64"
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32,
		reflect.Uint64:
		return "UInt64"
	case reflect.Float32, reflect.Float64:
		return "Float64"
	default:
		return "String"
	}
}

func clickHouseCreateStatement(tableName string, sample any) string {
	t := reflect.TypeOf(sample)

	columns := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}

		columns = append(columns,
			f.Name+" "+clickHouseType(f.Type.Kind()))
	}

	return "CREATE TABLE IF NOT EXISTS " + tableName + " (\n\t" +
		strings.Join(columns, ",\n\t") +
		"\n) ENGINE = MergeTree()\nORDER BY tuple()"
}

// clickHouseRow widens every field to the Go type its column expects.
func clickHouseRow(entry any) []any {
	values := structs.Values(entry)

	for i, v := range values {
		rv := reflect.ValueOf(v)
		switch clickHouseType(rv.Kind()) {
		case "Int64":
			values[i] = rv.Int()
		case "UInt64":
			values[i] = rv.Uint()
		case "Float64":
			values[i] = rv.Float()
		}
	}

	return values
}

// CreateTable creates a MergeTree table with one column per field of
// sampleEntry.
func (w *ClickHouseWriter) CreateTable(tableName string, sampleEntry any) error {
	if err := checkStructFields(sampleEntry); err != nil {
		return err
	}

	if _, exists := w.tables[tableName]; exists {
		return fmt.Errorf("table %s already exists", tableName)
	}

	err := w.conn.Exec(context.Background(),
		clickHouseCreateStatement(tableName, sampleEntry))
	if err != nil {
		return fmt.Errorf("creating table %s: %w", tableName, err)
	}

	w.tables[tableName] = &table{
		structType: reflect.TypeOf(sampleEntry),
	}
	w.tableNames = append(w.tableNames, tableName)

	return nil
}

// InsertData buffers one entry. Reaching the batch size flushes the buffer.
func (w *ClickHouseWriter) InsertData(tableName string, entry any) error {
	t, exists := w.tables[tableName]
	if !exists {
		return fmt.Errorf("table %s does not exist", tableName)
	}

	if reflect.TypeOf(entry) != t.structType {
		return fmt.Errorf("entry of type %T does not match table %s",
			entry, tableName)
	}

	t.entries = append(t.entries, entry)

	w.entryCount++
	if w.entryCount >= w.batchSize {
		return w.Flush()
	}

	return nil
}

// ListTables returns the tables in creation order.
func (w *ClickHouseWriter) ListTables() []string {
	tables := make([]string, len(w.tableNames))
	copy(tables, w.tableNames)

	return tables
}

// Flush sends one batch per table that has buffered entries.
func (w *ClickHouseWriter) Flush() error {
	if w.entryCount == 0 {
		return nil
	}

	ctx := context.Background()

	for _, tableName := range w.tableNames {
		t := w.tables[tableName]
		if len(t.entries) == 0 {
			continue
		}

		if err := w.sendBatch(ctx, tableName, t.entries); err != nil {
			return err
		}

		t.entries = t.entries[:0]
	}

	w.entryCount = 0

	return nil
}

func (w *ClickHouseWriter) sendBatch(
	ctx context.Context,
	tableName string,
	entries []any,
) error {
	batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO "+tableName)
	if err != nil {
		return fmt.Errorf("preparing batch for %s: %w", tableName, err)
	}

	for _, entry := range entries {
		if err := batch.Append(clickHouseRow(entry)...); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("appending to %s: %w", tableName, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("sending batch to %s: %w", tableName, err)
	}

	return nil
}

// Close flushes the remaining entries and closes the connection.
func (w *ClickHouseWriter) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}

	if err := w.conn.Close(); err != nil {
		return fmt.Errorf("closing ClickHouse connection: %w", err)
	}

	return nil
}

// IsClickHouseDSN reports whether target names a ClickHouse server rather
// than a SQLite file.
func IsClickHouseDSN(target string) bool {
	return strings.HasPrefix(target, "clickhouse://")
}

// Open creates the recorder for target. A clickhouse:// DSN connects to a
// ClickHouse server and anything else is a SQLite file path.
func Open(ctx context.Context, target string) (DataRecorder, error) {
	if IsClickHouseDSN(target) {
		w, err := NewClickHouse(ctx, target)
		if err != nil {
			return nil, err
		}

		return w, nil
	}

	w, err := New(target)
	if err != nil {
		return nil, err
	}

	return w, nil
}
