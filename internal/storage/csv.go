package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"bist-tracker/internal/model"
)

var (
	// ErrStoreMissing indicates the store file does not exist yet.
	ErrStoreMissing = errors.New("storage: store missing")
	// ErrStoreUnreadable indicates the store exists but could not be parsed.
	ErrStoreUnreadable = errors.New("storage: store unreadable")
)

// Column names of the store header, in write order.
const (
	ColDate   = "Date"
	ColTicker = "Hisse Kodu"
	ColOpen   = "Open"
	ColHigh   = "High"
	ColLow    = "Low"
	ColClose  = "Close"
	ColVolume = "Volume"
)

// Header is the header row written to a new store.
var Header = []string{ColDate, ColTicker, ColOpen, ColHigh, ColLow, ColClose, ColVolume}

// Snapshot is the content of the store at load time.
type Snapshot struct {
	Records []model.Record
	// Exists is false when the file was absent.
	Exists bool
	// Size is the file size in bytes when loaded.
	Size int64
	// Columns is the header row as found in the file, nil when the file has none.
	Columns []string
}

// Empty reports whether the snapshot holds no records.
func (s Snapshot) Empty() bool { return len(s.Records) == 0 }

// NeedsHeader reports whether the next append must start with a header row.
func (s Snapshot) NeedsHeader() bool { return !s.Exists || len(s.Columns) == 0 }

// Layout returns how rows appended after this snapshot must be written so
// that the file keeps a single consistent column layout.
func (s Snapshot) Layout() Layout {
	if s.NeedsHeader() {
		return Layout{Columns: Header, WriteHeader: true}
	}
	return Layout{Columns: s.Columns}
}

// Layout is the column order of appended rows.
type Layout struct {
	// Columns names each field of a row; unknown names are written empty.
	Columns []string
	// WriteHeader puts Columns first as a header row.
	WriteHeader bool
}

// Reader loads a store snapshot.
type Reader interface {
	Load(ctx context.Context) (Snapshot, error)
}

// Appender appends records to a store.
type Appender interface {
	Append(ctx context.Context, records []model.Record, layout Layout) error
}

// CSVStore is the append-only flat-file store shared by the updater and the dashboard.
type CSVStore struct {
	path string
}

// NewCSVStore returns a store backed by path.
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Path returns the file backing the store.
func (s *CSVStore) Path() string { return s.path }

// Load reads every record of the store. A missing file yields ErrStoreMissing
// with Exists=false; a blank or header-only file yields an empty snapshot
// and no error; anything that does not parse yields an error wrapping
// ErrStoreUnreadable. Columns is set whenever the header row parsed.
func (s *CSVStore) Load(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, ErrStoreMissing
		}
		return Snapshot{Exists: true}, fmt.Errorf("%w: stat %s: %v", ErrStoreUnreadable, s.path, err)
	}
	snap := Snapshot{Exists: true, Size: info.Size()}
	if info.IsDir() {
		return snap, fmt.Errorf("%w: %s is a directory", ErrStoreUnreadable, s.path)
	}

	file, err := os.Open(s.path)
	if err != nil {
		return snap, fmt.Errorf("%w: open %s: %v", ErrStoreUnreadable, s.path, err)
	}
	defer file.Close()

	columns, records, err := decodeRecords(file)
	snap.Columns = columns
	if err != nil {
		return snap, fmt.Errorf("%w: %s: %v", ErrStoreUnreadable, s.path, err)
	}
	snap.Records = records
	return snap, nil
}

// Append writes records to the end of the store in a single write, creating
// the file when needed. Rows follow layout, which normally comes from the
// snapshot loaded just before.
func (s *CSVStore) Append(ctx context.Context, records []model.Record, layout Layout) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := encodeRecords(&buf, records, layout); err != nil {
		return err
	}

	if err := ensureDir(s.path); err != nil {
		return err
	}

	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open store for append: %w", err)
	}
	if _, err := file.Write(buf.Bytes()); err != nil {
		file.Close()
		return fmt.Errorf("append to store: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

func encodeRecords(w io.Writer, records []model.Record, layout Layout) error {
	columns := layout.Columns
	if len(columns) == 0 {
		columns = Header
	}

	writer := csv.NewWriter(w)
	if layout.WriteHeader {
		if err := writer.Write(columns); err != nil {
			return err
		}
	}
	row := make([]string, len(columns))
	for _, r := range records {
		for i, col := range columns {
			row[i] = fieldValue(r, normalizeColumn(col))
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func fieldValue(r model.Record, col string) string {
	switch col {
	case ColDate:
		return r.Date.String()
	case ColTicker:
		return r.Ticker
	case ColOpen:
		return r.Open.String()
	case ColHigh:
		return r.High.String()
	case ColLow:
		return r.Low.String()
	case ColClose:
		return r.Close.String()
	case ColVolume:
		return strconv.FormatInt(r.Volume, 10)
	default:
		return ""
	}
}

// decodeRecords returns the header row and the records below it. Blank lines
// before the header are skipped; a file with nothing else has no header.
func decodeRecords(r io.Reader) ([]string, []model.Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var head []string
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil, nil, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read header: %w", err)
		}
		if !blankRow(row) {
			head = row
			break
		}
	}

	idx, err := columnIndex(head)
	if err != nil {
		return nil, nil, err
	}
	columns := make([]string, len(head))
	for i, name := range head {
		columns[i] = normalizeColumn(name)
	}

	records := make([]model.Record, 0)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return columns, nil, err
		}
		line, _ := reader.FieldPos(0)
		rec, err := parseRow(row, idx)
		if err != nil {
			return columns, nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return columns, records, nil
}

func blankRow(row []string) bool {
	for _, field := range row {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func normalizeColumn(name string) string {
	return strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
}

func columnIndex(head []string) (map[string]int, error) {
	idx := make(map[string]int, len(head))
	for i, name := range head {
		idx[normalizeColumn(name)] = i
	}
	for _, col := range Header {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("header missing column %q", col)
		}
	}
	return idx, nil
}

func parseRow(row []string, idx map[string]int) (model.Record, error) {
	field := func(col string) (string, error) {
		i := idx[col]
		if i >= len(row) {
			return "", fmt.Errorf("row has %d fields, missing %s", len(row), col)
		}
		return strings.TrimSpace(row[i]), nil
	}

	raw, err := field(ColDate)
	if err != nil {
		return model.Record{}, err
	}
	date, err := model.ParseDate(raw)
	if err != nil {
		return model.Record{}, err
	}

	ticker, err := field(ColTicker)
	if err != nil {
		return model.Record{}, err
	}
	rec := model.Record{Date: date, Ticker: ticker}
	prices := []struct {
		col string
		dst *decimal.Decimal
	}{
		{ColOpen, &rec.Open},
		{ColHigh, &rec.High},
		{ColLow, &rec.Low},
		{ColClose, &rec.Close},
	}
	for _, p := range prices {
		raw, err := field(p.col)
		if err != nil {
			return model.Record{}, err
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return model.Record{}, fmt.Errorf("parse %s: %w", p.col, err)
		}
		*p.dst = v
	}

	raw, err = field(ColVolume)
	if err != nil {
		return model.Record{}, err
	}
	rec.Volume, err = parseVolume(raw)
	if err != nil {
		return model.Record{}, err
	}

	if err := rec.Validate(); err != nil {
		return model.Record{}, err
	}
	return rec, nil
}

// parseVolume accepts integers and integral decimals such as "1200.0".
func parseVolume(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", ColVolume, err)
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("parse %s: %q is not an integer", ColVolume, s)
	}
	return d.IntPart(), nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

var (
	_ Reader   = (*CSVStore)(nil)
	_ Appender = (*CSVStore)(nil)
)
