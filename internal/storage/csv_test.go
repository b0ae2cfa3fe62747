package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bist-tracker/internal/model"
)

func TestLoadMissingStore(t *testing.T) {
	store := NewCSVStore(filepath.Join(t.TempDir(), "gunluk_veriler.csv"))
	snap, err := store.Load(context.Background())
	if !errors.Is(err, ErrStoreMissing) {
		t.Fatalf("expected ErrStoreMissing, got %v", err)
	}
	if snap.Exists || !snap.NeedsHeader() {
		t.Fatalf("missing store must need a header: %+v", snap)
	}
}

func TestLoadEmptyAndHeaderOnly(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.csv")
	writeFile(t, empty, "")
	snap, err := NewCSVStore(empty).Load(context.Background())
	if err != nil {
		t.Fatalf("zero-length store should load: %v", err)
	}
	if !snap.Exists || !snap.Empty() || !snap.NeedsHeader() {
		t.Fatalf("unexpected snapshot for empty file: %+v", snap)
	}

	headerOnly := filepath.Join(dir, "header.csv")
	writeFile(t, headerOnly, "Date,Hisse Kodu,Open,High,Low,Close,Volume\n")
	snap, err = NewCSVStore(headerOnly).Load(context.Background())
	if err != nil {
		t.Fatalf("header-only store should load: %v", err)
	}
	if !snap.Empty() || snap.NeedsHeader() {
		t.Fatalf("header-only store must not need another header: %+v", snap)
	}
}

func TestAppendThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "gunluk_veriler.csv")
	store := NewCSVStore(path)
	ctx := context.Background()

	first := []model.Record{
		sampleRecord("THYAO.IS", model.NewDate(2024, time.March, 4), "285.75", 1200),
		sampleRecord("GARAN.IS", model.NewDate(2024, time.March, 4), "96.1", 3400),
	}
	if err := store.Append(ctx, first, Layout{Columns: Header, WriteHeader: true}); err != nil {
		t.Fatalf("first append: %v", err)
	}
	second := []model.Record{sampleRecord("THYAO.IS", model.NewDate(2024, time.March, 5), "290", 10)}
	if err := store.Append(ctx, second, Layout{Columns: Header}); err != nil {
		t.Fatalf("second append: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "Date,Hisse Kodu,Open,High,Low,Close,Volume\n" +
		"2024-03-04,THYAO.IS,285.75,285.75,285.75,285.75,1200\n" +
		"2024-03-04,GARAN.IS,96.1,96.1,96.1,96.1,3400\n" +
		"2024-03-05,THYAO.IS,290,290,290,290,10\n"
	if string(raw) != want {
		t.Fatalf("unexpected file content:\n%s", raw)
	}

	snap, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(snap.Records))
	}
	if !snap.Records[0].Close.Equal(decimal.RequireFromString("285.75")) {
		t.Fatalf("close not preserved: %s", snap.Records[0].Close)
	}
}

func TestAppendNothingLeavesFileAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "none.csv")
	if err := NewCSVStore(path).Append(context.Background(), nil, Layout{WriteHeader: true}); err != nil {
		t.Fatalf("empty append: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("empty append must not create the file, stat err=%v", err)
	}
}

func TestLoadUnreadable(t *testing.T) {
	cases := map[string]string{
		"bad header":   "when,what\n2024-01-01,x\n",
		"bad price":    "Date,Hisse Kodu,Open,High,Low,Close,Volume\n2024-01-01,A,abc,1,1,1,1\n",
		"bad date":     "Date,Hisse Kodu,Open,High,Low,Close,Volume\n01/01/2024,A,1,1,1,1,1\n",
		"short row":    "Date,Hisse Kodu,Open,High,Low,Close,Volume\n2024-01-01,A,1,1\n",
		"fractional v": "Date,Hisse Kodu,Open,High,Low,Close,Volume\n2024-01-01,A,1,1,1,1,1.5\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "store.csv")
			writeFile(t, path, content)
			snap, err := NewCSVStore(path).Load(context.Background())
			if !errors.Is(err, ErrStoreUnreadable) {
				t.Fatalf("expected ErrStoreUnreadable, got %v", err)
			}
			if !snap.Exists {
				t.Fatal("unreadable store still exists")
			}
		})
	}
}

func TestLoadToleratesExtraColumnsAndFloatVolume(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.csv")
	writeFile(t, path, "Date,Hisse Kodu,Open,High,Low,Close,Volume,Dividends\n2024-01-02 00:00:00+03:00,A,1,2,0.5,1.5,1200.0,0\n")
	snap, err := NewCSVStore(path).Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Records) != 1 || snap.Records[0].Volume != 1200 {
		t.Fatalf("unexpected records %+v", snap.Records)
	}
}

func TestAppendFollowsExistingLayout(t *testing.T) {
	cases := []struct {
		name string
		seed string
		want string
	}{
		{
			name: "extra column",
			seed: "Date,Hisse Kodu,Open,High,Low,Close,Volume,Dividends\n2024-03-01,A.IS,1,1,1,1,5,0\n",
			want: "2024-03-04,A.IS,2,2,2,2,7,\n",
		},
		{
			name: "reordered columns",
			seed: "Hisse Kodu,Date,Volume,Close,Low,High,Open\nA.IS,2024-03-01,5,1,1,1,1\n",
			want: "A.IS,2024-03-04,7,2,2,2,2\n",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "store.csv")
			writeFile(t, path, tc.seed)
			store := NewCSVStore(path)
			ctx := context.Background()

			snap, err := store.Load(ctx)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if snap.NeedsHeader() {
				t.Fatal("store with a header must not need another")
			}
			rec := sampleRecord("A.IS", model.NewDate(2024, time.March, 4), "2", 7)
			if err := store.Append(ctx, []model.Record{rec}, snap.Layout()); err != nil {
				t.Fatalf("append: %v", err)
			}

			raw, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if string(raw) != tc.seed+tc.want {
				t.Fatalf("unexpected file content:\n%s", raw)
			}

			snap, err = store.Load(ctx)
			if err != nil {
				t.Fatalf("reload: %v", err)
			}
			if len(snap.Records) != 2 || snap.Records[1].Volume != 7 || !snap.Records[1].Close.Equal(decimal.NewFromInt(2)) {
				t.Fatalf("unexpected records after append %+v", snap.Records)
			}
		})
	}
}

func TestBlankStoreGetsHeader(t *testing.T) {
	for name, content := range map[string]string{"newline": "\n", "whitespace": "  \n\n"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "store.csv")
			writeFile(t, path, content)
			store := NewCSVStore(path)
			ctx := context.Background()

			snap, err := store.Load(ctx)
			if err != nil {
				t.Fatalf("blank store should load: %v", err)
			}
			if !snap.Empty() || !snap.NeedsHeader() {
				t.Fatalf("blank store must be empty and need a header: %+v", snap)
			}
			rec := sampleRecord("A.IS", model.NewDate(2024, time.March, 4), "2", 7)
			if err := store.Append(ctx, []model.Record{rec}, snap.Layout()); err != nil {
				t.Fatalf("append: %v", err)
			}

			snap, err = store.Load(ctx)
			if err != nil {
				t.Fatalf("reload: %v", err)
			}
			if len(snap.Records) != 1 || snap.NeedsHeader() {
				t.Fatalf("unexpected snapshot after append %+v", snap)
			}
		})
	}
}

func TestMirrorNotConfigured(t *testing.T) {
	var m *Mirror
	if _, err := m.MirrorRecords(context.Background(), []model.Record{{}}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, _, err := m.TryAdvisoryLock(context.Background(), 1); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func sampleRecord(ticker string, date model.Date, price string, volume int64) model.Record {
	p := decimal.RequireFromString(price)
	return model.Record{Date: date, Ticker: ticker, Open: p, High: p, Low: p, Close: p, Volume: volume}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
