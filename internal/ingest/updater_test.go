package ingest

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bist-tracker/internal/alerting"
	"bist-tracker/internal/fetcher"
	"bist-tracker/internal/model"
	"bist-tracker/internal/storage"
)

type fakeSource struct {
	bars  map[string][]fetcher.Bar
	fail  map[string]error
	calls []string
}

func (f *fakeSource) FetchDaily(ctx context.Context, ticker string, window fetcher.Window) ([]fetcher.Bar, error) {
	f.calls = append(f.calls, ticker)
	if err := f.fail[ticker]; err != nil {
		return nil, err
	}
	return f.bars[ticker], nil
}

type fakeMirror struct {
	batches [][]model.Record
}

func (m *fakeMirror) MirrorRecords(ctx context.Context, records []model.Record) (int64, error) {
	m.batches = append(m.batches, records)
	return int64(len(records)), nil
}

type lockingMirror struct {
	fakeMirror
	acquired bool
	released bool
}

func (m *lockingMirror) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	if !m.acquired {
		return nil, false, nil
	}
	return func() { m.released = true }, true, nil
}

type fakeNotifier struct {
	notes []alerting.Notification
}

func (n *fakeNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	n.notes = append(n.notes, note)
	return nil
}

type brokenStore struct {
	storage.Reader
}

func (b brokenStore) Append(ctx context.Context, records []model.Record, layout storage.Layout) error {
	return errors.New("disk full")
}

var (
	_ fetcher.DailyFetcher   = (*fakeSource)(nil)
	_ storage.RecordMirror   = (*fakeMirror)(nil)
	_ storage.AdvisoryLocker = (*lockingMirror)(nil)
	_ alerting.Notifier      = (*fakeNotifier)(nil)
	_ Store                  = brokenStore{}
)

var day = model.NewDate(2024, time.March, 4)

func bar(d model.Date, closePrice string) fetcher.Bar {
	c := decimal.RequireFromString(closePrice)
	return fetcher.Bar{Date: d, Open: c, High: c, Low: c, Close: c, Volume: 100}
}

func newUpdater(t *testing.T, path string, src fetcher.DailyFetcher, tickers ...string) *Updater {
	t.Helper()
	return New(Options{Tickers: tickers, Window: fetcher.Window10Days}, storage.NewCSVStore(path), src, nil, nil, zerolog.Nop())
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestFirstRunCreatesStoreWithHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gunluk_veriler.csv")
	src := &fakeSource{bars: map[string][]fetcher.Bar{
		"THYAO.IS": {bar(day, "285.75"), bar(day.AddDays(1), "290")},
		"GARAN.IS": {bar(day, "96.1")},
	}}

	report, err := newUpdater(t, path, src, "THYAO.IS", "GARAN.IS").Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Appended != 3 || !report.HeaderWritten {
		t.Fatalf("unexpected report %+v", report)
	}

	want := "Date,Hisse Kodu,Open,High,Low,Close,Volume\n" +
		"2024-03-04,THYAO.IS,285.75,285.75,285.75,285.75,100\n" +
		"2024-03-05,THYAO.IS,290,290,290,290,100\n" +
		"2024-03-04,GARAN.IS,96.1,96.1,96.1,96.1,100\n"
	if got := string(readFile(t, path)); got != want {
		t.Fatalf("unexpected store:\n%s", got)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.csv")
	src := &fakeSource{bars: map[string][]fetcher.Bar{
		"THYAO.IS": {bar(day, "285.75"), bar(day.AddDays(1), "290")},
		"GARAN.IS": {bar(day, "96.1")},
	}}
	u := newUpdater(t, path, src, "THYAO.IS", "GARAN.IS")

	if _, err := u.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	before := readFile(t, path)
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	report, err := u.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.Appended != 0 {
		t.Fatalf("second run should append nothing, got %d", report.Appended)
	}
	if !bytes.Equal(before, readFile(t, path)) {
		t.Fatal("store changed on second run")
	}
	after, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if !after.ModTime().Equal(info.ModTime()) {
		t.Fatal("store modification time changed without new rows")
	}
	for _, o := range report.Outcomes {
		if o.Duplicates != o.Fetched {
			t.Fatalf("every row should be a duplicate: %+v", o)
		}
	}
}

func TestRepeatedRunsKeepForeignLayoutReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.csv")
	seed := "Date,Hisse Kodu,Open,High,Low,Close,Volume,Dividends\n" +
		"2024-03-01,A.IS,1,1,1,1,5,0\n"
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}
	src := &fakeSource{bars: map[string][]fetcher.Bar{"A.IS": {bar(day, "2")}}}
	u := newUpdater(t, path, src, "A.IS")

	first, err := u.Run(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Appended != 1 || first.HeaderWritten || first.StoreUnreadable {
		t.Fatalf("unexpected first report %+v", first)
	}

	second, err := u.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Appended != 0 || second.StoreUnreadable {
		t.Fatalf("second run must find every key already stored: %+v", second)
	}
}

func TestKeysStayUniqueAcrossOverlappingWindows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.csv")
	src := &fakeSource{bars: map[string][]fetcher.Bar{
		"A.IS": {bar(day, "1"), bar(day, "1.1"), bar(day.AddDays(1), "2")},
	}}
	u := newUpdater(t, path, src, "A.IS")
	if _, err := u.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	src.bars["A.IS"] = []fetcher.Bar{bar(day.AddDays(1), "2"), bar(day.AddDays(2), "3")}
	report, err := u.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Appended != 1 || report.HeaderWritten {
		t.Fatalf("only the new day should be appended without header: %+v", report)
	}

	snap, err := storage.NewCSVStore(path).Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[model.Key]bool)
	for _, r := range snap.Records {
		if seen[r.Key()] {
			t.Fatalf("duplicate key %s", r.Key())
		}
		seen[r.Key()] = true
	}
	if len(snap.Records) != 3 {
		t.Fatalf("expected 3 unique rows, got %d", len(snap.Records))
	}
}

func TestPartialFailureIsolation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.csv")
	src := &fakeSource{
		bars: map[string][]fetcher.Bar{
			"A.IS": {bar(day, "1")},
			"C.IS": {bar(day, "3")},
		},
		fail: map[string]error{"B.IS": errors.New("connection reset")},
	}
	notifier := &fakeNotifier{}
	u := New(Options{Tickers: []string{"A.IS", "B.IS", "C.IS", "D.IS"}, Window: fetcher.Window1Day},
		storage.NewCSVStore(path), src, nil, notifier, zerolog.Nop())

	report, err := u.Run(context.Background())
	if err != nil {
		t.Fatalf("a failing ticker must not abort the run: %v", err)
	}
	if len(src.calls) != 4 {
		t.Fatalf("every ticker should be fetched, got %v", src.calls)
	}
	if report.Appended != 2 {
		t.Fatalf("expected rows for A and C, got %d", report.Appended)
	}
	if failed := report.Failed(); len(failed) != 1 || failed[0] != "B.IS" {
		t.Fatalf("unexpected failed list %v", failed)
	}
	if noData := report.NoData(); len(noData) != 1 || noData[0] != "D.IS" {
		t.Fatalf("unexpected no-data list %v", noData)
	}

	snap, err := storage.NewCSVStore(path).Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range snap.Records {
		if r.Ticker == "B.IS" {
			t.Fatal("failed ticker must contribute no rows")
		}
	}
	if len(notifier.notes) != 1 || notifier.notes[0].Appended != 2 {
		t.Fatalf("run report not delivered: %+v", notifier.notes)
	}
}

func TestNoWriteWhenSourceEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.csv")
	src := &fakeSource{bars: map[string][]fetcher.Bar{}}

	report, err := newUpdater(t, path, src, "A.IS").Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Appended != 0 {
		t.Fatalf("nothing to append, got %d", report.Appended)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("store must not be created when nothing was fetched")
	}
}

func TestUnreadableStoreProceedsWithoutKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.csv")
	if err := os.WriteFile(path, []byte("garbage\n\"unterminated\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	src := &fakeSource{bars: map[string][]fetcher.Bar{"A.IS": {bar(day, "1")}}}

	report, err := newUpdater(t, path, src, "A.IS").Run(context.Background())
	if err != nil {
		t.Fatalf("unreadable store must not abort: %v", err)
	}
	if !report.StoreUnreadable || report.Appended != 1 || report.HeaderWritten {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestWriteFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.csv")
	src := &fakeSource{bars: map[string][]fetcher.Bar{"A.IS": {bar(day, "1")}}}
	notifier := &fakeNotifier{}
	u := New(Options{Tickers: []string{"A.IS"}, Window: fetcher.Window10Days},
		brokenStore{Reader: storage.NewCSVStore(path)}, src, nil, notifier, zerolog.Nop())

	report, err := u.Run(context.Background())
	if !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("expected ErrWriteFailed, got %v", err)
	}
	if report.Appended != 0 {
		t.Fatal("failed write must not count rows")
	}
	if len(notifier.notes) != 1 || notifier.notes[0].Error == "" {
		t.Fatalf("write failure should be reported: %+v", notifier.notes)
	}
}

func TestRejectsInvalidRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.csv")
	bad := bar(day, "1")
	bad.Low = decimal.NewFromInt(-1)
	src := &fakeSource{bars: map[string][]fetcher.Bar{"A.IS": {bad, bar(day.AddDays(1), "2")}}}

	report, err := newUpdater(t, path, src, "A.IS").Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Appended != 1 || report.Outcomes[0].Rejected != 1 {
		t.Fatalf("negative price should be rejected: %+v", report)
	}
}

func TestMirrorAndLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.csv")
	src := &fakeSource{bars: map[string][]fetcher.Bar{"A.IS": {bar(day, "1")}}}

	held := &lockingMirror{acquired: false}
	u := New(Options{Tickers: []string{"A.IS"}, Window: fetcher.Window10Days, LockKey: 7},
		storage.NewCSVStore(path), src, held, nil, zerolog.Nop())
	report, err := u.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !report.Skipped || len(src.calls) != 0 {
		t.Fatalf("run should be skipped while the lock is held elsewhere: %+v", report)
	}

	free := &lockingMirror{acquired: true}
	u = New(Options{Tickers: []string{"A.IS"}, Window: fetcher.Window10Days, LockKey: 7},
		storage.NewCSVStore(path), src, free, nil, zerolog.Nop())
	if _, err := u.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !free.released {
		t.Fatal("lock should be released after the run")
	}
	if len(free.batches) != 1 || len(free.batches[0]) != 1 {
		t.Fatalf("appended batch should be mirrored: %+v", free.batches)
	}
}

func TestDryRunLeavesStoreUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.csv")
	src := &fakeSource{bars: map[string][]fetcher.Bar{"A.IS": {bar(day, "1"), bar(day.AddDays(1), "2")}}}
	notifier := &fakeNotifier{}
	u := New(Options{Tickers: []string{"A.IS"}, Window: fetcher.Window2Months, DryRun: true},
		storage.NewCSVStore(path), src, nil, notifier, zerolog.Nop())

	report, err := u.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Pending != 2 || report.Appended != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("dry run must not create the store")
	}
	if len(notifier.notes) != 0 {
		t.Fatal("dry run must not notify")
	}
}
