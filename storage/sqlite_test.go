package storage

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"databd/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testListing(id string, price float64) models.Listing {
	l := models.NewListing(id, "cian")
	l.Price = price
	l.Area = "100 м²"
	l.Description = "Коммерческое помещение в центре"
	l.URL = "https://cian.ru/rent/commercial/" + id
	l.Floor = "1"
	l.Address = "Тверская улица, 1"
	l.Lat = "55.751244"
	l.Lng = "37.618423"
	l.Seller = models.Seller{Phone: "+79991234567", ProfileURL: "https://cian.ru/agent/42"}
	l.Photos = []string{"https://cdn.cian.ru/" + id + "_1.jpg"}
	return l
}

func TestSaveListingIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	l := testListing("100", 150000)
	created, err := store.SaveListing(ctx, &l)
	if err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if !created {
		t.Fatal("first save should create a row")
	}

	created, err = store.SaveListing(ctx, &l)
	if err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	if created {
		t.Fatal("second save should update, not create")
	}

	listings, err := store.GetListings(ctx, 0, 0, ListingFilter{})
	if err != nil {
		t.Fatalf("get listings failed: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("expected 1 row, got %d", len(listings))
	}
	if !reflect.DeepEqual(listings[0], l) {
		t.Fatalf("row content changed after redundant save:\ngot  %+v\nwant %+v", listings[0], l)
	}
}

func TestSaveListingUpsertsByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	l := testListing("100", 150000)
	if _, err := store.SaveListing(ctx, &l); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	l.Price = 180000
	l.Description = "Цена снижена"
	created, err := store.SaveListing(ctx, &l)
	if err != nil {
		t.Fatalf("re-save failed: %v", err)
	}
	if created {
		t.Fatal("re-save should not create a second row")
	}

	got, err := store.GetListingByID(ctx, "100")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Price != 180000 {
		t.Fatalf("expected updated price 180000, got %v", got.Price)
	}
	if got.ID != "100" || got.Source != "cian" {
		t.Fatalf("identity fields changed: %+v", got)
	}

	listings, err := store.GetListings(ctx, 0, 0, ListingFilter{})
	if err != nil {
		t.Fatalf("get listings failed: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("expected 1 row after upsert, got %d", len(listings))
	}
}

func TestSaveListingValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	l := testListing("", 100)
	if _, err := store.SaveListing(ctx, &l); !errors.Is(err, ErrMissingID) {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}

	l = testListing("100", 100)
	l.Source = "  "
	if _, err := store.SaveListing(ctx, &l); !errors.Is(err, ErrMissingSource) {
		t.Fatalf("expected ErrMissingSource, got %v", err)
	}
	if _, err := store.SaveListing(ctx, &l); !errors.Is(err, ErrValidation) {
		t.Fatalf("validation errors should match ErrValidation, got %v", err)
	}

	// Nothing may be written on validation failure.
	if _, err := store.GetListingByID(ctx, "100"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no row after failed validation, got %v", err)
	}
}

func TestSaveListingDefaultsStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	l := testListing("100", 100)
	l.Status = ""
	if _, err := store.SaveListing(ctx, &l); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := store.GetListingByID(ctx, "100")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != models.ListingStatusOpen {
		t.Fatalf("expected default status open, got %s", got.Status)
	}
}

func TestSellerAndPhotosSurviveStorage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	l := testListing("100", 100)
	l.Photos = []string{"https://cdn.cian.ru/a.jpg", "https://cdn.cian.ru/b.jpg"}
	if _, err := store.SaveListing(ctx, &l); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := store.GetListingByID(ctx, "100")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Seller != l.Seller {
		t.Fatalf("seller mismatch: %+v", got.Seller)
	}
	if !reflect.DeepEqual(got.Photos, l.Photos) {
		t.Fatalf("photos mismatch: %v", got.Photos)
	}
}

func TestGetListingByIDNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetListingByID(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sid, err := store.StartSession(ctx, "cian", "test")
	if err != nil {
		t.Fatalf("start session failed: %v", err)
	}
	if sid == "" {
		t.Fatal("expected a session id")
	}

	l := testListing("100", 150000)
	if _, err := store.SaveListing(ctx, &l); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if err := store.FinishSession(ctx, sid, 1, 1); err != nil {
		t.Fatalf("finish session failed: %v", err)
	}

	sess, err := store.GetSession(ctx, sid)
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if sess.TotalParsed != 1 || sess.TotalSaved != 1 {
		t.Fatalf("expected counts 1/1, got %d/%d", sess.TotalParsed, sess.TotalSaved)
	}
	if sess.Status != models.SessionStatusCompleted {
		t.Fatalf("expected status completed, got %s", sess.Status)
	}
	if sess.FinishedAt == nil {
		t.Fatal("expected finished_at to be set")
	}
	if sess.Source != "cian" || sess.Notes != "test" {
		t.Fatalf("unexpected session row: %+v", sess)
	}
}

func TestStartSessionRequiresSource(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.StartSession(context.Background(), "", "notes"); !errors.Is(err, ErrMissingSource) {
		t.Fatalf("expected ErrMissingSource, got %v", err)
	}
}

func TestSessionIDsAreUnique(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, err := store.StartSession(ctx, "cian", "")
	if err != nil {
		t.Fatalf("start session failed: %v", err)
	}
	b, err := store.StartSession(ctx, "cian", "")
	if err != nil {
		t.Fatalf("start session failed: %v", err)
	}
	if a == b {
		t.Fatal("two sessions got the same id")
	}
}

func TestFinishSessionUnknown(t *testing.T) {
	store := newTestStore(t)
	if err := store.FinishSession(context.Background(), "missing", 1, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFinishSessionTwice(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sid, err := store.StartSession(ctx, "cian", "")
	if err != nil {
		t.Fatalf("start session failed: %v", err)
	}
	if err := store.FinishSession(ctx, sid, 5, 5); err != nil {
		t.Fatalf("finish session failed: %v", err)
	}

	err = store.FinishSession(ctx, sid, 99, 99)
	if !errors.Is(err, ErrSessionNotRunning) {
		t.Fatalf("expected ErrSessionNotRunning, got %v", err)
	}

	// The failed finish must not touch the row.
	sess, err := store.GetSession(ctx, sid)
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if sess.TotalParsed != 5 || sess.TotalSaved != 5 {
		t.Fatalf("row mutated by failed finish: %d/%d", sess.TotalParsed, sess.TotalSaved)
	}
}

func TestGetListingsNewestFirstWithPaging(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3"} {
		l := testListing(id, 1000)
		if _, err := store.SaveListing(ctx, &l); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	listings, err := store.GetListings(ctx, 2, 0, ListingFilter{})
	if err != nil {
		t.Fatalf("get listings failed: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(listings))
	}
	if listings[0].ID != "3" || listings[1].ID != "2" {
		t.Fatalf("expected insertion order descending, got %s, %s", listings[0].ID, listings[1].ID)
	}

	listings, err = store.GetListings(ctx, 2, 2, ListingFilter{})
	if err != nil {
		t.Fatalf("get listings failed: %v", err)
	}
	if len(listings) != 1 || listings[0].ID != "1" {
		t.Fatalf("unexpected second page: %+v", listings)
	}
}

func TestGetListingsFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := testListing("1", 1000)
	b := testListing("2", 2000)
	b.Source = "avito"
	c := testListing("3", 3000)
	c.Status = models.ListingStatusClosed
	c.Visible = false

	for _, l := range []*models.Listing{&a, &b, &c} {
		if _, err := store.SaveListing(ctx, l); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	got, err := store.GetListings(ctx, 0, 0, ListingFilter{Source: "avito"})
	if err != nil {
		t.Fatalf("get listings failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("source filter failed: %+v", got)
	}

	got, err = store.GetListings(ctx, 0, 0, ListingFilter{VisibleOnly: true})
	if err != nil {
		t.Fatalf("get listings failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("visible filter failed, got %d rows", len(got))
	}

	got, err = store.GetListings(ctx, 0, 0, ListingFilter{Status: models.ListingStatusClosed})
	if err != nil {
		t.Fatalf("get listings failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "3" {
		t.Fatalf("status filter failed: %+v", got)
	}

	got, err = store.GetListings(ctx, 0, 0, ListingFilter{MinPrice: 1500, MaxPrice: 2500})
	if err != nil {
		t.Fatalf("get listings failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("price filter failed: %+v", got)
	}
}

func TestStatisticsScenario(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for id, price := range map[string]float64{"A": 1000, "B": 2000, "C": 3000} {
		l := testListing(id, price)
		if _, err := store.SaveListing(ctx, &l); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	stats, err := store.GetStatistics(ctx)
	if err != nil {
		t.Fatalf("get statistics failed: %v", err)
	}
	if stats.TotalListings != 3 {
		t.Fatalf("expected count 3, got %d", stats.TotalListings)
	}
	if stats.MinPrice != 1000 || stats.MaxPrice != 3000 {
		t.Fatalf("expected min 1000 / max 3000, got %v / %v", stats.MinPrice, stats.MaxPrice)
	}
	if stats.AvgPrice != 2000 {
		t.Fatalf("expected avg 2000, got %v", stats.AvgPrice)
	}
	if stats.BySource["cian"] != 3 {
		t.Fatalf("expected 3 cian listings, got %d", stats.BySource["cian"])
	}
}

func TestStatisticsIgnoresUnpricedAndCountsVisible(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := testListing("1", 0) // no price yet
	b := testListing("2", 4000)
	b.Visible = false

	for _, l := range []*models.Listing{&a, &b} {
		if _, err := store.SaveListing(ctx, l); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	stats, err := store.GetStatistics(ctx)
	if err != nil {
		t.Fatalf("get statistics failed: %v", err)
	}
	if stats.TotalListings != 2 || stats.VisibleListings != 1 {
		t.Fatalf("expected 2 total / 1 visible, got %d / %d", stats.TotalListings, stats.VisibleListings)
	}
	if stats.MinPrice != 4000 || stats.MaxPrice != 4000 || stats.AvgPrice != 4000 {
		t.Fatalf("zero prices leaked into aggregates: %+v", stats)
	}
}

func TestSoftDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	l := testListing("100", 1000)
	if _, err := store.SaveListing(ctx, &l); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if err := store.MarkListingClosed(ctx, "100"); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := store.SetListingVisible(ctx, "100", false); err != nil {
		t.Fatalf("hide failed: %v", err)
	}

	got, err := store.GetListingByID(ctx, "100")
	if err != nil {
		t.Fatalf("closed listing should still be readable: %v", err)
	}
	if got.Status != models.ListingStatusClosed || got.Visible {
		t.Fatalf("expected closed/hidden, got %+v", got)
	}

	if err := store.MarkListingClosed(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.SetListingVisible(ctx, "missing", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestComputeDailyStatsOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	date := "2026-08-30"

	for id, price := range map[string]float64{"A": 1000, "B": 3000} {
		l := testListing(id, price)
		if _, err := store.SaveListing(ctx, &l); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	if err := store.ComputeDailyStats(ctx, date); err != nil {
		t.Fatalf("first compute failed: %v", err)
	}
	if err := store.ComputeDailyStats(ctx, date); err != nil {
		t.Fatalf("second compute failed: %v", err)
	}

	var rows int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM daily_stats WHERE date = ?`, date).Scan(&rows); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected exactly one row for %s, got %d", date, rows)
	}

	d, err := store.GetDailyStat(ctx, date)
	if err != nil {
		t.Fatalf("get daily stat failed: %v", err)
	}
	if d.TotalListings != 2 || d.MinPrice != 1000 || d.MaxPrice != 3000 || d.AvgPrice != 2000 {
		t.Fatalf("unexpected snapshot: %+v", d)
	}
}

func TestDailyCountsSurviveRecompute(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	date := "2026-08-30"

	if err := store.BumpDailyCounts(ctx, date, 3, 2); err != nil {
		t.Fatalf("bump failed: %v", err)
	}
	if err := store.BumpDailyCounts(ctx, date, 1, 0); err != nil {
		t.Fatalf("bump failed: %v", err)
	}
	if err := store.ComputeDailyStats(ctx, date); err != nil {
		t.Fatalf("compute failed: %v", err)
	}

	d, err := store.GetDailyStat(ctx, date)
	if err != nil {
		t.Fatalf("get daily stat failed: %v", err)
	}
	if d.NewListings != 4 || d.UpdatedListings != 2 {
		t.Fatalf("expected counters 4/2, got %d/%d", d.NewListings, d.UpdatedListings)
	}
}

func TestDailyStatsDateValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.ComputeDailyStats(ctx, "30.08.2026"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
	if _, err := store.GetDailyStat(ctx, "2026-08-30"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for absent date, got %v", err)
	}
}

func TestResetAllData(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	l := testListing("100", 1000)
	if _, err := store.SaveListing(ctx, &l); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := store.StartSession(ctx, "cian", ""); err != nil {
		t.Fatalf("start session failed: %v", err)
	}

	if err := store.ResetAllData(); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	stats, err := store.GetStatistics(ctx)
	if err != nil {
		t.Fatalf("get statistics failed: %v", err)
	}
	if stats.TotalListings != 0 || stats.Sessions.Total != 0 {
		t.Fatalf("expected empty tables, got %+v", stats)
	}
}
