package staging

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE staging_requests (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			tour_id TEXT NOT NULL,
			scene_id TEXT NOT NULL,
			style TEXT NOT NULL,
			room_type TEXT NOT NULL,
			remove_existing INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			staged_image_url TEXT,
			error_message TEXT,
			requested_at TEXT NOT NULL,
			completed_at TEXT,
			duration_ms INTEGER
		) STRICT;`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteRepository_RequestLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupTestDB(t))

	req := &Request{
		ID:             "r1",
		SessionID:      "s1",
		TourID:         "t1",
		SceneID:        "kitchen",
		Style:          StyleModern,
		RoomType:       RoomKitchen,
		RemoveExisting: true,
		Status:         RequestPending,
		RequestedAt:    time.Now().UTC(),
	}
	if err := repo.CreateRequest(ctx, req); err != nil {
		t.Fatalf("CreateRequest() error = %v", err)
	}

	done := time.Now().UTC()
	ms := 1234
	url := "https://staged/k.jpg"
	req.Status = RequestSucceeded
	req.CompletedAt = &done
	req.DurationMS = &ms
	req.StagedImageURL = &url
	if err := repo.UpdateRequest(ctx, req); err != nil {
		t.Fatalf("UpdateRequest() error = %v", err)
	}

	got, err := repo.GetRequest(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRequest() error = %v", err)
	}
	if got.Status != RequestSucceeded || !got.RemoveExisting || got.StagedImageURL == nil || *got.StagedImageURL != url {
		t.Errorf("request = %+v", got)
	}
	if got.DurationMS == nil || *got.DurationMS != 1234 || got.CompletedAt == nil {
		t.Errorf("completion fields = %v %v", got.DurationMS, got.CompletedAt)
	}

	if _, err := repo.GetRequest(ctx, "missing"); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("GetRequest(missing) error = %v", err)
	}
	if err := repo.UpdateRequest(ctx, &Request{ID: "missing"}); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("UpdateRequest(missing) error = %v", err)
	}
}

func TestManager_RecordsHistory(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupTestDB(t))

	gen := &stubGenerator{url: "https://staged/1.jpg"}
	m := NewManager(gen, Owner{SessionID: "s1", TourID: "t1"})
	m.SetRepository(repo)

	scene := kitchen()
	if _, err := m.RequestStaging(ctx, scene, opts(StyleModern)); err != nil {
		t.Fatal(err)
	}
	gen.url, gen.err = "", errors.New("quota")
	_, _ = m.RequestStaging(ctx, scene, opts(StyleLuxury))

	history, err := m.History(ctx, scene.ID, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history = %d entries, want 2", len(history))
	}

	byStatus := map[RequestStatus]Request{}
	for _, h := range history {
		byStatus[h.Status] = h
	}
	if ok, found := byStatus[RequestSucceeded]; !found || ok.StagedImageURL == nil {
		t.Errorf("missing succeeded record: %+v", history)
	}
	if failed, found := byStatus[RequestFailed]; !found || failed.ErrorMessage == nil || *failed.ErrorMessage != "quota" {
		t.Errorf("missing failed record: %+v", history)
	}
}
