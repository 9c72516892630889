package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"stakevault/gateway/middleware"
	"stakevault/services/vaultindexerd/archive"
	"stakevault/services/vaultindexerd/models"
)

const apiTestSecret = "api-test-secret"

func openAPIDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "api.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedEvent(t *testing.T, db *gorm.DB, seq uint64, eventType, payload string, emittedAt int64) {
	t.Helper()
	row := models.Event{
		Sequence:  seq,
		Type:      eventType,
		Payload:   payload,
		Digest:    models.EventDigest(seq, eventType, payload, emittedAt),
		EmittedAt: emittedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("seed event %d: %v", seq, err)
	}
}

func seedFixture(t *testing.T, db *gorm.DB) {
	t.Helper()
	base := int64(1_700_000_000)
	seedEvent(t, db, 1, "vault.initialized", `{"collection":"0x01"}`, base)
	seedEvent(t, db, 2, "vault.staked", `{"item":"0x11","user":"0xaa"}`, base+10)
	seedEvent(t, db, 3, "vault.staked", `{"item":"0x22","user":"0xbb"}`, base+20)
	seedEvent(t, db, 4, "vault.rewardsClaimed", `{"amount":"500","user":"0xbb"}`, base+30)

	positions := []models.StakePosition{
		{ID: uuid.New(), Address: "svt1alpha", StakedCount: 1, Items: `["0x11"]`, LastSequence: 2},
		{ID: uuid.New(), Address: "svt1beta", StakedCount: 0, Items: "[]", TotalClaimed: 500, LastSequence: 4},
	}
	for i := range positions {
		if err := db.Create(&positions[i]).Error; err != nil {
			t.Fatalf("seed position: %v", err)
		}
	}
	cp := models.Checkpoint{Name: "events", Value: 4, UpdatedAt: time.Now()}
	if err := db.Create(&cp).Error; err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}
}

func doRequest(t *testing.T, srv *Server, method, target, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func signAPIToken(t *testing.T, scope string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"iss":   "stakevault",
		"aud":   "indexer",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"scope": scope,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(apiTestSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestEventsEndpointPaging(t *testing.T) {
	db := openAPIDB(t)
	seedFixture(t, db)
	srv := New(Config{DB: db})

	rec := doRequest(t, srv, http.MethodGet, "/v1/events?limit=2", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var page eventsResponse
	decodeBody(t, rec, &page)
	if len(page.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(page.Events))
	}
	if page.Events[0].Sequence != 1 || page.Events[1].Sequence != 2 {
		t.Fatalf("unexpected sequences: %+v", page.Events)
	}
	if page.NextCursor != 2 {
		t.Fatalf("expected next cursor 2, got %d", page.NextCursor)
	}
	if page.Events[1].Attributes["user"] != "0xaa" {
		t.Fatalf("expected decoded attributes, got %+v", page.Events[1].Attributes)
	}
	if page.Events[0].Digest == "" {
		t.Fatalf("expected digest to be present")
	}

	rec = doRequest(t, srv, http.MethodGet, "/v1/events?cursor=2&limit=10", "", "")
	decodeBody(t, rec, &page)
	if len(page.Events) != 2 || page.Events[0].Sequence != 3 || page.NextCursor != 4 {
		t.Fatalf("unexpected second page: %+v", page)
	}
}

func TestEventsEndpointTypeFilter(t *testing.T) {
	db := openAPIDB(t)
	seedFixture(t, db)
	srv := New(Config{DB: db})

	rec := doRequest(t, srv, http.MethodGet, "/v1/events?type=vault.staked", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var page eventsResponse
	decodeBody(t, rec, &page)
	if len(page.Events) != 2 {
		t.Fatalf("expected 2 staked events, got %d", len(page.Events))
	}
	for _, evt := range page.Events {
		if evt.Type != "vault.staked" {
			t.Fatalf("unexpected type in filtered page: %s", evt.Type)
		}
	}
}

func TestEventsEndpointRejectsBadParams(t *testing.T) {
	db := openAPIDB(t)
	srv := New(Config{DB: db})

	rec := doRequest(t, srv, http.MethodGet, "/v1/events?cursor=abc", "", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad cursor, got %d", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodGet, "/v1/events?limit=0", "", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero limit, got %d", rec.Code)
	}
}

func TestStakesEndpoints(t *testing.T) {
	db := openAPIDB(t)
	seedFixture(t, db)
	srv := New(Config{DB: db})

	rec := doRequest(t, srv, http.MethodGet, "/v1/stakes", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var active []stakeView
	decodeBody(t, rec, &active)
	if len(active) != 1 {
		t.Fatalf("expected one active position, got %d", len(active))
	}
	if active[0].Address != "svt1alpha" || active[0].StakedCount != 1 {
		t.Fatalf("unexpected active position: %+v", active[0])
	}
	if len(active[0].Items) != 1 || active[0].Items[0] != "0x11" {
		t.Fatalf("unexpected items: %+v", active[0].Items)
	}

	rec = doRequest(t, srv, http.MethodGet, "/v1/stakes/svt1beta", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for unstaked position, got %d", rec.Code)
	}
	var position stakeView
	decodeBody(t, rec, &position)
	if position.StakedCount != 0 || position.TotalClaimed != 500 {
		t.Fatalf("unexpected position: %+v", position)
	}

	rec = doRequest(t, srv, http.MethodGet, "/v1/stakes/svt1nobody", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown address, got %d", rec.Code)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	db := openAPIDB(t)
	seedFixture(t, db)
	srv := New(Config{DB: db})

	rec := doRequest(t, srv, http.MethodGet, "/v1/summary", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var summary summaryResponse
	decodeBody(t, rec, &summary)
	if summary.Events != 4 {
		t.Fatalf("expected 4 events, got %d", summary.Events)
	}
	if summary.LastSequence != 4 {
		t.Fatalf("expected last sequence 4, got %d", summary.LastSequence)
	}
	if summary.ActiveStakers != 1 {
		t.Fatalf("expected 1 active staker, got %d", summary.ActiveStakers)
	}
	if summary.ItemsStaked != 1 {
		t.Fatalf("expected 1 staked item, got %d", summary.ItemsStaked)
	}
	if summary.TotalClaimed != 500 {
		t.Fatalf("expected total claimed 500, got %d", summary.TotalClaimed)
	}
}

type fakeArchiver struct {
	start time.Time
	end   time.Time
	rows  int
	err   error
}

func (f *fakeArchiver) Export(_ context.Context, start, end time.Time) (*archive.Result, error) {
	f.start = start
	f.end = end
	if f.err != nil {
		return nil, f.err
	}
	return &archive.Result{Start: start, End: end, Rows: f.rows, CSVPath: "events.csv", ParquetPath: "events.parquet"}, nil
}

func TestArchiveEndpointRunsExport(t *testing.T) {
	db := openAPIDB(t)
	fake := &fakeArchiver{rows: 7}
	srv := New(Config{DB: db, Archiver: fake})

	body := `{"start":"2026-03-01T00:00:00Z","end":"2026-03-02T00:00:00Z"}`
	rec := doRequest(t, srv, http.MethodPost, "/v1/archive/run", body, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp archiveResponse
	decodeBody(t, rec, &resp)
	if resp.Rows != 7 || resp.CSVPath != "events.csv" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	wantStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !fake.start.Equal(wantStart) || !fake.end.Equal(wantStart.Add(24*time.Hour)) {
		t.Fatalf("unexpected window: %s .. %s", fake.start, fake.end)
	}
}

func TestArchiveEndpointDefaultWindow(t *testing.T) {
	db := openAPIDB(t)
	fake := &fakeArchiver{}
	fixed := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	srv := New(Config{DB: db, Archiver: fake, Now: func() time.Time { return fixed }})

	rec := doRequest(t, srv, http.MethodPost, "/v1/archive/run", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !fake.end.Equal(fixed) || !fake.start.Equal(fixed.Add(-24*time.Hour)) {
		t.Fatalf("unexpected default window: %s .. %s", fake.start, fake.end)
	}
}

func TestArchiveEndpointValidation(t *testing.T) {
	db := openAPIDB(t)
	srv := New(Config{DB: db})
	rec := doRequest(t, srv, http.MethodPost, "/v1/archive/run", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without archiver, got %d", rec.Code)
	}

	srv = New(Config{DB: db, Archiver: &fakeArchiver{}})
	body := `{"start":"2026-03-02T00:00:00Z","end":"2026-03-01T00:00:00Z"}`
	rec = doRequest(t, srv, http.MethodPost, "/v1/archive/run", body, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted window, got %d", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodPost, "/v1/archive/run", `{"end":"not-a-time"}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad timestamp, got %d", rec.Code)
	}
}

func TestAPIAuthEnforcement(t *testing.T) {
	db := openAPIDB(t)
	seedFixture(t, db)
	srv := New(Config{
		DB:       db,
		Archiver: &fakeArchiver{},
		Auth: middleware.AuthConfig{
			Enabled:    true,
			HMACSecret: apiTestSecret,
			Issuer:     "stakevault",
			Audience:   "indexer",
		},
	})

	rec := doRequest(t, srv, http.MethodGet, "/v1/events", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	readToken := signAPIToken(t, "vault.read")
	rec = doRequest(t, srv, http.MethodGet, "/v1/events", "", readToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with read scope, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodPost, "/v1/archive/run", "", readToken)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without archive scope, got %d", rec.Code)
	}

	fullToken := signAPIToken(t, "vault.read vault.archive")
	rec = doRequest(t, srv, http.MethodPost, "/v1/archive/run", "", fullToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with archive scope, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected healthz to stay open, got %d", rec.Code)
	}
}

func TestHealthzEndpoint(t *testing.T) {
	db := openAPIDB(t)
	seedFixture(t, db)
	srv := New(Config{DB: db})

	rec := doRequest(t, srv, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status struct {
		Status       string `json:"status"`
		LastSequence uint64 `json:"lastSequence"`
	}
	decodeBody(t, rec, &status)
	if status.Status != "ok" || status.LastSequence != 4 {
		t.Fatalf("unexpected health payload: %+v", status)
	}
}
