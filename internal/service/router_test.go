package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"scalper_go/internal/domain"
	"scalper_go/internal/engine"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct{ up bool }

func (f *fakeStream) Connect(_ context.Context) error { return nil }
func (f *fakeStream) Disconnect()                     {}
func (f *fakeStream) IsConnected() bool               { return f.up }

type fakeJournal struct {
	entries []domain.JournalEntry
}

func (f *fakeJournal) Recent(kind string, limit int) ([]domain.JournalEntry, error) {
	var out []domain.JournalEntry
	for _, e := range f.entries {
		if kind == "" || e.Kind == kind {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeJournal) ByClientID(id string) ([]domain.JournalEntry, error) {
	var out []domain.JournalEntry
	for _, e := range f.entries {
		if e.ClientOrderID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRouter_Status(t *testing.T) {
	status := NewStatusService()
	r := NewRouter(Deps{Status: status})

	rec := get(t, r, "/status")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "no snapshot yet")

	status.Update(engine.Snapshot{
		Symbol:   "BTCUSDT",
		Tick:     decimal.RequireFromString("100.5"),
		Channel:  domain.Channel{Lower: decimal.RequireFromString("97.99"), Upper: decimal.RequireFromString("101.96")},
		Window:   5,
		EnterBuy: true,
		Ticks:    12,
	})

	rec = get(t, r, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "BTCUSDT", body["symbol"])
	assert.Equal(t, "100.5", body["tick"])
	assert.Equal(t, true, body["enter_buy"])
	assert.Equal(t, float64(5), body["window"])
	assert.Equal(t, "101.96", body["channel"].(map[string]interface{})["upper"])
}

func TestRouter_Health(t *testing.T) {
	trades := &fakeStream{up: true}
	account := &fakeStream{up: true}
	r := NewRouter(Deps{
		Status:  NewStatusService(),
		Streams: map[string]domain.ExchangeWorker{"trades": trades, "account": account},
	})

	rec := get(t, r, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	account.up = false
	rec = get(t, r, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.False(t, body.Streams["account"])
	assert.True(t, body.Streams["trades"])
}

func TestRouter_Journal(t *testing.T) {
	j := &fakeJournal{entries: []domain.JournalEntry{
		{ID: 2, Kind: domain.JournalFill, ClientOrderID: "scalp_aB-1-1"},
		{ID: 1, Kind: domain.JournalSubmit, ClientOrderID: "scalp_aB-1-1"},
	}}
	r := NewRouter(Deps{Journal: j})

	rec := get(t, r, "/journal?kind=fill")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []domain.JournalEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, uint(2), entries[0].ID)

	assert.Equal(t, http.StatusBadRequest, get(t, r, "/journal?limit=x").Code)
	assert.Equal(t, http.StatusOK, get(t, r, "/journal/scalp_aB-1-1").Code)
	assert.Equal(t, http.StatusNotFound, get(t, r, "/journal/unknown").Code)
}

func TestRouter_OptionalRoutes(t *testing.T) {
	r := NewRouter(Deps{Status: NewStatusService()})

	assert.Equal(t, http.StatusNotFound, get(t, r, "/metrics").Code)
	assert.Equal(t, http.StatusNotFound, get(t, r, "/journal").Code)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("ok")) })
	r = NewRouter(Deps{Metrics: metrics})
	rec := get(t, r, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServer_CORS(t *testing.T) {
	srv := NewServer(":0", NewRouter(Deps{Status: NewStatusService()}), []string{"http://dash.local"})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://dash.local")
	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://dash.local", rec.Header().Get("Access-Control-Allow-Origin"))
}
