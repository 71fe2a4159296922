package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"backoffice/internal/service/reservation/application"
	"backoffice/internal/service/reservation/domain"
	"backoffice/internal/service/reservation/infrastructure/memory"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMux(t *testing.T, opts ...application.Option) (*http.ServeMux, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	total := int64(10)
	store.Seed(domain.LedgerEntry{Kind: domain.KindStock, ResourceID: "var-1", Capacity: &total})
	store.Seed(domain.LedgerEntry{Kind: domain.KindVoucher, ResourceID: "FREESHIP"})

	m := application.NewManager(store, store,
		[]domain.Ledger{store.Ledger(domain.KindStock), store.Ledger(domain.KindVoucher)}, opts...)
	mux := http.NewServeMux()
	NewReservationHandler(m).RegisterRoutes(mux)
	return mux, store
}

func do(t *testing.T, mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestReserveConfirmOverHTTP(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := do(t, mux, http.MethodPost, "/reservations/reserve", `{"orderId":"A","kind":"STOCK","resourceId":"var-1","quantity":6}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var view ReservationView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, domain.StatusReserved, view.Status)
	assert.NotNil(t, view.ExpiresAt)

	rec = do(t, mux, http.MethodPost, "/reservations/reserve", `{"orderId":"B","kind":"STOCK","resourceId":"var-1","quantity":5}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, mux, http.MethodPost, "/reservations/confirm", `{"orderId":"A"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, mux, http.MethodGet, "/ledger/availability?kind=STOCK&id=var-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ledger LedgerView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ledger))
	assert.Equal(t, int64(6), ledger.Committed)
	require.NotNil(t, ledger.Available)
	assert.Equal(t, int64(4), *ledger.Available)

	rec = do(t, mux, http.MethodGet, "/reservations?order_id=A&status=CONFIRMED", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []ReservationView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	assert.Len(t, rows, 1)
}

func TestErrorMapping(t *testing.T) {
	mux, _ := newTestMux(t)

	cases := []struct {
		name, method, target, body string
		want                       int
	}{
		{"missing resource", http.MethodPost, "/reservations/reserve", `{"orderId":"A","kind":"STOCK","resourceId":"nope","quantity":1}`, http.StatusNotFound},
		{"zero quantity", http.MethodPost, "/reservations/reserve", `{"orderId":"A","kind":"STOCK","resourceId":"var-1","quantity":0}`, http.StatusBadRequest},
		{"bad kind", http.MethodGet, "/ledger/availability?kind=GIFT&id=x", "", http.StatusBadRequest},
		{"bad status", http.MethodGet, "/reservations?order_id=A&status=LOST", "", http.StatusBadRequest},
		{"missing order", http.MethodPost, "/reservations/release", `{}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/ledger/increment", `{`, http.StatusBadRequest},
		{"release unknown order", http.MethodPost, "/reservations/release", `{"orderId":"ghost"}`, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, mux, tc.method, tc.target, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}

	assert.Equal(t, http.StatusServiceUnavailable, StatusOf(errors.Wrap(domain.ErrOptimisticConflict, "x")))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("disk full")))
}

func TestIncrementAndUnboundedVoucher(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := do(t, mux, http.MethodPost, "/ledger/increment", `{"kind":"STOCK","resourceId":"var-1","quantity":5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ledger LedgerView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ledger))
	assert.Equal(t, int64(15), *ledger.Capacity)

	rec = do(t, mux, http.MethodGet, "/ledger/availability?kind=VOUCHER&id=FREESHIP", "")
	require.Equal(t, http.StatusOK, rec.Code)
	ledger = LedgerView{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ledger))
	assert.Nil(t, ledger.Capacity)
	assert.Nil(t, ledger.Available)
}

func TestOverflowingQuantitiesAreRejected(t *testing.T) {
	mux, store := newTestMux(t)

	rec := do(t, mux, http.MethodPost, "/ledger/increment", `{"kind":"STOCK","resourceId":"var-1","quantity":9223372036854775807}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = do(t, mux, http.MethodPost, "/reservations/reserve", `{"orderId":"A","kind":"VOUCHER","resourceId":"FREESHIP","quantity":9223372036854775807}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = do(t, mux, http.MethodPost, "/reservations/reserve", `{"orderId":"B","kind":"VOUCHER","resourceId":"FREESHIP","quantity":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	e, err := store.Ledger(domain.KindStock).Load(context.Background(), "var-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), *e.Capacity)
	v, err := store.Ledger(domain.KindVoucher).Load(context.Background(), "FREESHIP")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, v.Reserved, int64(0))
}

func TestFeedHubStreamsEventsForOrder(t *testing.T) {
	hub := NewFeedHub()
	mux, _ := newTestMux(t, application.WithPublisher(hub))
	mux.Handle("/ws/reservations", hub)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/reservations?order_id=A"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	resp, err := http.Post(srv.URL+"/reservations/reserve", "application/json",
		strings.NewReader(`{"orderId":"B","kind":"STOCK","resourceId":"var-1","quantity":1}`))
	require.NoError(t, err)
	resp.Body.Close()
	resp, err = http.Post(srv.URL+"/reservations/reserve", "application/json",
		strings.NewReader(`{"orderId":"A","kind":"STOCK","resourceId":"var-1","quantity":2}`))
	require.NoError(t, err)
	resp.Body.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var evt domain.ReservationEvent
	require.NoError(t, json.Unmarshal(msg, &evt))
	assert.Equal(t, "A", evt.OrderID)
	assert.Equal(t, domain.EventReserved, evt.Type)
	assert.Equal(t, int64(2), evt.Quantity)
}

func TestFeedHubWithoutSubscribers(t *testing.T) {
	hub := NewFeedHub()
	assert.NoError(t, hub.Publish(context.Background(), domain.ReservationEvent{OrderID: "A"}))
}
