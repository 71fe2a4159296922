package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"backoffice/internal/pkg/redis"
	"backoffice/internal/service/order/application"
	"backoffice/internal/service/order/domain"
	"backoffice/internal/service/order/infrastructure"
	"backoffice/internal/service/order/infrastructure/adapter"
	resapp "backoffice/internal/service/reservation/application"
	resdomain "backoffice/internal/service/reservation/domain"
	"backoffice/internal/service/reservation/infrastructure/memory"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrderMux(t *testing.T) *http.ServeMux {
	t.Helper()
	store := memory.NewStore()
	stock := int64(3)
	store.Seed(resdomain.LedgerEntry{Kind: resdomain.KindStock, ResourceID: "var-1", Capacity: &stock})
	m := resapp.NewManager(store, store, []resdomain.Ledger{store.Ledger(resdomain.KindStock), store.Ledger(resdomain.KindVoucher)})

	mr := miniredis.RunT(t)
	client := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = client.Close() })

	svc := application.NewOrderApplicationService(infrastructure.NewMemoryRepository(), adapter.NewReservationManagerAdapter(m), time.Second)
	mux := http.NewServeMux()
	NewOrderHandler(svc, adapter.NewIdempotencyRedisAdapter(client), time.Hour).RegisterRoutes(mux)
	return mux
}

func post(mux http.Handler, target, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestCheckoutAndConfirmOverHTTP(t *testing.T) {
	mux := newOrderMux(t)

	rec := post(mux, "/checkout", `{"userId":"u-1","paymentMethod":"ONLINE","lines":[{"variationId":"var-1","quantity":2}]}`, idempotencyHeader, "k-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp application.CheckoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.StatePendingPayment, resp.Status)

	rec = post(mux, "/checkout", `{"userId":"u-1","paymentMethod":"ONLINE","lines":[{"variationId":"var-1","quantity":2}]}`, idempotencyHeader, "k-1")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = post(mux, "/orders/confirm", `{"orderId":"`+resp.OrderID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var view application.OrderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, domain.StatePaid, view.Status)

	req := httptest.NewRequest(http.MethodGet, "/orders/"+resp.OrderID, nil)
	get := httptest.NewRecorder()
	mux.ServeHTTP(get, req)
	assert.Equal(t, http.StatusOK, get.Code)

	rec = post(mux, "/orders/cancel", `{"orderId":"`+resp.OrderID+`"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCheckoutFailuresReleaseIdempotencyKey(t *testing.T) {
	mux := newOrderMux(t)

	body := `{"userId":"u-1","lines":[{"variationId":"var-1","quantity":5}]}`
	rec := post(mux, "/checkout", body, idempotencyHeader, "k-2")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "out of stock")

	// 失败的请求可以用同一个键重试
	rec = post(mux, "/checkout", `{"userId":"u-1","lines":[{"variationId":"var-1","quantity":1}]}`, idempotencyHeader, "k-2")
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = post(mux, "/checkout", `{"userId":"","lines":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(mux, "/orders/confirm", `{"orderId":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type dltReader struct {
	msgs []kafka.Message
	done int
}

func (r *dltReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if r.done < len(r.msgs) {
		m := r.msgs[r.done]
		r.done++
		return m, nil
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *dltReader) CommitMessages(context.Context, ...kafka.Message) error { return nil }
func (r *dltReader) Close() error                                          { return nil }

func TestDltConsumerDrainsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	r := &dltReader{msgs: []kafka.Message{{Key: []byte("o-1"), Value: []byte("{}")}}}
	assert.NoError(t, NewDltConsumerAdapter(r, "payment-events.DLT").Run(ctx))
	assert.Equal(t, 1, r.done)
}
