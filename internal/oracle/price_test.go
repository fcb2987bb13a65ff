package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOracle(t *testing.T, handler http.HandlerFunc) *HTTPOracle {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	// 不挂 redis, 走直连路径
	return NewHTTPOracle(Config{BaseURL: srv.URL}, nil)
}

func TestHTTPOracle_GetUnitPrice(t *testing.T) {
	o := newOracle(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ETH", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"price": "2456.78"}`))
	})

	price, err := o.GetUnitPrice(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, "2456.78", price.String())
}

func TestHTTPOracle_ServerErrorIsUnavailable(t *testing.T) {
	o := newOracle(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := o.GetUnitPrice(context.Background(), "ETH")
	require.Error(t, err)
	// 调用方根据 ErrUnavailable 判断能否重试, 包装必须保留哨兵
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPOracle_NonPositivePriceIsUnavailable(t *testing.T) {
	o := newOracle(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"price": "0"}`))
	})

	_, err := o.GetUnitPrice(context.Background(), "ETH")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPOracle_BadBodyIsUnavailable(t *testing.T) {
	o := newOracle(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})

	_, err := o.GetUnitPrice(context.Background(), "ETH")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPOracle_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits int32
	o := newOracle(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := o.GetUnitPrice(ctx, "ETH")
		assert.ErrorIs(t, err, ErrUnavailable)
	}
	before := atomic.LoadInt32(&hits)

	// 连续失败后熔断器打开, 后续请求直接被挡住, 不再打到行情源
	_, err := o.GetUnitPrice(ctx, "ETH")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, before, atomic.LoadInt32(&hits))
}
