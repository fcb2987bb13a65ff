package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"

	"varlixo.com/pkg/metrics"
)

// ErrUnavailable 行情源暂时拿不到价格。
// 这是瞬时错误: 调用方应该放弃本轮、下个周期重试,
// 绝不能把 "1 个币 = 1 USD" 当成兜底估值。
var ErrUnavailable = errors.New("price oracle unavailable")

// PriceOracle 资产 -> USD 单价
type PriceOracle interface {
	GetUnitPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type Config struct {
	BaseURL  string        // 形如 https://price.internal/v1/price
	Timeout  time.Duration // 单次请求超时
	CacheTTL time.Duration // redis 缓存时长
}

// HTTPOracle 带缓存和熔断的行情客户端。
// 缓存走 cache-aside; singleflight 防止同一 symbol 的 miss 打爆行情源;
// 熔断器挡住行情源持续故障时的无谓请求。
type HTTPOracle struct {
	cfg     Config
	httpCli *http.Client
	rds     *redis.Client // 可为 nil (测试或未配 redis)
	sf      singleflight.Group
	breaker *gobreaker.CircuitBreaker[decimal.Decimal]
}

func NewHTTPOracle(cfg Config, rds *redis.Client) *HTTPOracle {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}

	st := gobreaker.Settings{
		Name:        "price-oracle",
		MaxRequests: 3,                // Half-Open 放行的探测数
		Interval:    30 * time.Second, // Closed 计数窗口
		Timeout:     15 * time.Second, // Open 持续时间
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	}

	return &HTTPOracle{
		cfg:     cfg,
		httpCli: &http.Client{Timeout: cfg.Timeout},
		rds:     rds,
		breaker: gobreaker.NewCircuitBreaker[decimal.Decimal](st),
	}
}

var _ PriceOracle = (*HTTPOracle)(nil)

func cacheKey(symbol string) string {
	return "price:usd:" + symbol
}

func (o *HTTPOracle) GetUnitPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	// 1) 缓存
	if o.rds != nil {
		if raw, err := o.rds.Get(ctx, cacheKey(symbol)).Result(); err == nil {
			if price, perr := decimal.NewFromString(raw); perr == nil && price.IsPositive() {
				metrics.OracleLookupsTotal.WithLabelValues(symbol, "hit").Inc()
				return price, nil
			}
		}
	}

	// 2) 防击穿: 同一时刻同一 symbol 只有一个 goroutine 真正出去拉
	v, err, _ := o.sf.Do(symbol, func() (any, error) {
		// double-check
		if o.rds != nil {
			if raw, rerr := o.rds.Get(ctx, cacheKey(symbol)).Result(); rerr == nil {
				if price, perr := decimal.NewFromString(raw); perr == nil && price.IsPositive() {
					return price, nil
				}
			}
		}

		price, ferr := o.breaker.Execute(func() (decimal.Decimal, error) {
			return o.fetch(ctx, symbol)
		})
		if ferr != nil {
			metrics.OracleLookupsTotal.WithLabelValues(symbol, "error").Inc()
			return decimal.Zero, fmt.Errorf("%w: %v", ErrUnavailable, ferr)
		}
		if !price.IsPositive() {
			// 行情源答复了但价格不可用, 同样按瞬时故障处理
			metrics.OracleLookupsTotal.WithLabelValues(symbol, "error").Inc()
			return decimal.Zero, fmt.Errorf("%w: non-positive price %s for %s", ErrUnavailable, price, symbol)
		}

		if o.rds != nil {
			// TTL 打散防雪崩
			ttl := o.cfg.CacheTTL + time.Duration(rand.Intn(10))*time.Second
			o.rds.Set(ctx, cacheKey(symbol), price.String(), ttl)
		}
		metrics.OracleLookupsTotal.WithLabelValues(symbol, "miss").Inc()
		return price, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}

type priceResp struct {
	Price decimal.Decimal `json:"price"`
}

func (o *HTTPOracle) fetch(ctx context.Context, symbol string) (decimal.Decimal, error) {
	u := fmt.Sprintf("%s?symbol=%s", o.cfg.BaseURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := o.httpCli.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("oracle status %d", resp.StatusCode)
	}

	var body priceResp
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, err
	}
	return body.Price, nil
}
