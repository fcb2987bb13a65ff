package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"varlixo.com/cmd/deposit-watcher/config"
	depositdomain "varlixo.com/internal/deposit/domain"
	depositrepo "varlixo.com/internal/deposit/repo"
	"varlixo.com/internal/deposit/service"
	"varlixo.com/internal/funds"
	fundsrepo "varlixo.com/internal/funds/repo"
	"varlixo.com/internal/oracle"
	"varlixo.com/internal/watcher"
	watcherdomain "varlixo.com/internal/watcher/domain"
	"varlixo.com/internal/watcher/scanner"
	appconfig "varlixo.com/pkg/config"
	"varlixo.com/pkg/logger"
	"varlixo.com/pkg/metrics"
	"varlixo.com/pkg/orm"
	"varlixo.com/pkg/safe"
	"varlixo.com/pkg/xredis"
)

const serviceName = "deposit-watcher"

func main() {
	// 1. 加载配置 (config/deposit-watcher.yaml, 支持热更新和环境变量覆盖)
	var c config.Config
	if _, err := appconfig.LoadAndWatch(serviceName, &c); err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if c.Name == "" {
		c.Name = serviceName
	}

	// 2. 初始化基础设施
	logger.Init(c.Name, c.LogLevel)
	defer logger.Sync()

	db := orm.NewMySQL(&orm.Config{
		DSN:         c.Mysql.DataSource,
		MaxIdle:     c.Mysql.MaxIdle,
		MaxOpen:     c.Mysql.MaxOpen,
		MaxLifetime: c.Mysql.MaxLifetime,
	})

	if err := db.AutoMigrate(
		&depositdomain.OnchainDeposit{},
		&depositdomain.LinkedWallet{},
		&depositdomain.IndexerCursor{},
		&funds.Wallet{},
		&funds.LedgerTransaction{},
	); err != nil {
		log.Fatalf("auto migrate failed: %v", err)
	}

	var rdb *redis.Client
	if c.Redis.Addr != "" {
		rdb = xredis.NewRedis(&xredis.Config{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
	}

	metrics.MustRegister()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info(ctx, "✅ Infrastructure initialized")

	// 3. 初始化组件 (依赖注入)

	// A. Repo (数据持久化)
	depRepo := depositrepo.New(db)
	fundRepo := fundsrepo.New(db)

	// B. 行情
	po := oracle.NewHTTPOracle(oracle.Config{
		BaseURL:  c.Oracle.BaseUrl,
		Timeout:  c.Oracle.Timeout,
		CacheTTL: c.Oracle.CacheTTL,
	}, rdb)

	// C. 业务服务
	resolver := service.NewAddressResolver(depRepo)
	upserter := service.NewUpserter(depRepo, resolver)
	settlement := service.NewSettlement(service.SettlementConfig{
		BatchSize:        c.Settlement.BatchSize,
		StaleLockTimeout: c.Settlement.StaleLockTimeout,
		StableAssets:     c.Settlement.StableAssets,
	}, depRepo, resolver, fundRepo, fundRepo, po)

	// D. 链扫描器, 每个启用的网络一个
	scanners := buildScanners(ctx, c.Networks)
	if len(scanners) == 0 {
		logger.Warn(ctx, "⚠️ no network enabled, settlement-only mode")
	}

	// 4. 启动调度器
	sched := watcher.NewScheduler(c.ScanInterval, scanners, depRepo, upserter, settlement)
	safe.Go(func() {
		sched.Start(ctx)
	})

	// 5. 指标暴露
	if c.MetricsAddr != "" {
		safe.Go(func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(c.MetricsAddr, mux); err != nil {
				logger.Error(ctx, "metrics server exited", zap.Error(err))
			}
		})
	}

	logger.Info(ctx, "🚀 deposit-watcher started")

	// 6. 优雅退出
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info(ctx, "shutting down...")
	cancel()
}

// buildScanners 按配置构建扫描器。配置不全的网络跳过, 不拦启动。
func buildScanners(ctx context.Context, networks []config.NetworkConf) []watcherdomain.ChainScanner {
	var out []watcherdomain.ChainScanner
	for _, n := range networks {
		cfg := n.ToDomain()
		if !cfg.Enabled() {
			logger.Warn(ctx, "network disabled, skip", zap.String("chain", cfg.Chain), zap.String("network", cfg.Network))
			continue
		}

		var (
			sc  watcherdomain.ChainScanner
			err error
		)
		switch cfg.Chain {
		case watcherdomain.ChainEVM:
			sc, err = scanner.NewEVMScanner(cfg)
		case watcherdomain.ChainSOL:
			sc, err = scanner.NewSolanaScanner(cfg)
		default:
			logger.Error(ctx, "unknown chain in config", zap.String("chain", cfg.Chain))
			continue
		}
		if err != nil {
			log.Fatalf("init scanner %s/%s failed: %v", cfg.Chain, cfg.Network, err)
		}

		logger.Info(ctx, "🔍 scanner ready", zap.String("chain", cfg.Chain), zap.String("network", cfg.Network))
		out = append(out, sc)
	}
	return out
}
