package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"flashmail/backend/internal/config"
	"flashmail/backend/internal/logger"
	"flashmail/backend/internal/mailer"
	"flashmail/backend/internal/monitoring"
	"flashmail/backend/internal/service"
	smtpserver "flashmail/backend/internal/smtp"
	"flashmail/backend/internal/storage"
	"flashmail/backend/internal/storage/memory"
	"flashmail/backend/internal/storage/postgres"
	redisstore "flashmail/backend/internal/storage/redis"
	httptransport "flashmail/backend/internal/transport/http"
	"flashmail/backend/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("服务退出", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := newStore(cfg, log)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer store.Close()

	// 速率限制计数优先用 Redis，未配置时退回进程内计数
	var limiter storage.RateLimiter
	if l, ok := store.(storage.RateLimiter); ok {
		limiter = l
	} else {
		limiter = memory.NewStore()
	}
	if cfg.Redis.Address != "" {
		redisClient, err := redisstore.NewClient(redisstore.Config{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		defer redisClient.Close()
		limiter = redisClient
		log.Info("使用 Redis 作为限流计数后端", zap.String("address", cfg.Redis.Address))
	}

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	hub := websocket.NewHub(cfg.CORS.AllowedOrigins, log)

	addressService := service.NewAddressService(store, service.AddressConfig{
		Domain:          cfg.Mail.Domain,
		DefaultTTL:      cfg.Mail.DefaultTTL,
		LocalPartLen:    cfg.Mail.LocalPartLen,
		PremiumDuration: cfg.Premium.Duration,
		PremiumPrice:    cfg.Premium.Price,
	}, log, metrics)
	messageService := service.NewMessageService(store, log, metrics, hub)

	sender := mailer.NewSender(mailer.Config{
		Host:     cfg.Relay.Host,
		Port:     cfg.Relay.Port,
		Username: cfg.Relay.Username,
		Password: cfg.Relay.Password,
		Domain:   cfg.Mail.Domain,
	}, log, metrics)
	if sender.Enabled() {
		log.Info("出站中继已启用", zap.String("relay", cfg.Relay.Host))
	}

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		AddressService: addressService,
		MessageService: messageService,
		Store:          store,
		RateLimiter:    limiter,
		WebSocketHub:   hub,
		Metrics:        metrics,
		Logger:         log,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		CreateMaxPerIP: int64(cfg.Mail.CreateMaxPerIP),
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	smtpBackend := smtpserver.NewBackend(
		messageService,
		cfg.Mail.Domain,
		smtpserver.NewSessionLimiter(20, 40),
		log,
		metrics,
	)
	smtpServer := gosmtp.NewServer(smtpBackend)
	smtpServer.Addr = cfg.SMTP.BindAddr
	smtpServer.Domain = cfg.SMTP.Domain
	smtpServer.ReadTimeout = 10 * time.Second
	smtpServer.WriteTimeout = 10 * time.Second
	smtpServer.MaxMessageBytes = 10 << 20
	smtpServer.MaxRecipients = 50
	smtpServer.AllowInsecureAuth = true

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	group.Go(func() error {
		log.Info("HTTP 服务启动", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		log.Info("SMTP 服务启动", zap.String("addr", smtpServer.Addr))
		if err := smtpServer.ListenAndServe(); err != nil {
			select {
			case <-gctx.Done():
				return nil
			default:
				return fmt.Errorf("smtp server: %w", err)
			}
		}
		return nil
	})

	group.Go(func() error {
		<-gctx.Done()
		log.Info("收到退出信号，开始优雅停机")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("HTTP 停机超时", zap.Error(err))
		}
		if err := smtpServer.Close(); err != nil {
			log.Warn("SMTP 关闭失败", zap.Error(err))
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		return err
	}
	log.Info("服务已退出")
	return nil
}

// newStore 根据配置选择存储后端，未配置 DSN 时使用内存存储。
func newStore(cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	if cfg.Database.DSN == "" {
		log.Warn("未配置数据库，使用内存存储（重启后数据丢失）")
		return memory.NewStore(), nil
	}

	store, err := postgres.NewStore(postgres.Config{
		Type:            cfg.Database.Type,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	log.Info("数据库已连接", zap.String("type", cfg.Database.Type))
	return store, nil
}
