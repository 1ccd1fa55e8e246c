package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"newsroom/internal/api"
	"newsroom/internal/cache"
	"newsroom/internal/config"
	"newsroom/internal/email"
	"newsroom/internal/email/resend"
	"newsroom/internal/logger"
	"newsroom/internal/publisher"
	"newsroom/internal/scheduler"
	"newsroom/internal/secrets"
	"newsroom/internal/service"
	"newsroom/internal/storage/postgres"
	"newsroom/internal/webhook"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	bootstrap := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootstrap.Fatal().Err(err).Msg("failed to load config")
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		bootstrap.Fatal().Err(err).Msg("failed to set up logger")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("newsroom stopped with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if secrets.NeedsResolution(cfg.SecretFields()) {
		resolver, err := secrets.NewSSMResolver(ctx, cfg.Secrets.Region, cfg.Secrets.SSMPrefix)
		if err != nil {
			return err
		}
		if err := resolver.ResolveAll(ctx, cfg.SecretFields()); err != nil {
			return err
		}
		log.Info().Msg("resolved secrets from ssm")
	}

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	log.Info().Str("host", cfg.Database.Host).Msg("connected to database")

	var events service.EventPublisher
	if cfg.RabbitMQ.URL != "" {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			QueueName:  cfg.RabbitMQ.QueueName,
			BindingKey: cfg.RabbitMQ.BindingKey,
		}, log)
		if err != nil {
			return err
		}
		defer rabbitMQ.Close()
		events = rabbitMQ
	}

	var processed service.ProcessedCache
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(ctx, cfg.Redis.URL, cfg.Redis.KeyPrefix)
		if err != nil {
			return err
		}
		defer redisCache.Close()
		processed = redisCache
		log.Info().Msg("connected to redis")
	}

	postStore := postgres.NewPostStore(db)
	tagStore := postgres.NewTagStore(db)
	memberStore := postgres.NewMemberStore(db)
	eventStore := postgres.NewEventStore(db)
	txManager := postgres.NewTransactionManager(db)

	renderer, err := email.NewRenderer(cfg.Notify.SiteURL, cfg.Notify.UnsubscribeURL)
	if err != nil {
		return err
	}
	verifier, err := webhook.NewVerifier(cfg.Webhook.Secret, cfg.Webhook.Tolerance)
	if err != nil {
		return err
	}
	sender := resend.New(resend.Config{
		APIKey:  cfg.Resend.APIKey,
		BaseURL: cfg.Resend.BaseURL,
		From:    cfg.Resend.From,
		ReplyTo: cfg.Resend.ReplyTo,
		Timeout: cfg.Resend.Timeout,
	}, log)

	publishService := service.NewPublishService(postStore, events, log)
	notifyService := service.NewNotifyService(postStore, memberStore, sender, renderer, log, service.NotifyConfig{
		Concurrency:   cfg.Notify.Concurrency,
		RatePerSecond: cfg.Notify.RatePerSecond,
		ClaimLease:    cfg.Notify.ClaimLease,
	})
	deliveryService := service.NewDeliveryService(memberStore, eventStore, txManager, processed, events, cfg.Redis.ProcessedTTL, log)
	postService := service.NewPostService(postStore, tagStore, txManager, events, log)
	memberService := service.NewMemberService(memberStore, txManager, events, log)

	router := api.NewRouter(api.Dependencies{
		Publisher:          publishService,
		Notifier:           notifyService,
		Receiver:           deliveryService,
		Verifier:           verifier,
		Posts:              postService,
		Members:            memberService,
		TriggerSecret:      cfg.Trigger.Secret,
		TrustedEnvironment: cfg.Trigger.TrustedEnvironment,
		AdminAPIKey:        cfg.Admin.APIKey,
		AutoDispatch:       cfg.Notify.AutoDispatch,
		Logger:             log,
	})
	server := api.NewServer(cfg.Server, router, log)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		errCh := make(chan error, 1)
		go server.Start(errCh)

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			server.ShutdownGracefully(cfg.Server.ShutdownTimeout)
			return nil
		}
	})

	if cfg.Scheduler.Enabled {
		sched := scheduler.NewScheduler(cfg.Scheduler.RunTimeout, log).
			Every(cfg.Scheduler.PublishInterval, scheduler.JobFunc("publish", func(ctx context.Context) error {
				_, err := publishService.PublishDue(ctx, time.Now())
				return err
			}))
		if cfg.Notify.AutoDispatch {
			sched.Every(cfg.Scheduler.NotifyInterval, scheduler.JobFunc("notify", func(ctx context.Context) error {
				_, err := notifyService.DispatchPending(ctx)
				return err
			}))
		}

		g.Go(func() error {
			if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	log.Info().
		Str("addr", cfg.Server.Addr).
		Bool("scheduler", cfg.Scheduler.Enabled).
		Bool("auto_dispatch", cfg.Notify.AutoDispatch).
		Bool("events", events != nil).
		Bool("redis", processed != nil).
		Msg("starting newsroom")

	return g.Wait()
}
