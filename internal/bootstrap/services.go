package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/target/bulkmailer/config"
	"github.com/target/bulkmailer/internal/adapters/assetstore"
	"github.com/target/bulkmailer/internal/adapters/transport"
	"github.com/target/bulkmailer/internal/core"
	"github.com/target/bulkmailer/internal/data"
	"github.com/target/bulkmailer/internal/data/cryptoutil"
	"github.com/target/bulkmailer/internal/observability/notify/pagerduty"
	"github.com/target/bulkmailer/internal/observability/notify/slack"
	"github.com/target/bulkmailer/internal/observability/prom"
	"github.com/target/bulkmailer/internal/observability/statsd"
	"github.com/target/bulkmailer/internal/service"
	"github.com/target/bulkmailer/internal/service/compose"
	"github.com/target/bulkmailer/internal/service/failurenotifier"
	"github.com/target/bulkmailer/internal/service/pacing"
	"github.com/target/bulkmailer/internal/service/render"
	"github.com/target/bulkmailer/internal/service/scheduler"
	"github.com/target/bulkmailer/internal/service/webhook"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs          *service.JobService
	JobRepo       *data.JobRepo
	Scheduler     *scheduler.Scheduler
	Webhooks      *webhook.Notifier
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// MetricsSink fans out to every configured backend. It is never nil.
	MetricsSink     statsd.Sink
	Statsd          *statsd.Client
	Registry        *prometheus.Registry
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient // Optional: enables the shared template cache
	Logger      *slog.Logger
	// Transports overrides the transport chosen by DELIVERY_TRANSPORT.
	Transports core.TransportFactory
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	Jobs      *data.JobRepo
	Templates *data.TemplateRepo
	Assets    *data.AssetRepo
	Senders   *data.SenderRepo
	Cache     *data.RedisCacheRepo
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(deps *ServiceDeps, enc cryptoutil.Encryptor) *serviceRepositories {
	repos := &serviceRepositories{
		Jobs:      data.NewJobRepo(deps.DB, data.RepoConfig{Logger: deps.Logger}),
		Templates: data.NewTemplateRepo(deps.DB),
		Assets:    data.NewAssetRepo(deps.DB),
		Senders:   data.NewSenderRepo(deps.DB, enc, nil),
	}
	if deps.RedisClient != nil {
		repos.Cache = data.NewRedisCacheRepo(deps.RedisClient)
	}
	return repos
}

// NewServices wires repositories, the delivery pipeline and observability into a container.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil || deps.DB == nil {
		return ServiceContainer{}, errors.New("config and database are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	cfg := deps.Config
	logger := deps.Logger

	enc := CreateEncryptor(cfg.SecretsEncryptionKey, logger)
	repos := buildRepositories(deps, enc)
	obs := buildObservability(logger, cfg.Observability)

	jobs, err := service.NewJobService(service.JobServiceOptions{Repo: repos.Jobs, Logger: logger})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create job service: %w", err)
	}

	assets, err := assetstore.New(assetstore.Options{
		Repo:   repos.Assets,
		Root:   cfg.Delivery.AssetsRoot,
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create asset store: %w", err)
	}

	transports := deps.Transports
	if transports == nil {
		transports, err = buildTransports(cfg.Delivery, repos.Senders, logger)
		if err != nil {
			return ServiceContainer{}, err
		}
	}

	webhooks := webhook.NewNotifier(webhook.Options{
		Secret:  cfg.Delivery.WebhookSigningSecret,
		Timeout: cfg.Delivery.WebhookTimeout,
		Metrics: obs.MetricsSink,
		Logger:  logger,
	})

	sched, err := scheduler.New(scheduler.Options{
		Repo:       repos.Jobs,
		Transports: transports,
		Resolver:   buildResolver(cfg, repos, logger),
		Renderer:   render.NewRenderer(render.RendererOptions{Assets: assets, Logger: logger}),
		Composer: compose.NewComposer(compose.ComposerOptions{
			Assets: assets,
			Domain: cfg.Delivery.MessageIDDomain,
			Logger: logger,
		}),
		Pacer:          pacing.New(pacing.Options{PollInterval: cfg.Runner.PausePoll}),
		Webhooks:       webhooks,
		Failures:       obs.FailureNotifier,
		Metrics:        obs.MetricsSink,
		Logger:         logger,
		WebhookTimeout: cfg.Delivery.WebhookTimeout,
		StatusRefresh:  cfg.Runner.StatusRefresh,
		HeartbeatEvery: cfg.Runner.HeartbeatEvery,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create scheduler: %w", err)
	}

	return ServiceContainer{
		Jobs:          jobs,
		JobRepo:       repos.Jobs,
		Scheduler:     sched,
		Webhooks:      webhooks,
		Observability: obs,
	}, nil
}

// buildResolver looks templates up in the tenant template files first, then in the
// template table, with the Redis body cache in front when enabled.
func buildResolver(cfg *config.AppConfig, repos *serviceRepositories, logger *slog.Logger) *render.Resolver {
	sources := render.ChainSource{}
	if cfg.Delivery.AssetsRoot != "" {
		sources = append(sources, render.NewFileSource(os.DirFS(cfg.Delivery.AssetsRoot)))
	}
	sources = append(sources, render.NewRepositorySource(repos.Templates))

	var shared *core.TemplateBodyCache
	if cfg.Cache.Enabled && repos.Cache != nil {
		shared = core.NewTemplateBodyCache(core.TemplateBodyCacheOptions{
			Cache: repos.Cache,
			TTL:   cfg.Cache.TemplateTTL,
		})
	}

	return render.NewResolver(render.ResolverOptions{
		Source:          sources,
		Templates:       repos.Templates,
		Shared:          shared,
		DefaultLanguage: cfg.Delivery.DefaultLanguage,
		Logger:          logger,
	})
}

//nolint:ireturn // the rate limiter may hand back the inner factory unchanged.
func buildTransports(cfg config.DeliveryConfig, senders core.SenderRepository, logger *slog.Logger) (core.TransportFactory, error) {
	var inner core.TransportFactory
	switch cfg.Transport {
	case config.TransportLog:
		logger.Warn("log transport selected; messages will not be delivered")
		inner = &transport.LogFactory{Logger: logger}
	default:
		gmail, err := transport.NewGmailFactory(transport.GmailOptions{
			Senders:      senders,
			ClientID:     cfg.GmailClientID,
			ClientSecret: cfg.GmailClientSecret,
			APIBase:      cfg.GmailAPIBase,
			TokenURL:     cfg.GmailTokenURL,
			Logger:       logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create gmail transport: %w", err)
		}
		inner = gmail
	}
	return transport.NewRateLimited(inner, cfg.RatePerSecond, cfg.RateBurst), nil
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	sinks := []statsd.Sink{prom.NewSink(registry, obsLogger)}

	var statsdClient *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			statsdClient = client
			sinks = append(sinks, client)
		}
	}

	return ObservabilityContainer{
		MetricsSink:     statsd.NewFanout(sinks...),
		Statsd:          statsdClient,
		Registry:        registry,
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: buildFailureNotifier(obsLogger, cfg.Notifications),
		NotifierConfig:  cfg.Notifications,
	}
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{
			Logger: baseLogger,
		})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:   cfg.Slack.WebhookURL,
			Channel:      cfg.Slack.Channel,
			Username:     cfg.Slack.Username,
			Timeout:      cfg.Timeout,
			RetryLimit:   cfg.RetryLimit,
			JobURLPrefix: cfg.Slack.JobURLPrefix,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "slack",
				Sink: client,
			})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "pagerduty",
				Sink: client,
			})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger: baseLogger,
		Sinks:  sinks,
		Quiet:  cfg.Quiet,
	})
}
