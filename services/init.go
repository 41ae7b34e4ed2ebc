package services

import (
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/customeros/mailwarden/config"
	"github.com/customeros/mailwarden/interfaces"
	"github.com/customeros/mailwarden/internal/logger"
	"github.com/customeros/mailwarden/internal/repository"
	"github.com/customeros/mailwarden/internal/secrets"
	"github.com/customeros/mailwarden/services/bounce"
	"github.com/customeros/mailwarden/services/events"
	"github.com/customeros/mailwarden/services/logreader"
	"github.com/customeros/mailwarden/services/monitor"
	"github.com/customeros/mailwarden/services/storage"
	"github.com/customeros/mailwarden/services/suppression"
	"github.com/customeros/mailwarden/services/training"
)

type Services struct {
	EventsService      *events.EventsService
	StorageService     interfaces.StorageService
	SuppressionService interfaces.SuppressionService
	TrainingEngine     *training.Engine
	BouncePoller       *bounce.Poller
	MonitorService     *monitor.Service
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories, rdb *redis.Client) (*Services, error) {
	publisherConfig := &events.PublisherConfig{
		MessageTTL:          events.DefaultMessageTTL,
		MaxRetries:          events.DefaultMaxRetries,
		PublishTimeout:      events.DefaultPublishTimeout,
		ReconnectBackoff:    events.DefaultReconnectBackoff,
		MaxReconnectBackoff: events.DefaultMaxReconnectBackoff,
	}
	eventsService, err := events.NewEventsService(cfg.AppConfig.RabbitMQURL, log, publisherConfig)
	if err != nil {
		return nil, errors.Wrap(err, "init events")
	}

	storageService, err := storage.NewStorageServiceFromConfig(cfg.StorageConfig)
	if err != nil {
		return nil, errors.Wrap(err, "init storage")
	}

	suppressionService := suppression.NewSuppressionService(
		log.Named("suppression"),
		repos.SuppressionRepository,
		suppression.NewRedisCache(rdb, cfg.SuppressionConfig.CacheTTL),
		eventsService.Publisher,
		storageService,
	)

	var box *secrets.Box
	if cfg.AppConfig.SecretKey != "" {
		if box, err = secrets.NewBox(cfg.AppConfig.SecretKey); err != nil {
			return nil, errors.Wrap(err, "init secret box")
		}
	} else {
		log.Warn("MAILWARDEN_SECRET_KEY not set, bounce mailboxes cannot be polled")
	}

	poller, err := bounce.NewPoller(log.Named("bounce"), cfg.BounceConfig, repos.DomainRepository, repos.BounceRecordRepository, suppressionService, box)
	if err != nil {
		return nil, errors.Wrap(err, "init bounce poller")
	}

	reader := logreader.NewReader(log.Named("logreader"))
	engine := training.NewEngine(log.Named("training"), cfg.TrainingConfig, cfg.LogReaderConfig,
		repos.SenderRepository, repos.DomainRepository, repos.TrainingConfigRepository, reader)

	opts := []monitor.Option{monitor.WithPublisher(eventsService.Publisher)}
	if cfg.MonitorConfig.BlacklistProbe {
		opts = append(opts, monitor.WithBlacklistProbe(monitor.NewDNSBLProbe()))
	}
	monitorService := monitor.NewService(log.Named("monitor"), cfg.MonitorConfig, cfg.LogReaderConfig,
		monitor.NewStore(rdb, cfg.MonitorConfig.ResultTTL, cfg.MonitorConfig.LockTTL),
		repos.DomainRepository, repos.SenderRepository, engine, poller, reader, opts...)

	return &Services{
		EventsService:      eventsService,
		StorageService:     storageService,
		SuppressionService: suppressionService,
		TrainingEngine:     engine,
		BouncePoller:       poller,
		MonitorService:     monitorService,
	}, nil
}

// Start begins consuming suppress requests from the message queue.
func (s *Services) Start(log logger.Logger) error {
	return s.EventsService.StartSuppressionListener(log.Named("events"), s.SuppressionService)
}

func (s *Services) Close() error {
	return s.EventsService.Close()
}
