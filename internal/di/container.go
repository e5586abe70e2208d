// Package di provides dependency injection container for managing service lifecycle and dependencies.
package di

import (
	"context"
	"database/sql"
	"sync"

	"github.com/EliSopMes/immersive-server/internal/config"
	"github.com/EliSopMes/immersive-server/internal/database"
	"github.com/EliSopMes/immersive-server/internal/handlers"
	"github.com/EliSopMes/immersive-server/internal/metrics"
	"github.com/EliSopMes/immersive-server/internal/middleware"
	"github.com/EliSopMes/immersive-server/internal/observability"
	"github.com/EliSopMes/immersive-server/internal/serviceinterfaces"
	"github.com/EliSopMes/immersive-server/internal/services"
	contextutils "github.com/EliSopMes/immersive-server/internal/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Service names registered in the container
const (
	ServiceIdentity   = "identity"
	ServiceQuota      = "quota"
	ServiceQuizStore  = "quiz_store"
	ServiceAI         = "ai"
	ServiceQuiz       = "quiz"
	ServiceTranslator = "translator"
	ServiceVocabulary = "vocabulary"
	ServiceProfile    = "profile"
	ServiceFeedback   = "feedback"
)

// ServiceContainer manages all service dependencies and lifecycle
type ServiceContainer struct {
	cfg           *config.Config
	logger        *observability.Logger
	dbManager     *database.Manager
	db            *sql.DB
	registry      *prometheus.Registry
	collector     *metrics.Collector
	rateLimiter   *middleware.RateLimiter
	services      map[string]interface{}
	startOrder    []string
	mu            sync.RWMutex
	shutdownFuncs []func(context.Context) error
}

// NewServiceContainer creates a new dependency injection container
func NewServiceContainer(cfg *config.Config, logger *observability.Logger) *ServiceContainer {
	return &ServiceContainer{
		cfg:      cfg,
		logger:   logger,
		services: make(map[string]interface{}),
	}
}

// Initialize opens the database, applies migrations and builds every service
func (sc *ServiceContainer) Initialize(ctx context.Context) error {
	sc.dbManager = database.NewManager(sc.logger)
	db, err := sc.dbManager.InitDBWithConfig(sc.cfg.Database)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to initialize database")
	}
	return sc.InitializeWithDB(ctx, db)
}

// InitializeWithDB builds every service on an already open pool. The container takes ownership of db.
func (sc *ServiceContainer) InitializeWithDB(ctx context.Context, db *sql.DB) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.db = db
	sc.shutdownFuncs = append(sc.shutdownFuncs, func(_ context.Context) error {
		return db.Close()
	})

	sc.registry = prometheus.NewRegistry()
	sc.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sc.collector = metrics.NewCollector(sc.registry)

	if err := sc.initializeServices(ctx); err != nil {
		_ = sc.cleanup(ctx)
		return err
	}

	if err := sc.startupServices(ctx); err != nil {
		// Cleanup on failure
		_ = sc.cleanup(ctx)
		return contextutils.WrapErrorf(err, "failed to startup services")
	}

	return nil
}

// GetService retrieves a service by name with type assertion
func (sc *ServiceContainer) GetService(name string) (interface{}, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	service, exists := sc.services[name]
	if !exists {
		return nil, contextutils.ErrorWithContextf("service %s not found", name)
	}
	return service, nil
}

// GetServiceAs performs type-safe service retrieval
func GetServiceAs[T any](sc *ServiceContainer, name string) (T, error) {
	var zero T
	service, err := sc.GetService(name)
	if err != nil {
		return zero, err
	}

	typed, ok := service.(T)
	if !ok {
		return zero, contextutils.ErrorWithContextf("service %s is not of expected type %T", name, zero)
	}
	return typed, nil
}

// GetQuotaService returns the quota ledger
func (sc *ServiceContainer) GetQuotaService() (*services.QuotaService, error) {
	return GetServiceAs[*services.QuotaService](sc, ServiceQuota)
}

// GetQuizService returns the quiz pipeline
func (sc *ServiceContainer) GetQuizService() (serviceinterfaces.QuizService, error) {
	return GetServiceAs[serviceinterfaces.QuizService](sc, ServiceQuiz)
}

// GetQuizStore returns the quiz repository
func (sc *ServiceContainer) GetQuizStore() (serviceinterfaces.QuizStore, error) {
	return GetServiceAs[serviceinterfaces.QuizStore](sc, ServiceQuizStore)
}

// GetDatabase returns the database instance
func (sc *ServiceContainer) GetDatabase() *sql.DB {
	return sc.db
}

// GetConfig returns the configuration
func (sc *ServiceContainer) GetConfig() *config.Config {
	return sc.cfg
}

// GetLogger returns the logger
func (sc *ServiceContainer) GetLogger() *observability.Logger {
	return sc.logger
}

// GetRegistry returns the prometheus registry served on /metrics
func (sc *ServiceContainer) GetRegistry() *prometheus.Registry {
	return sc.registry
}

// RouterDeps assembles the handler dependencies from the registered services
func (sc *ServiceContainer) RouterDeps() (handlers.RouterDeps, error) {
	identity, err := GetServiceAs[serviceinterfaces.IdentityResolver](sc, ServiceIdentity)
	if err != nil {
		return handlers.RouterDeps{}, err
	}
	quota, err := GetServiceAs[serviceinterfaces.QuotaSpender](sc, ServiceQuota)
	if err != nil {
		return handlers.RouterDeps{}, err
	}
	quizzes, err := sc.GetQuizService()
	if err != nil {
		return handlers.RouterDeps{}, err
	}
	textModel, err := GetServiceAs[serviceinterfaces.TextModel](sc, ServiceAI)
	if err != nil {
		return handlers.RouterDeps{}, err
	}
	translator, err := GetServiceAs[serviceinterfaces.Translator](sc, ServiceTranslator)
	if err != nil {
		return handlers.RouterDeps{}, err
	}
	vocabulary, err := GetServiceAs[serviceinterfaces.VocabularyService](sc, ServiceVocabulary)
	if err != nil {
		return handlers.RouterDeps{}, err
	}
	profiles, err := GetServiceAs[serviceinterfaces.ProfileService](sc, ServiceProfile)
	if err != nil {
		return handlers.RouterDeps{}, err
	}
	feedback, err := GetServiceAs[serviceinterfaces.FeedbackNotifier](sc, ServiceFeedback)
	if err != nil {
		return handlers.RouterDeps{}, err
	}

	return handlers.RouterDeps{
		Identity:    identity,
		Quizzes:     quizzes,
		Quota:       quota,
		TextModel:   textModel,
		Translator:  translator,
		Vocabulary:  vocabulary,
		Profiles:    profiles,
		Feedback:    feedback,
		RateLimiter: sc.rateLimiter,
		Metrics:     sc.collector,
		Gatherer:    sc.registry,
		Logger:      sc.logger,
	}, nil
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	return sc.cleanup(ctx)
}

// register adds a service; registration order is startup order
func (sc *ServiceContainer) register(name string, service interface{}) {
	sc.services[name] = service
	sc.startOrder = append(sc.startOrder, name)
}

// startupServices starts all services that implement the Lifecycle interface
func (sc *ServiceContainer) startupServices(ctx context.Context) error {
	for _, name := range sc.startOrder {
		if lifecycleService, ok := sc.services[name].(serviceinterfaces.Lifecycle); ok {
			sc.logger.Info(ctx, "Starting service", map[string]interface{}{"service": name})
			if err := lifecycleService.Startup(ctx); err != nil {
				return contextutils.WrapErrorf(err, "failed to startup service %s", name)
			}
		}
	}
	return nil
}

// cleanup handles shutdown of all services
func (sc *ServiceContainer) cleanup(ctx context.Context) error {
	var errors []error

	// Shutdown lifecycle services first (in reverse order)
	for i := len(sc.startOrder) - 1; i >= 0; i-- {
		name := sc.startOrder[i]
		if lifecycleService, ok := sc.services[name].(serviceinterfaces.Lifecycle); ok {
			sc.logger.Info(ctx, "Shutting down service", map[string]interface{}{"service": name})
			if err := lifecycleService.Shutdown(ctx); err != nil {
				sc.logger.Error(ctx, "Failed to shutdown service", err, map[string]interface{}{"service": name})
				errors = append(errors, contextutils.WrapErrorf(err, "service %s shutdown failed", name))
			}
		}
	}

	for i := len(sc.shutdownFuncs) - 1; i >= 0; i-- {
		if err := sc.shutdownFuncs[i](ctx); err != nil {
			errors = append(errors, err)
		}
	}
	sc.shutdownFuncs = nil

	if len(errors) > 0 {
		return contextutils.ErrorWithContextf("shutdown errors: %v", errors)
	}
	return nil
}

// initializeServices sets up all service dependencies
func (sc *ServiceContainer) initializeServices(_ context.Context) error {
	identityService := services.NewIdentityService(sc.cfg.Auth, sc.collector, sc.logger)
	sc.register(ServiceIdentity, identityService)

	quotaService := services.NewQuotaService(sc.db, sc.cfg.Quota, sc.collector, sc.logger)
	sc.register(ServiceQuota, quotaService)

	quizRepository := services.NewQuizRepository(sc.db, sc.collector, sc.logger)
	sc.register(ServiceQuizStore, quizRepository)

	aiService, err := services.NewAIService(sc.cfg, sc.logger)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to create AI service")
	}
	sc.register(ServiceAI, aiService)

	// Quiz pipeline depends on the store, the ledger and the model
	quizService, err := services.NewQuizService(sc.cfg, services.QuizServiceDeps{
		Store:     quizRepository,
		Ledger:    quotaService,
		Generator: aiService,
		Fetcher:   services.NewSourceFetcher(sc.cfg.Quiz, nil, sc.logger),
		Metrics:   sc.collector,
		Logger:    sc.logger,
	})
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to create quiz service")
	}
	sc.register(ServiceQuiz, quizService)

	sc.register(ServiceTranslator, services.NewTranslationService(sc.cfg.DeepL, sc.logger))
	sc.register(ServiceVocabulary, services.NewVocabularyService(sc.db, sc.logger))
	sc.register(ServiceProfile, services.NewProfileService(sc.db, sc.logger))
	sc.register(ServiceFeedback, services.NewFeedbackService(sc.cfg.Feedback, nil, sc.logger))

	sc.rateLimiter = middleware.NewRateLimiter(sc.cfg.AnonymousLimit, sc.logger)
	sc.shutdownFuncs = append(sc.shutdownFuncs, func(_ context.Context) error {
		sc.rateLimiter.Stop()
		return nil
	})

	return nil
}
