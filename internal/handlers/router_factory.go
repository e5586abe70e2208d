package handlers

import (
	"context"
	"net/http"

	"github.com/EliSopMes/immersive-server/internal/config"
	"github.com/EliSopMes/immersive-server/internal/metrics"
	"github.com/EliSopMes/immersive-server/internal/middleware"
	"github.com/EliSopMes/immersive-server/internal/models"
	"github.com/EliSopMes/immersive-server/internal/observability"
	"github.com/EliSopMes/immersive-server/internal/serviceinterfaces"
	"github.com/EliSopMes/immersive-server/internal/version"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
)

// ServiceName identifies this server in traces, logs and the version endpoint
const ServiceName = "immersive-server"

// RouterDeps carries everything NewRouter wires into routes
type RouterDeps struct {
	Identity    serviceinterfaces.IdentityResolver
	Quizzes     serviceinterfaces.QuizService
	Quota       serviceinterfaces.QuotaSpender
	TextModel   serviceinterfaces.TextModel
	Translator  serviceinterfaces.Translator
	Vocabulary  serviceinterfaces.VocabularyService
	Profiles    serviceinterfaces.ProfileService
	Feedback    serviceinterfaces.FeedbackNotifier
	RateLimiter *middleware.RateLimiter
	Metrics     metrics.Recorder
	Gatherer    prometheus.Gatherer
	Logger      *observability.Logger
}

// NewRouter creates the gin engine with all middleware and routes
func NewRouter(cfg *config.Config, deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	}

	if err := RegisterValidators(); err != nil {
		deps.Logger.Warn(context.Background(), "Failed to register request validators", map[string]interface{}{"error": err.Error()})
	}

	router := gin.New()
	router.RedirectTrailingSlash = false
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		deps.Logger.Warn(context.Background(), "Ignoring invalid trusted proxies", map[string]interface{}{"error": err.Error()})
	}

	router.Use(middleware.ErrorRecoveryMiddleware(deps.Logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(deps.Logger, deps.Metrics))

	// Health check endpoint (defined before tracing so probes stay out of traces)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": ServiceName})
	})
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(deps.Gatherer)))
	}

	router.Use(observability.GinMiddleware(ServiceName))
	router.Use(observability.GinErrorAttributes())
	router.Use(cors.New(corsConfig(cfg.Server.CORSOrigins)))

	secureConfig := secure.DefaultConfig()
	secureConfig.SSLRedirect = false
	secureConfig.ContentSecurityPolicy = config.DefaultCSP
	router.Use(secure.New(secureConfig))

	quizHandler := NewQuizHandler(deps.Quizzes, deps.Logger)
	textHandler := NewTextHandler(deps.TextModel, deps.Translator, deps.Quota, deps.Profiles, deps.Logger)
	vocabularyHandler := NewVocabularyHandler(deps.Vocabulary, deps.Logger)
	profileHandler := NewProfileHandler(deps.Profiles, deps.Logger)
	quotaHandler := NewQuotaHandler(deps.Quota, cfg.Quota, deps.Logger)
	feedbackHandler := NewFeedbackHandler(deps.Feedback, deps.Logger)

	requireIdentity := middleware.RequireIdentity(deps.Identity)
	// anonymous callers are identified by client IP and burst limited
	optionalIdentity := []gin.HandlerFunc{middleware.OptionalIdentity(deps.Identity)}
	if deps.RateLimiter != nil {
		optionalIdentity = append(optionalIdentity, deps.RateLimiter.Middleware())
	}

	v1 := router.Group("/v1")
	{
		v1.GET("/version", func(c *gin.Context) {
			c.JSON(http.StatusOK, version.Current(ServiceName))
		})

		quizzes := v1.Group("/quizzes", requireIdentity)
		{
			quizzes.POST("/exists", quizHandler.Exists)
			quizzes.POST("/shell", quizHandler.Shell)
			quizzes.POST("/generate", quizHandler.Generate)
			quizzes.GET("/:id", quizHandler.Get)
		}

		text := v1.Group("/text", optionalIdentity...)
		{
			text.POST("/simplify", textHandler.Simplify)
			text.POST("/define", textHandler.Define)
			text.POST("/translate", textHandler.TranslateWord)
		}
		anonymous := v1.Group("", optionalIdentity...)
		{
			anonymous.POST("/translate", textHandler.Translate)
			anonymous.GET("/quota", quotaHandler.Status)
		}

		vocabulary := v1.Group("/vocabulary", requireIdentity)
		{
			vocabulary.POST("/save", vocabularyHandler.Save)
			vocabulary.POST("/delete", vocabularyHandler.Delete)
			vocabulary.POST("/fetch", vocabularyHandler.Fetch)
		}

		v1.POST("/profile/level", requireIdentity, profileHandler.UpdateLevel)
		v1.POST("/practice", requireIdentity, quotaHandler.Practice)
		v1.POST("/feedback", requireIdentity, feedbackHandler.Submit)
	}

	return router
}

// corsConfig allows any origin unless specific origins are configured; preflights answer 200
func corsConfig(origins []string) cors.Config {
	corsConfig := cors.DefaultConfig()
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Requested-With", middleware.RequestIDHeader}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader, "Retry-After"}
	corsConfig.OptionsResponseStatusCode = http.StatusOK
	return corsConfig
}

// RegisterValidators adds the "cefr" binding tag, which accepts the learner levels A1 through C2
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return v.RegisterValidation("cefr", func(fl validator.FieldLevel) bool {
		return models.IsValidLevel(fl.Field().String())
	})
}
