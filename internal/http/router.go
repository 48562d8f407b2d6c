package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/teamtriage/backend/internal/config"
	"github.com/teamtriage/backend/internal/http/handlers"
	"github.com/teamtriage/backend/internal/http/middleware"
	"github.com/teamtriage/backend/internal/scheduler"
	"github.com/teamtriage/backend/internal/service"
	"github.com/teamtriage/backend/internal/vectorstore"

	_ "github.com/teamtriage/backend/docs"
)

// Deps are the long-lived components the API serves. Store may be nil.
type Deps struct {
	Store     handlers.AuditStore
	Pipeline  *service.Pipeline
	Ingestor  *service.Ingestor
	Vectors   vectorstore.Store
	Scheduler *scheduler.Scheduler
}

func Router(cfg config.Config, deps Deps, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.MaxMultipartMemory = cfg.MaxUploadSizeMB << 20

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = config.SplitList(cfg.CORSAllowed)
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:      deps.Store,
		Pipeline:   deps.Pipeline,
		Ingestor:   deps.Ingestor,
		Vectors:    deps.Vectors,
		Scheduler:  deps.Scheduler,
		Validator:  validator.New(),
		Logger:     logger,
		TeamKey:    cfg.TeamMetadataKey,
		FineTuning: cfg.FineTuningEnabled,
	}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.GET("/tickets/:key/recommendation", h.Recommendation)
		api.GET("/runs/latest", h.RunsLatest)
		api.GET("/decisions", h.Decisions)
		api.GET("/history/teams", h.HistoryTeams)
		api.GET("/scheduler/status", h.SchedulerStatus)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/tickets/:key/assign", h.Assign)
		admin.POST("/webhook/issue", h.IssueWebhook)
		admin.POST("/history/import", h.HistoryImport)
		admin.POST("/scheduler/run", h.SchedulerRun)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
