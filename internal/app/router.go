package app

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/marksheet-ocr-api/internal/handler"
	"github.com/noah-isme/marksheet-ocr-api/internal/middleware"
	"github.com/noah-isme/marksheet-ocr-api/internal/models"
	"github.com/noah-isme/marksheet-ocr-api/pkg/config"
	"github.com/noah-isme/marksheet-ocr-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/marksheet-ocr-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/marksheet-ocr-api/pkg/middleware/requestid"
)

// multipartMemory keeps small uploads in memory; larger parts spill to disk.
const multipartMemory = 8 << 20

// NewRouter registers every HTTP route on a fresh gin engine.
func NewRouter(c *Container) *gin.Engine {
	cfg := c.Config
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = multipartMemory
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(c.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(c.Metrics))

	checks := map[string]handler.Pinger{}
	if c.DB != nil {
		checks["database"] = c.DB
	}
	if c.Redis != nil {
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error { return c.Redis.Ping(ctx).Err() })
	}
	metricsHandler := handler.NewMetricsHandler(c.Metrics, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	uploads := handler.NewUploadHandler(c.Marksheets, c.Exports)
	students := handler.NewStudentHandler(c.Students)
	subjects := handler.NewSubjectHandler(c.Subjects)
	auth := handler.NewAuthHandler(c.Auth)

	requireAdmin := []gin.HandlerFunc{middleware.JWT(c.Auth), middleware.RequireRoles(models.RoleAdmin)}

	api := r.Group("/" + strings.Trim(cfg.APIPrefix, "/"))
	api.POST("/auth/login", auth.Login)

	api.POST("/uploads", uploads.Create)
	api.GET("/uploads", uploads.List)
	api.GET("/uploads/:id", uploads.Get)
	api.GET("/uploads/:id/export/:file", uploads.Export)
	api.DELETE("/uploads/:id", append(requireAdmin, middleware.Audit(c.Logger, "upload.delete"), uploads.Delete)...)

	api.GET("/subjects", subjects.List)

	admin := api.Group("", requireAdmin...)
	admin.GET("/students", students.List)
	admin.GET("/students/:id", students.Get)

	return r
}
