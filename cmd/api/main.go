package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	"github.com/school-admin/backend/internal/config"
	"github.com/school-admin/backend/internal/database"
	"github.com/school-admin/backend/internal/docstore"
	"github.com/school-admin/backend/internal/handlers"
	"github.com/school-admin/backend/internal/logger"
	"github.com/school-admin/backend/internal/middleware"
	"github.com/school-admin/backend/internal/models"
	"github.com/school-admin/backend/internal/services"
)

// @title School Admin Dashboard API
// @version 1.0
// @description Backend for the school administration dashboard: records, exams, results publishing and activity audit.
// @BasePath /api/v1
func main() {
	_ = godotenv.Load()

	if len(os.Args) > 1 {
		handleCommand(os.Args[1])
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	log := logger.Setup(cfg.Server.LogLevel, cfg.Server.LogFormat)

	db, err := database.Connect(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	store := docstore.NewGormStore(db)

	rdb, err := database.NewRedisClient(context.Background(), cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	if cfg.Server.Env == "development" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(log))

	// CORS
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		for _, allowed := range cfg.CORS.Origins {
			if origin == allowed {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
				break
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// Health check - simple endpoint that doesn't require DB
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "school-admin-api"})
	})
	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "School Admin Dashboard API", "status": "running"})
	})

	// Metrics
	if cfg.Monitoring.PrometheusEnabled {
		r.Use(middleware.Metrics())
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// Swagger
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Services
	authService := services.NewAuthService(db, cfg)
	activityService := services.NewActivityService(store, log)
	notificationService := services.NewNotificationService(store, db, log)
	examService := services.NewExamService(store, activityService, notificationService, log)
	analyticsService := services.NewAnalyticsService(store, rdb, cfg.Redis.CacheTTL, log)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	resourceHandler := handlers.NewResourceHandler(store, activityService)
	examHandler := handlers.NewExamHandler(examService, activityService)
	activityHandler := handlers.NewActivityHandler(activityService)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)

	// Routes
	v1 := r.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", authHandler.Logout)
		}

		// Protected routes
		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(authService))
		{
			// Generic record collections
			resources := []struct {
				path       string
				collection string
			}{
				{"students", models.CollectionStudents},
				{"teachers", models.CollectionTeachers},
				{"staff", models.CollectionStaff},
				{"fees", models.CollectionFees},
				{"attendance", models.CollectionAttendance},
				{"grade-systems", models.CollectionGradeSystems},
				{"settings", models.CollectionSettings},
			}
			for _, res := range resources {
				protected.GET("/"+res.path, resourceHandler.List(res.collection))
				protected.GET("/"+res.path+"/:id", resourceHandler.Get(res.collection))
				protected.POST("/"+res.path, middleware.RequireStaff(), resourceHandler.Create(res.collection))
				protected.PUT("/"+res.path+"/:id", middleware.RequireStaff(), resourceHandler.Update(res.collection))
				protected.DELETE("/"+res.path+"/:id", middleware.RequireAdmin(), resourceHandler.Delete(res.collection))
			}

			// Exams, marks and published results
			protected.GET("/exams", examHandler.List)
			protected.GET("/exams/:id", examHandler.Get)
			protected.POST("/exams", middleware.RequireStaff(), examHandler.Create)
			protected.PUT("/exams/:id", middleware.RequireStaff(), examHandler.Update)
			protected.GET("/exams/:id/marks", examHandler.ListMarks)
			protected.POST("/exams/:id/marks", middleware.RequireStaff(), examHandler.SaveMark)
			protected.POST("/exams/:id/publish", middleware.RequireAdmin(), examHandler.Publish)
			protected.GET("/exams/:id/results", examHandler.ListResults)
			protected.GET("/exams/:id/results/:studentId", examHandler.GetStudentResult)

			// Activity audit trail
			protected.GET("/activity", activityHandler.GetRecentActivity)
			protected.GET("/activity/:entityType/:entityId", activityHandler.GetEntityHistory)
			protected.POST("/activity/:entityType/:entityId/revert", middleware.RequireAdmin(), activityHandler.Revert)

			// Analytics
			protected.GET("/analytics/kpis", analyticsHandler.GetKPIs)

			// Notifications
			protected.GET("/notifications", notificationHandler.List)
			protected.GET("/notifications/unread-count", notificationHandler.UnreadCount)
			protected.POST("/notifications/:id/read", notificationHandler.MarkAsRead)
			protected.POST("/notifications/read-all", notificationHandler.MarkAllAsRead)
		}
	}

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Info().Str("addr", addr).Msg("server starting")
	if err := r.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}

func handleCommand(cmd string) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	log := logger.Setup(cfg.Server.LogLevel, cfg.Server.LogFormat)

	db, err := database.Connect(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	switch cmd {
	case "migrate":
		if err := database.Migrate(db, docstore.NewGormStore(db)); err != nil {
			log.Fatal().Err(err).Msg("migration failed")
		}
		log.Info().Msg("migration completed successfully")

	case "seed-admin":
		seedAdmin(db, cfg, log)

	default:
		log.Error().Str("command", cmd).Msg("unknown command")
	}
}

func seedAdmin(db *gorm.DB, cfg *config.Config, log zerolog.Logger) {
	authService := services.NewAuthService(db, cfg)

	var count int64
	db.Model(&models.User{}).Where("role = ?", "admin").Count(&count)
	if count > 0 {
		log.Info().Msg("admin already exists")
		return
	}

	email := os.Getenv("ADMIN_EMAIL")
	if email == "" {
		email = "admin@school.local"
	}
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = "Admin@123"
	}

	admin := &models.User{
		Email:    email,
		FullName: "School Administrator",
		Role:     "admin",
		IsActive: true,
	}
	if err := authService.CreateUser(admin, password); err != nil {
		log.Fatal().Err(err).Msg("failed to create admin")
	}

	log.Info().Str("email", email).Msg("admin account created")
}
