package cmd

import (
	"log"

	"hospital-queue/config"
	"hospital-queue/handlers"
	_ "hospital-queue/migrations"
	"hospital-queue/monitoring"
	"hospital-queue/security"
	"hospital-queue/services"
	"hospital-queue/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	pubnub "github.com/pubnub/go"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Initialize PubNub
	var pn *pubnub.PubNub
	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey
		pn = pubnub.NewPubNub(pnConfig)
	} else {
		log.Println("PubNub keys not configured, realtime notifications disabled")
	}

	// Initialize services
	ledgerService := services.NewLedgerService(app)
	notifyService := services.NewNotifyService(pn)
	queueService := services.NewQueueService(redisClient, ledgerService, notifyService, cfg)
	displayService := services.NewDisplayService(redisClient)
	statsService := services.NewStatsService(app)

	// Initialize handlers
	queueHandler := handlers.NewQueueHandler(app, queueService)
	staffHandler := handlers.NewStaffHandler(app, queueService, statsService, displayService)
	doctorHandler := handlers.NewDoctorHandler(app, ledgerService)
	displayHandler := handlers.NewDisplayHandler(app, queueService, displayService)

	rateLimiter := security.NewRateLimiter(redisClient, cfg.JoinRateLimit, cfg.JoinRateWindow)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	var monitor *monitoring.Monitor

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		if cfg.EnableMetrics {
			monitor = monitoring.NewMonitor(app, cfg.MetricsInterval)
			monitoring.StartMetricsServer(cfg.MetricsPort)
		}

		// Doctor endpoints
		e.Router.GET("/api/v1/doctors", doctorHandler.ListDoctors)
		e.Router.GET("/api/v1/doctors/{doctorId}", doctorHandler.GetDoctor)

		// Patient queue endpoints
		e.Router.POST("/api/v1/queue/join", queueHandler.JoinQueue).BindFunc(rateLimiter.JoinRateLimit())
		e.Router.GET("/api/v1/queue/status", queueHandler.GetQueueStatus)
		e.Router.GET("/api/v1/queue/me", queueHandler.GetMyStatus)
		e.Router.GET("/api/v1/queue/position", queueHandler.GetQueuePosition)
		e.Router.POST("/api/v1/queue/cancel", queueHandler.CancelEntry)

		// Staff queue endpoints
		e.Router.POST("/api/v1/staff/queue/serve", staffHandler.MarkServed)
		e.Router.POST("/api/v1/staff/queue/no-show", staffHandler.MarkNoShow)
		e.Router.POST("/api/v1/staff/queue/re-enter", staffHandler.ReEnter)
		e.Router.POST("/api/v1/staff/queue/undo", staffHandler.Undo)
		e.Router.POST("/api/v1/staff/queue/freeze", staffHandler.Freeze)
		e.Router.POST("/api/v1/staff/queue/resume", staffHandler.Resume)
		e.Router.POST("/api/v1/staff/doctors/availability", staffHandler.SetAvailability)
		e.Router.GET("/api/v1/staff/dashboard", staffHandler.Dashboard)
		e.Router.POST("/api/v1/staff/display-code", staffHandler.IssueDisplayCode)

		// Display board
		e.Router.GET("/api/v1/display/{doctorId}", displayHandler.GetBoard)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// PocketBase traps SIGINT/SIGTERM itself; hook its teardown to stop
	// the metrics collector before the Redis client closes.
	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		log.Println("Shutdown signal received, cleaning up...")
		if monitor != nil {
			monitor.Stop()
		}
		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}
