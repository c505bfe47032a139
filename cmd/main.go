package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/auth"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/config"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/db"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/expiry"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/handlers"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/logger"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/mailer"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/metrics"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/middleware"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/models"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/mqtt"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/notification"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/recipients"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/report"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/scheduler"
)

// Manual trigger limits per client.
const (
	triggerRateLimit  = 10
	triggerRateWindow = time.Minute
)

type routes struct {
	auth           *auth.Service
	users          db.UserStore
	checker        handlers.ManualChecker
	summaries      handlers.SummaryTrigger
	ping           func(context.Context) error
	requestTimeout time.Duration
}

func newRouter(rt routes) http.Handler {
	authMW := middleware.NewAuthMiddleware(rt.auth)
	rateMW := middleware.NewRateLimitMiddleware()
	authH := handlers.NewAuthHandler(rt.auth, rt.users)
	notifH := handlers.NewNotificationHandler(rt.checker, rt.summaries, rt.requestTimeout)

	trigger := func(h http.HandlerFunc) http.Handler {
		return rateMW.RateLimit(triggerRateLimit, triggerRateWindow)(
			authMW.RequirePermission(models.ActionTriggerNotifications)(h))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.Health(rt.ping))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/api/auth/login", authH.Login)
	mux.HandleFunc("/api/auth/me", authH.Me)
	mux.Handle("/api/notifications/check", trigger(notifH.TriggerCheck))
	mux.Handle("/api/notifications/summary", trigger(notifH.TriggerSummary))

	return middleware.RequestLogger(authMW.Authenticate(mux))
}

type userSeeder interface {
	db.UserStore
	InsertUser(ctx context.Context, user models.User) error
}

// seedAdmin creates the bootstrap admin account if it does not exist yet.
func seedAdmin(ctx context.Context, users userSeeder, authService *auth.Service, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	if _, err := users.FindUserByUsername(ctx, username); err == nil {
		return nil
	} else if !errors.Is(err, mongo.ErrNoDocuments) {
		return err
	}
	hash, err := authService.HashPassword(password)
	if err != nil {
		return err
	}
	if err := users.InsertUser(ctx, models.User{Username: username, PasswordHash: hash, Role: models.RoleAdmin, IsActive: true}); err != nil {
		return err
	}
	logger.WithComponent("main").WithField("username", username).Info("Created admin user")
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load configuration")
	}
	logger.Init(cfg.LogLevel, cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Log.WithError(err).Fatal("Service exited with error")
	}
}

func run(ctx context.Context, cfg *config.AppConfig) error {
	log := logger.WithComponent("main")

	client, err := db.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		return err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(dctx)
	}()
	log.Info("Connected to MongoDB")

	database := client.Database(cfg.MongoDB)
	vehicles := &db.MongoVehicleCollection{Collection: database.Collection("vehicles")}
	users := &db.MongoUserCollection{Collection: database.Collection("users")}
	if err := vehicles.EnsureIndexes(ctx); err != nil {
		return err
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	authService, err := auth.NewService(cfg.JWTSecret, cfg.JWTExpiry)
	if err != nil {
		return err
	}
	if err := seedAdmin(ctx, users, authService, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return err
	}
	sender, err := mailer.NewSMTPSender(cfg.SMTP)
	if err != nil {
		return err
	}
	m, err := metrics.New(nil)
	if err != nil {
		return err
	}

	scanner := expiry.NewScanner(vehicles, loc)
	resolver := recipients.NewResolver(recipients.Config{
		Defaults:    cfg.Alert.DefaultRecipients,
		Escalation:  cfg.Alert.EscalationRecipients,
		Departments: cfg.Alert.DepartmentRecipients,
	})

	opts := []notification.Option{
		notification.WithMetrics(m),
		notification.WithDedupWindow(cfg.Alert.DedupWindow),
		notification.WithConcurrency(cfg.Alert.SendConcurrency),
	}
	if cfg.MQTT.Broker != "" {
		pub, err := mqtt.NewPahoPublisher(cfg.MQTT)
		if err != nil {
			log.WithError(err).Warn("MQTT publisher disabled")
		} else {
			defer pub.Close()
			opts = append(opts, notification.WithPublisher(pub))
		}
	}
	dispatcher := notification.NewDispatcher(scanner, resolver, vehicles, sender, opts...)
	builder := report.NewBuilder(scanner, vehicles, resolver, sender,
		report.WithMetrics(m), report.WithConcurrency(cfg.Alert.SendConcurrency))

	sched := scheduler.New(dispatcher, builder, loc, scheduler.Specs{
		DailyCheck:     cfg.CronSpecDailyCheck,
		WeeklyCheck:    cfg.CronSpecWeeklyCheck,
		WeeklySummary:  cfg.CronSpecWeeklySummary,
		MonthlySummary: cfg.CronSpecMonthlyReport,
	}, cfg.JobTimeout)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()
	for _, j := range sched.Jobs() {
		log.WithField("job", j.Name).WithField("next", j.Next).Info("Scheduled job")
	}

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: newRouter(routes{
			auth:           authService,
			users:          users,
			checker:        dispatcher,
			summaries:      builder,
			ping:           func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) },
			requestTimeout: cfg.JobTimeout,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}
