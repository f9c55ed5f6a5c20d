package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	"github.com/otep/portal-core/internal/apikey"
	"github.com/otep/portal-core/internal/audit"
	"github.com/otep/portal-core/internal/auth"
	"github.com/otep/portal-core/internal/dashboard"
	"github.com/otep/portal-core/internal/dataset"
	"github.com/otep/portal-core/internal/otp"
	"github.com/otep/portal-core/internal/router"
	"github.com/otep/portal-core/internal/session"
	"github.com/otep/portal-core/internal/user"
	userrepo "github.com/otep/portal-core/internal/user/repo"
	"github.com/otep/portal-core/pkg/database"
	"github.com/otep/portal-core/pkg/utilities"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	// this is best-effort: if no .env exists, continue (use defaults or real env)
	_ = godotenv.Load()

	// init logger
	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting portal-core")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// stores: Postgres when DATABASE_URL is set, mutex-guarded memory
	// stores otherwise (small single-instance deployments)
	var (
		userStore  userrepo.Store
		keyStore   apikey.Store
		auditStore audit.Store
		sqlDB      interface{ Close() error }
	)
	dbCfg := database.ConfigFromEnv()
	if dbCfg.DSN != "" {
		db, err := database.Connect(dbCfg)
		if err != nil {
			sugar.Fatalf("db connect: %v", err)
		}
		sqlDB = db
		sqlxDB := sqlx.NewDb(db, "postgres")

		users := userrepo.NewUserRepo(sqlxDB)
		keys := apikey.NewKeyRepo(sqlxDB)
		events := audit.NewEventRepo(sqlxDB)
		for name, ensure := range map[string]func(context.Context) error{
			"users":  users.EnsureTable,
			"keys":   keys.EnsureTable,
			"events": events.EnsureTable,
		} {
			if err := ensure(ctx); err != nil {
				sugar.Fatalf("ensure %s table: %v", name, err)
			}
		}
		userStore, keyStore, auditStore = users, keys, events
	} else {
		sugar.Info("no DATABASE_URL configured, using in-memory stores")
		userStore = userrepo.NewMemoryStore()
		keyStore = apikey.NewMemoryStore()
		auditStore = audit.NewMemoryStore(0)
	}
	if sqlDB != nil {
		defer sqlDB.Close()
	}

	// audit recorder
	auditCfg := audit.ConfigFromEnv()
	fileSink, err := audit.NewFileSink(auditCfg.Dir)
	if err != nil {
		sugar.Fatalf("open audit sink: %v", err)
	}
	defer fileSink.Close()
	node, err := utilities.NewSnowflakeNode()
	if err != nil {
		sugar.Fatalf("init snowflake node: %v", err)
	}
	recorder := audit.NewRecorder(auditStore, fileSink, sugar, node, auditCfg.UTCOffset)

	// user service + built-in admin bootstrap
	userSvc := user.NewService(userStore, nil)
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminPassword == "" {
		sugar.Fatal("ADMIN_PASSWORD must be set to seed the built-in admin account")
	}
	if err := userSvc.EnsureAdmin(ctx, adminPassword, os.Getenv("ADMIN_EMAIL")); err != nil {
		sugar.Fatalf("bootstrap admin: %v", err)
	}

	// OTP issuer: real SMTP relay when configured, otherwise test mode only
	otpCfg := otp.ConfigFromEnv()
	var mailer otp.Mailer
	if m := otp.SMTPMailerFromEnv(); m != nil {
		mailer = m
	} else if otpCfg.TestMode {
		sugar.Warn("no SMTP relay configured, OTP codes are exposed in responses (test mode)")
		mailer = &otp.RecordingMailer{}
	} else {
		sugar.Fatal("no SMTP relay configured; set SMTP_HOST or enable OTP_TEST_MODE=1")
	}
	issuer := otp.NewIssuer(mailer, otpCfg, sugar)

	// sessions + remember-me tokens
	remember, err := session.NewRememberTokens(session.RememberConfigFromEnv())
	if err != nil {
		sugar.Fatalf("init remember tokens: %v", err)
	}
	sessions := session.NewManager(userStore, remember)

	// handlers
	deps := router.Deps{
		Logger:     sugar,
		Sessions:   sessions,
		Auth:       auth.NewHandler(userSvc, sessions, issuer, recorder, sugar),
		Users:      user.NewHandler(userSvc, recorder, sugar),
		Dashboards: dashboard.NewHandler(sessions, dashboard.DefaultCatalog(), dashboard.NewAnnouncementStore(), recorder, sugar),
		Keys:       apikey.NewHandler(apikey.NewRegistry(keyStore), dataset.NewStaticProvider(nil), recorder, sugar),
		Audit:      audit.NewHandler(recorder, sugar),
	}

	listen := os.Getenv("PORTAL_LISTEN")
	if listen == "" {
		listen = "0.0.0.0:8420"
	}
	srv := &http.Server{
		Addr:    listen,
		Handler: router.RegisterRoutes(deps),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	sugar.Infow("portal is running", "listen", listen)

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
