package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/openportal/twofa/internal/api"
	"github.com/openportal/twofa/internal/app"
	"github.com/openportal/twofa/internal/auth/challenge"
	"github.com/openportal/twofa/internal/auth/totp"
	"github.com/openportal/twofa/internal/database"
	"github.com/openportal/twofa/internal/directory"
	"github.com/openportal/twofa/internal/notifications"
	"github.com/openportal/twofa/pkg/logger"
	"github.com/openportal/twofa/pkg/mail"
)

// runtimeStack bundles long-lived components used by the HTTP server.
type runtimeStack struct {
	DB      *gorm.DB
	Service *challenge.Service
	Router  *gin.Engine
}

// bootstrapRuntime initialises the database, the challenge service, code
// delivery, and the HTTP router.
func bootstrapRuntime(cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dir, err := directory.New(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise directory: %w", err)
	}

	encryptionKey, err := app.EncryptionKey(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve encryption key: %w", err)
	}

	store, err := challenge.NewStore(stack.DB, dir, encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("initialise secret store: %w", err)
	}

	engine := buildEngine(cfg)

	stack.Service, err = challenge.NewService(store, engine, dir,
		challenge.WithIssuer(cfg.Auth.TOTP.Issuer),
		challenge.WithQRCodeSize(cfg.Auth.TOTP.QRSize),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise challenge service: %w", err)
	}

	mailer, err := mail.NewSMTPMailer(mail.SMTPSettings{
		Enabled:  cfg.Email.SMTP.Enabled,
		Host:     cfg.Email.SMTP.Host,
		Port:     cfg.Email.SMTP.Port,
		Username: cfg.Email.SMTP.Username,
		Password: cfg.Email.SMTP.Password,
		From:     cfg.Email.SMTP.From,
		UseTLS:   cfg.Email.SMTP.UseTLS,
		Timeout:  cfg.Email.SMTP.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}

	issuer := cfg.Auth.TOTP.Issuer
	if strings.TrimSpace(issuer) == "" {
		issuer = "OpenPortal"
	}
	notifier, err := notifications.NewEmailNotifier(mailer, issuer)
	if err != nil {
		return nil, fmt.Errorf("initialise notifier: %w", err)
	}

	stack.Router, err = api.NewRouter(stack.DB, cfg, stack.Service, dir, notifier)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// buildEngine maps configuration onto a verification mode: authenticator-app
// codes when TOTP is enabled, emailed interval codes otherwise.
func buildEngine(cfg *app.Config) *totp.Engine {
	if cfg.Auth.TOTP.Enabled {
		return totp.NewEngine(totp.ModeWindowed)
	}
	return totp.NewEngine(totp.ModeStrict,
		totp.WithEmailInterval(cfg.Auth.TOTP.EmailCodeInterval))
}

// Shutdown releases resources held by the stack.
func (s *runtimeStack) Shutdown(log *zap.Logger) {
	if s == nil || s.DB == nil {
		return
	}

	if err := database.Close(s.DB); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.Connection()

	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected",
		zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}
