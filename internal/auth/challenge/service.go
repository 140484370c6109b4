package challenge

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/openportal/twofa/internal/auth/totp"
	"github.com/openportal/twofa/internal/directory"
	apperrors "github.com/openportal/twofa/pkg/errors"
	"github.com/openportal/twofa/pkg/logger"
	"github.com/openportal/twofa/pkg/metrics"
)

const (
	defaultIssuer     = "OpenPortal"
	defaultQRCodeSize = 256

	// watermarkRetries bounds the reload-and-recheck loop when concurrent
	// verifications race on the last_access compare-and-set.
	watermarkRetries = 3
)

// Option allows customising the challenge service.
type Option func(*Service)

// WithIssuer overrides the issuer string encoded in provisioning URIs.
func WithIssuer(issuer string) Option {
	return func(s *Service) {
		if strings.TrimSpace(issuer) != "" {
			s.issuer = issuer
		}
	}
}

// WithQRCodeSize controls the pixel size of generated QR codes.
func WithQRCodeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.qrCodeSize = size
		}
	}
}

// WithClock injects a custom time source, primarily for testing.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.now = clock
		}
	}
}

// Service orchestrates the secret store and the TOTP engine: provisioning,
// provisioning URIs and QR codes, and code verification with the replay
// contract. It never touches the persistence layer's transaction primitives
// directly; the store owns those boundaries.
type Service struct {
	store  *Store
	engine *totp.Engine
	dir    directory.Finder

	issuer     string
	qrCodeSize int
	now        func() time.Time
	log        *zap.Logger
}

// NewService constructs a challenge service.
func NewService(store *Store, engine *totp.Engine, dir directory.Finder, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("challenge: store is required")
	}
	if engine == nil {
		return nil, errors.New("challenge: engine is required")
	}
	if dir == nil {
		return nil, errors.New("challenge: directory is required")
	}

	service := &Service{
		store:      store,
		engine:     engine,
		dir:        dir,
		issuer:     defaultIssuer,
		qrCodeSize: defaultQRCodeSize,
		now:        time.Now,
		log:        logger.WithModule("challenge"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Get exposes the user's secret record for rendering, or nil when the user
// was never provisioned. ErrUserNotFound when the identifier does not resolve.
func (s *Service) Get(ctx context.Context, identifier string) (*Record, error) {
	return s.store.Get(ctx, identifier)
}

// Provision generates a fresh secret for the user and stores it, replacing
// any previous secret wholesale. Every call invalidates all codes derived
// from the previous secret.
func (s *Service) Provision(ctx context.Context, identifier string) (*Record, error) {
	user, err := s.dir.Find(ctx, identifier)
	if err != nil {
		return nil, err
	}

	secret, err := s.engine.GenerateSecret()
	if err != nil {
		return nil, err
	}

	rec, err := s.store.Upsert(ctx, user.ID, secret)
	if err != nil {
		return nil, err
	}

	metrics.SecretsProvisioned.Inc()
	s.log.Info("second-factor secret provisioned", zap.String("user_id", user.ID))

	return rec, nil
}

// ProvisioningURI builds the otpauth:// URI for importing the record's secret
// into an authenticator app. It fails with ErrInvalidState when the owning
// user vanished between loading the record and rendering the URI.
func (s *Service) ProvisioningURI(ctx context.Context, rec *Record) (string, error) {
	if rec == nil {
		return "", apperrors.ErrInvalidState
	}

	user, err := s.dir.Find(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return "", apperrors.ErrInvalidState.WithInternal(
				fmt.Errorf("no user found for secret record with user_id %s", rec.UserID))
		}
		return "", err
	}

	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s",
		url.PathEscape(s.issuer),
		url.PathEscape(user.Username),
		url.QueryEscape(rec.Secret),
		url.QueryEscape(s.issuer),
	), nil
}

// QRCode renders the provisioning URI as a PNG for setup pages.
func (s *Service) QRCode(ctx context.Context, rec *Record) ([]byte, error) {
	uri, err := s.ProvisioningURI(ctx, rec)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(uri, qrcode.Medium, s.qrCodeSize)
}

// CurrentDisplayCode returns the code for the current time step, for manual
// entry or email delivery. Empty when the user was never provisioned.
func (s *Service) CurrentDisplayCode(ctx context.Context, identifier string) (string, error) {
	rec, err := s.store.Get(ctx, identifier)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", nil
	}

	return s.engine.CurrentCode(rec.Secret)
}

// Verify validates a submitted code for the user. With persist false the
// check is advisory only (setup confirmation): no state changes and no
// replay check. With persist true a valid code advances the last_access
// watermark, and resubmitting the code consumed at the current watermark
// fails with ErrReplayAttack.
//
// An unprovisioned user yields false, not an error, so unauthenticated
// callers cannot distinguish "no secret" from "wrong code". An unresolvable
// identifier is ErrUserNotFound.
func (s *Service) Verify(ctx context.Context, identifier, code string, persist bool) (bool, error) {
	rec, err := s.store.Get(ctx, identifier)
	if err != nil {
		return false, err
	}
	if rec == nil {
		s.log.Debug("verification attempted without provisioned secret")
		return false, nil
	}

	code = strings.TrimSpace(code)

	outcome, err := s.engine.Verify(rec.Secret, code)
	if err != nil {
		return false, err
	}
	if !outcome.Valid {
		metrics.VerificationAttempts.WithLabelValues(s.engine.Mode().String(), "failure").Inc()
		s.log.Debug("failed to verify submitted code", zap.String("user_id", rec.UserID))
		return false, nil
	}

	if !persist {
		return true, nil
	}

	for attempt := 0; attempt < watermarkRetries; attempt++ {
		if s.isReplay(rec, outcome) {
			metrics.VerificationAttempts.WithLabelValues(s.engine.Mode().String(), "replay").Inc()
			metrics.ReplayDetections.Inc()
			s.log.Warn("replayed one-time code rejected", zap.String("user_id", rec.UserID))
			return false, apperrors.ErrReplayAttack
		}

		ok, err := s.store.RecordSuccess(ctx, rec, s.now())
		if err != nil {
			// If the durable write failed the verification failed; never
			// report succeeded-but-unpersisted.
			return false, err
		}
		if ok {
			metrics.VerificationAttempts.WithLabelValues(s.engine.Mode().String(), "success").Inc()
			return true, nil
		}

		// A concurrent verification advanced the watermark; reload and
		// re-run the replay check against the new value.
		rec, err = s.store.Get(ctx, identifier)
		if err != nil {
			return false, err
		}
		if rec == nil {
			return false, nil
		}
	}

	return false, fmt.Errorf("challenge: watermark contention for user, giving up after %d attempts", watermarkRetries)
}

// isReplay reports whether the submitted code matched the same time step
// whose code was consumed at the record's current watermark. Comparing steps
// keeps storage O(1) per user, but it only detects replay of the most
// recently accepted code — older codes inside the tolerance window are
// already rejected by step arithmetic once time advances.
func (s *Service) isReplay(rec *Record, outcome totp.Outcome) bool {
	if rec.LastAccess == nil {
		return false
	}

	return outcome.MatchedAt.Equal(s.engine.StepStart(*rec.LastAccess))
}
