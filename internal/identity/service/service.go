// Package service implements the identity registry: registration with
// one-time code confirmation, authentication, and the narrow mutations the
// other features perform on identity records.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"ballotgate/internal/identity/models"
	"ballotgate/internal/identity/secrets"
	"ballotgate/internal/platform/metrics"
	id "ballotgate/pkg/domain"
	dErrors "ballotgate/pkg/domain-errors"
	"ballotgate/pkg/platform/sentinel"
	"ballotgate/pkg/requestcontext"
)

// Store is the identity persistence the registry needs.
type Store interface {
	Create(ctx context.Context, identity *models.Identity) error
	FindByID(ctx context.Context, identityID id.IdentityID) (*models.Identity, error)
	FindByNationalIDHash(ctx context.Context, hash string) (*models.Identity, error)
	FindByEmail(ctx context.Context, email string) (*models.Identity, error)
	FindByMobile(ctx context.Context, mobile string) (*models.Identity, error)
	AdminExists(ctx context.Context) (bool, error)
	SetVerified(ctx context.Context, identityID id.IdentityID) error
	UpdateCredential(ctx context.Context, identityID id.IdentityID, digest string) error
}

// Mailer delivers one-time codes; see internal/mailer.
type Mailer interface {
	SendOTP(ctx context.Context, toEmail, code string) error
}

// TokenIssuer is the token collaborator.
type TokenIssuer interface {
	Issue(identityID id.IdentityID) (string, error)
}

// Lockout throttles failed authentications per national-id hash.
type Lockout interface {
	Check(ctx context.Context, key string) error
	RecordFailure(ctx context.Context, key string)
	ClearFailures(ctx context.Context, key string)
}

var nationalIDPattern = regexp.MustCompile(`^\d{12}$`)

const minVoterAge = 18

type Service struct {
	store   Store
	mailer  Mailer
	tokens  TokenIssuer
	lockout Lockout
	otpTTL  time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLockout(l Lockout) Option {
	return func(s *Service) { s.lockout = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(store Store, mailer Mailer, tokens TokenIssuer, otpTTL time.Duration, logger *slog.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("identity store is required")
	}
	if mailer == nil {
		return nil, fmt.Errorf("mailer is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token issuer is required")
	}

	svc := &Service{
		store:  store,
		mailer: mailer,
		tokens: tokens,
		otpTTL: otpTTL,
		logger: logger,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Register creates an unverified identity and sends it a one-time code.
// Delivery is fire-and-forget: a mail outage is logged but never fails
// registration, trading a possibly-undelivered code for signup that cannot
// be blocked by the mail dependency.
func (s *Service) Register(ctx context.Context, req models.RegistrationRequest) (*models.RegistrationResult, error) {
	if req.Email == "" || req.Mobile == "" || req.NationalID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "email, mobile, and national id are required")
	}
	if req.Name == "" || req.Secret == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "name and password are required")
	}
	if !nationalIDPattern.MatchString(req.NationalID) {
		return nil, dErrors.New(dErrors.CodeValidation, "national id must be exactly 12 digits")
	}
	if req.Age < minVoterAge {
		return nil, dErrors.Newf(dErrors.CodeValidation, "you must be at least %d years old to register", minVoterAge)
	}

	role := req.Role
	if role == "" {
		role = models.RoleVoter
	}
	if role != models.RoleVoter && role != models.RoleAdmin {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid role")
	}

	if _, err := s.store.FindByEmail(ctx, req.Email); err == nil {
		return nil, dErrors.New(dErrors.CodeConflict, "email already exists")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "registration unavailable")
	}
	if _, err := s.store.FindByMobile(ctx, req.Mobile); err == nil {
		return nil, dErrors.New(dErrors.CodeConflict, "mobile number already exists")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "registration unavailable")
	}

	nationalIDHash := secrets.HashNationalID(req.NationalID)
	if _, err := s.store.FindByNationalIDHash(ctx, nationalIDHash); err == nil {
		return nil, dErrors.New(dErrors.CodeConflict, "an identity with this national id already exists")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "registration unavailable")
	}

	if role == models.RoleAdmin {
		exists, err := s.store.AdminExists(ctx)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "registration unavailable")
		}
		if exists {
			return nil, dErrors.New(dErrors.CodeConflict, "admin identity already exists")
		}
	}

	digest, err := secrets.Hash(req.Secret)
	if err != nil {
		return nil, err
	}
	otp, err := secrets.NewOTP()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "registration failed")
	}

	now := requestcontext.Now(ctx)
	identity := &models.Identity{
		ID:                id.NewIdentityID(),
		Name:              req.Name,
		Age:               req.Age,
		Email:             req.Email,
		Mobile:            req.Mobile,
		Address:           req.Address,
		NationalIDHash:    nationalIDHash,
		NationalIDLast4:   req.NationalID[len(req.NationalID)-4:],
		CredentialDigest:  digest,
		Role:              role,
		ApplicationStatus: models.ApplicationNone,
		OTPCode:           otp,
		OTPExpiresAt:      now.Add(s.otpTTL),
		CreatedAt:         now,
	}

	if err := s.store.Create(ctx, identity); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// A concurrent registration won the constraint race.
			return nil, dErrors.New(dErrors.CodeConflict, "duplicate registration")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "registration unavailable")
	}

	if err := s.mailer.SendOTP(ctx, identity.Email, otp); err != nil {
		s.logger.WarnContext(ctx, "otp delivery failed",
			"identity_id", identity.ID,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	}

	if s.metrics != nil {
		s.metrics.IdentitiesRegistered.Inc()
	}
	return &models.RegistrationResult{IdentityID: identity.ID, Email: identity.Email}, nil
}

// ConfirmCode verifies the one-time code, marks the identity verified, and
// issues its first token. Confirming an already-verified identity is a
// conflict, not a silent success.
func (s *Service) ConfirmCode(ctx context.Context, identityID id.IdentityID, code string) (*models.AuthResult, error) {
	if code == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "code is required")
	}

	identity, err := s.store.FindByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "identity not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "verification unavailable")
	}

	if identity.Verified {
		return nil, dErrors.New(dErrors.CodeConflict, "identity already verified")
	}
	if identity.OTPCode == "" || identity.OTPCode != code {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid code")
	}
	if requestcontext.Now(ctx).After(identity.OTPExpiresAt) {
		return nil, dErrors.New(dErrors.CodeValidation, "code expired")
	}

	if err := s.store.SetVerified(ctx, identityID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "verification unavailable")
	}

	token, err := s.tokens.Issue(identityID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "token issuance failed")
	}
	return &models.AuthResult{Token: token, Role: identity.Role}, nil
}

// Authenticate resolves credentials to a token. Unknown national ids and
// wrong secrets produce the same opaque error so callers cannot tell which
// identifiers are registered.
func (s *Service) Authenticate(ctx context.Context, nationalID, secret string) (*models.AuthResult, error) {
	if nationalID == "" || secret == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "national id and password are required")
	}

	hash := secrets.HashNationalID(nationalID)
	if s.lockout != nil {
		if err := s.lockout.Check(ctx, hash); err != nil {
			return nil, err
		}
	}

	identity, err := s.store.FindByNationalIDHash(ctx, hash)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.recordFailure(ctx, hash)
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "authentication unavailable")
	}

	if !identity.Verified {
		return nil, dErrors.New(dErrors.CodeForbidden, "identity not verified, confirm your code first")
	}

	if err := secrets.Verify(secret, identity.CredentialDigest); err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			s.recordFailure(ctx, hash)
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "authentication failed")
	}

	if s.lockout != nil {
		s.lockout.ClearFailures(ctx, hash)
	}

	token, err := s.tokens.Issue(identity.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "token issuance failed")
	}
	return &models.AuthResult{Token: token, Role: identity.Role}, nil
}

// Profile returns the identity's own view of its record.
func (s *Service) Profile(ctx context.Context, identityID id.IdentityID) (*models.ProfileView, error) {
	identity, err := s.store.FindByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "identity not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "profile unavailable")
	}
	view := identity.Profile()
	return &view, nil
}

// ChangeSecret replaces the credential after re-verifying the current one.
func (s *Service) ChangeSecret(ctx context.Context, identityID id.IdentityID, current, next string) error {
	if current == "" || next == "" {
		return dErrors.New(dErrors.CodeValidation, "current and new password are required")
	}

	identity, err := s.store.FindByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "identity not found")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "password change unavailable")
	}

	if err := secrets.Verify(current, identity.CredentialDigest); err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			return dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "password change failed")
	}

	digest, err := secrets.Hash(next)
	if err != nil {
		return err
	}
	if err := s.store.UpdateCredential(ctx, identityID, digest); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "password change unavailable")
	}
	return nil
}

// RoleOf is the capability lookup behind admin gating. It reads the record
// so a role change is effective immediately, independent of token lifetime.
func (s *Service) RoleOf(ctx context.Context, identityID id.IdentityID) (string, error) {
	identity, err := s.store.FindByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.New(dErrors.CodeNotFound, "identity not found")
		}
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "identity unavailable")
	}
	return identity.Role, nil
}

func (s *Service) recordFailure(ctx context.Context, hash string) {
	if s.lockout != nil {
		s.lockout.RecordFailure(ctx, hash)
	}
}
