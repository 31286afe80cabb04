package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/cloo-solutions/counsel/internal/domain"
)

const apiKeyPrefix = "cns_"

type OrgRepository interface {
	Create(ctx context.Context, org *domain.Organization) error
	GetByID(ctx context.Context, id string) (*domain.Organization, error)
	GetByName(ctx context.Context, name string) (*domain.Organization, error)
	List(ctx context.Context) ([]*domain.Organization, error)
}

type APIKeyRepository interface {
	Create(ctx context.Context, key *domain.APIKey) error
	GetByID(ctx context.Context, id string) (*domain.APIKey, error)
	GetByHash(ctx context.Context, hash string) (*domain.APIKey, error)
	GetByOrgID(ctx context.Context, orgID string) ([]*domain.APIKey, error)
	Revoke(ctx context.Context, id string) error
}

type AuthService struct {
	orgRepo OrgRepository
	keyRepo APIKeyRepository
	uuidGen UUIDGenerator
}

func NewAuthService(orgRepo OrgRepository, keyRepo APIKeyRepository, uuidGen UUIDGenerator) *AuthService {
	return &AuthService{
		orgRepo: orgRepo,
		keyRepo: keyRepo,
		uuidGen: uuidGen,
	}
}

// CreateOrg registers an organization. Names are unique; a clash surfaces
// as domain.ErrOrganizationAlreadyExists from the repository.
func (s *AuthService) CreateOrg(ctx context.Context, name string) (*domain.Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "organization name is required")
	}
	org := domain.NewOrganization(s.uuidGen.NewString(), name, time.Now().UTC())
	if err := domain.ValidateOrganization(org); err != nil {
		return nil, err
	}
	if err := s.orgRepo.Create(ctx, org); err != nil {
		return nil, err
	}
	return org, nil
}

// CreateAPIKey issues a key acting as userID within the organization and
// returns the plaintext token. Only its hash is stored.
func (s *AuthService) CreateAPIKey(ctx context.Context, orgID, userID, name string) (string, error) {
	if err := requireKeyFields(orgID, userID, name); err != nil {
		return "", err
	}
	token, err := generateAPIToken()
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to generate API key", err)
	}
	if err := s.storeKey(ctx, orgID, userID, name, token); err != nil {
		return "", err
	}
	return token, nil
}

// CreateAPIKeyWithToken stores a caller-chosen token, used for bootstrap.
func (s *AuthService) CreateAPIKeyWithToken(ctx context.Context, orgID, userID, name, token string) error {
	if err := requireKeyFields(orgID, userID, name); err != nil {
		return err
	}
	if !IsValidAPIToken(token) {
		return domain.NewDomainError(domain.ErrCodeValidation, "invalid API key format (expected cns_<64 hex chars>)")
	}
	return s.storeKey(ctx, orgID, userID, name, token)
}

func requireKeyFields(orgID, userID, name string) error {
	switch {
	case orgID == "":
		return domain.NewDomainError(domain.ErrCodeValidation, "organization ID is required")
	case userID == "":
		return domain.NewDomainError(domain.ErrCodeValidation, "user ID is required")
	case name == "":
		return domain.NewDomainError(domain.ErrCodeValidation, "API key name is required")
	}
	return nil
}

func (s *AuthService) storeKey(ctx context.Context, orgID, userID, name, token string) error {
	if _, err := s.orgRepo.GetByID(ctx, orgID); err != nil {
		return err
	}
	key := domain.NewAPIKey(s.uuidGen.NewString(), orgID, userID, name, hashToken(token), time.Now().UTC(), nil)
	if err := domain.ValidateAPIKey(key); err != nil {
		return err
	}
	return s.keyRepo.Create(ctx, key)
}

// ValidateAPIKey resolves a bearer token to the identity it acts as. Unknown
// and malformed tokens are indistinguishable to the caller.
func (s *AuthService) ValidateAPIKey(ctx context.Context, token string) (domain.Identity, error) {
	key, err := s.GetAPIKeyByHash(ctx, token)
	switch {
	case errors.Is(err, domain.ErrAPIKeyNotFound):
		return domain.Identity{}, domain.ErrInvalidAPIKey
	case err != nil:
		return domain.Identity{}, err
	case key.IsRevoked():
		return domain.Identity{}, domain.ErrAPIKeyRevoked
	}
	return key.Identity(), nil
}

func (s *AuthService) RevokeAPIKey(ctx context.Context, keyID string) error {
	if keyID == "" {
		return domain.NewDomainError(domain.ErrCodeValidation, "API key ID is required")
	}

	return s.keyRepo.Revoke(ctx, keyID)
}

func (s *AuthService) ListAPIKeys(ctx context.Context, orgID string) ([]*domain.APIKey, error) {
	if orgID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "organization ID is required")
	}

	return s.keyRepo.GetByOrgID(ctx, orgID)
}

// GetAPIKeyByHash looks a key up by its plaintext token.
func (s *AuthService) GetAPIKeyByHash(ctx context.Context, token string) (*domain.APIKey, error) {
	if !IsValidAPIToken(token) {
		return nil, domain.ErrInvalidAPIKey
	}
	return s.keyRepo.GetByHash(ctx, hashToken(token))
}

func generateAPIToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(bytes), nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// IsValidAPIToken reports whether token has the cns_ prefix followed by 64 hex digits.
func IsValidAPIToken(token string) bool {
	hexPart, ok := strings.CutPrefix(token, apiKeyPrefix)
	if !ok || len(hexPart) != 64 {
		return false
	}
	_, err := hex.DecodeString(hexPart)
	return err == nil
}
