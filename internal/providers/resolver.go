package providers

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/modelgate/modelgate/internal/models"
	"gorm.io/gorm"
)

// Resolution failures, distinct so callers can map them to HTTP status
// codes deterministically.
var (
	// ErrProviderNotFound indicates a missing or inactive provider or model.
	ErrProviderNotFound = errors.New("provider not found or inactive")
	// ErrCredentialNotFound indicates no usable API key for the user and provider.
	ErrCredentialNotFound = errors.New("no active credential for provider")
	// ErrServiceCreation indicates the provider has no registered client constructor.
	ErrServiceCreation = errors.New("provider client construction failed")
)

// Resolver turns a user identity plus a provider or model selector into
// a ready-to-use Client backed by the user's stored credential.
type Resolver struct {
	db    *gorm.DB
	cache *ClientCache
}

// NewResolver returns a Resolver using the given cache. A nil cache
// disables instance reuse.
func NewResolver(db *gorm.DB, cache *ClientCache) *Resolver {
	return &Resolver{db: db, cache: cache}
}

// Resolution carries the resolved client together with the records that
// produced it, so callers can persist references without re-querying.
type Resolution struct {
	Client     Client
	Provider   models.Provider
	Model      *models.AIModel
	Credential models.Credential
}

// ResolveByProviderCode resolves a client for the user's most recent
// active credential on the named provider.
func (r *Resolver) ResolveByProviderCode(userID uint64, code string) (*Resolution, error) {
	parsed, errParse := models.ParseProviderCode(code)
	if errParse != nil {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, code)
	}
	var provider models.Provider
	errFind := r.db.Where("code = ? AND is_active = ?", string(parsed), true).First(&provider).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, code)
		}
		return nil, fmt.Errorf("providers: find provider %s: %w", code, errFind)
	}
	return r.resolveForProvider(userID, provider, nil)
}

// ResolveByProviderID resolves a client for the user's most recent
// active credential on the provider with the given id.
func (r *Resolver) ResolveByProviderID(userID, providerID uint64) (*Resolution, error) {
	var provider models.Provider
	errFind := r.db.Where("id = ? AND is_active = ?", providerID, true).First(&provider).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrProviderNotFound, providerID)
		}
		return nil, fmt.Errorf("providers: find provider %d: %w", providerID, errFind)
	}
	return r.resolveForProvider(userID, provider, nil)
}

// ResolveByModel resolves the model to its owning provider first. The
// selector may be a numeric model id or a model code.
func (r *Resolver) ResolveByModel(userID uint64, selector string) (*Resolution, error) {
	var model models.AIModel
	query := r.db.Where("is_active = ?", true)
	if id, errAtoi := strconv.ParseUint(selector, 10, 64); errAtoi == nil {
		query = query.Where("id = ?", id)
	} else {
		query = query.Where("code = ?", selector)
	}
	errFind := query.First(&model).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: model %s", ErrProviderNotFound, selector)
		}
		return nil, fmt.Errorf("providers: find model %s: %w", selector, errFind)
	}

	var provider models.Provider
	errProvider := r.db.Where("id = ? AND is_active = ?", model.ProviderID, true).First(&provider).Error
	if errProvider != nil {
		if errors.Is(errProvider, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: provider of model %s", ErrProviderNotFound, selector)
		}
		return nil, fmt.Errorf("providers: find provider %d: %w", model.ProviderID, errProvider)
	}
	return r.resolveForProvider(userID, provider, &model)
}

// resolveForProvider finds the credential and constructs or reuses the
// client instance.
func (r *Resolver) resolveForProvider(userID uint64, provider models.Provider, model *models.AIModel) (*Resolution, error) {
	var credential models.Credential
	errFind := r.db.
		Where("user_id = ? AND provider_id = ? AND is_active = ?", userID, provider.ID, true).
		Order("created_at DESC").
		First(&credential).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCredentialNotFound, provider.Code)
		}
		return nil, fmt.Errorf("providers: find credential: %w", errFind)
	}

	resolution := &Resolution{Provider: provider, Model: model, Credential: credential}
	if r.cache != nil {
		if client, ok := r.cache.Get(credential.ID); ok {
			resolution.Client = client
			return resolution, nil
		}
	}

	ctor, ok := constructorFor(models.ProviderCode(provider.Code))
	if !ok {
		return nil, fmt.Errorf("%w: no client registered for %s", ErrServiceCreation, provider.Code)
	}
	client := ctor(credential.SecretValue)
	if r.cache != nil {
		r.cache.Put(credential.ID, client)
	}
	resolution.Client = client
	return resolution, nil
}
