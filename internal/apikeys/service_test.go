package apikeys

import (
	"context"
	"errors"
	"testing"

	"openhands-enterprise/backend/internal/apikeys/domain"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

type fakeRepo struct {
	stored    *domain.ApiKey
	getErr    error
	createErr error
	updateErr error

	created     *domain.ApiKey
	updatedID   snowflake.ID
	updatedKey  string
	updateCalls int
}

func (r *fakeRepo) GetByUserAndProvider(_ context.Context, userID, provider string) (*domain.ApiKey, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	if r.stored == nil || r.stored.UserID != userID || r.stored.Provider != provider {
		return nil, nil
	}
	copied := *r.stored
	return &copied, nil
}

func (r *fakeRepo) Create(_ context.Context, key *domain.ApiKey) error {
	if r.createErr != nil {
		return r.createErr
	}
	key.ID = 1
	r.created = key
	return nil
}

func (r *fakeRepo) UpdateKey(_ context.Context, id snowflake.ID, key string) error {
	r.updateCalls++
	if r.updateErr != nil {
		return r.updateErr
	}
	r.updatedID = id
	r.updatedKey = key
	return nil
}

type fakeProvider struct {
	generated   string
	generateErr error
	deleteErr   error
	valid       bool

	generateCalls int
	deletedKeys   []string
	verifiedKeys  []string
}

func (p *fakeProvider) GenerateKey(context.Context, string) (string, error) {
	p.generateCalls++
	if p.generateErr != nil {
		return "", p.generateErr
	}
	return p.generated, nil
}

func (p *fakeProvider) DeleteKey(_ context.Context, key string) error {
	p.deletedKeys = append(p.deletedKeys, key)
	return p.deleteErr
}

func (p *fakeProvider) VerifyKey(_ context.Context, key string) bool {
	p.verifiedKeys = append(p.verifiedKeys, key)
	return p.valid
}

func storedKey(key string) *domain.ApiKey {
	return &domain.ApiKey{
		ID:       42,
		UserID:   "user-1",
		Provider: domain.ProviderLitellm,
		Key:      key,
	}
}

func TestService_GetOrCreateLitellmKey_GeneratesWhenAbsent(t *testing.T) {
	repo := &fakeRepo{}
	provider := &fakeProvider{generated: "sk-new"}
	s := NewService(repo, provider, zap.NewNop())

	key, err := s.GetOrCreateLitellmKey(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetOrCreateLitellmKey() error = %v", err)
	}
	if key != "sk-new" {
		t.Errorf("key = %q, want sk-new", key)
	}
	if repo.created == nil {
		t.Fatal("generated key was not stored")
	}
	if repo.created.Provider != domain.ProviderLitellm {
		t.Errorf("provider = %q, want %q", repo.created.Provider, domain.ProviderLitellm)
	}
	if len(provider.verifiedKeys) != 0 {
		t.Errorf("verify calls = %d, want 0 with no stored key", len(provider.verifiedKeys))
	}
}

func TestService_GetOrCreateLitellmKey_ReturnsValidStoredKey(t *testing.T) {
	repo := &fakeRepo{stored: storedKey("sk-existing")}
	provider := &fakeProvider{valid: true}
	s := NewService(repo, provider, zap.NewNop())

	key, err := s.GetOrCreateLitellmKey(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetOrCreateLitellmKey() error = %v", err)
	}
	if key != "sk-existing" {
		t.Errorf("key = %q, want sk-existing", key)
	}
	if provider.generateCalls != 0 {
		t.Errorf("generate calls = %d, want 0 for a valid stored key", provider.generateCalls)
	}
	if len(provider.verifiedKeys) != 1 || provider.verifiedKeys[0] != "sk-existing" {
		t.Errorf("verified keys = %v, want [sk-existing]", provider.verifiedKeys)
	}
}

func TestService_GetOrCreateLitellmKey_ReplacesInvalidKey(t *testing.T) {
	repo := &fakeRepo{stored: storedKey("sk-stale")}
	provider := &fakeProvider{valid: false, generated: "sk-fresh"}
	s := NewService(repo, provider, zap.NewNop())

	key, err := s.GetOrCreateLitellmKey(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetOrCreateLitellmKey() error = %v", err)
	}
	if key != "sk-fresh" {
		t.Errorf("key = %q, want sk-fresh", key)
	}
	if len(provider.deletedKeys) != 1 || provider.deletedKeys[0] != "sk-stale" {
		t.Errorf("deleted keys = %v, want [sk-stale]", provider.deletedKeys)
	}
	if repo.updatedID != 42 || repo.updatedKey != "sk-fresh" {
		t.Errorf("updated row %d with %q, want 42 with sk-fresh", repo.updatedID, repo.updatedKey)
	}
}

func TestService_GetOrCreateLitellmKey_DeleteFailureStillReplaces(t *testing.T) {
	repo := &fakeRepo{stored: storedKey("sk-stale")}
	provider := &fakeProvider{
		valid:     false,
		generated: "sk-fresh",
		deleteErr: errors.New("proxy unavailable"),
	}
	s := NewService(repo, provider, zap.NewNop())

	key, err := s.GetOrCreateLitellmKey(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetOrCreateLitellmKey() error = %v", err)
	}
	if key != "sk-fresh" {
		t.Errorf("key = %q, want sk-fresh despite delete failure", key)
	}
	if repo.updatedKey != "sk-fresh" {
		t.Errorf("stored key = %q, want sk-fresh", repo.updatedKey)
	}
}

func TestService_GetOrCreateLitellmKey_GenerateFails(t *testing.T) {
	repo := &fakeRepo{}
	provider := &fakeProvider{generateErr: errors.New("proxy down")}
	s := NewService(repo, provider, zap.NewNop())

	_, err := s.GetOrCreateLitellmKey(context.Background(), "user-1")
	if err == nil {
		t.Fatal("GetOrCreateLitellmKey() error = nil, want generation failure")
	}
}

func TestService_GetOrCreateLitellmKey_LookupFails(t *testing.T) {
	repo := &fakeRepo{getErr: errors.New("db down")}
	s := NewService(repo, &fakeProvider{}, zap.NewNop())

	_, err := s.GetOrCreateLitellmKey(context.Background(), "user-1")
	if err == nil {
		t.Fatal("GetOrCreateLitellmKey() error = nil, want lookup failure")
	}
}

func TestService_GetOrCreateLitellmKey_StoreFails(t *testing.T) {
	repo := &fakeRepo{createErr: errors.New("insert failed")}
	provider := &fakeProvider{generated: "sk-new"}
	s := NewService(repo, provider, zap.NewNop())

	_, err := s.GetOrCreateLitellmKey(context.Background(), "user-1")
	if err == nil {
		t.Fatal("GetOrCreateLitellmKey() error = nil, want store failure")
	}
}
