package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"openhands-enterprise/backend/internal/apikeys/domain"

	"github.com/bwmarrin/snowflake"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.ApiKey{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestRepository(t *testing.T) *PostgresRepository {
	t.Helper()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return NewPostgresRepository(setupTestDB(t), node)
}

func TestPostgresRepository_GetByUserAndProvider_NotFound(t *testing.T) {
	repo := newTestRepository(t)

	got, err := repo.GetByUserAndProvider(context.Background(), "user-1", domain.ProviderLitellm)
	if err != nil {
		t.Fatalf("GetByUserAndProvider() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetByUserAndProvider() = %+v, want nil", got)
	}
}

func TestPostgresRepository_CreateAndGet(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	key := &domain.ApiKey{UserID: "user-1", Provider: domain.ProviderLitellm, Key: "sk-test"}
	if err := repo.Create(ctx, key); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if key.ID == 0 {
		t.Error("Create() did not assign an id")
	}

	got, err := repo.GetByUserAndProvider(ctx, "user-1", domain.ProviderLitellm)
	if err != nil {
		t.Fatalf("GetByUserAndProvider() error = %v", err)
	}
	if got == nil || got.Key != "sk-test" {
		t.Errorf("GetByUserAndProvider() = %+v, want stored key", got)
	}
}

func TestPostgresRepository_Create_Invalid(t *testing.T) {
	repo := newTestRepository(t)

	err := repo.Create(context.Background(), &domain.ApiKey{UserID: "user-1"})
	if err == nil {
		t.Error("Create() error = nil, want validation error")
	}
}

func TestPostgresRepository_UpdateKey(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	key := &domain.ApiKey{UserID: "user-1", Provider: domain.ProviderLitellm, Key: "sk-old"}
	if err := repo.Create(ctx, key); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.UpdateKey(ctx, key.ID, "sk-new"); err != nil {
		t.Fatalf("UpdateKey() error = %v", err)
	}

	got, err := repo.GetByUserAndProvider(ctx, "user-1", domain.ProviderLitellm)
	if err != nil {
		t.Fatalf("GetByUserAndProvider() error = %v", err)
	}
	if got.Key != "sk-new" {
		t.Errorf("key = %q, want sk-new", got.Key)
	}
	if got.ID != key.ID {
		t.Errorf("id = %d, want unchanged %d", got.ID, key.ID)
	}
}
