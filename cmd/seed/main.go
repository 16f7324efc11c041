// seed inserts development sample data for local testing.
// Idempotent: skips inserts if the dev user (dev@example.com) already exists.
package main

import (
	"context"
	"log"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"openhands-enterprise/backend/internal/config"
	"openhands-enterprise/backend/internal/db"
	settingsdomain "openhands-enterprise/backend/internal/settings/domain"
	settingsrepo "openhands-enterprise/backend/internal/settings/repository"
	sharingdomain "openhands-enterprise/backend/internal/sharing/domain"
	sharingrepo "openhands-enterprise/backend/internal/sharing/repository"
	userdomain "openhands-enterprise/backend/internal/user/domain"
	userrepo "openhands-enterprise/backend/internal/user/repository"
	webhookdomain "openhands-enterprise/backend/internal/webhook/domain"
	webhookrepo "openhands-enterprise/backend/internal/webhook/repository"
)

const devKeycloakUserID = "seed-dev-user"

func main() {
	cfg := config.MustLoad()
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	gdb, err := db.OpenGorm(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open gorm: %v", err)
	}
	defer func() {
		if conn, err := gdb.DB(); err == nil {
			_ = conn.Close()
		}
	}()

	node, err := snowflake.NewNode(1)
	if err != nil {
		log.Fatalf("snowflake node: %v", err)
	}

	ctx := context.Background()
	users := userrepo.NewPostgresRepository(gdb, node)

	existing, err := users.GetByKeycloakID(ctx, devKeycloakUserID)
	if err != nil {
		log.Fatalf("check dev user: %v", err)
	}
	if existing != nil {
		log.Println("seed: dev user already exists, nothing to do")
		return
	}

	now := time.Now().UTC()
	devUser := &userdomain.User{
		KeycloakUserID: devKeycloakUserID,
		Email:          "dev@example.com",
		EmailVerified:  true,
		AcceptedTOS:    &now,
	}
	if err := users.Create(ctx, devUser); err != nil {
		log.Fatalf("seed user: %v", err)
	}

	model := settingsdomain.CurrentDefaultModel()
	baseURL := cfg.LiteLLMAPIURL
	if baseURL == "" {
		baseURL = "http://localhost:4000"
	}
	settings := settingsrepo.NewPostgresRepository(gdb, node)
	if err := settings.Create(ctx, &settingsdomain.UserSettings{
		KeycloakUserID: devKeycloakUserID,
		LLMModel:       &model,
		LLMBaseURL:     &baseURL,
		UserVersion:    settingsdomain.CurrentUserSettingsVersion,
		BillingMargin:  1.0,
	}); err != nil {
		log.Fatalf("seed settings: %v", err)
	}

	conversations := sharingrepo.NewPostgresConversationRepository(gdb)
	events := sharingrepo.NewPostgresEventRepository(gdb, node)
	for _, conv := range []sharingdomain.Conversation{
		{ID: "seed-conv-shared", UserID: devKeycloakUserID, Title: "Fix flaky CI job", Shared: true},
		{ID: "seed-conv-private", UserID: devKeycloakUserID, Title: "Draft migration plan", Shared: false},
	} {
		conv := conv
		if err := conversations.Create(ctx, &conv); err != nil {
			log.Fatalf("seed conversation %s: %v", conv.ID, err)
		}
	}
	for seq, kind := range []string{"message", "action", "observation"} {
		if err := events.Create(ctx, &sharingdomain.ConversationEvent{
			ConversationID: "seed-conv-shared",
			Seq:            int64(seq + 1),
			Kind:           kind,
			Payload:        datatypes.JSONMap{"text": "seed event", "seq": seq + 1},
		}); err != nil {
			log.Fatalf("seed event %d: %v", seq+1, err)
		}
	}

	projectID := "42"
	webhooks := webhookrepo.NewPostgresRepository(gdb, node)
	if err := webhooks.Upsert(ctx, &webhookdomain.GitlabWebhook{
		ProjectID:     &projectID,
		UserID:        devKeycloakUserID,
		WebhookExists: true,
		WebhookURL:    "http://localhost:8080/webhooks/gitlab",
		WebhookSecret: uuid.New().String(),
	}); err != nil {
		log.Fatalf("seed webhook: %v", err)
	}

	log.Println("seed: inserted dev user, settings, conversations, and webhook")
}
