package settings

import (
	"context"
	"errors"
	"strings"
	"testing"

	"openhands-enterprise/backend/internal/litellm"
	"openhands-enterprise/backend/internal/settings/domain"

	"go.uber.org/zap"
)

const testBaseURL = "http://llm.test"

type fakeSettingsRepo struct {
	rows    map[string]*domain.UserSettings
	margins map[string]float64
	getErr  error
	saveErr error
	saves   int
}

func (r *fakeSettingsRepo) GetByUserID(ctx context.Context, userID string) (*domain.UserSettings, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	s, ok := r.rows[userID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSettingsRepo) Save(ctx context.Context, s *domain.UserSettings) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	if err := s.Validate(); err != nil {
		return err
	}
	s.UserVersion = domain.CurrentUserSettingsVersion
	if r.rows == nil {
		r.rows = map[string]*domain.UserSettings{}
	}
	cp := *s
	r.rows[s.KeycloakUserID] = &cp
	r.saves++
	return nil
}

func (r *fakeSettingsRepo) SetBillingMargin(ctx context.Context, userID string, margin float64) error {
	if r.margins == nil {
		r.margins = map[string]float64{}
	}
	r.margins[userID] = margin
	if row, ok := r.rows[userID]; ok {
		row.BillingMargin = margin
	}
	return nil
}

type fakeProvisioner struct {
	enabled   bool
	info      *litellm.UserInfo
	infoErr   error
	deleteErr error
	deletes   int
	// createErr holds per-call results for CreateUser; a nil entry succeeds.
	createErr []error
	created   []litellm.CreateUserRequest
	key       string
}

func (p *fakeProvisioner) Enabled() bool { return p.enabled }

func (p *fakeProvisioner) GetUserInfo(ctx context.Context, userID string) (*litellm.UserInfo, error) {
	return p.info, p.infoErr
}

func (p *fakeProvisioner) DeleteUser(ctx context.Context, userID string) error {
	p.deletes++
	return p.deleteErr
}

func (p *fakeProvisioner) CreateUser(ctx context.Context, req litellm.CreateUserRequest) (string, error) {
	idx := len(p.created)
	p.created = append(p.created, req)
	if idx < len(p.createErr) && p.createErr[idx] != nil {
		return "", p.createErr[idx]
	}
	if p.key == "" {
		return "sk-issued", nil
	}
	return p.key, nil
}

func newTestService(repo *fakeSettingsRepo, llm *fakeProvisioner) *Service {
	return NewService(repo, llm, testBaseURL, zap.NewNop())
}

func floatPtr(f float64) *float64 { return &f }

func strPtr(s string) *string { return &s }

func TestService_ApplyDefaults_DisabledIsNoop(t *testing.T) {
	repo := &fakeSettingsRepo{}
	llm := &fakeProvisioner{enabled: false}
	svc := newTestService(repo, llm)

	current := &domain.UserSettings{KeycloakUserID: "user-1"}
	got, err := svc.ApplyDefaults(context.Background(), "user-1", "u@example.com", current)
	if err != nil {
		t.Fatalf("ApplyDefaults: %v", err)
	}
	if got != current {
		t.Error("settings should be returned unchanged when provisioning is disabled")
	}
	if len(llm.created) != 0 || llm.deletes != 0 {
		t.Error("no proxy calls expected when provisioning is disabled")
	}
}

func TestService_ApplyDefaults_NewUser(t *testing.T) {
	repo := &fakeSettingsRepo{}
	llm := &fakeProvisioner{enabled: true} // GetUserInfo: unknown user
	svc := newTestService(repo, llm)

	got, err := svc.ApplyDefaults(context.Background(), "user-1", "u@example.com", nil)
	if err != nil {
		t.Fatalf("ApplyDefaults: %v", err)
	}

	if len(llm.created) != 1 {
		t.Fatalf("CreateUser calls = %d, want 1", len(llm.created))
	}
	req := llm.created[0]
	if req.MaxBudget != defaultMaxBudget {
		t.Errorf("MaxBudget = %v, want %v", req.MaxBudget, defaultMaxBudget)
	}
	if req.Spend != 0 {
		t.Errorf("Spend = %v, want 0", req.Spend)
	}
	if req.Email == nil || *req.Email != "u@example.com" {
		t.Errorf("Email = %v, want u@example.com", req.Email)
	}
	if req.Version != domain.CurrentUserSettingsVersion {
		t.Errorf("Version = %d, want %d", req.Version, domain.CurrentUserSettingsVersion)
	}
	if req.Model != domain.CurrentDefaultModel() {
		t.Errorf("Model = %q, want the current default", req.Model)
	}

	if got.Model() != domain.CurrentDefaultModel() {
		t.Errorf("Model() = %q, want the current default", got.Model())
	}
	if got.BaseURL() != testBaseURL {
		t.Errorf("BaseURL() = %q, want %q", got.BaseURL(), testBaseURL)
	}
	if got.APIKey() != "sk-issued" {
		t.Errorf("APIKey() = %q, want the issued key", got.APIKey())
	}
}

func TestService_ApplyDefaults_ExistingBudgetCarriedOver(t *testing.T) {
	repo := &fakeSettingsRepo{}
	llm := &fakeProvisioner{
		enabled: true,
		info:    &litellm.UserInfo{MaxBudget: floatPtr(50), Spend: floatPtr(12.5)},
	}
	svc := newTestService(repo, llm)

	if _, err := svc.ApplyDefaults(context.Background(), "user-1", "u@example.com", nil); err != nil {
		t.Fatalf("ApplyDefaults: %v", err)
	}

	req := llm.created[0]
	if req.MaxBudget != 50 {
		t.Errorf("MaxBudget = %v, want 50", req.MaxBudget)
	}
	if req.Spend != 12.5 {
		t.Errorf("Spend = %v, want 12.5", req.Spend)
	}
}

func TestService_ApplyDefaults_EmptyInfoUsesDefaults(t *testing.T) {
	repo := &fakeSettingsRepo{}
	llm := &fakeProvisioner{enabled: true, info: &litellm.UserInfo{}}
	svc := newTestService(repo, llm)

	if _, err := svc.ApplyDefaults(context.Background(), "user-1", "u@example.com", nil); err != nil {
		t.Fatalf("ApplyDefaults: %v", err)
	}

	req := llm.created[0]
	if req.MaxBudget != defaultMaxBudget {
		t.Errorf("MaxBudget = %v, want %v for an empty proxy record", req.MaxBudget, defaultMaxBudget)
	}
	if req.Spend != 0 {
		t.Errorf("Spend = %v, want 0", req.Spend)
	}
}

func TestService_ApplyDefaults_UserInfoError(t *testing.T) {
	repo := &fakeSettingsRepo{}
	llm := &fakeProvisioner{enabled: true, infoErr: errors.New("proxy down")}
	svc := newTestService(repo, llm)

	if _, err := svc.ApplyDefaults(context.Background(), "user-1", "u@example.com", nil); err == nil {
		t.Error("ApplyDefaults = nil error, want the user info error")
	}
	if len(llm.created) != 0 {
		t.Error("no create expected after a user info failure")
	}
}

func TestService_ApplyDefaults_PreservesCustomModel(t *testing.T) {
	repo := &fakeSettingsRepo{}
	llm := &fakeProvisioner{enabled: true}
	svc := newTestService(repo, llm)

	current := &domain.UserSettings{
		KeycloakUserID: "user-1",
		LLMModel:       strPtr("anthropic/claude-3-5-sonnet-20241022"),
	}
	got, err := svc.ApplyDefaults(context.Background(), "user-1", "u@example.com", current)
	if err != nil {
		t.Fatalf("ApplyDefaults: %v", err)
	}

	if got.Model() != "anthropic/claude-3-5-sonnet-20241022" {
		t.Errorf("Model() = %q, want the custom model preserved", got.Model())
	}
	if got.APIKey() != "sk-issued" {
		t.Errorf("APIKey() = %q, want the issued key filled into blank key", got.APIKey())
	}
	if llm.created[0].Model != "anthropic/claude-3-5-sonnet-20241022" {
		t.Errorf("proxy metadata model = %q, want the custom model", llm.created[0].Model)
	}
}

func TestService_ApplyDefaults_PreservesCustomKey(t *testing.T) {
	repo := &fakeSettingsRepo{}
	llm := &fakeProvisioner{enabled: true}
	svc := newTestService(repo, llm)

	current := &domain.UserSettings{
		KeycloakUserID: "user-1",
		LLMModel:       strPtr("gpt-4"),
		LLMAPIKey:      strPtr("sk-custom-user-key"),
	}
	got, err := svc.ApplyDefaults(context.Background(), "user-1", "u@example.com", current)
	if err != nil {
		t.Fatalf("ApplyDefaults: %v", err)
	}
	if got.APIKey() != "sk-custom-user-key" {
		t.Errorf("APIKey() = %q, want the custom key preserved", got.APIKey())
	}
}

func TestService_ApplyDefaults_PreservesCustomBaseURL(t *testing.T) {
	repo := &fakeSettingsRepo{}
	llm := &fakeProvisioner{enabled: true}
	svc := newTestService(repo, llm)

	current := &domain.UserSettings{
		KeycloakUserID: "user-1",
		LLMBaseURL:     strPtr("https://api.custom-provider.example/v1"),
	}
	got, err := svc.ApplyDefaults(context.Background(), "user-1", "u@example.com", current)
	if err != nil {
		t.Fatalf("ApplyDefaults: %v", err)
	}
	if got.BaseURL() != "https://api.custom-provider.example/v1" {
		t.Errorf("BaseURL() = %q, want the custom URL preserved", got.BaseURL())
	}
}

func TestService_ApplyDefaults_UpgradesOldStockModel(t *testing.T) {
	oldModel := "litellm_proxy/prod/claude-3-5-sonnet-20241022"
	repo := &fakeSettingsRepo{
		rows: map[string]*domain.UserSettings{
			"user-1": {
				KeycloakUserID: "user-1",
				LLMModel:       strPtr(oldModel),
				LLMBaseURL:     strPtr(testBaseURL),
				UserVersion:    1,
				BillingMargin:  1.0,
			},
		},
	}
	llm := &fakeProvisioner{enabled: true}
	svc := newTestService(repo, llm)

	current := &domain.UserSettings{
		KeycloakUserID: "user-1",
		LLMModel:       strPtr(oldModel),
		LLMBaseURL:     strPtr(testBaseURL),
	}
	got, err := svc.ApplyDefaults(context.Background(), "user-1", "u@example.com", current)
	if err != nil {
		t.Fatalf("ApplyDefaults: %v", err)
	}
	if got.Model() != domain.CurrentDefaultModel() {
		t.Errorf("Model() = %q, want upgrade to the current default", got.Model())
	}
	if got.BaseURL() != testBaseURL {
		t.Errorf("BaseURL() = %q, want %q", got.BaseURL(), testBaseURL)
	}
}

func TestService_ApplyDefaults_KeepsCustomDuringUpgradeWindow(t *testing.T) {
	repo := &fakeSettingsRepo{
		rows: map[string]*domain.UserSettings{
			"user-1": {
				KeycloakUserID: "user-1",
				LLMModel:       strPtr("gpt-4"),
				LLMBaseURL:     strPtr("http://custom.url"),
				UserVersion:    1,
				BillingMargin:  1.0,
			},
		},
	}
	llm := &fakeProvisioner{enabled: true}
	svc := newTestService(repo, llm)

	current := &domain.UserSettings{
		KeycloakUserID: "user-1",
		LLMModel:       strPtr("gpt-4"),
		LLMBaseURL:     strPtr("http://custom.url"),
	}
	got, err := svc.ApplyDefaults(context.Background(), "user-1", "u@example.com", current)
	if err != nil {
		t.Fatalf("ApplyDefaults: %v", err)
	}
	if got.Model() != "gpt-4" {
		t.Errorf("Model() = %q, want gpt-4 preserved", got.Model())
	}
	if got.BaseURL() != "http://custom.url" {
		t.Errorf("BaseURL() = %q, want the custom URL preserved", got.BaseURL())
	}
}

func TestService_ApplyDefaults_RetriesCreateWithoutEmail(t *testing.T) {
	repo := &fakeSettingsRepo{}
	llm := &fakeProvisioner{
		enabled:   true,
		createErr: []error{errors.New("User with this email already exists")},
	}
	svc := newTestService(repo, llm)

	got, err := svc.ApplyDefaults(context.Background(), "user-1", "duplicate@example.com", nil)
	if err != nil {
		t.Fatalf("ApplyDefaults: %v", err)
	}

	if len(llm.created) != 2 {
		t.Fatalf("CreateUser calls = %d, want 2", len(llm.created))
	}
	if llm.created[0].Email == nil || *llm.created[0].Email != "duplicate@example.com" {
		t.Errorf("first create Email = %v, want the user email", llm.created[0].Email)
	}
	if llm.created[1].Email != nil {
		t.Errorf("second create Email = %v, want nil", llm.created[1].Email)
	}
	if got.APIKey() != "sk-issued" {
		t.Errorf("APIKey() = %q, want the key from the retry", got.APIKey())
	}
}

func TestService_ApplyDefaults_CreateFailsTwice(t *testing.T) {
	repo := &fakeSettingsRepo{}
	llm := &fakeProvisioner{
		enabled:   true,
		createErr: []error{errors.New("rejected"), errors.New("rejected again")},
	}
	svc := newTestService(repo, llm)

	_, err := svc.ApplyDefaults(context.Background(), "user-1", "u@example.com", nil)
	if err == nil {
		t.Fatal("ApplyDefaults = nil error, want provisioning failure")
	}
	if !strings.Contains(err.Error(), "provision litellm user") {
		t.Errorf("error = %v, want provisioning context", err)
	}
	if len(llm.created) != 2 {
		t.Errorf("CreateUser calls = %d, want 2", len(llm.created))
	}
}

func TestService_ApplyDefaults_DeleteFailureIgnored(t *testing.T) {
	repo := &fakeSettingsRepo{}
	llm := &fakeProvisioner{enabled: true, deleteErr: errors.New("nothing to delete")}
	svc := newTestService(repo, llm)

	got, err := svc.ApplyDefaults(context.Background(), "user-1", "u@example.com", nil)
	if err != nil {
		t.Fatalf("ApplyDefaults: %v", err)
	}
	if got.APIKey() != "sk-issued" {
		t.Error("provisioning should proceed past a failed delete")
	}
}

func TestService_ApplyDefaults_MarginMigration(t *testing.T) {
	repo := &fakeSettingsRepo{
		rows: map[string]*domain.UserSettings{
			"user-1": {KeycloakUserID: "user-1", UserVersion: 3, BillingMargin: 2.0},
		},
	}
	llm := &fakeProvisioner{
		enabled: true,
		info:    &litellm.UserInfo{MaxBudget: floatPtr(10), Spend: floatPtr(5)},
	}
	svc := newTestService(repo, llm)

	if _, err := svc.ApplyDefaults(context.Background(), "user-1", "u@example.com", nil); err != nil {
		t.Fatalf("ApplyDefaults: %v", err)
	}

	req := llm.created[0]
	if req.MaxBudget != 20 {
		t.Errorf("MaxBudget = %v, want 20 (10 x margin 2.0)", req.MaxBudget)
	}
	if req.Spend != 10 {
		t.Errorf("Spend = %v, want 10 (5 x margin 2.0)", req.Spend)
	}
	if got := repo.margins["user-1"]; got != 1.0 {
		t.Errorf("billing margin after migration = %v, want reset to 1.0", got)
	}
}

func TestService_ApplyDefaults_MarginSkippedFromV4(t *testing.T) {
	repo := &fakeSettingsRepo{
		rows: map[string]*domain.UserSettings{
			"user-1": {KeycloakUserID: "user-1", UserVersion: 4, BillingMargin: 2.0},
		},
	}
	llm := &fakeProvisioner{
		enabled: true,
		info:    &litellm.UserInfo{MaxBudget: floatPtr(10), Spend: floatPtr(5)},
	}
	svc := newTestService(repo, llm)

	if _, err := svc.ApplyDefaults(context.Background(), "user-1", "u@example.com", nil); err != nil {
		t.Fatalf("ApplyDefaults: %v", err)
	}

	req := llm.created[0]
	if req.MaxBudget != 10 {
		t.Errorf("MaxBudget = %v, want 10 unscaled", req.MaxBudget)
	}
	if req.Spend != 5 {
		t.Errorf("Spend = %v, want 5 unscaled", req.Spend)
	}
	if _, migrated := repo.margins["user-1"]; migrated {
		t.Error("no margin reset expected at version 4 or later")
	}
}

func TestService_ProvisionUser_CreatesAndPersists(t *testing.T) {
	repo := &fakeSettingsRepo{}
	llm := &fakeProvisioner{enabled: true}
	svc := newTestService(repo, llm)

	got, err := svc.ProvisionUser(context.Background(), "user-1", "u@example.com")
	if err != nil {
		t.Fatalf("ProvisionUser: %v", err)
	}
	if got.Model() != domain.CurrentDefaultModel() {
		t.Errorf("Model() = %q, want the current default", got.Model())
	}

	saved, ok := repo.rows["user-1"]
	if !ok {
		t.Fatal("settings row not persisted")
	}
	if saved.UserVersion != domain.CurrentUserSettingsVersion {
		t.Errorf("saved UserVersion = %d, want %d", saved.UserVersion, domain.CurrentUserSettingsVersion)
	}
	if saved.APIKey() != "sk-issued" {
		t.Errorf("saved APIKey() = %q, want the issued key", saved.APIKey())
	}
}
