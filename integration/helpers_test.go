package integration

import (
	"bytes"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/monahq/mona/models"
	"github.com/monahq/mona/pkg/encryption"
	"github.com/monahq/mona/provider"
	"github.com/monahq/mona/tlmt/gonoop"
)

func testVault() *encryption.Vault {
	v, err := encryption.NewVault(bytes.Repeat([]byte("k"), encryption.KeySize))
	if err != nil {
		panic(err)
	}

	return v
}

// fakeAdapter is a scriptable provider.Adapter. Zero-value funcs behave
// as benign defaults so tests only script what they exercise.
type fakeAdapter struct {
	kind models.Provider

	refreshFn func(refreshToken string) (provider.Token, error)
	fetchFn   func(token string) ([]provider.Item, error)
	identity  provider.UserIdentity

	mu           sync.Mutex
	refreshCalls int
	fetchCalls   int
	fetchTokens  []string
}

func (f *fakeAdapter) Provider() models.Provider { return f.kind }

func (f *fakeAdapter) AuthorizationURL(state string) string {
	return "https://provider.example/authorize?state=" + state
}

func (f *fakeAdapter) ExchangeCode(ctx context.Context, code string) (provider.Token, error) {
	return provider.Token{
		AccessToken:  "access-for-" + code,
		RefreshToken: "refresh-for-" + code,
		Expiry:       time.Now().Add(time.Hour),
	}, nil
}

func (f *fakeAdapter) Refresh(ctx context.Context, refreshToken string) (provider.Token, error) {
	f.mu.Lock()
	f.refreshCalls++
	f.mu.Unlock()

	if f.refreshFn != nil {
		return f.refreshFn(refreshToken)
	}

	return provider.Token{
		AccessToken:  "refreshed-access",
		RefreshToken: "rotated-refresh",
		Expiry:       time.Now().Add(time.Hour),
	}, nil
}

func (f *fakeAdapter) UserIdentity(ctx context.Context, accessToken string) (provider.UserIdentity, error) {
	return f.identity, nil
}

func (f *fakeAdapter) FetchResources(ctx context.Context, accessToken string, resource models.ResourceType, window provider.Window) ([]provider.Item, error) {
	f.mu.Lock()
	f.fetchCalls++
	f.fetchTokens = append(f.fetchTokens, accessToken)
	f.mu.Unlock()

	if f.fetchFn != nil {
		return f.fetchFn(accessToken)
	}

	return nil, nil
}

func (f *fakeAdapter) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.refreshCalls
}

type memIntegrations struct {
	mu    sync.Mutex
	items map[string]models.Integration
}

func newMemIntegrations() *memIntegrations {
	return &memIntegrations{items: make(map[string]models.Integration)}
}

func (m *memIntegrations) Get(ctx context.Context, id string) (models.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	integ, ok := m.items[id]
	if !ok {
		return models.Integration{}, models.ErrNotFound
	}

	return integ, nil
}

func (m *memIntegrations) GetByUserProvider(ctx context.Context, userID string, p models.Provider) (models.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, integ := range m.items {
		if integ.UserID == userID && integ.Provider == p {
			return integ, nil
		}
	}

	return models.Integration{}, models.ErrNotFound
}

func (m *memIntegrations) ListByUser(ctx context.Context, userID string) ([]models.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Integration

	for _, integ := range m.items {
		if integ.UserID == userID {
			out = append(out, integ)
		}
	}

	return out, nil
}

func (m *memIntegrations) ListSyncEnabled(ctx context.Context) ([]models.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Integration

	for _, integ := range m.items {
		if integ.SyncEnabled && integ.Status == models.StatusConnected {
			out = append(out, integ)
		}
	}

	return out, nil
}

func (m *memIntegrations) Save(ctx context.Context, integ *models.Integration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.items {
		if existing.UserID == integ.UserID && existing.Provider == integ.Provider {
			integ.ID = existing.ID
			integ.CreatedAt = existing.CreatedAt

			break
		}
	}

	m.items[integ.ID] = *integ

	return nil
}

func (m *memIntegrations) Update(ctx context.Context, integ *models.Integration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[integ.ID]; !ok {
		return models.ErrNotFound
	}

	m.items[integ.ID] = *integ

	return nil
}

func (m *memIntegrations) SetLastSync(ctx context.Context, id string, lastSync time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	integ, ok := m.items[id]
	if !ok {
		return models.ErrNotFound
	}

	integ.LastSync = lastSync
	integ.UpdatedAt = lastSync
	m.items[id] = integ

	return nil
}

func (m *memIntegrations) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[id]; !ok {
		return models.ErrNotFound
	}

	delete(m.items, id)

	return nil
}

type memEvents struct {
	mu    sync.Mutex
	items map[string]models.CalendarEvent

	failProviderIDs map[string]bool
}

func newMemEvents() *memEvents {
	return &memEvents{items: make(map[string]models.CalendarEvent)}
}

func eventKey(integrationID, providerEventID string) string {
	return integrationID + "/" + providerEventID
}

func (m *memEvents) Upsert(ctx context.Context, event *models.CalendarEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failProviderIDs[event.ProviderEventID] {
		return false, context.DeadlineExceeded
	}

	key := eventKey(event.IntegrationID, event.ProviderEventID)

	_, exists := m.items[key]
	m.items[key] = *event

	return !exists, nil
}

func (m *memEvents) Select(ctx context.Context, q models.CalendarEventQuery) ([]models.CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.CalendarEvent

	for _, ev := range m.items {
		if q.IntegrationID != "" && ev.IntegrationID != q.IntegrationID {
			continue
		}

		out = append(out, ev)
	}

	return out, nil
}

func (m *memEvents) Get(ctx context.Context, id string) (models.CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ev := range m.items {
		if ev.ID == id {
			return ev, nil
		}
	}

	return models.CalendarEvent{}, models.ErrNotFound
}

type memEmails struct {
	mu    sync.Mutex
	items map[string]models.EmailMessage
}

func newMemEmails() *memEmails {
	return &memEmails{items: make(map[string]models.EmailMessage)}
}

func (m *memEmails) Upsert(ctx context.Context, msg *models.EmailMessage) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := msg.IntegrationID + "/" + msg.ProviderMessageID

	_, exists := m.items[key]
	m.items[key] = *msg

	return !exists, nil
}

func (m *memEmails) Select(ctx context.Context, q models.EmailMessageQuery) ([]models.EmailMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.EmailMessage

	for _, msg := range m.items {
		if q.IntegrationID != "" && msg.IntegrationID != q.IntegrationID {
			continue
		}

		out = append(out, msg)
	}

	return out, nil
}

func (m *memEmails) Get(ctx context.Context, id string) (models.EmailMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, msg := range m.items {
		if msg.ID == id {
			return msg, nil
		}
	}

	return models.EmailMessage{}, models.ErrNotFound
}

type memRuns struct {
	mu    sync.Mutex
	items map[string]models.SyncRun
}

func newMemRuns() *memRuns {
	return &memRuns{items: make(map[string]models.SyncRun)}
}

func (m *memRuns) Create(ctx context.Context, run *models.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[run.ID] = *run

	return nil
}

func (m *memRuns) Finalize(ctx context.Context, run *models.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.items[run.ID]
	if !ok {
		return models.ErrNotFound
	}

	if stored.Status != models.SyncStarted {
		return models.ErrNotFound
	}

	m.items[run.ID] = *run

	return nil
}

func (m *memRuns) Get(ctx context.Context, id string) (models.SyncRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.items[id]
	if !ok {
		return models.SyncRun{}, models.ErrNotFound
	}

	return run, nil
}

func (m *memRuns) Select(ctx context.Context, q models.SyncRunQuery) ([]models.SyncRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.SyncRun

	for _, run := range m.items {
		if q.IntegrationID != "" && run.IntegrationID != q.IntegrationID {
			continue
		}

		out = append(out, run)
	}

	return out, nil
}

// testHarness bundles a fully wired integration stack over in-memory
// repositories and one fake adapter.
type testHarness struct {
	vault        *encryption.Vault
	adapter      *fakeAdapter
	registry     *provider.Registry
	integrations *memIntegrations
	events       *memEvents
	emails       *memEmails
	runs         *memRuns
	tokens       *TokenManager
	syncer       *Syncer
	service      *Service
}

func newTestHarness(kind models.Provider) *testHarness {
	h := &testHarness{
		vault:        testVault(),
		adapter:      &fakeAdapter{kind: kind},
		registry:     provider.NewRegistry(),
		integrations: newMemIntegrations(),
		events:       newMemEvents(),
		emails:       newMemEmails(),
		runs:         newMemRuns(),
	}

	h.registry.Register(h.adapter)

	logger := zap.NewNop()
	telemetry := gonoop.New()

	h.tokens = NewTokenManager(h.integrations, h.registry, h.vault, logger)
	h.syncer = NewSyncer(h.integrations, h.events, h.emails, h.runs, h.tokens, h.registry, telemetry, logger)
	h.service = NewService(h.integrations, h.registry, h.vault, h.tokens, h.syncer, telemetry, logger)

	return h
}

// seedIntegration stores a connected integration with encrypted tokens.
func (h *testHarness) seedIntegration(userID string, expiresAt time.Time) models.Integration {
	access, err := h.vault.Encrypt("seed-access")
	if err != nil {
		panic(err)
	}

	refresh, err := h.vault.Encrypt("seed-refresh")
	if err != nil {
		panic(err)
	}

	integ := models.Integration{
		ID:             "integ-" + string(h.adapter.kind),
		UserID:         userID,
		Provider:       h.adapter.kind,
		Status:         models.StatusConnected,
		AccessToken:    access,
		RefreshToken:   refresh,
		TokenExpiresAt: expiresAt,
		SyncEnabled:    true,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}

	if err := h.integrations.Save(context.Background(), &integ); err != nil {
		panic(err)
	}

	return integ
}

func eventItem(providerID, title string, start time.Time) provider.Item {
	return provider.Item{
		ProviderID: providerID,
		Event: &models.CalendarEvent{
			ProviderEventID: providerID,
			Title:           title,
			StartTime:       start,
			EndTime:         start.Add(time.Hour),
			EventStatus:     "confirmed",
		},
	}
}
