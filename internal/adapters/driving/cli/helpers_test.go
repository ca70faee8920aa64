package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/etasync/internal/core/domain"
	"github.com/custodia-labs/etasync/internal/core/ports/driving"
)

// mockSyncOrchestrator implements driving.SyncOrchestrator for testing.
type mockSyncOrchestrator struct {
	cursor   time.Time
	resetTo  time.Time
	resetErr error
}

func (m *mockSyncOrchestrator) Run(_ context.Context) (*domain.SyncReport, error) {
	return nil, nil
}

func (m *mockSyncOrchestrator) Status() driving.SyncStatus { return driving.SyncStatus{} }

func (m *mockSyncOrchestrator) Cursor(_ context.Context) (time.Time, error) {
	return m.cursor, nil
}

func (m *mockSyncOrchestrator) ResetCursor(_ context.Context, ts time.Time) error {
	if m.resetErr != nil {
		return m.resetErr
	}
	m.resetTo = ts
	return nil
}

// mockScheduler implements driving.Scheduler for testing.
type mockScheduler struct {
	report  *domain.SyncReport
	err     error
	history []domain.TaskResult
	limit   int
	runs    int
}

func (m *mockScheduler) Start(_ context.Context) error { return nil }
func (m *mockScheduler) Stop() error { return nil }

func (m *mockScheduler) RunNow(_ context.Context) (*domain.SyncReport, error) {
	m.runs++
	return m.report, m.err
}

func (m *mockScheduler) History(_ context.Context, limit int) ([]domain.TaskResult, error) {
	m.limit = limit
	return m.history, nil
}

// mockDocumentService implements driving.DocumentService for testing.
type mockDocumentService struct {
	docs map[string]*domain.Document
}

func (m *mockDocumentService) Get(_ context.Context, uuid string) (*domain.Document, error) {
	if doc, ok := m.docs[uuid]; ok {
		return doc, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockDocumentService) Count(_ context.Context) (int, error) {
	return len(m.docs), nil
}

// testEnv is the fake wiring installed for a command test.
type testEnv struct {
	cfg       domain.Config
	sync      *mockSyncOrchestrator
	scheduler *mockScheduler
	documents *mockDocumentService
	opts      ServiceOptions
	closed    bool
}

func validTestConfig() domain.Config {
	cfg := domain.DefaultConfig()
	cfg.API.ClientID = "client-id"
	cfg.API.ClientSecret = "client-secret"
	cfg.API.IdentityURL = "https://id.example.test"
	cfg.API.BaseURL = "https://api.example.test"
	cfg.Storage.DBPath = "/tmp/etasync-test.db"
	return cfg
}

// setupTestServices installs mock services and restores globals on cleanup.
func setupTestServices(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		cfg:       validTestConfig(),
		sync:      &mockSyncOrchestrator{},
		scheduler: &mockScheduler{},
		documents: &mockDocumentService{docs: map[string]*domain.Document{}},
	}

	oldLoader, oldFactory := configLoader, serviceFactory
	configLoader = func(path string) (domain.Config, string, error) {
		if path == "" {
			path = "/etc/etasync/config.toml"
		}
		return env.cfg, path, nil
	}
	serviceFactory = func(_ context.Context, _ domain.Config, opts ServiceOptions) (*Services, error) {
		env.opts = opts
		return &Services{
			Sync:      env.sync,
			Scheduler: env.scheduler,
			Documents: env.documents,
			Close: func() error {
				env.closed = true
				return nil
			},
		}, nil
	}

	t.Cleanup(func() {
		configLoader, serviceFactory = oldLoader, oldFactory
		configPath = ""
		syncDryRun = false
		historyLimit = 10
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	return env
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func mustParse(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return ts
}
