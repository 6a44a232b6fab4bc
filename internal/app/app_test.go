package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"event-coordinator/internal/domain"
)

type fakeParams struct{}

func (fakeParams) GetParameter(context.Context, string) (string, error) {
	return `{"token":"t"}`, nil
}

func (fakeParams) GetParameters(_ context.Context, names ...string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	for _, n := range names {
		out[n] = "value"
	}
	return out, nil
}

type fakeRecords struct {
	rows     []domain.Record
	tenantID *int64
}

func (f *fakeRecords) CreateRecord(context.Context, domain.Record) (int64, error) { return 1, nil }
func (f *fakeRecords) GetRecord(context.Context, int64) (domain.Record, bool, error) {
	return domain.Record{}, false, nil
}
func (f *fakeRecords) UpdateRecord(context.Context, domain.Record) error { return nil }
func (f *fakeRecords) DeleteRecord(context.Context, int64) error         { return nil }
func (f *fakeRecords) ListRecords(_ context.Context, tenantID *int64) ([]domain.Record, error) {
	f.tenantID = tenantID
	return f.rows, nil
}

func testConfig(provider string) Config {
	return Config{
		ParamPrefix: "/event-coordinator",
		Provider:    provider,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestBuild_Providers(t *testing.T) {
	for _, provider := range []string{"", ProviderOpenAI, "Anthropic", ProviderGemini} {
		t.Run(provider, func(t *testing.T) {
			svc, err := Build(context.Background(), testConfig(provider), &fakeRecords{}, fakeParams{})
			require.NoError(t, err)
			require.NotNil(t, svc.Conversations)
			require.NotNil(t, svc.Store)
		})
	}
}

func TestBuild_UnknownProvider(t *testing.T) {
	_, err := Build(context.Background(), testConfig("llama"), &fakeRecords{}, fakeParams{})
	require.ErrorContains(t, err, `unknown LLM provider "llama"`)
}

func TestBuild_ValidatesDependencies(t *testing.T) {
	_, err := Build(context.Background(), testConfig(ProviderOpenAI), nil, fakeParams{})
	require.Error(t, err)

	_, err = Build(context.Background(), testConfig(ProviderOpenAI), &fakeRecords{}, nil)
	require.Error(t, err)

	cfg := testConfig(ProviderOpenAI)
	cfg.ParamPrefix = ""
	_, err = Build(context.Background(), cfg, &fakeRecords{}, fakeParams{})
	require.Error(t, err)
}

func TestBuild_ScopesStoreToTenant(t *testing.T) {
	recs := &fakeRecords{}
	cfg := testConfig(ProviderGemini)
	tenant := int64(42)
	cfg.TenantID = &tenant

	_, err := Build(context.Background(), cfg, recs, fakeParams{})
	require.NoError(t, err)
	require.NotNil(t, recs.tenantID)
	require.Equal(t, int64(42), *recs.tenantID)
}
