package android

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	attestation "github.com/kacy/device-attestation-client"
	"github.com/kacy/device-attestation-client/storage"
)

type fakeProvider struct {
	mu       sync.Mutex
	token    string
	err      error
	requests []string
}

func (p *fakeProvider) Request(requestHash string, completion func(string, error)) {
	p.mu.Lock()
	p.requests = append(p.requests, requestHash)
	p.mu.Unlock()
	completion(p.token, p.err)
}

func (p *fakeProvider) lastRequest() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return ""
	}
	return p.requests[len(p.requests)-1]
}

type fakeManager struct {
	mu       sync.Mutex
	provider *fakeProvider
	err      error
	numbers  []int64
}

func (m *fakeManager) PrepareIntegrityToken(cloudProjectNumber int64, completion func(TokenProvider, error)) {
	m.mu.Lock()
	m.numbers = append(m.numbers, cloudProjectNumber)
	m.mu.Unlock()
	if m.err != nil {
		completion(nil, m.err)
		return
	}
	completion(m.provider, nil)
}

func (m *fakeManager) prepared() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.numbers...)
}

func newTestBackend(t *testing.T, m *fakeManager) *Backend {
	t.Helper()
	b, err := New(Config{Manager: m})
	require.NoError(t, err)
	return b
}

func TestNew_RequiresManager(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestBackend_IsSupported(t *testing.T) {
	m := &fakeManager{provider: &fakeProvider{}}

	b, err := New(Config{Manager: m, Supported: func() bool { return false }})
	require.NoError(t, err)
	assert.False(t, b.IsSupported(context.Background()))

	_, err = b.GenerateKey(context.Background(), attestation.PrepareOptions{CloudProjectNumber: "123"})
	assert.ErrorIs(t, err, attestation.ErrNotSupported)

	assert.True(t, newTestBackend(t, m).IsSupported(context.Background()))
}

func TestBackend_GenerateKey(t *testing.T) {
	tests := []struct {
		name          string
		projectNumber string
		managerErr    error
		wantErr       error
		wantNumber    int64
	}{
		{
			name:          "prepares default provider",
			projectNumber: "123456789",
			wantNumber:    123456789,
		},
		{
			name:          "project number with whitespace",
			projectNumber: " 42 ",
			wantNumber:    42,
		},
		{
			name:    "missing project number",
			wantErr: attestation.ErrMissingCloudProjectNumber,
		},
		{
			name:          "non-numeric project number",
			projectNumber: "abc",
			wantErr:       attestation.ErrInvalidInput,
		},
		{
			name:          "prepare failure",
			projectNumber: "123",
			managerErr:    errors.New("API_NOT_AVAILABLE"),
			wantErr:       attestation.ErrKeyGenerationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeManager{provider: &fakeProvider{}, err: tt.managerErr}
			b := newTestBackend(t, m)

			key, err := b.GenerateKey(context.Background(), attestation.PrepareOptions{CloudProjectNumber: tt.projectNumber})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.False(t, b.Prepared(DefaultKeyID))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, DefaultKeyID, key.KeyID)
			assert.True(t, b.Prepared(DefaultKeyID))
			assert.Equal(t, []int64{tt.wantNumber}, m.prepared())
		})
	}
}

func TestBackend_AttestKeySendsRequestHash(t *testing.T) {
	provider := &fakeProvider{token: "integrity-token"}
	b := newTestBackend(t, &fakeManager{provider: provider})

	native, err := b.AttestKey(context.Background(), attestation.CreateAttestationOptions{
		KeyID:              DefaultKeyID,
		Challenge:          "server-challenge",
		CloudProjectNumber: "123",
	})
	require.NoError(t, err)

	assert.Equal(t, "integrity-token", native.Attestation)
	assert.Equal(t, DefaultKeyID, native.KeyID)
	assert.Equal(t, "server-challenge", native.Challenge)

	want, err := attestation.RequestHash("server-challenge")
	require.NoError(t, err)
	assert.Equal(t, want, provider.lastRequest())
	assert.NotContains(t, provider.lastRequest(), "=")
}

func TestBackend_DefaultProviderPreparedLazily(t *testing.T) {
	m := &fakeManager{provider: &fakeProvider{token: "t"}}
	b := newTestBackend(t, m)
	ctx := context.Background()

	assert.False(t, b.Prepared(DefaultKeyID))

	_, err := b.GenerateAssertion(ctx, attestation.CreateAssertionOptions{KeyID: DefaultKeyID, Payload: "p", CloudProjectNumber: "9"})
	require.NoError(t, err)
	_, err = b.GenerateAssertion(ctx, attestation.CreateAssertionOptions{KeyID: DefaultKeyID, Payload: "p", CloudProjectNumber: "9"})
	require.NoError(t, err)

	assert.Len(t, m.prepared(), 1, "provider should be reused")
}

func TestBackend_UnknownKeyID(t *testing.T) {
	m := &fakeManager{provider: &fakeProvider{token: "t"}}
	b := newTestBackend(t, m)
	ctx := context.Background()

	_, err := b.AttestKey(ctx, attestation.CreateAttestationOptions{KeyID: "other", Challenge: "c", CloudProjectNumber: "1"})
	assert.ErrorIs(t, err, attestation.ErrAttestationFailed)
	assert.ErrorIs(t, err, ErrUnknownKeyID)

	_, err = b.GenerateAssertion(ctx, attestation.CreateAssertionOptions{KeyID: "other", Payload: "p", CloudProjectNumber: "1"})
	assert.ErrorIs(t, err, attestation.ErrAssertionFailed)
	assert.ErrorIs(t, err, ErrUnknownKeyID)

	assert.Empty(t, m.prepared())
}

func TestBackend_StoreKeyIDPreparesProvider(t *testing.T) {
	provider := &fakeProvider{token: "t"}
	m := &fakeManager{provider: provider}
	b := newTestBackend(t, m)
	ctx := context.Background()

	require.NoError(t, b.StoreKeyID(ctx, attestation.StoreKeyIDOptions{KeyID: "custom", CloudProjectNumber: "77"}))
	assert.True(t, b.Prepared("custom"))
	assert.Equal(t, []int64{77}, m.prepared())

	keyID, ok, err := b.StoredKeyID(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "custom", keyID)

	native, err := b.GenerateAssertion(ctx, attestation.CreateAssertionOptions{KeyID: "custom", Payload: "p"})
	require.NoError(t, err)
	assert.Equal(t, "t", native.Assertion)
}

func TestBackend_PersistedHandleSurvivesRestart(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	first, err := New(Config{Manager: &fakeManager{provider: &fakeProvider{token: "t"}}, Store: store})
	require.NoError(t, err)
	require.NoError(t, first.StoreKeyID(ctx, attestation.StoreKeyIDOptions{KeyID: "custom", CloudProjectNumber: "5"}))

	m := &fakeManager{provider: &fakeProvider{token: "t2"}}
	second, err := New(Config{Manager: m, Store: store})
	require.NoError(t, err)

	native, err := second.AttestKey(ctx, attestation.CreateAttestationOptions{KeyID: "custom", Challenge: "c", CloudProjectNumber: "5"})
	require.NoError(t, err)
	assert.Equal(t, "t2", native.Attestation)
	assert.Equal(t, []int64{5}, m.prepared())
}

func TestBackend_StoreKeyIDErrors(t *testing.T) {
	b := newTestBackend(t, &fakeManager{provider: &fakeProvider{}})
	ctx := context.Background()

	err := b.StoreKeyID(ctx, attestation.StoreKeyIDOptions{KeyID: ""})
	assert.ErrorIs(t, err, attestation.ErrMissingKeyID)

	err = b.StoreKeyID(ctx, attestation.StoreKeyIDOptions{KeyID: "k"})
	assert.ErrorIs(t, err, attestation.ErrMissingCloudProjectNumber)

	_, ok, err := b.StoredKeyID(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "failed store must not persist the handle")
}

func TestBackend_ClearDropsProviders(t *testing.T) {
	b := newTestBackend(t, &fakeManager{provider: &fakeProvider{token: "t"}})
	ctx := context.Background()

	require.NoError(t, b.StoreKeyID(ctx, attestation.StoreKeyIDOptions{KeyID: "custom", CloudProjectNumber: "1"}))
	_, err := b.GenerateKey(ctx, attestation.PrepareOptions{CloudProjectNumber: "1"})
	require.NoError(t, err)

	require.NoError(t, b.ClearStoredKeyID(ctx))
	require.NoError(t, b.ClearStoredKeyID(ctx))

	assert.False(t, b.Prepared("custom"))
	assert.False(t, b.Prepared(DefaultKeyID))

	_, err = b.AttestKey(ctx, attestation.CreateAttestationOptions{KeyID: "custom", Challenge: "c", CloudProjectNumber: "1"})
	assert.ErrorIs(t, err, ErrUnknownKeyID)
}

func TestBackend_TokenFailures(t *testing.T) {
	ctx := context.Background()
	opts := attestation.CreateAttestationOptions{KeyID: DefaultKeyID, Challenge: "c", CloudProjectNumber: "1"}

	b := newTestBackend(t, &fakeManager{provider: &fakeProvider{err: errors.New("TOO_MANY_REQUESTS")}})
	_, err := b.AttestKey(ctx, opts)
	assert.ErrorIs(t, err, attestation.ErrAttestationFailed)

	b = newTestBackend(t, &fakeManager{provider: &fakeProvider{}})
	_, err = b.AttestKey(ctx, opts)
	assert.ErrorIs(t, err, attestation.ErrMissingGeneratedValue)
}

func TestBackend_ValidationBeforeNativeCall(t *testing.T) {
	m := &fakeManager{provider: &fakeProvider{token: "t"}}
	b := newTestBackend(t, m)
	ctx := context.Background()

	_, err := b.AttestKey(ctx, attestation.CreateAttestationOptions{KeyID: DefaultKeyID, CloudProjectNumber: "1"})
	assert.ErrorIs(t, err, attestation.ErrMissingChallenge)

	_, err = b.GenerateAssertion(ctx, attestation.CreateAssertionOptions{Payload: "p", CloudProjectNumber: "1"})
	assert.ErrorIs(t, err, attestation.ErrMissingKeyID)

	_, err = b.AttestKey(ctx, attestation.CreateAttestationOptions{KeyID: DefaultKeyID, Challenge: "\xff", CloudProjectNumber: "1"})
	assert.ErrorIs(t, err, attestation.ErrInvalidInput)

	assert.Empty(t, m.prepared())
}

func TestParseCloudProjectNumber(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr error
	}{
		{input: "123456789012", want: 123456789012},
		{input: "", wantErr: attestation.ErrMissingCloudProjectNumber},
		{input: "   ", wantErr: attestation.ErrMissingCloudProjectNumber},
		{input: "12ab", wantErr: attestation.ErrInvalidInput},
		{input: "99999999999999999999", wantErr: attestation.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCloudProjectNumber(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
