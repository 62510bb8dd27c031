package app

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	attestation "github.com/kacy/device-attestation-client"
	"github.com/kacy/device-attestation-client/android"
	"github.com/kacy/device-attestation-client/config"
	"github.com/kacy/device-attestation-client/storage"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestApp(t *testing.T, mutate func(c *config.Config)) *App {
	t.Helper()
	cfg := config.Default()
	mutate(cfg)
	a, err := New(cfg, quietLogger())
	require.NoError(t, err)
	return a
}

func TestNew_PinnedPlatform(t *testing.T) {
	tests := []struct {
		platform string
		want     attestation.PlatformContext
	}{
		{
			platform: "ios",
			want:     attestation.PlatformContext{Platform: attestation.PlatformIOS, Format: attestation.FormatAppleAppAttest},
		},
		{
			platform: "ANDROID",
			want:     attestation.PlatformContext{Platform: attestation.PlatformAndroid, Format: attestation.FormatPlayIntegrityStandard},
		},
		{
			platform: "web",
			want:     attestation.PlatformContext{Platform: attestation.PlatformWeb, Format: attestation.FormatWebFallback},
		},
	}

	for _, tt := range tests {
		t.Run(tt.platform, func(t *testing.T) {
			a := newTestApp(t, func(c *config.Config) { c.Platform = tt.platform })
			assert.Equal(t, tt.want, a.Client.Platform())
		})
	}
}

func TestNew_AutoPlatformDetects(t *testing.T) {
	a := newTestApp(t, func(c *config.Config) { c.Platform = config.PlatformAuto })
	assert.Equal(t, attestation.DetectPlatform(), a.Client.Platform().Platform)
}

func TestNew_IOSLifecycle(t *testing.T) {
	a := newTestApp(t, func(c *config.Config) { c.Platform = "ios" })
	ctx := context.Background()

	key, err := a.Client.Prepare(ctx, attestation.PrepareOptions{})
	require.NoError(t, err)

	_, err = a.Client.StoreKeyID(ctx, attestation.StoreKeyIDOptions{KeyID: key.KeyID})
	require.NoError(t, err)

	att, err := a.Client.CreateAttestation(ctx, attestation.CreateAttestationOptions{KeyID: key.KeyID, Challenge: "c"})
	require.NoError(t, err)
	assert.NotEmpty(t, att.Token)

	asr, err := a.Client.CreateAssertion(ctx, attestation.CreateAssertionOptions{KeyID: key.KeyID, Payload: "p"})
	require.NoError(t, err)
	assert.NotEmpty(t, asr.Token)
}

func TestNew_AndroidUsesConfiguredProjectNumber(t *testing.T) {
	a := newTestApp(t, func(c *config.Config) {
		c.Platform = "android"
		c.CloudProjectNumber = "123456"
	})
	ctx := context.Background()

	key, err := a.Client.Prepare(ctx, attestation.PrepareOptions{})
	require.NoError(t, err)
	assert.Equal(t, android.DefaultKeyID, key.KeyID)

	att, err := a.Client.CreateAttestation(ctx, attestation.CreateAttestationOptions{KeyID: key.KeyID, Challenge: "c"})
	require.NoError(t, err)

	payload, err := android.DecodeEmulatorToken(att.Token)
	require.NoError(t, err)
	assert.Equal(t, "com.example.app", payload.RequestDetails.RequestPackageName)
}

func TestNew_FileStorageAndCustomKey(t *testing.T) {
	dir := t.TempDir()
	a := newTestApp(t, func(c *config.Config) {
		c.Platform = "web"
		c.Storage = config.StorageConfig{Driver: config.DriverFile, Dir: dir, Key: "CustomKey"}
	})
	ctx := context.Background()

	_, err := a.Client.StoreKeyID(ctx, attestation.StoreKeyIDOptions{KeyID: "handle"})
	require.NoError(t, err)

	reopened, err := storage.NewFileStore(dir)
	require.NoError(t, err)
	got, err := reopened.Get(ctx, "CustomKey")
	require.NoError(t, err)
	assert.Equal(t, "handle", got)
}

func TestNew_FileStorageKeepsSimulatorState(t *testing.T) {
	dir := t.TempDir()
	fileApp := func() *App {
		return newTestApp(t, func(c *config.Config) {
			c.Platform = "ios"
			c.Storage = config.StorageConfig{Driver: config.DriverFile, Dir: dir}
		})
	}
	ctx := context.Background()

	key, err := fileApp().Client.Prepare(ctx, attestation.PrepareOptions{})
	require.NoError(t, err)

	next := fileApp()
	_, err = next.Client.CreateAttestation(ctx, attestation.CreateAttestationOptions{KeyID: key.KeyID, Challenge: "c"})
	require.NoError(t, err)

	assert.Equal(t, next.Simulator.Authority().RootPEM(), fileApp().Simulator.Authority().RootPEM())
}

func TestNewStore_UnknownDriver(t *testing.T) {
	_, err := NewStore(config.StorageConfig{Driver: "s3"})
	assert.Error(t, err)
}
