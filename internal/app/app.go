// Package app assembles an attestation client from configuration.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	attestation "github.com/kacy/device-attestation-client"
	"github.com/kacy/device-attestation-client/android"
	"github.com/kacy/device-attestation-client/config"
	"github.com/kacy/device-attestation-client/ios"
	"github.com/kacy/device-attestation-client/storage"
	"github.com/kacy/device-attestation-client/web"
)

// App holds the client and the software native services behind it.
type App struct {
	Client    *attestation.Client
	Store     storage.Store
	Simulator *ios.Simulator
	Emulator  *android.Emulator
}

// New builds the storage, the three platform backends and the client.
func New(cfg *config.Config, logger logrus.FieldLogger) (*App, error) {
	store, err := NewStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	// Simulator keys and its CA live next to the stored key handle, so a
	// file store carries them across invocations.
	authority, err := ios.LoadOrCreateAuthority(context.Background(), store, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load app attest simulator authority: %w", err)
	}
	sim, err := ios.NewSimulator(ios.SimulatorConfig{
		TeamID:     cfg.IOS.TeamID,
		BundleID:   cfg.IOS.BundleID,
		Production: cfg.IOS.Production,
		Keys:       ios.NewStoreKeyStore(store, ""),
		Authority:  authority,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create app attest simulator: %w", err)
	}
	iosBackend, err := ios.New(ios.Config{
		Service:    sim,
		Store:      store,
		StorageKey: cfg.Storage.Key,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	emu, err := android.NewEmulator(android.EmulatorConfig{PackageName: cfg.Android.PackageName})
	if err != nil {
		return nil, fmt.Errorf("failed to create play integrity emulator: %w", err)
	}
	androidBackend, err := android.New(android.Config{
		Manager:    emu,
		Store:      store,
		StorageKey: cfg.Storage.Key,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	client, err := attestation.New(attestation.Config{
		Backends: map[attestation.Platform]attestation.Backend{
			attestation.PlatformIOS:     iosBackend,
			attestation.PlatformAndroid: androidBackend,
			attestation.PlatformWeb:     web.New(web.Config{Store: store, StorageKey: cfg.Storage.Key}),
		},
		Platform:           pinnedPlatform(cfg.Platform),
		CloudProjectNumber: cfg.CloudProjectNumber,
		Logger:             logger,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		Client:    client,
		Store:     store,
		Simulator: sim,
		Emulator:  emu,
	}, nil
}

// NewStore returns the storage driver selected by cfg.
func NewStore(cfg config.StorageConfig) (storage.Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", config.DriverMemory:
		return storage.NewMemoryStore(), nil
	case config.DriverFile:
		return storage.NewFileStore(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
}

func pinnedPlatform(name string) attestation.Platform {
	if name == "" || strings.EqualFold(name, config.PlatformAuto) {
		return ""
	}
	return attestation.ParsePlatform(strings.ToLower(name))
}
