package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"

	storageConfig "github.com/tigerroll/communes/pkg/batch/adapter/storage/config"
	logger "github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

// ConnectionFactory opens a StorageConnection named name.
type ConnectionFactory func(ctx context.Context, cfg storageConfig.StorageConfig, name string) (StorageConnection, error)

var (
	factoryRegistry = make(map[string]ConnectionFactory)
	factoryMutex    sync.RWMutex
)

// RegisterConnectionFactory registers the ConnectionFactory for storageType.
func RegisterConnectionFactory(storageType string, factory ConnectionFactory) {
	factoryMutex.Lock()
	defer factoryMutex.Unlock()
	if _, exists := factoryRegistry[storageType]; exists {
		logger.Warnf("Storage factory for type '%s' already registered. Overwriting.", storageType)
	}
	factoryRegistry[storageType] = factory
}

func connectionFactory(storageType string) (ConnectionFactory, error) {
	factoryMutex.RLock()
	defer factoryMutex.RUnlock()
	factory, ok := factoryRegistry[storageType]
	if !ok {
		types := make([]string, 0, len(factoryRegistry))
		for t := range factoryRegistry {
			types = append(types, t)
		}
		sort.Strings(types)
		return nil, fmt.Errorf("no storage backend registered for type: %s (registered: %v)", storageType, types)
	}
	return factory, nil
}

// ConfiguredProvider opens the connections declared under surfin.storage and caches them by name.
type ConfiguredProvider struct {
	ctx         context.Context
	configs     map[string]interface{}
	connections map[string]StorageConnection
	mu          sync.RWMutex
}

// NewConfiguredProvider creates a provider over the raw surfin.storage section. ctx is used to
// open connections that need one (GCS clients).
func NewConfiguredProvider(ctx context.Context, configs map[string]interface{}) *ConfiguredProvider {
	return &ConfiguredProvider{
		ctx:         ctx,
		configs:     configs,
		connections: make(map[string]StorageConnection),
	}
}

var _ StorageProvider = (*ConfiguredProvider)(nil)

// GetConnection returns the connection name, opening it on first use.
func (p *ConfiguredProvider) GetConnection(name string) (StorageConnection, error) {
	p.mu.RLock()
	conn, ok := p.connections[name]
	p.mu.RUnlock()
	if ok {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok = p.connections[name]; ok {
		return conn, nil
	}

	cfg, err := storageConfig.DecodeStorageConfig(p.configs, name)
	if err != nil {
		return nil, err
	}
	factory, err := connectionFactory(cfg.Type)
	if err != nil {
		return nil, err
	}
	conn, err = factory(p.ctx, cfg, name)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage connection '%s': %w", name, err)
	}
	p.connections[name] = conn
	logger.Debugf("Created new %s storage connection '%s'.", cfg.Type, name)
	return conn, nil
}

// CloseAll closes every open connection and reports all close failures together.
func (p *ConfiguredProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result *multierror.Error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close storage '%s': %w", name, err))
		}
		delete(p.connections, name)
	}
	return result.ErrorOrNil()
}
