// Package gorm implements the database adaptor on top of gorm: named connections, the chunk
// transaction manager and the upsert used by item writers.
//
// Dialects register themselves from the sqlite, mysql and postgres subpackages; import the ones
// the binary needs for their side effect.
package gorm

import (
	"fmt"
	"sort"
	"sync"

	"gorm.io/gorm"

	"github.com/tigerroll/communes/pkg/batch/adaptor/database"
	logger "github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

// DialectorFactory creates a gorm.Dialector from a connection configuration.
type DialectorFactory func(cfg database.DatabaseConfig) (gorm.Dialector, error)

var (
	dialectorRegistry = make(map[string]DialectorFactory)
	dialectorMutex    sync.RWMutex
)

// RegisterDialector registers the DialectorFactory for dbType.
func RegisterDialector(dbType string, factory DialectorFactory) {
	dialectorMutex.Lock()
	defer dialectorMutex.Unlock()
	if _, exists := dialectorRegistry[dbType]; exists {
		logger.Warnf("Dialector for type '%s' already registered. Overwriting.", dbType)
	}
	dialectorRegistry[dbType] = factory
}

// GetDialectorFactory returns the DialectorFactory registered for dbType.
func GetDialectorFactory(dbType string) (DialectorFactory, error) {
	dialectorMutex.RLock()
	defer dialectorMutex.RUnlock()
	factory, ok := dialectorRegistry[dbType]
	if !ok {
		return nil, fmt.Errorf("no dialector registered for database type: %s (registered: %v)", dbType, registeredTypes())
	}
	return factory, nil
}

func registeredTypes() []string {
	types := make([]string, 0, len(dialectorRegistry))
	for t := range dialectorRegistry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
