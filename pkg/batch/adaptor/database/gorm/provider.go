package gorm

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"

	"github.com/tigerroll/communes/pkg/batch/adaptor/database"
	config "github.com/tigerroll/communes/pkg/batch/core/config"
	logger "github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

// GormDBProvider opens the connections declared under surfin.database and caches them by name.
type GormDBProvider struct {
	cfg         *config.Config
	connections map[string]*GormDBAdapter
	mu          sync.RWMutex
}

// NewGormDBProvider creates a GormDBProvider over cfg.
func NewGormDBProvider(cfg *config.Config) *GormDBProvider {
	return &GormDBProvider{
		cfg:         cfg,
		connections: make(map[string]*GormDBAdapter),
	}
}

var _ database.DBProvider = (*GormDBProvider)(nil)

// GetConnection implements database.DBProvider.
func (p *GormDBProvider) GetConnection(name string) (database.DBConnection, error) {
	return p.GetGormConnection(name)
}

// GetGormConnection returns the connection name, opening it on first use.
func (p *GormDBProvider) GetGormConnection(name string) (*GormDBAdapter, error) {
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

	dbConfig, err := database.DecodeDatabaseConfig(p.cfg.Surfin.AdaptorConfigs, name)
	if err != nil {
		return nil, err
	}
	gormDB, err := Open(dbConfig, p.cfg.Surfin.System.Logging.SQLLevel)
	if err != nil {
		return nil, fmt.Errorf("connection '%s': %w", name, err)
	}
	conn, err = NewGormDBAdapter(gormDB, dbConfig.Type, name)
	if err != nil {
		return nil, err
	}
	p.connections[name] = conn
	logger.Infof("Established new DB connection: %s (%s)", name, dbConfig.Type)
	return conn, nil
}

// CloseAll closes every open connection and reports all close failures together.
func (p *GormDBProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(p.connections))
	for name := range p.connections {
		names = append(names, name)
	}
	sort.Strings(names)

	var result *multierror.Error
	for _, name := range names {
		if err := p.connections[name].Close(); err != nil {
			logger.Errorf("Failed to close connection '%s': %v", name, err)
			result = multierror.Append(result, fmt.Errorf("close '%s': %w", name, err))
		}
		delete(p.connections, name)
	}
	return result.ErrorOrNil()
}

// Open opens a gorm connection for dbConfig using the registered dialector of its type and
// applies the pool settings.
func Open(dbConfig database.DatabaseConfig, sqlLogLevel string) (*gorm.DB, error) {
	dialectorFactory, err := GetDialectorFactory(dbConfig.Type)
	if err != nil {
		return nil, err
	}
	dialector, err := dialectorFactory(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create dialector for %s: %w", dbConfig.Type, err)
	}
	return OpenDialector(dialector, dbConfig.Pool, sqlLogLevel)
}

// OpenDialector opens a gorm connection for an already built dialector. Tests use it with
// sqlmock-backed dialectors.
func OpenDialector(dialector gorm.Dialector, pool database.PoolConfig, sqlLogLevel string) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: NewGormLogger(sqlLogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open GORM connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetimeMinutes) * time.Minute)
	}
	return db, nil
}
