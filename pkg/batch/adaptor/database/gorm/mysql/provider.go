// Package mysql registers the MySQL dialector with the gorm adaptor.
package mysql

import (
	"fmt"
	"net"
	"strconv"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/communes/pkg/batch/adaptor/database"
	gormadaptor "github.com/tigerroll/communes/pkg/batch/adaptor/database/gorm"
)

func init() {
	gormadaptor.RegisterDialector("mysql", func(cfg database.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Host == "" || cfg.Database == "" {
			return nil, fmt.Errorf("mysql connection needs host and database")
		}
		return mysql.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString builds the DSN with go-sql-driver's formatter. Times are parsed as UTC.
func ConnectionString(c database.DatabaseConfig) string {
	port := c.Port
	if port == 0 {
		port = 3306
	}
	dsn := mysqldriver.NewConfig()
	dsn.User = c.User
	dsn.Passwd = c.Password
	dsn.Net = "tcp"
	dsn.Addr = net.JoinHostPort(c.Host, strconv.Itoa(port))
	dsn.DBName = c.Database
	dsn.ParseTime = true
	dsn.Loc = time.UTC
	dsn.Params = map[string]string{"charset": "utf8mb4"}
	return dsn.FormatDSN()
}
