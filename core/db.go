package core

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/querygate/querygate/core/internal/dialect"
	"github.com/querygate/querygate/core/internal/sdata"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"
)

type dbConf struct {
	driverName string
	connString string
}

// initDriver builds the driver name and connection string for one
// schema database entry. An explicit connection_string wins over the
// discrete fields for every type.
func initDriver(dc sdata.Database) (*dbConf, error) {
	switch dc.Type {
	case sdata.TypePostgres:
		return initPostgres(dc)
	case sdata.TypeMysql:
		return initMysql(dc)
	case sdata.TypeSqlite:
		return initSqlite(dc)
	case sdata.TypeSqlserver:
		return initMssql(dc)
	default:
		return nil, fmt.Errorf("unsupported database type %q", dc.Type)
	}
}

func initPostgres(dc sdata.Database) (*dbConf, error) {
	config, err := pgx.ParseConfig(dc.ConnString)
	if err != nil {
		return nil, err
	}

	if dc.ConnString == "" {
		if dc.Host != "" {
			config.Host = dc.Host
		}
		if dc.Port != 0 {
			config.Port = dc.Port
		}
		if dc.User != "" {
			config.User = dc.User
		}
		if dc.Password != "" {
			config.Password = dc.Password
		}
		config.Database = dc.DBName
	}

	if config.RuntimeParams == nil {
		config.RuntimeParams = map[string]string{}
	}
	if dc.Schema != "" {
		config.RuntimeParams["search_path"] = dc.Schema
	}
	config.RuntimeParams["application_name"] = "querygate"

	return &dbConf{driverName: "pgx", connString: stdlib.RegisterConnConfig(config)}, nil
}

func initMysql(dc sdata.Database) (*dbConf, error) {
	connString := dc.ConnString
	if connString == "" {
		port := dc.Port
		if port == 0 {
			port = 3306
		}
		connString = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s",
			dc.User, dc.Password, dc.Host, port, dc.DBName)
	}
	return &dbConf{driverName: "mysql", connString: connString}, nil
}

func initMssql(dc sdata.Database) (*dbConf, error) {
	connString := dc.ConnString
	if connString == "" {
		port := dc.Port
		if port == 0 {
			port = 1433
		}
		connString = fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s",
			url.PathEscape(dc.User), url.PathEscape(dc.Password),
			dc.Host, port, url.QueryEscape(dc.DBName))
	}
	return &dbConf{driverName: "sqlserver", connString: connString}, nil
}

func initSqlite(dc sdata.Database) (*dbConf, error) {
	connString := dc.ConnString
	if connString == "" {
		connString = dc.Path
	}
	if connString == "" {
		return nil, fmt.Errorf("sqlite requires a connection string or path")
	}
	return &dbConf{driverName: "sqlite", connString: connString}, nil
}

// openPool opens the production pool for one database with the
// configured pooling knobs. The pool is lazy; no connection is made
// until the first statement or ping.
func openPool(conf *Config, dc sdata.Database) (*sql.DB, error) {
	c, err := initDriver(dc)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(c.driverName, c.connString)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(conf.PoolSize)
	db.SetMaxOpenConns(conf.MaxConnections)
	db.SetConnMaxIdleTime(conf.MaxConnIdleTime)
	db.SetConnMaxLifetime(conf.MaxConnLifeTime)

	// In-memory sqlite exists per connection; more than one open
	// connection would see different databases.
	if dc.Type == sdata.TypeSqlite && isMemory(c.connString) {
		db.SetMaxIdleConns(1)
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

func isMemory(connString string) bool {
	return connString == ":memory:" ||
		connString == "file::memory:" ||
		connString == "file::memory:?cache=shared"
}

// probe opens a single-connection trial pool and pings it within the
// connect timeout. Used by reload to test-connect a candidate schema
// without touching the live pools.
func probe(c context.Context, conf *Config, dc sdata.Database) error {
	pc, err := initDriver(dc)
	if err != nil {
		return err
	}

	db, err := sql.Open(pc.driverName, pc.connString)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	db.SetMaxIdleConns(1)
	db.SetMaxOpenConns(1)

	c1, cancel := context.WithTimeout(c, conf.ConnectTimeout)
	defer cancel()
	return db.PingContext(c1)
}

// openAll opens a production pool for every database in the schema.
// On any failure the pools opened so far are closed and the error
// names the offending database.
func openAll(conf *Config, s *sdata.Schema) (map[string]*dbConn, error) {
	dbs := make(map[string]*dbConn, len(s.Databases))

	for _, name := range s.DatabaseNames() {
		dc := s.Databases[name]

		di, err := dialect.ForType(dc.Type)
		if err != nil {
			closeAll(dbs)
			return nil, fmt.Errorf("database %s: %w", name, err)
		}
		db, err := openPool(conf, dc)
		if err != nil {
			closeAll(dbs)
			return nil, fmt.Errorf("database %s: %w", name, err)
		}
		dbs[name] = &dbConn{name: name, db: db, di: di}
	}
	return dbs, nil
}

func closeAll(dbs map[string]*dbConn) {
	for _, c := range dbs {
		c.db.Close() //nolint:errcheck
	}
}
