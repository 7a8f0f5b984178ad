package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AgriBot-NLU/pkg/errors"
)

// driverName is registered by the pgx stdlib adapter.
const driverName = "pgx"

// sqlOpen is swapped in tests.
var sqlOpen = func(driverName, dataSourceName string) (*sql.DB, error) {
	return sql.Open(driverName, dataSourceName)
}

// PostgresConfig holds the audit database connection settings.
type PostgresConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	Database         string        `mapstructure:"database"`
	Username         string        `mapstructure:"username"`
	Password         string        `mapstructure:"password"`
	SSLMode          string        `mapstructure:"ssl_mode"`
	MaxOpenConns     int           `mapstructure:"max_open_conns"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime  time.Duration `mapstructure:"conn_max_idle_time"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	LockTimeout      time.Duration `mapstructure:"lock_timeout"`
}

// Connection manages the PostgreSQL connection pool.
type Connection struct {
	db     *sql.DB
	cfg    PostgresConfig
	logger logging.Logger
	once   sync.Once
}

// Pool defaults applied when the config leaves a setting at zero.
const (
	defaultMaxOpen     = 10
	defaultMaxIdle     = 5
	defaultLifetime    = 30 * time.Minute
	defaultIdleTime    = 5 * time.Minute
	defaultStmtTimeout = 30 * time.Second
	defaultLockTimeout = 10 * time.Second
	pingTimeout        = 5 * time.Second
)

func orDefault[T int | time.Duration](v, def T) T {
	if v > 0 {
		return v
	}
	return def
}

// NewConnection opens the pool and pings it once.
func NewConnection(ctx context.Context, cfg PostgresConfig, log logging.Logger) (*Connection, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	db, err := sqlOpen(driverName, DSN(cfg))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "open postgres pool")
	}
	db.SetMaxOpenConns(orDefault(cfg.MaxOpenConns, defaultMaxOpen))
	db.SetMaxIdleConns(orDefault(cfg.MaxIdleConns, defaultMaxIdle))
	db.SetConnMaxLifetime(orDefault(cfg.ConnMaxLifetime, defaultLifetime))
	db.SetConnMaxIdleTime(orDefault(cfg.ConnMaxIdleTime, defaultIdleTime))

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "postgres unreachable").
			WithDetail(fmt.Sprintf("%s:%d/%s", cfg.Host, cfg.Port, cfg.Database))
	}

	log.Info("postgres connected",
		logging.String("host", cfg.Host),
		logging.Int("port", cfg.Port),
		logging.String("database", cfg.Database))
	return &Connection{db: db, cfg: cfg, logger: log}, nil
}

// NewConnectionWithDB wraps an existing sql.DB (for testing).
func NewConnectionWithDB(db *sql.DB, log logging.Logger) *Connection {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Connection{db: db, logger: log}
}

// DB returns the underlying sql.DB instance.
func (c *Connection) DB() *sql.DB {
	return c.db
}

// HealthCheck pings the pool. More than 80% of open connections in use is
// logged, not failed.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "postgres ping failed")
	}
	if st := c.db.Stats(); st.OpenConnections > 0 && st.InUse*5 > st.OpenConnections*4 {
		c.logger.Warn("postgres pool nearly exhausted",
			logging.Int("in_use", st.InUse),
			logging.Int("open", st.OpenConnections),
			logging.Int("max_open", st.MaxOpenConnections))
	}
	return nil
}

// WithTransaction commits when fn returns nil and rolls back otherwise. A
// panic in fn rolls back and propagates.
func (c *Connection) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "begin transaction")
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			c.logger.Error("transaction rollback failed", logging.Err(rbErr))
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "commit transaction")
	}
	committed = true
	return nil
}

// Close closes the pool; later calls return nil.
func (c *Connection) Close() error {
	var err error
	c.once.Do(func() {
		if err = c.db.Close(); err != nil {
			c.logger.Error("postgres close failed", logging.Err(err))
			return
		}
		c.logger.Info("postgres pool closed")
	})
	return err
}

// DSN builds the postgres:// URL shared by the pgx driver and the
// migration runner. Timeouts travel as runtime parameters in milliseconds.
func DSN(cfg PostgresConfig) string {
	q := url.Values{}
	q.Set("sslmode", cfg.SSLMode)
	if cfg.SSLMode == "" {
		q.Set("sslmode", "disable")
	}
	q.Set("statement_timeout", strconv.FormatInt(orDefault(cfg.StatementTimeout, defaultStmtTimeout).Milliseconds(), 10))
	q.Set("lock_timeout", strconv.FormatInt(orDefault(cfg.LockTimeout, defaultLockTimeout).Milliseconds(), 10))

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     cfg.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

//Personal.AI order the ending
