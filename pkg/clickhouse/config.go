package clickhouse

import (
	"net"
	"net/url"
	"strconv"
	"time"
)

// Config describes one ClickHouse endpoint. The zero Host is rejected by
// NewClient.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	// HTTP selects the HTTP interface instead of the native protocol.
	HTTP bool

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Server settings sent with every query.
	AsyncInsert      bool
	WaitForAsync     bool
	MaxExecutionTime time.Duration
}

func defaultConfig() Config {
	return Config{
		Port:            9000,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
	}
}

// ClientOption adjusts Config before the pool is opened.
type ClientOption func(*Config)

func WithHost(host string) ClientOption { return func(c *Config) { c.Host = host } }

func WithPort(port int) ClientOption { return func(c *Config) { c.Port = port } }

func WithDatabase(db string) ClientOption { return func(c *Config) { c.Database = db } }

func WithCredentials(user, password string) ClientOption {
	return func(c *Config) { c.User, c.Password = user, password }
}

func WithHTTP(on bool) ClientOption { return func(c *Config) { c.HTTP = on } }

func WithMaxConnections(maxOpen, maxIdle int) ClientOption {
	return func(c *Config) { c.MaxOpenConns, c.MaxIdleConns = maxOpen, maxIdle }
}

// WithTimeouts sets the dial and read timeouts of the DSN. write bounds
// each batch insert on the client side.
func WithTimeouts(dial, read, write time.Duration) ClientOption {
	return func(c *Config) { c.DialTimeout, c.ReadTimeout, c.WriteTimeout = dial, read, write }
}

// WithAsyncInsert lets the server buffer result inserts; wait makes the
// insert return only once the buffer is flushed.
func WithAsyncInsert(enabled, wait bool) ClientOption {
	return func(c *Config) { c.AsyncInsert, c.WaitForAsync = enabled, enabled && wait }
}

func WithMaxExecutionTime(d time.Duration) ClientOption {
	return func(c *Config) { c.MaxExecutionTime = d }
}

// DSN renders c for the clickhouse-go database/sql driver. Credentials are
// escaped; zero settings are left to the server default.
func (c Config) DSN() string {
	u := url.URL{
		Scheme: "clickhouse",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	if c.HTTP {
		u.Scheme = "http"
	}
	switch {
	case c.Password != "":
		u.User = url.UserPassword(c.User, c.Password)
	case c.User != "":
		u.User = url.User(c.User)
	}

	q := url.Values{}
	if c.DialTimeout > 0 {
		q.Set("dial_timeout", c.DialTimeout.String())
	}
	if c.ReadTimeout > 0 {
		q.Set("read_timeout", c.ReadTimeout.String())
	}
	if c.MaxExecutionTime > 0 {
		q.Set("max_execution_time", strconv.Itoa(int(c.MaxExecutionTime.Seconds())))
	}
	if c.AsyncInsert {
		q.Set("async_insert", "1")
	}
	if c.WaitForAsync {
		q.Set("wait_for_async_insert", "1")
	}
	u.RawQuery = q.Encode()
	return u.String()
}
