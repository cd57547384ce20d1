package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultCredentialsPath is the credentials file read when none is given.
const DefaultCredentialsPath = "noshare.toml"

// Credentials is the [store] section of the credentials file:
//
//	[store]
//	dsn      = "postgres://etl:secret@db:5432/trips"   # used verbatim when set
//	host     = "db"
//	port     = 5432
//	user     = "etl"
//	password = "secret"
//	database = "trips"
//	params   = { sslmode = "disable" }
type Credentials struct {
	DSN      string            `toml:"dsn"`
	Host     string            `toml:"host"`
	Port     int               `toml:"port"`
	User     string            `toml:"user"`
	Password string            `toml:"password"`
	Database string            `toml:"database"`
	Params   map[string]string `toml:"params"`
}

type credentialsFile struct {
	Store Credentials `toml:"store"`
}

// LoadCredentials decodes the credentials file at path. A missing file is not
// an error when optional is true; the zero Credentials are returned instead.
func LoadCredentials(path string, optional bool) (Credentials, error) {
	var f credentialsFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return Credentials{}, nil
		}
		return Credentials{}, fmt.Errorf("credentials %s: %w", path, err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		keys := make([]string, len(undec))
		for i, k := range undec {
			keys[i] = k.String()
		}
		return Credentials{}, fmt.Errorf("credentials %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return f.Store, nil
}

// IsZero reports whether no connection detail is set.
func (c Credentials) IsZero() bool {
	return c.DSN == "" && c.Host == "" && c.Database == ""
}

// BuildDSN renders a driver connection string for the storage kind. An
// explicit DSN always wins.
func (c Credentials) BuildDSN(kind string) (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}
	if c.Database == "" {
		return "", fmt.Errorf("credentials: database must be set when dsn is empty")
	}

	switch kind {
	case "sqlite":
		return c.Database, nil

	case "postgres":
		u := url.URL{Scheme: "postgres", Host: c.hostPort(5432), Path: "/" + c.Database}
		if c.User != "" {
			u.User = url.UserPassword(c.User, c.Password)
		}
		u.RawQuery = c.query().Encode()
		return u.String(), nil

	case "mssql":
		u := url.URL{Scheme: "sqlserver", Host: c.hostPort(1433)}
		if c.User != "" {
			u.User = url.UserPassword(c.User, c.Password)
		}
		q := c.query()
		q.Set("database", c.Database)
		u.RawQuery = q.Encode()
		return u.String(), nil

	case "mysql":
		q := c.query()
		q.Set("parseTime", "true")
		auth := c.User
		if c.Password != "" {
			auth += ":" + c.Password
		}
		return fmt.Sprintf("%s@tcp(%s)/%s?%s", auth, c.hostPort(3306), c.Database, q.Encode()), nil
	}
	return "", fmt.Errorf("credentials: cannot build a DSN for storage kind %q", kind)
}

func (c Credentials) hostPort(def int) string {
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == 0 {
		port = def
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func (c Credentials) query() url.Values {
	q := url.Values{}
	for k, v := range c.Params {
		q.Set(k, v)
	}
	return q
}

// ApplyCredentials overlays credentials onto the pipeline's storage DSN.
// Credentials win over the pipeline file.
func ApplyCredentials(p *Pipeline, c Credentials) error {
	if c.IsZero() {
		return nil
	}
	dsn, err := c.BuildDSN(p.Storage.Kind)
	if err != nil {
		return err
	}
	p.Storage.DB.DSN = dsn
	return nil
}
