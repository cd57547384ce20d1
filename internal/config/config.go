// Package config defines the JSON-serializable configuration model for the
// trip pipeline. A pipeline file is decoded into Pipeline, defaults are filled
// in by ApplyDefaults, and ValidatePipeline lints the result before a run.
//
// Example (trimmed):
//
//	{
//	  "job":     "divvy_202202",
//	  "source":  { "kind": "file", "file": { "path": "data/202202-divvy-tripdata.csv" } },
//	  "parser":  { "options": { "comma": ",", "trim_space": true } },
//	  "storage": { "kind": "sqlite", "db": { "dsn": "tripdata.db", "keyspace": "tripdata", "auto_create_table": true } },
//	  "runtime": { "batch_size": 500, "gold_read_limit": 100000, "silver_upstream": "source" }
//	}
//
// Credentials are kept out of the pipeline file; see LoadCredentials.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultBatchSize     = 500
	DefaultGoldReadLimit = 100000
	DefaultKeyspace      = "tripdata"
)

// Silver upstream choices.
const (
	UpstreamSource = "source"
	UpstreamBronze = "bronze"
)

// Dedup policies for ride_id duplicates.
const (
	DedupKeepFirst = "keep-first"
	DedupKeepLast  = "keep-last"
)

// Pipeline is the top-level object decoded from a pipeline file.
type Pipeline struct {
	// Job names the run for logs and metrics.
	Job string `json:"job"`

	Source  Source        `json:"source"`
	Parser  Parser        `json:"parser"`
	Storage Storage       `json:"storage"`
	Runtime RuntimeConfig `json:"runtime"`
	Metrics Metrics       `json:"metrics"`
}

// RuntimeConfig controls batching and the stage-level policies.
type RuntimeConfig struct {
	// BatchSize bounds the number of rows per batched write.
	BatchSize int `json:"batch_size"`

	// GoldReadLimit caps the silver rows read by the gold stage. 0 = unlimited.
	GoldReadLimit *int `json:"gold_read_limit,omitempty"`

	// SilverUpstream selects what the silver stage cleans: the source file
	// ("source") or the bronze table ("bronze").
	SilverUpstream string `json:"silver_upstream"`

	// DedupPolicy is "keep-first" or "keep-last".
	DedupPolicy string `json:"dedup_policy"`

	// DropNegativeDuration drops rows whose ended_at precedes started_at.
	DropNegativeDuration bool `json:"drop_negative_duration"`
}

// ReadLimit returns the effective gold read limit.
func (r RuntimeConfig) ReadLimit() int {
	if r.GoldReadLimit == nil {
		return DefaultGoldReadLimit
	}
	return *r.GoldReadLimit
}

// Source identifies where the raw CSV comes from.
type Source struct {
	// Kind is "file" or "http".
	Kind string `json:"kind"`

	File SourceFile `json:"file"`
	HTTP SourceHTTP `json:"http"`
}

// SourceFile holds configuration for the "file" source kind.
type SourceFile struct {
	Path string `json:"path"`
}

// SourceHTTP holds configuration for the "http" source kind.
type SourceHTTP struct {
	URL        string `json:"url"`
	MaxRetries int    `json:"max_retries"`
	// TimeoutSeconds bounds the whole download. 0 uses the client default.
	TimeoutSeconds int `json:"timeout_seconds"`
}

// Parser configures the CSV reader.
type Parser struct {
	// Options keys: comma (string), trim_space (bool), lazy_quotes (bool),
	// header_map (object source->canonical), time_layouts (array of strings).
	Options Options `json:"options"`
}

// Storage selects the backing store.
type Storage struct {
	// Kind is one of "sqlite", "postgres", "mssql", "mysql".
	Kind string   `json:"kind"`
	DB   DBConfig `json:"db"`
}

// DBConfig configures the store connection and table addressing.
type DBConfig struct {
	// DSN is the driver connection string. Usually supplied through the
	// credentials file instead of the pipeline file.
	DSN string `json:"dsn"`

	// Keyspace qualifies every table name (schema in Postgres/MSSQL, database
	// in MySQL). SQLite ignores it.
	Keyspace string `json:"keyspace"`

	// AutoCreateTable creates missing tables before truncating them.
	// Absent means true.
	AutoCreateTable *bool `json:"auto_create_table,omitempty"`
}

// CreateTables reports whether stage tables are created when missing.
func (c DBConfig) CreateTables() bool {
	return c.AutoCreateTable == nil || *c.AutoCreateTable
}

// Metrics selects the metrics backend.
type Metrics struct {
	// Backend is "pushgateway", "datadog" or "none".
	Backend        string `json:"backend"`
	PushgatewayURL string `json:"pushgateway_url"`
	DatadogAddr    string `json:"datadog_addr"`
}

// Load decodes a pipeline file from path and applies defaults.
func Load(path string) (Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode decodes a pipeline from r and applies defaults.
func Decode(r io.Reader) (Pipeline, error) {
	var p Pipeline
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Pipeline{}, fmt.Errorf("decode config: %w", err)
	}
	ApplyDefaults(&p)
	return p, nil
}

// ApplyDefaults fills zero values with their defaults.
func ApplyDefaults(p *Pipeline) {
	if p.Source.Kind == "" {
		p.Source.Kind = "file"
	}
	if p.Storage.DB.Keyspace == "" {
		p.Storage.DB.Keyspace = DefaultKeyspace
	}
	if p.Storage.DB.AutoCreateTable == nil {
		create := true
		p.Storage.DB.AutoCreateTable = &create
	}
	if p.Runtime.BatchSize == 0 {
		p.Runtime.BatchSize = DefaultBatchSize
	}
	if p.Runtime.SilverUpstream == "" {
		p.Runtime.SilverUpstream = UpstreamSource
	}
	if p.Runtime.DedupPolicy == "" {
		p.Runtime.DedupPolicy = DedupKeepFirst
	}
	if p.Metrics.Backend == "" {
		p.Metrics.Backend = "none"
	}
	if p.Parser.Options == nil {
		p.Parser.Options = Options{}
	}
}

// Options is a small helper to fetch typed values from arbitrary JSON maps.
// It performs minimal type coercion and returns the provided default when a
// key is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Rune returns the first rune of a string value for key, or def.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// StringMap returns a map[string]string for key. Non-string values are
// ignored. Returns an empty map when the key is missing.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if v, ok := o[key]; ok {
		switch m := v.(type) {
		case map[string]any:
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		case map[string]string:
			for k, s := range m {
				res[k] = s
			}
		}
	}
	return res
}

// StringSlice returns a []string for key, or nil when missing.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// UnmarshalJSON decodes a missing or null "options" object to an empty,
// non-nil Options map.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
