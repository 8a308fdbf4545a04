package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/commentnet/internal/apperr"
	"github.com/starford/commentnet/internal/graph"
	"github.com/starford/commentnet/internal/metrics"
	"github.com/starford/commentnet/internal/models"
	"github.com/starford/commentnet/internal/parser"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Corpus    CorpusConfig      `yaml:"corpus"`
	Window    WindowConfig      `yaml:"window"`
	Filter    FilterConfig      `yaml:"filter"`
	Collapse  CollapseConfig    `yaml:"collapse"`
	Prune     PruneConfig       `yaml:"prune"`
	Integrity IntegrityConfig   `yaml:"integrity"`
	Export    ExportConfig      `yaml:"export"`
	Watch     WatchConfig       `yaml:"watch"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration. Every failure is an *apperr.ConfigError
// naming the offending section.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    interface{ Validate() error }
	}{
		{"app", &c.App},
		{"corpus", &c.Corpus},
		{"window", &c.Window},
		{"filter", &c.Filter},
		{"prune", &c.Prune},
		{"export", &c.Export},
		{"watch", &c.Watch},
		{"auth", &c.Auth},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			var ce *apperr.ConfigError
			if errors.As(err, &ce) {
				return err
			}
			return &apperr.ConfigError{Field: s.name, Err: err}
		}
	}
	return nil
}

// LoadOptions translates the configuration into graph build options.
func (c *Config) LoadOptions(logger *slog.Logger, collector *metrics.Collector) (graph.LoadOptions, error) {
	window, err := c.Window.Range()
	if err != nil {
		return graph.LoadOptions{}, &apperr.ConfigError{Field: "window", Err: err}
	}
	cond, err := c.Filter.EdgeCondition()
	if err != nil {
		return graph.LoadOptions{}, err
	}
	criteria, err := c.Prune.Build()
	if err != nil {
		return graph.LoadOptions{}, err
	}
	return graph.LoadOptions{
		NodePath:        c.Corpus.Nodes,
		EdgePath:        c.Corpus.Edges,
		Window:          window,
		Condition:       cond,
		EdgeAttrsToKeep: c.Collapse.EdgeAttrsToKeep,
		Criteria:        criteria,
		Directed:        c.Collapse.Directed,
		Strict:          c.Integrity.Strict,
		Logger:          logger,
		Metrics:         collector,
	}, nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// CorpusConfig locates the input files. Nodes and Edges are relative to Root.
type CorpusConfig struct {
	Root  string `yaml:"root"`
	Nodes string `yaml:"nodes"`
	Edges string `yaml:"edges"`
}

// Validate validates the corpus configuration.
func (c *CorpusConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.Nodes, validation.Required),
		validation.Field(&c.Edges, validation.Required),
	)
}

// Paths returns the input files, nodes first.
func (c *CorpusConfig) Paths() []string {
	return []string{c.Nodes, c.Edges}
}

// WindowConfig is an optional half-open date window [Start, End).
type WindowConfig struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// Range parses the window. It returns nil when neither bound is set.
func (c *WindowConfig) Range() (*models.DateRange, error) {
	if c.Start == "" && c.End == "" {
		return nil, nil
	}
	if c.Start == "" || c.End == "" {
		return nil, errors.New("start and end must be set together")
	}
	start, err := parser.ParseDate(c.Start)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	end, err := parser.ParseDate(c.End)
	if err != nil {
		return nil, fmt.Errorf("end: %w", err)
	}
	r := models.NewDateRange(start, end)
	if r.Empty() {
		return nil, fmt.Errorf("end must be after start, got %s", r)
	}
	return &r, nil
}

// Validate validates the window configuration.
func (c *WindowConfig) Validate() error {
	_, err := c.Range()
	return err
}

// FilterConfig selects which raw interactions survive before collapsing.
// Condition is a CEL expression; AttrIn maps an attribute to its allowed values.
// When both are set an edge must pass both.
type FilterConfig struct {
	Condition string              `yaml:"condition"`
	AttrIn    map[string][]string `yaml:"attr_in"`
}

// EdgeCondition compiles the filter. It returns nil when nothing is configured.
func (c *FilterConfig) EdgeCondition() (graph.EdgeCondition, error) {
	var conds []graph.EdgeCondition
	if c.Condition != "" {
		cond, err := graph.CompileCondition(c.Condition)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	if len(c.AttrIn) > 0 {
		conds = append(conds, graph.AttrIn(c.AttrIn))
	}
	return graph.All(conds...), nil
}

// Validate validates the filter configuration.
func (c *FilterConfig) Validate() error {
	_, err := c.EdgeCondition()
	return err
}

// CollapseConfig controls how parallel edges are merged.
type CollapseConfig struct {
	Directed        bool     `yaml:"directed"`
	EdgeAttrsToKeep []string `yaml:"edge_attrs_to_keep"`
}

// PruneConfig lists the pruning criteria. Criterion is a single-criterion shorthand
// appended after Criteria.
type PruneConfig struct {
	Criteria  []graph.CriterionSpec `yaml:"criteria"`
	Criterion *graph.CriterionSpec  `yaml:"criterion"`
}

// Specs returns every configured criterion in application order.
func (c *PruneConfig) Specs() []graph.CriterionSpec {
	specs := append([]graph.CriterionSpec(nil), c.Criteria...)
	if c.Criterion != nil {
		specs = append(specs, *c.Criterion)
	}
	return specs
}

// Build parses the configured criteria.
func (c *PruneConfig) Build() ([]graph.Criterion, error) {
	return graph.ParseCriteria(c.Specs())
}

// Validate validates the prune configuration.
func (c *PruneConfig) Validate() error {
	_, err := c.Build()
	return err
}

// IntegrityConfig controls edges whose endpoints are not known authors.
type IntegrityConfig struct {
	Strict bool `yaml:"strict"`
}

// ExportConfig lists the outputs of a build. Empty paths disable an output.
// Nodes and Edges are relative to the working directory.
type ExportConfig struct {
	Nodes  string      `yaml:"nodes"`
	Edges  string      `yaml:"edges"`
	SQLite string      `yaml:"sqlite"`
	Neo4j  Neo4jConfig `yaml:"neo4j"`
}

// Validate validates the export configuration.
func (c *ExportConfig) Validate() error {
	if (c.Nodes == "") != (c.Edges == "") {
		return errors.New("nodes and edges must be set together")
	}
	return c.Neo4j.Validate()
}

// RecordsEnabled reports whether the reduced graph is written back as records.
func (c *ExportConfig) RecordsEnabled() bool {
	return c.Nodes != "" && c.Edges != ""
}

// Neo4jConfig holds the optional Neo4j export target.
type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// Enabled returns true when a Neo4j URI is configured.
func (c *Neo4jConfig) Enabled() bool {
	return c.URI != ""
}

// Validate validates the Neo4j configuration.
func (c *Neo4jConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.User, validation.When(c.Enabled(), validation.Required)),
	)
}

// WatchConfig controls rebuilds on input changes in serve mode.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.When(c.Enabled, validation.Required, validation.Min(10*time.Millisecond))),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Corpus: CorpusConfig{
			Root:  "./data",
			Nodes: "nodes.jsonl",
			Edges: "edges.bin",
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
