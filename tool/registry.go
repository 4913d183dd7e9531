package tool

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/logging"
)

// ErrUnknownTool is returned by CreateExecutable for names missing from the catalog.
var ErrUnknownTool = errors.New("unknown tool")

// Catalog names.
const (
	NameWebSearch  = "web_search"
	NameCalculator = "calculator"
	NameDateTime   = "datetime"
	NameFile       = "file_manager"
	NameShell      = "shell"
)

// DefaultCatalog returns the built-in tool descriptors in declared order.
func DefaultCatalog() []Descriptor {
	return []Descriptor{
		{
			Name:        NameWebSearch,
			Kind:        KindWebSearch,
			Category:    "search",
			Description: "Searches the web and returns the top results with titles, links and snippets.",
			Active:      true,
			DefaultConfig: map[string]any{
				"endpoint":     "https://html.duckduckgo.com/html/",
				"max_results":  5,
				"timeout":      "10s",
				"cache_ttl":    "10m",
				"min_interval": "1s",
				"user_agent":   "Mozilla/5.0 (compatible; agentcore/1.0)",
			},
		},
		{
			Name:          NameCalculator,
			Kind:          KindCalculator,
			Category:      "computation",
			Description:   "Evaluates arithmetic expressions with + - * / % ^ and parentheses.",
			Active:        true,
			DefaultConfig: map[string]any{"max_expression_length": 256},
		},
		{
			Name:        NameDateTime,
			Kind:        KindDateTime,
			Category:    "time",
			Description: "Reports the current date and time.",
			Active:      true,
			DefaultConfig: map[string]any{
				"utc_offset": "+00:00",
				"layout":     "Monday, 2006-01-02 15:04:05",
			},
		},
		{
			Name:        NameFile,
			Kind:        KindFile,
			Category:    "filesystem",
			Description: "Reads or writes files inside the allowed directories.",
			Active:      true,
			DefaultConfig: map[string]any{
				"allowed_roots":  []any{filepath.Join(os.TempDir(), "agentcore-files")},
				"max_read_bytes": 64 * 1024,
			},
		},
		{
			Name:        NameShell,
			Kind:        KindShell,
			Category:    "system",
			Description: "Runs an allow-listed command in a fixed working directory.",
			Active:      true,
			DefaultConfig: map[string]any{
				"work_dir":         os.TempDir(),
				"allowed_commands": []any{"ls", "pwd", "echo", "date", "git"},
				"timeout":          "10s",
				"max_output_bytes": 10000,
			},
		},
	}
}

// RegistryOptions configure a Registry.
type RegistryOptions struct {
	// Logger is handed to every executable.
	Logger logging.Logger
	// Now is the clock used by the datetime tool.
	Now func() time.Time
	// HTTPClient is used by the web search tool.
	HTTPClient *http.Client
}

// Registry maps catalog names to descriptors and builds executables.
// It holds no mutable state after construction.
type Registry struct {
	order   []string
	entries map[string]Descriptor
	opts    RegistryOptions
}

// NewRegistry creates a registry over catalog, or DefaultCatalog when nil.
// Later duplicates of a name replace earlier ones in place.
func NewRegistry(catalog []Descriptor, optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{
		Logger:     logging.NoOpLogger{},
		Now:        time.Now,
		HTTPClient: &http.Client{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	r := &Registry{entries: make(map[string]Descriptor, len(catalog)), opts: opts}
	for _, d := range catalog {
		if _, exists := r.entries[d.Name]; !exists {
			r.order = append(r.order, d.Name)
		}
		r.entries[d.Name] = d
	}
	return r
}

// Catalog returns the descriptors in declared order.
func (r *Registry) Catalog() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name])
	}
	return out
}

// Lookup returns the descriptor for name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.entries[name]
	return d, ok
}

// CreateExecutable binds the named tool to its default config merged with
// overrides. The resulting configuration is validated once and captured.
func (r *Registry) CreateExecutable(name string, overrides map[string]any) (*Executable, error) {
	d, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	run, err := r.bind(d, overrides)
	if err != nil {
		return nil, &ToolError{Tool: name, Message: err.Error(), Code: CodeValidation}
	}
	return &Executable{
		name:        d.Name,
		kind:        d.Kind,
		category:    d.Category,
		description: d.Description,
		run:         run,
		logger:      r.opts.Logger,
	}, nil
}

// Load builds executables for the active bindings whose catalog entry is
// active too, preserving binding order. Bindings that fail to build are
// skipped and reported.
func (r *Registry) Load(bindings []core.ToolBinding) ([]*Executable, []error) {
	var (
		out  []*Executable
		errs []error
	)
	for _, b := range bindings {
		if !b.Active {
			continue
		}
		if d, ok := r.entries[b.Name]; ok && !d.Active {
			continue
		}
		exe, err := r.CreateExecutable(b.Name, b.Config)
		if err != nil {
			r.opts.Logger.Warn("tool.load.failed", "tool", b.Name, "error", err.Error())
			errs = append(errs, err)
			continue
		}
		out = append(out, exe)
	}
	return out, errs
}

func (r *Registry) bind(d Descriptor, overrides map[string]any) (runFunc, error) {
	switch d.Kind {
	case KindShell:
		var cfg ShellConfig
		if err := decodeConfig(d.DefaultConfig, overrides, &cfg); err != nil {
			return nil, err
		}
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		return newShell(cfg), nil
	case KindFile:
		var cfg FileConfig
		if err := decodeConfig(d.DefaultConfig, overrides, &cfg); err != nil {
			return nil, err
		}
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		return newFile(cfg), nil
	case KindCalculator:
		var cfg CalculatorConfig
		if err := decodeConfig(d.DefaultConfig, overrides, &cfg); err != nil {
			return nil, err
		}
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		return newCalculator(cfg), nil
	case KindDateTime:
		var cfg DateTimeConfig
		if err := decodeConfig(d.DefaultConfig, overrides, &cfg); err != nil {
			return nil, err
		}
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		return newDateTime(cfg, r.opts.Now), nil
	case KindWebSearch:
		var cfg WebSearchConfig
		if err := decodeConfig(d.DefaultConfig, overrides, &cfg); err != nil {
			return nil, err
		}
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		return newWebSearch(cfg, r.opts.HTTPClient), nil
	default:
		return nil, fmt.Errorf("unsupported tool kind %d", d.Kind)
	}
}
