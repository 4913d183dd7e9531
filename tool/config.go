package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Duration is a time.Duration decoded from either a Go duration string
// ("10s") or a number of seconds.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("invalid duration %s", string(b))
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// ShellConfig bounds the shell executor.
type ShellConfig struct {
	// WorkDir is the fixed working directory of every command.
	WorkDir string `json:"work_dir"`
	// AllowedCommands lists executable names that may run. Empty denies all.
	AllowedCommands []string `json:"allowed_commands"`
	// Timeout kills commands running longer.
	Timeout Duration `json:"timeout"`
	// MaxOutputBytes caps captured stdout+stderr.
	MaxOutputBytes int `json:"max_output_bytes"`
	// DeniedArgs lists argument patterns rejected per command, in addition to
	// DefaultDeniedArgs. A short option ("-c") also matches attached values
	// ("-cfoo"), a long option ("--exec-path") also matches "--exec-path=x"
	// and a trailing "*" matches by case-insensitive prefix.
	DeniedArgs map[string][]string `json:"denied_args,omitempty"`

	denied map[string][]string
}

// DefaultDeniedArgs are always rejected for their command. They cover the
// options that let an allow-listed binary run other programs.
var DefaultDeniedArgs = map[string][]string{
	"git": {
		"-c", "-C", "--config-env", "--exec-path", "--git-dir", "--work-tree",
		"--upload-pack", "--receive-pack", "config", "core.*", "alias.*",
	},
	"npm": {
		"exec", "x", "explore", "run", "run-script", "start", "test", "restart",
		"stop", "install", "i", "ci", "rebuild", "--script-shell",
	},
}

// FileConfig bounds the file executor.
type FileConfig struct {
	// AllowedRoots are the directories reads and writes must stay inside.
	AllowedRoots []string `json:"allowed_roots"`
	// MaxReadBytes caps the returned file content.
	MaxReadBytes int `json:"max_read_bytes"`
}

// CalculatorConfig bounds the calculator.
type CalculatorConfig struct {
	MaxExpressionLength int `json:"max_expression_length"`
}

// DateTimeConfig fixes the reported timezone.
type DateTimeConfig struct {
	// UTCOffset in the form "+hh:mm" or "-hh:mm".
	UTCOffset string `json:"utc_offset"`
	// Layout is a Go time layout.
	Layout string `json:"layout"`
}

// WebSearchConfig bounds the web search scraper.
type WebSearchConfig struct {
	Endpoint    string   `json:"endpoint"`
	MaxResults  int      `json:"max_results"`
	Timeout     Duration `json:"timeout"`
	CacheTTL    Duration `json:"cache_ttl"`
	MinInterval Duration `json:"min_interval"`
	UserAgent   string   `json:"user_agent"`
}

// decodeConfig merges overrides onto defaults and decodes the result into
// dst, rejecting unknown keys.
func decodeConfig(defaults, overrides map[string]any, dst any) error {
	merged := make(map[string]any, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

func (c *ShellConfig) validate() error {
	if c.WorkDir == "" {
		return fmt.Errorf("work_dir is required")
	}
	abs, err := filepath.Abs(c.WorkDir)
	if err != nil {
		return fmt.Errorf("resolve work_dir: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("work_dir %q is not a directory", abs)
	}
	c.WorkDir = abs
	for _, cmd := range c.AllowedCommands {
		if cmd == "" || strings.ContainsAny(cmd, `/\ `) {
			return fmt.Errorf("invalid allowed command %q", cmd)
		}
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxOutputBytes <= 0 {
		return fmt.Errorf("max_output_bytes must be positive")
	}
	c.denied = make(map[string][]string, len(DefaultDeniedArgs)+len(c.DeniedArgs))
	for cmd, patterns := range DefaultDeniedArgs {
		c.denied[cmd] = append(c.denied[cmd], patterns...)
	}
	for cmd, patterns := range c.DeniedArgs {
		for _, p := range patterns {
			if p == "" || p == "*" || strings.ContainsAny(p, " \t") {
				return fmt.Errorf("invalid denied argument %q for %q", p, cmd)
			}
		}
		c.denied[cmd] = append(c.denied[cmd], patterns...)
	}
	return nil
}

func (c *FileConfig) validate() error {
	if len(c.AllowedRoots) == 0 {
		return fmt.Errorf("allowed_roots must not be empty")
	}
	roots := make([]string, 0, len(c.AllowedRoots))
	for _, r := range c.AllowedRoots {
		if r == "" {
			return fmt.Errorf("allowed root must not be empty")
		}
		abs, err := filepath.Abs(r)
		if err != nil {
			return fmt.Errorf("resolve root %q: %w", r, err)
		}
		if real, err := filepath.EvalSymlinks(abs); err == nil {
			abs = real
		}
		roots = append(roots, filepath.Clean(abs))
	}
	c.AllowedRoots = roots
	if c.MaxReadBytes <= 0 {
		return fmt.Errorf("max_read_bytes must be positive")
	}
	return nil
}

func (c *CalculatorConfig) validate() error {
	if c.MaxExpressionLength <= 0 {
		return fmt.Errorf("max_expression_length must be positive")
	}
	return nil
}

var offsetPattern = regexp.MustCompile(`^([+-])(\d{2}):(\d{2})$`)

// offsetSeconds parses "+hh:mm" into seconds east of UTC.
func offsetSeconds(s string) (int, error) {
	m := offsetPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("utc_offset %q must look like +hh:mm", s)
	}
	h, _ := strconv.Atoi(m[2])
	mins, _ := strconv.Atoi(m[3])
	if h > 14 || mins > 59 {
		return 0, fmt.Errorf("utc_offset %q out of range", s)
	}
	secs := h*3600 + mins*60
	if m[1] == "-" {
		secs = -secs
	}
	return secs, nil
}

func (c *DateTimeConfig) validate() error {
	if _, err := offsetSeconds(c.UTCOffset); err != nil {
		return err
	}
	if c.Layout == "" {
		return fmt.Errorf("layout is required")
	}
	return nil
}

func (c *WebSearchConfig) validate() error {
	if !strings.HasPrefix(c.Endpoint, "http://") && !strings.HasPrefix(c.Endpoint, "https://") {
		return fmt.Errorf("endpoint %q must be an http(s) URL", c.Endpoint)
	}
	if c.MaxResults <= 0 || c.MaxResults > 20 {
		return fmt.Errorf("max_results must be between 1 and 20")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}
