// Package config implements EffectiveConfig: a merged configuration view
// with per-setting source attribution, per spec.md §3. Layers are applied
// in order {default, config file, env, programmatic, cli}; each later
// layer overrides the previous one field-by-field and records which
// layer last set the field.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/specpipe/core/internal/specerr"
)

// Source names where a config field's effective value came from.
type Source string

const (
	SourceDefault       Source = "default"
	SourceConfigFile    Source = "config"
	SourceEnv           Source = "env"
	SourceProgrammatic  Source = "programmatic"
	SourceCLI           Source = "cli"
)

// Config is the recognized option set from spec.md §3.
type Config struct {
	PacketMaxBytes  int               `yaml:"packet_max_bytes"`
	PacketMaxLines  int               `yaml:"packet_max_lines"`
	PhaseTimeout    time.Duration     `yaml:"-"`
	PhaseTimeoutRaw string            `yaml:"phase_timeout"`
	RunnerMode      string            `yaml:"runner_mode"`
	LLMProvider     string            `yaml:"llm_provider"`
	LLMFallback     string            `yaml:"llm_fallback"`
	HTTPBudgetCalls int               `yaml:"http_budget_calls"`
	Include         []string          `yaml:"include"`
	Exclude         []string          `yaml:"exclude"`
	ExtraPatterns   map[string]string `yaml:"extra_patterns"`
	IgnorePatterns  []string          `yaml:"ignore_patterns"`
	AllowSymlinks   bool              `yaml:"allow_symlinks"`
	ApplyFixups     bool              `yaml:"apply_fixups"`
}

// Sources maps each field name (as in the table below) to where its
// effective value came from.
type Sources map[string]Source

// fieldNames lists the EffectiveConfig options in the order spec.md's
// table presents them, used to build the Sources map.
var fieldNames = []string{
	"packet_max_bytes", "packet_max_lines", "phase_timeout", "runner_mode",
	"llm_provider", "llm_fallback", "http_budget_calls", "include",
	"exclude", "extra_patterns", "ignore_patterns", "allow_symlinks",
	"apply_fixups",
}

// Default returns the built-in defaults from spec.md §3.
func Default() *Config {
	return &Config{
		PacketMaxBytes:  65536,
		PacketMaxLines:  1200,
		PhaseTimeout:    10 * time.Minute,
		PhaseTimeoutRaw: "10m",
		RunnerMode:      "auto",
		HTTPBudgetCalls: 0,
		Include:         []string{"**/*"},
	}
}

// Overrides is a sparse set of field overrides applied by one layer; nil
// fields are left untouched by that layer.
type Overrides struct {
	PacketMaxBytes  *int
	PacketMaxLines  *int
	PhaseTimeout    *string
	RunnerMode      *string
	LLMProvider     *string
	LLMFallback     *string
	HTTPBudgetCalls *int
	Include         []string
	Exclude         []string
	ExtraPatterns   map[string]string
	IgnorePatterns  []string
	AllowSymlinks   *bool
	ApplyFixups     *bool
}

// Load builds the EffectiveConfig by layering default, an optional YAML
// config file, environment variables (XCHECKER_* per spec.md §6),
// programmatic overrides and CLI overrides, in that order, recording the
// winning source per field.
func Load(configPath string, programmatic, cli *Overrides) (*Config, Sources, error) {
	cfg := Default()
	sources := make(Sources, len(fieldNames))
	for _, f := range fieldNames {
		sources[f] = SourceDefault
	}

	if configPath != "" {
		body, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, nil, specerr.Wrap(specerr.KindConfig, "reading config file "+configPath, "", err)
			}
		} else {
			var fromFile Config
			if err := yaml.Unmarshal(body, &fromFile); err != nil {
				return nil, nil, specerr.Wrap(specerr.KindConfig, "parsing config file "+configPath, "fix the YAML syntax", err)
			}
			applyFileLayer(cfg, &fromFile, sources)
		}
	}

	applyEnvLayer(cfg, sources)

	if programmatic != nil {
		applyOverrides(cfg, programmatic, sources, SourceProgrammatic)
	}
	if cli != nil {
		applyOverrides(cfg, cli, sources, SourceCLI)
	}

	if err := cfg.resolveTimeout(); err != nil {
		return nil, nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}

	return cfg, sources, nil
}

func applyFileLayer(cfg, file *Config, sources Sources) {
	if file.PacketMaxBytes != 0 {
		cfg.PacketMaxBytes = file.PacketMaxBytes
		sources["packet_max_bytes"] = SourceConfigFile
	}
	if file.PacketMaxLines != 0 {
		cfg.PacketMaxLines = file.PacketMaxLines
		sources["packet_max_lines"] = SourceConfigFile
	}
	if file.PhaseTimeoutRaw != "" {
		cfg.PhaseTimeoutRaw = file.PhaseTimeoutRaw
		sources["phase_timeout"] = SourceConfigFile
	}
	if file.RunnerMode != "" {
		cfg.RunnerMode = file.RunnerMode
		sources["runner_mode"] = SourceConfigFile
	}
	if file.LLMProvider != "" {
		cfg.LLMProvider = file.LLMProvider
		sources["llm_provider"] = SourceConfigFile
	}
	if file.LLMFallback != "" {
		cfg.LLMFallback = file.LLMFallback
		sources["llm_fallback"] = SourceConfigFile
	}
	if file.HTTPBudgetCalls != 0 {
		cfg.HTTPBudgetCalls = file.HTTPBudgetCalls
		sources["http_budget_calls"] = SourceConfigFile
	}
	if len(file.Include) > 0 {
		cfg.Include = file.Include
		sources["include"] = SourceConfigFile
	}
	if len(file.Exclude) > 0 {
		cfg.Exclude = file.Exclude
		sources["exclude"] = SourceConfigFile
	}
	if len(file.ExtraPatterns) > 0 {
		cfg.ExtraPatterns = file.ExtraPatterns
		sources["extra_patterns"] = SourceConfigFile
	}
	if len(file.IgnorePatterns) > 0 {
		cfg.IgnorePatterns = file.IgnorePatterns
		sources["ignore_patterns"] = SourceConfigFile
	}
	cfg.AllowSymlinks = file.AllowSymlinks
	cfg.ApplyFixups = file.ApplyFixups
}

// applyEnvLayer reads XCHECKER_-prefixed environment variables, matching
// spec.md §6's single-variable-family convention for overriding settings.
func applyEnvLayer(cfg *Config, sources Sources) {
	if v, ok := os.LookupEnv("XCHECKER_PACKET_MAX_BYTES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PacketMaxBytes = n
			sources["packet_max_bytes"] = SourceEnv
		}
	}
	if v, ok := os.LookupEnv("XCHECKER_PACKET_MAX_LINES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PacketMaxLines = n
			sources["packet_max_lines"] = SourceEnv
		}
	}
	if v, ok := os.LookupEnv("XCHECKER_PHASE_TIMEOUT"); ok {
		cfg.PhaseTimeoutRaw = v
		sources["phase_timeout"] = SourceEnv
	}
	if v, ok := os.LookupEnv("XCHECKER_RUNNER_MODE"); ok {
		cfg.RunnerMode = v
		sources["runner_mode"] = SourceEnv
	}
	if v, ok := os.LookupEnv("XCHECKER_LLM_PROVIDER"); ok {
		cfg.LLMProvider = v
		sources["llm_provider"] = SourceEnv
	}
	if v, ok := os.LookupEnv("XCHECKER_LLM_FALLBACK"); ok {
		cfg.LLMFallback = v
		sources["llm_fallback"] = SourceEnv
	}
	if v, ok := os.LookupEnv("XCHECKER_HTTP_BUDGET_CALLS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTPBudgetCalls = n
			sources["http_budget_calls"] = SourceEnv
		}
	}
	if v, ok := os.LookupEnv("XCHECKER_ALLOW_SYMLINKS"); ok {
		cfg.AllowSymlinks = v == "1" || strings.EqualFold(v, "true")
		sources["allow_symlinks"] = SourceEnv
	}
}

func applyOverrides(cfg *Config, o *Overrides, sources Sources, src Source) {
	if o.PacketMaxBytes != nil {
		cfg.PacketMaxBytes = *o.PacketMaxBytes
		sources["packet_max_bytes"] = src
	}
	if o.PacketMaxLines != nil {
		cfg.PacketMaxLines = *o.PacketMaxLines
		sources["packet_max_lines"] = src
	}
	if o.PhaseTimeout != nil {
		cfg.PhaseTimeoutRaw = *o.PhaseTimeout
		sources["phase_timeout"] = src
	}
	if o.RunnerMode != nil {
		cfg.RunnerMode = *o.RunnerMode
		sources["runner_mode"] = src
	}
	if o.LLMProvider != nil {
		cfg.LLMProvider = *o.LLMProvider
		sources["llm_provider"] = src
	}
	if o.LLMFallback != nil {
		cfg.LLMFallback = *o.LLMFallback
		sources["llm_fallback"] = src
	}
	if o.HTTPBudgetCalls != nil {
		cfg.HTTPBudgetCalls = *o.HTTPBudgetCalls
		sources["http_budget_calls"] = src
	}
	if len(o.Include) > 0 {
		cfg.Include = o.Include
		sources["include"] = src
	}
	if len(o.Exclude) > 0 {
		cfg.Exclude = o.Exclude
		sources["exclude"] = src
	}
	if len(o.ExtraPatterns) > 0 {
		cfg.ExtraPatterns = o.ExtraPatterns
		sources["extra_patterns"] = src
	}
	if len(o.IgnorePatterns) > 0 {
		cfg.IgnorePatterns = o.IgnorePatterns
		sources["ignore_patterns"] = src
	}
	if o.AllowSymlinks != nil {
		cfg.AllowSymlinks = *o.AllowSymlinks
		sources["allow_symlinks"] = src
	}
	if o.ApplyFixups != nil {
		cfg.ApplyFixups = *o.ApplyFixups
		sources["apply_fixups"] = src
	}
}

func (c *Config) resolveTimeout() error {
	d, err := time.ParseDuration(c.PhaseTimeoutRaw)
	if err != nil {
		return specerr.Wrap(specerr.KindConfig, "parsing phase_timeout "+c.PhaseTimeoutRaw, "use a Go duration like \"10m\"", err)
	}
	c.PhaseTimeout = d
	return nil
}

func (c *Config) validate() error {
	if c.PacketMaxBytes <= 0 {
		return specerr.New(specerr.KindConfig, "packet_max_bytes must be positive", "set packet_max_bytes > 0")
	}
	if c.PacketMaxLines <= 0 {
		return specerr.New(specerr.KindConfig, "packet_max_lines must be positive", "set packet_max_lines > 0")
	}
	switch c.RunnerMode {
	case "auto", "native", "container":
	default:
		return specerr.New(specerr.KindConfig, "unrecognized runner_mode "+c.RunnerMode, "use auto, native, or container")
	}
	return nil
}

// Flags renders every recognized option as a flat string map suitable
// for embedding in a receipt, each value annotated with the source that
// set it so a receipt records not just the effective configuration but
// where every one of its fields came from. sources may be nil.
func Flags(cfg *Config, sources Sources) map[string]string {
	out := make(map[string]string, len(fieldNames))
	for _, name := range fieldNames {
		src := SourceDefault
		if sources != nil {
			if s, ok := sources[name]; ok {
				src = s
			}
		}
		out[name] = fmt.Sprintf("%s (source=%s)", fieldValue(cfg, name), src)
	}
	return out
}

func fieldValue(cfg *Config, name string) string {
	switch name {
	case "packet_max_bytes":
		return strconv.Itoa(cfg.PacketMaxBytes)
	case "packet_max_lines":
		return strconv.Itoa(cfg.PacketMaxLines)
	case "phase_timeout":
		return cfg.PhaseTimeoutRaw
	case "runner_mode":
		return cfg.RunnerMode
	case "llm_provider":
		return cfg.LLMProvider
	case "llm_fallback":
		return cfg.LLMFallback
	case "http_budget_calls":
		return strconv.Itoa(cfg.HTTPBudgetCalls)
	case "include":
		return strings.Join(cfg.Include, ",")
	case "exclude":
		return strings.Join(cfg.Exclude, ",")
	case "extra_patterns":
		return strconv.Itoa(len(cfg.ExtraPatterns)) + " pattern(s)"
	case "ignore_patterns":
		return strings.Join(cfg.IgnorePatterns, ",")
	case "allow_symlinks":
		return strconv.FormatBool(cfg.AllowSymlinks)
	case "apply_fixups":
		return strconv.FormatBool(cfg.ApplyFixups)
	default:
		return ""
	}
}
