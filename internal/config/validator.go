package config

import (
	"fmt"
	"strings"

	"github.com/rohankatakam/warpgraph/internal/errors"
)

// ValidationContext specifies what configuration a command needs.
type ValidationContext string

const (
	// ValidationContextInit - `warpgraph init` requires graph name and store path.
	ValidationContextInit ValidationContext = "init"
	// ValidationContextCommit - `warpgraph commit` requires a writer id.
	ValidationContextCommit ValidationContext = "commit"
	// ValidationContextQuery - `warpgraph query` requires an index configuration.
	ValidationContextQuery ValidationContext = "query"
	// ValidationContextAll - validate all configuration.
	ValidationContextAll ValidationContext = "all"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result.
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result.
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors.
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message.
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err))
	}

	if len(vr.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  - %s\n", warn))
		}
	}

	return sb.String()
}

// Validate validates configuration for the given context with auto-detected mode.
func (c *Config) Validate(ctx ValidationContext) *ValidationResult {
	mode := DetectMode()
	return c.ValidateWithMode(ctx, mode)
}

// ValidateWithMode validates configuration for the given context and deployment mode.
func (c *Config) ValidateWithMode(ctx ValidationContext, mode DeploymentMode) *ValidationResult {
	result := &ValidationResult{Valid: true}

	switch ctx {
	case ValidationContextInit:
		c.validateGraph(result)
		c.validateStore(result, mode)
	case ValidationContextCommit:
		c.validateGraph(result)
		c.validateStore(result, mode)
		c.validateWriter(result, true)
	case ValidationContextQuery:
		c.validateGraph(result)
		c.validateStore(result, mode)
		c.validateIndex(result)
	case ValidationContextAll:
		c.validateGraph(result)
		c.validateStore(result, mode)
		c.validateWriter(result, false)
		c.validateIndex(result)
	}

	return result
}

// ValidateOrFatal validates configuration and exits if invalid
// (auto-detects mode).
func (c *Config) ValidateOrFatal(ctx ValidationContext) {
	mode := DetectMode()
	c.ValidateOrFatalWithMode(ctx, mode)
}

// ValidateOrFatalWithMode validates configuration with explicit mode and
// exits if invalid.
func (c *Config) ValidateOrFatalWithMode(ctx ValidationContext, mode DeploymentMode) {
	result := c.ValidateWithMode(ctx, mode)
	if result.HasErrors() {
		fmt.Println(result.Error())
		fmt.Printf("\nDeployment mode: %s (%s)\n", mode, mode.Description())
		panic(errors.ConfigError(result.Error()))
	}

	if len(result.Warnings) > 0 {
		fmt.Println("Configuration warnings:")
		for _, warn := range result.Warnings {
			fmt.Printf("  - %s\n", warn)
		}
		fmt.Printf("\nDeployment mode: %s\n", mode)
	}
}

func (c *Config) validateGraph(result *ValidationResult) {
	if c.Graph.Name == "" {
		result.AddError("graph.name (WARPGRAPH_GRAPH_NAME) is required but not set")
	}
}

func (c *Config) validateStore(result *ValidationResult, mode DeploymentMode) {
	if c.Store.Path == "" {
		result.AddError("store.path (WARPGRAPH_STORE_PATH) is required but not set")
		return
	}
	if mode.RequiresSecureCredentials() && strings.Contains(c.Store.Path, "/tmp/") {
		result.AddWarning("store.path points into /tmp in %s mode; data will not survive a reboot", mode)
	}
}

func (c *Config) validateWriter(result *ValidationResult, required bool) {
	if c.Writer.ID == "" {
		if required {
			result.AddError("writer.id (WARPGRAPH_WRITER_ID) is required but not set")
		} else {
			result.AddWarning("writer.id is not set; commit operations will fail until it is")
		}
		return
	}
	if err := validateWriterID(c.Writer.ID); err != nil {
		result.AddError("writer.id is invalid: %v", err)
	}
}

// validateWriterID rejects writer ids containing the reserved key-codec
// separator bytes, since a writer id becomes part of every Dot string.
func validateWriterID(id string) error {
	if strings.IndexByte(id, '\x00') >= 0 || strings.IndexByte(id, ':') >= 0 {
		return fmt.Errorf("must not contain NUL or ':' bytes")
	}
	return nil
}

func (c *Config) validateIndex(result *ValidationResult) {
	if c.Index.ShardCacheSize <= 0 {
		result.AddWarning("index.shard_cache_size is invalid or not set, will use default (64)")
	}
	if c.Index.VerifySampleRate < 0 || c.Index.VerifySampleRate > 1 {
		result.AddError("index.verify_sample_rate must be in [0,1], got %.4f", c.Index.VerifySampleRate)
	}
	switch c.Index.DeleteWithDataPolicy {
	case "reject", "cascade", "warn":
	default:
		result.AddError("index.delete_with_data_policy must be one of reject|cascade|warn, got %q", c.Index.DeleteWithDataPolicy)
	}
}

// RequireWriter checks that a writer id is configured and returns an error
// if not.
func (c *Config) RequireWriter() error {
	result := &ValidationResult{Valid: true}
	c.validateWriter(result, true)

	if result.HasErrors() {
		return errors.ConfigError(result.Error())
	}

	return nil
}
