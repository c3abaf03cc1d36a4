package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault_HasUsableDefaults(t *testing.T) {
	cfg := Default()
	require.Equal(t, "default", cfg.Graph.Name)
	require.NotEmpty(t, cfg.Store.Path)
	require.Equal(t, 64, cfg.Index.ShardCacheSize)
	require.Equal(t, "reject", cfg.Index.DeleteWithDataPolicy)
}

func TestValidate_InitRequiresGraphAndStore(t *testing.T) {
	cfg := &Config{}
	result := cfg.ValidateWithMode(ValidationContextInit, ModeDevelopment)
	require.True(t, result.HasErrors())
	require.Contains(t, result.Error(), "graph.name")
	require.Contains(t, result.Error(), "store.path")
}

func TestValidate_CommitRequiresWriterID(t *testing.T) {
	cfg := Default()
	cfg.Graph.Name = "g"
	result := cfg.ValidateWithMode(ValidationContextCommit, ModeDevelopment)
	require.True(t, result.HasErrors())
	require.Contains(t, result.Error(), "writer.id")
}

func TestValidate_RejectsWriterIDWithReservedBytes(t *testing.T) {
	cfg := Default()
	cfg.Graph.Name = "g"
	cfg.Writer.ID = "bad:writer"
	result := cfg.ValidateWithMode(ValidationContextCommit, ModeDevelopment)
	require.True(t, result.HasErrors())
}

func TestValidate_IndexPolicyMustBeKnown(t *testing.T) {
	cfg := Default()
	cfg.Index.DeleteWithDataPolicy = "explode"
	result := cfg.ValidateWithMode(ValidationContextAll, ModeDevelopment)
	require.True(t, result.HasErrors())
}
