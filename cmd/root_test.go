package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"join", "allocate", "cache"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "synthpop", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestAllocateCommand_Flags(t *testing.T) {
	for _, name := range []string{"seed", "output", "report", "mode"} {
		assert.NotNil(t, allocateCmd.Flags().Lookup(name), "allocate should have --%s flag", name)
	}
	assert.Equal(t, "0", allocateCmd.Flags().Lookup("seed").DefValue)
}

func TestCacheCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range cacheCmd.Commands() {
		names[c.Name()] = true
	}
	require.True(t, names["list"])
	require.True(t, names["clear"])
}
