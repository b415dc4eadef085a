package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"migrate", "import", "classify", "compose", "send", "followup", "signals", "review", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "outreach-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestClassifyCommand_RequiredFlags(t *testing.T) {
	flag := classifyCmd.Flags().Lookup("wave")
	require.NotNil(t, flag, "classify command should have --wave flag")
}

func TestSignalsCommand_Subcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range signalsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["consume"])
	assert.True(t, names["pull"])

	require.NotNil(t, signalsPullCmd.Flags().Lookup("since"))
}

func TestSendCommand_Flags(t *testing.T) {
	require.NotNil(t, sendCmd.Flags().Lookup("wave"))
	require.NotNil(t, sendCmd.Flags().Lookup("attempt"))
}
