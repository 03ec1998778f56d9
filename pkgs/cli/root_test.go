package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCID = "bafkreigh2akiscaildcqabsyg3dfr6chu3fgpregiymsck7e7aqa4s52zy"

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "shc", cmd.Use)
	assert.Contains(t, cmd.Long, "Sikh Historical Chain")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"records", "fetch", "submit", "pending", "parse"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestRecordsCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	recordsCmd, _, err := cmd.Find([]string{"records"})
	require.NoError(t, err)

	pageFlag := recordsCmd.Flags().Lookup("page")
	require.NotNil(t, pageFlag)
	assert.Equal(t, "p", pageFlag.Shorthand)
	assert.Equal(t, "1", pageFlag.DefValue)

	for _, name := range []string{"page-size", "query", "verified", "hash"} {
		assert.NotNil(t, recordsCmd.Flags().Lookup(name), name)
	}
}

func TestSubmitCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	submitCmd, _, err := cmd.Find([]string{"submit"})
	require.NoError(t, err)

	for _, name := range []string{"title", "description", "date", "contributor", "file"} {
		assert.NotNil(t, submitCmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "f", submitCmd.Flags().Lookup("file").Shorthand)
	assert.Contains(t, submitCmd.Long, "attach video")
	assert.NotContains(t, submitCmd.Long, "audio")
}

func TestFetchCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	fetchCmd, _, err := cmd.Find([]string{"fetch"})
	require.NoError(t, err)

	outputFlag := fetchCmd.Flags().Lookup("output")
	require.NotNil(t, outputFlag)
	assert.Equal(t, "o", outputFlag.Shorthand)
}

func TestInvalidFormatRejected(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"parse", testCID, "--format", "xml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestParseCommand_JSON(t *testing.T) {
	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{
		"parse", "https://ipfs.io/ipfs/" + testCID + "/page.txt",
		"--format", "json",
		"--gateway", "https://gw.example/ipfs",
	})

	require.NoError(t, cmd.Execute())

	var result parseResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	assert.True(t, result.Valid)
	assert.Equal(t, testCID+"/page.txt", result.Canonical)
	assert.Equal(t, "page.txt", result.Path)
	require.NotNil(t, result.CIDVersion)
	assert.Equal(t, uint64(1), *result.CIDVersion)
	assert.Equal(t, "raw", result.Codec)
	assert.Equal(t, []string{"https://gw.example/ipfs/" + testCID + "/page.txt"}, result.Candidates)
}

func TestParseCommand_Invalid(t *testing.T) {
	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"parse", "ipfs://short"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "is not a content reference")
}

func TestParseReference_DefaultGateways(t *testing.T) {
	result := parseReference("ipfs://"+testCID, nil)
	require.True(t, result.Valid)
	require.Len(t, result.Candidates, 3)
	assert.Equal(t, "https://gateway.pinata.cloud/ipfs/"+testCID, result.Candidates[0])
}
