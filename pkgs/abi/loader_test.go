package abi

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_BuiltIn(t *testing.T) {
	parsed, err := Ledger("")
	require.NoError(t, err)
	require.NoError(t, RequireMethods(parsed, "totalRecords", "getRecord", "submitRecord", "isValidator", "owner"))
	assert.Len(t, parsed.Methods["getRecord"].Outputs, 9)
}

func TestLoadABI_HardhatArtifact(t *testing.T) {
	dir := t.TempDir()
	artifact := `{"_format":"hh-sol-artifact-1","contractName":"HistoricalRecords","sourceName":"contracts/HistoricalRecords.sol","abi":` + LedgerJSON + `}`
	path := filepath.Join(dir, "HistoricalRecords.json")
	require.NoError(t, os.WriteFile(path, []byte(artifact), 0o644))

	parsed, err := LoadABI(path)
	require.NoError(t, err)
	assert.Contains(t, parsed.Methods, "getRecord")
	assert.Contains(t, parsed.Events, "RecordSubmitted")
}

func TestLoadABI_RawAndErrors(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "raw.json")
	require.NoError(t, os.WriteFile(raw, []byte(LedgerJSON), 0o644))

	parsed, err := Ledger(raw)
	require.NoError(t, err)
	assert.Contains(t, parsed.Methods, "owner")

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("not json"), 0o644))
	_, err = LoadABI(bad)
	assert.Error(t, err)

	_, err = LoadABI(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestRequireMethods_ReportsMissing(t *testing.T) {
	parsed, err := Ledger("")
	require.NoError(t, err)

	err = RequireMethods(parsed, "owner", "approveRecord")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "approveRecord")
}
