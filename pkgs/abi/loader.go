package abi

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/sirupsen/logrus"
)

// LedgerJSON is the subset of the historical records contract used by this
// service. It is used whenever no ABI file is configured.
const LedgerJSON = `[
  {"type":"function","name":"totalRecords","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getRecord","stateMutability":"view","inputs":[{"name":"_id","type":"uint256"}],"outputs":[
    {"name":"id","type":"uint256"},
    {"name":"title","type":"string"},
    {"name":"description","type":"string"},
    {"name":"source","type":"string"},
    {"name":"ipfsHash","type":"string"},
    {"name":"contributor","type":"address"},
    {"name":"timestamp","type":"uint256"},
    {"name":"status","type":"uint8"},
    {"name":"approver","type":"address"}]},
  {"type":"function","name":"submitRecord","stateMutability":"nonpayable","inputs":[
    {"name":"_title","type":"string"},
    {"name":"_description","type":"string"},
    {"name":"_source","type":"string"},
    {"name":"_ipfsHash","type":"string"}],"outputs":[]},
  {"type":"function","name":"isValidator","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"event","name":"RecordSubmitted","anonymous":false,"inputs":[
    {"name":"id","type":"uint256","indexed":true},
    {"name":"contributor","type":"address","indexed":true}]}
]`

// GetABIDir returns the base directory for ABI files.
// Checks environment variable ABI_DIR first, then uses defaults
func GetABIDir() string {
	if abiDir := os.Getenv("ABI_DIR"); abiDir != "" {
		return abiDir
	}

	defaultPaths := []string{
		"./abi",
		"/app/abi",
	}
	for _, path := range defaultPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "./abi"
}

// ResolveABIPath returns filename unchanged when it is absolute or points
// at an existing file, otherwise joins it with GetABIDir.
func ResolveABIPath(filename string) string {
	if filepath.IsAbs(filename) {
		return filename
	}
	if _, err := os.Stat(filename); err == nil {
		return filename
	}
	return filepath.Join(GetABIDir(), filename)
}

// HardhatArtifact represents a Hardhat compilation artifact
type HardhatArtifact struct {
	Format       string          `json:"_format"`
	ContractName string          `json:"contractName"`
	SourceName   string          `json:"sourceName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode,omitempty"`
}

// Ledger returns the records contract ABI: the file at path when one is
// given, the built-in definition otherwise.
func Ledger(path string) (abi.ABI, error) {
	if strings.TrimSpace(path) == "" {
		return abi.JSON(strings.NewReader(LedgerJSON))
	}
	return LoadABI(path)
}

// LoadABI loads an ABI from file. Both raw ABI JSON files and Hardhat
// artifact files are accepted.
func LoadABI(filename string) (abi.ABI, error) {
	abiPath := ResolveABIPath(filename)

	logrus.WithField("path", abiPath).Debug("Loading ABI file")

	data, err := os.ReadFile(abiPath)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to read ABI file %s: %w", abiPath, err)
	}

	parsed, err := Parse(data)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("%s: %w", abiPath, err)
	}

	logrus.WithFields(logrus.Fields{
		"path":    abiPath,
		"methods": len(parsed.Methods),
		"events":  len(parsed.Events),
	}).Debug("Loaded ABI")

	return parsed, nil
}

// Parse decodes ABI bytes that are either a Hardhat artifact or a raw ABI
// array.
func Parse(data []byte) (abi.ABI, error) {
	var artifact HardhatArtifact
	if err := json.Unmarshal(data, &artifact); err == nil && artifact.Format != "" {
		logrus.WithFields(logrus.Fields{
			"contractName": artifact.ContractName,
			"format":       artifact.Format,
		}).Debug("Detected Hardhat artifact, extracting ABI")

		parsed, err := abi.JSON(strings.NewReader(string(artifact.ABI)))
		if err != nil {
			return abi.ABI{}, fmt.Errorf("failed to parse ABI from Hardhat artifact: %w", err)
		}
		return parsed, nil
	}

	parsed, err := abi.JSON(strings.NewReader(string(data)))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse ABI (not a Hardhat artifact or valid ABI): %w", err)
	}
	return parsed, nil
}

// RequireMethods checks that every named method exists in parsed.
func RequireMethods(parsed abi.ABI, names ...string) error {
	var missing []string
	for _, name := range names {
		if _, ok := parsed.Methods[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("ABI is missing methods: %s", strings.Join(missing, ", "))
	}
	return nil
}
