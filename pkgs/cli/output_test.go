package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ASingh442/sikh-historical-chain/pkgs/contentref"
	"github.com/ASingh442/sikh-historical-chain/pkgs/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(pendingResult{Pending: true, TxHash: "0xabc"}))

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, true, out["pending"])
	assert.Equal(t, "0xabc", out["txHash"])
}

func TestOutputFormatter_YAMLSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "yaml", Writer: buf}

	require.NoError(t, formatter.Success(pendingResult{Pending: false}))

	var out map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, false, out["pending"])
	assert.NotContains(t, out, "txHash")
}

func TestOutputFormatter_TextUsesRenderer(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(pendingResult{}))
	assert.Equal(t, "No pending submission.\n", buf.String())

	buf.Reset()
	require.NoError(t, formatter.Success("plain"))
	assert.Equal(t, "plain\n", buf.String())
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("boom")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "bad input", errors.New("inner")))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.Equal(t, "outer: bad input: inner", wrapped.Error())
}

func TestBuildRecordPage(t *testing.T) {
	base := time.Date(2024, 4, 13, 0, 0, 0, 0, time.UTC)
	records := make([]ledger.Record, 0, 25)
	for i := 25; i >= 1; i-- {
		records = append(records, ledger.Record{
			ID:          uint64(i),
			Title:       fmt.Sprintf("Record %d", i),
			Contributor: common.HexToAddress("0x0000000000000000000000000000000000000042"),
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
		})
	}
	records[0].ContentRefs = []contentref.Reference{{ID: testCID}}
	records[0].PendingTxHash = "0xfeed"

	page := buildRecordPage(records, 10, 1)
	assert.Equal(t, 25, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 1, page.RangeStart)
	assert.Equal(t, 10, page.RangeEnd)
	require.Len(t, page.Records, 10)
	assert.Equal(t, uint64(25), page.Records[0].ID)
	assert.Equal(t, "FILE", page.Records[0].Kind)
	assert.Equal(t, []string{testCID}, page.Records[0].Content)
	assert.Equal(t, "0xfeed", page.Records[0].TxHash)

	last := buildRecordPage(records, 10, 3)
	require.Len(t, last.Records, 5)
	assert.Equal(t, 21, last.RangeStart)
	assert.Equal(t, 25, last.RangeEnd)

	buf := &bytes.Buffer{}
	require.NoError(t, page.RenderText(buf))
	assert.Contains(t, buf.String(), "Showing 1-10 of 25 (page 1/3)")
	assert.Contains(t, buf.String(), "0x0000...0042")
}

func TestBuildRecordPage_Empty(t *testing.T) {
	page := buildRecordPage(nil, 20, 1)
	assert.Equal(t, 0, page.Total)
	assert.NotNil(t, page.Records)

	buf := &bytes.Buffer{}
	require.NoError(t, page.RenderText(buf))
	assert.Equal(t, "No records found.\n", buf.String())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "a b", truncate("a\nb", 10))
}
