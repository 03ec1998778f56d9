package submission

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ASingh442/sikh-historical-chain/pkgs/pending"
	"github.com/ASingh442/sikh-historical-chain/pkgs/pinning"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	cidA = "bafkreigh2akiscaildcqabsyg3dfr6chu3fgpregiymsck7e7aqa4s52zy"
	cidB = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"
)

type fakeUploader struct {
	calls int
	got   []pinning.File
	out   []pinning.Upload
	err   error
}

func (f *fakeUploader) Upload(_ context.Context, files []pinning.File) ([]pinning.Upload, error) {
	f.calls++
	f.got = files
	return f.out, f.err
}

type chainCall struct {
	title, description, source, contentHash string
}

type fakeChain struct {
	calls []chainCall
	hash  common.Hash
	err   error
}

func (f *fakeChain) SubmitRecord(_ context.Context, title, description, source, contentHash string) (common.Hash, error) {
	f.calls = append(f.calls, chainCall{title, description, source, contentHash})
	return f.hash, f.err
}

type fakeRecorder struct {
	mu    sync.Mutex
	saved []pending.Submission
}

func (f *fakeRecorder) Remember(_ context.Context, s pending.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, s)
	return nil
}

func validMeta() Metadata {
	return Metadata{
		Title:       "Founding of Kartarpur",
		Description: "Guru Nanak settles at Kartarpur",
		EventDate:   "15/04/1504",
	}
}

func fixedNow() time.Time {
	return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestSubmit_ReadOnlyMakesNoCalls(t *testing.T) {
	up, chain, rec := &fakeUploader{}, &fakeChain{}, &fakeRecorder{}
	p := NewPipeline(up, chain, rec, Config{ReadOnly: true})

	batch, err := Stage([]pinning.File{file("a.txt", "a")}, false)
	require.NoError(t, err)

	sub, err := p.Submit(context.Background(), batch, validMeta())
	assert.ErrorIs(t, err, ErrWriteDisabled)
	assert.Nil(t, sub)
	assert.Zero(t, up.calls)
	assert.Empty(t, chain.calls)
	assert.Empty(t, rec.saved)
	assert.True(t, p.ReadOnly())
}

func TestSubmit_ValidatesMetadata(t *testing.T) {
	up, chain := &fakeUploader{}, &fakeChain{}
	p := NewPipeline(up, chain, &fakeRecorder{}, Config{})

	_, err := p.Submit(context.Background(), nil, Metadata{EventDate: "1504"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Issues, 3)
	assert.Equal(t, "title", verr.Issues[0].Subject)
	assert.Equal(t, "description", verr.Issues[1].Subject)
	assert.Equal(t, "dateOfEvent", verr.Issues[2].Subject)
	assert.Zero(t, up.calls)
	assert.Empty(t, chain.calls)
}

func TestMetadataValidate_DateFormats(t *testing.T) {
	tests := []struct {
		date  string
		valid bool
	}{
		{"15/04/1469", true},
		{"15/04/69", true},
		{"", false},
		{"15-04-1469", false},
		{"5/4/1469", false},
		{"15/04/146", false},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			m := validMeta()
			m.EventDate = tt.date
			err := m.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSubmit_Success(t *testing.T) {
	up := &fakeUploader{out: []pinning.Upload{
		{CID: "ipfs://" + cidA, Name: "a.txt"},
		{CID: cidB, Name: "b.pdf"},
	}}
	chain := &fakeChain{hash: common.HexToHash("0xabc")}
	rec := &fakeRecorder{}
	p := NewPipeline(up, chain, rec, Config{Now: fixedNow})

	batch, err := Stage([]pinning.File{file("a.txt", "a"), file("b.pdf", "b")}, false)
	require.NoError(t, err)

	sub, err := p.Submit(context.Background(), batch, validMeta())
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, common.HexToHash("0xabc").Hex(), sub.TxHash)
	assert.Equal(t, fixedNow(), sub.SubmittedAt)

	assert.Equal(t, 1, up.calls)
	assert.Len(t, up.got, 2)

	require.Len(t, chain.calls, 1)
	call := chain.calls[0]
	assert.Equal(t, "Founding of Kartarpur", call.title)
	assert.Equal(t, "Anonymous", call.source)
	assert.Equal(t, cidA+","+cidB, call.contentHash)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(call.description), &payload))
	assert.Equal(t, "Guru Nanak settles at Kartarpur", payload["description"])
	assert.Equal(t, "15/04/1504", payload["dateOfEvent"])

	require.Len(t, rec.saved, 1)
	assert.Equal(t, *sub, rec.saved[0])
}

func TestSubmit_MetadataOnlySkipsUpload(t *testing.T) {
	up, chain := &fakeUploader{}, &fakeChain{hash: common.HexToHash("0x1")}
	p := NewPipeline(up, chain, &fakeRecorder{}, Config{})

	meta := validMeta()
	meta.Contributor = "  Bhai Gurdas  "
	_, err := p.Submit(context.Background(), nil, meta)
	require.NoError(t, err)

	assert.Zero(t, up.calls)
	require.Len(t, chain.calls, 1)
	assert.Equal(t, "", chain.calls[0].contentHash)
	assert.Equal(t, "Bhai Gurdas", chain.calls[0].source)
}

func TestSubmit_UploadFailureSkipsChain(t *testing.T) {
	up := &fakeUploader{err: errors.New("pinning service down")}
	chain, rec := &fakeChain{}, &fakeRecorder{}
	p := NewPipeline(up, chain, rec, Config{})

	batch, err := Stage([]pinning.File{file("a.txt", "a")}, false)
	require.NoError(t, err)

	_, err = p.Submit(context.Background(), batch, validMeta())
	var uerr *UploadError
	require.True(t, errors.As(err, &uerr))
	assert.Contains(t, err.Error(), "pinning service down")
	assert.Empty(t, chain.calls)
	assert.Empty(t, rec.saved)
}

func TestSubmit_ChainFailureLeavesSlot(t *testing.T) {
	chain := &fakeChain{err: errors.New("insufficient funds")}
	rec := &fakeRecorder{}
	p := NewPipeline(&fakeUploader{}, chain, rec, Config{})

	_, err := p.Submit(context.Background(), nil, validMeta())
	var cerr *ChainWriteError
	require.True(t, errors.As(err, &cerr))
	assert.Contains(t, err.Error(), "insufficient funds")
	assert.Empty(t, rec.saved)
}

func TestSubmit_InvalidUploadSkipsChain(t *testing.T) {
	staged := []pinning.File{file("a.txt", "a"), file("b.txt", "b")}
	tests := []struct {
		name string
		out  []pinning.Upload
		want string
	}{
		{
			name: "unparsable identifier",
			out:  []pinning.Upload{{CID: cidA, Name: "a.txt"}, {CID: "garbage", Name: "b.txt"}},
			want: `unusable identifier "garbage"`,
		},
		{
			name: "missing upload",
			out:  []pinning.Upload{{CID: cidA, Name: "a.txt"}},
			want: "1 uploads for 2 files",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, rec := &fakeChain{}, &fakeRecorder{}
			p := NewPipeline(&fakeUploader{out: tt.out}, chain, rec, Config{})

			batch, err := Stage(staged, false)
			require.NoError(t, err)

			sub, err := p.Submit(context.Background(), batch, validMeta())
			assert.Nil(t, sub)
			var uerr *UploadError
			require.True(t, errors.As(err, &uerr))
			assert.Contains(t, err.Error(), tt.want)
			assert.Empty(t, chain.calls)
			assert.Empty(t, rec.saved)
		})
	}
}
