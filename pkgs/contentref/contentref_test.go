package contentref

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	v0CID = "QmX4fG7h9K2pL8mN3qR5sT6vW9xY1zA2bC3dE4fG5hI6jK"
	v1CID = "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"
)

func TestParse_Forms(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Reference
	}{
		{"bare", v0CID, Reference{ID: v0CID}},
		{"padded", "  " + v0CID + "  ", Reference{ID: v0CID}},
		{"scheme", "ipfs://" + v1CID, Reference{ID: v1CID}},
		{"scheme with path", "ipfs://" + v1CID + "/docs/a.pdf", Reference{ID: v1CID, Path: "docs/a.pdf"}},
		{"gateway url", "https://gateway.pinata.cloud/ipfs/" + v0CID, Reference{ID: v0CID}},
		{"gateway url with path", "https://ipfs.io/ipfs/" + v0CID + "/img/1.png?x=1", Reference{ID: v0CID, Path: "img/1.png"}},
		{"url without ipfs segment", "https://example.org/" + v0CID + "/", Reference{ID: v0CID}},
		{"echoed ipfs prefix", "ipfs/" + v0CID, Reference{ID: v0CID}},
		{"surrounding slashes", "/" + v0CID + "/", Reference{ID: v0CID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.raw)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	for _, raw := range []string{
		"",
		"   ",
		"ipfs://",
		"https://ipfs.io/ipfs/",
		"QmShort",
		"Qm-not-alphanumeric-but-long-enough-to-pass-length",
		"////",
	} {
		_, ok := Parse(raw)
		assert.False(t, ok, "expected %q to be rejected", raw)
	}
}

func TestParse_CanonicalIdempotent(t *testing.T) {
	inputs := []string{
		v0CID,
		"ipfs://" + v1CID + "/a/b/c.txt",
		"https://cloudflare-ipfs.com/ipfs/" + v0CID + "//nested//x",
		"ipfs/" + v1CID + "/",
		" https://gateway.pinata.cloud/ipfs/" + v1CID + " ",
	}

	for _, raw := range inputs {
		first, ok := Parse(raw)
		require.True(t, ok, raw)

		second, ok := Parse(first.String())
		require.True(t, ok, raw)
		assert.Equal(t, first, second, raw)
	}
}

func TestParseList_DropsInvalidKeepsOrder(t *testing.T) {
	field := v1CID + ", ,garbage," + "ipfs://" + v0CID + ","

	refs := ParseList(field)
	require.Len(t, refs, 2)
	assert.Equal(t, v1CID, refs[0].ID)
	assert.Equal(t, v0CID, refs[1].ID)

	assert.Empty(t, ParseList(""))
	assert.Empty(t, ParseList(" , "))
}

func TestJoinCanonical(t *testing.T) {
	joined := JoinCanonical([]string{
		"https://gateway.pinata.cloud/ipfs/" + v0CID,
		"",
		"ipfs://" + v1CID,
		"nope",
	})
	assert.Equal(t, v0CID+","+v1CID, joined)
}

func TestSplitField(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitField(" a ,, b ,"))
	assert.Nil(t, SplitField(""))
}

func TestReference_CID(t *testing.T) {
	ref, ok := Parse(v1CID)
	require.True(t, ok)

	c, err := ref.CID()
	require.NoError(t, err)
	assert.Equal(t, v1CID, c.String())

	// Format-valid but not a decodable CID.
	bogus, ok := Parse("Qm" + "11111111111111111111111111111111")
	require.True(t, ok)
	_, err = bogus.CID()
	assert.Error(t, err)
}
