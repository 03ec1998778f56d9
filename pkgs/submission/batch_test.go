package submission

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ASingh442/sikh-historical-chain/pkgs/pinning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func file(name, data string) pinning.File {
	return pinning.File{Name: name, Data: []byte(data)}
}

func TestStage_NoDuplicateHashes(t *testing.T) {
	batch, err := Stage([]pinning.File{
		file("a.txt", "same bytes"),
		file("b.txt", "same bytes"),
		file("c.md", "other"),
	}, false)
	require.NoError(t, err)
	require.Equal(t, 2, batch.Len())

	// Re-adding identical bytes under a new name is a silent no-op.
	require.NoError(t, batch.Add([]pinning.File{file("renamed.pdf", "same bytes")}, false))
	assert.Equal(t, 2, batch.Len())

	seen := map[string]bool{}
	for _, f := range batch.Files() {
		assert.False(t, seen[f.ContentHash], "duplicate hash %s", f.ContentHash)
		seen[f.ContentHash] = true
	}
}

func TestStage_AccumulatesErrorsAndKeepsValidFiles(t *testing.T) {
	batch, err := Stage([]pinning.File{
		file("---.txt", "x"),
		file("movie.mp4", "y"),
		file("notes.TXT", "z"),
		file("  ", "w"),
	}, false)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Issues, 3)
	assert.Equal(t, "---.txt", verr.Issues[0].Subject)
	assert.Equal(t, ReasonInvalidName, verr.Issues[0].Reason)
	assert.Contains(t, verr.Issues[1].Reason, ReasonDisallowed)
	assert.Equal(t, "<invalid>", verr.Issues[2].Subject)

	require.Equal(t, 1, batch.Len())
	assert.Equal(t, "notes.TXT", batch.Files()[0].Name)
}

func TestStage_VerifiedMayAttachVideo(t *testing.T) {
	batch, err := Stage([]pinning.File{file("clip.mp4", "video")}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Len())
	assert.Contains(t, AllowedExtensions(true), ".mp4")
	assert.NotContains(t, AllowedExtensions(false), ".mp4")
}

func TestAdd_CountCapRejectsWholeAddition(t *testing.T) {
	batch, err := Stage([]pinning.File{file("1.txt", "1"), file("2.txt", "2"), file("3.txt", "3")}, false)
	require.NoError(t, err)

	err = batch.Add([]pinning.File{file("4.txt", "4"), file("5.txt", "5"), file("6.txt", "6")}, false)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has(ReasonCountExceeded))
	assert.Equal(t, "6.txt", verr.Issues[0].Subject)
	assert.Equal(t, 3, batch.Len())

	require.NoError(t, batch.Add([]pinning.File{file("4.txt", "4"), file("5.txt", "5")}, false))
	assert.Equal(t, MaxFiles, batch.Len())
}

func TestStage_MoreThanMaxRejected(t *testing.T) {
	files := make([]pinning.File, MaxFiles+1)
	for i := range files {
		files[i] = file(fmt.Sprintf("f%d.png", i), fmt.Sprint(i))
	}
	batch, err := Stage(files, false)
	require.Error(t, err)
	assert.Zero(t, batch.Len())
}

func TestRemove_FreesHash(t *testing.T) {
	batch, err := Stage([]pinning.File{file("a.txt", "A"), file("b.txt", "B")}, false)
	require.NoError(t, err)

	require.NoError(t, batch.Remove(0))
	assert.Equal(t, 1, batch.Len())
	assert.Equal(t, "b.txt", batch.Files()[0].Name)

	require.NoError(t, batch.Add([]pinning.File{file("a-again.txt", "A")}, false))
	assert.Equal(t, 2, batch.Len())

	assert.Error(t, batch.Remove(5))
	assert.Error(t, batch.Remove(-1))
}
