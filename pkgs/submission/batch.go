package submission

import (
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ASingh442/sikh-historical-chain/pkgs/cidutil"
	"github.com/ASingh442/sikh-historical-chain/pkgs/pinning"
)

// MaxFiles is the most files one submission may carry.
const MaxFiles = pinning.MaxFiles

var (
	baseExtensions     = []string{".txt", ".md", ".pdf", ".jpg", ".png"}
	verifiedExtensions = []string{".mp4"}

	alphanumeric = regexp.MustCompile(`[A-Za-z0-9]`)
)

// AllowedExtensions lists the accepted extensions; verified submitters may
// also attach video.
func AllowedExtensions(verified bool) []string {
	out := append([]string(nil), baseExtensions...)
	if verified {
		out = append(out, verifiedExtensions...)
	}
	return out
}

// StagedFile is a file accepted into a batch.
type StagedFile struct {
	Name        string
	ContentType string
	Data        []byte
	ContentHash string
}

// UploadBatch holds the files waiting to be submitted. It never contains
// two files with the same content hash, nor more than MaxFiles files.
type UploadBatch struct {
	files []StagedFile
	seen  map[string]struct{}
}

// Stage creates a batch from files. See Add.
func Stage(files []pinning.File, verified bool) (*UploadBatch, error) {
	b := &UploadBatch{seen: make(map[string]struct{})}
	return b, b.Add(files, verified)
}

// Add validates files in order. Files with a bad name or extension are
// reported and skipped; files whose bytes are already staged are dropped
// silently. If the remaining files would push the batch past MaxFiles,
// none of them are added. The returned error is a *ValidationError.
func (b *UploadBatch) Add(files []pinning.File, verified bool) error {
	if b.seen == nil {
		b.seen = make(map[string]struct{})
	}

	allowed := AllowedExtensions(verified)
	verr := &ValidationError{}
	accepted := make([]StagedFile, 0, len(files))
	hashes := make(map[string]struct{}, len(files))

	for _, f := range files {
		if !validName(f.Name) {
			name := f.Name
			if strings.TrimSpace(name) == "" {
				name = "<invalid>"
			}
			verr.add(name, ReasonInvalidName)
			continue
		}

		if !hasExtension(f.Name, allowed) {
			verr.add(f.Name, fmt.Sprintf("%s (allowed: %s)", ReasonDisallowed, strings.Join(allowed, ", ")))
			continue
		}

		hash, err := cidutil.ContentHash(f.Data)
		if err != nil {
			verr.add(f.Name, err.Error())
			continue
		}
		if _, dup := b.seen[hash]; dup {
			continue
		}
		if _, dup := hashes[hash]; dup {
			continue
		}
		hashes[hash] = struct{}{}

		contentType := f.ContentType
		if contentType == "" {
			contentType = http.DetectContentType(f.Data)
		}
		accepted = append(accepted, StagedFile{
			Name:        f.Name,
			ContentType: contentType,
			Data:        f.Data,
			ContentHash: hash,
		})
	}

	if room := MaxFiles - len(b.files); len(accepted) > room {
		for _, f := range accepted[room:] {
			verr.add(f.Name, ReasonCountExceeded)
		}
		return verr
	}

	for _, f := range accepted {
		b.seen[f.ContentHash] = struct{}{}
		b.files = append(b.files, f)
	}
	return verr.orNil()
}

// Remove drops the file at index and frees its content hash, so the same
// bytes can be staged again.
func (b *UploadBatch) Remove(index int) error {
	if index < 0 || index >= len(b.files) {
		return fmt.Errorf("no staged file at index %d", index)
	}
	delete(b.seen, b.files[index].ContentHash)
	b.files = append(b.files[:index], b.files[index+1:]...)
	return nil
}

// Files returns the staged files in order.
func (b *UploadBatch) Files() []StagedFile {
	if b == nil {
		return nil
	}
	return append([]StagedFile(nil), b.files...)
}

// Len returns the number of staged files.
func (b *UploadBatch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.files)
}

func (b *UploadBatch) pinningFiles() []pinning.File {
	out := make([]pinning.File, 0, len(b.files))
	for _, f := range b.files {
		out = append(out, pinning.File{Name: f.Name, ContentType: f.ContentType, Data: f.Data})
	}
	return out
}

// validName requires a letter or digit once the last extension is removed.
func validName(name string) bool {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return false
	}
	base := strings.TrimSuffix(trimmed, filepath.Ext(trimmed))
	return alphanumeric.MatchString(base)
}

func hasExtension(name string, allowed []string) bool {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(name)))
	for _, a := range allowed {
		if ext == a {
			return true
		}
	}
	return false
}
