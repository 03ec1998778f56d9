package contentref

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/ipfs/go-cid"
)

// MinIDLength is the shortest identifier accepted as real content.
// Shorter values are almost always empty or garbage ledger fields.
const MinIDLength = 30

var idPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// Reference is a canonical content identifier plus an optional sub-path
// inside the referenced content. Only Parse produces valid references.
type Reference struct {
	ID   string `json:"id"`
	Path string `json:"path,omitempty"`
}

// Parse normalizes a loosely formatted identifier: a bare CID, an ipfs://
// URI, or a gateway URL with an /ipfs/<cid>/... path. It never panics on
// untrusted input; ok is false when nothing usable was found.
func Parse(raw string) (ref Reference, ok bool) {
	h := strings.TrimSpace(raw)
	if h == "" {
		return Reference{}, false
	}

	lower := strings.ToLower(h)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		u, err := url.Parse(h)
		if err != nil {
			return Reference{}, false
		}
		if idx := strings.Index(u.Path, "/ipfs/"); idx != -1 {
			h = u.Path[idx+len("/ipfs/"):]
		} else {
			h = strings.TrimLeft(u.Path, "/")
		}
	}

	if strings.HasPrefix(strings.ToLower(h), "ipfs://") {
		h = h[len("ipfs://"):]
	}

	h = strings.TrimSpace(strings.Trim(h, "/"))
	// Pinning services sometimes echo "ipfs/<cid>".
	if strings.HasPrefix(h, "ipfs/") {
		h = strings.Trim(h[len("ipfs/"):], "/")
	}
	if h == "" {
		return Reference{}, false
	}

	candidate, rest, _ := strings.Cut(h, "/")
	candidate = strings.TrimSpace(candidate)
	if !ValidID(candidate) {
		return Reference{}, false
	}

	return Reference{ID: candidate, Path: strings.Trim(rest, "/")}, true
}

// ValidID reports whether s satisfies the identifier format.
func ValidID(s string) bool {
	return len(s) >= MinIDLength && idPattern.MatchString(s)
}

// String returns the canonical form: "<id>" or "<id>/<path>".
func (r Reference) String() string {
	if r.Path == "" {
		return r.ID
	}
	return r.ID + "/" + r.Path
}

// IsZero reports whether r is the empty reference.
func (r Reference) IsZero() bool {
	return r.ID == ""
}

// CID decodes the identifier as a typed CID. A reference that passes the
// format check may still fail here (for example a truncated hash); callers
// treat that as "not verifiable", not as an invalid reference.
func (r Reference) CID() (cid.Cid, error) {
	return cid.Decode(r.ID)
}

// ParseList splits a comma-joined hash field, keeping the valid references
// in their original order.
func ParseList(field string) []Reference {
	if strings.TrimSpace(field) == "" {
		return nil
	}

	parts := strings.Split(field, ",")
	refs := make([]Reference, 0, len(parts))
	for _, part := range parts {
		if ref, ok := Parse(part); ok {
			refs = append(refs, ref)
		}
	}
	return refs
}

// SplitField returns the trimmed, non-empty raw entries of a comma-joined
// hash field without validating them.
func SplitField(field string) []string {
	var out []string
	for _, part := range strings.Split(field, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinCanonical normalizes every raw identifier (stripping any scheme or
// gateway prefix) and joins the valid ones with commas for the on-chain
// hash field.
func JoinCanonical(raws []string) string {
	canon := make([]string, 0, len(raws))
	for _, raw := range raws {
		if ref, ok := Parse(raw); ok {
			canon = append(canon, ref.String())
		}
	}
	return strings.Join(canon, ",")
}
