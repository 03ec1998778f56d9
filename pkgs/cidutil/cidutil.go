package cidutil

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// ContentHash returns the content hash used for upload deduplication: a
// CIDv1 with the raw codec over a sha2-256 multihash of data. Equal bytes
// always produce equal hashes regardless of file name.
func ContentHash(data []byte) (string, error) {
	id, err := RawSHA256(data)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// RawSHA256 returns the CIDv1 (raw + sha2-256) derived from data.
func RawSHA256(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// Matches reports whether data hashes to id under the raw sha2-256 scheme.
// Gateway content is usually UnixFS-encoded, so a false result only means
// the bytes could not be verified this way.
func Matches(id cid.Cid, data []byte) bool {
	got, err := RawSHA256(data)
	if err != nil {
		return false
	}
	return got.Equals(id)
}
