// Package checksum computes content digests used as tree versions.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/goccy/go-json"

	"github.com/starford/hiertree/internal/models"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Tree returns the digest of the canonical JSON encoding of nodes.
// A nil and an empty collection hash to the same value.
func Tree(nodes []models.Node) string {
	if nodes == nil {
		nodes = []models.Node{}
	}
	data, err := json.Marshal(nodes)
	if err != nil {
		return ""
	}
	return Sum(data)
}
