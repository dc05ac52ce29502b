package rekognition

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"

	"github.com/idan5353/video-threat-detection/pkg/models"
)

// maxTokenLen is the backend's limit on ClientRequestToken length.
const maxTokenLen = 64

// ContentHash identifies one uploaded object version as hex blake2b-256 of
// bucket/key/etag.
func ContentHash(bucket, key, etag string) string {
	sum := blake2b.Sum256([]byte(bucket + "/" + key + "/" + etag))
	return hex.EncodeToString(sum[:])
}

// RequestToken is the idempotency token for starting kind on a content hash.
// Repeating a start call with the same token returns the first job.
func RequestToken(kind models.JobKind, contentHash string) string {
	token := kind.Tag() + "-" + contentHash
	if len(token) > maxTokenLen {
		token = token[:maxTokenLen]
	}
	return token
}
