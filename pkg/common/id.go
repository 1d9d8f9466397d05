package common

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// GenerateSessionID generates an opaque session identifier
func GenerateSessionID() string {
	return uuid.NewString()
}

// GenerateBoundary generates a multipart boundary marker
func GenerateBoundary() string {
	return "batch_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// GenerateRandomID generates a random hex ID of the specified length.
func GenerateRandomID(length int) string {
	bytes := make([]byte, length/2+1)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)[:length]
}
