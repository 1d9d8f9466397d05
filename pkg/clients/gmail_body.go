package clients

import (
	"encoding/base64"
	"strings"

	"github.com/beam-cloud/salesmap/pkg/types"
)

var urlSafeReplacer = strings.NewReplacer("-", "+", "_", "/")

// ExtractText walks the message's MIME tree depth-first and joins every
// decodable text/plain and text/html leaf with a newline. Both renditions
// are kept so a pattern can match whichever one carries the value.
func ExtractText(msg *types.RawMessage) string {
	if msg == nil || msg.Payload == nil {
		return ""
	}

	var fragments []string
	collectText(msg.Payload, &fragments)
	return strings.Join(fragments, "\n")
}

func collectText(part *types.MessagePart, fragments *[]string) {
	if isTextPart(part.MimeType) && part.Body != nil && part.Body.Data != "" {
		if text, ok := decodeBodyData(part.Body.Data); ok {
			*fragments = append(*fragments, text)
		}
	}

	for i := range part.Parts {
		collectText(&part.Parts[i], fragments)
	}
}

func isTextPart(mimeType string) bool {
	mediaType, _, _ := strings.Cut(strings.ToLower(mimeType), ";")
	mediaType = strings.TrimSpace(mediaType)
	return mediaType == "text/plain" || mediaType == "text/html"
}

// decodeBodyData decodes base64url part data. Gmail usually omits padding,
// so the URL-safe alphabet is mapped back to standard and padding is ignored.
func decodeBodyData(data string) (string, bool) {
	data = strings.TrimSpace(data)
	data = strings.TrimRight(urlSafeReplacer.Replace(data), "=")

	decoded, err := base64.RawStdEncoding.DecodeString(data)
	if err != nil {
		return "", false
	}
	return string(decoded), true
}
