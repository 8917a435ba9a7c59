package email

import (
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var messageIDPattern = regexp.MustCompile(`(?im)^message-id:(.*)$`)

// ResolveMessageID derives a non-empty message identifier. The envelope id
// wins when present; otherwise the raw source is scanned for a Message-ID
// header line; otherwise a synthetic id is generated. Synthetic ids are not
// stable across runs, so re-ingesting the same malformed message produces a
// new document each time.
func ResolveMessageID(envelopeID string, raw []byte) string {
	if envelopeID != "" {
		return envelopeID
	}

	if m := messageIDPattern.FindSubmatch(raw); m != nil {
		if id := strings.TrimSpace(string(m[1])); id != "" {
			return id
		}
	}

	return fmt.Sprintf("<generated-%d-%s>",
		time.Now().UnixMilli(),
		strconv.FormatFloat(rand.Float64(), 'f', -1, 64))
}
