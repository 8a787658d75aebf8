package publisher

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rohanthewiz/logger"
)

// Encode serializes v as JSON. If that fails it falls back to a flattened
// %+v rendering so one bad tick never breaks the stream.
func Encode(v any) []byte {
	data, err := json.Marshal(v)
	if err == nil {
		return data
	}

	logger.LogErr(err, "failed to JSON-encode live reload event, falling back to plain text")
	fallback := fmt.Sprintf("%+v", v)
	return []byte(strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(fallback))
}
