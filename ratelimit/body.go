package ratelimit

import (
	"bytes"
	"io"
	"net/http"
	"sync"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultBodyLimitBytes bounds how much of a request body BodyBuffer will
// read when a rule does not set its own BodyLimitBytes.
const DefaultBodyLimitBytes = 1 << 20 // 1 MiB

// BodyBuffer reads and caches a request's body exactly once, so that both
// identifier resolution and any downstream handler can consume it. Gin
// and net/http request bodies are single-read io.ReadClosers; without
// buffering, a rule that extracts an identifier from the body would
// consume it before the real handler ever sees it.
type BodyBuffer struct {
	once sync.Once

	data     []byte
	err      error
	mimeType string
}

// Read populates the buffer from r, capped at limitBytes (or
// DefaultBodyLimitBytes if limitBytes <= 0). It is safe to call multiple
// times; only the first call actually reads from r.
func (b *BodyBuffer) Read(r *http.Request, limitBytes int64) ([]byte, error) {
	b.once.Do(func() {
		if limitBytes <= 0 {
			limitBytes = DefaultBodyLimitBytes
		}
		if r.Body == nil {
			return
		}
		orig := r.Body

		limited := io.LimitReader(orig, limitBytes)
		data, err := io.ReadAll(limited)
		if err != nil {
			orig.Close()
			b.err = err
			return
		}
		b.data = data
		if len(data) > 0 {
			b.mimeType = mimetype.Detect(data).String()
		}
		// Restore the body so a downstream handler can still read all of
		// it: the buffered bytes first, then anything past limitBytes.
		r.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(data), orig), orig}
	})
	return b.data, b.err
}

// MimeType returns the sniffed content type of the buffered body. It is
// only meaningful after Read has been called at least once, and returns
// "" for an empty or unread body.
func (b *BodyBuffer) MimeType() string {
	return b.mimeType
}

// IsJSON reports whether the buffered body was sniffed as JSON. Identifier
// resolution does not call it: a body source parses the body in its
// configured BodyFormat, and a body that fails to parse yields no value.
func (b *BodyBuffer) IsJSON() bool {
	return b.data != nil && mimetype.Detect(b.data).Is("application/json")
}
