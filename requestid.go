package apikit

import (
	"net/http"
	"unicode"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request correlation id on every response.
const RequestIDHeader = "x-request-id"

// maxRequestIDLen bounds ids accepted from clients.
const maxRequestIDLen = 128

// IDGenerator produces request ids.
type IDGenerator func() string

func defaultIDGenerator() string {
	return uuid.NewString()
}

// requestID returns the id for r. A client-supplied id is reused only when
// trusted and well formed.
func requestID(r *http.Request, trust bool, gen IDGenerator) string {
	if trust {
		if id := r.Header.Get(RequestIDHeader); validRequestID(id) {
			return id
		}
	}
	if gen == nil {
		gen = defaultIDGenerator
	}
	return gen()
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, r := range id {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) || r == ' ' {
			return false
		}
	}
	return true
}
