/*
Package utils provides helper functions for the catalog bulk backend.
*/
package utils

import (
	"crypto/rand"
	"math/big"
	"net/http"
	"time"
)

// RequestIDHeader carries the caller's request id
const RequestIDHeader = "X-Request-ID"

const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	return time.Now().Format("20060102150405") + "-" + RandomString(8)
}

// RequestID returns the request's X-Request-ID header or a fresh id
func RequestID(r *http.Request) string {
	if id := r.Header.Get(RequestIDHeader); id != "" && len(id) <= 128 {
		return id
	}
	return GenerateRequestID()
}

// RandomString generates a random alphanumeric string of the given length
func RandomString(length int) string {
	b := make([]byte, length)
	max := big.NewInt(int64(len(charset)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			n = big.NewInt(time.Now().UnixNano() % int64(len(charset)))
		}
		b[i] = charset[n.Int64()]
	}
	return string(b)
}

// DedupeIDs removes duplicate ids, keeping the first occurrence of each
func DedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
