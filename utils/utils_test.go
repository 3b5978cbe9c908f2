package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateRequestID(t *testing.T) {
	id1 := GenerateRequestID()
	id2 := GenerateRequestID()

	assert.NotEmpty(t, id1)
	assert.NotEqual(t, id1, id2)

	// 14 timestamp + 1 dash + 8 random = 23
	assert.Equal(t, 23, len(id1))
	assert.Equal(t, 23, len(id2))
}

func TestRandomString(t *testing.T) {
	for length := 1; length <= 20; length++ {
		result := RandomString(length)
		assert.Equal(t, length, len(result))

		for _, char := range result {
			assert.Contains(t, charset, string(char))
		}
	}
}

func TestRequestID(t *testing.T) {
	req := httptest.NewRequest("GET", "/bulk/progress", nil)
	req.Header.Set(RequestIDHeader, "client-supplied")
	assert.Equal(t, "client-supplied", RequestID(req))

	req = httptest.NewRequest("GET", "/bulk/progress", nil)
	assert.Len(t, RequestID(req), 23)
}

func TestDedupeIDs(t *testing.T) {
	tests := []struct {
		name string
		in   []int64
		want []int64
	}{
		{"no duplicates", []int64{3, 1, 2}, []int64{3, 1, 2}},
		{"keeps first occurrence", []int64{5, 1, 5, 2, 1}, []int64{5, 1, 2}},
		{"empty", nil, []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DedupeIDs(tt.in))
		})
	}
}

func BenchmarkGenerateRequestID(b *testing.B) {
	for i := 0; i < b.N; i++ {
		GenerateRequestID()
	}
}
