package common

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:4312"
	require.Equal(t, "10.0.0.9", ClientIP(req))

	req.Header.Set("X-Real-IP", "192.0.2.4")
	require.Equal(t, "192.0.2.4", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "garbage, 203.0.113.7, 10.0.0.1")
	require.Equal(t, "203.0.113.7", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "not-an-ip")
	require.Equal(t, "192.0.2.4", ClientIP(req))

	require.Empty(t, ClientIP(nil))
}

func TestParsePaginationClamps(t *testing.T) {
	page, perPage := ParsePagination(httptest.NewRequest(http.MethodGet, "/?page=3&limit=500", nil), 20)
	require.Equal(t, 3, page)
	require.Equal(t, MaxPerPage, perPage)

	page, perPage = ParsePagination(httptest.NewRequest(http.MethodGet, "/?page=-1&limit=x", nil), 20)
	require.Equal(t, 1, page)
	require.Equal(t, 20, perPage)
}
