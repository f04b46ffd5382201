package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, inbound string) (*httptest.ResponseRecorder, string, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var fromGin, fromCtx string
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) {
		fromGin = Value(c)
		fromCtx = FromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	if inbound != "" {
		req.Header.Set(Header, inbound)
	}
	r.ServeHTTP(w, req)
	return w, fromGin, fromCtx
}

func TestMiddlewareKeepsInboundID(t *testing.T) {
	w, fromGin, fromCtx := serve(t, "gen-42.retry_1")
	assert.Equal(t, "gen-42.retry_1", w.Header().Get(Header))
	assert.Equal(t, "gen-42.retry_1", fromGin)
	assert.Equal(t, "gen-42.retry_1", fromCtx)
}

func TestMiddlewareReplacesMalformedID(t *testing.T) {
	for _, inbound := range []string{"", "has space", "<script>", strings.Repeat("a", maxLength+1)} {
		w, fromGin, _ := serve(t, inbound)
		id := w.Header().Get(Header)
		_, err := uuid.Parse(id)
		require.NoError(t, err, "inbound %q", inbound)
		assert.Equal(t, id, fromGin)
	}
}
