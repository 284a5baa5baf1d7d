package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/ok/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	baseRoute := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/ok/:id", "200"))
	baseMissing := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/missing", "404"))

	for _, path := range []string{"/ok/1", "/ok/2", "/missing"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, baseRoute+2, testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/ok/:id", "200")))
	assert.Equal(t, baseMissing+1, testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/missing", "404")))
}

func TestChainLabel(t *testing.T) {
	assert.Equal(t, "8453", ChainLabel(8453))
}
