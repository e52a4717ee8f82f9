package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"clobex.com/pkg/common"
	"clobex.com/pkg/logger"
	"clobex.com/pkg/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func init() { gin.SetMode(gin.TestMode) }

func serve(r *gin.Engine, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestReqId(t *testing.T) {
	r := gin.New()
	r.Use(ReqId())
	var fromCtx, fromGin string
	r.GET("/x", func(c *gin.Context) {
		fromCtx, _ = c.Request.Context().Value(logger.TraceIdKey).(string)
		fromGin = common.RequestID(c)
		c.Status(http.StatusNoContent)
	})

	w := serve(r, http.MethodGet, "/x", map[string]string{common.HeaderRequestID: "abc"})
	assert.Equal(t, "abc", w.Header().Get(common.HeaderRequestID))
	assert.Equal(t, "abc", fromCtx)
	assert.Equal(t, "abc", fromGin)

	w = serve(r, http.MethodGet, "/x", nil)
	assert.Len(t, w.Header().Get(common.HeaderRequestID), 36)
	assert.Equal(t, w.Header().Get(common.HeaderRequestID), fromCtx)
}

func TestRecover(t *testing.T) {
	r := gin.New()
	r.Use(Recover())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := serve(r, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal error")
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(ratelimit.NewStore(rate.Every(time.Hour), 1, time.Minute)))
	r.GET("/a", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/b", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/a", nil).Code)
	w := serve(r, http.MethodGet, "/a", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "1003001")
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/b", nil).Code, "buckets are per route")
}
