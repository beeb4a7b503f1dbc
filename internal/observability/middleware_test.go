package observability

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danmuck/midikiti/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestRequestMiddlewareTagsInterfaceRoutes(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.TraceLevel)

	r := gin.New()
	r.Use(RequestLogger(logger, func() string { return "sess-1" }))
	r.Use(RequestMetricsMiddleware())
	const route = "/commanders/:commander/interfaces/:interface"
	r.POST(route+"/push", func(c *gin.Context) {
		c.Status(http.StatusConflict)
	})

	series := httpRequests.WithLabelValues("POST", route+"/push", "409")
	before := testutil.ToFloat64(series)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/commanders/1/interfaces/0/push", nil))
	if rr.Code != http.StatusConflict {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	if got := testutil.ToFloat64(series); got != before+1 {
		t.Fatalf("route counter: got=%v want=%v", got, before+1)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["level"] != "warn" || line["route"] != route+"/push" || line["address"] != "1.0" || line["session"] != "sess-1" {
		t.Fatalf("unexpected log fields: %v", line)
	}
}

func TestRequestMetricsUnmatchedRoute(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(zerolog.Nop(), nil))
	r.Use(RequestMetricsMiddleware())

	series := httpRequests.WithLabelValues("GET", "unmatched", "404")
	before := testutil.ToFloat64(series)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/no/such/route", nil))
	if got := testutil.ToFloat64(series); got != before+1 {
		t.Fatalf("unmatched counter: got=%v want=%v", got, before+1)
	}
}
