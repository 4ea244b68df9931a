package httputil_test

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/allisson/billingsync/internal/httputil"
)

func TestParseLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name      string
		query     string
		wantLimit int
		wantErr   bool
	}{
		{name: "default", query: "", wantLimit: 50},
		{name: "explicit", query: "?limit=10", wantLimit: 10},
		{name: "max", query: "?limit=100", wantLimit: 100},
		{name: "zero", query: "?limit=0", wantErr: true},
		{name: "above max", query: "?limit=101", wantErr: true},
		{name: "not a number", query: "?limit=abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest("GET", "/items"+tt.query, nil)

			limit, err := httputil.ParseLimit(c)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantLimit, limit)
		})
	}
}
