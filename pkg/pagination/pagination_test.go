package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func contextWithQuery(query string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?"+query, nil)
	return c
}

func TestParseWith(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		limits Limits
		want   Params
	}{
		{"defaults", "", Standard, Params{Page: 1, Limit: 20, Offset: 0}},
		{"explicit page", "page=3&limit=10", Standard, Params{Page: 3, Limit: 10, Offset: 20}},
		{"garbage falls back", "page=abc&limit=-5", Standard, Params{Page: 1, Limit: 20, Offset: 0}},
		{"standard clamp", "limit=1000", Standard, Params{Page: 1, Limit: 100, Offset: 0}},
		{"deal board clamp", "page=2&limit=80", Deals, Params{Page: 2, Limit: 50, Offset: 50}},
		{"price record default", "", PriceRecords, Params{Page: 1, Limit: 50, Offset: 0}},
		{"price record clamp", "limit=900", PriceRecords, Params{Page: 1, Limit: 500, Offset: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseWith(contextWithQuery(tt.query), tt.limits))
		})
	}
}

func TestParseUsesStandardLimits(t *testing.T) {
	assert.Equal(t, Params{Page: 1, Limit: 100, Offset: 0}, Parse(contextWithQuery("limit=101")))
}
