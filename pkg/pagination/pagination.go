package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const DefaultPage = 1

// Limits bounds the page size a listing accepts.
type Limits struct {
	Default int
	Max     int
}

var (
	// Standard suits small admin tables such as users, partners and tax rules.
	Standard = Limits{Default: 20, Max: 100}
	// Deals caps the deal board, whose rows carry status metadata and assignments.
	Deals = Limits{Default: 20, Max: 50}
	// PriceRecords allows larger pages for browsing estimator history.
	PriceRecords = Limits{Default: 50, Max: 500}
)

// Params holds validated pagination parameters
type Params struct {
	Page   int
	Limit  int
	Offset int
}

// Parse reads page/limit with the Standard limits.
func Parse(c *gin.Context) Params {
	return ParseWith(c, Standard)
}

// ParseWith reads page/limit from the query. Missing or non-positive values fall
// back to the defaults and limit is clamped to l.Max.
func ParseWith(c *gin.Context, l Limits) Params {
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil || page < 1 {
		page = DefaultPage
	}
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 1 {
		limit = l.Default
	}
	if limit > l.Max {
		limit = l.Max
	}

	return Params{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}
