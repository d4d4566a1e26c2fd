package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// ParseIDParam parses a numeric path parameter, writing a 400 response when it is malformed.
func ParseIDParam(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + strings.ReplaceAll(name, "_", " ")})
		return 0, false
	}
	return id, true
}

// Page holds the page and page_size query parameters.
type Page struct {
	Page     int
	PageSize int
}

// ParsePage reads page and page_size with defaults and an upper bound.
func ParsePage(c *gin.Context) Page {
	p := Page{Page: 1, PageSize: defaultPageSize}
	if v, errParse := strconv.Atoi(strings.TrimSpace(c.Query("page"))); errParse == nil && v > 0 {
		p.Page = v
	}
	if v, errParse := strconv.Atoi(strings.TrimSpace(c.Query("page_size"))); errParse == nil && v > 0 {
		p.PageSize = min(v, maxPageSize)
	}
	return p
}

// Apply limits q to the page.
func (p Page) Apply(q *gorm.DB) *gorm.DB {
	return q.Offset((p.Page - 1) * p.PageSize).Limit(p.PageSize)
}

// Meta renders the paging fields of a list response.
func (p Page) Meta(total int64) gin.H {
	return gin.H{"page": p.Page, "page_size": p.PageSize, "total": total}
}
