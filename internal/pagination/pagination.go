// Package pagination reads paging and sort parameters for the subscription
// list endpoints from URL query strings and turns them into store offsets.
package pagination

import (
	"math"
	"net/url"
	"strconv"
)

// Params holds the paging values of one list request.
type Params struct {
	Page   int32  // 1-based
	Limit  int32  // items per page
	Offset int32  // rows to skip
	Sort   string // one of Sorts
}

const (
	MaxLimit     int32 = 100
	DefaultPage  int32 = 1
	DefaultLimit int32 = 25
	// DefaultSort keeps subscriptions in the order their first message appeared.
	DefaultSort = "seen"
)

// Sorts lists the accepted sort keys.
var Sorts = []string{"seen", "count", "sender", "status"}

// maxPage is the last page whose offset still fits in an int32.
func maxPage(limit int32) int32 {
	if limit <= 0 {
		return math.MaxInt32
	}
	return math.MaxInt32 / limit
}

func calculateOffset(page, limit int32) int32 {
	if page < 1 {
		page = 1
	}
	page = min(page, maxPage(limit))
	return int32((int64(page) - 1) * int64(limit))
}

func IsValidSort(sort string) bool {
	for _, candidate := range Sorts {
		if candidate == sort {
			return true
		}
	}
	return false
}

// Option configures the defaults applied before the query is read.
type Option func(*Params)

// WithDefaultLimit sets the limit used when the query has none. Non-positive
// values are ignored.
func WithDefaultLimit(limit int32) Option {
	return func(p *Params) {
		if limit > 0 {
			p.Limit = min(limit, MaxLimit)
		}
	}
}

// WithDefaultSort sets the sort used when the query has none. Unknown sort
// keys are ignored.
func WithDefaultSort(sort string) Option {
	if !IsValidSort(sort) {
		return func(p *Params) {}
	}
	return func(p *Params) {
		p.Sort = sort
	}
}

// FromQuery extracts page, limit and sort from q. Invalid values fall back to
// the defaults and the limit is capped at MaxLimit.
func FromQuery(q url.Values, opts ...Option) *Params {
	params := &Params{
		Page:  DefaultPage,
		Limit: DefaultLimit,
		Sort:  DefaultSort,
	}

	for _, opt := range opts {
		opt(params)
	}

	if pageStr := q.Get("page"); pageStr != "" {
		if val, err := strconv.ParseInt(pageStr, 10, 32); err == nil && val > 0 {
			params.Page = int32(val)
		}
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		if val, err := strconv.ParseInt(limitStr, 10, 32); err == nil && val > 0 {
			params.Limit = int32(val)
		}
	}

	if params.Limit > MaxLimit {
		params.Limit = MaxLimit
	}
	params.Page = min(params.Page, maxPage(params.Limit))

	params.Offset = calculateOffset(params.Page, params.Limit)

	if sortStr := q.Get("sort"); sortStr != "" && IsValidSort(sortStr) {
		params.Sort = sortStr
	}

	return params
}

// HasNext reports whether rows remain after the current page.
func HasNext(offset, limit, count int32) bool {
	return int64(offset)+int64(limit) < int64(count)
}

// TotalPages returns the number of pages needed for count rows, at least 1.
func TotalPages(limit, count int32) int32 {
	if limit <= 0 || count <= 0 {
		return 1
	}
	return (count + limit - 1) / limit
}
