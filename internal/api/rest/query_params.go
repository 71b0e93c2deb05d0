package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/ethereum-phunks/phunk-indexer/internal/domain"
)

const maxPageSize = 100

// clampPage bounds limit to [0, maxPageSize] and offset to >= 0; a negative
// limit would otherwise disable the limit clause entirely
func clampPage(limit, offset *int) {
	if *limit < 0 {
		*limit = 0
	}
	if *limit > maxPageSize {
		*limit = maxPageSize
	}
	if *offset < 0 {
		*offset = 0
	}
}

type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

func (o Order) Desc() bool {
	return o == OrderDesc
}

func (o Order) Asc() bool {
	return o == OrderAsc
}

// GetPhunkQueryParams holds query parameters for GET /phunks/:hashId
type GetPhunkQueryParams struct {
	Chain  string   `form:"chain,default=eip155:1"`
	Expand []string `form:"expand"`

	// Events expansion parameters
	EventLimit  int   `form:"events.limit,default=20"`
	EventOffset int   `form:"events.offset,default=0"`
	EventOrder  Order `form:"events.order,default=asc"`
}

// ListPhunksQueryParams holds query parameters for GET /phunks
type ListPhunksQueryParams struct {
	// Filters
	Chain   string   `form:"chain,default=eip155:1"`
	HashIDs []string `form:"hash_id"`
	Owners  []string `form:"owner"`
	Creator string   `form:"creator"`
	PhunkID *uint64  `form:"phunk_id"`
	Sha     string   `form:"sha"`
	Curated *bool    `form:"curated"`

	// Pagination and ordering
	OrderBy string `form:"order_by,default=blockNumber"`
	Order   Order  `form:"order,default=asc"`
	Limit   int    `form:"limit,default=20"`
	Offset  int    `form:"offset,default=0"`
}

// ListEventsQueryParams holds query parameters for GET /events
type ListEventsQueryParams struct {
	// Filters
	Chain       string   `form:"chain,default=eip155:1"`
	HashID      string   `form:"hash_id"`
	Types       []string `form:"type"`
	Address     string   `form:"address"`
	TxHash      string   `form:"tx_hash"`
	BlockNumber *uint64  `form:"block_number"`

	// Pagination and ordering
	Order  Order `form:"order,default=asc"`
	Limit  int   `form:"limit,default=20"`
	Offset int   `form:"offset,default=0"`
}

// ParseGetPhunkQuery parses query parameters for GET /phunks/:hashId
func ParseGetPhunkQuery(c *gin.Context) (*GetPhunkQueryParams, error) {
	var params GetPhunkQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		return nil, err
	}

	clampPage(&params.EventLimit, &params.EventOffset)

	// Validate order
	if !params.EventOrder.Asc() && !params.EventOrder.Desc() {
		params.EventOrder = OrderAsc
	}

	return &params, nil
}

// ParseListPhunksQuery parses query parameters for GET /phunks
func ParseListPhunksQuery(c *gin.Context) (*ListPhunksQueryParams, error) {
	var params ListPhunksQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		return nil, err
	}

	// Normalize addresses
	params.Owners = domain.NormalizeAddresses(params.Owners)
	if params.Creator != "" {
		params.Creator = domain.NormalizeAddress(params.Creator)
	}

	clampPage(&params.Limit, &params.Offset)

	// Validate order
	if !params.Order.Asc() && !params.Order.Desc() {
		params.Order = OrderAsc
	}

	return &params, nil
}

// ParseListEventsQuery parses query parameters for GET /events
func ParseListEventsQuery(c *gin.Context) (*ListEventsQueryParams, error) {
	var params ListEventsQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		return nil, err
	}

	if params.Address != "" {
		params.Address = domain.NormalizeAddress(params.Address)
	}

	clampPage(&params.Limit, &params.Offset)

	// Validate order
	if !params.Order.Asc() && !params.Order.Desc() {
		params.Order = OrderAsc
	}

	return &params, nil
}

// ShouldExpandEvents returns true if event expansion is requested
func (p *GetPhunkQueryParams) ShouldExpandEvents() bool {
	for _, item := range p.Expand {
		if item == "events" {
			return true
		}
	}
	return false
}
