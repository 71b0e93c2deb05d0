package rest

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ethereum-phunks/phunk-indexer/internal/domain"
	"github.com/ethereum-phunks/phunk-indexer/internal/store"
	"github.com/ethereum-phunks/phunk-indexer/internal/store/schema"
)

// Handler defines the interface for REST API handlers
type Handler interface {
	// GetPhunk retrieves a single ethscription by its hash id
	// GET /api/v1/phunks/:hashId?chain=<chain>&expand=events&events.limit=<limit>&events.offset=<offset>&events.order=<order>
	GetPhunk(c *gin.Context)

	// ListPhunks retrieves ethscriptions with optional filters
	// GET /api/v1/phunks?chain=<chain>&owner=<addr>&creator=<addr>&phunk_id=<n>&sha=<sha>&curated=<bool>&hash_id=<id>&order_by=<field>&order=<order>&limit=<limit>&offset=<offset>
	ListPhunks(c *gin.Context)

	// ListEvents retrieves ledger entries with optional filters
	// GET /api/v1/events?chain=<chain>&hash_id=<id>&type=<type>&address=<addr>&tx_hash=<hash>&block_number=<n>&order=<order>&limit=<limit>&offset=<offset>
	ListEvents(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// phunkResponse is a projection row plus optional expansions
type phunkResponse struct {
	schema.Phunk
	Events []schema.Event `json:"events,omitempty"`
}

// listResponse is the standard paginated collection envelope
type listResponse[T any] struct {
	Items  []T    `json:"items"`
	Total  uint64 `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// handler implements the Handler interface
type handler struct {
	store store.Store
}

// NewHandler creates a new REST API handler
func NewHandler(st store.Store) Handler {
	return &handler{store: st}
}

// GetPhunk retrieves a single ethscription by its hash id
func (h *handler) GetPhunk(c *gin.Context) {
	hashID := strings.ToLower(c.Param("hashId"))
	if hashID == "" {
		respondBadRequest(c, "Hash id is required")
		return
	}

	params, err := ParseGetPhunkQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}
	if !domain.IsValidChain(domain.Chain(params.Chain)) {
		respondBadRequest(c, "Unknown chain", params.Chain)
		return
	}

	phunk, err := h.store.GetPhunk(c.Request.Context(), domain.Chain(params.Chain), hashID)
	if err != nil {
		if errors.Is(err, domain.ErrPhunkNotFound) {
			respondNotFound(c, "Phunk not found")
			return
		}
		respondInternalError(c, err, "Failed to get phunk", zap.String("hash_id", hashID))
		return
	}

	response := phunkResponse{Phunk: *phunk}

	if params.ShouldExpandEvents() {
		events, _, err := h.store.ListEvents(c.Request.Context(), store.EventFilter{
			Chain:     params.Chain,
			HashID:    hashID,
			OrderDesc: params.EventOrder.Desc(),
			Limit:     params.EventLimit,
			Offset:    params.EventOffset,
		})
		if err != nil {
			respondInternalError(c, err, "Failed to list events", zap.String("hash_id", hashID))
			return
		}
		response.Events = events
	}

	c.JSON(http.StatusOK, response)
}

// ListPhunks retrieves ethscriptions with optional filters
func (h *handler) ListPhunks(c *gin.Context) {
	params, err := ParseListPhunksQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}
	if !domain.IsValidChain(domain.Chain(params.Chain)) {
		respondBadRequest(c, "Unknown chain", params.Chain)
		return
	}

	phunks, total, err := h.store.ListPhunks(c.Request.Context(), store.PhunkFilter{
		Chain:     params.Chain,
		HashIDs:   lowerAll(params.HashIDs),
		Owners:    params.Owners,
		Creator:   params.Creator,
		PhunkID:   params.PhunkID,
		Sha:       strings.ToLower(params.Sha),
		Curated:   params.Curated,
		OrderBy:   params.OrderBy,
		OrderDesc: params.Order.Desc(),
		Limit:     params.Limit,
		Offset:    params.Offset,
	})
	if err != nil {
		respondInternalError(c, err, "Failed to list phunks")
		return
	}

	c.JSON(http.StatusOK, listResponse[schema.Phunk]{
		Items:  phunks,
		Total:  total,
		Limit:  params.Limit,
		Offset: params.Offset,
	})
}

// ListEvents retrieves ledger entries with optional filters
func (h *handler) ListEvents(c *gin.Context) {
	params, err := ParseListEventsQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}
	if !domain.IsValidChain(domain.Chain(params.Chain)) {
		respondBadRequest(c, "Unknown chain", params.Chain)
		return
	}

	events, total, err := h.store.ListEvents(c.Request.Context(), store.EventFilter{
		Chain:       params.Chain,
		HashID:      strings.ToLower(params.HashID),
		Types:       params.Types,
		Address:     params.Address,
		TxHash:      strings.ToLower(params.TxHash),
		BlockNumber: params.BlockNumber,
		OrderDesc:   params.Order.Desc(),
		Limit:       params.Limit,
		Offset:      params.Offset,
	})
	if err != nil {
		respondInternalError(c, err, "Failed to list events")
		return
	}

	c.JSON(http.StatusOK, listResponse[schema.Event]{
		Items:  events,
		Total:  total,
		Limit:  params.Limit,
		Offset: params.Offset,
	})
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func lowerAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}
