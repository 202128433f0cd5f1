package crm

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	store "github.com/codeteki/outreach/internal/stores/crm"
	"github.com/codeteki/outreach/pkg/sdk"
)

/* ---- PIPELINES ---- */

// ListPipelines handles GET requests for a brand's pipelines
func ListPipelines(c *gin.Context) {
	pipelines, err := GetService().store.ListPipelines(c.Query("brand"))
	if err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to list pipelines", err).AsGinResponse())
		return
	}
	c.JSON(sdk.NewSuccessResponse("Pipelines retrieved successfully", pipelines).AsGinResponse())
}

// CreatePipeline handles POST requests to create a pipeline with stages
func CreatePipeline(c *gin.Context) {
	var req sdk.CreatePipelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusBadRequest, "Could not parse request body", err).AsGinResponse())
		return
	}

	pipeline, err := GetService().CreatePipeline(req)
	if err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to create pipeline", err).AsGinResponse())
		return
	}
	c.JSON(sdk.NewSuccessResponse("Pipeline created successfully", pipeline).AsGinResponse())
}

// GetPipeline handles GET requests for one pipeline including its stages
func GetPipeline(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	pipeline, err := GetService().store.GetPipeline(id)
	if err != nil {
		respondLookupError(c, "Pipeline", err)
		return
	}
	c.JSON(sdk.NewSuccessResponse("Pipeline retrieved successfully", pipeline).AsGinResponse())
}

/* ---- CONTACTS ---- */

// ListContacts handles GET requests for contacts with brand/status filters
func ListContacts(c *gin.Context) {
	filter := store.ContactFilter{
		Brand:  c.Query("brand"),
		Status: c.Query("status"),
		Offset: queryInt(c, "offset", 0),
		Limit:  queryInt(c, "limit", 50),
	}

	contacts, err := GetService().store.ListContacts(filter)
	if err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to list contacts", err).AsGinResponse())
		return
	}
	c.JSON(sdk.NewSuccessResponse("Contacts retrieved successfully", contacts).AsGinResponse())
}

// CreateContact handles POST requests to create and score a contact
func CreateContact(c *gin.Context) {
	var req sdk.CreateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusBadRequest, "Could not parse request body", err).AsGinResponse())
		return
	}

	contact, err := GetService().CreateContact(c.Request.Context(), req)
	if err != nil {
		if contact != nil {
			// Contact was created, only scoring failed
			c.JSON(sdk.NewSuccessResponse("Contact created, lead scoring deferred", contact).AsGinResponse())
			return
		}
		c.JSON(sdk.NewErrorResponse(http.StatusConflict, "Failed to create contact", err).AsGinResponse())
		return
	}
	c.JSON(sdk.NewSuccessResponse("Contact created successfully", contact).AsGinResponse())
}

// GetContact handles GET requests for one contact
func GetContact(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	contact, err := GetService().store.GetContact(id)
	if err != nil {
		respondLookupError(c, "Contact", err)
		return
	}
	c.JSON(sdk.NewSuccessResponse("Contact retrieved successfully", contact).AsGinResponse())
}

// PatchContact handles PATCH requests updating contact fields
func PatchContact(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req sdk.PatchContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusBadRequest, "Could not parse request body", err).AsGinResponse())
		return
	}

	contact, err := GetService().PatchContact(id, req)
	if err != nil {
		respondLookupError(c, "Contact", err)
		return
	}
	c.JSON(sdk.NewSuccessResponse("Contact updated successfully", contact).AsGinResponse())
}

/* ---- DEALS ---- */

// ListDeals handles GET requests for deals with status/pipeline/contact filters
func ListDeals(c *gin.Context) {
	filter := store.DealFilter{
		Brand:      c.Query("brand"),
		Status:     c.Query("status"),
		PipelineID: uint(queryInt(c, "pipeline_id", 0)),
		ContactID:  uint(queryInt(c, "contact_id", 0)),
		Offset:     queryInt(c, "offset", 0),
		Limit:      queryInt(c, "limit", 50),
	}

	deals, err := GetService().store.ListDeals(filter)
	if err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to list deals", err).AsGinResponse())
		return
	}
	c.JSON(sdk.NewSuccessResponse("Deals retrieved successfully", deals).AsGinResponse())
}

// CreateDeal handles POST requests to start a contact in a pipeline
func CreateDeal(c *gin.Context) {
	var req sdk.CreateDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusBadRequest, "Could not parse request body", err).AsGinResponse())
		return
	}

	deal, err := GetService().CreateDeal(req)
	if err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusConflict, "Failed to create deal", err).AsGinResponse())
		return
	}
	c.JSON(sdk.NewSuccessResponse("Deal created successfully", deal).AsGinResponse())
}

// dealDetail is a deal with its audit trail attached
type dealDetail struct {
	*store.Deal
	Activities []*store.DealActivity `json:"activities"`
}

// GetDeal handles GET requests for one deal including its activities
func GetDeal(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	deal, err := GetService().store.GetDeal(id)
	if err != nil {
		respondLookupError(c, "Deal", err)
		return
	}
	activities, err := GetService().store.ListDealActivities(deal.ID)
	if err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to load deal activities", err).AsGinResponse())
		return
	}
	c.JSON(sdk.NewSuccessResponse("Deal retrieved successfully", dealDetail{Deal: deal, Activities: activities}).AsGinResponse())
}

// PatchDeal handles PATCH requests moving a deal's stage or status
func PatchDeal(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req sdk.PatchDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusBadRequest, "Could not parse request body", err).AsGinResponse())
		return
	}

	deal, err := GetService().PatchDeal(c.Request.Context(), id, req)
	if err != nil {
		respondLookupError(c, "Deal", err)
		return
	}
	c.JSON(sdk.NewSuccessResponse("Deal updated successfully", deal).AsGinResponse())
}

/* ---- EMAILS, ACTIVITY, STATS ---- */

// ListEmails handles GET requests for a deal's email logs
func ListEmails(c *gin.Context) {
	dealID := queryInt(c, "deal_id", 0)
	if dealID == 0 {
		c.JSON(sdk.NewErrorResponse(http.StatusBadRequest, "deal_id query parameter is required", nil).AsGinResponse())
		return
	}

	logs, err := GetService().store.ListEmailLogs(uint(dealID))
	if err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to list emails", err).AsGinResponse())
		return
	}
	c.JSON(sdk.NewSuccessResponse("Emails retrieved successfully", logs).AsGinResponse())
}

// ListAIActivity handles GET requests for the AI audit trail
func ListAIActivity(c *gin.Context) {
	activities, err := GetService().store.ListAIActivities(queryInt(c, "limit", 100))
	if err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to list AI activity", err).AsGinResponse())
		return
	}
	c.JSON(sdk.NewSuccessResponse("AI activity retrieved successfully", activities).AsGinResponse())
}

// GetStats handles GET requests for brand-level CRM counts
func GetStats(c *gin.Context) {
	stats, err := GetService().store.Stats(c.Query("brand"))
	if err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to load stats", err).AsGinResponse())
		return
	}
	c.JSON(sdk.NewSuccessResponse("Stats retrieved successfully", stats).AsGinResponse())
}

/* ---- HELPERS ---- */

// pathID parses the :id path parameter, writing the error response itself
func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusBadRequest, "Invalid ID", err).AsGinResponse())
		return 0, false
	}
	return uint(id), true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	value := c.Query(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// respondLookupError distinguishes missing records from real failures
func respondLookupError(c *gin.Context, entity string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(sdk.NewErrorResponse(http.StatusNotFound, entity+" not found", err).AsGinResponse())
		return
	}
	c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to process "+entity, err).AsGinResponse())
}
