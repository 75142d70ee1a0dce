package delivery

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"attributiongo/internal/domain"
	"attributiongo/internal/usecase"
	"attributiongo/pkg/logger"

	"github.com/gin-gonic/gin"
)

// default page size of the raw spend table
const defaultRecordsLimit = 25

// handles HTTP requests
type HTTPHandlers struct {
	attributionService *usecase.AttributionService
	ingestService      *usecase.IngestService
	logger             *logger.Logger
	appLevelCostView   bool
}

// creates new HTTP handlers; appLevelCostView is the default when a request omits the flag
func NewHTTPHandlers(
	attributionService *usecase.AttributionService,
	ingestService *usecase.IngestService,
	logger *logger.Logger,
	appLevelCostView bool,
) *HTTPHandlers {
	return &HTTPHandlers{
		attributionService: attributionService,
		ingestService:      ingestService,
		logger:             logger,
		appLevelCostView:   appLevelCostView,
	}
}

// GetAttribution computes the attribution table from query string parameters
func (h *HTTPHandlers) GetAttribution(c *gin.Context) {
	params, err := h.queryParamsFromURL(c)
	if err != nil {
		h.badRequest(c, "Invalid parameters", err)
		return
	}
	h.runQuery(c, params)
}

// PostAttributionQuery computes the attribution table from a JSON body
func (h *HTTPHandlers) PostAttributionQuery(c *gin.Context) {
	var params domain.QueryParams
	if err := c.ShouldBindJSON(&params); err != nil {
		h.badRequest(c, "Invalid request body", err)
		return
	}
	h.runQuery(c, params)
}

func (h *HTTPHandlers) runQuery(c *gin.Context, params domain.QueryParams) {
	ctx := c.Request.Context()
	requestID := c.GetString("request_id")

	q, err := params.Query(h.appLevelCostView)
	if err != nil {
		h.badRequest(c, "Invalid parameters", err)
		return
	}

	result, err := h.attributionService.Query(ctx, q)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Attribution query failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "Failed to compute attribution",
			"message":    err.Error(),
			"request_id": requestID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"query":      q,
		"data":       result,
		"request_id": requestID,
	})
}

// GetRecords lists raw spend records with optional sorting
func (h *HTTPHandlers) GetRecords(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := c.GetString("request_id")

	q := domain.RecordsQuery{
		SortField: domain.RecordSortField(strings.ToLower(c.Query("sort"))),
		Limit:     defaultRecordsLimit,
	}

	switch order := strings.ToLower(c.DefaultQuery("order", "asc")); order {
	case "asc":
	case "desc":
		q.SortDesc = true
	default:
		h.badRequest(c, "Invalid parameters", errors.New("order must be asc or desc"))
		return
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			h.badRequest(c, "Invalid parameters", errors.New("limit must be a non-negative integer"))
			return
		}
		q.Limit = limit
	}

	if !q.SortField.IsValid() {
		h.badRequest(c, "Invalid parameters", errors.New("unknown sort field "+string(q.SortField)))
		return
	}

	page, err := h.attributionService.ListRecords(ctx, q)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to list spend records")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "Failed to retrieve records",
			"message":    err.Error(),
			"request_id": requestID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       page.Records,
		"totals":     page.Totals,
		"total":      page.Total,
		"limit":      q.Limit,
		"has_more":   page.HasMore,
		"request_id": requestID,
	})
}

// GetApps returns the app universe
func (h *HTTPHandlers) GetApps(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := c.GetString("request_id")

	apps, err := h.attributionService.Apps(ctx)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to list apps")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "Failed to retrieve apps",
			"message":    err.Error(),
			"request_id": requestID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       apps,
		"request_id": requestID,
	})
}

// IngestRun pulls spend records from the upstream API
func (h *HTTPHandlers) IngestRun(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := c.GetString("request_id")

	log := h.logger.WithContext(ctx)
	log.Info("Starting spend ingestion")

	var since *time.Time
	if sinceStr := c.Query("since"); sinceStr != "" {
		parsedSince, err := domain.ParseDay(sinceStr)
		if err != nil {
			h.badRequest(c, "Invalid date format", err)
			return
		}
		since = &parsedSince
	}

	count, err := h.ingestService.RunIngest(ctx, since)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrInvalidRecord) {
			status = http.StatusUnprocessableEntity
		}
		log.WithError(err).Error("Spend ingestion failed")
		c.JSON(status, gin.H{
			"error":      "Spend ingestion failed",
			"message":    err.Error(),
			"request_id": requestID,
		})
		return
	}

	response := gin.H{
		"message":    "Spend ingestion completed successfully",
		"records":    count,
		"request_id": requestID,
	}

	if since != nil {
		response["since"] = since.Format(domain.DateLayout)
	}

	c.JSON(http.StatusOK, response)
}

// ExportRun computes an attribution report and pushes it to the sink
func (h *HTTPHandlers) ExportRun(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := c.GetString("request_id")

	params, err := h.queryParamsFromURL(c)
	if err != nil {
		h.badRequest(c, "Invalid parameters", err)
		return
	}

	q, err := params.Query(h.appLevelCostView)
	if err != nil {
		h.badRequest(c, "Invalid parameters", err)
		return
	}

	if err := h.attributionService.ExportReport(ctx, q); err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to export attribution report")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "Export failed",
			"message":    err.Error(),
			"request_id": requestID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Export completed successfully",
		"query":      q,
		"request_id": requestID,
	})
}

// GetAPIInfo returns API v1 information and available endpoints
func (h *HTTPHandlers) GetAPIInfo(c *gin.Context) {
	queryParams := gin.H{
		"from":                "Required: first day (YYYY-MM-DD)",
		"to":                  "Optional: last day, inclusive (YYYY-MM-DD); omitted means the single day",
		"apps":                "Optional: comma-separated or repeated app names; omitted means no app selected",
		"group_by":            "Optional: app, media_source, campaign or date (default: campaign)",
		"then_by":             "Optional: secondary dimension for sub-rows",
		"app_level_cost_view": "Optional: true or false (default: true)",
	}

	c.JSON(http.StatusOK, gin.H{
		"api_version": "v1",
		"service":     "Attribution Service",
		"version":     "1.0.0",
		"description": "Campaign spend attribution by app, media source, campaign and date",
		"endpoints": gin.H{
			"apps": gin.H{
				"path":        "/api/v1/apps",
				"methods":     []string{"GET"},
				"description": "List the app universe",
			},
			"attribution": gin.H{
				"path":        "/api/v1/attribution",
				"methods":     []string{"GET"},
				"description": "Total cost and the grouped cost table",
				"parameters":  queryParams,
				"example":     "/api/v1/attribution?from=2025-06-01&to=2025-06-08&apps=Wolt%20iOS&group_by=app&then_by=campaign",
			},
			"attribution_query": gin.H{
				"path":        "/api/v1/attribution/query",
				"methods":     []string{"POST"},
				"description": "Same as /attribution with a JSON body",
			},
			"records": gin.H{
				"path":        "/api/v1/records",
				"methods":     []string{"GET"},
				"description": "Raw spend records with totals",
				"parameters": gin.H{
					"sort":  "Optional: date, media_source, campaign, apps, cost, impressions or clicks",
					"order": "Optional: asc or desc (default: asc)",
					"limit": "Optional: number of rows, 0 for all (default: 25)",
				},
			},
			"ingest": gin.H{
				"path":        "/api/v1/ingest/run",
				"methods":     []string{"POST"},
				"description": "Pull spend records from the upstream API",
				"parameters": gin.H{
					"since": "Optional: drop records before this day (YYYY-MM-DD)",
				},
				"example": "/api/v1/ingest/run?since=2025-06-01",
			},
			"export": gin.H{
				"path":        "/api/v1/export/run",
				"methods":     []string{"POST"},
				"description": "Push an attribution report to the export sink",
				"parameters":  queryParams,
			},
		},
		"request_id": c.GetString("request_id"),
	})
}

// HealthCheck returns the health status of the service
func (h *HTTPHandlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"service":    "attribution-go",
		"version":    "1.0.0",
		"request_id": c.GetString("request_id"),
	})
}

func (h *HTTPHandlers) queryParamsFromURL(c *gin.Context) (domain.QueryParams, error) {
	params := domain.QueryParams{
		From:    c.Query("from"),
		To:      c.Query("to"),
		Apps:    c.QueryArray("apps"),
		GroupBy: c.Query("group_by"),
		ThenBy:  c.Query("then_by"),
	}

	if flag := c.Query("app_level_cost_view"); flag != "" {
		value, err := strconv.ParseBool(flag)
		if err != nil {
			return params, errors.New("app_level_cost_view must be true or false")
		}
		params.AppLevelCostView = &value
	}

	return params, nil
}

func (h *HTTPHandlers) badRequest(c *gin.Context, reason string, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":      reason,
		"message":    err.Error(),
		"request_id": c.GetString("request_id"),
	})
}
