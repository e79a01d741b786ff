package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/SergeiKhy/batch-shortener/internal/models"
	"github.com/SergeiKhy/batch-shortener/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type LinkHandler struct {
	service service.LinkService
	baseURL string
	logger  *zap.Logger
}

func NewLinkHandler(service service.LinkService, baseURL string, logger *zap.Logger) *LinkHandler {
	return &LinkHandler{
		service: service,
		baseURL: baseURL,
		logger:  logger,
	}
}

// ShortenEntryRequest одна строка формы. validity принимается и числом,
// и строкой.
type ShortenEntryRequest struct {
	URL      string          `json:"url"`
	Validity json.RawMessage `json:"validity,omitempty"`
	Code     string          `json:"code,omitempty"`
}

type ShortenRequest struct {
	Entries []ShortenEntryRequest `json:"entries"`
}

type ShortenResult struct {
	Code     string     `json:"code,omitempty"`
	ShortURL string     `json:"shortUrl,omitempty"`
	LongURL  string     `json:"longUrl,omitempty"`
	Expires  *time.Time `json:"expires,omitempty"`
	Error    string     `json:"error,omitempty"`
}

type ShortenResponse struct {
	Results []ShortenResult `json:"results"`
}

type LinkResponse struct {
	Code     string         `json:"code"`
	ShortURL string         `json:"shortUrl"`
	LongURL  string         `json:"longUrl"`
	Created  time.Time      `json:"created"`
	Expires  time.Time      `json:"expires"`
	Expired  bool           `json:"expired"`
	Clicks   []models.Click `json:"clicks"`
}

type IndexResponse struct {
	Service                string `json:"service"`
	ShortenEndpoint        string `json:"shorten_endpoint"`
	MaxEntries             int    `json:"max_entries"`
	DefaultValidityMinutes int    `json:"default_validity_minutes"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Index godoc
// @Summary Creation view
// @Description Describes how to submit a batch of URLs
// @Tags links
// @Produce json
// @Success 200 {object} IndexResponse
// @Router / [get]
func (h *LinkHandler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, IndexResponse{
		Service:                "url-shortener",
		ShortenEndpoint:        h.baseURL + "/api/v1/links",
		MaxEntries:             h.service.MaxBatchSize(),
		DefaultValidityMinutes: int(h.service.DefaultValidity() / time.Minute),
	})
}

// Shorten godoc
// @Summary Shorten a batch of URLs
// @Description Each entry is processed independently; results keep the submission order
// @Tags links
// @Accept json
// @Produce json
// @Param request body ShortenRequest true "Batch of entries"
// @Success 200 {object} ShortenResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/links [post]
func (h *LinkHandler) Shorten(c *gin.Context) {
	var req ShortenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	entries := make([]models.ShortenEntry, len(req.Entries))
	for i, e := range req.Entries {
		entries[i] = models.ShortenEntry{
			URL:      e.URL,
			Validity: validityText(e.Validity),
			Code:     e.Code,
		}
	}

	results, err := h.service.Shorten(c.Request.Context(), entries)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoEntries):
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "no_entries",
				Message: "At least one entry is required",
			})
		case errors.Is(err, service.ErrTooManyEntries):
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "too_many_entries",
				Message: "Too many entries in one request",
			})
		default:
			h.logger.Error("Failed to shorten batch", zap.Error(err))
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "internal_error",
				Message: "Failed to shorten URLs",
			})
		}
		return
	}

	resp := ShortenResponse{Results: make([]ShortenResult, len(results))}
	for i, r := range results {
		if !r.OK() {
			resp.Results[i] = ShortenResult{Error: r.Error}
			continue
		}
		resp.Results[i] = ShortenResult{
			Code:     r.Code,
			ShortURL: h.shortURL(r.Code),
			LongURL:  r.LongURL,
			Expires:  r.Expires,
		}
	}

	c.JSON(http.StatusOK, resp)
}

// Redirect godoc
// @Summary Redirect to original URL
// @Description Records a click and redirects to the original URL by short code
// @Tags links
// @Produce json
// @Param code path string true "Short code"
// @Success 307 {object} nil
// @Failure 404 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Router /{code} [get]
func (h *LinkHandler) Redirect(c *gin.Context) {
	code := c.Param("code")

	link, err := h.service.Resolve(c.Request.Context(), code, models.Visit{
		Referrer: c.Request.Referer(),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Shortcode not found.",
			})
		case errors.Is(err, service.ErrExpired):
			c.JSON(http.StatusGone, ErrorResponse{
				Error:   "expired",
				Message: "This link has expired.",
			})
		default:
			h.logger.Error("Failed to resolve link", zap.String("code", code), zap.Error(err))
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "internal_error",
				Message: "Failed to resolve link",
			})
		}
		return
	}

	c.Redirect(http.StatusTemporaryRedirect, link.LongURL)
}

// GetLink godoc
// @Summary Get a short link
// @Description Returns the stored record with its click history, expired links included
// @Tags links
// @Produce json
// @Param code path string true "Short code"
// @Success 200 {object} LinkResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/links/{code} [get]
func (h *LinkHandler) GetLink(c *gin.Context) {
	code := c.Param("code")

	info, err := h.service.GetLink(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Shortcode not found.",
			})
			return
		}
		h.logger.Error("Failed to get link", zap.String("code", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to get link",
		})
		return
	}

	clicks := info.Link.Clicks
	if clicks == nil {
		clicks = []models.Click{}
	}

	c.JSON(http.StatusOK, LinkResponse{
		Code:     info.Code,
		ShortURL: h.shortURL(info.Code),
		LongURL:  info.Link.LongURL,
		Created:  info.Link.Created,
		Expires:  info.Link.Expires,
		Expired:  info.Expired,
		Clicks:   clicks,
	})
}

// HealthCheck godoc
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/health [get]
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "url-shortener",
	})
}

// shortURL экранирует код, чтобы "/", "?" и "#" остались частью сегмента
func (h *LinkHandler) shortURL(code string) string {
	return h.baseURL + "/" + url.PathEscape(code)
}

// validityText приводит JSON-значение validity к строке: "15" и 15 дают
// одно и то же, всё остальное разбирается сервисом как нечисловое.
func validityText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
