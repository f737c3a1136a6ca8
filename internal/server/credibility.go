package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/credence/internal/credibility"
	"github.com/mohammad-safakhou/credence/internal/helpers"
)

// CredibilityHandler answers one-off source credibility lookups.
type CredibilityHandler struct {
	lookup credibility.Lookup
}

type credibilityRequest struct {
	URL  string `json:"url"`
	Deep bool   `json:"deep"`
}

type credibilityResponse struct {
	URL         string              `json:"url"`
	Domain      string              `json:"domain"`
	Credibility credibility.Profile `json:"credibility"`
}

func (h *CredibilityHandler) Register(g *echo.Group) {
	g.POST("/credibility", h.check)
}

func (h *CredibilityHandler) check(c echo.Context) error {
	var req credibilityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url is required")
	}
	domain := helpers.Domain(req.URL)
	if domain == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "could not extract a domain from url")
	}
	profile := h.lookup.Lookup(c.Request().Context(), domain, req.Deep)
	if profile.TierDescription == "" {
		profile.TierDescription = credibility.TierDescription(profile.Tier)
	}
	return c.JSON(http.StatusOK, credibilityResponse{URL: req.URL, Domain: domain, Credibility: profile})
}
