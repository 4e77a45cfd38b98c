package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v5"

	"raffle-system/config"
	"raffle-system/internal/store"
	"raffle-system/security"
)

type AdminHandler struct {
	tickets *store.TicketStore
	cfg     *config.Config
}

func NewAdminHandler(tickets *store.TicketStore, cfg *config.Config) *AdminHandler {
	return &AdminHandler{tickets: tickets, cfg: cfg}
}

func (h *AdminHandler) authorized(c echo.Context) bool {
	if h.cfg.AdminTokenHash == "" {
		// No token configured: admin operations are open in development only.
		return h.cfg.Environment == "development"
	}
	token := c.Request().Header.Get("X-Admin-Token")
	return token != "" && security.VerifySecret(h.cfg.AdminTokenHash, token)
}

// InitializePool - Create the N-ticket pool. Safe to call repeatedly: a
// non-empty pool makes it a no-op.
func (h *AdminHandler) InitializePool(c echo.Context) error {
	if !h.authorized(c) {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	var req struct {
		Size int `json:"size"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Size == 0 {
		req.Size = h.cfg.PoolSize
	}

	result, err := h.tickets.InitializePool(c.Request().Context(), req.Size)
	if err != nil {
		slog.Error("initialize pool", "size", req.Size, "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, result)
}

// GetPoolSummary - Aggregate pool counts for the admin dashboard
func (h *AdminHandler) GetPoolSummary(c echo.Context) error {
	if !h.authorized(c) {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	summary, err := h.tickets.Summary(c.Request().Context())
	if err != nil {
		slog.Error("pool summary", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to read pool"})
	}

	return c.JSON(http.StatusOK, summary)
}
