package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v5"

	"raffle-system/internal/services"
	"raffle-system/internal/status"
	"raffle-system/internal/store"
	"raffle-system/models"
)

// RaffleEntrant is the raffle core as the HTTP layer sees it.
type RaffleEntrant interface {
	Enter(ctx context.Context, buyer models.Buyer, credential string) (*models.Entry, error)
}

type RaffleHandler struct {
	raffle   RaffleEntrant
	tickets  *store.TicketStore
	throttle *services.ThrottleService
}

func NewRaffleHandler(raffle RaffleEntrant, tickets *store.TicketStore, throttle *services.ThrottleService) *RaffleHandler {
	return &RaffleHandler{
		raffle:   raffle,
		tickets:  tickets,
		throttle: throttle,
	}
}

// EnterRaffle - Enter the raffle: allocate a random ticket and charge its number
func (h *RaffleHandler) EnterRaffle(c echo.Context) error {
	var req struct {
		Name         string `json:"name"`
		Email        string `json:"email"`
		Phone        string `json:"phone"`
		PaymentToken string `json:"payment_token"`
	}

	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"error_kind": status.KindValidationError,
			"message":    "invalid request body",
		})
	}

	ctx := c.Request().Context()
	clientID := c.RealIP()

	// Advisory gate: a blocked identity is rejected before any ticket work.
	blocked, err := h.throttle.IsBlocked(ctx, clientID)
	if err != nil {
		slog.Warn("throttle check failed", "client", clientID, "error", err)
	}
	if blocked {
		return c.JSON(http.StatusTooManyRequests, map[string]any{
			"error_kind": status.KindBlocked,
			"message":    "too many failed attempts, try again later",
		})
	}

	buyer := models.Buyer{Name: req.Name, Email: req.Email, Phone: req.Phone}
	if err := buyer.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"error_kind": status.KindValidationError,
			"message":    err.Error(),
		})
	}
	if req.PaymentToken == "" {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"error_kind": status.KindValidationError,
			"message":    "payment_token is required",
		})
	}

	entry, err := h.raffle.Enter(ctx, buyer, req.PaymentToken)
	if err != nil {
		var entryErr *status.EntryError
		if !errors.As(err, &entryErr) {
			slog.Error("raffle entry failed", "error", err)
			return c.JSON(http.StatusInternalServerError, map[string]any{
				"error_kind": "internal",
				"message":    "internal error",
			})
		}

		if entryErr.Kind == status.KindPaymentFailed {
			if _, terr := h.throttle.RecordFailure(ctx, clientID, "payment_failed"); terr != nil {
				slog.Warn("throttle record failed", "client", clientID, "error", terr)
			}
		}

		return c.JSON(httpStatusFor(entryErr.Kind), map[string]any{
			"error_kind": entryErr.Kind,
			"message":    entryErr.Message,
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"ticket_number":     entry.TicketNumber,
		"amount_charged":    entry.AmountCharged,
		"payment_reference": entry.PaymentReference,
	})
}

// ListTickets - Public ticket board with per-state aggregates
func (h *RaffleHandler) ListTickets(c echo.Context) error {
	ctx := c.Request().Context()

	board, err := h.tickets.ListBoard(ctx)
	if err != nil {
		slog.Error("list tickets", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list tickets"})
	}

	summary, err := h.tickets.Summary(ctx)
	if err != nil {
		slog.Error("ticket summary", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list tickets"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"tickets":   board,
		"total":     summary.Total,
		"sold":      summary.Sold,
		"reserved":  summary.Reserved,
		"available": summary.Available,
	})
}

func httpStatusFor(kind status.Kind) int {
	switch kind {
	case status.KindValidationError:
		return http.StatusBadRequest
	case status.KindBlocked:
		return http.StatusTooManyRequests
	case status.KindPaymentFailed:
		return http.StatusPaymentRequired
	case status.KindSoldOut, status.KindAllocationFailed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
