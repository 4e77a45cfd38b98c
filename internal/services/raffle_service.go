package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/shopspring/decimal"

	"raffle-system/config"
	"raffle-system/internal/services/gateway"
	"raffle-system/internal/status"
	"raffle-system/internal/store"
	"raffle-system/models"
	"raffle-system/monitoring"
	"raffle-system/utils"
)

// RaffleService coordinates the ticket assignment protocol: lock one available
// ticket, reserve it, charge an amount equal to its number, then finalize the
// sale or roll the reservation back. It keeps no ticket state in memory; every
// instance coordinates purely through the database's row locks, so the service
// can be replicated freely.
type RaffleService struct {
	store   *store.TicketStore
	gateway gateway.Gateway
	breaker *utils.CircuitBreaker
	cfg     *config.Config
}

func NewRaffleService(ticketStore *store.TicketStore, gw gateway.Gateway, cfg *config.Config) *RaffleService {
	return &RaffleService{
		store:   ticketStore,
		gateway: gw,
		breaker: utils.NewCircuitBreaker(string(gw.GetProvider())),
		cfg:     cfg,
	}
}

// Enter runs one raffle entry end to end.
//
// The payment call happens strictly after the allocation transaction commits:
// no row lock is ever held across the gateway round-trip, so one entrant's
// slow payment cannot stall anyone else's allocation. The charge amount is
// determined only by the allocation outcome — it is always the ticket number.
func (s *RaffleService) Enter(ctx context.Context, buyer models.Buyer, credential string) (*models.Entry, error) {
	// Advisory precheck. This is a snapshot read with no lock: it exists to
	// fail fast on obvious sellout, never to prevent double allocation.
	available, err := s.store.CountByState(ctx, models.StateAvailable)
	if err != nil {
		return nil, fmt.Errorf("availability precheck: %w", err)
	}
	if available == 0 {
		monitoring.TrackEntry("sold_out")
		return nil, status.NewEntryError(status.KindSoldOut, "all tickets have been sold")
	}

	// Atomic allocation: lock one available row (skipping rows locked by
	// concurrent entrants) and mark it reserved. The lock is released on
	// commit; from then on the row no longer matches the available predicate.
	var ticket *models.Ticket
	err = s.store.Transactional(ctx, func(tx *dbx.Tx) error {
		t, err := s.store.LockRandomAvailable(ctx, tx)
		if err != nil {
			return err
		}
		if err := s.store.Reserve(ctx, tx, t.ID, buyer); err != nil {
			return err
		}
		ticket = t
		return nil
	})
	if errors.Is(err, store.ErrNoneAvailable) {
		monitoring.TrackEntry("allocation_failed")
		return nil, status.NewEntryError(status.KindAllocationFailed, "no ticket could be allocated, please try again")
	}
	if err != nil {
		return nil, fmt.Errorf("allocate ticket: %w", err)
	}

	slog.Info("ticket reserved", "number", ticket.Number, "buyer", buyer.Email)

	// Payment, outside any transaction. Amount equals the assigned number.
	auth, err := s.authorize(ctx, ticket, credential)

	// Resolve. Every path that is not a confirmed approval must reach the
	// rollback, including ambiguous gateway errors and timeouts: a reserved
	// ticket that is never released is lost to the pool entirely.
	if err != nil {
		s.release(ctx, ticket, "gateway error", err)
		monitoring.TrackEntry("payment_failed")
		return nil, status.NewEntryError(status.KindPaymentFailed, err.Error())
	}
	if !auth.Approved {
		s.release(ctx, ticket, "declined", nil)
		monitoring.TrackEntry("payment_failed")
		return nil, status.NewEntryError(status.KindPaymentFailed, auth.Message)
	}

	amount := int64(ticket.Number)
	if err := s.store.Finalize(ctx, ticket.ID, auth.RefID, amount); err != nil {
		if errors.Is(err, store.ErrReservationLost) {
			// The buyer was charged but the reservation was reclaimed (for
			// example by the expiry sweeper). This must never happen with a
			// sanely configured TTL; surface it loudly for manual follow-up.
			slog.Error("charged but reservation lost",
				"number", ticket.Number, "payment_ref", auth.RefID, "buyer", buyer.Email)
		}
		monitoring.TrackEntry("error")
		return nil, fmt.Errorf("finalize ticket %d: %w", ticket.Number, err)
	}

	slog.Info("ticket sold", "number", ticket.Number, "amount", amount, "payment_ref", auth.RefID)
	monitoring.TrackEntry("sold")

	return &models.Entry{
		TicketNumber:     ticket.Number,
		AmountCharged:    amount,
		PaymentReference: auth.RefID,
	}, nil
}

func (s *RaffleService) authorize(ctx context.Context, ticket *models.Ticket, credential string) (*status.Authorization, error) {
	authCtx, cancel := context.WithTimeout(ctx, s.cfg.PaymentTimeout)
	defer cancel()

	form := &status.AuthorizationForm{
		UUID:        ticket.ID,
		Credential:  credential,
		Amount:      decimal.NewFromInt(int64(ticket.Number)),
		Currency:    s.cfg.Currency,
		Description: fmt.Sprintf("raffle ticket #%d", ticket.Number),
	}

	started := time.Now()
	result, err := s.breaker.Execute(authCtx, func() (interface{}, error) {
		return s.gateway.Authorize(authCtx, form)
	})
	monitoring.ObserveAuthorizeDuration(time.Since(started))

	if err != nil {
		return nil, err
	}
	return result.(*status.Authorization), nil
}

// release is the single compensation routine reachable from every non-approval
// outcome. It runs on a non-cancelable context: a dropped client connection
// must not leave the ticket stuck in reserved.
func (s *RaffleService) release(ctx context.Context, ticket *models.Ticket, reason string, cause error) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := s.store.Release(releaseCtx, ticket.ID); err != nil {
		// The reservation is now stranded until the sweeper (if enabled)
		// reclaims it.
		slog.Error("release reserved ticket", "number", ticket.Number, "error", err)
		return
	}
	slog.Info("ticket released", "number", ticket.Number, "reason", reason, "cause", cause)
}

// SweepExpiredReservations periodically releases reservations older than the
// configured TTL. Disabled when the TTL is zero, which preserves the base
// behavior: a reservation stranded by a crash stays reserved. When enabled the
// TTL must comfortably exceed the payment timeout, otherwise an in-flight
// payment can race the sweeper.
func (s *RaffleService) SweepExpiredReservations(ctx context.Context) {
	if s.cfg.ReservationTTL <= 0 {
		slog.Info("reservation sweeper disabled")
		return
	}

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			released, err := s.store.ReleaseExpired(ctx, s.cfg.ReservationTTL)
			if err != nil {
				slog.Error("sweep expired reservations", "error", err)
				continue
			}
			if released > 0 {
				slog.Warn("released stale reservations", "count", released, "ttl", s.cfg.ReservationTTL)
			}
		}
	}
}
