// Package store implements the durable ticket pool on MySQL. Row-level mutual
// exclusion is delegated entirely to the database: allocation picks a random
// candidate without locking, then takes an exclusive lock on that single row,
// skipping it when a concurrent transaction already holds it.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"

	"raffle-system/models"
	"raffle-system/utils"
)

var (
	// ErrNoneAvailable is returned when no available row could be locked:
	// either true sellout or every remaining row is held by a competitor.
	ErrNoneAvailable = errors.New("no available ticket could be locked")

	// ErrReservationLost is returned when a finalize or reserve update matched
	// no row, meaning the reservation was reclaimed underneath us.
	ErrReservationLost = errors.New("ticket is no longer reserved")
)

const schema = `
CREATE TABLE IF NOT EXISTS tickets (
	id             CHAR(32)     NOT NULL,
	number         INT          NOT NULL,
	state          VARCHAR(16)  NOT NULL DEFAULT 'available',
	buyer_name     VARCHAR(120) NOT NULL DEFAULT '',
	buyer_email    VARCHAR(255) NOT NULL DEFAULT '',
	buyer_phone    VARCHAR(32)  NOT NULL DEFAULT '',
	payment_ref    VARCHAR(64)  NOT NULL DEFAULT '',
	amount_charged BIGINT       NULL,
	reserved_at    DATETIME     NULL,
	sold_at        DATETIME     NULL,
	PRIMARY KEY (id),
	UNIQUE KEY uniq_tickets_number (number),
	KEY idx_tickets_state (state)
) ENGINE=InnoDB`

type TicketStore struct {
	db *dbx.DB
}

func NewTicketStore(db *dbx.DB) *TicketStore {
	return &TicketStore{db: db}
}

// EnsureSchema creates the tickets table if it does not exist yet.
func (s *TicketStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.NewQuery(schema).WithContext(ctx).Execute()
	return err
}

// Transactional runs fn inside one READ COMMITTED transaction. The row lock
// taken by LockRandomAvailable is held until fn returns and the transaction
// commits or rolls back.
func (s *TicketStore) Transactional(ctx context.Context, fn func(tx *dbx.Tx) error) error {
	return s.db.TransactionalContext(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, fn)
}

// InitializePool inserts n tickets numbered 1..n in available state. A second
// call is a no-op: any existing row means the pool is already initialized.
func (s *TicketStore) InitializePool(ctx context.Context, n int) (*models.InitResult, error) {
	if n <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", n)
	}

	result := &models.InitResult{}
	err := s.Transactional(ctx, func(tx *dbx.Tx) error {
		var existing int
		if err := tx.NewQuery("SELECT COUNT(*) FROM tickets").WithContext(ctx).Row(&existing); err != nil {
			return err
		}
		if existing > 0 {
			result.AlreadyInitialized = true
			result.Count = existing
			return nil
		}

		for number := 1; number <= n; number++ {
			id, err := utils.GenerateCode(16)
			if err != nil {
				return err
			}
			_, err = tx.NewQuery(
				"INSERT INTO tickets (id, number, state) VALUES ({:id}, {:number}, {:state})",
			).Bind(dbx.Params{
				"id":     id,
				"number": number,
				"state":  models.StateAvailable,
			}).WithContext(ctx).Execute()
			if err != nil {
				return err
			}
		}
		result.Count = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CountByState is a non-locking aggregate read. It is advisory only: the count
// can change before the caller acts on it.
func (s *TicketStore) CountByState(ctx context.Context, state models.TicketState) (int, error) {
	var count int
	err := s.db.NewQuery("SELECT COUNT(*) FROM tickets WHERE state={:state}").
		Bind(dbx.Params{"state": state}).
		WithContext(ctx).
		Row(&count)
	return count, err
}

// ListBoard returns (number, state) for every ticket, ordered by number.
func (s *TicketStore) ListBoard(ctx context.Context) ([]models.BoardEntry, error) {
	entries := []models.BoardEntry{}
	err := s.db.NewQuery("SELECT number, state FROM tickets ORDER BY number ASC").
		WithContext(ctx).
		All(&entries)
	return entries, err
}

// Summary aggregates the board counts per state.
func (s *TicketStore) Summary(ctx context.Context) (*models.BoardSummary, error) {
	rows := []struct {
		State models.TicketState `db:"state"`
		Count int                `db:"cnt"`
	}{}
	err := s.db.NewQuery("SELECT state, COUNT(*) AS cnt FROM tickets GROUP BY state").
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, err
	}

	summary := &models.BoardSummary{}
	for _, row := range rows {
		summary.Total += row.Count
		switch row.State {
		case models.StateSold:
			summary.Sold = row.Count
		case models.StateReserved:
			summary.Reserved = row.Count
		case models.StateAvailable:
			summary.Available = row.Count
		}
	}
	return summary, nil
}

// lockAttempts bounds how often an allocation re-picks after losing a
// candidate to a concurrent transaction.
const lockAttempts = 10

// LockRandomAvailable selects one uniformly random available ticket and takes
// an exclusive row lock on it. The random pick runs without any lock; only the
// chosen candidate is then locked by primary key, skipped rather than waited
// on when a competitor holds it. A locking read locks every row it scans, so
// combining ORDER BY RAND() with FOR UPDATE in one statement would transiently
// lock the whole available set per allocation; splitting pick from lock keeps
// the held lock to exactly one row. A lost candidate is re-picked a bounded
// number of times; under READ COMMITTED each re-pick sees the latest committed
// state. Must run inside a transaction.
func (s *TicketStore) LockRandomAvailable(ctx context.Context, tx *dbx.Tx) (*models.Ticket, error) {
	for attempt := 0; attempt < lockAttempts; attempt++ {
		candidate := &models.Ticket{}
		err := tx.NewQuery(
			"SELECT id, number FROM tickets WHERE state={:state} ORDER BY RAND() LIMIT 1",
		).Bind(dbx.Params{"state": models.StateAvailable}).
			WithContext(ctx).
			One(candidate)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoneAvailable
		}
		if err != nil {
			return nil, err
		}

		ticket := &models.Ticket{}
		err = tx.NewQuery(
			"SELECT id, number FROM tickets WHERE id={:id} AND state={:state} FOR UPDATE SKIP LOCKED",
		).Bind(dbx.Params{"id": candidate.ID, "state": models.StateAvailable}).
			WithContext(ctx).
			One(ticket)
		if errors.Is(err, sql.ErrNoRows) {
			// Candidate is locked by a competitor or no longer available.
			continue
		}
		if err != nil {
			return nil, err
		}
		return ticket, nil
	}
	return nil, ErrNoneAvailable
}

// Reserve transitions a locked ticket to reserved with the buyer identity.
// Must run in the same transaction that locked the row.
func (s *TicketStore) Reserve(ctx context.Context, tx *dbx.Tx, id string, buyer models.Buyer) error {
	res, err := tx.NewQuery(
		`UPDATE tickets
		 SET state={:reserved}, buyer_name={:name}, buyer_email={:email}, buyer_phone={:phone}, reserved_at={:now}
		 WHERE id={:id} AND state={:available}`,
	).Bind(dbx.Params{
		"reserved":  models.StateReserved,
		"name":      buyer.Name,
		"email":     buyer.Email,
		"phone":     buyer.Phone,
		"now":       time.Now().UTC(),
		"id":        id,
		"available": models.StateAvailable,
	}).WithContext(ctx).Execute()
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return ErrReservationLost
	}
	return nil
}

// Finalize transitions a reserved ticket to sold, recording the charge and the
// external payment reference. Matching no row means the reservation was
// reclaimed (for example by the expiry sweeper) after the payment succeeded.
func (s *TicketStore) Finalize(ctx context.Context, id, paymentRef string, amount int64) error {
	res, err := s.db.NewQuery(
		`UPDATE tickets
		 SET state={:sold}, payment_ref={:ref}, amount_charged={:amount}, sold_at={:now}
		 WHERE id={:id} AND state={:reserved}`,
	).Bind(dbx.Params{
		"sold":     models.StateSold,
		"ref":      paymentRef,
		"amount":   amount,
		"now":      time.Now().UTC(),
		"id":       id,
		"reserved": models.StateReserved,
	}).WithContext(ctx).Execute()
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return ErrReservationLost
	}
	return nil
}

// Release rolls a reserved ticket back to available, clearing the buyer
// identity and timestamps entirely. Releasing a ticket that is no longer
// reserved is a no-op, so the compensation path is idempotent.
func (s *TicketStore) Release(ctx context.Context, id string) error {
	_, err := s.db.NewQuery(
		`UPDATE tickets
		 SET state={:available}, buyer_name='', buyer_email='', buyer_phone='',
		     payment_ref='', amount_charged=NULL, reserved_at=NULL, sold_at=NULL
		 WHERE id={:id} AND state={:reserved}`,
	).Bind(dbx.Params{
		"available": models.StateAvailable,
		"id":        id,
		"reserved":  models.StateReserved,
	}).WithContext(ctx).Execute()
	return err
}

// ReleaseExpired releases every reservation older than olderThan and returns
// how many rows were freed.
func (s *TicketStore) ReleaseExpired(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.NewQuery(
		`UPDATE tickets
		 SET state={:available}, buyer_name='', buyer_email='', buyer_phone='',
		     payment_ref='', amount_charged=NULL, reserved_at=NULL, sold_at=NULL
		 WHERE state={:reserved} AND reserved_at < {:cutoff}`,
	).Bind(dbx.Params{
		"available": models.StateAvailable,
		"reserved":  models.StateReserved,
		"cutoff":    cutoff,
	}).WithContext(ctx).Execute()
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
