package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/riskgate/internal/database"
	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/jackc/pgx/v5"
)

// AccountTx is the view of one locked account handed to a state transition
type AccountTx interface {
	// Account is the account as read under the lock
	Account() *models.Account
	FetchHistory(ctx context.Context) (models.LoginHistory, error)
	AppendObservation(ctx context.Context, obs models.Observation) error
	ReadCounters(ctx context.Context) (models.AttemptCounters, error)
	WriteCounters(ctx context.Context, counters models.AttemptCounters) error
}

type accountTx struct {
	tx      pgx.Tx
	account *models.Account
}

func (a *accountTx) Account() *models.Account {
	return a.account
}

func (a *accountTx) FetchHistory(ctx context.Context) (models.LoginHistory, error) {
	rows, err := a.tx.Query(ctx,
		`SELECT latitude, longitude, device, observed_at FROM login_observations WHERE account_id = $1 ORDER BY id`,
		a.account.ID,
	)
	if err != nil {
		return models.LoginHistory{}, database.MapPostgresError(err)
	}
	defer rows.Close()

	h := models.LoginHistory{AttemptCounts: append([]int(nil), a.account.Counters.AllAttempts...)}
	for rows.Next() {
		var obs models.Observation
		if err := rows.Scan(&obs.Location.Latitude, &obs.Location.Longitude, &obs.Device, &obs.ObservedAt); err != nil {
			return models.LoginHistory{}, fmt.Errorf("failed to scan observation: %w", err)
		}
		h.Locations = append(h.Locations, obs.Location)
		h.Devices = append(h.Devices, obs.Device)
		h.LoginTimes = append(h.LoginTimes, obs.ObservedAt)
	}
	if err := rows.Err(); err != nil {
		return models.LoginHistory{}, database.MapPostgresError(err)
	}
	return h, nil
}

func (a *accountTx) AppendObservation(ctx context.Context, obs models.Observation) error {
	return appendObservation(ctx, a.tx, a.account.ID, obs)
}

func (a *accountTx) ReadCounters(context.Context) (models.AttemptCounters, error) {
	return a.account.Counters.Clone(), nil
}

func (a *accountTx) WriteCounters(ctx context.Context, c models.AttemptCounters) error {
	if c.AllAttempts == nil {
		c.AllAttempts = []int{}
	}

	_, err := a.tx.Exec(ctx, `
		UPDATE accounts SET attempts = $2, total_logins = $3, all_attempts = $4, mfa_key = $5, updated_at = NOW()
		WHERE id = $1`,
		a.account.ID, c.Attempts, c.TotalLogins, c.AllAttempts, c.MFAKey,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}

	a.account.Counters = c.Clone()
	return nil
}
