// Package quota answers the dispatcher's one question: may this owner start
// another video job right now.
package quota

import (
	"context"
	"fmt"
	"strings"

	"vidgen/internal/domain"
	"vidgen/internal/infra"
	"vidgen/internal/sqlinline"
)

// SQLGate derives remaining quota from owner_quotas and today's jobs in the
// ledger. Owners without a row get defaultDaily jobs per day.
type SQLGate struct {
	sql          infra.SQLExecutor
	defaultDaily int
}

func NewSQLGate(sql infra.SQLExecutor, defaultDaily int) *SQLGate {
	return &SQLGate{sql: sql, defaultDaily: defaultDaily}
}

func (g *SQLGate) CanDispatch(ctx context.Context, ownerID string, estimatedCost int) (bool, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return false, domain.ErrUnauthorized
	}
	var remaining int
	if err := g.sql.QueryRow(ctx, sqlinline.QSelectRemainingQuota, ownerID, g.defaultDaily).Scan(&remaining); err != nil {
		return false, fmt.Errorf("quota: remaining for %s: %w", ownerID, err)
	}
	return remaining >= estimatedCost, nil
}

// Unlimited admits everything. Used with the in-memory ledger.
type Unlimited struct{}

func (Unlimited) CanDispatch(context.Context, string, int) (bool, error) {
	return true, nil
}

var (
	_ domain.QuotaGate = (*SQLGate)(nil)
	_ domain.QuotaGate = Unlimited{}
)
