// Package invoice aggregates unbilled ledger time into invoices. Preview and
// Finalize share one pure aggregation function; only Finalize commits.
package invoice

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JollyGreenFrogs/clockit-sub000/internal/db"
	"github.com/JollyGreenFrogs/clockit-sub000/internal/errors"
	"github.com/JollyGreenFrogs/clockit-sub000/internal/model"
)

// finalizeAttempts bounds the internal retry on transient storage contention
// before CONCURRENT_MODIFICATION is surfaced to the caller.
const finalizeAttempts = 3

type Generator struct {
	store *db.Store
	now   func() time.Time
	newID func() string
}

func New(store *db.Store) *Generator {
	return &Generator{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// WithClock replaces the generator's clock, for tests.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Preview computes the invoice the user would get right now. It is pure and
// repeatable: billed state is never touched, so calling it any number of
// times returns identical results for an unchanged ledger.
func (g *Generator) Preview(ctx context.Context, userID string) (model.Invoice, error) {
	lines, err := g.store.ListUnbilled(ctx, userID)
	if err != nil {
		return model.Invoice{}, err
	}
	rates, err := g.store.ListRates(ctx, userID)
	if err != nil {
		return model.Invoice{}, err
	}

	items, grandTotal, err := aggregate(lines, rates)
	if err != nil {
		return model.Invoice{}, err
	}

	currency, err := g.store.GetCurrency(ctx, userID)
	if err != nil {
		return model.Invoice{}, err
	}

	return model.Invoice{
		UserID:      userID,
		GeneratedAt: g.now().UTC(),
		Currency:    currency,
		Lines:       items,
		GrandTotal:  grandTotal,
	}, nil
}

// Finalize aggregates the current unbilled snapshot and marks exactly that
// snapshot billed, as one atomic unit: an entry added after the snapshot is
// not included, and an entry deleted concurrently fails the whole invoice.
// Categories are re-derived from the tasks' values at commit time, so any
// earlier preview is advisory only. Returns the invoice and a CSV artifact.
func (g *Generator) Finalize(ctx context.Context, userID string) (model.Invoice, []byte, error) {
	currency, err := g.store.GetCurrency(ctx, userID)
	if err != nil {
		return model.Invoice{}, nil, err
	}

	var inv model.Invoice
	for attempt := 1; ; attempt++ {
		invoiceID := g.newID()
		err = g.store.ExportUnbilled(ctx, userID, invoiceID, func(lines []db.UnbilledLine, rates []model.RateEntry) error {
			items, grandTotal, err := aggregate(lines, rates)
			if err != nil {
				return err
			}
			inv = model.Invoice{
				ID:          invoiceID,
				UserID:      userID,
				GeneratedAt: g.now().UTC(),
				Currency:    currency,
				Lines:       items,
				GrandTotal:  grandTotal,
			}
			return nil
		})
		if err == nil {
			break
		}
		if attempt < finalizeAttempts && transient(err) {
			continue
		}
		if transient(err) {
			return model.Invoice{}, nil, errors.Wrap(errors.CodeConcurrentModification, "export kept failing under contention", err)
		}
		return model.Invoice{}, nil, err
	}

	return inv, renderCSV(inv), nil
}

// aggregate is the pure math shared by Preview and Finalize: group unbilled
// lines by category then task, sum hours, price them, and total. Any category
// without a rate fails the whole invoice; partially billed output would hide
// unrated work.
func aggregate(lines []db.UnbilledLine, rates []model.RateEntry) ([]model.InvoiceLine, decimal.Decimal, error) {
	rateByCategory := make(map[string]model.RateEntry, len(rates))
	for _, rate := range rates {
		rateByCategory[rate.Category] = rate
	}

	for _, line := range lines {
		if _, ok := rateByCategory[line.Category]; !ok {
			return nil, decimal.Zero, errors.Newf(errors.CodeMissingRate, "no rate configured for category %q", line.Category)
		}
	}

	// Lines arrive ordered by category then task name; grouping by task id in
	// first-appearance order keeps the invoice deterministic.
	type taskGroup struct {
		category string
		taskName string
		seconds  int64
	}
	var order []int64
	groups := make(map[int64]*taskGroup)
	for _, line := range lines {
		group, ok := groups[line.TaskID]
		if !ok {
			group = &taskGroup{category: line.Category, taskName: line.TaskName}
			groups[line.TaskID] = group
			order = append(order, line.TaskID)
		}
		group.seconds += line.DurationSeconds
	}

	var items []model.InvoiceLine
	grandTotal := decimal.Zero
	for _, taskID := range order {
		group := groups[taskID]
		hourlyRate := rateByCategory[group.category].HourlyRate()
		hours := model.HoursFromSeconds(group.seconds)
		subtotal := hours.Mul(hourlyRate).Round(2)
		items = append(items, model.InvoiceLine{
			Category:   group.category,
			TaskName:   group.taskName,
			Hours:      hours,
			HourlyRate: hourlyRate,
			Subtotal:   subtotal,
		})
		grandTotal = grandTotal.Add(subtotal)
	}

	return items, grandTotal.Round(2), nil
}

// renderCSV produces the export artifact: one row per line item plus a
// grand-total row, amounts formatted at two decimals.
func renderCSV(inv model.Invoice) []byte {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	_ = writer.Write([]string{"invoice_id", "generated_at", "currency", "category", "task", "hours", "hourly_rate", "subtotal"})
	for _, line := range inv.Lines {
		_ = writer.Write([]string{
			inv.ID,
			inv.GeneratedAt.Format(time.RFC3339),
			inv.Currency.Code,
			line.Category,
			line.TaskName,
			line.Hours.StringFixed(6),
			line.HourlyRate.StringFixed(2),
			line.Subtotal.StringFixed(2),
		})
	}
	_ = writer.Write([]string{inv.ID, inv.GeneratedAt.Format(time.RFC3339), inv.Currency.Code, "", "TOTAL", "", "", inv.GrandTotal.StringFixed(2)})
	writer.Flush()

	return buf.Bytes()
}

// transient reports whether err looks like sqlite write contention rather
// than a domain failure.
func transient(err error) bool {
	if err == nil || errors.CodeOf(err) != errors.CodeUnknown {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
