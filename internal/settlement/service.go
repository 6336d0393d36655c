// Package settlement closes a calendar month: it recomputes the partners'
// daily rows under the current FX and level percentages and folds the month
// into each partner's open withdrawal bill.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/betenlace/affiliates/internal/alerting"
	"github.com/betenlace/affiliates/internal/config"
	"github.com/betenlace/affiliates/internal/currency"
	"github.com/betenlace/affiliates/internal/domain"
	"github.com/betenlace/affiliates/internal/metrics"
	"github.com/betenlace/affiliates/internal/repository"
)

// Result summarises a settlement run.
type Result struct {
	RunID    string         `json:"run_id"`
	Month    string         `json:"month"`
	Partners int            `json:"partners"`
	Bills    map[string]int `json:"bills"`
	Skipped  int            `json:"skipped"`
	Failed   int            `json:"failed"`
	Warnings []string       `json:"warnings,omitempty"`
}

// Service runs month-close settlements.
type Service struct {
	store         *repository.Store
	sink          alerting.Sink
	minWithdrawal currency.MinWithdrawal
	bankLimit     int
	now           func() time.Time
	log           *slog.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(store *repository.Store, sink alerting.Sink, cfg config.SettlementConfig, opts ...Option) *Service {
	minWithdrawal := cfg.MinWithdrawal
	if minWithdrawal == nil {
		minWithdrawal = currency.DefaultMinWithdrawal()
	}
	s := &Service{
		store:         store,
		sink:          sink,
		minWithdrawal: minWithdrawal,
		bankLimit:     cfg.BankAccountsLimit,
		now:           time.Now,
		log:           slog.With("component", "settlement"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run settles the calendar month before the current one.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	now := s.now().In(s.store.Location())
	return s.RunMonth(ctx, firstOfMonth(now).AddDate(0, -1, 0))
}

// RunMonth settles every partner with daily rows in the month containing
// month. One partner's failure does not stop the others; it is counted and
// alerted.
func (s *Service) RunMonth(ctx context.Context, month time.Time) (*Result, error) {
	from := firstOfMonth(month.In(s.store.Location()))
	to := from.AddDate(0, 1, -1)
	res := &Result{RunID: uuid.NewString(), Month: from.Format("2006-01"), Bills: map[string]int{}}
	batch := alerting.NewBatch("settlement " + res.Month)
	log := s.log.With("run", res.RunID, "month", res.Month)

	partners, err := s.store.PartnersWithDailies(ctx, from, to)
	if err != nil {
		metrics.JobErrors.WithLabelValues("settlement", string(domain.Classify(err))).Inc()
		s.send(ctx, alerting.Error, fmt.Sprintf("settlement %s failed: %v", res.Month, err))
		return res, fmt.Errorf("list partners: %w", err)
	}
	log.Info("settlement started", "partners", len(partners))

	var firstErr error
	for _, partnerID := range partners {
		res.Partners++
		status, err := s.settlePartner(ctx, res.RunID, partnerID, from, to, batch)
		switch {
		case err != nil:
			res.Failed++
			kind := domain.Classify(err)
			metrics.JobErrors.WithLabelValues("settlement", string(kind)).Inc()
			log.Error("partner settlement failed", "partner", partnerID, "kind", kind, "error", err)
			s.send(ctx, alerting.Error, fmt.Sprintf("settlement %s for partner %s failed [%s]: %v", res.Month, partnerID, kind, err))
			if firstErr == nil {
				firstErr = err
			}
		case status == "":
			res.Skipped++
		default:
			res.Bills[string(status)]++
			metrics.SettlementBills.WithLabelValues(string(status)).Inc()
		}
	}

	res.Warnings = batch.Warnings()
	batch.Flush(ctx, s.sink)
	log.Info("settlement finished", "bills", res.Bills, "skipped", res.Skipped, "failed", res.Failed)
	s.send(ctx, alerting.Info, fmt.Sprintf("settlement %s: %d partner(s), bills %v, %d skipped, %d failed",
		res.Month, res.Partners, res.Bills, res.Skipped, res.Failed))

	if firstErr != nil {
		return res, fmt.Errorf("settle %s: %d partner(s) failed: %w", res.Month, res.Failed, firstErr)
	}
	return res, nil
}

// settlePartner runs under the partner's advisory lock and returns the
// resulting bill status, or "" when nothing was billed.
func (s *Service) settlePartner(ctx context.Context, runID, partnerID string, from, to time.Time, batch *alerting.Batch) (domain.BillStatus, error) {
	key := "settlement:" + partnerID
	if err := s.store.AcquireLock(ctx, key, runID, s.now()); err != nil {
		return "", err
	}
	defer func() {
		if err := s.store.ReleaseLock(context.WithoutCancel(ctx), key, runID); err != nil {
			s.log.Warn("release settlement lock", "partner", partnerID, "error", err)
		}
	}()

	var status domain.BillStatus
	err := s.store.WithTx(ctx, func(q *repository.Queries) error {
		var err error
		status, err = s.settle(ctx, q, partnerID, from, to, batch)
		return err
	})
	return status, err
}

func (s *Service) settle(ctx context.Context, q *repository.Queries, partnerID string, from, to time.Time, batch *alerting.Batch) (domain.BillStatus, error) {
	month := from.Format("2006-01")
	payed, err := q.MonthInPayedBill(ctx, partnerID, from)
	if err != nil {
		return "", err
	}
	if payed {
		batch.Warn("partner %s: %s already settled in a payed bill, skipped", partnerID, month)
		return "", nil
	}

	partner, err := q.GetPartner(ctx, partnerID)
	if err != nil {
		return "", err
	}
	dailies, err := q.ListPartnerDailiesInRange(ctx, partnerID, from, to)
	if err != nil {
		return "", err
	}

	sums, err := s.recompute(ctx, q, partner, dailies, from)
	if err != nil {
		return "", err
	}

	bill, err := q.GetOpenBill(ctx, partnerID)
	if err != nil {
		return "", err
	}
	now := s.now()
	accum := &domain.WithdrawalAccumulation{AccumAt: from, CreatedAt: now}
	sums.applyTo(accum)

	if bill == nil {
		if sums.cpa == 0 {
			batch.Warn("partner %s: no partner CPA in %s, no bill created", partnerID, month)
			return "", nil
		}
		bill = &domain.WithdrawalBill{
			PartnerID:    partnerID,
			BilledFromAt: from,
			BilledToAt:   to,
			CreatedAt:    now,
		}
		bill.Totals = accum.Totals
		bill.FixedIncomeLocal = accum.FixedIncomeLocal
		bill.CPACount = accum.CPACount
	} else {
		prior, err := q.ListAccumulations(ctx, bill.ID)
		if err != nil {
			return "", err
		}
		bill.Totals = accum.Totals
		bill.FixedIncomeLocal = accum.FixedIncomeLocal
		bill.CPACount = accum.CPACount
		for _, a := range prior {
			if sameMonth(a.AccumAt, from) {
				continue
			}
			bill.Totals = bill.Totals.Add(a.Totals)
			bill.FixedIncomeLocal += a.FixedIncomeLocal
			bill.CPACount += a.CPACount
			if a.AccumAt.Before(bill.BilledFromAt) {
				bill.BilledFromAt = a.AccumAt
			}
		}
		if to.After(bill.BilledToAt) {
			bill.BilledToAt = to
		}
	}

	if err := s.snapshot(ctx, q, bill, partner, sums.localCode); err != nil {
		return "", err
	}
	bill.Status = s.classify(partner, bill)
	bill.UpdatedAt = now

	if bill.ID == "" {
		err = q.InsertBill(ctx, bill)
	} else {
		err = q.UpdateBill(ctx, bill)
	}
	if err != nil {
		return "", err
	}
	accum.BillID = bill.ID
	if err := q.UpsertAccumulation(ctx, accum); err != nil {
		return "", err
	}

	s.log.Info("bill written",
		"partner", partnerID,
		"bill", bill.ID,
		"month", month,
		"status", bill.Status,
		"fixed_income_local", bill.FixedIncomeLocal,
		"currency_local", bill.CurrencyLocal.String(),
		"cpa", bill.CPACount,
	)
	return bill.Status, nil
}

// snapshot copies contact, bank and billing-company details onto the bill.
func (s *Service) snapshot(ctx context.Context, q *repository.Queries, b *domain.WithdrawalBill, p *domain.Partner, local currency.Code) error {
	b.CurrencyLocal = local
	b.FullName = p.FullName
	b.Email = p.Email
	b.Phone = p.Phone
	b.IdentificationType = p.IdentificationType
	b.Identification = p.Identification
	b.PartnerLevel = p.Level

	bank, err := q.PrimaryBankAccount(ctx, p.ID, s.bankLimit)
	if err != nil {
		return err
	}
	b.BankAccountID, b.BankName, b.AccountNumber = nil, "", ""
	if bank != nil {
		id := bank.ID
		b.BankAccountID, b.BankName, b.AccountNumber = &id, bank.BankName, bank.AccountNumber
	}

	company, err := q.ActiveOwnCompany(ctx)
	if err != nil {
		return err
	}
	b.OwnCompanyID = nil
	if company != nil {
		id := company.ID
		b.OwnCompanyID = &id
	}
	return nil
}

func (s *Service) classify(p *domain.Partner, b *domain.WithdrawalBill) domain.BillStatus {
	switch {
	case p.BankStatus != domain.BankStatusAccepted:
		return domain.BillNoInfo
	case b.FixedIncomeLocal < s.minWithdrawal.For(b.CurrencyLocal):
		return domain.BillNotReady
	}
	return domain.BillToPay
}

func (s *Service) send(ctx context.Context, sev alerting.Severity, msg string) {
	if s.sink != nil {
		s.sink.Send(ctx, sev, msg, "")
	}
}

// IsLockHeld reports whether err means another run holds a partner lock.
func IsLockHeld(err error) bool { return errors.Is(err, domain.ErrLockHeld) }

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}
