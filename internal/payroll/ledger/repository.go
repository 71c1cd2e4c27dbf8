package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/theopen-institute/payroll/internal/payroll/shared"
	"github.com/theopen-institute/payroll/internal/platform/db"
)

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed ledger store.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) ComponentAccount(ctx context.Context, companyID, componentID int64) (int64, error) {
	var account int64
	err := r.db.QueryRow(ctx, `SELECT account_id FROM salary_component_accounts
WHERE company_id=$1 AND component_id=$2`, companyID, componentID).Scan(&account)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrMissingComponentAccount
		}
		return 0, err
	}
	return account, nil
}

func (r *repository) ComponentFlags(ctx context.Context, componentID int64) (ComponentFlags, error) {
	var flags ComponentFlags
	err := r.db.QueryRow(ctx, `SELECT is_flexible_benefit, only_tax_impact FROM salary_components
WHERE id=$1`, componentID).Scan(&flags.IsFlexibleBenefit, &flags.OnlyTaxImpact)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ComponentFlags{}, fmt.Errorf("ledger: salary component %d not found", componentID)
		}
		return ComponentFlags{}, err
	}
	return flags, nil
}

func (r *repository) IsPayableAccount(ctx context.Context, accountID int64) (bool, error) {
	var accountType string
	err := r.db.QueryRow(ctx, `SELECT account_type FROM accounts WHERE id=$1`, accountID).Scan(&accountType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("ledger: account %d not found", accountID)
		}
		return false, err
	}
	return accountType == "Payable", nil
}

func (r *repository) DefaultPayableAccount(ctx context.Context, companyID int64) (int64, error) {
	var account *int64
	err := r.db.QueryRow(ctx, `SELECT default_payable_account_id FROM companies WHERE id=$1`, companyID).Scan(&account)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("ledger: company %d not found", companyID)
		}
		return 0, err
	}
	if account == nil {
		return 0, shared.ErrMissingPayableAccount
	}
	return *account, nil
}

func (r *repository) RoundOffAccount(ctx context.Context, companyID int64) (RoundOff, error) {
	var account *int64
	var costCenter *string
	err := r.db.QueryRow(ctx, `SELECT round_off_account_id, round_off_cost_center FROM companies
WHERE id=$1`, companyID).Scan(&account, &costCenter)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RoundOff{}, fmt.Errorf("ledger: company %d not found", companyID)
		}
		return RoundOff{}, err
	}
	if account == nil {
		return RoundOff{}, shared.ErrMissingRoundOffAccount
	}
	out := RoundOff{AccountID: *account}
	if costCenter != nil {
		out.CostCenter = *costCenter
	}
	return out, nil
}

func (r *repository) Commit(ctx context.Context, posting Posting) (Posting, error) {
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if posting.Cancel {
			var originalID int64
			err := tx.QueryRow(ctx, `SELECT id FROM payroll_postings
WHERE voucher_id=$1 AND status='ACTIVE' AND kind='POSTING' FOR UPDATE`, posting.VoucherID).Scan(&originalID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return shared.ErrPostingNotFound
				}
				return err
			}
			if _, err := tx.Exec(ctx, `UPDATE payroll_postings SET status='CANCELLED' WHERE id=$1`, originalID); err != nil {
				return err
			}
			if err := tx.QueryRow(ctx, `INSERT INTO payroll_postings (voucher_id, source_id, company_id, posting_date, kind, status, reverses_id)
VALUES ($1,$2,$3,$4,'CANCELLATION','ACTIVE',$5) RETURNING id`,
				posting.VoucherID, posting.SourceID, posting.CompanyID, posting.PostingDate, originalID).Scan(&posting.ID); err != nil {
				return err
			}
		} else {
			err := tx.QueryRow(ctx, `INSERT INTO payroll_postings (voucher_id, source_id, company_id, posting_date, kind, status)
VALUES ($1,$2,$3,$4,'POSTING','ACTIVE') RETURNING id`,
				posting.VoucherID, posting.SourceID, posting.CompanyID, posting.PostingDate).Scan(&posting.ID)
			if err != nil {
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == "23505" {
					return shared.ErrPostingAlreadyExists
				}
				return err
			}
		}

		for _, line := range posting.Lines {
			if _, err := tx.Exec(ctx, `INSERT INTO payroll_ledger_lines
(posting_id, account_id, debit, credit, party_type, party_id, against_voucher_id, against_voucher_type, against_accounts, cost_center, posting_date, remarks)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
				posting.ID, line.AccountID, toNumeric(line.Debit), toNumeric(line.Credit),
				nullStr(line.PartyType), line.PartyID, line.AgainstVoucherID, nullStr(line.AgainstVoucherType),
				line.AgainstAccounts, line.CostCenter, line.PostingDate, line.Remarks); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Posting{}, err
	}
	return posting, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func toNumeric(v float64) any {
	return fmt.Sprintf("%.2f", v)
}
