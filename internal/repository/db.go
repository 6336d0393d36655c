package repository

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/betenlace/affiliates/internal/currency"
	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
//
// Write transactions are opened with BEGIN IMMEDIATE so concurrent
// reconciliations of the same rows serialise on the database write lock.
func InitDB(path string) (*sql.DB, error) {
	memory := path == ":memory:"
	dsn := "file:" + path
	if memory {
		dsn = "file::memory:"
	}
	params := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_txlock=immediate",
	}
	if !memory {
		// WAL for better concurrent read performance.
		params = append(params, "_pragma=journal_mode(WAL)")
	}
	dsn += "?" + strings.Join(params, "&")

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if memory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

// currencyColumns lists the per-currency total columns of the withdrawal
// tables: fixed_income_<code> and, for non-USD codes, fixed_income_<code>_usd.
func currencyColumns() []string {
	var cols []string
	for _, c := range currency.All() {
		code := strings.ToLower(c.String())
		cols = append(cols, "fixed_income_"+code)
		if c != currency.USD {
			cols = append(cols, "fixed_income_"+code+"_usd")
		}
	}
	return cols
}

func currencyColumnsDDL() string {
	var b strings.Builder
	for _, col := range currencyColumns() {
		b.WriteString(col)
		b.WriteString(" REAL NOT NULL DEFAULT 0,\n\t\t\t")
	}
	return b.String()
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS campaigns (
			id TEXT PRIMARY KEY,
			title TEXT UNIQUE NOT NULL,
			currency_condition TEXT NOT NULL,
			currency_fixed_income TEXT NOT NULL,
			fixed_income_unitary REAL NOT NULL,
			default_percentage REAL NOT NULL,
			status TEXT NOT NULL,
			last_inactive_at DATETIME
		)`,

		`CREATE TABLE IF NOT EXISTS links (
			id TEXT PRIMARY KEY,
			campaign_id TEXT NOT NULL,
			prom_code TEXT NOT NULL,
			UNIQUE (campaign_id, prom_code),
			FOREIGN KEY (campaign_id) REFERENCES campaigns(id)
		)`,

		`CREATE TABLE IF NOT EXISTS partners (
			id TEXT PRIMARY KEY,
			full_name TEXT NOT NULL,
			email TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			identification_type TEXT NOT NULL DEFAULT '',
			identification TEXT NOT NULL DEFAULT '',
			level INTEGER NOT NULL DEFAULT 0,
			bank_status TEXT NOT NULL,
			adviser_id TEXT,
			fixed_income_adviser_percentage REAL,
			net_revenue_adviser_percentage REAL,
			referred_by_id TEXT,
			fixed_income_referred_percentage REAL,
			net_revenue_referred_percentage REAL
		)`,

		`CREATE TABLE IF NOT EXISTS bank_accounts (
			id TEXT PRIMARY KEY,
			partner_id TEXT NOT NULL,
			bank_name TEXT NOT NULL,
			account_number TEXT NOT NULL,
			is_primary INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (partner_id) REFERENCES partners(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bank_accounts_partner ON bank_accounts(partner_id)`,

		`CREATE TABLE IF NOT EXISTS own_companies (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			tax_id TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS level_percentages (
			level INTEGER PRIMARY KEY,
			factor REAL NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS partner_link_accumulated (
			id TEXT PRIMARY KEY,
			partner_id TEXT NOT NULL,
			link_id TEXT UNIQUE NOT NULL,
			campaign_id TEXT NOT NULL,
			percentage_cpa REAL NOT NULL,
			is_percentage_custom INTEGER NOT NULL DEFAULT 0,
			partner_level INTEGER NOT NULL DEFAULT 0,
			currency_local TEXT NOT NULL,
			tracker REAL NOT NULL DEFAULT 1,
			tracker_deposit REAL NOT NULL DEFAULT 1,
			tracker_registered_count REAL NOT NULL DEFAULT 1,
			tracker_first_deposit_count REAL NOT NULL DEFAULT 1,
			tracker_wagering_count REAL NOT NULL DEFAULT 1,
			status TEXT NOT NULL,
			cpa_count INTEGER NOT NULL DEFAULT 0,
			fixed_income REAL NOT NULL DEFAULT 0,
			fixed_income_local REAL NOT NULL DEFAULT 0,
			period DATE,
			FOREIGN KEY (partner_id) REFERENCES partners(id),
			FOREIGN KEY (link_id) REFERENCES links(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pla_partner ON partner_link_accumulated(partner_id)`,

		`CREATE TABLE IF NOT EXISTS betenlace_cpa (
			id TEXT PRIMARY KEY,
			link_id TEXT UNIQUE NOT NULL,
			period DATE,
			deposit REAL NOT NULL DEFAULT 0,
			stake REAL NOT NULL DEFAULT 0,
			fixed_income REAL NOT NULL DEFAULT 0,
			net_revenue REAL NOT NULL DEFAULT 0,
			revenue_share REAL NOT NULL DEFAULT 0,
			registered_count INTEGER NOT NULL DEFAULT 0,
			cpa_count INTEGER NOT NULL DEFAULT 0,
			first_deposit_count INTEGER NOT NULL DEFAULT 0,
			wagering_count INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (link_id) REFERENCES links(id)
		)`,

		`CREATE TABLE IF NOT EXISTS fx_snapshots (
			id TEXT PRIMARY KEY,
			created_at DATETIME UNIQUE NOT NULL,
			fx_percentage REAL NOT NULL,
			rates TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS betenlace_daily_reports (
			id TEXT PRIMARY KEY,
			link_id TEXT NOT NULL,
			created_at DATE NOT NULL,
			currency_condition TEXT NOT NULL,
			currency_fixed_income TEXT NOT NULL,
			fixed_income_unitary REAL NOT NULL,
			deposit REAL NOT NULL DEFAULT 0,
			stake REAL NOT NULL DEFAULT 0,
			fixed_income REAL NOT NULL DEFAULT 0,
			net_revenue REAL NOT NULL DEFAULT 0,
			revenue_share REAL NOT NULL DEFAULT 0,
			registered_count INTEGER NOT NULL DEFAULT 0,
			cpa_count INTEGER NOT NULL DEFAULT 0,
			first_deposit_count INTEGER NOT NULL DEFAULT 0,
			wagering_count INTEGER NOT NULL DEFAULT 0,
			click_count INTEGER,
			fx_partner_id TEXT,
			UNIQUE (link_id, created_at),
			FOREIGN KEY (link_id) REFERENCES links(id),
			FOREIGN KEY (fx_partner_id) REFERENCES fx_snapshots(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_betenlace_daily_date ON betenlace_daily_reports(created_at)`,

		`CREATE TABLE IF NOT EXISTS partner_link_daily_reports (
			id TEXT PRIMARY KEY,
			partner_link_id TEXT NOT NULL,
			betenlace_daily_id TEXT NOT NULL,
			partner_id TEXT NOT NULL,
			created_at DATE NOT NULL,
			currency_fixed_income TEXT NOT NULL,
			currency_local TEXT NOT NULL,
			percentage_cpa REAL NOT NULL,
			fixed_income_unitary REAL NOT NULL,
			fixed_income_unitary_local REAL NOT NULL,
			fixed_income REAL NOT NULL,
			fixed_income_local REAL NOT NULL,
			fx_book_local REAL NOT NULL,
			fx_book_net_revenue_local REAL NOT NULL,
			fx_percentage REAL NOT NULL,
			cpa_count INTEGER NOT NULL,
			deposit REAL NOT NULL,
			registered_count INTEGER NOT NULL,
			first_deposit_count INTEGER NOT NULL,
			wagering_count INTEGER NOT NULL,
			tracker REAL NOT NULL,
			tracker_deposit REAL NOT NULL,
			tracker_registered_count REAL NOT NULL,
			tracker_first_deposit_count REAL NOT NULL,
			tracker_wagering_count REAL NOT NULL,
			stake REAL NOT NULL DEFAULT 0,
			net_revenue REAL NOT NULL DEFAULT 0,
			revenue_share REAL NOT NULL DEFAULT 0,
			adviser_id TEXT,
			fixed_income_adviser_percentage REAL,
			net_revenue_adviser_percentage REAL,
			fixed_income_adviser REAL,
			fixed_income_adviser_local REAL,
			net_revenue_adviser REAL,
			net_revenue_adviser_local REAL,
			referred_by_id TEXT,
			fixed_income_referred_percentage REAL,
			net_revenue_referred_percentage REAL,
			fixed_income_referred REAL,
			fixed_income_referred_local REAL,
			net_revenue_referred REAL,
			net_revenue_referred_local REAL,
			UNIQUE (partner_link_id, created_at),
			FOREIGN KEY (partner_link_id) REFERENCES partner_link_accumulated(id),
			FOREIGN KEY (betenlace_daily_id) REFERENCES betenlace_daily_reports(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pldr_partner_date ON partner_link_daily_reports(partner_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS account_reports (
			id TEXT PRIMARY KEY,
			link_id TEXT NOT NULL,
			punter_id TEXT NOT NULL,
			partner_link_id TEXT,
			currency_condition TEXT NOT NULL,
			currency_fixed_income TEXT NOT NULL,
			deposit REAL NOT NULL DEFAULT 0,
			stake REAL NOT NULL DEFAULT 0,
			fixed_income REAL NOT NULL DEFAULT 0,
			net_revenue REAL NOT NULL DEFAULT 0,
			revenue_share REAL NOT NULL DEFAULT 0,
			cpa_betenlace INTEGER NOT NULL DEFAULT 0,
			cpa_partner INTEGER NOT NULL DEFAULT 0,
			registered_at DATETIME,
			first_deposit_at DATETIME,
			cpa_at DATETIME,
			created_at DATETIME NOT NULL,
			UNIQUE (link_id, punter_id),
			FOREIGN KEY (link_id) REFERENCES links(id),
			CHECK (cpa_partner <= cpa_betenlace)
		)`,

		`CREATE TABLE IF NOT EXISTS account_daily_contributions (
			account_report_id TEXT NOT NULL,
			created_at DATE NOT NULL,
			deposit REAL NOT NULL,
			stake REAL NOT NULL,
			net_revenue REAL NOT NULL,
			revenue_share REAL NOT NULL,
			credited INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (account_report_id, created_at),
			FOREIGN KEY (account_report_id) REFERENCES account_reports(id)
		)`,

		`CREATE TABLE IF NOT EXISTS click_events (
			id TEXT PRIMARY KEY,
			link_id TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			count INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_click_events_link ON click_events(link_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS withdrawal_bills (
			id TEXT PRIMARY KEY,
			partner_id TEXT NOT NULL,
			billed_from_at DATE NOT NULL,
			billed_to_at DATE NOT NULL,
			currency_local TEXT NOT NULL,
			` + currencyColumnsDDL() + `fixed_income_local REAL NOT NULL DEFAULT 0,
			cpa_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			full_name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			identification_type TEXT NOT NULL DEFAULT '',
			identification TEXT NOT NULL DEFAULT '',
			partner_level INTEGER NOT NULL DEFAULT 0,
			bank_account_id TEXT,
			bank_name TEXT NOT NULL DEFAULT '',
			account_number TEXT NOT NULL DEFAULT '',
			own_company_id TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			payed_at DATETIME,
			FOREIGN KEY (partner_id) REFERENCES partners(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_withdrawal_bills_partner ON withdrawal_bills(partner_id, status)`,

		`CREATE TABLE IF NOT EXISTS withdrawal_accumulations (
			id TEXT PRIMARY KEY,
			bill_id TEXT NOT NULL,
			accum_at DATE NOT NULL,
			` + currencyColumnsDDL() + `fixed_income_local REAL NOT NULL DEFAULT 0,
			cpa_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			UNIQUE (bill_id, accum_at),
			FOREIGN KEY (bill_id) REFERENCES withdrawal_bills(id)
		)`,

		`CREATE TABLE IF NOT EXISTS advisory_locks (
			key TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			acquired_at DATETIME NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:60], err)
		}
	}

	return nil
}
