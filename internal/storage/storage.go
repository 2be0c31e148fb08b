// Package storage - слой хранения на SQLite
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"mt5_backoffice/internal/models"
)

const migration = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'viewer',
	full_name TEXT NOT NULL DEFAULT '',
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS customers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	agent_name TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS mt5_accounts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	customer_id INTEGER NOT NULL DEFAULT 0,
	login INTEGER NOT NULL UNIQUE,
	grp TEXT NOT NULL DEFAULT '',
	leverage INTEGER NOT NULL DEFAULT 100,
	currency TEXT NOT NULL DEFAULT 'USD',
	status TEXT NOT NULL DEFAULT 'active',
	display_name TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS balance_operations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id INTEGER NOT NULL DEFAULT 0,
	login INTEGER NOT NULL,
	op_type TEXT NOT NULL,
	amount REAL NOT NULL,
	comment TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	idempotency_key TEXT,
	deal_id INTEGER NOT NULL DEFAULT 0,
	requested_by INTEGER NOT NULL DEFAULT 0,
	approved_by INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_balance_ops_idem
	ON balance_operations(idempotency_key) WHERE idempotency_key IS NOT NULL;

CREATE TABLE IF NOT EXISTS daily_pnl (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	day TEXT NOT NULL,
	login INTEGER NOT NULL,
	present_equity REAL NOT NULL DEFAULT 0,
	equity_prev_day REAL NOT NULL DEFAULT 0,
	deposit REAL NOT NULL DEFAULT 0,
	withdrawal REAL NOT NULL DEFAULT 0,
	net_deposit REAL NOT NULL DEFAULT 0,
	credit REAL NOT NULL DEFAULT 0,
	promotion REAL NOT NULL DEFAULT 0,
	net_credit_promotion REAL NOT NULL DEFAULT 0,
	total_ib REAL NOT NULL DEFAULT 0,
	rebate REAL NOT NULL DEFAULT 0,
	equity_pnl REAL NOT NULL DEFAULT 0,
	net_pnl REAL NOT NULL DEFAULT 0,
	grp TEXT NOT NULL DEFAULT '',
	currency TEXT NOT NULL DEFAULT 'USD',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(day, login)
);

CREATE TABLE IF NOT EXISTS activity_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL DEFAULT 0,
	level TEXT NOT NULL DEFAULT 'info',
	action TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	details TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Storage работает с базой SQLite
type Storage struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewStorage(dbPath string, logger *slog.Logger) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite не любит конкурентные записи
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(migration); err != nil {
		return nil, fmt.Errorf("apply migration: %w", err)
	}

	logger.Info("✅ Database ready", slog.String("path", dbPath))

	return &Storage{db: db, logger: logger}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// --- Users ---

func (s *Storage) CreateUser(email, passwordHash, role, fullName string) (*models.User, error) {
	result, err := s.db.Exec(
		`INSERT INTO users (email, password_hash, role, full_name) VALUES (?, ?, ?, ?)`,
		email, passwordHash, role, fullName)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	id, _ := result.LastInsertId()

	return s.GetUserByID(id)
}

func (s *Storage) GetUserByEmail(email string) (*models.User, error) {
	return s.scanUser(s.db.QueryRow(
		`SELECT id, email, password_hash, role, full_name, is_active, created_at
		 FROM users WHERE email = ?`, email))
}

func (s *Storage) GetUserByID(id int64) (*models.User, error) {
	return s.scanUser(s.db.QueryRow(
		`SELECT id, email, password_hash, role, full_name, is_active, created_at
		 FROM users WHERE id = ?`, id))
}

func (s *Storage) scanUser(row *sql.Row) (*models.User, error) {
	var user models.User

	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Role,
		&user.FullName, &user.IsActive, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return &user, nil
}

// --- Customers ---

func (s *Storage) CreateCustomer(name, email, phone, agentName string) (*models.Customer, error) {
	result, err := s.db.Exec(
		`INSERT INTO customers (name, email, phone, agent_name) VALUES (?, ?, ?, ?)`,
		name, email, phone, agentName)
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}

	id, _ := result.LastInsertId()

	row := s.db.QueryRow(
		`SELECT id, name, email, phone, agent_name, created_at FROM customers WHERE id = ?`, id)

	var c models.Customer
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.AgentName, &c.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan customer: %w", err)
	}

	return &c, nil
}

func (s *Storage) GetCustomers() ([]models.Customer, error) {
	rows, err := s.db.Query(
		`SELECT id, name, email, phone, agent_name, created_at FROM customers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var customers []models.Customer

	for rows.Next() {
		var c models.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.AgentName, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}

		customers = append(customers, c)
	}

	return customers, rows.Err()
}

// --- MT5 accounts ---

func (s *Storage) AddAccount(account *models.MT5Account) (*models.MT5Account, error) {
	result, err := s.db.Exec(
		`INSERT INTO mt5_accounts (customer_id, login, grp, leverage, currency, status, display_name)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		account.CustomerID, account.Login, account.Group, account.Leverage,
		account.Currency, account.Status, account.DisplayName)
	if err != nil {
		return nil, fmt.Errorf("add account: %w", err)
	}

	id, _ := result.LastInsertId()

	return s.getAccount(`id = ?`, id)
}

// GetAccountByLogin возвращает (nil, nil), если аккаунт не заведен локально
func (s *Storage) GetAccountByLogin(login int64) (*models.MT5Account, error) {
	account, err := s.getAccount(`login = ?`, login)
	if err != nil && errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	return account, err
}

func (s *Storage) getAccount(where string, arg any) (*models.MT5Account, error) {
	row := s.db.QueryRow(
		`SELECT id, customer_id, login, grp, leverage, currency, status, display_name, created_at
		 FROM mt5_accounts WHERE `+where, arg)

	var a models.MT5Account

	err := row.Scan(&a.ID, &a.CustomerID, &a.Login, &a.Group, &a.Leverage,
		&a.Currency, &a.Status, &a.DisplayName, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}

		return nil, fmt.Errorf("scan account: %w", err)
	}

	return &a, nil
}

func (s *Storage) GetAccounts() ([]models.MT5Account, error) {
	rows, err := s.db.Query(
		`SELECT id, customer_id, login, grp, leverage, currency, status, display_name, created_at
		 FROM mt5_accounts ORDER BY login`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.MT5Account

	for rows.Next() {
		var a models.MT5Account

		err := rows.Scan(&a.ID, &a.CustomerID, &a.Login, &a.Group, &a.Leverage,
			&a.Currency, &a.Status, &a.DisplayName, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}

		accounts = append(accounts, a)
	}

	return accounts, rows.Err()
}

func (s *Storage) UpdateAccountGroup(login int64, group string) error {
	_, err := s.db.Exec(`UPDATE mt5_accounts SET grp = ? WHERE login = ?`, group, login)
	if err != nil {
		return fmt.Errorf("update account group: %w", err)
	}

	return nil
}

// --- Balance operations ---

func (s *Storage) CreateBalanceOperation(op *models.BalanceOperation) (*models.BalanceOperation, error) {
	var key any
	if op.IdempotencyKey != "" {
		key = op.IdempotencyKey
	}

	result, err := s.db.Exec(
		`INSERT INTO balance_operations
		 (account_id, login, op_type, amount, comment, status, idempotency_key,
		  deal_id, requested_by, approved_by, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.AccountID, op.Login, op.Type, op.Amount, op.Comment, op.Status, key,
		op.DealID, op.RequestedBy, op.ApprovedBy, op.ErrorMessage)
	if err != nil {
		return nil, fmt.Errorf("create balance operation: %w", err)
	}

	id, _ := result.LastInsertId()

	return s.getBalanceOperation(`id = ?`, id)
}

// GetBalanceOperationByKey возвращает (nil, nil), если ключ еще не встречался
func (s *Storage) GetBalanceOperationByKey(key string) (*models.BalanceOperation, error) {
	op, err := s.getBalanceOperation(`idempotency_key = ?`, key)
	if err != nil && errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	return op, err
}

func (s *Storage) getBalanceOperation(where string, arg any) (*models.BalanceOperation, error) {
	row := s.db.QueryRow(
		`SELECT id, account_id, login, op_type, amount, comment, status,
		        COALESCE(idempotency_key, ''), deal_id, requested_by, approved_by,
		        error_message, created_at
		 FROM balance_operations WHERE `+where, arg)

	var op models.BalanceOperation

	err := row.Scan(&op.ID, &op.AccountID, &op.Login, &op.Type, &op.Amount, &op.Comment,
		&op.Status, &op.IdempotencyKey, &op.DealID, &op.RequestedBy, &op.ApprovedBy,
		&op.ErrorMessage, &op.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}

		return nil, fmt.Errorf("scan balance operation: %w", err)
	}

	return &op, nil
}

// ListBalanceOperations возвращает операции, новые сверху.
// login == 0 - по всем логинам, status == "" - любой статус.
func (s *Storage) ListBalanceOperations(login int64, status string, limit int) ([]models.BalanceOperation, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.db.Query(
		`SELECT id, account_id, login, op_type, amount, comment, status,
		        COALESCE(idempotency_key, ''), deal_id, requested_by, approved_by,
		        error_message, created_at
		 FROM balance_operations
		 WHERE (? = 0 OR login = ?) AND (? = '' OR status = ?)
		 ORDER BY id DESC LIMIT ?`,
		login, login, status, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list balance operations: %w", err)
	}
	defer rows.Close()

	var ops []models.BalanceOperation

	for rows.Next() {
		var op models.BalanceOperation

		err := rows.Scan(&op.ID, &op.AccountID, &op.Login, &op.Type, &op.Amount, &op.Comment,
			&op.Status, &op.IdempotencyKey, &op.DealID, &op.RequestedBy, &op.ApprovedBy,
			&op.ErrorMessage, &op.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan balance operation: %w", err)
		}

		ops = append(ops, op)
	}

	return ops, rows.Err()
}

// --- Daily P&L ---

// UpsertDailyPnL сохраняет расчет; повторный прогон за тот же день
// перезаписывает значения, дубликаты не плодятся
func (s *Storage) UpsertDailyPnL(rec *models.DailyPnLRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO daily_pnl
		 (day, login, present_equity, equity_prev_day, deposit, withdrawal, net_deposit,
		  credit, promotion, net_credit_promotion, total_ib, rebate, equity_pnl, net_pnl,
		  grp, currency, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(day, login) DO UPDATE SET
		  present_equity = excluded.present_equity,
		  equity_prev_day = excluded.equity_prev_day,
		  deposit = excluded.deposit,
		  withdrawal = excluded.withdrawal,
		  net_deposit = excluded.net_deposit,
		  credit = excluded.credit,
		  promotion = excluded.promotion,
		  net_credit_promotion = excluded.net_credit_promotion,
		  total_ib = excluded.total_ib,
		  rebate = excluded.rebate,
		  equity_pnl = excluded.equity_pnl,
		  net_pnl = excluded.net_pnl,
		  grp = excluded.grp,
		  currency = excluded.currency,
		  updated_at = excluded.updated_at`,
		rec.Day, rec.Login, rec.PresentEquity, rec.EquityPrevDay, rec.Deposit,
		rec.Withdrawal, rec.NetDeposit, rec.Credit, rec.Promotion, rec.NetCreditPromotion,
		rec.TotalIB, rec.Rebate, rec.EquityPnL, rec.NetPnL, rec.Group, rec.Currency,
		time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert daily pnl: %w", err)
	}

	return nil
}

// ListDailyPnL возвращает расчеты за период [from, to] (даты YYYY-MM-DD).
// login == 0 возвращает агрегат организации, login < 0 - все записи.
func (s *Storage) ListDailyPnL(from, to string, login int64) ([]models.DailyPnLRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, day, login, present_equity, equity_prev_day, deposit, withdrawal,
		        net_deposit, credit, promotion, net_credit_promotion, total_ib, rebate,
		        equity_pnl, net_pnl, grp, currency, updated_at
		 FROM daily_pnl
		 WHERE day >= ? AND day <= ? AND (? < 0 OR login = ?)
		 ORDER BY day, login`,
		from, to, login, login)
	if err != nil {
		return nil, fmt.Errorf("list daily pnl: %w", err)
	}
	defer rows.Close()

	var records []models.DailyPnLRecord

	for rows.Next() {
		var r models.DailyPnLRecord

		err := rows.Scan(&r.ID, &r.Day, &r.Login, &r.PresentEquity, &r.EquityPrevDay,
			&r.Deposit, &r.Withdrawal, &r.NetDeposit, &r.Credit, &r.Promotion,
			&r.NetCreditPromotion, &r.TotalIB, &r.Rebate, &r.EquityPnL, &r.NetPnL,
			&r.Group, &r.Currency, &r.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan daily pnl: %w", err)
		}

		records = append(records, r)
	}

	return records, rows.Err()
}

// --- Activity log ---

func (s *Storage) AddLog(userID int64, level, action, message, details string) error {
	_, err := s.db.Exec(
		`INSERT INTO activity_log (user_id, level, action, message, details) VALUES (?, ?, ?, ?, ?)`,
		userID, level, action, message, details)
	if err != nil {
		return fmt.Errorf("add log: %w", err)
	}

	return nil
}

func (s *Storage) GetLogs(limit int) ([]models.ActivityLog, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}

	rows, err := s.db.Query(
		`SELECT id, user_id, level, action, message, details, created_at
		 FROM activity_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	var logs []models.ActivityLog

	for rows.Next() {
		var l models.ActivityLog

		err := rows.Scan(&l.ID, &l.UserID, &l.Level, &l.Action, &l.Message, &l.Details, &l.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}

		logs = append(logs, l)
	}

	return logs, rows.Err()
}
