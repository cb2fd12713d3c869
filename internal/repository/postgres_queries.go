package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/xpense/backend/internal/models"
)

const (
	accountColumns = `SELECT id, type, amount, currency_code, account_name FROM accounts`
	expenseColumns = `SELECT id, date, amount, category_id, account_id, is_earning FROM expenses`
	debtColumns    = `SELECT id, debt_name, amount, currency, due_date FROM debts`
	rateColumns    = `SELECT from_currency, to_currency, rate FROM currency_rates`
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Type, &a.Amount, &a.CurrencyCode, &a.Name)
	return a, err
}

func scanExpense(row rowScanner) (models.Expense, error) {
	var e models.Expense
	err := row.Scan(&e.ID, &e.Date, &e.Amount, &e.CategoryID, &e.AccountID, &e.IsEarning)
	return e, err
}

func scanDebt(row rowScanner) (models.Debt, error) {
	var d models.Debt
	err := row.Scan(&d.ID, &d.Name, &d.Amount, &d.CurrencyCode, &d.DueDate)
	return d, err
}

func scanRate(row rowScanner) (models.CurrencyRate, error) {
	var r models.CurrencyRate
	err := row.Scan(&r.From, &r.To, &r.Rate)
	return r, err
}

// queryList runs query and scans every row with scan.
func queryList[T any](ctx context.Context, db dbtx, table Table, scan func(rowScanner) (T, error), query string, args ...interface{}) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError(table, err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(table, err)
	}
	return out, nil
}

// Accounts

func (q *pgQueries) GetAccount(ctx context.Context, id int64) (models.Account, error) {
	account, err := scanAccount(q.db.QueryRowContext(ctx, q.forUpdate(accountColumns+` WHERE id = $1`), id))
	if err != nil {
		return models.Account{}, translateError(TableAccounts, err)
	}
	return account, nil
}

func (q *pgQueries) GetAccountsForType(ctx context.Context, t models.AccountType) ([]models.Account, error) {
	return queryList(ctx, q.db, TableAccounts, scanAccount, accountColumns+` WHERE type = $1 ORDER BY id`, string(t))
}

func (q *pgQueries) GetAllAccounts(ctx context.Context) ([]models.Account, error) {
	return queryList(ctx, q.db, TableAccounts, scanAccount, accountColumns+` ORDER BY id`)
}

func (q *pgQueries) InsertAccount(ctx context.Context, a models.Account) (int64, error) {
	return q.insertReturningID(ctx, TableAccounts, `
		INSERT INTO accounts (type, amount, currency_code, account_name)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		string(a.Type), a.Amount, a.CurrencyCode, a.Name)
}

func (q *pgQueries) UpdateAccountAmount(ctx context.Context, id int64, amount decimal.Decimal) error {
	return q.execOne(ctx, TableAccounts, `UPDATE accounts SET amount = $1 WHERE id = $2`, amount, id)
}

func (q *pgQueries) DeleteAccount(ctx context.Context, id int64) error {
	if err := q.execOne(ctx, TableAccounts, `DELETE FROM accounts WHERE id = $1`, id); err != nil {
		return err
	}
	q.touch(TableExpenses)
	return nil
}

func (q *pgQueries) DeleteAllAccounts(ctx context.Context) error {
	if _, err := q.exec(ctx, TableAccounts, `DELETE FROM accounts`); err != nil {
		return err
	}
	q.touch(TableExpenses)
	return nil
}

// Total amount

func (q *pgQueries) GetTotalAmount(ctx context.Context) (models.TotalAmount, error) {
	var total models.TotalAmount
	err := q.db.QueryRowContext(ctx, q.forUpdate(`SELECT id, amount FROM total_amount WHERE id = $1`), models.TotalAmountID).
		Scan(&total.ID, &total.Amount)
	if err != nil {
		return models.TotalAmount{}, translateError(TableTotalAmount, err)
	}
	return total, nil
}

// EnsureTotalAmount creates the total row at zero. A concurrent first insert
// blocks on the key until the other unit of work ends, then does nothing.
func (q *pgQueries) EnsureTotalAmount(ctx context.Context) error {
	_, err := q.exec(ctx, TableTotalAmount, `
		INSERT INTO total_amount (id, amount) VALUES ($1, 0)
		ON CONFLICT (id) DO NOTHING`, models.TotalAmountID)
	return err
}

func (q *pgQueries) UpdateTotalAmount(ctx context.Context, amount decimal.Decimal) error {
	return q.execOne(ctx, TableTotalAmount, `UPDATE total_amount SET amount = $1 WHERE id = $2`, amount, models.TotalAmountID)
}

// Expenses

func (q *pgQueries) GetExpense(ctx context.Context, id int64) (models.Expense, error) {
	expense, err := scanExpense(q.db.QueryRowContext(ctx, q.forUpdate(expenseColumns+` WHERE id = $1`), id))
	if err != nil {
		return models.Expense{}, translateError(TableExpenses, err)
	}
	return expense, nil
}

func (q *pgQueries) ListExpenses(ctx context.Context, f ExpenseFilter) ([]models.Expense, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.From != nil {
		add("date >= $%d", *f.From)
	}
	if f.To != nil {
		add("date <= $%d", *f.To)
	}
	if f.CategoryID != nil {
		add("category_id = $%d", *f.CategoryID)
	}
	if f.AccountID != nil {
		add("account_id = $%d", *f.AccountID)
	}
	if f.IsEarning != nil {
		add("is_earning = $%d", *f.IsEarning)
	}

	query := expenseColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date ASC, id ASC"

	return queryList(ctx, q.db, TableExpenses, scanExpense, q.forUpdate(query), args...)
}

func (q *pgQueries) InsertExpense(ctx context.Context, e models.Expense) (int64, error) {
	return q.insertReturningID(ctx, TableExpenses, `
		INSERT INTO expenses (date, amount, category_id, account_id, is_earning)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		e.Date, e.Amount, e.CategoryID, e.AccountID, e.IsEarning)
}

func (q *pgQueries) DeleteExpense(ctx context.Context, id int64) error {
	return q.execOne(ctx, TableExpenses, `DELETE FROM expenses WHERE id = $1`, id)
}

func (q *pgQueries) DeleteExpenses(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := q.exec(ctx, TableExpenses, `DELETE FROM expenses WHERE id = ANY($1)`, pq.Array(ids))
	return err
}

// Categories

func (q *pgQueries) GetCategories(ctx context.Context) ([]models.Category, error) {
	return queryList(ctx, q.db, TableCategories, func(row rowScanner) (models.Category, error) {
		var c models.Category
		err := row.Scan(&c.ID, &c.Name)
		return c, err
	}, `SELECT id, category_name FROM categories ORDER BY id`)
}

func (q *pgQueries) InsertCategory(ctx context.Context, c models.Category) (int64, error) {
	return q.insertReturningID(ctx, TableCategories, `INSERT INTO categories (category_name) VALUES ($1) RETURNING id`, c.Name)
}

func (q *pgQueries) DeleteCategory(ctx context.Context, id int64) error {
	return q.execOne(ctx, TableCategories, `DELETE FROM categories WHERE id = $1`, id)
}

// Debts

func (q *pgQueries) ListDebts(ctx context.Context, from, to *time.Time) ([]models.Debt, error) {
	query := debtColumns
	var args []interface{}
	switch {
	case from != nil && to != nil:
		query += ` WHERE due_date >= $1 AND due_date <= $2`
		args = append(args, *from, *to)
	case from != nil:
		query += ` WHERE due_date >= $1`
		args = append(args, *from)
	case to != nil:
		query += ` WHERE due_date <= $1`
		args = append(args, *to)
	}
	query += ` ORDER BY due_date ASC, id ASC`
	return queryList(ctx, q.db, TableDebts, scanDebt, query, args...)
}

func (q *pgQueries) InsertDebt(ctx context.Context, d models.Debt) (int64, error) {
	return q.insertReturningID(ctx, TableDebts, `
		INSERT INTO debts (debt_name, amount, currency, due_date)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		d.Name, d.Amount, d.CurrencyCode, d.DueDate)
}

func (q *pgQueries) DeleteDebt(ctx context.Context, id int64) error {
	return q.execOne(ctx, TableDebts, `DELETE FROM debts WHERE id = $1`, id)
}

func (q *pgQueries) DeleteAllDebts(ctx context.Context) error {
	_, err := q.exec(ctx, TableDebts, `DELETE FROM debts`)
	return err
}

// Currency rates

func (q *pgQueries) UpsertRate(ctx context.Context, r models.CurrencyRate) error {
	_, err := q.exec(ctx, TableCurrencyRates, `
		INSERT INTO currency_rates (from_currency, to_currency, rate)
		VALUES ($1, $2, $3)
		ON CONFLICT (from_currency, to_currency) DO UPDATE SET rate = EXCLUDED.rate`,
		r.From, r.To, r.Rate)
	return err
}

func (q *pgQueries) GetRate(ctx context.Context, from, to string) (models.CurrencyRate, error) {
	rate, err := scanRate(q.db.QueryRowContext(ctx, rateColumns+` WHERE from_currency = $1 AND to_currency = $2`, from, to))
	if err != nil {
		return models.CurrencyRate{}, translateError(TableCurrencyRates, err)
	}
	return rate, nil
}

func (q *pgQueries) ListRatesFrom(ctx context.Context, base string) ([]models.CurrencyRate, error) {
	return queryList(ctx, q.db, TableCurrencyRates, scanRate, rateColumns+` WHERE from_currency = $1 ORDER BY to_currency`, base)
}
