package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xpense/backend/internal/models"
)

// MemoryStore keeps the ledger in process memory. Each unit of work runs on a
// private copy of the tables that replaces the committed state on success.
// Writers are serialized. The copy makes every write O(size of the ledger),
// so this store suits tests and small single-user ledgers; use Postgres for
// anything larger.
type MemoryStore struct {
	writeMu  sync.Mutex
	mu       sync.RWMutex
	state    *memState
	notifier *Notifier
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state:    newMemState(),
		notifier: NewNotifier(),
	}
}

func (s *MemoryStore) StorageType() string {
	return "memory"
}

func (s *MemoryStore) RunAtomically(ctx context.Context, fn func(q Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	working := s.state.clone()
	s.mu.RUnlock()

	q := &memQueries{state: working, touched: touchSet{}}
	if err := fn(q); err != nil {
		return contextErr(ctx, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = working
	s.mu.Unlock()

	s.notifier.Publish(q.touched.tables()...)
	return nil
}

func (s *MemoryStore) View(ctx context.Context, fn func(r Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	committed := s.state
	s.mu.RUnlock()

	// committed is never mutated after publication, only replaced.
	if err := fn(&memQueries{state: committed}); err != nil {
		return contextErr(ctx, err)
	}
	return nil
}

func (s *MemoryStore) Subscribe(tables ...Table) *Subscription {
	return s.notifier.Subscribe(tables...)
}

type memState struct {
	accounts   map[int64]models.Account
	total      *models.TotalAmount
	categories map[int64]models.Category
	expenses   map[int64]models.Expense
	debts      map[int64]models.Debt
	rates      map[models.Pair]models.CurrencyRate
	nextID     map[Table]int64
}

func newMemState() *memState {
	return &memState{
		accounts:   map[int64]models.Account{},
		categories: map[int64]models.Category{},
		expenses:   map[int64]models.Expense{},
		debts:      map[int64]models.Debt{},
		rates:      map[models.Pair]models.CurrencyRate{},
		nextID:     map[Table]int64{},
	}
}

func (st *memState) clone() *memState {
	c := &memState{
		accounts:   cloneMap(st.accounts),
		categories: cloneMap(st.categories),
		expenses:   cloneMap(st.expenses),
		debts:      cloneMap(st.debts),
		rates:      cloneMap(st.rates),
		nextID:     cloneMap(st.nextID),
	}
	if st.total != nil {
		total := *st.total
		c.total = &total
	}
	return c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedValues[V any](m map[int64]V) []V {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]V, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

type memQueries struct {
	state   *memState
	touched touchSet
}

func (q *memQueries) nextID(table Table) int64 {
	q.state.nextID[table]++
	return q.state.nextID[table]
}

func (q *memQueries) touch(tables ...Table) {
	if q.touched != nil {
		q.touched.touch(tables...)
	}
}

// Accounts

func (q *memQueries) GetAccount(ctx context.Context, id int64) (models.Account, error) {
	if err := ctx.Err(); err != nil {
		return models.Account{}, err
	}
	a, ok := q.state.accounts[id]
	if !ok {
		return models.Account{}, ErrNotFound
	}
	return a, nil
}

func (q *memQueries) GetAccountsForType(ctx context.Context, t models.AccountType) ([]models.Account, error) {
	all, err := q.GetAllAccounts(ctx)
	if err != nil {
		return nil, err
	}
	out := []models.Account{}
	for _, a := range all {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out, nil
}

func (q *memQueries) GetAllAccounts(ctx context.Context) ([]models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return sortedValues(q.state.accounts), nil
}

func (q *memQueries) InsertAccount(ctx context.Context, a models.Account) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	a.ID = q.nextID(TableAccounts)
	q.state.accounts[a.ID] = a
	q.touch(TableAccounts)
	return a.ID, nil
}

func (q *memQueries) UpdateAccountAmount(ctx context.Context, id int64, amount decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a, ok := q.state.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.Amount = amount
	q.state.accounts[id] = a
	q.touch(TableAccounts)
	return nil
}

func (q *memQueries) DeleteAccount(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := q.state.accounts[id]; !ok {
		return ErrNotFound
	}
	delete(q.state.accounts, id)
	for eid, e := range q.state.expenses {
		if e.AccountID == id {
			delete(q.state.expenses, eid)
		}
	}
	q.touch(TableAccounts, TableExpenses)
	return nil
}

func (q *memQueries) DeleteAllAccounts(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.state.accounts = map[int64]models.Account{}
	q.state.expenses = map[int64]models.Expense{}
	q.touch(TableAccounts, TableExpenses)
	return nil
}

// Total amount

func (q *memQueries) GetTotalAmount(ctx context.Context) (models.TotalAmount, error) {
	if err := ctx.Err(); err != nil {
		return models.TotalAmount{}, err
	}
	if q.state.total == nil {
		return models.TotalAmount{}, ErrNotFound
	}
	return *q.state.total, nil
}

func (q *memQueries) EnsureTotalAmount(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if q.state.total != nil {
		return nil
	}
	q.state.total = &models.TotalAmount{ID: models.TotalAmountID, Amount: decimal.Zero}
	q.touch(TableTotalAmount)
	return nil
}

func (q *memQueries) UpdateTotalAmount(ctx context.Context, amount decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if q.state.total == nil {
		return ErrNotFound
	}
	q.state.total = &models.TotalAmount{ID: models.TotalAmountID, Amount: amount}
	q.touch(TableTotalAmount)
	return nil
}

// Expenses

func (q *memQueries) GetExpense(ctx context.Context, id int64) (models.Expense, error) {
	if err := ctx.Err(); err != nil {
		return models.Expense{}, err
	}
	e, ok := q.state.expenses[id]
	if !ok {
		return models.Expense{}, ErrNotFound
	}
	return e, nil
}

func (q *memQueries) ListExpenses(ctx context.Context, f ExpenseFilter) ([]models.Expense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []models.Expense{}
	for _, e := range q.state.expenses {
		if f.From != nil && e.Date.Before(*f.From) {
			continue
		}
		if f.To != nil && e.Date.After(*f.To) {
			continue
		}
		if f.CategoryID != nil && e.CategoryID != *f.CategoryID {
			continue
		}
		if f.AccountID != nil && e.AccountID != *f.AccountID {
			continue
		}
		if f.IsEarning != nil && e.IsEarning != *f.IsEarning {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (q *memQueries) InsertExpense(ctx context.Context, e models.Expense) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if _, ok := q.state.accounts[e.AccountID]; !ok {
		return 0, &ConstraintError{
			Table:      TableExpenses,
			Constraint: "expenses_account_id_fkey",
			Detail:     fmt.Sprintf("account %d does not exist", e.AccountID),
		}
	}
	if _, ok := q.state.categories[e.CategoryID]; !ok {
		return 0, &ConstraintError{
			Table:      TableExpenses,
			Constraint: "expenses_category_id_fkey",
			Detail:     fmt.Sprintf("category %d does not exist", e.CategoryID),
		}
	}
	e.ID = q.nextID(TableExpenses)
	q.state.expenses[e.ID] = e
	q.touch(TableExpenses)
	return e.ID, nil
}

func (q *memQueries) DeleteExpense(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := q.state.expenses[id]; !ok {
		return ErrNotFound
	}
	delete(q.state.expenses, id)
	q.touch(TableExpenses)
	return nil
}

func (q *memQueries) DeleteExpenses(ctx context.Context, ids []int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		delete(q.state.expenses, id)
	}
	q.touch(TableExpenses)
	return nil
}

// Categories

func (q *memQueries) GetCategories(ctx context.Context) ([]models.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return sortedValues(q.state.categories), nil
}

func (q *memQueries) InsertCategory(ctx context.Context, c models.Category) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.ID = q.nextID(TableCategories)
	q.state.categories[c.ID] = c
	q.touch(TableCategories)
	return c.ID, nil
}

func (q *memQueries) DeleteCategory(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := q.state.categories[id]; !ok {
		return ErrNotFound
	}
	for _, e := range q.state.expenses {
		if e.CategoryID == id {
			return &ConstraintError{
				Table:      TableExpenses,
				Constraint: "expenses_category_id_fkey",
				Detail:     fmt.Sprintf("category %d is still referenced", id),
			}
		}
	}
	delete(q.state.categories, id)
	q.touch(TableCategories)
	return nil
}

// Debts

func (q *memQueries) ListDebts(ctx context.Context, from, to *time.Time) ([]models.Debt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []models.Debt{}
	for _, d := range q.state.debts {
		if from != nil && d.DueDate.Before(*from) {
			continue
		}
		if to != nil && d.DueDate.After(*to) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (q *memQueries) InsertDebt(ctx context.Context, d models.Debt) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	d.ID = q.nextID(TableDebts)
	q.state.debts[d.ID] = d
	q.touch(TableDebts)
	return d.ID, nil
}

func (q *memQueries) DeleteDebt(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := q.state.debts[id]; !ok {
		return ErrNotFound
	}
	delete(q.state.debts, id)
	q.touch(TableDebts)
	return nil
}

func (q *memQueries) DeleteAllDebts(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.state.debts = map[int64]models.Debt{}
	q.touch(TableDebts)
	return nil
}

// Currency rates

func (q *memQueries) UpsertRate(ctx context.Context, r models.CurrencyRate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.state.rates[r.Pair()] = r
	q.touch(TableCurrencyRates)
	return nil
}

func (q *memQueries) GetRate(ctx context.Context, from, to string) (models.CurrencyRate, error) {
	if err := ctx.Err(); err != nil {
		return models.CurrencyRate{}, err
	}
	r, ok := q.state.rates[models.Pair{From: from, To: to}]
	if !ok {
		return models.CurrencyRate{}, ErrNotFound
	}
	return r, nil
}

func (q *memQueries) ListRatesFrom(ctx context.Context, base string) ([]models.CurrencyRate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []models.CurrencyRate{}
	for pair, r := range q.state.rates {
		if pair.From == base {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].To < out[j].To })
	return out, nil
}
