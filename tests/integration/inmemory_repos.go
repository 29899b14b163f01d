package integration

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nerava/nova/internal/core/domain"
	"github.com/nerava/nova/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Merchant Repo ---

type inMemoryMerchantRepo struct {
	mu        sync.RWMutex
	merchants map[uuid.UUID]*domain.Merchant
}

func newInMemoryMerchantRepo() *inMemoryMerchantRepo {
	return &inMemoryMerchantRepo{merchants: make(map[uuid.UUID]*domain.Merchant)}
}

func (r *inMemoryMerchantRepo) Create(ctx context.Context, m *domain.Merchant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.merchants[m.ID] = &cp
	return nil
}

func (r *inMemoryMerchantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.merchants[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

// --- In-Memory Wallet Repo ---

type inMemoryWalletRepo struct {
	mu      sync.RWMutex
	wallets map[uuid.UUID]*domain.Wallet
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{wallets: make(map[uuid.UUID]*domain.Wallet)}
}

func (r *inMemoryWalletRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Mirrors the SQL ON CONFLICT (owner_type, owner_id) DO NOTHING: a
	// lost first-touch race keeps the winner's row.
	for _, existing := range r.wallets {
		if existing.OwnerType == w.OwnerType && existing.OwnerID == w.OwnerID {
			return nil
		}
	}
	cp := *w
	r.wallets[w.ID] = &cp
	return nil
}

func (r *inMemoryWalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *inMemoryWalletRepo) GetByOwner(ctx context.Context, ownerType domain.WalletOwnerType, ownerID uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.wallets {
		if w.OwnerType == ownerType && w.OwnerID == ownerID {
			cp := *w
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryWalletRepo) GetByPassToken(ctx context.Context, passToken string) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.wallets {
		if w.PassToken == passToken {
			cp := *w
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryWalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	return r.GetByID(ctx, id)
}

func (r *inMemoryWalletRepo) GetByOwnerForUpdate(ctx context.Context, tx pgx.Tx, ownerType domain.WalletOwnerType, ownerID uuid.UUID) (*domain.Wallet, error) {
	return r.GetByOwner(ctx, ownerType, ownerID)
}

func (r *inMemoryWalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balanceCents int64, activityAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return fmt.Errorf("wallet not found: %s", walletID)
	}
	w.BalanceCents = balanceCents
	if activityAt.After(w.LastActivityAt) {
		w.LastActivityAt = activityAt
	}
	w.UpdatedAt = time.Now().UTC()
	return nil
}

// --- In-Memory Transaction Repo ---

type inMemoryTransactionRepo struct {
	mu           sync.RWMutex
	transactions []domain.Transaction
}

func newInMemoryTransactionRepo() *inMemoryTransactionRepo {
	return &inMemoryTransactionRepo{}
}

func (r *inMemoryTransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactions = append(r.transactions, *t)
	return nil
}

func (r *inMemoryTransactionRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Transaction
	for _, t := range r.transactions {
		if t.WalletID == walletID {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// signedSum recomputes a wallet balance from its ledger entries.
func (r *inMemoryTransactionRepo) signedSum(walletID uuid.UUID) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sum int64
	for _, t := range r.transactions {
		if t.WalletID == walletID {
			sum += t.SignedAmount()
		}
	}
	return sum
}

// --- In-Memory Redemption Repo ---

type inMemoryRedemptionRepo struct {
	mu          sync.Mutex
	redemptions map[uuid.UUID]*domain.Redemption
	orderSlots  map[string]bool // merchantID|externalOrderID
}

func newInMemoryRedemptionRepo() *inMemoryRedemptionRepo {
	return &inMemoryRedemptionRepo{
		redemptions: make(map[uuid.UUID]*domain.Redemption),
		orderSlots:  make(map[string]bool),
	}
}

func (r *inMemoryRedemptionRepo) Create(ctx context.Context, tx pgx.Tx, red *domain.Redemption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if red.ExternalOrderID != nil {
		slot := red.MerchantID.String() + "|" + *red.ExternalOrderID
		if r.orderSlots[slot] {
			return ports.ErrConflict
		}
		r.orderSlots[slot] = true
	}
	cp := *red
	r.redemptions[red.ID] = &cp
	return nil
}

func (r *inMemoryRedemptionRepo) ExistsForOrder(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, externalOrderID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orderSlots[merchantID.String()+"|"+externalOrderID], nil
}

func (r *inMemoryRedemptionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Redemption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	red, ok := r.redemptions[id]
	if !ok {
		return nil, nil
	}
	cp := *red
	return &cp, nil
}

// --- In-Memory Fee Period Repo ---

type inMemoryFeePeriodRepo struct {
	mu      sync.Mutex
	periods map[string]*domain.FeePeriod // merchantID|periodStart
}

func newInMemoryFeePeriodRepo() *inMemoryFeePeriodRepo {
	return &inMemoryFeePeriodRepo{periods: make(map[string]*domain.FeePeriod)}
}

func feePeriodKey(merchantID uuid.UUID, periodStart time.Time) string {
	return merchantID.String() + "|" + periodStart.UTC().Format(time.RFC3339)
}

func (r *inMemoryFeePeriodRepo) Accrue(ctx context.Context, merchantID uuid.UUID, periodStart, periodEnd time.Time, novaCents, feeCents int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := feePeriodKey(merchantID, periodStart)
	p, ok := r.periods[key]
	if !ok {
		p = &domain.FeePeriod{
			ID:          uuid.New(),
			MerchantID:  merchantID,
			PeriodStart: periodStart,
			PeriodEnd:   periodEnd,
			Status:      domain.FeePeriodAccruing,
			CreatedAt:   time.Now().UTC(),
		}
		r.periods[key] = p
	}
	p.NovaRedeemedCents += novaCents
	p.FeeCents += feeCents
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *inMemoryFeePeriodRepo) GetByMerchantPeriod(ctx context.Context, merchantID uuid.UUID, periodStart time.Time) (*domain.FeePeriod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.periods[feePeriodKey(merchantID, periodStart)]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// --- In-Memory Registration Repo ---

type inMemoryRegistrationRepo struct {
	mu            sync.Mutex
	registrations map[string]*domain.PassRegistration // device|passType|serial
	wallets       *inMemoryWalletRepo                 // activity timestamps for ListUpdatedSince
}

func newInMemoryRegistrationRepo(wallets *inMemoryWalletRepo) *inMemoryRegistrationRepo {
	return &inMemoryRegistrationRepo{
		registrations: make(map[string]*domain.PassRegistration),
		wallets:       wallets,
	}
}

func regKey(device, passType, serial string) string {
	return strings.Join([]string{device, passType, serial}, "|")
}

func (r *inMemoryRegistrationRepo) Upsert(ctx context.Context, reg *domain.PassRegistration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := regKey(reg.DeviceLibraryID, reg.PassTypeID, reg.SerialNumber)
	existing, ok := r.registrations[key]
	if ok {
		wasActive := existing.Active
		existing.PushToken = reg.PushToken
		existing.Active = true
		existing.LastSeenAt = reg.LastSeenAt
		return !wasActive, nil
	}
	cp := *reg
	r.registrations[key] = &cp
	return true, nil
}

func (r *inMemoryRegistrationRepo) Deactivate(ctx context.Context, deviceLibraryID, passTypeID, serialNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg, ok := r.registrations[regKey(deviceLibraryID, passTypeID, serialNumber)]; ok {
		reg.Active = false
		reg.LastSeenAt = time.Now().UTC()
	}
	return nil
}

func (r *inMemoryRegistrationRepo) ListActiveByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.PassRegistration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.PassRegistration
	for _, reg := range r.registrations {
		if reg.Active && reg.WalletID == walletID {
			result = append(result, *reg)
		}
	}
	return result, nil
}

func (r *inMemoryRegistrationRepo) ListUpdatedSince(ctx context.Context, deviceLibraryID, passTypeID string, since time.Time) ([]ports.SerialUpdate, error) {
	r.mu.Lock()
	regs := make([]domain.PassRegistration, 0)
	for _, reg := range r.registrations {
		if reg.Active && reg.DeviceLibraryID == deviceLibraryID && reg.PassTypeID == passTypeID {
			regs = append(regs, *reg)
		}
	}
	r.mu.Unlock()

	var result []ports.SerialUpdate
	for _, reg := range regs {
		w, err := r.wallets.GetByID(ctx, reg.WalletID)
		if err != nil || w == nil {
			continue
		}
		if w.LastActivityAt.Truncate(time.Second).After(since) {
			result = append(result, ports.SerialUpdate{
				SerialNumber: reg.SerialNumber,
				UpdatedAt:    w.LastActivityAt,
			})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.Before(result[j].UpdatedAt)
	})
	return result, nil
}

func (r *inMemoryRegistrationRepo) HasRegistrations(ctx context.Context, deviceLibraryID, passTypeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range r.registrations {
		if reg.Active && reg.DeviceLibraryID == deviceLibraryID && reg.PassTypeID == passTypeID {
			return true, nil
		}
	}
	return false, nil
}

// --- In-Memory Transactor ---

// inMemoryTransactor serializes "transactions" with a single mutex, standing
// in for the row locks the SQL layer takes. Commit and Rollback both release;
// the ledger calls Rollback after Commit, so release must be idempotent.
type inMemoryTransactor struct {
	mu sync.Mutex
}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	tx := &lockedTx{}
	tx.release = func() { t.mu.Unlock() }
	return tx, nil
}

// lockedTx is a pgx.Tx stand-in that releases the transactor lock once.
type lockedTx struct {
	once    sync.Once
	release func()
}

func (t *lockedTx) Commit(ctx context.Context) error {
	t.once.Do(t.release)
	return nil
}

func (t *lockedTx) Rollback(ctx context.Context) error {
	t.once.Do(t.release)
	return nil
}

func (t *lockedTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *lockedTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *lockedTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *lockedTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *lockedTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *lockedTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *lockedTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *lockedTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *lockedTx) Conn() *pgx.Conn { return nil }
