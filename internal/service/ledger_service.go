package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/nerava/nova/internal/core/domain"
	"github.com/nerava/nova/internal/core/ports"
	"github.com/nerava/nova/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// LedgerServiceImpl implements ports.LedgerService. The redemption path is
// the only operation requiring strict serialization: it relies on the
// wallet row lock and the (merchant, external_order_id) unique constraint,
// so it stays correct across multiple service processes.
type LedgerServiceImpl struct {
	walletRepo     ports.WalletRepository
	merchantRepo   ports.MerchantRepository
	txRepo         ports.TransactionRepository
	redemptionRepo ports.RedemptionRepository
	feeSvc         ports.FeeAccrualService
	orderLookup    ports.OrderLookup     // nil = trust declared totals
	pushQueue      ports.PushSignalQueue // nil = no push signalling
	secondary      ports.SecondarySink   // nil = no secondary platform
	encSvc         ports.EncryptionService
	transactor     ports.DBTransactor
	log            zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	walletRepo ports.WalletRepository,
	merchantRepo ports.MerchantRepository,
	txRepo ports.TransactionRepository,
	redemptionRepo ports.RedemptionRepository,
	feeSvc ports.FeeAccrualService,
	orderLookup ports.OrderLookup,
	pushQueue ports.PushSignalQueue,
	secondary ports.SecondarySink,
	encSvc ports.EncryptionService,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		walletRepo:     walletRepo,
		merchantRepo:   merchantRepo,
		txRepo:         txRepo,
		redemptionRepo: redemptionRepo,
		feeSvc:         feeSvc,
		orderLookup:    orderLookup,
		pushQueue:      pushQueue,
		secondary:      secondary,
		encSvc:         encSvc,
		transactor:     transactor,
		log:            log,
	}
}

// Grant credits a wallet unconditionally, creating it lazily on first
// access. One transaction row and the balance write share a database
// transaction and timestamp.
func (s *LedgerServiceImpl) Grant(ctx context.Context, req ports.GrantRequest) (*domain.Transaction, error) {
	if req.AmountCents <= 0 {
		return nil, apperror.Validation("grant amount must be positive")
	}
	if !req.Kind.Valid() || req.Kind.Sign() < 0 {
		return nil, apperror.Validation("grant kind must be a credit")
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	wallet, err := s.getOrCreateWalletForUpdate(ctx, dbTx, req.OwnerType, req.OwnerID, now)
	if err != nil {
		return nil, err
	}

	txn := &domain.Transaction{
		ID:          uuid.New(),
		Kind:        req.Kind,
		WalletID:    wallet.ID,
		AmountCents: req.AmountCents,
		SessionID:   req.SessionID,
		EventID:     req.EventID,
		Metadata:    req.Metadata,
		CreatedAt:   now,
	}

	newBalance := wallet.BalanceCents + req.AmountCents
	if err := s.walletRepo.UpdateBalance(ctx, dbTx, wallet.ID, newBalance, now); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update balance: %w", err))
	}
	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create transaction: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	wallet.BalanceCents = newBalance
	wallet.LastActivityAt = now
	s.signalWallet(ctx, wallet)

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("wallet_id", wallet.ID.String()).
		Str("kind", string(req.Kind)).
		Int64("amount_cents", req.AmountCents).
		Msg("nova granted")

	return txn, nil
}

// Redeem is the critical path: it moves Nova from a driver to a merchant
// with exactly-once semantics per (merchant, external order id).
func (s *LedgerServiceImpl) Redeem(ctx context.Context, req ports.RedeemRequest) (*ports.RedeemResult, error) {
	if req.OrderTotalCents <= 0 {
		return nil, apperror.ErrInvalidOrderTotal()
	}

	merchant, err := s.merchantRepo.GetByID(ctx, req.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get merchant: %w", err))
	}
	if merchant == nil {
		return nil, apperror.ErrMerchantNotFound()
	}
	if !merchant.IsActive() {
		return nil, apperror.ErrNoDiscountAvailable()
	}

	// Verify the declared total against the processor when possible. This
	// fails closed: a lookup error aborts before any mutation.
	orderTotal := req.OrderTotalCents
	if req.ExternalOrderID != nil && merchant.HasProcessor() && s.orderLookup != nil {
		authoritative, err := s.orderLookup.LookupOrder(ctx, merchant, *req.ExternalOrderID)
		if err != nil {
			return nil, apperror.ErrUpstreamOrderLookup(err)
		}
		if authoritative <= 0 {
			return nil, apperror.ErrInvalidOrderTotal()
		}
		orderTotal = authoritative
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// A replayed order must be reported as already redeemed no matter what
	// state the wallet has drained to since; the bound checks below would
	// otherwise misreport it as an insufficient balance. The insert further
	// down still closes the race between two in-flight firsts.
	if req.ExternalOrderID != nil {
		taken, err := s.redemptionRepo.ExistsForOrder(ctx, dbTx, merchant.ID, *req.ExternalOrderID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("check redemption slot: %w", err))
		}
		if taken {
			return nil, apperror.ErrOrderAlreadyRedeemed()
		}
	}

	driverWallet, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, req.DriverWalletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock driver wallet: %w", err))
	}
	if driverWallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	spend := minInt64(merchant.PerkAmountCents, driverWallet.BalanceCents, orderTotal)
	if req.NovaRequestedCents > 0 && req.NovaRequestedCents < spend {
		spend = req.NovaRequestedCents
	}
	if spend <= 0 {
		if merchant.PerkAmountCents <= 0 {
			return nil, apperror.ErrNoDiscountAvailable()
		}
		return nil, apperror.ErrInsufficientNova()
	}

	now := time.Now().UTC()
	redemption := &domain.Redemption{
		ID:              uuid.New(),
		MerchantID:      merchant.ID,
		DriverWalletID:  driverWallet.ID,
		PassTokenUsed:   req.PassTokenUsed,
		OrderTotalCents: orderTotal,
		DiscountCents:   spend,
		NovaSpentCents:  spend,
		ExternalOrderID: req.ExternalOrderID,
		CreatedAt:       now,
	}

	// Reserve the (merchant, external order id) slot before any balance
	// mutation. A conflict means this purchase was already redeemed.
	if err := s.redemptionRepo.Create(ctx, dbTx, redemption); err != nil {
		if errorsIsConflict(err) {
			return nil, apperror.ErrOrderAlreadyRedeemed()
		}
		return nil, apperror.InternalError(fmt.Errorf("create redemption: %w", err))
	}

	remaining := driverWallet.BalanceCents - spend
	if err := s.walletRepo.UpdateBalance(ctx, dbTx, driverWallet.ID, remaining, now); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("debit driver wallet: %w", err))
	}

	merchantWallet, err := s.getOrCreateWalletForUpdate(ctx, dbTx, domain.WalletOwnerMerchant, merchant.ID, now)
	if err != nil {
		return nil, err
	}
	if err := s.walletRepo.UpdateBalance(ctx, dbTx, merchantWallet.ID, merchantWallet.BalanceCents+spend, now); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("credit merchant wallet: %w", err))
	}

	debit := &domain.Transaction{
		ID:           uuid.New(),
		Kind:         domain.KindDriverRedeem,
		WalletID:     driverWallet.ID,
		MerchantID:   &merchant.ID,
		AmountCents:  spend,
		RedemptionID: &redemption.ID,
		CreatedAt:    now,
	}
	credit := &domain.Transaction{
		ID:           uuid.New(),
		Kind:         domain.KindMerchantEarn,
		WalletID:     merchantWallet.ID,
		MerchantID:   &merchant.ID,
		AmountCents:  spend,
		RedemptionID: &redemption.ID,
		CreatedAt:    now,
	}
	if err := s.txRepo.Create(ctx, dbTx, debit); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create debit transaction: %w", err))
	}
	if err := s.txRepo.Create(ctx, dbTx, credit); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create credit transaction: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	// Post-commit: fee accrual is an atomic upsert on its own; losing it on
	// a crash never loses a ledger write.
	if err := s.feeSvc.Accrue(ctx, merchant.ID, now, spend); err != nil {
		s.log.Error().Err(err).Str("merchant_id", merchant.ID.String()).Msg("fee accrual failed")
	}

	driverWallet.BalanceCents = remaining
	driverWallet.LastActivityAt = now
	s.signalWallet(ctx, driverWallet)

	s.log.Info().
		Str("redemption_id", redemption.ID.String()).
		Str("merchant_id", merchant.ID.String()).
		Str("driver_wallet_id", driverWallet.ID.String()).
		Int64("discount_cents", spend).
		Int64("remaining_cents", remaining).
		Msg("redemption processed")

	return &ports.RedeemResult{
		RedemptionID:          redemption.ID,
		DiscountCents:         spend,
		RemainingBalanceCents: remaining,
	}, nil
}

// GetBalance returns the wallet's current balance.
func (s *LedgerServiceImpl) GetBalance(ctx context.Context, walletID uuid.UUID) (int64, error) {
	wallet, err := s.walletRepo.GetByID(ctx, walletID)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return 0, apperror.ErrWalletNotFound()
	}
	return wallet.BalanceCents, nil
}

// GetHistory returns the wallet's ledger entries, newest first.
func (s *LedgerServiceImpl) GetHistory(ctx context.Context, walletID uuid.UUID, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	wallet, err := s.walletRepo.GetByID(ctx, walletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	txns, err := s.txRepo.ListByWallet(ctx, walletID, limit)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list transactions: %w", err))
	}
	return txns, nil
}

// getOrCreateWalletForUpdate locks the owner's wallet, creating it lazily
// with a fresh pass token and sealed per-pass secret on first access.
func (s *LedgerServiceImpl) getOrCreateWalletForUpdate(ctx context.Context, dbTx pgx.Tx, ownerType domain.WalletOwnerType, ownerID uuid.UUID, now time.Time) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByOwnerForUpdate(ctx, dbTx, ownerType, ownerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet != nil {
		return wallet, nil
	}

	secret, err := randomToken(32)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate pass secret: %w", err))
	}
	secretEnc, err := s.encSvc.Encrypt(secret)
	if err != nil {
		return nil, apperror.ErrEncryptionKeyUnavailable(fmt.Errorf("seal pass secret: %w", err))
	}
	passToken, err := randomToken(16)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate pass token: %w", err))
	}

	wallet = &domain.Wallet{
		ID:             uuid.New(),
		OwnerType:      ownerType,
		OwnerID:        ownerID,
		BalanceCents:   0,
		PassToken:      passToken,
		PassSecretEnc:  secretEnc,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.walletRepo.Create(ctx, dbTx, wallet); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create wallet: %w", err))
	}

	// The insert is ON CONFLICT DO NOTHING on the owner key, so a lost
	// first-touch race leaves the winner's row in place. Re-select under
	// lock to land on whichever row exists now.
	wallet, err = s.walletRepo.GetByOwnerForUpdate(ctx, dbTx, ownerType, ownerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("relock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.InternalError(fmt.Errorf("wallet vanished after create: %s/%s", ownerType, ownerID))
	}
	return wallet, nil
}

// signalWallet enqueues a push signal and updates the secondary platform.
// Both are best-effort: failures are logged and never surfaced.
func (s *LedgerServiceImpl) signalWallet(ctx context.Context, wallet *domain.Wallet) {
	if s.pushQueue != nil {
		if err := s.pushQueue.Enqueue(ctx, wallet.ID); err != nil {
			s.log.Warn().Err(err).Str("wallet_id", wallet.ID.String()).Msg("push signal enqueue failed")
		}
	}
	if s.secondary != nil {
		if err := s.secondary.UpdateObject(ctx, wallet); err != nil {
			s.log.Warn().Err(err).Str("wallet_id", wallet.ID.String()).Msg("secondary platform update failed")
		}
	}
}

func minInt64(vals ...int64) int64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func errorsIsConflict(err error) bool {
	return errors.Is(err, ports.ErrConflict)
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
