package ports

import (
	"context"
	"time"

	"github.com/nerava/nova/internal/core/domain"

	"github.com/google/uuid"
)

// EncryptionService handles AES-256-GCM encryption/decryption of secrets at
// rest. Decrypt tries every configured key in order (rotation support).
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload []byte) string
	Verify(secretKey string, payload []byte, signature string) bool
}

// HashService handles merchant API secret hashing (Argon2id).
type HashService interface {
	Hash(secret string) (string, error)
	Verify(secret string, hash string) (bool, error)
}

// TokenService handles merchant JWT operations.
type TokenService interface {
	Generate(merchantID uuid.UUID) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	MerchantID uuid.UUID
}

// PushSignalQueue decouples ledger commits from push delivery. Enqueue
// failures are logged and dropped by callers; the polling protocol is the
// system of record.
type PushSignalQueue interface {
	Enqueue(ctx context.Context, walletID uuid.UUID) error
	// Dequeue blocks up to the implementation's poll interval; returns
	// uuid.Nil with nil error when nothing arrived.
	Dequeue(ctx context.Context) (uuid.UUID, error)
}

// OrderLookup fetches the authoritative order total from the merchant's
// OAuth-connected payment processor. Calls carry a bounded timeout and fail
// closed: errors abort the redemption before any mutation.
type OrderLookup interface {
	LookupOrder(ctx context.Context, merchant *domain.Merchant, externalOrderID string) (int64, error)
}

// SecondarySink pushes a wallet's state to the secondary wallet platform.
// Fire-and-forget: failures must never surface to the ledger caller.
type SecondarySink interface {
	UpdateObject(ctx context.Context, wallet *domain.Wallet) error
}

// --- Service Ports (Business Logic) ---

// GrantRequest holds validated input for a credit.
type GrantRequest struct {
	OwnerType   domain.WalletOwnerType
	OwnerID     uuid.UUID
	AmountCents int64
	Kind        domain.TransactionKind
	SessionID   *string
	EventID     *string
	Metadata    *string
}

// RedeemRequest holds validated input for the redemption path.
type RedeemRequest struct {
	MerchantID         uuid.UUID
	DriverWalletID     uuid.UUID
	PassTokenUsed      *string
	OrderTotalCents    int64
	NovaRequestedCents int64 // optional client cap; 0 = no cap
	ExternalOrderID    *string
}

// RedeemResult is what the redemption caller gets back.
type RedeemResult struct {
	RedemptionID          uuid.UUID
	DiscountCents         int64
	RemainingBalanceCents int64
}

// LedgerService is the Nova ledger engine.
type LedgerService interface {
	Grant(ctx context.Context, req GrantRequest) (*domain.Transaction, error)
	Redeem(ctx context.Context, req RedeemRequest) (*RedeemResult, error)
	GetBalance(ctx context.Context, walletID uuid.UUID) (int64, error)
	GetHistory(ctx context.Context, walletID uuid.UUID, limit int) ([]domain.Transaction, error)
}

// AuthService authenticates merchants for the POS-facing API.
type AuthService interface {
	// Login verifies the API secret and issues a JWT.
	Login(ctx context.Context, merchantID uuid.UUID, apiSecret string) (string, time.Time, error)
}

// FeeAccrualService rolls redemptions into monthly merchant fee periods.
type FeeAccrualService interface {
	Accrue(ctx context.Context, merchantID uuid.UUID, at time.Time, novaCents int64) error
}

// SerialUpdates is the protocol's list-updated response body.
type SerialUpdates struct {
	SerialNumbers []string
	LastUpdated   time.Time
}

// RegistryService tracks which devices are subscribed to which wallets.
type RegistryService interface {
	Register(ctx context.Context, walletID uuid.UUID, deviceLibraryID, passTypeID, serialNumber, pushToken string) (bool, error)
	Deregister(ctx context.Context, deviceLibraryID, passTypeID, serialNumber string) error
	ListActiveFor(ctx context.Context, walletID uuid.UUID) ([]domain.PassRegistration, error)
	// ListUpdatedSerials returns nil when the device is unknown, and a
	// SerialUpdates with an empty slice when nothing changed since.
	ListUpdatedSerials(ctx context.Context, deviceLibraryID, passTypeID string, since time.Time) (*SerialUpdates, error)
}

// PassService authenticates serials and builds signed pass bundles.
type PassService interface {
	// AuthenticateSerial resolves a serial to its wallet and verifies the
	// presented per-pass secret against the stored, decrypted one.
	AuthenticateSerial(ctx context.Context, serialNumber, presentedSecret string) (*domain.Wallet, error)
	// ResolveSerial resolves without authenticating (list-updated path).
	ResolveSerial(ctx context.Context, serialNumber string) (*domain.Wallet, error)
	// BuildPass regenerates and signs the pass archive from a fresh ledger
	// snapshot. Never cached.
	BuildPass(ctx context.Context, wallet *domain.Wallet) ([]byte, error)
}
