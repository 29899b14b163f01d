package dto

// LoginRequest is the request body for merchant login.
type LoginRequest struct {
	MerchantID string `json:"merchant_id" binding:"required,uuid"`
	APISecret  string `json:"api_secret" binding:"required"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// RedemptionRequest is the request body for a point-of-sale redemption.
// The driver is identified by the scanned pass token; wallet_id is accepted
// as a fallback for server-to-server callers.
type RedemptionRequest struct {
	PassToken          string  `json:"pass_token,omitempty"`
	DriverWalletID     string  `json:"driver_wallet_id,omitempty" binding:"omitempty,uuid"`
	OrderTotalCents    int64   `json:"order_total_cents" binding:"required,gt=0"`
	NovaRequestedCents int64   `json:"nova_requested_cents,omitempty" binding:"omitempty,gte=0"`
	ExternalOrderID    *string `json:"external_order_id,omitempty" binding:"omitempty,max=128"`
}

// RedemptionResponse is the response body for a successful redemption.
type RedemptionResponse struct {
	RedemptionID          string `json:"redemption_id"`
	DiscountCents         int64  `json:"discount_cents"`
	RemainingBalanceCents int64  `json:"remaining_balance_cents"`
}

// GrantRequest is the request body for crediting a wallet.
type GrantRequest struct {
	OwnerType   string  `json:"owner_type" binding:"required,oneof=driver merchant"`
	OwnerID     string  `json:"owner_id" binding:"required,uuid"`
	AmountCents int64   `json:"amount_cents" binding:"required,gt=0"`
	Kind        string  `json:"kind" binding:"required"`
	SessionID   *string `json:"session_id,omitempty"`
	EventID     *string `json:"event_id,omitempty"`
	Metadata    *string `json:"metadata,omitempty"`
}

// TransactionResponse is the response body for ledger entries.
type TransactionResponse struct {
	ID           string  `json:"id"`
	Kind         string  `json:"kind"`
	WalletID     string  `json:"wallet_id"`
	MerchantID   *string `json:"merchant_id,omitempty"`
	AmountCents  int64   `json:"amount_cents"`
	SignedCents  int64   `json:"signed_cents"`
	RedemptionID *string `json:"redemption_id,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

// BalanceResponse is the response for a wallet balance query.
type BalanceResponse struct {
	WalletID     string `json:"wallet_id"`
	BalanceCents int64  `json:"balance_cents"`
}

// HistoryResponse wraps a wallet's recent ledger entries.
type HistoryResponse struct {
	WalletID string                `json:"wallet_id"`
	Items    []TransactionResponse `json:"items"`
}

// DeviceRegistrationRequest is the pass-platform registration body. Field
// name is fixed by the external wallet protocol.
type DeviceRegistrationRequest struct {
	PushToken string `json:"pushToken" binding:"required"`
}

// SerialUpdatesResponse is the pass-platform list-updated body. Field names
// are fixed by the external wallet protocol.
type SerialUpdatesResponse struct {
	SerialNumbers []string `json:"serialNumbers"`
	LastUpdated   string   `json:"lastUpdated"` // Unix seconds, as a string
}

// DeviceLogRequest is the pass-platform error log body.
type DeviceLogRequest struct {
	Logs []string `json:"logs"`
}
