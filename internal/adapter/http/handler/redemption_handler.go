package handler

import (
	"github.com/nerava/nova/internal/adapter/http/dto"
	"github.com/nerava/nova/internal/adapter/http/middleware"
	"github.com/nerava/nova/internal/core/ports"
	"github.com/nerava/nova/pkg/apperror"
	"github.com/nerava/nova/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RedemptionHandler handles the point-of-sale redemption endpoint.
type RedemptionHandler struct {
	ledgerSvc  ports.LedgerService
	walletRepo ports.WalletRepository
}

// NewRedemptionHandler creates a new RedemptionHandler.
func NewRedemptionHandler(ledgerSvc ports.LedgerService, walletRepo ports.WalletRepository) *RedemptionHandler {
	return &RedemptionHandler{ledgerSvc: ledgerSvc, walletRepo: walletRepo}
}

// Redeem handles POST /api/v1/redemptions. The merchant comes from the JWT;
// the driver from the scanned pass token (or an explicit wallet id).
func (h *RedemptionHandler) Redeem(c *gin.Context) {
	merchantID, ok := c.Get(middleware.CtxMerchantID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.RedemptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	walletID, passToken, err := h.resolveDriver(c, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.ledgerSvc.Redeem(c.Request.Context(), ports.RedeemRequest{
		MerchantID:         merchantID.(uuid.UUID),
		DriverWalletID:     walletID,
		PassTokenUsed:      passToken,
		OrderTotalCents:    req.OrderTotalCents,
		NovaRequestedCents: req.NovaRequestedCents,
		ExternalOrderID:    req.ExternalOrderID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.RedemptionResponse{
		RedemptionID:          result.RedemptionID.String(),
		DiscountCents:         result.DiscountCents,
		RemainingBalanceCents: result.RemainingBalanceCents,
	})
}

// resolveDriver maps the request's pass token or wallet id to a wallet id.
func (h *RedemptionHandler) resolveDriver(c *gin.Context, req dto.RedemptionRequest) (uuid.UUID, *string, error) {
	if req.PassToken != "" {
		wallet, err := h.walletRepo.GetByPassToken(c.Request.Context(), req.PassToken)
		if err != nil {
			return uuid.Nil, nil, apperror.InternalError(err)
		}
		if wallet == nil {
			return uuid.Nil, nil, apperror.ErrWalletNotFound()
		}
		token := req.PassToken
		return wallet.ID, &token, nil
	}
	if req.DriverWalletID != "" {
		id, err := uuid.Parse(req.DriverWalletID)
		if err != nil {
			return uuid.Nil, nil, apperror.Validation("driver_wallet_id must be a UUID")
		}
		return id, nil, nil
	}
	return uuid.Nil, nil, apperror.Validation("either pass_token or driver_wallet_id is required")
}
