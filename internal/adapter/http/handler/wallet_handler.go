package handler

import (
	"strconv"

	"github.com/nerava/nova/internal/adapter/http/dto"
	"github.com/nerava/nova/internal/core/domain"
	"github.com/nerava/nova/internal/core/ports"
	"github.com/nerava/nova/pkg/apperror"
	"github.com/nerava/nova/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WalletHandler handles wallet balance, history and grant endpoints.
type WalletHandler struct {
	ledgerSvc ports.LedgerService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(ledgerSvc ports.LedgerService) *WalletHandler {
	return &WalletHandler{ledgerSvc: ledgerSvc}
}

// GetBalance handles GET /api/v1/wallets/:walletID/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	walletID, err := uuid.Parse(c.Param("walletID"))
	if err != nil {
		response.Error(c, apperror.Validation("walletID must be a UUID"))
		return
	}

	balance, err := h.ledgerSvc.GetBalance(c.Request.Context(), walletID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.BalanceResponse{
		WalletID:     walletID.String(),
		BalanceCents: balance,
	})
}

// GetHistory handles GET /api/v1/wallets/:walletID/history?limit=.
func (h *WalletHandler) GetHistory(c *gin.Context) {
	walletID, err := uuid.Parse(c.Param("walletID"))
	if err != nil {
		response.Error(c, apperror.Validation("walletID must be a UUID"))
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			response.Error(c, apperror.Validation("limit must be an integer"))
			return
		}
	}

	items, err := h.ledgerSvc.GetHistory(c.Request.Context(), walletID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.HistoryResponse{
		WalletID: walletID.String(),
		Items:    make([]dto.TransactionResponse, 0, len(items)),
	}
	for i := range items {
		resp.Items = append(resp.Items, toTransactionResponse(&items[i]))
	}
	response.OK(c, resp)
}

// Grant handles POST /api/v1/nova/grants.
func (h *WalletHandler) Grant(c *gin.Context) {
	var req dto.GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		response.Error(c, apperror.Validation("owner_id must be a UUID"))
		return
	}

	tx, err := h.ledgerSvc.Grant(c.Request.Context(), ports.GrantRequest{
		OwnerType:   domain.WalletOwnerType(req.OwnerType),
		OwnerID:     ownerID,
		AmountCents: req.AmountCents,
		Kind:        domain.TransactionKind(req.Kind),
		SessionID:   req.SessionID,
		EventID:     req.EventID,
		Metadata:    req.Metadata,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toTransactionResponse(tx))
}

// toTransactionResponse converts domain.Transaction to DTO.
func toTransactionResponse(tx *domain.Transaction) dto.TransactionResponse {
	resp := dto.TransactionResponse{
		ID:          tx.ID.String(),
		Kind:        string(tx.Kind),
		WalletID:    tx.WalletID.String(),
		AmountCents: tx.AmountCents,
		SignedCents: tx.SignedAmount(),
		CreatedAt:   tx.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if tx.MerchantID != nil {
		s := tx.MerchantID.String()
		resp.MerchantID = &s
	}
	if tx.RedemptionID != nil {
		s := tx.RedemptionID.String()
		resp.RedemptionID = &s
	}
	return resp
}
