package service

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nerava/nova/internal/core/domain"
	"github.com/nerava/nova/internal/core/ports"
	"github.com/nerava/nova/pkg/apperror"

	"github.com/rs/zerolog"
)

// PassConfig carries the pass bundle identity fields.
type PassConfig struct {
	TypeID       string
	TeamID       string
	Organization string
	SerialPrefix string
}

// PassServiceImpl resolves serial numbers to wallets and renders signed
// pass bundles. Bundles are always rebuilt from a fresh ledger snapshot;
// nothing is cached.
type PassServiceImpl struct {
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	encSvc     ports.EncryptionService
	sigSvc     ports.SignatureService
	cfg        PassConfig
	log        zerolog.Logger
}

// NewPassService creates a new PassServiceImpl.
func NewPassService(walletRepo ports.WalletRepository, txRepo ports.TransactionRepository, encSvc ports.EncryptionService, sigSvc ports.SignatureService, cfg PassConfig, log zerolog.Logger) *PassServiceImpl {
	return &PassServiceImpl{walletRepo: walletRepo, txRepo: txRepo, encSvc: encSvc, sigSvc: sigSvc, cfg: cfg, log: log}
}

// ResolveSerial maps a serial number to its wallet without authenticating.
func (s *PassServiceImpl) ResolveSerial(ctx context.Context, serialNumber string) (*domain.Wallet, error) {
	passToken, ok := strings.CutPrefix(serialNumber, s.cfg.SerialPrefix)
	if !ok || passToken == "" {
		return nil, apperror.ErrWalletNotFound()
	}

	wallet, err := s.walletRepo.GetByPassToken(ctx, passToken)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet by pass token: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	return wallet, nil
}

// AuthenticateSerial resolves a serial and verifies the presented per-pass
// secret against the stored one. A secret sealed under a retired key fails
// decryption and is reported as an auth mismatch, forcing re-issuance.
func (s *PassServiceImpl) AuthenticateSerial(ctx context.Context, serialNumber, presentedSecret string) (*domain.Wallet, error) {
	wallet, err := s.ResolveSerial(ctx, serialNumber)
	if err != nil {
		return nil, err
	}

	secret, err := s.encSvc.Decrypt(wallet.PassSecretEnc)
	if err != nil {
		s.log.Warn().Err(err).Str("wallet_id", wallet.ID.String()).Msg("pass secret undecryptable")
		return nil, apperror.ErrAuthSecretMismatch()
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(presentedSecret)) != 1 {
		return nil, apperror.ErrAuthSecretMismatch()
	}
	return wallet, nil
}

// passPayload is the pass.json document inside the bundle.
type passPayload struct {
	FormatVersion      int    `json:"formatVersion"`
	PassTypeIdentifier string `json:"passTypeIdentifier"`
	TeamIdentifier     string `json:"teamIdentifier"`
	OrganizationName   string `json:"organizationName"`
	SerialNumber       string `json:"serialNumber"`
	Description        string `json:"description"`
	LastUpdated        string `json:"lastUpdated"`
	StoreCard          struct {
		PrimaryFields []passField `json:"primaryFields"`
		BackFields    []passField `json:"backFields,omitempty"`
	} `json:"storeCard"`
	Barcode passBarcode `json:"barcode"`
}

type passField struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
}

type passBarcode struct {
	Format  string `json:"format"`
	Message string `json:"message"`
}

// passHistoryLimit bounds how many ledger entries the pass back renders.
const passHistoryLimit = 3

// historyFields renders the wallet's most recent ledger entries for the
// back of the pass. The balance is the contract; history is garnish, so a
// failed read degrades to a pass without back fields rather than a 500.
func (s *PassServiceImpl) historyFields(ctx context.Context, wallet *domain.Wallet) []passField {
	entries, err := s.txRepo.ListByWallet(ctx, wallet.ID, passHistoryLimit)
	if err != nil {
		s.log.Warn().Err(err).Str("wallet_id", wallet.ID.String()).Msg("pass history unavailable")
		return nil
	}

	fields := make([]passField, 0, len(entries))
	for i, e := range entries {
		fields = append(fields, passField{
			Key:   fmt.Sprintf("history-%d", i),
			Label: e.CreatedAt.UTC().Format("Jan 2"),
			Value: fmt.Sprintf("%s %s", signedDollars(e.SignedAmount()), e.Kind),
		})
	}
	return fields
}

func signedDollars(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

// BuildPass renders the zip bundle: pass.json, a manifest of SHA-1 digests,
// and an HMAC signature over the manifest keyed with the pass secret.
func (s *PassServiceImpl) BuildPass(ctx context.Context, wallet *domain.Wallet) ([]byte, error) {
	secret, err := s.encSvc.Decrypt(wallet.PassSecretEnc)
	if err != nil {
		return nil, apperror.ErrEncryptionKeyUnavailable(fmt.Errorf("unseal pass secret: %w", err))
	}

	payload := passPayload{
		FormatVersion:      1,
		PassTypeIdentifier: s.cfg.TypeID,
		TeamIdentifier:     s.cfg.TeamID,
		OrganizationName:   s.cfg.Organization,
		SerialNumber:       wallet.SerialNumber(s.cfg.SerialPrefix),
		Description:        "Nova balance",
		LastUpdated:        wallet.LastActivityAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	payload.StoreCard.PrimaryFields = []passField{{
		Key:   "balance",
		Label: "NOVA",
		Value: fmt.Sprintf("$%d.%02d", wallet.BalanceCents/100, wallet.BalanceCents%100),
	}}
	payload.StoreCard.BackFields = s.historyFields(ctx, wallet)
	payload.Barcode = passBarcode{Format: "PKBarcodeFormatQR", Message: wallet.PassToken}

	passJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal pass.json: %w", err))
	}

	digest := sha1.Sum(passJSON)
	manifest, err := json.Marshal(map[string]string{"pass.json": hex.EncodeToString(digest[:])})
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal manifest.json: %w", err))
	}
	signature := s.sigSvc.Sign(secret, manifest)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := []struct {
		name string
		body []byte
	}{
		{"pass.json", passJSON},
		{"manifest.json", manifest},
		{"signature", []byte(signature)},
	}
	for _, f := range files {
		w, err := zw.Create(f.name)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("create %s: %w", f.name, err))
		}
		if _, err := w.Write(f.body); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("write %s: %w", f.name, err))
		}
	}
	if err := zw.Close(); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("close pass archive: %w", err))
	}
	return buf.Bytes(), nil
}
