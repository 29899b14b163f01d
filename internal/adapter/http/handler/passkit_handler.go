package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nerava/nova/internal/adapter/http/dto"
	"github.com/nerava/nova/internal/adapter/http/middleware"
	"github.com/nerava/nova/internal/core/domain"
	"github.com/nerava/nova/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const pkpassContentType = "application/vnd.apple.pkpass"

// PassKitHandler implements the wallet pass platform's web service protocol.
// Paths, bodies and status codes are fixed by the external contract, so these
// endpoints answer with bare status codes instead of the JSON envelope.
type PassKitHandler struct {
	registrySvc ports.RegistryService
	passSvc     ports.PassService
	log         zerolog.Logger
}

// NewPassKitHandler creates a new PassKitHandler.
func NewPassKitHandler(registrySvc ports.RegistryService, passSvc ports.PassService, log zerolog.Logger) *PassKitHandler {
	return &PassKitHandler{registrySvc: registrySvc, passSvc: passSvc, log: log}
}

// contextWallet fetches the wallet the PassAuth middleware resolved.
func contextWallet(c *gin.Context) (*domain.Wallet, bool) {
	v, ok := c.Get(middleware.CtxWalletKey)
	if !ok {
		return nil, false
	}
	wallet, ok := v.(*domain.Wallet)
	return wallet, ok
}

// Register handles POST /devices/:deviceLibraryId/registrations/:passTypeId/:serialNumber.
// 201 when the registration is new, 200 when it already existed.
func (h *PassKitHandler) Register(c *gin.Context) {
	wallet, ok := contextWallet(c)
	if !ok {
		c.Status(http.StatusUnauthorized)
		return
	}

	var req dto.DeviceRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	created, err := h.registrySvc.Register(
		c.Request.Context(),
		wallet.ID,
		c.Param("deviceLibraryId"),
		c.Param("passTypeId"),
		c.Param("serialNumber"),
		req.PushToken,
	)
	if err != nil {
		h.log.Error().Err(err).Msg("pass registration failed")
		c.Status(http.StatusInternalServerError)
		return
	}

	if created {
		c.Status(http.StatusCreated)
		return
	}
	c.Status(http.StatusOK)
}

// Deregister handles DELETE /devices/:deviceLibraryId/registrations/:passTypeId/:serialNumber.
// Always 200 once authenticated; unknown registrations are a no-op.
func (h *PassKitHandler) Deregister(c *gin.Context) {
	if _, ok := contextWallet(c); !ok {
		c.Status(http.StatusUnauthorized)
		return
	}

	err := h.registrySvc.Deregister(
		c.Request.Context(),
		c.Param("deviceLibraryId"),
		c.Param("passTypeId"),
		c.Param("serialNumber"),
	)
	if err != nil {
		h.log.Error().Err(err).Msg("pass deregistration failed")
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusOK)
}

// ListUpdated handles GET /devices/:deviceLibraryId/registrations/:passTypeId.
// Unauthenticated by contract. 200 with serials, 204 when nothing changed
// since the passesUpdatedSince watermark, 404 when the device is unknown.
func (h *PassKitHandler) ListUpdated(c *gin.Context) {
	since := parseUpdatedSince(c.Query("passesUpdatedSince"))

	updates, err := h.registrySvc.ListUpdatedSerials(
		c.Request.Context(),
		c.Param("deviceLibraryId"),
		c.Param("passTypeId"),
		since,
	)
	if err != nil {
		h.log.Error().Err(err).Msg("list updated serials failed")
		c.Status(http.StatusInternalServerError)
		return
	}
	if updates == nil {
		c.Status(http.StatusNotFound)
		return
	}
	if len(updates.SerialNumbers) == 0 {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, dto.SerialUpdatesResponse{
		SerialNumbers: updates.SerialNumbers,
		LastUpdated:   strconv.FormatInt(updates.LastUpdated.Unix(), 10),
	})
}

// FetchPass handles GET /passes/:passTypeId/:serialNumber. The archive is
// rebuilt from a fresh balance snapshot on every request; If-Modified-Since
// short-circuits to 304 when the wallet has not moved since.
func (h *PassKitHandler) FetchPass(c *gin.Context) {
	wallet, ok := contextWallet(c)
	if !ok {
		c.Status(http.StatusUnauthorized)
		return
	}

	if ims := c.GetHeader("If-Modified-Since"); ims != "" {
		if t, err := http.ParseTime(ims); err == nil {
			// HTTP dates have second precision
			if !wallet.LastActivityAt.Truncate(time.Second).After(t) {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	archive, err := h.passSvc.BuildPass(c.Request.Context(), wallet)
	if err != nil {
		h.log.Error().Err(err).Str("wallet_id", wallet.ID.String()).Msg("pass build failed")
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Last-Modified", wallet.LastActivityAt.UTC().Format(http.TimeFormat))
	c.Data(http.StatusOK, pkpassContentType, archive)
}

// Log handles POST /log — the platform posts device-side error lines.
func (h *PassKitHandler) Log(c *gin.Context) {
	var req dto.DeviceLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	for _, line := range req.Logs {
		h.log.Warn().Str("source", "pass_platform").Msg(line)
	}
	c.Status(http.StatusOK)
}

// parseUpdatedSince interprets the watermark the server previously issued
// (Unix seconds). Anything unparsable falls back to the zero time, returning
// the full serial list.
func parseUpdatedSince(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}
