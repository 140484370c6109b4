package handlers

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openportal/twofa/internal/auth/challenge"
	"github.com/openportal/twofa/internal/directory"
	"github.com/openportal/twofa/internal/notifications"
	appErrors "github.com/openportal/twofa/pkg/errors"
	"github.com/openportal/twofa/pkg/response"
)

// MFAHandler exposes the second-factor lifecycle over HTTP: self-service
// setup, code delivery, and login-flow verification.
type MFAHandler struct {
	service  *challenge.Service
	dir      directory.Finder
	notifier notifications.Notifier
}

// NewMFAHandler constructs the handler.
func NewMFAHandler(service *challenge.Service, dir directory.Finder, notifier notifications.Notifier) (*MFAHandler, error) {
	if service == nil {
		return nil, errors.New("handlers: challenge service is required")
	}
	if dir == nil {
		return nil, errors.New("handlers: directory is required")
	}
	if notifier == nil {
		return nil, errors.New("handlers: notifier is required")
	}

	return &MFAHandler{service: service, dir: dir, notifier: notifier}, nil
}

type setupInfo struct {
	Secret          string     `json:"secret"`
	ProvisioningURI string     `json:"provisioning_uri"`
	QRCode          string     `json:"qr_code"`
	LastAccess      *time.Time `json:"last_access,omitempty"`
}

type testCodeRequest struct {
	Code string `json:"code" validate:"required,max=16"`
}

type sendCodeRequest struct {
	User string `json:"user" validate:"required,max=255"`
}

type verifyRequest struct {
	User string `json:"user" validate:"required,max=255"`
	Code string `json:"code" validate:"required,max=16"`
}

// Setup returns the user's enrollment material, provisioning a secret on
// first visit so the setup page is self-bootstrapping.
func (h *MFAHandler) Setup(c *gin.Context) {
	identifier := c.Param("user")

	rec, err := h.service.Get(c.Request.Context(), identifier)
	if err != nil {
		response.Error(c, err)
		return
	}
	if rec == nil {
		rec, err = h.service.Provision(c.Request.Context(), identifier)
		if err != nil {
			response.Error(c, err)
			return
		}
	}

	h.renderSetup(c, rec)
}

// Regenerate discards the user's secret and issues a fresh one. Codes from
// the previous secret stop validating immediately.
func (h *MFAHandler) Regenerate(c *gin.Context) {
	rec, err := h.service.Provision(c.Request.Context(), c.Param("user"))
	if err != nil {
		response.Error(c, err)
		return
	}

	h.renderSetup(c, rec)
}

// TestCode checks a code during enrollment without consuming it: no watermark
// movement, no replay check.
func (h *MFAHandler) TestCode(c *gin.Context) {
	var req testCodeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	valid, err := h.service.Verify(c.Request.Context(), c.Param("user"), req.Code, false)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"valid": valid})
}

// SendCode regenerates the user's secret and emails the current interval
// code. Regenerating first keeps a single live code outstanding per request,
// matching the delivery-triggered enrollment flow.
func (h *MFAHandler) SendCode(c *gin.Context) {
	var req sendCodeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := c.Request.Context()

	user, err := h.dir.Find(ctx, strings.TrimSpace(req.User))
	if err != nil {
		response.Error(c, err)
		return
	}

	if _, err := h.service.Provision(ctx, user.ID); err != nil {
		response.Error(c, err)
		return
	}

	code, err := h.service.CurrentDisplayCode(ctx, user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	sent := h.notifier.SendCode(ctx, user, code)
	response.Success(c, http.StatusOK, gin.H{"sent": sent})
}

// Verify performs a persisting verification: a valid code advances the
// watermark, a consumed code is rejected as a replay with its own error code.
func (h *MFAHandler) Verify(c *gin.Context) {
	var req verifyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	valid, err := h.service.Verify(c.Request.Context(), strings.TrimSpace(req.User), req.Code, true)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !valid {
		response.Error(c, appErrors.ErrCodeInvalid)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"verified": true})
}

func (h *MFAHandler) renderSetup(c *gin.Context, rec *challenge.Record) {
	ctx := c.Request.Context()

	uri, err := h.service.ProvisioningURI(ctx, rec)
	if err != nil {
		response.Error(c, err)
		return
	}

	qr, err := h.service.QRCode(ctx, rec)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, setupInfo{
		Secret:          rec.Secret,
		ProvisioningURI: uri,
		QRCode:          base64.StdEncoding.EncodeToString(qr),
		LastAccess:      rec.LastAccess,
	})
}
