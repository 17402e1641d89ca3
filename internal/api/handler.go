// Package api provides the HTTP API for the hotspot portal.
package api

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hotspotbd/portal-backend/internal/approval"
	"github.com/hotspotbd/portal-backend/internal/auth"
	"github.com/hotspotbd/portal-backend/internal/mikrotik"
	"github.com/hotspotbd/portal-backend/internal/store"
)

// contactPattern matches an 11-digit mobile wallet number.
var contactPattern = regexp.MustCompile(`^\d{11}$`)

// Handler contains all HTTP handlers for the portal API.
type Handler struct {
	controller   mikrotik.Controller
	orchestrator *approval.Orchestrator
	store        *store.Store
	jwtService   *auth.JWTService
	uploadDir    string
	tokenTTL     time.Duration
	adminToken   string
	logger       *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	controller mikrotik.Controller,
	orchestrator *approval.Orchestrator,
	st *store.Store,
	jwtService *auth.JWTService,
	uploadDir string,
	tokenTTL time.Duration,
	adminToken string,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokenTTL == 0 {
		tokenTTL = 24 * time.Hour
	}

	return &Handler{
		controller:   controller,
		orchestrator: orchestrator,
		store:        st,
		jwtService:   jwtService,
		uploadDir:    uploadDir,
		tokenTTL:     tokenTTL,
		adminToken:   adminToken,
		logger:       logger,
	}
}

// HealthCheck returns the service health status.
func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	err := h.controller.TestConnection(ctx)

	c.JSON(http.StatusOK, gin.H{
		"status":           "healthy",
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
		"router_connected": err == nil,
	})
}

// LoginRequest represents a hotspot login attempt.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login checks credentials against the router's hotspot user list and
// issues a guest token.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "please enter both username and password"})
		return
	}

	user, err := h.controller.GetUser(c.Request.Context(), req.Username)
	if err != nil {
		if errors.Is(err, mikrotik.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		h.logger.Error("login lookup failed", zap.String("username", req.Username), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "router unavailable"})
		return
	}

	if user.Password != req.Password {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect password"})
		return
	}

	if user.Disabled {
		c.JSON(http.StatusForbidden, gin.H{"error": "account is awaiting approval"})
		return
	}

	token, err := h.jwtService.GenerateToken(user.Name, user.Profile, h.tokenTTL)
	if err != nil {
		h.logger.Error("token generation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":  token,
		"status": h.accountStatus(c, user),
	})
}

// Status returns the authenticated guest's account and live session info.
func (h *Handler) Status(c *gin.Context) {
	claims := c.MustGet("claims").(*auth.Claims)

	user, err := h.controller.GetUser(c.Request.Context(), claims.Username)
	if err != nil {
		if errors.Is(err, mikrotik.ErrUserNotFound) {
			// Account expired and was removed by the router scheduler.
			c.JSON(http.StatusUnauthorized, gin.H{"error": "account no longer exists"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "router unavailable"})
		return
	}

	c.JSON(http.StatusOK, h.accountStatus(c, user))
}

// Logout disconnects the guest's live hotspot session.
func (h *Handler) Logout(c *gin.Context) {
	claims := c.MustGet("claims").(*auth.Claims)

	if err := h.controller.KickActiveSession(c.Request.Context(), claims.Username); err != nil {
		h.logger.Error("logout failed", zap.String("username", claims.Username), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "router unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"logged_out": true})
}

// ListPackages returns the enumerated package set.
func (h *Handler) ListPackages(c *gin.Context) {
	pkgs := approval.Packages()

	result := make([]gin.H, 0, len(pkgs))
	for _, p := range pkgs {
		result = append(result, gin.H{
			"id":        p.ID,
			"label":     p.Label,
			"days":      p.Days,
			"price_bdt": p.PriceBDT,
		})
	}

	c.JSON(http.StatusOK, gin.H{"packages": result})
}

// Purchase accepts a payment submission: package choice, mobile wallet
// number, and an optional proof-of-payment image. On success the guest
// receives credentials for a disabled account awaiting approval; the
// password is shown here exactly once.
func (h *Handler) Purchase(c *gin.Context) {
	pkgID := c.PostForm("package")
	contact := c.PostForm("contact_number")

	if !contactPattern.MatchString(contact) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "contact number must be 11 digits"})
		return
	}

	var proofRef string
	if file, err := c.FormFile("proof_image"); err == nil {
		proofRef = uuid.New().String() + filepath.Ext(file.Filename)
		if err := c.SaveUploadedFile(file, filepath.Join(h.uploadDir, proofRef)); err != nil {
			h.logger.Error("failed to save proof upload", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store payment proof"})
			return
		}
	}

	req, err := h.orchestrator.Submit(c.Request.Context(), approval.SubmitInput{
		Package:       pkgID,
		ContactNumber: contact,
		ProofRef:      proofRef,
		SourceAddr:    c.ClientIP(),
	})
	if err != nil {
		switch {
		case errors.Is(err, approval.ErrInvalidPackage):
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown package"})
		case errors.Is(err, approval.ErrProvisioningFailed):
			h.logger.Error("provisioning failed", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "could not provision account, please try again later"})
		default:
			h.logger.Error("purchase failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "submission failed"})
		}
		return
	}

	pkg, _ := approval.PackageByID(req.Package)

	c.JSON(http.StatusOK, gin.H{
		"request_id": req.ID,
		"username":   req.Username,
		"password":   req.Password,
		"package":    pkg.ID,
		"validity":   pkg.Label + " of access from approval",
		"status":     string(req.Status),
		"message":    "Submitted! Please wait for admin approval.",
	})
}

// ListRequests returns pending requests for operator inspection.
func (h *Handler) ListRequests(c *gin.Context) {
	status := store.Status(c.Query("status"))

	requests, err := h.store.List(status)
	if err != nil {
		h.logger.Error("failed to list requests", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list requests"})
		return
	}

	result := make([]gin.H, 0, len(requests))
	for _, r := range requests {
		result = append(result, requestSummary(r))
	}

	c.JSON(http.StatusOK, gin.H{
		"requests": result,
		"count":    len(result),
	})
}

// GetRequest returns one pending request.
func (h *Handler) GetRequest(c *gin.Context) {
	req, err := h.store.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load request"})
		return
	}

	c.JSON(http.StatusOK, requestSummary(req))
}

// DecisionRequest is a manual approval/rejection from an operator.
type DecisionRequest struct {
	Action string `json:"action" binding:"required"`
}

// Decide is the operator fallback for the approval channel: it feeds
// the same workflow as a bot button press.
func (h *Handler) Decide(c *gin.Context) {
	var body DecisionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	action := approval.Action(body.Action)
	if action != approval.ActionApprove && action != approval.ActionReject {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action must be approve or reject"})
		return
	}

	decision, err := h.orchestrator.HandleEvent(c.Request.Context(), approval.Event{
		Action:      action,
		Correlation: store.Correlation{RequestID: c.Param("id")},
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
		case errors.Is(err, store.ErrAmbiguous):
			c.JSON(http.StatusConflict, gin.H{"error": "decision matches more than one request"})
		default:
			h.logger.Error("manual decision failed", zap.String("request_id", c.Param("id")), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "decision failed, request stays pending"})
		}
		return
	}

	resp := requestSummary(decision.Request)
	if !decision.ExpiresAt.IsZero() {
		resp["expires_at"] = decision.ExpiresAt.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

// accountStatus assembles the login/status payload: account profile
// plus live session details when connected.
func (h *Handler) accountStatus(c *gin.Context, user *mikrotik.User) gin.H {
	status := gin.H{
		"username": user.Name,
		"package":  user.Profile,
		"uptime":   "Not Connected",
		"ip":       "N/A",
		"mac":      "N/A",
		"upload":   "0 B",
		"download": "0 B",
	}

	if user.LimitUptime != "" {
		status["remaining"] = user.LimitUptime
	} else {
		status["remaining"] = "Unlimited"
	}

	session, err := h.controller.GetActiveSession(c.Request.Context(), user.Name)
	if err != nil {
		h.logger.Warn("active session lookup failed",
			zap.String("username", user.Name),
			zap.Error(err),
		)
		return status
	}
	if session == nil {
		return status
	}

	status["uptime"] = formatUptime(session.Uptime)
	status["ip"] = session.Address
	status["mac"] = session.MACAddress
	status["upload"] = formatBytes(session.BytesOut)
	status["download"] = formatBytes(session.BytesIn)
	return status
}

// requestSummary renders a request for operator endpoints. Passwords
// never leave the submission response.
func requestSummary(r *store.Request) gin.H {
	out := gin.H{
		"request_id":     r.ID,
		"username":       r.Username,
		"package":        r.Package,
		"contact_number": r.ContactNumber,
		"proof_ref":      r.ProofRef,
		"source_addr":    r.SourceAddr,
		"status":         string(r.Status),
		"created_at":     r.CreatedAt.Format(time.RFC3339),
	}
	if r.DecidedAt != nil {
		out["decided_at"] = r.DecidedAt.Format(time.RFC3339)
	}
	return out
}
