package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"geoattend/internal/attendance"
	"geoattend/internal/auth"
	"geoattend/internal/geofence"
)

// TokenConfig signs and verifies JWTs.
type TokenConfig struct {
	Issuer     string
	SigningKey string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type AccountHandler struct {
	accounts *attendance.AccountService
	tokens   TokenConfig
}

func NewAccountHandler(accounts *attendance.AccountService, tokens TokenConfig) *AccountHandler {
	return &AccountHandler{accounts: accounts, tokens: tokens}
}

type registerRequest struct {
	Name      string   `json:"name" binding:"required,max=120"`
	Email     string   `json:"email" binding:"required,email"`
	Phone     string   `json:"phone" binding:"required,e164|numeric,min=7,max=16"`
	Password  string   `json:"password" binding:"required,min=6,max=72"`
	Branch    string   `json:"branch" binding:"required,max=80"`
	Role      string   `json:"role" binding:"required,oneof=manager salesman"`
	Latitude  *float64 `json:"latitude" binding:"required,latitude"`
	Longitude *float64 `json:"longitude" binding:"required,longitude"`
	Accuracy  *float64 `json:"accuracy" binding:"required,gte=0"`
	Photo     string   `json:"photo" binding:"required"`
}

// Register creates an inactive account awaiting admin approval.
func (h *AccountHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}
	photo, err := decodeImage(req.Photo)
	if err != nil {
		respondError(c, err)
		return
	}
	emp, err := h.accounts.Register(c.Request.Context(), attendance.Registration{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		Branch:   req.Branch,
		Role:     attendance.Role(req.Role),
		Home: geofence.Fix{
			Point:          geofence.Point{Lat: *req.Latitude, Lng: *req.Longitude},
			AccuracyMeters: *req.Accuracy,
		},
		Photo: photo,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"employee": emp,
		"message":  "Registration received. Your account will be active once an administrator approves it.",
	})
}

type loginRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates by email or phone and issues a token pair.
func (h *AccountHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	emp, err := h.accounts.Login(c.Request.Context(), req.Login, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	h.issue(c, emp)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh exchanges a refresh token for a new pair. Account status and role
// are re-read so a deactivated account cannot keep refreshing.
func (h *AccountHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindJSON(c, &req) {
		return
	}
	claims, err := auth.Parse(req.RefreshToken, h.tokens.SigningKey, h.tokens.Issuer)
	if err != nil || claims.Use != auth.UseRefresh {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "message": "Session expired. Please log in again."})
		return
	}
	emp, err := h.accounts.Get(c.Request.Context(), claims.Subject)
	if err != nil {
		respondError(c, err)
		return
	}
	h.issue(c, emp)
}

func (h *AccountHandler) issue(c *gin.Context, emp *attendance.Employee) {
	if emp.Status != attendance.Active {
		respondError(c, &attendance.Error{
			Kind:     attendance.KindAccountInactive,
			Message:  "Your account is not active. Contact an administrator.",
			Severity: attendance.SeverityError,
		})
		return
	}
	pair, err := auth.Issue(auth.Identity{Subject: emp.EmpID, Role: string(emp.Role), Branch: emp.Branch},
		h.tokens.Issuer, h.tokens.SigningKey, h.tokens.AccessTTL, h.tokens.RefreshTTL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": pair, "employee": emp})
}

// Me returns the caller's profile and counters.
func (h *AccountHandler) Me(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	emp, err := h.accounts.Get(c.Request.Context(), claims.Subject)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"employee": emp})
}

// ListEmployees lists accounts, optionally by status.
func (h *AccountHandler) ListEmployees(c *gin.Context) {
	status := attendance.AccountStatus(c.Query("status"))
	emps, err := h.accounts.List(c.Request.Context(), status)
	if err != nil {
		respondError(c, err)
		return
	}
	if emps == nil {
		emps = []attendance.Employee{}
	}
	c.JSON(http.StatusOK, gin.H{"employees": emps})
}

func (h *AccountHandler) Activate(c *gin.Context) {
	h.setStatus(c, h.accounts.Activate)
}

func (h *AccountHandler) Deactivate(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	h.setStatus(c, func(ctx context.Context, empID string) error {
		return h.accounts.Deactivate(ctx, claims.Subject, empID)
	})
}

func (h *AccountHandler) setStatus(c *gin.Context, fn func(ctx context.Context, empID string) error) {
	id := c.Param("id")
	if err := fn(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	emp, err := h.accounts.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"employee": emp})
}
