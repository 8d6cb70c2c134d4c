package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"geoattend/internal/attendance"
	"geoattend/internal/auth"
)

type LeaveHandler struct {
	leaves *attendance.LeaveService
}

func NewLeaveHandler(leaves *attendance.LeaveService) *LeaveHandler {
	return &LeaveHandler{leaves: leaves}
}

type applyLeaveRequest struct {
	Date   string `json:"date" binding:"required"`
	Type   string `json:"leave_type" binding:"required,max=40"`
	Reason string `json:"reason" binding:"max=500"`
}

// Apply files a leave application for the caller.
func (h *LeaveHandler) Apply(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	var req applyLeaveRequest
	if !bindJSON(c, &req) {
		return
	}
	l, err := h.leaves.Apply(c.Request.Context(), claims.Subject, req.Date, req.Type, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"leave": l})
}

// Mine lists the caller's applications.
func (h *LeaveHandler) Mine(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	h.list(c, attendance.LeaveFilter{EmpID: claims.Subject, Status: attendance.LeaveStatus(c.Query("status"))})
}

// List lists applications. Managers only see their own branch.
func (h *LeaveHandler) List(c *gin.Context) {
	h.list(c, attendance.LeaveFilter{
		EmpID:  c.Query("emp_id"),
		Branch: scopedBranch(c),
		Status: attendance.LeaveStatus(c.Query("status")),
		From:   c.Query("from"),
		To:     c.Query("to"),
	})
}

func (h *LeaveHandler) list(c *gin.Context, f attendance.LeaveFilter) {
	ls, err := h.leaves.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	if ls == nil {
		ls = []attendance.LeaveApplication{}
	}
	c.JSON(http.StatusOK, gin.H{"leaves": ls})
}

func (h *LeaveHandler) Approve(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	if !h.inScope(c) {
		return
	}
	l, err := h.leaves.Approve(c.Request.Context(), c.Param("id"), claims.Subject)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leave": l})
}

type rejectLeaveRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

func (h *LeaveHandler) Reject(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	var req rejectLeaveRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	if !h.inScope(c) {
		return
	}
	l, err := h.leaves.Reject(c.Request.Context(), c.Param("id"), claims.Subject, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leave": l})
}

// inScope stops managers deciding applications of other branches.
func (h *LeaveHandler) inScope(c *gin.Context) bool {
	claims, _ := auth.FromContext(c)
	if claims.Role != string(attendance.RoleManager) {
		return true
	}
	l, err := h.leaves.Get(c.Request.Context(), c.Param("id"))
	if err == nil && l.Branch != claims.Branch {
		err = attendance.ErrNotFound
	}
	if err != nil {
		respondError(c, err)
		return false
	}
	return true
}

// scopedBranch returns the caller's branch for managers and the branch query
// parameter for admins.
func scopedBranch(c *gin.Context) string {
	claims, _ := auth.FromContext(c)
	if claims.Role == string(attendance.RoleManager) {
		return claims.Branch
	}
	return c.Query("branch")
}
