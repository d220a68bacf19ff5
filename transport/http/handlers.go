package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/service"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Handlers contains HTTP handlers for verification and certificate endpoints
type Handlers struct {
	ownership    *service.OwnershipService
	certificates *service.CertificateService
	logger       *zap.Logger
}

// NewHandlers creates new handlers
func NewHandlers(ownership *service.OwnershipService, certificates *service.CertificateService, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		ownership:    ownership,
		certificates: certificates,
		logger:       logger,
	}
}

// CourseResponse is the course metadata returned to clients
type CourseResponse struct {
	TokenID          uint64 `json:"tokenId"`
	Code             string `json:"courseCode"`
	Name             string `json:"courseName"`
	ImageURI         string `json:"imageUri"`
	ValidityDuration uint64 `json:"validityDuration"`
	ValidityMonths   string `json:"validityMonths"`
}

// HoldingResponse is a holder's certificate status
type HoldingResponse struct {
	TokenID         uint64          `json:"tokenId"`
	Address         string          `json:"address"`
	Balance         string          `json:"balance"`
	MintTimestamp   uint64          `json:"mintTimestamp"`
	ExpiryTimestamp uint64          `json:"expiryTimestamp"`
	Valid           bool            `json:"valid"`
	Course          *CourseResponse `json:"course,omitempty"`
}

func courseResponse(c core.Course) *CourseResponse {
	return &CourseResponse{
		TokenID:          c.TokenID,
		Code:             c.Code,
		Name:             c.Name,
		ImageURI:         c.ImageURI,
		ValidityDuration: c.ValidityDuration,
		ValidityMonths:   core.ValidityMonths(c.ValidityDuration).StringFixed(1),
	}
}

func holdingResponse(h core.Holding) HoldingResponse {
	resp := HoldingResponse{
		TokenID:         h.TokenID,
		Address:         h.Holder.Hex(),
		Balance:         "0",
		MintTimestamp:   h.MintTimestamp,
		ExpiryTimestamp: h.ExpiryTimestamp,
		Valid:           h.Valid,
	}
	if h.Balance != nil {
		resp.Balance = h.Balance.String()
	}
	if h.Course != nil {
		resp.Course = courseResponse(*h.Course)
	}
	return resp
}

// Challenge handles the challenge request
func (h *Handlers) Challenge(c *gin.Context) {
	var req struct {
		TokenID         uint64 `json:"tokenId" binding:"required"`
		ContractAddress string `json:"contractAddress"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	message, err := h.ownership.ChallengeFor(req.TokenID, req.ContractAddress)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": message})
}

// VerifyOwnership handles a signed challenge
func (h *Handlers) VerifyOwnership(c *gin.Context) {
	var req struct {
		Message   string `json:"message" binding:"required"`
		Signature string `json:"signature" binding:"required"`
		Address   string `json:"address" binding:"required"`
		TokenID   uint64 `json:"tokenId" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request"})
		return
	}

	verdict := h.ownership.Verify(c.Request.Context(), service.VerifyRequest{
		Message:   req.Message,
		Signature: req.Signature,
		Address:   req.Address,
		TokenID:   req.TokenID,
	})

	if !verdict.Success() {
		status := http.StatusOK
		if verdict.Reason == core.ReasonInvalidArgument {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"success": false,
			"error":   verdict.Message,
			"reason":  verdict.Reason,
		})
		return
	}

	resp := gin.H{
		"success": true,
		"address": verdict.Address,
	}
	if verdict.Proof != "" {
		resp["proof"] = verdict.Proof
	}
	c.JSON(http.StatusOK, resp)
}

// Proof checks a shareable ownership proof
func (h *Handlers) Proof(c *gin.Context) {
	status, err := h.ownership.CheckProof(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":     status.Valid,
		"address":   status.Address,
		"tokenId":   status.TokenID,
		"contract":  status.Contract,
		"expiresAt": status.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Course returns course metadata
func (h *Handlers) Course(c *gin.Context) {
	tokenID, ok := h.tokenID(c)
	if !ok {
		return
	}

	course, err := h.certificates.Course(c.Request.Context(), tokenID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, courseResponse(course))
}

// Holding returns one holder's certificate status
func (h *Handlers) Holding(c *gin.Context) {
	tokenID, ok := h.tokenID(c)
	if !ok {
		return
	}

	holding, err := h.certificates.Status(c.Request.Context(), tokenID, c.Param("address"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, holdingResponse(holding))
}

// Validity checks many holders of one course
func (h *Handlers) Validity(c *gin.Context) {
	tokenID, ok := h.tokenID(c)
	if !ok {
		return
	}

	var req struct {
		Holders []string `json:"holders" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	results, err := h.certificates.ValidityBatch(c.Request.Context(), tokenID, req.Holders)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

// Portfolio lists a holder's certificates
func (h *Handlers) Portfolio(c *gin.Context) {
	holdings, err := h.certificates.Portfolio(c.Request.Context(), c.Param("address"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	certificates := make([]HoldingResponse, len(holdings))
	for i, holding := range holdings {
		certificates[i] = holdingResponse(holding)
	}

	c.JSON(http.StatusOK, gin.H{
		"address":      c.Param("address"),
		"certificates": certificates,
	})
}

// Health reports liveness
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "contract": h.ownership.Contract()})
}

func (h *Handlers) tokenID(c *gin.Context) (uint64, bool) {
	tokenID, err := strconv.ParseUint(c.Param("tokenId"), 10, 64)
	if err != nil || tokenID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid token id"})
		return 0, false
	}
	return tokenID, true
}

// writeError maps domain errors to status codes
func (h *Handlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": core.Detail(err)})
	case errors.Is(err, core.ErrInvalidProof):
		c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": "Invalid proof"})
	case errors.Is(err, core.ErrCourseNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Course does not exist"})
	case errors.Is(err, core.ErrLedgerUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Network error. Please try again."})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}
