package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetWallet handles GET /api/wallet by proxying the backend wallet resource.
func (h *Handler) GetWallet(c *gin.Context) {
	wallet, err := h.wallet.GetWallet(c.Request.Context())
	if err != nil {
		abortBackendError(c, err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}
