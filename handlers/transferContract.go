package handlers

import (
	"github.com/gin-gonic/gin"
)

// ConfirmTransferContract records the caller's side of the handover.
func (h *Handler) ConfirmTransferContract() gin.HandlerFunc {
	return func(c *gin.Context) {
		contractId, err := paramInt(c, "contractId")
		if err != nil {
			respondError(c, err)
			return
		}

		contract, err := h.Engine.ConfirmTransferContract(c.Request.Context(), contractId)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, "handover confirmation recorded", contract)
	}
}
