package workflow

import (
	"context"
	"fmt"

	"github.com/pawlink/petcircle_backend/models"
	"github.com/pawlink/petcircle_backend/realtime"
	"github.com/pawlink/petcircle_backend/utils"
)

// ConfirmTransferContract records one party's confirmation of the physical
// handover. When both parties have confirmed, the contract completes and both
// are notified.
func (e *Engine) ConfirmTransferContract(ctx context.Context, contractId int) (*models.TransferContract, error) {

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, utils.NewSessionError("user id is required", nil)
	}

	contract, err := utils.FetchModel[models.TransferContract](ctx, contractId)
	if err != nil {
		return nil, utils.NewNotFoundError("transfer contract not found", err)
	}

	if userId != contract.GiverId && userId != contract.ReceiverId {
		return nil, utils.NewForbiddenError("only the giver or receiver may confirm", nil)
	}
	if contract.Status == models.ContractStatusCancelled {
		return nil, utils.NewConflictError("contract has been cancelled", nil)
	}
	if contract.Status == models.ContractStatusConfirmed {
		return nil, utils.NewConflictError("contract is already confirmed", nil)
	}

	column := "receiver_confirmed"
	alreadyConfirmed := contract.ReceiverConfirmed
	if userId == contract.GiverId {
		column = "giver_confirmed"
		alreadyConfirmed = contract.GiverConfirmed
	}
	if alreadyConfirmed {
		return nil, utils.NewConflictError("you have already confirmed this handover", nil)
	}

	db := e.DB.WithContext(ctx)
	res := db.Model(&models.TransferContract{}).
		Where("id = ? AND "+column+" = ?", contract.ID, false).
		UpdateColumn(column, true)
	if res.Error != nil {
		return nil, utils.NewInternalError("failed to record confirmation", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, utils.NewConflictError("you have already confirmed this handover", nil)
	}

	// Completion is decided against the row, not this call's snapshot: when
	// both parties confirm at once each reads the other's flag as false, so
	// the guarded update elects exactly one caller to complete the contract.
	completion := db.Model(&models.TransferContract{}).
		Where("id = ? AND giver_confirmed = ? AND receiver_confirmed = ? AND status = ?",
			contract.ID, true, true, models.ContractStatusPending).
		UpdateColumn("status", models.ContractStatusConfirmed)
	if completion.Error != nil {
		return nil, utils.NewInternalError("failed to complete contract", completion.Error)
	}

	updated, err := utils.FetchModel[models.TransferContract](ctx, contract.ID)
	if err != nil {
		return nil, utils.NewNotFoundError("transfer contract not found", err)
	}

	if completion.RowsAffected > 0 {
		for _, receiverId := range []int{updated.GiverId, updated.ReceiverId} {
			notification, err := models.CreateNotification(db, &models.NewNotification{
				ReceiverId: receiverId,
				Title:      "Handover confirmed",
				Subtitle:   "Both parties confirmed the pet handover, the transfer is complete",
				MoreInfo:   fmt.Sprintf("/adoption-post/%d", updated.PostId),
			})
			if err != nil {
				return nil, utils.NewInternalError("contract confirmed but notifying parties failed", err)
			}
			e.push(ctx, realtime.UserChannel(receiverId), realtime.EventNewNotification, notification)
		}
		e.push(ctx, realtime.PostChannel(updated.PostId), realtime.EventContractConfirmed, updated)
	}

	return updated, nil
}
