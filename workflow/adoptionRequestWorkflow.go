package workflow

import (
	"context"
	"fmt"
	"mime/multipart"
	"time"

	"github.com/bsm/redislock"
	"github.com/pawlink/petcircle_backend/config"
	"github.com/pawlink/petcircle_backend/mailer"
	"github.com/pawlink/petcircle_backend/models"
	"github.com/pawlink/petcircle_backend/realtime"
	"github.com/pawlink/petcircle_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("petcircle-workflow")

// Engine drives the adoption request lifecycle: request creation rules,
// approval/rejection transitions, exclusivity of the approved state per post,
// and the transfer contract lifecycle.
type Engine struct {
	DB       *gorm.DB
	Logger   *logrus.Logger
	Notifier *realtime.Notifier
	Mailer   *mailer.Mailer
}

func NewEngine(db *gorm.DB, logger *logrus.Logger, notifier *realtime.Notifier, m *mailer.Mailer) *Engine {
	return &Engine{DB: db, Logger: logger, Notifier: notifier, Mailer: m}
}

// push is best effort; a realtime failure never fails the operation.
func (e *Engine) push(ctx context.Context, channel string, event string, payload interface{}) {
	if err := e.Notifier.Trigger(ctx, channel, event, payload); err != nil {
		config.LogError(e.Logger, "workflow", "push", channel, event, err)
	}
}

// RequestStatusEvent is the payload pushed on the post's decision channel.
type RequestStatusEvent struct {
	RequestId int                  `json:"request_id"`
	PostId    int                  `json:"post_id"`
	Status    models.RequestStatus `json:"status"`
}

// CreateAdoptionRequest validates the request rules, persists images and the
// pending request, then notifies the poster.
func (e *Engine) CreateAdoptionRequest(ctx context.Context, input *models.NewAdoptionRequest, files []*multipart.FileHeader) (*models.AdoptionRequest, error) {

	requesterId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || requesterId == 0 {
		return nil, utils.NewSessionError("user id is required", nil)
	}

	post, err := utils.FetchModel[models.AdoptionPost](ctx, input.PostId)
	if err != nil {
		return nil, utils.NewNotFoundError("adoption post not found", err)
	}

	// the poster cannot request their own post
	if post.PosterId == requesterId {
		return nil, utils.NewForbiddenError("cannot request your own post", nil)
	}

	requestType, err := models.ParseRequestType(input.Type)
	if err != nil {
		return nil, utils.NewValidationError(err.Error(), nil)
	}
	if err := utils.ValidateContactInfo(input.ContactInfo); err != nil {
		return nil, utils.NewValidationError(err.Error(), nil)
	}

	// one {pending|approved} request per (requester, post)
	active, err := models.CountActiveRequests(ctx, requesterId, post.ID)
	if err != nil {
		return nil, utils.NewInternalError("failed to check existing requests", err)
	}
	if active > 0 {
		return nil, utils.NewConflictError("you already have an active request on this post", nil)
	}

	uploads, err := models.UploadFiles(ctx, files)
	if err != nil {
		return nil, utils.NewInternalError("failed to upload images", err)
	}

	request := models.AdoptionRequest{
		RequesterId:        requesterId,
		PostId:             post.ID,
		Type:               requestType,
		Status:             models.RequestStatusPending,
		DescriptionForPet:  input.DescriptionForPet,
		DescriptionForUser: input.DescriptionForUser,
		ContactInfo:        input.ContactInfo,
	}

	tx := e.DB.WithContext(ctx).Begin()
	if err := tx.Create(&request).Error; err != nil {
		tx.Rollback()
		return nil, utils.NewInternalError("failed to create request", err)
	}
	if _, err := models.SaveImages(tx, uploads, models.ImageRefAdoptionRequest, request.ID); err != nil {
		tx.Rollback()
		return nil, utils.NewInternalError("failed to save images", err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, utils.NewInternalError("failed to create request", err)
	}

	notification, err := models.CreateNotification(e.DB.WithContext(ctx), &models.NewNotification{
		ReceiverId: post.PosterId,
		Title:      "New adoption request",
		Subtitle:   fmt.Sprintf("Someone wants to %s %s", requestType, post.PetName),
		MoreInfo:   fmt.Sprintf("/adoption-post/%d/requests", post.ID),
	})
	if err != nil {
		return nil, utils.NewInternalError("request created but notifying the poster failed", err)
	}
	e.push(ctx, realtime.UserChannel(post.PosterId), realtime.EventNewNotification, notification)

	return models.GetAdoptionRequest(ctx, request.ID)
}

// GetAdoptionRequestsForPost lists a post's requests for its poster.
func (e *Engine) GetAdoptionRequestsForPost(ctx context.Context, postId int) ([]*models.AdoptionRequest, error) {

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, utils.NewSessionError("user id is required", nil)
	}

	post, err := utils.FetchModel[models.AdoptionPost](ctx, postId)
	if err != nil {
		return nil, utils.NewNotFoundError("adoption post not found", err)
	}
	if post.PosterId != userId {
		return nil, utils.NewForbiddenError("only the poster may view requests", nil)
	}

	results, err := models.GetRequestsForPost(ctx, postId)
	if err != nil {
		return nil, utils.NewInternalError("failed to list requests", err)
	}
	return results, nil
}

// SetAdoptionRequestStatus runs the decision state machine under a per-post
// lock. The mutations run in a fixed order so an observer never sees two
// simultaneously approved requests once the call returns; errors mid-sequence
// are surfaced with the failed stage, already-applied steps are not rolled
// back.
func (e *Engine) SetAdoptionRequestStatus(ctx context.Context, requestId int, newStatus models.RequestStatus) (*models.AdoptionRequest, error) {

	ctx, span := tracer.Start(ctx, "SetAdoptionRequestStatus")
	defer span.End()
	span.SetAttributes(
		attribute.Int("request_id", requestId),
		attribute.String("new_status", string(newStatus)),
	)

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, utils.NewSessionError("user id is required", nil)
	}

	request, err := utils.FetchModel[models.AdoptionRequest](ctx, requestId)
	if err != nil {
		return nil, utils.NewNotFoundError("adoption request not found", err)
	}
	post, err := utils.FetchModel[models.AdoptionPost](ctx, request.PostId)
	if err != nil {
		return nil, utils.NewNotFoundError("adoption post not found", err)
	}

	// only the poster decides
	if post.PosterId != userId {
		return nil, utils.NewForbiddenError("only the poster may decide on requests", nil)
	}

	if err := ValidateTransition(request.Status, newStatus); err != nil {
		return nil, err
	}

	// Redis lock is a best-effort optimization to avoid long in-request
	// blocking. Correctness does not depend on Redis: concurrent decisions
	// are also serialized via the MySQL advisory lock below.
	var lock *redislock.Lock
	if redisLock := config.GetRedisLock(); redisLock != nil {
		lock, err = redisLock.Obtain(ctx, fmt.Sprintf("lock:adopt-decision:%d", post.ID), 30*time.Second, nil)
		if err == redislock.ErrNotObtained {
			return nil, utils.NewConflictError("another decision on this post is in progress", nil)
		} else if err != nil {
			e.Logger.WithFields(logrus.Fields{
				"field":   "SetAdoptionRequestStatus",
				"post_id": post.ID,
			}).Warn("redis lock unavailable; proceeding with advisory lock only")
			lock = nil
		}
	}
	if lock != nil {
		defer lock.Release(context.Background())
	}

	err = e.DB.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := AcquirePostDecisionLock(conn, post.ID); err != nil {
			return utils.NewInternalError("failed to lock post for decision", err)
		}
		defer ReleasePostDecisionLock(conn, post.ID)

		// The pre-lock snapshot may be stale: a concurrent decision can land
		// between the fetch above and the lock. Re-read and re-validate on the
		// locked connection so the transition applies to the current state.
		var current models.AdoptionRequest
		if err := conn.First(&current, request.ID).Error; err != nil {
			return utils.NewNotFoundError("adoption request not found", err)
		}
		var currentPost models.AdoptionPost
		if err := conn.First(&currentPost, post.ID).Error; err != nil {
			return utils.NewNotFoundError("adoption post not found", err)
		}
		if err := ValidateTransition(current.Status, newStatus); err != nil {
			return err
		}

		return e.applyDecision(ctx, conn, &currentPost, &current, newStatus)
	})
	if err != nil {
		return nil, err
	}

	return models.GetAdoptionRequest(ctx, requestId)
}

// applyDecision performs the fixed mutation sequence. Each save is persisted
// individually; a failure reports its stage and leaves earlier steps applied.
func (e *Engine) applyDecision(ctx context.Context, conn *gorm.DB, post *models.AdoptionPost, request *models.AdoptionRequest, newStatus models.RequestStatus) error {

	stage := func(name string, err error) error {
		config.LogError(e.Logger, "workflow", "applyDecision", name, map[string]interface{}{
			"request_id": request.ID,
			"post_id":    post.ID,
			"new_status": newStatus,
		}, err)
		return utils.NewInternalError("failed to process decision at stage "+name, err)
	}

	// 1. revocation undoes the prior commitment
	if IsRevocation(request.Status, newStatus) {
		if err := conn.Model(&models.AdoptionPost{}).Where("id = ?", post.ID).
			UpdateColumn("status", models.PostStatusAvailable).Error; err != nil {
			return stage("revert-post-status", err)
		}
		if err := models.DeleteContractForRequest(conn, request.ID); err != nil {
			return stage("delete-contract", err)
		}
		post.Status = models.PostStatusAvailable
	}

	// 2. approval supersedes any other approved request and binds a contract
	if newStatus == models.RequestStatusApproved {
		other, err := models.FindApprovedRequestForPost(ctx, post.ID, request.ID)
		if err != nil {
			return stage("find-approved-request", err)
		}
		if other != nil {
			if err := conn.Model(&models.AdoptionRequest{}).Where("id = ?", other.ID).
				UpdateColumn("status", models.RequestStatusRejected).Error; err != nil {
				return stage("supersede-request", err)
			}
			if err := models.DeleteContractForRequest(conn, other.ID); err != nil {
				return stage("delete-superseded-contract", err)
			}
			e.push(ctx, realtime.PostChannel(post.ID), realtime.EventAdoptRequestStatus, RequestStatusEvent{
				RequestId: other.ID,
				PostId:    post.ID,
				Status:    models.RequestStatusRejected,
			})
		}

		if err := conn.Model(&models.AdoptionPost{}).Where("id = ?", post.ID).
			UpdateColumn("status", models.PostStatusAdopted).Error; err != nil {
			return stage("mark-post-adopted", err)
		}
		post.Status = models.PostStatusAdopted

		if _, err := models.NewContractForApproval(conn, post, request); err != nil {
			return stage("create-contract", err)
		}
	}

	// 3. persist the new status on the request
	if err := conn.Model(&models.AdoptionRequest{}).Where("id = ?", request.ID).
		UpdateColumn("status", newStatus).Error; err != nil {
		return stage("persist-request-status", err)
	}
	request.Status = newStatus

	// 4. live update on the post's decision channel
	e.push(ctx, realtime.PostChannel(post.ID), realtime.EventAdoptRequestStatus, RequestStatusEvent{
		RequestId: request.ID,
		PostId:    post.ID,
		Status:    newStatus,
	})

	// 5. durable notification for the requester
	notification, err := models.CreateNotification(conn, &models.NewNotification{
		ReceiverId: request.RequesterId,
		Title:      "Your adoption request was " + string(newStatus),
		Subtitle:   fmt.Sprintf("Request on %s has been %s by the poster", post.PetName, newStatus),
		MoreInfo:   fmt.Sprintf("/adoption-post/%d", post.ID),
	})
	if err != nil {
		return stage("create-notification", err)
	}
	e.push(ctx, realtime.UserChannel(request.RequesterId), realtime.EventNewNotification, notification)

	// 6. handover email on approval, fire and forget
	if newStatus == models.RequestStatusApproved && e.Mailer != nil {
		e.sendApprovalEmail(ctx, post, request)
	}

	return nil
}

func (e *Engine) sendApprovalEmail(ctx context.Context, post *models.AdoptionPost, request *models.AdoptionRequest) {
	requester, err := models.GetUser(ctx, request.RequesterId)
	if err != nil {
		config.LogError(e.Logger, "workflow", "sendApprovalEmail", "fetch requester", request.RequesterId, err)
		return
	}

	to := requester.Email
	if to == "" && utils.IsValidEmail(request.ContactInfo) {
		to = request.ContactInfo
	}
	if to == "" {
		return
	}

	poster, err := models.GetUser(ctx, post.PosterId)
	if err != nil {
		config.LogError(e.Logger, "workflow", "sendApprovalEmail", "fetch poster", post.PosterId, err)
		return
	}

	photo := ""
	if images, err := models.GetImagesFor(ctx, models.ImageRefAdoptionPost, post.ID); err == nil && len(images) > 0 {
		photo = fmt.Sprintf("<p><img src=%q alt=%q /></p>", images[0].ImageUrl, post.PetName)
	}

	e.Mailer.SendAsync(to,
		fmt.Sprintf("Your request to adopt %s was approved", post.PetName),
		fmt.Sprintf(
			"<p>Good news! Your request for <b>%s</b> (%s) was approved.</p>"+
				"%s"+
				"<p>Contact %s to arrange the handover. Once the pet has changed hands, both of you confirm it here:</p>"+
				"<p><a href=\"/adoption-post/%d/contract\">Confirm handover</a></p>",
			post.PetName, post.PetType, photo, poster.Name, post.ID))
}
