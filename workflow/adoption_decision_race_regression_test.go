package workflow_test

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/pawlink/petcircle_backend/config"
	"github.com/pawlink/petcircle_backend/models"
	"github.com/pawlink/petcircle_backend/realtime"
	"github.com/pawlink/petcircle_backend/utils"
	"github.com/pawlink/petcircle_backend/workflow"
	"github.com/sirupsen/logrus"
)

// The decision races below run without Redis on purpose: with no redis lock
// available the MySQL advisory lock is the only serialization, and a decision
// serialized second must see the first one's result, not its own pre-lock
// snapshot.
func raceTestEngine(t *testing.T) *workflow.Engine {
	t.Helper()

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "petcircle_test")

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}
	return workflow.NewEngine(db, logrus.New(), realtime.NewNotifier(), nil)
}

func TestConcurrentApprovalsCreateOneContract(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}
	if config.GetRedisDB() != nil {
		t.Skip("needs the advisory-lock-only path; redis is already connected")
	}

	ctx := context.Background()
	engine := raceTestEngine(t)
	db := config.GetDB()

	poster, err := models.CreateUser(ctx, &models.NewUser{
		Username: "poster", Name: "Poster", City: "Yangon", Password: "secret123",
	})
	if err != nil {
		t.Fatalf("CreateUser(poster): %v", err)
	}
	alice, err := models.CreateUser(ctx, &models.NewUser{
		Username: "alice", Name: "Alice", City: "Yangon", Password: "secret123",
	})
	if err != nil {
		t.Fatalf("CreateUser(alice): %v", err)
	}

	asUser := func(u *models.User) context.Context {
		c := utils.SetUserIdInContext(ctx, u.ID)
		return utils.SetUserNameInContext(c, u.Name)
	}

	post, err := models.CreateAdoptionPost(asUser(poster), &models.NewAdoptionPost{
		PetName: "Bo", PetType: "dog", City: "Yangon",
	}, nil)
	if err != nil {
		t.Fatalf("CreateAdoptionPost: %v", err)
	}
	request, err := engine.CreateAdoptionRequest(asUser(alice), &models.NewAdoptionRequest{
		PostId: post.ID, Type: "adopt-pet", ContactInfo: "alice@test.local",
	}, nil)
	if err != nil {
		t.Fatalf("CreateAdoptionRequest: %v", err)
	}

	// Two identical approvals racing: both validate against pending before
	// the lock, but only the first may apply; the second must re-validate
	// against the committed approved state and fail.
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = engine.SetAdoptionRequestStatus(asUser(poster), request.ID, models.RequestStatusApproved)
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one approval to win, got %d (errs=%v)", succeeded, errs)
	}

	var contracts int64
	if err := db.Model(&models.TransferContract{}).
		Where("request_id = ?", request.ID).Count(&contracts).Error; err != nil {
		t.Fatalf("count contracts: %v", err)
	}
	if contracts != 1 {
		t.Fatalf("one approval must create exactly one contract, got %d", contracts)
	}

	request, err = models.GetAdoptionRequest(ctx, request.ID)
	if err != nil {
		t.Fatalf("GetAdoptionRequest: %v", err)
	}
	if request.Status != models.RequestStatusApproved {
		t.Fatalf("expected approved, got %s", request.Status)
	}
	post, err = models.GetAdoptionPost(ctx, post.ID)
	if err != nil {
		t.Fatalf("GetAdoptionPost: %v", err)
	}
	if post.Status != models.PostStatusAdopted {
		t.Fatalf("post must be adopted, got %s", post.Status)
	}
}

func TestConcurrentApproveAndRejectConverge(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}
	if config.GetRedisDB() != nil {
		t.Skip("needs the advisory-lock-only path; redis is already connected")
	}

	ctx := context.Background()
	engine := raceTestEngine(t)
	db := config.GetDB()

	poster, err := models.CreateUser(ctx, &models.NewUser{
		Username: "poster", Name: "Poster", City: "Yangon", Password: "secret123",
	})
	if err != nil {
		t.Fatalf("CreateUser(poster): %v", err)
	}
	bob, err := models.CreateUser(ctx, &models.NewUser{
		Username: "bob", Name: "Bob", City: "Yangon", Password: "secret123",
	})
	if err != nil {
		t.Fatalf("CreateUser(bob): %v", err)
	}

	asUser := func(u *models.User) context.Context {
		c := utils.SetUserIdInContext(ctx, u.ID)
		return utils.SetUserNameInContext(c, u.Name)
	}

	post, err := models.CreateAdoptionPost(asUser(poster), &models.NewAdoptionPost{
		PetName: "Mimi", PetType: "cat", City: "Yangon",
	}, nil)
	if err != nil {
		t.Fatalf("CreateAdoptionPost: %v", err)
	}
	request, err := engine.CreateAdoptionRequest(asUser(bob), &models.NewAdoptionRequest{
		PostId: post.ID, Type: "adopt-pet", ContactInfo: "bob@test.local",
	}, nil)
	if err != nil {
		t.Fatalf("CreateAdoptionRequest: %v", err)
	}

	// Approve and reject racing on the same pending request. Whichever order
	// the advisory lock imposes, the end state is the same: approve-then-
	// reject is a revocation, reject-then-approve fails on the terminal
	// state. Either way the request ends rejected, the post reopens, and no
	// contract survives.
	var wg sync.WaitGroup
	start := make(chan struct{})
	decisions := []models.RequestStatus{models.RequestStatusApproved, models.RequestStatusRejected}
	errs := make([]error, len(decisions))
	for i, status := range decisions {
		wg.Add(1)
		go func(i int, status models.RequestStatus) {
			defer wg.Done()
			<-start
			_, errs[i] = engine.SetAdoptionRequestStatus(asUser(poster), request.ID, status)
		}(i, status)
	}
	close(start)
	wg.Wait()

	request, err = models.GetAdoptionRequest(ctx, request.ID)
	if err != nil {
		t.Fatalf("GetAdoptionRequest: %v", err)
	}
	if request.Status != models.RequestStatusRejected {
		t.Fatalf("expected rejected, got %s (errs=%v)", request.Status, errs)
	}
	post, err = models.GetAdoptionPost(ctx, post.ID)
	if err != nil {
		t.Fatalf("GetAdoptionPost: %v", err)
	}
	if post.Status != models.PostStatusAvailable {
		t.Fatalf("rejected request must leave the post available, got %s", post.Status)
	}
	var contracts int64
	if err := db.Model(&models.TransferContract{}).
		Where("request_id = ?", request.ID).Count(&contracts).Error; err != nil {
		t.Fatalf("count contracts: %v", err)
	}
	if contracts != 0 {
		t.Fatalf("no contract may outlive a rejected request, got %d", contracts)
	}
}

func TestConcurrentConfirmationsCompleteContract(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()
	engine := raceTestEngine(t)
	db := config.GetDB()

	giver, err := models.CreateUser(ctx, &models.NewUser{
		Username: "giver", Name: "Giver", City: "Yangon", Password: "secret123",
	})
	if err != nil {
		t.Fatalf("CreateUser(giver): %v", err)
	}
	receiver, err := models.CreateUser(ctx, &models.NewUser{
		Username: "receiver", Name: "Receiver", City: "Yangon", Password: "secret123",
	})
	if err != nil {
		t.Fatalf("CreateUser(receiver): %v", err)
	}

	asUser := func(u *models.User) context.Context {
		c := utils.SetUserIdInContext(ctx, u.ID)
		return utils.SetUserNameInContext(c, u.Name)
	}

	post, err := models.CreateAdoptionPost(asUser(giver), &models.NewAdoptionPost{
		PetName: "Rex", PetType: "dog", City: "Yangon",
	}, nil)
	if err != nil {
		t.Fatalf("CreateAdoptionPost: %v", err)
	}
	request, err := engine.CreateAdoptionRequest(asUser(receiver), &models.NewAdoptionRequest{
		PostId: post.ID, Type: "adopt-pet", ContactInfo: "receiver@test.local",
	}, nil)
	if err != nil {
		t.Fatalf("CreateAdoptionRequest: %v", err)
	}
	if _, err := engine.SetAdoptionRequestStatus(asUser(giver), request.ID, models.RequestStatusApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}
	contract, err := models.FindContractForRequest(ctx, request.ID)
	if err != nil || contract == nil {
		t.Fatalf("expected contract, got %v, %v", contract, err)
	}

	// Both parties confirming at once: each sees the other's flag as false in
	// its snapshot, so completion must be decided by the row, and exactly one
	// caller gets to complete the contract.
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, 2)
	for i, u := range []*models.User{giver, receiver} {
		wg.Add(1)
		go func(i int, u *models.User) {
			defer wg.Done()
			<-start
			_, errs[i] = engine.ConfirmTransferContract(asUser(u), contract.ID)
		}(i, u)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("confirm %d: %v", i, err)
		}
	}

	final, err := models.GetTransferContract(ctx, contract.ID)
	if err != nil {
		t.Fatalf("GetTransferContract: %v", err)
	}
	if !final.GiverConfirmed || !final.ReceiverConfirmed {
		t.Fatalf("both flags must be set, got giver=%v receiver=%v", final.GiverConfirmed, final.ReceiverConfirmed)
	}
	if final.Status != models.ContractStatusConfirmed {
		t.Fatalf("contract must complete once both confirm, got %s", final.Status)
	}

	var completionNotes int64
	if err := db.Model(&models.Notification{}).
		Where("title = ?", "Handover confirmed").Count(&completionNotes).Error; err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	if completionNotes != 2 {
		t.Fatalf("completion must notify each party exactly once, got %d", completionNotes)
	}
}
