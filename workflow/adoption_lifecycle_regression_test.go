package workflow_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pawlink/petcircle_backend/config"
	"github.com/pawlink/petcircle_backend/models"
	"github.com/pawlink/petcircle_backend/realtime"
	"github.com/pawlink/petcircle_backend/utils"
	"github.com/pawlink/petcircle_backend/workflow"
	"github.com/sirupsen/logrus"
)

func TestAdoptionRequestLifecycle(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "petcircle_test")
	t.Setenv("TOKEN_HOUR_LIFESPAN", "24")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}
	engine := workflow.NewEngine(db, logrus.New(), realtime.NewNotifier(), nil)

	poster, err := models.CreateUser(ctx, &models.NewUser{
		Username: "poster", Name: "Poster", Email: "poster@test.local",
		City: "Yangon", Password: "secret123",
	})
	if err != nil {
		t.Fatalf("CreateUser(poster): %v", err)
	}
	alice, err := models.CreateUser(ctx, &models.NewUser{
		Username: "alice", Name: "Alice", Email: "alice@test.local",
		City: "Yangon", Password: "secret123",
	})
	if err != nil {
		t.Fatalf("CreateUser(alice): %v", err)
	}
	bob, err := models.CreateUser(ctx, &models.NewUser{
		Username: "bob", Name: "Bob", Email: "bob@test.local",
		City: "Yangon", Password: "secret123",
	})
	if err != nil {
		t.Fatalf("CreateUser(bob): %v", err)
	}

	asUser := func(u *models.User) context.Context {
		c := utils.SetUserIdInContext(ctx, u.ID)
		return utils.SetUserNameInContext(c, u.Name)
	}

	post, err := models.CreateAdoptionPost(asUser(poster), &models.NewAdoptionPost{
		PetName: "Bo", PetType: "dog", City: "Yangon", Reason: "moving abroad",
	}, nil)
	if err != nil {
		t.Fatalf("CreateAdoptionPost: %v", err)
	}

	// The poster cannot request their own post.
	_, err = engine.CreateAdoptionRequest(asUser(poster), &models.NewAdoptionRequest{
		PostId: post.ID, Type: "adopt-pet", ContactInfo: "poster@test.local",
	}, nil)
	if apiErr := utils.AsAPIError(err); apiErr == nil || apiErr.Type != utils.ErrorTypeForbidden {
		t.Fatalf("self-request: expected ForbiddenError, got %v", err)
	}

	aliceReq, err := engine.CreateAdoptionRequest(asUser(alice), &models.NewAdoptionRequest{
		PostId: post.ID, Type: "adopt-pet", ContactInfo: "alice@test.local",
	}, nil)
	if err != nil {
		t.Fatalf("CreateAdoptionRequest(alice): %v", err)
	}
	if aliceReq.Status != models.RequestStatusPending {
		t.Fatalf("new request must be pending, got %s", aliceReq.Status)
	}

	// A second active request by the same requester is rejected.
	_, err = engine.CreateAdoptionRequest(asUser(alice), &models.NewAdoptionRequest{
		PostId: post.ID, Type: "adopt-pet", ContactInfo: "alice@test.local",
	}, nil)
	if apiErr := utils.AsAPIError(err); apiErr == nil || apiErr.Type != utils.ErrorTypeConflict {
		t.Fatalf("duplicate request: expected ConflictError, got %v", err)
	}

	bobReq, err := engine.CreateAdoptionRequest(asUser(bob), &models.NewAdoptionRequest{
		PostId: post.ID, Type: "adopt-pet", ContactInfo: "bob@test.local",
	}, nil)
	if err != nil {
		t.Fatalf("CreateAdoptionRequest(bob): %v", err)
	}

	// Only the poster may decide.
	_, err = engine.SetAdoptionRequestStatus(asUser(alice), aliceReq.ID, models.RequestStatusApproved)
	if apiErr := utils.AsAPIError(err); apiErr == nil || apiErr.Type != utils.ErrorTypeForbidden {
		t.Fatalf("non-poster decision: expected ForbiddenError, got %v", err)
	}

	// Approve alice: post becomes adopted and a pending contract appears.
	aliceReq, err = engine.SetAdoptionRequestStatus(asUser(poster), aliceReq.ID, models.RequestStatusApproved)
	if err != nil {
		t.Fatalf("approve alice: %v", err)
	}
	if aliceReq.Status != models.RequestStatusApproved {
		t.Fatalf("expected approved, got %s", aliceReq.Status)
	}
	post, err = models.GetAdoptionPost(ctx, post.ID)
	if err != nil {
		t.Fatalf("GetAdoptionPost: %v", err)
	}
	if post.Status != models.PostStatusAdopted {
		t.Fatalf("post must be adopted after approval, got %s", post.Status)
	}
	aliceContract, err := models.FindContractForRequest(ctx, aliceReq.ID)
	if err != nil || aliceContract == nil {
		t.Fatalf("expected contract for alice's request, got %v, %v", aliceContract, err)
	}
	if aliceContract.GiverId != poster.ID || aliceContract.ReceiverId != alice.ID {
		t.Fatalf("contract parties wrong: giver=%d receiver=%d", aliceContract.GiverId, aliceContract.ReceiverId)
	}

	// Approving bob supersedes alice: her request flips to rejected and her
	// contract is deleted; at most one approved request survives.
	bobReq, err = engine.SetAdoptionRequestStatus(asUser(poster), bobReq.ID, models.RequestStatusApproved)
	if err != nil {
		t.Fatalf("approve bob: %v", err)
	}
	aliceReq, err = models.GetAdoptionRequest(ctx, aliceReq.ID)
	if err != nil {
		t.Fatalf("GetAdoptionRequest(alice): %v", err)
	}
	if aliceReq.Status != models.RequestStatusRejected {
		t.Fatalf("superseded request must be rejected, got %s", aliceReq.Status)
	}
	if c, _ := models.FindContractForRequest(ctx, aliceReq.ID); c != nil {
		t.Fatalf("superseded contract must be deleted")
	}
	if c, _ := models.FindContractForRequest(ctx, bobReq.ID); c == nil {
		t.Fatalf("expected contract for bob's request")
	}
	var approvedCount int64
	if err := db.Model(&models.AdoptionRequest{}).
		Where("post_id = ? AND status = ?", post.ID, models.RequestStatusApproved).
		Count(&approvedCount).Error; err != nil {
		t.Fatalf("count approved: %v", err)
	}
	if approvedCount != 1 {
		t.Fatalf("expected exactly one approved request, got %d", approvedCount)
	}

	// Revoking bob reopens the post and removes his contract.
	bobReq, err = engine.SetAdoptionRequestStatus(asUser(poster), bobReq.ID, models.RequestStatusRejected)
	if err != nil {
		t.Fatalf("revoke bob: %v", err)
	}
	post, err = models.GetAdoptionPost(ctx, post.ID)
	if err != nil {
		t.Fatalf("GetAdoptionPost: %v", err)
	}
	if post.Status != models.PostStatusAvailable {
		t.Fatalf("post must be available after revocation, got %s", post.Status)
	}
	if c, _ := models.FindContractForRequest(ctx, bobReq.ID); c != nil {
		t.Fatalf("revoked contract must be deleted")
	}

	// Rejected is terminal.
	_, err = engine.SetAdoptionRequestStatus(asUser(poster), bobReq.ID, models.RequestStatusApproved)
	if apiErr := utils.AsAPIError(err); apiErr == nil || apiErr.Type != utils.ErrorTypeValidation {
		t.Fatalf("rejected -> approved: expected ValidationError, got %v", err)
	}
}

func TestTransferContractConfirmation(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "petcircle_test")
	t.Setenv("TOKEN_HOUR_LIFESPAN", "24")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	db := config.GetDB()
	engine := workflow.NewEngine(db, logrus.New(), realtime.NewNotifier(), nil)

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
	outsider, err := models.CreateUser(ctx, &models.NewUser{
		Username: "outsider", Name: "Outsider", City: "Yangon", Password: "secret123",
	})
	if err != nil {
		t.Fatalf("CreateUser(outsider): %v", err)
	}

	asUser := func(u *models.User) context.Context {
		c := utils.SetUserIdInContext(ctx, u.ID)
		return utils.SetUserNameInContext(c, u.Name)
	}

	post, err := models.CreateAdoptionPost(asUser(giver), &models.NewAdoptionPost{
		PetName: "Mimi", PetType: "cat", City: "Yangon",
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

	// Only the two parties may confirm.
	_, err = engine.ConfirmTransferContract(asUser(outsider), contract.ID)
	if apiErr := utils.AsAPIError(err); apiErr == nil || apiErr.Type != utils.ErrorTypeForbidden {
		t.Fatalf("outsider confirm: expected ForbiddenError, got %v", err)
	}

	contract, err = engine.ConfirmTransferContract(asUser(giver), contract.ID)
	if err != nil {
		t.Fatalf("giver confirm: %v", err)
	}
	if contract.Status != models.ContractStatusPending {
		t.Fatalf("one-sided confirmation must keep the contract pending, got %s", contract.Status)
	}

	// Double confirmation by the same party is a conflict.
	_, err = engine.ConfirmTransferContract(asUser(giver), contract.ID)
	if apiErr := utils.AsAPIError(err); apiErr == nil || apiErr.Type != utils.ErrorTypeConflict {
		t.Fatalf("double confirm: expected ConflictError, got %v", err)
	}

	contract, err = engine.ConfirmTransferContract(asUser(receiver), contract.ID)
	if err != nil {
		t.Fatalf("receiver confirm: %v", err)
	}
	if contract.Status != models.ContractStatusConfirmed {
		t.Fatalf("both parties confirmed; expected confirmed, got %s", contract.Status)
	}

	// A completed contract cannot be confirmed again.
	_, err = engine.ConfirmTransferContract(asUser(receiver), contract.ID)
	if apiErr := utils.AsAPIError(err); apiErr == nil || apiErr.Type != utils.ErrorTypeConflict {
		t.Fatalf("confirm after completion: expected ConflictError, got %v", err)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("petcircle-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("petcircle-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=petcircle_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
