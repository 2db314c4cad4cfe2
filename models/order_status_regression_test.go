package models_test

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
	"github.com/pawlink/petcircle_backend/utils"
	"github.com/shopspring/decimal"
)

func TestOrderPromotionCreditsSellerExactlyOnce(t *testing.T) {
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

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}

	buyer, err := models.CreateUser(ctx, &models.NewUser{
		Username: "buyer", Name: "Buyer", City: "Yangon", Password: "secret123",
	})
	if err != nil {
		t.Fatalf("CreateUser(buyer): %v", err)
	}
	seller, err := models.CreateUser(ctx, &models.NewUser{
		Username: "seller", Name: "Seller", City: "Yangon", Password: "secret123",
	})
	if err != nil {
		t.Fatalf("CreateUser(seller): %v", err)
	}

	buyerCtx := utils.SetUserIdInContext(ctx, buyer.ID)
	sellerCtx := utils.SetUserIdInContext(ctx, seller.ID)

	// Sellers cannot order from themselves.
	_, err = models.CreateOrder(sellerCtx, &models.NewOrder{
		SellerId: seller.ID, ProductName: "Dog food", TotalAmount: decimal.NewFromInt(15000),
	})
	if apiErr := utils.AsAPIError(err); apiErr == nil || apiErr.Type != utils.ErrorTypeForbidden {
		t.Fatalf("self-order: expected ForbiddenError, got %v", err)
	}

	order, err := models.CreateOrder(buyerCtx, &models.NewOrder{
		SellerId: seller.ID, ProductName: "Dog food", TotalAmount: decimal.NewFromInt(15000),
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.Status != models.OrderStatusPending {
		t.Fatalf("new order must be pending, got %s", order.Status)
	}

	// Webhook transition, replay is a no-op.
	_, transitioned, err := models.MarkOrderPaid(ctx, order.ID)
	if err != nil || !transitioned {
		t.Fatalf("MarkOrderPaid: transitioned=%v err=%v", transitioned, err)
	}
	_, transitioned, err = models.MarkOrderPaid(ctx, order.ID)
	if err != nil {
		t.Fatalf("MarkOrderPaid(replay): %v", err)
	}
	if transitioned {
		t.Fatalf("replayed webhook must not transition again")
	}

	// Only the seller may mark delivery.
	_, err = models.MarkOrderDelivered(buyerCtx, order.ID)
	if apiErr := utils.AsAPIError(err); apiErr == nil || apiErr.Type != utils.ErrorTypeForbidden {
		t.Fatalf("buyer delivery: expected ForbiddenError, got %v", err)
	}
	if _, err := models.MarkOrderDelivered(sellerCtx, order.ID); err != nil {
		t.Fatalf("MarkOrderDelivered: %v", err)
	}

	// Too fresh: a cutoff in the past leaves the order delivered.
	_, promoted, err := models.PromoteDeliveredOrder(ctx, order.ID, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("PromoteDeliveredOrder(fresh): %v", err)
	}
	if promoted {
		t.Fatalf("order fresher than the cutoff must not be promoted")
	}

	// Old enough: promoted once, seller credited.
	cutoff := time.Now().UTC().Add(time.Minute)
	promotedOrder, promoted, err := models.PromoteDeliveredOrder(ctx, order.ID, cutoff)
	if err != nil || !promoted {
		t.Fatalf("PromoteDeliveredOrder: promoted=%v err=%v", promoted, err)
	}
	if promotedOrder.Status != models.OrderStatusSuccess {
		t.Fatalf("expected success, got %s", promotedOrder.Status)
	}

	sellerAfter, err := models.GetUser(ctx, seller.ID)
	if err != nil {
		t.Fatalf("GetUser(seller): %v", err)
	}
	if !sellerAfter.AccountBalance.Equal(decimal.NewFromInt(15000)) {
		t.Fatalf("expected seller balance 15000, got %s", sellerAfter.AccountBalance)
	}

	// Redelivered promotion job matches zero rows and credits nothing.
	_, promoted, err = models.PromoteDeliveredOrder(ctx, order.ID, cutoff)
	if err != nil {
		t.Fatalf("PromoteDeliveredOrder(redelivery): %v", err)
	}
	if promoted {
		t.Fatalf("second promotion must be a no-op")
	}
	sellerAgain, err := models.GetUser(ctx, seller.ID)
	if err != nil {
		t.Fatalf("GetUser(seller): %v", err)
	}
	if !sellerAgain.AccountBalance.Equal(decimal.NewFromInt(15000)) {
		t.Fatalf("seller must be credited exactly once, got %s", sellerAgain.AccountBalance)
	}

	// The sweep no longer sees the promoted order.
	ids, err := models.FindPromotableOrderIds(ctx, cutoff)
	if err != nil {
		t.Fatalf("FindPromotableOrderIds: %v", err)
	}
	for _, id := range ids {
		if id == order.ID {
			t.Fatalf("promoted order must not be listed as promotable")
		}
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
