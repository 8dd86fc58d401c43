package delivery_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/procopio420/basecommerce/internal/common/types"
	"github.com/procopio420/basecommerce/internal/engines/delivery"
	"github.com/procopio420/basecommerce/internal/platform/domain"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Fatalf("Could not construct pool: %s", err)
	}
	if err := pool.Client.Ping(); err != nil {
		log.Fatalf("Could not connect to Docker: %s", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "17-alpine",
		Env: []string{
			"POSTGRES_USER=basecommerce",
			"POSTGRES_PASSWORD=basecommerce",
			"POSTGRES_DB=basecommerce",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("Could not start resource: %s", err)
	}

	databaseURL := fmt.Sprintf("postgres://basecommerce:basecommerce@%s/basecommerce?sslmode=disable", resource.GetHostPort("5432/tcp"))
	resource.Expire(120)

	pool.MaxWait = 60 * time.Second
	if err := pool.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var poolErr error
		testPool, poolErr = pgxpool.New(ctx, databaseURL)
		if poolErr != nil {
			return poolErr
		}
		return testPool.Ping(ctx)
	}); err != nil {
		log.Fatalf("Could not connect to database: %s", err)
	}

	if err := runMigrations(context.Background(), testPool, "../../../migrations"); err != nil {
		log.Fatalf("Could not run migrations: %s", err)
	}

	code := m.Run()
	testPool.Close()
	if err := pool.Purge(resource); err != nil {
		log.Fatalf("Could not purge resource: %s", err)
	}
	os.Exit(code)
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	for _, name := range files {
		sql, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("reading %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("migration %s failed: %w", name, err)
		}
	}
	return nil
}

type DeliveryProjectorSuite struct {
	suite.Suite
	ctx       context.Context
	projector *delivery.Projector
}

func TestDeliveryProjectorSuite(t *testing.T) {
	suite.Run(t, new(DeliveryProjectorSuite))
}

func (s *DeliveryProjectorSuite) SetupTest() {
	s.ctx = context.Background()
	s.projector = delivery.NewProjector()
	_, err := testPool.Exec(s.ctx, `TRUNCATE delivery_orders`)
	s.Require().NoError(err)
}

func conversion(orderID string) domain.QuoteConvertedPayload {
	return domain.QuoteConvertedPayload{
		QuoteID:     "q-" + orderID,
		OrderID:     orderID,
		ClientID:    "c-1",
		UserID:      "u-1",
		TotalValue:  decimal.NewFromInt(100),
		ConvertedAt: time.Now().UTC(),
	}
}

func statusChange(orderID, from, to string) domain.OrderStatusChangedPayload {
	return domain.OrderStatusChangedPayload{
		OrderID:   orderID,
		OldStatus: from,
		NewStatus: to,
		ChangedAt: time.Now().UTC(),
	}
}

func (s *DeliveryProjectorSuite) order(tenantID types.TenantID, orderID string) (status string, routePending bool) {
	err := testPool.QueryRow(s.ctx, `
		SELECT status, route_pending FROM delivery_orders
		WHERE tenant_id = $1 AND order_id = $2`,
		tenantID.String(), orderID).Scan(&status, &routePending)
	s.Require().NoError(err)
	return status, routePending
}

func (s *DeliveryProjectorSuite) TestConversionPlansDelivery() {
	tenantID := types.NewTenantID()

	s.Require().NoError(s.projector.Apply(s.ctx, tenantID, conversion("o-1"), testPool))

	status, routePending := s.order(tenantID, "o-1")
	s.Equal("planned", status)
	s.False(routePending)
}

func (s *DeliveryProjectorSuite) TestReplayedConversionKeepsCurrentStatus() {
	tenantID := types.NewTenantID()
	s.Require().NoError(s.projector.Apply(s.ctx, tenantID, conversion("o-1"), testPool))
	s.Require().NoError(s.projector.Apply(s.ctx, tenantID, statusChange("o-1", "planned", "confirmed"), testPool))

	// The relay may republish a conversion after the order moved on; the
	// plan must not reset progress.
	s.Require().NoError(s.projector.Apply(s.ctx, tenantID, conversion("o-1"), testPool))

	status, _ := s.order(tenantID, "o-1")
	s.Equal("confirmed", status)
}

func (s *DeliveryProjectorSuite) TestStatusChangeMovesOrder() {
	tenantID := types.NewTenantID()
	s.Require().NoError(s.projector.Apply(s.ctx, tenantID, conversion("o-1"), testPool))

	s.Require().NoError(s.projector.Apply(s.ctx, tenantID, statusChange("o-1", "planned", "confirmed"), testPool))

	status, routePending := s.order(tenantID, "o-1")
	s.Equal("confirmed", status)
	s.False(routePending)
}

func (s *DeliveryProjectorSuite) TestOutForDeliveryFlagsRoutePending() {
	tenantID := types.NewTenantID()
	s.Require().NoError(s.projector.Apply(s.ctx, tenantID, conversion("o-1"), testPool))

	s.Require().NoError(s.projector.Apply(s.ctx, tenantID, statusChange("o-1", "confirmed", delivery.StatusOutForDelivery), testPool))

	status, routePending := s.order(tenantID, "o-1")
	s.Equal(delivery.StatusOutForDelivery, status)
	s.True(routePending)

	// Arriving clears the flag.
	s.Require().NoError(s.projector.Apply(s.ctx, tenantID, statusChange("o-1", delivery.StatusOutForDelivery, "delivered"), testPool))
	status, routePending = s.order(tenantID, "o-1")
	s.Equal("delivered", status)
	s.False(routePending)
}

func (s *DeliveryProjectorSuite) TestStatusChangeBeforeConversionCreatesRow() {
	tenantID := types.NewTenantID()

	s.Require().NoError(s.projector.Apply(s.ctx, tenantID, statusChange("o-5", "planned", "confirmed"), testPool))

	status, _ := s.order(tenantID, "o-5")
	s.Equal("confirmed", status)
}

func (s *DeliveryProjectorSuite) TestRejectsForeignPayload() {
	err := s.projector.Apply(s.ctx, types.NewTenantID(), domain.SaleRecordedPayload{OrderID: "o-1"}, testPool)
	s.ErrorIs(err, domain.ErrCorruptData)
}
