package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	testRedis "github.com/testcontainers/testcontainers-go/modules/redis"

	cartDomain "github.com/Alturino/foodorder/cart/pkg/domain"
	"github.com/Alturino/foodorder/internal/infra"
	"github.com/Alturino/foodorder/internal/money"
	"github.com/Alturino/foodorder/internal/pricing"
	"github.com/Alturino/foodorder/order/pkg/domain"
)

var testEngine = pricing.NewEngine(pricing.DefaultConfig())

func newOrderRequest(userID uuid.UUID, key string) domain.NewOrder {
	return domain.NewOrder{
		CheckoutKey: key,
		UserID:      userID,
		Lines: []cartDomain.LineItem{
			{ItemID: 1, Name: "Margherita", UnitPrice: money.FromMinor(1299), Quantity: 2},
		},
		DeliveryAddress: domain.DeliveryAddress{Address: "12 MG Road", City: "Bengaluru", PostalCode: "560001"},
		ContactInfo:     domain.ContactInfo{FirstName: "Asha", LastName: "Rao", Email: "asha@example.com", Phone: "9876543210"},
		Subtotal:        money.FromMinor(2598),
		DeliveryFee:     money.FromMinor(399),
		Tax:             money.FromMinor(260),
		GrandTotal:      money.FromMinor(3257),
		Currency:        "INR",
	}
}

func setupMiniredis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// setupContainers starts postgres with the order schema and a redis server.
func setupContainers(t *testing.T, c context.Context) (*pgxpool.Pool, *redis.Client) {
	t.Helper()
	pgContainer, err := postgres.Run(
		c,
		"postgres:16.6-alpine3.21",
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_DB":       "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_PORT":     "5432",
			"POSTGRES_USER":     "postgres",
		}),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.WithDatabase("postgres"),
		postgres.BasicWaitStrategies(),
		postgres.WithInitScripts(
			filepath.Join("..", "..", "..", "migrations", "20261015090000_create_table_orders.up.sql"),
		),
	)
	if err != nil {
		t.Fatalf("failed running postgres container with error: %s", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Errorf("failed to terminate container: %s", err)
		}
	})

	pgConnStr, err := pgContainer.ConnectionString(c, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed getting postgres connection string with error: %s", err)
	}
	pgxConfig, err := pgxpool.ParseConfig(pgConnStr)
	if err != nil {
		t.Fatalf("failed parsing postgres connection string with error: %s", err)
	}
	pgxConfig.AfterConnect = infra.RegisterTypes
	pool, err := pgxpool.NewWithConfig(c, pgxConfig)
	if err != nil {
		t.Fatalf("failed creating postgres pool with error: %s", err)
	}
	t.Cleanup(pool.Close)
	if err = pool.Ping(c); err != nil {
		t.Fatalf("failed ping postgres pool with error: %s", err)
	}

	redisContainer, err := testRedis.Run(
		c,
		"redis:7.4.2-alpine3.21",
		testRedis.WithLogLevel(testRedis.LogLevelVerbose),
	)
	if err != nil {
		t.Fatalf("failed running redis container with error: %s", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(redisContainer); err != nil {
			t.Errorf("failed to terminate container: %s", err)
		}
	})

	redisConnStr, err := redisContainer.ConnectionString(c)
	if err != nil {
		t.Fatalf("failed getting redis connection string with error: %s", err)
	}
	redisOpt, err := redis.ParseURL(redisConnStr)
	if err != nil {
		t.Fatalf("failed parsing redis connection string with error: %s", err)
	}
	redisClient := redis.NewClient(redisOpt)
	t.Cleanup(func() { _ = redisClient.Close() })
	if err = redisClient.Ping(c).Err(); err != nil {
		t.Fatalf("failed ping redis client with error: %s", err)
	}
	return pool, redisClient
}

// recorder keeps every notification it receives.
type recorder struct {
	events chan recorded
}

type recorded struct {
	from domain.OrderStatus
	to   domain.OrderStatus
}

func newRecorder(size int) *recorder {
	return &recorder{events: make(chan recorded, size)}
}

func (r *recorder) OrderStatusChanged(c context.Context, order domain.Order, from domain.OrderStatus) error {
	r.events <- recorded{from: from, to: order.Status}
	return nil
}

func (r *recorder) drain() []recorded {
	var out []recorded
	for {
		select {
		case e := <-r.events:
			out = append(out, e)
		case <-time.After(10 * time.Millisecond):
			return out
		}
	}
}
