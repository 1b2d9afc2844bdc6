package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"

	"adaptive-testing-service/internal/app"
	"adaptive-testing-service/internal/domain"
	pgloader "adaptive-testing-service/internal/infra/postgres"
	pgmigrations "adaptive-testing-service/internal/infra/postgres/migrations"
	infraredis "adaptive-testing-service/internal/infra/redis"
)

func TestAdaptiveSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedPool(t, ctx, pgURL, samplePool())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgloader.NewPoolLoader(pool)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	poolRepo := infraredis.NewPoolRepository(redisClient, loader, 5*time.Minute)
	sessionStore := infraredis.NewSessionStore(redisClient, 5*time.Minute, 3*time.Second)

	defaults := domain.Settings{MaxItems: 4, MinItems: 1, PriorSD: 1, AbilityMin: -4, AbilityMax: 4}
	engine := app.NewEngine(sessionStore, poolRepo, defaults, zap.NewNop())

	session, err := engine.Start(ctx, app.StartParams{PoolID: "pool-1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	next, err := engine.NextItem(ctx, session.ID)
	if err != nil {
		t.Fatalf("next: %v", err)
	}

	steps := 0
	lastAbility := session.Ability
	for next.Item != nil {
		steps++
		if steps > 10 {
			t.Fatalf("session did not terminate")
		}
		next, err = engine.Submit(ctx, session.ID, app.SubmitParams{
			ItemID:  next.Item.ID,
			Correct: true,
		})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if next.Session.Ability < lastAbility {
			t.Fatalf("ability decreased after a correct answer: %v -> %v",
				lastAbility, next.Session.Ability)
		}
		lastAbility = next.Session.Ability
	}
	if next.Session.Status != domain.StatusFinished {
		t.Fatalf("expected finished session, got %s", next.Session.Status)
	}
	if steps != 4 {
		t.Fatalf("expected 4 administered items, got %d", steps)
	}

	result, err := engine.Result(ctx, session.ID)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if !result.Finished || len(result.Responses) != 4 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Ability <= 0 {
		t.Fatalf("expected positive ability after all-correct run, got %v", result.Ability)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "cat", "POSTGRES_PASSWORD": "catpass", "POSTGRES_DB": "catdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://cat:catpass@%s:%s/catdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedPool(t *testing.T, ctx context.Context, dsn string, pool domain.Pool) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(pool)
	if err != nil {
		t.Fatalf("marshal pool: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO item_pools (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, pool.ID, string(data)); err != nil {
		t.Fatalf("insert pool: %v", err)
	}
}

func samplePool() domain.Pool {
	return domain.Pool{
		ID: "pool-1",
		Items: []domain.Item{
			{ID: "q1", Difficulty: -1.5, Discrimination: 1.0, Guessing: 0.2},
			{ID: "q2", Difficulty: -0.5, Discrimination: 1.2},
			{ID: "q3", Difficulty: 0, Discrimination: 1.5},
			{ID: "q4", Difficulty: 0.5, Discrimination: 1.1},
			{ID: "q5", Difficulty: 1.5, Discrimination: 0.9, Guessing: 0.1},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
