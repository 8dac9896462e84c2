//go:build integration

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/saturnino-fabrica-de-software/presenca/internal/config"
	"github.com/saturnino-fabrica-de-software/presenca/internal/database"
	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/engine"
	facemock "github.com/saturnino-fabrica-de-software/presenca/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/presenca/internal/quality"
	"github.com/saturnino-fabrica-de-software/presenca/internal/repository"
	"github.com/saturnino-fabrica-de-software/presenca/internal/service"
)

var testDB *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	// Start PostgreSQL container with pgvector
	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "presenca_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Printf("Failed to start container: %v\n", err)
		os.Exit(1)
	}

	host, _ := container.Host(ctx)
	port, _ := container.MappedPort(ctx, "5432")
	connStr := fmt.Sprintf("postgres://test:test@%s:%s/presenca_test?sslmode=disable", host, port.Port())

	code := func() int {
		defer func() {
			if err := container.Terminate(ctx); err != nil {
				fmt.Printf("Failed to terminate container: %v\n", err)
			}
		}()

		if err := migrate(connStr); err != nil {
			fmt.Printf("Failed to run migrations: %v\n", err)
			return 1
		}

		testDB, err = database.NewPgxPool(ctx, database.DefaultPoolConfig(connStr))
		if err != nil {
			fmt.Printf("Failed to connect to database: %v\n", err)
			return 1
		}
		defer testDB.Close()

		return m.Run()
	}()

	os.Exit(code)
}

func migrate(dsn string) error {
	db, err := database.NewPool(database.DefaultPoolConfig(dsn))
	if err != nil {
		return err
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, "presenca_test")
	if err != nil {
		return err
	}
	return migrator.Up()
}

func setupIntegrationRouter(t *testing.T) *Router {
	t.Helper()

	logger := testLogger()
	cfg := config.DefaultEngine()

	eng, err := engine.New(cfg, facemock.New(), engine.WithLogger(logger), engine.WithModelName("mock"))
	require.NoError(t, err)
	require.NoError(t, eng.Warmup(context.Background()))

	attendance := service.NewAttendance(
		repository.NewTemplateRepository(testDB),
		eng,
		quality.New(cfg.Quality(), logger),
		cfg,
		nil,
		logger,
	)

	router := NewRouter(logger, &Dependencies{
		Verifier:   eng,
		Attendance: attendance,
		Models:     eng.Registry(),
		DB:         testDB,
		APIKeyHash: domain.HashAPIKey(testAPIKey),
	})
	router.Setup()
	t.Cleanup(func() { _ = router.Shutdown() })
	return router
}

func TestIntegration_ReadyEndpoint(t *testing.T) {
	router := setupIntegrationRouter(t)

	resp, err := router.App().Test(httptest.NewRequest("GET", "/ready", nil), -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, "up", body["database"])
}

func TestIntegration_AttendanceFlow(t *testing.T) {
	router := setupIntegrationRouter(t)
	app := router.App()
	photo := noisePNG(t, 99)

	resp, err := app.Test(imageRequest(t, "POST", "/v1/templates/integration-user", photo), -1)
	require.NoError(t, err)
	require.Equal(t, 201, resp.StatusCode)

	var tpl domain.FaceTemplate
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tpl))
	assert.Equal(t, "integration-user", tpl.UserID)
	assert.False(t, tpl.CreatedAt.IsZero())

	// re-enrolling keeps the template id
	resp, err = app.Test(imageRequest(t, "POST", "/v1/templates/integration-user", photo), -1)
	require.NoError(t, err)
	require.Equal(t, 201, resp.StatusCode)

	var again domain.FaceTemplate
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&again))
	assert.Equal(t, tpl.ID, again.ID)

	resp, err = app.Test(imageRequest(t, "POST", "/v1/attendance/integration-user", photo), -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var result domain.AttendanceResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.True(t, result.Accepted)
	assert.InDelta(t, 1.0, result.Match.Similarity, 1e-6)

	del := httptest.NewRequest("DELETE", "/v1/templates/integration-user", nil)
	del.Header.Set("Authorization", "Bearer "+testAPIKey)
	resp, err = app.Test(del, -1)
	require.NoError(t, err)
	assert.Equal(t, 204, resp.StatusCode)

	resp, err = app.Test(imageRequest(t, "POST", "/v1/attendance/integration-user", photo), -1)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestIntegration_PgvectorExtension(t *testing.T) {
	var version string
	err := testDB.QueryRow(context.Background(), "SELECT extversion FROM pg_extension WHERE extname = 'vector'").Scan(&version)
	require.NoError(t, err)
	t.Logf("pgvector version: %s", version)
}
