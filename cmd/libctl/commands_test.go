package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/library-backend/internal/loans"
	"github.com/angelmondragon/library-backend/internal/users"
	"github.com/angelmondragon/library-backend/pkg/auth"
	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/db"
	"github.com/angelmondragon/library-backend/pkg/db/dbtest"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/outbox"
)

func testEnv(t *testing.T, cfg *config.Config) (*env, *db.Client) {
	t.Helper()
	client := dbtest.NewClient(t)
	return &env{
		loadConfig: func() (*config.Config, error) { return cfg, nil },
		openDB: func(context.Context, config.DBConfig, *logger.Logger) (*db.Client, func() error, error) {
			return client, func() error { return nil }, nil
		},
		logger: func(*config.Config) *logger.Logger {
			return logger.New(logger.Options{ServiceName: "libctl-test", Output: io.Discard})
		},
	}, client
}

func cliConfig() *config.Config {
	return &config.Config{
		App:     config.AppConfig{Env: "dev"},
		JWT:     config.JWTConfig{Secret: "cli-secret", Issuer: "library-cli", ExpirationMinutes: 15},
		Lending: config.LendingConfig{BorrowLimit: 3, DefaultLoanDays: 14, MaxLoanDays: 60},
	}
}

func run(t *testing.T, e *env, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(e)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTokenCommandMintsParsableToken(t *testing.T) {
	cfg := cliConfig()
	e, _ := testEnv(t, cfg)
	userID := uuid.New()

	out, err := run(t, e, "token", "--user", userID.String(), "--role", "admin")
	require.NoError(t, err)

	claims, err := auth.ParseAccessToken(cfg.JWT, strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, enums.UserRoleAdmin, claims.Role)
}

func TestTokenCommandRejectsBadInput(t *testing.T) {
	e, _ := testEnv(t, cliConfig())

	_, err := run(t, e, "token", "--user", "not-a-uuid")
	assert.Error(t, err)

	_, err = run(t, e, "token", "--user", uuid.NewString(), "--role", "librarian")
	assert.Error(t, err)
}

func TestTokenCommandRefusesProd(t *testing.T) {
	cfg := cliConfig()
	cfg.App.Env = "prod"
	e, _ := testEnv(t, cfg)

	_, err := run(t, e, "token", "--user", uuid.NewString())
	assert.Error(t, err)
}

func TestUserCreateThenStatus(t *testing.T) {
	e, _ := testEnv(t, cliConfig())

	out, err := run(t, e, "user", "create", "--username", "ada", "--email", "ada@example.com")
	require.NoError(t, err)
	var created users.UserDTO
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, enums.MembershipStatusApproved, created.MembershipStatus)

	out, err = run(t, e, "status", created.ID.String())
	require.NoError(t, err)
	var status loans.BorrowingStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, created.ID, status.UserID)
	assert.Equal(t, 3, status.MaxBooksAllowed)
	assert.True(t, status.CanBorrowMore)
}

func TestStatusRejectsInvalidUserID(t *testing.T) {
	e, _ := testEnv(t, cliConfig())

	_, err := run(t, e, "status", "42")
	assert.Error(t, err)
}

func TestSweepOnEmptyDatabase(t *testing.T) {
	e, _ := testEnv(t, cliConfig())

	out, err := run(t, e, "sweep")
	require.NoError(t, err)
	var result loans.SweepResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Zero(t, result.OverduePromoted)
	assert.Zero(t, result.ReservationsExpired)
}

func TestSweepExpiresLapsedReservation(t *testing.T) {
	e, client := testEnv(t, cliConfig())
	ctx := context.Background()

	userRepo := users.NewRepository(client.DB())
	member, err := userRepo.Create(ctx, users.CreateUserDTO{Username: "grace", Email: "grace@example.com"})
	require.NoError(t, err)

	book := &models.Book{Title: "Dune", Author: "Frank Herbert", TotalCopies: 1, AvailableCopies: 0}
	require.NoError(t, client.DB().Create(book).Error)
	expiry := time.Now().Add(-time.Hour)
	loan := &models.Loan{UserID: member.ID, BookID: book.ID, Status: enums.LoanStatusReserved, ReservationExpiry: &expiry}
	require.NoError(t, client.DB().Create(loan).Error)

	out, err := run(t, e, "sweep")
	require.NoError(t, err)
	var result loans.SweepResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 1, result.ReservationsExpired)

	var stored models.Loan
	require.NoError(t, client.DB().First(&stored, "id = ?", loan.ID).Error)
	assert.Equal(t, enums.LoanStatusExpired, stored.Status)
}

func TestDLQListAndRequeue(t *testing.T) {
	e, client := testEnv(t, cliConfig())
	event := models.OutboxEvent{
		EventType:     enums.EventReservationExpired,
		AggregateType: enums.AggregateLoan,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		PublishedAt:   ptrTime(time.Now().UTC()),
		AttemptCount:  1,
	}
	require.NoError(t, client.DB().Create(&event).Error)
	require.NoError(t, outbox.NewDLQRepository(client.DB()).InsertTx(client.DB(), models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   enums.OutboxDLQReasonNonRetryable,
		AttemptCount:  1,
		FailedAt:      time.Now().UTC(),
	}))

	out, err := run(t, e, "dlq", "list", "--reason", "non_retryable")
	require.NoError(t, err)
	var entries []models.OutboxDLQ
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, event.ID, entries[0].EventID)

	_, err = run(t, e, "dlq", "list", "--reason", "gave_up")
	assert.Error(t, err)

	_, err = run(t, e, "dlq", "requeue", event.ID.String())
	require.NoError(t, err)

	var stored models.OutboxEvent
	require.NoError(t, client.DB().First(&stored, "id = ?", event.ID).Error)
	assert.Nil(t, stored.PublishedAt)
	assert.Zero(t, stored.AttemptCount)

	_, err = run(t, e, "dlq", "requeue", event.ID.String())
	assert.Error(t, err)
}

func ptrTime(t time.Time) *time.Time { return &t }
