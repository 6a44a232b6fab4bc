package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"event-coordinator/handler"
	"event-coordinator/internal/app"
	"event-coordinator/internal/integrations/paramstore"
	"event-coordinator/internal/repository"
	"event-coordinator/internal/statestore"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	paramPrefix := mustEnv("PARAM_PREFIX")
	backend := strings.ToLower(envString("RECORD_BACKEND", "dynamodb"))
	provider := envString("LLM_PROVIDER", app.ProviderOpenAI)
	flushInterval := time.Duration(envInt("FLUSH_INTERVAL_SECONDS", 60)) * time.Second
	maxMessageLen := envInt("MAX_MESSAGE_LENGTH", 4000)
	tenantID := envInt64Ptr("STORE_TENANT_ID")

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}

	var records statestore.RecordStore
	switch backend {
	case "dynamodb":
		stateTable := mustEnv("STATE_TABLE")
		records, err = repository.NewDynamoClient(awsdynamodb.NewFromConfig(cfg), stateTable)
	case "sqlite":
		records, err = repository.OpenSQLite(envString("SQLITE_PATH", "/tmp/event-coordinator.db"))
	default:
		slog.Error("unknown record backend", "backend", backend)
		os.Exit(1)
	}
	if err != nil {
		slog.Error("failed to create record store", "backend", backend, "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	svc, err := app.Build(ctx, app.Config{
		ParamPrefix:      paramPrefix,
		Provider:         provider,
		FlushInterval:    flushInterval,
		TenantID:         tenantID,
		MaxMessageLength: maxMessageLen,
		Logger:           slog.Default(),
	}, records, ssmClient)
	if err != nil {
		slog.Error("failed to create conversation service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(svc.Conversations)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envInt64Ptr(key string) *int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		slog.Error("environment variable is not an integer", "key", key, "value", v)
		os.Exit(1)
	}
	return &n
}
