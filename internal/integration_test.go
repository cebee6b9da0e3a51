package internal_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"money_transfer/internal/api"
	"money_transfer/internal/domain"
	"money_transfer/internal/processor"
	"money_transfer/internal/repository"
	"money_transfer/internal/repository/memory"
	"money_transfer/internal/scheduler"
	"money_transfer/internal/service"
	"money_transfer/pkg/auth"
	"money_transfer/pkg/crypto"
	"money_transfer/pkg/metrics"
	"money_transfer/pkg/rabbitmq"

	"github.com/shopspring/decimal"
)

type recordingPublisher struct {
	mu       sync.Mutex
	messages []rabbitmq.Message
}

func (p *recordingPublisher) Publish(ctx context.Context, msg rabbitmq.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

type testEnv struct {
	store     *memory.Store
	metrics   *metrics.MetricsCollector
	publisher *recordingPublisher
	events    *service.EventService
	auth      *service.AuthService
	router    http.Handler
	logger    *slog.Logger
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.Default()
	store := memory.NewStore()
	metricsCollector := metrics.NewMetricsCollector(logger)
	signer := crypto.NewSigner("test-secret", logger)
	issuer := auth.NewTokenIssuer("jwt-secret", time.Minute)
	publisher := &recordingPublisher{}

	events := service.NewEventService(publisher, signer, metricsCollector, "", 2, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = events.Shutdown(ctx)
	})

	transfers := processor.NewTransferProcessor(store,
		processor.NewFailureLogger(store, time.Second, logger),
		processor.NewMemoryLocker(),
		processor.WithLogger(logger),
		processor.WithMetrics(metricsCollector),
		processor.WithEventSink(events))
	history := processor.NewHistoryService(store.Transactions(), logger)
	accounts := service.NewAccountService(store, nil, logger)
	authService := service.NewAuthService(store, accounts, issuer, nil, logger)

	handler := api.NewAPIHandler(transfers, history, accounts, authService, signer, logger)
	router := api.NewRouter(handler, api.RouterOptions{Issuer: issuer, Metrics: metricsCollector, Logger: logger})

	return &testEnv{
		store:     store,
		metrics:   metricsCollector,
		publisher: publisher,
		events:    events,
		auth:      authService,
		router:    router,
		logger:    logger,
	}
}

func call(t *testing.T, env *testEnv, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request failed: %v", err)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, r)
	return w
}

func mustRegister(t *testing.T, env *testEnv, username, holder string, balance int64) service.LoginResponse {
	t.Helper()
	w := call(t, env, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username":    username,
		"password":    "Secret#123",
		"holder_name": holder,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s failed: %d %s", username, w.Code, w.Body.String())
	}
	var resp service.LoginResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode register response failed: %v", err)
	}

	if balance > 0 {
		ctx := context.Background()
		acc, err := env.store.Accounts().GetByID(ctx, resp.AccountID)
		if err != nil {
			t.Fatalf("load account failed: %v", err)
		}
		acc.Balance = decimal.NewFromInt(balance)
		if err := env.store.Accounts().Save(ctx, acc); err != nil {
			t.Fatalf("fund account failed: %v", err)
		}
	}
	return resp
}

func transfer(t *testing.T, env *testEnv, token, from, to string, amount int64, key string) (domain.TransferResult, int) {
	t.Helper()
	w := call(t, env, http.MethodPost, "/api/v1/transfers", token, map[string]any{
		"from_account_id": from,
		"to_account_id":   to,
		"amount":          amount,
		"idempotency_key": key,
	})
	var result domain.TransferResult
	if w.Code == http.StatusOK {
		if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
			t.Fatalf("decode transfer response failed: %v", err)
		}
	}
	return result, w.Code
}

func balanceOf(t *testing.T, env *testEnv, id string) decimal.Decimal {
	t.Helper()
	acc, err := env.store.Accounts().GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get account %s failed: %v", id, err)
	}
	return acc.Balance
}

func TestIntegration_TransferFlow(t *testing.T) {
	env := setup(t)
	alice := mustRegister(t, env, "alice", "Alice Smith", 500)
	bob := mustRegister(t, env, "bob", "Bob Jones", 0)

	result, code := transfer(t, env, alice.Token, alice.AccountID, bob.AccountID, 100, "k-1")
	if code != http.StatusOK || result.Status != domain.StatusSuccess {
		t.Fatalf("expected success, got %d %+v", code, result)
	}

	result, _ = transfer(t, env, alice.Token, alice.AccountID, bob.AccountID, 10000, "k-2")
	if result.Status != domain.StatusFailed || result.Message != "Insufficient balance. Available: 400, Requested: 10000" {
		t.Fatalf("unexpected failure result %+v", result)
	}

	result, _ = transfer(t, env, alice.Token, alice.AccountID, bob.AccountID, 100, "k-1")
	if result.Message != "Duplicate transfer request" {
		t.Fatalf("expected duplicate, got %+v", result)
	}

	if !balanceOf(t, env, alice.AccountID).Equal(decimal.NewFromInt(400)) {
		t.Fatalf("unexpected alice balance %s", balanceOf(t, env, alice.AccountID))
	}
	if !balanceOf(t, env, bob.AccountID).Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected bob balance %s", balanceOf(t, env, bob.AccountID))
	}

	w := call(t, env, http.MethodGet, "/api/v1/transfers/history/"+bob.AccountID, bob.Token, nil)
	var records []domain.TransactionRecord
	if err := json.NewDecoder(w.Body).Decode(&records); err != nil {
		t.Fatalf("decode history failed: %v", err)
	}
	if len(records) != 2 || records[0].Status != domain.StatusFailed || records[1].Status != domain.StatusSuccess {
		t.Fatalf("unexpected history %+v", records)
	}

	deadline := time.Now().Add(2 * time.Second)
	for env.publisher.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := env.publisher.count(); got != 2 {
		t.Fatalf("expected 2 published events (duplicate excluded), got %d", got)
	}
}

func TestIntegration_ConcurrentTransfersConserveMoney(t *testing.T) {
	env := setup(t)
	alice := mustRegister(t, env, "alice", "Alice Smith", 1000)
	bob := mustRegister(t, env, "bob", "Bob Jones", 1000)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := alice, bob
			if i%2 == 1 {
				from, to = bob, alice
			}
			transfer(t, env, from.Token, from.AccountID, to.AccountID, int64(10+i), fmt.Sprintf("c-%d", i))
		}(i)
	}
	wg.Wait()

	total := balanceOf(t, env, alice.AccountID).Add(balanceOf(t, env, bob.AccountID))
	if !total.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("money not conserved, total %s", total)
	}

	logs, err := env.store.Transactions().List(context.Background())
	if err != nil {
		t.Fatalf("list logs failed: %v", err)
	}
	if len(logs) != 40 {
		t.Fatalf("expected one log per transfer, got %d", len(logs))
	}
}

func TestIntegration_SameKeyRacesProduceOneTransfer(t *testing.T) {
	env := setup(t)
	alice := mustRegister(t, env, "alice", "Alice Smith", 1000)
	bob := mustRegister(t, env, "bob", "Bob Jones", 0)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, _ := transfer(t, env, alice.Token, alice.AccountID, bob.AccountID, 100, "shared")
			if result.Status == domain.StatusSuccess {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one success, got %d", successes)
	}
	if !balanceOf(t, env, bob.AccountID).Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected bob balance %s", balanceOf(t, env, bob.AccountID))
	}
}

func TestIntegration_BalanceSnapshot(t *testing.T) {
	env := setup(t)
	mustRegister(t, env, "alice", "Alice Smith", 300)
	mustRegister(t, env, "bob", "Bob Jones", 200)

	s := scheduler.NewScheduler(env.store.Accounts(), env.metrics, "", env.logger)
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	rec := httptest.NewRecorder()
	env.metrics.GetHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !bytes.Contains(rec.Body.Bytes(), []byte("ledger_total_balance 500")) {
		t.Fatalf("expected ledger total in metrics output")
	}
}

func TestIntegration_AdminSeedAndDeactivate(t *testing.T) {
	env := setup(t)
	alice := mustRegister(t, env, "alice", "Alice Smith", 0)

	if err := env.auth.EnsureAdmin(context.Background(), "root", "Admin#123"); err != nil {
		t.Fatalf("ensure admin failed: %v", err)
	}
	w := call(t, env, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "root", "password": "Admin#123"})
	var admin service.LoginResponse
	if err := json.NewDecoder(w.Body).Decode(&admin); err != nil {
		t.Fatalf("decode admin login failed: %v", err)
	}

	if w := call(t, env, http.MethodDelete, "/api/v1/admin/accounts/"+alice.AccountID, admin.Token, nil); w.Code != http.StatusOK {
		t.Fatalf("deactivate failed: %d", w.Code)
	}

	w = call(t, env, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "alice", "password": "Secret#123"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected inactive account login to fail, got %d", w.Code)
	}

	if _, err := env.store.Accounts().GetByID(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
