package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// postRedemption fires a redemption without test assertions, so it is safe
// to call from worker goroutines.
func postRedemption(serverURL, token string, payload map[string]any) (int, int64, error) {
	raw, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, serverURL+"/api/v1/redemptions", bytes.NewReader(raw))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	var body struct {
		Data struct {
			DiscountCents int64 `json:"discount_cents"`
		} `json:"data"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body.Data.DiscountCents, nil
}

// Twenty clerks scan the same receipt at once. Exactly one redemption may
// land; the rest must see the order-already-redeemed conflict.
func TestConcurrency_DuplicateOrderRedeemsOnce(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	merchantID := app.seedMerchant(t, 300)
	walletID := app.seedDriverWallet(t, "tok-driver-1", "pass-secret-1", 10000)
	token := app.login(t, merchantID)

	const workers = 20
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		conflicts atomic.Int64
		others    atomic.Int64
	)

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			status, _, err := postRedemption(app.server.URL, token, map[string]any{
				"pass_token":        "tok-driver-1",
				"order_total_cents": 1000,
				"external_order_id": "SQ-RACE-1",
			})
			switch {
			case err != nil:
				others.Add(1)
			case status == http.StatusCreated:
				succeeded.Add(1)
			case status == http.StatusConflict:
				conflicts.Add(1)
			default:
				others.Add(1)
			}
		}()
	}
	wg.Wait()

	t.Logf("succeeded=%d conflicts=%d others=%d", succeeded.Load(), conflicts.Load(), others.Load())
	assert.Equal(t, int64(1), succeeded.Load(), "exactly one redemption should win")
	assert.Equal(t, int64(workers-1), conflicts.Load())
	assert.Equal(t, int64(0), others.Load())

	// Exactly one perk left the wallet.
	balance, err := app.ledgerSvc.GetBalance(context.Background(), walletID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000-300), balance)
}

// Parallel redemptions without external order ids drain the wallet down to
// zero and never past it.
func TestConcurrency_ParallelRedemptionsNeverOverdraw(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	merchantID := app.seedMerchant(t, 300)
	walletID := app.seedDriverWallet(t, "tok-driver-1", "pass-secret-1", 500)
	token := app.login(t, merchantID)

	const workers = 10
	var (
		wg           sync.WaitGroup
		totalSpent   atomic.Int64
		insufficient atomic.Int64
	)

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			status, discount, err := postRedemption(app.server.URL, token, map[string]any{
				"pass_token":        "tok-driver-1",
				"order_total_cents": 1000,
			})
			if err != nil {
				return
			}
			switch status {
			case http.StatusCreated:
				totalSpent.Add(discount)
			case http.StatusPaymentRequired:
				insufficient.Add(1)
			}
		}()
	}
	wg.Wait()

	balance, err := app.ledgerSvc.GetBalance(context.Background(), walletID)
	require.NoError(t, err)
	t.Logf("spent=%d insufficient=%d balance=%d", totalSpent.Load(), insufficient.Load(), balance)

	assert.Equal(t, int64(500), totalSpent.Load(), "the wallet drains exactly to zero")
	assert.Equal(t, int64(0), balance)
	assert.Equal(t, int64(workers-2), insufficient.Load(), "300 then 200 succeed, the rest bounce")
}

// Concurrent grants and redemptions must leave every wallet's balance equal
// to the signed sum of its transaction log.
func TestConcurrency_BalanceMatchesTransactionLog(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	merchantID := app.seedMerchant(t, 100)
	walletID := app.seedDriverWallet(t, "tok-driver-1", "pass-secret-1", 1000)
	token := app.login(t, merchantID)

	const workers = 16
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		i := i
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				orderID := fmt.Sprintf("SQ-MIX-%d", i)
				_, _, _ = postRedemption(app.server.URL, token, map[string]any{
					"pass_token":        "tok-driver-1",
					"order_total_cents": 1000,
					"external_order_id": orderID,
				})
				return
			}
			raw, _ := json.Marshal(map[string]any{
				"owner_type":   "driver",
				"owner_id":     app.driverOwnerID(walletID).String(),
				"amount_cents": 50,
				"kind":         "driver_earn",
			})
			req, _ := http.NewRequest(http.MethodPost, app.server.URL+"/api/v1/nova/grants", bytes.NewReader(raw))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+token)
			resp, err := http.DefaultClient.Do(req)
			if err == nil {
				resp.Body.Close()
			}
		}()
	}
	wg.Wait()

	balance, err := app.ledgerSvc.GetBalance(context.Background(), walletID)
	require.NoError(t, err)
	logSum := app.txRepo.signedSum(walletID)
	t.Logf("balance=%d log_sum=%d", balance, logSum)

	assert.Equal(t, logSum, balance, "balance must equal the signed transaction sum")
	assert.GreaterOrEqual(t, balance, int64(0))
	// 8 redemptions of 100 against 1000 seeded plus 8 grants of 50.
	assert.Equal(t, int64(1000-8*100+8*50), balance)
}
