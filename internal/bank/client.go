package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hamedsh/walletledger/internal/common/config"
	"github.com/hamedsh/walletledger/internal/common/logger"
)

// Result is the bank's answer as a value, never an error: the executor has
// to persist whatever happened into third_party_response and decide whether
// to compensate, so every outcome needs a payload.
type Result struct {
	Success  bool
	Response json.RawMessage
}

type depositRequest struct {
	WalletUUID string `json:"wallet_uuid"`
	Amount     int64  `json:"amount"`
}

// Client calls the third-party bank. Stateless and safe to share.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

func NewClient(cfg config.BankConfig, log *logger.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: log,
	}
}

// RequestDeposit asks the bank to credit the wallet owner's account. The
// bank signals acceptance with "status": 200 inside its JSON body; anything
// else, including transport failures, is a non-success Result whose payload
// records the category for audit.
func (c *Client) RequestDeposit(ctx context.Context, walletUUID string, amount int64) Result {
	body, err := json.Marshal(depositRequest{WalletUUID: walletUUID, Amount: amount})
	if err != nil {
		return failure("request_error", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/", bytes.NewReader(body))
	if err != nil {
		return failure("request_error", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		category := "connection_error"
		var uerr *url.Error
		if errors.As(err, &uerr) && uerr.Timeout() {
			category = "timeout"
		} else if errors.Is(err, context.DeadlineExceeded) {
			category = "timeout"
		}
		c.logger.Errorf("Bank %s: wallet=%s amount=%d error=%v", category, walletUUID, amount, err)
		return failure(category, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return failure("request_error", err)
	}

	var parsed struct {
		Status int `json:"status"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		c.logger.Errorf("Bank returned malformed body: wallet=%s amount=%d", walletUUID, amount)
		return failure("request_error", fmt.Errorf("malformed response: %w", err))
	}

	if parsed.Status == 200 {
		c.logger.Infof("Bank deposit succeeded: wallet=%s amount=%d", walletUUID, amount)
		return Result{Success: true, Response: json.RawMessage(data)}
	}

	c.logger.Warnf("Bank deposit rejected: wallet=%s amount=%d response=%s", walletUUID, amount, string(data))
	return Result{Success: false, Response: json.RawMessage(data)}
}

func failure(category string, err error) Result {
	payload, _ := json.Marshal(map[string]string{
		"error":  category,
		"detail": err.Error(),
	})
	return Result{Success: false, Response: payload}
}
