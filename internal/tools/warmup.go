package tools

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// WarmupEcomAPI pings the ecom API's /openapi endpoint so the first tool call
// of a conversation does not pay its cold-start delay. Failures are logged
// and otherwise ignored.
func WarmupEcomAPI(ctx context.Context, ecomAPIURL string, logger *zap.Logger) {
	if ecomAPIURL == "" {
		logger.Warn("ecom API URL not configured, skipping warmup")
		return
	}
	endpoint := strings.TrimSuffix(ecomAPIURL, "/") + "/openapi"
	logger.Info("warming up ecom API", zap.String("url", endpoint))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		logger.Warn("ecom API warmup request", zap.Error(err))
		return
	}
	client := &http.Client{Timeout: requestTimeout}
	resp, err := client.Do(req)
	if err != nil {
		logger.Warn("ecom API warmup failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		logger.Info("ecom API warmed up", zap.Int("status", resp.StatusCode))
	} else {
		logger.Warn("ecom API warmup returned non-OK status", zap.Int("status", resp.StatusCode))
	}
}
