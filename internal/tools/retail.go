package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/contoso-voice/backend/config"
)

const (
	searchAPIVersion = "2023-11-01"
	// searchDocLimit caps how many documents are folded into one answer.
	searchDocLimit = 2
	requestTimeout = 30 * time.Second
)

// Retail implements the Contoso retail tool set: knowledge-base search,
// delivery orders, call log analysis and the ecom product/order API.
type Retail struct {
	cfg    config.ToolsConfig
	client *http.Client
	cache  *Cache
	logger *zap.Logger
}

// NewRetail creates the retail tool implementations. cache may be nil.
func NewRetail(cfg config.ToolsConfig, cache *Cache, logger *zap.Logger) *Retail {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retail{
		cfg:    cfg,
		client: &http.Client{Timeout: requestTimeout},
		cache:  cache,
		logger: logger,
	}
}

// Funcs returns the name-to-callable registry for the dispatcher.
func (r *Retail) Funcs() map[string]Func {
	return map[string]Func{
		"perform_search_based_qna":              r.performSearchBasedQnA,
		"create_delivery_order":                 r.createDeliveryOrder,
		"perform_call_log_analysis":             r.performCallLogAnalysis,
		"get_products_by_category":              r.getProductsByCategory,
		"search_products_by_category_and_price": r.searchProductsByCategoryAndPrice,
		"order_products":                        r.orderProducts,
	}
}

func (r *Retail) performSearchBasedQnA(ctx context.Context, args map[string]any) (any, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}
	if r.cfg.SearchEndpoint == "" || r.cfg.SearchKey == "" || r.cfg.SearchIndex == "" {
		return nil, fmt.Errorf("search tool is not configured")
	}
	r.logger.Info("perform_search_based_qna", zap.String("query", query))

	endpoint := fmt.Sprintf("%s/indexes/%s/docs/search?api-version=%s",
		strings.TrimSuffix(r.cfg.SearchEndpoint, "/"), r.cfg.SearchIndex, searchAPIVersion)
	body, _ := json.Marshal(map[string]any{
		"search":                query,
		"queryType":             "semantic",
		"semanticConfiguration": r.cfg.SearchSemanticConfig,
		"top":                   searchDocLimit,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", r.cfg.SearchKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request status: %d", resp.StatusCode)
	}

	var result struct {
		Value []struct {
			Content string `json:"content"`
		} `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	var sb strings.Builder
	for i, doc := range result.Value {
		if i >= searchDocLimit {
			break
		}
		sb.WriteString(" --- Document context start ---")
		sb.WriteString(doc.Content)
		sb.WriteString("\n ---End of Document ---\n")
	}
	r.logger.Info("search aggregation complete", zap.Int("documents", len(result.Value)))
	return sb.String(), nil
}

func (r *Retail) createDeliveryOrder(ctx context.Context, args map[string]any) (any, error) {
	orderID, err := stringArg(args, "order_id")
	if err != nil {
		return nil, err
	}
	destination, err := stringArg(args, "destination")
	if err != nil {
		return nil, err
	}
	if r.cfg.ShipmentOrdersURL == "" {
		return nil, fmt.Errorf("shipment orders endpoint is not configured")
	}
	return r.postJSON(ctx, r.cfg.ShipmentOrdersURL, map[string]any{
		"order_id":    orderID,
		"destination": destination,
	})
}

func (r *Retail) performCallLogAnalysis(ctx context.Context, args map[string]any) (any, error) {
	callLog, err := stringArg(args, "call_log")
	if err != nil {
		return nil, err
	}
	if r.cfg.CallLogAnalysisURL == "" {
		return nil, fmt.Errorf("call log analysis endpoint is not configured")
	}
	var parsed any
	if err := json.Unmarshal([]byte(callLog), &parsed); err != nil {
		r.logger.Warn("invalid JSON for call_log", zap.Error(err))
		return map[string]string{"error": fmt.Sprintf("invalid JSON: %v", err)}, nil
	}
	return r.postJSON(ctx, r.cfg.CallLogAnalysisURL, map[string]any{"call_logs": parsed})
}

func (r *Retail) getProductsByCategory(ctx context.Context, args map[string]any) (any, error) {
	category, err := stringArg(args, "category")
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/api/products/category/%s", url.PathEscape(category))
	return r.cachedEcomGet(ctx, "products:category:"+category, path)
}

func (r *Retail) searchProductsByCategoryAndPrice(ctx context.Context, args map[string]any) (any, error) {
	category, err := stringArg(args, "category")
	if err != nil {
		return nil, err
	}
	price, err := floatArg(args, "price")
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/api/products/search?category=%s&price=%g", url.QueryEscape(category), price)
	key := fmt.Sprintf("products:search:%s:%g", category, price)
	return r.cachedEcomGet(ctx, key, path)
}

func (r *Retail) orderProducts(ctx context.Context, args map[string]any) (any, error) {
	productID, err := stringArg(args, "product_id")
	if err != nil {
		return nil, err
	}
	quantity, err := intArg(args, "quantity")
	if err != nil {
		return nil, err
	}
	// Orders mutate state and are never served from cache.
	path := fmt.Sprintf("/api/orders/?id=%s&quantity=%d", url.QueryEscape(productID), quantity)
	return r.ecomGet(ctx, path)
}

// cachedEcomGet serves product lookups through the optional Redis cache.
func (r *Retail) cachedEcomGet(ctx context.Context, key, path string) (any, error) {
	body, err := r.cache.GetOrFetch(ctx, key, func() (string, error) {
		raw, err := r.ecomGet(ctx, path)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

func (r *Retail) ecomGet(ctx context.Context, path string) (json.RawMessage, error) {
	if r.cfg.EcomAPIURL == "" {
		return nil, fmt.Errorf("ecom API endpoint is not configured")
	}
	endpoint := strings.TrimSuffix(r.cfg.EcomAPIURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ecom request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ecom request status: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

func (r *Retail) postJSON(ctx context.Context, endpoint string, payload map[string]any) (any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	r.logger.Info("tool POST", zap.String("url", endpoint))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("post status: %d", resp.StatusCode)
	}
	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return string(text), nil
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	return s, nil
}

func floatArg(args map[string]any, key string) (float64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing argument %q", key)
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("argument %q must be a number", key)
	}
	return f, nil
}

func intArg(args map[string]any, key string) (int, error) {
	f, err := floatArg(args, key)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}
