package tools

import (
	"encoding/json"

	"github.com/contoso-voice/backend/internal/voicelive"
)

// Catalog returns the tool definitions advertised to the model in the session
// configuration. Every entry must have a matching implementation in Funcs.
func Catalog() []voicelive.ToolDefinition {
	return []voicelive.ToolDefinition{
		{
			Type:        "function",
			Name:        "perform_search_based_qna",
			Description: "call this function to respond to the user query on Contoso retail policies, procedures and general QnA",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {"query": {"type": "string"}},
				"required": ["query"]
			}`),
		},
		{
			Type:        "function",
			Name:        "create_delivery_order",
			Description: "call this function to create a delivery order based on order id and destination location",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"order_id": {"type": "string"},
					"destination": {"type": "string"}
				},
				"required": ["order_id", "destination"]
			}`),
		},
		{
			Type:        "function",
			Name:        "perform_call_log_analysis",
			Description: "call this function to analyze call log based on input call log conversation text",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {"call_log": {"type": "string"}},
				"required": ["call_log"]
			}`),
		},
		{
			Type:        "function",
			Name:        "get_products_by_category",
			Description: "call this function to get all the products under a category",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {"category": {"type": "string"}},
				"required": ["category"]
			}`),
		},
		{
			Type:        "function",
			Name:        "search_products_by_category_and_price",
			Description: "call this function to search for products by category and price range",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"category": {"type": "string"},
					"price": {"type": "number"}
				},
				"required": ["category", "price"]
			}`),
		},
		{
			Type:        "function",
			Name:        "order_products",
			Description: "call this function to order products by product id and quantity",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"product_id": {"type": "string"},
					"quantity": {"type": "integer"}
				},
				"required": ["product_id", "quantity"]
			}`),
		},
	}
}
