package api

// API request/response types for REST endpoints and WebSocket messages

// ==============================
// REST Request Types
// ==============================

// SubmitOrderRequest is the payload for POST /api/v1/orders.
// Qty and Price are not checked here; the gateway rejects and counts bad ones.
type SubmitOrderRequest struct {
	UserID int64  `json:"userId"`
	Side   string `json:"side"` // "buy" or "sell"
	Qty    int64  `json:"qty"`
	Price  int64  `json:"price"`
}

// ==============================
// REST Response Types
// ==============================

// SubmitOrderResponse is the response from order submission
type SubmitOrderResponse struct {
	Status string `json:"status"` // "accepted"
}

// PriceLevel represents [price, size] tuple
type PriceLevel struct {
	Price int64 `json:"price"`
	Size  int64 `json:"size"`
}

// TradeInfo represents a recorded trade
type TradeInfo struct {
	BuyOrderID  uint64 `json:"buyOrderId"`
	SellOrderID uint64 `json:"sellOrderId"`
	Price       int64  `json:"price"`
	Size        int64  `json:"size"`
	Timestamp   int64  `json:"timestamp"` // Unix milliseconds, when audit recorded it
}

// SummaryResponse is returned by GET /api/v1/summary once the pipeline finished
type SummaryResponse struct {
	TotalVolume   int64        `json:"totalVolume"`
	TradeCount    int          `json:"tradeCount"`
	RejectedCount int          `json:"rejectedCount"`
	LastPrice     int64        `json:"lastPrice"`
	Digest        string       `json:"digest"`
	Bids          []PriceLevel `json:"bids"` // Sorted high to low
	Asks          []PriceLevel `json:"asks"` // Sorted low to high
	Error         string       `json:"error,omitempty"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["trades"]
}

// WSAck confirms a subscribe/unsubscribe request
type WSAck struct {
	Type     string   `json:"type"` // "subscribed" or "unsubscribed"
	Channels []string `json:"channels"`
}

// TradeUpdate is broadcast when audit records a trade
type TradeUpdate struct {
	Type string `json:"type"` // "trade"
	TradeInfo
}

// SummaryUpdate is broadcast once when audit shuts down
type SummaryUpdate struct {
	Type          string `json:"type"` // "summary"
	TotalVolume   int64  `json:"totalVolume"`
	TradeCount    int    `json:"tradeCount"`
	RejectedCount int    `json:"rejectedCount"`
	LastPrice     int64  `json:"lastPrice"`
	Digest        string `json:"digest"`
}
