package model

// ChatSession is the per-chat state kept between telegram updates.
type ChatSession struct {
	UserID      int64 `json:"user_id"`
	HoldingPage int   `json:"holding_page"`
}
