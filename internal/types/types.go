package types

// Direction of a price move relative to the last observed price.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// Notification is emitted by the alert engine when a watched coin moves
// past a user's threshold between two poll cycles.
type Notification struct {
	ChatID        int64   `json:"chat_id"`
	CoinID        string  `json:"coin_id"`
	CoinName      string  `json:"coin_name"`
	Direction     string  `json:"direction"` // "up" or "down"
	CurrentPrice  float64 `json:"current_price"`
	LastPrice     float64 `json:"last_price"`
	ChangePercent float64 `json:"change_percent"`
	Threshold     float64 `json:"threshold"`
}
