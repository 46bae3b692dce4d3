package entity

import "time"

// Secret is a stored configuration value (API keys, admin password, Drive folder).
type Secret struct {
	SecretID  string    `json:"secret_id"`
	Value     string    `json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}
