package models

// StoredCredential represents the remembered API key state
type StoredCredential struct {
	APIKey   string `json:"-"` // Never serialize the key itself
	Remember bool   `json:"remember"`
}
