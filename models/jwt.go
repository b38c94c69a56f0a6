package models

// Claims are carried by the optional bearer token on /convert
type Claims struct {
	Issuer    string       `json:"iss"` // optional
	Subject   string       `json:"sub"`
	IssuedAt  int64        `json:"iat"`
	ExpiresAt int64        `json:"exp"`
	Delivery  DeliverySpec `json:"delivery"`
}

// DeliverySpec says where a converted file goes besides the HTTP response
type DeliverySpec struct {
	CompletionCallback string            `json:"completionCallback,omitempty"` // callback URL
	CallbackHeaders    map[string]string `json:"callbackHeaders,omitempty"`

	// Storage backends: each entry names a key registered via /credentials
	StorageKeys map[string]string `json:"storageKeys,omitempty"` // e.g., {"archive":"abc123", "partner":"def456"}

	// Folder (or key prefix) inside every backend
	SubDir string `json:"subDir,omitempty"`
}

// Wants reports whether anything beyond the HTTP response was requested
func (d DeliverySpec) Wants() bool {
	return d.CompletionCallback != "" || len(d.StorageKeys) > 0
}
