package domain

// SystemStatus describes whether mutating operations may reach the store.
type SystemStatus struct {
	Ready           bool   `json:"ready"`
	Online          bool   `json:"online"`
	StoreConfigured bool   `json:"store_configured"`
	StoreEndpoint   string `json:"store_endpoint,omitempty"`
}
