package models

type WriterJob struct {
	Name        string            // label from the token's storageKeys
	Type        string            // "s3", "gcs", "sftp" or "directServe"
	Credentials map[string]string // everything else, each write destination has different credentials and own write implementations
}

// CallbackPayload is POSTed to the completion callback
type CallbackPayload struct {
	RequestID      string   `json:"request_id"`
	ConversionType string   `json:"conversion_type"`
	Status         string   `json:"status"`
	Error          string   `json:"error,omitempty"`
	OutputName     string   `json:"output_name,omitempty"`
	OutputBytes    int64    `json:"output_bytes,omitempty"`
	Delivered      []string `json:"delivered,omitempty"`
	Timestamp      int64    `json:"timestamp"`
}
