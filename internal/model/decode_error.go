package model

// DecodeError records a decode failure for a journal line.
type DecodeError struct {
	Seq    uint64 `json:"seq"`
	Height uint64 `json:"height"`
	Type   string `json:"type"`
	Error  string `json:"error"`
}
