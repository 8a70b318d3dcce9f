package model

// Transfer is the sample payload the demonstration chain carries. The chain itself
// accepts any JSON-serializable value as block data.
type Transfer struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Amount   int64  `json:"amount"`
}
