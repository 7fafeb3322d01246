package models

type ProcessOrderTask struct {
	OrderId        string `json:"order_id"`
	ReprocessCount int    `json:"reprocess_count"`
}

type ExpireOrderTask struct {
	OrderId string `json:"order_id"`
}
