package models

// PageRequest is the query of GET /api/devices.
type PageRequest struct {
	Limit      int    `form:"limit" binding:"omitempty,min=0"`
	Cursor     string `form:"cursor"`
	LocationID *int64 `form:"location_id"`
}

// HistoryRequest is the query of the history endpoints. Times are RFC 3339.
type HistoryRequest struct {
	Start string `form:"start"`
	End   string `form:"end"`
	Hours int    `form:"hours" binding:"omitempty,min=1"`
	Limit int    `form:"limit" binding:"omitempty,min=0"`
}

type CompareRequest struct {
	DevEUIs []string `form:"dev_eui" binding:"required,min=1,max=50"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
