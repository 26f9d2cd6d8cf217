package server

// Request types for WebSocket commands with validation tags.

// ProfileRequest is the request body for session/* and report/get.
type ProfileRequest struct {
	Profile string `json:"profile" validate:"required,max=32,alphanum"`
}

// EventsRequest is the request body for events/list.
type EventsRequest struct {
	Limit  int    `json:"limit" validate:"omitempty,gte=1,lte=500"`
	Offset int    `json:"offset" validate:"gte=0"`
	Filter string `json:"filter" validate:"omitempty,oneof=session loud"`
}
