package models

// Photo change events pushed to observers
const (
	EventPhotoCreated = "photo_created"
	EventPhotoDeleted = "photo_deleted"
)

// PhotoEvent is sent to websocket clients whenever the album changes
type PhotoEvent struct {
	Event string `json:"event"`
	Photo Photo  `json:"photo"`
}
