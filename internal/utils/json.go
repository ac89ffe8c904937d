package utils

// JSONWriter is the write half of a websocket connection.
type JSONWriter interface {
	WriteJSON(v interface{}) error
}

// SendJSON sends a JSON payload to a WebSocket connection.
// Fiber's websocket connections are not safe for concurrent writes; the
// caller serializes writes to the same connection.
func SendJSON(w JSONWriter, payload interface{}) error {
	return w.WriteJSON(payload)
}
