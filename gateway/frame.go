package gateway

// Frame types exchanged over the websocket.
const (
	FrameMessage = "message" // client to server: a chat message
	FrameText    = "text"    // server to client: a text reply
	FrameMedia   = "media"   // server to client: an attachment
	FrameError   = "error"   // server to client: the message was not accepted
)

// Frame is the JSON envelope for websocket traffic. Data is base64 encoded
// on the wire.
type Frame struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     []byte `json:"data,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Filename string `json:"filename,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// Inbound is the body of a POST /messages webhook.
type Inbound struct {
	From string `json:"from"`
	Body string `json:"body"`
}
