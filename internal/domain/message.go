package domain

// Message types of the relay protocol. Every message is a JSON object with
// a "type" field.
const (
	TypeStartBroadcasting  = "start-broadcasting"
	TypeStopBroadcasting   = "stop-broadcasting"
	TypeGetBroadcasters    = "get-broadcasters"
	TypeUpdateBroadcasters = "update-broadcasters"
	TypeJoinBroadcast      = "join-broadcast"
	TypeLeaveBroadcast     = "leave-broadcast"
	TypeAudioChunk         = "audio-chunk"
	TypeListenerCount      = "listener-count"
	TypeWhoAmI             = "whoami"
	TypePing               = "ping"
	TypePong               = "pong"
	TypeOffer              = "offer"
	TypeAnswer             = "answer"
	TypeCandidate          = "candidate"
	TypeError              = "error"
)

type Envelope struct {
	Type string `json:"type"`
}

type StartBroadcasting struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// BroadcasterRef is the payload of join-broadcast and leave-broadcast.
type BroadcasterRef struct {
	Type string `json:"type"`
	ID   ConnID `json:"id"`
}

type UpdateBroadcasters struct {
	Type         string        `json:"type"`
	Broadcasters []Broadcaster `json:"broadcasters"`
}

// AudioChunk carries data as base64 in JSON.
type AudioChunk struct {
	Type string `json:"type"`
	AudioFrame
}

type ListenerCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type WhoAmI struct {
	Type         string `json:"type"`
	ID           ConnID `json:"id"`
	Broadcasting bool   `json:"broadcasting"`
	Listening    ConnID `json:"listening,omitempty"`
}

type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Error codes sent in ErrorMessage.
const (
	ErrBadPayload  = "bad_payload"
	ErrRateLimited = "rate_limited"
	ErrUnknownType = "unknown_type"
	ErrMediaFailed = "media_failed"
)
