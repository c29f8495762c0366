package broker

// Persisted messages are mirrored to one subject of one stream.
var (
	StreamName        = "MESSAGES"
	SubjectGlobalRoom = StreamName + "." + "room.global"
)
