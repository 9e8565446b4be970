package global

// Redis key namespace. Every shared structure of the gateway lives under
// the chirp: prefix so a shared Redis can host more than one deployment.

const (
	BroadcastChannel = "chirp:broadcast"
	SequenceKey      = "chirp:seq"
	EventLogKey      = "chirp:eventlog"
	EventLogTimeKey  = "chirp:eventlog:ts"
)

func PresenceKey(userID string) string { return "chirp:presence:" + userID }

func LastSeenThrottleKey(userID string) string { return "chirp:lastseen:" + userID }

func IdemKey(clientTempID string) string { return "chirp:idem:" + clientTempID }

func RateKey(userID, class string) string { return "chirp:rate:" + class + ":" + userID }
