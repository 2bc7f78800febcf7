package session

// SendDetails records the outcome of the last successful recovery send for
// a session. Hash validation later reads ChannelType and Address back to
// pick the channel and the expected recipient.
type SendDetails struct {
	SentOK         bool
	ChannelType    string
	Address        string
	SentMessage    string
	TimeoutMessage string
	Timeout        int64
}
