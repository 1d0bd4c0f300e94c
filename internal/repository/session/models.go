package session

// JoinTicket carries a pending join's parameters between the join request
// and the socket connect. Consumed exactly once.
type JoinTicket struct {
	SessionId   string `redis:"session_id"`
	DeviceId    string `redis:"device_id"`
	AccountId   string `redis:"account_id"`
	AccessToken string `redis:"access_token"`
}
