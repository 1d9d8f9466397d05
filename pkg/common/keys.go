package common

import "fmt"

var (
	// Session keys
	sessionState string = "session:%s"      // sessionId
	sessionLock  string = "session:lock:%s" // sessionId

	// Sales result cache keys
	salesResult string = "sales:%d:%s" // sessionCreatedAt (ms), templateId
)

var Keys = &redisKeys{}

type redisKeys struct{}

// Session keys
func (rk *redisKeys) SessionState(sessionId string) string {
	return fmt.Sprintf(sessionState, sessionId)
}

func (rk *redisKeys) SessionLock(sessionId string) string {
	return fmt.Sprintf(sessionLock, sessionId)
}

// Sales keys
func (rk *redisKeys) SalesResult(sessionCreatedAtMs int64, templateId string) string {
	return fmt.Sprintf(salesResult, sessionCreatedAtMs, templateId)
}
