package controller

import "context"

type contextKey int

const (
	sessionIdCtxKey contextKey = iota
	accountIdCtxKey
)

func (c controller) getSessionIdFromCtx(ctx context.Context) string {
	sessionId, ok := ctx.Value(sessionIdCtxKey).(string)
	if !ok {
		return ""
	}

	return sessionId
}

func (c controller) getAccountIdFromCtx(ctx context.Context) string {
	accountId, ok := ctx.Value(accountIdCtxKey).(string)
	if !ok {
		return ""
	}

	return accountId
}
