package ctxutil

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleMember  = "member"
)

type requestDataKey struct{}

// RequestData is the authenticated caller, attached by the auth middleware.
type RequestData struct {
	UserID      uuid.UUID
	Role        string
	TokenString string
}

// CanManage reports whether the caller may act on other users' assignments.
func (rd *RequestData) CanManage() bool {
	if rd == nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(rd.Role)) {
	case RoleAdmin, RoleManager:
		return true
	default:
		return false
	}
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	if ctx == nil {
		return nil
	}
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		return rd
	}
	return nil
}
