package service

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const (
	ctxTenantIDKey ctxKey = "tenantID"
	ctxActorIDKey  ctxKey = "actorID"
)

func WithTenantID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxTenantIDKey, id)
}

func TenantIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	v, ok := ctx.Value(ctxTenantIDKey).(uuid.UUID)
	return v, ok
}

func WithActorID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxActorIDKey, id)
}

func ActorIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	v, ok := ctx.Value(ctxActorIDKey).(uuid.UUID)
	return v, ok
}

func requireTenant(ctx context.Context) (uuid.UUID, error) {
	tid, ok := TenantIDFromContext(ctx)
	if !ok {
		return uuid.Nil, ErrUnauthorized
	}
	return tid, nil
}

func actorOrNil(ctx context.Context) *uuid.UUID {
	if aid, ok := ActorIDFromContext(ctx); ok {
		return &aid
	}
	return nil
}
