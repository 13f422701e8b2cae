package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/andikaprasetya/kantin-backend/api/middleware"
	"github.com/andikaprasetya/kantin-backend/pkg/enums"
	pkgerrors "github.com/andikaprasetya/kantin-backend/pkg/errors"
)

// actorUserID reads the authenticated user id seeded by the auth middleware.
func actorUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user identity")
	}
	return id, nil
}

func actorRole(r *http.Request) enums.ActorRole {
	return enums.ActorRole(middleware.RoleFromContext(r.Context()))
}

// actorShopID returns the tenant's shop binding, nil for other roles.
func actorShopID(r *http.Request) (*uuid.UUID, error) {
	raw := middleware.ShopIDFromContext(r.Context())
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid shop identity")
	}
	return &id, nil
}

// requireShopID is for tenant-scoped endpoints where a shop binding is mandatory.
func requireShopID(r *http.Request) (uuid.UUID, error) {
	id, err := actorShopID(r)
	if err != nil {
		return uuid.Nil, err
	}
	if id == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "shop context required")
	}
	return *id, nil
}
