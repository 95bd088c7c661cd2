package repo

import (
	"github.com/noah-isme/backend-merch/internal/catalog"
	"github.com/noah-isme/backend-merch/internal/order"
)

// Sentinels returned by the adapters. They alias the domain errors so
// services can match them without importing repo.
var (
	ErrDuplicateCode = order.ErrDuplicateCode
	ErrNotFound      = order.ErrNotFound
	ErrNoProduct     = catalog.ErrNotFound
)
