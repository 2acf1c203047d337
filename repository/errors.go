package repository

import "errors"

// Sentinel errors every repository method returns through errors.Is,
// translated to apperr codes by the service layer.
var (
	ErrNotFound     = errors.New("entity not found")
	ErrConflict     = errors.New("entity already exists")
	ErrDuplicateName = errors.New("duplicate name")
)
