package authz

import "errors"

var (
	ErrNotFound      = errors.New("authz: not found")
	ErrAlreadyExists = errors.New("authz: already exists")
	ErrInvalidInput  = errors.New("authz: invalid input")
	ErrUnauthorized  = errors.New("authz: unauthorized")
	ErrInvalidToken  = errors.New("authz: invalid token")
)
