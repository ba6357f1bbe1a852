package config

import "errors"

var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrInvalidFormat  = errors.New("config has invalid format")
	ErrInvalidValue   = errors.New("config has invalid value")

	ErrTokenAndTokenFile = errors.New("token and token file are both set")
	ErrNoToken           = errors.New("no token provided")
	ErrTokenFileNotFound = errors.New("token file not found")
	ErrTokenFileEmpty    = errors.New("token file is empty")
)
