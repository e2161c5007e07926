package config

import (
	"errors"
)

var (
	// ErrInternalDBNameEmpty error if config internaldb.name is empty.
	ErrInternalDBNameEmpty = errors.New("toml config internaldb.name can not be empty")

	// ErrLMSDBNameEmpty error if config lmsdb.name is empty.
	ErrLMSDBNameEmpty = errors.New("toml config lmsdb.name can not be empty")

	// ErrParentRoleIDZero error if config provision.parentRoleId is 0.
	ErrParentRoleIDZero = errors.New("toml config provision.parentRoleId can not be 0")
)
