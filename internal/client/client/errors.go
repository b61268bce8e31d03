package client

import (
	"errors"

	"github.com/dmitrijs2005/memokeeper/internal/common"
)

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found on server")

	// ErrEncryptionNotEnabled is returned by ExchangeKey for accounts that
	// do not use field encryption.
	ErrEncryptionNotEnabled = common.ErrEncryptionNotEnabled
)
