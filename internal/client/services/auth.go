// Package services holds the application services of the memokeeper client:
// authentication and the Session that wires the sync engine together for a
// logged-in account.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/memokeeper/internal/client/client"
	"github.com/dmitrijs2005/memokeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/memokeeper/internal/common"
	"github.com/dmitrijs2005/memokeeper/internal/cryptox"
	"github.com/dmitrijs2005/memokeeper/internal/dbx"
)

// ErrLocalDataNotAvailable means no identity is cached for offline login.
var ErrLocalDataNotAvailable = errors.New("local data unavailable")

// AuthClient is the part of client.Client used for authentication.
type AuthClient interface {
	Register(ctx context.Context, username string, salt []byte, verifier []byte) error
	GetSalt(ctx context.Context, username string) ([]byte, error)
	Login(ctx context.Context, username string, verifier []byte) (string, error)
	Ping(ctx context.Context) error
	Close() error
}

// AuthService authenticates the user online or, when the server cannot be
// reached, against the identity cached by the last online login. Both login
// variants return the account (owner) id.
type AuthService interface {
	OfflineLogin(ctx context.Context, username string, password []byte) (string, error)
	OnlineLogin(ctx context.Context, username string, password []byte) (string, error)
	Register(ctx context.Context, username string, password []byte) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
	ClearOfflineData(ctx context.Context) error
}

type authService struct {
	client AuthClient
	db     *sql.DB
}

func NewAuthService(client AuthClient, db *sql.DB) AuthService {
	return &authService{client: client, db: db}
}

// OfflineLogin verifies the password against the cached verifier. Missing
// cache is ErrLocalDataNotAvailable, a mismatch client.ErrUnauthorized.
func (a *authService) OfflineLogin(ctx context.Context, username string, password []byte) (string, error) {
	id, err := metadata.LoadIdentity(ctx, metadata.NewSQLiteRepository(a.db))
	if err != nil {
		return "", err
	}
	if id == nil || id.OwnerID == "" {
		return "", ErrLocalDataNotAvailable
	}
	if id.Username != username {
		return "", client.ErrUnauthorized
	}

	masterKeyCandidate := cryptox.DeriveMasterKey(password, id.Salt)
	defer common.WipeByteArray(masterKeyCandidate)
	verifierCandidate := cryptox.MakeVerifier(masterKeyCandidate)

	if subtle.ConstantTimeCompare(id.Verifier, verifierCandidate) == 0 {
		return "", client.ErrUnauthorized
	}
	return id.OwnerID, nil
}

// OnlineLogin authenticates against the server and caches the identity for
// later offline logins.
func (a *authService) OnlineLogin(ctx context.Context, userName string, password []byte) (string, error) {
	salt, err := a.client.GetSalt(ctx, userName)
	if err != nil {
		return "", fmt.Errorf("get salt error: %w", err)
	}

	masterKeyCandidate := cryptox.DeriveMasterKey(password, salt)
	defer common.WipeByteArray(masterKeyCandidate)
	verifierCandidate := cryptox.MakeVerifier(masterKeyCandidate)

	ownerID, err := a.client.Login(ctx, userName, verifierCandidate)
	if err != nil {
		return "", fmt.Errorf("login error: %w", err)
	}

	id := metadata.Identity{Username: userName, OwnerID: ownerID, Salt: salt, Verifier: verifierCandidate}
	err = dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return metadata.SaveIdentity(ctx, metadata.NewSQLiteRepository(tx), id)
	})
	if err != nil {
		return "", fmt.Errorf("offline data saving error: %w", err)
	}
	return ownerID, nil
}

// Register creates the account on the server with a fresh random salt.
func (a *authService) Register(ctx context.Context, username string, password []byte) error {
	salt := common.GenerateRandByteArray(32)
	key := cryptox.DeriveMasterKey(password, salt)
	defer common.WipeByteArray(key)

	return a.client.Register(ctx, username, salt, cryptox.MakeVerifier(key))
}

func (a *authService) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

func (a *authService) Close(ctx context.Context) error {
	return a.client.Close()
}

// ClearOfflineData wipes the cached identity (on logout).
func (a *authService) ClearOfflineData(ctx context.Context) error {
	return metadata.NewSQLiteRepository(a.db).Clear(ctx)
}
