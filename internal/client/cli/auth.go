package cli

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/memokeeper/internal/client/services"
	"github.com/dmitrijs2005/memokeeper/internal/common"
	"github.com/fatih/color"
)

// getSimpleText and getPassword are swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for credentials and creates the account.
func (a *App) Register(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.authService.Register(ctx, userName, password); err != nil {
		a.printf("%s %v\n", color.RedString("Registration failed:"), err)
		return err
	}

	a.printf("%s\n", color.GreenString("Success!"))
	return nil
}

// Login prompts for credentials and opens a session. An unreachable
// server falls back to the cached identity and switches to offline mode.
func (a *App) Login(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	offline, err := a.session.Login(ctx, userName, password)
	switch {
	case errors.Is(err, services.ErrLocalDataNotAvailable):
		a.printf("%s\n", color.RedString("Server unavailable and no offline data for this account"))
		a.setMode(ModeDisabled)
		return err
	case err != nil:
		a.printf("%s %v\n", color.RedString("Login unsuccessful:"), err)
		return err
	}

	a.mu.Lock()
	a.userName = userName
	a.mu.Unlock()

	if offline {
		a.printf("%s\n", color.YellowString("Offline login successful"))
		a.setMode(ModeOffline)
	} else {
		a.printf("%s\n", color.GreenString("Login successful"))
		a.setMode(ModeOnline)
	}
	return nil
}

// Logout ends the session and wipes the key and the cached identity.
func (a *App) Logout(ctx context.Context) error {
	if err := a.session.Logout(ctx); err != nil {
		a.printf("%s %v\n", color.RedString("Logout incomplete:"), err)
		return err
	}
	a.mu.Lock()
	a.userName = ""
	a.mu.Unlock()
	return nil
}
