package cli

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/memokeeper/internal/client/models"
	"github.com/dmitrijs2005/memokeeper/internal/status"
	"github.com/fatih/color"
)

var errUsage = errors.New("usage")

// Record imports a finished recording and starts its upload.
// Usage: record <path> [contact].
func (a *App) Record(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.printf("Usage: record <path> [contact]\n")
		return errUsage
	}
	contact := ""
	if len(args) > 1 {
		contact = strings.Join(args[1:], " ")
	}

	id, err := a.session.Record(ctx, args[0], contact)
	if err != nil {
		a.printf("%s %v\n", color.RedString("Record failed:"), err)
		return err
	}
	a.printf("%s %s\n", color.GreenString("Saved"), id)
	return nil
}

func (a *App) List(ctx context.Context) error {
	views, err := a.session.List(ctx)
	if err != nil {
		a.printf("%s %v\n", color.RedString("List failed:"), err)
		return err
	}
	if len(views) == 0 {
		a.printf("No records\n")
		return nil
	}
	for _, v := range views {
		a.printf("%s  %s  %s  %s\n", v.ID, statusLabel(v.Status), v.OccurredAt.Local().Format(time.DateTime), title(v))
	}
	return nil
}

// Show prints every field of one record. Usage: show <id>.
func (a *App) Show(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.printf("Usage: show <id>\n")
		return errUsage
	}
	v, err := a.session.Show(ctx, args[0])
	if err != nil {
		a.printf("%s %v\n", color.RedString("Show failed:"), err)
		return err
	}

	a.printf("ID:       %s\n", v.ID)
	a.printf("Status:   %s\n", statusLabel(v.Status))
	if v.ContactRef != "" {
		a.printf("Contact:  %s\n", v.ContactRef)
	}
	if !v.OccurredAt.IsZero() {
		a.printf("Occurred: %s\n", v.OccurredAt.Local().Format(time.DateTime))
	}
	if v.Duration > 0 {
		a.printf("Duration: %s\n", v.Duration)
	}
	if v.Retry != nil {
		a.printf("Retry:    attempt %d, last error %q\n", v.Retry.Attempts, v.Retry.LastError)
	}

	names := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		names = append(names, k)
	}
	sort.Strings(names)

	degraded := make(map[string]bool, len(v.Degraded))
	for _, d := range v.Degraded {
		degraded[d] = true
	}
	for _, k := range names {
		if degraded[k] {
			a.printf("%s: %s\n", k, color.HiBlackString("<encrypted>"))
			continue
		}
		a.printf("%s: %s\n", k, v.Fields[k])
	}
	return nil
}

// Retry re-runs a failed upload. Usage: retry <id>.
func (a *App) Retry(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.printf("Usage: retry <id>\n")
		return errUsage
	}
	if err := a.session.Retry(ctx, args[0]); err != nil {
		a.printf("%s %v\n", color.RedString("Retry failed:"), err)
		return err
	}
	a.printf("Retrying %s\n", args[0])
	return nil
}

// Delete removes one record. Usage: delete <id>.
func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.printf("Usage: delete <id>\n")
		return errUsage
	}
	if err := a.session.Delete(ctx, args[0]); err != nil {
		a.printf("%s %v\n", color.RedString("Delete failed:"), err)
		return err
	}
	a.printf("Deleted %s\n", args[0])
	return nil
}

func statusLabel(s status.Status) string {
	switch s {
	case status.Ready:
		return color.GreenString(s.String())
	case status.Failed:
		return color.RedString(s.String())
	case status.Local, status.Uploading:
		return color.YellowString(s.String())
	default:
		return color.CyanString(s.String())
	}
}

func title(v models.View) string {
	for _, d := range v.Degraded {
		if d == "title" {
			return "<encrypted>"
		}
	}
	if t, ok := v.Fields["title"]; ok && t != "" {
		return t
	}
	return v.ContactRef
}
