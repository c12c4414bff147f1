package tui

import (
	"fmt"

	"github.com/pders01/consult/internal/dashboard"
)

// Canonical short status messages used across the app.
const (
	MsgLoading        = "Loading responses…"
	MsgNoMatches      = "No matching responses"
	MsgCancelled      = "Request cancelled"
	MsgPresetSaved    = "Preset saved"
	MsgPresetDeleted  = "Preset deleted"
	MsgNoPresets      = "No presets saved for this question"
	MsgFiltersCleared = "Filters cleared"
	MsgNoStore        = "Favourites and presets are unavailable without a database"
)

func MsgResponsesCount(visible, filtered int, hasMore bool) string {
	noun := "responses"
	if filtered == 1 {
		noun = "response"
	}
	base := fmt.Sprintf("%d of %d %s", visible, filtered, noun)
	if hasMore {
		base += " • more available"
	}
	return base
}

func MsgFavourite(added bool) string {
	if added {
		return "Added to favourites"
	}
	return "Removed from favourites"
}

func MsgPresetApplied(name string) string {
	return fmt.Sprintf("Applied preset '%s'", name)
}

// MsgFetchError describes a failed fetch with a hint for retrying.
func MsgFetchError(kind dashboard.ErrorKind, err error, retryKey string) string {
	var what string
	switch kind {
	case dashboard.ErrServer:
		what = "server error"
	case dashboard.ErrDecode:
		what = "unexpected response"
	default:
		what = "network error"
	}
	if err != nil {
		what += ": " + err.Error()
	}
	return fmt.Sprintf("%s • %s to retry", what, retryKey)
}

// sessionStatus summarizes the snapshot for the status line.
func sessionStatus(s dashboard.Snapshot, retryKey string) (string, StatusKind) {
	switch {
	case s.Err != nil:
		return MsgFetchError(s.ErrKind, s.Err, retryKey), StatusError
	case s.Loading:
		return MsgLoading, StatusInfo
	case s.Phase == dashboard.PhaseCancelled:
		return MsgCancelled, StatusWarn
	case s.Empty():
		return MsgNoMatches, StatusWarn
	case s.Phase == dashboard.PhaseSuccess:
		return MsgResponsesCount(len(s.Visible), s.FilteredTotal, s.HasMore), StatusSuccess
	default:
		return "", StatusInfo
	}
}
