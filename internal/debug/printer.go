package debug

import (
	"context"
	"encoding/json"
	"log/slog"

	"marketplace/internal/models"
)

// PrintJSON logs v as indented JSON at debug level
func PrintJSON(msg string, v any) {
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal to JSON", "msg", msg, "error", err)
		return
	}

	slog.Debug(msg, "json", string(jsonData))
}

// PrintAccount logs an account together with its decoded record
func PrintAccount(acct models.Account) {
	view := struct {
		models.Account
		RecordType string `json:"record_type,omitempty"`
		Record     any    `json:"record,omitempty"`
	}{Account: acct, RecordType: acct.RecordType()}

	if view.RecordType != "" {
		record, err := models.Decode(acct)
		if err != nil {
			slog.Warn("Failed to decode account record", "address", acct.Address, "error", err)
		}
		view.Record = record
	}

	PrintJSON("Account details", view)
}
