package commands

import (
	"strings"

	"pricewatch-telegram-bot/lib/helpers"
	"pricewatch-telegram-bot/lib/translation"

	log "github.com/sirupsen/logrus"
)

// CommandBackup snapshots the whole user-data document. Operator-only;
// the transport layer enforces the admin check.
func (h *Handler) CommandBackup() string {
	path, err := h.Store.Backup()
	if err != nil {
		log.Errorf("backup failed: %v", err)
		return translation.Translate("Backup failed, see logs\\.")
	}

	return translation.Translate("Backup written to `%s`\\.", helpers.EscapeMarkdownV2(path))
}

// CommandRestore replaces all tables with a snapshot's contents and
// reloads the registry so in-memory state matches the restored document.
func (h *Handler) CommandRestore(argument string) string {
	path := strings.TrimSpace(argument)
	if path == "" {
		return translation.Translate("Usage: `/restore <backup path>`\\.")
	}

	if err := h.Store.Restore(path); err != nil {
		log.Errorf("restore from %s failed: %v", path, err)
		return translation.Translate("Restore failed, see logs\\.")
	}

	if err := h.Registry.Reload(); err != nil {
		log.Errorf("registry reload after restore failed: %v", err)
		return translation.Translate("Restore written but reload failed, see logs\\.")
	}

	return translation.Translate("Restore complete\\.")
}
