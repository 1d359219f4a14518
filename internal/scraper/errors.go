package scraper

import (
	"errors"

	"github.com/maltedev/review-scraper/internal/database"
	"github.com/maltedev/review-scraper/internal/models"
	"github.com/maltedev/review-scraper/internal/validate"
)

// errorType returns the metrics label for a failed run.
func errorType(err error) string {
	var persistence *database.PersistenceError
	if errors.As(err, &persistence) {
		return "persistence"
	}
	var incomplete *models.IncompleteSnapshotError
	if errors.As(err, &incomplete) {
		if incomplete.Err == nil {
			return "incomplete_snapshot"
		}
		return validate.ErrorType(incomplete.Err)
	}
	return validate.ErrorType(err)
}
