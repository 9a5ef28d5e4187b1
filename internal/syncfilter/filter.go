// Package syncfilter decides which upstream articles a sync may import
// given the set of locally deleted article IDs.
package syncfilter

import (
	"rssreader/internal/models"
)

// Result is the outcome of reconciling one upstream batch.
type Result struct {
	// Admitted keeps the batch order.
	Admitted []models.Article
	// Skipped holds IDs that are tombstoned and still read upstream.
	Skipped []string
	// Resurrected holds admitted IDs whose tombstone must be removed.
	Resurrected []string
}

// Reconcile filters batch against tombstones, keyed by upstream ID.
//
// A tombstoned article that is still read upstream is skipped. A tombstoned
// article that became unread upstream is admitted again and reported in
// Resurrected. Everything else is admitted.
func Reconcile(batch []models.Article, tombstones map[string]bool) Result {
	res := Result{
		Admitted: make([]models.Article, 0, len(batch)),
	}

	for _, article := range batch {
		if !tombstones[article.InoreaderID] {
			res.Admitted = append(res.Admitted, article)
			continue
		}

		if article.IsRead {
			res.Skipped = append(res.Skipped, article.InoreaderID)
			continue
		}

		res.Admitted = append(res.Admitted, article)
		res.Resurrected = append(res.Resurrected, article.InoreaderID)
	}

	return res
}

// IDs returns the upstream IDs of articles, for tombstone lookups.
func IDs(articles []models.Article) []string {
	ids := make([]string, 0, len(articles))
	for _, a := range articles {
		ids = append(ids, a.InoreaderID)
	}
	return ids
}
