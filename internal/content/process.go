package content

import (
	"runtime"
	"sync"

	"rssreader/internal/models"
)

// Prepare sanitises the article body and fills in the summary and language.
func Prepare(article models.Article) models.Article {
	article.Content = Sanitize(article.Content)
	article.Summary = Excerpt(article.Content, DefaultExcerptLength)
	article.Language = DetectLanguage(article.Title + " " + article.Summary)
	return article
}

// PrepareBatch runs Prepare over articles on a bounded number of workers.
// The result keeps the input order.
func PrepareBatch(articles []models.Article) []models.Article {
	prepared := make([]models.Article, len(articles))
	if len(articles) == 0 {
		return prepared
	}

	workers := min(runtime.NumCPU(), len(articles))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				prepared[i] = Prepare(articles[i])
			}
		}()
	}

	for i := range articles {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return prepared
}
