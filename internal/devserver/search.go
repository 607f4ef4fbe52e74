package devserver

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/nexd/nexd/internal/database/repository"
	"github.com/nexd/nexd/internal/model"
)

const defaultSearchLimit = 10

// searchArticles ranks prefix matches by edit distance to the query. With
// no prefix match it falls back to names whose prefix is one edit away, so
// "Mlich" still finds "Milch".
func searchArticles(ctx context.Context, articles *repository.ArticleRepo, f repository.ArticleFilters, limit int) ([]model.Article, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	query := strings.ToLower(strings.TrimSpace(f.Prefix))
	f.Prefix = query

	found, err := articles.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 && utf8.RuneCountInString(query) > 1 {
		f.Prefix = ""
		all, err := articles.List(ctx, f)
		if err != nil {
			return nil, err
		}
		for _, a := range all {
			if levenshtein.ComputeDistance(query, namePrefix(a.Name, query)) <= 1 {
				found = append(found, a)
			}
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		return distance(query, found[i].Name) < distance(query, found[j].Name)
	})
	if len(found) > limit {
		found = found[:limit]
	}
	return found, nil
}

func distance(query, name string) int {
	return levenshtein.ComputeDistance(query, strings.ToLower(name))
}

// namePrefix cuts name to the rune length of query.
func namePrefix(name, query string) string {
	name = strings.ToLower(name)
	n := utf8.RuneCountInString(query)
	for i := range name {
		if n == 0 {
			return name[:i]
		}
		n--
	}
	return name
}
