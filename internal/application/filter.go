package application

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ericfisherdev/gitsentinel/internal/domain/model"
)

// filterStage narrows updates by one rule. A stage must preserve order.
type filterStage func([]model.UpdateRecord) ([]model.UpdateRecord, error)

// ApplyFilters narrows updates using rules. Rules apply conjunctively in a
// fixed order: authors, exclude_authors, keywords, exclude_keywords,
// update_types. An empty rule is a no-op. The input slice is never modified.
//
// If any rule fails to evaluate, the unfiltered input is returned and the
// error is logged.
func ApplyFilters(updates []model.UpdateRecord, rules *model.FilterRules) (result []model.UpdateRecord) {
	if rules.IsEmpty() || len(updates) == 0 {
		return updates
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("filter evaluation panicked, returning unfiltered updates", "panic", r)
			result = updates
		}
	}()

	stages := []filterStage{
		authorStage(rules.Authors, true),
		authorStage(rules.ExcludeAuthors, false),
		keywordStage(rules.Keywords, true),
		keywordStage(rules.ExcludeKeywords, false),
		kindStage(rules.UpdateTypes),
	}

	current := updates
	for _, stage := range stages {
		next, err := stage(current)
		if err != nil {
			slog.Error("filter evaluation failed, returning unfiltered updates", "error", err)
			return updates
		}
		current = next
	}

	return current
}

// authorStage keeps (allow) or drops (deny) updates whose author matches
// one of names, case-insensitively.
func authorStage(names []string, allow bool) filterStage {
	return func(in []model.UpdateRecord) ([]model.UpdateRecord, error) {
		if len(names) == 0 {
			return in, nil
		}
		return keep(in, func(u model.UpdateRecord) bool {
			matched := false
			for _, name := range names {
				if strings.EqualFold(u.Author, strings.TrimSpace(name)) {
					matched = true
					break
				}
			}
			return matched == allow
		}), nil
	}
}

// keywordStage keeps (allow) updates whose title or body contains any
// keyword, or drops (deny) them. Matching is case-insensitive.
func keywordStage(keywords []string, allow bool) filterStage {
	return func(in []model.UpdateRecord) ([]model.UpdateRecord, error) {
		needles := make([]string, 0, len(keywords))
		for _, k := range keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				needles = append(needles, k)
			}
		}
		if len(needles) == 0 {
			return in, nil
		}

		return keep(in, func(u model.UpdateRecord) bool {
			title := strings.ToLower(u.Title)
			body := strings.ToLower(u.Body)
			matched := false
			for _, n := range needles {
				if strings.Contains(title, n) || strings.Contains(body, n) {
					matched = true
					break
				}
			}
			return matched == allow
		}), nil
	}
}

// kindStage keeps updates whose kind is listed. "all" keeps everything; an
// unknown kind name is an evaluation error.
func kindStage(names []string) filterStage {
	return func(in []model.UpdateRecord) ([]model.UpdateRecord, error) {
		if len(names) == 0 {
			return in, nil
		}
		set, err := model.ParseKindSet(names)
		if err != nil {
			return nil, fmt.Errorf("update_types rule: %w", err)
		}
		return keep(in, func(u model.UpdateRecord) bool {
			return set.Has(u.Kind)
		}), nil
	}
}

func keep(in []model.UpdateRecord, pred func(model.UpdateRecord) bool) []model.UpdateRecord {
	out := make([]model.UpdateRecord, 0, len(in))
	for _, u := range in {
		if pred(u) {
			out = append(out, u)
		}
	}
	return out
}
