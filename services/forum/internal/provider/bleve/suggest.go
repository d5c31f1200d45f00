package bleve

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2/search"

	"github.com/utafrali/EcommerceGo/services/forum/internal/provider"
)

// maxEdits bounds the edit distance between a query token and a suggestion.
const maxEdits = 2

// minTokenLen skips tokens too short to correct meaningfully.
const minTokenLen = 3

type candidate struct {
	term  string
	dist  int
	count uint64
}

// suggest returns up to MaxSuggestions corrected variants of term built from
// the store's unstemmed term dictionary. Results are cached per store until
// the store's documents change.
func (p *Provider) suggest(ctx context.Context, name, term string) ([]string, error) {
	tokens := strings.Fields(strings.ToLower(term))
	if len(tokens) == 0 {
		return []string{}, nil
	}

	key := name + "\x00" + strings.Join(tokens, " ")
	if cached, ok := p.spell.Get(key); ok {
		return append([]string(nil), cached...), nil
	}

	idx, err := p.index(name)
	if err != nil {
		return nil, err
	}

	corrections := make([][]string, len(tokens))
	misspelled := false
	for i, tok := range tokens {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if utf8.RuneCountInString(tok) < minTokenLen {
			continue
		}
		first, _ := utf8.DecodeRuneInString(tok)
		dict, err := idx.FieldDictPrefix(fieldSpell, []byte(string(first)))
		if err != nil {
			return nil, fmt.Errorf("bleve: field dict: %w", err)
		}

		var (
			cands []candidate
			known bool
		)
		for {
			entry, err := dict.Next()
			if err != nil {
				_ = dict.Close()
				return nil, fmt.Errorf("bleve: field dict: %w", err)
			}
			if entry == nil {
				break
			}
			if entry.Term == tok {
				known = true
				break
			}
			if d, exceeded := search.LevenshteinDistanceMax(tok, entry.Term, maxEdits); !exceeded && d <= maxEdits {
				cands = append(cands, candidate{term: entry.Term, dist: d, count: entry.Count})
			}
		}
		_ = dict.Close()

		if known || len(cands) == 0 {
			continue
		}
		sort.Slice(cands, func(a, b int) bool {
			if cands[a].dist != cands[b].dist {
				return cands[a].dist < cands[b].dist
			}
			if cands[a].count != cands[b].count {
				return cands[a].count > cands[b].count
			}
			return cands[a].term < cands[b].term
		})
		terms := make([]string, len(cands))
		for j, c := range cands {
			terms[j] = c.term
		}
		corrections[i] = terms
		misspelled = true
	}

	suggestions := []string{}
	if misspelled {
		suggestions = provider.AssembleSuggestions(tokens, corrections, p.cfg.MaxSuggestions)
	}
	p.spell.Add(key, suggestions)
	return append([]string(nil), suggestions...), nil
}
