package service

import (
	"sort"
	"strings"
)

const (
	rrfK           = 60
	semanticWeight = 1.0
	lexicalWeight  = 0.85
)

// ChunkSearchResult is one ranked hit from a chunk search.
type ChunkSearchResult struct {
	ChunkID    string
	SourceID   string
	ChunkIndex int
	Heading    string
	Content    string
	Score      float32
}

// rankedList is one ordered result list (one query variant, one search mode).
type rankedList struct {
	results  []*ChunkSearchResult
	semantic bool
}

type fusionCandidate struct {
	result   *ChunkSearchResult
	rrfScore float64
}

// mergeHybridResults fuses ranked lists with weighted reciprocal-rank fusion.
// Chunks are deduplicated by id. Ties are broken by source id, chunk index and
// chunk id so equal inputs always give equal output.
func mergeHybridResults(lists []rankedList) []*ChunkSearchResult {
	candidates := make(map[string]*fusionCandidate)
	for _, list := range lists {
		weight := lexicalWeight
		if list.semantic {
			weight = semanticWeight
		}
		for i, r := range list.results {
			if r == nil || r.ChunkID == "" {
				continue
			}
			cand, ok := candidates[r.ChunkID]
			if !ok {
				cloned := *r
				cand = &fusionCandidate{result: &cloned}
				candidates[r.ChunkID] = cand
			}
			cand.rrfScore += weight / float64(rrfK+i+1)
			if cand.result.Heading == "" && r.Heading != "" {
				cand.result.Heading = r.Heading
			}
		}
	}

	out := make([]*ChunkSearchResult, 0, len(candidates))
	scores := make(map[string]float64, len(candidates))
	for id, cand := range candidates {
		cand.result.Score = float32(cand.rrfScore)
		scores[id] = cand.rrfScore
		out = append(out, cand.result)
	}

	sort.Slice(out, func(i, j int) bool {
		si, sj := scores[out[i].ChunkID], scores[out[j].ChunkID]
		if si != sj {
			return si > sj
		}
		if out[i].SourceID != out[j].SourceID {
			return out[i].SourceID < out[j].SourceID
		}
		if out[i].ChunkIndex != out[j].ChunkIndex {
			return out[i].ChunkIndex < out[j].ChunkIndex
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}

// capChunks keeps the best chunks up to maxChunks and a total character budget.
func capChunks(ranked []*ChunkSearchResult, maxChunks, maxChars int) []*ChunkSearchResult {
	out := make([]*ChunkSearchResult, 0, min(len(ranked), maxChunks))
	total := 0
	for _, c := range ranked {
		if len(out) >= maxChunks {
			break
		}
		size := len(c.Content) + len(c.Heading)
		if maxChars > 0 && total+size > maxChars {
			break
		}
		total += size
		out = append(out, c)
	}
	return out
}

// keywordQuery strips punctuation that plainto_tsquery would treat as noise.
func keywordQuery(query string) string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		switch r {
		case '?', '!', ',', ';', ':', '"', '\'', '(', ')', '[', ']', '{', '}':
			return true
		}
		return r == ' ' || r == '\t' || r == '\n'
	})
	return strings.Join(fields, " ")
}
