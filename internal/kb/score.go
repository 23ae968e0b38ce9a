package kb

import "math"

// SequenceRatio computes the classic sequence-matching ratio between two
// strings: 2*M/(len(a)+len(b)) where M is the length of their longest common
// subsequence, counted in runes. Both strings are expected to be normalized
// already.
func SequenceRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}

	// Two-row DP over the LCS table.
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			switch {
			case ra[i-1] == rb[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
		for j := range cur {
			cur[j] = 0
		}
	}
	return 2.0 * float64(prev[len(rb)]) / float64(len(ra)+len(rb))
}

// Jaccard computes |a ∩ b| / |a ∪ b| over token sets, 0 if either is empty.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}

	inter := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0.0
	}
	return float64(inter) / float64(union)
}

// KeywordScore is the lexical similarity of two raw texts: the maximum of
// their sequence ratio and their token Jaccard index.
func KeywordScore(a, b string) float64 {
	seq := SequenceRatio(Normalize(a), Normalize(b))
	jac := Jaccard(Tokenize(a), Tokenize(b))
	return math.Max(seq, jac)
}

// keywordScoreNormalized is KeywordScore over pre-normalized inputs, used by
// the matcher which normalizes the query once per call.
func keywordScoreNormalized(normA string, tokensA []string, normB string, tokensB []string) float64 {
	return math.Max(SequenceRatio(normA, normB), Jaccard(tokensA, tokensB))
}

// CosineSimilarity computes the cosine of two embedding vectors, 0 if either
// has zero norm or the dimensions differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// HybridScore combines keyword and semantic similarity. Without a semantic
// signal the keyword score passes through unchanged; otherwise the weights
// are normalized to sum to 1 and the weighted sum is returned.
func HybridScore(keyword, semantic float64, hasSemantic bool, keywordWeight, semanticWeight float64) float64 {
	if !hasSemantic {
		return keyword
	}
	total := keywordWeight + semanticWeight
	if total > 0 {
		keywordWeight /= total
		semanticWeight /= total
	} else {
		keywordWeight, semanticWeight = 0.5, 0.5
	}
	return keywordWeight*keyword + semanticWeight*semantic
}

func clamp01(v float64) float64 {
	return math.Max(0.0, math.Min(1.0, v))
}
