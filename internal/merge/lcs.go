package merge

// matchResult is the outcome of the longest-contiguous-common-word-run
// search, grounded on LongestMatchFinder.findLongestMatch's MatchResult.
type matchResult struct {
	length      int
	text2Start  int // j: start index in list2 (curr) of the match
	hasMatch    bool
}

// findLongestMatch finds the longest contiguous run of equal normalized
// tokens between list1 (prev's overlap tail) and list2 (curr's full
// body). For every start i in list1 and j in list2, it extends while
// tokens match, tracking the best run. Ties break by earlier j, then
// earlier i, so the comparison is evaluated explicitly rather than
// relying on iteration order.
func findLongestMatch(list1, list2 []string, minMatchLength int) matchResult {
	best := matchResult{text2Start: -1}
	bestI := -1
	for i := 0; i < len(list1); i++ {
		for j := 0; j < len(list2); j++ {
			length := 0
			for i+length < len(list1) && j+length < len(list2) && list1[i+length] == list2[j+length] {
				length++
			}
			if betterMatch(length, j, i, best.length, best.text2Start, bestI) {
				best = matchResult{length: length, text2Start: j, hasMatch: true}
				bestI = i
			}
		}
	}
	if best.length < minMatchLength {
		return matchResult{}
	}
	return best
}

// betterMatch implements the tie-break: longer length wins; on equal
// length, the earlier j wins; on equal length and j, the earlier i wins.
func betterMatch(length, j, i, bestLength, bestJ, bestI int) bool {
	if bestJ == -1 {
		return length > 0
	}
	if length != bestLength {
		return length > bestLength
	}
	if j != bestJ {
		return j < bestJ
	}
	return i < bestI
}
