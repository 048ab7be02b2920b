// Package assoc implements the association engine (§4.B): an IoU cost
// matrix solved by the Hungarian algorithm, with matched pairs above a
// cost threshold rejected after solving.
package assoc

import (
	"sort"

	hungarian "github.com/arthurkushman/go-hungarian"
	"github.com/LdDl/hybtrack/internal/geom"
)

// Match pairs a track index with a detection index, both indices into the
// slices passed to Associate.
type Match struct {
	TrackIndex int
	DetIndex   int
}

// Associate computes the |tracks|x|dets| IoU cost matrix (cost = 1 - IoU),
// solves the rectangular assignment minimising total cost, then drops any
// assigned pair whose cost exceeds costThresh. Empty inputs on either side
// yield an empty match list with everything on the opposite side reported
// unmatched.
func Associate(tracks, dets []geom.Rectangle, costThresh float64) (matches []Match, unmatchedTracks, unmatchedDets []int) {
	if len(tracks) == 0 || len(dets) == 0 {
		return nil, allIndices(len(tracks)), allIndices(len(dets))
	}

	iouMatrix := buildIoUMatrix(tracks, dets)
	rawMatches := solveAssignment(iouMatrix, len(tracks), len(dets))

	matchedTrack := make(map[int]bool, len(tracks))
	matchedDet := make(map[int]bool, len(dets))
	for _, m := range rawMatches {
		cost := 1 - iouMatrix[m.TrackIndex][m.DetIndex]
		if cost > costThresh {
			continue
		}
		matches = append(matches, m)
		matchedTrack[m.TrackIndex] = true
		matchedDet[m.DetIndex] = true
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].TrackIndex != matches[j].TrackIndex {
			return matches[i].TrackIndex < matches[j].TrackIndex
		}
		return matches[i].DetIndex < matches[j].DetIndex
	})

	for i := range tracks {
		if !matchedTrack[i] {
			unmatchedTracks = append(unmatchedTracks, i)
		}
	}
	for j := range dets {
		if !matchedDet[j] {
			unmatchedDets = append(unmatchedDets, j)
		}
	}
	return matches, unmatchedTracks, unmatchedDets
}

func buildIoUMatrix(tracks, dets []geom.Rectangle) [][]float64 {
	matrix := make([][]float64, len(tracks))
	for i, tr := range tracks {
		row := make([]float64, len(dets))
		for j, d := range dets {
			row[j] = geom.IoU(tr, d)
		}
		matrix[i] = row
	}
	return matrix
}

// solveAssignment pads a rectangular IoU matrix to square (dummy entries
// carry IoU 0, the worst possible benefit, so the solver only assigns them
// when no better real pairing exists) and runs Hungarian maximisation.
func solveAssignment(iouMatrix [][]float64, numTracks, numDets int) []Match {
	size := numTracks
	if numDets > size {
		size = numDets
	}
	padded := make([][]float64, size)
	for i := 0; i < size; i++ {
		padded[i] = make([]float64, size)
		if i < numTracks {
			copy(padded[i], iouMatrix[i])
		}
	}

	assignments := hungarian.SolveMax(padded)
	matches := make([]Match, 0, len(assignments))
	for trackIdx, row := range assignments {
		for detIdx := range row {
			if trackIdx < numTracks && detIdx < numDets {
				matches = append(matches, Match{TrackIndex: trackIdx, DetIndex: detIdx})
			}
		}
	}
	return matches
}

func allIndices(n int) []int {
	if n == 0 {
		return nil
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
