package train

import (
	"fmt"
	"math/rand"
	"sort"
)

// Fold is one train/validation partition of dataset indices. Folds are
// numbered from 1.
type Fold struct {
	Number int   `json:"fold"`
	Train  []int `json:"train"`
	Val    []int `json:"val"`
}

// KFold shuffles [0, n) with seed and cuts it into k contiguous validation
// blocks. The first n%k blocks hold one extra index. Each index appears in
// exactly one validation set; both sets of a fold are sorted ascending.
func KFold(n, k int, seed int64) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("k-fold needs at least 2 folds, got %d", k)
	}
	if n < k {
		return nil, fmt.Errorf("cannot split %d samples into %d folds", n, k)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	folds := make([]Fold, k)
	start := 0
	for f := 0; f < k; f++ {
		size := n / k
		if f < n%k {
			size++
		}
		inVal := make(map[int]bool, size)
		val := make([]int, size)
		copy(val, perm[start:start+size])
		for _, i := range val {
			inVal[i] = true
		}
		train := make([]int, 0, n-size)
		for i := 0; i < n; i++ {
			if !inVal[i] {
				train = append(train, i)
			}
		}
		sort.Ints(val)
		folds[f] = Fold{Number: f + 1, Train: train, Val: val}
		start += size
	}
	return folds, nil
}
