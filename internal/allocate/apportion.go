package allocate

import "sort"

// Apportion scales counts so they sum exactly to total using the
// largest-remainder method. Remainders are compared exactly in integer
// arithmetic; equal remainders favour the earlier feature.
func Apportion(counts []int, total int) []int {
	out := make([]int, len(counts))
	sum := 0
	for _, c := range counts {
		sum += c
	}
	if sum == 0 || total <= 0 {
		return out
	}

	rem := make([]int64, len(counts))
	assigned := 0
	for i, c := range counts {
		q := int64(c) * int64(total)
		out[i] = int(q / int64(sum))
		rem[i] = q % int64(sum)
		assigned += out[i]
	}

	order := make([]int, len(counts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return rem[order[a]] > rem[order[b]] })

	for k := 0; assigned < total; k++ {
		out[order[k%len(order)]]++
		assigned++
	}
	return out
}
