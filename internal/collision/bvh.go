package collision

import (
	"fmt"
	"math/bits"
	"sort"

	"github.com/san-kum/ipcsim/internal/config"
	"github.com/san-kum/ipcsim/internal/dynamo"
)

// BroadPhase reports every stored box overlapping a query box. Query is
// safe for concurrent use once Build has returned.
type BroadPhase interface {
	Build(boxes []AABB)
	Query(box AABB, fn func(i int))
	Len() int
}

func NewBroadPhase(method string) (BroadPhase, error) {
	switch method {
	case config.LinearBVH:
		return &LinearBVH{}, nil
	case config.StacklessBVH:
		return &StacklessBVH{}, nil
	case config.BruteForce:
		return &BruteForce{}, nil
	}
	return nil, fmt.Errorf("unknown collision detection method: %s: %w", method, dynamo.ErrInvalidConfig)
}

type BruteForce struct {
	boxes []AABB
}

func (b *BruteForce) Build(boxes []AABB) { b.boxes = boxes }
func (b *BruteForce) Len() int           { return len(b.boxes) }

func (b *BruteForce) Query(box AABB, fn func(i int)) {
	for i, o := range b.boxes {
		if o.Overlaps(box) {
			fn(i)
		}
	}
}

type bvhNode struct {
	box         AABB
	left, right int
	leaf        int
	skip        int
}

// buildTree sorts leaves along a 30 bit Morton curve and splits the sorted
// range at the highest differing bit. Nodes are stored in preorder.
func buildTree(boxes []AABB) []bvhNode {
	n := len(boxes)
	if n == 0 {
		return nil
	}
	bounds := EmptyAABB()
	for _, b := range boxes {
		bounds = bounds.Expand(b.Center())
	}
	ext := bounds.Max.Sub(bounds.Min)
	codes := make([]uint32, n)
	order := make([]int, n)
	for i, b := range boxes {
		c := b.Center()
		var q [3]uint32
		for k := 0; k < 3; k++ {
			f := 0.0
			if ext[k] > 0 {
				f = (c[k] - bounds.Min[k]) / ext[k]
			}
			q[k] = uint32(f * 1023)
		}
		codes[i] = morton3(q[0], q[1], q[2])
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return codes[order[a]] < codes[order[b]] })

	nodes := make([]bvhNode, 0, 2*n-1)
	var build func(lo, hi int) int
	build = func(lo, hi int) int {
		idx := len(nodes)
		nodes = append(nodes, bvhNode{leaf: -1})
		if hi-lo == 1 {
			nodes[idx].leaf = order[lo]
			nodes[idx].box = boxes[order[lo]]
			nodes[idx].skip = idx + 1
			return idx
		}
		mid := split(codes, order, lo, hi)
		l := build(lo, mid)
		r := build(mid, hi)
		nodes[idx].left, nodes[idx].right = l, r
		nodes[idx].box = nodes[l].box.Union(nodes[r].box)
		nodes[idx].skip = len(nodes)
		return idx
	}
	build(0, n)
	return nodes
}

func split(codes []uint32, order []int, lo, hi int) int {
	first, last := codes[order[lo]], codes[order[hi-1]]
	if first == last {
		return (lo + hi) / 2
	}
	prefix := bits.LeadingZeros32(first ^ last)
	mid := lo
	step := hi - lo
	for step > 1 {
		step = (step + 1) / 2
		next := mid + step
		if next < hi && bits.LeadingZeros32(first^codes[order[next]]) > prefix {
			mid = next
		}
	}
	return mid + 1
}

func expandBits(v uint32) uint32 {
	v = (v * 0x00010001) & 0xFF0000FF
	v = (v * 0x00000101) & 0x0F00F00F
	v = (v * 0x00000011) & 0xC30C30C3
	v = (v * 0x00000005) & 0x49249249
	return v
}

func morton3(x, y, z uint32) uint32 {
	return expandBits(x)<<2 | expandBits(y)<<1 | expandBits(z)
}

// LinearBVH is a Morton ordered bounding volume hierarchy traversed with
// an explicit stack.
type LinearBVH struct {
	nodes []bvhNode
	n     int
}

func (b *LinearBVH) Build(boxes []AABB) {
	b.nodes = buildTree(boxes)
	b.n = len(boxes)
}

func (b *LinearBVH) Len() int { return b.n }

func (b *LinearBVH) Query(box AABB, fn func(i int)) {
	if len(b.nodes) == 0 {
		return
	}
	var buf [64]int
	stack := append(buf[:0], 0)
	for len(stack) > 0 {
		nd := &b.nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		if !nd.box.Overlaps(box) {
			continue
		}
		if nd.leaf >= 0 {
			fn(nd.leaf)
			continue
		}
		stack = append(stack, nd.right, nd.left)
	}
}

// StacklessBVH walks the same tree in preorder, jumping over rejected
// subtrees through each node's skip link.
type StacklessBVH struct {
	nodes []bvhNode
	n     int
}

func (b *StacklessBVH) Build(boxes []AABB) {
	b.nodes = buildTree(boxes)
	b.n = len(boxes)
}

func (b *StacklessBVH) Len() int { return b.n }

func (b *StacklessBVH) Query(box AABB, fn func(i int)) {
	i := 0
	for i < len(b.nodes) {
		nd := &b.nodes[i]
		if !nd.box.Overlaps(box) {
			i = nd.skip
			continue
		}
		if nd.leaf >= 0 {
			fn(nd.leaf)
		}
		i++
	}
}
