// Package fairshare implements the scheduler's fair-share entity tree
// (group_info, spec §3/§4.G): decay, usage_factor, and tree_percentage
// bookkeeping used to order jobs competing under the same fair-share
// policy.
package fairshare

import "math"

// Node is one fair-share tree entity: a group/user leaf, or an internal
// group node. The root has Parent == nil.
type Node struct {
	Name   string
	Shares int

	Usage       float64 // monotone counter, persists across cycles (decayed periodically)
	TempUsage   float64 // reset to Usage at the start of each cycle
	UsageFactor float64 // recomputed from the root once per cycle

	TreePercentage float64

	Parent   *Node
	Children []*Node
}

func NewRoot(name string, shares int) *Node {
	return &Node{Name: name, Shares: shares}
}

// AddChild appends a new leaf/internal node under n.
func (n *Node) AddChild(name string, shares int) *Node {
	c := &Node{Name: name, Shares: shares, Parent: n}
	n.Children = append(n.Children, c)
	return c
}

// Find performs a depth-first search for a node by name.
func (n *Node) Find(name string) *Node {
	if n.Name == name {
		return n
	}
	for _, c := range n.Children {
		if found := c.Find(name); found != nil {
			return found
		}
	}
	return nil
}

// Leaves returns every leaf (childless) node in the subtree rooted at n.
func (n *Node) Leaves() []*Node {
	if len(n.Children) == 0 {
		return []*Node{n}
	}
	var out []*Node
	for _, c := range n.Children {
		out = append(out, c.Leaves()...)
	}
	return out
}

func (n *Node) totalSharesOfSiblings() int {
	if n.Parent == nil {
		return n.Shares
	}
	total := 0
	for _, c := range n.Parent.Children {
		total += c.Shares
	}
	return total
}

// RecomputeTreePercentage recomputes TreePercentage top-down for the whole
// tree, per spec §3: tree_percentage = shares / parent_tree_percentage_total
// x parent_tree_percentage. The root's tree_percentage is fixed at 1.0.
func (n *Node) RecomputeTreePercentage() {
	if n.Parent == nil {
		n.TreePercentage = 1.0
	} else {
		total := n.totalSharesOfSiblings()
		if total == 0 {
			n.TreePercentage = 0
		} else {
			n.TreePercentage = (float64(n.Shares) / float64(total)) * n.Parent.TreePercentage
		}
	}
	for _, c := range n.Children {
		c.RecomputeTreePercentage()
	}
}

// ResetCycle sets TempUsage := Usage across the subtree (spec §4.G
// per-cycle reset).
func (n *Node) ResetCycle() {
	n.TempUsage = n.Usage
	for _, c := range n.Children {
		c.ResetCycle()
	}
}

// Decay halves (or multiplies by factor) every leaf's Usage, then rolls the
// change up through ancestors so each internal node's Usage is the sum of
// its children's (spec §4.G "halve every leaf's usage... recursively roll
// up, persist").
func (n *Node) Decay(factor float64) {
	for _, leaf := range n.Leaves() {
		leaf.Usage *= factor
	}
	n.rollUp()
}

func (n *Node) rollUp() float64 {
	if len(n.Children) == 0 {
		return n.Usage
	}
	var sum float64
	for _, c := range n.Children {
		sum += c.rollUp()
	}
	n.Usage = sum
	return sum
}

// AddUsage adds amount to TempUsage on n and every ancestor up to the root,
// per spec §4.G post-placement accounting.
func (n *Node) AddUsage(amount float64) {
	for cur := n; cur != nil; cur = cur.Parent {
		cur.TempUsage += amount
	}
}

// RecomputeUsageFactor computes, for every leaf, a normalized [0,1] value
// derived from a root-walk: at each ancestor, divide this subtree's usage
// by its parent's combined usage, weighted by the subtree's share
// (spec §4.G).
func (n *Node) RecomputeUsageFactor() {
	n.computeUsageFactor()
}

func (n *Node) computeUsageFactor() {
	if n.Parent == nil {
		n.UsageFactor = 1.0
	} else {
		parentUsage := n.Parent.TempUsage
		if parentUsage <= 0 {
			n.UsageFactor = n.Parent.UsageFactor
		} else {
			share := float64(n.Shares)
			parentShares := float64(n.totalSharesOfSiblings())
			if parentShares == 0 {
				parentShares = 1
			}
			fairUsage := (n.TempUsage + 1) / (parentUsage + 1)
			weighted := fairUsage * (parentShares / math.Max(share, 1))
			n.UsageFactor = n.Parent.UsageFactor / math.Max(weighted, 1e-9)
			if n.UsageFactor > 1 {
				n.UsageFactor = 1
			}
		}
	}
	for _, c := range n.Children {
		c.computeUsageFactor()
	}
}
