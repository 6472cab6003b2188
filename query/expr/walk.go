package expr

// Children returns the direct child nodes of n in evaluation order.
func Children(n Node) []Node {
	switch n := n.(type) {
	case *Member:
		return []Node{n.Target}
	case *Index:
		return []Node{n.Target}
	case *Binary:
		return []Node{n.Left, n.Right}
	case *Unary:
		return []Node{n.Operand}
	case *Convert:
		return []Node{n.Operand}
	case *Call:
		out := make([]Node, 0, len(n.Args)+1)
		if n.Target != nil {
			out = append(out, n.Target)
		}
		return append(out, n.Args...)
	case *Invocation:
		return append([]Node(nil), n.Args...)
	case *Conditional:
		return []Node{n.Test, n.Then, n.Else}
	case *New:
		return append([]Node(nil), n.Values...)
	case *MemberInit:
		return append([]Node(nil), n.Values...)
	case *Lambda:
		return []Node{n.Body}
	case *Local:
		return []Node{n.Seq}
	case *In:
		return []Node{n.Value, n.Collection}
	case *Matches:
		return []Node{n.Field, n.Condition}
	}
	return nil
}

// Walk visits n and its descendants depth first. Returning false from visit
// skips the children of the visited node.
func Walk(n Node, visit func(Node) bool) {
	if n == nil || !visit(n) {
		return
	}
	for _, c := range Children(n) {
		Walk(c, visit)
	}
}

// FreeParams returns the names of parameters referenced by n that no lambda
// inside n binds.
func FreeParams(n Node) map[string]bool {
	free := map[string]bool{}
	var walk func(n Node, bound []string)
	walk = func(n Node, bound []string) {
		switch n := n.(type) {
		case nil:
			return
		case *Parameter:
			for _, b := range bound {
				if b == n.Name {
					return
				}
			}
			free[n.Name] = true
			return
		case *Lambda:
			walk(n.Body, append(append([]string(nil), bound...), n.Params...))
			return
		}
		for _, c := range Children(n) {
			walk(c, bound)
		}
	}
	walk(n, nil)
	return free
}
