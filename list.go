package xcomm

// ListNode is the linkage embedded in a host record. It is bound to the
// record once with Init and then moved between lists by relinking only.
//
//	type request struct {
//	    node xcomm.ListNode[request]
//	    ...
//	}
//	req.node.Init(req)
type ListNode[T any] struct {
	prev, next *ListNode[T]
	owner      *T
}

// Init binds the node to its host record and makes it a detached
// self-loop.
func (n *ListNode[T]) Init(owner *T) {
	n.owner = owner
	n.prev = n
	n.next = n
}

// Owner returns the host record the node is embedded in.
func (n *ListNode[T]) Owner() *T {
	if n == nil {
		return nil
	}
	return n.owner
}

// Linked reports whether the node currently sits on a list.
func (n *ListNode[T]) Linked() bool {
	return n.next != nil && n.next != n
}

// Remove unlinks the node from whatever list holds it. Removing a detached
// node is a no-op.
func (n *ListNode[T]) Remove() {
	if n.next == nil {
		return
	}
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev = n
	n.next = n
}

// List is a circular doubly-linked list of embedded nodes. The zero value is
// an empty list. A List must not be copied once nodes have been inserted.
type List[T any] struct {
	head ListNode[T]
}

func (l *List[T]) lazyInit() {
	if l.head.next == nil {
		l.head.prev = &l.head
		l.head.next = &l.head
	}
}

// Init empties the list. Nodes still linked into it are left dangling.
func (l *List[T]) Init() {
	l.head.prev = &l.head
	l.head.next = &l.head
}

func (l *List[T]) Empty() bool {
	return l.head.next == nil || l.head.next == &l.head
}

// InsertTail links n at the tail. n must be detached.
func (l *List[T]) InsertTail(n *ListNode[T]) {
	l.lazyInit()
	n.prev = l.head.prev
	n.next = &l.head
	l.head.prev.next = n
	l.head.prev = n
}

// Head returns the first node, or nil when the list is empty.
func (l *List[T]) Head() *ListNode[T] {
	if l.Empty() {
		return nil
	}
	return l.head.next
}

// Tail returns the last node, or nil when the list is empty.
func (l *List[T]) Tail() *ListNode[T] {
	if l.Empty() {
		return nil
	}
	return l.head.prev
}

// Swap exchanges the contents of two lists by relinking the boundary nodes.
func (l *List[T]) Swap(o *List[T]) {
	l.lazyInit()
	o.lazyInit()
	lFirst, lLast, lEmpty := l.head.next, l.head.prev, l.Empty()
	oFirst, oLast, oEmpty := o.head.next, o.head.prev, o.Empty()
	l.adopt(oFirst, oLast, oEmpty)
	o.adopt(lFirst, lLast, lEmpty)
}

func (l *List[T]) adopt(first, last *ListNode[T], empty bool) {
	if empty {
		l.Init()
		return
	}
	l.head.next = first
	l.head.prev = last
	first.prev = &l.head
	last.next = &l.head
}

// Each calls fn with every host record from head to tail until fn returns
// false. fn may remove the node it is given.
func (l *List[T]) Each(fn func(*T) bool) {
	if l.Empty() {
		return
	}
	for n := l.head.next; n != &l.head; {
		next := n.next
		if !fn(n.owner) {
			return
		}
		n = next
	}
}

// Len walks the list.
func (l *List[T]) Len() int {
	count := 0
	l.Each(func(*T) bool {
		count++
		return true
	})
	return count
}
