package xcomm

// Stack is the LIFO view of a List: push and pop both work on the tail.
// The zero value is an empty stack.
type Stack[T any] struct {
	list List[T]
}

func (s *Stack[T]) Push(n *ListNode[T]) {
	s.list.InsertTail(n)
}

// Pop unlinks the most recently pushed node and returns its host record, or
// nil when the stack is empty.
func (s *Stack[T]) Pop() *T {
	n := s.list.Tail()
	if n == nil {
		return nil
	}
	n.Remove()
	return n.owner
}

func (s *Stack[T]) Empty() bool {
	return s.list.Empty()
}

func (s *Stack[T]) Swap(o *Stack[T]) {
	s.list.Swap(&o.list)
}

func (s *Stack[T]) Len() int {
	return s.list.Len()
}
