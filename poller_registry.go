package xcomm

// registration is the poller's shadow state for one descriptor: the last
// submitted op and user data, and which kernel-side operations or filters are
// still outstanding. Records are recycled through a free stack so steady-state
// submit/delete does not allocate.
type registration struct {
	node     ListNode[registration]
	fd       FD
	op       Op
	userData interface{}
	// armed is set by Submit and cleared when the CQE is produced.
	armed bool
	// pending holds the filters (kqueue) or operations (IOCP) still queued
	// in the kernel.
	pending Op
	// char marks a windows communications device.
	char    bool
	deleted bool
}

type registry struct {
	regs map[FD]*registration
	free Stack[registration]
}

func newRegistry() registry {
	return registry{regs: make(map[FD]*registration)}
}

func (r *registry) get(fd FD) *registration {
	return r.regs[fd]
}

// acquire returns the record for fd, creating it when absent. The boolean
// reports whether it existed.
func (r *registry) acquire(fd FD) (*registration, bool) {
	if reg, ok := r.regs[fd]; ok {
		return reg, true
	}
	reg := r.free.Pop()
	if reg == nil {
		reg = &registration{}
		reg.node.Init(reg)
	}
	reg.fd = fd
	r.regs[fd] = reg
	return reg, false
}

// remove unmaps fd and returns its record, or nil.
func (r *registry) remove(fd FD) *registration {
	reg, ok := r.regs[fd]
	if !ok {
		return nil
	}
	delete(r.regs, fd)
	return reg
}

// recycle clears an unmapped record and parks it on the free stack.
func (r *registry) recycle(reg *registration) {
	*reg = registration{node: reg.node}
	r.free.Push(&reg.node)
}

func (r *registry) len() int {
	return len(r.regs)
}
