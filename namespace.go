package lobby

// The namespace registry: a fixed set of names configured at construction,
// each holding the ids of its current connections in join order. A
// connection belongs to at most one namespace at a time and rooms never
// cross namespace boundaries.

type namespaceJoinBody struct {
	Namespace string `json:"namespace"`
}

// joinNamespace adds the connection to a configured namespace and records
// the membership on the connection itself.
func (s *Server) joinNamespace(c *Conn, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.namespace != "" {
		return ErrAlreadyInNamespace
	}

	conns, ok := s.namespaces[name]
	if !ok {
		return ErrInvalidNamespace
	}

	s.namespaces[name] = append(conns, c.id)
	c.namespace = name

	return nil
}

// leaveNamespace removes the connection from its namespace and clears the
// record. Calling it on a connection that already left is an error on
// purpose, it surfaces broken cleanup ordering instead of hiding it.
func (s *Server) leaveNamespace(c *Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.leaveNamespaceLocked(c)
}

func (s *Server) leaveNamespaceLocked(c *Conn) error {
	if c.namespace == "" {
		return ErrNotInNamespace
	}

	conns, ok := s.namespaces[c.namespace]
	if !ok {
		return ErrInvalidNamespace
	}

	for i, id := range conns {
		if id == c.id {
			s.namespaces[c.namespace] = append(conns[:i], conns[i+1:]...)
			c.namespace = ""
			return nil
		}
	}

	return ErrClientRecordMissing
}
