package state

// Proxies returns a copy of the reverse proxy list in server order.
func (s *Store) Proxies() []ReverseProxy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ReverseProxy(nil), s.proxies...)
}

// ReplaceProxies stores a fresh server listing. The server orders entries by
// prefix, most specific first; that order is kept as is.
func (s *Store) ReplaceProxies(list []ReverseProxy) {
	s.mutate(TopicProxies, func() bool {
		s.proxies = append(make([]ReverseProxy, 0, len(list)), list...)
		return true
	})
}
