package store

// LockChannel даёт тестам удержать блокировку канала.
func (s *Store) LockChannel(channelID string) func() {
	return s.locks.Lock(channelKey(channelID))
}
