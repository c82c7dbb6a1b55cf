package store

import "sync"

// keyedMutex сериализует мутации одной логической записи (user:<id>, channel:<id>, dm:<pair>...),
// не блокируя операции над другими записями. Записи удаляются, когда их никто не держит.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock захватывает ключ и возвращает функцию освобождения.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func userKey(id string) string      { return "user:" + id }
func communityKey(id string) string { return "community:" + id }
func channelKey(id string) string   { return "channel:" + id }
func directKey(pair string) string  { return "dm:" + pair }
func gifKey(url string) string      { return "gif:" + url }

// rolesKey сериализует смену ролей и удаление учётных записей (инвариант «есть хотя бы один админ»).
const rolesKey = "roles"
