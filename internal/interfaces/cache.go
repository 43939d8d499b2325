package interfaces

// A Cache is a bounded key-value store. *lru.Cache from hashicorp/golang-lru satisfies it
type Cache interface {
	Add(key, value interface{}) (evicted bool)
	Get(key interface{}) (value interface{}, ok bool)
	Contains(key interface{}) bool
	Remove(key interface{}) (present bool)
	Purge()
	Len() int
}
