// Package eviction implements the in-memory admission and eviction policies
// that decide which cache entries stay resident.
package eviction

// ARC is an adaptive replacement cache keyed by entry id.
//
// Two live lists split the space between recency and frequency: t1 holds
// entries seen once, t2 entries seen again. b1 and b2 are ghost lists that
// remember only the keys recently evicted from t1 and t2, so a returning key
// can steer the adaptive target p toward the list it was evicted from.
type ARC struct {
	t1      *orderedMap
	t2      *orderedMap
	b1      *orderedMap
	b2      *orderedMap
	onEvict EvictFunc
	maxsize int
	p       int
}

var _ Policy = (*ARC)(nil)

// NewARC creates an ARC policy holding at most maxsize live entries.
func NewARC(maxsize int, onEvict EvictFunc) *ARC {
	if maxsize < 1 {
		maxsize = 1
	}
	return &ARC{
		t1:      newOrderedMap(),
		t2:      newOrderedMap(),
		b1:      newOrderedMap(),
		b2:      newOrderedMap(),
		onEvict: onEvict,
		maxsize: maxsize,
	}
}

// Get returns the embedding for key if cached. A t1 hit promotes the entry
// to the MRU end of t2 and lowers p; a t2 hit refreshes it and raises p.
func (c *ARC) Get(key int64) ([]float32, bool) {
	if v, ok := c.t1.Remove(key); ok {
		c.t2.Put(key, v)
		c.p = max(0, c.p-1)
		c.trimGhosts()
		return v, true
	}
	if v, ok := c.t2.Get(key); ok {
		c.p = min(c.maxsize, c.p+1)
		c.trimGhosts()
		return v, true
	}
	return nil, false
}

// Put admits key with its embedding. A key still ghosted in b1 or b2
// re-enters through t2 and steers p; an unseen key lands in t1. A key
// already live only has its value replaced. Room is made before the
// insert so the new entry is never its own victim.
func (c *ARC) Put(key int64, value []float32) {
	if c.t1.SetValue(key, value) || c.t2.SetValue(key, value) {
		return
	}
	if _, ok := c.b1.Remove(key); ok {
		c.p = min(c.maxsize, c.p+1)
		c.makeRoom()
		c.t2.Put(key, value)
		c.trimGhosts()
		return
	}
	if _, ok := c.b2.Remove(key); ok {
		c.p = max(0, c.p-1)
		c.makeRoom()
		c.t2.Put(key, value)
		c.trimGhosts()
		return
	}
	c.makeRoom()
	c.t1.Put(key, value)
	c.trimGhosts()
}

// Remove drops key from the live lists and ghosts. No callback fires.
func (c *ARC) Remove(key int64) bool {
	if _, ok := c.t1.Remove(key); ok {
		return true
	}
	if _, ok := c.t2.Remove(key); ok {
		return true
	}
	if _, ok := c.b1.Remove(key); ok {
		return true
	}
	if _, ok := c.b2.Remove(key); ok {
		return true
	}
	return false
}

// Keys lists the live keys, t1 before t2, LRU first within each.
func (c *ARC) Keys() []int64 {
	keys := make([]int64, 0, c.Len())
	keys = append(keys, c.t1.Keys()...)
	keys = append(keys, c.t2.Keys()...)
	return keys
}

// Len reports the live entry count.
func (c *ARC) Len() int {
	return c.t1.Len() + c.t2.Len()
}

// Clear empties all four lists and resets p.
func (c *ARC) Clear() {
	c.t1.Clear()
	c.t2.Clear()
	c.b1.Clear()
	c.b2.Clear()
	c.p = 0
}

// makeRoom evicts live entries until a slot is free. The victim comes from
// t1 when t1 is non-empty and either exceeds its target p or t2 is empty;
// otherwise from t2. Victims move to the matching ghost list and fire
// onEvict once as a batch.
func (c *ARC) makeRoom() {
	var evicted []int64
	for c.t1.Len()+c.t2.Len() >= c.maxsize {
		if c.t1.Len() > 0 && (c.t1.Len() > c.p || c.t2.Len() == 0) {
			key, _, _ := c.t1.PopLRU()
			c.b1.Put(key, nil)
			evicted = append(evicted, key)
		} else {
			key, _, _ := c.t2.PopLRU()
			c.b2.Put(key, nil)
			evicted = append(evicted, key)
		}
	}
	if len(evicted) > 0 && c.onEvict != nil {
		c.onEvict(evicted)
	}
}

// trimGhosts drops ghost LRU keys beyond the p-derived caps.
func (c *ARC) trimGhosts() {
	for c.b1.Len() > c.maxsize-c.p {
		c.b1.PopLRU()
	}
	for c.b2.Len() > c.p {
		c.b2.PopLRU()
	}
}
