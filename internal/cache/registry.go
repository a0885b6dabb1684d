package cache

// ProducerRegistry maps producer ids to producers. Ids handed out by NextID are
// unique per registry, so independent caches never collide.
type ProducerRegistry struct {
	next      int
	producers map[int]Producer
}

func NewProducerRegistry() *ProducerRegistry {
	return &ProducerRegistry{
		producers: make(map[int]Producer),
	}
}

// NextID returns an id not yet handed out and not registered explicitly.
func (r *ProducerRegistry) NextID() int {
	for {
		id := r.next
		r.next++
		if _, taken := r.producers[id]; !taken {
			return id
		}
	}
}

func (r *ProducerRegistry) Register(id int, p Producer) error {
	if _, ok := r.producers[id]; ok {
		return errDuplicateProducer(id)
	}
	r.producers[id] = p
	return nil
}

func (r *ProducerRegistry) Lookup(id int) (Producer, bool) {
	p, ok := r.producers[id]
	return p, ok
}

func (r *ProducerRegistry) Unregister(id int) bool {
	if _, ok := r.producers[id]; !ok {
		return false
	}
	delete(r.producers, id)
	return true
}

func (r *ProducerRegistry) Len() int {
	return len(r.producers)
}
