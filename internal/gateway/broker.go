package gateway

import "sync"

// Broker is the in-memory registry of broadcast groups
type Broker struct {
	mu     sync.RWMutex
	groups map[string]map[string]*Client // groupKey -> connId -> client
}

// NewBroker creates an empty Broker
func NewBroker() *Broker {
	return &Broker{groups: make(map[string]map[string]*Client)}
}

// Subscribe adds client to the group
func (b *Broker) Subscribe(groupKey string, client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	members, ok := b.groups[groupKey]
	if !ok {
		members = make(map[string]*Client)
		b.groups[groupKey] = members
	}
	members[client.ConnId] = client
}

// Unsubscribe removes client from the group and drops the group once empty
func (b *Broker) Unsubscribe(groupKey string, client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	members, ok := b.groups[groupKey]
	if !ok {
		return
	}
	delete(members, client.ConnId)
	if len(members) == 0 {
		delete(b.groups, groupKey)
	}
}

// Subscribers returns a snapshot of the group's connections
func (b *Broker) Subscribers(groupKey string) []*Client {
	b.mu.RLock()
	defer b.mu.RUnlock()

	members := b.groups[groupKey]
	clients := make([]*Client, 0, len(members))
	for _, c := range members {
		clients = append(clients, c)
	}
	return clients
}

// SubscriberCount returns the number of connections in the group
func (b *Broker) SubscriberCount(groupKey string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.groups[groupKey])
}

// GroupCount returns the number of non-empty groups
func (b *Broker) GroupCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.groups)
}
