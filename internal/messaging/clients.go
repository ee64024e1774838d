package messaging

import "sync"

// Clients 是控制器持有的页面上下文订阅表。
type Clients struct {
	mu      sync.Mutex
	nextID  int
	clients map[int]Client
}

// NewClients 返回空订阅表。
func NewClients() *Clients {
	return &Clients{clients: make(map[int]Client)}
}

// Subscribe 注册页面上下文，返回取消订阅函数。
func (c *Clients) Subscribe(client Client) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.clients[id] = client
	return func() {
		c.mu.Lock()
		delete(c.clients, id)
		c.mu.Unlock()
	}
}

// Broadcast 把命令转发给全部已订阅的上下文，返回接收者数量。
func (c *Clients) Broadcast(msg Message) int {
	c.mu.Lock()
	targets := make([]Client, 0, len(c.clients))
	for _, client := range c.clients {
		targets = append(targets, client)
	}
	c.mu.Unlock()

	for _, client := range targets {
		client.Notify(msg)
	}
	return len(targets)
}

// Len 返回当前订阅数量。
func (c *Clients) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}
