package eth

import (
	"container/list"

	"github.com/helioslabs/swcore/internal/core"
	"github.com/helioslabs/swcore/internal/diag"
)

// DefaultCacheSize is the address-table capacity when none is given.
const DefaultCacheSize = 64

type cacheEntry struct {
	mac    core.MAC
	port   int
	static bool
}

// Cache is the address-learning plugin. It learns source MAC to port
// bindings on ingress and narrows the destination mask to the owning
// port on a hit. Static entries are installed explicitly and survive
// Flush; learned entries are evicted least-recently-used when the
// table fills.
type Cache struct {
	capacity int
	entries  map[uint64]*list.Element
	order    *list.List // front = most recently used

	learning bool
	// missBcast is the set of source ports whose unknown-unicast
	// frames flood instead of dropping.
	missBcast core.PortMask
}

// NewCache creates an address cache with the given capacity (frames
// learned dynamically; static entries also count against it).
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &Cache{
		capacity:  capacity,
		entries:   make(map[uint64]*list.Element),
		order:     list.New(),
		learning:  true,
		missBcast: core.MaskAll,
	}
}

// SetLearning enables or disables dynamic source-address learning.
func (c *Cache) SetLearning(on bool) { c.learning = on }

// SetMissBroadcast sets the ports whose unknown-unicast traffic floods
// to all ports. Ports outside the mask drop on a lookup miss.
func (c *Cache) SetMissBroadcast(mask core.PortMask) { c.missBcast = mask }

// Insert installs a static entry that survives Flush. Replaces any
// existing entry for the address.
func (c *Cache) Insert(mac core.MAC, port int) {
	c.put(mac, port, true)
}

// Lookup returns the port bound to the address, if any.
func (c *Cache) Lookup(mac core.MAC) (int, bool) {
	if el, ok := c.entries[mac.Uint64()]; ok {
		return el.Value.(*cacheEntry).port, true
	}
	return 0, false
}

// Len returns the number of table entries.
func (c *Cache) Len() int { return c.order.Len() }

// Clear removes every entry, static included.
func (c *Cache) Clear() {
	c.entries = make(map[uint64]*list.Element)
	c.order.Init()
}

// Flush removes learned entries and keeps static ones.
func (c *Cache) Flush() {
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*cacheEntry)
		if !e.static {
			delete(c.entries, e.mac.Uint64())
			c.order.Remove(el)
		}
		el = next
	}
}

func (c *Cache) put(mac core.MAC, port int, static bool) {
	key := mac.Uint64()
	if el, ok := c.entries[key]; ok {
		e := el.Value.(*cacheEntry)
		e.port = port
		e.static = e.static || static
		c.order.MoveToFront(el)
		return
	}
	if c.order.Len() >= c.capacity && !c.evict() {
		return // table pinned full by static entries
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{mac: mac, port: port, static: static})
}

// evict drops the least-recently-used learned entry. Static entries
// are never evicted.
func (c *Cache) evict() bool {
	for el := c.order.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*cacheEntry)
		if !e.static {
			delete(c.entries, e.mac.Uint64())
			c.order.Remove(el)
			return true
		}
	}
	return false
}

// Query implements Plugin: learn the source binding, then resolve the
// destination mask.
func (c *Cache) Query(pp *PluginPacket) {
	if c.learning && pp.Header.Src.IsUnicast() {
		c.put(pp.Header.Src, pp.SrcPort, false)
	}
	dst := pp.Header.Dst
	if dst.IsMulticast() {
		return // broadcast and multicast flood; leave the mask alone
	}
	if el, ok := c.entries[dst.Uint64()]; ok {
		c.order.MoveToFront(el)
		pp.KeepPorts(core.MaskFor(el.Value.(*cacheEntry).port))
		return
	}
	if !c.missBcast.Contains(pp.SrcPort) {
		pp.Drop(diag.ReasonNoRoute)
	}
}
