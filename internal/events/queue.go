package events

// Queue buffers the events one engine call emits and dispatches them to a
// Handler only once Drain is called, per REDESIGN FLAGS: the engine pushes
// as it mutates the book, and the dispatcher (internal/protocol) calls
// Drain exactly once after the engine call returns, so a handler can never
// observe a half-applied command.
type Queue struct {
	ring    *RingBuffer[Event]
	handler Handler
}

// NewQueue creates a queue that will dispatch drained events to handler.
// handler may be NopHandler{} if nothing is listening.
func NewQueue(handler Handler) *Queue {
	if handler == nil {
		handler = NopHandler{}
	}
	return &Queue{ring: NewRingBuffer[Event](), handler: handler}
}

// Emit enqueues one event. Called only by the matching/orderbook layer,
// never by a Handler implementation.
func (q *Queue) Emit(ev Event) {
	q.ring.Push(ev)
}

// Pending reports how many events are queued but not yet drained.
func (q *Queue) Pending() int {
	return q.ring.Len()
}

// Drain dispatches every queued event to the handler, in emission order,
// and returns the number dispatched.
func (q *Queue) Drain() int {
	var buf [64]Event
	total := 0
	for {
		n := q.ring.TryRead(buf[:])
		if n == 0 {
			return total
		}
		for i := 0; i < n; i++ {
			dispatch(q.handler, buf[i])
		}
		total += n
	}
}

func dispatch(h Handler, ev Event) {
	switch e := ev.(type) {
	case AddSymbol:
		h.OnAddSymbol(e.Symbol, e.Name)
	case DeleteSymbol:
		h.OnDeleteSymbol(e.Symbol)
	case AddOrderBook:
		h.OnAddOrderBook(e.Book)
	case UpdateOrderBook:
		h.OnUpdateOrderBook(e.Book, e.TopChanged)
	case DeleteOrderBook:
		h.OnDeleteOrderBook(e.Book)
	case AddLevel:
		h.OnAddLevel(e.Book, e.Level)
	case UpdateLevel:
		h.OnUpdateLevel(e.Book, e.Level, e.TopChanged)
	case DeleteLevel:
		h.OnDeleteLevel(e.Book, e.Level)
	case AddOrder:
		h.OnAddOrder(e.Book, e.Order)
	case UpdateOrder:
		h.OnUpdateOrder(e.Book, e.Order)
	case DeleteOrder:
		h.OnDeleteOrder(e.Book, e.Order)
	case ExecuteOrder:
		h.OnExecuteOrder(e.Book, e.Order, e.Price, e.Quantity)
	}
}
