package booking

import (
	"sync"

	"github.com/example/ambulance-dispatch/internal/models"
)

// responseWaiters parks at most one matching worker per booking while it
// negotiates with candidate drivers. Responses for bookings nobody is
// waiting on are dropped, which is exactly what a late or duplicate driver
// answer deserves.
type responseWaiters struct {
	mu sync.Mutex
	m  map[string]chan models.DriverResponse
}

func newResponseWaiters() *responseWaiters {
	return &responseWaiters{m: make(map[string]chan models.DriverResponse)}
}

// register creates the wait channel for a booking. The channel is buffered
// so deliver never blocks a driver response handler.
func (w *responseWaiters) register(bookingID string) chan models.DriverResponse {
	ch := make(chan models.DriverResponse, 1)
	w.mu.Lock()
	w.m[bookingID] = ch
	w.mu.Unlock()
	return ch
}

func (w *responseWaiters) unregister(bookingID string) {
	w.mu.Lock()
	delete(w.m, bookingID)
	w.mu.Unlock()
}

// deliver hands a driver response to the waiting worker, if any. Returns
// false when nobody is waiting.
func (w *responseWaiters) deliver(resp models.DriverResponse) bool {
	w.mu.Lock()
	ch, ok := w.m[resp.BookingID]
	w.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- resp:
		return true
	default:
		return false
	}
}
