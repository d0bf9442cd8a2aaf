package queue

// Item is the minimal data placed on the dispatch queue.
// Workers fetch the full Delivery from the DB using the ID,
// keeping the queue lightweight and the row data authoritative.
type Item struct {
	DeliveryID     string
	NotificationID string
	Retry          bool
}
