package domain

// SpillItem is a serialized report parked in the local spill queue.
type SpillItem struct {
	Slot    int
	Payload []byte
}
