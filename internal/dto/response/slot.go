package response

type SlotResponse struct {
	Hour    int    `json:"hour"`
	Display string `json:"display"`
	Value   string `json:"value"`
}

type AvailableSlotsResponse struct {
	Date           string         `json:"date"`
	Weekday        string         `json:"weekday"`
	AvailableSlots []SlotResponse `json:"available_slots"`
	BookedSlots    []SlotResponse `json:"booked_slots"`
	Message        string         `json:"message,omitempty"`
}
