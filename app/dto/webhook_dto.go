package dto

// WebhookPayload is the provider's callback envelope. One POST can carry any
// mix of delivery-status events and inbound messages.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

type WebhookChange struct {
	Field string       `json:"field"`
	Value WebhookValue `json:"value"`
}

type WebhookValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Metadata         WebhookMetadata  `json:"metadata"`
	Statuses         []StatusEvent    `json:"statuses,omitempty"`
	Messages         []InboundMessage `json:"messages,omitempty"`
}

type WebhookMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// StatusEvent is one delivery-status update keyed by provider message id
type StatusEvent struct {
	ID          string             `json:"id"`
	Status      string             `json:"status"`
	Timestamp   string             `json:"timestamp"`
	RecipientID string             `json:"recipient_id"`
	Errors      []StatusEventError `json:"errors,omitempty"`
}

type StatusEventError struct {
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message,omitempty"`
}

// InboundMessage is one user-initiated message received on a channel
type InboundMessage struct {
	From        string              `json:"from"`
	ID          string              `json:"id"`
	Timestamp   string              `json:"timestamp"`
	Type        string              `json:"type"`
	Text        *InboundText        `json:"text,omitempty"`
	Button      *InboundButton      `json:"button,omitempty"`
	Interactive *InboundInteractive `json:"interactive,omitempty"`
}

type InboundText struct {
	Body string `json:"body"`
}

type InboundButton struct {
	Text    string `json:"text"`
	Payload string `json:"payload,omitempty"`
}

type InboundInteractive struct {
	Type        string        `json:"type"`
	ButtonReply *InboundReply `json:"button_reply,omitempty"`
	ListReply   *InboundReply `json:"list_reply,omitempty"`
}

type InboundReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// WebhookAck is the body returned to the provider for processed callbacks
type WebhookAck struct {
	Processed int `json:"processed"`
	Ignored   int `json:"ignored"`
}
