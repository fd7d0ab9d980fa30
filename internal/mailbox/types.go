package mailbox

// Message is one parsed mail message. From and To carry bare email
// addresses; Processed mirrors the server-side \Seen flag.
type Message struct {
	UID       uint32
	Folder    string
	Subject   string
	From      string
	To        string
	MessageID string
	Body      string
	Processed bool
}

// Thread is a sent message together with the replies that reference
// its message-id, plus a short context string derived from the
// exchange.
type Thread struct {
	Sent    Message
	Replies []Message
	Context string
}
