package wire

import (
	"fmt"

	"github.com/WebFirstLanguage/lanchat/pkg/constants"
	"github.com/WebFirstLanguage/lanchat/pkg/identity"
)

// Message is the closed set of typed chat messages. The concrete types are
// Query, Response, Text, File, Receipt and Unknown.
type Message interface {
	// Kind returns the envelope type value
	Kind() int
	// Sender returns the PeerID of the node that built the message
	Sender() identity.PeerID
	// Payload returns the envelope field
	Payload() string

	isMessage()
}

// Query asks the receiver for a piece of information, currently only "name"
type Query struct {
	From  identity.PeerID
	Field string
}

// Response answers a name query with the sender's display name
type Response struct {
	From identity.PeerID
	Name string
}

// Text carries a chat line
type Text struct {
	From identity.PeerID
	Body string
}

// File is reserved by the protocol and never produced by this node
type File struct {
	From  identity.PeerID
	Field string
}

// Receipt acknowledges a delivered text or reports a protocol error
type Receipt struct {
	From   identity.PeerID
	Status string
}

// Unknown is a well-formed envelope whose type is outside the known set
type Unknown struct {
	From  identity.PeerID
	Type  int
	Field string
}

func (Query) Kind() int     { return constants.KindQuery }
func (Response) Kind() int  { return constants.KindResponse }
func (Text) Kind() int      { return constants.KindText }
func (File) Kind() int      { return constants.KindFile }
func (Receipt) Kind() int   { return constants.KindReceipt }
func (u Unknown) Kind() int { return u.Type }

func (m Query) Sender() identity.PeerID    { return m.From }
func (m Response) Sender() identity.PeerID { return m.From }
func (m Text) Sender() identity.PeerID     { return m.From }
func (m File) Sender() identity.PeerID     { return m.From }
func (m Receipt) Sender() identity.PeerID  { return m.From }
func (m Unknown) Sender() identity.PeerID  { return m.From }

func (m Query) Payload() string    { return m.Field }
func (m Response) Payload() string { return m.Name }
func (m Text) Payload() string     { return m.Body }
func (m File) Payload() string     { return m.Field }
func (m Receipt) Payload() string  { return m.Status }
func (m Unknown) Payload() string  { return m.Field }

func (Query) isMessage()    {}
func (Response) isMessage() {}
func (Text) isMessage()     {}
func (File) isMessage()     {}
func (Receipt) isMessage()  {}
func (Unknown) isMessage()  {}

// NewMessage builds the variant matching kind. Out-of-range kinds yield Unknown.
func NewMessage(kind int, from identity.PeerID, field string) Message {
	switch kind {
	case constants.KindQuery:
		return Query{From: from, Field: field}
	case constants.KindResponse:
		return Response{From: from, Name: field}
	case constants.KindText:
		return Text{From: from, Body: field}
	case constants.KindFile:
		return File{From: from, Field: field}
	case constants.KindReceipt:
		return Receipt{From: from, Status: field}
	default:
		return Unknown{From: from, Type: kind, Field: field}
	}
}

// KindName returns a readable name for an envelope type value
func KindName(kind int) string {
	switch kind {
	case constants.KindQuery:
		return "query"
	case constants.KindResponse:
		return "response"
	case constants.KindText:
		return "text"
	case constants.KindFile:
		return "file"
	case constants.KindReceipt:
		return "receipt"
	default:
		return fmt.Sprintf("unknown_%d", kind)
	}
}
