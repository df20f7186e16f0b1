package lobby

import (
	"bytes"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Request events sent by a client, each paired with an acknowledgement.
const (
	EventNamespaceJoin  = "namespace:join"
	EventGetPublicRooms = "namespace:get-public-rooms"
	EventRoomCreate     = "room:create"
	EventRoomJoin       = "room:join"
	EventRoomLeave      = "room:leave"
	EventRoomEvent      = "room:event"
)

// Push events sent by the server, never acknowledged.
const (
	EventRoomUpdate = "room:update"
)

// The Message is the structure which describes the incoming and outcoming data.
//
// The raw data received/sent is structured following this order:
// <ack>;
// <event>;
// <isError(0-1)>;
// <body||error_message>
//
// The "ack" token pairs a request with its acknowledgement reply;
// it is empty on server pushes. Internal `serializeMessage` and
// `deserializeMessage` functions do the job on any read/write.
type Message struct {
	// The ack token, generated by the requesting side and
	// echoed back (confirmation-prefixed) on the reply.
	ack string

	// The Event that this message carries,
	// a request name, a push name or empty on a bare acknowledgement.
	Event string

	// The actual body of the incoming/outcoming data, JSON.
	Body []byte

	// The Err contains the acknowledgement's failure, if any.
	Err error

	// if true then `Err` is filled by the error message and the last
	// segment of the serialized message is that text instead of the body.
	isError bool

	isInvalid bool
}

func (m *Message) isAckReply() bool {
	return m.ack != "" && m.ack[0] == ackConfirmationPrefix
}

const (
	ackConfirmationPrefix = '#'
	ackRequestPrefix      = '$'
)

var ackCounter uint64

func genAck() string {
	// the counter keeps tokens unique when two requests share a nanosecond.
	n := atomic.AddUint64(&ackCounter, 1)
	return string(ackRequestPrefix) +
		strconv.FormatInt(time.Now().UnixNano(), 10) +
		"-" + strconv.FormatUint(n, 10)
}

func genAckConfirmation(ack string) string {
	return string(ackConfirmationPrefix) + ack
}

var (
	trueByte  = []byte{'1'}
	falseByte = []byte{'0'}

	messageSeparatorString = ";"
	messageSeparator       = []byte(messageSeparatorString)
	// we use this because it has zero chance to be part of an event name,
	// semicolon has higher probability to exist on those values. See `escape` and `unescape`.
	messageFieldSeparatorReplacement = "@%!semicolon@%!"
)

// called on `serializeMessage` to all message's fields except the body (and error).
func escape(s string) string {
	if len(s) == 0 {
		return s
	}

	return strings.Replace(s, messageSeparatorString, messageFieldSeparatorReplacement, -1)
}

// called on `deserializeMessage` to all message's fields except the body (and error).
func unescape(s string) string {
	if len(s) == 0 {
		return s
	}

	return strings.Replace(s, messageFieldSeparatorReplacement, messageSeparatorString, -1)
}

func serializeMessage(msg Message) []byte {
	return serializeOutput(msg.ack, escape(msg.Event), msg.Body, msg.Err)
}

func serializeOutput(ack, event string, body []byte, err error) []byte {
	isErrorByte := falseByte

	if err != nil {
		body = []byte(err.Error())
		isErrorByte = trueByte
	}

	return bytes.Join([][]byte{ // this number of fields should match the deserializer's, see `validMessageSepCount`.
		[]byte(ack),
		[]byte(event),
		isErrorByte,
		body,
	}, messageSeparator)
}

const validMessageSepCount = 4

func deserializeMessage(b []byte) Message {
	var msg Message

	if len(b) == 0 {
		msg.isInvalid = true
		return msg
	}

	// the body segment is the remainder, so a `;` inside a JSON body is safe.
	dts := bytes.SplitN(b, messageSeparator, validMessageSepCount)
	if len(dts) != validMessageSepCount {
		msg.isInvalid = true
		return msg
	}

	msg.ack = string(dts[0])
	msg.Event = unescape(string(dts[1]))
	isError := bytes.Equal(dts[2], trueByte)

	if b := dts[3]; len(b) > 0 {
		if isError {
			msg.Err = errorText(string(b))
			msg.isError = true
		} else {
			msg.Body = b // keep it like that.
		}
	} else if isError {
		msg.Err = ErrUnknown
		msg.isError = true
	}

	return msg
}
