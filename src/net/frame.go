package net

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ugorji/go/codec"
)

type frameKind uint8

const (
	frameHello frameKind = iota
	frameSubscribe
	frameAck
	frameData
	frameGone
)

func (k frameKind) String() string {
	switch k {
	case frameHello:
		return "Hello"
	case frameSubscribe:
		return "Subscribe"
	case frameAck:
		return "Ack"
	case frameData:
		return "Data"
	case frameGone:
		return "Gone"
	default:
		return "Unknown"
	}
}

// Frame is the unit exchanged between substrates. Which fields are set depends
// on Kind.
type Frame struct {
	Kind   frameKind
	From   string
	Tag    string
	Epoch  int64
	Seq    uint64
	Values []float64
}

// newer reports whether f comes after the (epoch, seq) position.
func (f *Frame) newer(epoch int64, seq uint64) bool {
	if f.Epoch != epoch {
		return f.Epoch > epoch
	}
	return f.Seq > seq
}

func msgpackHandle() *codec.MsgpackHandle {
	mh := new(codec.MsgpackHandle)
	mh.WriteExt = true
	return mh
}

// frameHandle is shared by every encoder and decoder; handles are safe for
// concurrent use once configured.
var frameHandle = msgpackHandle()

// Marshal encodes the frame with msgpack.
func (f *Frame) Marshal() ([]byte, error) {
	var b bytes.Buffer
	enc := codec.NewEncoder(&b, frameHandle)
	if err := enc.Encode(f); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Unmarshal decodes a msgpack frame.
func (f *Frame) Unmarshal(data []byte) error {
	dec := codec.NewDecoderBytes(data, frameHandle)
	if err := dec.Decode(f); err != nil {
		return fmt.Errorf("decode frame: %v", err)
	}
	return nil
}

func newFrameEncoder(w io.Writer) *codec.Encoder {
	return codec.NewEncoder(w, frameHandle)
}

func newFrameDecoder(r io.Reader) *codec.Decoder {
	return codec.NewDecoder(r, frameHandle)
}
