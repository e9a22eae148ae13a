// Package msgpackcodec is a seal.Codec for msgpack-encoded application messages.
package msgpackcodec

import (
	"bytes"
	"reflect"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v4"

	"github.com/Zereker/seal"
)

// Validator is implemented by messages with required fields.
// Validate reports a message that decoded cleanly but is not complete.
type Validator interface {
	Validate() error
}

// Codec encodes messages with msgpack. Decode builds the target value with
// the factory passed to New, so every frame on a connection decodes into the
// same Go type (typically an envelope with a kind field).
type Codec struct {
	newMessage func() interface{}
}

// New returns a Codec decoding into values returned by newMessage, which
// must return a fresh pointer on every call.
func New(newMessage func() interface{}) *Codec {
	return &Codec{newMessage: newMessage}
}

// Encode marshals msg with compact integer encoding and sorted map keys so
// equal messages produce equal bytes.
func (c *Codec) Encode(msg seal.Message) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf).UseCompactEncoding(true).SortMapKeys(true)
	if err := enc.Encode(msg); err != nil {
		return nil, errors.Wrapf(err, "msgpack encode %T", msg)
	}
	return buf.Bytes(), nil
}

// Decode unmarshals one frame body. Every failure is classified for the
// channel: broken msgpack is seal.ErrMalformedMessage, non UTF-8 strings are
// seal.ErrInvalidText, and a failing Validate is seal.ErrIncompleteMessage.
// Length headers larger than the body are rejected before decoding.
func (c *Codec) Decode(body []byte) (seal.Message, error) {
	if err := checkLengths(body); err != nil {
		return nil, err
	}

	v := c.newMessage()

	r := bytes.NewReader(body)
	if err := msgpack.NewDecoder(r).Decode(v); err != nil {
		return nil, errors.Wrap(seal.ErrMalformedMessage, err.Error())
	}
	// Trailing bytes mean the body holds more than one value.
	if r.Len() > 0 {
		return nil, errors.Wrap(seal.ErrMalformedMessage, "trailing bytes after message")
	}

	if err := checkText(reflect.ValueOf(v)); err != nil {
		return nil, err
	}

	if vd, ok := v.(Validator); ok {
		if err := vd.Validate(); err != nil {
			return nil, errors.Wrap(seal.ErrIncompleteMessage, err.Error())
		}
	}

	return v, nil
}

// checkText walks v and rejects any string that is not valid UTF-8.
func checkText(v reflect.Value) error {
	switch v.Kind() {
	case reflect.String:
		if !utf8.ValidString(v.String()) {
			return errors.Wrapf(seal.ErrInvalidText, "%q", v.String())
		}
	case reflect.Ptr, reflect.Interface:
		if !v.IsNil() {
			return checkText(v.Elem())
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if !v.Type().Field(i).IsExported() {
				continue
			}
			if err := checkText(v.Field(i)); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return nil
		}
		for i := 0; i < v.Len(); i++ {
			if err := checkText(v.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if err := checkText(iter.Key()); err != nil {
				return err
			}
			if err := checkText(iter.Value()); err != nil {
				return err
			}
		}
	}
	return nil
}
