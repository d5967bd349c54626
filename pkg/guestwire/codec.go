package guestwire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Encoder writes NUL-delimited JSON frames to an underlying writer.
type Encoder struct {
	w io.Writer
}

// NewEncoder wraps w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode marshals v to JSON and writes it followed by a single NUL
// byte. JSON never contains an unescaped NUL, so the terminator is
// unambiguous.
func (e *Encoder) Encode(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling frame: %w", err)
	}
	data = append(data, 0)
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Decoder reads NUL-delimited JSON frames from an underlying reader.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder wraps r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode reads up to the next NUL byte and unmarshals it into v. It
// blocks until a full frame (or an error) is available, which is what
// gives a partial trailing write with no terminal NUL the documented
// "blocks until more data arrives" behavior.
func (d *Decoder) Decode(v interface{}) error {
	raw, err := d.r.ReadBytes(0)
	if err != nil {
		return fmt.Errorf("reading frame: %w", err)
	}
	body := raw[:len(raw)-1]
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("unmarshalling frame: %w", err)
	}
	return nil
}
