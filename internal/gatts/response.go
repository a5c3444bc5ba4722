package gatts

import (
	"errors"
	"fmt"
)

// MaxAttrLen is the largest attribute value a Response can carry.
const MaxAttrLen = 600

// ErrResponseTooLong is returned when a value does not fit a Response.
var ErrResponseTooLong = errors.New("gatts: response value too long")

// Response is the reusable buffer echoed back for prepared writes.
type Response struct {
	AttrHandle Handle
	AuthReq    uint8
	Offset     uint16

	value [MaxAttrLen]byte
	n     int
}

// Stage fills the buffer for a prepared-write echo.
func (r *Response) Stage(h Handle, offset uint16, value []byte) error {
	if len(value) > MaxAttrLen {
		return fmt.Errorf("%w: %d > %d bytes", ErrResponseTooLong, len(value), MaxAttrLen)
	}
	r.AttrHandle = h
	r.AuthReq = 0
	r.Offset = offset
	r.n = copy(r.value[:], value)
	return nil
}

// Value returns the staged value. It aliases the buffer.
func (r *Response) Value() []byte { return r.value[:r.n] }
