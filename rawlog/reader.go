// Copyright 2024 The DVSFlow Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package rawlog

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/pkg/errors"

	"github.com/inivation/dvsflow/event"
)

// ReadAll parses a file written by Writer back into Raw events. It exists
// primarily to make the writer's on-disk format independently verifiable;
// the pipeline itself never reads its own raw log back.
func ReadAll(path string, v Variant, height int) ([]event.Raw, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "rawlog: read %q", path)
	}
	idx := bytes.Index(data, []byte(endHeaderSentinel))
	if idx < 0 {
		return nil, errors.Errorf("rawlog: %q missing header sentinel", path)
	}
	body := data[idx+len(endHeaderSentinel):]
	if len(body)%8 != 0 {
		return nil, errors.Errorf("rawlog: %q has a truncated record", path)
	}

	var order binary.ByteOrder = binary.BigEndian
	if v == V3 {
		order = binary.LittleEndian
	}

	out := make([]event.Raw, 0, len(body)/8)
	for off := 0; off < len(body); off += 8 {
		addr := order.Uint32(body[off : off+4])
		t := int32(order.Uint32(body[off+4 : off+8]))
		r := event.Raw{
			P: event.Polarity(addr & 1),
			X: int((addr >> 1) & 0x7F),
			T: int64(t),
		}
		y := int((addr >> 8) & 0xFFFF)
		if v == V2 {
			y = height - 1 - y
		}
		r.Y = y
		out = append(out, r)
	}
	return out, nil
}
