// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package gtfs_lib_record

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/nixomose/nixomosegotools/tools"
)

func test_logger() *tools.Nixomosetools_logger {
	return tools.New_Nixomosetools_logger(tools.DEBUG)
}

func Test_encode_decode_round_trip(t *testing.T) {
	var rec = Log_record{
		Action:   Action_write,
		Write_id: 7,
		Filename: "t1",
		Offset:   10,
		Length:   5,
		Data:     []byte("hello"),
	}
	var encoded = rec.Encode()

	var ret, decoded = Decode_one(test_logger(), bufio.NewReader(bytes.NewReader(*encoded)))
	if ret != nil {
		t.Fatalf("decode: %v", ret.Get_errmsg())
	}
	if decoded.Action != rec.Action || decoded.Write_id != rec.Write_id || decoded.Filename != rec.Filename ||
		decoded.Offset != rec.Offset || decoded.Length != rec.Length || !bytes.Equal(decoded.Data, rec.Data) {
		t.Fatalf("round trip mismatch: got %+v, wanted %+v", decoded, rec)
	}
}

// payload bytes that look exactly like header framing (spaces, a
// linefeed) must survive untouched, since the decoder reads the payload
// by declared length rather than scanning for a delimiter.
func Test_decode_payload_binary_safety(t *testing.T) {
	var payload = []byte("has spaces\nand a newline and \x00 a nul byte")
	var rec = Log_record{
		Action:   Action_sync,
		Write_id: 1,
		Filename: "t2",
		Offset:   0,
		Length:   uint32(len(payload)),
		Data:     payload,
	}
	var encoded = rec.Encode()

	var ret, decoded = Decode_one(test_logger(), bufio.NewReader(bytes.NewReader(*encoded)))
	if ret != nil {
		t.Fatalf("decode: %v", ret.Get_errmsg())
	}
	if !bytes.Equal(decoded.Data, payload) {
		t.Fatalf("payload corrupted across encode/decode: got %q, wanted %q", decoded.Data, payload)
	}
}

// a torn record (the tail of a log file that was mid-append when a crash
// happened) must fail as MalformedRecord, not panic or hang.
func Test_decode_torn_record_is_malformed(t *testing.T) {
	var full = Log_record{Action: Action_write, Write_id: 1, Filename: "t3", Offset: 0, Length: 10, Data: []byte("0123456789")}
	var encoded = *full.Encode()
	var torn = encoded[:len(encoded)-4] // chop off the last few payload bytes

	var ret, decoded = Decode_one(test_logger(), bufio.NewReader(bytes.NewReader(torn)))
	if ret == nil {
		t.Fatalf("expected a malformed-record error decoding a torn record, got %+v", decoded)
	}
}

func Test_decode_empty_payload(t *testing.T) {
	var rec = Log_record{Action: Action_remove, Write_id: 3, Filename: "t4", Offset: 0, Length: 0, Data: nil}
	var encoded = rec.Encode()

	var ret, decoded = Decode_one(test_logger(), bufio.NewReader(bytes.NewReader(*encoded)))
	if ret != nil {
		t.Fatalf("decode: %v", ret.Get_errmsg())
	}
	if decoded.Length != 0 || len(decoded.Data) != 0 {
		t.Fatalf("expected empty payload, got length %d data %q", decoded.Length, decoded.Data)
	}
}

// two records back to back in one stream must decode independently, the
// trailing LF after the first record's payload must not bleed into the
// second record's header.
func Test_decode_multiple_records_in_sequence(t *testing.T) {
	var rec1 = Log_record{Action: Action_write, Write_id: 1, Filename: "t5", Offset: 0, Length: 3, Data: []byte("abc")}
	var rec2 = Log_record{Action: Action_sync, Write_id: 1, Filename: "t5", Offset: 0, Length: 3, Data: []byte("abc")}

	var buf bytes.Buffer
	buf.Write(*rec1.Encode())
	buf.Write(*rec2.Encode())

	var r = bufio.NewReader(&buf)
	var ret, first = Decode_one(test_logger(), r)
	if ret != nil {
		t.Fatalf("decode first: %v", ret.Get_errmsg())
	}
	if first.Action != Action_write {
		t.Fatalf("expected first record action W, got %c", first.Action)
	}

	var second *Log_record
	if ret, second = Decode_one(test_logger(), r); ret != nil {
		t.Fatalf("decode second: %v", ret.Get_errmsg())
	}
	if second.Action != Action_sync {
		t.Fatalf("expected second record action S, got %c", second.Action)
	}
}
