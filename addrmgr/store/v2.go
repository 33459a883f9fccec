// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package store implements the address manager's on-disk persistence: the
// fixed v2 binary layout, and read-only migration from the two legacy v1
// formats (a flat three-table file and an equivalently shaped SQLite
// database).
package store

import (
	"bytes"
	"encoding/binary"

	"github.com/golang/snappy"

	"github.com/driftfold/fullnode/addrmgr"
	"github.com/driftfold/fullnode/internal/errs"
)

// Format tags for the single leading byte every persisted file starts
// with, ahead of the layout described in spec.md §4.5.
const (
	tagRaw    byte = 0
	tagSnappy byte = 1
)

// EncodeV2 produces the framed v2 file body for snap: a format tag byte
// followed by the snappy-compressed fixed binary layout.
func EncodeV2(snap *addrmgr.Snapshot) []byte {
	body := encodeBody(snap)
	compressed := snappy.Encode(nil, body)
	out := make([]byte, 0, len(compressed)+1)
	out = append(out, tagSnappy)
	out = append(out, compressed...)
	return out
}

// DecodeV2 parses a framed v2 file body back into a Snapshot.
func DecodeV2(data []byte) (*addrmgr.Snapshot, error) {
	if len(data) < 1 {
		return nil, errs.New("v2 store: empty file")
	}
	tag, body := data[0], data[1:]
	switch tag {
	case tagSnappy:
		decoded, err := snappy.Decode(nil, body)
		if err != nil {
			return nil, errs.Wrap(err, "v2 store: snappy decode")
		}
		body = decoded
	case tagRaw:
		// body already raw
	default:
		return nil, errs.Errorf("v2 store: unknown format tag %d", tag)
	}
	return decodeBody(body)
}

// encodeBody writes spec.md §4.5's exact layout: key, new_count, the
// sparse new-table (unique_id, bucket) pairs, then every record (New
// records first, in Records order, followed by Tried records).
func encodeBody(snap *addrmgr.Snapshot) []byte {
	var buf bytes.Buffer
	buf.Write(snap.Key[:])

	newCount := uint64(0)
	for _, r := range snap.Records {
		if !r.IsTried {
			newCount++
		}
	}
	writeU64(&buf, newCount)

	writeU32(&buf, uint32(len(snap.NewTable)))
	for _, e := range snap.NewTable {
		writeU64(&buf, uint64(e.Record))
		writeU64(&buf, uint64(e.Bucket))
	}

	for _, r := range snap.Records {
		if !r.IsTried {
			writeRecord(&buf, r)
		}
	}
	for _, r := range snap.Records {
		if r.IsTried {
			writeRecord(&buf, r)
		}
	}
	return buf.Bytes()
}

func writeRecord(buf *bytes.Buffer, r addrmgr.RecordSnapshot) {
	writeString(buf, r.Host)
	writeU16(buf, r.Port)
	writeU64(buf, uint64(r.Timestamp))
	writeString(buf, r.SourceHost)
	writeU16(buf, r.SourcePort)
	writeU64(buf, uint64(r.LastSuccess))
	writeU64(buf, uint64(r.LastTry))
	writeU64(buf, uint64(r.LastCountAttempt))
	writeU32(buf, uint32(r.NumAttempts))
	writeU32(buf, uint32(r.RefCount))
}

func decodeBody(data []byte) (*addrmgr.Snapshot, error) {
	off := 0
	need := func(n int) error {
		if off+n > len(data) {
			return errs.New("v2 store: truncated file")
		}
		return nil
	}

	if err := need(32); err != nil {
		return nil, err
	}
	var key [32]byte
	copy(key[:], data[off:off+32])
	off += 32

	if err := need(8); err != nil {
		return nil, err
	}
	newCount := binary.BigEndian.Uint64(data[off : off+8])
	off += 8

	if err := need(4); err != nil {
		return nil, err
	}
	newTableCount := binary.BigEndian.Uint32(data[off : off+4])
	off += 4

	type rawEntry struct{ id, bucket uint64 }
	entries := make([]rawEntry, 0, newTableCount)
	for i := uint32(0); i < newTableCount; i++ {
		if err := need(16); err != nil {
			return nil, err
		}
		id := binary.BigEndian.Uint64(data[off : off+8])
		off += 8
		bucket := binary.BigEndian.Uint64(data[off : off+8])
		off += 8
		entries = append(entries, rawEntry{id, bucket})
	}

	var records []addrmgr.RecordSnapshot
	var idx uint64
	for off < len(data) {
		rec, n, err := readRecord(data[off:])
		if err != nil {
			return nil, err
		}
		off += n
		rec.IsTried = idx >= newCount
		records = append(records, rec)
		idx++
	}

	newTable := make([]addrmgr.NewTableEntry, 0, len(entries))
	for _, e := range entries {
		if e.id >= newCount {
			continue // out-of-range reference; drop rather than fail the whole load
		}
		newTable = append(newTable, addrmgr.NewTableEntry{Record: int(e.id), Bucket: int(e.bucket)})
	}

	return &addrmgr.Snapshot{
		Key:      key,
		Records:  records,
		NewTable: newTable,
	}, nil
}

func readRecord(data []byte) (addrmgr.RecordSnapshot, int, error) {
	off := 0
	host, n, err := readString(data[off:])
	if err != nil {
		return addrmgr.RecordSnapshot{}, 0, err
	}
	off += n
	if len(data) < off+2 {
		return addrmgr.RecordSnapshot{}, 0, errs.New("v2 store: truncated port")
	}
	port := binary.BigEndian.Uint16(data[off : off+2])
	off += 2
	if len(data) < off+8 {
		return addrmgr.RecordSnapshot{}, 0, errs.New("v2 store: truncated timestamp")
	}
	ts := int64(binary.BigEndian.Uint64(data[off : off+8]))
	off += 8
	srcHost, n, err := readString(data[off:])
	if err != nil {
		return addrmgr.RecordSnapshot{}, 0, err
	}
	off += n
	if len(data) < off+2 {
		return addrmgr.RecordSnapshot{}, 0, errs.New("v2 store: truncated source port")
	}
	srcPort := binary.BigEndian.Uint16(data[off : off+2])
	off += 2
	if len(data) < off+8+8+8+4+4 {
		return addrmgr.RecordSnapshot{}, 0, errs.New("v2 store: truncated counters")
	}
	lastSuccess := int64(binary.BigEndian.Uint64(data[off : off+8]))
	off += 8
	lastTry := int64(binary.BigEndian.Uint64(data[off : off+8]))
	off += 8
	lastCountAttempt := int64(binary.BigEndian.Uint64(data[off : off+8]))
	off += 8
	numAttempts := int(binary.BigEndian.Uint32(data[off : off+4]))
	off += 4
	refCount := int(binary.BigEndian.Uint32(data[off : off+4]))
	off += 4

	return addrmgr.RecordSnapshot{
		Host:             host,
		Port:             port,
		SourceHost:       srcHost,
		SourcePort:       srcPort,
		Timestamp:        ts,
		LastSuccess:      lastSuccess,
		LastTry:          lastTry,
		LastCountAttempt: lastCountAttempt,
		NumAttempts:      numAttempts,
		RefCount:         refCount,
	}, off, nil
}

func writeString(buf *bytes.Buffer, s string) {
	writeU32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readString(data []byte) (string, int, error) {
	if len(data) < 4 {
		return "", 0, errs.New("v2 store: truncated string length")
	}
	n := binary.BigEndian.Uint32(data[:4])
	if len(data) < int(4+n) {
		return "", 0, errs.New("v2 store: truncated string body")
	}
	return string(data[4 : 4+n]), int(4 + n), nil
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}
