// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package directory

import (
	"encoding/binary"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/gogpu/texshare"
)

// Record layout, little-endian, 128 bytes:
//
//	0   magic "TXSH"
//	4   version u16, flags u16
//	8   seq u64         odd while a writer is updating the record
//	16  pid u32
//	20  format u8, 3 bytes padding
//	24  width u32
//	28  height u32
//	32  generation u64
//	40  handle u64
//	48  epoch u64
//	56  frame u64       freshness counter, written last
//	64  stamped u64     unix nanoseconds of the last frame
//	72  reserved
const (
	recordSize    = 128
	recordMagic   = "TXSH"
	recordVersion = 1

	offMagic   = 0
	offVersion = 4
	offSeq     = 8
	offPID     = 16
	offFormat  = 20
	offWidth   = 24
	offHeight  = 28
	offGen     = 32
	offHandle  = 40
	offEpoch   = 48
	offFrame   = 56
	offStamped = 64
)

// maxReadRetries bounds how often a reader retries a torn snapshot.
const maxReadRetries = 1024

// record is a view of one mapped sender record. The backing memory must be
// 8-byte aligned, which mmap and heap slices of this size are.
type record []byte

func (r record) u64(off int) *atomic.Uint64 {
	return (*atomic.Uint64)(unsafe.Pointer(&r[off]))
}

// valid reports whether the record carries the current magic and version.
func (r record) valid() bool {
	return len(r) >= recordSize &&
		string(r[offMagic:offMagic+4]) == recordMagic &&
		binary.LittleEndian.Uint16(r[offVersion:]) == recordVersion
}

// write publishes info. Only one writer per record exists: the process
// holding the sender.
func (r record) write(info texshare.SenderInfo) {
	seq := r.u64(offSeq)
	seq.Add(1)

	copy(r[offMagic:], recordMagic)
	binary.LittleEndian.PutUint16(r[offVersion:], recordVersion)
	binary.LittleEndian.PutUint32(r[offPID:], uint32(info.PID)) //nolint:gosec // pids fit in 32 bits
	r[offFormat] = byte(info.Descriptor.Format)
	binary.LittleEndian.PutUint32(r[offWidth:], info.Descriptor.Width)
	binary.LittleEndian.PutUint32(r[offHeight:], info.Descriptor.Height)
	binary.LittleEndian.PutUint64(r[offGen:], info.Descriptor.Generation)
	binary.LittleEndian.PutUint64(r[offHandle:], uint64(info.Handle))
	binary.LittleEndian.PutUint64(r[offEpoch:], info.Epoch)

	seq.Add(1)
	r.stamp(info.Frame)
}

// stamp publishes a new freshness counter value.
func (r record) stamp(frame uint64) {
	r.u64(offStamped).Store(uint64(time.Now().UnixNano())) //nolint:gosec // positive until 2262
	r.u64(offFrame).Store(frame)
}

// frame returns the freshness counter.
func (r record) frame() uint64 { return r.u64(offFrame).Load() }

// read returns a consistent snapshot of the record. It reports false when
// the record is invalid or a writer kept it busy for every retry.
func (r record) read(name texshare.SenderName) (texshare.SenderInfo, time.Time, bool) {
	if !r.valid() {
		return texshare.SenderInfo{}, time.Time{}, false
	}
	seq := r.u64(offSeq)
	for range maxReadRetries {
		s1 := seq.Load()
		if s1&1 == 1 {
			runtime.Gosched()
			continue
		}
		info := texshare.SenderInfo{
			Name: name,
			Descriptor: texshare.Descriptor{
				Width:      binary.LittleEndian.Uint32(r[offWidth:]),
				Height:     binary.LittleEndian.Uint32(r[offHeight:]),
				Format:     texshare.PixelFormat(r[offFormat]),
				Generation: binary.LittleEndian.Uint64(r[offGen:]),
			},
			Handle: texshare.OSHandle(binary.LittleEndian.Uint64(r[offHandle:])),
			Epoch:  binary.LittleEndian.Uint64(r[offEpoch:]),
			PID:    int(binary.LittleEndian.Uint32(r[offPID:])),
		}
		if seq.Load() != s1 {
			continue
		}
		info.Frame = r.frame()
		stamped := time.Unix(0, int64(r.u64(offStamped).Load())) //nolint:gosec // written from UnixNano
		return info, stamped, true
	}
	return texshare.SenderInfo{}, time.Time{}, false
}
