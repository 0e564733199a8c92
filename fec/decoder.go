package fec

import (
	fountain "github.com/Watchdog-Network/gofountain"
	"github.com/klauspost/reedsolomon"
	"github.com/pkg/errors"

	"github.com/journeymidnight/blockfec/xlog"
)

// Decoder is the receive side session for one object. Chunks arrive in
// any order, duplicates are no-ops, and DecodeReady flips exactly when
// the underlying coder has enough distinct chunks to rebuild the
// object.
//
// A Decoder must be driven by a single goroutine; embedders wanting
// parallelism shard by object, one Decoder each.
type Decoder struct {
	mode        codecMode
	objSize     int
	chunkCount  int
	chunksRecvd int

	tracker RecvdTracker
	storage chunkStorage
	// ids of the stored chunks, in slot order
	chunkIDs []uint32

	// bounded mode: storage slot of each data chunk, -1 until known.
	// Fully populated once the frame has been solved.
	dataSlot []int

	// rateless mode
	fdec    fountain.Decoder
	decoded []byte

	complete    bool
	transferred bool
	closed      bool
	failed      error

	scratch [ChunkSize]byte
}

// NewDecoder builds a session for one object of dataSize bytes.
func NewDecoder(dataSize int) (*Decoder, error) {
	if !initialized {
		return nil, ErrNotInitialized
	}
	if dataSize <= 0 || dataSize > maxObjectSize {
		return nil, errors.Errorf("fec: bad object size %d", dataSize)
	}
	chunkCount := chunkCountFor(dataSize)
	d := &Decoder{
		mode:       modeForChunks(chunkCount),
		objSize:    dataSize,
		chunkCount: chunkCount,
		tracker:    NewRecvdTracker(chunkCount),
	}
	storage, err := newChunkStorage(chunkCount)
	if err != nil {
		return nil, err
	}
	d.storage = storage
	switch d.mode {
	case modeBounded:
		d.dataSlot = make([]int, chunkCount)
		for i := range d.dataSlot {
			d.dataSlot[i] = -1
		}
	case modeRateless:
		codec := fountain.NewRaptorCodec(chunkCount, raptorAlignment)
		d.fdec = codec.NewDecoder(chunkCount * ChunkSize)
	}
	return d, nil
}

// ProvideChunk feeds one received chunk into the session. Chunks the
// tracker has already seen, and anything after completion, are no-ops.
func (d *Decoder) ProvideChunk(payload []byte, id uint32) error {
	if err := d.usable(); err != nil {
		return err
	}
	if len(payload) != ChunkSize {
		return errors.Errorf("fec: chunk payload is %d bytes, want %d", len(payload), ChunkSize)
	}
	if d.mode == modeBounded && id >= frameShards {
		return ErrBadChunkID
	}
	if d.complete {
		return nil
	}
	if d.tracker.CheckPresentAndMarkRecvd(id) {
		return nil
	}
	d.chunksRecvd++

	if err := d.store(payload, id); err != nil {
		return err
	}

	switch d.mode {
	case modeTrivial:
		// single chunk objects: any one chunk is the object
		d.complete = true
	case modeBounded:
		if len(d.chunkIDs) >= d.chunkCount {
			if err := d.solveFrame(); err != nil {
				if d.failed != nil {
					return err
				}
				// with chunkCount distinct valid ids the frame always
				// solves; treat a coder refusal as not-yet-complete
				// and keep taking chunks
				xlog.Logger.Warnf("threshold reconstruct failed: %+v", err)
			}
		}
	case modeRateless:
		block := fountain.LTBlock{
			BlockCode: int64(id),
			Data:      append([]byte(nil), payload...),
		}
		if d.fdec.AddBlocks([]fountain.LTBlock{block}) {
			if decoded := d.fdec.Decode(); decoded != nil {
				d.decoded = decoded
				d.complete = true
			}
		}
	}
	return nil
}

// HasChunk reports whether the session could reproduce the chunk with
// this id. Once decoding is complete that is every id.
func (d *Decoder) HasChunk(id uint32) bool {
	return d.complete || d.tracker.CheckPresent(id)
}

func (d *Decoder) DecodeReady() bool {
	return d.complete
}

func (d *Decoder) ChunkCount() int {
	return d.chunkCount
}

func (d *Decoder) ChunksReceived() int {
	return d.chunksRecvd
}

// GetDataChunk reconstructs data chunk index into a session owned
// scratch buffer. The result is only valid until the next call on this
// session; callers that need it longer use ReadDataChunk.
func (d *Decoder) GetDataChunk(index int) ([]byte, error) {
	if err := d.ReadDataChunk(index, d.scratch[:]); err != nil {
		return nil, err
	}
	return d.scratch[:], nil
}

// ReadDataChunk reconstructs data chunk index into dst, which must be
// at least ChunkSize bytes. The result does not alias session state.
func (d *Decoder) ReadDataChunk(index int, dst []byte) error {
	if err := d.usable(); err != nil {
		return err
	}
	if !d.complete {
		return ErrNotReady
	}
	if index < 0 || index >= d.chunkCount {
		return ErrBadChunkID
	}
	if len(dst) < ChunkSize {
		return errors.Errorf("fec: destination is %d bytes, want at least %d", len(dst), ChunkSize)
	}
	switch d.mode {
	case modeTrivial:
		return d.storage.readChunk(0, dst)
	case modeBounded:
		return d.storage.readChunk(d.dataSlot[index], dst)
	default:
		copy(dst[:ChunkSize], d.decoded[index*ChunkSize:(index+1)*ChunkSize])
		return nil
	}
}

// Close releases codec state and deletes the session owned backing
// file, unless ownership moved to an Encoder first.
func (d *Decoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.fdec = nil
	d.decoded = nil
	if d.storage == nil || d.transferred {
		return nil
	}
	return d.storage.close(true)
}

func (d *Decoder) usable() error {
	if d.closed {
		return ErrClosed
	}
	if d.transferred {
		return ErrTransferred
	}
	if d.failed != nil {
		return d.failed
	}
	return nil
}

func (d *Decoder) store(payload []byte, id uint32) error {
	slot := len(d.chunkIDs)
	if err := d.storage.writeChunk(slot, payload); err != nil {
		d.failed = err
		return err
	}
	d.chunkIDs = append(d.chunkIDs, id)
	if d.mode == modeBounded && uint64(id) < uint64(d.chunkCount) {
		d.dataSlot[id] = slot
	}
	return nil
}

// solveFrame runs the exact threshold reconstruction once chunkCount
// distinct chunks are stored, then writes the recovered data chunks
// back so every data chunk has a storage slot.
func (d *Decoder) solveFrame() error {
	enc, err := reedsolomon.New(d.chunkCount, frameShards-d.chunkCount)
	if err != nil {
		return errors.Wrap(err, "threshold coder")
	}
	shards := make([][]byte, frameShards)
	for slot, id := range d.chunkIDs {
		buf := make([]byte, ChunkSize)
		if err := d.storage.readChunk(slot, buf); err != nil {
			d.failed = err
			return err
		}
		shards[id] = buf
	}
	if err := enc.ReconstructData(shards); err != nil {
		return errors.Wrap(err, "reconstruct")
	}
	for i := 0; i < d.chunkCount; i++ {
		if d.dataSlot[i] >= 0 {
			continue
		}
		slot := len(d.chunkIDs)
		if err := d.storage.writeChunk(slot, shards[i]); err != nil {
			d.failed = err
			return err
		}
		d.chunkIDs = append(d.chunkIDs, uint32(i))
		d.dataSlot[i] = slot
	}
	d.complete = true
	return nil
}
