package fec

import (
	"math/rand"
	"time"

	fountain "github.com/Watchdog-Network/gofountain"
	"github.com/klauspost/reedsolomon"
	"github.com/pkg/errors"
)

// RepairChunks is the caller owned output of an Encoder: a flat
// payload buffer of Count() chunks plus one id per slot. Ids start at
// 0, the unset marker, and are filled in by BuildChunk. The ids it
// produces feed directly into Decoder.ProvideChunk on the far side.
type RepairChunks struct {
	Payloads []byte
	IDs      []uint32
}

func NewRepairChunks(n int) *RepairChunks {
	return &RepairChunks{
		Payloads: make([]byte, n*ChunkSize),
		IDs:      make([]uint32, n),
	}
}

func (r *RepairChunks) Count() int {
	return len(r.IDs)
}

// Payload returns the chunk buffer of one slot.
func (r *RepairChunks) Payload(i int) []byte {
	return r.Payloads[i*ChunkSize : (i+1)*ChunkSize]
}

// Encoder is the send side session for one object. It generates repair
// chunk payloads and ids into caller owned output slots; it never owns
// the output. Like the Decoder it is confined to a single goroutine.
type Encoder struct {
	mode       codecMode
	chunkCount int
	out        *RepairChunks

	// the object, zero padded to chunkCount*ChunkSize. Must not change
	// while the Encoder is alive.
	data []byte

	// bounded mode: the full parity frame, computed on first use, and
	// the repair ids already handed out
	parity  [][]byte
	usedIDs idSet
	rng     *rand.Rand

	// rateless mode: payloads for every output slot, built on first use
	blocks [][]byte

	// storage taken over from a transferred Decoder; deleted on Close
	storage chunkStorage

	closed bool
}

// NewEncoder builds a session generating repair chunks for data into
// out. data must not change during the Encoder's lifetime.
func NewEncoder(data []byte, out *RepairChunks) (*Encoder, error) {
	if !initialized {
		return nil, ErrNotInitialized
	}
	if len(data) == 0 || len(data) > maxObjectSize {
		return nil, errors.Errorf("fec: bad object size %d", len(data))
	}
	if err := validateOut(out); err != nil {
		return nil, err
	}
	e := newEncoder(len(data), out)
	if e.mode == modeBounded && out.Count() > frameShards-e.chunkCount {
		return nil, errors.Errorf("fec: %d repair chunks exceed the parity budget for %d data chunks",
			out.Count(), e.chunkCount)
	}
	if len(data) == e.chunkCount*ChunkSize {
		e.data = data
	} else {
		e.data = make([]byte, e.chunkCount*ChunkSize)
		copy(e.data, data)
	}
	return e, nil
}

// NewEncoderFromDecoder moves the storage and codec state of a
// completed Decoder into a fresh Encoder, so repair generation reuses
// what decoding already accumulated instead of re-deriving it from raw
// object bytes. On success the Decoder is inert: its operations fail
// and its Close no longer deletes the backing storage, which the
// Encoder now owns and deletes exactly once.
func NewEncoderFromDecoder(dec *Decoder, out *RepairChunks) (*Encoder, error) {
	if !initialized {
		return nil, ErrNotInitialized
	}
	if dec == nil {
		return nil, errors.New("fec: nil decoder")
	}
	if err := dec.usable(); err != nil {
		return nil, err
	}
	if !dec.DecodeReady() {
		return nil, ErrNotReady
	}
	if err := validateOut(out); err != nil {
		return nil, err
	}
	e := newEncoder(dec.objSize, out)
	if e.mode == modeBounded && out.Count() > frameShards-e.chunkCount {
		return nil, errors.Errorf("fec: %d repair chunks exceed the parity budget for %d data chunks",
			out.Count(), e.chunkCount)
	}
	switch e.mode {
	case modeTrivial:
		buf := make([]byte, ChunkSize)
		if err := dec.storage.readChunk(0, buf); err != nil {
			return nil, err
		}
		e.data = buf
	case modeBounded:
		buf := make([]byte, e.chunkCount*ChunkSize)
		for i := 0; i < e.chunkCount; i++ {
			if err := dec.storage.readChunk(dec.dataSlot[i], buf[i*ChunkSize:(i+1)*ChunkSize]); err != nil {
				return nil, err
			}
		}
		e.data = buf
	case modeRateless:
		e.data = dec.decoded
	}

	// ownership moves only after everything above succeeded
	e.storage = dec.storage
	dec.storage = nil
	dec.fdec = nil
	dec.decoded = nil
	dec.transferred = true
	return e, nil
}

// BuildChunk fills output slot with a repair payload and its id. A
// slot that already has an id is left alone unless overwrite is set.
func (e *Encoder) BuildChunk(slot int, overwrite bool) error {
	if e.closed {
		return ErrClosed
	}
	if slot < 0 || slot >= e.out.Count() {
		return errors.Errorf("fec: slot %d out of range", slot)
	}
	if e.out.IDs[slot] != 0 && !overwrite {
		return nil
	}
	dst := e.out.Payload(slot)
	switch e.mode {
	case modeTrivial:
		// redundancy by repetition, the payload is the padded object
		// under the one data chunk id
		copy(dst, e.data)
		e.out.IDs[slot] = 0
	case modeBounded:
		if e.parity == nil {
			if err := e.buildParity(); err != nil {
				return err
			}
		}
		id, err := e.pickRepairID()
		if err != nil {
			return err
		}
		copy(dst, e.parity[int(id)-e.chunkCount])
		e.out.IDs[slot] = id
	case modeRateless:
		if e.blocks == nil {
			e.buildBlocks()
		}
		copy(dst, e.blocks[slot])
		e.out.IDs[slot] = uint32(e.chunkCount + slot)
	}
	return nil
}

// PrefillChunks eagerly builds the last output slot, so the lazy
// per-session codec setup cost lands here instead of on the first real
// use.
func (e *Encoder) PrefillChunks() error {
	return e.BuildChunk(e.out.Count()-1, false)
}

// Close releases codec state and any storage transferred in from a
// Decoder. The caller owned output is never touched.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.parity = nil
	e.blocks = nil
	if e.storage != nil {
		return e.storage.close(true)
	}
	return nil
}

// BuildRepairChunks fills every slot of out with repair chunks for
// data, failing the whole call if any slot fails.
func BuildRepairChunks(data []byte, out *RepairChunks) error {
	enc, err := NewEncoder(data, out)
	if err != nil {
		return err
	}
	defer enc.Close()
	for i := 0; i < out.Count(); i++ {
		if err := enc.BuildChunk(i, false); err != nil {
			return err
		}
	}
	return nil
}

func newEncoder(objSize int, out *RepairChunks) *Encoder {
	chunkCount := chunkCountFor(objSize)
	return &Encoder{
		mode:       modeForChunks(chunkCount),
		chunkCount: chunkCount,
		out:        out,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func validateOut(out *RepairChunks) error {
	if out == nil || out.Count() == 0 {
		return errors.New("fec: empty output slots")
	}
	if len(out.Payloads) != out.Count()*ChunkSize {
		return errors.Errorf("fec: output payload buffer is %d bytes, want %d",
			len(out.Payloads), out.Count()*ChunkSize)
	}
	for _, id := range out.IDs {
		if id != 0 {
			return errors.New("fec: output ids must start unset")
		}
	}
	return nil
}

// pickRepairID draws a fresh random repair id for bounded mode. Ids
// are offset by the data chunk count, so they can never collide with a
// data chunk id or with the tracker's 0 sentinel.
func (e *Encoder) pickRepairID() (uint32, error) {
	budget := frameShards - e.chunkCount
	if e.usedIDs.size() >= budget {
		return 0, errors.New("fec: parity budget exhausted")
	}
	for {
		id := uint32(e.chunkCount + e.rng.Intn(budget))
		if e.usedIDs.insert(id) {
			return id, nil
		}
	}
}

func (e *Encoder) buildParity() error {
	enc, err := reedsolomon.New(e.chunkCount, frameShards-e.chunkCount)
	if err != nil {
		return errors.Wrap(err, "threshold coder")
	}
	shards := make([][]byte, frameShards)
	for i := 0; i < e.chunkCount; i++ {
		shards[i] = e.data[i*ChunkSize : (i+1)*ChunkSize]
	}
	for i := e.chunkCount; i < frameShards; i++ {
		shards[i] = make([]byte, ChunkSize)
	}
	if err := enc.Encode(shards); err != nil {
		return errors.Wrap(err, "encode parity")
	}
	e.parity = shards[e.chunkCount:]
	return nil
}

// buildBlocks generates every output slot's payload in one pass.
// Rateless repair ids are sequential from the data chunk count, so
// they are all known up front and one encode covers the whole output.
func (e *Encoder) buildBlocks() {
	n := e.out.Count()
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64(e.chunkCount + i)
	}
	codec := fountain.NewRaptorCodec(e.chunkCount, raptorAlignment)
	ltBlocks := fountain.EncodeLTBlocks(e.data, ids, codec)
	e.blocks = make([][]byte, n)
	for i := range ltBlocks {
		buf := make([]byte, ChunkSize)
		copy(buf, ltBlocks[i].Data)
		e.blocks[i] = buf
	}
}
