package fec

import (
	"sync"

	fountain "github.com/Watchdog-Network/gofountain"
	"github.com/klauspost/reedsolomon"
	"github.com/pkg/errors"

	"github.com/journeymidnight/blockfec/utils"
)

const (
	// ChunkSize is the fixed size of every data and repair chunk. The
	// last data chunk of an object is zero padded up to it.
	ChunkSize = 1152

	// maxBoundedChunks is the largest data chunk count the exact
	// threshold coder handles. Objects with more data chunks use the
	// rateless coder.
	maxBoundedChunks = 27

	// frameShards is the total shard frame of the threshold coder,
	// data plus parity. One below the GF(2^8) shard limit, the same
	// budget the cm256 family uses.
	frameShards = 255

	// raptorAlignment is the sub-symbol alignment of the rateless
	// coder. ChunkSize is a multiple of it.
	raptorAlignment = 4

	maxObjectSize = 1 << 30
)

// Objects whose chunk storage would exceed this many bytes keep their
// chunks in a session owned temp file instead of memory.
var fileBackedThreshold = 8 << 20

var (
	ErrNotInitialized = errors.New("fec: not initialized, call Init first")
	ErrBadChunkID     = errors.New("fec: chunk id out of range")
	ErrNotReady       = errors.New("fec: decode not ready")
	ErrClosed         = errors.New("fec: session closed")
	ErrTransferred    = errors.New("fec: session state was transferred out")
)

type codecMode int

const (
	// no coding at all, every chunk is the whole object
	modeTrivial codecMode = iota
	// exact threshold coding, decodes on the chunkCount-th distinct chunk
	modeBounded
	// fountain coding, decodes on "enough" chunks, probabilistically
	modeRateless
)

func modeForChunks(dataChunks int) codecMode {
	switch {
	case dataChunks < 2:
		return modeTrivial
	case dataChunks <= maxBoundedChunks:
		return modeBounded
	default:
		return modeRateless
	}
}

func chunkCountFor(dataSize int) int {
	return utils.CeilDiv(dataSize, ChunkSize)
}

var (
	initOnce    sync.Once
	initErr     error
	initialized bool
)

// Init probes both coding primitives once. It must succeed before any
// Decoder or Encoder is constructed; a failure here is a broken build,
// not a per-session condition.
func Init() error {
	initOnce.Do(func() {
		if _, err := reedsolomon.New(2, frameShards-2); err != nil {
			initErr = errors.Wrap(err, "fec: threshold coder probe")
			return
		}
		// codec construction alone cannot fail, so run one encode to
		// catch an incompatible fountain implementation at startup
		k := maxBoundedChunks + 1
		codec := fountain.NewRaptorCodec(k, raptorAlignment)
		msg := make([]byte, k*ChunkSize)
		blocks := fountain.EncodeLTBlocks(msg, []int64{int64(k)}, codec)
		if len(blocks) != 1 {
			initErr = errors.New("fec: fountain coder probe failed")
			return
		}
		initialized = true
	})
	return initErr
}
